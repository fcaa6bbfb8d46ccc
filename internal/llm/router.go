// Copyright (c) 2026 Chris Bergstrom
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package llm

import "fmt"

// RouteInput is the full set of signals the router looks at.
type RouteInput struct {
	ImageCount        int
	PDFCount          int
	ThinkingRequested bool
	DeepSeekAvailable bool
}

// Route picks the backend for one email. Pure function, evaluated in order:
//
//  1. DeepSeek unconfigured → Claude always.
//  2. Any image or PDF → Claude (vision); a text-only backend cannot see them.
//  3. Thinking requested → DeepSeek Reasoner (cheapest deep reasoning on text).
//  4. Otherwise → DeepSeek Chat (cheapest default).
//
// Routing is per-email, never cached per thread: a conversation may hop
// providers turn to turn depending on what each message carries.
func Route(in RouteInput) RoutingDecision {
	if !in.DeepSeekAvailable {
		return RoutingDecision{
			Provider: ProviderClaude,
			Model:    ModelClaudeHaiku,
			Reason:   "deepseek_unavailable",
		}
	}

	if in.ImageCount > 0 || in.PDFCount > 0 {
		return RoutingDecision{
			Provider: ProviderClaude,
			Model:    ModelClaudeHaiku,
			Reason:   fmt.Sprintf("vision_required (%d images, %d pdfs)", in.ImageCount, in.PDFCount),
		}
	}

	if in.ThinkingRequested {
		return RoutingDecision{
			Provider: ProviderDeepSeek,
			Model:    ModelDeepSeekReasoner,
			Reason:   "text_only_thinking",
		}
	}

	return RoutingDecision{
		Provider: ProviderDeepSeek,
		Model:    ModelDeepSeekChat,
		Reason:   "text_only",
	}
}
