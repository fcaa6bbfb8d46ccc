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

import (
	"regexp"
	"strings"
)

// triggerPattern matches the standalone THINK token. Case-sensitive on
// purpose: "think" in normal prose must not flip the mode, and word
// boundaries keep THINKING from matching.
var triggerPattern = regexp.MustCompile(`\bTHINK\b`)

// collapseSpaces tidies the holes left by stripped tokens.
var collapseSpaces = regexp.MustCompile(`[ \t]{2,}`)

// TriggerResult is the outcome of trigger detection.
type TriggerResult struct {
	Triggered bool
	Cleaned   string
}

// DetectThinkingTrigger scans text for the explicit THINK token. When present
// it strips every occurrence, so no residue lands in stored history or in the
// prompt sent downstream. Pure and stateless.
func DetectThinkingTrigger(text string) TriggerResult {
	if !triggerPattern.MatchString(text) {
		return TriggerResult{Triggered: false, Cleaned: text}
	}

	cleaned := triggerPattern.ReplaceAllString(text, "")
	cleaned = collapseSpaces.ReplaceAllString(cleaned, " ")

	lines := strings.Split(cleaned, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	cleaned = strings.TrimSpace(strings.Join(lines, "\n"))

	return TriggerResult{Triggered: true, Cleaned: cleaned}
}
