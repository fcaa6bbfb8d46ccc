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

// Package llm routes inbound emails to a language-model backend and turns the
// conversation into a plain-text reply. The backends form a small closed set:
// a vision-capable provider (Claude) that accepts image and PDF content
// blocks, and a cheaper text-only provider (DeepSeek) with a default chat
// model and an extended-reasoning model.
package llm

import "github.com/Nxtvanhalen/byte-email/internal/models"

// Provider tags.
const (
	ProviderClaude   = "claude"
	ProviderDeepSeek = "deepseek"
)

// Model identifiers.
const (
	ModelClaudeHaiku      = "claude-haiku-4-5-20251001"
	ModelDeepSeekChat     = "deepseek-chat"
	ModelDeepSeekReasoner = "deepseek-reasoner"
)

// Token budgets. Thinking gets a larger response budget plus an explicit
// reasoning budget on the vision provider.
const (
	defaultMaxTokens     = 4096
	thinkingMaxTokens    = 16000
	thinkingBudgetTokens = 8000
)

// RoutingDecision is recomputed per inbound email and never persisted.
type RoutingDecision struct {
	Provider string
	Model    string
	Reason   string
}

// Media is one binary content block for the vision provider, already
// base64-encoded by the attachment processor.
type Media struct {
	Filename  string
	MediaType string
	Base64    string
}

// Request carries everything needed to generate a reply. Messages already
// include the just-received user turn; only that final turn may carry the
// Images/PDFs payloads.
type Request struct {
	Messages          []models.ConversationMessage
	From              string
	Subject           string
	AttachmentContext string
	Images            []Media
	PDFs              []Media
	UseThinking       bool
}

// NoTextFallback is returned when a backend responds without any text
// content, instead of surfacing an error to the sender.
const NoTextFallback = "I encountered an issue processing your email. Please try again.\n\n— Byte"
