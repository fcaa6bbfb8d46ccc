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

// Package models defines the data structures shared across the assistant service.
package models

import "encoding/json"

// EventEmailReceived is the only webhook event type that gets processed;
// everything else is acknowledged and dropped.
const EventEmailReceived = "email.received"

// Conversation roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChannelEmail tags conversation messages that arrived over email.
const ChannelEmail = "email"

// AttachmentDescriptor is the provider's metadata for one attached file.
// The binary payload is fetched separately by attachment id.
type AttachmentDescriptor struct {
	ID          string `json:"id"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Disposition string `json:"content_disposition,omitempty"`
	ContentID   string `json:"content_id,omitempty"`
}

// RecipientList unmarshals the provider's `to` field, which may be either a
// single string or an array of strings depending on how the email was sent.
type RecipientList []string

// UnmarshalJSON accepts both `"a@b.c"` and `["a@b.c", "d@e.f"]`.
func (r *RecipientList) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*r = RecipientList{single}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return err
	}
	*r = RecipientList(many)
	return nil
}

// InboundEmailData is the payload of an email.received event.
type InboundEmailData struct {
	EmailID     string                 `json:"email_id"`
	From        string                 `json:"from"`
	To          RecipientList          `json:"to"`
	Subject     string                 `json:"subject"`
	Attachments []AttachmentDescriptor `json:"attachments,omitempty"`
}

// InboundEmailEvent is one webhook delivery from the email provider,
// constructed from the signature-verified payload and consumed exactly once.
type InboundEmailEvent struct {
	Type string           `json:"type"`
	Data InboundEmailData `json:"data"`
}

// ConversationMessage is one turn of a stored thread. For user turns the
// content is always the cleaned text, with the thinking trigger stripped.
type ConversationMessage struct {
	Role      string         `json:"role"`
	Content   string         `json:"content"`
	Channel   string         `json:"channel"`
	Timestamp int64          `json:"timestamp"` // unix milliseconds
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// OutboundEmail is a reply ready to hand to the email provider.
type OutboundEmail struct {
	To      string
	Subject string
	Text    string
	HTML    string
}
