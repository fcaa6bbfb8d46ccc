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
	"context"
	"fmt"
	"log/slog"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/Nxtvanhalen/byte-email/internal/models"
)

// ClaudeClient is the vision-capable backend. It is the only provider that
// accepts image and PDF content blocks.
type ClaudeClient struct {
	client anthropic.Client
	logger *slog.Logger
}

// NewClaudeClient creates a client for the Anthropic Messages API.
func NewClaudeClient(apiKey string, log *slog.Logger) *ClaudeClient {
	return &ClaudeClient{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		logger: log.With(slog.String("provider", ProviderClaude)),
	}
}

// Generate sends the conversation to Claude and returns the reply text.
// Binary content blocks ride only on the final user turn; earlier turns are
// replayed as plain text.
func (c *ClaudeClient) Generate(ctx context.Context, req Request, model string) (string, error) {
	messages := make([]anthropic.MessageParam, 0, len(req.Messages))
	for i, m := range req.Messages {
		isLast := i == len(req.Messages)-1

		if m.Role == models.RoleAssistant {
			messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
			continue
		}

		blocks := []anthropic.ContentBlockParamUnion{anthropic.NewTextBlock(m.Content)}
		if isLast {
			for _, img := range req.Images {
				blocks = append(blocks, anthropic.NewImageBlockBase64(img.MediaType, img.Base64))
			}
			for _, pdf := range req.PDFs {
				blocks = append(blocks, anthropic.NewDocumentBlock(anthropic.Base64PDFSourceParam{
					Data: pdf.Base64,
				}))
			}
		}
		messages = append(messages, anthropic.NewUserMessage(blocks...))
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: defaultMaxTokens,
		System: []anthropic.TextBlockParam{
			{Text: BuildSystemPrompt(promptContext(req))},
		},
		Messages: messages,
	}
	if req.UseThinking {
		params.MaxTokens = thinkingMaxTokens
		params.Thinking = anthropic.ThinkingConfigParamOfEnabled(thinkingBudgetTokens)
	}

	c.logger.Info("calling claude",
		"model", model,
		"messages", len(messages),
		"images", len(req.Images),
		"pdfs", len(req.PDFs),
		"thinking", req.UseThinking,
	)

	msg, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("claude messages: %w", err)
	}

	// Thinking blocks precede the text block; we only want the text.
	for _, block := range msg.Content {
		if block.Type == "text" && block.Text != "" {
			return block.Text, nil
		}
	}

	c.logger.Warn("no text content in claude response", "model", model)
	return NoTextFallback, nil
}

// promptContext maps a generation request onto the system-prompt inputs.
func promptContext(req Request) PromptContext {
	return PromptContext{
		From:              req.From,
		Subject:           req.Subject,
		MessageCount:      len(req.Messages),
		AttachmentContext: req.AttachmentContext,
		UseThinking:       req.UseThinking,
	}
}
