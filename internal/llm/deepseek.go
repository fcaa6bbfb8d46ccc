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
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/Nxtvanhalen/byte-email/internal/models"
)

const deepseekBaseURL = "https://api.deepseek.com/v1"

// Reasoner chain-of-thought can be lengthy, so it gets a longer timeout.
const (
	deepseekTimeout         = 30 * time.Second
	deepseekThinkingTimeout = 60 * time.Second
)

// DeepSeekClient is the text-only backend, reached through DeepSeek's
// OpenAI-compatible API.
type DeepSeekClient struct {
	client *openai.Client
	logger *slog.Logger
}

// NewDeepSeekClient creates a client for the DeepSeek chat-completions API.
func NewDeepSeekClient(apiKey string, log *slog.Logger) *DeepSeekClient {
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = deepseekBaseURL
	return &DeepSeekClient{
		client: openai.NewClientWithConfig(cfg),
		logger: log.With(slog.String("provider", ProviderDeepSeek)),
	}
}

// Generate sends the conversation to DeepSeek and returns the reply text.
// The reasoner's reasoning_content is ignored; only the final content is
// returned, the same as skipping Claude's thinking blocks.
func (c *DeepSeekClient) Generate(ctx context.Context, req Request, model string) (string, error) {
	isReasoner := model == ModelDeepSeekReasoner

	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: BuildSystemPrompt(promptContext(req)),
	})
	for _, m := range req.Messages {
		role := openai.ChatMessageRoleUser
		if m.Role == models.RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}

	ccReq := openai.ChatCompletionRequest{
		Model:    model,
		Messages: messages,
	}
	if req.UseThinking {
		ccReq.MaxTokens = thinkingMaxTokens
	} else {
		ccReq.MaxTokens = defaultMaxTokens
	}
	// The reasoner ignores sampling parameters; setting them can error.
	if !isReasoner {
		ccReq.Temperature = 0.7
	}

	timeout := deepseekTimeout
	if isReasoner {
		timeout = deepseekThinkingTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	c.logger.Info("calling deepseek",
		"model", model,
		"messages", len(messages),
		"thinking", req.UseThinking,
	)

	resp, err := c.client.CreateChatCompletion(ctx, ccReq)
	if err != nil {
		return "", fmt.Errorf("deepseek chat completion: %w", err)
	}

	if len(resp.Choices) > 0 && resp.Choices[0].Message.Content != "" {
		return resp.Choices[0].Message.Content, nil
	}

	c.logger.Warn("no content in deepseek response", "model", model)
	return NoTextFallback, nil
}
