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

	"github.com/Nxtvanhalen/byte-email/internal/retry"
)

// provider is the capability every backend exposes.
type provider interface {
	Generate(ctx context.Context, req Request, model string) (string, error)
}

// Generator dispatches a routed request to the right backend through the
// retry executor. Provider-agnostic: the router decided, this executes.
type Generator struct {
	claude   provider
	deepseek provider // nil when DeepSeek is unconfigured
	logger   *slog.Logger
}

// NewGenerator wires the backends. deepseek may be nil; the router never
// selects it in that case.
func NewGenerator(claude *ClaudeClient, deepseek *DeepSeekClient, log *slog.Logger) *Generator {
	g := &Generator{
		claude: claude,
		logger: log.With(slog.String("service", "generator")),
	}
	if deepseek != nil {
		g.deepseek = deepseek
	}
	return g
}

// claudeRetryOptions is the full retry budget; Claude is the last resort.
var claudeRetryOptions = retry.Options{
	MaxAttempts: 3,
	BaseDelay:   time.Second,
	MaxDelay:    10 * time.Second,
}

// deepseekRetryOptions is deliberately tighter: only 2 attempts, since the
// orchestrator surfaces the failure quickly rather than stalling the reply.
var deepseekRetryOptions = retry.Options{
	MaxAttempts: 2,
	BaseDelay:   time.Second,
	MaxDelay:    5 * time.Second,
}

// Generate produces the reply text for one email. On backend failure after
// exhausting retries the error propagates; user-facing messaging is the
// orchestrator's job.
func (g *Generator) Generate(ctx context.Context, req Request, decision RoutingDecision) (string, error) {
	var backend provider
	opts := claudeRetryOptions

	switch decision.Provider {
	case ProviderClaude:
		backend = g.claude
	case ProviderDeepSeek:
		backend = g.deepseek
		opts = deepseekRetryOptions
	default:
		return "", fmt.Errorf("unknown provider %q", decision.Provider)
	}
	if backend == nil {
		return "", fmt.Errorf("provider %q is not configured", decision.Provider)
	}

	opts.OnRetry = func(attempt int, err error) {
		g.logger.Warn("backend call retry",
			"provider", decision.Provider,
			"model", decision.Model,
			"attempt", attempt,
			"error", err,
		)
	}

	text, err := retry.Do(ctx, opts, func(ctx context.Context) (string, error) {
		return backend.Generate(ctx, req, decision.Model)
	})
	if err != nil {
		return "", fmt.Errorf("generate via %s/%s: %w", decision.Provider, decision.Model, err)
	}

	g.logger.Info("response generated",
		"provider", decision.Provider,
		"model", decision.Model,
		"reason", decision.Reason,
		"length", len(text),
	)
	return text, nil
}
