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

// Byte Email — email assistant service
//
// Entry point for the webhook service. It:
//  1. Loads configuration from the environment (plus optional YAML/.env)
//  2. Connects to Redis (non-fatal if unreachable; the pipeline degrades)
//  3. Wires the provider clients, store, and webhook pipeline
//  4. Serves the webhook plus health/debug endpoints
//  5. Handles graceful shutdown on SIGTERM/SIGINT
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/redis/go-redis/v9"

	"github.com/Nxtvanhalen/byte-email/internal/attachments"
	"github.com/Nxtvanhalen/byte-email/internal/config"
	"github.com/Nxtvanhalen/byte-email/internal/llm"
	resendclient "github.com/Nxtvanhalen/byte-email/internal/resend"
	"github.com/Nxtvanhalen/byte-email/internal/store"
	"github.com/Nxtvanhalen/byte-email/internal/webhook"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	logger.Info("starting byte email service",
		"assistant", cfg.AssistantAddress,
		"deepseek_enabled", cfg.DeepSeekAPIKey != "",
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// --- Redis ---
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Error("invalid REDIS_URL", "error", err)
		os.Exit(1)
	}
	rdb := redis.NewClient(opt)

	conversations := store.New(rdb, store.Limits{
		SenderHourly: cfg.SenderHourlyLimit,
		SenderDaily:  cfg.SenderDailyLimit,
		GlobalHourly: cfg.GlobalHourlyLimit,
	}, cfg.IdempotencyTTL, logger)

	// Unreachable Redis is not fatal: idempotency, rate limiting, and
	// history all degrade per call.
	if err := conversations.Ping(ctx); err != nil {
		logger.Warn("redis unreachable at startup, running degraded", "error", err)
	} else {
		logger.Info("connected to redis")
	}

	// --- Provider clients ---
	mailer := resendclient.NewClient(cfg.ResendAPIKey, cfg.AssistantName, assistantFullAddress(cfg), logger)

	claude := llm.NewClaudeClient(cfg.AnthropicAPIKey, logger)
	var deepseek *llm.DeepSeekClient
	if cfg.DeepSeekAPIKey != "" {
		deepseek = llm.NewDeepSeekClient(cfg.DeepSeekAPIKey, logger)
	}
	generator := llm.NewGenerator(claude, deepseek, logger)

	processor := attachments.NewProcessor(mailer, cfg.MaxPDFBytes, logger)

	verifier, err := webhook.NewSvixVerifier(cfg.WebhookSecret)
	if err != nil {
		logger.Error("failed to initialise webhook verifier", "error", err)
		os.Exit(1)
	}

	handler := webhook.NewHandler(verifier, mailer, conversations, processor, generator, webhook.Config{
		AssistantAddress:  cfg.AssistantAddress,
		MaxBodyChars:      cfg.MaxBodyChars,
		MaxAttachments:    cfg.MaxAttachments,
		DeepSeekAvailable: cfg.DeepSeekAPIKey != "",
	}, logger)

	// --- HTTP server ---
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/email/webhook", handler.ServeWebhook)

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		status := map[string]string{"status": "healthy", "redis": "ok"}
		if err := conversations.Ping(r.Context()); err != nil {
			// Degraded, not down: the pipeline survives without Redis.
			status["redis"] = "unreachable"
		}
		writeJSON(w, status)
	})

	mux.HandleFunc("/debug", func(w http.ResponseWriter, r *http.Request) {
		// Which secrets are present — never their values.
		writeJSON(w, map[string]bool{
			"webhook_secret": cfg.WebhookSecret != "",
			"resend_key":     cfg.ResendAPIKey != "",
			"anthropic_key":  cfg.AnthropicAPIKey != "",
			"deepseek_key":   cfg.DeepSeekAPIKey != "",
		})
	})

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		writeJSON(w, map[string]string{"service": "byte-email", "status": "ok"})
	})

	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute, // thinking-mode replies are slow
	}

	// --- Graceful shutdown ---
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
		sig := <-sigCh

		logger.Info("received shutdown signal", "signal", sig.String())
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown error", "error", err)
		}
		rdb.Close()
	}()

	logger.Info("byte email service listening", "addr", addr)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}

	logger.Info("byte email service stopped")
}

// newLogger builds the slog handler: tinted text for local development,
// JSON for deployments.
func newLogger(level, format string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	if strings.ToLower(format) == "text" {
		return slog.New(tint.NewHandler(os.Stderr, &tint.Options{Level: lvl}))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

// assistantFullAddress derives the sending address from the configured
// inbound match. A bare prefix like "byte@" gets the default domain.
func assistantFullAddress(cfg *config.Config) string {
	addr := cfg.AssistantAddress
	if strings.HasSuffix(addr, "@") {
		return addr + "chrisleebergstrom.com"
	}
	return addr
}

func writeJSON(w http.ResponseWriter, body any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(body)
}
