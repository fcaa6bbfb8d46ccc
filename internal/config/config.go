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

// Package config loads service configuration from an optional YAML file
// (with ${VAR} env expansion) and environment variables. Env vars win over
// YAML so deployments can override a checked-in config.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the email assistant service.
type Config struct {
	// Secrets.
	WebhookSecret   string
	ResendAPIKey    string
	AnthropicAPIKey string
	DeepSeekAPIKey  string // optional; empty disables DeepSeek routing

	// Email identity.
	AssistantName    string
	AssistantAddress string

	// Store.
	RedisURL string

	// Rate limits.
	SenderHourlyLimit int
	SenderDailyLimit  int
	GlobalHourlyLimit int

	// Pipeline tunables.
	IdempotencyTTL time.Duration
	MaxBodyChars   int
	MaxAttachments int
	MaxPDFBytes    int64

	// Server.
	Port      int
	LogLevel  string
	LogFormat string // "json" or "text"
}

// rawConfig mirrors the optional YAML file.
type rawConfig struct {
	Assistant struct {
		Name    string `yaml:"name"`
		Address string `yaml:"address"`
	} `yaml:"assistant"`
	Redis struct {
		URL string `yaml:"url"`
	} `yaml:"redis"`
	Limits struct {
		SenderHourly int `yaml:"sender_hourly"`
		SenderDaily  int `yaml:"sender_daily"`
		GlobalHourly int `yaml:"global_hourly"`
	} `yaml:"limits"`
}

// Load reads configuration. A .env file is loaded first if present (local
// development), then the YAML file named by CONFIG_PATH if set, then
// environment variables on top.
func Load() (*Config, error) {
	// Missing .env is fine; env vars may come from the deployment.
	_ = godotenv.Load()

	var raw rawConfig
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
			return nil, fmt.Errorf("parse config YAML: %w", err)
		}
	}

	cfg := &Config{
		WebhookSecret:   os.Getenv("RESEND_WEBHOOK_SECRET"),
		ResendAPIKey:    os.Getenv("RESEND_API_KEY"),
		AnthropicAPIKey: os.Getenv("ANTHROPIC_API_KEY"),
		DeepSeekAPIKey:  os.Getenv("DEEPSEEK_API_KEY"),

		AssistantName:    envOrDefault("ASSISTANT_NAME", firstNonEmpty(raw.Assistant.Name, "Byte AI")),
		AssistantAddress: strings.ToLower(envOrDefault("ASSISTANT_ADDRESS", firstNonEmpty(raw.Assistant.Address, "byte@"))),

		RedisURL: envOrDefault("REDIS_URL", firstNonEmpty(raw.Redis.URL, "redis://localhost:6379/0")),

		SenderHourlyLimit: envOrDefaultInt("RATE_LIMIT_PER_HOUR", orInt(raw.Limits.SenderHourly, 15)),
		SenderDailyLimit:  envOrDefaultInt("RATE_LIMIT_PER_DAY", orInt(raw.Limits.SenderDaily, 50)),
		GlobalHourlyLimit: envOrDefaultInt("RATE_LIMIT_GLOBAL_HOUR", orInt(raw.Limits.GlobalHourly, 100)),

		IdempotencyTTL: envOrDefaultDuration("IDEMPOTENCY_TTL", 24*time.Hour),
		MaxBodyChars:   envOrDefaultInt("MAX_BODY_CHARS", 50000),
		MaxAttachments: envOrDefaultInt("MAX_ATTACHMENTS", 5),
		MaxPDFBytes:    int64(envOrDefaultInt("MAX_PDF_BYTES", 25*1024*1024)),

		Port:      envOrDefaultInt("PORT", 8080),
		LogLevel:  envOrDefault("LOG_LEVEL", "info"),
		LogFormat: envOrDefault("LOG_FORMAT", "json"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate checks the secrets the pipeline cannot run without. The DeepSeek
// key is deliberately not required: without it every email routes to the
// vision provider.
func (c *Config) validate() error {
	var missing []string
	if c.WebhookSecret == "" {
		missing = append(missing, "RESEND_WEBHOOK_SECRET")
	}
	if c.ResendAPIKey == "" {
		missing = append(missing, "RESEND_API_KEY")
	}
	if c.AnthropicAPIKey == "" {
		missing = append(missing, "ANTHROPIC_API_KEY")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	return nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envOrDefaultDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func orInt(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}
