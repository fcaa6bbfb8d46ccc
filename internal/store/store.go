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

// Package store is the Redis adapter for everything the pipeline persists:
// the idempotency ledger, rate-limit counters, and per-thread conversation
// history. Store failures never abort the pipeline — each operation degrades
// to an explicit fallback value (claim granted, empty history, in-memory rate
// limiting) and the degradation is logged at the call site inside this
// package, not scattered across callers.
package store

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Nxtvanhalen/byte-email/internal/models"
)

// Key namespaces.
const (
	conversationKeyPrefix = "byte:conversation:"
	processedKeyPrefix    = "byte:email:processed:"
	rateHourKeyPrefix     = "byte:email:rate:hour:"
	rateDayKeyPrefix      = "byte:email:rate:day:"
	rateGlobalHourKey     = "byte:email:rate:global:hour"
	conversationIndexKey  = "byte:conversations:all"
)

// Retention bounds for a conversation thread.
const (
	HistoryMaxMessages = 50
	HistoryTTL         = 30 * 24 * time.Hour
)

// DefaultIdempotencyTTL is how long a processed message id is remembered.
const DefaultIdempotencyTTL = 24 * time.Hour

// Limits are the rate caps enforced per window.
type Limits struct {
	SenderHourly int
	SenderDaily  int
	GlobalHourly int
}

// Store wraps the shared Redis instance.
type Store struct {
	rdb            *redis.Client
	limits         Limits
	idempotencyTTL time.Duration
	fallback       *memoryLimiter
	logger         *slog.Logger
}

// New creates the store adapter.
func New(rdb *redis.Client, limits Limits, idempotencyTTL time.Duration, log *slog.Logger) *Store {
	if idempotencyTTL <= 0 {
		idempotencyTTL = DefaultIdempotencyTTL
	}
	return &Store{
		rdb:            rdb,
		limits:         limits,
		idempotencyTTL: idempotencyTTL,
		fallback:       newMemoryLimiter(),
		logger:         log.With(slog.String("service", "store")),
	}
}

// Ping checks the Redis connection.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return s.rdb.Ping(ctx).Err()
}

// ClaimMessage atomically claims a provider message id (SET NX with TTL).
// It returns true when this invocation owns the message and false when the
// id was already processed. A store error fails open: better a rare duplicate
// reply than a dropped email.
func (s *Store) ClaimMessage(ctx context.Context, messageID string) bool {
	key := processedKeyPrefix + messageID
	claimed, err := s.rdb.SetNX(ctx, key, time.Now().UnixMilli(), s.idempotencyTTL).Result()
	if err != nil {
		s.logger.Warn("idempotency claim failed, proceeding", "message_id", messageID, "error", err)
		return true
	}
	return claimed
}

// LoadConversation returns the stored thread history, oldest first. A store
// failure degrades to an empty history: the thread proceeds with no memory.
func (s *Store) LoadConversation(ctx context.Context, threadKey string) []models.ConversationMessage {
	raw, err := s.rdb.Get(ctx, conversationKeyPrefix+threadKey).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		s.logger.Warn("conversation load failed, continuing without history",
			"thread", threadKey, "error", err)
		return nil
	}

	var history []models.ConversationMessage
	if err := json.Unmarshal([]byte(raw), &history); err != nil {
		s.logger.Warn("conversation record corrupt, starting fresh",
			"thread", threadKey, "error", err)
		return nil
	}
	return history
}

// SaveConversation persists the thread, truncated to the most recent
// HistoryMaxMessages, and resets the 30-day sliding expiry. It also inserts
// the thread into the time-ordered index used for cross-channel lookups.
// Failures are logged and swallowed: the reply has already been generated
// and must still be sent.
func (s *Store) SaveConversation(ctx context.Context, threadKey string, history []models.ConversationMessage) {
	history = truncateHistory(history, HistoryMaxMessages)

	payload, err := json.Marshal(history)
	if err != nil {
		s.logger.Error("conversation marshal failed", "thread", threadKey, "error", err)
		return
	}

	if err := s.rdb.Set(ctx, conversationKeyPrefix+threadKey, payload, HistoryTTL).Err(); err != nil {
		s.logger.Warn("conversation save failed (non-fatal)", "thread", threadKey, "error", err)
		return
	}

	// Write-only index; readers live in other channels.
	err = s.rdb.ZAdd(ctx, conversationIndexKey, redis.Z{
		Score:  float64(time.Now().UnixMilli()),
		Member: threadKey,
	}).Err()
	if err != nil {
		s.logger.Warn("conversation index update failed (non-fatal)", "thread", threadKey, "error", err)
	}
}

// truncateHistory keeps the most recent max entries in original order.
func truncateHistory(history []models.ConversationMessage, max int) []models.ConversationMessage {
	if len(history) <= max {
		return history
	}
	return history[len(history)-max:]
}
