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

package store

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Limit window tags reported in a denial.
const (
	LimitHourly = "hourly"
	LimitDaily  = "daily"
	LimitGlobal = "global"
)

// RateLimitResult is the outcome of a quota check.
type RateLimitResult struct {
	Allowed bool
	Limit   string // which window tripped, when denied
	Reason  string // human-readable, safe to show the sender
}

// CheckRateLimit increments the global hourly counter and the sender's
// hourly and daily counters, denying with the first limit that trips.
//
// Fixed windows: each counter's TTL is set exactly once, on the transition
// from absent to 1, and never refreshed. A sender can burst cap emails just
// before a window boundary and cap again just after; accepted quirk of the
// INCR+EXPIRE scheme.
//
// If Redis is unreachable, control falls back to the in-process
// sliding-window limiter so an outage never becomes open season.
func (s *Store) CheckRateLimit(ctx context.Context, sender string) RateLimitResult {
	globalCount, err := s.incrWithWindow(ctx, rateGlobalHourKey, time.Hour)
	if err != nil {
		return s.fallbackCheck(sender, err)
	}
	if globalCount > int64(s.limits.GlobalHourly) {
		return RateLimitResult{
			Allowed: false,
			Limit:   LimitGlobal,
			Reason:  "I'm handling more email than usual right now",
		}
	}

	hourly, err := s.incrWithWindow(ctx, rateHourKeyPrefix+sender, time.Hour)
	if err != nil {
		return s.fallbackCheck(sender, err)
	}
	if hourly > int64(s.limits.SenderHourly) {
		return RateLimitResult{
			Allowed: false,
			Limit:   LimitHourly,
			Reason:  fmt.Sprintf("hourly limit (%d)", s.limits.SenderHourly),
		}
	}

	daily, err := s.incrWithWindow(ctx, rateDayKeyPrefix+sender, 24*time.Hour)
	if err != nil {
		return s.fallbackCheck(sender, err)
	}
	if daily > int64(s.limits.SenderDaily) {
		return RateLimitResult{
			Allowed: false,
			Limit:   LimitDaily,
			Reason:  fmt.Sprintf("daily limit (%d)", s.limits.SenderDaily),
		}
	}

	return RateLimitResult{Allowed: true}
}

// incrWithWindow atomically increments a counter, starting its expiry window
// on the first increment only.
func (s *Store) incrWithWindow(ctx context.Context, key string, window time.Duration) (int64, error) {
	count, err := s.rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("rate INCR %s: %w", key, err)
	}
	if count == 1 {
		if err := s.rdb.Expire(ctx, key, window).Err(); err != nil {
			return 0, fmt.Errorf("rate EXPIRE %s: %w", key, err)
		}
	}
	return count, nil
}

// fallbackCheck routes a check through the in-memory limiter when Redis is
// down.
func (s *Store) fallbackCheck(sender string, cause error) RateLimitResult {
	s.logger.Warn("rate limit store unreachable, using in-memory fallback",
		"sender", sender, "error", cause)

	allowed, window := s.fallback.allow(sender, s.limits.SenderHourly, s.limits.GlobalHourly)
	if allowed {
		return RateLimitResult{Allowed: true}
	}
	if window == LimitGlobal {
		return RateLimitResult{
			Allowed: false,
			Limit:   LimitGlobal,
			Reason:  "I'm handling more email than usual right now",
		}
	}
	return RateLimitResult{
		Allowed: false,
		Limit:   LimitHourly,
		Reason:  fmt.Sprintf("hourly limit (%d)", s.limits.SenderHourly),
	}
}

// memoryLimiter is the degraded-mode safety net: a sliding one-hour window
// over in-process timestamps. Intentionally approximate — it resets on
// restart and is not shared across instances — and intentionally divergent
// from the fixed-window Redis limiter; it exists to prevent abuse during a
// store outage, not to replace the durable limiter.
type memoryLimiter struct {
	mu        sync.Mutex
	perSender map[string][]time.Time
	global    []time.Time
	now       func() time.Time
}

func newMemoryLimiter() *memoryLimiter {
	return &memoryLimiter{
		perSender: make(map[string][]time.Time),
		now:       time.Now,
	}
}

// allow records the request if both the sender and global sliding windows are
// under their caps. On denial it names the window that tripped.
func (m *memoryLimiter) allow(sender string, senderCap, globalCap int) (bool, string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().Add(-time.Hour)
	m.perSender[sender] = prune(m.perSender[sender], cutoff)
	m.global = prune(m.global, cutoff)

	if len(m.global) >= globalCap {
		return false, LimitGlobal
	}
	if len(m.perSender[sender]) >= senderCap {
		return false, LimitHourly
	}

	now := m.now()
	m.perSender[sender] = append(m.perSender[sender], now)
	m.global = append(m.global, now)
	return true, ""
}

// prune drops timestamps at or before the cutoff.
func prune(stamps []time.Time, cutoff time.Time) []time.Time {
	kept := stamps[:0]
	for _, ts := range stamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	return kept
}
