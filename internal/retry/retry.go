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

// Package retry wraps fallible operations with exponential backoff and jitter.
// Errors are classified as retryable (rate limits, 5xx, timeouts, overload
// signals) or fatal; fatal errors are returned immediately without delay.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net"
	"strings"
	"time"
)

// Options controls the backoff schedule for Do.
type Options struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration

	// OnRetry is an observation hook invoked after a failed attempt and
	// before the backoff sleep. It cannot suppress or alter the retry.
	OnRetry func(attempt int, err error)
}

// DefaultOptions matches the service-wide retry budget.
var DefaultOptions = Options{
	MaxAttempts: 3,
	BaseDelay:   time.Second,
	MaxDelay:    10 * time.Second,
}

// StatusError carries an HTTP status code returned by an upstream API.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream status %d: %s", e.StatusCode, e.Body)
}

// Do invokes op, retrying on retryable errors with exponential backoff:
// delay = min(base * 2^(attempt-1) * (1 + jitter), max), jitter in [0, 0.3).
// The last error is returned once attempts are exhausted. Non-retryable
// errors are returned immediately.
func Do[T any](ctx context.Context, opts Options, op func(ctx context.Context) (T, error)) (T, error) {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultOptions.MaxAttempts
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = DefaultOptions.BaseDelay
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = DefaultOptions.MaxDelay
	}

	var zero T
	var lastErr error

	for attempt := 1; attempt <= opts.MaxAttempts; attempt++ {
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !Retryable(err) {
			return zero, err
		}
		if attempt == opts.MaxAttempts {
			break
		}

		if opts.OnRetry != nil {
			opts.OnRetry(attempt, err)
		}

		if err := sleep(ctx, backoff(attempt, opts.BaseDelay, opts.MaxDelay)); err != nil {
			return zero, err
		}
	}

	return zero, lastErr
}

// backoff computes the delay before the next attempt.
func backoff(attempt int, base, max time.Duration) time.Duration {
	delay := base << (attempt - 1)
	delay += time.Duration(rand.Float64() * 0.3 * float64(delay))
	if delay > max {
		delay = max
	}
	return delay
}

// sleep waits for d or until ctx is cancelled.
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// retryableStatus lists upstream HTTP statuses worth retrying.
var retryableStatus = map[int]bool{
	429: true,
	500: true,
	502: true,
	503: true,
	504: true,
}

// retryableFragments are error-message signals from upstream SDKs that do not
// expose a structured status code.
var retryableFragments = []string{
	"rate",
	"429",
	"500",
	"502",
	"503",
	"504",
	"network",
	"timeout",
	"timed out",
	"connection reset",
	"connection refused",
	"abort",
	"overloaded",
	"capacity",
}

// Retryable reports whether err is worth retrying.
func Retryable(err error) bool {
	if err == nil {
		return false
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return retryableStatus[statusErr.StatusCode]
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	// Caller-initiated cancellation is never retried.
	if errors.Is(err, context.Canceled) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, fragment := range retryableFragments {
		if strings.Contains(msg, fragment) {
			return true
		}
	}
	return false
}
