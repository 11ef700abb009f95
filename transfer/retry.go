// Copyright 2025 Poiesic Systems
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


package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"syscall"
	"time"

	"github.com/poiesic/filedrop/core"
)

// Default retry settings.
const (
	DefaultMaxRetries = 3
)

// DefaultBackoff is the delay before each retry; later retries reuse the last value.
var DefaultBackoff = []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second}

// RetryPolicy decides whether and when a failed operation is tried again.
// The zero value never retries.
type RetryPolicy struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int

	// Backoff is the delay before retry n (1-based) at index n-1.
	// Retries beyond the list reuse the last entry.
	Backoff []time.Duration

	// Retryable reports whether err may succeed on a later attempt.
	// Nil means IsTransient.
	Retryable func(error) bool

	// Sleep waits for d or until ctx is done. Nil means a timer-based wait.
	Sleep func(ctx context.Context, d time.Duration) error

	// OnRetry, when set, is called before each retry.
	OnRetry func(attempt int, err error)
}

// DefaultRetryPolicy returns 3 retries with a 1s, 2s, 4s schedule.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: DefaultMaxRetries,
		Backoff:    append([]time.Duration(nil), DefaultBackoff...),
	}
}

// ExponentialBackoff returns n delays starting at base and doubling each time.
func ExponentialBackoff(base time.Duration, n int) []time.Duration {
	delays := make([]time.Duration, 0, n)
	delay := base
	for i := 0; i < n; i++ {
		delays = append(delays, delay)
		delay *= 2
	}
	return delays
}

// Delay returns the wait before the given retry (1-based).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if len(p.Backoff) == 0 || attempt < 1 {
		return 0
	}
	idx := attempt - 1
	if idx >= len(p.Backoff) {
		idx = len(p.Backoff) - 1
	}
	return p.Backoff[idx]
}

// Do runs op until it succeeds, fails with a non-retryable error, or the
// retries are used up. Exhausted retries return the last error wrapped with
// core.ErrTransient. Cancellation of ctx stops retrying and returns ctx.Err().
func (p RetryPolicy) Do(ctx context.Context, op func(ctx context.Context) error) error {
	retryable := p.Retryable
	if retryable == nil {
		retryable = IsTransient
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	var lastErr error
	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		if attempt > 0 {
			if p.OnRetry != nil {
				p.OnRetry(attempt, lastErr)
			}
			delay := p.Delay(attempt)
			slog.Debug("operation failed, will retry", "attempt", attempt, "maxRetries", p.MaxRetries, "delay", delay, "error", lastErr)
			if err := sleep(ctx, delay); err != nil {
				return err
			}
		}

		// Check context before attempting
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = op(ctx)
		if lastErr == nil {
			if attempt > 0 {
				slog.Debug("operation succeeded after retry", "attempt", attempt)
			}
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if !retryable(lastErr) {
			return lastErr
		}
	}

	return fmt.Errorf("%w: gave up after %d attempts: %w", core.ErrTransient, p.MaxRetries+1, lastErr)
}

// sleepContext waits for d with context awareness.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// IsTransient reports whether err is a network or timeout failure worth retrying.
// Corruption and cancellation are never transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	switch {
	case errors.Is(err, core.ErrCorruption),
		errors.Is(err, core.ErrCanceled),
		errors.Is(err, context.Canceled),
		errors.Is(err, ErrRemoteGone):
		return false
	case errors.Is(err, core.ErrTransient),
		errors.Is(err, ErrUnexpectedStatus),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.ECONNREFUSED):
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
