// Copyright 2025 Supabase, Inc.
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

// Package retry drives retry loops with exponential backoff and full jitter.
//
// Typical use:
//
//	r := retry.New(10*time.Millisecond, time.Second)
//	for attempt, err := range r.Attempts(ctx) {
//		if err != nil {
//			return err // context done
//		}
//		if err := op(ctx); err == nil {
//			return nil
//		}
//	}
//
// A Retry is not safe for concurrent use; create one per loop.
package retry

import (
	"context"
	"errors"
	"iter"
	"time"
)

// ErrAttemptsExhausted is returned by StartAttempt once the configured
// maximum number of attempts has been made.
var ErrAttemptsExhausted = errors.New("retry: attempts exhausted")

// Retry tracks one retry loop.
type Retry struct {
	cfg     config
	attempt int
	timer   Timer
}

type config struct {
	BaseDelay time.Duration
	MaxDelay  time.Duration

	// InitialDelay waits before the first attempt too.
	InitialDelay bool

	// MaxAttempts bounds the number of attempts. Zero is unbounded.
	MaxAttempts int

	backoff backoff
}

// Option configures a Retry.
type Option func(*config)

// WithInitialDelay waits before the first attempt, for callers that
// already tried once.
func WithInitialDelay() Option {
	return func(c *config) { c.InitialDelay = true }
}

// WithMaxAttempts bounds the number of attempts.
func WithMaxAttempts(n int) Option {
	return func(c *config) { c.MaxAttempts = n }
}

// New returns a Retry whose delays grow from baseDelay up to maxDelay. It
// panics on non-positive delays or baseDelay > maxDelay.
func New(baseDelay, maxDelay time.Duration, opts ...Option) *Retry {
	if baseDelay <= 0 {
		panic("retry: BaseDelay must be positive")
	}
	if maxDelay <= 0 {
		panic("retry: MaxDelay must be positive")
	}
	if baseDelay > maxDelay {
		panic("retry: BaseDelay cannot be greater than MaxDelay")
	}

	cfg := config{
		BaseDelay: baseDelay,
		MaxDelay:  maxDelay,
		backoff:   newExponentialFullJitterBackoff(baseDelay, maxDelay),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Retry{
		cfg:   cfg,
		timer: realTimer{},
	}
}

// StartAttempt waits out the backoff delay (except before the first
// attempt) and counts a new attempt. It returns the context error if ctx
// ends first, or ErrAttemptsExhausted past the attempt limit.
func (r *Retry) StartAttempt(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if r.cfg.MaxAttempts > 0 && r.attempt >= r.cfg.MaxAttempts {
		return ErrAttemptsExhausted
	}

	if r.attempt > 0 || r.cfg.InitialDelay {
		delay := r.cfg.backoff.nextDelay()
		select {
		case <-r.timer.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	r.attempt++
	return nil
}

// Attempt returns the number of attempts started.
func (r *Retry) Attempt() int {
	return r.attempt
}

// Reset starts the backoff over from the base delay. The attempt count is
// kept.
func (r *Retry) Reset() {
	r.cfg.backoff.reset()
}

// Attempts yields (attempt, err) for every attempt. A non-nil err means
// the loop must stop.
func (r *Retry) Attempts(ctx context.Context) iter.Seq2[int, error] {
	return func(yield func(int, error) bool) {
		for {
			err := r.StartAttempt(ctx)
			if !yield(r.attempt, err) || err != nil {
				return
			}
		}
	}
}

// Do runs op until it succeeds, returns an error retryable rejects, or the
// loop stops. When the loop stops after a failed attempt the last op error
// is returned; callers inspect ctx.Err() to tell a deadline from a
// permanent failure.
func (r *Retry) Do(ctx context.Context, op func(context.Context) error, retryable func(error) bool) error {
	var lastErr error
	for _, err := range r.Attempts(ctx) {
		if err != nil {
			if lastErr != nil {
				return lastErr
			}
			return err
		}
		lastErr = op(ctx)
		if lastErr == nil || !retryable(lastErr) {
			return lastErr
		}
	}
	return lastErr
}
