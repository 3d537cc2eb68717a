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

package retry

import (
	"math"
	"math/rand/v2"
	"sync"
	"time"
)

// Timer abstracts time.After so tests can run without sleeping.
type Timer interface {
	After(d time.Duration) <-chan time.Time
}

type realTimer struct{}

func (realTimer) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}

// backoff computes the delay before each retry.
type backoff interface {
	// nextDelay returns the next delay and advances the internal state.
	nextDelay() time.Duration
	// reset returns to the initial delay.
	reset()
}

// exponentialFullJitterBackoff waits a random duration in
// [0, min(maxDelay, baseDelay * 2^attempt)).
type exponentialFullJitterBackoff struct {
	baseDelay     time.Duration
	maxDelay      time.Duration
	rng           *rand.Rand
	disableJitter bool

	mu      sync.Mutex
	attempt int
}

func newExponentialFullJitterBackoff(baseDelay, maxDelay time.Duration) *exponentialFullJitterBackoff {
	seed := uint64(time.Now().UnixNano())
	return &exponentialFullJitterBackoff{
		baseDelay: baseDelay,
		maxDelay:  maxDelay,
		rng:       rand.New(rand.NewPCG(seed, seed>>1)),
	}
}

func newExponentialBackoffNoJitter(baseDelay, maxDelay time.Duration) *exponentialFullJitterBackoff {
	return &exponentialFullJitterBackoff{
		baseDelay:     baseDelay,
		maxDelay:      maxDelay,
		disableJitter: true,
	}
}

func (e *exponentialFullJitterBackoff) nextDelay() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()

	// Shifting past 62 bits overflows int64.
	shift := min(e.attempt, 62)
	multiplier := int64(1) << shift

	delay := e.maxDelay
	if base := int64(e.baseDelay); multiplier <= math.MaxInt64/base {
		delay = min(time.Duration(base*multiplier), e.maxDelay)
	}
	if !e.disableJitter {
		delay = time.Duration(float64(delay) * e.rng.Float64())
	}
	e.attempt++
	return delay
}

func (e *exponentialFullJitterBackoff) reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.attempt = 0
}
