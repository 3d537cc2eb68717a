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

package checker

import (
	"time"

	"github.com/spf13/pflag"

	"github.com/multigres/logsafety/go/safety/epochs"
	"github.com/multigres/logsafety/go/viperutil"
)

// Config encapsulates the safety checker configuration.
type Config struct {
	abortOnError   viperutil.Value[bool]
	maxInFlight    viperutil.Value[int]
	logTimeout     viperutil.Value[time.Duration]
	retryBaseDelay viperutil.Value[time.Duration]
	retryMaxDelay  viperutil.Value[time.Duration]
}

// NewConfig creates a new Config with all viperutil values configured.
func NewConfig(reg *viperutil.Registry) *Config {
	return &Config{
		abortOnError: viperutil.Configure(reg, "abort-on-error", viperutil.Options[bool]{
			Default:  true,
			FlagName: "abort-on-error",
			Dynamic:  true,
			EnvVars:  []string{"LS_ABORT_ON_ERROR"},
		}),
		maxInFlight: viperutil.Configure(reg, "max-in-flight", viperutil.Options[int]{
			Default:  32,
			FlagName: "max-in-flight",
			EnvVars:  []string{"LS_MAX_IN_FLIGHT"},
		}),
		logTimeout: viperutil.Configure(reg, "log-timeout", viperutil.Options[time.Duration]{
			Default:  10 * time.Second,
			FlagName: "log-timeout",
			EnvVars:  []string{"LS_LOG_TIMEOUT"},
		}),
		retryBaseDelay: viperutil.Configure(reg, "retry-base-delay", viperutil.Options[time.Duration]{
			Default:  10 * time.Millisecond,
			FlagName: "retry-base-delay",
			EnvVars:  []string{"LS_RETRY_BASE_DELAY"},
		}),
		retryMaxDelay: viperutil.Configure(reg, "retry-max-delay", viperutil.Options[time.Duration]{
			Default:  time.Second,
			FlagName: "retry-max-delay",
			EnvVars:  []string{"LS_RETRY_MAX_DELAY"},
		}),
	}
}

// RegisterFlags registers the checker flags on fs.
func (c *Config) RegisterFlags(fs *pflag.FlagSet) {
	fs.Bool("abort-on-error", c.abortOnError.Default(), "Stop evaluating logs as soon as one impact or failure is found")
	fs.Int("max-in-flight", c.maxInFlight.Default(), "Maximum number of logs evaluated concurrently")
	fs.Duration("log-timeout", c.logTimeout.Default(), "Deadline for resolving the epoch history of one log")
	fs.Duration("retry-base-delay", c.retryBaseDelay.Default(), "Initial backoff between retries of transient metadata store errors")
	fs.Duration("retry-max-delay", c.retryMaxDelay.Default(), "Maximum backoff between retries of transient metadata store errors")
	viperutil.BindFlags(fs, c.abortOnError, c.maxInFlight, c.logTimeout, c.retryBaseDelay, c.retryMaxDelay)
}

func (c *Config) GetAbortOnError() bool {
	return c.abortOnError.Get()
}

func (c *Config) SetAbortOnError(v bool) {
	c.abortOnError.Set(v)
}

// GetMaxInFlight never returns less than 1.
func (c *Config) GetMaxInFlight() int {
	return max(c.maxInFlight.Get(), 1)
}

// ResolverOptions returns the options for an epochs.StoreResolver.
func (c *Config) ResolverOptions() epochs.Options {
	return epochs.Options{
		LogTimeout:     c.logTimeout.Get(),
		RetryBaseDelay: c.retryBaseDelay.Get(),
		RetryMaxDelay:  c.retryMaxDelay.Get(),
	}
}
