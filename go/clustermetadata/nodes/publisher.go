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

package nodes

import (
	"log/slog"
	"sync"
	"sync/atomic"
)

// Publisher holds the authoritative NodesConfiguration. Readers call
// Current without locking; Publish replaces the configuration atomically.
type Publisher struct {
	logger  *slog.Logger
	current atomic.Pointer[NodesConfiguration]

	// mu serializes Publish and protects the fields below.
	mu        sync.Mutex
	nextID    int
	subs      map[int]func(*NodesConfiguration)
	published int
}

// NewPublisher returns a Publisher with no configuration.
func NewPublisher(logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		logger: logger,
		subs:   make(map[int]func(*NodesConfiguration)),
	}
}

// Current returns the published configuration, or nil before the first
// publish.
func (p *Publisher) Current() *NodesConfiguration {
	return p.current.Load()
}

// Publish installs nc if its version differs from the current one and
// notifies subscribers. It reports whether nc was published.
func (p *Publisher) Publish(nc *NodesConfiguration) bool {
	if nc == nil {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	prev := p.current.Load()
	if prev != nil && prev.Version() == nc.Version() {
		p.logger.Debug("nodes configuration unchanged, not publishing", "version", nc.Version())
		return false
	}
	p.current.Store(nc)
	p.published++

	var prevVersion uint64
	if prev != nil {
		prevVersion = prev.Version()
	}
	p.logger.Info("published nodes configuration",
		"version", nc.Version(),
		"previous_version", prevVersion,
		"nodes", len(nc.Nodes()))

	for _, fn := range p.subs {
		fn(nc)
	}
	return true
}

// Subscribe registers fn to be called with every newly published
// configuration. Callbacks run under the publish lock and must not call
// Publish. The returned function removes the subscription.
func (p *Publisher) Subscribe(fn func(*NodesConfiguration)) (unsubscribe func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.nextID
	p.nextID++
	p.subs[id] = fn
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.subs, id)
	}
}

// Publishes returns how many configurations were published.
func (p *Publisher) Publishes() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.published
}
