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

package replication

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/multigres/logsafety/go/mterrors"
)

// ReplicationProperty maps a scope to the minimum number of distinct
// domains at that scope that must hold a copy of every record.
//
// Values are treated as immutable once built; every method returns a copy.
type ReplicationProperty map[LocationScope]int

// Validate checks the property is non-empty with counts of at least one on
// valid scopes.
func (p ReplicationProperty) Validate() error {
	if len(p) == 0 {
		return mterrors.NewInvalidConfiguration("replication property is empty")
	}
	for scope, count := range p {
		if !scope.Valid() {
			return mterrors.NewInvalidConfiguration("replication property has invalid scope %d", int(scope))
		}
		if count < 1 {
			return mterrors.NewInvalidConfiguration("replication property requires %d copies at %v", count, scope)
		}
	}
	return nil
}

// Scopes returns the constrained scopes, coarsest first.
func (p ReplicationProperty) Scopes() []LocationScope {
	scopes := make([]LocationScope, 0, len(p))
	for scope := range p {
		scopes = append(scopes, scope)
	}
	sort.Slice(scopes, func(i, j int) bool { return scopes[i] > scopes[j] })
	return scopes
}

// Coarsest returns the coarsest constrained scope. ok is false for an empty
// property.
func (p ReplicationProperty) Coarsest() (scope LocationScope, ok bool) {
	scopes := p.Scopes()
	if len(scopes) == 0 {
		return 0, false
	}
	return scopes[0], true
}

// ReplicationFactor returns the NODE requirement, or the largest requirement
// if NODE is unconstrained.
func (p ReplicationProperty) ReplicationFactor() int {
	if n, ok := p[ScopeNode]; ok {
		return n
	}
	largest := 0
	for _, n := range p {
		largest = max(largest, n)
	}
	return largest
}

// Clone returns an independent copy.
func (p ReplicationProperty) Clone() ReplicationProperty {
	if p == nil {
		return nil
	}
	out := make(ReplicationProperty, len(p))
	for scope, n := range p {
		out[scope] = n
	}
	return out
}

// Equal reports whether both properties constrain the same scopes with the
// same counts.
func (p ReplicationProperty) Equal(o ReplicationProperty) bool {
	if len(p) != len(o) {
		return false
	}
	for scope, n := range p {
		if m, ok := o[scope]; !ok || m != n {
			return false
		}
	}
	return true
}

// Merge combines two properties recorded for different epochs of the same
// log. Every scope either one constrains is kept, with the larger count.
func (p ReplicationProperty) Merge(o ReplicationProperty) ReplicationProperty {
	out := p.Clone()
	if out == nil {
		out = make(ReplicationProperty, len(o))
	}
	for scope, n := range o {
		out[scope] = max(out[scope], n)
	}
	return out
}

// String renders the property as {SCOPE: n, ...}, coarsest first.
func (p ReplicationProperty) String() string {
	parts := make([]string, 0, len(p))
	for _, scope := range p.Scopes() {
		parts = append(parts, fmt.Sprintf("%v: %d", scope, p[scope]))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// ParseReplicationProperty parses "node:3,rack:2". A bare integer is a NODE
// requirement.
func ParseReplicationProperty(s string) (ReplicationProperty, error) {
	counts, err := parseScopeCounts(s)
	if err != nil {
		return nil, mterrors.NewInvalidConfiguration("invalid replication property %q: %v", s, err)
	}
	p := ReplicationProperty(counts)
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// MarshalYAML writes the property as a scope-name keyed mapping.
func (p ReplicationProperty) MarshalYAML() (any, error) {
	return scopeCountsToNames(p), nil
}

// UnmarshalYAML reads a scope-name keyed mapping.
func (p *ReplicationProperty) UnmarshalYAML(unmarshal func(any) error) error {
	var raw map[string]int
	if err := unmarshal(&raw); err != nil {
		return err
	}
	counts, err := scopeCountsFromNames(raw)
	if err != nil {
		return err
	}
	*p = counts
	return nil
}

func scopeCountsToNames(counts map[LocationScope]int) map[string]int {
	out := make(map[string]int, len(counts))
	for scope, n := range counts {
		out[strings.ToLower(scope.String())] = n
	}
	return out
}

func scopeCountsFromNames(raw map[string]int) (map[LocationScope]int, error) {
	out := make(map[LocationScope]int, len(raw))
	for name, n := range raw {
		scope, err := ParseLocationScope(name)
		if err != nil {
			return nil, err
		}
		out[scope] = n
	}
	return out, nil
}

// parseScopeCounts parses comma separated scope:count (or scope=count) pairs.
func parseScopeCounts(s string) (map[LocationScope]int, error) {
	out := make(map[LocationScope]int)
	s = strings.TrimSpace(s)
	if s == "" {
		return out, nil
	}
	if n, err := strconv.Atoi(s); err == nil {
		out[ScopeNode] = n
		return out, nil
	}
	for _, part := range strings.Split(s, ",") {
		name, count, found := strings.Cut(part, ":")
		if !found {
			name, count, found = strings.Cut(part, "=")
		}
		if !found {
			return nil, fmt.Errorf("expected scope:count, got %q", part)
		}
		scope, err := ParseLocationScope(name)
		if err != nil {
			return nil, err
		}
		n, err := strconv.Atoi(strings.TrimSpace(count))
		if err != nil {
			return nil, fmt.Errorf("invalid count for %v: %w", scope, err)
		}
		if _, dup := out[scope]; dup {
			return nil, fmt.Errorf("scope %v given twice", scope)
		}
		out[scope] = n
	}
	return out, nil
}
