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

	"github.com/multigres/logsafety/go/mterrors"
)

// SafetyMargin maps a scope to extra domains required on top of the
// replication property. The zero value is no margin.
type SafetyMargin map[LocationScope]int

// Validate rejects negative margins and unknown scopes.
func (m SafetyMargin) Validate() error {
	for scope, n := range m {
		if !scope.Valid() {
			return mterrors.NewInvalidConfiguration("safety margin has invalid scope %d", int(scope))
		}
		if n < 0 {
			return mterrors.NewInvalidConfiguration("safety margin for %v is negative (%d)", scope, n)
		}
	}
	return nil
}

// Merge returns the per-scope maximum of both margins.
func (m SafetyMargin) Merge(o SafetyMargin) SafetyMargin {
	out := make(SafetyMargin, len(m)+len(o))
	for scope, n := range m {
		out[scope] = n
	}
	for scope, n := range o {
		out[scope] = max(out[scope], n)
	}
	return out
}

func (m SafetyMargin) String() string {
	if len(m) == 0 {
		return "{}"
	}
	return ReplicationProperty(m).String()
}

// ParseSafetyMargin parses "node=1,rack=1". The empty string is no margin.
func ParseSafetyMargin(s string) (SafetyMargin, error) {
	counts, err := parseScopeCounts(s)
	if err != nil {
		return nil, mterrors.NewInvalidConfiguration("invalid safety margin %q: %v", s, err)
	}
	m := SafetyMargin(counts)
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// MarshalYAML writes the margin as a scope-name keyed mapping.
func (m SafetyMargin) MarshalYAML() (any, error) {
	return scopeCountsToNames(m), nil
}

// UnmarshalYAML reads a scope-name keyed mapping.
func (m *SafetyMargin) UnmarshalYAML(unmarshal func(any) error) error {
	var raw map[string]int
	if err := unmarshal(&raw); err != nil {
		return err
	}
	counts, err := scopeCountsFromNames(raw)
	if err != nil {
		return fmt.Errorf("safety margin: %w", err)
	}
	*m = counts
	return nil
}

// EffectiveRequirement returns prop[scope] + margin[scope] for every scope
// prop constrains. Margin scopes prop does not constrain are ignored.
func EffectiveRequirement(prop ReplicationProperty, margin SafetyMargin) ReplicationProperty {
	out := make(ReplicationProperty, len(prop))
	for scope, n := range prop {
		out[scope] = n + margin[scope]
	}
	return out
}

