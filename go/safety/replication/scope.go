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

/*
Package replication holds the value types describing how copies of a record
must be spread over the location hierarchy, and the arithmetic the safety
checker runs over them.

The hierarchy, coarsest first:

	ROOT > REGION > DATACENTER > CLUSTER > ROW > RACK > NODE

A ReplicationProperty maps scopes to the number of distinct failure domains
at that scope that must hold a copy. A SafetyMargin adds extra domains on top
of the scopes the property already constrains.
*/
package replication

import (
	"fmt"
	"strings"
)

// LocationScope is a level of the location hierarchy. Larger values are
// coarser.
type LocationScope int

const (
	ScopeNode LocationScope = iota
	ScopeRack
	ScopeRow
	ScopeCluster
	ScopeDataCenter
	ScopeRegion
	ScopeRoot
)

// AllScopes lists every scope from the finest to the coarsest.
var AllScopes = []LocationScope{
	ScopeNode,
	ScopeRack,
	ScopeRow,
	ScopeCluster,
	ScopeDataCenter,
	ScopeRegion,
	ScopeRoot,
}

var scopeNames = map[LocationScope]string{
	ScopeNode:       "NODE",
	ScopeRack:       "RACK",
	ScopeRow:        "ROW",
	ScopeCluster:    "CLUSTER",
	ScopeDataCenter: "DATACENTER",
	ScopeRegion:     "REGION",
	ScopeRoot:       "ROOT",
}

func (s LocationScope) String() string {
	if name, ok := scopeNames[s]; ok {
		return name
	}
	return fmt.Sprintf("SCOPE(%d)", int(s))
}

// Valid reports whether s is one of the defined scopes.
func (s LocationScope) Valid() bool {
	return s >= ScopeNode && s <= ScopeRoot
}

// CoarserThan reports whether s sits above o in the hierarchy.
func (s LocationScope) CoarserThan(o LocationScope) bool {
	return s > o
}

// ParseLocationScope parses a scope name, case-insensitively.
func ParseLocationScope(name string) (LocationScope, error) {
	upper := strings.ToUpper(strings.TrimSpace(name))
	for scope, n := range scopeNames {
		if n == upper {
			return scope, nil
		}
	}
	return 0, fmt.Errorf("unknown location scope %q", name)
}

// MarshalText implements encoding.TextMarshaler so scopes serialize by name.
func (s LocationScope) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid location scope %d", int(s))
	}
	return []byte(strings.ToLower(s.String())), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *LocationScope) UnmarshalText(text []byte) error {
	parsed, err := ParseLocationScope(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
