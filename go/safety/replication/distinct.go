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
	"strconv"
)

// DomainLocator resolves the failure domain a node belongs to at a scope.
// ok is false for nodes the locator does not know; those are not counted.
// Nodes whose location leaves the scope unspecified all share the empty
// domain "".
type DomainLocator interface {
	DomainAt(node int, scope LocationScope) (domain string, ok bool)
}

// CountDistinctAtScope returns the number of distinct domains at scope
// covered by the given nodes. Repeated nodes (several shards of one node)
// count once. At ROOT every known node shares the single root domain; at
// NODE every node is its own domain.
func CountDistinctAtScope[N ~int](nodes []N, scope LocationScope, loc DomainLocator) int {
	seen := make(map[string]struct{}, len(nodes))
	for _, n := range nodes {
		domain, ok := loc.DomainAt(int(n), scope)
		if !ok {
			continue
		}
		switch scope {
		case ScopeRoot:
			domain = ""
		case ScopeNode:
			domain = strconv.Itoa(int(n))
		}
		seen[domain] = struct{}{}
	}
	return len(seen)
}
