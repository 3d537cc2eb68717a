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
	"fmt"
	"strings"

	"github.com/multigres/logsafety/go/safety/replication"
)

// Location is a dotted path "region.datacenter.cluster.row.rack". Trailing
// labels may be omitted, which leaves the finer scopes unspecified.
type Location string

// locationDepth is the number of labels that name a domain at each scope.
var locationDepth = map[replication.LocationScope]int{
	replication.ScopeRegion:     1,
	replication.ScopeDataCenter: 2,
	replication.ScopeCluster:    3,
	replication.ScopeRow:        4,
	replication.ScopeRack:       5,
}

const maxLocationLabels = 5

func (l Location) labels() []string {
	if l == "" {
		return nil
	}
	return strings.Split(string(l), ".")
}

// Validate checks the location has at most five non-empty labels.
func (l Location) Validate() error {
	labels := l.labels()
	if len(labels) > maxLocationLabels {
		return fmt.Errorf("location %q has %d labels, at most %d allowed", l, len(labels), maxLocationLabels)
	}
	for _, label := range labels {
		if label == "" {
			return fmt.Errorf("location %q has an empty label", l)
		}
	}
	return nil
}

// DomainAt returns the prefix of the location naming its failure domain at
// scope, or "" when the location does not specify that scope. ROOT is always
// "". NODE has no location label and also returns "".
func (l Location) DomainAt(scope replication.LocationScope) string {
	depth, ok := locationDepth[scope]
	if !ok {
		return ""
	}
	labels := l.labels()
	if len(labels) < depth {
		return ""
	}
	return strings.Join(labels[:depth], ".")
}
