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
	"maps"
)

// ShardStatusMap is an immutable, versioned snapshot of shard authoritative
// statuses. Shards absent from the map are FullyAuthoritative. A nil map is
// an empty snapshot at version 0.
type ShardStatusMap struct {
	version  uint64
	statuses map[ShardID]AuthoritativeStatus
}

// NewShardStatusMap copies statuses into a new snapshot.
func NewShardStatusMap(version uint64, statuses map[ShardID]AuthoritativeStatus) *ShardStatusMap {
	m := &ShardStatusMap{
		version:  version,
		statuses: make(map[ShardID]AuthoritativeStatus, len(statuses)),
	}
	for s, st := range statuses {
		if st != FullyAuthoritative {
			m.statuses[s] = st
		}
	}
	return m
}

// Version returns the snapshot's progress marker.
func (m *ShardStatusMap) Version() uint64 {
	if m == nil {
		return 0
	}
	return m.version
}

// Get returns the status of a shard.
func (m *ShardStatusMap) Get(s ShardID) AuthoritativeStatus {
	if m == nil {
		return FullyAuthoritative
	}
	if st, ok := m.statuses[s]; ok {
		return st
	}
	return FullyAuthoritative
}

// WithStatus returns a copy with one shard's status changed and the version
// advanced by one.
func (m *ShardStatusMap) WithStatus(s ShardID, st AuthoritativeStatus) *ShardStatusMap {
	out := &ShardStatusMap{version: m.Version() + 1}
	if m != nil {
		out.statuses = maps.Clone(m.statuses)
	}
	if out.statuses == nil {
		out.statuses = make(map[ShardID]AuthoritativeStatus)
	}
	if st == FullyAuthoritative {
		delete(out.statuses, s)
	} else {
		out.statuses[s] = st
	}
	return out
}

// NonAuthoritative lists the shards whose status is not FullyAuthoritative,
// in shard order.
func (m *ShardStatusMap) NonAuthoritative() []ShardID {
	if m == nil {
		return nil
	}
	set := make(ShardSet, len(m.statuses))
	for s := range m.statuses {
		set[s] = struct{}{}
	}
	return set.Sorted()
}
