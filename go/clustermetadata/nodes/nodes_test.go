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
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/multigres/logsafety/go/mterrors"
	"github.com/multigres/logsafety/go/safety/replication"
)

func storageNode(idx NodeIndex, loc Location, shards int) Node {
	return Node{
		Index:    idx,
		Name:     "node",
		Location: loc,
		Storage:  &StorageRole{NumShards: shards, Capacity: 1},
	}
}

func TestParseShardID(t *testing.T) {
	tests := []struct {
		in      string
		want    ShardID
		wantErr bool
	}{
		{in: "N1:S0", want: ShardID{Node: 1, Shard: 0}},
		{in: "n12:s3", want: ShardID{Node: 12, Shard: 3}},
		{in: "4:2", want: ShardID{Node: 4, Shard: 2}},
		{in: "N7", want: ShardID{Node: 7, Shard: AllShards}},
		{in: " 3 ", want: ShardID{Node: 3, Shard: AllShards}},
		{in: "", wantErr: true},
		{in: "N1:Sx", wantErr: true},
		{in: "N1:S-1", wantErr: true},
		{in: "N70000", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseShardID(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	assert.Equal(t, "N1:S0", ShardID{Node: 1, Shard: 0}.String())
	assert.Equal(t, "N2", ShardID{Node: 2, Shard: AllShards}.String())

	ids, err := ParseShardIDs("N1:S0, N2,,3:1")
	require.NoError(t, err)
	assert.Equal(t, []ShardID{{1, 0}, {2, AllShards}, {3, 1}}, ids)
}

func TestParseStates(t *testing.T) {
	for in, want := range map[string]StorageState{
		"read-write": StorageStateReadWrite,
		"READ_ONLY":  StorageStateReadOnly,
		"disabled":   StorageStateDisabled,
	} {
		got, err := ParseStorageState(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	_, err := ParseStorageState("draining")
	assert.Error(t, err)

	st, err := ParseAuthoritativeStatus("authoritative-empty")
	require.NoError(t, err)
	assert.Equal(t, AuthoritativeEmpty, st)
	assert.True(t, Unavailable.Lost())
	assert.True(t, AuthoritativeEmpty.Lost())
	assert.False(t, Underreplication.Lost())
}

func TestLocationDomainAt(t *testing.T) {
	loc := Location("rg1.dc1.cl1.row1.rk1")
	assert.Equal(t, "rg1", loc.DomainAt(replication.ScopeRegion))
	assert.Equal(t, "rg1.dc1", loc.DomainAt(replication.ScopeDataCenter))
	assert.Equal(t, "rg1.dc1.cl1.row1.rk1", loc.DomainAt(replication.ScopeRack))
	assert.Equal(t, "", loc.DomainAt(replication.ScopeRoot))

	partial := Location("rg1.dc2")
	assert.Equal(t, "rg1.dc2", partial.DomainAt(replication.ScopeDataCenter))
	assert.Equal(t, "", partial.DomainAt(replication.ScopeRack))

	assert.Error(t, Location("a..b").Validate())
	assert.Error(t, Location("a.b.c.d.e.f").Validate())
	assert.NoError(t, Location("").Validate())
}

func TestNewValidates(t *testing.T) {
	meta := storageNode(0, "rg1", 1)
	meta.Storage.Metadata = true

	tests := []struct {
		name  string
		nodes []Node
		repl  replication.ReplicationProperty
	}{
		{"duplicate index", []Node{storageNode(1, "", 1), storageNode(1, "", 1)}, nil},
		{"negative shards", []Node{storageNode(1, "", -1)}, nil},
		{"bad location", []Node{storageNode(1, "a..b", 1)}, nil},
		{"negative capacity", []Node{{Index: 1, Storage: &StorageRole{NumShards: 1, Capacity: -1}}}, nil},
		{"nan weight", []Node{{Index: 1, Sequencer: &SequencerRole{Enabled: true, Weight: math.NaN()}}}, nil},
		{"metadata without replication", []Node{meta}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(1, tt.nodes, tt.repl)
			require.Error(t, err)
			assert.True(t, mterrors.IsInvalidConfiguration(err), "got %v", err)
		})
	}

	nc, err := New(1, []Node{meta}, replication.ReplicationProperty{replication.ScopeNode: 1})
	require.NoError(t, err)
	assert.Equal(t, []ShardID{{0, 0}}, nc.MetadataShards())
}

func TestNodesConfigurationLookups(t *testing.T) {
	in := []Node{
		storageNode(2, "rg1.dc1", 3),
		storageNode(0, "rg1.dc1", 2),
		{Index: 5, Sequencer: &SequencerRole{Enabled: true, Weight: 1}},
	}
	nc, err := New(7, in, nil)
	require.NoError(t, err)

	// New copies its input.
	in[0].Storage.NumShards = 100
	n, ok := nc.Node(2)
	require.True(t, ok)
	assert.Equal(t, 3, n.Storage.NumShards)

	assert.Equal(t, uint64(7), nc.Version())
	assert.Equal(t, []NodeIndex{0, 2, 5}, []NodeIndex{nc.Nodes()[0].Index, nc.Nodes()[1].Index, nc.Nodes()[2].Index})
	assert.Len(t, nc.StorageShards(), 5)
	assert.Nil(t, nc.ShardsOf(5))

	domain, ok := nc.DomainAt(0, replication.ScopeDataCenter)
	require.True(t, ok)
	assert.Equal(t, "rg1.dc1", domain)
	_, ok = nc.DomainAt(9, replication.ScopeRegion)
	assert.False(t, ok)

	assert.Equal(t, StorageStateReadWrite, nc.MembershipState(ShardID{0, 1}))
	assert.Equal(t, StorageStateDisabled, nc.MembershipState(ShardID{0, 9}))
}

func TestExpandShards(t *testing.T) {
	nc, err := New(1, []Node{
		storageNode(0, "", 2),
		storageNode(1, "", 2),
		{Index: 2, Sequencer: &SequencerRole{Enabled: true, Weight: 1}},
	}, nil)
	require.NoError(t, err)

	got, err := nc.ExpandShards([]ShardID{{1, AllShards}, {0, 1}, {1, 0}})
	require.NoError(t, err)
	assert.Equal(t, []ShardID{{0, 1}, {1, 0}, {1, 1}}, got)

	for name, targets := range map[string][]ShardID{
		"unknown node":    {{9, 0}},
		"no storage role": {{2, AllShards}},
		"shard too large": {{0, 2}},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := nc.ExpandShards(targets)
			require.Error(t, err)
			assert.True(t, mterrors.IsLookupError(err))
		})
	}
}

func TestShardStatusMap(t *testing.T) {
	var empty *ShardStatusMap
	assert.Equal(t, FullyAuthoritative, empty.Get(ShardID{1, 0}))
	assert.Equal(t, uint64(0), empty.Version())

	m := NewShardStatusMap(3, map[ShardID]AuthoritativeStatus{
		{1, 0}: Unavailable,
		{2, 0}: FullyAuthoritative,
	})
	assert.Equal(t, Unavailable, m.Get(ShardID{1, 0}))
	assert.Equal(t, []ShardID{{1, 0}}, m.NonAuthoritative())

	next := m.WithStatus(ShardID{0, 1}, AuthoritativeEmpty)
	assert.Equal(t, uint64(4), next.Version())
	assert.Equal(t, AuthoritativeEmpty, next.Get(ShardID{0, 1}))
	// The original snapshot is untouched.
	assert.Equal(t, FullyAuthoritative, m.Get(ShardID{0, 1}))

	healed := next.WithStatus(ShardID{1, 0}, FullyAuthoritative)
	assert.Equal(t, []ShardID{{0, 1}}, healed.NonAuthoritative())

	fromNil := empty.WithStatus(ShardID{0, 0}, Unavailable)
	assert.Equal(t, uint64(1), fromNil.Version())
}
