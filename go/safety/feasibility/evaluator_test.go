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

package feasibility

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/multigres/logsafety/go/clustermetadata/nodes"
	"github.com/multigres/logsafety/go/clustermetadata/topo"
	"github.com/multigres/logsafety/go/mterrors"
	"github.com/multigres/logsafety/go/safety/impact"
	"github.com/multigres/logsafety/go/safety/replication"
)

const (
	readWrite = nodes.StorageStateReadWrite
	readOnly  = nodes.StorageStateReadOnly
	disabled  = nodes.StorageStateDisabled
)

func sh(n, s int) nodes.ShardID {
	return nodes.ShardID{Node: nodes.NodeIndex(n), Shard: nodes.ShardIndex(s)}
}

// testCluster has six storage nodes with two shards each. Nodes 0-2 sit
// in rack k0 and nodes 3-5 in rack k1, all in one region.
func testCluster(t *testing.T, mutate func(i int, n *nodes.Node)) *nodes.NodesConfiguration {
	t.Helper()
	var ns []nodes.Node
	for i := range 6 {
		n := nodes.Node{
			Index:    nodes.NodeIndex(i),
			Location: nodes.Location(fmt.Sprintf("rg.dc.cl.rw.k%d", i/3)),
			Storage:  &nodes.StorageRole{NumShards: 2, Capacity: 1},
		}
		if mutate != nil {
			mutate(i, &n)
		}
		ns = append(ns, n)
	}
	nc, err := nodes.New(1, ns, nil)
	require.NoError(t, err)
	return nc
}

func rec(repl replication.ReplicationProperty, shards ...nodes.ShardID) *topo.EpochRecord {
	return &topo.EpochRecord{Since: 1, Until: topo.EpochMax, NodeSet: shards, Replication: repl}
}

func nodeRepl(n int) replication.ReplicationProperty {
	return replication.ReplicationProperty{replication.ScopeNode: n}
}

func allShardsOf(idx ...int) nodes.ShardSet {
	set := nodes.ShardSet{}
	for _, i := range idx {
		set[sh(i, 0)] = struct{}{}
		set[sh(i, 1)] = struct{}{}
	}
	return set
}

func evaluate(t *testing.T, nc *nodes.NodesConfiguration, status *nodes.ShardStatusMap, tr Transition, margin replication.SafetyMargin, r *topo.EpochRecord) impact.Kinds {
	t.Helper()
	res, err := NewEvaluator(nc, status, tr, margin).Evaluate(r)
	require.NoError(t, err)
	return res.Kinds
}

func TestEvaluate(t *testing.T) {
	nc := testCluster(t, nil)
	threeNodes := rec(nodeRepl(2), sh(0, 0), sh(1, 0), sh(2, 0))
	rackSpread := rec(replication.ReplicationProperty{replication.ScopeRack: 2, replication.ScopeNode: 3},
		sh(0, 0), sh(1, 0), sh(3, 0), sh(4, 0))

	tests := []struct {
		name   string
		record *topo.EpochRecord
		tr     Transition
		status *nodes.ShardStatusMap
		margin replication.SafetyMargin
		want   impact.Kinds
	}{
		{
			name:   "no transition",
			record: threeNodes,
			tr:     Transition{TargetState: disabled},
		},
		{
			name:   "disable one node keeps two copies",
			record: threeNodes,
			tr:     Transition{Targets: allShardsOf(1), TargetState: disabled},
		},
		{
			name:   "disable two nodes",
			record: threeNodes,
			tr:     Transition{Targets: allShardsOf(1, 2), TargetState: disabled},
			want:   impact.KindsOf(impact.WriteAvailabilityLoss, impact.RebuildingStall),
		},
		{
			name:   "disable every node",
			record: threeNodes,
			tr:     Transition{Targets: allShardsOf(0, 1, 2, 3, 4, 5), TargetState: disabled},
			want:   impact.KindsOf(impact.WriteAvailabilityLoss, impact.ReadAvailabilityLoss, impact.RebuildingStall),
		},
		{
			name:   "read-only every node only blocks writes",
			record: threeNodes,
			tr:     Transition{Targets: allShardsOf(0, 1, 2, 3, 4, 5), TargetState: readOnly},
			want:   impact.KindsOf(impact.WriteAvailabilityLoss),
		},
		{
			name:   "read-write target is a no-op",
			record: threeNodes,
			tr:     Transition{Targets: allShardsOf(0, 1, 2), TargetState: readWrite},
		},
		{
			name:   "unavailable shard adds to the proposed loss",
			record: threeNodes,
			tr:     Transition{Targets: allShardsOf(1), TargetState: disabled},
			status: nodes.NewShardStatusMap(1, map[nodes.ShardID]nodes.AuthoritativeStatus{sh(0, 0): nodes.Unavailable}),
			want:   impact.KindsOf(impact.WriteAvailabilityLoss, impact.RebuildingStall),
		},
		{
			name:   "authoritative empty shards alone lose reads once rebuild starts",
			record: rec(nodeRepl(1), sh(0, 0), sh(1, 0)),
			tr:     Transition{Targets: allShardsOf(1), TargetState: disabled},
			status: nodes.NewShardStatusMap(1, map[nodes.ShardID]nodes.AuthoritativeStatus{sh(0, 0): nodes.AuthoritativeEmpty}),
			want:   impact.KindsOf(impact.WriteAvailabilityLoss, impact.ReadAvailabilityLoss, impact.RebuildingStall),
		},
		{
			name:   "underreplication is not a loss",
			record: threeNodes,
			tr:     Transition{Targets: allShardsOf(1), TargetState: disabled},
			status: nodes.NewShardStatusMap(1, map[nodes.ShardID]nodes.AuthoritativeStatus{sh(0, 0): nodes.Underreplication}),
		},
		{
			name:   "margin on the constrained scope",
			record: threeNodes,
			tr:     Transition{Targets: allShardsOf(1), TargetState: disabled},
			margin: replication.SafetyMargin{replication.ScopeNode: 1},
			want:   impact.KindsOf(impact.WriteAvailabilityLoss, impact.RebuildingStall),
		},
		{
			name:   "margin on an unconstrained scope is ignored",
			record: threeNodes,
			tr:     Transition{Targets: allShardsOf(1), TargetState: disabled},
			margin: replication.SafetyMargin{replication.ScopeRack: 5},
		},
		{
			name:   "rack spread survives one node per rack",
			record: rackSpread,
			tr:     Transition{Targets: allShardsOf(4), TargetState: readOnly},
		},
		{
			name:   "rack spread loses a rack",
			record: rackSpread,
			tr:     Transition{Targets: allShardsOf(3, 4), TargetState: readOnly},
			want:   impact.KindsOf(impact.WriteAvailabilityLoss),
		},
		{
			name:   "rack spread loses a rack to disabling",
			record: rackSpread,
			tr:     Transition{Targets: allShardsOf(3, 4), TargetState: disabled},
			want:   impact.KindsOf(impact.WriteAvailabilityLoss, impact.RebuildingStall),
		},
		{
			name:   "shards outside the nodeset do not matter",
			record: threeNodes,
			tr:     Transition{Targets: allShardsOf(3, 4, 5), TargetState: disabled},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := evaluate(t, nc, tt.status, tt.tr, tt.margin, tt.record)
			assert.Equal(t, tt.want, got, "got %v, want %v", got, tt.want)
		})
	}
}

func TestEvaluateMembershipState(t *testing.T) {
	nc := testCluster(t, func(i int, n *nodes.Node) {
		switch i {
		case 0:
			n.Storage.State = readOnly
		case 2:
			n.Storage.State = disabled
		}
	})
	r := rec(nodeRepl(2), sh(0, 0), sh(1, 0), sh(2, 0))

	// Node 0 is already read-only and node 2 disabled: only node 1 takes
	// writes, so the record is already write-blocked.
	got := evaluate(t, nc, nil, Transition{TargetState: disabled}, nil, r)
	assert.Equal(t, impact.KindsOf(impact.WriteAvailabilityLoss), got)

	// Disabling node 1 leaves only read-only node 0 with data.
	got = evaluate(t, nc, nil, Transition{Targets: allShardsOf(1), TargetState: disabled}, nil, r)
	assert.Equal(t, impact.KindsOf(impact.WriteAvailabilityLoss, impact.RebuildingStall), got)
}

// Disabling one shard that reduces the distinct count below the
// requirement is a write loss; one that does not reduce it is not.
func TestEvaluateExactRequirement(t *testing.T) {
	nc := testCluster(t, nil)
	r := rec(nodeRepl(2), sh(0, 0), sh(0, 1), sh(1, 0))

	tests := []struct {
		target nodes.ShardID
		want   impact.Kinds
	}{
		{target: sh(0, 1)},
		{target: sh(0, 0)},
		{target: sh(1, 0), want: impact.KindsOf(impact.WriteAvailabilityLoss, impact.RebuildingStall)},
	}
	for _, tt := range tests {
		t.Run(tt.target.String(), func(t *testing.T) {
			got := evaluate(t, nc, nil, Transition{Targets: nodes.NewShardSet(tt.target), TargetState: disabled}, nil, r)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvaluateMarginMonotonic(t *testing.T) {
	nc := testCluster(t, nil)
	r := rec(replication.ReplicationProperty{replication.ScopeRack: 1, replication.ScopeNode: 2},
		sh(0, 0), sh(1, 0), sh(2, 0), sh(3, 0), sh(4, 0))

	for _, state := range []nodes.StorageState{readOnly, disabled} {
		tr := Transition{Targets: allShardsOf(1, 3), TargetState: state}
		for _, scope := range []replication.LocationScope{replication.ScopeNode, replication.ScopeRack} {
			prev := impact.Kinds(0)
			for m := range 5 {
				got := evaluate(t, nc, nil, tr, replication.SafetyMargin{scope: m}, r)
				assert.True(t, got.Contains(prev), "%v margin %v=%d: %v lost kinds of %v", state, scope, m, got, prev)
				prev = got
			}
		}
	}
}

func TestEvaluateRecordMargin(t *testing.T) {
	nc := testCluster(t, nil)
	r := rec(nodeRepl(2), sh(0, 0), sh(1, 0), sh(2, 0))
	r.Margin = replication.SafetyMargin{replication.ScopeNode: 1}
	tr := Transition{Targets: allShardsOf(1), TargetState: readOnly}

	res, err := NewEvaluator(nc, nil, tr, replication.SafetyMargin{replication.ScopeNode: 0}).Evaluate(r)
	require.NoError(t, err)
	assert.Equal(t, impact.KindsOf(impact.WriteAvailabilityLoss), res.Kinds)
	assert.Equal(t, 3, res.Requirement[replication.ScopeNode])
	assert.Equal(t, []nodes.ShardID{sh(1, 0)}, res.WriteBlocking)
	assert.Empty(t, res.FullyLost)

	// The larger of the two margins wins.
	res, err = NewEvaluator(nc, nil, tr, replication.SafetyMargin{replication.ScopeNode: 2}).Evaluate(r)
	require.NoError(t, err)
	assert.Equal(t, 4, res.Requirement[replication.ScopeNode])
}

func TestEvaluateDuplicateShards(t *testing.T) {
	nc := testCluster(t, nil)
	r := rec(nodeRepl(2), sh(0, 0), sh(0, 0), sh(1, 0))
	res, err := NewEvaluator(nc, nil, Transition{Targets: allShardsOf(0), TargetState: disabled}, nil).Evaluate(r)
	require.NoError(t, err)
	assert.Equal(t, []nodes.ShardID{sh(0, 0)}, res.FullyLost)
	assert.True(t, res.Kinds.Has(impact.WriteAvailabilityLoss))
}

func TestEvaluateInvalidReplication(t *testing.T) {
	nc := testCluster(t, nil)
	_, err := NewEvaluator(nc, nil, Transition{}, nil).Evaluate(rec(nil, sh(0, 0)))
	assert.True(t, mterrors.IsInvalidConfiguration(err), "got %v", err)
}

func TestTransition(t *testing.T) {
	tr := Transition{Targets: allShardsOf(1), TargetState: disabled}
	assert.True(t, tr.Rebuilds())
	assert.True(t, tr.Touches([]nodes.ShardID{sh(0, 0), sh(1, 1)}))
	assert.False(t, tr.Touches([]nodes.ShardID{sh(0, 0), sh(2, 1)}))

	assert.False(t, Transition{Targets: allShardsOf(1), TargetState: readOnly}.Rebuilds())
	assert.False(t, Transition{TargetState: disabled}.Rebuilds())
}
