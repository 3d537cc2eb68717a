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

package epochs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/multigres/logsafety/go/clustermetadata/nodes"
	"github.com/multigres/logsafety/go/clustermetadata/topo"
	"github.com/multigres/logsafety/go/clustermetadata/topo/memorytopo"
	"github.com/multigres/logsafety/go/mterrors"
	"github.com/multigres/logsafety/go/safety/replication"
)

var node2 = replication.ReplicationProperty{replication.ScopeNode: 2}

func shard(n, s int) nodes.ShardID {
	return nodes.ShardID{Node: nodes.NodeIndex(n), Shard: nodes.ShardIndex(s)}
}

func testOptions() Options {
	return Options{
		LogTimeout:     200 * time.Millisecond,
		RetryBaseDelay: time.Millisecond,
		RetryMaxDelay:  5 * time.Millisecond,
	}
}

// newTestResolver returns a resolver over a fresh memorytopo holding the
// given logs, each with the given records.
func newTestResolver(t *testing.T, logs map[topo.LogID][]topo.EpochRecord) (*StoreResolver, *topo.LogStore, *memorytopo.Factory) {
	t.Helper()
	ctx := t.Context()
	ls, f := memorytopo.NewServerAndFactory("/test")
	for id, records := range logs {
		require.NoError(t, ls.PutLog(ctx, &topo.LogConfig{ID: id, Replication: node2}))
		for _, rec := range records {
			require.NoError(t, ls.AppendEpoch(ctx, id, rec))
		}
	}
	return NewStoreResolver(ls, testOptions(), nil), ls, f
}

func TestLogRef(t *testing.T) {
	assert.Equal(t, topo.LogID(4611686018427387900), ConfigLogSnapshots)
	assert.Equal(t, topo.LogID(4611686018427387905), MaintenanceLogDeltas)

	assert.True(t, IsInternal(EventLogDeltas))
	assert.False(t, IsInternal(42))
	assert.False(t, IsInternal(MetadataLogID))

	assert.Equal(t, LogRef{ID: 42, Category: Data}, RefFor(42))
	assert.Equal(t, LogRef{ID: EventLogSnapshots, Category: Internal}, RefFor(EventLogSnapshots))
	assert.True(t, MetadataRef().IsInternalOrMetadata())
	assert.True(t, RefFor(ConfigLogDeltas).IsInternalOrMetadata())
	assert.False(t, RefFor(1).IsInternalOrMetadata())

	assert.Equal(t, "log 42", RefFor(42).String())
	assert.Equal(t, "metadata log", MetadataRef().String())
	assert.Equal(t, "internal log 4611686018427387902 (event_log_snapshots)", RefFor(EventLogSnapshots).String())
	assert.Equal(t, "INTERNAL", Internal.String())
}

func TestLogs(t *testing.T) {
	r, _, _ := newTestResolver(t, map[topo.LogID][]topo.EpochRecord{
		1:                 nil,
		2:                 nil,
		EventLogSnapshots: nil,
	})

	tests := []struct {
		name  string
		flags Flags
		want  []LogRef
	}{
		{
			name: "data only",
			want: []LogRef{RefFor(1), RefFor(2)},
		},
		{
			name:  "with metadata",
			flags: Flags{Metadata: true},
			want:  []LogRef{MetadataRef(), RefFor(1), RefFor(2)},
		},
		{
			name:  "with internal",
			flags: Flags{Internal: true},
			want:  []LogRef{RefFor(1), RefFor(2), RefFor(EventLogSnapshots)},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			refs, err := r.Logs(t.Context(), tt.flags)
			require.NoError(t, err)
			assert.Equal(t, tt.want, refs)
		})
	}
}

func TestLogsEmptyCatalog(t *testing.T) {
	r, _, _ := newTestResolver(t, nil)
	refs, err := r.Logs(t.Context(), Flags{})
	require.NoError(t, err)
	assert.Empty(t, refs)
}

func TestHistoryForExcludesTrimmedEpochs(t *testing.T) {
	r1 := topo.EpochRecord{Since: 1, Until: 4, NodeSet: []nodes.ShardID{shard(0, 0), shard(1, 0)}, Replication: node2}
	r2 := topo.EpochRecord{Since: 5, Until: 9, NodeSet: []nodes.ShardID{shard(1, 0), shard(2, 0)}, Replication: node2}
	r3 := topo.EpochRecord{Since: 10, Until: topo.EpochMax, NodeSet: []nodes.ShardID{shard(2, 0), shard(3, 0)}, Replication: node2}
	r, ls, _ := newTestResolver(t, map[topo.LogID][]topo.EpochRecord{7: {r1, r2, r3}})
	ctx := t.Context()

	history, err := r.HistoryFor(ctx, nil, RefFor(7))
	require.NoError(t, err)
	assert.Equal(t, []topo.EpochRecord{r1, r2, r3}, history)

	require.NoError(t, ls.SetTrimPoint(ctx, 7, 5))
	history, err = r.HistoryFor(ctx, nil, RefFor(7))
	require.NoError(t, err)
	assert.Equal(t, []topo.EpochRecord{r2, r3}, history, "a record ending at the trim point keeps no data")

	require.NoError(t, ls.SetTrimPoint(ctx, 7, 10))
	history, err = r.HistoryFor(ctx, nil, RefFor(7))
	require.NoError(t, err)
	assert.Equal(t, []topo.EpochRecord{r3}, history)
}

func TestHistoryForLogWithoutEpochs(t *testing.T) {
	r, _, _ := newTestResolver(t, map[topo.LogID][]topo.EpochRecord{3: nil})
	history, err := r.HistoryFor(t.Context(), nil, RefFor(3))
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestHistoryForMetadataLog(t *testing.T) {
	metaRepl := replication.ReplicationProperty{replication.ScopeRack: 2}
	nc, err := nodes.New(1, []nodes.Node{
		{Index: 0, Location: "r.d.c.w.k0", Storage: &nodes.StorageRole{NumShards: 2, Capacity: 1, Metadata: true}},
		{Index: 1, Location: "r.d.c.w.k1", Storage: &nodes.StorageRole{NumShards: 2, Capacity: 1}},
		{Index: 2, Location: "r.d.c.w.k2", Storage: &nodes.StorageRole{NumShards: 1, Capacity: 1, Metadata: true}},
	}, metaRepl)
	require.NoError(t, err)

	r, _, f := newTestResolver(t, nil)
	history, err := r.HistoryFor(t.Context(), nc, MetadataRef())
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, topo.Epoch(0), history[0].Since)
	assert.Equal(t, []nodes.ShardID{shard(0, 0), shard(0, 1), shard(2, 0)}, history[0].NodeSet)
	assert.True(t, metaRepl.Equal(history[0].Replication))
	assert.Zero(t, f.Calls(memorytopo.Get), "the metadata log is not read from the store")

	assert.Empty(t, MetadataHistory(nil))
}

func TestHistoryForErrors(t *testing.T) {
	injected := errors.New("connection reset")

	tests := []struct {
		name  string
		setup func(t *testing.T, f *memorytopo.Factory)
		check func(error) bool
	}{
		{
			name:  "unknown log",
			setup: func(t *testing.T, f *memorytopo.Factory) {},
			check: mterrors.IsLookupError,
		},
		{
			name: "unreadable epochs",
			setup: func(t *testing.T, f *memorytopo.Factory) {
				conn, err := f.Create("/test", nil)
				require.NoError(t, err)
				_, err = conn.Update(t.Context(), "logs/9/Log", []byte("id: 9\nreplication: {node: 2}\n"), nil)
				require.NoError(t, err)
				_, err = conn.Update(t.Context(), "logs/9/Epochs", []byte("{not: [a list"), nil)
				require.NoError(t, err)
			},
			check: mterrors.IsLookupError,
		},
		{
			name: "store too slow",
			setup: func(t *testing.T, f *memorytopo.Factory) {
				f.SetLatency(memorytopo.Get, time.Hour)
			},
			check: mterrors.IsTimeout,
		},
		{
			name: "transient errors until the deadline",
			setup: func(t *testing.T, f *memorytopo.Factory) {
				f.AddOperationError(memorytopo.Get, `^logs/9/`, injected)
			},
			check: mterrors.IsTimeout,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, _, f := newTestResolver(t, nil)
			tt.setup(t, f)
			_, err := r.HistoryFor(t.Context(), nil, RefFor(9))
			require.Error(t, err)
			assert.True(t, tt.check(err), "unexpected error kind %s: %v", mterrors.KindName(err), err)
		})
	}
}

func TestHistoryForRetriesTransientErrors(t *testing.T) {
	rec := topo.EpochRecord{Since: 1, Until: 2, NodeSet: []nodes.ShardID{shard(0, 0)}, Replication: node2}
	r, _, f := newTestResolver(t, map[topo.LogID][]topo.EpochRecord{4: {rec}})

	f.AddOperationError(memorytopo.Get, `^logs/4/Epochs$`, topo.NewError(topo.ResourceExhausted, "logs/4/Epochs"))
	go func() {
		time.Sleep(20 * time.Millisecond)
		f.ClearOperationErrors()
	}()

	history, err := r.HistoryFor(t.Context(), nil, RefFor(4))
	require.NoError(t, err)
	assert.Equal(t, []topo.EpochRecord{rec}, history)
	assert.Greater(t, f.Calls(memorytopo.Get), 3, "the read was retried")
}

func TestHistoryForCancelled(t *testing.T) {
	r, _, f := newTestResolver(t, map[topo.LogID][]topo.EpochRecord{4: nil})
	f.SetLatency(memorytopo.Get, time.Hour)

	ctx, cancel := context.WithCancel(t.Context())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	_, err := r.HistoryFor(ctx, nil, RefFor(4))
	assert.True(t, mterrors.IsCancelled(err), "got %v", err)
}

func TestLogsStoreFailure(t *testing.T) {
	r, _, f := newTestResolver(t, nil)
	f.SetLatency(memorytopo.List, time.Hour)

	ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
	defer cancel()
	_, err := r.Logs(ctx, Flags{})
	assert.True(t, mterrors.IsTimeout(err), "got %v", err)
}

func TestIsTransient(t *testing.T) {
	assert.True(t, isTransient(errors.New("connection reset")))
	assert.True(t, isTransient(topo.NewError(topo.ResourceExhausted, "x")))
	assert.True(t, isTransient(topo.NewError(topo.Timeout, "x")))
	assert.False(t, isTransient(topo.NewError(topo.NoNode, "x")))
	assert.False(t, isTransient(&topo.DecodeError{Path: "x", Err: errors.New("bad")}))
	assert.False(t, isTransient(context.Canceled))
}
