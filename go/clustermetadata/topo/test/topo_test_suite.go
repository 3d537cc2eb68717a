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

// Package test contains a test suite that every topo.Conn implementation
// runs to check it honors the Conn contract and supports the LogStore.
package test

import (
	"context"
	"slices"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/multigres/logsafety/go/clustermetadata/nodes"
	"github.com/multigres/logsafety/go/clustermetadata/topo"
	"github.com/multigres/logsafety/go/safety/replication"
)

// TopoServerTestSuite runs every check against fresh Conns from factory.
// Checks named in ignoreList are skipped.
func TopoServerTestSuite(t *testing.T, ctx context.Context, factory func() topo.Conn, ignoreList []string) {
	checks := []struct {
		name string
		fn   func(*testing.T, context.Context, topo.Conn)
	}{
		{"checkFile", checkFile},
		{"checkList", checkList},
		{"checkLogStore", checkLogStore},
		{"checkConcurrentAppend", checkConcurrentAppend},
	}
	for _, c := range checks {
		if slices.Contains(ignoreList, c.name) {
			t.Logf("=== ignoring test %s", c.name)
			continue
		}
		t.Run(c.name, func(t *testing.T) {
			conn := factory()
			defer conn.Close()
			c.fn(t, ctx, conn)
		})
	}
}

func checkFile(t *testing.T, ctx context.Context, conn topo.Conn) {
	_, _, err := conn.Get(ctx, "myfile")
	require.True(t, topo.IsErrType(err, topo.NoNode), "Get on missing file: %v", err)

	v1, err := conn.Create(ctx, "myfile", []byte("a"))
	require.NoError(t, err)

	_, err = conn.Create(ctx, "myfile", []byte("b"))
	require.True(t, topo.IsErrType(err, topo.NodeExists), "second Create: %v", err)

	contents, version, err := conn.Get(ctx, "myfile")
	require.NoError(t, err)
	assert.Equal(t, "a", string(contents))
	assert.Equal(t, v1.String(), version.String())

	v2, err := conn.Update(ctx, "myfile", []byte("b"), v1)
	require.NoError(t, err)
	assert.NotEqual(t, v1.String(), v2.String())

	_, err = conn.Update(ctx, "myfile", []byte("c"), v1)
	require.True(t, topo.IsErrType(err, topo.BadVersion), "stale Update: %v", err)

	_, err = conn.Update(ctx, "myfile", []byte("c"), nil)
	require.NoError(t, err)
	contents, _, err = conn.Get(ctx, "myfile")
	require.NoError(t, err)
	assert.Equal(t, "c", string(contents))

	err = conn.Delete(ctx, "myfile", v2)
	require.True(t, topo.IsErrType(err, topo.BadVersion), "stale Delete: %v", err)

	require.NoError(t, conn.Delete(ctx, "myfile", nil))
	err = conn.Delete(ctx, "myfile", nil)
	require.True(t, topo.IsErrType(err, topo.NoNode), "Delete of missing file: %v", err)
}

func checkList(t *testing.T, ctx context.Context, conn topo.Conn) {
	_, err := conn.List(ctx, "dir/")
	require.True(t, topo.IsErrType(err, topo.NoNode), "List of empty prefix: %v", err)

	for _, p := range []string{"dir/a", "dir/b/c", "dirx/d"} {
		_, err := conn.Create(ctx, p, []byte(p))
		require.NoError(t, err)
	}
	entries, err := conn.List(ctx, "dir/")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	for _, e := range entries {
		assert.NotNil(t, e.Version)
		assert.Contains(t, []string{"dir/a", "dir/b/c"}, string(e.Value))
	}
}

func record(since, until topo.Epoch, shards ...nodes.ShardID) topo.EpochRecord {
	return topo.EpochRecord{
		Since:       since,
		Until:       until,
		NodeSet:     shards,
		Replication: replication.ReplicationProperty{replication.ScopeNode: 2},
	}
}

func checkLogStore(t *testing.T, ctx context.Context, conn topo.Conn) {
	ls := topo.NewLogStore(conn, nil)

	ids, err := ls.ListLogIDs(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)

	_, _, err = ls.GetLog(ctx, 7)
	require.True(t, topo.IsErrType(err, topo.NoNode))

	for _, id := range []topo.LogID{7, 3, 12} {
		require.NoError(t, ls.PutLog(ctx, &topo.LogConfig{
			ID:          id,
			Name:        "log-" + id.String(),
			Replication: replication.ReplicationProperty{replication.ScopeNode: 2},
		}))
	}
	ids, err = ls.ListLogIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []topo.LogID{3, 7, 12}, ids)

	cfg, _, err := ls.GetLog(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, "log-7", cfg.Name)

	err = ls.PutLog(ctx, &topo.LogConfig{ID: 9})
	require.True(t, topo.IsErrType(err, topo.BadInput), "empty replication: %v", err)

	// Epoch history.
	epochs, err := ls.GetEpochs(ctx, 7)
	require.NoError(t, err)
	assert.Empty(t, epochs)

	r1 := record(1, 4, nodes.ShardID{Node: 0, Shard: 0}, nodes.ShardID{Node: 1, Shard: 0})
	r2 := record(5, topo.EpochMax, nodes.ShardID{Node: 1, Shard: 0}, nodes.ShardID{Node: 2, Shard: 0})
	r2.Margin = replication.SafetyMargin{replication.ScopeNode: 1}
	require.NoError(t, ls.AppendEpoch(ctx, 7, r1))
	require.NoError(t, ls.AppendEpoch(ctx, 7, r2))

	epochs, err = ls.GetEpochs(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, []topo.EpochRecord{r1, r2}, epochs)

	err = ls.AppendEpoch(ctx, 7, record(3, 6, nodes.ShardID{Node: 0, Shard: 0}))
	require.True(t, topo.IsErrType(err, topo.BadInput), "overlapping append: %v", err)

	err = ls.AppendEpoch(ctx, 7, record(6, 2, nodes.ShardID{Node: 0, Shard: 0}))
	require.True(t, topo.IsErrType(err, topo.BadInput), "inverted range: %v", err)

	err = ls.AppendEpoch(ctx, 99, r1)
	require.True(t, topo.IsErrType(err, topo.NoNode), "append to unknown log: %v", err)

	// Trim points.
	tp, err := ls.GetTrimPoint(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, topo.Epoch(0), tp)

	require.NoError(t, ls.SetTrimPoint(ctx, 7, 5))
	tp, err = ls.GetTrimPoint(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, topo.Epoch(5), tp)

	err = ls.SetTrimPoint(ctx, 7, 2)
	require.True(t, topo.IsErrType(err, topo.BadInput), "trim moving back: %v", err)

	// Deletion.
	require.NoError(t, ls.DeleteLog(ctx, 7))
	_, _, err = ls.GetLog(ctx, 7)
	require.True(t, topo.IsErrType(err, topo.NoNode))
	epochs, err = ls.GetEpochs(ctx, 7)
	require.NoError(t, err)
	assert.Empty(t, epochs)
	require.True(t, topo.IsErrType(ls.DeleteLog(ctx, 7), topo.NoNode))
}

func checkConcurrentAppend(t *testing.T, ctx context.Context, conn topo.Conn) {
	ls := topo.NewLogStore(conn, nil)
	require.NoError(t, ls.PutLog(ctx, &topo.LogConfig{
		ID:          1,
		Replication: replication.ReplicationProperty{replication.ScopeNode: 1},
	}))

	// Concurrent appends of disjoint ranges all land, in some order that
	// AppendEpoch accepts; appends that would precede a newer record fail.
	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := range n {
		wg.Go(func() {
			e := topo.Epoch(i * 10)
			errs[i] = ls.AppendEpoch(ctx, 1, record(e, e+9, nodes.ShardID{Node: 0, Shard: 0}))
		})
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.True(t, topo.IsErrType(err, topo.BadInput), "unexpected append error: %v", err)
	}
	epochs, err := ls.GetEpochs(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, epochs, succeeded)
	assert.GreaterOrEqual(t, succeeded, 1)
	assert.True(t, slices.IsSortedFunc(epochs, func(a, b topo.EpochRecord) int { return int(a.Since) - int(b.Since) }))
}
