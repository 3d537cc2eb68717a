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

package memorytopo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/multigres/logsafety/go/clustermetadata/topo"
	"github.com/multigres/logsafety/go/clustermetadata/topo/test"
	"github.com/multigres/logsafety/go/safety/replication"
)

func TestMemoryTopo(t *testing.T) {
	ctx := t.Context()
	test.TopoServerTestSuite(t, ctx, func() topo.Conn {
		conn, err := NewFactory().Create("/test", nil)
		require.NoError(t, err)
		return conn
	}, nil)
}

func TestRegistered(t *testing.T) {
	assert.Contains(t, topo.Implementations(), Implementation)
	conn, err := topo.OpenConn(Implementation, "/root", nil)
	require.NoError(t, err)
	require.NoError(t, conn.Close())

	_, err = topo.OpenConn("zookeeper", "/root", nil)
	assert.True(t, topo.IsErrType(err, topo.NoImplementation))
}

func TestSharedDataAcrossConns(t *testing.T) {
	ctx := t.Context()
	f := NewFactory()
	a, _ := f.Create("/r", nil)
	b, _ := f.Create("/r", nil)
	other, _ := f.Create("/other", nil)

	_, err := a.Create(ctx, "x", []byte("1"))
	require.NoError(t, err)

	contents, _, err := b.Get(ctx, "x")
	require.NoError(t, err)
	assert.Equal(t, "1", string(contents))

	_, _, err = other.Get(ctx, "x")
	assert.True(t, topo.IsErrType(err, topo.NoNode))
}

func TestOperationErrors(t *testing.T) {
	ctx := t.Context()
	ls, f := NewServerAndFactory("/test")
	require.NoError(t, ls.PutLog(ctx, &topo.LogConfig{
		ID:          1,
		Replication: replication.ReplicationProperty{replication.ScopeNode: 1},
	}))

	injected := errors.New("injected")
	f.AddOperationError(Get, `^logs/1/Epochs$`, injected)

	_, _, err := ls.GetLog(ctx, 1)
	require.NoError(t, err, "only the epochs file is affected")
	_, err = ls.GetEpochs(ctx, 1)
	assert.ErrorIs(t, err, injected)

	f.ClearOperationErrors()
	_, err = ls.GetEpochs(ctx, 1)
	assert.NoError(t, err)

	f.SetError(injected)
	_, err = ls.ListLogIDs(ctx)
	assert.ErrorIs(t, err, injected)
	f.SetError(nil)

	assert.Positive(t, f.Calls(Get))
	assert.Equal(t, 1, f.Calls(List))
}

func TestLatency(t *testing.T) {
	ls, f := NewServerAndFactory("/test")
	f.SetLatency(Get, time.Hour)

	ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
	defer cancel()
	_, _, err := ls.GetLog(ctx, 1)
	assert.True(t, topo.IsErrType(err, topo.Timeout), "got %v", err)

	cctx, ccancel := context.WithCancel(t.Context())
	ccancel()
	_, _, err = ls.GetLog(cctx, 1)
	assert.True(t, topo.IsErrType(err, topo.Interrupted), "got %v", err)
}

func TestClosedConn(t *testing.T) {
	conn, _ := NewFactory().Create("/", nil)
	require.NoError(t, conn.Close())
	_, _, err := conn.Get(t.Context(), "x")
	assert.True(t, topo.IsErrType(err, topo.Interrupted))
}
