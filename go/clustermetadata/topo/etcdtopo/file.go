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

package etcdtopo

import (
	"context"
	"path"
	"strings"

	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/multigres/logsafety/go/clustermetadata/topo"
)

func (s *Server) nodePath(filePath string) string {
	return path.Join(s.root, filePath)
}

// Create implements topo.Conn.
func (s *Server) Create(ctx context.Context, filePath string, contents []byte) (topo.Version, error) {
	nodePath := s.nodePath(filePath)

	// A key that does not exist has version 0.
	txnresp, err := s.cli.Txn(ctx).
		If(clientv3.Compare(clientv3.Version(nodePath), "=", 0)).
		Then(clientv3.OpPut(nodePath, string(contents))).
		Commit()
	if err != nil {
		return nil, convertError(err, nodePath)
	}
	if !txnresp.Succeeded {
		return nil, topo.NewError(topo.NodeExists, nodePath)
	}
	return EtcdVersion(txnresp.Header.Revision), nil
}

// Update implements topo.Conn.
func (s *Server) Update(ctx context.Context, filePath string, contents []byte, version topo.Version) (topo.Version, error) {
	nodePath := s.nodePath(filePath)

	if version == nil {
		resp, err := s.cli.Put(ctx, nodePath, string(contents))
		if err != nil {
			return nil, convertError(err, nodePath)
		}
		return EtcdVersion(resp.Header.Revision), nil
	}

	txnresp, err := s.cli.Txn(ctx).
		If(clientv3.Compare(clientv3.ModRevision(nodePath), "=", int64(version.(EtcdVersion)))).
		Then(clientv3.OpPut(nodePath, string(contents))).
		Commit()
	if err != nil {
		return nil, convertError(err, nodePath)
	}
	if !txnresp.Succeeded {
		return nil, topo.NewError(topo.BadVersion, nodePath)
	}
	return EtcdVersion(txnresp.Header.Revision), nil
}

// Get implements topo.Conn.
func (s *Server) Get(ctx context.Context, filePath string) ([]byte, topo.Version, error) {
	nodePath := s.nodePath(filePath)

	resp, err := s.cli.Get(ctx, nodePath)
	if err != nil {
		return nil, nil, convertError(err, nodePath)
	}
	if len(resp.Kvs) != 1 {
		return nil, nil, topo.NewError(topo.NoNode, nodePath)
	}
	return resp.Kvs[0].Value, EtcdVersion(resp.Kvs[0].ModRevision), nil
}

// List implements topo.Conn.
func (s *Server) List(ctx context.Context, filePathPrefix string) ([]topo.KVInfo, error) {
	prefix := s.nodePath(filePathPrefix)
	// path.Join drops the trailing slash, which would widen "dir/" to
	// every key starting with "dir".
	if strings.HasSuffix(filePathPrefix, "/") {
		prefix += "/"
	}

	resp, err := s.cli.Get(ctx, prefix, clientv3.WithPrefix(), clientv3.WithSort(clientv3.SortByKey, clientv3.SortAscend))
	if err != nil {
		return nil, convertError(err, prefix)
	}
	if len(resp.Kvs) == 0 {
		return nil, topo.NewError(topo.NoNode, prefix)
	}
	results := make([]topo.KVInfo, len(resp.Kvs))
	for i, kv := range resp.Kvs {
		results[i] = topo.KVInfo{
			Key:     kv.Key,
			Value:   kv.Value,
			Version: EtcdVersion(kv.ModRevision),
		}
	}
	return results, nil
}

// Delete implements topo.Conn.
func (s *Server) Delete(ctx context.Context, filePath string, version topo.Version) error {
	nodePath := s.nodePath(filePath)

	if version == nil {
		resp, err := s.cli.Delete(ctx, nodePath)
		if err != nil {
			return convertError(err, nodePath)
		}
		if resp.Deleted != 1 {
			return topo.NewError(topo.NoNode, nodePath)
		}
		return nil
	}

	// On a failed compare, read the key back to tell a missing file from a
	// version mismatch.
	txnresp, err := s.cli.Txn(ctx).
		If(clientv3.Compare(clientv3.ModRevision(nodePath), "=", int64(version.(EtcdVersion)))).
		Then(clientv3.OpDelete(nodePath)).
		Else(clientv3.OpGet(nodePath)).
		Commit()
	if err != nil {
		return convertError(err, nodePath)
	}
	if txnresp.Succeeded {
		return nil
	}
	if len(txnresp.Responses) > 0 && len(txnresp.Responses[0].GetResponseRange().Kvs) > 0 {
		return topo.NewError(topo.BadVersion, nodePath)
	}
	return topo.NewError(topo.NoNode, nodePath)
}
