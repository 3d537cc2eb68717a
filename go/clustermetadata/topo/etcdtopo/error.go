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
	"errors"
	"strconv"

	"go.etcd.io/etcd/api/v3/v3rpc/rpctypes"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/multigres/logsafety/go/clustermetadata/topo"
	"github.com/multigres/logsafety/go/mterrors"
)

// EtcdVersion is the etcd mod revision of a key.
type EtcdVersion int64

var _ topo.Version = EtcdVersion(0)

func (v EtcdVersion) String() string {
	return strconv.FormatInt(int64(v), 10)
}

// convertError maps etcd client errors to topo errors. Other gRPC status
// errors become mterrors errors with the same code; anything else is
// returned unchanged.
func convertError(err error, nodePath string) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, context.Canceled):
		return topo.NewError(topo.Interrupted, nodePath)
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, rpctypes.ErrTimeout),
		errors.Is(err, rpctypes.ErrTimeoutDueToLeaderFail),
		errors.Is(err, rpctypes.ErrTimeoutDueToConnectionLost):
		return topo.NewError(topo.Timeout, nodePath)
	case errors.Is(err, rpctypes.ErrTooManyRequests):
		return topo.NewError(topo.ResourceExhausted, nodePath)
	case errors.Is(err, rpctypes.ErrRequestTooLarge):
		return topo.NewError(topo.BadInput, nodePath)
	}

	if s, ok := status.FromError(err); ok {
		switch s.Code() {
		case codes.Canceled:
			return topo.NewError(topo.Interrupted, nodePath)
		case codes.DeadlineExceeded:
			return topo.NewError(topo.Timeout, nodePath)
		case codes.ResourceExhausted:
			return topo.NewError(topo.ResourceExhausted, nodePath)
		case codes.Unavailable:
			return topo.NewError(topo.Unavailable, nodePath)
		}
		return mterrors.Wrapf(mterrors.FromGRPC(err), "etcd request for %s", nodePath)
	}
	return err
}
