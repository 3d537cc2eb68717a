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

package checker

import (
	"github.com/multigres/logsafety/go/clustermetadata/nodes"
	"github.com/multigres/logsafety/go/mterrors"
	"github.com/multigres/logsafety/go/safety/capacity"
	"github.com/multigres/logsafety/go/safety/feasibility"
	"github.com/multigres/logsafety/go/safety/replication"
)

// Request describes one proposed maintenance operation. The snapshots are
// read, never modified.
type Request struct {
	Nodes  *nodes.NodesConfiguration
	Status *nodes.ShardStatusMap

	// TargetShards may use nodes.AllShards to name every shard of a node.
	TargetShards     []nodes.ShardID
	TargetSequencers []nodes.NodeIndex
	TargetState      nodes.StorageState
	Margin           replication.SafetyMargin

	CheckMetadataLogs bool
	CheckInternalLogs bool
	CheckCapacity     bool

	// Percentages in [0, 100], used when CheckCapacity is set.
	MaxUnavailableStoragePct    float64
	MaxUnavailableSequencingPct float64
}

// Validate returns an InvalidConfiguration error for malformed requests.
func (r *Request) Validate() error {
	if r.Nodes == nil {
		return mterrors.NewInvalidConfiguration("request has no nodes configuration")
	}
	if len(r.TargetShards) == 0 && len(r.TargetSequencers) == 0 {
		return mterrors.NewInvalidConfiguration("request names no target shards or sequencers")
	}
	if len(r.TargetShards) > 0 && r.TargetState.AcceptsWrites() {
		return mterrors.NewInvalidConfiguration("target state must be READ_ONLY or DISABLED, got %v", r.TargetState)
	}
	if err := r.Margin.Validate(); err != nil {
		return err
	}
	if r.CheckCapacity {
		if err := capacity.ValidateThreshold("max unavailable storage capacity", r.MaxUnavailableStoragePct); err != nil {
			return err
		}
		if err := capacity.ValidateThreshold("max unavailable sequencing capacity", r.MaxUnavailableSequencingPct); err != nil {
			return err
		}
	}
	return nil
}

// transition resolves the target shards against the nodes configuration.
func (r *Request) transition() (feasibility.Transition, error) {
	shards, err := r.Nodes.ExpandShards(r.TargetShards)
	if err != nil {
		return feasibility.Transition{}, err
	}
	return feasibility.Transition{
		Targets:     nodes.NewShardSet(shards...),
		TargetState: r.TargetState,
	}, nil
}
