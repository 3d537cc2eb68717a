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

// Package capacity computes the share of weighted storage and sequencing
// capacity a transition takes out of the cluster.
package capacity

import (
	"fmt"
	"math"

	"github.com/multigres/logsafety/go/clustermetadata/nodes"
	"github.com/multigres/logsafety/go/mterrors"
	"github.com/multigres/logsafety/go/safety/impact"
)

// Input is one capacity check.
type Input struct {
	Nodes  *nodes.NodesConfiguration
	Status *nodes.ShardStatusMap

	// TargetShards move to TargetState.
	TargetShards nodes.ShardSet
	TargetState  nodes.StorageState
	// TargetSequencers are nodes whose sequencer is being disabled.
	TargetSequencers []nodes.NodeIndex

	// Thresholds in percent. A loss strictly above the threshold is an
	// impact.
	MaxUnavailableStoragePct    float64
	MaxUnavailableSequencingPct float64
}

// Result holds the weights behind the verdict.
type Result struct {
	Kinds impact.Kinds

	TotalStorage    float64
	LostStorage     float64
	TotalSequencing float64
	LostSequencing  float64
}

func pct(lost, total float64) float64 {
	if total == 0 {
		return 0
	}
	return lost / total * 100
}

// StoragePct is the lost share of storage weight. It is 0 when no node
// stores data.
func (r Result) StoragePct() float64 {
	return pct(r.LostStorage, r.TotalStorage)
}

// SequencingPct is the lost share of sequencing weight. It is 0 when no
// node has a sequencer role.
func (r Result) SequencingPct() float64 {
	return pct(r.LostSequencing, r.TotalSequencing)
}

func (r Result) String() string {
	return fmt.Sprintf("storage %.2f%% lost (%g of %g), sequencing %.2f%% lost (%g of %g)",
		r.StoragePct(), r.LostStorage, r.TotalStorage,
		r.SequencingPct(), r.LostSequencing, r.TotalSequencing)
}

// ValidateThreshold checks a percentage lies in [0, 100].
func ValidateThreshold(name string, v float64) error {
	if math.IsNaN(v) || v < 0 || v > 100 {
		return mterrors.NewInvalidConfiguration("%s must be between 0 and 100, got %v", name, v)
	}
	return nil
}

// Check runs the capacity accounting. Weights were validated when the
// nodes configuration was built. Malformed thresholds are
// InvalidConfiguration errors; sequencer targets naming unknown nodes or
// nodes without a sequencer role are LookupErrors.
func Check(in Input) (Result, error) {
	if in.Nodes == nil {
		return Result{}, mterrors.NewInvalidConfiguration("capacity check needs a nodes configuration")
	}
	if err := ValidateThreshold("max unavailable storage capacity", in.MaxUnavailableStoragePct); err != nil {
		return Result{}, err
	}
	if err := ValidateThreshold("max unavailable sequencing capacity", in.MaxUnavailableSequencingPct); err != nil {
		return Result{}, err
	}

	seqTargets := make(map[nodes.NodeIndex]bool, len(in.TargetSequencers))
	for _, idx := range in.TargetSequencers {
		n, ok := in.Nodes.Node(idx)
		if !ok {
			return Result{}, mterrors.NewLookupError("sequencer target: unknown node %d", idx)
		}
		if !n.HasSequencer() {
			return Result{}, mterrors.NewLookupError("sequencer target: node %d has no sequencer role", idx)
		}
		seqTargets[idx] = true
	}

	var res Result
	for _, n := range in.Nodes.Nodes() {
		if n.HasStorage() {
			res.TotalStorage += n.Storage.Capacity
			if storageLost(&in, &n) {
				res.LostStorage += n.Storage.Capacity
			}
		}
		if n.HasSequencer() {
			res.TotalSequencing += n.Sequencer.Weight
			// Disabled sequencers are already lost.
			if seqTargets[n.Index] || !n.Sequencer.Enabled {
				res.LostSequencing += n.Sequencer.Weight
			}
		}
	}

	if res.StoragePct() > in.MaxUnavailableStoragePct {
		res.Kinds = res.Kinds.With(impact.StorageCapacityLoss)
	}
	if res.SequencingPct() > in.MaxUnavailableSequencingPct {
		res.Kinds = res.Kinds.With(impact.SequencingCapacityLoss)
	}
	return res, nil
}

// storageLost reports whether a storage node's whole weight counts as lost:
// any of its shards is a target leaving READ_WRITE, is not fully
// authoritative, or the node is not READ_WRITE already.
func storageLost(in *Input, n *nodes.Node) bool {
	if !n.Storage.State.AcceptsWrites() {
		return true
	}
	targeted := in.TargetState != nodes.StorageStateReadWrite
	for _, s := range in.Nodes.ShardsOf(n.Index) {
		if targeted && in.TargetShards.Contains(s) {
			return true
		}
		if in.Status.Get(s) != nodes.FullyAuthoritative {
			return true
		}
	}
	return false
}
