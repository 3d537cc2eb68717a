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

// Package feasibility decides, for one epoch record of a log, whether the
// record's replication requirement still holds once a proposed transition
// is applied on top of the shards that are already unavailable.
//
// A shard blocks writes when the transition moves it to READ_ONLY or
// DISABLED, when it is already READ_ONLY or DISABLED in the nodes
// configuration, or when its authoritative status is UNAVAILABLE or
// AUTHORITATIVE_EMPTY. A shard is lost for reads when the transition
// disables it, when it is already DISABLED, or when its status says its
// data is gone.
package feasibility

import (
	"github.com/multigres/logsafety/go/clustermetadata/nodes"
	"github.com/multigres/logsafety/go/clustermetadata/topo"
	"github.com/multigres/logsafety/go/mterrors"
	"github.com/multigres/logsafety/go/safety/impact"
	"github.com/multigres/logsafety/go/safety/replication"
)

// Transition is the proposed change: every shard in Targets moves to
// TargetState.
type Transition struct {
	Targets     nodes.ShardSet
	TargetState nodes.StorageState
}

// Rebuilds reports whether the transition disables shards, which starts
// rebuilding their data elsewhere.
func (t Transition) Rebuilds() bool {
	return t.TargetState == nodes.StorageStateDisabled && len(t.Targets) > 0
}

// Touches reports whether any shard of nodeSet is a target.
func (t Transition) Touches(nodeSet []nodes.ShardID) bool {
	for _, s := range nodeSet {
		if t.Targets.Contains(s) {
			return true
		}
	}
	return false
}

// Result is the verdict for one record.
type Result struct {
	Kinds impact.Kinds
	// Requirement is the replication property with margins applied.
	Requirement replication.ReplicationProperty
	// WriteBlocking and FullyLost are the nodeset shards in each class.
	WriteBlocking []nodes.ShardID
	FullyLost     []nodes.ShardID
}

// Evaluator checks records against one transition and one cluster
// snapshot. It holds no mutable state and is safe for concurrent use.
type Evaluator struct {
	nc         *nodes.NodesConfiguration
	status     *nodes.ShardStatusMap
	transition Transition
	margin     replication.SafetyMargin
}

// NewEvaluator returns an Evaluator. A nil status means every shard is
// fully authoritative.
func NewEvaluator(nc *nodes.NodesConfiguration, status *nodes.ShardStatusMap, transition Transition, margin replication.SafetyMargin) *Evaluator {
	return &Evaluator{
		nc:         nc,
		status:     status,
		transition: transition,
		margin:     margin,
	}
}

// Transition returns the transition being evaluated.
func (e *Evaluator) Transition() Transition {
	return e.transition
}

func (e *Evaluator) classify(s nodes.ShardID) (writeBlocking, fullyLost bool) {
	lost := e.status.Get(s).Lost()
	member := e.nc.MembershipState(s)
	target := e.transition.Targets.Contains(s)

	writeBlocking = lost || !member.AcceptsWrites() ||
		(target && !e.transition.TargetState.AcceptsWrites())
	fullyLost = lost || member == nodes.StorageStateDisabled ||
		(target && e.transition.TargetState == nodes.StorageStateDisabled)
	return writeBlocking, fullyLost
}

// Evaluate checks one record. The record's own margin is merged with the
// evaluator margin by taking the larger value per scope. A record with an
// empty or malformed replication property is an InvalidConfiguration
// error.
func (e *Evaluator) Evaluate(rec *topo.EpochRecord) (Result, error) {
	if err := rec.Replication.Validate(); err != nil {
		return Result{}, mterrors.Wrapf(err, "epochs [%d, %d]", rec.Since, rec.Until)
	}
	req := replication.EffectiveRequirement(rec.Replication, e.margin.Merge(rec.Margin))

	var (
		res             = Result{Requirement: req}
		writable, alive []nodes.NodeIndex
		seen            = make(map[nodes.ShardID]bool, len(rec.NodeSet))
	)
	for _, s := range rec.NodeSet {
		if seen[s] {
			continue
		}
		seen[s] = true

		blocking, lost := e.classify(s)
		if blocking {
			res.WriteBlocking = append(res.WriteBlocking, s)
		} else {
			writable = append(writable, s.Node)
		}
		if lost {
			res.FullyLost = append(res.FullyLost, s)
		} else {
			alive = append(alive, s.Node)
		}
	}

	rebuilds := e.transition.Rebuilds()
	coarsest, _ := req.Coarsest()
	for _, scope := range req.Scopes() {
		need := req[scope]
		if replication.CountDistinctAtScope(writable, scope, e.nc) < need {
			res.Kinds = res.Kinds.With(impact.WriteAvailabilityLoss)
		}
		if !rebuilds {
			continue
		}
		remainingForRead := replication.CountDistinctAtScope(alive, scope, e.nc)
		if scope == coarsest && remainingForRead == 0 {
			res.Kinds = res.Kinds.With(impact.ReadAvailabilityLoss)
		}
		if remainingForRead < need {
			res.Kinds = res.Kinds.With(impact.RebuildingStall)
		}
	}
	return res, nil
}
