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

/*
Package nodes models the cluster topology snapshot the safety checker reads:
the node list with locations, storage and sequencer roles, and the per-shard
authoritative status map.

A NodesConfiguration is immutable once built with New. A Publisher holds the
single authoritative configuration and replaces it atomically; a Watcher
feeds the Publisher from a file on disk.
*/
package nodes

import (
	"math"
	"slices"

	"github.com/multigres/logsafety/go/mterrors"
	"github.com/multigres/logsafety/go/safety/replication"
)

// StorageRole describes a node that stores log data.
type StorageRole struct {
	// NumShards is the number of shards on the node.
	NumShards int `yaml:"num_shards"`
	// Capacity is the node's relative storage weight.
	Capacity float64 `yaml:"capacity"`
	// State is the current membership state of every shard on the node.
	State StorageState `yaml:"state"`
	// Metadata marks nodes that store the metadata log.
	Metadata bool `yaml:"metadata,omitempty"`
}

// SequencerRole describes a node that can run sequencers.
type SequencerRole struct {
	Enabled bool    `yaml:"enabled"`
	Weight  float64 `yaml:"weight"`
}

// Node is one entry of the nodes configuration.
type Node struct {
	Index     NodeIndex      `yaml:"index"`
	Name      string         `yaml:"name,omitempty"`
	Location  Location       `yaml:"location,omitempty"`
	Storage   *StorageRole   `yaml:"storage,omitempty"`
	Sequencer *SequencerRole `yaml:"sequencer,omitempty"`
}

// HasStorage reports whether the node has a storage role with shards.
func (n *Node) HasStorage() bool {
	return n.Storage != nil && n.Storage.NumShards > 0
}

// HasSequencer reports whether the node has a sequencer role, enabled or not.
func (n *Node) HasSequencer() bool {
	return n.Sequencer != nil
}

// NodesConfiguration is a versioned snapshot of the cluster membership.
type NodesConfiguration struct {
	version             uint64
	nodes               []Node
	byIndex             map[NodeIndex]int
	metadataReplication replication.ReplicationProperty
}

// New validates nodes and builds an immutable configuration. The nodes are
// copied and sorted by index.
func New(version uint64, nodes []Node, metadataReplication replication.ReplicationProperty) (*NodesConfiguration, error) {
	nc := &NodesConfiguration{
		version:             version,
		nodes:               make([]Node, len(nodes)),
		byIndex:             make(map[NodeIndex]int, len(nodes)),
		metadataReplication: metadataReplication.Clone(),
	}
	for i, n := range nodes {
		nc.nodes[i] = cloneNode(n)
	}
	slices.SortFunc(nc.nodes, func(a, b Node) int { return int(a.Index) - int(b.Index) })
	for i, n := range nc.nodes {
		if _, dup := nc.byIndex[n.Index]; dup {
			return nil, mterrors.NewInvalidConfiguration("node index %d appears twice", n.Index)
		}
		nc.byIndex[n.Index] = i
	}
	if err := nc.Validate(); err != nil {
		return nil, err
	}
	return nc, nil
}

func cloneNode(n Node) Node {
	if n.Storage != nil {
		s := *n.Storage
		n.Storage = &s
	}
	if n.Sequencer != nil {
		s := *n.Sequencer
		n.Sequencer = &s
	}
	return n
}

// Validate checks node indexes, locations, weights and the metadata
// replication property. Problems are InvalidConfiguration errors.
func (nc *NodesConfiguration) Validate() error {
	hasMetadata := false
	for i := range nc.nodes {
		n := &nc.nodes[i]
		if n.Index < 0 || n.Index > MaxNodeIndex {
			return mterrors.NewInvalidConfiguration("node index %d out of range", n.Index)
		}
		if err := n.Location.Validate(); err != nil {
			return mterrors.NewInvalidConfiguration("node %d: %v", n.Index, err)
		}
		if s := n.Storage; s != nil {
			if s.NumShards < 0 {
				return mterrors.NewInvalidConfiguration("node %d has negative shard count %d", n.Index, s.NumShards)
			}
			if err := checkWeight(s.Capacity); err != nil {
				return mterrors.NewInvalidConfiguration("node %d storage capacity: %v", n.Index, err)
			}
			hasMetadata = hasMetadata || (s.Metadata && s.NumShards > 0)
		}
		if s := n.Sequencer; s != nil {
			if err := checkWeight(s.Weight); err != nil {
				return mterrors.NewInvalidConfiguration("node %d sequencer weight: %v", n.Index, err)
			}
		}
	}
	if hasMetadata {
		if err := nc.metadataReplication.Validate(); err != nil {
			return mterrors.Wrap(err, "metadata replication")
		}
	}
	return nil
}

func checkWeight(w float64) error {
	switch {
	case math.IsNaN(w) || math.IsInf(w, 0):
		return mterrors.NewInvalidConfiguration("weight %v is not a finite number", w)
	case w < 0:
		return mterrors.NewInvalidConfiguration("weight %v is negative", w)
	}
	return nil
}

// Version returns the configuration version.
func (nc *NodesConfiguration) Version() uint64 {
	return nc.version
}

// MetadataReplication returns the replication property of the metadata log.
func (nc *NodesConfiguration) MetadataReplication() replication.ReplicationProperty {
	return nc.metadataReplication.Clone()
}

// Nodes returns the nodes ordered by index. The caller must not modify them.
func (nc *NodesConfiguration) Nodes() []Node {
	return nc.nodes
}

// Node returns the node with the given index.
func (nc *NodesConfiguration) Node(idx NodeIndex) (*Node, bool) {
	i, ok := nc.byIndex[idx]
	if !ok {
		return nil, false
	}
	return &nc.nodes[i], true
}

// DomainAt implements replication.DomainLocator.
func (nc *NodesConfiguration) DomainAt(node int, scope replication.LocationScope) (string, bool) {
	n, ok := nc.Node(NodeIndex(node))
	if !ok {
		return "", false
	}
	return n.Location.DomainAt(scope), true
}

// ShardsOf lists every shard of a storage node.
func (nc *NodesConfiguration) ShardsOf(idx NodeIndex) []ShardID {
	n, ok := nc.Node(idx)
	if !ok || !n.HasStorage() {
		return nil
	}
	out := make([]ShardID, n.Storage.NumShards)
	for i := range out {
		out[i] = ShardID{Node: idx, Shard: ShardIndex(i)}
	}
	return out
}

// StorageShards lists every shard in the cluster.
func (nc *NodesConfiguration) StorageShards() []ShardID {
	var out []ShardID
	for _, n := range nc.nodes {
		out = append(out, nc.ShardsOf(n.Index)...)
	}
	return out
}

// MetadataShards lists every shard of the nodes storing the metadata log.
func (nc *NodesConfiguration) MetadataShards() []ShardID {
	var out []ShardID
	for _, n := range nc.nodes {
		if n.Storage != nil && n.Storage.Metadata {
			out = append(out, nc.ShardsOf(n.Index)...)
		}
	}
	return out
}

// ExpandShards resolves a target set against the configuration: AllShards
// entries expand to every shard of their node and duplicates are dropped.
// Unknown nodes and out of range shards are LookupErrors.
func (nc *NodesConfiguration) ExpandShards(targets []ShardID) ([]ShardID, error) {
	var out []ShardID
	for _, t := range targets {
		n, ok := nc.Node(t.Node)
		if !ok {
			return nil, mterrors.NewLookupError("shard %v: unknown node %d", t, t.Node)
		}
		if !n.HasStorage() {
			return nil, mterrors.NewLookupError("shard %v: node %d has no storage role", t, t.Node)
		}
		if t.Shard == AllShards {
			out = append(out, nc.ShardsOf(t.Node)...)
			continue
		}
		if t.Shard < 0 || int(t.Shard) >= n.Storage.NumShards {
			return nil, mterrors.NewLookupError("shard %v: node %d has %d shards", t, t.Node, n.Storage.NumShards)
		}
		out = append(out, t)
	}
	return SortShards(out), nil
}

// MembershipState returns the current membership state of a shard. Shards
// of unknown or non-storage nodes are reported as DISABLED.
func (nc *NodesConfiguration) MembershipState(s ShardID) StorageState {
	n, ok := nc.Node(s.Node)
	if !ok || !n.HasStorage() || int(s.Shard) >= n.Storage.NumShards {
		return StorageStateDisabled
	}
	return n.Storage.State
}
