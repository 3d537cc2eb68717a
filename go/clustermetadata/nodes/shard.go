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

package nodes

import (
	"cmp"
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// NodeIndex identifies a node in the nodes configuration.
type NodeIndex int

// MaxNodeIndex is the largest valid node index.
const MaxNodeIndex NodeIndex = 1<<16 - 1

// ShardIndex identifies a shard within a node.
type ShardIndex int

// AllShards stands for every shard on a node when used in a target set.
const AllShards ShardIndex = -1

// ShardID identifies a storage shard. It is a value type and compares with ==.
type ShardID struct {
	Node  NodeIndex
	Shard ShardIndex
}

// String renders the shard as N<node>:S<shard>, or N<node> for AllShards.
func (s ShardID) String() string {
	if s.Shard == AllShards {
		return fmt.Sprintf("N%d", s.Node)
	}
	return fmt.Sprintf("N%d:S%d", s.Node, s.Shard)
}

// ParseShardID parses "N1:S0", "1:0", "N1" or "1". A shard ID without a
// shard part refers to all shards of the node.
func ParseShardID(s string) (ShardID, error) {
	nodePart, shardPart, hasShard := strings.Cut(strings.TrimSpace(s), ":")
	node, err := parseIndex(nodePart, "N")
	if err != nil {
		return ShardID{}, fmt.Errorf("invalid shard %q: %w", s, err)
	}
	if node < 0 || NodeIndex(node) > MaxNodeIndex {
		return ShardID{}, fmt.Errorf("invalid shard %q: node index out of range", s)
	}
	id := ShardID{Node: NodeIndex(node), Shard: AllShards}
	if !hasShard {
		return id, nil
	}
	shard, err := parseIndex(shardPart, "S")
	if err != nil {
		return ShardID{}, fmt.Errorf("invalid shard %q: %w", s, err)
	}
	if shard < 0 {
		return ShardID{}, fmt.Errorf("invalid shard %q: negative shard index", s)
	}
	id.Shard = ShardIndex(shard)
	return id, nil
}

// ParseShardIDs parses a comma separated list of shard IDs.
func ParseShardIDs(s string) ([]ShardID, error) {
	var out []ShardID
	for part := range strings.SplitSeq(s, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		id, err := ParseShardID(part)
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}

func parseIndex(s, prefix string) (int, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(strings.TrimPrefix(s, prefix), strings.ToLower(prefix))
	return strconv.Atoi(s)
}

// MarshalText implements encoding.TextMarshaler.
func (s ShardID) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *ShardID) UnmarshalText(text []byte) error {
	id, err := ParseShardID(string(text))
	if err != nil {
		return err
	}
	*s = id
	return nil
}

// MarshalYAML writes the shard in its string form.
func (s ShardID) MarshalYAML() (any, error) {
	return s.String(), nil
}

// UnmarshalYAML reads the shard from its string form.
func (s *ShardID) UnmarshalYAML(unmarshal func(any) error) error {
	var raw string
	if err := unmarshal(&raw); err != nil {
		return err
	}
	return s.UnmarshalText([]byte(raw))
}

// CompareShards orders shards by node, then shard index.
func CompareShards(a, b ShardID) int {
	if c := cmp.Compare(a.Node, b.Node); c != 0 {
		return c
	}
	return cmp.Compare(a.Shard, b.Shard)
}

// SortShards sorts shards in place and drops duplicates.
func SortShards(shards []ShardID) []ShardID {
	slices.SortFunc(shards, CompareShards)
	return slices.Compact(shards)
}

// ShardSet is a set of shards.
type ShardSet map[ShardID]struct{}

// NewShardSet builds a set from the given shards.
func NewShardSet(shards ...ShardID) ShardSet {
	set := make(ShardSet, len(shards))
	for _, s := range shards {
		set[s] = struct{}{}
	}
	return set
}

// Contains reports whether s is in the set.
func (set ShardSet) Contains(s ShardID) bool {
	_, ok := set[s]
	return ok
}

// ContainsNode reports whether any shard of node is in the set.
func (set ShardSet) ContainsNode(node NodeIndex) bool {
	for s := range set {
		if s.Node == node {
			return true
		}
	}
	return false
}

// Sorted returns the members in shard order.
func (set ShardSet) Sorted() []ShardID {
	out := make([]ShardID, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	slices.SortFunc(out, CompareShards)
	return out
}
