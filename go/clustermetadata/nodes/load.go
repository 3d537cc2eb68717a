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
	"bytes"
	"fmt"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/multigres/logsafety/go/mterrors"
	"github.com/multigres/logsafety/go/safety/replication"
)

// nodesFile is the on-disk form of a NodesConfiguration.
type nodesFile struct {
	Version             uint64                          `yaml:"version"`
	MetadataReplication replication.ReplicationProperty `yaml:"metadata_replication,omitempty"`
	Nodes               []Node                          `yaml:"nodes"`
}

// statusFile is the on-disk form of a ShardStatusMap.
type statusFile struct {
	Version uint64        `yaml:"version"`
	Shards  []shardStatus `yaml:"shards,omitempty"`
}

type shardStatus struct {
	Shard  ShardID             `yaml:"shard"`
	Status AuthoritativeStatus `yaml:"status"`
}

// ParseNodesConfiguration decodes a YAML nodes configuration.
func ParseNodesConfiguration(data []byte) (*NodesConfiguration, error) {
	var f nodesFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, mterrors.NewInvalidConfiguration("cannot decode nodes configuration: %v", err)
	}
	return New(f.Version, f.Nodes, f.MetadataReplication)
}

// MarshalNodesConfiguration encodes nc in the format ParseNodesConfiguration
// reads.
func MarshalNodesConfiguration(nc *NodesConfiguration) ([]byte, error) {
	f := nodesFile{
		Version:             nc.version,
		MetadataReplication: nc.metadataReplication,
		Nodes:               nc.nodes,
	}
	return yaml.Marshal(&f)
}

// LoadNodesConfiguration reads a YAML nodes configuration from fs.
func LoadNodesConfiguration(fs afero.Fs, path string) (*NodesConfiguration, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("reading nodes configuration: %w", err)
	}
	nc, err := ParseNodesConfiguration(data)
	if err != nil {
		return nil, mterrors.Wrapf(err, "nodes configuration %s", path)
	}
	return nc, nil
}

// ParseShardStatusMap decodes a YAML shard status snapshot. Shards listed
// twice are rejected.
func ParseShardStatusMap(data []byte) (*ShardStatusMap, error) {
	var f statusFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, mterrors.NewInvalidConfiguration("cannot decode shard status map: %v", err)
	}
	statuses := make(map[ShardID]AuthoritativeStatus, len(f.Shards))
	for _, e := range f.Shards {
		if e.Shard.Shard == AllShards {
			return nil, mterrors.NewInvalidConfiguration("shard status for %v must name a shard", e.Shard)
		}
		if _, dup := statuses[e.Shard]; dup {
			return nil, mterrors.NewInvalidConfiguration("shard %v listed twice", e.Shard)
		}
		statuses[e.Shard] = e.Status
	}
	return NewShardStatusMap(f.Version, statuses), nil
}

// LoadShardStatusMap reads a YAML shard status snapshot from fs.
func LoadShardStatusMap(fs afero.Fs, path string) (*ShardStatusMap, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("reading shard status map: %w", err)
	}
	m, err := ParseShardStatusMap(data)
	if err != nil {
		return nil, mterrors.Wrapf(err, "shard status map %s", path)
	}
	return m, nil
}
