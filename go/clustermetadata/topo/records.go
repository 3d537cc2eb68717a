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

package topo

import (
	"fmt"
	"math"
	"strconv"

	"github.com/multigres/logsafety/go/clustermetadata/nodes"
	"github.com/multigres/logsafety/go/safety/replication"
)

// LogID identifies a log.
type LogID uint64

func (id LogID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// ParseLogID parses a decimal log ID.
func ParseLogID(s string) (LogID, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid log id %q: %w", s, err)
	}
	return LogID(v), nil
}

// Epoch numbers a log's write history.
type Epoch uint32

// EpochMax marks an open-ended epoch range.
const EpochMax Epoch = math.MaxUint32

// LogConfig is the catalog entry of a log.
type LogConfig struct {
	ID          LogID                           `yaml:"id"`
	Name        string                          `yaml:"name,omitempty"`
	Replication replication.ReplicationProperty `yaml:"replication"`
}

// EpochRecord describes the placement of a log's records for the epochs
// Since through Until, inclusive.
type EpochRecord struct {
	Since       Epoch                           `yaml:"since"`
	Until       Epoch                           `yaml:"until"`
	NodeSet     []nodes.ShardID                 `yaml:"nodeset"`
	Replication replication.ReplicationProperty `yaml:"replication"`
	// Margin optionally raises the safety margin for this record.
	Margin replication.SafetyMargin `yaml:"margin,omitempty"`
}

// Validate checks the range is ordered, the nodeset names concrete shards,
// and the replication property is well formed.
func (r *EpochRecord) Validate() error {
	if r.Since > r.Until {
		return fmt.Errorf("epoch range [%d, %d] is inverted", r.Since, r.Until)
	}
	if len(r.NodeSet) == 0 {
		return fmt.Errorf("epochs [%d, %d] have an empty nodeset", r.Since, r.Until)
	}
	for _, s := range r.NodeSet {
		if s.Shard == nodes.AllShards {
			return fmt.Errorf("nodeset entry %v must name a shard", s)
		}
	}
	if err := r.Replication.Validate(); err != nil {
		return err
	}
	return r.Margin.Validate()
}

// Overlaps reports whether two records share an epoch.
func (r *EpochRecord) Overlaps(o *EpochRecord) bool {
	return r.Since <= o.Until && o.Since <= r.Until
}

// TrimPoint records that epochs strictly before Epoch hold no data.
type TrimPoint struct {
	Epoch Epoch `yaml:"epoch"`
}
