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

package epochs

import (
	"fmt"

	"github.com/multigres/logsafety/go/clustermetadata/topo"
)

// LogCategory classifies a log for enumeration and reporting.
type LogCategory int

const (
	// Data logs hold user records.
	Data LogCategory = iota
	// Metadata is the log storing the epoch metadata of every other log.
	Metadata
	// Internal logs carry cluster state such as the config and event logs.
	Internal
)

func (c LogCategory) String() string {
	switch c {
	case Data:
		return "DATA"
	case Metadata:
		return "METADATA"
	case Internal:
		return "INTERNAL"
	}
	return fmt.Sprintf("LogCategory(%d)", int(c))
}

// MetadataLogID is the ID the metadata log is reported under.
const MetadataLogID topo.LogID = 0

// Well-known internal logs, at the top of the 62-bit log ID space.
const (
	ConfigLogSnapshots topo.LogID = 1<<62 - 4 + iota
	ConfigLogDeltas
	EventLogSnapshots
	EventLogDeltas
	MaintenanceLogSnapshots
	MaintenanceLogDeltas
)

var internalLogNames = map[topo.LogID]string{
	ConfigLogSnapshots:      "config_log_snapshots",
	ConfigLogDeltas:         "config_log_deltas",
	EventLogSnapshots:       "event_log_snapshots",
	EventLogDeltas:          "event_log_deltas",
	MaintenanceLogSnapshots: "maintenance_log_snapshots",
	MaintenanceLogDeltas:    "maintenance_log_deltas",
}

// IsInternal reports whether id is one of the well-known internal logs.
func IsInternal(id topo.LogID) bool {
	_, ok := internalLogNames[id]
	return ok
}

// InternalLogName returns the name of an internal log, or "" for any other
// ID.
func InternalLogName(id topo.LogID) string {
	return internalLogNames[id]
}

// LogRef names one log to examine.
type LogRef struct {
	ID       topo.LogID
	Category LogCategory
}

// RefFor classifies a catalog ID.
func RefFor(id topo.LogID) LogRef {
	if IsInternal(id) {
		return LogRef{ID: id, Category: Internal}
	}
	return LogRef{ID: id, Category: Data}
}

// MetadataRef is the reference of the metadata log.
func MetadataRef() LogRef {
	return LogRef{ID: MetadataLogID, Category: Metadata}
}

// IsInternalOrMetadata reports whether findings on the log count as
// internal logs being affected.
func (r LogRef) IsInternalOrMetadata() bool {
	return r.Category == Metadata || r.Category == Internal
}

func (r LogRef) String() string {
	switch r.Category {
	case Metadata:
		return "metadata log"
	case Internal:
		return fmt.Sprintf("internal log %v (%s)", r.ID, InternalLogName(r.ID))
	}
	return fmt.Sprintf("log %v", r.ID)
}
