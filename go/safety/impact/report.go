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

// Package impact holds the result of a safety check and its rendering.
package impact

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/multigres/logsafety/go/clustermetadata/topo"
	"github.com/multigres/logsafety/go/mterrors"
	"github.com/multigres/logsafety/go/safety/epochs"
	"github.com/multigres/logsafety/go/safety/replication"
)

// PerLogImpact is the finding for one epoch record of one log.
type PerLogImpact struct {
	Log      topo.LogID
	Category epochs.LogCategory
	// Epoch is the first epoch of the affected record.
	Epoch topo.Epoch
	// Replication is the replication property the record was checked
	// against, margin included.
	Replication replication.ReplicationProperty
	Kinds       Kinds
}

// LogFailure is a log that could not be checked.
type LogFailure struct {
	Log      topo.LogID
	Category epochs.LogCategory
	Err      error
}

// Report is the result of one safety check. It is not modified after the
// check returns it.
type Report struct {
	// Kinds is the union of every per-log and capacity finding.
	Kinds Kinds
	// InternalLogsAffected is set only when at least one metadata or
	// internal log was examined.
	InternalLogsAffected *bool
	// Logs lists findings in discovery order.
	Logs []PerLogImpact
	// Failures lists logs that could not be checked. It is only populated
	// when abort-on-error is off.
	Failures []LogFailure
	// Aborted is set when evaluation stopped early on the first finding.
	Aborted bool
	// LogsChecked counts logs whose evaluation completed.
	LogsChecked int
}

// Safe reports whether the check found no impact and every log was
// checked.
func (r *Report) Safe() bool {
	return r.Kinds.Empty() && len(r.Failures) == 0
}

// AffectedLogs returns the distinct log IDs with findings, in discovery
// order.
func (r *Report) AffectedLogs() []topo.LogID {
	seen := make(map[topo.LogID]bool, len(r.Logs))
	var out []topo.LogID
	for _, l := range r.Logs {
		if !seen[l.Log] {
			seen[l.Log] = true
			out = append(out, l.Log)
		}
	}
	return out
}

func logName(id topo.LogID, c epochs.LogCategory) string {
	return epochs.LogRef{ID: id, Category: c}.String()
}

// String renders a one-line summary.
func (r *Report) String() string {
	var b strings.Builder
	b.WriteString(r.Kinds.String())
	if len(r.Logs) > 0 {
		fmt.Fprintf(&b, " on %d log(s)", len(r.AffectedLogs()))
	}
	if len(r.Failures) > 0 {
		fmt.Fprintf(&b, ", %d log(s) not checked", len(r.Failures))
	}
	return b.String()
}

// WriteText renders the report for operators.
func (r *Report) WriteText(w io.Writer) error {
	verdict := "SAFE"
	if !r.Safe() {
		verdict = "UNSAFE"
	}
	fmt.Fprintf(w, "Verdict: %s\n", verdict)
	fmt.Fprintf(w, "Impact: %s\n", r.Kinds)
	if r.InternalLogsAffected != nil {
		fmt.Fprintf(w, "Internal logs affected: %t\n", *r.InternalLogsAffected)
	}
	fmt.Fprintf(w, "Logs checked: %d\n", r.LogsChecked)
	if r.Aborted {
		fmt.Fprintln(w, "Evaluation stopped at the first finding; the impact may be under-reported.")
	}

	if len(r.Logs) > 0 {
		fmt.Fprintln(w, "\nAffected logs:")
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "  LOG\tEPOCH\tREPLICATION\tIMPACT")
		for _, l := range r.Logs {
			fmt.Fprintf(tw, "  %s\t%d\t%s\t%s\n", logName(l.Log, l.Category), l.Epoch, l.Replication, l.Kinds)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}

	if len(r.Failures) > 0 {
		fmt.Fprintln(w, "\nLogs not checked:")
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "  LOG\tERROR\tDETAIL")
		for _, f := range r.Failures {
			fmt.Fprintf(tw, "  %s\t%s\t%v\n", logName(f.Log, f.Category), mterrors.KindName(f.Err), f.Err)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}
	return nil
}

type perLogJSON struct {
	Log         topo.LogID `json:"log"`
	Category    string     `json:"category"`
	Epoch       topo.Epoch `json:"epoch"`
	Replication string     `json:"replication"`
	Impact      Kinds      `json:"impact"`
}

type failureJSON struct {
	Log      topo.LogID `json:"log"`
	Category string     `json:"category"`
	Kind     string     `json:"kind"`
	Error    string     `json:"error"`
}

type reportJSON struct {
	Safe                 bool          `json:"safe"`
	Impact               Kinds         `json:"impact"`
	InternalLogsAffected *bool         `json:"internal_logs_affected,omitempty"`
	LogsChecked          int           `json:"logs_checked"`
	Aborted              bool          `json:"aborted"`
	Logs                 []perLogJSON  `json:"logs,omitempty"`
	Failures             []failureJSON `json:"failures,omitempty"`
}

// MarshalJSON encodes the report for machine consumers.
func (r *Report) MarshalJSON() ([]byte, error) {
	out := reportJSON{
		Safe:                 r.Safe(),
		Impact:               r.Kinds,
		InternalLogsAffected: r.InternalLogsAffected,
		LogsChecked:          r.LogsChecked,
		Aborted:              r.Aborted,
	}
	for _, l := range r.Logs {
		out.Logs = append(out.Logs, perLogJSON{
			Log:         l.Log,
			Category:    l.Category.String(),
			Epoch:       l.Epoch,
			Replication: l.Replication.String(),
			Impact:      l.Kinds,
		})
	}
	for _, f := range r.Failures {
		out.Failures = append(out.Failures, failureJSON{
			Log:      f.Log,
			Category: f.Category.String(),
			Kind:     mterrors.KindName(f.Err),
			Error:    f.Err.Error(),
		})
	}
	return json.Marshal(out)
}
