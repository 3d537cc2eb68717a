// Copyright 2025 Supabase, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package command

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/multigres/logsafety/go/clustermetadata/nodes"
	"github.com/multigres/logsafety/go/clustermetadata/topo"
	"github.com/multigres/logsafety/go/mterrors"
	"github.com/multigres/logsafety/go/safety/checker"
	"github.com/multigres/logsafety/go/safety/epochs"
	"github.com/multigres/logsafety/go/safety/impact"
	"github.com/multigres/logsafety/go/safety/replication"
)

// requestFlags are the flags describing one maintenance operation, shared
// by check and watch.
type requestFlags struct {
	topology         string
	status           string
	shards           string
	sequencers       []int
	targetState      string
	margin           string
	checkMetadata    bool
	checkInternal    bool
	checkCapacity    bool
	maxStoragePct    float64
	maxSequencingPct float64
	output           string
}

func (f *requestFlags) register(fs *pflag.FlagSet) {
	fs.StringVar(&f.topology, "topology", "", "Path of the nodes configuration file (required)")
	fs.StringVar(&f.status, "status", "", "Path of the shard authoritative status file; every shard is fully authoritative when omitted")
	fs.StringVar(&f.shards, "shards", "", "Target shards, e.g. N1:S0,N2 (a node without a shard means all its shards)")
	fs.IntSliceVar(&f.sequencers, "sequencers", nil, "Target sequencer node indexes")
	fs.StringVar(&f.targetState, "target-state", "disabled", "Storage state of the target shards after the operation (read-only, disabled)")
	fs.StringVar(&f.margin, "margin", "", "Safety margin added to every replication property, e.g. node=1,rack=1")
	fs.BoolVar(&f.checkMetadata, "check-metadata-logs", false, "Also check the metadata log")
	fs.BoolVar(&f.checkInternal, "check-internal-logs", false, "Also check the internal logs")
	fs.BoolVar(&f.checkCapacity, "check-capacity", false, "Check storage and sequencing capacity against the thresholds")
	fs.Float64Var(&f.maxStoragePct, "max-storage-pct", 25, "Maximum percentage of storage capacity that may be unavailable")
	fs.Float64Var(&f.maxSequencingPct, "max-sequencing-pct", 25, "Maximum percentage of sequencing capacity that may be unavailable")
	fs.StringVarP(&f.output, "output", "o", "text", "Report format (text, json)")
}

// request builds a checker request against nc. The status file, if any, is
// read from fsys.
func (f *requestFlags) request(fsys afero.Fs, nc *nodes.NodesConfiguration) (checker.Request, error) {
	req := checker.Request{
		Nodes:                       nc,
		CheckMetadataLogs:           f.checkMetadata,
		CheckInternalLogs:           f.checkInternal,
		CheckCapacity:               f.checkCapacity,
		MaxUnavailableStoragePct:    f.maxStoragePct,
		MaxUnavailableSequencingPct: f.maxSequencingPct,
	}

	var err error
	if f.status != "" {
		if req.Status, err = nodes.LoadShardStatusMap(fsys, f.status); err != nil {
			return req, err
		}
	}
	if f.shards != "" {
		if req.TargetShards, err = nodes.ParseShardIDs(f.shards); err != nil {
			return req, mterrors.NewInvalidConfiguration("--shards: %v", err)
		}
	}
	for _, n := range f.sequencers {
		req.TargetSequencers = append(req.TargetSequencers, nodes.NodeIndex(n))
	}
	if req.TargetState, err = nodes.ParseStorageState(f.targetState); err != nil {
		return req, mterrors.NewInvalidConfiguration("--target-state: %v", err)
	}
	if req.Margin, err = replication.ParseSafetyMargin(f.margin); err != nil {
		return req, err
	}
	return req, req.Validate()
}

func (f *requestFlags) validateOutput() error {
	switch strings.ToLower(f.output) {
	case "text", "json":
		return nil
	}
	return mterrors.NewInvalidConfiguration("--output must be text or json, got %q", f.output)
}

func writeReport(w io.Writer, r *impact.Report, format string) error {
	if strings.ToLower(format) == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	}
	return r.WriteText(w)
}

func (lc *LogsafetyCommand) newChecker(store *topo.LogStore) *checker.Checker {
	logger := lc.log()
	resolver := epochs.NewStoreResolver(store, lc.checker.ResolverOptions(), logger)
	return checker.New(resolver, lc.checker, logger, checker.NewMetrics())
}

func (lc *LogsafetyCommand) checkCommand() *cobra.Command {
	var flags requestFlags
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check the impact of one maintenance operation",
		Long: `Check loads the nodes configuration, reads the epoch history of every log
the operation can affect from the topo server, and prints the impact report.
The exit status is 2 when the operation is unsafe.`,
		Example: `  logsafety check --topology nodes.yaml --shards N1,N2:S0 --target-state disabled
  logsafety check --topology nodes.yaml --sequencers 0,1 --check-capacity --max-sequencing-pct 30`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return lc.runCheck(cmd, &flags)
		},
	}
	flags.register(cmd.Flags())
	_ = cmd.MarkFlagRequired("topology")
	return cmd
}

func (lc *LogsafetyCommand) runCheck(cmd *cobra.Command, flags *requestFlags) error {
	if err := flags.validateOutput(); err != nil {
		return err
	}
	nc, err := nodes.LoadNodesConfiguration(lc.fs, flags.topology)
	if err != nil {
		return err
	}
	req, err := flags.request(lc.fs, nc)
	if err != nil {
		return err
	}

	store, err := lc.openStore()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	report, err := lc.newChecker(store).CheckImpact(cmd.Context(), req)
	if err != nil {
		return fmt.Errorf("impact check failed: %w", err)
	}
	if err := writeReport(cmd.OutOrStdout(), report, flags.output); err != nil {
		return err
	}
	if !report.Safe() {
		return ErrUnsafe
	}
	return nil
}
