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
	"bytes"
	"fmt"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/multigres/logsafety/go/clustermetadata/topo"
	"github.com/multigres/logsafety/go/mterrors"
	"github.com/multigres/logsafety/go/safety/replication"
)

// logDocument is the YAML form printed by get-log.
type logDocument struct {
	Log       *topo.LogConfig    `yaml:"log"`
	TrimPoint topo.Epoch         `yaml:"trim_point"`
	Epochs    []topo.EpochRecord `yaml:"epochs"`
}

func (lc *LogsafetyCommand) topoCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "topo",
		Short: "Manage log metadata in the topo server",
	}
	cmd.AddCommand(lc.putLogCommand())
	cmd.AddCommand(lc.getLogCommand())
	cmd.AddCommand(lc.listLogsCommand())
	cmd.AddCommand(lc.setTrimPointCommand())
	cmd.AddCommand(lc.deleteLogCommand())
	return cmd
}

func (lc *LogsafetyCommand) putLogCommand() *cobra.Command {
	var (
		id, name, repl, epochsFile string
	)
	cmd := &cobra.Command{
		Use:   "put-log",
		Short: "Create or replace a log and append epoch records to its history",
		Long: `put-log writes the catalog entry of a log. With --epochs-file, the records
of the YAML list in that file are appended to the log's epoch history; each
record has since, until, nodeset, replication and an optional margin.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logID, err := topo.ParseLogID(id)
			if err != nil {
				return mterrors.NewInvalidConfiguration("--id: %v", err)
			}
			prop, err := replication.ParseReplicationProperty(repl)
			if err != nil {
				return err
			}
			var records []topo.EpochRecord
			if epochsFile != "" {
				if records, err = readEpochsFile(lc.fs, epochsFile); err != nil {
					return err
				}
			}

			store, err := lc.openStore()
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			ctx := cmd.Context()
			if err := store.PutLog(ctx, &topo.LogConfig{ID: logID, Name: name, Replication: prop}); err != nil {
				return fmt.Errorf("failed to store log %v: %w", logID, err)
			}
			for _, rec := range records {
				if err := store.AppendEpoch(ctx, logID, rec); err != nil {
					return fmt.Errorf("failed to append epochs [%d, %d] to log %v: %w", rec.Since, rec.Until, logID, err)
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Log %v stored with %d new epoch record(s)\n", logID, len(records))
			return nil
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "ID of the log (required)")
	cmd.Flags().StringVar(&name, "name", "", "Human readable name of the log")
	cmd.Flags().StringVar(&repl, "replication", "node:3", "Replication property of the log, e.g. node:3 or rack:2,node:3")
	cmd.Flags().StringVar(&epochsFile, "epochs-file", "", "YAML file with epoch records to append")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func readEpochsFile(fsys afero.Fs, path string) ([]topo.EpochRecord, error) {
	data, err := afero.ReadFile(fsys, path)
	if err != nil {
		return nil, fmt.Errorf("reading epochs file: %w", err)
	}
	var records []topo.EpochRecord
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&records); err != nil {
		return nil, mterrors.NewInvalidConfiguration("cannot decode epochs file %s: %v", path, err)
	}
	for i := range records {
		if err := records[i].Validate(); err != nil {
			return nil, mterrors.NewInvalidConfiguration("epochs file %s, record %d: %v", path, i, err)
		}
	}
	return records, nil
}

func (lc *LogsafetyCommand) getLogCommand() *cobra.Command {
	var id string
	cmd := &cobra.Command{
		Use:   "get-log",
		Short: "Print a log's catalog entry, trim point and epoch history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logID, err := topo.ParseLogID(id)
			if err != nil {
				return mterrors.NewInvalidConfiguration("--id: %v", err)
			}
			store, err := lc.openStore()
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			ctx := cmd.Context()
			var doc logDocument
			if doc.Log, _, err = store.GetLog(ctx, logID); err != nil {
				return fmt.Errorf("failed to get log %v: %w", logID, err)
			}
			if doc.TrimPoint, err = store.GetTrimPoint(ctx, logID); err != nil {
				return fmt.Errorf("failed to get trim point of log %v: %w", logID, err)
			}
			if doc.Epochs, err = store.GetEpochs(ctx, logID); err != nil {
				return fmt.Errorf("failed to get epochs of log %v: %w", logID, err)
			}

			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(&doc); err != nil {
				return err
			}
			return enc.Close()
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "ID of the log (required)")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func (lc *LogsafetyCommand) listLogsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list-logs",
		Short: "List the IDs of every log in the catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := lc.openStore()
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			ids, err := store.ListLogIDs(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to list logs: %w", err)
			}
			for _, id := range ids {
				fmt.Fprintln(cmd.OutOrStdout(), id)
			}
			return nil
		},
	}
}

func (lc *LogsafetyCommand) setTrimPointCommand() *cobra.Command {
	var id string
	var epoch uint32
	cmd := &cobra.Command{
		Use:   "set-trim-point",
		Short: "Record that epochs before --epoch hold no data",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logID, err := topo.ParseLogID(id)
			if err != nil {
				return mterrors.NewInvalidConfiguration("--id: %v", err)
			}
			store, err := lc.openStore()
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			if err := store.SetTrimPoint(cmd.Context(), logID, topo.Epoch(epoch)); err != nil {
				return fmt.Errorf("failed to set trim point of log %v: %w", logID, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Log %v trimmed before epoch %d\n", logID, epoch)
			return nil
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "ID of the log (required)")
	cmd.Flags().Uint32Var(&epoch, "epoch", 0, "First epoch that may hold data")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func (lc *LogsafetyCommand) deleteLogCommand() *cobra.Command {
	var id string
	cmd := &cobra.Command{
		Use:   "delete-log",
		Short: "Remove a log and all its metadata",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logID, err := topo.ParseLogID(id)
			if err != nil {
				return mterrors.NewInvalidConfiguration("--id: %v", err)
			}
			store, err := lc.openStore()
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			if err := store.DeleteLog(cmd.Context(), logID); err != nil {
				return fmt.Errorf("failed to delete log %v: %w", logID, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Log %v deleted\n", logID)
			return nil
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "ID of the log (required)")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}
