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

// Package command implements the logsafety command line.
package command

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/trace"

	"github.com/multigres/logsafety/go/clustermetadata/topo"
	"github.com/multigres/logsafety/go/safety/checker"
	"github.com/multigres/logsafety/go/servenv"
	"github.com/multigres/logsafety/go/tools/telemetry"
	"github.com/multigres/logsafety/go/viperutil"

	// Registered topo backends.
	"github.com/multigres/logsafety/go/clustermetadata/topo/etcdtopo"
	_ "github.com/multigres/logsafety/go/clustermetadata/topo/memorytopo"
)

// ExitUnsafe is the exit status of a check that found impact.
const ExitUnsafe = 2

// ErrUnsafe is returned by check when the operation would have impact.
var ErrUnsafe = errors.New("maintenance operation is unsafe")

// LogsafetyCommand holds the configuration shared by every subcommand.
type LogsafetyCommand struct {
	reg       *viperutil.Registry
	vc        *viperutil.ViperConfig
	logger    *servenv.Logger
	telemetry *telemetry.Telemetry
	topo      *topo.Config
	checker   *checker.Config
	fs        afero.Fs

	cancel          context.CancelFunc
	stopConfigWatch context.CancelFunc
	span            trace.Span
}

// New returns a LogsafetyCommand with its own configuration registry.
func New() *LogsafetyCommand {
	reg := viperutil.NewRegistry()
	lc := &LogsafetyCommand{
		reg:       reg,
		vc:        viperutil.NewViperConfig(reg),
		logger:    servenv.NewLogger(reg),
		telemetry: telemetry.NewTelemetry(reg),
		topo:      topo.NewConfig(reg),
		checker:   checker.NewConfig(reg),
		fs:        afero.NewOsFs(),
	}
	lc.logger.WrapHandler(telemetry.WrapSlogHandler)
	return lc
}

// RootCommand builds the command tree.
func (lc *LogsafetyCommand) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "logsafety",
		Short: "Check whether a maintenance operation on a log cluster is safe",
		Long: `logsafety evaluates a proposed change to storage shards or sequencers
against the cluster topology and the epoch history of every affected log,
and reports which kinds of impact the change would have.

Configuration:
  Flags can also be set in a file named 'logsafety' (.yaml, .json, .toml)
  found in the --config-path directories, or through LS_* environment
  variables. Dynamic values such as abort-on-error and log-level are
  reloaded when the config file changes.`,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Flag errors have already been reported with usage by now.
			cmd.SilenceUsage = true

			stop, err := lc.vc.LoadConfig(lc.reg)
			if err != nil {
				return err
			}
			lc.stopConfigWatch = stop

			ctx, cancel := context.WithCancel(cmd.Context())
			lc.cancel = cancel
			lc.logger.SetupLogging()
			lc.logger.FollowConfig(ctx, lc.reg)

			span, err := lc.telemetry.InitForCommand(cmd, "logsafety", true)
			if err != nil {
				return err
			}
			lc.span = span
			return nil
		},
	}

	fs := root.PersistentFlags()
	lc.vc.RegisterFlags(fs)
	lc.logger.RegisterFlags(fs)
	lc.telemetry.RegisterFlags(fs)
	lc.topo.RegisterFlags(fs)
	lc.checker.RegisterFlags(fs)
	etcdtopo.RegisterFlags(fs)

	root.AddCommand(lc.checkCommand())
	root.AddCommand(lc.watchCommand())
	root.AddCommand(lc.topoCommand())
	return root
}

// Close ends the command span, flushes telemetry, stops the config watcher
// and releases the log file. It is safe to call more than once.
func (lc *LogsafetyCommand) Close() {
	if lc.span != nil {
		lc.span.End()
		lc.span = nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := lc.telemetry.ShutdownTelemetry(ctx); err != nil {
		lc.log().Warn("telemetry shutdown failed", "error", err)
	}
	if lc.cancel != nil {
		lc.cancel()
		lc.cancel = nil
	}
	if lc.stopConfigWatch != nil {
		lc.stopConfigWatch()
		lc.stopConfigWatch = nil
	}
	_ = lc.logger.Close()
}

func (lc *LogsafetyCommand) log() *slog.Logger {
	return lc.logger.GetLogger()
}

func (lc *LogsafetyCommand) openStore() (*topo.LogStore, error) {
	return lc.topo.Open(lc.log())
}
