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
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	"github.com/multigres/logsafety/go/clustermetadata/nodes"
	"github.com/multigres/logsafety/go/safety/checker"
	"github.com/multigres/logsafety/go/safety/impact"
	"github.com/multigres/logsafety/go/viperutil/debug"
)

// lastReport is the most recent watch result, served on the debug port.
type lastReport struct {
	mu      sync.Mutex
	version uint64
	report  *impact.Report
	err     error
}

func (l *lastReport) set(version uint64, report *impact.Report, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.version, l.report, l.err = version, report, err
}

func (l *lastReport) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.report == nil && l.err == nil {
		http.Error(w, "no check has completed yet", http.StatusServiceUnavailable)
		return
	}
	doc := struct {
		TopologyVersion uint64         `json:"topology_version"`
		Report          *impact.Report `json:"report,omitempty"`
		Error           string         `json:"error,omitempty"`
	}{TopologyVersion: l.version, Report: l.report}
	if l.err != nil {
		doc.Error = l.err.Error()
	}
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(doc)
}

func (lc *LogsafetyCommand) watchCommand() *cobra.Command {
	var flags requestFlags
	var debugAddr string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Re-check a maintenance operation whenever the topology changes",
		Long: `Watch loads the nodes configuration file, checks the operation, and checks
it again every time a new version of the file is published. It runs until
interrupted. With --debug-addr, the configuration and the latest report are
served at /debug/config and /debug/report.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return lc.runWatch(cmd, &flags, debugAddr)
		},
	}
	flags.register(cmd.Flags())
	cmd.Flags().StringVar(&debugAddr, "debug-addr", "", "Address to serve debug pages on, e.g. localhost:15500")
	_ = cmd.MarkFlagRequired("topology")
	return cmd
}

func (lc *LogsafetyCommand) runWatch(cmd *cobra.Command, flags *requestFlags, debugAddr string) error {
	if err := flags.validateOutput(); err != nil {
		return err
	}
	logger := lc.log()
	store, err := lc.openStore()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()
	c := lc.newChecker(store)

	// Only the newest configuration matters; older pending ones are dropped.
	updates := make(chan *nodes.NodesConfiguration, 1)
	publisher := nodes.NewPublisher(logger)
	unsubscribe := publisher.Subscribe(func(nc *nodes.NodesConfiguration) {
		select {
		case <-updates:
		default:
		}
		updates <- nc
	})
	defer unsubscribe()
	watcher := nodes.NewWatcher(flags.topology, publisher, logger)

	out := cmd.OutOrStdout()
	last := &lastReport{}
	g, ctx := errgroup.WithContext(cmd.Context())
	g.Go(func() error {
		return watcher.Run(ctx)
	})
	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case nc := <-updates:
				report, err := lc.checkVersion(ctx, out, c, flags, nc)
				last.set(nc.Version(), report, err)
			}
		}
	})
	if debugAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/debug/config", debug.HandlerFunc(lc.reg, cmd.Flags()))
		mux.Handle("/debug/report", last)
		srv := &http.Server{
			Addr:              debugAddr,
			Handler:           otelhttp.NewHandler(mux, "debug"),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			logger.Info("serving debug pages", "addr", debugAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("debug server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}
	return g.Wait()
}

// checkVersion checks the operation against one published configuration
// and prints the report. Failures are printed and logged, not returned, so
// that the watch keeps running.
func (lc *LogsafetyCommand) checkVersion(ctx context.Context, out io.Writer, c *checker.Checker, flags *requestFlags, nc *nodes.NodesConfiguration) (*impact.Report, error) {
	fmt.Fprintf(out, "== topology version %d ==\n", nc.Version())

	req, err := flags.request(lc.fs, nc)
	if err == nil {
		var report *impact.Report
		report, err = c.CheckImpact(ctx, req)
		if err == nil {
			return report, writeReport(out, report, flags.output)
		}
	}
	if ctx.Err() != nil {
		return nil, err
	}
	lc.log().Warn("check failed", "version", nc.Version(), "error", err)
	fmt.Fprintf(out, "Error: %v\n", err)
	return nil, err
}
