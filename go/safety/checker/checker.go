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

// Package checker answers whether a maintenance operation on storage
// shards and sequencers is safe. It enumerates the affected logs, evaluates
// them concurrently over a bounded pool, runs the capacity accounting, and
// merges everything into one impact.Report.
//
// With abort-on-error on (the default), the first finding or failure stops
// the remaining evaluations, so the report may under-report the total
// impact. With it off, every log is evaluated and failures are attached to
// the report.
package checker

import (
	"cmp"
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"github.com/multigres/logsafety/go/clustermetadata/nodes"
	"github.com/multigres/logsafety/go/mterrors"
	"github.com/multigres/logsafety/go/safety/capacity"
	"github.com/multigres/logsafety/go/safety/epochs"
	"github.com/multigres/logsafety/go/safety/feasibility"
	"github.com/multigres/logsafety/go/safety/impact"
	"github.com/multigres/logsafety/go/viperutil"
)

// Checker runs impact checks. It is safe for concurrent use; each call
// works on its own snapshots.
type Checker struct {
	resolver epochs.Resolver
	cfg      *Config
	logger   *slog.Logger
	metrics  *Metrics
}

// New returns a Checker. A nil cfg uses defaults, a nil logger uses
// slog.Default() and nil metrics record nothing.
func New(resolver epochs.Resolver, cfg *Config, logger *slog.Logger, metrics *Metrics) *Checker {
	if cfg == nil {
		cfg = NewConfig(viperutil.NewRegistry())
	}
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = NewMetricsWith(nil, nil)
	}
	return &Checker{
		resolver: resolver,
		cfg:      cfg,
		logger:   logger,
		metrics:  metrics,
	}
}

// SetAbortOnError changes the policy for checks started afterwards.
func (c *Checker) SetAbortOnError(v bool) {
	c.cfg.SetAbortOnError(v)
}

func (c *Checker) AbortOnError() bool {
	return c.cfg.GetAbortOnError()
}

// Handle is a running check.
type Handle struct {
	done   chan struct{}
	cancel context.CancelFunc

	report *impact.Report
	err    error
}

// Done is closed when the check finishes.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Cancel stops the check. Wait then returns a Cancelled error unless the
// check had already finished.
func (h *Handle) Cancel() {
	h.cancel()
}

// Wait blocks until the check finishes or ctx is done. Exactly one of the
// results is non-nil.
func (h *Handle) Wait(ctx context.Context) (*impact.Report, error) {
	select {
	case <-h.done:
		return h.report, h.err
	case <-ctx.Done():
		return nil, contextError(ctx, "waiting for impact check")
	}
}

// Start begins a check and returns immediately. The abort-on-error policy
// in effect at this call applies to the whole check.
func (c *Checker) Start(ctx context.Context, req Request) *Handle {
	ctx, cancel := context.WithCancel(ctx)
	h := &Handle{
		done:   make(chan struct{}),
		cancel: cancel,
	}
	abort := c.AbortOnError()
	go func() {
		defer close(h.done)
		defer cancel()
		h.report, h.err = c.run(ctx, &req, abort)
	}()
	return h
}

// CheckImpact runs a check to completion.
func (c *Checker) CheckImpact(ctx context.Context, req Request) (*impact.Report, error) {
	h := c.Start(ctx, req)
	<-h.Done()
	return h.report, h.err
}

func (c *Checker) run(ctx context.Context, req *Request, abort bool) (*impact.Report, error) {
	start := time.Now()
	ctx, span := c.metrics.tracer.Start(ctx, "logsafety/check_impact",
		trace.WithAttributes(
			attribute.Int("targets.shards", len(req.TargetShards)),
			attribute.Int("targets.sequencers", len(req.TargetSequencers)),
			attribute.String("target_state", req.TargetState.String()),
			attribute.Bool("abort_on_error", abort),
		))
	defer span.End()

	report, err := c.check(ctx, req, abort)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		c.metrics.AddCheck(ctx, OutcomeError)
		c.logger.WarnContext(ctx, "impact check failed",
			"error", err,
			"code", mterrors.Code(err).String(),
			"duration", time.Since(start),
		)
		return nil, err
	}

	outcome := OutcomeSafe
	if !report.Safe() {
		outcome = OutcomeUnsafe
	}
	span.SetAttributes(
		attribute.String("result", string(outcome)),
		attribute.StringSlice("impact", report.Kinds.Strings()),
		attribute.Int("logs_checked", report.LogsChecked),
		attribute.Bool("aborted", report.Aborted),
	)
	c.metrics.AddCheck(ctx, outcome)
	c.logger.InfoContext(ctx, "impact check finished",
		"impact", report.Kinds.String(),
		"logs_checked", report.LogsChecked,
		"logs_affected", len(report.AffectedLogs()),
		"failures", len(report.Failures),
		"aborted", report.Aborted,
		"duration", time.Since(start),
	)
	return report, nil
}

func (c *Checker) check(ctx context.Context, req *Request, abort bool) (*impact.Report, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	transition, err := req.transition()
	if err != nil {
		return nil, err
	}

	report := &impact.Report{}
	if req.CheckCapacity {
		res, err := capacity.Check(capacity.Input{
			Nodes:                       req.Nodes,
			Status:                      req.Status,
			TargetShards:                transition.Targets,
			TargetState:                 transition.TargetState,
			TargetSequencers:            req.TargetSequencers,
			MaxUnavailableStoragePct:    req.MaxUnavailableStoragePct,
			MaxUnavailableSequencingPct: req.MaxUnavailableSequencingPct,
		})
		if err != nil {
			return nil, err
		}
		c.logger.DebugContext(ctx, "capacity checked", "result", res.String(), "impact", res.Kinds.String())
		report.Kinds = res.Kinds
		if abort && !res.Kinds.Empty() {
			report.Aborted = needsLogs(req, transition)
			return report, nil
		}
	}

	if !needsLogs(req, transition) {
		return report, nil
	}
	refs, err := c.resolver.Logs(ctx, epochs.Flags{
		Metadata: req.CheckMetadataLogs,
		Internal: req.CheckInternalLogs,
	})
	if err != nil {
		return nil, mterrors.Wrap(err, "enumerating logs")
	}
	if len(transition.Targets) == 0 {
		// Data logs only matter through the shards they store on.
		refs = slices.DeleteFunc(refs, func(ref epochs.LogRef) bool { return ref.Category == epochs.Data })
	}

	m := &merger{report: report, abort: abort}
	if err := c.dispatch(ctx, req, feasibility.NewEvaluator(req.Nodes, req.Status, transition, req.Margin), refs, m); err != nil {
		return nil, err
	}
	return m.finish(refs), nil
}

// needsLogs reports whether any log can be affected: data logs only through
// target shards, metadata and internal logs whenever asked for.
func needsLogs(req *Request, t feasibility.Transition) bool {
	return len(t.Targets) > 0 || req.CheckMetadataLogs || req.CheckInternalLogs
}

// dispatch evaluates refs concurrently, at most max-in-flight at a time.
// It returns the request-level error, if any.
func (c *Checker) dispatch(ctx context.Context, req *Request, ev *feasibility.Evaluator, refs []epochs.LogRef, m *merger) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	m.cancel = cancel

	sem := semaphore.NewWeighted(int64(c.cfg.GetMaxInFlight()))
	var wg sync.WaitGroup
	for _, ref := range refs {
		if runCtx.Err() != nil {
			break
		}
		if err := sem.Acquire(runCtx, 1); err != nil {
			break
		}
		wg.Go(func() {
			defer sem.Release(1)
			out := c.evaluateLog(runCtx, req.Nodes, ev, ref)
			if out.err != nil && runCtx.Err() != nil && ctx.Err() == nil {
				// Stopped by abort-on-error, not a failure of this log.
				return
			}
			if out.err != nil {
				c.metrics.AddLogFailure(ctx, out.err)
				c.logger.WarnContext(ctx, "log could not be checked", "log", ref.String(), "error", out.err)
			}
			m.add(ref, out)
		})
	}
	wg.Wait()

	if ctx.Err() != nil {
		return contextError(ctx, "impact check")
	}
	return m.err
}

type logOutcome struct {
	impacts []impact.PerLogImpact
	kinds   impact.Kinds
	err     error
}

func (c *Checker) evaluateLog(ctx context.Context, nc *nodes.NodesConfiguration, ev *feasibility.Evaluator, ref epochs.LogRef) (out logOutcome) {
	start := time.Now()
	defer func() {
		c.metrics.RecordLogEvaluation(ctx, ref.Category, time.Since(start))
	}()

	records, err := c.resolver.HistoryFor(ctx, nc, ref)
	if err != nil {
		out.err = err
		return out
	}

	evaluated := 0
	for i := range records {
		rec := &records[i]
		if ref.Category == epochs.Data && !ev.Transition().Touches(rec.NodeSet) {
			continue
		}
		evaluated++
		res, err := ev.Evaluate(rec)
		if err != nil {
			out.err = mterrors.Wrapf(err, "%v", ref)
			return out
		}
		if res.Kinds.Empty() {
			continue
		}
		out.kinds = out.kinds.Union(res.Kinds)
		out.impacts = append(out.impacts, impact.PerLogImpact{
			Log:         ref.ID,
			Category:    ref.Category,
			Epoch:       rec.Since,
			Replication: res.Requirement,
			Kinds:       res.Kinds,
		})
	}
	c.logger.DebugContext(ctx, "log evaluated",
		"log", ref.String(),
		"records", len(records),
		"evaluated", evaluated,
		"impact", out.kinds.String(),
		"duration", time.Since(start),
	)
	return out
}

// merger accumulates per-log outcomes. It is the only state shared by the
// evaluation goroutines.
type merger struct {
	mu     sync.Mutex
	report *impact.Report
	abort  bool
	cancel context.CancelFunc
	err    error

	stopped          bool
	internalChecked  bool
	internalAffected bool
}

func (m *merger) add(ref epochs.LogRef, out logOutcome) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if out.err != nil {
		if m.abort {
			if m.err == nil {
				m.err = out.err
				m.cancel()
			}
			return
		}
		m.report.Failures = append(m.report.Failures, impact.LogFailure{
			Log:      ref.ID,
			Category: ref.Category,
			Err:      out.err,
		})
		return
	}

	m.report.LogsChecked++
	if ref.IsInternalOrMetadata() {
		m.internalChecked = true
	}
	if out.kinds.Empty() {
		return
	}
	m.report.Kinds = m.report.Kinds.Union(out.kinds)
	m.report.Logs = append(m.report.Logs, out.impacts...)
	if ref.IsInternalOrMetadata() {
		m.internalAffected = true
	}
	if m.abort && !m.stopped {
		m.stopped = true
		m.cancel()
	}
}

// finish orders findings and failures by discovery order, then epoch, so
// that identical inputs give identical reports. The report counts as
// aborted only if some log was left unchecked.
func (m *merger) finish(refs []epochs.LogRef) *impact.Report {
	m.mu.Lock()
	defer m.mu.Unlock()

	order := make(map[epochs.LogRef]int, len(refs))
	for i, ref := range refs {
		order[ref] = i
	}
	slices.SortStableFunc(m.report.Logs, func(a, b impact.PerLogImpact) int {
		return cmp.Or(
			cmp.Compare(order[epochs.LogRef{ID: a.Log, Category: a.Category}], order[epochs.LogRef{ID: b.Log, Category: b.Category}]),
			cmp.Compare(a.Epoch, b.Epoch),
		)
	})
	slices.SortStableFunc(m.report.Failures, func(a, b impact.LogFailure) int {
		return cmp.Compare(order[epochs.LogRef{ID: a.Log, Category: a.Category}], order[epochs.LogRef{ID: b.Log, Category: b.Category}])
	})
	m.report.Aborted = m.stopped && m.report.LogsChecked < len(refs)
	if m.internalChecked {
		affected := m.internalAffected
		m.report.InternalLogsAffected = &affected
	}
	return m.report
}

func contextError(ctx context.Context, what string) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return mterrors.NewTimeout("%s: %v", what, ctx.Err())
	}
	return mterrors.NewCancelled("%s: %v", what, ctx.Err())
}
