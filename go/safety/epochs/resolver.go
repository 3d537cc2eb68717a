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

// Package epochs resolves which logs exist and, for each one, the epoch
// records that still describe retained data.
//
// Data and internal logs are read from the log store in topo. The metadata
// log has no stored history: its single record is built from the nodes
// configuration.
package epochs

import (
	"cmp"
	"context"
	"errors"
	"log/slog"
	"slices"
	"time"

	"github.com/multigres/logsafety/go/clustermetadata/nodes"
	"github.com/multigres/logsafety/go/clustermetadata/topo"
	"github.com/multigres/logsafety/go/mterrors"
	"github.com/multigres/logsafety/go/tools/retry"
)

// Flags selects the non-data logs to enumerate.
type Flags struct {
	Metadata bool
	Internal bool
}

// Resolver is the read path the safety checker uses for log metadata.
type Resolver interface {
	// Logs enumerates the logs to examine: every data log in the catalog,
	// plus the metadata log and internal logs when flags ask for them.
	Logs(ctx context.Context, flags Flags) ([]LogRef, error)

	// HistoryFor returns the epoch records of ref that still retain data,
	// ordered by epoch. It fails with a LookupError when the log is unknown
	// or its metadata is unreadable, and with a Timeout when the store does
	// not answer in time. nc supplies the metadata nodeset.
	HistoryFor(ctx context.Context, nc *nodes.NodesConfiguration, ref LogRef) ([]topo.EpochRecord, error)
}

// Options tunes a StoreResolver.
type Options struct {
	// LogTimeout bounds HistoryFor for one log, retries included.
	LogTimeout time.Duration
	// RetryBaseDelay and RetryMaxDelay bound the backoff between retries of
	// transient store errors.
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
}

// DefaultOptions returns the resolver defaults.
func DefaultOptions() Options {
	return Options{
		LogTimeout:     10 * time.Second,
		RetryBaseDelay: 10 * time.Millisecond,
		RetryMaxDelay:  time.Second,
	}
}

// StoreResolver implements Resolver over a topo.LogStore.
type StoreResolver struct {
	store  *topo.LogStore
	opts   Options
	logger *slog.Logger
}

var _ Resolver = (*StoreResolver)(nil)

// NewStoreResolver returns a resolver reading from store. Zero fields in
// opts take their defaults. A nil logger uses slog.Default().
func NewStoreResolver(store *topo.LogStore, opts Options, logger *slog.Logger) *StoreResolver {
	def := DefaultOptions()
	if opts.LogTimeout <= 0 {
		opts.LogTimeout = def.LogTimeout
	}
	if opts.RetryBaseDelay <= 0 {
		opts.RetryBaseDelay = def.RetryBaseDelay
	}
	if opts.RetryMaxDelay < opts.RetryBaseDelay {
		opts.RetryMaxDelay = max(def.RetryMaxDelay, opts.RetryBaseDelay)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &StoreResolver{store: store, opts: opts, logger: logger}
}

// Logs implements Resolver. Internal logs are enumerated only when they
// exist in the catalog.
func (r *StoreResolver) Logs(ctx context.Context, flags Flags) ([]LogRef, error) {
	var ids []topo.LogID
	err := r.withRetry(ctx, func(ctx context.Context) error {
		var err error
		ids, err = r.store.ListLogIDs(ctx)
		return err
	})
	if err != nil {
		return nil, mapError(ctx, err, "log catalog")
	}

	var refs []LogRef
	if flags.Metadata {
		refs = append(refs, MetadataRef())
	}
	for _, id := range ids {
		ref := RefFor(id)
		if ref.Category == Internal && !flags.Internal {
			continue
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

// HistoryFor implements Resolver.
func (r *StoreResolver) HistoryFor(ctx context.Context, nc *nodes.NodesConfiguration, ref LogRef) ([]topo.EpochRecord, error) {
	if ref.Category == Metadata {
		return MetadataHistory(nc), nil
	}

	ctx, cancel := context.WithTimeout(ctx, r.opts.LogTimeout)
	defer cancel()

	var (
		records []topo.EpochRecord
		trim    topo.Epoch
	)
	err := r.withRetry(ctx, func(ctx context.Context) error {
		if _, _, err := r.store.GetLog(ctx, ref.ID); err != nil {
			return err
		}
		var err error
		if records, err = r.store.GetEpochs(ctx, ref.ID); err != nil {
			return err
		}
		trim, err = r.store.GetTrimPoint(ctx, ref.ID)
		return err
	})
	if err != nil {
		return nil, mapError(ctx, err, ref.String())
	}

	retained := make([]topo.EpochRecord, 0, len(records))
	for _, rec := range records {
		if rec.Until < trim {
			continue
		}
		retained = append(retained, rec)
	}
	slices.SortStableFunc(retained, func(a, b topo.EpochRecord) int {
		return cmp.Compare(a.Since, b.Since)
	})
	r.logger.DebugContext(ctx, "resolved epoch history",
		"log", ref.ID, "category", ref.Category, "records", len(retained), "trimmed", len(records)-len(retained))
	return retained, nil
}

func (r *StoreResolver) withRetry(ctx context.Context, op func(context.Context) error) error {
	return retry.New(r.opts.RetryBaseDelay, r.opts.RetryMaxDelay).Do(ctx, op, isTransient)
}

// MetadataHistory returns the single record of the metadata log: every
// shard of the metadata nodes, replicated per the metadata replication
// property. It is empty when no node stores metadata.
func MetadataHistory(nc *nodes.NodesConfiguration) []topo.EpochRecord {
	if nc == nil {
		return nil
	}
	shards := nc.MetadataShards()
	if len(shards) == 0 {
		return nil
	}
	return []topo.EpochRecord{{
		Since:       0,
		Until:       topo.EpochMax,
		NodeSet:     shards,
		Replication: nc.MetadataReplication(),
	}}
}

// isTransient reports whether a store error may clear on retry.
func isTransient(err error) bool {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false
	case topo.IsDecodeError(err):
		return false
	case topo.IsErrType(err, topo.Timeout), topo.IsErrType(err, topo.ResourceExhausted), topo.IsErrType(err, topo.Unavailable):
		return true
	}
	var te topo.TopoError
	if errors.As(err, &te) {
		return false
	}
	// Unconverted backend errors, e.g. a dropped connection.
	return true
}

// mapError translates a store error into the safety checker error kinds.
func mapError(ctx context.Context, err error, what string) error {
	switch {
	case topo.IsErrType(err, topo.NoNode):
		return mterrors.NewLookupError("%s not found: %v", what, err)
	case topo.IsErrType(err, topo.Timeout),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(ctx.Err(), context.DeadlineExceeded):
		return mterrors.NewTimeout("%s: metadata store did not answer in time: %v", what, err)
	case topo.IsErrType(err, topo.Interrupted), errors.Is(err, context.Canceled):
		return mterrors.NewCancelled("%s: resolution cancelled: %v", what, err)
	case topo.IsDecodeError(err):
		return mterrors.NewLookupError("%s: metadata unreadable: %v", what, err)
	}
	return mterrors.NewLookupError("%s: reading metadata: %v", what, err)
}
