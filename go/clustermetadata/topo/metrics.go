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
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// StoreOperation names a LogStore operation in metrics.
type StoreOperation string

const (
	OpListLogs     StoreOperation = "list_logs"
	OpGetLog       StoreOperation = "get_log"
	OpPutLog       StoreOperation = "put_log"
	OpGetEpochs    StoreOperation = "get_epochs"
	OpAppendEpoch  StoreOperation = "append_epoch"
	OpGetTrimPoint StoreOperation = "get_trim_point"
	OpSetTrimPoint StoreOperation = "set_trim_point"
	OpDeleteLog    StoreOperation = "delete_log"
)

// StoreResult is the outcome of a store operation.
type StoreResult string

const (
	StoreResultSuccess StoreResult = "success"
	StoreResultNoNode  StoreResult = "no_node"
	StoreResultTimeout StoreResult = "timeout"
	StoreResultError   StoreResult = "error"
)

func resultOf(err error) StoreResult {
	switch {
	case err == nil:
		return StoreResultSuccess
	case IsErrType(err, NoNode):
		return StoreResultNoNode
	case IsErrType(err, Timeout), errors.Is(err, context.DeadlineExceeded):
		return StoreResultTimeout
	default:
		return StoreResultError
	}
}

// Metrics holds the OpenTelemetry instruments of the topo package.
type Metrics struct {
	meter             metric.Meter
	operationDuration metric.Float64Histogram
}

// metrics is the package instance, bound to the global meter provider.
var metrics *Metrics

func init() {
	metrics = newMetrics()
}

func newMetrics() *Metrics {
	m := &Metrics{
		meter: otel.Meter("github.com/multigres/logsafety/go/clustermetadata/topo"),
	}

	var err error
	m.operationDuration, err = m.meter.Float64Histogram(
		"topo.logstore.operation.duration",
		metric.WithDescription("Duration of log metadata store operations"),
		metric.WithUnit("s"),
	)
	if err != nil {
		m.operationDuration = noop.Float64Histogram{}
	}
	return m
}

// RecordStoreOperation records one store operation with its result.
func RecordStoreOperation(ctx context.Context, op StoreOperation, result StoreResult, duration time.Duration) {
	metrics.operationDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("operation", string(op)),
		attribute.String("result", string(result)),
	))
}
