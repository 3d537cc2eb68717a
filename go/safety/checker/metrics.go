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

package checker

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/multigres/logsafety/go/mterrors"
	"github.com/multigres/logsafety/go/safety/epochs"
)

const instrumentationName = "github.com/multigres/logsafety/go/safety/checker"

// Outcome is the result of one CheckImpact call.
type Outcome string

const (
	OutcomeSafe   Outcome = "safe"
	OutcomeUnsafe Outcome = "unsafe"
	OutcomeError  Outcome = "error"
)

// Metrics holds the OpenTelemetry instruments and tracer of the checker.
type Metrics struct {
	meter        metric.Meter
	tracer       trace.Tracer
	checks       metric.Int64Counter
	evalDuration metric.Float64Histogram
	logFailures  metric.Int64Counter
}

// NewMetrics builds the instruments from the global providers.
func NewMetrics() *Metrics {
	return NewMetricsWith(otel.GetMeterProvider(), otel.GetTracerProvider())
}

// NewMetricsWith builds the instruments from explicit providers. Nil
// providers yield noop instruments.
func NewMetricsWith(mp metric.MeterProvider, tp trace.TracerProvider) *Metrics {
	if mp == nil {
		mp = noop.NewMeterProvider()
	}
	if tp == nil {
		tp = tracenoop.NewTracerProvider()
	}
	m := &Metrics{
		meter:  mp.Meter(instrumentationName),
		tracer: tp.Tracer(instrumentationName),
	}

	var err error
	m.checks, err = m.meter.Int64Counter(
		"logsafety.checks",
		metric.WithDescription("Number of impact checks by outcome"),
		metric.WithUnit("{check}"),
	)
	if err != nil {
		m.checks = noop.Int64Counter{}
	}

	m.evalDuration, err = m.meter.Float64Histogram(
		"logsafety.log_evaluation.duration",
		metric.WithDescription("Duration of resolving and evaluating one log"),
		metric.WithUnit("s"),
	)
	if err != nil {
		m.evalDuration = noop.Float64Histogram{}
	}

	m.logFailures, err = m.meter.Int64Counter(
		"logsafety.log_failures",
		metric.WithDescription("Number of logs that could not be checked, by error code"),
		metric.WithUnit("{log}"),
	)
	if err != nil {
		m.logFailures = noop.Int64Counter{}
	}
	return m
}

// AddCheck counts one finished check.
func (m *Metrics) AddCheck(ctx context.Context, outcome Outcome) {
	m.checks.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", string(outcome))))
}

// RecordLogEvaluation records how long one log took.
func (m *Metrics) RecordLogEvaluation(ctx context.Context, category epochs.LogCategory, d time.Duration) {
	m.evalDuration.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String("category", category.String())))
}

// AddLogFailure counts one log that could not be checked.
func (m *Metrics) AddLogFailure(ctx context.Context, err error) {
	m.logFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("code", mterrors.Code(err).String())))
}
