package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/coastwatch/aistracker/internal/schema"
)

// IngestMetrics groups the pipeline's instruments.
type IngestMetrics struct {
	reportsIngested metric.Int64Counter
	duplicatesDrops metric.Int64Counter
	staleDrops      metric.Int64Counter
	kindChanges     metric.Int64Counter
	reassembled     metric.Int64Counter
	casRetries      metric.Int64Counter
	applyDurationMS metric.Float64Histogram
	trackedTargets  metric.Int64UpDownCounter
}

// NewIngestMetrics registers the pipeline instruments on the meter.
func NewIngestMetrics(meter metric.Meter) (*IngestMetrics, error) {
	m := new(IngestMetrics)
	var err error

	if m.reportsIngested, err = meter.Int64Counter("tracker.reports.ingested",
		metric.WithDescription("Reports accepted into the pipeline")); err != nil {
		return nil, fmt.Errorf("create ingested counter: %w", err)
	}
	if m.duplicatesDrops, err = meter.Int64Counter("tracker.reports.duplicates",
		metric.WithDescription("Reports dropped by the duplicate filter")); err != nil {
		return nil, fmt.Errorf("create duplicates counter: %w", err)
	}
	if m.staleDrops, err = meter.Int64Counter("tracker.reports.stale",
		metric.WithDescription("Reports rejected as stale by the update engine")); err != nil {
		return nil, fmt.Errorf("create stale counter: %w", err)
	}
	if m.kindChanges, err = meter.Int64Counter("tracker.targets.kind_changes",
		metric.WithDescription("Accepted transitions that replaced the target kind")); err != nil {
		return nil, fmt.Errorf("create kind-change counter: %w", err)
	}
	if m.reassembled, err = meter.Int64Counter("tracker.statics.reassembled",
		metric.WithDescription("Split static reports paired into a full facet")); err != nil {
		return nil, fmt.Errorf("create reassembled counter: %w", err)
	}
	if m.casRetries, err = meter.Int64Counter("tracker.store.cas_retries",
		metric.WithDescription("Store installs retried after losing a version race")); err != nil {
		return nil, fmt.Errorf("create cas-retry counter: %w", err)
	}
	if m.applyDurationMS, err = meter.Float64Histogram("tracker.apply.duration",
		metric.WithDescription("Report apply latency"),
		metric.WithUnit("ms")); err != nil {
		return nil, fmt.Errorf("create apply histogram: %w", err)
	}
	if m.trackedTargets, err = meter.Int64UpDownCounter("tracker.targets.tracked",
		metric.WithDescription("Identities currently tracked")); err != nil {
		return nil, fmt.Errorf("create tracked counter: %w", err)
	}
	return m, nil
}

func kindAttr(kind schema.TargetKind) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("kind", kind.String()))
}

// RecordIngested counts an envelope entering the apply stage.
func (m *IngestMetrics) RecordIngested(ctx context.Context, kind schema.TargetKind) {
	if m == nil {
		return
	}
	m.reportsIngested.Add(ctx, 1, kindAttr(kind))
}

// RecordDuplicate counts a duplicate-filter drop.
func (m *IngestMetrics) RecordDuplicate(ctx context.Context) {
	if m == nil {
		return
	}
	m.duplicatesDrops.Add(ctx, 1)
}

// RecordStale counts a report rejected by the update engine as stale.
func (m *IngestMetrics) RecordStale(ctx context.Context, kind schema.TargetKind) {
	if m == nil {
		return
	}
	m.staleDrops.Add(ctx, 1, kindAttr(kind))
}

// RecordKindChange counts an accepted kind replacement.
func (m *IngestMetrics) RecordKindChange(ctx context.Context, kind schema.TargetKind) {
	if m == nil {
		return
	}
	m.kindChanges.Add(ctx, 1, kindAttr(kind))
}

// RecordReassembled counts a completed split-report pairing.
func (m *IngestMetrics) RecordReassembled(ctx context.Context) {
	if m == nil {
		return
	}
	m.reassembled.Add(ctx, 1)
}

// RecordCASRetry counts a lost store version race.
func (m *IngestMetrics) RecordCASRetry(ctx context.Context) {
	if m == nil {
		return
	}
	m.casRetries.Add(ctx, 1)
}

// RecordApplyDuration records one apply cycle's latency in milliseconds.
func (m *IngestMetrics) RecordApplyDuration(ctx context.Context, millis float64) {
	if m == nil {
		return
	}
	m.applyDurationMS.Record(ctx, millis)
}

// RecordTargetTracked adjusts the tracked-identity gauge.
func (m *IngestMetrics) RecordTargetTracked(ctx context.Context, delta int64) {
	if m == nil {
		return
	}
	m.trackedTargets.Add(ctx, delta)
}
