// Package pipeline wires decoded report envelopes through filtering, snapshot
// reconciliation, and event publication.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/sourcegraph/conc"
	"golang.org/x/time/rate"

	"github.com/coastwatch/aistracker/errs"
	"github.com/coastwatch/aistracker/internal/bus/targetbus"
	"github.com/coastwatch/aistracker/internal/config"
	"github.com/coastwatch/aistracker/internal/filter"
	"github.com/coastwatch/aistracker/internal/observability"
	"github.com/coastwatch/aistracker/internal/schema"
	"github.com/coastwatch/aistracker/internal/store"
	"github.com/coastwatch/aistracker/internal/telemetry"
	"github.com/coastwatch/aistracker/internal/tracker"
	"github.com/coastwatch/aistracker/lib/async"
)

// Ingestor reconciles report envelopes into the snapshot store and publishes
// a target event for every accepted transition.
type Ingestor struct {
	cfg        config.AppConfig
	store      store.Store
	bus        targetbus.Bus
	pending    *tracker.SyncPendingParts
	duplicates *filter.DuplicateFilter
	filters    filter.Chain
	transforms filter.TransformChain
	pool       *async.Pool
	limiter    *rate.Limiter
	metrics    *telemetry.IngestMetrics
	logger     observability.Logger

	mu        sync.Mutex
	seq       map[int64]uint64
	applyLock map[int64]*sync.Mutex
}

// NewIngestor constructs the ingest pipeline from configuration. The metrics
// handle may be nil when telemetry is disabled.
func NewIngestor(cfg config.AppConfig, st store.Store, bus targetbus.Bus, metrics *telemetry.IngestMetrics) (*Ingestor, error) {
	if st == nil {
		return nil, errs.New("pipeline", errs.CodeInvalid, errs.WithMessage("store required"))
	}
	if bus == nil {
		return nil, errs.New("pipeline", errs.CodeInvalid, errs.WithMessage("bus required"))
	}
	kinds, err := cfg.AllowedKinds()
	if err != nil {
		return nil, err
	}

	i := new(Ingestor)
	i.cfg = cfg
	i.store = st
	i.bus = bus
	i.pending = tracker.NewSyncPendingParts()
	i.duplicates = filter.NewDuplicateFilter(cfg.Filter.DuplicateWindow)
	i.filters = filter.Chain{i.duplicates}
	if len(kinds) > 0 {
		i.filters = append(i.filters, filter.NewKindFilter(kinds...))
	}
	i.transforms = filter.TransformChain{filter.TaggingTransformer{Provider: "untagged", Channel: "default"}}
	i.metrics = metrics
	i.logger = observability.Log()
	i.seq = make(map[int64]uint64)
	i.applyLock = make(map[int64]*sync.Mutex)

	pool, err := async.NewPool(cfg.Ingest.Workers, cfg.Ingest.Queue)
	if err != nil {
		return nil, err
	}
	i.pool = pool

	if cfg.Ingest.RatePerSecond > 0 {
		burst := cfg.Ingest.RateBurst
		if burst < 1 {
			burst = 1
		}
		i.limiter = rate.NewLimiter(rate.Limit(cfg.Ingest.RatePerSecond), burst)
	}
	return i, nil
}

// Pending exposes the split-report reassembly cache.
func (i *Ingestor) Pending() *tracker.SyncPendingParts { return i.pending }

// Run consumes envelopes until the stream closes or the context ends.
// Processing errors are reported on the returned channel; the channel closes
// once all in-flight work has drained.
func (i *Ingestor) Run(ctx context.Context, envelopes <-chan schema.Envelope) <-chan error {
	errCh := make(chan error, 64)

	go func() {
		defer close(errCh)

		var wg conc.WaitGroup
		sweepCtx, stopSweep := context.WithCancel(ctx)
		wg.Go(func() { i.sweepPending(sweepCtx) })

		for {
			select {
			case <-ctx.Done():
				stopSweep()
				wg.Wait()
				i.drainPool(errCh)
				return
			case env, ok := <-envelopes:
				if !ok {
					stopSweep()
					wg.Wait()
					i.drainPool(errCh)
					return
				}
				if i.limiter != nil {
					if err := i.limiter.Wait(ctx); err != nil {
						continue
					}
				}
				i.dispatch(ctx, env, errCh)
			}
		}
	}()

	return errCh
}

func (i *Ingestor) dispatch(ctx context.Context, env schema.Envelope, errCh chan<- error) {
	task := func(taskCtx context.Context) error {
		if err := i.process(taskCtx, env); err != nil {
			reportError(errCh, err)
		}
		return nil
	}
	err := i.pool.Submit(ctx, task)
	if err == nil {
		return
	}
	if errs.CodeOf(err) == errs.CodeUnavailable {
		// Saturated pool falls back to inline processing so reports are
		// never dropped under burst load.
		_ = task(ctx)
		return
	}
	reportError(errCh, err)
}

func (i *Ingestor) drainPool(errCh chan<- error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := i.pool.Shutdown(ctx); err != nil {
		reportError(errCh, err)
	}
}

func (i *Ingestor) process(ctx context.Context, env schema.Envelope) error {
	env = i.transforms.Transform(env)
	if err := env.Validate(); err != nil {
		return err
	}
	if i.duplicates.Rejected(env) {
		i.metrics.RecordDuplicate(ctx)
		return nil
	}
	for _, f := range i.filters[1:] {
		if f.Rejected(env) {
			i.logger.Debug("report filtered",
				observability.F("mmsi", env.Report.Identity()),
				observability.F("kind", env.Kind.String()))
			return nil
		}
	}
	return i.apply(ctx, env)
}

// apply runs the read-reconcile-install cycle. Applies for the same identity
// are serialized so concurrent workers can never erase each other's accepted
// reports; the version check and retry loop stay as a guard for stores
// shared with other writers.
func (i *Ingestor) apply(ctx context.Context, env schema.Envelope) error {
	mmsi := env.Report.Identity()
	lock := i.identityLock(mmsi)
	lock.Lock()
	defer lock.Unlock()

	backoffCfg := backoff.NewExponentialBackOff()
	backoffCfg.InitialInterval = 2 * time.Millisecond
	backoffCfg.MaxInterval = 250 * time.Millisecond

	// A second half consumes its buffered partner inside ApplyReport; keep a
	// copy so a lost install can put it back before retrying.
	var firstHalf []byte
	if parted, ok := env.Report.(schema.PartedReport); ok && parted.PartNumber() != 0 {
		firstHalf, _ = i.pending.Peek(env.Source)
	}

	for attempt := 0; attempt < i.cfg.Ingest.MaxApplyRetry; attempt++ {
		existing, prevVersion, err := i.load(ctx, mmsi)
		if err != nil {
			return err
		}

		start := time.Now()
		next, err := tracker.ApplyReport(existing, env.Report, env.Raw, env.Kind, env.Timestamp, env.Source, i.pending)
		i.metrics.RecordApplyDuration(ctx, float64(time.Since(start))/float64(time.Millisecond))
		if err != nil {
			return err
		}
		if next == nil {
			// First half of a split static report with no prior state;
			// nothing to install until its partner arrives.
			return nil
		}
		if next == existing {
			i.noteUnchanged(ctx, env)
			return nil
		}

		installed, err := i.install(ctx, prevVersion, next)
		if err == nil {
			i.publish(ctx, env, existing, next, installed)
			return nil
		}
		if !store.IsConflict(err) {
			return err
		}
		if firstHalf != nil {
			i.pending.Put(env.Source, firstHalf)
		}
		i.metrics.RecordCASRetry(ctx)
		sleep := backoffCfg.NextBackOff()
		select {
		case <-ctx.Done():
			return fmt.Errorf("apply context: %w", ctx.Err())
		case <-time.After(sleep):
		}
	}
	return errs.New("pipeline", errs.CodeConflict,
		errs.WithMessage("apply retries exhausted"), errs.WithMMSI(mmsi),
		errs.WithRemediation("raise ingest.max_apply_retry or reduce writer contention"))
}

func (i *Ingestor) identityLock(mmsi int64) *sync.Mutex {
	i.mu.Lock()
	defer i.mu.Unlock()
	lock, ok := i.applyLock[mmsi]
	if !ok {
		lock = new(sync.Mutex)
		i.applyLock[mmsi] = lock
	}
	return lock
}

func (i *Ingestor) load(ctx context.Context, mmsi int64) (*tracker.TargetSnapshot, uint64, error) {
	rec, err := i.store.Get(ctx, mmsi)
	if err != nil {
		if store.IsNotFound(err) {
			return nil, 0, nil
		}
		return nil, 0, err
	}
	return rec.Target, rec.Version, nil
}

// install swaps the new snapshot in against the version the cycle read. A
// zero prevVersion is the conditional first install; an unconditional Put
// here would let a racing first install erase an accepted report.
func (i *Ingestor) install(ctx context.Context, prevVersion uint64, next *tracker.TargetSnapshot) (store.Record, error) {
	record := store.Record{
		MMSI:      next.MMSI(),
		Target:    next,
		UpdatedAt: time.Now().UTC(),
		TTL:       i.cfg.Store.TTL,
	}
	return i.store.CompareAndSwap(ctx, prevVersion, record)
}

// noteUnchanged classifies a no-op apply for telemetry. A buffered first half
// of a split report is progress, everything else is a stale or duplicate
// report.
func (i *Ingestor) noteUnchanged(ctx context.Context, env schema.Envelope) {
	if parted, ok := env.Report.(schema.PartedReport); ok && parted.PartNumber() == 0 {
		return
	}
	i.metrics.RecordStale(ctx, env.Kind)
}

func (i *Ingestor) publish(ctx context.Context, env schema.Envelope, existing, next *tracker.TargetSnapshot, installed store.Record) {
	typ := schema.EventTargetUpdate
	switch {
	case existing == nil:
		typ = schema.EventTargetFirstSeen
		i.metrics.RecordTargetTracked(ctx, 1)
	case existing.Kind() != next.Kind():
		typ = schema.EventKindChange
		i.metrics.RecordKindChange(ctx, next.Kind())
	}
	i.metrics.RecordIngested(ctx, next.Kind())
	if _, ok := env.Report.(schema.PartedReport); ok && next.StaticPartCount() == 2 {
		i.metrics.RecordReassembled(ctx)
	}

	seq := i.nextSeq(next.MMSI())
	evt := &schema.TargetEvent{
		EventID:  uuid.NewString(),
		Type:     typ,
		Key:      schema.BuildEventKey(next.MMSI(), typ, seq),
		Seq:      seq,
		Source:   env.Source,
		IngestTS: installed.UpdatedAt,
		Target:   next.State(),
	}
	if err := i.bus.Publish(ctx, evt); err != nil {
		i.logger.Error("publish target event",
			observability.F("mmsi", next.MMSI()),
			observability.F("type", string(typ)),
			observability.F("error", err.Error()))
	}
}

func (i *Ingestor) nextSeq(mmsi int64) uint64 {
	i.mu.Lock()
	defer i.mu.Unlock()
	seq := i.seq[mmsi] + 1
	i.seq[mmsi] = seq
	return seq
}

func (i *Ingestor) sweepPending(ctx context.Context) {
	ticker := time.NewTicker(i.cfg.Pending.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if evicted := i.pending.Expire(i.cfg.Pending.MaxAge); evicted > 0 {
				i.logger.Debug("expired pending static parts", observability.F("count", evicted))
			}
		}
	}
}

func reportError(errCh chan<- error, err error) {
	select {
	case errCh <- err:
	default:
		observability.Log().Error("ingest error dropped", observability.F("error", err.Error()))
	}
}
