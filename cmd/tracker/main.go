// Command tracker launches the AIS target tracking runtime.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sourcegraph/conc"

	"github.com/coastwatch/aistracker/internal/bus/targetbus"
	"github.com/coastwatch/aistracker/internal/config"
	"github.com/coastwatch/aistracker/internal/feed"
	"github.com/coastwatch/aistracker/internal/observability"
	"github.com/coastwatch/aistracker/internal/pipeline"
	"github.com/coastwatch/aistracker/internal/schema"
	"github.com/coastwatch/aistracker/internal/store"
	"github.com/coastwatch/aistracker/internal/telemetry"
)

const (
	trackerLoggerPrefix      = "tracker "
	shutdownTimeout          = 30 * time.Second
	telemetryShutdownTimeout = 5 * time.Second
)

func main() {
	cfgPath, feedPath, verbose := parseFlags()
	ctx, cancel := newSignalContext()
	defer cancel()

	stdLog := log.New(os.Stdout, trackerLoggerPrefix, log.LstdFlags|log.Lmicroseconds)
	observability.SetLogger(observability.NewStdLogger(stdLog, verbose))
	logger := observability.Log()

	appCfg, err := config.Load(cfgPath)
	if err != nil {
		stdLog.Fatalf("load config: %v", err)
	}
	logger.Info("configuration initialised",
		observability.F("env", string(appCfg.Environment)),
		observability.F("workers", appCfg.Ingest.Workers))

	telemetryProvider, metrics, err := initTelemetry(ctx, appCfg)
	if err != nil {
		stdLog.Fatalf("initialize telemetry: %v", err)
	}
	if appCfg.Telemetry.Enabled {
		logger.Info("telemetry initialised",
			observability.F("endpoint", appCfg.Telemetry.OTLPEndpoint),
			observability.F("service", appCfg.Telemetry.ServiceName))
	} else {
		logger.Info("telemetry disabled")
	}

	snapshots := store.NewMemoryStoreWithSweep(appCfg.Store.SweepInterval)
	bus := targetbus.NewMemoryBus(targetbus.MemoryConfig{BufferSize: appCfg.Bus.BufferSize})

	ingestor, err := pipeline.NewIngestor(appCfg, snapshots, bus, metrics)
	if err != nil {
		stdLog.Fatalf("initialise ingestor: %v", err)
	}

	input, closeInput, err := openFeed(feedPath)
	if err != nil {
		stdLog.Fatalf("open feed: %v", err)
	}
	defer closeInput()

	var lifecycle conc.WaitGroup
	startEventLog(ctx, &lifecycle, bus)

	envelopes, feedErrs := feed.NewReplayer(input).Run(ctx)
	ingestErrs := ingestor.Run(ctx, envelopes)

	lifecycle.Go(func() { drainErrors(ctx, "feed", feedErrs) })

	logger.Info("tracker started; awaiting shutdown signal or end of feed")
	drainErrors(ctx, "ingest", ingestErrs)
	logger.Info("ingest drained, initiating shutdown")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	shutdownStart := time.Now()
	lifecycle.Wait()
	bus.Close()
	snapshots.Close()
	shutdownTelemetry(shutdownCtx, telemetryProvider)

	logger.Info("shutdown completed",
		observability.F("elapsed", time.Since(shutdownStart).String()),
		observability.F("targets", snapshots.Len()))
}

func parseFlags() (string, string, bool) {
	cfgPath := flag.String("config", "", "Path to tracker configuration file (default: config/tracker.yaml)")
	feedPath := flag.String("feed", "-", "Path to a newline-delimited JSON report feed, or - for stdin")
	verbose := flag.Bool("verbose", false, "Enable debug logging")
	flag.Parse()
	return *cfgPath, *feedPath, *verbose
}

func newSignalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func initTelemetry(ctx context.Context, appCfg config.AppConfig) (*telemetry.Provider, *telemetry.IngestMetrics, error) {
	telemetryCfg := telemetry.DefaultConfig()
	telemetryCfg.Enabled = appCfg.Telemetry.Enabled
	telemetryCfg.OTLPInsecure = appCfg.Telemetry.OTLPInsecure
	telemetryCfg.Environment = string(appCfg.Environment)
	if appCfg.Telemetry.OTLPEndpoint != "" {
		telemetryCfg.OTLPEndpoint = appCfg.Telemetry.OTLPEndpoint
	}
	if appCfg.Telemetry.ServiceName != "" {
		telemetryCfg.ServiceName = appCfg.Telemetry.ServiceName
	}

	provider, err := telemetry.NewProvider(ctx, telemetryCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("initialize telemetry provider: %w", err)
	}
	if !telemetryCfg.Enabled {
		return provider, nil, nil
	}
	metrics, err := telemetry.NewIngestMetrics(provider.Meter("aistracker/ingest"))
	if err != nil {
		return nil, nil, fmt.Errorf("initialize ingest metrics: %w", err)
	}
	return provider, metrics, nil
}

func openFeed(path string) (io.Reader, func(), error) {
	if path == "" || path == "-" {
		return os.Stdin, func() {}, nil
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open feed %s: %w", path, err)
	}
	return file, func() { _ = file.Close() }, nil
}

// startEventLog subscribes to every event type and logs accepted transitions.
func startEventLog(ctx context.Context, lifecycle *conc.WaitGroup, bus targetbus.Bus) {
	types := []schema.EventType{schema.EventTargetFirstSeen, schema.EventTargetUpdate, schema.EventKindChange}
	for _, typ := range types {
		id, ch, err := bus.Subscribe(ctx, typ)
		if err != nil {
			observability.Log().Error("subscribe event log",
				observability.F("type", string(typ)),
				observability.F("error", err.Error()))
			continue
		}
		lifecycle.Go(func() {
			defer bus.Unsubscribe(id)
			for {
				select {
				case <-ctx.Done():
					return
				case evt, ok := <-ch:
					if !ok {
						return
					}
					if evt == nil {
						continue
					}
					observability.Log().Debug("target event",
						observability.F("type", string(evt.Type)),
						observability.F("mmsi", evt.Target.MMSI),
						observability.F("kind", evt.Target.Kind.String()),
						observability.F("country", evt.Target.Country),
						observability.F("seq", evt.Seq))
				}
			}
		})
	}
}

func shutdownTelemetry(ctx context.Context, provider *telemetry.Provider) {
	if provider == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, telemetryShutdownTimeout)
	defer cancel()
	if err := provider.Shutdown(ctx); err != nil {
		observability.Log().Error("telemetry shutdown", observability.F("error", err.Error()))
	}
}

func drainErrors(ctx context.Context, stage string, errCh <-chan error) {
	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-errCh:
			if !ok {
				return
			}
			if err != nil {
				observability.Log().Error(stage+" error", observability.F("error", err.Error()))
			}
		}
	}
}
