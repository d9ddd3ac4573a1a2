// Package orchestrator wires the EventBus, repositories, registry, and
// stage workers together and drives a single end-to-end discovery ->
// cutting -> swatching run.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pandallel/quilt/internal/cutting"
	"github.com/pandallel/quilt/internal/discovery"
	"github.com/pandallel/quilt/internal/events"
	"github.com/pandallel/quilt/internal/materials"
	"github.com/pandallel/quilt/internal/swatching"
	"github.com/pandallel/quilt/pkg/metrics"
	"github.com/pandallel/quilt/pkg/resilience"
)

const defaultPollInterval = 25 * time.Millisecond

// Config controls a single orchestrator run.
type Config struct {
	DiscoveryDir    string
	IgnoreHidden    bool
	ExcludePatterns []string
	Timeout         time.Duration
}

// Deps are the repositories and services the Orchestrator wires into its
// stage workers. MaterialRepo, CutsRepo, and SwatchRepo may be either the
// in-memory or SQL-backed implementations of their respective
// repositories.
type Deps struct {
	MaterialRepo materials.MaterialRepository
	CutsRepo     cutting.CutsRepository
	SwatchRepo   swatching.SwatchRepository
	Embedder     swatching.EmbeddingService
	Breaker      *resilience.Breaker
	// Limiter caps the embedding call rate; nil disables rate limiting.
	Limiter *resilience.Limiter
	Logger  *slog.Logger
	// CutterConfig defaults to cutting.DefaultCutterConfig() if left zero.
	CutterConfig cutting.CutterConfig
}

// Orchestrator owns the event bus and every stage worker for one run of
// the pipeline. Grounded on original_source's orchestrator.rs, extended
// to wire all three workers (the original snapshot only wired
// Discovery) and to detect completion by polling Material status counts
// rather than a fixed sleep.
type Orchestrator struct {
	bus             *events.EventBus[events.QuiltEvent]
	registry        *materials.MaterialRegistry
	discoveryWorker *discovery.DiscoveryWorker
	cuttingWorker   *cutting.CuttingWorker
	swatchingWorker *swatching.SwatchingWorker
	logger          *slog.Logger
	metrics         *metrics.Registry
}

// Metrics returns the Registry backing this run's worker counters and
// histograms, rendered in Prometheus text exposition format on demand by
// callers (Quilt has no network surface, so nothing serves it over HTTP).
func (o *Orchestrator) Metrics() *metrics.Registry {
	return o.metrics
}

// New wires an Orchestrator from the given dependencies.
func New(deps Deps) *Orchestrator {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	bus := events.NewEventBus[events.QuiltEvent](events.DefaultBufferSize, logger)
	registry := materials.NewMaterialRegistry(deps.MaterialRepo, bus)

	cutterConfig := deps.CutterConfig
	if (cutterConfig == cutting.CutterConfig{}) {
		cutterConfig = cutting.DefaultCutterConfig()
	}
	cutter := cutting.NewTextCutter(cutterConfig)
	reg := metrics.New()

	return &Orchestrator{
		bus:             bus,
		registry:        registry,
		discoveryWorker: discovery.NewDiscoveryWorker("discovery", registry, logger, reg),
		cuttingWorker:   cutting.NewCuttingWorker("cutting", registry, deps.CutsRepo, cutter, logger, reg),
		swatchingWorker: swatching.NewSwatchingWorker("swatching", registry, deps.CutsRepo, deps.SwatchRepo, deps.Embedder, deps.Breaker, deps.Limiter, logger, reg),
		logger:          logger,
		metrics:         reg,
	}
}

// Run starts the stage workers, triggers discovery, and blocks until
// every registered Material reaches a terminal state (Swatched or
// Error) or cfg.Timeout elapses — whichever comes first. Workers are
// always stopped before Run returns.
func (o *Orchestrator) Run(ctx context.Context, cfg Config) (discovery.Result, error) {
	o.logger.Info("orchestrator starting")

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	o.cuttingWorker.Start(runCtx)
	o.swatchingWorker.Start(runCtx)
	defer o.swatchingWorker.Stop()
	defer o.cuttingWorker.Stop()

	result, err := o.discoveryWorker.Discover(ctx, discovery.Config{
		Directory:       cfg.DiscoveryDir,
		IgnoreHidden:    cfg.IgnoreHidden,
		ExcludePatterns: cfg.ExcludePatterns,
	})
	if err != nil {
		return result, fmt.Errorf("orchestrator: discovery failed: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	done := make(chan struct{})
	go func() {
		o.awaitCompletion(runCtx)
		close(done)
	}()

	select {
	case <-done:
		o.logger.Info("pipeline completed")
	case <-time.After(timeout):
		o.logger.Error("pipeline timed out, forcing shutdown", "timeout", timeout)
	case <-ctx.Done():
	}

	o.bus.Publish(events.NewSystemShutdown())
	return result, nil
}

// awaitCompletion polls Material status counts until no Material remains
// in Discovered or Cut — the two non-terminal states.
func (o *Orchestrator) awaitCompletion(ctx context.Context) {
	ticker := time.NewTicker(defaultPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			counts, err := o.registry.CountByStatus(ctx)
			if err != nil {
				o.logger.Error("failed to poll material status counts", "error", err)
				continue
			}
			if counts[materials.StatusDiscovered] == 0 && counts[materials.StatusCut] == 0 {
				return
			}
		}
	}
}
