package swatching

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pandallel/quilt/internal/cutting"
	"github.com/pandallel/quilt/internal/events"
	"github.com/pandallel/quilt/internal/materials"
	"github.com/pandallel/quilt/pkg/fn"
	"github.com/pandallel/quilt/pkg/metrics"
	"github.com/pandallel/quilt/pkg/resilience"
)

const internalQueueCapacity = 128

// embedConcurrency bounds how many of a material's cuts are embedded at
// once via fn.ParMapResult.
const embedConcurrency = 4

// embedRetryOpts retries a single cut's embed call once (two attempts in
// all) after a short backoff before letting the failure reach the breaker —
// tuned for in-process/local backends, unlike fn.DefaultRetry's
// network-call-oriented waits.
var embedRetryOpts = fn.RetryOpts{
	MaxAttempts: 2,
	InitialWait: 20 * time.Millisecond,
	MaxWait:     200 * time.Millisecond,
	Jitter:      true,
}

type workItem struct {
	materialID string
}

// SwatchingWorker consumes MaterialCut events, embeds each of the
// Material's Cuts, persists the resulting Swatches, and transitions the
// Material to Swatched. Like CuttingWorker it is split into a listener
// task and a processor task decoupled by a bounded internal queue.
//
// Embedding calls are wrapped in an fn.Stage composed, innermost first,
// with retry-with-backoff (fn.RetryStage) for transient failures, an
// optional rate limiter (resilience.LimiterStageWait) to cap request
// rate against the embedding backend, and an optional circuit breaker
// (resilience.BreakerStage): a string of consecutive embedding failures
// trips the breaker and fails fast instead of piling up in-flight HTTP
// calls against a struggling embedding backend. A material's cuts are
// then embedded with bounded concurrency via fn.ParMapResult.
type SwatchingWorker struct {
	name       string
	registry   *materials.MaterialRegistry
	cutsRepo   cutting.CutsRepository
	swatchRepo SwatchRepository
	embedStage fn.Stage[string, []float32]
	embedder   EmbeddingService
	logger     *slog.Logger

	processed *metrics.Counter
	failed    *metrics.Counter
	duration  *metrics.Histogram

	workCh chan workItem
	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// NewSwatchingWorker constructs a SwatchingWorker. breaker and limiter
// may be nil, in which case embedding calls skip that stage entirely.
// reg may be nil, in which case a private registry is created.
func NewSwatchingWorker(name string, registry *materials.MaterialRegistry, cutsRepo cutting.CutsRepository, swatchRepo SwatchRepository, embedder EmbeddingService, breaker *resilience.Breaker, limiter *resilience.Limiter, logger *slog.Logger, reg *metrics.Registry) *SwatchingWorker {
	if logger == nil {
		logger = slog.Default()
	}
	if reg == nil {
		reg = metrics.New()
	}

	embedStage := fn.Stage[string, []float32](func(ctx context.Context, text string) fn.Result[[]float32] {
		vec, err := embedder.Embed(ctx, text)
		if err != nil {
			return fn.Err[[]float32](NewGenerationError(err))
		}
		return fn.Ok(vec)
	})
	embedStage = fn.RetryStage(embedRetryOpts, embedStage)
	if limiter != nil {
		embedStage = resilience.LimiterStageWait(limiter, embedStage)
	}
	embedStage = fn.TracedStage("swatching.embed", embedStage)
	if breaker != nil {
		embedStage = resilience.BreakerStage(breaker, embedStage)
	}

	return &SwatchingWorker{
		name:       name,
		registry:   registry,
		cutsRepo:   cutsRepo,
		swatchRepo: swatchRepo,
		embedStage: embedStage,
		embedder:   embedder,
		logger:     logger,
		processed:  reg.Counter("quilt_swatching_processed_total", "materials successfully swatched"),
		failed:     reg.Counter("quilt_swatching_failed_total", "materials that failed swatching"),
		duration:   reg.Histogram("quilt_swatching_duration_seconds", "time spent swatching one material", nil),
	}
}

// Start subscribes to the event bus and launches the listener and
// processor goroutines.
func (w *SwatchingWorker) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.workCh = make(chan workItem, internalQueueCapacity)

	sub, unsubscribe := w.registry.Subscribe()

	w.wg.Add(2)
	go w.listen(runCtx, sub, unsubscribe)
	go w.process(runCtx)
}

// Stop cancels both tasks and waits for them to exit. The processor
// finishes the Material it is handling but does not drain the internal
// queue: work items still queued at cancellation are not processed.
func (w *SwatchingWorker) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}

func (w *SwatchingWorker) listen(ctx context.Context, sub *events.Subscription[events.QuiltEvent], unsubscribe func()) {
	defer w.wg.Done()
	defer unsubscribe()
	defer close(w.workCh)

	for {
		evt, err := sub.Recv(ctx)
		if err != nil {
			var lagErr *events.LaggedError
			if errors.As(err, &lagErr) {
				w.logger.Warn("swatching worker subscription lagged", "dropped", lagErr.N)
				continue
			}
			return
		}
		if evt.Kind != events.MaterialCut {
			continue
		}
		item := workItem{materialID: evt.MaterialID}
		select {
		case w.workCh <- item:
		case <-ctx.Done():
			return
		default:
			w.logger.Warn("swatching worker internal queue full, dropping work item", "material_id", evt.MaterialID)
		}
	}
}

func (w *SwatchingWorker) process(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case item, ok := <-w.workCh:
			if !ok {
				return
			}
			w.processMaterial(ctx, item.materialID)
		}
	}
}

// processMaterial embeds every Cut belonging to materialID, persists the
// resulting Swatches, and transitions the Material to Swatched. Failures
// are reported via ProcessingError events and an Error transition; they
// never propagate to kill the worker.
func (w *SwatchingWorker) processMaterial(ctx context.Context, materialID string) {
	start := time.Now()
	defer w.duration.Since(start)

	cuts, err := w.cutsRepo.GetCutsByMaterialID(ctx, materialID)
	if err != nil {
		msg := fmt.Sprintf("list cuts: %s", err)
		w.fail(materialID, msg)
		w.transitionToError(ctx, materialID, msg)
		return
	}

	now := time.Now()
	contents := fn.Map(cuts, func(c cutting.Cut) string { return c.Content })
	results := fn.ParMapResult(contents, embedConcurrency, func(text string) fn.Result[[]float32] {
		return w.embedStage(ctx, text)
	})

	swatches := make([]Swatch, 0, len(cuts))
	for i, result := range results {
		vec, err := result.Unwrap()
		if err != nil {
			msg := fmt.Sprintf("embed cut %s: %s", cuts[i].ID, err)
			w.fail(materialID, msg)
			w.transitionToError(ctx, materialID, msg)
			return
		}
		swatches = append(swatches, NewSwatch(uuid.NewString, cuts[i].ID, materialID, vec, w.embedder.ModelName(), w.embedder.ModelVersion(), now))
	}

	if len(swatches) > 0 {
		if err := w.swatchRepo.SaveSwatchesBatch(ctx, swatches); err != nil {
			msg := fmt.Sprintf("save swatches: %s", err)
			w.fail(materialID, msg)
			w.transitionToError(ctx, materialID, msg)
			return
		}
	}

	if err := w.registry.UpdateStatus(ctx, materialID, materials.StatusSwatched, nil); err != nil {
		_ = w.swatchRepo.DeleteSwatchesByMaterialID(ctx, materialID)
		msg := fmt.Sprintf("transition to swatched: %s", err)
		w.fail(materialID, msg)
		w.transitionToError(ctx, materialID, msg)
		return
	}

	w.registry.PublishMaterialSwatched(materialID, len(swatches))
	w.processed.Inc()
}

func (w *SwatchingWorker) fail(materialID, message string) {
	w.logger.Error("swatching failed", "material_id", materialID, "error", message)
	w.failed.Inc()
	w.registry.PublishProcessingError(materialID, "swatching", message)
}

func (w *SwatchingWorker) transitionToError(ctx context.Context, materialID, message string) {
	if err := w.registry.UpdateStatus(ctx, materialID, materials.StatusError, &message); err != nil {
		w.logger.Error("failed to transition material to error", "material_id", materialID, "error", err)
	}
}
