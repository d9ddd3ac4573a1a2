package cutting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pandallel/quilt/internal/events"
	"github.com/pandallel/quilt/internal/materials"
	"github.com/pandallel/quilt/pkg/metrics"
)

const internalQueueCapacity = 128

// workItem is forwarded from the listener task to the processor task.
type workItem struct {
	materialID string
}

// CuttingWorker consumes MaterialDiscovered events, reads each Material's
// file, splits it into Cuts via TextCutter, persists the Cuts, and
// transitions the Material to Cut. It is split into a listener task (bus
// consumption) and a processor task (the actual I/O-bound work),
// decoupled by a bounded internal queue — grounded on
// original_source's swatching/actor.rs (the cutting/actor.rs snapshot in
// the original had not yet been upgraded to this split).
type CuttingWorker struct {
	name     string
	registry *materials.MaterialRegistry
	cutsRepo CutsRepository
	cutter   *TextCutter
	logger   *slog.Logger

	processed *metrics.Counter
	failed    *metrics.Counter
	duration  *metrics.Histogram

	workCh chan workItem
	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// NewCuttingWorker constructs a CuttingWorker. Start must be called to
// begin processing. If reg is nil a private registry is created so the
// worker's counters are always safe to increment.
func NewCuttingWorker(name string, registry *materials.MaterialRegistry, cutsRepo CutsRepository, cutter *TextCutter, logger *slog.Logger, reg *metrics.Registry) *CuttingWorker {
	if logger == nil {
		logger = slog.Default()
	}
	if reg == nil {
		reg = metrics.New()
	}
	return &CuttingWorker{
		name:      name,
		registry:  registry,
		cutsRepo:  cutsRepo,
		cutter:    cutter,
		logger:    logger,
		processed: reg.Counter("quilt_cutting_processed_total", "materials successfully cut"),
		failed:    reg.Counter("quilt_cutting_failed_total", "materials that failed cutting"),
		duration:  reg.Histogram("quilt_cutting_duration_seconds", "time spent cutting one material", nil),
	}
}

// Start subscribes to the event bus and launches the listener and
// processor goroutines. ctx governs both tasks' lifetime.
func (w *CuttingWorker) Start(ctx context.Context) {
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
func (w *CuttingWorker) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}

func (w *CuttingWorker) listen(ctx context.Context, sub *events.Subscription[events.QuiltEvent], unsubscribe func()) {
	defer w.wg.Done()
	defer unsubscribe()
	defer close(w.workCh)

	for {
		evt, err := sub.Recv(ctx)
		if err != nil {
			var lagErr *events.LaggedError
			if errors.As(err, &lagErr) {
				w.logger.Warn("cutting worker subscription lagged", "dropped", lagErr.N)
				continue
			}
			return
		}
		if evt.Kind != events.MaterialDiscovered {
			continue
		}
		item := workItem{materialID: evt.MaterialID}
		select {
		case w.workCh <- item:
		case <-ctx.Done():
			return
		default:
			w.logger.Warn("cutting worker internal queue full, dropping work item", "material_id", evt.MaterialID)
		}
	}
}

func (w *CuttingWorker) process(ctx context.Context) {
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

// processMaterial performs the full read -> cut -> persist -> transition
// chain for one Material. Per-material failures are reported via a
// ProcessingError event and an Error transition — they never propagate
// up to kill the worker.
func (w *CuttingWorker) processMaterial(ctx context.Context, materialID string) {
	start := time.Now()
	defer w.duration.Since(start)

	m, err := w.registry.Get(ctx, materialID)
	if err != nil {
		w.fail(materialID, fmt.Sprintf("material not found: %s", err))
		return
	}

	content, err := os.ReadFile(m.FilePath)
	if err != nil {
		w.fail(materialID, fmt.Sprintf("read file: %s", err))
		w.transitionToError(ctx, materialID, fmt.Sprintf("read file: %s", err))
		return
	}

	chunks, err := w.cutter.Cut(string(content))
	if err != nil {
		msg := fmt.Sprintf("cut content: %s", err)
		w.fail(materialID, msg)
		w.transitionToError(ctx, materialID, msg)
		return
	}

	now := time.Now()
	cuts := make([]Cut, len(chunks))
	for i, ch := range chunks {
		start, end := ch.ByteStart, ch.ByteEnd
		cuts[i] = NewCut(uuid.NewString, materialID, ch.Sequence, ch.Content, now).
			WithDetails(len(ch.Content), start, end)
	}

	if len(cuts) > 0 {
		if err := w.cutsRepo.SaveCuts(ctx, cuts); err != nil {
			msg := fmt.Sprintf("save cuts: %s", err)
			w.fail(materialID, msg)
			w.transitionToError(ctx, materialID, msg)
			return
		}
	}

	if err := w.registry.UpdateStatus(ctx, materialID, materials.StatusCut, nil); err != nil {
		// Roll back the just-saved batch before reporting the error.
		_ = w.cutsRepo.DeleteCutsByMaterialID(ctx, materialID)
		msg := fmt.Sprintf("transition to cut: %s", err)
		w.fail(materialID, msg)
		w.transitionToError(ctx, materialID, msg)
		return
	}

	w.registry.PublishMaterialCut(materialID, len(cuts))
	w.processed.Inc()
}

func (w *CuttingWorker) fail(materialID, message string) {
	w.logger.Error("cutting failed", "material_id", materialID, "error", message)
	w.failed.Inc()
	w.registry.PublishProcessingError(materialID, "cutting", message)
}

// transitionToError attempts to move the Material to StatusError. This
// can itself fail (e.g. a concurrent transition already moved it); that
// failure is logged but not re-reported, matching the spec's discipline
// that a ProcessingError event has already been published for the
// original failure.
func (w *CuttingWorker) transitionToError(ctx context.Context, materialID, message string) {
	if err := w.registry.UpdateStatus(ctx, materialID, materials.StatusError, &message); err != nil {
		w.logger.Error("failed to transition material to error", "material_id", materialID, "error", err)
	}
}
