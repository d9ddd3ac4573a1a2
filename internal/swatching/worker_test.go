package swatching

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pandallel/quilt/internal/cutting"
	"github.com/pandallel/quilt/internal/events"
	"github.com/pandallel/quilt/internal/materials"
)

type failingEmbedder struct{}

func (failingEmbedder) Embed(context.Context, string) ([]float32, error) {
	return nil, errors.New("backend unreachable")
}
func (failingEmbedder) ModelName() string    { return "failing" }
func (failingEmbedder) ModelVersion() string { return "v0" }

func setupSwatchingWorker(t *testing.T, embedder EmbeddingService) (*materials.MaterialRegistry, cutting.CutsRepository, SwatchRepository, func()) {
	t.Helper()
	bus := events.NewEventBus[events.QuiltEvent](16, nil)
	matRepo := materials.NewInMemoryMaterialRepository()
	registry := materials.NewMaterialRegistry(matRepo, bus)
	cutsRepo := cutting.NewInMemoryCutsRepository()
	swatchRepo := NewInMemorySwatchRepository()
	worker := NewSwatchingWorker("test-swatching", registry, cutsRepo, swatchRepo, embedder, nil, nil, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	worker.Start(ctx)
	return registry, cutsRepo, swatchRepo, func() {
		cancel()
		worker.Stop()
	}
}

func TestSwatchingWorkerEmbedsAndPersists(t *testing.T) {
	registry, cutsRepo, swatchRepo, teardown := setupSwatchingWorker(t, NewStubEmbeddingService(4))
	defer teardown()
	ctx := context.Background()

	now := time.Now()
	m := materials.Material{
		ID: "m1", FilePath: "doc.txt", FileType: "text",
		CreatedAt: now, UpdatedAt: now, StatusUpdatedAt: now,
		Status: materials.StatusDiscovered,
	}
	if err := registry.Register(ctx, m); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if err := registry.UpdateStatus(ctx, "m1", materials.StatusCut, nil); err != nil {
		t.Fatalf("update status failed: %v", err)
	}
	if err := cutsRepo.SaveCuts(ctx, []cutting.Cut{
		cutting.NewCut(func() string { return "c1" }, "m1", 0, "hello world", now),
	}); err != nil {
		t.Fatalf("save cuts failed: %v", err)
	}

	registry.PublishMaterialCut("m1", 1)

	waitForSwatchingStatus(t, registry, "m1", materials.StatusSwatched)

	swatches, err := swatchRepo.GetSwatchesByMaterialID(ctx, "m1")
	if err != nil {
		t.Fatalf("get swatches failed: %v", err)
	}
	if len(swatches) != 1 {
		t.Fatalf("expected 1 swatch, got %d", len(swatches))
	}
}

func TestSwatchingWorkerEmbeddingFailureTransitionsToError(t *testing.T) {
	registry, cutsRepo, _, teardown := setupSwatchingWorker(t, failingEmbedder{})
	defer teardown()
	ctx := context.Background()

	now := time.Now()
	m := materials.Material{
		ID: "m1", FilePath: "doc.txt", FileType: "text",
		CreatedAt: now, UpdatedAt: now, StatusUpdatedAt: now,
		Status: materials.StatusCut,
	}
	if err := registry.Register(ctx, m); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if err := cutsRepo.SaveCuts(ctx, []cutting.Cut{
		cutting.NewCut(func() string { return "c1" }, "m1", 0, "hello world", now),
	}); err != nil {
		t.Fatalf("save cuts failed: %v", err)
	}

	registry.PublishMaterialCut("m1", 1)

	waitForSwatchingStatus(t, registry, "m1", materials.StatusError)

	got, _ := registry.Get(ctx, "m1")
	if got.Error == nil {
		t.Fatal("expected error message to be set")
	}
}

func waitForSwatchingStatus(t *testing.T, registry *materials.MaterialRegistry, id string, want materials.MaterialStatus) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	tick := time.NewTicker(5 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case <-tick.C:
			m, err := registry.Get(context.Background(), id)
			if err == nil && m.Status == want {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for material %s to reach status %s", id, want)
		}
	}
}
