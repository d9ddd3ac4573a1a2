package materials

import (
	"context"

	"github.com/pandallel/quilt/internal/events"
)

// MaterialRegistry coordinates MaterialRepository persistence with
// QuiltEvent publication. Grounded on original_source's
// materials/registry.rs: Register persists then publishes;
// UpdateStatus only delegates to the repository — stage workers publish
// their own MaterialCut/MaterialSwatched/ProcessingError events once
// their own persistence (cuts, swatches) has succeeded.
type MaterialRegistry struct {
	repo MaterialRepository
	bus  *events.EventBus[events.QuiltEvent]
}

// NewMaterialRegistry wires a repository and event bus together.
func NewMaterialRegistry(repo MaterialRepository, bus *events.EventBus[events.QuiltEvent]) *MaterialRegistry {
	return &MaterialRegistry{repo: repo, bus: bus}
}

// Register persists m and, only on success, publishes MaterialDiscovered.
func (r *MaterialRegistry) Register(ctx context.Context, m Material) error {
	if err := r.repo.Register(ctx, m); err != nil {
		return err
	}
	r.bus.Publish(events.NewMaterialDiscovered(m.ID))
	return nil
}

// UpdateStatus transitions a Material's status. It does not publish an
// event; callers (stage workers) publish their own stage-completion or
// error events after their own persistence succeeds.
func (r *MaterialRegistry) UpdateStatus(ctx context.Context, id string, to MaterialStatus, errMsg *string) error {
	return r.repo.UpdateStatus(ctx, id, to, errMsg)
}

// Get returns a Material by ID.
func (r *MaterialRegistry) Get(ctx context.Context, id string) (Material, error) {
	return r.repo.Get(ctx, id)
}

// FindByPath returns the Material registered at filePath, if any.
func (r *MaterialRegistry) FindByPath(ctx context.Context, filePath string) (Material, error) {
	return r.repo.FindByPath(ctx, filePath)
}

// ListByStatus returns every Material in the given status.
func (r *MaterialRegistry) ListByStatus(ctx context.Context, status MaterialStatus) ([]Material, error) {
	return r.repo.ListByStatus(ctx, status)
}

// ListAll returns every registered Material.
func (r *MaterialRegistry) ListAll(ctx context.Context) ([]Material, error) {
	return r.repo.ListAll(ctx)
}

// CountByStatus returns the zero-seeded per-status Material counts.
func (r *MaterialRegistry) CountByStatus(ctx context.Context) (map[MaterialStatus]int, error) {
	return r.repo.CountByStatus(ctx)
}

// PublishProcessingError publishes a ProcessingError event for a Material
// that failed during stage processing.
func (r *MaterialRegistry) PublishProcessingError(materialID, stage, message string) {
	r.bus.Publish(events.NewProcessingError(materialID, stage, message))
}

// PublishMaterialCut publishes a MaterialCut event.
func (r *MaterialRegistry) PublishMaterialCut(materialID string, cutCount int) {
	r.bus.Publish(events.NewMaterialCut(materialID, cutCount))
}

// PublishMaterialSwatched publishes a MaterialSwatched event.
func (r *MaterialRegistry) PublishMaterialSwatched(materialID string, swatchCount int) {
	r.bus.Publish(events.NewMaterialSwatched(materialID, swatchCount))
}

// Subscribe returns a Subscription over QuiltEvents and its cleanup
// function.
func (r *MaterialRegistry) Subscribe() (*events.Subscription[events.QuiltEvent], func()) {
	return r.bus.Subscribe()
}
