package materials

import (
	"context"
	"sync"
	"time"
)

// InMemoryMaterialRepository is a process-local MaterialRepository backed
// by a mutex-guarded map. Grounded on original_source's
// materials/repository.rs, extended with the Error -> Discovered
// transition and a by-path lookup (a linear scan of the map, not an
// index) for rescan idempotence.
type InMemoryMaterialRepository struct {
	mu        sync.RWMutex
	materials map[string]Material
	now       func() time.Time
}

// NewInMemoryMaterialRepository creates an empty repository.
func NewInMemoryMaterialRepository() *InMemoryMaterialRepository {
	return &InMemoryMaterialRepository{
		materials: make(map[string]Material),
		now:       time.Now,
	}
}

func (r *InMemoryMaterialRepository) Register(_ context.Context, m Material) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.materials[m.ID]; exists {
		return ErrAlreadyExists
	}
	r.materials[m.ID] = m
	return nil
}

func (r *InMemoryMaterialRepository) Get(_ context.Context, id string) (Material, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.materials[id]
	if !ok {
		return Material{}, ErrNotFound
	}
	return m, nil
}

func (r *InMemoryMaterialRepository) FindByPath(_ context.Context, filePath string) (Material, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, m := range r.materials {
		if m.FilePath == filePath {
			return m, nil
		}
	}
	return Material{}, ErrNotFound
}

func (r *InMemoryMaterialRepository) UpdateStatus(_ context.Context, id string, to MaterialStatus, errMsg *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.materials[id]
	if !ok {
		return ErrNotFound
	}
	if err := ValidateTransition(m.Status, to); err != nil {
		return err
	}
	now := r.now()
	m.Status = to
	m.UpdatedAt = now
	m.StatusUpdatedAt = now
	if to == StatusError {
		m.Error = errMsg
	} else {
		m.Error = nil
	}
	r.materials[id] = m
	return nil
}

func (r *InMemoryMaterialRepository) ListByStatus(_ context.Context, status MaterialStatus) ([]Material, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Material
	for _, m := range r.materials {
		if m.Status == status {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *InMemoryMaterialRepository) ListAll(_ context.Context) ([]Material, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Material, 0, len(r.materials))
	for _, m := range r.materials {
		out = append(out, m)
	}
	return out, nil
}

func (r *InMemoryMaterialRepository) CountByStatus(_ context.Context) (map[MaterialStatus]int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	counts := make(map[MaterialStatus]int, len(AllStatuses))
	for _, s := range AllStatuses {
		counts[s] = 0
	}
	for _, m := range r.materials {
		counts[m.Status]++
	}
	return counts, nil
}

var _ MaterialRepository = (*InMemoryMaterialRepository)(nil)
