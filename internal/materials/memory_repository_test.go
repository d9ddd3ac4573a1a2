package materials

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newTestMaterial(id, path string) Material {
	now := time.Now()
	return Material{
		ID:              id,
		FilePath:        path,
		FileType:        FileTypeFromPath(path),
		CreatedAt:       now,
		UpdatedAt:       now,
		StatusUpdatedAt: now,
		Status:          StatusDiscovered,
	}
}

func TestRegisterAndGet(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemoryMaterialRepository()
	m := newTestMaterial("m1", "/docs/a.md")

	if err := repo.Register(ctx, m); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	got, err := repo.Get(ctx, "m1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.FilePath != m.FilePath || got.Status != StatusDiscovered {
		t.Fatalf("unexpected material: %+v", got)
	}
}

func TestRegisterDuplicateRejected(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemoryMaterialRepository()
	m := newTestMaterial("m1", "/docs/a.md")
	if err := repo.Register(ctx, m); err != nil {
		t.Fatalf("first register failed: %v", err)
	}
	err := repo.Register(ctx, m)
	if !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
}

func TestGetNotFound(t *testing.T) {
	repo := NewInMemoryMaterialRepository()
	_, err := repo.Get(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestFindByPath(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemoryMaterialRepository()
	m := newTestMaterial("m1", "/docs/a.md")
	_ = repo.Register(ctx, m)

	got, err := repo.FindByPath(ctx, "/docs/a.md")
	if err != nil {
		t.Fatalf("find by path failed: %v", err)
	}
	if got.ID != "m1" {
		t.Fatalf("expected m1, got %s", got.ID)
	}

	if _, err := repo.FindByPath(ctx, "/docs/missing.md"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateStatusValidTransition(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemoryMaterialRepository()
	m := newTestMaterial("m1", "/docs/a.md")
	_ = repo.Register(ctx, m)

	if err := repo.UpdateStatus(ctx, "m1", StatusCut, nil); err != nil {
		t.Fatalf("update status failed: %v", err)
	}
	got, _ := repo.Get(ctx, "m1")
	if got.Status != StatusCut {
		t.Fatalf("expected status cut, got %s", got.Status)
	}
	if !got.UpdatedAt.Equal(got.StatusUpdatedAt) {
		t.Fatalf("expected updated_at == status_updated_at, got %v vs %v", got.UpdatedAt, got.StatusUpdatedAt)
	}
}

func TestUpdateStatusInvalidTransition(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemoryMaterialRepository()
	m := newTestMaterial("m1", "/docs/a.md")
	_ = repo.Register(ctx, m)

	err := repo.UpdateStatus(ctx, "m1", StatusSwatched, nil)
	var ite *InvalidTransitionError
	if !errors.As(err, &ite) {
		t.Fatalf("expected *InvalidTransitionError, got %v", err)
	}
}

func TestUpdateStatusErrorClearsOnRecovery(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemoryMaterialRepository()
	m := newTestMaterial("m1", "/docs/a.md")
	_ = repo.Register(ctx, m)

	msg := "read failed"
	if err := repo.UpdateStatus(ctx, "m1", StatusError, &msg); err != nil {
		t.Fatalf("transition to error failed: %v", err)
	}
	got, _ := repo.Get(ctx, "m1")
	if got.Error == nil || *got.Error != msg {
		t.Fatalf("expected error message set, got %+v", got.Error)
	}

	if err := repo.UpdateStatus(ctx, "m1", StatusDiscovered, nil); err != nil {
		t.Fatalf("retry transition failed: %v", err)
	}
	got, _ = repo.Get(ctx, "m1")
	if got.Error != nil {
		t.Fatalf("expected error cleared, got %+v", got.Error)
	}
	if got.Status != StatusDiscovered {
		t.Fatalf("expected status discovered, got %s", got.Status)
	}
}

func TestListByStatusAndCountByStatus(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemoryMaterialRepository()
	_ = repo.Register(ctx, newTestMaterial("m1", "/a.md"))
	_ = repo.Register(ctx, newTestMaterial("m2", "/b.md"))
	_ = repo.Register(ctx, newTestMaterial("m3", "/c.md"))
	_ = repo.UpdateStatus(ctx, "m2", StatusCut, nil)

	discovered, err := repo.ListByStatus(ctx, StatusDiscovered)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(discovered) != 2 {
		t.Fatalf("expected 2 discovered, got %d", len(discovered))
	}

	counts, err := repo.CountByStatus(ctx)
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if counts[StatusDiscovered] != 2 {
		t.Fatalf("expected 2 discovered, got %d", counts[StatusDiscovered])
	}
	if counts[StatusCut] != 1 {
		t.Fatalf("expected 1 cut, got %d", counts[StatusCut])
	}
	// Zero-seeded even when no Material occupies these statuses.
	if counts[StatusSwatched] != 0 {
		t.Fatalf("expected 0 swatched, got %d", counts[StatusSwatched])
	}
	if counts[StatusError] != 0 {
		t.Fatalf("expected 0 error, got %d", counts[StatusError])
	}
}

func TestListAll(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemoryMaterialRepository()
	_ = repo.Register(ctx, newTestMaterial("m1", "/a.md"))
	_ = repo.Register(ctx, newTestMaterial("m2", "/b.md"))

	all, err := repo.ListAll(ctx)
	if err != nil {
		t.Fatalf("list all failed: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 materials, got %d", len(all))
	}
}
