package cutting

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

func newTestSQLCutsRepo(t *testing.T) *SQLCutsRepository {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	repo, err := NewSQLCutsRepository(context.Background(), db)
	if err != nil {
		t.Fatalf("new repo failed: %v", err)
	}
	return repo
}

func TestSQLSaveCutAndGetByID(t *testing.T) {
	ctx := context.Background()
	repo := newTestSQLCutsRepo(t)
	c := NewCut(func() string { return "c1" }, "m1", 0, "hello", time.Now()).WithDetails(5, 0, 5)

	if err := repo.SaveCut(ctx, c); err != nil {
		t.Fatalf("save cut failed: %v", err)
	}
	got, err := repo.GetCutByID(ctx, "c1")
	if err != nil {
		t.Fatalf("get cut failed: %v", err)
	}
	if got.Content != "hello" || got.MaterialID != "m1" {
		t.Fatalf("unexpected cut: %+v", got)
	}
}

func TestSQLGetCutByIDNotFound(t *testing.T) {
	repo := newTestSQLCutsRepo(t)
	_, err := repo.GetCutByID(context.Background(), "missing")
	if !errors.Is(err, ErrCutNotFound) {
		t.Fatalf("expected ErrCutNotFound, got %v", err)
	}
}

func TestSQLSaveCutsBatchAndGetByMaterial(t *testing.T) {
	ctx := context.Background()
	repo := newTestSQLCutsRepo(t)
	now := time.Now()
	cuts := []Cut{
		NewCut(func() string { return "c1" }, "m1", 0, "first", now),
		NewCut(func() string { return "c2" }, "m1", 1, "second", now),
	}

	if err := repo.SaveCuts(ctx, cuts); err != nil {
		t.Fatalf("save cuts failed: %v", err)
	}

	got, err := repo.GetCutsByMaterialID(ctx, "m1")
	if err != nil {
		t.Fatalf("get cuts by material failed: %v", err)
	}
	if len(got) != 2 || got[0].ChunkIndex != 0 || got[1].ChunkIndex != 1 {
		t.Fatalf("unexpected cuts: %+v", got)
	}

	n, err := repo.CountCutsByMaterialID(ctx, "m1")
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 cuts, got %d", n)
	}
}

func TestSQLSaveCutsBatchRollsBackOnFailure(t *testing.T) {
	ctx := context.Background()
	repo := newTestSQLCutsRepo(t)
	now := time.Now()
	if err := repo.SaveCut(ctx, NewCut(func() string { return "c1" }, "m1", 0, "first", now)); err != nil {
		t.Fatalf("seed cut failed: %v", err)
	}

	dup := []Cut{
		NewCut(func() string { return "c2" }, "m1", 1, "second", now),
		NewCut(func() string { return "c1" }, "m1", 2, "duplicate id", now),
	}
	if err := repo.SaveCuts(ctx, dup); err == nil {
		t.Fatal("expected batch save with a duplicate id to fail")
	}

	got, err := repo.GetCutsByMaterialID(ctx, "m1")
	if err != nil {
		t.Fatalf("get cuts by material failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected the failed batch to be fully rolled back, got %d cuts", len(got))
	}
}

func TestSQLDeleteCutNotFound(t *testing.T) {
	ctx := context.Background()
	repo := newTestSQLCutsRepo(t)
	if err := repo.DeleteCut(ctx, "missing"); !errors.Is(err, ErrCutNotFound) {
		t.Fatalf("expected ErrCutNotFound, got %v", err)
	}
}

func TestSQLDeleteCutAndDeleteByMaterialID(t *testing.T) {
	ctx := context.Background()
	repo := newTestSQLCutsRepo(t)
	now := time.Now()
	cuts := []Cut{
		NewCut(func() string { return "c1" }, "m1", 0, "first", now),
		NewCut(func() string { return "c2" }, "m1", 1, "second", now),
	}
	if err := repo.SaveCuts(ctx, cuts); err != nil {
		t.Fatalf("save cuts failed: %v", err)
	}

	if err := repo.DeleteCut(ctx, "c1"); err != nil {
		t.Fatalf("delete cut failed: %v", err)
	}
	remaining, err := repo.GetCutsByMaterialID(ctx, "m1")
	if err != nil {
		t.Fatalf("get cuts failed: %v", err)
	}
	if len(remaining) != 1 {
		t.Fatalf("expected 1 cut remaining, got %d", len(remaining))
	}

	if err := repo.DeleteCutsByMaterialID(ctx, "m1"); err != nil {
		t.Fatalf("delete cuts by material failed: %v", err)
	}
	n, err := repo.CountCutsByMaterialID(ctx, "m1")
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected 0 cuts after delete, got %d", n)
	}
}
