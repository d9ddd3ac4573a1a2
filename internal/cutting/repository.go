package cutting

import "context"

// CutsRepository is the persistence contract for Cuts.
type CutsRepository interface {
	// SaveCut persists a single Cut.
	SaveCut(ctx context.Context, c Cut) error

	// SaveCuts persists a batch atomically: if any Cut in the batch
	// collides with an existing ID or with another Cut in the same batch,
	// none are saved.
	SaveCuts(ctx context.Context, cuts []Cut) error

	// GetCutByID returns a single Cut, or ErrCutNotFound.
	GetCutByID(ctx context.Context, id string) (Cut, error)

	// GetCutsByMaterialID returns all Cuts for a Material, ordered by
	// ascending ChunkIndex.
	GetCutsByMaterialID(ctx context.Context, materialID string) ([]Cut, error)

	// DeleteCut removes a single Cut, or returns ErrCutNotFound if it does
	// not exist.
	DeleteCut(ctx context.Context, id string) error

	// DeleteCutsByMaterialID removes every Cut for a Material. It is not
	// an error if none exist.
	DeleteCutsByMaterialID(ctx context.Context, materialID string) error

	// CountCutsByMaterialID returns how many Cuts exist for a Material.
	CountCutsByMaterialID(ctx context.Context, materialID string) (int, error)
}
