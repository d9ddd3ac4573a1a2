package materials

import "context"

// MaterialRepository is the persistence contract for Materials.
// InMemoryMaterialRepository and SQLMaterialRepository both implement it.
type MaterialRepository interface {
	// Register persists a newly discovered Material. It returns
	// ErrAlreadyExists if a Material with the same ID is already stored.
	Register(ctx context.Context, m Material) error

	// Get returns a single Material by ID, or ErrNotFound.
	Get(ctx context.Context, id string) (Material, error)

	// FindByPath returns the Material registered at filePath, or
	// ErrNotFound if none exists. Used by DiscoveryWorker to keep rescans
	// idempotent.
	FindByPath(ctx context.Context, filePath string) (Material, error)

	// UpdateStatus transitions a Material to a new status, validating the
	// transition, stamping UpdatedAt/StatusUpdatedAt, and clearing Error
	// unless the new status is StatusError. errMsg is stored (and
	// displayed) only when to == StatusError.
	UpdateStatus(ctx context.Context, id string, to MaterialStatus, errMsg *string) error

	// ListByStatus returns every Material currently in the given status.
	ListByStatus(ctx context.Context, status MaterialStatus) ([]Material, error)

	// ListAll returns every Material in the repository.
	ListAll(ctx context.Context) ([]Material, error)

	// CountByStatus returns a count per status, zero-seeded for every
	// MaterialStatus even when no Material currently occupies it.
	CountByStatus(ctx context.Context) (map[MaterialStatus]int, error)
}
