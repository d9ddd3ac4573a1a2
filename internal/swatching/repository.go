package swatching

import "context"

// SwatchRepository persists Swatches and supports similarity search over
// them. SearchSimilar is not required to be backed by an index — the
// in-memory implementation does a brute-force cosine scan; SQL-backed
// implementations may return ErrSearchNotImplemented (see DESIGN.md).
type SwatchRepository interface {
	SaveSwatch(ctx context.Context, s Swatch) error
	SaveSwatchesBatch(ctx context.Context, swatches []Swatch) error
	GetSwatchByID(ctx context.Context, id string) (Swatch, error)
	GetSwatchesByCutID(ctx context.Context, cutID string) ([]Swatch, error)
	GetSwatchesByMaterialID(ctx context.Context, materialID string) ([]Swatch, error)
	DeleteSwatch(ctx context.Context, id string) error
	DeleteSwatchesByCutID(ctx context.Context, cutID string) error
	DeleteSwatchesByMaterialID(ctx context.Context, materialID string) error
	// SearchSimilar returns the topK Swatches most similar to query by
	// cosine similarity, most similar first.
	SearchSimilar(ctx context.Context, query []float32, topK int) ([]Swatch, error)
}
