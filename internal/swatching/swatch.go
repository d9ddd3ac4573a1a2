// Package swatching implements the Swatching stage: generating an
// embedding vector for each Cut and persisting the result as a Swatch.
package swatching

import "time"

// Swatch is an embedding vector generated for a single Cut.
type Swatch struct {
	ID                  string
	CutID               string
	MaterialID          string
	Embedding           []float32
	ModelName           string
	ModelVersion        string
	Dimensions          int
	CreatedAt           time.Time
	SimilarityThreshold *float32
	Metadata            map[string]any
}

// NewSwatch constructs a Swatch from a freshly generated embedding.
func NewSwatch(idGen func() string, cutID, materialID string, embedding []float32, modelName, modelVersion string, now time.Time) Swatch {
	return Swatch{
		ID:           idGen(),
		CutID:        cutID,
		MaterialID:   materialID,
		Embedding:    embedding,
		ModelName:    modelName,
		ModelVersion: modelVersion,
		Dimensions:   len(embedding),
		CreatedAt:    now,
	}
}

// WithSimilarityThreshold attaches an optional per-swatch similarity
// cutoff. It is stored with the Swatch; SearchSimilar does not apply it.
func (s Swatch) WithSimilarityThreshold(threshold float32) Swatch {
	s.SimilarityThreshold = &threshold
	return s
}

// WithMetadata attaches arbitrary caller-supplied metadata.
func (s Swatch) WithMetadata(metadata map[string]any) Swatch {
	s.Metadata = metadata
	return s
}
