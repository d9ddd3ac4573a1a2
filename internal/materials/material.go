// Package materials implements the Material domain type, its state
// machine, repository contracts, and the registry that ties repository
// persistence to event-bus publication.
package materials

import (
	"path/filepath"
	"strings"
	"time"
)

// MaterialStatus is one of the four states a Material can occupy.
type MaterialStatus string

const (
	StatusDiscovered MaterialStatus = "discovered"
	StatusCut        MaterialStatus = "cut"
	StatusSwatched   MaterialStatus = "swatched"
	StatusError      MaterialStatus = "error"
)

// AllStatuses lists every MaterialStatus, in a stable order used for
// zero-seeding count_by_status results.
var AllStatuses = []MaterialStatus{StatusDiscovered, StatusCut, StatusSwatched, StatusError}

// Material is a single discovered file moving through the pipeline.
type Material struct {
	ID              string
	FilePath        string
	FileType        string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	StatusUpdatedAt time.Time
	Status          MaterialStatus
	Error           *string
}

// FileTypeFromPath classifies a file by its extension. Unrecognized
// extensions fall back to the extension itself (without the dot), or
// "other" if there is none.
func FileTypeFromPath(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".md", ".markdown":
		return "markdown"
	case ".txt":
		return "text"
	case "":
		return "other"
	default:
		return strings.TrimPrefix(ext, ".")
	}
}

// NewMaterial constructs a freshly discovered Material with a generated ID.
func NewMaterial(idGen func() string, filePath string, now time.Time) Material {
	return Material{
		ID:              idGen(),
		FilePath:        filePath,
		FileType:        FileTypeFromPath(filePath),
		CreatedAt:       now,
		UpdatedAt:       now,
		StatusUpdatedAt: now,
		Status:          StatusDiscovered,
		Error:           nil,
	}
}
