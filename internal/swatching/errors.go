package swatching

import (
	"errors"
	"fmt"
)

var (
	ErrSwatchNotFound      = errors.New("swatch: not found")
	ErrSwatchAlreadyExists = errors.New("swatch: already exists")
	ErrSearchNotImplemented = errors.New("swatch: similarity search not implemented for this repository")
)

// GenerationError wraps a failure from an EmbeddingService.
type GenerationError struct {
	Wrapped error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("swatching: embedding generation failed: %s", e.Wrapped)
}
func (e *GenerationError) Unwrap() error { return e.Wrapped }

func NewGenerationError(err error) *GenerationError {
	return &GenerationError{Wrapped: err}
}

// StorageError wraps a lower-level persistence failure.
type StorageError struct {
	Op      string
	Wrapped error
}

func (e *StorageError) Error() string { return fmt.Sprintf("swatching: %s: %s", e.Op, e.Wrapped) }
func (e *StorageError) Unwrap() error { return e.Wrapped }

func NewStorageError(op string, err error) *StorageError {
	return &StorageError{Op: op, Wrapped: err}
}
