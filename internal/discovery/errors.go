package discovery

import "fmt"

// DirectoryNotFoundError reports a scan target that does not exist.
type DirectoryNotFoundError struct {
	Path string
}

func (e *DirectoryNotFoundError) Error() string {
	return fmt.Sprintf("discovery: directory not found: %s", e.Path)
}

func NewDirectoryNotFoundError(path string) *DirectoryNotFoundError {
	return &DirectoryNotFoundError{Path: path}
}
