// Package storage defines the vault file-system abstraction used for both
// the source corpus and the converted output.
package storage

import "github.com/starford/logbridge/internal/models"

// Provider is the interface for vault file operations. All paths are
// slash-separated and relative to the vault root.
type Provider interface {
	// List returns every .md document under dir, sorted by path.
	List(dir string) ([]models.SourceFile, error)
	// ListFiles returns every regular file under dir, sorted by path.
	ListFiles(dir string) ([]models.SourceFile, error)
	// Read returns the raw bytes of the file at path.
	Read(path string) ([]byte, error)
	// Write atomically writes content to path.
	Write(path string, content []byte) error
	// Exists reports whether a regular file exists at path.
	Exists(path string) bool
	// Delete removes the file at path.
	Delete(path string) error
	// Root returns the absolute root directory.
	Root() string
}
