// Package storage defines the corpus file-system abstraction.
package storage

import "time"

// Entry describes one child of a directory.
type Entry struct {
	// Path is slash-separated and relative to the root.
	Path    string
	Name    string
	IsDir   bool
	Size    int64
	ModTime time.Time
}

// Provider is the interface for corpus file operations.
type Provider interface {
	// ReadDir lists the direct children of dir (relative to root): files in
	// lexical order first, then subdirectories in lexical order.
	ReadDir(dir string) ([]Entry, error)
	// Read returns the raw bytes of the file at path (relative to root).
	Read(path string) ([]byte, error)
	// Write atomically writes content to path (relative to root).
	Write(path string, content []byte) error
}
