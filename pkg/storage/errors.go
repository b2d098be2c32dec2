package storage

import "errors"

var (
	// ErrNotFound is returned when a document, revision, or file does not
	// exist or the document has expired. Expired documents are
	// indistinguishable from absent ones.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when creating a document whose key already
	// exists.
	ErrConflict = errors.New("document key already exists")

	// ErrNoFiles is returned when a revision is written with an empty file
	// set. Every revision has at least one file.
	ErrNoFiles = errors.New("revision must contain at least one file")
)
