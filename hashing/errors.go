package hashing

import "errors"

var (
	// ErrReaderRequired is returned when Hash is called without content.
	ErrReaderRequired = errors.New("reader is required")

	// ErrFileNameRequired is returned when the identity fallback has no file name to key on.
	ErrFileNameRequired = errors.New("file name is required")
)
