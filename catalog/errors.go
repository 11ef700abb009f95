package catalog

import "errors"

var (
	// ErrDigestRequired is returned when Check is called without a digest.
	ErrDigestRequired = errors.New("digest is required")

	// ErrUnexpectedStatus indicates a non-2xx response from the catalog service.
	ErrUnexpectedStatus = errors.New("unexpected catalog status")
)
