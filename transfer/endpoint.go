package transfer

import "context"

// CreateRequest describes a new upload to negotiate with an endpoint.
type CreateRequest struct {
	FileName       string
	SizeBytes      int64
	MimeType       string
	Digest         string
	ScopeID        string
	ChunkSizeBytes int64
}

// Endpoint is a remote blob destination that accepts uploads in offset order.
type Endpoint interface {
	// Create negotiates a destination for a new upload and returns its location.
	Create(ctx context.Context, req CreateRequest) (location string, err error)

	// Offset returns the number of bytes the endpoint has acknowledged for location.
	Offset(ctx context.Context, location string) (int64, error)

	// WriteChunk sends chunk at offset and returns the new acknowledged offset.
	WriteChunk(ctx context.Context, location string, offset int64, chunk []byte) (int64, error)

	// Complete finalizes a fully acknowledged upload and returns the record ID.
	Complete(ctx context.Context, location string, totalBytes int64) (recordID string, err error)

	// Terminate discards an upload. Terminating an unknown upload is not an error.
	Terminate(ctx context.Context, location string) error
}
