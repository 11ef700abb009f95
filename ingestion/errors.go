package ingestion

import "errors"

var (
	// ErrSessionStoreRequired is returned when a session store is not provided.
	ErrSessionStoreRequired = errors.New("session store required")

	// ErrIndexRequired is returned when a duplicate index is not provided.
	ErrIndexRequired = errors.New("duplicate index required")

	// ErrEndpointRequired is returned when a transfer endpoint is not provided.
	ErrEndpointRequired = errors.New("transfer endpoint required")

	// ErrBatchAborted is returned by Run when Abort cut the batch short.
	ErrBatchAborted = errors.New("batch aborted")

	// ErrAlreadyRunning is returned when Run is called while another batch is in progress.
	ErrAlreadyRunning = errors.New("pipeline is already running a batch")
)
