package transfer

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/poiesic/filedrop/core"
)

var (
	// ErrEndpointRequired is returned when a Transfer is created without an endpoint.
	ErrEndpointRequired = errors.New("endpoint is required")

	// ErrStoreRequired is returned when a Transfer is created without a session store.
	ErrStoreRequired = errors.New("session store is required")

	// ErrSourceRequired is returned when a Transfer has nothing to read from.
	ErrSourceRequired = errors.New("source reader is required")

	// ErrDigestRequired is returned when a Transfer's source has no content digest.
	ErrDigestRequired = errors.New("source digest is required")

	// ErrInvalidState is returned when an operation is not allowed in the current state.
	ErrInvalidState = errors.New("invalid transfer state")

	// ErrUnexpectedStatus indicates a non-2xx response from the endpoint. It is transient.
	ErrUnexpectedStatus = errors.New("unexpected status")

	// ErrLocationMissing indicates the endpoint created an upload without returning its location.
	ErrLocationMissing = errors.New("upload location missing")

	// ErrRemoteGone indicates the endpoint no longer knows the upload.
	ErrRemoteGone = errors.New("upload no longer exists on endpoint")

	// ErrSessionLost indicates the persisted session vanished while the transfer was paused.
	ErrSessionLost = errors.New("upload session lost")

	// ErrInvalidLocation indicates a location string the endpoint cannot parse.
	ErrInvalidLocation = errors.New("invalid upload location")

	// ErrPaused is returned by chunk operations interrupted by Pause or by
	// cancellation of the caller's context.
	ErrPaused = fmt.Errorf("%w: transfer paused", core.ErrCanceled)

	// ErrAborted is returned by chunk operations interrupted by Abort.
	ErrAborted = fmt.Errorf("%w: transfer aborted", core.ErrCanceled)
)

// StatusError reports an unexpected HTTP status from the endpoint.
type StatusError struct {
	Method string
	Code   int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: %s %d %s", ErrUnexpectedStatus, e.Method, e.Code, http.StatusText(e.Code))
}

func (e *StatusError) Unwrap() error {
	return ErrUnexpectedStatus
}
