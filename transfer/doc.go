// Package transfer implements the resumable chunked transfer of a single file.
//
// A Transfer drives one file through the state machine
//
//	Uninitialized -> Transferring -> {Completed | Paused | Aborted | Failed}
//	Paused -> Transferring
//
// sending strictly one chunk at a time to an Endpoint. After every
// acknowledged chunk the new offset is written to the session store before
// the next chunk is requested, so a new process can resume from the last
// acknowledged byte without resending anything before it.
//
// Two endpoints are provided: HTTPEndpoint speaks the tus 1.0 resumable
// upload protocol (POST to create, HEAD for the offset, PATCH with
// Upload-Offset for each chunk), and S3Endpoint maps the same operations
// onto S3 multipart uploads through minio-go.
//
// Retries are governed by a RetryPolicy value: a retry count, a backoff
// schedule and a predicate deciding which errors are transient.
package transfer
