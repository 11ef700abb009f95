// Package ingestion orchestrates a batch of local files through validation,
// hashing, duplicate detection, classification and chunked transfer.
//
// A Pipeline schedules files on a bounded worker pool in rounds of its
// concurrency, pausing between rounds. Each file ends in exactly one
// core.TransferResult, returned in input order. A failing file never affects
// its siblings. Canceling the context pauses in-flight transfers and keeps
// their sessions for a later run; Abort discards them.
package ingestion
