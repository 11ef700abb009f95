// Package hashing computes content digests used for deduplication and
// upload-session identity.
//
// The default Hasher streams file bytes through BLAKE2b-256 and renders the
// sum as 64 lowercase hex characters. When the primitive cannot be
// constructed, NewHasher degrades to an identity key built from file name,
// size and modification time. Such digests are marked Advisory: they are
// good enough to key a resumable session but must never be used to skip an
// upload.
package hashing
