// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


// Package storage provides the session persistence abstraction for filedrop.
//
// A SessionStore is a passive ledger of UploadSession records keyed by
// content digest. It never mutates a session on its own: the transfer that
// created a session is its only writer, so writes are naturally partitioned
// by key and need no cross-transfer locking. Concurrent writes to the same
// key resolve last-write-wins.
//
// # Expiry
//
// Every session carries a fixed TTL from creation (24h by default).
// Get and ListAll filter out sessions whose ExpiresAt has passed; such
// records are inert until Sweep deletes them.
//
// # Persisted format
//
// Records are JSON with camelCase field names and RFC 3339 timestamps:
//
//	{"id":"...","contentDigest":"...","fileName":"notes.pdf",
//	 "bytesAcknowledged":5242880,"totalBytes":12582912, ...}
//
// Use MarshalSession and UnmarshalSession so every backend agrees on it.
//
// # Implementations
//
// The badger subpackage provides an embedded, file-backed store.
package storage
