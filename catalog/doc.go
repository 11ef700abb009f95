// Package catalog answers whether content already exists in the external
// catalog before any bytes are transferred.
//
// An Index is a pure query keyed by content digest, optionally narrowed to a
// scope so that duplicates are only flagged within the same category. Each
// call reflects the catalog's current state; nothing is cached.
//
// Implementations:
//   - Memory: an in-process index for tests and dry runs
//   - HTTPIndex: the catalog service's duplicate-check endpoint
//   - postgres.Index: a direct query against the catalog database
package catalog
