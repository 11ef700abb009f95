package catalog

import (
	"context"

	"github.com/poiesic/filedrop/core"
)

// Index looks up existing records by content digest.
type Index interface {
	// Check reports whether digest is already stored. An empty scopeID
	// searches the whole catalog; otherwise only records in that scope count.
	Check(ctx context.Context, digest, scopeID string) (*core.DuplicateCheck, error)
}

// NotDuplicate is the answer for content the catalog has never seen.
func NotDuplicate() *core.DuplicateCheck {
	return &core.DuplicateCheck{IsDuplicate: false}
}
