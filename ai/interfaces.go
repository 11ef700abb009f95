package ai

import (
	"context"

	"github.com/poiesic/filedrop/core"
)

// ContentAnalyzer ranks candidates for a payload that could not be read locally.
// Implementations must be thread-safe for concurrent use.
type ContentAnalyzer interface {
	// Analyze returns at most DefaultMaxMatches matches ordered by descending
	// confidence. Every returned CandidateID names one of candidates.
	Analyze(ctx context.Context, fileName, mimeType string, payload []byte, candidates []core.Candidate) ([]core.AnalysisMatch, error)
}

// Provider owns a ContentAnalyzer and the resources behind it.
type Provider interface {
	// ContentAnalyzer returns the analysis service.
	ContentAnalyzer() ContentAnalyzer

	// Close releases resources held by the provider.
	Close() error
}
