package mock

import (
	"bytes"
	"context"
	"strings"
	"sync"

	"github.com/poiesic/filedrop/ai"
	"github.com/poiesic/filedrop/core"
)

// MockAnalyzer is a test double for ai.ContentAnalyzer.
type MockAnalyzer struct {
	// AnalyzeFunc is called by Analyze if set.
	AnalyzeFunc func(ctx context.Context, fileName, mimeType string, payload []byte, candidates []core.Candidate) ([]core.AnalysisMatch, error)

	mu        sync.Mutex
	callCount int
}

var _ ai.ContentAnalyzer = (*MockAnalyzer)(nil)

// NewMockAnalyzer creates a mock analyzer with default behavior.
func NewMockAnalyzer() *MockAnalyzer {
	return &MockAnalyzer{}
}

// Analyze returns AnalyzeFunc's result, or code matches by default.
func (m *MockAnalyzer) Analyze(ctx context.Context, fileName, mimeType string, payload []byte, candidates []core.Candidate) ([]core.AnalysisMatch, error) {
	m.mu.Lock()
	m.callCount++
	fn := m.AnalyzeFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, fileName, mimeType, payload, candidates)
	}

	var matches []core.AnalysisMatch
	name := strings.ToLower(fileName)
	lowered := bytes.ToLower(payload)
	for _, c := range candidates {
		code := strings.ToLower(c.Code)
		if code == "" {
			continue
		}
		if strings.Contains(name, code) || bytes.Contains(lowered, []byte(code)) {
			matches = append(matches, core.AnalysisMatch{
				CandidateID:  c.ID,
				Confidence:   90,
				MatchReasons: []string{"code " + c.Code},
			})
		}
	}
	return ai.NormalizeMatches(matches, candidates, ai.DefaultMaxMatches), nil
}

// CallCount returns the number of times Analyze was called.
func (m *MockAnalyzer) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}

// Reset clears the call count and custom function.
func (m *MockAnalyzer) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callCount = 0
	m.AnalyzeFunc = nil
}
