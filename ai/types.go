package ai

import (
	"sort"

	"github.com/poiesic/filedrop/core"
)

// DefaultMaxMatches is how many ranked matches an analysis keeps.
const DefaultMaxMatches = 3

// NormalizeMatches drops matches naming unknown candidates (keeping the first
// match per candidate), clamps confidence to 0..100, orders by descending
// confidence and truncates to limit.
func NormalizeMatches(matches []core.AnalysisMatch, candidates []core.Candidate, limit int) []core.AnalysisMatch {
	known := make(map[string]bool, len(candidates))
	for _, c := range candidates {
		known[c.ID] = true
	}

	out := make([]core.AnalysisMatch, 0, len(matches))
	seen := make(map[string]bool, len(matches))
	for _, m := range matches {
		if !known[m.CandidateID] || seen[m.CandidateID] {
			continue
		}
		seen[m.CandidateID] = true
		m.Confidence = min(max(m.Confidence, 0), 100)
		out = append(out, m)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Confidence > out[j].Confidence
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
