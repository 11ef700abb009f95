// Package mock provides test doubles for the ai interfaces.
//
// # Usage in Tests
//
//	analyzer := mock.NewMockAnalyzer()
//	analyzer.AnalyzeFunc = func(ctx context.Context, name, mimeType string, payload []byte, candidates []core.Candidate) ([]core.AnalysisMatch, error) {
//	    return []core.AnalysisMatch{{CandidateID: "c1", Confidence: 80}}, nil
//	}
//	count := analyzer.CallCount()
//
// # Default Behavior
//
// Without an AnalyzeFunc, MockAnalyzer reports a confidence of 90 for every
// candidate whose code appears in the file name or payload.
package mock
