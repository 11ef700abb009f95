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


package mock

import "github.com/poiesic/filedrop/ai"

// MockProvider is a test double for ai.Provider.
type MockProvider struct {
	analyzer *MockAnalyzer
	closed   bool
}

// NewMockProvider creates a provider around a default MockAnalyzer.
//
// Returns ai.Provider for consistency with production constructors.
// Use GetMockAnalyzer() to reach the concrete analyzer.
func NewMockProvider() ai.Provider {
	return &MockProvider{analyzer: NewMockAnalyzer()}
}

// NewMockProviderWithAnalyzer creates a provider around analyzer.
func NewMockProviderWithAnalyzer(analyzer *MockAnalyzer) ai.Provider {
	return &MockProvider{analyzer: analyzer}
}

// ContentAnalyzer returns the mock analyzer.
func (p *MockProvider) ContentAnalyzer() ai.ContentAnalyzer {
	return p.analyzer
}

// Close marks the provider closed.
func (p *MockProvider) Close() error {
	p.closed = true
	return nil
}

// Closed reports whether Close was called.
func (p *MockProvider) Closed() bool {
	return p.closed
}

// GetMockAnalyzer returns the underlying analyzer for test assertions.
func (p *MockProvider) GetMockAnalyzer() *MockAnalyzer {
	return p.analyzer
}
