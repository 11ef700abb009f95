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


package openai

import (
	"log/slog"

	"github.com/poiesic/filedrop/ai"
)

// Provider implements ai.Provider using an OpenAI-compatible service.
type Provider struct {
	config   *ai.Config
	analyzer *Analyzer
	logger   *slog.Logger
}

// NewProvider creates a provider. The config is validated and normalized before use.
//
// Returns ai.Provider interface (not *Provider) to keep callers off
// OpenAI-specific details.
func NewProvider(config *ai.Config) (ai.Provider, error) {
	analyzer, err := newAnalyzer(config)
	if err != nil {
		return nil, err
	}

	return &Provider{
		config:   config,
		analyzer: analyzer,
		logger:   slog.Default().With("component", "openai-provider"),
	}, nil
}

// ContentAnalyzer returns the analysis service.
func (p *Provider) ContentAnalyzer() ai.ContentAnalyzer {
	return p.analyzer
}

// Close is a no-op; the underlying HTTP client needs no cleanup.
func (p *Provider) Close() error {
	p.logger.Debug("closing OpenAI provider")
	return nil
}
