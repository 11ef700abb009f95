package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/poiesic/filedrop/ai"
	"github.com/poiesic/filedrop/core"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

const maxParseAttempts = 3

// ErrMalformedResponse is returned when the model never produced parseable JSON.
var ErrMalformedResponse = errors.New("malformed analysis response")

// Analyzer implements ai.ContentAnalyzer using an OpenAI-compatible chat model.
type Analyzer struct {
	client          llms.Model
	maxMatches      int
	maxPayloadBytes int
	logger          *slog.Logger
}

// analysis is the JSON document the model is asked to return.
type analysis struct {
	Matches []core.AnalysisMatch `json:"matches"`
}

// newAnalyzer is an internal constructor that returns the concrete type.
func newAnalyzer(config *ai.Config) (*Analyzer, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	client, err := openai.New(
		openai.WithBaseURL(config.Host),
		openai.WithToken(config.Token),
		openai.WithModel(config.Model),
	)
	if err != nil {
		return nil, err
	}
	return newAnalyzerWithModel(client, config), nil
}

func newAnalyzerWithModel(client llms.Model, config *ai.Config) *Analyzer {
	return &Analyzer{
		client:          client,
		maxMatches:      config.MaxMatches,
		maxPayloadBytes: config.MaxPayloadBytes,
		logger:          slog.Default().With("component", "openai-analyzer"),
	}
}

// NewContentAnalyzer creates a content analyzer using the provided configuration.
//
// Returns ai.ContentAnalyzer interface to enforce abstraction.
func NewContentAnalyzer(config *ai.Config) (ai.ContentAnalyzer, error) {
	return newAnalyzer(config)
}

// Analyze asks the model to rank candidates for the payload.
func (a *Analyzer) Analyze(ctx context.Context, fileName, mimeType string, payload []byte, candidates []core.Candidate) ([]core.AnalysisMatch, error) {
	if len(candidates) == 0 {
		return []core.AnalysisMatch{}, nil
	}

	userPrompt, err := buildUserPrompt(fileName, mimeType, payloadExcerpt(payload, a.maxPayloadBytes), candidates)
	if err != nil {
		return nil, err
	}
	content := []llms.MessageContent{
		{
			Role:  llms.ChatMessageTypeSystem,
			Parts: []llms.ContentPart{llms.TextPart(buildSystemPrompt(a.maxMatches))},
		},
		{
			Role:  llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{llms.TextPart(userPrompt)},
		},
	}

	var result analysis
	var lastErr error
	for attempt := 0; attempt < maxParseAttempts; attempt++ {
		response, err := a.client.GenerateContent(ctx, content, llms.WithTemperature(0.0), llms.WithJSONMode())
		if err != nil {
			a.logger.Error("failed to generate content", "attempt", attempt+1, "err", err)
			return nil, fmt.Errorf("%w: content analysis: %w", core.ErrTransient, err)
		}
		if len(response.Choices) < 1 {
			a.logger.Debug("no choices returned from model")
			return []core.AnalysisMatch{}, nil
		}

		text := cleanResponse(response.Choices[0].Content)
		if err := json.Unmarshal([]byte(text), &result); err != nil {
			lastErr = err
			a.logger.Warn("error parsing analysis response",
				"attempt", attempt+1,
				"response", text,
				"err", err)
			continue
		}
		lastErr = nil
		break
	}
	if lastErr != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedResponse, lastErr)
	}

	matches := ai.NormalizeMatches(result.Matches, candidates, a.maxMatches)
	a.logger.Debug("analyzed payload",
		"file", fileName,
		"returned", len(result.Matches),
		"kept", len(matches))
	return matches, nil
}
