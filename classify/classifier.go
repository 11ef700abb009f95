package classify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/poiesic/filedrop/ai"
	"github.com/poiesic/filedrop/core"
)

// Classifier picks a scoring mode for a payload: local text when it can be
// extracted, the remote analyzer when configured, and the file name otherwise.
type Classifier struct {
	engine   *Engine
	analyzer ai.ContentAnalyzer
	logger   *slog.Logger
}

// ClassifierOption configures a Classifier.
type ClassifierOption func(*Classifier) error

// WithAnalyzer sets the remote analyzer consulted for unreadable payloads.
func WithAnalyzer(analyzer ai.ContentAnalyzer) ClassifierOption {
	return func(c *Classifier) error {
		c.analyzer = analyzer
		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClassifierOption {
	return func(c *Classifier) error {
		c.logger = logger
		return nil
	}
}

// NewClassifier creates a classifier around engine.
func NewClassifier(engine *Engine, opts ...ClassifierOption) (*Classifier, error) {
	if engine == nil {
		return nil, ErrEngineRequired
	}
	c := &Classifier{
		engine: engine,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}
	c.logger = c.logger.With("component", "classifier")
	return c, nil
}

// Classify returns the accepted match for the file or nil. Analyzer failures
// are logged and fall through to filename scoring; only context
// cancellation is returned as an error.
func (c *Classifier) Classify(ctx context.Context, fileName, mimeType string, payload []byte, candidates []core.Candidate) (*core.ClassificationResult, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	text, err := ExtractText(mimeType, payload)
	if err == nil && strings.TrimSpace(text) != "" {
		return c.engine.Classify(fileName, text, candidates), nil
	}
	if err != nil && !errors.Is(err, ErrUnsupportedFormat) {
		c.logger.Debug("text extraction failed", "file", fileName, "err", err)
	}

	if c.analyzer != nil {
		result, err := c.analyze(ctx, fileName, mimeType, payload, candidates)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			c.logger.Warn("content analysis failed, using file name", "file", fileName, "err", err)
		} else if result != nil {
			return result, nil
		}
	}

	return c.engine.Classify(fileName, "", candidates), nil
}

// Rank returns every candidate scored in the mode Classify would use locally.
func (c *Classifier) Rank(fileName, mimeType string, payload []byte, candidates []core.Candidate) []core.ClassificationResult {
	text, err := ExtractText(mimeType, payload)
	if err != nil {
		text = ""
	}
	return c.engine.Rank(fileName, text, candidates)
}

func (c *Classifier) analyze(ctx context.Context, fileName, mimeType string, payload []byte, candidates []core.Candidate) (*core.ClassificationResult, error) {
	matches, err := c.analyzer.Analyze(ctx, fileName, mimeType, payload, candidates)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, nil
	}
	top := matches[0]
	if top.Confidence < c.engine.Thresholds().Content {
		c.logger.Debug("analysis below threshold", "file", fileName, "candidate", top.CandidateID, "confidence", top.Confidence)
		return nil, nil
	}
	return &core.ClassificationResult{
		TargetID:     top.CandidateID,
		Confidence:   top.Confidence,
		Reasons:      top.MatchReasons,
		FromAnalysis: true,
	}, nil
}
