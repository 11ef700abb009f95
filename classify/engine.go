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


package classify

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/poiesic/filedrop/core"
)

const (
	// DefaultContentThreshold is the minimum confidence for a content-based match.
	DefaultContentThreshold = 60
	// DefaultFilenameThreshold is the minimum confidence for a filename-only match.
	DefaultFilenameThreshold = 30
)

// Thresholds are the acceptance thresholds per scoring mode.
type Thresholds struct {
	Content  int
	Filename int
}

// DefaultThresholds returns the default acceptance thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{Content: DefaultContentThreshold, Filename: DefaultFilenameThreshold}
}

// Weights are the point values of each scoring signal.
type Weights struct {
	CodeBase        float64
	CodePerHit      float64
	CodeMax         float64
	NameMax         float64
	Instructor      float64
	KeywordPerHit   float64
	KeywordCap      float64
	KeywordTotalCap float64
	FilenameCode    float64
	FilenameWord    float64
}

// DefaultWeights returns the default signal weights.
func DefaultWeights() Weights {
	return Weights{
		CodeBase:        40,
		CodePerHit:      2,
		CodeMax:         50,
		NameMax:         30,
		Instructor:      15,
		KeywordPerHit:   0.5,
		KeywordCap:      3,
		KeywordTotalCap: 20,
		FilenameCode:    35,
		FilenameWord:    10,
	}
}

// Engine scores files against candidates. It holds no mutable state and is
// safe for concurrent use.
type Engine struct {
	thresholds Thresholds
	weights    Weights
}

// Option configures an Engine.
type Option func(*Engine) error

// WithThresholds overrides the acceptance thresholds.
func WithThresholds(t Thresholds) Option {
	return func(e *Engine) error {
		if t.Content < 0 || t.Content > 100 || t.Filename < 0 || t.Filename > 100 {
			return fmt.Errorf("thresholds must be within 0..100")
		}
		e.thresholds = t
		return nil
	}
}

// WithWeights overrides the signal weights.
func WithWeights(w Weights) Option {
	return func(e *Engine) error {
		e.weights = w
		return nil
	}
}

// NewEngine creates an engine with the default thresholds and weights.
func NewEngine(opts ...Option) (*Engine, error) {
	e := &Engine{
		thresholds: DefaultThresholds(),
		weights:    DefaultWeights(),
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}
	return e, nil
}

// Thresholds returns the engine's acceptance thresholds.
func (e *Engine) Thresholds() Thresholds {
	return e.thresholds
}

// Classify returns the best candidate for the file, or nil when no candidate
// clears the threshold. A blank textSample selects filename-only scoring.
func (e *Engine) Classify(fileName, textSample string, candidates []core.Candidate) *core.ClassificationResult {
	ranked := e.Rank(fileName, textSample, candidates)
	if len(ranked) == 0 {
		return nil
	}
	top := ranked[0]
	threshold := e.thresholds.Content
	if top.FromFilename {
		threshold = e.thresholds.Filename
	}
	if top.Confidence < threshold {
		return nil
	}
	return &top
}

// Rank scores every candidate and orders them by descending confidence.
// Candidates with equal confidence keep their input order.
func (e *Engine) Rank(fileName, textSample string, candidates []core.Candidate) []core.ClassificationResult {
	filenameOnly := strings.TrimSpace(textSample) == ""
	results := make([]core.ClassificationResult, 0, len(candidates))
	for _, c := range candidates {
		if filenameOnly {
			results = append(results, e.scoreFilename(fileName, c))
		} else {
			results = append(results, e.scoreContent(textSample, c))
		}
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Confidence > results[j].Confidence
	})
	return results
}

func (e *Engine) scoreContent(text string, c core.Candidate) core.ClassificationResult {
	w := e.weights
	var score float64
	var reasons []string
	matched := make(map[string]bool)

	if n := countWholeWord(text, codePattern(c.Code)); n > 0 {
		score += math.Min(w.CodeBase+w.CodePerHit*float64(n), w.CodeMax)
		reasons = append(reasons, fmt.Sprintf("code %s mentioned %d time(s)", c.Code, n))
	}

	if words := significantWords(c.Name); len(words) > 0 {
		var found []string
		for _, word := range words {
			if containsWholeWord(text, word) {
				found = append(found, word)
				matched[word] = true
			}
		}
		if len(found) > 0 {
			score += float64(len(found)) / float64(len(words)) * w.NameMax
			reasons = append(reasons, fmt.Sprintf("name words matched: %s", strings.Join(found, ", ")))
		}
	}

	if c.Instructor != "" && instructorMentioned(text, c.Instructor) {
		score += w.Instructor
		reasons = append(reasons, fmt.Sprintf("instructor %s mentioned", c.Instructor))
	}

	keywords := c.Keywords
	if len(keywords) == 0 {
		keywords = inferKeywords(c.Code, c.Name)
	}
	var kwScore float64
	var kwFound []string
	seen := make(map[string]bool)
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" || seen[kw] {
			continue
		}
		seen[kw] = true
		if n := countWholeWord(text, wordPattern(kw)); n > 0 {
			kwScore += math.Min(w.KeywordPerHit*float64(n), w.KeywordCap)
			kwFound = append(kwFound, kw)
			matched[kw] = true
		}
	}
	if len(kwFound) > 0 {
		score += math.Min(kwScore, w.KeywordTotalCap)
		reasons = append(reasons, fmt.Sprintf("domain keywords matched: %s", strings.Join(kwFound, ", ")))
	}

	return core.ClassificationResult{
		TargetID:        c.ID,
		Confidence:      clampScore(score),
		Reasons:         reasons,
		MatchedKeywords: sortedKeys(matched),
	}
}

func (e *Engine) scoreFilename(fileName string, c core.Candidate) core.ClassificationResult {
	w := e.weights
	name := normalizeFileName(fileName)
	var score float64
	var reasons []string
	matched := make(map[string]bool)

	if countWholeWord(name, codePattern(c.Code)) > 0 {
		score += w.FilenameCode
		reasons = append(reasons, fmt.Sprintf("code %s found in file name", c.Code))
	}
	if words := significantWords(c.Name); len(words) > 0 && containsWholeWord(name, words[0]) {
		score += w.FilenameWord
		matched[words[0]] = true
		reasons = append(reasons, fmt.Sprintf("name word %q found in file name", words[0]))
	}

	return core.ClassificationResult{
		TargetID:        c.ID,
		Confidence:      clampScore(score),
		Reasons:         reasons,
		MatchedKeywords: sortedKeys(matched),
		FromFilename:    true,
	}
}

// instructorMentioned matches the full name, or the surname when it is longer
// than three characters.
func instructorMentioned(text, instructor string) bool {
	if containsWholeWord(text, instructor) {
		return true
	}
	parts := strings.Fields(instructor)
	if len(parts) < 2 {
		return false
	}
	surname := strings.Trim(parts[len(parts)-1], ".,")
	return len(surname) > 3 && containsWholeWord(text, surname)
}

func clampScore(score float64) int {
	if score > 100 {
		score = 100
	}
	if score < 0 {
		score = 0
	}
	return int(math.Round(score))
}

func sortedKeys(m map[string]bool) []string {
	if len(m) == 0 {
		return nil
	}
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
