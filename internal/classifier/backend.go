// Package classifier implements the pluggable PII classification backends
// and the composite merge/dedup pipeline described by the privacy gate.
package classifier

import (
	"context"
	"sort"

	"github.com/A3S-Lab/SafeClaw-sub000/internal/sensitivity"
)

// PiiMatch is a single PII detection produced by a classifier backend.
type PiiMatch struct {
	RuleName   string
	Level      sensitivity.Level
	Start      int
	End        int
	Confidence float64
	Backend    string
}

// Backend is the pluggable classification interface. Implementations may
// use regex, heuristics, or an LLM call to detect PII in text.
type Backend interface {
	// Classify returns all PII matches found in text.
	Classify(ctx context.Context, text string) []PiiMatch

	// ConfidenceFloor is the minimum confidence this backend guarantees.
	// CompositeClassifier uses it to resolve overlapping matches when two
	// backends tie on confidence.
	ConfidenceFloor() float64

	// Name is a human-readable backend identifier used in audit logs.
	Name() string
}

// CompositeResult is the outcome of running all configured backends and
// merging their matches.
type CompositeResult struct {
	Level       sensitivity.Level
	Matches     []PiiMatch
	RequiresTee bool
}

// CompositeClassifier chains multiple backends and merges their results by
// span-overlap deduplication.
type CompositeClassifier struct {
	backends []Backend
}

// NewCompositeClassifier builds a composite classifier from an ordered list
// of backends. Backends run in order; all results are merged.
func NewCompositeClassifier(backends ...Backend) *CompositeClassifier {
	return &CompositeClassifier{backends: backends}
}

// Classify runs every backend and merges their matches. A backend that
// panics or otherwise fails internally is expected to return zero matches
// rather than propagate an error — the composite never fails on backend
// trouble (callers doing their own backend error handling should recover
// before invoking Classify).
func (c *CompositeClassifier) Classify(ctx context.Context, text string) CompositeResult {
	var all []PiiMatch
	for _, backend := range c.backends {
		all = append(all, backend.Classify(ctx, text)...)
	}

	deduped := deduplicateMatches(all)

	levels := make([]sensitivity.Level, len(deduped))
	for i, m := range deduped {
		levels[i] = m.Level
	}
	overallLevel := sensitivity.MaxOf(levels)
	if len(deduped) == 0 {
		overallLevel = sensitivity.Normal
	}

	return CompositeResult{
		Level:       overallLevel,
		Matches:     deduped,
		RequiresTee: overallLevel >= sensitivity.Sensitive,
	}
}

// ContainsSensitive reports whether text contains any detected PII.
func (c *CompositeClassifier) ContainsSensitive(ctx context.Context, text string) bool {
	return len(c.Classify(ctx, text).Matches) > 0
}

// deduplicateMatches keeps, for each overlapping span, the match with the
// higher confidence. Matches are sorted by (start asc, confidence desc)
// then swept greedily, so ties resolve in order of arrival.
func deduplicateMatches(matches []PiiMatch) []PiiMatch {
	if len(matches) <= 1 {
		return matches
	}

	sorted := make([]PiiMatch, len(matches))
	copy(sorted, matches)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Start != sorted[j].Start {
			return sorted[i].Start < sorted[j].Start
		}
		return sorted[i].Confidence > sorted[j].Confidence
	})

	var result []PiiMatch
	for _, m := range sorted {
		if len(result) > 0 {
			last := result[len(result)-1]
			if m.Start < last.End {
				if m.Confidence > last.Confidence {
					result[len(result)-1] = m
				}
				continue
			}
		}
		result = append(result, m)
	}
	return result
}
