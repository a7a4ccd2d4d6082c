package memory

import (
	"time"

	"github.com/google/uuid"

	"github.com/A3S-Lab/SafeClaw-sub000/internal/scerr"
	"github.com/A3S-Lab/SafeClaw-sub000/internal/sensitivity"
)

// InsightType identifies the kind of cross-resource synthesis an Insight
// captures.
type InsightType int

const (
	Pattern InsightType = iota
	Summary
	Correlation
	Trend
)

func (t InsightType) String() string {
	switch t {
	case Pattern:
		return "pattern"
	case Summary:
		return "summary"
	case Correlation:
		return "correlation"
	case Trend:
		return "trend"
	default:
		return "unknown"
	}
}

// Insight is a cross-resource synthesis over Artifacts (L3).
type Insight struct {
	id               uuid.UUID
	SourceArtifactIDs []uuid.UUID
	Type             InsightType
	Content          string
	Confidence       float64
	Sensitivity      sensitivity.Level
	Importance       float64
	EvidenceCount    int
	Tags             []string
	Taints           map[string]struct{}
	CreatedAt        time.Time
	LastAccessed     time.Time
	AccessCount      int
	Metadata         map[string]string
}

// ID implements HasID.
func (i *Insight) ID() uuid.UUID { return i.id }

// TaintList returns the taint labels as a sorted slice.
func (i *Insight) TaintList() []string { return sortedKeys(i.Taints) }

// RecordAccess bumps access_count and last_accessed.
func (i *Insight) RecordAccess(at time.Time) {
	i.AccessCount++
	i.LastAccessed = at
}

// Erase zeroizes the insight's content in place.
func (i *Insight) Erase() {
	i.Content = ""
}

// InsightBuilder constructs an Insight with required-field validation.
type InsightBuilder struct {
	i Insight
}

// NewInsightBuilder starts a builder with a fresh UUID.
func NewInsightBuilder() *InsightBuilder {
	return &InsightBuilder{i: Insight{
		id:        uuid.New(),
		Taints:    map[string]struct{}{},
		CreatedAt: time.Now().UTC(),
		Metadata:  map[string]string{},
	}}
}

func (b *InsightBuilder) SourceArtifactIDs(ids ...uuid.UUID) *InsightBuilder {
	b.i.SourceArtifactIDs = ids
	return b
}
func (b *InsightBuilder) Type(t InsightType) *InsightBuilder { b.i.Type = t; return b }
func (b *InsightBuilder) Content(c string) *InsightBuilder   { b.i.Content = c; return b }
func (b *InsightBuilder) Confidence(v float64) *InsightBuilder {
	b.i.Confidence = v
	return b
}
func (b *InsightBuilder) Sensitivity(l sensitivity.Level) *InsightBuilder {
	b.i.Sensitivity = l
	return b
}
func (b *InsightBuilder) Importance(v float64) *InsightBuilder   { b.i.Importance = v; return b }
func (b *InsightBuilder) EvidenceCount(n int) *InsightBuilder    { b.i.EvidenceCount = n; return b }
func (b *InsightBuilder) Tags(tags ...string) *InsightBuilder    { b.i.Tags = tags; return b }
func (b *InsightBuilder) Taints(taints ...string) *InsightBuilder {
	for _, t := range taints {
		b.i.Taints[t] = struct{}{}
	}
	return b
}

// Build validates required fields and returns the constructed Insight.
func (b *InsightBuilder) Build() (*Insight, error) {
	if b.i.Content == "" {
		return nil, scerr.Memory("content is required")
	}
	if len(b.i.SourceArtifactIDs) == 0 {
		return nil, scerr.Memory("source_artifact_ids is required")
	}
	i := b.i
	return &i, nil
}
