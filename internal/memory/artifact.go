package memory

import (
	"time"

	"github.com/google/uuid"

	"github.com/A3S-Lab/SafeClaw-sub000/internal/scerr"
	"github.com/A3S-Lab/SafeClaw-sub000/internal/sensitivity"
)

// ArtifactType identifies the kind of structured knowledge an Artifact
// holds.
type ArtifactType int

const (
	Entity ArtifactType = iota
	Fact
	Topic
	Preference
	Procedure
)

func (a ArtifactType) String() string {
	switch a {
	case Entity:
		return "entity"
	case Fact:
		return "fact"
	case Topic:
		return "topic"
	case Preference:
		return "preference"
	case Procedure:
		return "procedure"
	default:
		return "unknown"
	}
}

// Artifact is structured knowledge extracted from one or more Resources
// (L2).
type Artifact struct {
	id               uuid.UUID
	SourceResourceIDs []uuid.UUID
	Type             ArtifactType
	Content          string
	Sensitivity      sensitivity.Level
	Importance       float64
	Tags             []string
	Taints           map[string]struct{}
	CreatedAt        time.Time
	LastAccessed     time.Time
	AccessCount      int
	Metadata         map[string]string
}

// ID implements HasID.
func (a *Artifact) ID() uuid.UUID { return a.id }

// TaintList returns the taint labels as a sorted slice.
func (a *Artifact) TaintList() []string { return sortedKeys(a.Taints) }

// RecordAccess is the only permitted mutator besides construction: it
// bumps access_count and last_accessed.
func (a *Artifact) RecordAccess(at time.Time) {
	a.AccessCount++
	a.LastAccessed = at
}

// Erase zeroizes the artifact's content in place.
func (a *Artifact) Erase() {
	a.Content = ""
}

// ArtifactBuilder constructs an Artifact with required-field validation.
type ArtifactBuilder struct {
	a Artifact
}

// NewArtifactBuilder starts a builder with a fresh UUID.
func NewArtifactBuilder() *ArtifactBuilder {
	return &ArtifactBuilder{a: Artifact{
		id:        uuid.New(),
		Taints:    map[string]struct{}{},
		CreatedAt: time.Now().UTC(),
		Metadata:  map[string]string{},
	}}
}

func (b *ArtifactBuilder) SourceResourceIDs(ids ...uuid.UUID) *ArtifactBuilder {
	b.a.SourceResourceIDs = ids
	return b
}
func (b *ArtifactBuilder) Type(t ArtifactType) *ArtifactBuilder   { b.a.Type = t; return b }
func (b *ArtifactBuilder) Content(c string) *ArtifactBuilder      { b.a.Content = c; return b }
func (b *ArtifactBuilder) Sensitivity(l sensitivity.Level) *ArtifactBuilder {
	b.a.Sensitivity = l
	return b
}
func (b *ArtifactBuilder) Importance(v float64) *ArtifactBuilder { b.a.Importance = v; return b }
func (b *ArtifactBuilder) Tags(tags ...string) *ArtifactBuilder  { b.a.Tags = tags; return b }
func (b *ArtifactBuilder) Taints(taints ...string) *ArtifactBuilder {
	for _, t := range taints {
		b.a.Taints[t] = struct{}{}
	}
	return b
}

// Build validates required fields and returns the constructed Artifact.
func (b *ArtifactBuilder) Build() (*Artifact, error) {
	if b.a.Content == "" {
		return nil, scerr.Memory("content is required")
	}
	if len(b.a.SourceResourceIDs) == 0 {
		return nil, scerr.Memory("source_resource_ids is required")
	}
	a := b.a
	return &a, nil
}
