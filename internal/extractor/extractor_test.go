package extractor

import (
	"context"
	"testing"

	"github.com/A3S-Lab/SafeClaw-sub000/internal/classifier"
	"github.com/A3S-Lab/SafeClaw-sub000/internal/memory"
	"github.com/A3S-Lab/SafeClaw-sub000/internal/sensitivity"
)

func buildClassifiedResource(t *testing.T, text string) *memory.Resource {
	t.Helper()
	regex, err := classifier.NewRegexBackend(classifier.DefaultRules(), sensitivity.Normal)
	if err != nil {
		t.Fatalf("new regex backend: %v", err)
	}
	composite := classifier.NewCompositeClassifier(regex)
	result := composite.Classify(context.Background(), text)

	r, err := memory.NewResourceBuilder().
		UserID("u1").ChannelID("slack").ChatID("c1").
		ContentType(memory.Text).Text(text).
		Classification(result).
		Build()
	if err != nil {
		t.Fatalf("build resource: %v", err)
	}
	return r
}

func TestExtractEntityAndTopic(t *testing.T) {
	r := buildClassifiedResource(t, "Card: 4111-1111-1111-1111, SSN: 123-45-6789")

	artifacts, err := Extract(r)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(artifacts) != 3 {
		t.Fatalf("expected 3 artifacts (2 entity + 1 topic), got %d", len(artifacts))
	}

	var entities, topics int
	for _, a := range artifacts {
		switch a.Type {
		case memory.Entity:
			entities++
			if a.Sensitivity != sensitivity.HighlySensitive {
				t.Fatalf("expected entity sensitivity HighlySensitive, got %v", a.Sensitivity)
			}
		case memory.Topic:
			topics++
		}
	}
	if entities != 2 || topics != 1 {
		t.Fatalf("expected 2 entities and 1 topic, got %d entities, %d topics", entities, topics)
	}
}

func TestExtractEmptyContentYieldsNothing(t *testing.T) {
	r, err := memory.NewResourceBuilder().
		UserID("u1").ChannelID("slack").ChatID("c1").
		ContentType(memory.Text).
		Build()
	if err != nil {
		t.Fatalf("build resource: %v", err)
	}

	artifacts, err := Extract(r)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(artifacts) != 0 {
		t.Fatalf("expected no artifacts for empty content, got %d", len(artifacts))
	}
}

func TestExtractNoMatchesYieldsOnlyTopic(t *testing.T) {
	r := buildClassifiedResource(t, "just a normal chat message")

	artifacts, err := Extract(r)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(artifacts) != 1 {
		t.Fatalf("expected only the Topic artifact, got %d", len(artifacts))
	}
	if artifacts[0].Type != memory.Topic {
		t.Fatalf("expected Topic artifact, got %v", artifacts[0].Type)
	}
}

func TestExtractDeterministicAcrossRuns(t *testing.T) {
	r1 := buildClassifiedResource(t, "my email is alice@example.com")
	r2 := buildClassifiedResource(t, "my email is alice@example.com")

	a1, err := Extract(r1)
	if err != nil {
		t.Fatalf("extract 1: %v", err)
	}
	a2, err := Extract(r2)
	if err != nil {
		t.Fatalf("extract 2: %v", err)
	}
	if len(a1) != len(a2) {
		t.Fatalf("expected identical artifact counts, got %d vs %d", len(a1), len(a2))
	}
	for i := range a1 {
		if a1[i].Content != a2[i].Content {
			t.Fatalf("expected identical content at index %d, got %q vs %q", i, a1[i].Content, a2[i].Content)
		}
		if len(a1[i].Tags) != len(a2[i].Tags) {
			t.Fatalf("expected identical tag count at index %d", i)
		}
	}
}
