package synthesizer

import (
	"testing"

	"github.com/google/uuid"

	"github.com/A3S-Lab/SafeClaw-sub000/internal/memory"
	"github.com/A3S-Lab/SafeClaw-sub000/internal/sensitivity"
)

func mustArtifact(t *testing.T, typ memory.ArtifactType, content string, level sensitivity.Level, tags []string, taints []string) *memory.Artifact {
	t.Helper()
	b := memory.NewArtifactBuilder().
		SourceResourceIDs(uuid.New()).
		Type(typ).
		Content(content).
		Sensitivity(level).
		Importance(0.5).
		Tags(tags...).
		Taints(taints...)
	a, err := b.Build()
	if err != nil {
		t.Fatalf("build artifact: %v", err)
	}
	return a
}

func TestEntityFrequencyProducesPatternInsight(t *testing.T) {
	a1 := mustArtifact(t, memory.Entity, "alice@example.com", sensitivity.Sensitive, []string{"email"}, []string{"pii:email", "session:abc"})
	a2 := mustArtifact(t, memory.Entity, "alice@example.com", sensitivity.Sensitive, []string{"email"}, []string{"pii:email", "session:def"})

	insights, err := Synthesize([]*memory.Artifact{a1, a2})
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}

	var pattern *memory.Insight
	for _, ins := range insights {
		if ins.Type == memory.Pattern {
			pattern = ins
		}
	}
	if pattern == nil {
		t.Fatal("expected a Pattern insight")
	}

	taints := pattern.TaintList()
	want := map[string]bool{"pii:email": false, "session:abc": false, "session:def": false}
	for _, tn := range taints {
		if _, ok := want[tn]; ok {
			want[tn] = true
		}
	}
	for k, found := range want {
		if !found {
			t.Fatalf("expected taint %q in union, got %v", k, taints)
		}
	}

	tagSet := map[string]bool{}
	for _, tag := range pattern.Tags {
		tagSet[tag] = true
	}
	if !tagSet["entity_frequency"] || !tagSet["email"] {
		t.Fatalf("expected tags to include entity_frequency and email, got %v", pattern.Tags)
	}
}

func TestEntityFrequencySingletonProducesNoInsight(t *testing.T) {
	a := mustArtifact(t, memory.Entity, "unique-value", sensitivity.Normal, []string{"email"}, nil)
	insights, err := Synthesize([]*memory.Artifact{a})
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	for _, ins := range insights {
		if ins.Type == memory.Pattern {
			t.Fatal("expected no Pattern insight for a singleton group")
		}
	}
}

func TestTopicAggregationProducesSummaryInsight(t *testing.T) {
	t1 := mustArtifact(t, memory.Topic, "text", sensitivity.Normal, []string{"text"}, nil)
	t2 := mustArtifact(t, memory.Topic, "text", sensitivity.Normal, []string{"text"}, nil)

	insights, err := Synthesize([]*memory.Artifact{t1, t2})
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	found := false
	for _, ins := range insights {
		if ins.Type == memory.Summary {
			found = true
		}
	}
	if !found {
		t.Fatal("expected a Summary insight")
	}
}

func TestCoOccurrenceProducesCorrelationInsight(t *testing.T) {
	resourceID := uuid.New()
	a1, err := memory.NewArtifactBuilder().SourceResourceIDs(resourceID).Type(memory.Entity).Content("alice@example.com").Sensitivity(sensitivity.Sensitive).Importance(0.7).Tags("email").Build()
	if err != nil {
		t.Fatalf("build a1: %v", err)
	}
	a2, err := memory.NewArtifactBuilder().SourceResourceIDs(resourceID).Type(memory.Entity).Content("555-123-4567").Sensitivity(sensitivity.Sensitive).Importance(0.7).Tags("phone").Build()
	if err != nil {
		t.Fatalf("build a2: %v", err)
	}

	insights, err := Synthesize([]*memory.Artifact{a1, a2})
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}

	var correlation *memory.Insight
	for _, ins := range insights {
		if ins.Type == memory.Correlation {
			correlation = ins
		}
	}
	if correlation == nil {
		t.Fatal("expected a Correlation insight")
	}
	if correlation.Confidence != 0.6 {
		t.Fatalf("expected confidence 0.6, got %v", correlation.Confidence)
	}
}

func TestCoOccurrenceDedupesPairs(t *testing.T) {
	resourceID := uuid.New()
	a1, _ := memory.NewArtifactBuilder().SourceResourceIDs(resourceID).Type(memory.Entity).Content("a").Importance(0.5).Build()
	a2, _ := memory.NewArtifactBuilder().SourceResourceIDs(resourceID).Type(memory.Entity).Content("b").Importance(0.5).Build()
	a3, _ := memory.NewArtifactBuilder().SourceResourceIDs(resourceID).Type(memory.Entity).Content("c").Importance(0.5).Build()

	insights, err := Synthesize([]*memory.Artifact{a1, a2, a3})
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}

	correlations := 0
	for _, ins := range insights {
		if ins.Type == memory.Correlation {
			correlations++
		}
	}
	if correlations != 3 {
		t.Fatalf("expected 3 unordered pairs (a-b, a-c, b-c), got %d", correlations)
	}
}

func TestSynthesizeEmptyYieldsNothing(t *testing.T) {
	insights, err := Synthesize(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(insights) != 0 {
		t.Fatalf("expected no insights, got %d", len(insights))
	}
}
