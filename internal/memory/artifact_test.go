package memory

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestArtifactBuilderRequiresFields(t *testing.T) {
	_, err := NewArtifactBuilder().Build()
	if err == nil {
		t.Fatal("expected error for missing content")
	}

	_, err = NewArtifactBuilder().Content("x").Build()
	if err == nil {
		t.Fatal("expected error for missing source_resource_ids")
	}
}

func TestArtifactRecordAccess(t *testing.T) {
	a, err := NewArtifactBuilder().
		Content("redacted").
		SourceResourceIDs(uuid.New()).
		Build()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	now := time.Now().UTC()
	a.RecordAccess(now)
	if a.AccessCount != 1 {
		t.Fatalf("expected access_count 1, got %d", a.AccessCount)
	}
	if !a.LastAccessed.Equal(now) {
		t.Fatal("expected last_accessed to be set")
	}
}

func TestArtifactStoreFindRelevant(t *testing.T) {
	store := NewArtifactStore(10)
	now := time.Now().UTC()

	low, _ := NewArtifactBuilder().Content("low").SourceResourceIDs(uuid.New()).Importance(0.1).Build()
	high, _ := NewArtifactBuilder().Content("high").SourceResourceIDs(uuid.New()).Importance(0.9).Build()
	store.Put(low)
	store.Put(high)

	ranked := store.FindRelevant(1, now)
	if len(ranked) != 1 || ranked[0] != high {
		t.Fatal("expected higher-importance artifact ranked first")
	}
}

func TestArtifactStoreByTagAndType(t *testing.T) {
	store := NewArtifactStore(10)
	e, _ := NewArtifactBuilder().Content("alice@example.com").SourceResourceIDs(uuid.New()).Type(Entity).Tags("email").Build()
	topic, _ := NewArtifactBuilder().Content("text").SourceResourceIDs(uuid.New()).Type(Topic).Tags("text").Build()
	store.Put(e)
	store.Put(topic)

	if len(store.ByTag("email")) != 1 {
		t.Fatal("expected one artifact tagged email")
	}
	if len(store.ByType(Topic)) != 1 {
		t.Fatal("expected one Topic artifact")
	}
}
