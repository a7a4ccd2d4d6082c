package memory

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// ResourceStore is the L1 bounded store with Resource-specific domain
// queries.
type ResourceStore struct {
	*BoundedStore[*Resource]
}

// NewResourceStore constructs an L1 store.
func NewResourceStore(capacity int) *ResourceStore {
	return &ResourceStore{BoundedStore: NewBoundedStore[*Resource](capacity)}
}

// ByUser returns every stored Resource for a user, without affecting
// recency order.
func (s *ResourceStore) ByUser(userID string) []*Resource {
	var out []*Resource
	for _, r := range s.All() {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	return out
}

// ByChannel returns every stored Resource for a channel.
func (s *ResourceStore) ByChannel(channelID string) []*Resource {
	var out []*Resource
	for _, r := range s.All() {
		if r.ChannelID == channelID {
			out = append(out, r)
		}
	}
	return out
}

// ByType returns every stored Resource of a given content type.
func (s *ResourceStore) ByType(ct ContentType) []*Resource {
	var out []*Resource
	for _, r := range s.All() {
		if r.ContentType == ct {
			out = append(out, r)
		}
	}
	return out
}

// ArtifactStore is the L2 bounded store with Artifact-specific domain
// queries.
type ArtifactStore struct {
	*BoundedStore[*Artifact]
}

// NewArtifactStore constructs an L2 store.
func NewArtifactStore(capacity int) *ArtifactStore {
	return &ArtifactStore{BoundedStore: NewBoundedStore[*Artifact](capacity)}
}

// BySource returns every Artifact whose SourceResourceIDs includes id.
func (s *ArtifactStore) BySource(id uuid.UUID) []*Artifact {
	var out []*Artifact
	for _, a := range s.All() {
		for _, src := range a.SourceResourceIDs {
			if src == id {
				out = append(out, a)
				break
			}
		}
	}
	return out
}

// ByTag returns every Artifact carrying the given tag.
func (s *ArtifactStore) ByTag(tag string) []*Artifact {
	var out []*Artifact
	for _, a := range s.All() {
		for _, t := range a.Tags {
			if t == tag {
				out = append(out, a)
				break
			}
		}
	}
	return out
}

// ByType returns every Artifact of the given type.
func (s *ArtifactStore) ByType(t ArtifactType) []*Artifact {
	var out []*Artifact
	for _, a := range s.All() {
		if a.Type == t {
			out = append(out, a)
		}
	}
	return out
}

// ByConfidence returns Artifacts with Importance >= min, since Artifact
// has no separate confidence field; the importance score doubles as its
// confidence measure.
func (s *ArtifactStore) ByConfidence(min float64) []*Artifact {
	var out []*Artifact
	for _, a := range s.All() {
		if a.Importance >= min {
			out = append(out, a)
		}
	}
	return out
}

// FindRelevant returns the top `limit` Artifacts ranked by relevance
// score, highest first.
func (s *ArtifactStore) FindRelevant(limit int, now time.Time) []*Artifact {
	all := s.All()
	sort.SliceStable(all, func(i, j int) bool {
		return relevanceScore(all[i].Importance, all[i].CreatedAt, all[i].LastAccessed, now) >
			relevanceScore(all[j].Importance, all[j].CreatedAt, all[j].LastAccessed, now)
	})
	if limit >= 0 && limit < len(all) {
		all = all[:limit]
	}
	return all
}

// InsightStore is the L3 bounded store with Insight-specific domain
// queries.
type InsightStore struct {
	*BoundedStore[*Insight]
}

// NewInsightStore constructs an L3 store.
func NewInsightStore(capacity int) *InsightStore {
	return &InsightStore{BoundedStore: NewBoundedStore[*Insight](capacity)}
}

// BySource returns every Insight whose SourceArtifactIDs includes id.
func (s *InsightStore) BySource(id uuid.UUID) []*Insight {
	var out []*Insight
	for _, i := range s.All() {
		for _, src := range i.SourceArtifactIDs {
			if src == id {
				out = append(out, i)
				break
			}
		}
	}
	return out
}

// ByTag returns every Insight carrying the given tag.
func (s *InsightStore) ByTag(tag string) []*Insight {
	var out []*Insight
	for _, ins := range s.All() {
		for _, t := range ins.Tags {
			if t == tag {
				out = append(out, ins)
				break
			}
		}
	}
	return out
}

// ByType returns every Insight of the given type.
func (s *InsightStore) ByType(t InsightType) []*Insight {
	var out []*Insight
	for _, ins := range s.All() {
		if ins.Type == t {
			out = append(out, ins)
		}
	}
	return out
}

// ByConfidence returns Insights with Confidence >= min.
func (s *InsightStore) ByConfidence(min float64) []*Insight {
	var out []*Insight
	for _, ins := range s.All() {
		if ins.Confidence >= min {
			out = append(out, ins)
		}
	}
	return out
}

// FindRelevant returns the top `limit` Insights ranked by relevance
// score, highest first.
func (s *InsightStore) FindRelevant(limit int, now time.Time) []*Insight {
	all := s.All()
	sort.SliceStable(all, func(i, j int) bool {
		return relevanceScore(all[i].Importance, all[i].CreatedAt, all[i].LastAccessed, now) >
			relevanceScore(all[j].Importance, all[j].CreatedAt, all[j].LastAccessed, now)
	})
	if limit >= 0 && limit < len(all) {
		all = all[:limit]
	}
	return all
}
