// Package synthesizer promotes a slice of Artifacts (L2) into
// cross-resource Insights (L3) via three independent, deterministic
// rules: entity frequency, topic aggregation, and entity co-occurrence.
// Results from all three rules are concatenated; Synthesize is pure and
// holds no state across calls.
package synthesizer

import (
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/A3S-Lab/SafeClaw-sub000/internal/memory"
	"github.com/A3S-Lab/SafeClaw-sub000/internal/sensitivity"
)

// Synthesize applies all three rules to artifacts and returns the
// combined set of Insights.
func Synthesize(artifacts []*memory.Artifact) ([]*memory.Insight, error) {
	var out []*memory.Insight

	entityFrequency, err := entityFrequencyRule(artifacts)
	if err != nil {
		return nil, err
	}
	out = append(out, entityFrequency...)

	topicAgg, err := topicAggregationRule(artifacts)
	if err != nil {
		return nil, err
	}
	out = append(out, topicAgg...)

	coOccurrence, err := coOccurrenceRule(artifacts)
	if err != nil {
		return nil, err
	}
	out = append(out, coOccurrence...)

	return out, nil
}

// entityFrequencyRule groups Entity artifacts by exact content; any group
// of size >= 2 becomes a Pattern Insight.
func entityFrequencyRule(artifacts []*memory.Artifact) ([]*memory.Insight, error) {
	groups := map[string][]*memory.Artifact{}
	var order []string
	for _, a := range artifacts {
		if a.Type != memory.Entity {
			continue
		}
		if _, seen := groups[a.Content]; !seen {
			order = append(order, a.Content)
		}
		groups[a.Content] = append(groups[a.Content], a)
	}

	var insights []*memory.Insight
	for _, content := range order {
		group := groups[content]
		if len(group) < 2 {
			continue
		}
		insight, err := buildInsight(group, memory.Pattern, content, confidenceFromCount(len(group)), "entity_frequency")
		if err != nil {
			return nil, err
		}
		insight.EvidenceCount = len(group)
		insights = append(insights, insight)
	}
	return insights, nil
}

// topicAggregationRule groups Topic artifacts by primary tag (first tag);
// any group of size >= 2 becomes a Summary Insight.
func topicAggregationRule(artifacts []*memory.Artifact) ([]*memory.Insight, error) {
	groups := map[string][]*memory.Artifact{}
	var order []string
	for _, a := range artifacts {
		if a.Type != memory.Topic || len(a.Tags) == 0 {
			continue
		}
		tag := a.Tags[0]
		if _, seen := groups[tag]; !seen {
			order = append(order, tag)
		}
		groups[tag] = append(groups[tag], a)
	}

	var insights []*memory.Insight
	for _, tag := range order {
		group := groups[tag]
		if len(group) < 2 {
			continue
		}
		insight, err := buildInsight(group, memory.Summary, summaryContent(tag, group), confidenceFromCount(len(group)), tag)
		if err != nil {
			return nil, err
		}
		insight.EvidenceCount = len(group)
		insights = append(insights, insight)
	}
	return insights, nil
}

// coOccurrenceRule finds resources referenced by >= 2 Entity artifacts and
// emits one Correlation Insight per unordered pair of those artifacts,
// deduplicated by ordered (min_id, max_id).
func coOccurrenceRule(artifacts []*memory.Artifact) ([]*memory.Insight, error) {
	byResource := map[uuid.UUID][]*memory.Artifact{}
	for _, a := range artifacts {
		if a.Type != memory.Entity {
			continue
		}
		for _, resourceID := range a.SourceResourceIDs {
			byResource[resourceID] = append(byResource[resourceID], a)
		}
	}

	seenPairs := map[[2]uuid.UUID]bool{}
	var insights []*memory.Insight

	var resourceIDs []uuid.UUID
	for id := range byResource {
		resourceIDs = append(resourceIDs, id)
	}
	sort.Slice(resourceIDs, func(i, j int) bool { return resourceIDs[i].String() < resourceIDs[j].String() })

	for _, resourceID := range resourceIDs {
		entities := byResource[resourceID]
		if len(entities) < 2 {
			continue
		}
		for i := 0; i < len(entities); i++ {
			for j := i + 1; j < len(entities); j++ {
				pair := orderedPair(entities[i].ID(), entities[j].ID())
				if seenPairs[pair] {
					continue
				}
				seenPairs[pair] = true

				content := fmt.Sprintf("%s <-> %s", entities[i].Content, entities[j].Content)
				insight, err := buildInsight([]*memory.Artifact{entities[i], entities[j]}, memory.Correlation, content, 0.6, "co_occurrence")
				if err != nil {
					return nil, err
				}
				insight.EvidenceCount = 2
				insights = append(insights, insight)
			}
		}
	}
	return insights, nil
}

// buildInsight constructs an Insight from a set of contributing
// Artifacts: sensitivity is the max across sources, importance the
// arithmetic mean, and taint_labels the union — per the propagation
// invariants shared with the Extractor.
func buildInsight(sources []*memory.Artifact, insightType memory.InsightType, content string, confidence float64, extraTag string) (*memory.Insight, error) {
	ids := make([]uuid.UUID, len(sources))
	var level sensitivity.Level
	var importanceSum float64
	taintSets := make([]map[string]struct{}, 0, len(sources))
	tagSlices := make([][]string, 0, len(sources)+1)

	for i, a := range sources {
		ids[i] = a.ID()
		level = sensitivity.Max(level, a.Sensitivity)
		importanceSum += a.Importance
		taintSets = append(taintSets, taintSetOf(a))
		tagSlices = append(tagSlices, a.Tags)
	}
	tagSlices = append(tagSlices, []string{extraTag})

	return memory.NewInsightBuilder().
		SourceArtifactIDs(ids...).
		Type(insightType).
		Content(content).
		Confidence(confidence).
		Sensitivity(level).
		Importance(importanceSum / float64(len(sources))).
		Tags(mergeTags(tagSlices)...).
		Taints(mergeTaints(taintSets)...).
		Build()
}

func confidenceFromCount(k int) float64 {
	v := float64(k) / 5
	if v > 1 {
		return 1
	}
	return v
}

func summaryContent(tag string, group []*memory.Artifact) string {
	return fmt.Sprintf("%d resources about %s", len(group), tag)
}

func orderedPair(a, b uuid.UUID) [2]uuid.UUID {
	if a.String() <= b.String() {
		return [2]uuid.UUID{a, b}
	}
	return [2]uuid.UUID{b, a}
}

func taintSetOf(a *memory.Artifact) map[string]struct{} {
	set := map[string]struct{}{}
	for _, t := range a.TaintList() {
		set[t] = struct{}{}
	}
	return set
}

func mergeTaints(sets []map[string]struct{}) []string {
	merged := map[string]struct{}{}
	for _, s := range sets {
		for t := range s {
			merged[t] = struct{}{}
		}
	}
	out := make([]string, 0, len(merged))
	for t := range merged {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func mergeTags(tagSlices [][]string) []string {
	merged := map[string]struct{}{}
	for _, tags := range tagSlices {
		for _, t := range tags {
			merged[t] = struct{}{}
		}
	}
	out := make([]string, 0, len(merged))
	for t := range merged {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
