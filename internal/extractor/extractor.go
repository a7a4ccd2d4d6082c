// Package extractor promotes classified Resources (L1) into structured
// Artifacts (L2) via deterministic rules: every classifier match becomes
// an Entity artifact, and the resource's content type becomes a Topic
// artifact.
package extractor

import (
	"strings"

	"github.com/A3S-Lab/SafeClaw-sub000/internal/classifier"
	"github.com/A3S-Lab/SafeClaw-sub000/internal/memory"
	"github.com/A3S-Lab/SafeClaw-sub000/internal/sensitivity"
)

// importanceByLevel maps a sensitivity level to the importance score
// assigned to an Entity artifact derived from content at that level.
func importanceByLevel(level sensitivity.Level) float64 {
	switch level {
	case sensitivity.Public:
		return 0.2
	case sensitivity.Normal:
		return 0.4
	case sensitivity.Sensitive:
		return 0.7
	default: // HighlySensitive, Critical
		return 0.9
	}
}

// Extract produces the Artifacts for one Resource. Empty content yields
// no Artifacts at all; a Resource with no classification matches still
// yields its Topic artifact.
func Extract(r *memory.Resource) ([]*memory.Artifact, error) {
	if r.Text == "" && len(r.Raw) == 0 {
		return nil, nil
	}

	var artifacts []*memory.Artifact

	for _, match := range r.Matches {
		content := redactedContent(r, match)
		a, err := memory.NewArtifactBuilder().
			SourceResourceIDs(r.ID()).
			Type(memory.Entity).
			Content(content).
			Sensitivity(r.Sensitivity).
			Importance(importanceByLevel(match.Level)).
			Tags(match.RuleName).
			Taints(r.TaintList()...).
			Build()
		if err != nil {
			return nil, err
		}
		artifacts = append(artifacts, a)
	}

	topic, err := memory.NewArtifactBuilder().
		SourceResourceIDs(r.ID()).
		Type(memory.Topic).
		Content(r.ContentType.String()).
		Sensitivity(r.Sensitivity).
		Importance(importanceByLevel(r.Sensitivity)).
		Tags(strings.ToLower(r.ContentType.String())).
		Taints(r.TaintList()...).
		Build()
	if err != nil {
		return nil, err
	}
	artifacts = append(artifacts, topic)

	return artifacts, nil
}

// redactedContent returns the redacted text for a single classifier
// match, falling back to the rule name if the resource has no extracted
// text to slice (e.g. a binary Resource classified by metadata alone).
func redactedContent(r *memory.Resource, match classifier.PiiMatch) string {
	if r.Text == "" || match.End > len(r.Text) || match.Start < 0 || match.Start >= match.End {
		return classifier.Redact(match.RuleName, "")
	}
	return classifier.Redact(match.RuleName, r.Text[match.Start:match.End])
}
