package classifier

import (
	"context"
	"fmt"
	"strings"

	"github.com/A3S-Lab/SafeClaw-sub000/internal/sensitivity"
)

// semanticCategory names a context-aware detection category.
type semanticCategory string

const (
	categoryCredential semanticCategory = "credential"
	categoryLocation   semanticCategory = "location"
	categoryHealth     semanticCategory = "health"
	categoryFinancial  semanticCategory = "financial"
)

// semanticCue is a keyword phrase that, when found in lowercased text,
// suggests a nearby span carries semantically sensitive content. Unlike
// RegexBackend, SemanticBackend has no pretense of precise span boundaries
// for the sensitive content itself — it flags the cue phrase's own span,
// which is enough for routing and audit purposes.
type semanticCue struct {
	phrase     string
	category   semanticCategory
	level      sensitivity.Level
	confidence float64
}

var semanticCues = []semanticCue{
	{"my password is", categoryCredential, sensitivity.HighlySensitive, 0.75},
	{"password:", categoryCredential, sensitivity.HighlySensitive, 0.70},
	{"my api key is", categoryCredential, sensitivity.HighlySensitive, 0.75},
	{"my secret is", categoryCredential, sensitivity.HighlySensitive, 0.70},
	{"i live at", categoryLocation, sensitivity.Sensitive, 0.65},
	{"my address is", categoryLocation, sensitivity.Sensitive, 0.65},
	{"i was diagnosed with", categoryHealth, sensitivity.HighlySensitive, 0.70},
	{"my medical condition", categoryHealth, sensitivity.HighlySensitive, 0.68},
	{"my social security number", categoryFinancial, sensitivity.HighlySensitive, 0.80},
	{"my bank account", categoryFinancial, sensitivity.HighlySensitive, 0.72},
	{"my credit card number is", categoryFinancial, sensitivity.HighlySensitive, 0.78},
}

// SemanticAnalyzer performs lightweight context-aware PII detection over a
// fixed list of phrase cues, lower precision than regex but able to catch
// PII expressed in prose rather than in a canonical format.
type SemanticAnalyzer struct {
	cues []semanticCue
}

// NewSemanticAnalyzer returns an analyzer using the built-in cue list.
func NewSemanticAnalyzer() *SemanticAnalyzer {
	return &SemanticAnalyzer{cues: semanticCues}
}

type semanticMatch struct {
	category   semanticCategory
	level      sensitivity.Level
	start      int
	end        int
	confidence float64
}

// analyze scans lowercased text for known cue phrases.
func (a *SemanticAnalyzer) analyze(text string) []semanticMatch {
	lower := strings.ToLower(text)
	var matches []semanticMatch
	for _, cue := range a.cues {
		idx := 0
		for {
			pos := strings.Index(lower[idx:], cue.phrase)
			if pos < 0 {
				break
			}
			start := idx + pos
			end := start + len(cue.phrase)
			matches = append(matches, semanticMatch{
				category:   cue.category,
				level:      cue.level,
				start:      start,
				end:        end,
				confidence: cue.confidence,
			})
			idx = end
		}
	}
	return matches
}

// SemanticBackend wraps SemanticAnalyzer behind the Backend interface.
type SemanticBackend struct {
	analyzer *SemanticAnalyzer
}

// NewSemanticBackend wraps an existing analyzer.
func NewSemanticBackend(analyzer *SemanticAnalyzer) *SemanticBackend {
	return &SemanticBackend{analyzer: analyzer}
}

// Classify runs the semantic cue scan and tags each match with its category.
func (b *SemanticBackend) Classify(_ context.Context, text string) []PiiMatch {
	raw := b.analyzer.analyze(text)
	matches := make([]PiiMatch, 0, len(raw))
	for _, m := range raw {
		matches = append(matches, PiiMatch{
			RuleName:   fmt.Sprintf("semantic:%s", m.category),
			Level:      m.level,
			Start:      m.start,
			End:        m.end,
			Confidence: m.confidence,
			Backend:    "semantic",
		})
	}
	return matches
}

// ConfidenceFloor is the minimum confidence semantic matches guarantee.
func (b *SemanticBackend) ConfidenceFloor() float64 { return 0.60 }

// Name identifies this backend in audit logs.
func (b *SemanticBackend) Name() string { return "semantic" }
