package classifier

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/A3S-Lab/SafeClaw-sub000/internal/scerr"
	"github.com/A3S-Lab/SafeClaw-sub000/internal/sensitivity"
)

// Rule is a single named regex classification rule.
type Rule struct {
	Name    string
	Pattern string
	Level   sensitivity.Level
}

type compiledRule struct {
	Rule
	re *regexp.Regexp
}

// RegexBackend is a fast, high-precision, low-recall PII backend built from
// a fixed set of compiled regex rules.
type RegexBackend struct {
	rules        []compiledRule
	defaultLevel sensitivity.Level
}

// NewRegexBackend compiles rules, failing with scerr.Privacy if any pattern
// is invalid.
func NewRegexBackend(rules []Rule, defaultLevel sensitivity.Level) (*RegexBackend, error) {
	compiled := make([]compiledRule, 0, len(rules))
	for _, r := range rules {
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, scerr.Privacy(fmt.Sprintf("invalid regex pattern for rule %q: %v", r.Name, err))
		}
		compiled = append(compiled, compiledRule{Rule: r, re: re})
	}
	return &RegexBackend{rules: compiled, defaultLevel: defaultLevel}, nil
}

// Classify scans text against every compiled rule.
func (b *RegexBackend) Classify(_ context.Context, text string) []PiiMatch {
	var matches []PiiMatch
	for _, rule := range b.rules {
		for _, loc := range rule.re.FindAllStringIndex(text, -1) {
			matches = append(matches, PiiMatch{
				RuleName:   rule.Name,
				Level:      rule.Level,
				Start:      loc[0],
				End:        loc[1],
				Confidence: 0.95,
				Backend:    "regex",
			})
		}
	}
	return matches
}

// ConfidenceFloor is the minimum confidence regex matches guarantee.
func (b *RegexBackend) ConfidenceFloor() float64 { return 0.90 }

// Name identifies this backend in audit logs.
func (b *RegexBackend) Name() string { return "regex" }

// DefaultRules returns SafeClaw's built-in PII classification rules,
// matching the redaction formatting in Redact.
func DefaultRules() []Rule {
	return []Rule{
		{Name: "credit_card", Pattern: `\b(?:\d[ -]*?){13,16}\b`, Level: sensitivity.HighlySensitive},
		{Name: "ssn", Pattern: `\b\d{3}-\d{2}-\d{4}\b`, Level: sensitivity.HighlySensitive},
		{Name: "email", Pattern: `\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`, Level: sensitivity.Sensitive},
		{Name: "phone", Pattern: `\b\d{3}[-.]\d{3}[-.]\d{4}\b`, Level: sensitivity.Sensitive},
		{Name: "api_key", Pattern: `\b(?:sk|pk)_[A-Za-z0-9]{20,}\b`, Level: sensitivity.HighlySensitive},
		{Name: "ip_address", Pattern: `\b(?:\d{1,3}\.){3}\d{1,3}\b`, Level: sensitivity.Normal},
	}
}

// Redact returns a redacted rendering of matchedText for the named rule,
// using the per-rule-type formatting the extractor embeds in Artifact
// content.
func Redact(ruleName, matchedText string) string {
	switch ruleName {
	case "credit_card":
		digits := onlyDigits(matchedText)
		if len(digits) >= 4 {
			return fmt.Sprintf("****-****-****-%s", digits[len(digits)-4:])
		}
		return "[REDACTED]"
	case "ssn":
		return "***-**-****"
	case "email":
		at := strings.IndexByte(matchedText, '@')
		if at >= 0 {
			return "****" + matchedText[at:]
		}
		return "[REDACTED]"
	case "phone":
		digits := onlyDigits(matchedText)
		if len(digits) >= 4 {
			return fmt.Sprintf("***-***-%s", digits[len(digits)-4:])
		}
		return "[REDACTED]"
	case "api_key":
		return "[API_KEY_REDACTED]"
	default:
		return "[REDACTED]"
	}
}

func onlyDigits(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] >= '0' && s[i] <= '9' {
			out = append(out, s[i])
		}
	}
	return string(out)
}
