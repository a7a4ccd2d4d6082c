// Package compliance implements selectable regulatory rule bundles
// (HIPAA, PCI-DSS, GDPR, Custom) evaluated against classified content.
//
// The rule-matching and violation-tracking shape here is adapted from the
// gateway's request-policy rule engine: compiled content-match patterns,
// a Severity-weighted violation record, and an engine that accumulates
// violations per session. Where that engine evaluated byte/request-count
// thresholds against proxied HTTP traffic, this one evaluates sensitivity
// level and taint-label membership against Resources and Artifacts.
package compliance

import (
	"fmt"
	"log/slog"
	"regexp"
	"sync"

	"github.com/A3S-Lab/SafeClaw-sub000/internal/scerr"
	"github.com/A3S-Lab/SafeClaw-sub000/internal/sensitivity"
)

// Framework identifies a regulatory rule bundle.
type Framework int

const (
	// HIPAA is the Health Insurance Portability and Accountability Act bundle.
	HIPAA Framework = iota
	// PCIDSS is the Payment Card Industry Data Security Standard bundle.
	PCIDSS
	// GDPR is the General Data Protection Regulation bundle.
	GDPR
	// Custom is a caller-supplied rule bundle.
	Custom
)

func (f Framework) String() string {
	switch f {
	case HIPAA:
		return "hipaa"
	case PCIDSS:
		return "pci_dss"
	case GDPR:
		return "gdpr"
	case Custom:
		return "custom"
	default:
		return "unknown"
	}
}

// Rule is a single compliance predicate: matches a resource/artifact whose
// sensitivity meets MinLevel, whose taint labels intersect RequiredTaints
// (if any), or whose content matches Pattern (if set).
type Rule struct {
	Name        string
	Description string
	MinLevel    sensitivity.Level
	RequiredTaints []string
	Pattern     string
}

type compiledRule struct {
	Rule
	re *regexp.Regexp
}

// RuleSet is a named, versioned bundle of compliance rules for one
// framework.
type RuleSet struct {
	Framework    Framework
	Name         string
	Description  string
	Rules        []Rule
	TeeMandatory bool
	MinLevel     sensitivity.Level
}

// Violation records a single rule match against a piece of content.
type Violation struct {
	RuleSet     string
	RuleName    string
	Description string
	Framework   Framework
}

// Engine evaluates content against a set of loaded rule bundles.
type Engine struct {
	mu       sync.RWMutex
	sets     []RuleSet
	compiled map[string][]compiledRule
	logger   *slog.Logger
}

// WithFrameworks constructs an Engine pre-loaded with the named built-in
// frameworks. Pattern compilation happens at construction; an invalid
// pattern in any shipped framework is a programming error and panics,
// matching the guarantee that all shipped patterns are valid (tested).
func WithFrameworks(frameworks []Framework, logger *slog.Logger) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{compiled: map[string][]compiledRule{}, logger: logger}

	for _, fw := range frameworks {
		set, ok := builtinRuleSet(fw)
		if !ok {
			return nil, scerr.Config(fmt.Sprintf("unknown compliance framework %q", fw))
		}
		if err := e.addRuleSet(set); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// AddCustomRules appends a Custom rule set on top of whatever frameworks
// were already loaded.
func (e *Engine) AddCustomRules(name, description string, rules []Rule) error {
	return e.addRuleSet(RuleSet{
		Framework:   Custom,
		Name:        name,
		Description: description,
		Rules:       rules,
	})
}

func (e *Engine) addRuleSet(set RuleSet) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	compiled := make([]compiledRule, 0, len(set.Rules))
	for _, r := range set.Rules {
		cr := compiledRule{Rule: r}
		if r.Pattern != "" {
			re, err := regexp.Compile("(?i)" + r.Pattern)
			if err != nil {
				return scerr.Config(fmt.Sprintf("invalid compliance pattern for rule %q: %v", r.Name, err))
			}
			cr.re = re
		}
		compiled = append(compiled, cr)
	}

	e.sets = append(e.sets, set)
	e.compiled[set.Name] = compiled
	return nil
}

// AllRules returns the union of every loaded rule set's rules.
func (e *Engine) AllRules() []Rule {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var out []Rule
	for _, s := range e.sets {
		out = append(out, s.Rules...)
	}
	return out
}

// RuleSets returns the loaded rule bundles.
func (e *Engine) RuleSets() []RuleSet {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]RuleSet, len(e.sets))
	copy(out, e.sets)
	return out
}

// Evaluate checks content/level/taints against every loaded rule and
// returns the violations found.
func (e *Engine) Evaluate(content string, level sensitivity.Level, taints []string) []Violation {
	e.mu.RLock()
	defer e.mu.RUnlock()

	taintSet := make(map[string]struct{}, len(taints))
	for _, t := range taints {
		taintSet[t] = struct{}{}
	}

	var violations []Violation
	for _, set := range e.sets {
		for _, rule := range e.compiled[set.Name] {
			if rule.MinLevel != 0 && level < rule.MinLevel {
				continue
			}
			if len(rule.RequiredTaints) > 0 && !anyTaintPresent(rule.RequiredTaints, taintSet) {
				continue
			}
			if rule.re != nil && !rule.re.MatchString(content) {
				continue
			}
			violations = append(violations, Violation{
				RuleSet:     set.Name,
				RuleName:    rule.Name,
				Description: rule.Description,
				Framework:   set.Framework,
			})
		}
	}

	if len(violations) > 0 {
		e.logger.Warn("compliance violations detected", slog.Int("count", len(violations)))
	}
	return violations
}

// TeeMandatory reports whether any loaded rule set mandates TEE processing
// for the given sensitivity level.
func (e *Engine) TeeMandatory(level sensitivity.Level) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, s := range e.sets {
		if s.TeeMandatory && level >= s.MinLevel {
			return true
		}
	}
	return false
}

func anyTaintPresent(required []string, present map[string]struct{}) bool {
	for _, r := range required {
		if _, ok := present[r]; ok {
			return true
		}
	}
	return false
}

// builtinRuleSet returns SafeClaw's pre-built rule bundle for a framework.
func builtinRuleSet(fw Framework) (RuleSet, bool) {
	switch fw {
	case HIPAA:
		return RuleSet{
			Framework:    HIPAA,
			Name:         "hipaa",
			Description:  "Health Insurance Portability and Accountability Act safeguards",
			TeeMandatory: true,
			MinLevel:     sensitivity.HighlySensitive,
			Rules: []Rule{
				{Name: "phi_diagnosis", Description: "protected health information: diagnosis or condition", MinLevel: sensitivity.HighlySensitive, Pattern: `diagnos|condition|treatment|prescri`},
				{Name: "phi_patient_id", Description: "protected health information: patient identifier", RequiredTaints: []string{"ssn", "patient_id"}},
			},
		}, true
	case PCIDSS:
		return RuleSet{
			Framework:    PCIDSS,
			Name:         "pci_dss",
			Description:  "Payment Card Industry Data Security Standard",
			TeeMandatory: true,
			MinLevel:     sensitivity.HighlySensitive,
			Rules: []Rule{
				{Name: "cardholder_data", Description: "cardholder data present", RequiredTaints: []string{"credit_card"}},
				{Name: "cvv_pattern", Description: "card verification value pattern", Pattern: `\bcvv\b|\bcvc\b`},
			},
		}, true
	case GDPR:
		return RuleSet{
			Framework:    GDPR,
			Name:         "gdpr",
			Description:  "General Data Protection Regulation",
			TeeMandatory: false,
			MinLevel:     sensitivity.Sensitive,
			Rules: []Rule{
				{Name: "personal_data", Description: "personal data present", MinLevel: sensitivity.Sensitive, RequiredTaints: []string{"email", "phone", "ip_address"}},
				{Name: "special_category", Description: "special category data (health, biometric, etc.)", MinLevel: sensitivity.HighlySensitive},
			},
		}, true
	default:
		return RuleSet{}, false
	}
}
