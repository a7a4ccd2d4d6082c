// Package policy implements SafeClaw's routing policy engine: given a
// sensitivity level and an optional data type, decide whether content is
// processed locally, routed into the TEE, rejected, or needs confirmation.
package policy

import "github.com/A3S-Lab/SafeClaw-sub000/internal/sensitivity"

// Decision is the outcome of evaluating a policy against a sensitivity
// level (and optional data type).
type Decision int

const (
	// ProcessLocal means content may be processed outside the TEE.
	ProcessLocal Decision = iota
	// ProcessInTee means content must be routed into the TEE.
	ProcessInTee
	// Reject means content must not be processed at all.
	Reject
	// RequireConfirmation means the caller must obtain explicit consent.
	RequireConfirmation
)

func (d Decision) String() string {
	switch d {
	case ProcessLocal:
		return "process_local"
	case ProcessInTee:
		return "process_in_tee"
	case Reject:
		return "reject"
	case RequireConfirmation:
		return "require_confirmation"
	default:
		return "unknown"
	}
}

// DataPolicy is a named routing policy.
type DataPolicy struct {
	Name                 string
	TeeThreshold         sensitivity.Level
	AllowHighlySensitive bool
	TypeRules            map[string]Decision
}

// DefaultDataPolicy returns SafeClaw's default policy: route Sensitive and
// above into the TEE, allow HighlySensitive content through.
func DefaultDataPolicy() DataPolicy {
	return DataPolicy{
		Name:                 "default",
		TeeThreshold:         sensitivity.Sensitive,
		AllowHighlySensitive: true,
		TypeRules:            map[string]Decision{},
	}
}

// Engine evaluates sensitivity levels against a set of named policies.
type Engine struct {
	policies      map[string]DataPolicy
	defaultPolicy DataPolicy
}

// NewEngine returns an engine seeded with the default policy.
func NewEngine() *Engine {
	return &Engine{
		policies:      map[string]DataPolicy{},
		defaultPolicy: DefaultDataPolicy(),
	}
}

// AddPolicy registers a named policy.
func (e *Engine) AddPolicy(p DataPolicy) {
	e.policies[p.Name] = p
}

// SetDefaultPolicy replaces the fallback policy used when no name is given
// or the named policy doesn't exist.
func (e *Engine) SetDefaultPolicy(p DataPolicy) {
	e.defaultPolicy = p
}

// Evaluate resolves a Decision for the given sensitivity level, optional
// data type, and optional named policy:
//
//  1. If dataType has an explicit rule in the resolved policy, return it.
//  2. If level is HighlySensitive and the policy disallows it, Reject.
//  3. If level >= TeeThreshold, ProcessInTee; otherwise ProcessLocal.
//     Critical always maps to ProcessInTee regardless of threshold.
func (e *Engine) Evaluate(level sensitivity.Level, dataType, policyName string) Decision {
	p := e.resolvePolicy(policyName)

	if dataType != "" {
		if decision, ok := p.TypeRules[dataType]; ok {
			return decision
		}
	}

	if level == sensitivity.HighlySensitive && !p.AllowHighlySensitive {
		return Reject
	}

	if level == sensitivity.Critical {
		return ProcessInTee
	}

	if level >= p.TeeThreshold {
		return ProcessInTee
	}
	return ProcessLocal
}

// RequiresTee reports whether the given level meets the default policy's
// TEE threshold.
func (e *Engine) RequiresTee(level sensitivity.Level) bool {
	return e.Evaluate(level, "", "") == ProcessInTee
}

func (e *Engine) resolvePolicy(name string) DataPolicy {
	if name != "" {
		if p, ok := e.policies[name]; ok {
			return p
		}
	}
	return e.defaultPolicy
}

// Builder fluently constructs a DataPolicy.
type Builder struct {
	policy DataPolicy
}

// NewBuilder starts a builder with default settings under the given name.
func NewBuilder(name string) *Builder {
	p := DefaultDataPolicy()
	p.Name = name
	return &Builder{policy: p}
}

// TeeThreshold sets the minimum sensitivity routed into the TEE.
func (b *Builder) TeeThreshold(level sensitivity.Level) *Builder {
	b.policy.TeeThreshold = level
	return b
}

// AllowHighlySensitive sets whether HighlySensitive content may proceed.
func (b *Builder) AllowHighlySensitive(allow bool) *Builder {
	b.policy.AllowHighlySensitive = allow
	return b
}

// AddTypeRule registers an explicit per-data-type override.
func (b *Builder) AddTypeRule(dataType string, decision Decision) *Builder {
	b.policy.TypeRules[dataType] = decision
	return b
}

// Build returns the constructed policy.
func (b *Builder) Build() DataPolicy {
	return b.policy
}
