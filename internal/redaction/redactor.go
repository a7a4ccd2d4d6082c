// Package redaction sanitizes free-text fields before they reach durable
// storage or the audit trail. It is SafeClaw's last line of defense: even
// though the classifier and Privacy Gate route sensitive content away
// from plaintext storage, any operator-supplied metadata value or
// diagnostic string attached to a session or audit event still passes
// through a Redactor before it is written to internal/storage.
package redaction

import (
	"regexp"
	"sync"
)

// Redactor sanitizes a string, replacing recognized sensitive substrings
// with a placeholder.
type Redactor interface {
	Redact(content string) string
}

// Pattern is one named regex-replacement rule.
type Pattern struct {
	Name        string
	Regex       *regexp.Regexp
	Replacement string
}

// PatternRedactor implements Redactor with an ordered list of regex
// patterns, applied in sequence.
type PatternRedactor struct {
	mu       sync.RWMutex
	patterns []Pattern
	enabled  bool
}

// DefaultPatterns returns the built-in PII and secret patterns applied to
// every audit event and session metadata value unless overridden.
func DefaultPatterns() []Pattern {
	return []Pattern{
		{
			Name:        "email",
			Regex:       regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Z|a-z]{2,}\b`),
			Replacement: "[REDACTED_EMAIL]",
		},
		{
			Name:        "ssn",
			Regex:       regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),
			Replacement: "[REDACTED_SSN]",
		},
		{
			Name:        "credit_card",
			Regex:       regexp.MustCompile(`\b(?:\d[ -]*?){13,16}\b`),
			Replacement: "[REDACTED_CC]",
		},
		{
			Name:        "phone_us",
			Regex:       regexp.MustCompile(`\b(?:\+?1[-.\s]?)?\(?\d{3}\)?[-.\s]?\d{3}[-.\s]?\d{4}\b`),
			Replacement: "[REDACTED_PHONE]",
		},
		{
			Name:        "bearer_token",
			Regex:       regexp.MustCompile(`(?i)(bearer\s+)([a-zA-Z0-9_.-]{20,})`),
			Replacement: "$1[REDACTED_TOKEN]",
		},
		{
			Name:        "openai_style_key",
			Regex:       regexp.MustCompile(`(?i)(sk-[a-zA-Z0-9]{20,})`),
			Replacement: "[REDACTED_API_KEY]",
		},
		{
			Name:        "generic_key_value",
			Regex:       regexp.MustCompile(`(?i)(api[_-]?key|secret[_-]?key|auth[_-]?token)[:\s=]["']?([a-zA-Z0-9_.-]{16,})["']?`),
			Replacement: "$1=[REDACTED_KEY]",
		},
		{
			Name:        "password_json",
			Regex:       regexp.MustCompile(`(?i)"(password|passwd|pwd)":\s*"([^"]{4,})"`),
			Replacement: `"$1": "[REDACTED_PASSWORD]"`,
		},
		{
			Name:        "password_field",
			Regex:       regexp.MustCompile(`(?i)(password|passwd|pwd)[\s]*[=:][\s]*["']?([^\s"',}]{4,})["']?`),
			Replacement: "$1=[REDACTED_PASSWORD]",
		},
		{
			Name:        "ip_address",
			Regex:       regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`),
			Replacement: "[REDACTED_IP]",
		},
		{
			Name:        "jwt",
			Regex:       regexp.MustCompile(`eyJ[a-zA-Z0-9_-]*\.eyJ[a-zA-Z0-9_-]*\.[a-zA-Z0-9_-]*`),
			Replacement: "[REDACTED_JWT]",
		},
		{
			Name:        "aws_access_key",
			Regex:       regexp.MustCompile(`(?i)(AKIA[0-9A-Z]{16})`),
			Replacement: "[REDACTED_AWS_KEY]",
		},
		{
			Name:        "base64_secret",
			Regex:       regexp.MustCompile(`(?i)(secret|private[_-]?key)[:\s=]["']?([A-Za-z0-9+/]{40,}={0,2})["']?`),
			Replacement: "$1=[REDACTED_SECRET]",
		},
	}
}

// NewPatternRedactor builds an enabled redactor with the default pattern set.
func NewPatternRedactor() *PatternRedactor {
	return &PatternRedactor{patterns: DefaultPatterns(), enabled: true}
}

// NewPatternRedactorWithPatterns builds an enabled redactor with a caller
// supplied pattern set, replacing rather than extending the defaults.
func NewPatternRedactorWithPatterns(patterns []Pattern) *PatternRedactor {
	return &PatternRedactor{patterns: patterns, enabled: true}
}

// AddPattern appends a custom rule on top of whatever the redactor
// already carries.
func (r *PatternRedactor) AddPattern(name, pattern, replacement string) error {
	regex, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.patterns = append(r.patterns, Pattern{Name: name, Regex: regex, Replacement: replacement})
	return nil
}

// SetEnabled toggles redaction without discarding the configured patterns.
func (r *PatternRedactor) SetEnabled(enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.enabled = enabled
}

// IsEnabled reports whether Redact currently rewrites content.
func (r *PatternRedactor) IsEnabled() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.enabled
}

// Redact applies every configured pattern in order and returns the result.
func (r *PatternRedactor) Redact(content string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if !r.enabled {
		return content
	}

	result := content
	for _, pattern := range r.patterns {
		result = pattern.Regex.ReplaceAllString(result, pattern.Replacement)
	}
	return result
}

// RedactMap walks a JSON-shaped value tree (the shape session and audit
// event metadata takes before it is marshaled for storage) and redacts
// every string leaf.
func (r *PatternRedactor) RedactMap(data map[string]interface{}) map[string]interface{} {
	if !r.IsEnabled() {
		return data
	}

	result := make(map[string]interface{}, len(data))
	for k, v := range data {
		result[k] = r.redactValue(v)
	}
	return result
}

func (r *PatternRedactor) redactValue(v interface{}) interface{} {
	switch val := v.(type) {
	case string:
		return r.Redact(val)
	case map[string]interface{}:
		return r.RedactMap(val)
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = r.redactValue(item)
		}
		return out
	default:
		return v
	}
}

// RedactStrings redacts a flat map of string metadata, the shape Resource
// and Session metadata is stored in.
func (r *PatternRedactor) RedactStrings(data map[string]string) map[string]string {
	if !r.IsEnabled() || data == nil {
		return data
	}

	result := make(map[string]string, len(data))
	for k, v := range data {
		result[k] = r.Redact(v)
	}
	return result
}

// Config is the on-disk shape of a redactor's configuration.
type Config struct {
	Enabled        bool            `yaml:"enabled"`
	CustomPatterns []PatternConfig `yaml:"patterns"`
}

// PatternConfig is one operator-supplied pattern in Config.
type PatternConfig struct {
	Name        string `yaml:"name"`
	Pattern     string `yaml:"pattern"`
	Replacement string `yaml:"replacement"`
}

// NewFromConfig builds a PatternRedactor from Config, starting from the
// default patterns and appending any operator-supplied ones.
func NewFromConfig(cfg Config) (*PatternRedactor, error) {
	r := &PatternRedactor{patterns: DefaultPatterns(), enabled: cfg.Enabled}

	for _, pc := range cfg.CustomPatterns {
		if err := r.AddPattern(pc.Name, pc.Pattern, pc.Replacement); err != nil {
			return nil, err
		}
	}

	return r, nil
}

// NoopRedactor leaves content untouched; used when redaction is disabled
// but a caller still wants a non-nil Redactor.
type NoopRedactor struct{}

// Redact returns content unchanged.
func (r *NoopRedactor) Redact(content string) string { return content }
