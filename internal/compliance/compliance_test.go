package compliance

import (
	"testing"

	"github.com/A3S-Lab/SafeClaw-sub000/internal/sensitivity"
)

func TestHipaaMandatesTee(t *testing.T) {
	engine, err := WithFrameworks([]Framework{HIPAA}, nil)
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}
	if !engine.TeeMandatory(sensitivity.HighlySensitive) {
		t.Fatal("expected HIPAA to mandate TEE for HighlySensitive")
	}
	if engine.TeeMandatory(sensitivity.Normal) {
		t.Fatal("expected HIPAA to not mandate TEE below its MinLevel")
	}
}

func TestGdprDoesNotMandateTee(t *testing.T) {
	engine, err := WithFrameworks([]Framework{GDPR}, nil)
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}
	if engine.TeeMandatory(sensitivity.Critical) {
		t.Fatal("expected GDPR to never mandate TEE")
	}
}

func TestHipaaDiagnosisViolation(t *testing.T) {
	engine, _ := WithFrameworks([]Framework{HIPAA}, nil)
	violations := engine.Evaluate("patient was diagnosed with hypertension", sensitivity.HighlySensitive, nil)
	if len(violations) == 0 {
		t.Fatal("expected at least one HIPAA violation")
	}
	found := false
	for _, v := range violations {
		if v.RuleName == "phi_diagnosis" {
			found = true
		}
	}
	if !found {
		t.Fatal("expected phi_diagnosis rule to match")
	}
}

func TestPciDssCardholderDataViolation(t *testing.T) {
	engine, _ := WithFrameworks([]Framework{PCIDSS}, nil)
	violations := engine.Evaluate("card on file", sensitivity.HighlySensitive, []string{"credit_card"})
	if len(violations) == 0 {
		t.Fatal("expected cardholder_data violation via taint match")
	}
}

func TestNoViolationsBelowMinLevel(t *testing.T) {
	engine, _ := WithFrameworks([]Framework{HIPAA}, nil)
	violations := engine.Evaluate("patient was diagnosed with flu", sensitivity.Normal, nil)
	if len(violations) != 0 {
		t.Fatalf("expected no violations below MinLevel, got %d", len(violations))
	}
}

func TestCustomRules(t *testing.T) {
	engine, _ := WithFrameworks(nil, nil)
	err := engine.AddCustomRules("internal", "internal data handling", []Rule{
		{Name: "secret_mention", Description: "mentions a secret", Pattern: `\bsecret\b`},
	})
	if err != nil {
		t.Fatalf("add custom rules: %v", err)
	}

	violations := engine.Evaluate("this is a secret message", sensitivity.Normal, nil)
	if len(violations) != 1 {
		t.Fatalf("expected 1 violation, got %d", len(violations))
	}
	if violations[0].Framework != Custom {
		t.Fatalf("expected Custom framework, got %v", violations[0].Framework)
	}
}

func TestInvalidPatternRejected(t *testing.T) {
	engine, _ := WithFrameworks(nil, nil)
	err := engine.AddCustomRules("broken", "", []Rule{{Name: "bad", Pattern: "(unterminated"}})
	if err == nil {
		t.Fatal("expected error for invalid pattern")
	}
}

func TestUnknownFrameworkRejected(t *testing.T) {
	_, err := WithFrameworks([]Framework{Framework(99)}, nil)
	if err == nil {
		t.Fatal("expected error for unknown framework")
	}
}

func TestMultipleFrameworksLoaded(t *testing.T) {
	engine, err := WithFrameworks([]Framework{HIPAA, PCIDSS, GDPR}, nil)
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}
	if len(engine.RuleSets()) != 3 {
		t.Fatalf("expected 3 rule sets, got %d", len(engine.RuleSets()))
	}
	if len(engine.AllRules()) == 0 {
		t.Fatal("expected non-empty combined rule list")
	}
}
