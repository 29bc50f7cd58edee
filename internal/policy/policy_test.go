package policy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/triage-ai/palisade/services/trust_gate/internal/risk"
)

func TestDefault_Thresholds(t *testing.T) {
	p := Default()
	if p.Required(risk.TierLow) != 0.0 {
		t.Fatalf("expected low 0.0, got %f", p.Required(risk.TierLow))
	}
	if p.Required(risk.TierMedium) != 0.3 {
		t.Fatalf("expected medium 0.3, got %f", p.Required(risk.TierMedium))
	}
	if p.Required(risk.TierHigh) != 0.7 {
		t.Fatalf("expected high 0.7, got %f", p.Required(risk.TierHigh))
	}
	if !p.Monotone() {
		t.Fatal("expected default policy to be monotone")
	}
}

func TestParse_PartialKeepsDefaults(t *testing.T) {
	p, err := Parse([]byte("min_score_high_risk: 0.9\n"))
	if err != nil {
		t.Fatal(err)
	}
	if p.MinScoreHighRisk != 0.9 {
		t.Fatalf("expected 0.9, got %f", p.MinScoreHighRisk)
	}
	if p.MinScoreMediumRisk != 0.3 {
		t.Fatalf("expected default medium, got %f", p.MinScoreMediumRisk)
	}
}

func TestParse_NonMonotoneAccepted(t *testing.T) {
	p, err := Parse([]byte("min_score_low_risk: 0.8\nmin_score_medium_risk: 0.1\nmin_score_high_risk: 0.5\n"))
	if err != nil {
		t.Fatal(err)
	}
	if p.Monotone() {
		t.Fatal("expected non-monotone policy")
	}
	if p.Required(risk.TierLow) != 0.8 {
		t.Fatalf("expected 0.8, got %f", p.Required(risk.TierLow))
	}
}

func TestParse_ExplicitZero(t *testing.T) {
	p, err := Parse([]byte("min_score_medium_risk: 0\n"))
	if err != nil {
		t.Fatal(err)
	}
	if p.MinScoreMediumRisk != 0 {
		t.Fatalf("expected explicit zero, got %f", p.MinScoreMediumRisk)
	}
}

func TestParse_Invalid(t *testing.T) {
	if _, err := Parse([]byte("min_score_low_risk: [nope")); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	if err := os.WriteFile(path, []byte("min_score_low_risk: 0.1\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	p, err := LoadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if p.MinScoreLowRisk != 0.1 {
		t.Fatalf("expected 0.1, got %f", p.MinScoreLowRisk)
	}

	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
