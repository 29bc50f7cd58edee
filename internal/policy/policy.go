package policy

import (
	"fmt"
	"os"

	"github.com/triage-ai/palisade/services/trust_gate/internal/risk"
	"gopkg.in/yaml.v3"
)

// GlobalSecurityPolicy holds the minimum trust score required per risk tier.
// The ordering low <= medium <= high is recommended but not enforced.
type GlobalSecurityPolicy struct {
	MinScoreLowRisk    float64 `yaml:"min_score_low_risk" json:"min_score_low_risk"`
	MinScoreMediumRisk float64 `yaml:"min_score_medium_risk" json:"min_score_medium_risk"`
	MinScoreHighRisk   float64 `yaml:"min_score_high_risk" json:"min_score_high_risk"`
}

// Default returns the stock thresholds (0.0 / 0.3 / 0.7).
func Default() GlobalSecurityPolicy {
	return GlobalSecurityPolicy{
		MinScoreLowRisk:    0.0,
		MinScoreMediumRisk: 0.3,
		MinScoreHighRisk:   0.7,
	}
}

// Required returns the threshold for a tier. Unknown tiers use the low threshold.
func (p GlobalSecurityPolicy) Required(tier risk.Tier) float64 {
	switch tier {
	case risk.TierHigh:
		return p.MinScoreHighRisk
	case risk.TierMedium:
		return p.MinScoreMediumRisk
	default:
		return p.MinScoreLowRisk
	}
}

// Monotone reports whether low <= medium <= high holds.
func (p GlobalSecurityPolicy) Monotone() bool {
	return p.MinScoreLowRisk <= p.MinScoreMediumRisk && p.MinScoreMediumRisk <= p.MinScoreHighRisk
}

// fileDoc mirrors the policy file. Pointer fields distinguish "absent" from 0.
type fileDoc struct {
	MinScoreLowRisk    *float64 `yaml:"min_score_low_risk"`
	MinScoreMediumRisk *float64 `yaml:"min_score_medium_risk"`
	MinScoreHighRisk   *float64 `yaml:"min_score_high_risk"`
}

// Parse decodes a YAML policy document. Missing keys keep their defaults.
func Parse(data []byte) (GlobalSecurityPolicy, error) {
	p := Default()
	var doc fileDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return p, fmt.Errorf("Parse: %w", err)
	}
	if doc.MinScoreLowRisk != nil {
		p.MinScoreLowRisk = *doc.MinScoreLowRisk
	}
	if doc.MinScoreMediumRisk != nil {
		p.MinScoreMediumRisk = *doc.MinScoreMediumRisk
	}
	if doc.MinScoreHighRisk != nil {
		p.MinScoreHighRisk = *doc.MinScoreHighRisk
	}
	return p, nil
}

// LoadFile reads and parses a YAML policy file.
func LoadFile(path string) (GlobalSecurityPolicy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Default(), fmt.Errorf("LoadFile: %w", err)
	}
	return Parse(data)
}
