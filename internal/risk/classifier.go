package risk

import "strings"

// Tier is the risk classification of a command.
type Tier string

const (
	TierLow    Tier = "low"
	TierMedium Tier = "medium"
	TierHigh   Tier = "high"
)

// ParseTier maps a case-insensitive tier name to a Tier.
func ParseTier(s string) (Tier, bool) {
	switch Tier(strings.ToLower(strings.TrimSpace(s))) {
	case TierLow:
		return TierLow, true
	case TierMedium:
		return TierMedium, true
	case TierHigh:
		return TierHigh, true
	default:
		return "", false
	}
}

// Classifier maps a command to a risk tier. Implementations must be pure.
type Classifier interface {
	Classify(command string) Tier
}

// DefaultHighKeywords flag commands that stop hosts, services, or data.
var DefaultHighKeywords = []string{"shutdown", "poweroff", "systemctl stop", "delete", "rm -rf"}

// DefaultMediumKeywords flag commands that change firewall state.
var DefaultMediumKeywords = []string{"iptables", "ufw", "firewall-cmd"}

// KeywordClassifier is a coarse substring classifier. High keywords take
// precedence over medium ones; no match yields TierLow.
type KeywordClassifier struct {
	high   []string
	medium []string
}

// NewKeywordClassifier builds a classifier with the default keyword sets.
func NewKeywordClassifier() *KeywordClassifier {
	return NewKeywordClassifierWith(DefaultHighKeywords, DefaultMediumKeywords)
}

// NewKeywordClassifierWith builds a classifier with custom keyword sets.
// Keywords are lowercased; empty entries are dropped.
func NewKeywordClassifierWith(high, medium []string) *KeywordClassifier {
	return &KeywordClassifier{
		high:   normalizeKeywords(high),
		medium: normalizeKeywords(medium),
	}
}

func (c *KeywordClassifier) Classify(command string) Tier {
	cmd := strings.ToLower(command)
	if containsAny(cmd, c.high) {
		return TierHigh
	}
	if containsAny(cmd, c.medium) {
		return TierMedium
	}
	return TierLow
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}

func normalizeKeywords(in []string) []string {
	out := make([]string, 0, len(in))
	for _, k := range in {
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" {
			continue
		}
		out = append(out, k)
	}
	return out
}
