package credentials

import (
	"fmt"
	"strings"
	"unicode"
)

// minSecretLength is the floor below which no provider key is plausible.
const minSecretLength = 20

// providerPrefixes holds the known literal prefixes for provider API keys.
// A service absent from this table gets length checks only.
var providerPrefixes = map[string][]string{
	"openai":     {"sk-"},
	"anthropic":  {"sk-ant-"},
	"openrouter": {"sk-or-"},
	"stripe":     {"sk_live_", "sk_test_"},
	"sendgrid":   {"SG."},
	"slack":      {"xoxb-"},
}

// FormatResult is the outcome of an offline format check.
type FormatResult struct {
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`
}

// ValidateFormat checks a raw secret value against offline format rules.
// It never touches the network and must pass before any remote test or store.
func ValidateFormat(service, keyType, rawValue string) FormatResult {
	if rawValue == "" {
		return FormatResult{Valid: false, Reason: "value is empty"}
	}
	if len(rawValue) < minSecretLength {
		return FormatResult{Valid: false, Reason: fmt.Sprintf("value shorter than %d characters", minSecretLength)}
	}
	prefixes, known := providerPrefixes[strings.ToLower(service)]
	if known {
		ok := false
		for _, p := range prefixes {
			if strings.HasPrefix(rawValue, p) {
				ok = true
				break
			}
		}
		if !ok {
			return FormatResult{Valid: false, Reason: fmt.Sprintf("value does not match expected %s key prefix", service)}
		}
	}
	return FormatResult{Valid: true}
}

// Strength scores a raw secret 0-100: length contributes up to 25 points,
// character-class diversity up to 60, and character uniqueness up to 15.
func Strength(rawValue string) int {
	if rawValue == "" {
		return 0
	}

	score := 0
	switch {
	case len(rawValue) >= 32:
		score += 25
	case len(rawValue) >= 24:
		score += 18
	case len(rawValue) >= 16:
		score += 10
	}

	var hasUpper, hasLower, hasDigit, hasSymbol bool
	seen := make(map[rune]struct{}, len(rawValue))
	for _, r := range rawValue {
		seen[r] = struct{}{}
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		default:
			hasSymbol = true
		}
	}
	for _, has := range []bool{hasUpper, hasLower, hasDigit, hasSymbol} {
		if has {
			score += 15
		}
	}

	score += int(float64(len(seen)) / float64(len([]rune(rawValue))) * 15)
	if score > 100 {
		score = 100
	}
	return score
}

// maskRun is the fixed-width interior replacement used when masking secrets.
const maskRun = "********"

// Mask renders a secret for display: first 4 and last 4 characters with a
// fixed-width run between them. Short values are masked entirely.
func Mask(value string) string {
	if len(value) <= 8 {
		return maskRun
	}
	return value[:4] + maskRun + value[len(value)-4:]
}
