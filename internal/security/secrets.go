package security

import (
	"fmt"
	"math"
	"strings"
)

const (
	// MinTokenLength is the shortest API token accepted from configuration.
	MinTokenLength = 20

	// MinEntropy is the minimum Shannon entropy threshold for tokens.
	MinEntropy = 3.0
)

var forbiddenTokens = map[string]bool{
	"replace-with-token":       true,
	"your-github-token":        true,
	"ghp_xxxxxxxxxxxxxxxxxxxx": true,
	"token":                    true,
	"secret":                   true,
	"password":                 true,
	"changeme":                 true,
}

// ValidateToken rejects API tokens that are obviously placeholders or malformed.
func ValidateToken(token string) error {
	if token == "" {
		return fmt.Errorf("token is empty")
	}
	if strings.ContainsAny(token, " \t\r\n") {
		return fmt.Errorf("token contains whitespace")
	}

	lower := strings.ToLower(token)
	if forbiddenTokens[lower] || strings.Contains(lower, "replace") || strings.Contains(lower, "changeme") {
		return fmt.Errorf("token appears to be a placeholder value")
	}

	if len(token) < MinTokenLength {
		return fmt.Errorf("token too short (minimum %d characters, got %d)", MinTokenLength, len(token))
	}

	entropy := calculateEntropy(token)
	if entropy < MinEntropy {
		return fmt.Errorf("token has insufficient entropy (%.2f < %.2f)", entropy, MinEntropy)
	}

	return nil
}

// RedactToken keeps the first four characters of a token for log lines.
func RedactToken(token string) string {
	if len(token) <= 8 {
		return "***"
	}
	return token[:4] + "***"
}

// calculateEntropy computes the Shannon entropy of a string.
// Returns a value between 0 (completely predictable) and ~8 (maximum entropy for byte strings).
func calculateEntropy(s string) float64 {
	if len(s) == 0 {
		return 0
	}

	freq := make(map[rune]int)
	for _, c := range s {
		freq[c]++
	}

	// H = -Σ(p(x) * log2(p(x)))
	var entropy float64
	length := float64(len(s))

	for _, count := range freq {
		p := float64(count) / length
		entropy -= p * math.Log2(p)
	}

	return entropy
}
