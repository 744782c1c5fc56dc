// Package prompt provides small shared text-measurement helpers used
// wherever a phase needs to reason about the size of a string before it
// goes into a conversation thread or an LLM request.
package prompt

import (
	"crypto/sha256"
	"encoding/hex"
)

// EstimateTokens estimates the token count for content using a chars/4
// approximation. This is a fast heuristic; actual tokenization varies by
// model, but it's good enough for bounding conversation windows (§4.5).
func EstimateTokens(content string) int {
	if content == "" {
		return 0
	}
	return (len(content) + 3) / 4
}

// HashContent computes a SHA256 hash of content for deduplication.
func HashContent(content string) string {
	if content == "" {
		return ""
	}
	hash := sha256.Sum256([]byte(content))
	return hex.EncodeToString(hash[:])
}
