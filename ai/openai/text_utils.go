package openai

import (
	"encoding/json"
	"strings"
)

// stripCodeFence removes a surrounding markdown code fence, if present.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// decodeJSON strips fences, repairs common key quoting mistakes and decodes.
func decodeJSON(s string, v any) error {
	return json.Unmarshal([]byte(repairJSON(stripCodeFence(s))), v)
}

// cleanResponse reduces a one-word answer to its first line without
// surrounding whitespace or fences.
func cleanResponse(s string) string {
	s = stripCodeFence(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

// truncateRunes limits s to n runes.
func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// isLetter returns true if the rune is an ASCII letter.
func isLetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}
