package openai

import "strings"

// repairJSON fixes object keys that a model emitted without their opening
// quote, e.g. `{title": "x"}` becomes `{"title": "x"}`. Everything else is
// passed through unchanged.
func repairJSON(s string) string {
	src := []rune(s)
	var out strings.Builder
	out.Grow(len(s) + 16)

	for i := 0; i < len(src); {
		ch := src[i]
		out.WriteRune(ch)
		i++
		if ch != '{' && ch != ',' {
			continue
		}

		for i < len(src) && (src[i] == ' ' || src[i] == '\n' || src[i] == '\t' || src[i] == '\r') {
			out.WriteRune(src[i])
			i++
		}
		if i >= len(src) || !isLetter(src[i]) {
			continue
		}

		start := i
		for i < len(src) && (isLetter(src[i]) || src[i] == '_' || src[i] == ' ') {
			i++
		}
		key := string(src[start:i])
		if i+1 < len(src) && src[i] == '"' && src[i+1] == ':' {
			out.WriteRune('"')
			out.WriteString(strings.TrimRight(key, " "))
			continue
		}
		out.WriteString(key)
	}
	return out.String()
}
