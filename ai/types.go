package ai

import (
	"slices"
	"strings"
)

// DefaultCategories are the folders documents are organized into unless
// configured otherwise.
var DefaultCategories = []string{
	"journal",
	"projects",
	"reference",
	"research",
	"how-to",
	"ideas",
	"personal",
	"misc",
}

// Knowledge is the structured content extracted from one conversation or
// conversation chunk.
type Knowledge struct {
	// Title is a short, specific title for the document.
	Title string `json:"title" jsonschema:"required,description=Short specific title"`

	// Summary is a few sentences describing what the conversation established.
	Summary string `json:"summary" jsonschema:"required,description=Two to four sentence summary"`

	// KeyPoints are the facts, decisions and conclusions worth keeping.
	KeyPoints []string `json:"key_points" jsonschema:"required,description=Facts decisions and conclusions"`

	// Tags are lowercase topic labels.
	Tags []string `json:"tags" jsonschema:"required,description=Lowercase topic labels"`
}

// Normalize trims fields, lowercases tags and drops empty and duplicate entries.
func (k *Knowledge) Normalize() {
	k.Title = strings.TrimSpace(k.Title)
	k.Summary = strings.TrimSpace(k.Summary)

	points := k.KeyPoints[:0]
	for _, p := range k.KeyPoints {
		if p = strings.TrimSpace(p); p != "" {
			points = append(points, p)
		}
	}
	k.KeyPoints = points

	tags := make([]string, 0, len(k.Tags))
	for _, t := range k.Tags {
		t = strings.ToLower(strings.TrimSpace(t))
		t = strings.ReplaceAll(t, " ", "-")
		if t != "" && !slices.Contains(tags, t) {
			tags = append(tags, t)
		}
	}
	k.Tags = tags
}

// Empty reports whether the extraction produced nothing usable.
func (k *Knowledge) Empty() bool {
	return k.Title == "" && k.Summary == "" && len(k.KeyPoints) == 0
}

// MatchCategory maps a model answer onto one of categories, ignoring case,
// surrounding quotes and punctuation. It returns false when nothing matches.
func MatchCategory(answer string, categories []string) (string, bool) {
	answer = strings.ToLower(strings.Trim(strings.TrimSpace(answer), "\"'`.,:;!"))
	for _, c := range categories {
		if strings.EqualFold(c, answer) {
			return c, true
		}
	}
	return "", false
}
