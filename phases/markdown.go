package phases

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/poiesic/vellum/ai"
	"github.com/poiesic/vellum/core"
	"gopkg.in/yaml.v3"
)

const frontMatterDelim = "---"

// FrontMatter is the YAML header of every generated document.
type FrontMatter struct {
	Title        string      `yaml:"title"`
	Summary      string      `yaml:"summary,omitempty"`
	Tags         []string    `yaml:"tags,omitempty"`
	Category     string      `yaml:"category,omitempty"`
	Source       string      `yaml:"source,omitempty"`
	ItemID       core.FileID `yaml:"item_id,omitempty"`
	ParentItemID core.FileID `yaml:"parent_item_id,omitempty"`
	ChunkIndex   *int        `yaml:"chunk_index,omitempty"`
	TotalChunks  int         `yaml:"total_chunks,omitempty"`
}

// RenderMarkdown writes front matter followed by body.
func RenderMarkdown(fm FrontMatter, body string) ([]byte, error) {
	header, err := yaml.Marshal(fm)
	if err != nil {
		return nil, fmt.Errorf("encode front matter: %w", err)
	}
	var buf bytes.Buffer
	buf.WriteString(frontMatterDelim + "\n")
	buf.Write(header)
	buf.WriteString(frontMatterDelim + "\n\n")
	buf.WriteString(strings.TrimSpace(body))
	buf.WriteString("\n")
	return buf.Bytes(), nil
}

// ParseMarkdown splits a document into its front matter and body.
// Documents without a header return ErrNoFrontMatter and the whole text as body.
func ParseMarkdown(content string) (FrontMatter, string, error) {
	var fm FrontMatter
	rest, ok := strings.CutPrefix(content, frontMatterDelim+"\n")
	if !ok {
		return fm, strings.TrimSpace(content), ErrNoFrontMatter
	}
	header, body, ok := strings.Cut(rest, "\n"+frontMatterDelim+"\n")
	if !ok {
		return fm, strings.TrimSpace(content), ErrNoFrontMatter
	}
	if err := yaml.Unmarshal([]byte(header), &fm); err != nil {
		return fm, "", fmt.Errorf("parse front matter: %w", err)
	}
	return fm, strings.TrimSpace(body), nil
}

// knowledgeBody renders extracted knowledge as the markdown document body.
func knowledgeBody(k *ai.Knowledge) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n", k.Title)
	if k.Summary != "" {
		fmt.Fprintf(&b, "\n%s\n", k.Summary)
	}
	if len(k.KeyPoints) > 0 {
		b.WriteString("\n## Key points\n\n")
		for _, p := range k.KeyPoints {
			fmt.Fprintf(&b, "- %s\n", p)
		}
	}
	return b.String()
}

// slugify lowercases value and keeps ASCII letters and digits, collapsing
// everything else into single dashes.
func slugify(value string, maxLen int) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(value) {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
			lastDash = false
		case !lastDash:
			b.WriteByte('-')
			lastDash = true
		}
	}
	slug := strings.Trim(b.String(), "-")
	if len(slug) > maxLen {
		slug = strings.TrimRight(slug[:maxLen], "-")
	}
	if slug == "" {
		return "untitled"
	}
	return slug
}
