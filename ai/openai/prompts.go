package openai

import (
	"fmt"
	"strings"
	"sync"

	"github.com/invopop/jsonschema"
	"github.com/poiesic/vellum/ai"
)

const knowledgePromptTemplate = `Turn the conversation below into a concise knowledge document and return it as JSON.

Output ONLY valid JSON which complies with the schema given below. Do not include any preamble, explanation,
greeting, or acknowledgment. Start your response directly with the opening brace { and end with the closing
brace }. Your output must exactly follow this schema:

%s

Rules:
- The title names the subject of the conversation, not the participants.
- The summary is two to four sentences about what was established.
- Key points are standalone facts, decisions or conclusions. Omit pleasantries and dead ends.
- Tags are lowercase, one or two words joined by hyphens. Use at most eight.
- Include only information present in the conversation. Do not hallucinate.
- The JSON must parse without errors; no trailing commas, no extra keys, and no extraneous text outside the object.

Example:
Input: "user: how do I make git forget a file I already committed? assistant: add it to .gitignore and run git rm --cached <file>, then commit."
Output:
{
  "title": "Untracking a committed file in git",
  "summary": "A file that is already committed keeps being tracked after it is added to .gitignore. Removing it from the index with git rm --cached stops tracking without deleting it.",
  "key_points": ["Add the file to .gitignore", "Run git rm --cached <file>", "Commit the removal"],
  "tags": ["git", "version-control"]
}`

const classifierPromptTemplate = `Choose the single folder that best fits the document below.

Answer with exactly one word from this list and nothing else: %s

If nothing fits well, answer %s.`

var knowledgeSchema = sync.OnceValue(func() string {
	r := &jsonschema.Reflector{
		AllowAdditionalProperties:  false,
		DoNotReference:             true,
		RequiredFromJSONSchemaTags: true,
	}
	schema := r.Reflect(&ai.Knowledge{})
	schema.Version = ""
	schema.ID = ""
	data, err := schema.MarshalJSON()
	if err != nil {
		panic(fmt.Sprintf("knowledge schema: %v", err))
	}
	return string(data)
})

func knowledgeSystemPrompt() string {
	return fmt.Sprintf(knowledgePromptTemplate, knowledgeSchema())
}

// classifierSystemPrompt lists categories in order; the last one is the fallback.
func classifierSystemPrompt(categories []string) string {
	return fmt.Sprintf(classifierPromptTemplate,
		strings.Join(categories, ", "),
		categories[len(categories)-1])
}
