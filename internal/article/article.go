// Package article expands an accepted idea into a full HTML draft
// body.
package article

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"

	"draftpool/internal/ideate"
	"draftpool/internal/llm"
)

// Generator produces article bodies via an LLM provider.
type Generator struct {
	provider llm.Provider
	siteURL  string
	language string
	minWords int
	maxWords int
}

// NewGenerator creates an article generator.
func NewGenerator(provider llm.Provider, siteURL, language string, minWords, maxWords int) *Generator {
	return &Generator{
		provider: provider,
		siteURL:  siteURL,
		language: language,
		minWords: minWords,
		maxWords: maxWords,
	}
}

// Generate writes the HTML body for an idea. Structural requirements
// (word count, allowed tags) are prompt-level only; the model's output
// is not validated beyond Markdown fallback conversion.
func (g *Generator) Generate(ctx context.Context, idea ideate.Idea) (string, error) {
	system := fmt.Sprintf(
		"You are a senior travel copywriter. Write in %s. Tone: helpful, accurate, no fluff.",
		g.language,
	)

	user := fmt.Sprintf(`Write a %d-%d word blog article in clean HTML (no <html>, no <body>):
- H1 is the exact title: %s
- 80-120 word intro
- 5-8 sections with H2/H3: practical tips, general price ranges, best times, transport, safety
- Add 2 internal link placeholders to %s: <a href="/{path}">Anchor</a>
- Add a "Plan Your Trip" checklist (<ul>)
- Add 4-question FAQ with <details><summary>Q</summary><p>A</p></details>
- End with a short takeaway
Allowed tags: <p>, <h2>, <h3>, <ul>, <li>, <details>, <summary>, <a>
Target keywords: %s
Context meta description: %s`,
		g.minWords, g.maxWords, idea.Title, g.siteURL, idea.Keywords, idea.Description)

	raw, err := g.provider.Generate(ctx, system, user, 0.8)
	if err != nil {
		return "", fmt.Errorf("article call: %w", err)
	}
	return Postprocess(raw), nil
}

var htmlTagRe = regexp.MustCompile(`<\s*(p|h[1-6]|ul|li|details|summary|a)\b`)

// Postprocess strips a surrounding code fence and, when the body
// contains no HTML at all, converts it from Markdown. Models answer in
// Markdown often enough that publishing the raw text would produce an
// unformatted wall of prose.
func Postprocess(body string) string {
	body = stripFence(strings.TrimSpace(body))
	if htmlTagRe.MatchString(body) {
		return body
	}

	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(body), &buf); err != nil {
		return body
	}
	return strings.TrimSpace(buf.String())
}

func stripFence(text string) string {
	if !strings.HasPrefix(text, "```") {
		return text
	}
	lines := strings.Split(text, "\n")
	endIdx := len(lines) - 1
	for i := len(lines) - 1; i > 0; i-- {
		if strings.TrimSpace(lines[i]) == "```" {
			endIdx = i
			break
		}
	}
	return strings.TrimSpace(strings.Join(lines[1:endIdx], "\n"))
}
