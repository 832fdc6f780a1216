// Package ideate asks the model for candidate topics and defensively
// parses its free-form reply into structured ideas.
package ideate

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"draftpool/internal/dedupe"
	"draftpool/internal/llm"
)

// Sample size of banned titles quoted in the prompt. Listing every key
// would blow the context on large sites.
const maxBannedInPrompt = 120

// Idea is a candidate topic prior to body generation.
type Idea struct {
	Title       string
	Description string
	Keywords    string // comma-separated
}

// KeywordList splits the comma-separated keywords.
func (i Idea) KeywordList() []string {
	var out []string
	for _, k := range strings.Split(i.Keywords, ",") {
		if k = strings.TrimSpace(k); k != "" {
			out = append(out, k)
		}
	}
	return out
}

// Generator produces topic ideas via an LLM provider.
type Generator struct {
	provider llm.Provider
	region   string
	language string
}

// NewGenerator creates an idea generator for a region.
func NewGenerator(provider llm.Provider, region, language string) *Generator {
	return &Generator{provider: provider, region: region, language: language}
}

// Ideate requests n unique topic ideas, avoiding the banned titles.
// Malformed model output degrades to fewer (or zero) ideas, not an
// error; the returned error is only a provider failure.
func (g *Generator) Ideate(ctx context.Context, n int, banned []string) ([]Idea, error) {
	system := fmt.Sprintf("You are an SEO travel editor for a blog about %s. Reply in %s.", g.region, g.language)

	sample := make([]string, len(banned))
	copy(sample, banned)
	sort.Strings(sample)
	if len(sample) > maxBannedInPrompt {
		sample = sample[:maxBannedInPrompt]
	}

	user := fmt.Sprintf(`Return ONLY a valid JSON array (no prose). Each item:
  - title (<= 65 chars; include '%[1]s' or a specific city/region)
  - description (<= 140 chars, no quotes)
  - keywords (5-8 items, comma-separated)
Rules:
- Propose exactly %[2]d unique, high-intent topics for %[1]s travel.
- Avoid any similarity to these existing or banned titles: %[3]s
- No duplicates, no near-duplicates, avoid vague 'Things to do' unless city-specific and unique.
- Prefer specificity (e.g., '2 days in Shkodër' vs '%[1]s itinerary').
- Today is %[4]s. Include seasonal relevance when helpful.`,
		g.region, n, strings.Join(sample, "; "), time.Now().UTC().Format("2006-01-02"))

	raw, err := g.provider.Generate(ctx, system, user, 0.95)
	if err != nil {
		return nil, fmt.Errorf("ideation call: %w", err)
	}

	ideas, ok := ParseIdeas(raw)
	if !ok {
		log.Printf("Ideation response could not be parsed; continuing with 0 ideas")
		return nil, nil
	}
	return ideas, nil
}

// FilterNew returns the ideas whose normalized title key is non-empty,
// not banned, not generic, and not already accepted earlier in the
// same batch. Input order is preserved; acceptance is first-come.
func FilterNew(ideas []Idea, banned, blocked dedupe.Set) []Idea {
	var out []Idea
	seen := dedupe.Set{}
	for _, it := range ideas {
		key := dedupe.Normalize(it.Title)
		if key == "" || banned.Has(key) || seen.Has(key) || blocked.Has(key) {
			continue
		}
		seen.Add(key)
		out = append(out, it)
	}
	return out
}
