package ideate

import (
	"encoding/json"
	"regexp"
	"strings"
)

var arrayRe = regexp.MustCompile(`(?s)\[\s*\{.*?\}\s*\]`)

// ParseIdeas parses raw model output into ideas. Strategies are tried
// in order, first success wins: direct JSON array, JSON object with an
// "ideas" array field, regex scrape of an embedded array. Returns
// ok=false when every strategy fails.
func ParseIdeas(text string) ([]Idea, bool) {
	text = stripCodeFence(strings.TrimSpace(text))
	if text == "" {
		return nil, false
	}

	if records, ok := parseDirectArray(text); ok {
		return coerceAll(records), true
	}
	if records, ok := parseWrappedObject(text); ok {
		return coerceAll(records), true
	}
	if records, ok := parseEmbeddedArray(text); ok {
		return coerceAll(records), true
	}
	return nil, false
}

func parseDirectArray(text string) ([]map[string]any, bool) {
	var records []map[string]any
	if err := json.Unmarshal([]byte(text), &records); err != nil {
		return nil, false
	}
	return records, true
}

func parseWrappedObject(text string) ([]map[string]any, bool) {
	var wrapper struct {
		Ideas []map[string]any `json:"ideas"`
	}
	if err := json.Unmarshal([]byte(text), &wrapper); err != nil {
		return nil, false
	}
	if wrapper.Ideas == nil {
		return nil, false
	}
	return wrapper.Ideas, true
}

func parseEmbeddedArray(text string) ([]map[string]any, bool) {
	m := arrayRe.FindString(text)
	if m == "" {
		return nil, false
	}
	return parseDirectArray(m)
}

// stripCodeFence removes a surrounding markdown code fence, which
// models add despite being told not to.
func stripCodeFence(text string) string {
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

func coerceAll(records []map[string]any) []Idea {
	ideas := make([]Idea, 0, len(records))
	for _, r := range records {
		ideas = append(ideas, coerceIdea(r))
	}
	return ideas
}

// coerceIdea maps a loosely-typed record into an Idea. Missing or
// wrong-typed fields become empty strings; a keywords array is joined
// into a comma-separated string.
func coerceIdea(r map[string]any) Idea {
	idea := Idea{
		Title:       getString(r, "title"),
		Description: getString(r, "description"),
	}
	switch k := r["keywords"].(type) {
	case string:
		idea.Keywords = strings.TrimSpace(k)
	case []any:
		var parts []string
		for _, v := range k {
			if s, ok := v.(string); ok {
				parts = append(parts, strings.TrimSpace(s))
			}
		}
		idea.Keywords = strings.Join(parts, ", ")
	}
	return idea
}

func getString(m map[string]any, key string) string {
	if s, ok := m[key].(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}
