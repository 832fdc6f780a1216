// Package dedupe canonicalizes post titles into stable keys used for
// duplicate detection across the backend, the local used-title store
// and the current run.
package dedupe

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var (
	tagRe      = regexp.MustCompile(`<[^>]+>`)
	nonAlnumRe = regexp.MustCompile(`[^a-z0-9]+`)
)

// StripHTML removes markup tags from a string.
func StripHTML(s string) string {
	return tagRe.ReplaceAllString(s, "")
}

// Normalize reduces a title to its dedup key: markup stripped,
// lower-cased, NFKD-decomposed, every non-alphanumeric run collapsed
// to a single space, trimmed. Pure and idempotent; garbage input
// yields an empty key.
func Normalize(title string) string {
	t := strings.ToLower(StripHTML(title))
	t = norm.NFKD.String(t)
	t = nonAlnumRe.ReplaceAllString(t, " ")
	return strings.TrimSpace(t)
}

// Set is a set of normalized title keys.
type Set map[string]struct{}

// NewSet builds a Set from raw (un-normalized) titles.
func NewSet(titles ...string) Set {
	s := make(Set, len(titles))
	for _, t := range titles {
		s.AddTitle(t)
	}
	return s
}

// Add inserts an already-normalized key.
func (s Set) Add(key string) {
	if key != "" {
		s[key] = struct{}{}
	}
}

// AddTitle normalizes a raw title and inserts its key.
func (s Set) AddTitle(title string) {
	s.Add(Normalize(title))
}

// Has reports whether a normalized key is in the set.
func (s Set) Has(key string) bool {
	_, ok := s[key]
	return ok
}

// Merge adds all keys from other.
func (s Set) Merge(other Set) {
	for k := range other {
		s[k] = struct{}{}
	}
}

// Keys returns the keys in unspecified order.
func (s Set) Keys() []string {
	out := make([]string, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	return out
}

// GenericBlocklist returns the keys of overly generic titles that are
// rejected even when nothing else matches them.
func GenericBlocklist(region string) Set {
	return NewSet(
		"things to do in "+region,
		region+" travel guide",
		region+" itinerary",
	)
}
