// Package state persists the two pieces of cross-run state: the set of
// titles ever turned into drafts, and the per-day run-lock marker.
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"draftpool/internal/dedupe"
)

const usedTitlesFile = "used_titles.json"

// Store reads and writes run state under a local data directory.
type Store struct {
	dir string
}

// Open ensures the data directory exists and returns a Store over it.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the data directory path.
func (s *Store) Dir() string {
	return s.dir
}

// LoadUsedTitles reads the persisted used-title set. Entries are
// re-normalized on load so the file may hold raw titles. A missing or
// corrupt file yields an empty set.
func (s *Store) LoadUsedTitles() dedupe.Set {
	set := dedupe.Set{}
	data, err := os.ReadFile(filepath.Join(s.dir, usedTitlesFile))
	if err != nil {
		return set
	}
	var titles []string
	if err := json.Unmarshal(data, &titles); err != nil {
		return set
	}
	for _, t := range titles {
		set.AddTitle(t)
	}
	return set
}

// SaveUsedTitles rewrites the whole used-title file as a sorted JSON
// array, via a temp file and rename so a crash never leaves a partial
// file behind.
func (s *Store) SaveUsedTitles(set dedupe.Set) error {
	titles := set.Keys()
	sort.Strings(titles)

	data, err := json.MarshalIndent(titles, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding used titles: %w", err)
	}

	target := filepath.Join(s.dir, usedTitlesFile)
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing used titles: %w", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		return fmt.Errorf("replacing used titles: %w", err)
	}
	return nil
}

// markerName returns the lock file name for a day (UTC).
func markerName(t time.Time) string {
	return "run-" + t.UTC().Format("20060102") + ".lock"
}

// HasRunMarker reports whether the run-lock marker for the given day
// exists.
func (s *Store) HasRunMarker(t time.Time) bool {
	_, err := os.Stat(filepath.Join(s.dir, markerName(t)))
	return err == nil
}

// WriteRunMarker creates the run-lock marker for the given day.
// Markers are never deleted automatically; a new day's marker
// supersedes the old one.
func (s *Store) WriteRunMarker(t time.Time) error {
	if err := os.WriteFile(filepath.Join(s.dir, markerName(t)), []byte("ok"), 0o644); err != nil {
		return fmt.Errorf("writing run marker: %w", err)
	}
	return nil
}

// RemoveRunMarker deletes the run-lock marker for the given day, if
// present. Used by the unlock command.
func (s *Store) RemoveRunMarker(t time.Time) error {
	err := os.Remove(filepath.Join(s.dir, markerName(t)))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing run marker: %w", err)
	}
	return nil
}
