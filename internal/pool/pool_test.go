package pool

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"draftpool/internal/article"
	"draftpool/internal/config"
	"draftpool/internal/httpclient"
	"draftpool/internal/ideate"
	"draftpool/internal/llm"
	"draftpool/internal/state"
	"draftpool/internal/wordpress"
)

// fakeProvider scripts ideation responses and returns a fixed article
// body. Ideation and article calls are told apart by the system
// prompt.
type fakeProvider struct {
	mu            sync.Mutex
	ideation      func(call int) string
	articleBody   string
	ideationCalls int
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Generate(ctx context.Context, system, user string, temperature float64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if strings.Contains(system, "copywriter") {
		return f.articleBody, nil
	}
	f.ideationCalls++
	return f.ideation(f.ideationCalls), nil
}

// fakeSite is an httptest-backed WordPress with a fixed set of titles
// and a record of created posts.
type fakeSite struct {
	mu         sync.Mutex
	drafts     []string
	published  []string
	created    []map[string]any
	requests   int
	failCreate bool
	failAfter  int // when > 0, creates fail once this many succeeded
	srv        *httptest.Server
}

func newFakeSite(drafts, published []string) *fakeSite {
	s := &fakeSite{drafts: drafts, published: published}
	s.srv = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

func (s *fakeSite) handle(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests++

	switch {
	case r.URL.Path == "/wp-json/wp/v2/users/me":
		fmt.Fprint(w, `{"id": 1, "name": "editor"}`)

	case r.URL.Path == "/wp-json/wp/v2/posts" && r.Method == "GET":
		titles := s.drafts
		if r.URL.Query().Get("status") == "publish" {
			titles = s.published
		}
		if r.URL.Query().Get("page") != "1" {
			fmt.Fprint(w, `[]`)
			return
		}
		type item struct {
			Title struct {
				Rendered string `json:"rendered"`
			} `json:"title"`
		}
		items := make([]item, len(titles))
		for i, t := range titles {
			items[i].Title.Rendered = t
		}
		json.NewEncoder(w).Encode(items)

	case r.URL.Path == "/wp-json/wp/v2/posts" && r.Method == "POST":
		if s.failCreate || (s.failAfter > 0 && len(s.created) >= s.failAfter) {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		var payload map[string]any
		json.NewDecoder(r.Body).Decode(&payload)
		s.created = append(s.created, payload)
		if title, _ := payload["title"].(string); title != "" {
			s.drafts = append(s.drafts, title)
		}
		fmt.Fprintf(w, `{"id": %d, "link": "%s/?p=%d"}`, len(s.created), s.srv.URL, len(s.created))

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (s *fakeSite) createdTitles() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, p := range s.created {
		title, _ := p["title"].(string)
		out = append(out, title)
	}
	return out
}

func (s *fakeSite) requestCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests
}

func ideasJSON(titles ...string) string {
	var records []map[string]any
	for _, t := range titles {
		records = append(records, map[string]any{
			"title":       t,
			"description": "A short description",
			"keywords":    "albania, travel, guide",
		})
	}
	data, _ := json.Marshal(records)
	return string(data)
}

func newController(t *testing.T, site *fakeSite, provider llm.Provider, edit func(*config.Config)) (*Controller, *state.Store) {
	t.Helper()

	cfg := &config.Config{
		Site: config.Site{
			BaseURL:  site.srv.URL,
			Region:   "Albania",
			Username: "editor", AppPassword: "secret",
		},
		Article: config.Article{Language: "English", MinWords: 100, MaxWords: 200},
		Pool:    config.Pool{Target: 30, CreateLimit: 5, DailyLock: true},
	}
	if edit != nil {
		edit(cfg)
	}

	hc := httpclient.New(5*time.Second, 2, time.Millisecond)
	wp, err := wordpress.New(cfg.Site.BaseURL, cfg.Site.Username, cfg.Site.AppPassword, 0, 0, hc)
	if err != nil {
		t.Fatal(err)
	}
	store, err := state.Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	ideas := ideate.NewGenerator(provider, cfg.Site.Region, cfg.Article.Language)
	articles := article.NewGenerator(provider, cfg.Site.BaseURL, cfg.Article.Language, cfg.Article.MinWords, cfg.Article.MaxWords)
	return New(cfg, wp, store, ideas, articles), store
}

func manyTitles(n int) []string {
	titles := make([]string, n)
	for i := range titles {
		titles[i] = fmt.Sprintf("Existing Draft Number %d", i+1)
	}
	return titles
}

func TestRunLockShortCircuit(t *testing.T) {
	site := newFakeSite(nil, nil)
	defer site.srv.Close()

	provider := &fakeProvider{ideation: func(int) string {
		t.Error("no ideation expected when locked")
		return ""
	}}
	ctrl, store := newController(t, site, provider, nil)

	if err := store.WriteRunMarker(time.Now().UTC()); err != nil {
		t.Fatal(err)
	}

	r, err := ctrl.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !r.Locked {
		t.Error("expected locked result")
	}
	if got := site.requestCount(); got != 0 {
		t.Errorf("expected zero network calls, got %d", got)
	}
}

func TestRunPoolFull(t *testing.T) {
	site := newFakeSite(manyTitles(35), nil)
	defer site.srv.Close()

	provider := &fakeProvider{ideation: func(int) string {
		t.Error("no ideation expected when pool is full")
		return ""
	}}
	ctrl, store := newController(t, site, provider, nil)

	r, err := ctrl.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if r.CurrentDrafts != 35 || r.Needed != 0 || r.Created != 0 {
		t.Errorf("got %+v", r)
	}
	if len(site.createdTitles()) != 0 {
		t.Error("no drafts should be created")
	}
	if !store.HasRunMarker(time.Now().UTC()) {
		t.Error("lock marker should be written on the pool-full path")
	}
}

func TestRunEndToEnd(t *testing.T) {
	site := newFakeSite(manyTitles(28), []string{"Berat Old Town"})
	defer site.srv.Close()

	provider := &fakeProvider{
		ideation: func(int) string {
			return ideasJSON("Tirana Weekend Guide", "Tirana Weekend Guide", "3 Days in Vlorë")
		},
		articleBody: "<p>Article body.</p>",
	}
	ctrl, store := newController(t, site, provider, nil)

	r, err := ctrl.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if r.Needed != 2 {
		t.Errorf("expected needed=2, got %d", r.Needed)
	}
	if r.Created != 2 {
		t.Errorf("expected 2 drafts created, got %d", r.Created)
	}

	created := site.createdTitles()
	if len(created) != 2 || created[0] != "Tirana Weekend Guide" || created[1] != "3 Days in Vlorë" {
		t.Errorf("got created titles %v", created)
	}
	for _, p := range site.created {
		if p["status"] != "draft" {
			t.Errorf("post not created as draft: %v", p["status"])
		}
	}

	used := store.LoadUsedTitles()
	if len(used) != 2 {
		t.Errorf("used-title store should grow by exactly 2, got %d", len(used))
	}
	if !used.Has("tirana weekend guide") || !used.Has("3 days in vlore") {
		t.Errorf("unexpected used keys: %v", used.Keys())
	}
	if !store.HasRunMarker(time.Now().UTC()) {
		t.Error("lock marker missing after successful run")
	}
}

func TestRunPerRunCap(t *testing.T) {
	site := newFakeSite(manyTitles(20), nil)
	defer site.srv.Close()

	provider := &fakeProvider{
		ideation: func(int) string {
			return ideasJSON(
				"Kruja Bazaar Morning", "Dhermi Beach Week", "Theth Hiking Basics",
				"Permet Thermal Baths", "Apollonia Day Trip", "Korça Winter Food",
				"Lezha History Walk", "Divjaka Pelicans",
			)
		},
		articleBody: "<p>Body.</p>",
	}
	ctrl, _ := newController(t, site, provider, nil)

	r, err := ctrl.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	// target 30 - 20 drafts = 10 needed, clamped to the cap of 5.
	if r.Needed != 5 {
		t.Errorf("expected needed clamped to 5, got %d", r.Needed)
	}
	if r.Created != 5 {
		t.Errorf("expected 5 drafts created, got %d", r.Created)
	}
}

func TestRunCollectedTitlesAreBannedAcrossAttempts(t *testing.T) {
	site := newFakeSite(manyTitles(28), nil)
	defer site.srv.Close()

	provider := &fakeProvider{
		ideation: func(call int) string {
			if call == 1 {
				return ideasJSON("Tirana Weekend Guide")
			}
			// Re-proposes the already-collected title plus a new one.
			return ideasJSON("Tirana Weekend Guide", "Shkodra Lake Cycling")
		},
		articleBody: "<p>Body.</p>",
	}
	ctrl, _ := newController(t, site, provider, nil)

	r, err := ctrl.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if r.Created != 2 {
		t.Errorf("expected 2 created, got %d", r.Created)
	}
	created := site.createdTitles()
	if len(created) != 2 || created[0] != "Tirana Weekend Guide" || created[1] != "Shkodra Lake Cycling" {
		t.Errorf("got %v", created)
	}
}

func TestRunFallbackTopicsFillInOrder(t *testing.T) {
	site := newFakeSite(manyTitles(28), []string{"Already Covered Topic"})
	defer site.srv.Close()

	provider := &fakeProvider{
		ideation:    func(int) string { return "the model rambled and returned no json" },
		articleBody: "<p>Body.</p>",
	}
	ctrl, _ := newController(t, site, provider, func(cfg *config.Config) {
		cfg.Pool.FallbackTopics = []string{
			"Already Covered Topic", // banned via published titles
			"Fallback Topic One",
			"Fallback Topic Two",
			"Fallback Topic Three",
		}
	})

	r, err := ctrl.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if r.Created != 2 {
		t.Errorf("expected 2 created from fallback, got %d", r.Created)
	}
	created := site.createdTitles()
	if len(created) != 2 || created[0] != "Fallback Topic One" || created[1] != "Fallback Topic Two" {
		t.Errorf("fallback order not preserved: %v", created)
	}
}

func TestRunZeroIdeasAbortsWithoutLock(t *testing.T) {
	site := newFakeSite(manyTitles(28), nil)
	defer site.srv.Close()

	provider := &fakeProvider{
		ideation: func(int) string { return "no json at all" },
	}
	ctrl, store := newController(t, site, provider, nil)

	r, err := ctrl.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if r.Created != 0 || r.Collected != 0 {
		t.Errorf("got %+v", r)
	}
	if provider.ideationCalls != 5 {
		t.Errorf("expected 5 ideation attempts, got %d", provider.ideationCalls)
	}
	if len(site.createdTitles()) != 0 {
		t.Error("no drafts should be created")
	}
	if store.HasRunMarker(time.Now().UTC()) {
		t.Error("lock must not be written when generation found nothing")
	}
}

func TestRunSameDayIdempotent(t *testing.T) {
	site := newFakeSite(manyTitles(28), nil)
	defer site.srv.Close()

	provider := &fakeProvider{
		ideation:    func(int) string { return ideasJSON("Tirana Weekend Guide", "3 Days in Vlorë") },
		articleBody: "<p>Body.</p>",
	}
	ctrl, _ := newController(t, site, provider, nil)

	first, err := ctrl.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if first.Created != 2 {
		t.Fatalf("expected 2 created on first run, got %d", first.Created)
	}

	second, err := ctrl.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !second.Locked {
		t.Error("second run on the same day should hit the lock")
	}
	if len(site.createdTitles()) != 2 {
		t.Errorf("second run must not create drafts, total created %d", len(site.createdTitles()))
	}
}

func TestRunPublishFailureAbortsRun(t *testing.T) {
	site := newFakeSite(manyTitles(28), nil)
	defer site.srv.Close()

	provider := &fakeProvider{
		ideation:    func(int) string { return ideasJSON("Topic Alpha", "Topic Beta") },
		articleBody: "<p>Body.</p>",
	}
	ctrl, store := newController(t, site, provider, nil)

	site.mu.Lock()
	site.failCreate = true
	site.mu.Unlock()

	r, err := ctrl.Run(context.Background())
	if err == nil {
		t.Fatal("expected run to abort on publish failure")
	}
	if r.Created != 0 {
		t.Errorf("expected 0 created, got %d", r.Created)
	}
	if store.HasRunMarker(time.Now().UTC()) {
		t.Error("lock must not be written after an aborted run")
	}
}

func TestRunPublishFailureKeepsEarlierTitles(t *testing.T) {
	site := newFakeSite(manyTitles(28), nil)
	defer site.srv.Close()

	provider := &fakeProvider{
		ideation:    func(int) string { return ideasJSON("Topic Alpha", "Topic Beta") },
		articleBody: "<p>Body.</p>",
	}
	ctrl, store := newController(t, site, provider, nil)

	// The backend accepts one draft, then starts failing.
	site.mu.Lock()
	site.failAfter = 1
	site.mu.Unlock()

	r, err := ctrl.Run(context.Background())
	if err == nil {
		t.Fatal("expected run to abort on the second publish")
	}
	if r.Created != 1 {
		t.Errorf("expected 1 created before the failure, got %d", r.Created)
	}

	// The title already turned into a draft must survive the abort so
	// it is never proposed again.
	used := store.LoadUsedTitles()
	if len(used) != 1 || !used.Has("topic alpha") {
		t.Errorf("got used keys %v", used.Keys())
	}
	if store.HasRunMarker(time.Now().UTC()) {
		t.Error("lock must not be written after an aborted run")
	}
}

func TestDryRunReportsWithoutWriting(t *testing.T) {
	site := newFakeSite(manyTitles(27), nil)
	defer site.srv.Close()

	provider := &fakeProvider{ideation: func(int) string {
		t.Error("dry run must not call the model")
		return ""
	}}
	ctrl, store := newController(t, site, provider, nil)

	r, err := ctrl.DryRun(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if r.CurrentDrafts != 27 || r.Needed != 3 {
		t.Errorf("got %+v", r)
	}
	if r.Created != 0 || len(site.createdTitles()) != 0 {
		t.Error("dry run must not create drafts")
	}
	if store.HasRunMarker(time.Now().UTC()) {
		t.Error("dry run must not write the lock")
	}
}
