// Package pool implements the draft-pool replenishment controller: it
// measures how far the backend's draft pool is below target, collects
// deduplicated topic ideas across repeated generation attempts, turns
// them into articles and submits them as drafts.
package pool

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"time"

	"draftpool/internal/article"
	"draftpool/internal/config"
	"draftpool/internal/dedupe"
	"draftpool/internal/ideate"
	"draftpool/internal/state"
	"draftpool/internal/wordpress"
)

const (
	// Ideation attempt budget per run.
	maxAttempts = 5
	// Ask for more ideas than needed so dedup losses don't force
	// another round trip.
	minAskFor = 20

	draftFetchLimit     = 500
	publishedFetchLimit = 1000
)

// Result summarizes a controller run.
type Result struct {
	Locked        bool
	CurrentDrafts int
	Needed        int
	Collected     int
	Created       int
}

// Controller orchestrates one replenishment run.
type Controller struct {
	cfg      *config.Config
	wp       *wordpress.Client
	store    *state.Store
	ideas    *ideate.Generator
	articles *article.Generator
}

// New creates a Controller.
func New(cfg *config.Config, wp *wordpress.Client, store *state.Store, ideas *ideate.Generator, articles *article.Generator) *Controller {
	return &Controller{cfg: cfg, wp: wp, store: store, ideas: ideas, articles: articles}
}

// Run executes the full run: lock check, health check, pool count,
// idea generation, draft creation and state persistence.
func (c *Controller) Run(ctx context.Context) (*Result, error) {
	r := &Result{}
	today := time.Now().UTC()

	if c.cfg.Pool.DailyLock && c.store.HasRunMarker(today) {
		log.Println("Daily lock present; already ran today. Exiting.")
		r.Locked = true
		return r, nil
	}

	needed, banned, err := c.measure(ctx, r)
	if err != nil {
		return r, err
	}
	if needed == 0 {
		fmt.Printf("Draft pool already full (target=%d). Nothing to do.\n", c.cfg.Pool.Target)
		if c.cfg.Pool.DailyLock {
			if err := c.store.WriteRunMarker(today); err != nil {
				return r, err
			}
		}
		return r, nil
	}
	r.Needed = needed
	log.Printf("Will create up to %d new drafts this run.", needed)

	collected, err := c.generate(ctx, needed, banned)
	if err != nil {
		return r, err
	}
	collected = c.topUpFallback(collected, needed, banned)
	r.Collected = len(collected)

	if len(collected) == 0 {
		// Deliberately no lock marker: tomorrow's scheduled run should
		// retry generation instead of skipping the day.
		fmt.Println("No new unique ideas found. Exiting.")
		return r, nil
	}

	newUsed := dedupe.Set{}
	createErr := c.create(ctx, collected, needed, newUsed, r)

	// Titles of drafts created before a failure are persisted so they
	// are never proposed again; the store is still written exactly
	// once per run.
	if len(newUsed) > 0 {
		used := c.store.LoadUsedTitles()
		used.Merge(newUsed)
		if err := c.store.SaveUsedTitles(used); err != nil {
			if createErr == nil {
				createErr = err
			} else {
				log.Printf("Saving used titles: %v", err)
			}
		}
	}
	if createErr != nil {
		return r, createErr
	}

	fmt.Printf("Done. Created %d drafts.\n", r.Created)
	if c.cfg.Pool.DailyLock {
		if err := c.store.WriteRunMarker(today); err != nil {
			return r, err
		}
	}
	return r, nil
}

// DryRun performs the lock check, health check and pool count, then
// reports what a real run would do without generating or writing
// anything.
func (c *Controller) DryRun(ctx context.Context) (*Result, error) {
	r := &Result{}
	today := time.Now().UTC()

	if c.cfg.Pool.DailyLock && c.store.HasRunMarker(today) {
		log.Println("Daily lock present; a real run would exit immediately.")
		r.Locked = true
		return r, nil
	}

	needed, _, err := c.measure(ctx, r)
	if err != nil {
		return r, err
	}
	r.Needed = needed
	if needed == 0 {
		fmt.Printf("[dry-run] Draft pool already full (target=%d).\n", c.cfg.Pool.Target)
	} else {
		fmt.Printf("[dry-run] Would create up to %d new drafts.\n", needed)
	}
	return r, nil
}

// measure runs the health check, counts the current pool and builds
// the merged banned set from backend titles, the used-title store and
// the optional site feed.
func (c *Controller) measure(ctx context.Context, r *Result) (int, dedupe.Set, error) {
	me, err := c.wp.HealthCheck(ctx)
	if err != nil {
		return 0, nil, fmt.Errorf("health check: %w", err)
	}
	log.Printf("WP auth OK: %s (ID: %d)", me.Name, me.ID)

	draftTitles, err := c.wp.FetchTitles(ctx, "draft", draftFetchLimit)
	if err != nil {
		return 0, nil, fmt.Errorf("fetching draft titles: %w", err)
	}
	publishedTitles, err := c.wp.FetchTitles(ctx, "publish", publishedFetchLimit)
	if err != nil {
		return 0, nil, fmt.Errorf("fetching published titles: %w", err)
	}

	r.CurrentDrafts = len(draftTitles)
	log.Printf("Existing drafts on WP: %d", r.CurrentDrafts)

	needed := c.cfg.Pool.Target - r.CurrentDrafts
	if needed < 0 {
		needed = 0
	}
	if limit := c.cfg.Pool.CreateLimit; limit > 0 && needed > limit {
		needed = limit
	}

	banned := dedupe.NewSet(draftTitles...)
	for _, t := range publishedTitles {
		banned.AddTitle(t)
	}
	banned.Merge(c.store.LoadUsedTitles())
	for _, t := range wordpress.FeedTitles(ctx, c.cfg.Site.FeedURL) {
		banned.AddTitle(t)
	}

	return needed, banned, nil
}

// generate loops ideation attempts until enough unique ideas are
// collected or the attempt budget runs out. Accepted keys are added to
// the banned set so later attempts cannot re-propose them.
func (c *Controller) generate(ctx context.Context, needed int, banned dedupe.Set) ([]ideate.Idea, error) {
	blocked := dedupe.GenericBlocklist(c.cfg.Site.Region)

	var collected []ideate.Idea
	for attempt := 1; len(collected) < needed && attempt <= maxAttempts; attempt++ {
		askFor := needed + 5
		if askFor < minAskFor {
			askFor = minAskFor
		}

		raw, err := c.ideas.Ideate(ctx, askFor, banned.Keys())
		if err != nil {
			return nil, err
		}

		batch := ideate.FilterNew(raw, banned, blocked)
		collected = append(collected, batch...)
		for _, it := range batch {
			banned.AddTitle(it.Title)
		}
		log.Printf("Ideation pass %d: +%d new, total=%d", attempt, len(batch), len(collected))

		// Short randomized pause so repeated attempts don't burst the
		// model API.
		time.Sleep(time.Duration(300+rand.Intn(500)) * time.Millisecond)
	}
	return collected, nil
}

// topUpFallback fills remaining slots from the configured fallback
// topics, in list order, skipping banned keys.
func (c *Controller) topUpFallback(collected []ideate.Idea, needed int, banned dedupe.Set) []ideate.Idea {
	for _, topic := range c.cfg.Pool.FallbackTopics {
		if len(collected) >= needed {
			break
		}
		key := dedupe.Normalize(topic)
		if key == "" || banned.Has(key) {
			continue
		}
		banned.Add(key)
		collected = append(collected, ideate.Idea{
			Title:       topic,
			Description: "Travel guide",
			Keywords:    c.cfg.Site.Region + " travel",
		})
	}
	return collected
}

// create generates and publishes up to needed drafts, recording each
// created title in newUsed. The first failure aborts the run.
func (c *Controller) create(ctx context.Context, collected []ideate.Idea, needed int, newUsed dedupe.Set, r *Result) error {
	if len(collected) > needed {
		collected = collected[:needed]
	}

	for _, idea := range collected {
		if idea.Title == "" {
			idea.Title = c.cfg.Site.Region + " Travel Guide"
		}
		if idea.Description == "" {
			idea.Description = "Travel tips for " + c.cfg.Site.Region
		}

		html, err := c.articles.Generate(ctx, idea)
		if err != nil {
			return fmt.Errorf("generating article for %q: %w", idea.Title, err)
		}

		id, link, err := c.wp.CreateDraft(ctx, wordpress.Draft{
			Title:           idea.Title,
			HTML:            html,
			MetaDescription: idea.Description,
			Keywords:        idea.KeywordList(),
			FeaturedMediaID: c.cfg.Site.FeaturedMediaID,
		})
		if err != nil {
			return fmt.Errorf("creating draft for %q: %w", idea.Title, err)
		}

		log.Printf("Draft created: ID %d -> %s", id, link)
		newUsed.AddTitle(idea.Title)
		r.Created++
	}
	return nil
}
