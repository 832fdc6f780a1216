package wordpress

import (
	"context"
	"log"
	"strings"

	"github.com/mmcdole/gofeed"
)

// FeedTitles parses the site's public RSS feed and returns its item
// titles. Recently published posts show up here even when the REST
// pagination limit truncates the title listing. Any feed error is
// logged and yields nil; the feed is a supplementary source only.
func FeedTitles(ctx context.Context, feedURL string) []string {
	if feedURL == "" {
		return nil
	}

	parser := gofeed.NewParser()
	feed, err := parser.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		log.Printf("Failed to parse feed %s: %v", feedURL, err)
		return nil
	}

	var titles []string
	for _, item := range feed.Items {
		if t := strings.TrimSpace(item.Title); t != "" {
			titles = append(titles, t)
		}
	}
	log.Printf("Parsed %d titles from %s", len(titles), feedURL)
	return titles
}
