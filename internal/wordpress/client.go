// Package wordpress is the REST client for the content backend:
// paginated title listing, health check and draft creation.
package wordpress

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"draftpool/internal/dedupe"
	"draftpool/internal/httpclient"
)

const (
	excerptLimit  = 140
	metaDescLimit = 155
	pageSize      = 100
)

// User is the authenticated WordPress user, from the health check.
type User struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Draft is a post to be created, always with draft status.
type Draft struct {
	Title           string
	HTML            string
	MetaDescription string
	Keywords        []string
	FeaturedMediaID int
}

// Client talks to a WordPress site via the wp/v2 REST API with
// application-password Basic auth.
type Client struct {
	baseURL    string
	authHeader string
	authorID   int
	categoryID int
	http       *httpclient.Client
}

// New creates a Client. Username and app password must be non-empty.
func New(baseURL, username, appPassword string, authorID, categoryID int, hc *httpclient.Client) (*Client, error) {
	if username == "" || appPassword == "" {
		return nil, fmt.Errorf("wordpress username and app password are required")
	}
	token := base64.StdEncoding.EncodeToString([]byte(username + ":" + appPassword))
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		authHeader: "Basic " + token,
		authorID:   authorID,
		categoryID: categoryID,
		http:       hc,
	}, nil
}

func (c *Client) api(path string) string {
	return c.baseURL + "/wp-json/wp/v2" + path
}

func (c *Client) headers() map[string]string {
	return map[string]string{"Authorization": c.authHeader}
}

// HealthCheck verifies credentials and connectivity against the
// user-identity endpoint.
func (c *Client) HealthCheck(ctx context.Context) (User, error) {
	resp, err := c.http.Get(ctx, c.api("/users/me"), c.headers())
	if err != nil {
		return User{}, err
	}
	if resp.Status != http.StatusOK {
		return User{}, &httpclient.HTTPError{URL: c.api("/users/me"), Status: resp.Status, Attempts: 1}
	}
	var me User
	if err := json.Unmarshal(resp.Body, &me); err != nil {
		return User{}, fmt.Errorf("decoding user: %w", err)
	}
	return me, nil
}

// FetchTitles pages through the posts listing for a status ("draft",
// "publish" or "any") and returns markup-stripped titles. A 400 means
// the page number ran past the end of data and is not an error.
func (c *Client) FetchTitles(ctx context.Context, status string, limit int) ([]string, error) {
	var titles []string
	for page := 1; len(titles) < limit; page++ {
		params := url.Values{
			"per_page": {fmt.Sprintf("%d", pageSize)},
			"page":     {fmt.Sprintf("%d", page)},
			"status":   {status},
			"_fields":  {"title"},
		}
		reqURL := c.api("/posts") + "?" + params.Encode()

		resp, err := c.http.Get(ctx, reqURL, c.headers())
		if err != nil {
			return nil, err
		}
		if resp.Status == http.StatusBadRequest {
			break
		}
		if resp.Status != http.StatusOK {
			return nil, &httpclient.HTTPError{URL: reqURL, Status: resp.Status, Attempts: 1, Body: string(resp.Body)}
		}

		var items []struct {
			Title struct {
				Rendered string `json:"rendered"`
			} `json:"title"`
		}
		if err := json.Unmarshal(resp.Body, &items); err != nil {
			return nil, fmt.Errorf("decoding posts page %d: %w", page, err)
		}
		if len(items) == 0 {
			break
		}
		for _, it := range items {
			if t := strings.TrimSpace(dedupe.StripHTML(it.Title.Rendered)); t != "" {
				titles = append(titles, t)
			}
		}
	}
	return titles, nil
}

type postPayload struct {
	Title         string   `json:"title"`
	Content       string   `json:"content"`
	Status        string   `json:"status"`
	Excerpt       string   `json:"excerpt"`
	Author        int      `json:"author,omitempty"`
	Categories    []int    `json:"categories,omitempty"`
	FeaturedMedia int      `json:"featured_media,omitempty"`
	Meta          postMeta `json:"meta"`
}

type postMeta struct {
	MetaDesc string `json:"_yoast_wpseo_metadesc"`
	FocusKW  string `json:"_yoast_wpseo_focuskw"`
}

// CreateDraft submits a new post. Status is always draft regardless of
// any other setting; failures propagate after retry exhaustion.
func (c *Client) CreateDraft(ctx context.Context, d Draft) (int, string, error) {
	focusKW := ""
	if len(d.Keywords) > 0 {
		focusKW = d.Keywords[0]
	}

	payload := postPayload{
		Title:         d.Title,
		Content:       d.HTML,
		Status:        "draft",
		Excerpt:       truncate(d.MetaDescription, excerptLimit),
		FeaturedMedia: d.FeaturedMediaID,
		Meta: postMeta{
			MetaDesc: truncate(d.MetaDescription, metaDescLimit),
			FocusKW:  focusKW,
		},
	}
	if c.authorID != 0 {
		payload.Author = c.authorID
	}
	if c.categoryID != 0 {
		payload.Categories = []int{c.categoryID}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return 0, "", fmt.Errorf("encoding post: %w", err)
	}

	headers := c.headers()
	headers["Content-Type"] = "application/json"
	resp, err := c.http.Post(ctx, c.api("/posts"), headers, body)
	if err != nil {
		return 0, "", err
	}

	var created struct {
		ID   int    `json:"id"`
		Link string `json:"link"`
	}
	if err := json.Unmarshal(resp.Body, &created); err != nil {
		return 0, "", fmt.Errorf("decoding created post: %w", err)
	}
	return created.ID, created.Link, nil
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
