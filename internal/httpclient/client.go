package httpclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

// Response is a fully-read HTTP response.
type Response struct {
	Status int
	Body   []byte
}

// HTTPError is returned when a request ends on a non-success status.
// It carries the attempt count and last status so callers can decide
// fatal-vs-recoverable without string matching.
type HTTPError struct {
	URL      string
	Status   int
	Attempts int
	Body     string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s returned %d after %d attempt(s): %s", e.URL, e.Status, e.Attempts, e.Body)
}

// retryable statuses: rate limiting and transient server errors.
func retryable(status int) bool {
	switch status {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// Client issues HTTP requests with bounded linear-backoff retry on
// transient upstream errors. POSTs are retried; GETs are single-shot.
type Client struct {
	http        *http.Client
	maxAttempts int
	backoff     time.Duration
}

// New creates a Client with the given per-request timeout, total
// attempt budget and backoff unit.
func New(timeout time.Duration, maxAttempts int, backoff time.Duration) *Client {
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		http:        &http.Client{Timeout: timeout},
		maxAttempts: maxAttempts,
		backoff:     backoff,
	}
}

// Post sends a POST request. On 429/500/502/503/504 it waits
// backoff×attempt and retries, up to the attempt budget. Any other
// non-2xx status fails immediately.
func (c *Client) Post(ctx context.Context, url string, headers map[string]string, body []byte) (*Response, error) {
	var last *Response
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("creating request: %w", err)
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := c.do(req)
		if err != nil {
			return nil, err
		}

		if retryable(resp.Status) {
			last = resp
			if attempt < c.maxAttempts {
				wait := c.backoff * time.Duration(attempt)
				log.Printf("%d from %s. Retrying in %s...", resp.Status, url, wait)
				time.Sleep(wait)
			}
			continue
		}

		if resp.Status < 200 || resp.Status >= 300 {
			return nil, &HTTPError{URL: url, Status: resp.Status, Attempts: attempt, Body: snippet(resp.Body)}
		}
		return resp, nil
	}

	if last != nil {
		return nil, &HTTPError{URL: url, Status: last.Status, Attempts: c.maxAttempts, Body: snippet(last.Body)}
	}
	return nil, fmt.Errorf("request to %s failed and no response available", url)
}

// Get sends a single GET request without retry. Callers that page
// through listings handle end-of-data statuses themselves.
func (c *Client) Get(ctx context.Context, url string, headers map[string]string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return c.do(req)
}

func (c *Client) do(req *http.Request) (*Response, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.URL, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response from %s: %w", req.URL, err)
	}
	return &Response{Status: resp.StatusCode, Body: data}, nil
}

func snippet(body []byte) string {
	s := string(body)
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}
