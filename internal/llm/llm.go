package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"draftpool/internal/config"
	"draftpool/internal/httpclient"
)

// Provider is the interface for chat-completion backends.
type Provider interface {
	Name() string
	Generate(ctx context.Context, system, user string, temperature float64) (string, error)
}

// chatRequest is the OpenAI-compatible chat completion payload shared
// by the OpenAI and OpenRouter providers.
type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func chatBody(model, system, user string, temperature float64) ([]byte, error) {
	return json.Marshal(chatRequest{
		Model: model,
		Messages: []chatMessage{
			{Role: "system", Content: strings.TrimSpace(system)},
			{Role: "user", Content: strings.TrimSpace(user)},
		},
		Temperature: temperature,
	})
}

func parseChat(body []byte) (string, error) {
	var result chatResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}
	if len(result.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}
	return strings.TrimSpace(result.Choices[0].Message.Content), nil
}

// OpenAIProvider talks to the OpenAI chat completions API.
type OpenAIProvider struct {
	model  string
	apiKey string
	client *httpclient.Client
}

func (o *OpenAIProvider) Name() string { return "openai" }

func (o *OpenAIProvider) Generate(ctx context.Context, system, user string, temperature float64) (string, error) {
	data, err := chatBody(o.model, system, user, temperature)
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}
	headers := map[string]string{
		"Authorization": "Bearer " + o.apiKey,
		"Content-Type":  "application/json",
	}
	resp, err := o.client.Post(ctx, "https://api.openai.com/v1/chat/completions", headers, data)
	if err != nil {
		return "", err
	}
	return parseChat(resp.Body)
}

// OpenRouterProvider talks to the OpenRouter chat completions API.
type OpenRouterProvider struct {
	model   string
	apiKey  string
	referer string
	client  *httpclient.Client
}

func (o *OpenRouterProvider) Name() string { return "openrouter" }

func (o *OpenRouterProvider) Generate(ctx context.Context, system, user string, temperature float64) (string, error) {
	data, err := chatBody(o.model, system, user, temperature)
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}
	headers := map[string]string{
		"Authorization": "Bearer " + o.apiKey,
		"Content-Type":  "application/json",
		"HTTP-Referer":  o.referer,
		"X-Title":       "draftpool",
	}
	resp, err := o.client.Post(ctx, "https://openrouter.ai/api/v1/chat/completions", headers, data)
	if err != nil {
		return "", err
	}
	return parseChat(resp.Body)
}

// CustomProvider posts to an arbitrary endpoint that accepts
// {"system": ..., "prompt": ...} and answers with the completion as a
// plain text body.
type CustomProvider struct {
	url    string
	auth   string
	client *httpclient.Client
}

func (c *CustomProvider) Name() string { return "custom" }

func (c *CustomProvider) Generate(ctx context.Context, system, user string, temperature float64) (string, error) {
	data, err := json.Marshal(map[string]string{
		"system": strings.TrimSpace(system),
		"prompt": strings.TrimSpace(user),
	})
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}
	headers := map[string]string{"Content-Type": "application/json"}
	if c.auth != "" {
		headers["Authorization"] = c.auth
	}
	resp, err := c.client.Post(ctx, c.url, headers, data)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(resp.Body)), nil
}

// CreateProvider builds the configured provider. A missing key or URL
// is a configuration error, surfaced before any side effect.
func CreateProvider(cfg config.LLM, siteURL string, client *httpclient.Client) (Provider, error) {
	switch strings.ToLower(cfg.Provider) {
	case "openai":
		if cfg.OpenAIKey == "" {
			return nil, fmt.Errorf("%s not set", cfg.OpenAIKeyEnv)
		}
		return &OpenAIProvider{model: cfg.OpenAIModel, apiKey: cfg.OpenAIKey, client: client}, nil
	case "openrouter":
		if cfg.OpenRouterKey == "" {
			return nil, fmt.Errorf("%s not set", cfg.OpenRouterKeyEnv)
		}
		referer := siteURL
		if referer == "" {
			referer = "https://attractivealbania.com"
		}
		return &OpenRouterProvider{model: cfg.OpenRouterModel, apiKey: cfg.OpenRouterKey, referer: referer, client: client}, nil
	case "custom":
		if cfg.CustomURL == "" {
			return nil, fmt.Errorf("llm.custom_url not set")
		}
		return &CustomProvider{url: cfg.CustomURL, auth: cfg.CustomAuth, client: client}, nil
	}
	return nil, fmt.Errorf("unsupported llm provider: %s", cfg.Provider)
}
