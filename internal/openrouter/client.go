// Package openrouter implements the OpenRouter chat-completions and model
// listing API, including SSE streaming, structured outputs and web-search
// plugins.
package openrouter

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/meemoee/market-movers-hub-sub000/internal/sse"
)

const defaultBaseURL = "https://openrouter.ai/api/v1"

// Config holds client configuration.
type Config struct {
	APIKey      string
	BaseURL     string
	Timeout     time.Duration
	Retries     int
	BackoffBase float64
}

// Client calls the OpenRouter API. Non-streaming requests go through
// resty; streaming uses net/http so the body can be read incrementally.
type Client struct {
	rest        *resty.Client
	httpClient  *http.Client
	baseURL     string
	apiKey      string
	retries     int
	backoffBase float64
}

// NewClient creates an OpenRouter client.
func NewClient(cfg *Config) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 180 * time.Second
	}
	retries := cfg.Retries
	if retries <= 0 {
		retries = 3
	}
	backoff := cfg.BackoffBase
	if backoff <= 1 {
		backoff = 1.7
	}

	rest := resty.New()
	rest.SetHeader("Authorization", "Bearer "+cfg.APIKey)
	rest.SetHeader("Content-Type", "application/json")
	rest.SetTimeout(timeout)

	return &Client{
		rest:        rest,
		httpClient:  &http.Client{Timeout: timeout},
		baseURL:     baseURL,
		apiKey:      cfg.APIKey,
		retries:     retries,
		backoffBase: backoff,
	}
}

// Complete sends a non-streaming chat completion and returns the text
// content. Transient upstream failures (429, 5xx) are retried with
// exponential backoff; error envelopes wrapped in 200s are surfaced.
func (c *Client) Complete(ctx context.Context, req *ChatRequest) (string, error) {
	req.Stream = false

	var lastErr error
	for attempt := 0; attempt < c.retries; attempt++ {
		if attempt > 0 {
			if err := sleepCtx(ctx, c.backoff(attempt)); err != nil {
				return "", err
			}
		}

		var resp ChatResponse
		httpResp, err := c.rest.R().
			SetContext(ctx).
			SetBody(req).
			SetResult(&resp).
			SetError(&resp).
			ForceContentType("application/json").
			Post(c.baseURL + "/chat/completions")
		if err != nil {
			lastErr = fmt.Errorf("failed to call openrouter: %w", err)
			continue
		}

		if retryableStatus(httpResp.StatusCode()) {
			lastErr = fmt.Errorf("openrouter HTTP %d: %s", httpResp.StatusCode(), string(httpResp.Body()))
			continue
		}
		if httpResp.StatusCode() < 200 || httpResp.StatusCode() >= 300 {
			if resp.Error != nil {
				return "", resp.Error
			}
			return "", fmt.Errorf("openrouter HTTP %d: %s", httpResp.StatusCode(), string(httpResp.Body()))
		}
		if resp.Error != nil {
			return "", resp.Error
		}

		content := resp.Content()
		if content == "" {
			lastErr = fmt.Errorf("empty completion (status %d)", httpResp.StatusCode())
			continue
		}
		return content, nil
	}

	return "", lastErr
}

// CompleteJSON sends a completion with a json_object response format and
// unmarshals the result into v.
func (c *Client) CompleteJSON(ctx context.Context, req *ChatRequest, v interface{}) error {
	if req.ResponseFormat == nil {
		req.ResponseFormat = &ResponseFormat{Type: "json_object"}
	}
	content, err := c.Complete(ctx, req)
	if err != nil {
		return err
	}
	if !sse.ExtractJSON(content, v) {
		return fmt.Errorf("completion is not valid JSON: %.120s", content)
	}
	return nil
}

// ListModels returns the available models, optionally filtered to those
// supporting the given parameter (e.g. "structured_outputs").
func (c *Client) ListModels(ctx context.Context, requireParameter string) ([]Model, error) {
	var list modelList
	httpResp, err := c.rest.R().
		SetContext(ctx).
		SetResult(&list).
		ForceContentType("application/json").
		Get(c.baseURL + "/models")
	if err != nil {
		return nil, fmt.Errorf("failed to list models: %w", err)
	}
	if httpResp.StatusCode() < 200 || httpResp.StatusCode() >= 300 {
		return nil, fmt.Errorf("openrouter HTTP %d: %s", httpResp.StatusCode(), string(httpResp.Body()))
	}

	if requireParameter == "" {
		return list.Data, nil
	}
	filtered := make([]Model, 0, len(list.Data))
	for _, m := range list.Data {
		if m.SupportsParameter(requireParameter) {
			filtered = append(filtered, m)
		}
	}
	return filtered, nil
}

func (c *Client) backoff(attempt int) time.Duration {
	return time.Duration(math.Pow(c.backoffBase, float64(attempt)) * float64(time.Second))
}

func retryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
