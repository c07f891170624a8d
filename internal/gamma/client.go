// Package gamma is a read-only client for the Polymarket Gamma API,
// used to resolve market slugs into question metadata and price context.
package gamma

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

const defaultBaseURL = "https://gamma-api.polymarket.com"

// Config holds client configuration.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Client calls the Gamma REST endpoints.
type Client struct {
	rest    *resty.Client
	baseURL string
}

// NewClient creates a Gamma API client.
func NewClient(cfg *Config) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	rest := resty.New()
	rest.SetTimeout(timeout)

	return &Client{
		rest:    rest,
		baseURL: baseURL,
	}
}

// MarketBySlug fetches a single market by its slug.
func (c *Client) MarketBySlug(ctx context.Context, slug string) (*Market, error) {
	var markets []Market
	httpResp, err := c.rest.R().
		SetContext(ctx).
		SetQueryParam("slug", slug).
		SetResult(&markets).
		ForceContentType("application/json").
		Get(c.baseURL + "/markets")
	if err != nil {
		return nil, fmt.Errorf("failed to fetch market %q: %w", slug, err)
	}
	if httpResp.StatusCode() < 200 || httpResp.StatusCode() >= 300 {
		return nil, fmt.Errorf("gamma HTTP %d: %s", httpResp.StatusCode(), string(httpResp.Body()))
	}
	if len(markets) == 0 {
		return nil, fmt.Errorf("market %q not found", slug)
	}
	return &markets[0], nil
}

// EventBySlug fetches a single event (a group of related markets) by slug.
func (c *Client) EventBySlug(ctx context.Context, slug string) (*Event, error) {
	var events []Event
	httpResp, err := c.rest.R().
		SetContext(ctx).
		SetQueryParam("slug", slug).
		SetResult(&events).
		ForceContentType("application/json").
		Get(c.baseURL + "/events")
	if err != nil {
		return nil, fmt.Errorf("failed to fetch event %q: %w", slug, err)
	}
	if httpResp.StatusCode() < 200 || httpResp.StatusCode() >= 300 {
		return nil, fmt.Errorf("gamma HTTP %d: %s", httpResp.StatusCode(), string(httpResp.Body()))
	}
	if len(events) == 0 {
		return nil, fmt.Errorf("event %q not found", slug)
	}
	return &events[0], nil
}

// ActiveEventMarkets resolves the event containing the given market slug
// and returns its active, open sibling markets. The event slug is also
// returned when it can be determined.
func (c *Client) ActiveEventMarkets(ctx context.Context, marketSlug string) ([]Market, string, error) {
	market, err := c.MarketBySlug(ctx, marketSlug)
	if err != nil {
		return nil, "", err
	}

	eventSlug := market.EventSlugValue()
	if eventSlug == "" {
		// Some markets are standalone; treat the market itself as the set.
		return []Market{*market}, "", nil
	}

	event, err := c.EventBySlug(ctx, eventSlug)
	if err != nil {
		return nil, eventSlug, err
	}

	active := make([]Market, 0, len(event.Markets))
	for _, m := range event.Markets {
		if m.Active && !m.Closed && m.Slug != "" {
			active = append(active, m)
		}
	}
	return active, eventSlug, nil
}
