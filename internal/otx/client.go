package otx

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tdr0/connectors/internal/retry"
	"log/slog"
)

const (
	subscribedPath = "/api/v1/pulses/subscribed"
	userPath       = "/api/v1/user/me"
	defaultLimit   = 50
	userAgent      = "opencti-alienvault-connector"
)

// Client talks to the AlienVault OTX v1 API.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	logger  *slog.Logger
	policy  retry.Policy
	limit   int
}

// NewClient constructs an OTX client.
func NewClient(baseURL, apiKey string, logger *slog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 30 * time.Second},
		logger:  logger,
		policy:  retry.DefaultPolicy(),
		limit:   defaultLimit,
	}
}

// GetPulsesSince retrieves all subscribed pulses modified since the given
// time, following pagination links until the listing is exhausted.
func (c *Client) GetPulsesSince(ctx context.Context, since time.Time) ([]Pulse, error) {
	query := url.Values{}
	query.Set("limit", strconv.Itoa(c.limit))
	query.Set("modified_since", since.UTC().Format(time.RFC3339))

	next := c.baseURL + subscribedPath + "?" + query.Encode()

	var pulses []Pulse
	pages := 0

	for next != "" {
		var page pulsePage
		err := retry.Do(ctx, c.policy, func() error {
			return c.getJSON(ctx, next, &page)
		})
		if err != nil {
			return nil, fmt.Errorf("fetch pulse page %d: %w", pages+1, err)
		}

		pulses = append(pulses, page.Results...)
		pages++
		c.logger.Debug("fetched pulse page",
			"page", pages,
			"pulses", len(page.Results),
			"total", page.Count,
		)

		next = page.Next
	}

	c.logger.Info("fetched subscribed pulses",
		"since", since.UTC().Format(time.RFC3339),
		"pages", pages,
		"count", len(pulses),
	)

	return pulses, nil
}

// HealthCheck verifies the API key against the account endpoint.
func (c *Client) HealthCheck(ctx context.Context) error {
	var user User
	if err := c.getJSON(ctx, c.baseURL+userPath, &user); err != nil {
		return fmt.Errorf("otx health check: %w", err)
	}
	return nil
}

// getJSON performs an authenticated GET and decodes the JSON response.
// Rate-limit and server errors come back wrapped as retryable.
func (c *Client) getJSON(ctx context.Context, rawURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("X-OTX-API-KEY", c.apiKey)
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return retry.Retryable(fmt.Errorf("http get: %w", err))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		// fall through to decode

	case resp.StatusCode == http.StatusTooManyRequests:
		err := fmt.Errorf("rate limited by feed (status %d)", resp.StatusCode)
		if delay := retryAfter(resp); delay > 0 {
			return retry.RetryableAfter(err, delay)
		}
		return retry.Retryable(err)

	case resp.StatusCode == http.StatusForbidden, resp.StatusCode == http.StatusUnauthorized:
		return fmt.Errorf("feed rejected API key (status %d)", resp.StatusCode)

	case resp.StatusCode >= 500:
		return retry.Retryable(fmt.Errorf("feed server error (status %d)", resp.StatusCode))

	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	return nil
}

// retryAfter parses a Retry-After header. Zero means no hint; the normal
// backoff policy applies.
func retryAfter(resp *http.Response) time.Duration {
	raw := resp.Header.Get("Retry-After")
	if raw == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(raw); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return 0
}
