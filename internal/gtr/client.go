package gtr

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/sony/gobreaker/v2"

	"gtrbot/internal/metrics"
	logx "gtrbot/pkg/logx"
)

const (
	// UnknownName is the placeholder used when a user lookup fails.
	UnknownName = "Unknown"
	// UnknownLevel is the placeholder used when a level lookup fails.
	UnknownLevel = "Unknown"

	maxBodyBytes = 1 << 20
)

// Client talks to the GTR REST API. Lookups share one circuit breaker so a
// dead backend stops burning request timeouts on every event.
type Client struct {
	baseURL string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[[]byte]
	log     logx.Logger
}

func NewClient(baseURL string, timeout time.Duration, log logx.Logger) *Client {
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	cb := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        "gtr-api",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
	})
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		breaker: cb,
		log:     log,
	}
}

// GetRecord fetches the full record for an identifier-only event.
func (c *Client) GetRecord(ctx context.Context, id int) (*Record, error) {
	var rec Record
	if err := c.getJSON(ctx, "record", fmt.Sprintf("/records/%d", id), &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// GetUserName resolves a user id to a display name. Lookup failures degrade
// to UnknownName rather than erroring; the announcement goes out regardless.
func (c *Client) GetUserName(ctx context.Context, id int) string {
	var u User
	if err := c.getJSON(ctx, "user", fmt.Sprintf("/users/%d", id), &u); err != nil {
		metrics.LookupFallbacks.WithLabelValues("user").Inc()
		c.log.Warn("user lookup failed", logx.Int("user", id), logx.Err(err))
		return UnknownName
	}
	if u.SteamName == "" {
		metrics.LookupFallbacks.WithLabelValues("user").Inc()
		return UnknownName
	}
	return u.SteamName
}

// GetLevelInfo resolves a level id to a "{Name} by {Author}" label and a
// thumbnail URL. Failures degrade to UnknownLevel with an empty thumbnail.
func (c *Client) GetLevelInfo(ctx context.Context, id int) (label, thumbnailURL string) {
	var lv Level
	if err := c.getJSON(ctx, "level", fmt.Sprintf("/levels/%d", id), &lv); err != nil {
		metrics.LookupFallbacks.WithLabelValues("level").Inc()
		c.log.Warn("level lookup failed", logx.Int("level", id), logx.Err(err))
		return UnknownLevel, ""
	}
	return fmt.Sprintf("%s by %s", lv.Name, lv.Author), lv.ThumbnailURL
}

func (c *Client) getJSON(ctx context.Context, kind, path string, out any) error {
	start := time.Now()
	body, err := c.breaker.Execute(func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			// drain so the connection can be reused
			_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
			return nil, fmt.Errorf("gtr: GET %s: status %d", path, resp.StatusCode)
		}
		return io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	})
	metrics.LookupDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("gtr: GET %s: decode: %w", path, err)
	}
	return nil
}
