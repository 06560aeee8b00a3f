package main

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
)

type FeedConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
	Log     *Logger
}

// FeedClient speaks the backend's JSON API: one snapshot per channel from
// the realtime feed, plus flat ranking records from the query service.
type FeedClient struct {
	cfg    FeedConfig
	client *http.Client
}

func NewFeedClient(cfg FeedConfig) *FeedClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 4 * time.Second
	}
	cfg.BaseURL = NormalizeFeedURL(cfg.BaseURL)
	return &FeedClient{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

// NormalizeFeedURL accepts either the bare backend host or a URL that
// already ends in /api/v1 and returns the base without a trailing slash
// (avoids ".../api/v1/api/v1" when someone pastes a full endpoint).
func NormalizeFeedURL(in string) string {
	in = strings.TrimSpace(in)
	if in == "" {
		return ""
	}
	in = strings.TrimRight(in, "/")
	l := strings.ToLower(in)
	if strings.HasSuffix(l, "/api/v1") {
		in = in[:len(in)-len("/api/v1")]
	}
	return in
}

// FetchSnapshot pulls the current snapshot for one channel. A snapshot
// with no capture time is stamped with the fetch time so downstream
// bucketing never sees a zero timestamp.
func (c *FeedClient) FetchSnapshot(ctx context.Context, channel string) (ChannelSnapshot, error) {
	var snap ChannelSnapshot

	u := fmt.Sprintf("%s/api/v1/channels/%s/snapshot", c.cfg.BaseURL, url.PathEscape(channel))
	if err := c.getJSON(ctx, u, &snap); err != nil {
		return ChannelSnapshot{}, fmt.Errorf("fetch snapshot %s: %w", channel, err)
	}

	snap.Channel = strings.ToLower(strings.TrimSpace(snap.Channel))
	if snap.Channel == "" {
		snap.Channel = channel
	}
	if snap.TsCaptureMs <= 0 {
		snap.TsCaptureMs = time.Now().UnixMilli()
	}
	return snap, nil
}

// FetchRanking pulls one ranking view ("channels", "games") as flat
// records. The backend owns the columns; the sort engine orders whatever
// comes back.
func (c *FeedClient) FetchRanking(ctx context.Context, view string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}

	var resp struct {
		Rows []Record `json:"rows"`
	}
	u := fmt.Sprintf("%s/api/v1/rank/%s?limit=%s", c.cfg.BaseURL, url.PathEscape(view), strconv.Itoa(limit))
	if err := c.getJSON(ctx, u, &resp); err != nil {
		return nil, fmt.Errorf("fetch ranking %s: %w", view, err)
	}
	return resp.Rows, nil
}

func (c *FeedClient) getJSON(ctx context.Context, u string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// read a little of the body for the log, then drop it
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("backend status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}

	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("decode body: %w", err)
	}
	return nil
}
