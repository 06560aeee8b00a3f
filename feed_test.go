package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeFeedURL(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", ""},
		{"https://backend.example", "https://backend.example"},
		{"https://backend.example/", "https://backend.example"},
		{"https://backend.example/api/v1", "https://backend.example"},
		{"https://backend.example/API/V1/", "https://backend.example"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeFeedURL(tt.in), "input %q", tt.in)
	}
}

func TestFetchSnapshot(t *testing.T) {
	var gotPath, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewEncoder(w).Encode(ChannelSnapshot{
			Channel:     "Alpha",
			Viewers:     12_000,
			ChatRate1m:  42.5,
			ChatRate15m: 38.1,
			Category:    "Music",
			TsCaptureMs: 1_700_000_000_000,
		})
	}))
	defer srv.Close()

	fc := NewFeedClient(FeedConfig{BaseURL: srv.URL, APIKey: "sekrit", Log: NewLogger("error")})

	snap, err := fc.FetchSnapshot(context.Background(), "alpha")
	require.NoError(t, err)
	assert.Equal(t, "/api/v1/channels/alpha/snapshot", gotPath)
	assert.Equal(t, "Bearer sekrit", gotAuth)
	assert.Equal(t, "alpha", snap.Channel) // lowercased
	assert.Equal(t, int64(12_000), snap.Viewers)
	assert.Equal(t, int64(1_700_000_000_000), snap.TsCaptureMs)
}

func TestFetchSnapshotStampsMissingCaptureTime(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(ChannelSnapshot{Viewers: 10})
	}))
	defer srv.Close()

	fc := NewFeedClient(FeedConfig{BaseURL: srv.URL, Log: NewLogger("error")})

	snap, err := fc.FetchSnapshot(context.Background(), "alpha")
	require.NoError(t, err)
	assert.Equal(t, "alpha", snap.Channel) // filled from the request
	assert.Positive(t, snap.TsCaptureMs)
}

func TestFetchSnapshotErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "channel offline", http.StatusNotFound)
	}))
	defer srv.Close()

	fc := NewFeedClient(FeedConfig{BaseURL: srv.URL, Log: NewLogger("error")})

	_, err := fc.FetchSnapshot(context.Background(), "alpha")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 404")
}

func TestFetchRanking(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/rank/channels", r.URL.Path)
		assert.Equal(t, "25", r.URL.Query().Get("limit"))
		_, _ = w.Write([]byte(`{"rows":[{"channel":"alpha","viewers":100},{"channel":"beta","viewers":null}]}`))
	}))
	defer srv.Close()

	fc := NewFeedClient(FeedConfig{BaseURL: srv.URL, Log: NewLogger("error")})

	records, err := fc.FetchRanking(context.Background(), "channels", 25)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "alpha", records[0]["channel"])
	assert.Equal(t, json.Number("100"), records[0]["viewers"])
	assert.Nil(t, records[1]["viewers"])
}

func TestFetchRankingCancelledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	fc := NewFeedClient(FeedConfig{BaseURL: srv.URL, Log: NewLogger("error")})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := fc.FetchRanking(ctx, "channels", 10)
	assert.Error(t, err)
}
