package main

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type watchlistFile struct {
	Watchlist []struct {
		Channel string `yaml:"channel"`
	} `yaml:"watchlist"`
}

// LoadWatchlist reads the channel list. Names are lowercased (stream
// handles are case-insensitive) and deduped; order is preserved.
func LoadWatchlist(path string) ([]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var wf watchlistFile
	if err := yaml.Unmarshal(b, &wf); err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(wf.Watchlist))
	out := make([]string, 0, len(wf.Watchlist))
	for _, it := range wf.Watchlist {
		c := strings.ToLower(strings.TrimSpace(it.Channel))
		if c == "" {
			continue
		}
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no channels found in watchlist")
	}
	return out, nil
}
