package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

type HTTPConfig struct {
	Addr     string
	Log      *Logger
	Monitor  *Monitor
	Feed     *FeedClient
	CH       *ClickHouseClient
	Hub      *Hub
	RunID    string
	RunStart time.Time
	M        *Metrics
}

type HTTPServer struct {
	cfg HTTPConfig
	srv *http.Server
}

func NewHTTPServer(cfg HTTPConfig) *http.Server {
	mux := http.NewServeMux()
	hs := &HTTPServer{cfg: cfg}

	mux.HandleFunc("/", hs.handleDashboard)
	mux.HandleFunc("/health", hs.handleHealth)
	mux.HandleFunc("/run", hs.handleRun)
	mux.HandleFunc("/channels", hs.handleChannels)
	mux.HandleFunc("/timeline", hs.handleTimeline)

	// Ranking tables: records come from the backend query service, the
	// ordering happens here per request.
	mux.HandleFunc("/rank/channels", hs.handleRankView("channels"))
	mux.HandleFunc("/rank/games", hs.handleRankView("games"))

	// Event-count ranking over persisted events (in-mem fallback).
	mux.HandleFunc("/rank/events", hs.handleRankEvents)

	if cfg.Hub != nil {
		mux.HandleFunc("/ws", cfg.Hub.ServeWS)
	}

	hs.srv = &http.Server{
		Addr:         cfg.Addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 15 * time.Second,
	}
	return hs.srv
}

func (hs *HTTPServer) handleRun(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"run_id":        hs.cfg.RunID,
		"run_start":     hs.cfg.RunStart.Format(time.RFC3339Nano),
		"run_start_ms":  hs.cfg.RunStart.UnixMilli(),
		"clickhouse_on": hs.cfg.CH != nil,
	})
}

func (hs *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	snap := hs.cfg.M.Snapshot()

	snap["run"] = map[string]any{
		"run_id":       hs.cfg.RunID,
		"run_start":    hs.cfg.RunStart.Format(time.RFC3339Nano),
		"run_start_ms": hs.cfg.RunStart.UnixMilli(),
	}

	if hs.cfg.CH != nil {
		snap["clickhouse_conn"] = map[string]any{
			"enabled": true,
			"addr":    hs.cfg.CH.Addr(),
			"db":      hs.cfg.CH.Database(),
			"secure":  hs.cfg.CH.Secure(),
		}
	} else {
		snap["clickhouse_conn"] = map[string]any{"enabled": false}
	}

	writeJSON(w, snap)
}

func (hs *HTTPServer) handleChannels(w http.ResponseWriter, r *http.Request) {
	views := hs.cfg.Monitor.SnapshotChannels()
	writeJSON(w, map[string]any{
		"count":    len(views),
		"channels": views,
	})
}

func (hs *HTTPServer) handleTimeline(w http.ResponseWriter, r *http.Request) {
	tl := hs.cfg.Monitor.Timeline()

	limit := tl.Capacity()
	if q := r.URL.Query().Get("limit"); q != "" {
		if v, err := strconv.Atoi(q); err == nil && v > 0 {
			limit = v
		}
	}

	entries := tl.Recent(limit)
	writeJSON(w, map[string]any{
		"count":    len(entries),
		"capacity": tl.Capacity(),
		"entries":  entries,
	})
}

// handleRankView fetches one ranking view from the backend and orders it
// by the requested sort state. A failed fetch returns 502 and nothing
// else; the caller's previously rendered order is never half-replaced.
func (hs *HTTPServer) handleRankView(view string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 50
		if q := r.URL.Query().Get("limit"); q != "" {
			if v, err := strconv.Atoi(q); err == nil && v > 0 && v <= 500 {
				limit = v
			}
		}

		state := SortState{}
		if q := r.URL.Query().Get("key"); q != "" {
			state = SortState{
				Key: ParseSortKey(q),
				Dir: SortAscending,
			}
			if d := r.URL.Query().Get("dir"); d != "" {
				state.Dir = ParseSortDirection(d)
			}
		}

		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		records, err := hs.cfg.Feed.FetchRanking(ctx, view, limit)
		if err != nil {
			hs.cfg.Log.Warnf("/rank/%s backend fetch failed: %v", view, err)
			http.Error(w, fmt.Sprintf("backend fetch failed: %v", err), http.StatusBadGateway)
			return
		}

		ordered := ComputeOrder(records, state)

		writeJSON(w, map[string]any{
			"view":  view,
			"limit": limit,
			"sort": map[string]any{
				"key": state.Key.String(),
				"dir": state.Dir.String(),
			},
			"rows": ordered,
		})
	}
}

func (hs *HTTPServer) handleRankEvents(w http.ResponseWriter, r *http.Request) {
	window := 30 * time.Minute
	if q := r.URL.Query().Get("window"); q != "" {
		d, err := ParseWindow(q)
		if err != nil {
			http.Error(w, "bad window", http.StatusBadRequest)
			return
		}
		window = d
	}

	limit := 50
	if q := r.URL.Query().Get("limit"); q != "" {
		if v, err := strconv.Atoi(q); err == nil && v > 0 && v <= 500 {
			limit = v
		}
	}

	runID := r.URL.Query().Get("run_id")
	if runID == "" {
		runID = hs.cfg.RunID
	}

	// Preferred: ClickHouse rollup
	if hs.cfg.CH != nil {
		end := FloorMinute(time.Now())
		start := end.Add(-window)

		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		rows, err := hs.cfg.CH.RankEvents(ctx, runID, start, end, limit)
		if err == nil {
			writeJSON(w, map[string]any{
				"source": "clickhouse",
				"window": window.String(),
				"limit":  limit,
				"run_id": runID,
				"rows":   rows,
			})
			return
		}
		hs.cfg.Log.Warnf("clickhouse /rank/events failed, falling back to in-mem: %v", err)
	}

	// Fallback: tally whatever the timeline buffer still holds.
	rows := hs.cfg.Monitor.EventCountsInMem(limit)
	writeJSON(w, map[string]any{
		"source": "inmem",
		"window": window.String(),
		"limit":  limit,
		"run_id": runID,
		"rows":   rows,
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	enc := json.NewEncoder(w)
	_ = enc.Encode(v)
}

// -------------------- dashboard --------------------

func (hs *HTTPServer) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	fmt.Fprint(w, dashboardHTML)
}

const dashboardHTML = `<!doctype html>
<html>
<head>
  <meta charset="utf-8"/>
  <meta name="viewport" content="width=device-width, initial-scale=1"/>
  <title>stream-monitor</title>
  <style>
    body { font-family: ui-sans-serif, system-ui, -apple-system, Segoe UI, Roboto, Arial; background:#0c0c0f; color:#eaeaea; margin:0; }
    header { display:flex; justify-content:space-between; align-items:center; padding:12px 16px; border-bottom:1px solid #1c1f25; background:#0d0d12; gap:12px; flex-wrap:wrap; }
    .pill { padding:6px 10px; border-radius:999px; background:#2a2f3a; font-size:12px; }
    main { max-width: 1100px; margin: 16px auto; padding: 0 16px; display:grid; grid-template-columns: 2fr 1fr; gap:16px; }
    table { width:100%; border-collapse: collapse; font-variant-numeric: tabular-nums; }
    th, td { padding:8px 10px; border-bottom:1px solid #1c1f25; text-align:right; }
    th:first-child, td:first-child { text-align:left; }
    .muted { color:#8a8f98; }
    .badge { display:inline-block; padding:2px 6px; border-radius:6px; font-size:11px; margin-left:4px; }
    .badge.viewer_spike { background:#14532d; color:#86efac; }
    .badge.chat_spike { background:#1e3a8a; color:#93c5fd; }
    .badge.category_change { background:#713f12; color:#fde68a; }
    ul { list-style:none; padding:0; margin:0; }
    li { padding:6px 0; border-bottom:1px solid #1c1f25; font-size:13px; }
  </style>
</head>
<body>
<header>
  <div><b>stream-monitor</b> <span class="muted">live channels</span></div>
  <div class="pill" id="status">connecting…</div>
</header>
<main>
  <div>
    <h3>Channels</h3>
    <table>
      <thead>
        <tr><th>Channel</th><th>Viewers</th><th>Chat/min</th><th>Category</th></tr>
      </thead>
      <tbody id="rows"></tbody>
    </table>
  </div>
  <div>
    <h3>Event feed</h3>
    <ul id="feed"></ul>
  </div>
</main>
<script>
function badge(flags) {
  let out = '';
  for (const k of ['viewer_spike','chat_spike','category_change']) {
    if (flags && flags[k]) out += '<span class="badge ' + k + '">' + k.replace('_',' ') + '</span>';
  }
  return out;
}

function render(frame) {
  const tbody = document.getElementById('rows');
  tbody.innerHTML = '';
  for (const c of (frame.channels || [])) {
    const s = c.last || {};
    const tr = document.createElement('tr');
    tr.innerHTML = '<td><b>' + c.channel + '</b>' + badge(c.last_flags) + '</td>' +
      '<td>' + (s.viewers ?? '-') + '</td>' +
      '<td>' + (s.chat_rate_1m ?? 0).toFixed(1) + '</td>' +
      '<td>' + (s.category || '-') + '</td>';
    tbody.appendChild(tr);
  }

  const feed = document.getElementById('feed');
  feed.innerHTML = '';
  for (const e of (frame.timeline || [])) {
    const li = document.createElement('li');
    const at = new Date(e.ts_event_ms).toLocaleTimeString();
    li.innerHTML = '<b>' + e.channel + '</b> <span class="badge ' + e.kind + '">' + e.kind.replace('_',' ') + '</span> <span class="muted">' + at + '</span>';
    feed.appendChild(li);
  }
}

function connect() {
  const proto = location.protocol === 'https:' ? 'wss://' : 'ws://';
  const ws = new WebSocket(proto + location.host + '/ws');
  ws.onopen = () => { document.getElementById('status').textContent = 'live'; };
  ws.onmessage = (ev) => { render(JSON.parse(ev.data)); };
  ws.onclose = () => {
    document.getElementById('status').textContent = 'reconnecting…';
    setTimeout(connect, 2000);
  };
}
connect();
</script>
</body>
</html>`
