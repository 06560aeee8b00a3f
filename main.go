package main

import (
	"context"
	"crypto/rand"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	_ "time/tzdata"

	"github.com/joho/godotenv"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

type CLIConfig struct {
	Port        int
	Watchlist   string
	PollMS      int
	Concurrency int
	TimelineCap int
	LogLevel    string

	SpikeViewerRatio float64
	SpikeViewerFloor int64
	SpikeChatRatio   float64
	SpikeChatFloor   float64

	ClickHouseEnabled bool
	CHHost            string
	CHPort            int
	CHUser            string
	CHPass            string
	CHDB              string
	CHSecure          bool
	CHAsyncInsert     int
	CHBatchSize       int
	CHFlushMS         int
}

func main() {
	_ = godotenv.Load()

	cfg := CLIConfig{}

	flag.IntVar(&cfg.Port, "port", 8091, "HTTP port")
	flag.StringVar(&cfg.Watchlist, "watchlist", "./channels.yaml", "Path to channels.yaml")
	flag.IntVar(&cfg.PollMS, "poll-ms", envInt("POLL_INTERVAL_MS", 5000), "Snapshot poll interval (ms)")
	flag.IntVar(&cfg.Concurrency, "poll-concurrency", envInt("POLL_CONCURRENCY", 8), "Max concurrent snapshot fetches per tick")
	flag.IntVar(&cfg.TimelineCap, "timeline-cap", envInt("TIMELINE_CAP", 20), "Event timeline capacity")
	flag.StringVar(&cfg.LogLevel, "log-level", "info", "Log level: debug|info|warn|error")

	// Spike thresholds (env-backed defaults; the backend owns the real formula,
	// these only gate what the monitor flags locally)
	flag.Float64Var(&cfg.SpikeViewerRatio, "spike-viewer-ratio", envFloat("SPIKE_VIEWER_RATIO", 1.5), "Viewer spike: current/previous ratio threshold")
	flag.Int64Var(&cfg.SpikeViewerFloor, "spike-viewer-floor", int64(envInt("SPIKE_VIEWER_FLOOR", 100)), "Viewer spike: minimum absolute rise")
	flag.Float64Var(&cfg.SpikeChatRatio, "spike-chat-ratio", envFloat("SPIKE_CHAT_RATIO", 2.0), "Chat spike: current/previous ratio threshold")
	flag.Float64Var(&cfg.SpikeChatFloor, "spike-chat-floor", envFloat("SPIKE_CHAT_FLOOR", 5.0), "Chat spike: minimum absolute rise (msgs/min)")

	// ClickHouse flags (env-backed defaults)
	flag.BoolVar(&cfg.ClickHouseEnabled, "clickhouse", envBool("CLICKHOUSE_ENABLED", true), "Enable ClickHouse persistence+analytics")
	flag.StringVar(&cfg.CHHost, "ch-host", envString("CLICKHOUSE_HOST", "localhost"), "ClickHouse host")
	flag.IntVar(&cfg.CHPort, "ch-port", envInt("CLICKHOUSE_PORT", 9000), "ClickHouse native port")
	flag.StringVar(&cfg.CHUser, "ch-user", envString("CLICKHOUSE_USER", "default"), "ClickHouse user")
	flag.StringVar(&cfg.CHPass, "ch-pass", envString("CLICKHOUSE_PASS", ""), "ClickHouse password")
	flag.StringVar(&cfg.CHDB, "ch-db", envString("CLICKHOUSE_DB", "streammon"), "ClickHouse database")
	flag.BoolVar(&cfg.CHSecure, "ch-secure", envBool("CLICKHOUSE_SECURE", false), "Use TLS to ClickHouse")
	flag.IntVar(&cfg.CHAsyncInsert, "ch-async-insert", envInt("CLICKHOUSE_ASYNC_INSERT", 1), "ClickHouse async_insert setting (0/1)")
	flag.IntVar(&cfg.CHBatchSize, "ch-batch-size", envInt("CLICKHOUSE_BATCH_SIZE", 1000), "ClickHouse insert batch size")
	flag.IntVar(&cfg.CHFlushMS, "ch-flush-ms", envInt("CLICKHOUSE_FLUSH_MS", 500), "ClickHouse flush cadence (ms)")

	flag.Parse()

	log := NewLogger(cfg.LogLevel)

	feedBase := getenvAny("FEED_BASE_URL", "BACKEND_BASE_URL")
	if feedBase == "" {
		log.Errorf("missing FEED_BASE_URL (or BACKEND_BASE_URL) in env/.env")
		os.Exit(1)
	}
	feedKey := os.Getenv("FEED_API_KEY")

	channels, err := LoadWatchlist(cfg.Watchlist)
	if err != nil {
		log.Errorf("failed to load watchlist: %v", err)
		os.Exit(1)
	}
	log.Infof("loaded watchlist channels=%d (%s)", len(channels), filepath.Base(cfg.Watchlist))

	runStart := time.Now().UTC().Truncate(time.Millisecond)
	run := RunContext{
		ID:    newRunID(),
		Start: runStart,
	}

	metrics := NewMetrics(runStart, version, commit, buildDate)

	// ClickHouse init (schema + connections)
	var chClient *ClickHouseClient
	var chw *ClickHouseWriter

	if cfg.ClickHouseEnabled {
		chCfg := ClickHouseConfig{
			Enabled:      true,
			Host:         cfg.CHHost,
			Port:         cfg.CHPort,
			User:         cfg.CHUser,
			Pass:         cfg.CHPass,
			DB:           cfg.CHDB,
			Secure:       cfg.CHSecure,
			AsyncInsert:  cfg.CHAsyncInsert != 0,
			BatchSize:    cfg.CHBatchSize,
			FlushEveryMS: cfg.CHFlushMS,
		}

		ctxInit, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		chClient, err = NewClickHouseClient(ctxInit, chCfg, log)
		cancel()

		if err != nil {
			log.Errorf("clickhouse init failed (continuing without CH): %v", err)
			chClient = nil
		} else {
			chw = NewClickHouseWriter(ClickHouseWriterConfig{
				BatchSize:  chCfg.BatchSize,
				FlushEvery: time.Duration(chCfg.FlushEveryMS) * time.Millisecond,
				BufferSize: 10_000,
			}, chClient.NativeConn(), run, metrics, log)
		}
	} else {
		log.Infof("clickhouse disabled")
	}

	classifier := NewClassifier(SpikeConfig{
		ViewerRatio: cfg.SpikeViewerRatio,
		ViewerFloor: cfg.SpikeViewerFloor,
		ChatRatio:   cfg.SpikeChatRatio,
		ChatFloor:   cfg.SpikeChatFloor,
	})
	timeline := NewTimelineBuffer(cfg.TimelineCap)
	monitor := NewMonitor(channels, classifier, timeline, chw, metrics, log)

	feed := NewFeedClient(FeedConfig{
		BaseURL: feedBase,
		APIKey:  feedKey,
		Log:     log,
	})

	hub := NewHub(metrics, log)

	poller := NewPoller(PollerConfig{
		Interval:    time.Duration(cfg.PollMS) * time.Millisecond,
		Concurrency: cfg.Concurrency,
		Log:         log,
	}, feed, monitor, hub, metrics)

	httpSrv := NewHTTPServer(HTTPConfig{
		Addr:     fmt.Sprintf(":%d", cfg.Port),
		Log:      log,
		Monitor:  monitor,
		Feed:     feed,
		CH:       chClient,
		Hub:      hub,
		RunID:    run.ID,
		RunStart: run.Start,
		M:        metrics,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// start background components
	go metrics.Run(ctx)
	go hub.Run(ctx)
	if chw != nil {
		go chw.Run(ctx)
	}
	go poller.Run(ctx)

	// run HTTP server
	go func() {
		log.Infof("http listening on http://localhost:%d", cfg.Port)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("http server error: %v", err)
			stop()
		}
	}()

	<-ctx.Done()

	// graceful shutdown
	shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	log.Infof("shutting down...")
	_ = httpSrv.Shutdown(shCtx)
	if chClient != nil {
		chClient.Close()
	}
	log.Infof("bye")
}

func getenvAny(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}

func envString(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func envInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return def
}

func envFloat(k string, def float64) float64 {
	if v := os.Getenv(k); v != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return f
		}
	}
	return def
}

func envBool(k string, def bool) bool {
	v := strings.TrimSpace(strings.ToLower(os.Getenv(k)))
	if v == "" {
		return def
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true
	case "0", "false", "f", "no", "n", "off":
		return false
	default:
		return def
	}
}

func newRunID() string {
	// UUID v4 without external deps.
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("run-%d", time.Now().UnixNano())
	}
	b[6] = (b[6] & 0x0f) | 0x40
	b[8] = (b[8] & 0x3f) | 0x80
	return fmt.Sprintf("%x-%x-%x-%x-%x", b[0:4], b[4:6], b[6:8], b[8:10], b[10:16])
}
