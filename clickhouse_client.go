package main

import (
	"context"
	"crypto/tls"
	"database/sql"
	"fmt"
	"regexp"
	"strconv"
	"time"

	clickhouse "github.com/ClickHouse/clickhouse-go/v2"
)

type ClickHouseConfig struct {
	Enabled      bool
	Host         string
	Port         int
	User         string
	Pass         string
	DB           string
	Secure       bool
	AsyncInsert  bool
	BatchSize    int
	FlushEveryMS int
}

type ClickHouseClient struct {
	cfg  ClickHouseConfig
	conn clickhouse.Conn // native driver conn (batch insert)
	db   *sql.DB         // database/sql for rank queries
	log  *Logger
}

func (c *ClickHouseClient) Addr() string { return fmt.Sprintf("%s:%d", c.cfg.Host, c.cfg.Port) }
func (c *ClickHouseClient) Database() string {
	if c == nil {
		return ""
	}
	return c.cfg.DB
}
func (c *ClickHouseClient) Secure() bool {
	if c == nil {
		return false
	}
	return c.cfg.Secure
}
func (c *ClickHouseClient) NativeConn() clickhouse.Conn { return c.conn }

func (c *ClickHouseClient) Close() {
	if c == nil {
		return
	}
	if c.db != nil {
		_ = c.db.Close()
	}
	if c.conn != nil {
		_ = c.conn.Close()
	}
}

var safeIdentRe = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

func validateIdent(s string) error {
	if s == "" {
		return fmt.Errorf("empty identifier")
	}
	if !safeIdentRe.MatchString(s) {
		return fmt.Errorf("unsafe identifier %q (allowed: [a-zA-Z0-9_])", s)
	}
	return nil
}

func (cfg ClickHouseConfig) options(database string) *clickhouse.Options {
	opt := &clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)},
		Auth: clickhouse.Auth{
			Database: database,
			Username: cfg.User,
			Password: cfg.Pass,
		},
		DialTimeout: 5 * time.Second,
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
		Settings:        clickhouse.Settings{},
		MaxOpenConns:    8,
		MaxIdleConns:    8,
		ConnMaxLifetime: 30 * time.Minute,
	}
	if cfg.Secure {
		opt.TLS = &tls.Config{}
	}
	if cfg.AsyncInsert {
		opt.Settings["async_insert"] = 1
		opt.Settings["wait_for_async_insert"] = 0
	} else {
		opt.Settings["async_insert"] = 0
	}
	return opt
}

func NewClickHouseClient(ctx context.Context, cfg ClickHouseConfig, log *Logger) (*ClickHouseClient, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if err := validateIdent(cfg.DB); err != nil {
		return nil, err
	}
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port <= 0 {
		cfg.Port = 9000
	}
	if cfg.User == "" {
		cfg.User = "default"
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 1000
	}
	if cfg.FlushEveryMS <= 0 {
		cfg.FlushEveryMS = 500
	}

	// 1) Connect to "default" DB to ensure the target database exists.
	connDefault, err := clickhouse.Open(cfg.options("default"))
	if err != nil {
		return nil, fmt.Errorf("clickhouse open(default) failed: %w", err)
	}
	{
		ctxPing, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := connDefault.Exec(ctxPing, "SELECT 1"); err != nil {
			_ = connDefault.Close()
			return nil, fmt.Errorf("clickhouse ping(default) failed: %w", err)
		}
		ddlDB := fmt.Sprintf("CREATE DATABASE IF NOT EXISTS `%s`", cfg.DB)
		if err := connDefault.Exec(ctxPing, ddlDB); err != nil {
			_ = connDefault.Close()
			return nil, fmt.Errorf("create database failed: %w", err)
		}
	}
	_ = connDefault.Close()

	// 2) Connect to target DB and ensure tables/MV exist.
	conn, err := clickhouse.Open(cfg.options(cfg.DB))
	if err != nil {
		return nil, fmt.Errorf("clickhouse open(%s) failed: %w", cfg.DB, err)
	}
	{
		ctxDDL, cancel := context.WithTimeout(ctx, 15*time.Second)
		defer cancel()
		if err := ensureClickHouseSchema(ctxDDL, conn); err != nil {
			_ = conn.Close()
			return nil, err
		}
	}

	// 3) Open database/sql handle for the rank queries.
	db := clickhouse.OpenDB(cfg.options(cfg.DB))
	db.SetMaxOpenConns(6)
	db.SetMaxIdleConns(6)
	db.SetConnMaxLifetime(30 * time.Minute)

	{
		ctxPing, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := db.PingContext(ctxPing); err != nil {
			_ = db.Close()
			_ = conn.Close()
			return nil, fmt.Errorf("clickhouse db.Ping failed: %w", err)
		}
	}

	log.Infof("clickhouse ready addr=%s db=%s async_insert=%v", fmt.Sprintf("%s:%d", cfg.Host, cfg.Port), cfg.DB, cfg.AsyncInsert)

	return &ClickHouseClient{
		cfg:  cfg,
		conn: conn,
		db:   db,
		log:  log,
	}, nil
}

func ensureClickHouseSchema(ctx context.Context, conn clickhouse.Conn) error {
	ddlSnapshots := `
CREATE TABLE IF NOT EXISTS stream_snapshots
(
  run_id String,
  run_start DateTime64(3, 'UTC'),
  ts_capture DateTime64(3, 'UTC'),
  channel LowCardinality(String),
  viewers Int64,
  chat_rate_1m Float64,
  chat_rate_15m Float64,
  category LowCardinality(String)
)
ENGINE = MergeTree
PARTITION BY toDate(ts_capture)
ORDER BY (channel, ts_capture, run_id)
`

	ddlEvents := `
CREATE TABLE IF NOT EXISTS stream_events
(
  run_id String,
  run_start DateTime64(3, 'UTC'),
  ts_event DateTime64(3, 'UTC'),
  channel LowCardinality(String),
  kind LowCardinality(String),
  viewers Int64,
  chat_rate_1m Float64,
  category LowCardinality(String)
)
ENGINE = MergeTree
PARTITION BY toDate(ts_event)
ORDER BY (channel, ts_event, run_id)
`

	// Only the count columns are summed, so run_start (DateTime64) isn't.
	ddlEvents1m := `
CREATE TABLE IF NOT EXISTS stream_events_1m
(
  run_id String,
  run_start DateTime64(3, 'UTC'),
  day Date,
  minute DateTime('UTC'),
  channel LowCardinality(String),
  events_total UInt64,
  viewer_spikes UInt64,
  chat_spikes UInt64,
  category_changes UInt64
)
ENGINE = SummingMergeTree(events_total, viewer_spikes, chat_spikes, category_changes)
PARTITION BY day
ORDER BY (run_id, channel, minute)
`

	ddlMV := `
CREATE MATERIALIZED VIEW IF NOT EXISTS mv_stream_events_1m
TO stream_events_1m
AS
SELECT
  run_id,
  any(run_start) AS run_start,
  toDate(ts_event) AS day,
  toDateTime(toStartOfMinute(ts_event), 'UTC') AS minute,
  channel,
  count() AS events_total,
  countIf(kind='viewer_spike') AS viewer_spikes,
  countIf(kind='chat_spike') AS chat_spikes,
  countIf(kind='category_change') AS category_changes
FROM stream_events
GROUP BY
  run_id,
  toDate(ts_event),
  toDateTime(toStartOfMinute(ts_event), 'UTC'),
  channel
`

	for i, q := range []string{ddlSnapshots, ddlEvents, ddlEvents1m, ddlMV} {
		if err := conn.Exec(ctx, q); err != nil {
			return fmt.Errorf("clickhouse ddl step %d failed: %w", i+1, err)
		}
	}
	return nil
}

// RankEvents tallies classified events per channel over [start, end] from
// the minute rollup, busiest channels first.
func (c *ClickHouseClient) RankEvents(ctx context.Context, runID string, start, end time.Time, limit int) ([]EventCountRow, error) {
	if c == nil || c.db == nil {
		return nil, fmt.Errorf("clickhouse not configured")
	}
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}

	q := `
SELECT
  channel,
  sum(viewer_spikes) AS viewer_spikes,
  sum(chat_spikes) AS chat_spikes,
  sum(category_changes) AS category_changes,
  sum(events_total) AS total
FROM stream_events_1m
WHERE run_id = ?
  AND minute >= ?
  AND minute <= ?
GROUP BY channel
ORDER BY total DESC, viewer_spikes DESC, chat_spikes DESC, channel ASC
LIMIT ` + strconv.Itoa(limit)

	rows, err := c.db.QueryContext(ctx, q, runID, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]EventCountRow, 0, limit)
	for rows.Next() {
		var channel string
		var vs, cs, cc, total uint64
		if err := rows.Scan(&channel, &vs, &cs, &cc, &total); err != nil {
			return nil, err
		}
		out = append(out, EventCountRow{
			Channel:         channel,
			ViewerSpikes:    int64(vs),
			ChatSpikes:      int64(cs),
			CategoryChanges: int64(cc),
			Total:           int64(total),
		})
	}
	return out, rows.Err()
}
