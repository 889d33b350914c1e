// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tablewise Contributors

// Package postgres implements the store against the hosted PostgreSQL
// database that owns tenants, menus and runtime configuration. The global
// runtime config row is the one whose tenant_id IS NULL.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/tablewise/aiwaiter/internal/store"
)

// Compile-time interface check.
var _ store.Store = (*Store)(nil)

func init() {
	store.RegisterBackend("postgres", func(cfg *store.StorageConfig) (store.Store, error) {
		return New(cfg.DSN, nil)
	})
}

// PoolConfig holds connection pool settings.
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	ConnectTimeout  time.Duration
}

// DefaultPoolConfig returns default pool settings.
func DefaultPoolConfig() *PoolConfig {
	return &PoolConfig{
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		ConnMaxIdleTime: 2 * time.Minute,
		ConnectTimeout:  10 * time.Second,
	}
}

// Store implements store.Store using PostgreSQL.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// New connects to dsn and verifies the connection.
func New(dsn string, cfg *PoolConfig) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres dsn is required")
	}
	if cfg == nil {
		cfg = DefaultPoolConfig()
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening postgres db: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging postgres db: %w", err)
	}

	return NewWithDB(db), nil
}

// NewWithDB wraps an existing handle. The caller keeps ownership of schema
// management; see Migrate.
func NewWithDB(db *sql.DB) *Store {
	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// Migrate creates the tables the service reads and writes when they do not
// exist yet. Production databases are migrated by the platform; this is for
// local development and seeding.
func (s *Store) Migrate(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS locations (
	id        TEXT PRIMARY KEY,
	tenant_id TEXT,
	name      TEXT NOT NULL DEFAULT '',
	region    TEXT NOT NULL DEFAULT '',
	currency  TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS tables (
	id          TEXT PRIMARY KEY,
	location_id TEXT NOT NULL REFERENCES locations(id) ON DELETE CASCADE,
	label       TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS table_sessions (
	id        TEXT PRIMARY KEY,
	table_id  TEXT NOT NULL REFERENCES tables(id) ON DELETE CASCADE,
	opened_at TIMESTAMPTZ
);
CREATE TABLE IF NOT EXISTS menus (
	id           TEXT PRIMARY KEY,
	location_id  TEXT NOT NULL REFERENCES locations(id) ON DELETE CASCADE,
	name         TEXT NOT NULL DEFAULT '',
	active       BOOLEAN NOT NULL DEFAULT FALSE,
	published_at TIMESTAMPTZ
);
CREATE TABLE IF NOT EXISTS menu_items (
	id           TEXT PRIMARY KEY,
	menu_id      TEXT NOT NULL REFERENCES menus(id) ON DELETE CASCADE,
	position     INTEGER NOT NULL DEFAULT 0,
	name         TEXT NOT NULL,
	description  TEXT,
	price_cents  BIGINT,
	currency     TEXT,
	allergens    TEXT[],
	tags         TEXT[],
	is_alcohol   BOOLEAN,
	is_available BOOLEAN
);
CREATE TABLE IF NOT EXISTS agent_runtime_configs (
	agent_type            TEXT NOT NULL,
	tenant_id             TEXT,
	enabled               BOOLEAN NOT NULL DEFAULT TRUE,
	session_budget_usd    DOUBLE PRECISION NOT NULL DEFAULT 0,
	daily_budget_usd      DOUBLE PRECISION NOT NULL DEFAULT 0,
	instructions          TEXT NOT NULL DEFAULT '',
	tool_allowlist        TEXT[] NOT NULL DEFAULT '{}',
	autonomy_level        INTEGER NOT NULL DEFAULT 0,
	retrieval_ttl_minutes INTEGER NOT NULL DEFAULT 0,
	experiment_flag       TEXT NOT NULL DEFAULT '',
	sync_pending          BOOLEAN NOT NULL DEFAULT FALSE,
	updated_at            TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_runtime_configs_scope
	ON agent_runtime_configs(agent_type, COALESCE(tenant_id, ''));
CREATE TABLE IF NOT EXISTS agent_sessions (
	id               TEXT PRIMARY KEY,
	tenant_id        TEXT,
	location_id      TEXT,
	table_session_id TEXT,
	user_id          TEXT,
	created_at       TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS agent_events (
	id               TEXT PRIMARY KEY,
	kind             TEXT NOT NULL,
	agent_type       TEXT NOT NULL,
	session_id       TEXT,
	tenant_id        TEXT,
	location_id      TEXT,
	table_session_id TEXT,
	input            TEXT NOT NULL DEFAULT '',
	output           TEXT NOT NULL DEFAULT '',
	tools_used       TEXT[] NOT NULL DEFAULT '{}',
	latency_ms       BIGINT NOT NULL DEFAULT 0,
	cost_usd         DOUBLE PRECISION NOT NULL DEFAULT 0,
	created_at       TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_agent_events_spend ON agent_events(agent_type, tenant_id, created_at);
CREATE TABLE IF NOT EXISTS recommendation_impressions (
	id          TEXT PRIMARY KEY,
	session_id  TEXT,
	tenant_id   TEXT,
	location_id TEXT,
	item_id     TEXT NOT NULL,
	rationale   TEXT NOT NULL DEFAULT '',
	accepted    BOOLEAN NOT NULL DEFAULT FALSE,
	created_at  TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS orders (
	id          TEXT PRIMARY KEY,
	location_id TEXT NOT NULL,
	status      TEXT NOT NULL DEFAULT 'open',
	created_at  TIMESTAMPTZ NOT NULL
);
`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("migrating postgres db: %w", err)
	}
	return nil
}

// Close releases database resources.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// nullableString maps "" to SQL NULL.
func nullableString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

func stringArray(v []string) any {
	if v == nil {
		v = []string{}
	}
	return pq.Array(v)
}
