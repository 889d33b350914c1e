// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tablewise Contributors

package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/tablewise/aiwaiter/internal/store"
)

// Compile-time interface check.
var _ store.Store = (*Store)(nil)

// timeLayout is fixed-width so lexical comparison of stored values matches
// chronological order.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func init() {
	store.RegisterBackend("sqlite", func(cfg *store.StorageConfig) (store.Store, error) {
		path := cfg.Path
		if path == "" {
			path = "aiwaiter.db"
		}
		return New(path)
	})
}

// Store implements store.Store backed by a single SQLite database.
type Store struct {
	db *sql.DB
}

// New opens (or creates) a SQLite database at dbPath and applies the schema.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging sqlite db: %w", err)
	}

	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrating sqlite db: %w", err)
	}

	return &Store{db: db}, nil
}

func migrate(db *sql.DB) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS locations (
	id        TEXT PRIMARY KEY,
	tenant_id TEXT NOT NULL DEFAULT '',
	name      TEXT NOT NULL DEFAULT '',
	region    TEXT NOT NULL DEFAULT '',
	currency  TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS tables (
	id          TEXT PRIMARY KEY,
	location_id TEXT NOT NULL,
	label       TEXT NOT NULL DEFAULT '',
	FOREIGN KEY (location_id) REFERENCES locations(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS table_sessions (
	id        TEXT PRIMARY KEY,
	table_id  TEXT NOT NULL,
	opened_at TEXT NOT NULL DEFAULT '',
	FOREIGN KEY (table_id) REFERENCES tables(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS menus (
	id           TEXT PRIMARY KEY,
	location_id  TEXT NOT NULL,
	name         TEXT NOT NULL DEFAULT '',
	active       INTEGER NOT NULL DEFAULT 0,
	published_at TEXT NOT NULL DEFAULT '',
	FOREIGN KEY (location_id) REFERENCES locations(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_menus_location ON menus(location_id, active, published_at);

CREATE TABLE IF NOT EXISTS menu_items (
	id           TEXT PRIMARY KEY,
	menu_id      TEXT NOT NULL,
	position     INTEGER NOT NULL DEFAULT 0,
	name         TEXT NOT NULL,
	description  TEXT NOT NULL DEFAULT '',
	price_cents  INTEGER,
	currency     TEXT NOT NULL DEFAULT '',
	allergens    TEXT,
	tags         TEXT,
	is_alcohol   INTEGER NOT NULL DEFAULT 0,
	is_available INTEGER NOT NULL DEFAULT 1,
	FOREIGN KEY (menu_id) REFERENCES menus(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_menu_items_menu ON menu_items(menu_id, position);

CREATE TABLE IF NOT EXISTS agent_runtime_configs (
	agent_type            TEXT NOT NULL,
	tenant_id             TEXT NOT NULL DEFAULT '',
	enabled               INTEGER NOT NULL DEFAULT 1,
	session_budget_usd    REAL NOT NULL DEFAULT 0,
	daily_budget_usd      REAL NOT NULL DEFAULT 0,
	instructions          TEXT NOT NULL DEFAULT '',
	tool_allowlist        TEXT NOT NULL DEFAULT '[]',
	autonomy_level        INTEGER NOT NULL DEFAULT 0,
	retrieval_ttl_minutes INTEGER NOT NULL DEFAULT 0,
	experiment_flag       TEXT NOT NULL DEFAULT '',
	sync_pending          INTEGER NOT NULL DEFAULT 0,
	updated_at            TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (agent_type, tenant_id)
);

CREATE TABLE IF NOT EXISTS agent_sessions (
	id               TEXT PRIMARY KEY,
	tenant_id        TEXT NOT NULL DEFAULT '',
	location_id      TEXT NOT NULL DEFAULT '',
	table_session_id TEXT NOT NULL DEFAULT '',
	user_id          TEXT NOT NULL DEFAULT '',
	created_at       TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS agent_events (
	id               TEXT PRIMARY KEY,
	kind             TEXT NOT NULL,
	agent_type       TEXT NOT NULL,
	session_id       TEXT NOT NULL DEFAULT '',
	tenant_id        TEXT NOT NULL DEFAULT '',
	location_id      TEXT NOT NULL DEFAULT '',
	table_session_id TEXT NOT NULL DEFAULT '',
	input            TEXT NOT NULL DEFAULT '',
	output           TEXT NOT NULL DEFAULT '',
	tools_used       TEXT NOT NULL DEFAULT '[]',
	latency_ms       INTEGER NOT NULL DEFAULT 0,
	cost_usd         REAL NOT NULL DEFAULT 0,
	created_at       TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_agent_events_spend ON agent_events(agent_type, tenant_id, created_at);

CREATE TABLE IF NOT EXISTS recommendation_impressions (
	id          TEXT PRIMARY KEY,
	session_id  TEXT NOT NULL DEFAULT '',
	tenant_id   TEXT NOT NULL DEFAULT '',
	location_id TEXT NOT NULL DEFAULT '',
	item_id     TEXT NOT NULL,
	rationale   TEXT NOT NULL DEFAULT '',
	accepted    INTEGER NOT NULL DEFAULT 0,
	created_at  TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_impressions_session ON recommendation_impressions(session_id);

CREATE TABLE IF NOT EXISTS orders (
	id          TEXT PRIMARY KEY,
	location_id TEXT NOT NULL,
	status      TEXT NOT NULL DEFAULT 'open',
	created_at  TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_orders_location ON orders(location_id, status);
`
	_, err := db.Exec(ddl)
	return err
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339Nano, s)
	}
	return t
}

func encodeStrings(v []string) string {
	if v == nil {
		v = []string{}
	}
	b, _ := json.Marshal(v)
	return string(b)
}

func decodeStrings(raw sql.NullString) []string {
	out := []string{}
	if !raw.Valid || raw.String == "" {
		return out
	}
	if err := json.Unmarshal([]byte(raw.String), &out); err != nil || out == nil {
		return []string{}
	}
	return out
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
