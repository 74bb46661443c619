package store

import (
	"fmt"
)

type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "dimension_states: per-user trait matrix values",
		SQL: `
CREATE TABLE dimension_states (
    user_id         TEXT NOT NULL,
    dimension_id    TEXT NOT NULL,
    value           INTEGER NOT NULL CHECK (value BETWEEN 0 AND 255),
    update_count    INTEGER NOT NULL DEFAULT 0,
    last_updated_at INTEGER NOT NULL,

    PRIMARY KEY (user_id, dimension_id)
);

CREATE INDEX idx_states_user ON dimension_states(user_id);
`,
	},
	{
		Version:     2,
		Description: "update_history: bounded per-dimension merge audit log",
		SQL: `
CREATE TABLE update_history (
    id             INTEGER PRIMARY KEY,
    user_id        TEXT NOT NULL,
    dimension_id   TEXT NOT NULL,
    audit_id       TEXT NOT NULL,
    ts             INTEGER NOT NULL,
    previous_value INTEGER NOT NULL,
    decayed_value  INTEGER NOT NULL,
    raw_score      INTEGER NOT NULL,
    new_value      INTEGER NOT NULL,
    delta          INTEGER NOT NULL,
    strategy       TEXT NOT NULL,
    alpha          REAL NOT NULL,
    decay_factor   REAL NOT NULL
);

CREATE INDEX idx_history_state ON update_history(user_id, dimension_id, id DESC);
`,
	},
	{
		Version:     3,
		Description: "tag_records: append-only per-user tag occurrence counts",
		SQL: `
CREATE TABLE tag_records (
    user_id    TEXT NOT NULL,
    tag        TEXT NOT NULL,
    count      INTEGER NOT NULL DEFAULT 1,
    first_seen INTEGER NOT NULL,
    last_seen  INTEGER NOT NULL,

    PRIMARY KEY (user_id, tag)
);

CREATE INDEX idx_tags_user ON tag_records(user_id);
`,
	},
	{
		Version:     4,
		Description: "evolution_proposals: miner output, replaced wholesale per run",
		SQL: `
CREATE TABLE evolution_proposals (
    id                INTEGER PRIMARY KEY,
    rank              INTEGER NOT NULL,
    tags              TEXT NOT NULL,
    novelty_score     REAL NOT NULL,
    support_count     INTEGER NOT NULL,
    nearest_dimension TEXT,
    kind              TEXT NOT NULL CHECK (kind IN ('create', 'extend')),
    created_at        INTEGER NOT NULL
);
`,
	},
	{
		Version:     5,
		Description: "affinity_edges: mapper output, replaced wholesale per run",
		SQL: `
CREATE TABLE affinity_edges (
    dimension_id TEXT NOT NULL,
    node_id      TEXT NOT NULL,
    path         TEXT NOT NULL,
    score        REAL NOT NULL,
    rank         INTEGER NOT NULL,
    created_at   INTEGER NOT NULL,

    PRIMARY KEY (dimension_id, node_id)
);

CREATE INDEX idx_affinity_dim ON affinity_edges(dimension_id, rank);
`,
	},
}

func (db *DB) migrate() error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_versions (
			version     INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at  INTEGER NOT NULL DEFAULT (strftime('%s', 'now') * 1000)
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_versions: %w", err)
	}

	for _, m := range migrations {
		var count int
		err := db.QueryRow("SELECT COUNT(*) FROM schema_versions WHERE version = ?", m.Version).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %d: %w", m.Version, err)
		}
		if count > 0 {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
		}

		if _, err := tx.Exec(
			"INSERT INTO schema_versions (version, description) VALUES (?, ?)",
			m.Version, m.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}

// SchemaVersion returns the current schema version.
func (db *DB) SchemaVersion() (int, error) {
	var version int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_versions").Scan(&version)
	return version, err
}
