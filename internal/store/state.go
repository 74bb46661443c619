package store

import (
	"database/sql"
	"fmt"
	"time"
)

// DimensionState is one cell of a user's trait matrix.
type DimensionState struct {
	UserID        string `json:"user_id"`
	DimensionID   string `json:"dimension_id"`
	Value         int    `json:"value"`
	UpdateCount   int    `json:"update_count"`
	LastUpdatedAt int64  `json:"last_updated_at"` // unix millis
}

// HistoryEntry is one merge audit record. The history per dimension is
// bounded; UpdateCount on the state is not.
type HistoryEntry struct {
	AuditID       string  `json:"audit_id"`
	Timestamp     int64   `json:"timestamp"` // unix millis
	PreviousValue int     `json:"previous_value"`
	DecayedValue  int     `json:"decayed_value"`
	RawScore      int     `json:"raw_score"`
	NewValue      int     `json:"new_value"`
	Delta         int     `json:"delta"`
	Strategy      string  `json:"strategy"`
	Alpha         float64 `json:"alpha"`
	DecayFactor   float64 `json:"decay_factor"`
}

// GetState returns the state for one (user, dimension), or nil when
// the dimension has never been updated for that user.
func (db *DB) GetState(userID, dimensionID string) (*DimensionState, error) {
	var s DimensionState
	err := db.QueryRow(`
		SELECT user_id, dimension_id, value, update_count, last_updated_at
		FROM dimension_states WHERE user_id = ? AND dimension_id = ?
	`, userID, dimensionID).Scan(&s.UserID, &s.DimensionID, &s.Value, &s.UpdateCount, &s.LastUpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get state %s/%s: %w", userID, dimensionID, err)
	}
	return &s, nil
}

// ListStates returns every dimension state for a user, ordered by
// dimension id.
func (db *DB) ListStates(userID string) ([]DimensionState, error) {
	rows, err := db.Query(`
		SELECT user_id, dimension_id, value, update_count, last_updated_at
		FROM dimension_states WHERE user_id = ?
		ORDER BY dimension_id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list states: %w", err)
	}
	defer rows.Close()

	var states []DimensionState
	for rows.Next() {
		var s DimensionState
		if err := rows.Scan(&s.UserID, &s.DimensionID, &s.Value, &s.UpdateCount, &s.LastUpdatedAt); err != nil {
			return nil, fmt.Errorf("scan state: %w", err)
		}
		states = append(states, s)
	}
	return states, rows.Err()
}

// CommitState upserts the state row and appends the audit entry in one
// transaction, evicting history entries beyond the cap (oldest first).
func (db *DB) CommitState(s DimensionState, entry HistoryEntry, historyCap int) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin commit: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO dimension_states (user_id, dimension_id, value, update_count, last_updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id, dimension_id) DO UPDATE SET
			value = excluded.value,
			update_count = excluded.update_count,
			last_updated_at = excluded.last_updated_at
	`, s.UserID, s.DimensionID, s.Value, s.UpdateCount, s.LastUpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert state: %w", err)
	}

	_, err = tx.Exec(`
		INSERT INTO update_history
			(user_id, dimension_id, audit_id, ts, previous_value, decayed_value,
			 raw_score, new_value, delta, strategy, alpha, decay_factor)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, s.UserID, s.DimensionID, entry.AuditID, entry.Timestamp, entry.PreviousValue,
		entry.DecayedValue, entry.RawScore, entry.NewValue, entry.Delta,
		entry.Strategy, entry.Alpha, entry.DecayFactor)
	if err != nil {
		return fmt.Errorf("insert history: %w", err)
	}

	if historyCap > 0 {
		_, err = tx.Exec(`
			DELETE FROM update_history
			WHERE user_id = ? AND dimension_id = ? AND id NOT IN (
				SELECT id FROM update_history
				WHERE user_id = ? AND dimension_id = ?
				ORDER BY id DESC LIMIT ?
			)
		`, s.UserID, s.DimensionID, s.UserID, s.DimensionID, historyCap)
		if err != nil {
			return fmt.Errorf("evict history: %w", err)
		}
	}

	return tx.Commit()
}

// History returns a dimension's audit entries in chronological order.
func (db *DB) History(userID, dimensionID string) ([]HistoryEntry, error) {
	rows, err := db.Query(`
		SELECT audit_id, ts, previous_value, decayed_value, raw_score,
		       new_value, delta, strategy, alpha, decay_factor
		FROM update_history
		WHERE user_id = ? AND dimension_id = ?
		ORDER BY id ASC
	`, userID, dimensionID)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	defer rows.Close()

	var entries []HistoryEntry
	for rows.Next() {
		var e HistoryEntry
		if err := rows.Scan(&e.AuditID, &e.Timestamp, &e.PreviousValue, &e.DecayedValue,
			&e.RawScore, &e.NewValue, &e.Delta, &e.Strategy, &e.Alpha, &e.DecayFactor); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// nowMillis is the single clock read for store timestamps.
func nowMillis() int64 {
	return time.Now().UnixMilli()
}
