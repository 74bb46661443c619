package store

import (
	"database/sql"
	"fmt"
)

// TagRecord is one per-user tag occurrence counter.
type TagRecord struct {
	UserID    string `json:"user_id"`
	Tag       string `json:"tag"`
	Count     int    `json:"count"`
	FirstSeen int64  `json:"first_seen"` // unix millis
	LastSeen  int64  `json:"last_seen"`  // unix millis
}

// RecordTags bumps the occurrence counter for each extracted tag.
// Append-only from the caller's perspective: counts only grow.
func (db *DB) RecordTags(userID string, tags []string) error {
	if len(tags) == 0 {
		return nil
	}
	now := nowMillis()

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin record tags: %w", err)
	}
	defer tx.Rollback()

	for _, tag := range tags {
		_, err := tx.Exec(`
			INSERT INTO tag_records (user_id, tag, count, first_seen, last_seen)
			VALUES (?, ?, 1, ?, ?)
			ON CONFLICT(user_id, tag) DO UPDATE SET
				count = count + 1,
				last_seen = excluded.last_seen
		`, userID, tag, now, now)
		if err != nil {
			return fmt.Errorf("record tag %q: %w", tag, err)
		}
	}

	return tx.Commit()
}

// UserTags returns a user's tag records ordered by count descending,
// then tag ascending.
func (db *DB) UserTags(userID string) ([]TagRecord, error) {
	rows, err := db.Query(`
		SELECT user_id, tag, count, first_seen, last_seen
		FROM tag_records WHERE user_id = ?
		ORDER BY count DESC, tag ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("user tags: %w", err)
	}
	defer rows.Close()
	return scanTagRecords(rows)
}

// AllTags returns every tag record across users, for the evolution
// miner's full-history pass.
func (db *DB) AllTags() ([]TagRecord, error) {
	rows, err := db.Query(`
		SELECT user_id, tag, count, first_seen, last_seen
		FROM tag_records
		ORDER BY user_id, tag
	`)
	if err != nil {
		return nil, fmt.Errorf("all tags: %w", err)
	}
	defer rows.Close()
	return scanTagRecords(rows)
}

func scanTagRecords(rows *sql.Rows) ([]TagRecord, error) {
	var records []TagRecord
	for rows.Next() {
		var r TagRecord
		if err := rows.Scan(&r.UserID, &r.Tag, &r.Count, &r.FirstSeen, &r.LastSeen); err != nil {
			return nil, fmt.Errorf("scan tag record: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}
