package store

import (
	"encoding/json"
	"fmt"
)

// Proposal is one persisted evolution-miner output row.
type Proposal struct {
	Rank             int      `json:"rank"`
	Tags             []string `json:"tags"`
	NoveltyScore     float64  `json:"novelty_score"`
	SupportCount     int      `json:"support_count"`
	NearestDimension string   `json:"nearest_dimension,omitempty"`
	Kind             string   `json:"kind"` // "create" or "extend"
}

// AffinityEdge is one persisted affinity-mapper output row.
type AffinityEdge struct {
	DimensionID string  `json:"dimension_id"`
	NodeID      string  `json:"node_id"`
	Path        string  `json:"path"`
	Score       float64 `json:"score"`
	Rank        int     `json:"rank"`
}

// ReplaceProposals swaps in a batch run's full proposal set. The old
// set is deleted and the new one inserted in one transaction, so a
// failed run never leaves partial output behind.
func (db *DB) ReplaceProposals(proposals []Proposal) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin replace proposals: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM evolution_proposals"); err != nil {
		return fmt.Errorf("clear proposals: %w", err)
	}

	now := nowMillis()
	for _, p := range proposals {
		tagsJSON, err := json.Marshal(p.Tags)
		if err != nil {
			return fmt.Errorf("marshal proposal tags: %w", err)
		}
		_, err = tx.Exec(`
			INSERT INTO evolution_proposals
				(rank, tags, novelty_score, support_count, nearest_dimension, kind, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, p.Rank, string(tagsJSON), p.NoveltyScore, p.SupportCount, p.NearestDimension, p.Kind, now)
		if err != nil {
			return fmt.Errorf("insert proposal: %w", err)
		}
	}

	return tx.Commit()
}

// ListProposals returns the latest run's proposals in rank order.
func (db *DB) ListProposals() ([]Proposal, error) {
	rows, err := db.Query(`
		SELECT rank, tags, novelty_score, support_count, nearest_dimension, kind
		FROM evolution_proposals ORDER BY rank ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list proposals: %w", err)
	}
	defer rows.Close()

	var proposals []Proposal
	for rows.Next() {
		var p Proposal
		var tagsJSON string
		if err := rows.Scan(&p.Rank, &tagsJSON, &p.NoveltyScore, &p.SupportCount, &p.NearestDimension, &p.Kind); err != nil {
			return nil, fmt.Errorf("scan proposal: %w", err)
		}
		if err := json.Unmarshal([]byte(tagsJSON), &p.Tags); err != nil {
			return nil, fmt.Errorf("unmarshal proposal tags: %w", err)
		}
		proposals = append(proposals, p)
	}
	return proposals, rows.Err()
}

// ReplaceAffinityEdges swaps in a batch run's full edge set atomically.
func (db *DB) ReplaceAffinityEdges(edges []AffinityEdge) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin replace edges: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM affinity_edges"); err != nil {
		return fmt.Errorf("clear edges: %w", err)
	}

	now := nowMillis()
	for _, e := range edges {
		_, err := tx.Exec(`
			INSERT INTO affinity_edges (dimension_id, node_id, path, score, rank, created_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`, e.DimensionID, e.NodeID, e.Path, e.Score, e.Rank, now)
		if err != nil {
			return fmt.Errorf("insert edge: %w", err)
		}
	}

	return tx.Commit()
}

// ListAffinityEdges returns the latest run's edges, grouped by
// dimension and ordered by rank.
func (db *DB) ListAffinityEdges() ([]AffinityEdge, error) {
	rows, err := db.Query(`
		SELECT dimension_id, node_id, path, score, rank
		FROM affinity_edges ORDER BY dimension_id, rank ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list edges: %w", err)
	}
	defer rows.Close()

	var edges []AffinityEdge
	for rows.Next() {
		var e AffinityEdge
		if err := rows.Scan(&e.DimensionID, &e.NodeID, &e.Path, &e.Score, &e.Rank); err != nil {
			return nil, fmt.Errorf("scan edge: %w", err)
		}
		edges = append(edges, e)
	}
	return edges, rows.Err()
}
