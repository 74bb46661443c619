package affinity

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/pw-Chen-km/Twin3-algo/internal/config"
	"github.com/pw-Chen-km/Twin3-algo/internal/embedding"
	"github.com/pw-Chen-km/Twin3-algo/internal/registry"
	"github.com/pw-Chen-km/Twin3-algo/internal/store"
)

// Mapper scores every taxonomy node against every dimension and
// calibrates the raw similarities through the tree.
type Mapper struct {
	db       *store.DB
	reg      *registry.Registry
	tax      *Taxonomy
	embedder embedding.Embedder
	cfg      config.AffinityConfig
	log      *slog.Logger
}

// NewMapper creates a Mapper over a validated taxonomy.
func NewMapper(db *store.DB, reg *registry.Registry, tax *Taxonomy, embedder embedding.Embedder, cfg config.AffinityConfig, log *slog.Logger) *Mapper {
	if log == nil {
		log = slog.Default()
	}
	return &Mapper{db: db, reg: reg, tax: tax, embedder: embedder, cfg: cfg, log: log}
}

// Run maps every dimension and replaces the persisted edge set
// wholesale. Any failure leaves the previous run's output intact.
func (m *Mapper) Run(ctx context.Context) ([]store.AffinityEdge, error) {
	edges, err := m.Map(ctx)
	if err != nil {
		return nil, err
	}
	if err := m.db.ReplaceAffinityEdges(edges); err != nil {
		return nil, fmt.Errorf("persist affinity edges: %w", err)
	}
	m.log.Info("affinity run complete", "edges", len(edges))
	return edges, nil
}

// Map computes the top-K taxonomy nodes per dimension.
func (m *Mapper) Map(ctx context.Context) ([]store.AffinityEdge, error) {
	nodeVecs, err := m.nodeVectors(ctx)
	if err != nil {
		return nil, err
	}

	var edges []store.AffinityEdge
	for _, dim := range m.reg.All() {
		scores, err := m.dimensionScores(ctx, dim, nodeVecs)
		if err != nil {
			return nil, fmt.Errorf("map dimension %s: %w", dim.ID, err)
		}
		edges = append(edges, m.rank(dim.ID, scores)...)
	}
	return edges, nil
}

// dimensionScores produces calibrated [0,1] scores for one dimension
// across all taxonomy nodes.
func (m *Mapper) dimensionScores(ctx context.Context, dim registry.Dimension, nodeVecs map[string][]float64) (map[string]float64, error) {
	vecs, err := embedding.EmbedAll(ctx, m.embedder, dim.CanonicalTags)
	if err != nil {
		return nil, fmt.Errorf("embed canonical tags: %w", err)
	}
	anchor := embedding.MeanVector(vecs)

	scores := make(map[string]float64, m.tax.Len())
	for id, vec := range nodeVecs {
		scores[id] = embedding.CosineToUnit(embedding.CosineSimilarity(anchor, vec))
	}

	m.calibrate(scores)
	return scores, nil
}

// calibrate runs the two structural passes in place. Bottom-up pulls
// each inner node toward its strongest child, so a parent is at least
// as credible as its best subtree. Top-down then gates each node by
// its parent's strength, damping subtrees whose ancestors scored low.
func (m *Mapper) calibrate(scores map[string]float64) {
	alpha := m.cfg.BottomUpAlpha
	for _, id := range m.tax.BottomUp() {
		node, _ := m.tax.Get(id)
		if len(node.Children) == 0 {
			continue
		}
		best := 0.0
		for _, child := range node.Children {
			if scores[child] > best {
				best = scores[child]
			}
		}
		scores[id] = (1-alpha)*scores[id] + alpha*best
	}

	beta := m.cfg.TopDownBeta
	for _, id := range m.tax.TopDown() {
		node, _ := m.tax.Get(id)
		if node.Parent == "" {
			continue
		}
		scores[id] *= beta*scores[node.Parent] + (1 - beta)
	}

	for id, s := range scores {
		if s < 0 {
			scores[id] = 0
		} else if s > 1 {
			scores[id] = 1
		}
	}
}

// rank picks the top-K nodes for one dimension, optionally restricted
// to leaves, with stable id tie-breaking.
func (m *Mapper) rank(dimensionID string, scores map[string]float64) []store.AffinityEdge {
	ids := make([]string, 0, len(scores))
	for id := range scores {
		if m.cfg.LeafOnly && !m.tax.IsLeaf(id) {
			continue
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if scores[ids[i]] != scores[ids[j]] {
			return scores[ids[i]] > scores[ids[j]]
		}
		return ids[i] < ids[j]
	})

	limit := m.cfg.TopK
	if limit <= 0 || limit > len(ids) {
		limit = len(ids)
	}

	edges := make([]store.AffinityEdge, 0, limit)
	for i, id := range ids[:limit] {
		node, _ := m.tax.Get(id)
		edges = append(edges, store.AffinityEdge{
			DimensionID: dimensionID,
			NodeID:      id,
			Path:        node.Path,
			Score:       scores[id],
			Rank:        i + 1,
		})
	}
	return edges
}

// nodeVectors embeds every node label once per run.
func (m *Mapper) nodeVectors(ctx context.Context) (map[string][]float64, error) {
	vecs := make(map[string][]float64, m.tax.Len())
	for _, id := range m.tax.TopDown() {
		node, _ := m.tax.Get(id)
		v, err := m.embedder.Embed(ctx, node.Label)
		if err != nil {
			return nil, fmt.Errorf("embed node %s: %w", id, err)
		}
		vecs[id] = v
	}
	return vecs, nil
}
