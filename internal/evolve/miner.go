// Package evolve mines recorded tag occurrences for trait themes the
// current registry does not cover yet, proposing new dimensions or
// extensions to existing ones.
package evolve

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

// Proposal kinds.
const (
	KindCreate = "create" // theme far from every dimension
	KindExtend = "extend" // theme adjacent to an existing dimension
)

// Miner clusters recorded tags and scores each theme's novelty
// against the registry.
type Miner struct {
	db       *store.DB
	reg      *registry.Registry
	embedder embedding.Embedder
	cluster  ClusterFunc
	cfg      config.EvolutionConfig
	log      *slog.Logger
}

// NewMiner creates a Miner with the default DBSCAN clusterer.
func NewMiner(db *store.DB, reg *registry.Registry, embedder embedding.Embedder, cfg config.EvolutionConfig, log *slog.Logger) *Miner {
	if log == nil {
		log = slog.Default()
	}
	return &Miner{
		db:       db,
		reg:      reg,
		embedder: embedder,
		cluster:  DBSCAN(cfg.ClusterEps, cfg.ClusterMinSize),
		cfg:      cfg,
		log:      log,
	}
}

// Run mines proposals and replaces the persisted set wholesale. A
// failed run leaves the previous run's output intact.
func (m *Miner) Run(ctx context.Context) ([]store.Proposal, error) {
	proposals, err := m.Mine(ctx)
	if err != nil {
		return nil, err
	}
	if err := m.db.ReplaceProposals(proposals); err != nil {
		return nil, fmt.Errorf("persist proposals: %w", err)
	}
	m.log.Info("evolution run complete", "proposals", len(proposals))
	return proposals, nil
}

// Mine aggregates tag records across users, clusters the frequent
// tags in embedding space, and scores each cluster's novelty as one
// minus its best similarity to any registered dimension. Clusters a
// dimension already covers are discarded outright; sparse tag sets
// legitimately yield an empty list.
func (m *Miner) Mine(ctx context.Context) ([]store.Proposal, error) {
	records, err := m.db.AllTags()
	if err != nil {
		return nil, fmt.Errorf("load tag records: %w", err)
	}

	tags, support := m.frequentTags(records)
	if len(tags) < m.cfg.ClusterMinSize {
		m.log.Info("not enough frequent tags to mine", "tags", len(tags))
		return nil, nil
	}

	vecs, err := embedding.EmbedAll(ctx, m.embedder, tags)
	if err != nil {
		return nil, fmt.Errorf("embed tags: %w", err)
	}

	anchors, err := m.dimensionAnchors(ctx)
	if err != nil {
		return nil, err
	}

	var proposals []store.Proposal
	for _, cluster := range m.cluster(vecs) {
		memberTags := make([]string, 0, len(cluster))
		memberVecs := make([][]float64, 0, len(cluster))
		members := 0
		for _, i := range cluster {
			memberTags = append(memberTags, tags[i])
			memberVecs = append(memberVecs, vecs[i])
			members += support[tags[i]]
		}
		sort.Strings(memberTags)

		centroid := embedding.MeanVector(memberVecs)
		nearest, bestSim := nearestAnchor(centroid, anchors)
		if bestSim >= m.cfg.SimilarityThreshold {
			// An existing dimension already covers this theme.
			m.log.Debug("cluster already covered", "tags", memberTags, "dimension", nearest, "similarity", bestSim)
			continue
		}

		p := store.Proposal{
			Tags:         memberTags,
			NoveltyScore: 1 - bestSim,
			SupportCount: members,
		}
		if p.NoveltyScore >= m.cfg.NoveltyThreshold {
			p.Kind = KindCreate
		} else {
			p.Kind = KindExtend
			p.NearestDimension = nearest
		}
		proposals = append(proposals, p)
	}

	sort.Slice(proposals, func(i, j int) bool {
		if proposals[i].NoveltyScore != proposals[j].NoveltyScore {
			return proposals[i].NoveltyScore > proposals[j].NoveltyScore
		}
		return proposals[i].SupportCount > proposals[j].SupportCount
	})
	for i := range proposals {
		proposals[i].Rank = i + 1
	}
	return proposals, nil
}

// frequentTags sums occurrences per tag across users and keeps the
// tags at or above the frequency floor, in deterministic order.
func (m *Miner) frequentTags(records []store.TagRecord) ([]string, map[string]int) {
	support := make(map[string]int)
	for _, r := range records {
		support[r.Tag] += r.Count
	}

	var tags []string
	for tag, count := range support {
		if count >= m.cfg.MinTagFrequency {
			tags = append(tags, tag)
		}
	}
	sort.Strings(tags)
	return tags, support
}

// dimensionAnchors embeds each dimension's canonical tags and averages
// them into one anchor vector per dimension.
func (m *Miner) dimensionAnchors(ctx context.Context) (map[string][]float64, error) {
	anchors := make(map[string][]float64, m.reg.Len())
	for _, dim := range m.reg.All() {
		vecs, err := embedding.EmbedAll(ctx, m.embedder, dim.CanonicalTags)
		if err != nil {
			return nil, fmt.Errorf("embed dimension %s: %w", dim.ID, err)
		}
		anchors[dim.ID] = embedding.MeanVector(vecs)
	}
	return anchors, nil
}

// nearestAnchor returns the closest dimension id and its similarity on
// the [0,1] scale. With no anchors everything is maximally novel.
func nearestAnchor(centroid []float64, anchors map[string][]float64) (string, float64) {
	ids := make([]string, 0, len(anchors))
	for id := range anchors {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	best := ""
	bestSim := 0.0
	for _, id := range ids {
		sim := embedding.CosineToUnit(embedding.CosineSimilarity(centroid, anchors[id]))
		if sim > bestSim {
			best = id
			bestSim = sim
		}
	}
	return best, bestSim
}
