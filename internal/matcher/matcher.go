// Package matcher maps event content onto trait dimensions by
// comparing extracted tags against each dimension's canonical tags.
package matcher

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/pw-Chen-km/Twin3-algo/internal/config"
	"github.com/pw-Chen-km/Twin3-algo/internal/embedding"
	"github.com/pw-Chen-km/Twin3-algo/internal/oracle"
	"github.com/pw-Chen-km/Twin3-algo/internal/registry"
)

// Match is one dimension that crossed the similarity threshold.
type Match struct {
	DimensionID string  `json:"dimension_id"`
	Name        string  `json:"name"`
	Similarity  float64 `json:"similarity"`
}

// Matcher scores event tags against the dimension registry.
type Matcher struct {
	reg      *registry.Registry
	oracle   oracle.Oracle
	fallback *oracle.Heuristic
	embedder embedding.Embedder // used only in "embedding" mode
	cfg      config.MatcherConfig
	log      *slog.Logger
}

// New creates a Matcher. embedder may be nil in "jaccard" mode.
func New(reg *registry.Registry, orc oracle.Oracle, embedder embedding.Embedder, cfg config.MatcherConfig, log *slog.Logger) *Matcher {
	if log == nil {
		log = slog.Default()
	}
	return &Matcher{
		reg:      reg,
		oracle:   orc,
		fallback: oracle.NewHeuristic(reg),
		embedder: embedder,
		cfg:      cfg,
		log:      log,
	}
}

// Match extracts tags from the event and returns the dimensions whose
// similarity meets the threshold, sorted by similarity descending with
// dimension-id ties broken ascending. The extracted tags are returned
// alongside so callers can record them. Tag-extraction failures fall
// back to the local heuristic; matching never fails outright.
func (m *Matcher) Match(ctx context.Context, ev oracle.Event) ([]Match, []string, error) {
	tags, err := m.oracle.ExtractTags(ctx, ev, m.cfg.MaxTags)
	if err != nil {
		m.log.Warn("tag extraction failed, using heuristic fallback", "error", err)
		tags, err = m.fallback.ExtractTags(ctx, ev, m.cfg.MaxTags)
		if err != nil {
			return nil, nil, fmt.Errorf("fallback tag extraction: %w", err)
		}
	}
	if len(tags) == 0 {
		return nil, nil, nil
	}

	matches, err := m.scorePass(ctx, tags, m.cfg.Mode)
	if err != nil {
		// One consistent scale per run: restart the whole pass on tag
		// overlap instead of mixing conventions across dimensions.
		m.log.Warn("embedding similarity failed, rerunning pass with jaccard", "error", err)
		matches, err = m.scorePass(ctx, tags, "jaccard")
		if err != nil {
			return nil, nil, fmt.Errorf("jaccard pass: %w", err)
		}
	}

	return matches, tags, nil
}

// scorePass scores every dimension on a single similarity scale. In
// embedding mode the first embedder failure aborts the pass so the
// caller can rerun it on tag overlap.
func (m *Matcher) scorePass(ctx context.Context, tags []string, mode string) ([]Match, error) {
	var matches []Match
	for _, dim := range m.reg.All() {
		var sim float64
		switch mode {
		case "embedding":
			var err error
			sim, err = m.embeddingSimilarity(ctx, tags, dim.CanonicalTags)
			if err != nil {
				return nil, fmt.Errorf("dimension %s: %w", dim.ID, err)
			}
		default:
			sim = Jaccard(tags, dim.CanonicalTags)
		}

		if sim >= m.cfg.SimilarityThreshold {
			matches = append(matches, Match{DimensionID: dim.ID, Name: dim.Name, Similarity: sim})
		}
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Similarity != matches[j].Similarity {
			return matches[i].Similarity > matches[j].Similarity
		}
		return matches[i].DimensionID < matches[j].DimensionID
	})

	return matches, nil
}

// Jaccard computes |intersection| / |union| over normalized tag sets.
func Jaccard(a, b []string) float64 {
	setA := normalizeSet(a)
	setB := normalizeSet(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}

	intersection := 0
	for tag := range setA {
		if setB[tag] {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	return float64(intersection) / float64(union)
}

// embeddingSimilarity compares mean tag-set vectors by cosine,
// rescaled from [-1,1] to the same [0,1] scale as Jaccard.
func (m *Matcher) embeddingSimilarity(ctx context.Context, eventTags, canonicalTags []string) (float64, error) {
	if m.embedder == nil {
		return 0, fmt.Errorf("no embedder configured")
	}

	eventVecs, err := embedding.EmbedAll(ctx, m.embedder, eventTags)
	if err != nil {
		return 0, err
	}
	canonVecs, err := embedding.EmbedAll(ctx, m.embedder, canonicalTags)
	if err != nil {
		return 0, err
	}

	cos := embedding.CosineSimilarity(embedding.MeanVector(eventVecs), embedding.MeanVector(canonVecs))
	return embedding.CosineToUnit(cos), nil
}

func normalizeSet(tags []string) map[string]bool {
	set := make(map[string]bool, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" {
			set[t] = true
		}
	}
	return set
}
