package oracle

import (
	"context"
	"sort"
	"strings"

	"github.com/pw-Chen-km/Twin3-algo/internal/registry"
)

// Heuristic is the rule-engine fallback oracle. It matches event text
// against the registry's canonical tags and derives tags and scores
// from keyword hits. Deterministic, local, never fails — it backs the
// real oracle on error and serves offline runs.
type Heuristic struct {
	reg *registry.Registry
}

// NewHeuristic creates the fallback oracle over a registry snapshot.
func NewHeuristic(reg *registry.Registry) *Heuristic {
	return &Heuristic{reg: reg}
}

// ExtractTags scans the content for canonical tags of every dimension
// and returns the ones found, most-hit dimensions first.
func (h *Heuristic) ExtractTags(_ context.Context, ev Event, maxTags int) ([]string, error) {
	content := strings.ToLower(ev.Text)

	var tags []string
	seen := make(map[string]bool)
	for _, dim := range h.reg.All() {
		for _, tag := range dim.CanonicalTags {
			if seen[tag] {
				continue
			}
			if strings.Contains(content, strings.ToLower(tag)) {
				seen[tag] = true
				tags = append(tags, tag)
			}
		}
	}

	if len(tags) == 0 {
		tags = fallbackWords(ev.Text, maxTags)
	}

	sort.Strings(tags)
	if len(tags) > maxTags {
		tags = tags[:maxTags]
	}
	return tags, nil
}

// ScoreDimension counts canonical-tag hits in the content. A miss
// scores around the neutral base; hits push the score up, capped at
// the domain bound.
func (h *Heuristic) ScoreDimension(_ context.Context, dim registry.Dimension, ev Event, _ int) (int, error) {
	content := strings.ToLower(ev.Text)

	hits := 0
	for _, tag := range dim.CanonicalTags {
		if strings.Contains(content, strings.ToLower(tag)) {
			hits++
		}
	}

	base := 100
	if hits == 0 {
		return clampScore(base), nil
	}
	bonus := hits * 20
	if bonus > 70 {
		bonus = 70
	}
	return clampScore(base + 50 + bonus), nil
}

// fallbackWords splits content into words as a last-resort tag list,
// skipping single-rune tokens.
func fallbackWords(text string, maxTags int) []string {
	var words []string
	var current strings.Builder

	flush := func() {
		if current.Len() > 0 {
			if w := current.String(); len([]rune(w)) > 1 {
				words = append(words, w)
			}
			current.Reset()
		}
	}

	for _, r := range text {
		switch {
		case r >= 0x4E00 && r <= 0x9FFF, // CJK ideographs
			r >= 'a' && r <= 'z',
			r >= 'A' && r <= 'Z':
			current.WriteRune(r)
		default:
			flush()
		}
		if len(words) >= maxTags {
			return words
		}
	}
	flush()

	if len(words) > maxTags {
		words = words[:maxTags]
	}
	return words
}
