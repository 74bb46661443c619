// Package oracle provides the content-understanding interface the
// update engine depends on: tag extraction for matching and raw
// 0-255 scoring for matched dimensions.
package oracle

import (
	"context"
	"fmt"

	"github.com/pw-Chen-km/Twin3-algo/internal/config"
	"github.com/pw-Chen-km/Twin3-algo/internal/registry"
)

// Event is the unit of user-submitted content the oracles see.
// Media is an optional image URL or local path; every oracle must
// tolerate its absence.
type Event struct {
	Text  string
	Media string
}

// Oracle is the interface for content-understanding providers.
type Oracle interface {
	// ExtractTags returns a bounded list of semantic tags for the event.
	ExtractTags(ctx context.Context, ev Event, maxTags int) ([]string, error)
	// ScoreDimension returns a raw score in [0,255] for the event
	// against one dimension, given the user's prior value.
	ScoreDimension(ctx context.Context, dim registry.Dimension, ev Event, priorValue int) (int, error)
}

// New creates an Oracle based on the config provider setting.
func New(ctx context.Context, cfg config.OracleConfig, reg *registry.Registry) (Oracle, error) {
	switch cfg.Provider {
	case "gemini":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("gemini provider requires GOOGLE_API_KEY or config")
		}
		g, err := NewGemini(ctx, cfg)
		if err != nil {
			return nil, err
		}
		g.knownTags = KnownTagSample(reg, 40)
		return g, nil
	case "heuristic":
		return NewHeuristic(reg), nil
	default:
		return nil, fmt.Errorf("unknown oracle provider: %q", cfg.Provider)
	}
}

// clampScore forces a raw score into the [0,255] domain.
func clampScore(v int) int {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return v
}
