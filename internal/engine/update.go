// Package engine synthesizes oracle scores into per-user dimension
// states: time decay of the prior, alpha-blended smoothing against the
// raw score, and an audit trail for every merge.
package engine

import (
	"math"
	"time"

	"github.com/pw-Chen-km/Twin3-algo/internal/config"
)

// Smoothing strategies, recorded on each audit entry.
const (
	StrategyFirst        = "first_observation"
	StrategyEarly        = "early"
	StrategyAnomaly      = "anomaly"
	StrategyStandard     = "standard"
	StrategyConservative = "conservative"
)

// UpdateInput is the prior state plus the new raw score.
type UpdateInput struct {
	PriorValue    int
	UpdateCount   int       // merges applied so far; 0 means never observed
	LastUpdatedAt time.Time // ignored when UpdateCount == 0
	RawScore      int
	Now           time.Time
}

// UpdateResult is the synthesized value plus the audit fields.
type UpdateResult struct {
	NewValue     int
	DecayedPrior int
	DecayFactor  float64
	Alpha        float64
	Strategy     string
}

// ComputeUpdate applies decay to the prior, then blends in the raw
// score. Pure: same input, same output.
func ComputeUpdate(cfg config.UpdateConfig, in UpdateInput) UpdateResult {
	raw := clampValue(in.RawScore)

	decayed := in.PriorValue
	factor := 1.0
	if in.UpdateCount > 0 {
		decayed, factor = DecayValue(cfg, in.PriorValue, in.LastUpdatedAt, in.Now)
	}

	alpha, strategy := selectAlpha(cfg, in.UpdateCount, decayed, raw)

	blended := alpha*float64(raw) + (1-alpha)*float64(decayed)
	return UpdateResult{
		NewValue:     clampValue(int(math.Round(blended))),
		DecayedPrior: decayed,
		DecayFactor:  factor,
		Alpha:        alpha,
		Strategy:     strategy,
	}
}

// DecayValue fades a stale prior toward zero. Values refreshed within
// the grace window are untouched; beyond it the prior shrinks
// exponentially in the overdue time, floored so decay never rounds a
// value up.
func DecayValue(cfg config.UpdateConfig, prior int, lastUpdated, now time.Time) (int, float64) {
	days := now.Sub(lastUpdated).Hours() / 24
	if days <= float64(cfg.DecayGraceDays) {
		return prior, 1.0
	}

	overdue := days - float64(cfg.DecayGraceDays)
	factor := math.Exp(-cfg.DecayLambda * overdue / 30)
	decayed := int(math.Floor(float64(prior) * factor))
	if decayed < 0 {
		decayed = 0
	}
	return decayed, factor
}

// selectAlpha picks the blend weight for this merge. The first
// observation takes the raw score outright; after that the anomaly
// guard outranks every count phase, so a large jump against the
// decayed prior is dampened no matter how young the state is.
func selectAlpha(cfg config.UpdateConfig, updateCount, decayedPrior, raw int) (float64, string) {
	switch {
	case updateCount == 0:
		return cfg.FirstAlpha, StrategyFirst
	case abs(raw-decayedPrior) > cfg.AnomalyDeltaThreshold:
		return cfg.AnomalyAlpha, StrategyAnomaly
	case updateCount < cfg.EarlyUntil:
		return cfg.EarlyAlpha, StrategyEarly
	case updateCount < cfg.StandardUntil:
		return cfg.StandardAlpha, StrategyStandard
	default:
		return cfg.ConservativeAlpha, StrategyConservative
	}
}

func clampValue(v int) int {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return v
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
