package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pw-Chen-km/Twin3-algo/internal/config"
	"github.com/pw-Chen-km/Twin3-algo/internal/matcher"
	"github.com/pw-Chen-km/Twin3-algo/internal/oracle"
	"github.com/pw-Chen-km/Twin3-algo/internal/registry"
	"github.com/pw-Chen-km/Twin3-algo/internal/store"
)

// DimensionUpdate reports one dimension's outcome within an event.
type DimensionUpdate struct {
	DimensionID   string  `json:"dimension_id"`
	Name          string  `json:"name"`
	Similarity    float64 `json:"similarity"`
	PreviousValue int     `json:"previous_value"`
	RawScore      int     `json:"raw_score"`
	NewValue      int     `json:"new_value"`
	Strategy      string  `json:"strategy"`
	Error         string  `json:"error,omitempty"`
}

// EventResult is the per-event fan-out outcome. An event succeeds
// partially: dimensions that fail are reported and the rest commit.
type EventResult struct {
	UserID    string            `json:"user_id"`
	Tags      []string          `json:"tags"`
	Updates   []DimensionUpdate `json:"updates"`
	Succeeded int               `json:"succeeded"`
	Failed    int               `json:"failed"`
}

// fanOutLimit bounds how many dimensions an event scores at once.
const fanOutLimit = 4

// Engine drives the match -> score -> merge pipeline over the store.
type Engine struct {
	db      *store.DB
	reg     *registry.Registry
	matcher *matcher.Matcher
	oracle  oracle.Oracle
	update  config.UpdateConfig
	timeout time.Duration
	log     *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex // keyed by user_id + "/" + dimension_id
}

// New creates an Engine. oracleTimeout bounds each scoring call; zero
// disables the bound.
func New(db *store.DB, reg *registry.Registry, m *matcher.Matcher, orc oracle.Oracle, update config.UpdateConfig, oracleTimeout time.Duration, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		db:      db,
		reg:     reg,
		matcher: m,
		oracle:  orc,
		update:  update,
		timeout: oracleTimeout,
		log:     log,
		locks:   make(map[string]*sync.Mutex),
	}
}

// ProcessEvent matches the event against the registry, then scores and
// merges every matched dimension. A failing dimension (oracle error,
// timeout, store error) is isolated: it is reported in the result and
// leaves its state untouched while the others proceed.
func (e *Engine) ProcessEvent(ctx context.Context, userID string, ev oracle.Event) (*EventResult, error) {
	if userID == "" {
		return nil, fmt.Errorf("empty user id")
	}

	matches, tags, err := e.matcher.Match(ctx, ev)
	if err != nil {
		return nil, fmt.Errorf("match event: %w", err)
	}

	result := &EventResult{UserID: userID, Tags: tags}
	if len(tags) > 0 {
		if err := e.db.RecordTags(userID, tags); err != nil {
			// Tag records feed offline mining only; the merge path
			// continues without them.
			e.log.Warn("record tags failed", "user", userID, "error", err)
		}
	}

	// Matched dimensions are independent, so score them concurrently
	// under a small bound. Each branch writes only its own slot; the
	// per-(user,dimension) locks serialize conflicting merges.
	updates := make([]DimensionUpdate, len(matches))
	sem := make(chan struct{}, fanOutLimit)
	var wg sync.WaitGroup
	for i, m := range matches {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, m matcher.Match) {
			defer wg.Done()
			defer func() { <-sem }()
			updates[i] = e.updateDimension(ctx, userID, m, ev)
		}(i, m)
	}
	wg.Wait()

	for i, upd := range updates {
		m := matches[i]
		if upd.Error != "" {
			result.Failed++
			e.log.Warn("dimension update failed", "user", userID, "dimension", m.DimensionID, "error", upd.Error)
		} else {
			result.Succeeded++
			e.log.Info("dimension updated",
				"user", userID,
				"dimension", m.DimensionID,
				"previous", upd.PreviousValue,
				"raw", upd.RawScore,
				"new", upd.NewValue,
				"strategy", upd.Strategy)
		}
		result.Updates = append(result.Updates, upd)
	}

	return result, nil
}

func (e *Engine) updateDimension(ctx context.Context, userID string, m matcher.Match, ev oracle.Event) DimensionUpdate {
	upd := DimensionUpdate{DimensionID: m.DimensionID, Name: m.Name, Similarity: m.Similarity}

	dim, ok := e.reg.Get(m.DimensionID)
	if !ok {
		upd.Error = fmt.Sprintf("unknown dimension %s", m.DimensionID)
		return upd
	}

	lock := e.lockFor(userID, m.DimensionID)
	lock.Lock()
	defer lock.Unlock()

	prior, err := e.db.GetState(userID, m.DimensionID)
	if err != nil {
		upd.Error = err.Error()
		return upd
	}

	in := UpdateInput{RawScore: 0, Now: time.Now()}
	if prior != nil {
		in.PriorValue = prior.Value
		in.UpdateCount = prior.UpdateCount
		in.LastUpdatedAt = time.UnixMilli(prior.LastUpdatedAt)
		upd.PreviousValue = prior.Value
	} else {
		in.PriorValue = e.update.DefaultValue
		upd.PreviousValue = e.update.DefaultValue
	}

	raw, err := e.scoreDimension(ctx, dim, ev, in.PriorValue)
	if err != nil {
		upd.Error = fmt.Sprintf("score: %v", err)
		return upd
	}
	in.RawScore = raw
	upd.RawScore = raw

	res := ComputeUpdate(e.update, in)
	upd.NewValue = res.NewValue
	upd.Strategy = res.Strategy

	state := store.DimensionState{
		UserID:        userID,
		DimensionID:   m.DimensionID,
		Value:         res.NewValue,
		UpdateCount:   in.UpdateCount + 1,
		LastUpdatedAt: in.Now.UnixMilli(),
	}
	entry := store.HistoryEntry{
		AuditID:       uuid.NewString(),
		Timestamp:     in.Now.UnixMilli(),
		PreviousValue: in.PriorValue,
		DecayedValue:  res.DecayedPrior,
		RawScore:      raw,
		NewValue:      res.NewValue,
		Delta:         res.NewValue - in.PriorValue,
		Strategy:      res.Strategy,
		Alpha:         res.Alpha,
		DecayFactor:   res.DecayFactor,
	}
	if err := e.db.CommitState(state, entry, e.update.HistoryCap); err != nil {
		upd.Error = fmt.Sprintf("commit: %v", err)
		return upd
	}
	return upd
}

// scoreDimension calls the oracle under the configured timeout. A
// timeout counts as an oracle failure for that dimension.
func (e *Engine) scoreDimension(ctx context.Context, dim registry.Dimension, ev oracle.Event, priorValue int) (int, error) {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}
	return e.oracle.ScoreDimension(ctx, dim, ev, priorValue)
}

// Matrix returns a user's full trait matrix: every registered
// dimension, with never-updated cells reported at the default value.
func (e *Engine) Matrix(userID string) ([]store.DimensionState, error) {
	stored, err := e.db.ListStates(userID)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]store.DimensionState, len(stored))
	for _, s := range stored {
		byID[s.DimensionID] = s
	}

	out := make([]store.DimensionState, 0, e.reg.Len())
	for _, dim := range e.reg.All() {
		if s, ok := byID[dim.ID]; ok {
			out = append(out, s)
			continue
		}
		out = append(out, store.DimensionState{
			UserID:      userID,
			DimensionID: dim.ID,
			Value:       e.update.DefaultValue,
		})
	}
	return out, nil
}

// DimensionDetail returns one cell with its audit history. The state
// is nil when the dimension has never been updated for the user.
func (e *Engine) DimensionDetail(userID, dimensionID string) (*store.DimensionState, []store.HistoryEntry, error) {
	if _, ok := e.reg.Get(dimensionID); !ok {
		return nil, nil, fmt.Errorf("unknown dimension %s", dimensionID)
	}
	state, err := e.db.GetState(userID, dimensionID)
	if err != nil {
		return nil, nil, err
	}
	history, err := e.db.History(userID, dimensionID)
	if err != nil {
		return nil, nil, err
	}
	return state, history, nil
}

func (e *Engine) lockFor(userID, dimensionID string) *sync.Mutex {
	key := userID + "/" + dimensionID
	e.mu.Lock()
	defer e.mu.Unlock()
	lock, ok := e.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		e.locks[key] = lock
	}
	return lock
}
