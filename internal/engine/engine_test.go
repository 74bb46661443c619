package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/pw-Chen-km/Twin3-algo/internal/config"
	"github.com/pw-Chen-km/Twin3-algo/internal/matcher"
	"github.com/pw-Chen-km/Twin3-algo/internal/oracle"
	"github.com/pw-Chen-km/Twin3-algo/internal/registry"
	"github.com/pw-Chen-km/Twin3-algo/internal/store"
)

func testEngine(t *testing.T, mock *oracle.Mock) (*Engine, *store.DB) {
	t.Helper()
	db, err := store.OpenMemory()
	if err != nil {
		t.Fatalf("open memory db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	reg, err := registry.New([]registry.Dimension{
		{ID: "D1", Name: "Fitness", CanonicalTags: []string{"running", "gym", "marathon"}},
		{ID: "D2", Name: "Cooking", CanonicalTags: []string{"cooking", "recipe", "baking"}},
	})
	if err != nil {
		t.Fatalf("registry.New: %v", err)
	}

	cfg := config.Default()
	m := matcher.New(reg, mock, nil, cfg.Matcher, nil)
	return New(db, reg, m, mock, cfg.Update, 0, nil), db
}

func TestProcessEventFirstObservation(t *testing.T) {
	mock := &oracle.Mock{Tags: []string{"running", "gym"}, Score: 180}
	eng, db := testEngine(t, mock)

	res, err := eng.ProcessEvent(context.Background(), "u1", oracle.Event{Text: "hit the gym"})
	if err != nil {
		t.Fatalf("ProcessEvent: %v", err)
	}
	if res.Succeeded != 1 || res.Failed != 0 {
		t.Fatalf("result = %+v, want 1 success", res)
	}
	upd := res.Updates[0]
	if upd.DimensionID != "D1" || upd.NewValue != 180 || upd.Strategy != StrategyFirst {
		t.Errorf("update = %+v, want D1 first_observation 180", upd)
	}

	state, err := db.GetState("u1", "D1")
	if err != nil || state == nil {
		t.Fatalf("GetState: %v %v", state, err)
	}
	if state.Value != 180 || state.UpdateCount != 1 {
		t.Errorf("state = %+v, want value 180 count 1", state)
	}

	tags, err := db.UserTags("u1")
	if err != nil {
		t.Fatalf("UserTags: %v", err)
	}
	if len(tags) != 2 {
		t.Errorf("tag records = %+v, want 2", tags)
	}
}

func TestProcessEventSmoothsRepeats(t *testing.T) {
	mock := &oracle.Mock{Tags: []string{"running"}, Score: 200}
	eng, _ := testEngine(t, mock)
	ctx := context.Background()

	if _, err := eng.ProcessEvent(ctx, "u1", oracle.Event{Text: "run"}); err != nil {
		t.Fatalf("first event: %v", err)
	}
	mock.Score = 160
	res, err := eng.ProcessEvent(ctx, "u1", oracle.Event{Text: "run again"})
	if err != nil {
		t.Fatalf("second event: %v", err)
	}
	// Second merge is early phase: 0.7*160 + 0.3*200 = 172.
	upd := res.Updates[0]
	if upd.NewValue != 172 || upd.Strategy != StrategyEarly {
		t.Errorf("update = %+v, want early 172", upd)
	}
}

func TestProcessEventPartialFailure(t *testing.T) {
	mock := &oracle.Mock{
		Tags:      []string{"running", "cooking"},
		Score:     150,
		ScoreErrs: map[string]error{"D2": errors.New("model overloaded")},
	}
	eng, db := testEngine(t, mock)

	res, err := eng.ProcessEvent(context.Background(), "u1", oracle.Event{Text: "ran then cooked"})
	if err != nil {
		t.Fatalf("ProcessEvent: %v", err)
	}
	if res.Succeeded != 1 || res.Failed != 1 {
		t.Fatalf("result = %+v, want one success and one failure", res)
	}

	state, err := db.GetState("u1", "D1")
	if err != nil || state == nil || state.Value != 150 {
		t.Errorf("D1 should commit despite D2 failing, got %+v err %v", state, err)
	}
	state, err = db.GetState("u1", "D2")
	if err != nil {
		t.Fatalf("GetState D2: %v", err)
	}
	if state != nil {
		t.Errorf("failed dimension must stay untouched, got %+v", state)
	}
}

func TestProcessEventFanOutKeepsMatchOrder(t *testing.T) {
	mock := &oracle.Mock{
		Tags:   []string{"running", "cooking"},
		Scores: map[string]int{"D1": 150, "D2": 90},
	}
	eng, _ := testEngine(t, mock)

	// Scoring runs concurrently per dimension; results must still come
	// back in match order with the right score under each id.
	for i := 0; i < 5; i++ {
		res, err := eng.ProcessEvent(context.Background(), fmt.Sprintf("u%d", i), oracle.Event{Text: "ran then cooked"})
		if err != nil {
			t.Fatalf("ProcessEvent: %v", err)
		}
		if len(res.Updates) != 2 || res.Succeeded != 2 {
			t.Fatalf("result = %+v, want two successes", res)
		}
		if res.Updates[0].DimensionID != "D1" || res.Updates[0].NewValue != 150 {
			t.Errorf("updates[0] = %+v, want D1 150", res.Updates[0])
		}
		if res.Updates[1].DimensionID != "D2" || res.Updates[1].NewValue != 90 {
			t.Errorf("updates[1] = %+v, want D2 90", res.Updates[1])
		}
	}
}

func TestProcessEventConcurrentSameCell(t *testing.T) {
	mock := &oracle.Mock{Tags: []string{"running"}, Score: 200}
	eng, db := testEngine(t, mock)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = eng.ProcessEvent(ctx, "u1", oracle.Event{Text: "run"})
		}(i)
	}
	wg.Wait()
	for i, err := range errs {
		if err != nil {
			t.Fatalf("event %d: %v", i, err)
		}
	}

	// Whichever event lands second sees a prior of 200 and a raw of
	// 200, so the end state is the same either way.
	state, err := db.GetState("u1", "D1")
	if err != nil || state == nil {
		t.Fatalf("GetState: %v %v", state, err)
	}
	if state.Value != 200 || state.UpdateCount != 2 {
		t.Errorf("state = %+v, want value 200 count 2", state)
	}
}

func TestProcessEventOracleTimeout(t *testing.T) {
	mock := &oracle.Mock{Tags: []string{"running"}, Score: 150}
	eng, db := testEngine(t, mock)
	eng.timeout = time.Nanosecond
	slow := &slowOracle{delay: 50 * time.Millisecond, inner: mock}
	eng.oracle = slow

	res, err := eng.ProcessEvent(context.Background(), "u1", oracle.Event{Text: "run"})
	if err != nil {
		t.Fatalf("ProcessEvent: %v", err)
	}
	if res.Failed != 1 || res.Succeeded != 0 {
		t.Fatalf("result = %+v, want timeout counted as failure", res)
	}
	state, err := db.GetState("u1", "D1")
	if err != nil {
		t.Fatalf("GetState: %v", err)
	}
	if state != nil {
		t.Errorf("timed-out dimension must stay untouched, got %+v", state)
	}
}

func TestProcessEventRejectsEmptyUser(t *testing.T) {
	mock := &oracle.Mock{Tags: []string{"running"}, Score: 100}
	eng, _ := testEngine(t, mock)
	if _, err := eng.ProcessEvent(context.Background(), "", oracle.Event{Text: "x"}); err == nil {
		t.Fatal("expected error for empty user id")
	}
}

func TestHistoryBounded(t *testing.T) {
	mock := &oracle.Mock{Tags: []string{"running"}, Score: 120}
	eng, db := testEngine(t, mock)
	eng.update.HistoryCap = 5
	ctx := context.Background()

	for i := 0; i < 12; i++ {
		if _, err := eng.ProcessEvent(ctx, "u1", oracle.Event{Text: "run"}); err != nil {
			t.Fatalf("event %d: %v", i, err)
		}
	}

	history, err := db.History("u1", "D1")
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 5 {
		t.Errorf("history length = %d, want cap 5", len(history))
	}
	state, err := db.GetState("u1", "D1")
	if err != nil || state == nil {
		t.Fatalf("GetState: %v %v", state, err)
	}
	// The counter keeps growing even after old audit rows are evicted.
	if state.UpdateCount != 12 {
		t.Errorf("UpdateCount = %d, want 12", state.UpdateCount)
	}
}

func TestMatrixFillsDefaults(t *testing.T) {
	mock := &oracle.Mock{Tags: []string{"running"}, Score: 140}
	eng, _ := testEngine(t, mock)

	if _, err := eng.ProcessEvent(context.Background(), "u1", oracle.Event{Text: "run"}); err != nil {
		t.Fatalf("ProcessEvent: %v", err)
	}

	matrix, err := eng.Matrix("u1")
	if err != nil {
		t.Fatalf("Matrix: %v", err)
	}
	if len(matrix) != 2 {
		t.Fatalf("matrix = %+v, want both dimensions", matrix)
	}
	if matrix[0].DimensionID != "D1" || matrix[0].Value != 140 {
		t.Errorf("D1 = %+v, want value 140", matrix[0])
	}
	if matrix[1].DimensionID != "D2" || matrix[1].Value != 0 || matrix[1].UpdateCount != 0 {
		t.Errorf("unseen D2 = %+v, want default 0", matrix[1])
	}
}

func TestDimensionDetailUnknownDimension(t *testing.T) {
	mock := &oracle.Mock{}
	eng, _ := testEngine(t, mock)
	if _, _, err := eng.DimensionDetail("u1", "nope"); err == nil {
		t.Fatal("expected error for unknown dimension")
	}
}

// slowOracle delays scoring so context deadlines fire first.
type slowOracle struct {
	delay time.Duration
	inner oracle.Oracle
}

func (s *slowOracle) ExtractTags(ctx context.Context, ev oracle.Event, maxTags int) ([]string, error) {
	return s.inner.ExtractTags(ctx, ev, maxTags)
}

func (s *slowOracle) ScoreDimension(ctx context.Context, dim registry.Dimension, ev oracle.Event, prior int) (int, error) {
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-time.After(s.delay):
		return s.inner.ScoreDimension(ctx, dim, ev, prior)
	}
}
