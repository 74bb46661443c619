package matcher

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/pw-Chen-km/Twin3-algo/internal/config"
	"github.com/pw-Chen-km/Twin3-algo/internal/embedding"
	"github.com/pw-Chen-km/Twin3-algo/internal/oracle"
	"github.com/pw-Chen-km/Twin3-algo/internal/registry"
)

func testRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	reg, err := registry.New([]registry.Dimension{
		{ID: "D1", Name: "Fitness", CanonicalTags: []string{"running", "gym", "marathon", "training"}},
		{ID: "D2", Name: "Cooking", CanonicalTags: []string{"cooking", "recipe", "baking", "kitchen"}},
		{ID: "D3", Name: "Travel", CanonicalTags: []string{"travel", "flight", "hotel", "running"}},
	})
	if err != nil {
		t.Fatalf("registry.New: %v", err)
	}
	return reg
}

func testConfig() config.MatcherConfig {
	return config.MatcherConfig{SimilarityThreshold: 0.1, MaxTags: 8, Mode: "jaccard"}
}

func TestJaccard(t *testing.T) {
	tests := []struct {
		name string
		a, b []string
		want float64
	}{
		{"identical", []string{"a", "b"}, []string{"a", "b"}, 1.0},
		{"disjoint", []string{"a", "b"}, []string{"c", "d"}, 0.0},
		{"partial", []string{"a", "b", "c"}, []string{"b", "c", "d"}, 0.5},
		{"case and space insensitive", []string{" Running "}, []string{"running"}, 1.0},
		{"empty left", nil, []string{"a"}, 0.0},
		{"duplicates collapse", []string{"a", "a", "b"}, []string{"a"}, 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Jaccard(tt.a, tt.b); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Jaccard(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestMatchOrdering(t *testing.T) {
	reg := testRegistry(t)
	mock := &oracle.Mock{Tags: []string{"running", "gym", "marathon"}}
	m := New(reg, mock, nil, testConfig(), nil)

	matches, tags, err := m.Match(context.Background(), oracle.Event{Text: "went for a run"})
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if len(tags) != 3 {
		t.Fatalf("tags = %v, want 3 entries", tags)
	}
	// D1 shares 3 of 4 canonical tags, D3 shares 1.
	if len(matches) != 2 {
		t.Fatalf("matches = %+v, want 2", matches)
	}
	if matches[0].DimensionID != "D1" || matches[1].DimensionID != "D3" {
		t.Errorf("order = [%s %s], want [D1 D3]", matches[0].DimensionID, matches[1].DimensionID)
	}
	if matches[0].Similarity <= matches[1].Similarity {
		t.Errorf("similarities not descending: %v", matches)
	}
}

func TestMatchTieBreaksByDimensionID(t *testing.T) {
	reg, err := registry.New([]registry.Dimension{
		{ID: "D2", Name: "B", CanonicalTags: []string{"x", "b1"}},
		{ID: "D1", Name: "A", CanonicalTags: []string{"x", "a1"}},
	})
	if err != nil {
		t.Fatalf("registry.New: %v", err)
	}
	m := New(reg, &oracle.Mock{Tags: []string{"x"}}, nil, testConfig(), nil)

	matches, _, err := m.Match(context.Background(), oracle.Event{Text: "x"})
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if len(matches) != 2 || matches[0].DimensionID != "D1" {
		t.Errorf("tied matches should order by id ascending, got %+v", matches)
	}
}

func TestMatchThresholdFiltersWeakOverlap(t *testing.T) {
	reg := testRegistry(t)
	cfg := testConfig()
	cfg.SimilarityThreshold = 0.5
	m := New(reg, &oracle.Mock{Tags: []string{"running"}}, nil, cfg, nil)

	matches, _, err := m.Match(context.Background(), oracle.Event{Text: "run"})
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	// Single shared tag gives 1/4 at best, below the raised threshold.
	if len(matches) != 0 {
		t.Errorf("matches = %+v, want none above threshold", matches)
	}
}

func TestMatchNoTagsNoMatches(t *testing.T) {
	reg := testRegistry(t)
	m := New(reg, &oracle.Mock{Tags: nil}, nil, testConfig(), nil)

	matches, tags, err := m.Match(context.Background(), oracle.Event{Text: ""})
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if len(matches) != 0 || len(tags) != 0 {
		t.Errorf("got matches=%v tags=%v, want none", matches, tags)
	}
}

func TestMatchEmbeddingFailureRestartsPassOnJaccard(t *testing.T) {
	reg := testRegistry(t)
	mock := &oracle.Mock{Tags: []string{"running", "gym", "marathon"}}
	ev := oracle.Event{Text: "went for a run"}

	cfg := testConfig()
	cfg.Mode = "embedding"
	broken := &embedding.Static{Err: errors.New("ollama unreachable")}
	m := New(reg, mock, broken, cfg, nil)

	matches, _, err := m.Match(context.Background(), ev)
	if err != nil {
		t.Fatalf("Match should survive embedder failure, got %v", err)
	}

	// The degraded pass must equal a pure jaccard pass: every score on
	// the overlap scale, none left over from the aborted embedding run.
	want, _, err := New(reg, mock, nil, testConfig(), nil).Match(context.Background(), ev)
	if err != nil {
		t.Fatalf("jaccard Match: %v", err)
	}
	if len(matches) != len(want) {
		t.Fatalf("matches = %+v, want %+v", matches, want)
	}
	for i := range want {
		if matches[i] != want[i] {
			t.Errorf("match[%d] = %+v, want %+v", i, matches[i], want[i])
		}
	}
}

func TestMatchFallsBackOnOracleFailure(t *testing.T) {
	reg := testRegistry(t)
	mock := &oracle.Mock{TagsErr: errors.New("quota exceeded")}
	m := New(reg, mock, nil, testConfig(), nil)

	matches, tags, err := m.Match(context.Background(), oracle.Event{Text: "training for a marathon, then cooking dinner"})
	if err != nil {
		t.Fatalf("Match should survive oracle failure, got %v", err)
	}
	if len(tags) == 0 {
		t.Fatal("heuristic fallback produced no tags")
	}
	ids := make(map[string]bool)
	for _, mt := range matches {
		ids[mt.DimensionID] = true
	}
	if !ids["D1"] || !ids["D2"] {
		t.Errorf("fallback matches = %+v, want D1 and D2 present", matches)
	}
}
