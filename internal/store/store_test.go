package store

import (
	"testing"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	db, err := OpenMemory()
	if err != nil {
		t.Fatalf("open memory db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestMigrationsApply(t *testing.T) {
	db := testDB(t)

	v, err := db.SchemaVersion()
	if err != nil {
		t.Fatalf("SchemaVersion: %v", err)
	}
	if v != len(migrations) {
		t.Errorf("schema version = %d, want %d", v, len(migrations))
	}
}

func TestGetStateUnseen(t *testing.T) {
	db := testDB(t)

	s, err := db.GetState("u1", "D1")
	if err != nil {
		t.Fatalf("GetState: %v", err)
	}
	if s != nil {
		t.Errorf("state = %+v, want nil for unseen dimension", s)
	}
}

func TestCommitStateRoundTrip(t *testing.T) {
	db := testDB(t)

	state := DimensionState{
		UserID:        "u1",
		DimensionID:   "D1",
		Value:         180,
		UpdateCount:   1,
		LastUpdatedAt: 1700000000000,
	}
	entry := HistoryEntry{
		AuditID:   "a-1",
		Timestamp: 1700000000000,
		RawScore:  180,
		NewValue:  180,
		Delta:     180,
		Strategy:  "first_observation",
		Alpha:     1.0,
	}
	if err := db.CommitState(state, entry, 20); err != nil {
		t.Fatalf("CommitState: %v", err)
	}

	got, err := db.GetState("u1", "D1")
	if err != nil || got == nil {
		t.Fatalf("GetState: %+v %v", got, err)
	}
	if got.Value != 180 || got.UpdateCount != 1 || got.LastUpdatedAt != 1700000000000 {
		t.Errorf("state = %+v", got)
	}

	history, err := db.History("u1", "D1")
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 1 || history[0].AuditID != "a-1" || history[0].Strategy != "first_observation" {
		t.Errorf("history = %+v", history)
	}
}

func TestCommitStateUpserts(t *testing.T) {
	db := testDB(t)

	for i := 1; i <= 3; i++ {
		state := DimensionState{UserID: "u1", DimensionID: "D1", Value: 100 + i, UpdateCount: i, LastUpdatedAt: int64(i)}
		entry := HistoryEntry{AuditID: string(rune('a' + i)), Timestamp: int64(i), NewValue: 100 + i, Strategy: "standard"}
		if err := db.CommitState(state, entry, 20); err != nil {
			t.Fatalf("CommitState %d: %v", i, err)
		}
	}

	got, err := db.GetState("u1", "D1")
	if err != nil || got == nil {
		t.Fatalf("GetState: %+v %v", got, err)
	}
	if got.Value != 103 || got.UpdateCount != 3 {
		t.Errorf("state = %+v, want latest commit", got)
	}
}

func TestHistoryEviction(t *testing.T) {
	db := testDB(t)

	for i := 0; i < 10; i++ {
		state := DimensionState{UserID: "u1", DimensionID: "D1", Value: i, UpdateCount: i + 1, LastUpdatedAt: int64(i)}
		entry := HistoryEntry{AuditID: "a", Timestamp: int64(i), NewValue: i, Strategy: "standard"}
		if err := db.CommitState(state, entry, 3); err != nil {
			t.Fatalf("CommitState %d: %v", i, err)
		}
	}

	history, err := db.History("u1", "D1")
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("history = %d entries, want 3", len(history))
	}
	// Newest entries survive, in chronological order.
	if history[0].NewValue != 7 || history[2].NewValue != 9 {
		t.Errorf("history = %+v, want values 7..9", history)
	}
}

func TestHistoryEvictionScopedPerDimension(t *testing.T) {
	db := testDB(t)

	for _, dim := range []string{"D1", "D2"} {
		for i := 0; i < 4; i++ {
			state := DimensionState{UserID: "u1", DimensionID: dim, Value: i, UpdateCount: i + 1, LastUpdatedAt: int64(i)}
			entry := HistoryEntry{AuditID: "a", Timestamp: int64(i), NewValue: i, Strategy: "standard"}
			if err := db.CommitState(state, entry, 3); err != nil {
				t.Fatalf("CommitState %s/%d: %v", dim, i, err)
			}
		}
	}

	for _, dim := range []string{"D1", "D2"} {
		history, err := db.History("u1", dim)
		if err != nil {
			t.Fatalf("History %s: %v", dim, err)
		}
		if len(history) != 3 {
			t.Errorf("%s history = %d entries, want 3", dim, len(history))
		}
	}
}

func TestListStatesOrdered(t *testing.T) {
	db := testDB(t)

	for _, dim := range []string{"D3", "D1", "D2"} {
		state := DimensionState{UserID: "u1", DimensionID: dim, Value: 1, UpdateCount: 1}
		if err := db.CommitState(state, HistoryEntry{AuditID: dim, Strategy: "standard"}, 20); err != nil {
			t.Fatalf("CommitState %s: %v", dim, err)
		}
	}

	states, err := db.ListStates("u1")
	if err != nil {
		t.Fatalf("ListStates: %v", err)
	}
	if len(states) != 3 || states[0].DimensionID != "D1" || states[2].DimensionID != "D3" {
		t.Errorf("states = %+v, want sorted by dimension id", states)
	}
}

func TestRecordTagsCounts(t *testing.T) {
	db := testDB(t)

	if err := db.RecordTags("u1", []string{"running", "gym"}); err != nil {
		t.Fatalf("RecordTags: %v", err)
	}
	if err := db.RecordTags("u1", []string{"running"}); err != nil {
		t.Fatalf("RecordTags: %v", err)
	}
	if err := db.RecordTags("u2", []string{"running"}); err != nil {
		t.Fatalf("RecordTags: %v", err)
	}

	tags, err := db.UserTags("u1")
	if err != nil {
		t.Fatalf("UserTags: %v", err)
	}
	if len(tags) != 2 {
		t.Fatalf("tags = %+v, want 2", tags)
	}
	// Count-descending order puts running first.
	if tags[0].Tag != "running" || tags[0].Count != 2 {
		t.Errorf("tags[0] = %+v, want running with count 2", tags[0])
	}
	if tags[0].FirstSeen > tags[0].LastSeen {
		t.Errorf("first_seen after last_seen: %+v", tags[0])
	}

	all, err := db.AllTags()
	if err != nil {
		t.Fatalf("AllTags: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("all tags = %+v, want 3 rows across users", all)
	}
}

func TestReplaceProposalsRoundTrip(t *testing.T) {
	db := testDB(t)

	first := []Proposal{
		{Rank: 1, Tags: []string{"pottery", "ceramics"}, NoveltyScore: 0.8, SupportCount: 5, Kind: "create"},
		{Rank: 2, Tags: []string{"jogging"}, NoveltyScore: 0.2, SupportCount: 9, NearestDimension: "D1", Kind: "extend"},
	}
	if err := db.ReplaceProposals(first); err != nil {
		t.Fatalf("ReplaceProposals: %v", err)
	}

	got, err := db.ListProposals()
	if err != nil {
		t.Fatalf("ListProposals: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("proposals = %+v, want 2", got)
	}
	if got[0].Kind != "create" || len(got[0].Tags) != 2 || got[0].Tags[0] != "pottery" {
		t.Errorf("proposals[0] = %+v", got[0])
	}
	if got[1].NearestDimension != "D1" {
		t.Errorf("proposals[1] = %+v", got[1])
	}

	// A new run wipes the old set.
	if err := db.ReplaceProposals(nil); err != nil {
		t.Fatalf("ReplaceProposals empty: %v", err)
	}
	got, err = db.ListProposals()
	if err != nil {
		t.Fatalf("ListProposals: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("proposals = %+v, want empty", got)
	}
}

func TestReplaceAffinityEdgesRoundTrip(t *testing.T) {
	db := testDB(t)

	edges := []AffinityEdge{
		{DimensionID: "D1", NodeID: "running", Path: "Interests > Sports > Running", Score: 0.93, Rank: 1},
		{DimensionID: "D1", NodeID: "sports", Path: "Interests > Sports", Score: 0.9, Rank: 2},
		{DimensionID: "D2", NodeID: "cooking", Path: "Interests > Food > Cooking", Score: 0.88, Rank: 1},
	}
	if err := db.ReplaceAffinityEdges(edges); err != nil {
		t.Fatalf("ReplaceAffinityEdges: %v", err)
	}

	got, err := db.ListAffinityEdges()
	if err != nil {
		t.Fatalf("ListAffinityEdges: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("edges = %+v, want 3", got)
	}
	// Grouped by dimension, rank ascending within each group.
	if got[0].DimensionID != "D1" || got[0].Rank != 1 || got[2].DimensionID != "D2" {
		t.Errorf("edges = %+v", got)
	}
	if got[0].Path != "Interests > Sports > Running" {
		t.Errorf("path = %q", got[0].Path)
	}
}

func TestValueBoundsEnforced(t *testing.T) {
	db := testDB(t)

	state := DimensionState{UserID: "u1", DimensionID: "D1", Value: 300, UpdateCount: 1}
	err := db.CommitState(state, HistoryEntry{AuditID: "a", Strategy: "standard"}, 20)
	if err == nil {
		t.Error("expected CHECK constraint failure for value 300")
	}
}
