package scores

import (
	"context"
	"path/filepath"
	"testing"

	"gridsnake.io/internal/sim/world"
)

func TestStore_LeaderboardAggregates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scores.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	recs := []world.DeathRecord{
		{Tick: 10, SnakeID: "S1", Name: "alice", Cause: world.DeathWall, Score: 5},
		{Tick: 25, SnakeID: "S3", Name: "alice", Cause: world.DeathBody, Score: 9},
		{Tick: 30, SnakeID: "S2", Name: "bob", Cause: world.DeathHeadOn, Score: 7},
		{Tick: 40, SnakeID: "S4", Name: "mallory", Cause: world.DeathKick, Score: 99},
	}
	for _, r := range recs {
		if err := s.RecordDeath(r); err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	// Reopen: everything must have been committed on close.
	s, err = Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()

	top, err := s.TopScores(context.Background(), 10)
	if err != nil {
		t.Fatalf("top scores: %v", err)
	}
	if len(top) != 2 {
		t.Fatalf("rows = %+v, want alice and bob only", top)
	}
	if top[0].Name != "alice" || top[0].BestScore != 9 || top[0].Runs != 2 {
		t.Fatalf("top row = %+v", top[0])
	}
	if top[1].Name != "bob" || top[1].BestScore != 7 {
		t.Fatalf("second row = %+v", top[1])
	}
	if top[0].LastTick != 25 {
		t.Fatalf("alice last tick = %d, want 25", top[0].LastTick)
	}

	recent, err := s.RecentDeaths(context.Background(), 2)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(recent) != 2 || recent[0].SnakeID != "S4" {
		t.Fatalf("recent = %+v, want newest first", recent)
	}
}

func TestStore_NilAndClosedAreNoOps(t *testing.T) {
	var s *Store
	if err := s.RecordDeath(world.DeathRecord{}); err != nil {
		t.Fatalf("nil store: %v", err)
	}

	path := filepath.Join(t.TempDir(), "scores.db")
	st, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := st.RecordDeath(world.DeathRecord{Name: "late"}); err != nil {
		t.Fatalf("record after close: %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("double close: %v", err)
	}
}
