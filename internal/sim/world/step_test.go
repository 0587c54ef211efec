package world

import (
	"testing"

	"gridsnake.io/internal/sim/grid"
)

func TestStep_MoveShiftsBodyOneCell(t *testing.T) {
	w := newTestWorld(t, testConfig())
	s := putSnake(w, "S1", []grid.Cell{{X: 5, Y: 5}, {X: 5, Y: 6}, {X: 5, Y: 7}}, grid.Up)

	w.step(nil, nil, nil)

	want := []grid.Cell{{X: 5, Y: 4}, {X: 5, Y: 5}, {X: 5, Y: 6}}
	if !cellsEqual(s.Cells, want) {
		t.Fatalf("cells = %v, want %v", s.Cells, want)
	}
	if !s.Alive {
		t.Fatalf("snake died on a plain move: %s", s.Cause)
	}
	if w.CurrentTick() != 1 {
		t.Fatalf("tick = %d, want 1", w.CurrentTick())
	}
}

func TestStep_AppleGrowsAndRetainsTail(t *testing.T) {
	cfg := testConfig()
	cfg.AppleTarget = 1
	w := newTestWorld(t, cfg)
	s := putSnake(w, "S1", []grid.Cell{{X: 5, Y: 5}, {X: 5, Y: 6}, {X: 5, Y: 7}}, grid.Up)
	putApple(w, grid.Cell{X: 5, Y: 4}, 1)

	w.step(nil, nil, nil)

	want := []grid.Cell{{X: 5, Y: 4}, {X: 5, Y: 5}, {X: 5, Y: 6}, {X: 5, Y: 7}}
	if !cellsEqual(s.Cells, want) {
		t.Fatalf("cells = %v, want %v", s.Cells, want)
	}
	if s.Score != 4 {
		t.Fatalf("score = %d, want 4", s.Score)
	}
	if _, still := w.apples[grid.Cell{X: 5, Y: 4}]; still {
		t.Fatalf("consumed apple still present")
	}
	// Top-up replaced it somewhere off the body.
	if len(w.apples) != 1 {
		t.Fatalf("apples = %d, want 1 after top-up", len(w.apples))
	}
	for c := range w.apples {
		for _, b := range s.Cells {
			if c == b {
				t.Fatalf("replacement apple spawned on the snake at %v", c)
			}
		}
	}
}

func TestStep_ReversalRequestIgnored(t *testing.T) {
	w := newTestWorld(t, testConfig())
	s := putSnake(w, "S1", []grid.Cell{{X: 5, Y: 5}, {X: 5, Y: 6}, {X: 5, Y: 7}}, grid.Up)

	w.step(nil, nil, []DirectionEnvelope{{SnakeID: "S1", Heading: grid.Down}})

	if s.Heading != grid.Up {
		t.Fatalf("heading = %s, want up", s.Heading)
	}
	if s.Head() != (grid.Cell{X: 5, Y: 4}) {
		t.Fatalf("head = %v, want (5,4)", s.Head())
	}
}

// Two requests inside one tick window, the second being the reverse of
// the committed heading: the reverse is dropped at validation, not at
// commit, so the first request still wins.
func TestStep_DoubleTurnRaceCannotReverse(t *testing.T) {
	w := newTestWorld(t, testConfig())
	s := putSnake(w, "S1", []grid.Cell{{X: 5, Y: 5}, {X: 5, Y: 6}, {X: 5, Y: 7}}, grid.Up)

	w.step(nil, nil, []DirectionEnvelope{
		{SnakeID: "S1", Heading: grid.Left},
		{SnakeID: "S1", Heading: grid.Down},
	})

	if s.Heading != grid.Left {
		t.Fatalf("heading = %s, want left", s.Heading)
	}
	if s.Head() != (grid.Cell{X: 4, Y: 5}) {
		t.Fatalf("head = %v, want (4,5)", s.Head())
	}
}

func TestStep_LatestValidRequestWins(t *testing.T) {
	w := newTestWorld(t, testConfig())
	s := putSnake(w, "S1", []grid.Cell{{X: 5, Y: 5}, {X: 5, Y: 6}, {X: 5, Y: 7}}, grid.Up)

	w.step(nil, nil, []DirectionEnvelope{
		{SnakeID: "S1", Heading: grid.Left},
		{SnakeID: "S1", Heading: grid.Right},
	})

	if s.Heading != grid.Right {
		t.Fatalf("heading = %s, want right", s.Heading)
	}
}

func TestStep_WallKills(t *testing.T) {
	w := newTestWorld(t, testConfig())
	s := putSnake(w, "S1", []grid.Cell{{X: 0, Y: 5}, {X: 1, Y: 5}, {X: 2, Y: 5}}, grid.Left)

	w.step(nil, nil, nil)

	if s.Alive {
		t.Fatalf("expected wall death")
	}
	if s.Cause != DeathWall {
		t.Fatalf("cause = %s, want %s", s.Cause, DeathWall)
	}
	if _, onBoard := w.snakes["S1"]; onBoard {
		t.Fatalf("dead snake not buried")
	}
}

func TestStep_WrapCrossesEdge(t *testing.T) {
	cfg := testConfig()
	cfg.EdgePolicy = grid.EdgeWrap
	w := newTestWorld(t, cfg)
	s := putSnake(w, "S1", []grid.Cell{{X: 0, Y: 5}, {X: 1, Y: 5}, {X: 2, Y: 5}}, grid.Left)

	w.step(nil, nil, nil)

	if !s.Alive {
		t.Fatalf("wrap snake died: %s", s.Cause)
	}
	if s.Head() != (grid.Cell{X: 9, Y: 5}) {
		t.Fatalf("head = %v, want (9,5)", s.Head())
	}
}

func TestStep_HeadOnTieKillsBoth(t *testing.T) {
	w := newTestWorld(t, testConfig())
	a := putSnake(w, "S1", []grid.Cell{{X: 3, Y: 4}, {X: 2, Y: 4}, {X: 1, Y: 4}}, grid.Right)
	b := putSnake(w, "S2", []grid.Cell{{X: 5, Y: 4}, {X: 6, Y: 4}, {X: 7, Y: 4}}, grid.Left)

	w.step(nil, nil, nil)

	if a.Alive || b.Alive {
		t.Fatalf("expected both to die, alive = %v/%v", a.Alive, b.Alive)
	}
	if a.Cause != DeathHeadOn || b.Cause != DeathHeadOn {
		t.Fatalf("causes = %s/%s, want head_on", a.Cause, b.Cause)
	}
}

func TestStep_ThreeWayTieKillsAll(t *testing.T) {
	w := newTestWorld(t, testConfig())
	a := putSnake(w, "S1", []grid.Cell{{X: 3, Y: 4}, {X: 2, Y: 4}, {X: 1, Y: 4}}, grid.Right)
	b := putSnake(w, "S2", []grid.Cell{{X: 5, Y: 4}, {X: 6, Y: 4}, {X: 7, Y: 4}}, grid.Left)
	c := putSnake(w, "S3", []grid.Cell{{X: 4, Y: 5}, {X: 4, Y: 6}, {X: 4, Y: 7}}, grid.Up)

	w.step(nil, nil, nil)

	for _, s := range []*Snake{a, b, c} {
		if s.Alive || s.Cause != DeathHeadOn {
			t.Fatalf("snake %s: alive=%v cause=%s", s.ID, s.Alive, s.Cause)
		}
	}
}

func TestStep_BodyCollisionKillsRunner(t *testing.T) {
	w := newTestWorld(t, testConfig())
	a := putSnake(w, "S1", []grid.Cell{{X: 4, Y: 3}, {X: 4, Y: 4}, {X: 4, Y: 5}}, grid.Up)
	b := putSnake(w, "S2", []grid.Cell{{X: 3, Y: 4}, {X: 2, Y: 4}, {X: 1, Y: 4}}, grid.Right)

	w.step(nil, nil, nil)

	if !a.Alive {
		t.Fatalf("rammed snake died: %s", a.Cause)
	}
	if b.Alive || b.Cause != DeathBody {
		t.Fatalf("runner: alive=%v cause=%s, want body death", b.Alive, b.Cause)
	}
}

// A snake killed by the wall this tick still blocks with its whole body.
func TestStep_FreshCasualtyStillBlocks(t *testing.T) {
	w := newTestWorld(t, testConfig())
	a := putSnake(w, "S1", []grid.Cell{{X: 0, Y: 5}, {X: 1, Y: 5}, {X: 2, Y: 5}}, grid.Left)
	b := putSnake(w, "S2", []grid.Cell{{X: 1, Y: 6}, {X: 1, Y: 7}, {X: 1, Y: 8}}, grid.Up)

	w.step(nil, nil, nil)

	if a.Alive || a.Cause != DeathWall {
		t.Fatalf("S1: alive=%v cause=%s, want wall", a.Alive, a.Cause)
	}
	if b.Alive || b.Cause != DeathBody {
		t.Fatalf("S2: alive=%v cause=%s, want body", b.Alive, b.Cause)
	}
}

// The tail cell of a non-growing mover is vacated this same tick, so a
// pursuer may enter it.
func TestStep_TailChaseSurvives(t *testing.T) {
	w := newTestWorld(t, testConfig())
	a := putSnake(w, "S1", []grid.Cell{{X: 2, Y: 2}, {X: 2, Y: 3}}, grid.Up)
	b := putSnake(w, "S2", []grid.Cell{{X: 2, Y: 4}, {X: 2, Y: 5}}, grid.Up)

	w.step(nil, nil, nil)

	if !a.Alive || !b.Alive {
		t.Fatalf("alive = %v/%v, want both alive (%s/%s)", a.Alive, b.Alive, a.Cause, b.Cause)
	}
	if b.Head() != (grid.Cell{X: 2, Y: 3}) {
		t.Fatalf("pursuer head = %v, want the vacated (2,3)", b.Head())
	}
}

// But a tail that stays put because its owner grows is lethal.
func TestStep_TailChaseIntoGrowingTailDies(t *testing.T) {
	cfg := testConfig()
	w := newTestWorld(t, cfg)
	a := putSnake(w, "S1", []grid.Cell{{X: 2, Y: 2}, {X: 2, Y: 3}}, grid.Up)
	b := putSnake(w, "S2", []grid.Cell{{X: 2, Y: 4}, {X: 2, Y: 5}}, grid.Up)
	putApple(w, grid.Cell{X: 2, Y: 1}, 1)

	w.step(nil, nil, nil)

	if !a.Alive {
		t.Fatalf("grower died: %s", a.Cause)
	}
	if b.Alive || b.Cause != DeathBody {
		t.Fatalf("pursuer: alive=%v cause=%s, want body death", b.Alive, b.Cause)
	}
}

func TestStep_OwnVacatingTailIsPassable(t *testing.T) {
	w := newTestWorld(t, testConfig())
	s := putSnake(w, "S1", []grid.Cell{{X: 1, Y: 1}, {X: 2, Y: 1}, {X: 2, Y: 2}, {X: 1, Y: 2}}, grid.Down)

	w.step(nil, nil, nil)

	if !s.Alive {
		t.Fatalf("loop snake died: %s", s.Cause)
	}
	want := []grid.Cell{{X: 1, Y: 2}, {X: 1, Y: 1}, {X: 2, Y: 1}, {X: 2, Y: 2}}
	if !cellsEqual(s.Cells, want) {
		t.Fatalf("cells = %v, want %v", s.Cells, want)
	}
}

func TestStep_PausedFreezesMovementButTicks(t *testing.T) {
	w := newTestWorld(t, testConfig())
	s := putSnake(w, "S1", []grid.Cell{{X: 5, Y: 5}, {X: 5, Y: 6}, {X: 5, Y: 7}}, grid.Up)
	w.paused = true

	w.step(nil, nil, []DirectionEnvelope{{SnakeID: "S1", Heading: grid.Left}})

	if s.Head() != (grid.Cell{X: 5, Y: 5}) {
		t.Fatalf("paused snake moved to %v", s.Head())
	}
	if w.CurrentTick() != 1 {
		t.Fatalf("tick = %d, paused worlds still tick", w.CurrentTick())
	}

	w.paused = false
	w.step(nil, nil, []DirectionEnvelope{{SnakeID: "S1", Heading: grid.Left}})
	if s.Head() != (grid.Cell{X: 4, Y: 5}) {
		t.Fatalf("head = %v after resume, want (4,5)", s.Head())
	}
}

// No two live occupants ever share a cell, across many ticks of mixed
// movement, growth and respawn.
func TestStep_BoardStaysDisjoint(t *testing.T) {
	cfg := testConfig()
	cfg.Width, cfg.Height = 16, 16
	cfg.AppleTarget = 4
	w := newTestWorld(t, cfg)

	for _, name := range []string{"a", "b", "c", "d"} {
		out := make(chan []byte, 4)
		resp := make(chan JoinResponse, 1)
		w.applyJoins([]JoinRequest{{Name: name, Out: out, Resp: resp}})
		r := <-resp
		if r.Ack == nil {
			t.Fatalf("join %s rejected: %+v", name, r.Reject)
		}
	}

	dirs := []grid.Direction{grid.Up, grid.Right, grid.Down, grid.Left}
	for tick := 0; tick < 120; tick++ {
		var envs []DirectionEnvelope
		for i, id := range w.order {
			envs = append(envs, DirectionEnvelope{SnakeID: id, Heading: dirs[(tick+i)%4]})
		}
		w.step(nil, nil, envs)

		seen := map[grid.Cell]string{}
		for _, id := range w.order {
			s := w.snakes[id]
			if !s.Alive {
				continue
			}
			for _, c := range s.Cells {
				if prev, dup := seen[c]; dup {
					t.Fatalf("tick %d: cell %v held by %s and %s", tick, c, prev, id)
				}
				seen[c] = id
			}
		}
		for c := range w.apples {
			if prev, dup := seen[c]; dup {
				t.Fatalf("tick %d: apple overlaps snake %s at %v", tick, prev, c)
			}
		}
	}
}
