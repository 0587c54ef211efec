package world

import (
	"io"
	"log"
	"testing"

	"gridsnake.io/internal/sim/grid"
)

func testConfig() Config {
	return Config{
		Width:             10,
		Height:            10,
		TickRateHz:        14,
		AppleTarget:       0,
		AppleGrowth:       1,
		StartLength:       3,
		EdgePolicy:        grid.EdgeWall,
		MaxSessions:       8,
		RespawnDelayTicks: 2,
		Seed:              42,
	}
}

func newTestWorld(t *testing.T, cfg Config) *World {
	t.Helper()
	w, err := New(cfg, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("world: %v", err)
	}
	return w
}

// putSnake installs a snake at exact cells, bypassing placement, so
// collision scenarios can be laid out cell by cell.
func putSnake(w *World, id string, cells []grid.Cell, heading grid.Direction) *Snake {
	s := &Snake{
		ID:      id,
		Name:    id,
		Cells:   append([]grid.Cell(nil), cells...),
		Heading: heading,
		Alive:   true,
		Score:   len(cells),
	}
	w.snakes[id] = s
	w.order = append(w.order, id)
	w.rebuildIndex()
	return s
}

func putApple(w *World, c grid.Cell, growth int) {
	w.apples[c] = &Apple{Cell: c, Growth: growth}
	w.index.SetApple(c)
}

func cellsEqual(a, b []grid.Cell) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
