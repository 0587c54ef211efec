package world

import (
	"gridsnake.io/internal/sim/grid"
)

// Apple is a consumable item occupying one free cell.
type Apple struct {
	Cell   grid.Cell
	Growth int
}

// spawnApple selects uniformly among all currently free cells and places
// a new apple there. It returns false when the grid has no free cell
// left, which is a deferred-retry condition, not an error.
//
// Selection is over the complement of the occupied set rather than
// accept/reject over the full grid, so spawn cost stays bounded as the
// board fills up.
func (w *World) spawnApple() bool {
	free := w.index.FreeCells()
	if len(free) == 0 {
		return false
	}
	c := free[w.rng.Intn(len(free))]
	w.apples[c] = &Apple{Cell: c, Growth: w.cfg.AppleGrowth}
	w.index.SetApple(c)
	return true
}

// topUpApples runs once per tick, raising the active apple count back to
// the configured target. A full board simply retries on a later tick.
func (w *World) topUpApples() {
	for len(w.apples) < w.cfg.AppleTarget {
		if !w.spawnApple() {
			return
		}
	}
}
