package world

import (
	"gridsnake.io/internal/sim/grid"
)

// DeathCause records why a snake died.
type DeathCause string

const (
	DeathWall       DeathCause = "wall"
	DeathHeadOn     DeathCause = "head_on"
	DeathBody       DeathCause = "body"
	DeathDisconnect DeathCause = "disconnect"
	DeathKick       DeathCause = "kick"
	DeathInvariant  DeathCause = "invariant"
)

// Snake is one player's body. Cells[0] is the head; each following cell
// is a cardinal neighbor of the previous one. All access happens on the
// world loop goroutine.
type Snake struct {
	ID    string
	Name  string
	Color grid.Color

	Cells   []grid.Cell
	Heading grid.Direction

	// pending is the latest validated heading request awaiting the next
	// tick boundary. hasPending distinguishes "no request" from a
	// request equal to the zero Direction.
	pending    grid.Direction
	hasPending bool

	Alive bool
	Cause DeathCause

	// Score is the accumulated length.
	Score int
}

// newSnake lays the body out behind the head, opposite the heading.
func newSnake(id, name string, color grid.Color, head grid.Cell, heading grid.Direction, length int) *Snake {
	dx, dy := heading.Opposite().Delta()
	cells := make([]grid.Cell, length)
	for i := 0; i < length; i++ {
		cells[i] = grid.Cell{X: head.X + dx*i, Y: head.Y + dy*i}
	}
	return &Snake{
		ID:      id,
		Name:    name,
		Color:   color,
		Cells:   cells,
		Heading: heading,
		Alive:   true,
		Score:   length,
	}
}

func (s *Snake) Head() grid.Cell { return s.Cells[0] }
func (s *Snake) Tail() grid.Cell { return s.Cells[len(s.Cells)-1] }

// RequestDirection applies the latest-wins mailbox rule: any number of
// requests may arrive between ticks, only the newest valid one is kept.
// A request for the exact reverse of the *committed* heading is silently
// discarded; validating against the committed heading (never the pending
// one) is what makes the rapid double-turn race unable to produce a 180.
func (s *Snake) RequestDirection(d grid.Direction) bool {
	if !s.Alive {
		return false
	}
	if len(s.Cells) > 1 && d == s.Heading.Opposite() {
		return false
	}
	s.pending = d
	s.hasPending = true
	return true
}

// commitPending promotes the pending heading to the committed one. The
// tick loop calls this exactly once per tick, before any movement is
// computed.
func (s *Snake) commitPending() {
	if s.hasPending {
		s.Heading = s.pending
		s.hasPending = false
	}
}

// kill marks the snake dead with the given cause. Dead is terminal.
func (s *Snake) kill(cause DeathCause) {
	if !s.Alive {
		return
	}
	s.Alive = false
	s.Cause = cause
}
