package world

import (
	"fmt"
	"time"

	"gridsnake.io/internal/protocol"
	"gridsnake.io/internal/sim/grid"
)

// step advances the world by one tick. Ordering matters and is fixed:
// leaves, joins, respawns, direction commits, batched movement
// resolution, atomic apply, index rebuild, apple top-up, tick increment,
// broadcast, journal, burial.
func (w *World) step(joins []JoinRequest, leaves []string, directions []DirectionEnvelope) {
	started := time.Now()
	w.deathsThisTick = w.deathsThisTick[:0]

	recordedLeaves := w.applyLeaves(leaves)
	recordedJoins := w.applyJoins(joins)

	recordedDirections := make([]string, 0, len(directions))
	if !w.paused {
		w.applyRespawns()
		// Mailbox drain: every request is validated against the snake's
		// committed heading in arrival order; the latest valid one wins.
		for _, env := range directions {
			s := w.snakes[env.SnakeID]
			if s == nil {
				continue
			}
			if s.RequestDirection(env.Heading) {
				recordedDirections = append(recordedDirections, fmt.Sprintf("%s:%s", env.SnakeID, env.Heading))
			}
		}
		w.advance()
	}

	// The index must reflect post-move occupancy before apples pick from
	// the free-cell complement.
	w.rebuildIndex()
	if !w.paused {
		w.topUpApples()
	}
	w.tick.Add(1)
	w.broadcast()
	w.writeJournal(recordedJoins, recordedLeaves, recordedDirections)
	w.buryDead()
	w.publishMetrics(time.Since(started))
}

// advance performs the batched movement resolution. Prospective head
// cells for every live snake are computed before any state mutates, so
// the outcome of two snakes crossing paths cannot depend on the order
// they are enumerated in.
func (w *World) advance() {
	type move struct {
		s      *Snake
		next   grid.Cell
		inGrid bool
		grows  bool
	}

	for _, id := range w.order {
		s := w.snakes[id]
		if !s.Alive {
			continue
		}
		if len(s.Cells) == 0 {
			// Invariant violation: no external input can produce this.
			// Remove the offender rather than leave the tick inconsistent.
			w.log.Printf("invariant violation: snake %s has no segments, removing", s.ID)
			s.kill(DeathInvariant)
			w.recordDeath(s)
			continue
		}
		s.commitPending()
	}

	// Phase 1: prospective heads against pre-tick state only.
	moves := make([]move, 0, len(w.order))
	headCount := map[grid.Cell]int{}
	for _, id := range w.order {
		s := w.snakes[id]
		if !s.Alive {
			continue
		}
		next, ok := w.bounds.Neighbor(s.Head(), s.Heading, w.cfg.EdgePolicy)
		m := move{s: s, next: next, inGrid: ok}
		if ok {
			headCount[next]++
			if w.apples[next] != nil {
				m.grows = true
			}
		}
		moves = append(moves, m)
	}

	// Phase 2: wall and head-to-head deaths. A cell targeted by two or
	// more prospective heads kills every snake aiming at it, ties of
	// three and more included.
	for _, m := range moves {
		if !m.inGrid {
			m.s.kill(DeathWall)
		} else if headCount[m.next] > 1 {
			m.s.kill(DeathHeadOn)
		}
	}

	// Phase 3: body occupancy. Every segment of every snake blocks,
	// except the tail of a snake that moves without growing: that cell
	// is vacated this very tick. Snakes killed above keep their full
	// body, tail included.
	blocked := map[grid.Cell]struct{}{}
	for _, m := range moves {
		cells := m.s.Cells
		last := len(cells)
		if m.s.Alive && !m.grows {
			last-- // vacating tail is passable
		}
		for i := 0; i < last; i++ {
			blocked[cells[i]] = struct{}{}
		}
	}
	for _, m := range moves {
		if !m.s.Alive {
			continue
		}
		if _, hit := blocked[m.next]; hit {
			m.s.kill(DeathBody)
		}
	}

	// Phase 4: apply all survivals, growth and deaths atomically.
	consumed := make([]grid.Cell, 0, 2)
	for _, m := range moves {
		s := m.s
		if !s.Alive {
			w.recordDeath(s)
			continue
		}
		if m.grows {
			a := w.apples[m.next]
			s.Cells = append([]grid.Cell{m.next}, s.Cells...)
			s.Score += a.Growth
			consumed = append(consumed, m.next)
		} else {
			copy(s.Cells[1:], s.Cells[:len(s.Cells)-1])
			s.Cells[0] = m.next
		}
	}
	for _, c := range consumed {
		delete(w.apples, c)
	}
}

// rebuildIndex derives the occupancy read model from the snake and apple
// collections. Only live bodies claim cells; snakes that died this tick
// leave the board right after broadcast.
func (w *World) rebuildIndex() {
	w.index.Reset()
	for _, id := range w.order {
		s := w.snakes[id]
		if !s.Alive {
			continue
		}
		for _, c := range s.Cells {
			w.index.SetSnake(c, s.ID)
		}
	}
	for c := range w.apples {
		w.index.SetApple(c)
	}
}

// buryDead removes this tick's casualties from the board after they were
// broadcast once with alive:false, and schedules respawns for sessions
// that are still connected.
func (w *World) buryDead() {
	var dead []string
	for _, id := range w.order {
		if !w.snakes[id].Alive {
			dead = append(dead, id)
		}
	}
	for _, id := range dead {
		s := w.snakes[id]
		w.removeSnake(id)
		if _, connected := w.sessions[id]; connected && s.Cause != DeathDisconnect && s.Cause != DeathKick {
			w.respawnAt[id] = w.tick.Load() + w.cfg.RespawnDelayTicks
			w.pendingRespawn[id] = respawnInfo{name: s.Name, color: s.Color}
		}
	}
}

type respawnInfo struct {
	name  string
	color grid.Color
}

// applyRespawns gives a dead snake's surviving session a fresh body once
// its delay elapses. A full board defers to the next tick, not an error.
func (w *World) applyRespawns() {
	now := w.tick.Load()
	for _, id := range w.orderedRespawnIDs() {
		if now < w.respawnAt[id] {
			continue
		}
		if w.sessions[id] == nil {
			delete(w.respawnAt, id)
			delete(w.pendingRespawn, id)
			continue
		}
		info := w.pendingRespawn[id]
		s, ok := w.placeSnake(id, info.name, info.color)
		if !ok {
			continue
		}
		delete(w.respawnAt, id)
		delete(w.pendingRespawn, id)
		w.log.Printf("snake %s (%s) respawned at %v", s.ID, s.Name, s.Head())
	}
}

func (w *World) applyLeaves(leaves []string) []string {
	recorded := make([]string, 0, len(leaves))
	for _, id := range leaves {
		_, onBoard := w.snakes[id]
		_, waiting := w.respawnAt[id]
		if !onBoard && !waiting {
			continue
		}
		if s := w.snakes[id]; s != nil && s.Alive {
			s.kill(DeathDisconnect)
			w.recordDeath(s)
		}
		w.removeSnake(id)
		delete(w.respawnAt, id)
		delete(w.pendingRespawn, id)
		delete(w.sessions, id) // transport already owns the closing conn
		recorded = append(recorded, id)
	}
	return recorded
}

func (w *World) applyJoins(joins []JoinRequest) []string {
	recorded := make([]string, 0, len(joins))
	for _, req := range joins {
		resp := w.handleJoin(req)
		if req.Resp != nil {
			req.Resp <- resp
		}
		if resp.Ack != nil {
			recorded = append(recorded, resp.Ack.SnakeID)
		}
	}
	return recorded
}

func (w *World) handleJoin(req JoinRequest) JoinResponse {
	reject := func(code, reason string) JoinResponse {
		return JoinResponse{Reject: &protocol.JoinRejectMsg{
			Type:            protocol.TypeJoinReject,
			ProtocolVersion: protocol.Version,
			Code:            code,
			Reason:          reason,
		}}
	}

	if len(w.sessions) >= w.cfg.MaxSessions {
		return reject(protocol.ErrServerFull, "session limit reached")
	}
	name := req.Name
	if name == "" {
		name = "snake"
	}
	for _, id := range w.order {
		if w.snakes[id].Name == name {
			return reject(protocol.ErrNameTaken, fmt.Sprintf("name %q already in play", name))
		}
	}

	color := w.pickColor(req.Color)
	id := fmt.Sprintf("S%d", w.nextSnakeNum.Add(1))
	s, ok := w.placeSnake(id, name, color)
	if !ok {
		return reject(protocol.ErrNoRoom, "no free run of cells for a new snake")
	}

	if req.Out != nil {
		w.sessions[s.ID] = &sessionState{Out: req.Out, CellsRLE: req.CellsRLE}
	}
	w.log.Printf("snake %s (%s) joined at %v heading %s", s.ID, s.Name, s.Head(), s.Heading)

	return JoinResponse{Ack: &protocol.JoinAckMsg{
		Type:            protocol.TypeJoinAck,
		ProtocolVersion: protocol.Version,
		SnakeID:         s.ID,
		GridWidth:       w.cfg.Width,
		GridHeight:      w.cfg.Height,
		TickIntervalMs:  int(w.cfg.TickInterval().Milliseconds()),
		StartLength:     w.cfg.StartLength,
		EdgePolicy:      string(w.cfg.EdgePolicy),
		Color:           color.Hex(),
	}}
}

// placeSnake finds a free contiguous run of StartLength cells: a seeded-
// random free cell for the head, then the body laid out opposite one of
// the four headings tried in random order. Attempts are bounded so a
// crowded board yields "no placement" instead of an unbounded search.
func (w *World) placeSnake(id, name string, color grid.Color) (*Snake, bool) {
	free := w.index.FreeCells()
	if len(free) < w.cfg.StartLength {
		return nil, false
	}

	attempts := 64
	if attempts > len(free) {
		attempts = len(free)
	}
	for try := 0; try < attempts; try++ {
		head := free[w.rng.Intn(len(free))]
		for _, d := range w.shuffledDirections() {
			if !w.runIsFree(head, d) {
				continue
			}
			s := newSnake(id, name, color, head, d, w.cfg.StartLength)
			w.snakes[id] = s
			w.order = append(w.order, id)
			for _, c := range s.Cells {
				w.index.SetSnake(c, id)
			}
			return s, true
		}
	}
	return nil, false
}

// runIsFree checks that the whole body run behind head (opposite the
// heading) fits the grid and touches no occupant.
func (w *World) runIsFree(head grid.Cell, heading grid.Direction) bool {
	dx, dy := heading.Opposite().Delta()
	for i := 0; i < w.cfg.StartLength; i++ {
		c := grid.Cell{X: head.X + dx*i, Y: head.Y + dy*i}
		if !w.index.IsFree(c) {
			return false
		}
	}
	return true
}

func (w *World) shuffledDirections() []grid.Direction {
	dirs := []grid.Direction{grid.Up, grid.Down, grid.Left, grid.Right}
	w.rng.Shuffle(len(dirs), func(i, j int) { dirs[i], dirs[j] = dirs[j], dirs[i] })
	return dirs
}

func (w *World) pickColor(preferred string) grid.Color {
	inUse := func(c grid.Color) bool {
		for _, id := range w.order {
			if w.snakes[id].Color == c {
				return true
			}
		}
		return false
	}
	if preferred != "" {
		if c, err := grid.ParseColor(preferred); err == nil && !inUse(c) {
			return c
		}
	}
	for range grid.Palette {
		c := grid.Palette[w.nextColor%len(grid.Palette)]
		w.nextColor++
		if !inUse(c) {
			return c
		}
	}
	// Palette exhausted; reuse is acceptable.
	c := grid.Palette[w.nextColor%len(grid.Palette)]
	w.nextColor++
	return c
}
