package world

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"

	"gridsnake.io/internal/protocol"
	"gridsnake.io/internal/sim/encoding"
	"gridsnake.io/internal/sim/grid"
)

// buildSnapshot assembles the published view of the finished tick.
// Snakes and apples are emitted in sorted order so the bytes (and the
// digest over them) are independent of map iteration.
func (w *World) buildSnapshot() protocol.SnapshotMsg {
	snakes := make([]protocol.SnakeState, 0, len(w.order))
	for _, id := range w.order {
		s := w.snakes[id]
		segs := make([][2]int, len(s.Cells))
		for i, c := range s.Cells {
			segs[i] = [2]int{c.X, c.Y}
		}
		snakes = append(snakes, protocol.SnakeState{
			ID:       s.ID,
			Name:     s.Name,
			Segments: segs,
			Color:    s.Color.Hex(),
			Alive:    s.Alive,
			Score:    s.Score,
		})
	}
	sort.Slice(snakes, func(i, j int) bool { return snakes[i].ID < snakes[j].ID })

	apples := make([]protocol.AppleState, 0, len(w.apples))
	for _, a := range w.apples {
		apples = append(apples, protocol.AppleState{Cell: [2]int{a.Cell.X, a.Cell.Y}, Growth: a.Growth})
	}
	sort.Slice(apples, func(i, j int) bool {
		if apples[i].Cell[1] != apples[j].Cell[1] {
			return apples[i].Cell[1] < apples[j].Cell[1]
		}
		return apples[i].Cell[0] < apples[j].Cell[0]
	})

	return protocol.SnapshotMsg{
		Type:            protocol.TypeSnapshot,
		ProtocolVersion: protocol.Version,
		Tick:            w.tick.Load(),
		Snakes:          snakes,
		Apples:          apples,
	}
}

// cellsPlane flattens the occupancy index into the row-major kind plane
// used by the cells_rle snapshot field.
func (w *World) cellsPlane() []uint8 {
	plane := make([]uint8, w.bounds.Width*w.bounds.Height)
	for y := 0; y < w.bounds.Height; y++ {
		for x := 0; x < w.bounds.Width; x++ {
			plane[y*w.bounds.Width+x] = uint8(w.index.At(grid.Cell{X: x, Y: y}).Kind)
		}
	}
	return plane
}

// broadcast publishes the finished tick to every session. The snapshot
// is marshaled at most twice (plain and cells_rle variants) and each
// session gets the bytes through a non-blocking drop-oldest send, so a
// slow client can never stall the loop. Because each session channel has
// a single producer and drops only older entries, every client observes
// strictly increasing tick numbers.
func (w *World) broadcast() {
	if len(w.sessions) == 0 {
		return
	}
	snap := w.buildSnapshot()

	// Sessions whose snake is dead and awaiting respawn still receive
	// every tick, so delivery iterates sessions, not boards.
	var plain, withCells []byte
	for _, cl := range w.sessions {
		if cl == nil {
			continue
		}
		if cl.CellsRLE {
			if withCells == nil {
				rle := snap
				rle.CellsRLE = encoding.EncodeCells(w.cellsPlane())
				b, err := json.Marshal(rle)
				if err != nil {
					w.log.Printf("marshal snapshot: %v", err)
					return
				}
				withCells = b
			}
			sendLatest(cl.Out, withCells)
			continue
		}
		if plain == nil {
			b, err := json.Marshal(snap)
			if err != nil {
				w.log.Printf("marshal snapshot: %v", err)
				return
			}
			plain = b
		}
		sendLatest(cl.Out, plain)
	}
}

// stateDigest is a canonical sha256 over the published view of a tick,
// used by the journal and by determinism tests.
func (w *World) stateDigest() string {
	snap := w.buildSnapshot()
	b, err := json.Marshal(snap)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func (w *World) writeJournal(joins, leaves, directions []string) {
	if w.tickLogger == nil {
		return
	}
	entry := TickLogEntry{
		Tick:       w.tick.Load(),
		Joins:      joins,
		Leaves:     leaves,
		Directions: directions,
		Deaths:     append([]DeathRecord(nil), w.deathsThisTick...),
		Digest:     w.stateDigest(),
	}
	if err := w.tickLogger.WriteTick(entry); err != nil {
		w.log.Printf("tick journal: %v", err)
	}
}

// StepOnce advances the world by a single tick with the same ordering
// semantics as Run. It exists for deterministic tests and returns the
// tick number that was produced and its digest.
func (w *World) StepOnce(joins []JoinRequest, leaves []string, directions []DirectionEnvelope) (tick uint64, digest string) {
	w.step(joins, leaves, directions)
	return w.tick.Load(), w.stateDigest()
}
