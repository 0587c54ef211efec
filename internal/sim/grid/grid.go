// Package grid holds the bounded coordinate space of the game and the
// occupancy read model derived from it. Nothing in this package mutates
// shared state; the world loop owns every Index it builds.
package grid

import (
	"fmt"
	"strings"
)

// Cell is one grid coordinate. (0,0) is the top-left corner; x grows to
// the right, y grows downward.
type Cell struct {
	X int `json:"x"`
	Y int `json:"y"`
}

func (c Cell) String() string { return fmt.Sprintf("(%d,%d)", c.X, c.Y) }

// Direction is one of the four cardinal headings.
type Direction uint8

const (
	Up Direction = iota
	Down
	Left
	Right
)

var directionNames = [...]string{"up", "down", "left", "right"}

func (d Direction) String() string {
	if int(d) < len(directionNames) {
		return directionNames[d]
	}
	return "invalid"
}

// Opposite returns the exact reverse heading.
func (d Direction) Opposite() Direction {
	switch d {
	case Up:
		return Down
	case Down:
		return Up
	case Left:
		return Right
	default:
		return Left
	}
}

// Delta returns the unit offset of one step along d.
func (d Direction) Delta() (dx, dy int) {
	switch d {
	case Up:
		return 0, -1
	case Down:
		return 0, 1
	case Left:
		return -1, 0
	default:
		return 1, 0
	}
}

// ParseDirection decodes a wire heading string.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "up":
		return Up, nil
	case "down":
		return Down, nil
	case "left":
		return Left, nil
	case "right":
		return Right, nil
	}
	return Up, fmt.Errorf("unknown direction %q", s)
}

// EdgePolicy controls what happens at grid boundaries.
type EdgePolicy string

const (
	// EdgeWall treats the boundary as lethal walls.
	EdgeWall EdgePolicy = "wall"
	// EdgeWrap wraps coordinates around to the opposite edge.
	EdgeWrap EdgePolicy = "wrap"
)

func ParseEdgePolicy(s string) (EdgePolicy, error) {
	switch EdgePolicy(strings.ToLower(strings.TrimSpace(s))) {
	case EdgeWall:
		return EdgeWall, nil
	case EdgeWrap:
		return EdgeWrap, nil
	}
	return EdgeWall, fmt.Errorf("unknown edge policy %q", s)
}

// Bounds is the playable area, [0,Width) x [0,Height).
type Bounds struct {
	Width  int
	Height int
}

func (b Bounds) Contains(c Cell) bool {
	return c.X >= 0 && c.X < b.Width && c.Y >= 0 && c.Y < b.Height
}

// Neighbor returns the cell one step from c along d. Under EdgeWall the
// second return is false when the step leaves the grid; under EdgeWrap it
// is always true.
func (b Bounds) Neighbor(c Cell, d Direction, policy EdgePolicy) (Cell, bool) {
	dx, dy := d.Delta()
	n := Cell{X: c.X + dx, Y: c.Y + dy}
	if b.Contains(n) {
		return n, true
	}
	if policy != EdgeWrap {
		return Cell{}, false
	}
	n.X = (n.X + b.Width) % b.Width
	n.Y = (n.Y + b.Height) % b.Height
	return n, true
}

// Kind classifies what occupies a cell.
type Kind uint8

const (
	Empty Kind = iota
	SnakeSegment
	AppleKind
)

// Occupant is the value stored in the occupancy index. SnakeID is set
// only for SnakeSegment occupants.
type Occupant struct {
	Kind    Kind
	SnakeID string
}

// Index maps cells to their occupants. It is rebuilt by the tick loop
// after every mutation pass; readers outside the loop only ever see a
// finished index.
type Index struct {
	bounds Bounds
	cells  map[Cell]Occupant
}

func NewIndex(b Bounds) *Index {
	return &Index{bounds: b, cells: make(map[Cell]Occupant, b.Width*b.Height/4)}
}

func (ix *Index) Bounds() Bounds { return ix.bounds }

// Reset clears all occupants, keeping the allocated map.
func (ix *Index) Reset() {
	for c := range ix.cells {
		delete(ix.cells, c)
	}
}

func (ix *Index) SetSnake(c Cell, snakeID string) {
	ix.cells[c] = Occupant{Kind: SnakeSegment, SnakeID: snakeID}
}

func (ix *Index) SetApple(c Cell) {
	ix.cells[c] = Occupant{Kind: AppleKind}
}

func (ix *Index) Clear(c Cell) {
	delete(ix.cells, c)
}

// At returns the occupant of c. Out-of-bounds cells report Empty; the
// caller is expected to have bounds-checked first.
func (ix *Index) At(c Cell) Occupant {
	return ix.cells[c]
}

// IsFree reports whether no snake segment and no apple occupies c.
func (ix *Index) IsFree(c Cell) bool {
	if !ix.bounds.Contains(c) {
		return false
	}
	_, ok := ix.cells[c]
	return !ok
}

// FreeCells returns every unoccupied cell in row-major order. The stable
// order keeps seeded spawn selection deterministic.
func (ix *Index) FreeCells() []Cell {
	free := make([]Cell, 0, ix.bounds.Width*ix.bounds.Height-len(ix.cells))
	for y := 0; y < ix.bounds.Height; y++ {
		for x := 0; x < ix.bounds.Width; x++ {
			c := Cell{X: x, Y: y}
			if _, ok := ix.cells[c]; !ok {
				free = append(free, c)
			}
		}
	}
	return free
}

// Occupied returns how many cells hold an occupant.
func (ix *Index) Occupied() int { return len(ix.cells) }
