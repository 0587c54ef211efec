// A throwaway protocol exerciser: joins the server, wanders the grid
// with seeded random turns and steers away from walls. Useful for
// soaking a server with a few live snakes.
package main

import (
	"encoding/json"
	"flag"
	"log"
	"math/rand"
	"os"
	"os/signal"

	"github.com/gorilla/websocket"

	"gridsnake.io/internal/protocol"
	"gridsnake.io/internal/sim/grid"
)

func main() {
	var (
		url  = flag.String("url", "ws://localhost:8080/v1/ws", "ws url")
		name = flag.String("name", "bot", "snake name")
		seed = flag.Int64("seed", 0, "turn rng seed (0 = random)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[bot] ", log.LstdFlags|log.Lmicroseconds)
	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	join := protocol.JoinMsg{
		Type:            protocol.TypeJoin,
		ProtocolVersion: protocol.Version,
		Name:            *name,
	}
	if err := conn.WriteJSON(join); err != nil {
		logger.Fatalf("send JOIN: %v", err)
	}

	var rngSeed int64
	if *seed != 0 {
		rngSeed = *seed
	} else {
		rngSeed = rand.Int63()
	}
	rng := rand.New(rand.NewSource(rngSeed))

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)

	var (
		snakeID string
		width   int
		height  int
		wall    bool
	)
	for {
		select {
		case <-stop:
			_ = conn.WriteJSON(protocol.DisconnectMsg{Type: protocol.TypeDisconnect, ProtocolVersion: protocol.Version})
			return
		default:
		}

		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil {
			continue
		}
		switch base.Type {
		case protocol.TypeJoinAck:
			var ack protocol.JoinAckMsg
			if err := json.Unmarshal(msg, &ack); err != nil {
				continue
			}
			snakeID = ack.SnakeID
			width, height = ack.GridWidth, ack.GridHeight
			wall = ack.EdgePolicy == string(grid.EdgeWall)
			logger.Printf("JOIN_ACK snake_id=%s grid=%dx%d tick=%dms", ack.SnakeID, width, height, ack.TickIntervalMs)

		case protocol.TypeJoinReject:
			var rej protocol.JoinRejectMsg
			_ = json.Unmarshal(msg, &rej)
			logger.Fatalf("JOIN_REJECT code=%s reason=%q", rej.Code, rej.Reason)

		case protocol.TypeSnapshot:
			var snap protocol.SnapshotMsg
			if err := json.Unmarshal(msg, &snap); err != nil {
				continue
			}
			if d, ok := pickTurn(rng, &snap, snakeID, width, height, wall); ok {
				_ = conn.WriteJSON(protocol.DirectionMsg{
					Type:            protocol.TypeDirection,
					ProtocolVersion: protocol.Version,
					Heading:         d.String(),
				})
			}
		}
	}
}

// pickTurn steers away from an imminent wall and otherwise makes an
// occasional random perpendicular turn.
func pickTurn(rng *rand.Rand, snap *protocol.SnapshotMsg, snakeID string, width, height int, wall bool) (grid.Direction, bool) {
	var me *protocol.SnakeState
	for i := range snap.Snakes {
		if snap.Snakes[i].ID == snakeID {
			me = &snap.Snakes[i]
			break
		}
	}
	if me == nil || !me.Alive || len(me.Segments) < 2 {
		return 0, false
	}

	head := grid.Cell{X: me.Segments[0][0], Y: me.Segments[0][1]}
	neck := grid.Cell{X: me.Segments[1][0], Y: me.Segments[1][1]}
	heading := headingFrom(neck, head)

	safe := func(d grid.Direction) bool {
		if !wall {
			return true
		}
		dx, dy := d.Delta()
		n := grid.Cell{X: head.X + dx, Y: head.Y + dy}
		return n.X >= 0 && n.X < width && n.Y >= 0 && n.Y < height
	}

	if !safe(heading) {
		for _, d := range []grid.Direction{grid.Up, grid.Down, grid.Left, grid.Right} {
			if d != heading.Opposite() && safe(d) {
				return d, true
			}
		}
		return 0, false
	}
	if rng.Intn(8) == 0 {
		perp := []grid.Direction{grid.Left, grid.Right}
		if heading == grid.Left || heading == grid.Right {
			perp = []grid.Direction{grid.Up, grid.Down}
		}
		if d := perp[rng.Intn(2)]; safe(d) {
			return d, true
		}
	}
	return 0, false
}

func headingFrom(neck, head grid.Cell) grid.Direction {
	switch {
	case head.X > neck.X:
		return grid.Right
	case head.X < neck.X:
		return grid.Left
	case head.Y > neck.Y:
		return grid.Down
	default:
		return grid.Up
	}
}
