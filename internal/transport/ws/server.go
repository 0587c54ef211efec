// Package ws exposes the game protocol over a WebSocket endpoint. Each
// connection owns exactly one snake session: a JOIN handshake, then
// DIRECTION messages inbound and SNAPSHOT frames outbound until either
// side disconnects.
package ws

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"gridsnake.io/internal/protocol"
	"gridsnake.io/internal/sim/grid"
	"gridsnake.io/internal/sim/world"
)

// Liveness controls the ping cadence and how many missed pongs tear a
// connection down.
type Liveness struct {
	PingInterval time.Duration
	PongMisses   int
}

func (l Liveness) readDeadline() time.Duration {
	misses := l.PongMisses
	if misses < 1 {
		misses = 1
	}
	return l.PingInterval * time.Duration(misses+1)
}

type Server struct {
	world    *world.World
	log      *log.Logger
	liveness Liveness

	upgrader websocket.Upgrader
}

func NewServer(w *world.World, liveness Liveness, logger *log.Logger) *Server {
	if liveness.PingInterval <= 0 {
		liveness.PingInterval = 20 * time.Second
	}
	return &Server{
		world:    w,
		log:      logger,
		liveness: liveness,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		snakeID, out := s.handshake(conn)
		if snakeID == "" {
			return
		}

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		// Writer goroutine. A closed out channel is the world ordering
		// the connection down (kick); closing the conn unblocks the
		// reader below.
		go func() {
			pings := time.NewTicker(s.liveness.PingInterval)
			defer pings.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-pings.C:
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
						cancel()
						return
					}
				case b, ok := <-out:
					if !ok {
						_ = conn.WriteControl(websocket.CloseMessage,
							websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed"),
							time.Now().Add(time.Second))
						conn.Close()
						return
					}
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		deadline := s.liveness.readDeadline()
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(deadline))
		})

		// Reader loop. A message that fails to parse as the protocol is
		// a broken client; the connection is closed rather than limped
		// along.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(deadline))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				cancel()
				break
			}
			base, err := protocol.DecodeBase(msg)
			if err != nil {
				s.closeBadRequest(conn, "unparseable message")
				break
			}
			switch base.Type {
			case protocol.TypeDirection:
				var dm protocol.DirectionMsg
				if err := json.Unmarshal(msg, &dm); err != nil {
					s.closeBadRequest(conn, "bad DIRECTION payload")
					break
				}
				d, err := grid.ParseDirection(dm.Heading)
				if err != nil {
					s.closeBadRequest(conn, "bad heading")
					break
				}
				s.world.Inbox() <- world.DirectionEnvelope{SnakeID: snakeID, Heading: d}
				continue
			case protocol.TypeDisconnect:
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"),
					time.Now().Add(time.Second))
			default:
				s.closeBadRequest(conn, "unexpected message type "+base.Type)
			}
			break
		}

		s.world.Leave() <- snakeID
	}
}

// handshake consumes the single JOIN message and completes it against
// the world. An empty snakeID return means the connection is already
// dealt with and should simply be dropped.
func (s *Server) handshake(conn *websocket.Conn) (snakeID string, out chan []byte) {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return "", nil
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeJoin {
		s.rejectAndClose(conn, protocol.ErrProtoBadRequest, "expected JOIN")
		return "", nil
	}
	var join protocol.JoinMsg
	if err := json.Unmarshal(msg, &join); err != nil {
		s.rejectAndClose(conn, protocol.ErrProtoBadRequest, "bad JOIN payload")
		return "", nil
	}
	if join.ProtocolVersion != protocol.Version {
		s.rejectAndClose(conn, protocol.ErrProtoBadRequest, "unsupported protocol_version")
		return "", nil
	}

	// Snapshot queue of 2: the current frame plus one in flight. The
	// world drops the oldest when a client falls behind.
	out = make(chan []byte, 2)
	respCh := make(chan world.JoinResponse, 1)
	s.world.Join() <- world.JoinRequest{
		Name:     join.Name,
		Color:    join.Color,
		CellsRLE: join.Capabilities.CellsRLE,
		Out:      out,
		Resp:     respCh,
	}
	resp := <-respCh

	if resp.Reject != nil {
		b, _ := json.Marshal(resp.Reject)
		_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		_ = conn.WriteMessage(websocket.TextMessage, b)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, resp.Reject.Code),
			time.Now().Add(time.Second))
		return "", nil
	}

	b, err := json.Marshal(resp.Ack)
	if err != nil {
		return "", nil
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
		// The session is registered; undo it so the slot frees up.
		s.world.Leave() <- resp.Ack.SnakeID
		return "", nil
	}
	return resp.Ack.SnakeID, out
}

func (s *Server) rejectAndClose(conn *websocket.Conn, code, reason string) {
	msg := protocol.JoinRejectMsg{
		Type:            protocol.TypeJoinReject,
		ProtocolVersion: protocol.Version,
		Code:            code,
		Reason:          reason,
	}
	if b, err := json.Marshal(msg); err == nil {
		_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		_ = conn.WriteMessage(websocket.TextMessage, b)
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason),
		time.Now().Add(time.Second))
}

func (s *Server) closeBadRequest(conn *websocket.Conn, reason string) {
	s.log.Printf("closing connection: %s", reason)
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason),
		time.Now().Add(time.Second))
}
