package world

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"sort"
	"sync/atomic"
	"time"

	"gridsnake.io/internal/protocol"
	"gridsnake.io/internal/sim/grid"
)

// Config is the simulation surface supplied by cmd/server from tuning.
type Config struct {
	Width      int
	Height     int
	TickRateHz int

	AppleTarget int
	AppleGrowth int
	StartLength int
	EdgePolicy  grid.EdgePolicy

	MaxSessions       int
	RespawnDelayTicks uint64

	Seed int64
}

func (c Config) TickInterval() time.Duration {
	return time.Second / time.Duration(c.TickRateHz)
}

// JoinRequest asks the world to spawn a snake and bind a session to it.
// Resp is fulfilled at the next tick boundary.
type JoinRequest struct {
	Name     string
	Color    string // preferred "#RRGGBB", may be empty
	CellsRLE bool
	Out      chan []byte
	Resp     chan JoinResponse
}

type JoinResponse struct {
	Ack    *protocol.JoinAckMsg
	Reject *protocol.JoinRejectMsg
}

// DirectionEnvelope is one heading request from a session's connection.
type DirectionEnvelope struct {
	SnakeID string
	Heading grid.Direction
}

// AdminKind enumerates tick-boundary administrative operations.
type AdminKind int

const (
	AdminPause AdminKind = iota + 1
	AdminResume
	AdminKick
	AdminSetTickRate
)

type AdminCommand struct {
	Kind       AdminKind
	SnakeID    string
	TickRateHz int
	Resp       chan error // optional
}

// TickLogger receives one journal entry per tick. Implemented in
// internal/persistence/log.
type TickLogger interface {
	WriteTick(entry TickLogEntry) error
}

// DeathRecorder receives one record per snake death. Implemented in
// internal/persistence/scores.
type DeathRecorder interface {
	RecordDeath(rec DeathRecord) error
}

type TickLogEntry struct {
	Tick       uint64        `json:"tick"`
	Joins      []string      `json:"joins,omitempty"`
	Leaves     []string      `json:"leaves,omitempty"`
	Directions []string      `json:"directions,omitempty"`
	Deaths     []DeathRecord `json:"deaths,omitempty"`
	Digest     string        `json:"digest"`
}

type DeathRecord struct {
	Tick    uint64     `json:"tick"`
	SnakeID string     `json:"snake_id"`
	Name    string     `json:"name"`
	Cause   DeathCause `json:"cause"`
	Score   int        `json:"score"`
}

type sessionState struct {
	Out      chan []byte
	CellsRLE bool
}

// World is the single-threaded authoritative simulation. All state must
// be accessed only from the world loop goroutine; network handlers talk
// to it through the channels below and never touch state directly.
type World struct {
	cfg Config
	log *log.Logger

	tick atomic.Uint64
	rng  *rand.Rand

	bounds grid.Bounds
	index  *grid.Index

	snakes map[string]*Snake
	order  []string // snake ids in join order, drives deterministic iteration
	apples map[grid.Cell]*Apple

	sessions map[string]*sessionState

	// respawnAt maps a dead snake id still holding a session to the tick
	// its replacement body should spawn at; pendingRespawn keeps the
	// identity the new body takes over.
	respawnAt      map[string]uint64
	pendingRespawn map[string]respawnInfo

	inbox chan DirectionEnvelope
	join  chan JoinRequest
	leave chan string
	admin chan AdminCommand
	stop  chan struct{}

	paused       bool
	nextSnakeNum atomic.Uint64
	nextColor    int

	tickLogger TickLogger
	deaths     DeathRecorder

	// deathsThisTick accumulates records between step start and journal
	// write; reset every tick.
	deathsThisTick []DeathRecord

	// metrics is republished at the end of every step so HTTP handlers
	// can read it without touching loop-owned state.
	metrics atomic.Pointer[Metrics]
}

// Metrics is a read-only view of the world for health and metrics
// endpoints.
type Metrics struct {
	Tick       uint64  `json:"tick"`
	Snakes     int     `json:"snakes"`
	Sessions   int     `json:"sessions"`
	Apples     int     `json:"apples"`
	Paused     bool    `json:"paused"`
	TickRateHz int     `json:"tick_rate_hz"`
	StepMS     float64 `json:"step_ms"`
}

// Metrics returns the view published by the latest finished tick. Queue
// depths are sampled live; channel length is safe from any goroutine.
func (w *World) Metrics() Metrics {
	var m Metrics
	if p := w.metrics.Load(); p != nil {
		m = *p
	}
	return m
}

// QueueDepths samples the loop's channel backlogs.
func (w *World) QueueDepths() (inbox, join, leave, admin int) {
	return len(w.inbox), len(w.join), len(w.leave), len(w.admin)
}

func (w *World) publishMetrics(stepDur time.Duration) {
	w.metrics.Store(&Metrics{
		Tick:       w.tick.Load(),
		Snakes:     len(w.snakes),
		Sessions:   len(w.sessions),
		Apples:     len(w.apples),
		Paused:     w.paused,
		TickRateHz: w.cfg.TickRateHz,
		StepMS:     float64(stepDur.Microseconds()) / 1000.0,
	})
}

func New(cfg Config, logger *log.Logger) (*World, error) {
	if cfg.Width < 4 || cfg.Height < 4 {
		return nil, fmt.Errorf("grid too small: %dx%d", cfg.Width, cfg.Height)
	}
	if cfg.TickRateHz <= 0 {
		return nil, fmt.Errorf("tick rate must be positive, got %d", cfg.TickRateHz)
	}
	if cfg.StartLength < 1 {
		return nil, fmt.Errorf("start length must be at least 1, got %d", cfg.StartLength)
	}
	if cfg.EdgePolicy == "" {
		cfg.EdgePolicy = grid.EdgeWall
	}
	if logger == nil {
		logger = log.Default()
	}
	b := grid.Bounds{Width: cfg.Width, Height: cfg.Height}
	w := &World{
		cfg:            cfg,
		log:            logger,
		rng:            rand.New(rand.NewSource(cfg.Seed)),
		bounds:         b,
		index:          grid.NewIndex(b),
		snakes:         map[string]*Snake{},
		apples:         map[grid.Cell]*Apple{},
		sessions:       map[string]*sessionState{},
		respawnAt:      map[string]uint64{},
		pendingRespawn: map[string]respawnInfo{},
		inbox:          make(chan DirectionEnvelope, 1024),
		join:           make(chan JoinRequest, 64),
		leave:          make(chan string, 64),
		admin:          make(chan AdminCommand, 16),
		stop:           make(chan struct{}),
	}
	return w, nil
}

func (w *World) SetTickLogger(l TickLogger)       { w.tickLogger = l }
func (w *World) SetDeathRecorder(r DeathRecorder) { w.deaths = r }

func (w *World) Inbox() chan<- DirectionEnvelope { return w.inbox }
func (w *World) Join() chan<- JoinRequest        { return w.join }
func (w *World) Leave() chan<- string            { return w.leave }
func (w *World) Admin() chan<- AdminCommand      { return w.admin }

func (w *World) CurrentTick() uint64 { return w.tick.Load() }

// Run owns the fixed-cadence loop. Network goroutines only ever feed the
// channels; every mutation happens here, between two ticker fires.
func (w *World) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.cfg.TickInterval())
	defer ticker.Stop()

	var pendingJoins []JoinRequest
	var pendingLeaves []string
	var pendingDirections []DirectionEnvelope
	var pendingAdmin []AdminCommand

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stop:
			return nil
		case req := <-w.join:
			pendingJoins = append(pendingJoins, req)
		case id := <-w.leave:
			pendingLeaves = append(pendingLeaves, id)
		case env := <-w.inbox:
			pendingDirections = append(pendingDirections, env)
		case cmd := <-w.admin:
			pendingAdmin = append(pendingAdmin, cmd)
		case <-ticker.C:
			newRate := w.applyAdmin(pendingAdmin)
			w.step(pendingJoins, pendingLeaves, pendingDirections)
			pendingJoins = pendingJoins[:0]
			pendingLeaves = pendingLeaves[:0]
			pendingDirections = pendingDirections[:0]
			pendingAdmin = pendingAdmin[:0]
			if newRate > 0 {
				ticker.Reset(time.Second / time.Duration(newRate))
			}
		}
	}
}

func (w *World) Stop() { close(w.stop) }

// applyAdmin runs queued administrative commands at the tick boundary,
// preserving the single-writer invariant. It returns a new tick rate in
// Hz when one was requested, 0 otherwise.
func (w *World) applyAdmin(cmds []AdminCommand) int {
	newRate := 0
	for _, cmd := range cmds {
		var err error
		switch cmd.Kind {
		case AdminPause:
			w.paused = true
			w.log.Printf("paused at tick %d", w.tick.Load())
		case AdminResume:
			w.paused = false
			w.log.Printf("resumed at tick %d", w.tick.Load())
		case AdminKick:
			err = w.kickSnake(cmd.SnakeID)
		case AdminSetTickRate:
			if cmd.TickRateHz <= 0 || cmd.TickRateHz > 240 {
				err = fmt.Errorf("bad tick rate %d", cmd.TickRateHz)
			} else {
				w.cfg.TickRateHz = cmd.TickRateHz
				newRate = cmd.TickRateHz
				w.log.Printf("tick rate set to %dHz", cmd.TickRateHz)
			}
		default:
			err = fmt.Errorf("unknown admin command %d", cmd.Kind)
		}
		if cmd.Resp != nil {
			cmd.Resp <- err
		}
	}
	return newRate
}

func (w *World) kickSnake(id string) error {
	s := w.snakes[id]
	if s == nil {
		if _, waiting := w.respawnAt[id]; !waiting {
			return fmt.Errorf("snake %s not found", id)
		}
	}
	if s != nil {
		s.kill(DeathKick)
		w.recordDeath(s)
		w.removeSnake(id)
	}
	delete(w.respawnAt, id)
	delete(w.pendingRespawn, id)
	w.dropSession(id)
	w.log.Printf("kicked snake %s", id)
	return nil
}

// dropSession detaches and closes a session's out channel. The transport
// writer treats the close as an order to tear the connection down.
func (w *World) dropSession(id string) {
	if cl := w.sessions[id]; cl != nil {
		close(cl.Out)
		delete(w.sessions, id)
	}
}

// removeSnake takes a body off the board. The session, if any, stays.
func (w *World) removeSnake(id string) {
	if _, ok := w.snakes[id]; !ok {
		return
	}
	delete(w.snakes, id)
	for i, sid := range w.order {
		if sid == id {
			w.order = append(w.order[:i], w.order[i+1:]...)
			break
		}
	}
}

// recordDeath runs while a tick is being produced, before the counter
// increments, so the record carries the tick about to be published.
func (w *World) recordDeath(s *Snake) {
	rec := DeathRecord{
		Tick:    w.tick.Load() + 1,
		SnakeID: s.ID,
		Name:    s.Name,
		Cause:   s.Cause,
		Score:   s.Score,
	}
	w.deathsThisTick = append(w.deathsThisTick, rec)
	if w.deaths != nil {
		if err := w.deaths.RecordDeath(rec); err != nil {
			w.log.Printf("record death %s: %v", s.ID, err)
		}
	}
}

// orderedRespawnIDs returns the respawn queue in sorted id order so the
// seeded placement stream stays deterministic.
func (w *World) orderedRespawnIDs() []string {
	ids := make([]string, 0, len(w.respawnAt))
	for id := range w.respawnAt {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// sendLatest delivers b without ever blocking the loop: if the session's
// channel is full, the oldest queued snapshot is dropped to make room.
func sendLatest(ch chan []byte, b []byte) {
	select {
	case ch <- b:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- b:
	default:
	}
}
