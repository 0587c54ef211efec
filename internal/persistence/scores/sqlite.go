// Package scores keeps a queryable index of finished runs. Every death
// is one row; the leaderboard is an aggregate over them. Writes go
// through a buffered channel into a single writer goroutine so the tick
// loop never waits on the database.
package scores

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"gridsnake.io/internal/sim/world"
)

type Store struct {
	db *sql.DB

	ch   chan world.DeathRecord
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool
}

func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &Store{
		db: db,
		ch: make(chan world.DeathRecord, 4096),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	// WAL suits the append-only death stream.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS deaths (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			tick INTEGER NOT NULL,
			snake_id TEXT NOT NULL,
			name TEXT NOT NULL,
			cause TEXT NOT NULL,
			score INTEGER NOT NULL,
			recorded_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_deaths_name ON deaths(name, score);`,
		`CREATE INDEX IF NOT EXISTS idx_deaths_tick ON deaths(tick);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

// RecordDeath satisfies world.DeathRecorder. It never blocks: when the
// queue is full the record is dropped, the tick journal still has it.
func (s *Store) RecordDeath(rec world.DeathRecord) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	select {
	case s.ch <- rec:
	default:
	}
	return nil
}

// Close drains the queue, commits and shuts the database down.
func (s *Store) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *Store) loop() {
	insert, err := s.db.Prepare(`INSERT INTO deaths(tick,snake_id,name,cause,score,recorded_at) VALUES(?,?,?,?,?,?)`)
	if err != nil {
		return
	}
	defer insert.Close()

	var (
		tx      *sql.Tx
		opCount int
	)
	begin := func() bool {
		if tx != nil {
			return true
		}
		txx, err := s.db.BeginTx(context.Background(), nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return false
		}
		tx = txx
		opCount = 0
		return true
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
	}

	for rec := range s.ch {
		if !begin() {
			continue
		}
		if _, err := tx.Stmt(insert).Exec(
			int64(rec.Tick),
			rec.SnakeID,
			rec.Name,
			string(rec.Cause),
			rec.Score,
			time.Now().UTC().Format(time.RFC3339Nano),
		); err != nil {
			_ = tx.Rollback()
			tx = nil
			continue
		}
		opCount++
		// Commit whenever the queue goes idle or a batch fills up, so
		// reads see new rows promptly without a per-row fsync.
		if len(s.ch) == 0 || opCount >= 512 {
			commit()
		}
	}
	commit()
}

// ScoreRow is one leaderboard line.
type ScoreRow struct {
	Name      string `json:"name"`
	BestScore int    `json:"best_score"`
	Runs      int    `json:"runs"`
	LastTick  uint64 `json:"last_tick"`
}

// TopScores returns the leaderboard, best run per name, highest first.
func (s *Store) TopScores(ctx context.Context, limit int) ([]ScoreRow, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, MAX(score) AS best, COUNT(*) AS runs, MAX(tick) AS last_tick
		FROM deaths
		WHERE cause NOT IN ('kick', 'invariant')
		GROUP BY name
		ORDER BY best DESC, name ASC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ScoreRow
	for rows.Next() {
		var r ScoreRow
		var lastTick int64
		if err := rows.Scan(&r.Name, &r.BestScore, &r.Runs, &lastTick); err != nil {
			return nil, err
		}
		r.LastTick = uint64(lastTick)
		out = append(out, r)
	}
	return out, rows.Err()
}

// RecentDeaths returns the newest rows for debugging and the admin API.
func (s *Store) RecentDeaths(ctx context.Context, limit int) ([]world.DeathRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT tick, snake_id, name, cause, score
		FROM deaths
		ORDER BY id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []world.DeathRecord
	for rows.Next() {
		var rec world.DeathRecord
		var tick int64
		var cause string
		if err := rows.Scan(&tick, &rec.SnakeID, &rec.Name, &cause, &rec.Score); err != nil {
			return nil, err
		}
		rec.Tick = uint64(tick)
		rec.Cause = world.DeathCause(cause)
		out = append(out, rec)
	}
	return out, rows.Err()
}
