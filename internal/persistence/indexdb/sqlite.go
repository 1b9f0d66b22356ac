// Package indexdb maintains a sqlite read-model of the run: one row per
// tick, one per resolved match, one per written snapshot. Writes go through
// a buffered channel into a single writer goroutine so the sim loop never
// blocks on the database; the JSONL journals stay the source of truth.
package indexdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"
)

// TickRow summarizes one executed tick.
type TickRow struct {
	Tick    uint64 `json:"tick"`
	Digest  string `json:"digest"`
	Cmds    int    `json:"cmds"`
	Effects int    `json:"effects"`
}

// MatchRow records one resolved match group.
type MatchRow struct {
	Tick       uint64         `json:"tick"`
	Kind       string         `json:"kind"`
	Size       int            `json:"size"`
	Tier       int            `json:"tier"`
	ChainDepth int            `json:"chain_depth"`
	Merged     bool           `json:"merged"`
	Reward     map[string]int `json:"reward"`
}

// SnapshotRow records snapshot metadata.
type SnapshotRow struct {
	Tick   uint64
	Path   string
	Blocks int
}

type SQLiteIndex struct {
	db *sql.DB

	insertTick     *sql.Stmt
	insertMatch    *sql.Stmt
	insertSnapshot *sql.Stmt

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool
}

type reqKind int

const (
	reqTick reqKind = iota + 1
	reqMatch
	reqSnapshot
	reqBarrier
)

type req struct {
	kind reqKind

	tick     TickRow
	match    MatchRow
	snapshot SnapshotRow
	done     chan struct{}
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
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

	s := &SQLiteIndex{
		db: db,
		// High buffer: a deep chain reaction writes many match rows in one tick.
		ch: make(chan req, 65536),
	}

	// Prepare up front so a broken schema fails the open instead of
	// silently dropping every row of that kind later.
	if s.insertTick, err = db.Prepare(`INSERT OR REPLACE INTO ticks(tick,digest,cmds,effects,raw_json) VALUES(?,?,?,?,?)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("prepare tick insert: %w", err)
	}
	if s.insertMatch, err = db.Prepare(`INSERT OR REPLACE INTO matches(tick,seq,kind,size,tier,chain_depth,merged,reward_json) VALUES(?,?,?,?,?,?,?,?)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("prepare match insert: %w", err)
	}
	if s.insertSnapshot, err = db.Prepare(`INSERT OR REPLACE INTO snapshots(tick,path,blocks) VALUES(?,?,?)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("prepare snapshot insert: %w", err)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	// WAL is much faster for append-style workloads.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
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
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS ticks (
			tick INTEGER PRIMARY KEY,
			digest TEXT NOT NULL,
			cmds INTEGER NOT NULL,
			effects INTEGER NOT NULL,
			raw_json TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS matches (
			tick INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			kind TEXT NOT NULL,
			size INTEGER NOT NULL,
			tier INTEGER NOT NULL,
			chain_depth INTEGER NOT NULL,
			merged INTEGER NOT NULL,
			reward_json TEXT NOT NULL,
			PRIMARY KEY (tick, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_matches_kind_tick ON matches(kind, tick);`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			tick INTEGER PRIMARY KEY,
			path TEXT NOT NULL,
			blocks INTEGER NOT NULL
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		_ = s.insertTick.Close()
		_ = s.insertMatch.Close()
		_ = s.insertSnapshot.Close()
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteIndex) WriteTick(row TickRow) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- req{kind: reqTick, tick: row}:
	default:
		// Drop if the indexer falls behind; JSONL logs remain the source of truth.
	}
}

func (s *SQLiteIndex) WriteMatch(row MatchRow) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- req{kind: reqMatch, match: row}:
	default:
	}
}

func (s *SQLiteIndex) RecordSnapshot(row SnapshotRow) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- req{kind: reqSnapshot, snapshot: row}:
	default:
	}
}

// LatestSnapshot returns the newest recorded snapshot row, ok=false when
// the table is empty.
func (s *SQLiteIndex) LatestSnapshot() (SnapshotRow, bool) {
	var row SnapshotRow
	err := s.db.QueryRow(`SELECT tick, path, blocks FROM snapshots ORDER BY tick DESC LIMIT 1`).
		Scan(&row.Tick, &row.Path, &row.Blocks)
	if err != nil {
		return SnapshotRow{}, false
	}
	return row, true
}

// TickCount reports how many tick rows have been indexed.
func (s *SQLiteIndex) TickCount() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM ticks`).Scan(&n)
	return n, err
}

// MatchesForTick returns the match rows indexed for one tick, in seq order.
func (s *SQLiteIndex) MatchesForTick(tick uint64) ([]MatchRow, error) {
	rows, err := s.db.Query(
		`SELECT tick, kind, size, tier, chain_depth, merged, reward_json FROM matches WHERE tick = ? ORDER BY seq`,
		int64(tick))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []MatchRow
	for rows.Next() {
		var m MatchRow
		var merged int
		var rewardJSON string
		if err := rows.Scan(&m.Tick, &m.Kind, &m.Size, &m.Tier, &m.ChainDepth, &merged, &rewardJSON); err != nil {
			return nil, err
		}
		m.Merged = merged != 0
		_ = json.Unmarshal([]byte(rewardJSON), &m.Reward)
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 2000
		commitMaxWait = 2 * time.Second

		lastMatchTick uint64
		matchSeq      int
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}

	flushIfNeeded := func() {
		if tx == nil {
			return
		}
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait {
			commit()
		}
	}

	for r := range s.ch {
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqTick:
			b, _ := json.Marshal(r.tick)
			if _, err := tx.Stmt(s.insertTick).Exec(
				int64(r.tick.Tick),
				r.tick.Digest,
				r.tick.Cmds,
				r.tick.Effects,
				string(b),
			); err != nil {
				rollback()
				continue
			}
			opCount++

		case reqMatch:
			m := r.match
			if m.Tick != lastMatchTick {
				lastMatchTick = m.Tick
				matchSeq = 0
			}
			seq := matchSeq
			matchSeq++
			rewardJSON, _ := json.Marshal(m.Reward)
			merged := 0
			if m.Merged {
				merged = 1
			}
			if _, err := tx.Stmt(s.insertMatch).Exec(
				int64(m.Tick),
				seq,
				m.Kind,
				m.Size,
				m.Tier,
				m.ChainDepth,
				merged,
				string(rewardJSON),
			); err != nil {
				rollback()
				continue
			}
			opCount++

		case reqSnapshot:
			sn := r.snapshot
			if _, err := tx.Stmt(s.insertSnapshot).Exec(
				int64(sn.Tick),
				sn.Path,
				sn.Blocks,
			); err != nil {
				rollback()
				continue
			}
			opCount++

		case reqBarrier:
			commit()
			if r.done != nil {
				close(r.done)
			}
		}
		flushIfNeeded()
	}

	commit()
}

// Flush blocks until every write enqueued before the call is committed.
func (s *SQLiteIndex) Flush() {
	if s == nil || s.closed.Load() {
		return
	}
	done := make(chan struct{})
	s.ch <- req{kind: reqBarrier, done: done}
	<-done
}
