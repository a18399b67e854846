package indexdb

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"epiabm.ai/internal/persistence/snapshot"
	"epiabm.ai/internal/sim/abm"
	"epiabm.ai/internal/sim/params"
	"epiabm.ai/internal/sim/tuning"
)

// SQLiteIndex is a queryable read model of runs, steps and snapshots. The step
// log stays the source of truth; writes are queued and dropped under pressure.
type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropStep     atomic.Uint64
	dropSnapshot atomic.Uint64
	dropArchive  atomic.Uint64
}

type reqKind int

const (
	reqStep reqKind = iota + 1
	reqSnapshot
	reqArchive
)

type req struct {
	kind reqKind

	step     abm.StepLogEntry
	snapshot snapshotRow
	archive  archiveRow
}

type snapshotRow struct {
	RunID  string
	Step   uint64
	Time   float64
	Path   string
	Seed   uint64
	Agents int
}

type archiveRow struct {
	RunID      string
	Step       uint64
	Path       string
	RecordedAt string
}

// RunInfo describes a run when it starts.
type RunInfo struct {
	RunID        string
	Seed         uint64
	Mode         string
	Dt           float64
	Steps        int
	Agents       int
	ParamsDigest string
	ResumedFrom  string
}

type QueueStats struct {
	QueueDepth        int
	QueueCapacity     int
	DropStepTotal     uint64
	DropSnapshotTotal uint64
	DropArchiveTotal  uint64
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
		ch: make(chan req, 65536),
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
		`CREATE TABLE IF NOT EXISTS params (
			name TEXT PRIMARY KEY,
			digest TEXT NOT NULL,
			body TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			seed INTEGER NOT NULL,
			mode TEXT NOT NULL,
			dt REAL NOT NULL,
			steps INTEGER NOT NULL,
			agents INTEGER NOT NULL,
			params_digest TEXT NOT NULL,
			resumed_from TEXT,
			started_at TEXT NOT NULL,
			finished_at TEXT,
			status TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS steps (
			run_id TEXT NOT NULL,
			step INTEGER NOT NULL,
			time REAL NOT NULL,
			day INTEGER NOT NULL,
			digest TEXT NOT NULL,
			susceptible INTEGER NOT NULL,
			exposed INTEGER NOT NULL,
			symptomatic INTEGER NOT NULL,
			recovered INTEGER NOT NULL,
			dead INTEGER NOT NULL,
			hospitalized INTEGER NOT NULL,
			infected_total INTEGER NOT NULL,
			died_total INTEGER NOT NULL,
			tested_total INTEGER NOT NULL,
			positive_total INTEGER NOT NULL,
			vaccinated_total INTEGER NOT NULL,
			raw_json TEXT NOT NULL,
			PRIMARY KEY (run_id, step)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_steps_run_day ON steps(run_id, day);`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			run_id TEXT NOT NULL,
			step INTEGER NOT NULL,
			time REAL NOT NULL,
			path TEXT NOT NULL,
			seed INTEGER NOT NULL,
			agents INTEGER NOT NULL,
			PRIMARY KEY (run_id, step)
		);`,
		`CREATE TABLE IF NOT EXISTS archives (
			run_id TEXT NOT NULL,
			step INTEGER NOT NULL,
			snapshot_path TEXT NOT NULL,
			recorded_at TEXT NOT NULL,
			PRIMARY KEY (run_id, step)
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
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteIndex) Stats() QueueStats {
	return QueueStats{
		QueueDepth:        len(s.ch),
		QueueCapacity:     cap(s.ch),
		DropStepTotal:     s.dropStep.Load(),
		DropSnapshotTotal: s.dropSnapshot.Load(),
		DropArchiveTotal:  s.dropArchive.Load(),
	}
}

// WriteStep queues a step row. It never blocks.
func (s *SQLiteIndex) WriteStep(entry abm.StepLogEntry) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	select {
	case s.ch <- req{kind: reqStep, step: entry}:
	default:
		// Drop if the indexer falls behind; JSONL logs remain the source of truth.
		s.dropStep.Add(1)
	}
	return nil
}

func (s *SQLiteIndex) RecordSnapshot(path string, snap snapshot.SnapshotV1) {
	if s == nil || s.closed.Load() {
		return
	}
	r := snapshotRow{
		RunID:  snap.Header.RunID,
		Step:   snap.Header.Step,
		Time:   snap.Header.Time,
		Path:   path,
		Seed:   snap.Seed,
		Agents: len(snap.Agents),
	}
	select {
	case s.ch <- req{kind: reqSnapshot, snapshot: r}:
	default:
		s.dropSnapshot.Add(1)
	}
}

func (s *SQLiteIndex) RecordArchive(runID string, step uint64, archivedSnapshotPath string) {
	if s == nil || s.closed.Load() || archivedSnapshotPath == "" {
		return
	}
	r := archiveRow{
		RunID:      runID,
		Step:       step,
		Path:       archivedSnapshotPath,
		RecordedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}
	select {
	case s.ch <- req{kind: reqArchive, archive: r}:
	default:
		s.dropArchive.Add(1)
	}
}

// StartRun records a run synchronously, before any of its steps are queued.
func (s *SQLiteIndex) StartRun(r RunInfo) error {
	if s == nil {
		return nil
	}
	_, err := s.db.Exec(`INSERT OR REPLACE INTO runs(run_id,seed,mode,dt,steps,agents,params_digest,resumed_from,started_at,status) VALUES(?,?,?,?,?,?,?,?,?,?)`,
		r.RunID, int64(r.Seed), r.Mode, r.Dt, r.Steps, r.Agents, r.ParamsDigest, r.ResumedFrom,
		time.Now().UTC().Format(time.RFC3339Nano), "running")
	return err
}

// FinishRun marks a run done. Call it after Close has drained the queue or
// accept that late steps may land after the status change.
func (s *SQLiteIndex) FinishRun(runID, status string) error {
	if s == nil {
		return nil
	}
	_, err := s.db.Exec(`UPDATE runs SET finished_at=?, status=? WHERE run_id=?`,
		time.Now().UTC().Format(time.RFC3339Nano), status, runID)
	return err
}

// UpsertParams stores the parameter file and the applied run configuration.
func (s *SQLiteIndex) UpsertParams(p *params.Params, tune tuning.Tuning) error {
	if s == nil {
		return nil
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)

	type kv struct {
		name   string
		digest string
		body   []byte
	}
	var rows []kv
	if p != nil && len(p.Raw) > 0 {
		rows = append(rows, kv{name: "params", digest: p.Digest, body: p.Raw})
	}
	{
		// Tuning: store the values we actually apply (canonical JSON).
		b, _ := json.Marshal(tune)
		sum := sha256.Sum256(b)
		rows = append(rows, kv{name: "tuning", digest: hex.EncodeToString(sum[:]), body: b})
	}

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`); err != nil {
		return err
	}
	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO params(name,digest,body,updated_at) VALUES(?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, r := range rows {
		if _, err := stmt.Exec(r.name, r.digest, string(r.body), now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertStep, _ := s.db.Prepare(`INSERT OR REPLACE INTO steps(run_id,step,time,day,digest,susceptible,exposed,symptomatic,recovered,dead,hospitalized,infected_total,died_total,tested_total,positive_total,vaccinated_total,raw_json) VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`)
	insertSnapshot, _ := s.db.Prepare(`INSERT OR REPLACE INTO snapshots(run_id,step,time,path,seed,agents) VALUES(?,?,?,?,?,?)`)
	insertArchive, _ := s.db.Prepare(`INSERT OR REPLACE INTO archives(run_id,step,snapshot_path,recorded_at) VALUES(?,?,?,?)`)
	defer func() {
		for _, st := range []*sql.Stmt{insertStep, insertSnapshot, insertArchive} {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 2000
		commitMaxWait = 2 * time.Second
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
	exec := func(st *sql.Stmt, args ...any) {
		if st == nil {
			return
		}
		if _, err := tx.Stmt(st).Exec(args...); err != nil {
			rollback()
			return
		}
		opCount++
	}

	for r := range s.ch {
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqStep:
			e := r.step
			c, t := e.Compartments, e.Totals
			b, _ := json.Marshal(e)
			exec(insertStep, e.RunID, int64(e.Step), e.Time, e.Day, e.Digest,
				c.Susceptible, c.Exposed, c.Symptomatic, c.Recovered, c.Dead, c.Hospitalized,
				t.Infected, t.Died, t.Tested, t.Positive, t.Vaccinated, string(b))
		case reqSnapshot:
			sn := r.snapshot
			exec(insertSnapshot, sn.RunID, int64(sn.Step), sn.Time, sn.Path, int64(sn.Seed), sn.Agents)
		case reqArchive:
			a := r.archive
			exec(insertArchive, a.RunID, int64(a.Step), a.Path, a.RecordedAt)
		}
		if tx != nil && (opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait) {
			commit()
		}
	}

	commit()
}
