// Package results keeps a ledger of training runs in an SQLite database so
// experiments can be compared after the fact.
//
// The caller must blank-import the driver before opening a store:
//
//	import _ "modernc.org/sqlite"
package results

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	created_at    TEXT    NOT NULL,
	dataset       TEXT    NOT NULL,
	decoder       TEXT    NOT NULL,
	hidden_size   INTEGER NOT NULL,
	learning_rate REAL    NOT NULL,
	max_passes    INTEGER NOT NULL,
	patience      INTEGER NOT NULL,
	passes_run    INTEGER NOT NULL,
	status        TEXT    NOT NULL,
	train_nll     REAL,
	val_nll       REAL,
	test_nll      REAL,
	history       TEXT    NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_dataset ON runs(dataset);
`

// Run is one row of the experiment ledger.
type Run struct {
	ID           int64
	CreatedAt    time.Time
	Dataset      string
	Decoder      string
	HiddenSize   int
	LearningRate float64
	MaxPasses    int
	Patience     int
	PassesRun    int
	Status       string
	TrainNLL     float64
	ValNLL       float64
	TestNLL      float64
	History      []float64
}

// Store wraps the SQLite ledger database.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) a ledger database at path with production-safe
// pragmas applied.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("results: mkdir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("results: open: %w", err)
	}

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 10000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("results: %s: %w", p, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("results: exec schema: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("results: ping: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Insert records a completed run and returns its row id.
func (s *Store) Insert(r Run) (int64, error) {
	history, err := json.Marshal(r.History)
	if err != nil {
		return 0, fmt.Errorf("results: marshal history: %w", err)
	}

	createdAt := r.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	res, err := s.db.Exec(`
		INSERT INTO runs (created_at, dataset, decoder, hidden_size, learning_rate,
			max_passes, patience, passes_run, status, train_nll, val_nll, test_nll, history)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		createdAt.UTC().Format(time.RFC3339), r.Dataset, r.Decoder, r.HiddenSize,
		r.LearningRate, r.MaxPasses, r.Patience, r.PassesRun, r.Status,
		r.TrainNLL, r.ValNLL, r.TestNLL, string(history))
	if err != nil {
		return 0, fmt.Errorf("results: insert run: %w", err)
	}
	return res.LastInsertId()
}

// Get returns one run by id.
func (s *Store) Get(id int64) (*Run, error) {
	row := s.db.QueryRow(`
		SELECT id, created_at, dataset, decoder, hidden_size, learning_rate,
			max_passes, patience, passes_run, status, train_nll, val_nll, test_nll, history
		FROM runs WHERE id = ?`, id)
	return scanRun(row)
}

// List returns the most recent runs for a dataset, newest first. An empty
// dataset name lists across all datasets.
func (s *Store) List(dataset string, limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = 50
	}

	var rows *sql.Rows
	var err error
	if dataset == "" {
		rows, err = s.db.Query(`
			SELECT id, created_at, dataset, decoder, hidden_size, learning_rate,
				max_passes, patience, passes_run, status, train_nll, val_nll, test_nll, history
			FROM runs ORDER BY id DESC LIMIT ?`, limit)
	} else {
		rows, err = s.db.Query(`
			SELECT id, created_at, dataset, decoder, hidden_size, learning_rate,
				max_passes, patience, passes_run, status, train_nll, val_nll, test_nll, history
			FROM runs WHERE dataset = ? ORDER BY id DESC LIMIT ?`, dataset, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("results: list runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Best returns the run with the lowest test NLL for a dataset.
func (s *Store) Best(dataset string) (*Run, error) {
	row := s.db.QueryRow(`
		SELECT id, created_at, dataset, decoder, hidden_size, learning_rate,
			max_passes, patience, passes_run, status, train_nll, val_nll, test_nll, history
		FROM runs WHERE dataset = ? AND test_nll IS NOT NULL
		ORDER BY test_nll ASC LIMIT 1`, dataset)
	return scanRun(row)
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row scanner) (*Run, error) {
	var r Run
	var createdAt, history string
	err := row.Scan(&r.ID, &createdAt, &r.Dataset, &r.Decoder, &r.HiddenSize,
		&r.LearningRate, &r.MaxPasses, &r.Patience, &r.PassesRun, &r.Status,
		&r.TrainNLL, &r.ValNLL, &r.TestNLL, &history)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("results: run not found")
	}
	if err != nil {
		return nil, fmt.Errorf("results: scan run: %w", err)
	}
	if r.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("results: parse created_at: %w", err)
	}
	if err := json.Unmarshal([]byte(history), &r.History); err != nil {
		return nil, fmt.Errorf("results: parse history: %w", err)
	}
	return &r, nil
}
