// Package journal keeps a durable history of training runs and their evaluation
// results in SQLite.
//
// The journal is append-only bookkeeping. It never stores the fitted pipeline itself;
// the artifact path recorded per run points at whatever was current at that time.
package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/letstravel/prospensity/metrics"
	perrors "github.com/letstravel/prospensity/pkg/errors"
)

// Run statuses.
const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// Run is one journal entry.
type Run struct {
	ID         string    `json:"id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Status     string    `json:"status"`
	Source     string    `json:"source"`
	Artifact   string    `json:"artifact"`

	// Stage and Error are set for failed runs.
	Stage string `json:"stage,omitempty"`
	Error string `json:"error,omitempty"`

	RawRows        int                   `json:"raw_rows"`
	CleanRows      int                   `json:"clean_rows"`
	ScalePosWeight float64               `json:"scale_pos_weight"`
	Metrics        *metrics.BinaryReport `json:"metrics,omitempty"`
}

// Journal provides SQLite-based persistence for run history
type Journal struct {
	db   *sql.DB
	path string
}

// Open opens or creates the journal database at path.
func Open(path string) (*Journal, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, perrors.NewPersistenceError("mkdir", dir, err)
		}
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, perrors.NewPersistenceError("open", path, err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, perrors.NewPersistenceError("open", path, err)
	}

	j := &Journal{db: db, path: path}
	if err := j.initSchema(); err != nil {
		db.Close()
		return nil, perrors.NewPersistenceError("init", path, err)
	}
	return j, nil
}

// Close closes the database connection
func (j *Journal) Close() error {
	return j.db.Close()
}

func (j *Journal) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		started_at DATETIME NOT NULL,
		finished_at DATETIME NOT NULL,
		status TEXT NOT NULL,
		source TEXT NOT NULL,
		artifact TEXT NOT NULL,
		accuracy REAL,
		f1 REAL,
		auc REAL,
		data TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
	`
	_, err := j.db.Exec(schema)
	return err
}

// Record inserts or replaces a run.
func (j *Journal) Record(ctx context.Context, r *Run) error {
	if r.ID == "" {
		return perrors.NewValidationError("id", "run id must not be empty", r.ID)
	}
	data, err := json.Marshal(r)
	if err != nil {
		return perrors.NewPersistenceError("encode", j.path, err)
	}

	var acc, f1, auc sql.NullFloat64
	if r.Metrics != nil {
		acc = sql.NullFloat64{Float64: r.Metrics.Accuracy, Valid: true}
		f1 = sql.NullFloat64{Float64: r.Metrics.F1, Valid: true}
		auc = sql.NullFloat64{Float64: r.Metrics.AUC, Valid: true}
	}

	query := `
		INSERT OR REPLACE INTO runs (id, started_at, finished_at, status, source, artifact, accuracy, f1, auc, data)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = j.db.ExecContext(ctx, query,
		r.ID,
		r.StartedAt.UTC(),
		r.FinishedAt.UTC(),
		r.Status,
		r.Source,
		r.Artifact,
		acc, f1, auc,
		string(data),
	)
	if err != nil {
		return perrors.NewPersistenceError("insert", j.path, err)
	}
	return nil
}

// Get retrieves a run by ID. The second return value is false when no run has
// that ID.
func (j *Journal) Get(ctx context.Context, id string) (*Run, bool, error) {
	var data string
	err := j.db.QueryRowContext(ctx, `SELECT data FROM runs WHERE id = ?`, id).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, perrors.NewPersistenceError("query", j.path, err)
	}
	var r Run
	if err := json.Unmarshal([]byte(data), &r); err != nil {
		return nil, false, perrors.NewPersistenceError("decode", j.path, err)
	}
	return &r, true, nil
}

// List returns up to limit runs, newest first. A non-positive limit returns all.
func (j *Journal) List(ctx context.Context, limit int) ([]*Run, error) {
	query := `SELECT data FROM runs ORDER BY started_at DESC, id`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, perrors.NewPersistenceError("query", j.path, err)
	}
	defer rows.Close()

	runs := make([]*Run, 0)
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, perrors.NewPersistenceError("scan", j.path, err)
		}
		var r Run
		if err := json.Unmarshal([]byte(data), &r); err != nil {
			return nil, perrors.NewPersistenceError("decode", j.path, err)
		}
		runs = append(runs, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, perrors.NewPersistenceError("query", j.path, err)
	}
	return runs, nil
}

// Best returns the succeeded run with the highest value of metric ("accuracy", "f1"
// or "auc"), or false when no run has one.
func (j *Journal) Best(ctx context.Context, metric string) (*Run, bool, error) {
	switch metric {
	case "accuracy", "f1", "auc":
	default:
		return nil, false, perrors.NewValidationError("metric", "must be accuracy, f1 or auc", metric)
	}
	// metric is whitelisted above
	query := fmt.Sprintf(`SELECT id FROM runs WHERE status = ? AND %s IS NOT NULL ORDER BY %s DESC, started_at DESC LIMIT 1`, metric, metric)
	var id string
	err := j.db.QueryRowContext(ctx, query, StatusSucceeded).Scan(&id)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, perrors.NewPersistenceError("query", j.path, err)
	}
	return j.Get(ctx, id)
}
