// Package metadatastore keeps a SQLite registry of pipeline runs.
package metadatastore

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/atlas-energia/atlas-ml/pkg/models"
)

// timeLayout sorts lexicographically in time order
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStore provides SQLite-based persistence for runs and their summaries
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the registry at dbPath
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Writes are serialized by SQLite anyway
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	var journalMode string
	if err := db.QueryRow("PRAGMA journal_mode").Scan(&journalMode); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to check journal mode: %w", err)
	}
	// In-memory databases report "memory"
	if journalMode != "wal" && journalMode != "delete" && journalMode != "memory" {
		db.Close()
		return nil, fmt.Errorf("unexpected journal mode: got %s", journalMode)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		started_at DATETIME NOT NULL,
		finished_at DATETIME,
		input_path TEXT NOT NULL,
		status TEXT NOT NULL,
		error TEXT,
		dataset_size INTEGER NOT NULL DEFAULT 0,
		accuracy REAL,
		macro_f1 REAL,
		weighted_f1 REAL,
		best_params TEXT,
		artifact_dir TEXT,
		data TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);

	CREATE TABLE IF NOT EXISTS department_summaries (
		run_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		departamento TEXT NOT NULL,
		data TEXT NOT NULL,
		PRIMARY KEY (run_id, departamento),
		FOREIGN KEY (run_id) REFERENCES runs(id)
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// SaveRun inserts or updates a run
func (s *SQLiteStore) SaveRun(run *models.RunRecord) error {
	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("failed to marshal run: %w", err)
	}
	params, err := json.Marshal(run.BestParams)
	if err != nil {
		return fmt.Errorf("failed to marshal best params: %w", err)
	}

	query := `
		INSERT OR REPLACE INTO runs (id, started_at, finished_at, input_path, status, error, dataset_size,
			accuracy, macro_f1, weighted_f1, best_params, artifact_dir, data)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	var finished any
	if run.FinishedAt != nil {
		finished = run.FinishedAt.UTC().Format(timeLayout)
	}

	_, err = s.db.Exec(query,
		run.ID,
		run.StartedAt.UTC().Format(timeLayout),
		finished,
		run.InputPath,
		string(run.Status),
		run.Error,
		run.DatasetSize,
		run.Performance.Accuracy,
		run.Performance.MacroF1,
		run.Performance.WeightedF1,
		string(params),
		run.ArtifactDir,
		string(data),
	)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	return nil
}

// GetRun retrieves a run by ID
func (s *SQLiteStore) GetRun(id string) (*models.RunRecord, error) {
	var data string
	err := s.db.QueryRow(`SELECT data FROM runs WHERE id = ?`, id).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	var run models.RunRecord
	if err := json.Unmarshal([]byte(data), &run); err != nil {
		return nil, fmt.Errorf("failed to unmarshal run: %w", err)
	}
	return &run, nil
}

// ListRuns lists runs, newest first. limit <= 0 returns all of them.
func (s *SQLiteStore) ListRuns(limit int) ([]*models.RunRecord, error) {
	query := `SELECT data FROM runs ORDER BY started_at DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := make([]*models.RunRecord, 0)
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			continue
		}
		var run models.RunRecord
		if err := json.Unmarshal([]byte(data), &run); err != nil {
			continue
		}
		runs = append(runs, &run)
	}
	return runs, rows.Err()
}

// SaveDepartmentSummaries replaces the summaries stored for a run
func (s *SQLiteStore) SaveDepartmentSummaries(runID string, summaries []models.DepartmentSummary) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM department_summaries WHERE run_id = ?`, runID); err != nil {
		return fmt.Errorf("failed to clear summaries: %w", err)
	}

	stmt, err := tx.Prepare(`INSERT INTO department_summaries (run_id, position, departamento, data) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, summary := range summaries {
		data, err := json.Marshal(summary)
		if err != nil {
			return fmt.Errorf("failed to marshal summary %s: %w", summary.Department, err)
		}
		if _, err := stmt.Exec(runID, i, summary.Department, string(data)); err != nil {
			return fmt.Errorf("failed to save summary %s: %w", summary.Department, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit summaries: %w", err)
	}
	return nil
}

// GetDepartmentSummaries returns the stored summaries of a run in their
// original order
func (s *SQLiteStore) GetDepartmentSummaries(runID string) ([]json.RawMessage, error) {
	rows, err := s.db.Query(`SELECT data FROM department_summaries WHERE run_id = ? ORDER BY position`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list summaries: %w", err)
	}
	defer rows.Close()

	out := make([]json.RawMessage, 0)
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan summary: %w", err)
		}
		out = append(out, json.RawMessage(data))
	}
	return out, rows.Err()
}
