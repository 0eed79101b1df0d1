package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mpataki/cadence/internal/models"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when no archived run has the requested id.
var ErrNotFound = errors.New("archived run not found")

type Storage struct {
	db *sql.DB
}

func New(dbPath string) (*Storage, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	s := &Storage{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		run_type TEXT NOT NULL,
		mode TEXT NOT NULL,
		status TEXT NOT NULL,
		progress INTEGER NOT NULL,
		error TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL,
		started_at TIMESTAMP,
		finished_at TIMESTAMP,
		steps TEXT NOT NULL,
		logs TEXT NOT NULL,
		evidence TEXT NOT NULL,
		exceptions TEXT NOT NULL,
		insights TEXT NOT NULL,
		archived_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
	CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// SaveRun archives a snapshot, replacing any earlier copy with the same id.
func (s *Storage) SaveRun(snap *models.RunSnapshot) error {
	blobs, err := marshalAll(snap.Steps, snap.Logs, snap.Evidence, snap.Exceptions, snap.Insights)
	if err != nil {
		return fmt.Errorf("encode run %s: %w", snap.ID, err)
	}

	_, err = s.db.Exec(
		`INSERT OR REPLACE INTO runs
		 (id, run_type, mode, status, progress, error, created_at, started_at, finished_at, steps, logs, evidence, exceptions, insights)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		snap.ID, snap.RunType, snap.Mode, snap.Status, snap.Progress, snap.Error,
		snap.CreatedAt, nullTime(snap.StartedAt), nullTime(snap.FinishedAt),
		blobs[0], blobs[1], blobs[2], blobs[3], blobs[4],
	)
	return err
}

const selectRun = `SELECT id, run_type, mode, status, progress, error, created_at, started_at, finished_at,
	steps, logs, evidence, exceptions, insights FROM runs`

func (s *Storage) GetRun(id string) (*models.RunSnapshot, error) {
	row := s.db.QueryRow(selectRun+` WHERE id = ?`, id)

	snap, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return snap, err
}

// ListRuns returns archived runs, newest first. A non-positive limit
// returns all of them.
func (s *Storage) ListRuns(limit int) ([]*models.RunSnapshot, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.Query(selectRun+` ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*models.RunSnapshot
	for rows.Next() {
		snap, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, snap)
	}

	return runs, rows.Err()
}

func (s *Storage) DeleteRun(id string) error {
	result, err := s.db.Exec(`DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*models.RunSnapshot, error) {
	var snap models.RunSnapshot
	var startedAt, finishedAt sql.NullTime
	var steps, logs, evidence, exceptions, insights string

	err := row.Scan(
		&snap.ID, &snap.RunType, &snap.Mode, &snap.Status, &snap.Progress, &snap.Error,
		&snap.CreatedAt, &startedAt, &finishedAt,
		&steps, &logs, &evidence, &exceptions, &insights,
	)
	if err != nil {
		return nil, err
	}

	if startedAt.Valid {
		snap.StartedAt = &startedAt.Time
	}
	if finishedAt.Valid {
		snap.FinishedAt = &finishedAt.Time
	}

	fields := []struct {
		raw  string
		dest any
	}{
		{steps, &snap.Steps},
		{logs, &snap.Logs},
		{evidence, &snap.Evidence},
		{exceptions, &snap.Exceptions},
		{insights, &snap.Insights},
	}
	for _, f := range fields {
		if err := json.Unmarshal([]byte(f.raw), f.dest); err != nil {
			return nil, fmt.Errorf("decode run %s: %w", snap.ID, err)
		}
	}

	return &snap, nil
}

func marshalAll(values ...any) ([]string, error) {
	out := make([]string, len(values))
	for i, v := range values {
		data, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		out[i] = string(data)
	}
	return out, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// Helper to format time for display
func FormatTimeAgo(t time.Time) string {
	return formatTimeAgo(t, time.Now())
}

func formatTimeAgo(t, now time.Time) string {
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return t.Format("Jan 2")
	}
}
