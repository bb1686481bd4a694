package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Reugito/Create-View-in-Mongo-DB/internal/domain"

	"github.com/google/uuid"
)

// RunStore implements domain.RebuildRunStore.
type RunStore struct {
	db *DB
}

// NewRunStore creates a new RunStore.
func NewRunStore(db *DB) *RunStore {
	return &RunStore{db: db}
}

var _ domain.RebuildRunStore = (*RunStore)(nil)

const runColumns = `id, view_name, anchor, collections_json, fields_json, strategy,
	stage_count, dropped, started_at, finished_at, status, error`

func (s *RunStore) CreateRun(run *domain.RebuildRun) error {
	run.ID = uuid.New().String()
	colls, _ := json.Marshal(run.Collections)
	fields, _ := json.Marshal(run.Fields)

	dropped := 0
	if run.Dropped {
		dropped = 1
	}

	_, err := s.db.conn.Exec(s.db.rebind(
		`INSERT INTO rebuild_runs (`+runColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		run.ID, run.ViewName, run.Anchor, string(colls), string(fields), run.Strategy,
		run.StageCount, dropped, run.StartedAt.UTC(), run.FinishedAt.UTC(), string(run.Status), run.Error,
	)
	if err != nil {
		return fmt.Errorf("insert rebuild run: %w", err)
	}
	return nil
}

// ListRuns returns the newest runs for a view first.
func (s *RunStore) ListRuns(viewName string, limit int) ([]domain.RebuildRun, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.conn.Query(s.db.rebind(
		`SELECT `+runColumns+` FROM rebuild_runs
		 WHERE view_name = ? ORDER BY started_at DESC LIMIT ?`),
		viewName, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []domain.RebuildRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// LastSuccessful returns the newest successful run, or nil if none.
func (s *RunStore) LastSuccessful(viewName string) (*domain.RebuildRun, error) {
	row := s.db.conn.QueryRow(s.db.rebind(
		`SELECT `+runColumns+` FROM rebuild_runs
		 WHERE view_name = ? AND status = ? ORDER BY started_at DESC LIMIT 1`),
		viewName, string(domain.RunSuccess),
	)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return run, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (*domain.RebuildRun, error) {
	var (
		run           domain.RebuildRun
		colls, fields string
		status        string
		dropped       int
	)
	if err := sc.Scan(
		&run.ID, &run.ViewName, &run.Anchor, &colls, &fields, &run.Strategy,
		&run.StageCount, &dropped, &run.StartedAt, &run.FinishedAt, &status, &run.Error,
	); err != nil {
		return nil, err
	}
	json.Unmarshal([]byte(colls), &run.Collections)
	json.Unmarshal([]byte(fields), &run.Fields)
	run.Dropped = dropped != 0
	run.Status = domain.RunStatus(status)
	return &run, nil
}
