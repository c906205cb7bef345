package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"responder/playbook"
)

// SQLiteExecutionStore persists execution traces in SQLite. Step
// results are stored as a JSON column; the incident and playbook IDs
// are indexed for history queries.
type SQLiteExecutionStore struct {
	db     *SQLite
	logger *zap.SugaredLogger
}

// NewSQLiteExecutionStore creates the store and ensures its table.
func NewSQLiteExecutionStore(db *SQLite, logger *zap.SugaredLogger) (*SQLiteExecutionStore, error) {
	store := &SQLiteExecutionStore{db: db, logger: logger}
	if err := store.ensureTable(); err != nil {
		return nil, fmt.Errorf("failed to ensure executions table: %w", err)
	}
	return store, nil
}

func (s *SQLiteExecutionStore) ensureTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS playbook_executions (
		id TEXT PRIMARY KEY,
		playbook_id TEXT NOT NULL,
		incident_id TEXT NOT NULL,
		status TEXT NOT NULL,
		started_at DATETIME NOT NULL,
		completed_at DATETIME,
		current_step TEXT,
		step_results TEXT,  -- JSON object keyed by step id
		error TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_executions_incident ON playbook_executions(incident_id);
	CREATE INDEX IF NOT EXISTS idx_executions_playbook ON playbook_executions(playbook_id);
	CREATE INDEX IF NOT EXISTS idx_executions_started_at ON playbook_executions(started_at DESC);
	`

	if _, err := s.db.DB.Exec(query); err != nil {
		return fmt.Errorf("failed to create executions table: %w", err)
	}
	s.logger.Debug("Executions table ensured in SQLite")
	return nil
}

// SaveExecution inserts or replaces an execution trace.
func (s *SQLiteExecutionStore) SaveExecution(ctx context.Context, exec *playbook.Execution) error {
	resultsJSON, err := json.Marshal(exec.StepResults)
	if err != nil {
		return fmt.Errorf("failed to marshal step results: %w", err)
	}

	var completedAt interface{}
	if !exec.CompletedAt.IsZero() {
		completedAt = exec.CompletedAt.UTC()
	}

	_, err = s.db.DB.ExecContext(ctx, `
		INSERT OR REPLACE INTO playbook_executions
			(id, playbook_id, incident_id, status, started_at, completed_at, current_step, step_results, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		exec.ID.String(), exec.PlaybookID.String(), exec.IncidentID.String(),
		string(exec.Status), exec.StartedAt.UTC(), completedAt,
		exec.CurrentStep, string(resultsJSON), exec.Error)
	if err != nil {
		return fmt.Errorf("failed to save execution: %w", err)
	}
	return nil
}

// GetExecution returns one execution trace by ID.
func (s *SQLiteExecutionStore) GetExecution(ctx context.Context, id uuid.UUID) (*playbook.Execution, error) {
	row := s.db.DB.QueryRowContext(ctx, `
		SELECT id, playbook_id, incident_id, status, started_at, completed_at, current_step, step_results, error
		FROM playbook_executions WHERE id = ?`, id.String())

	exec, err := scanExecution(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrExecutionNotFound
	}
	return exec, err
}

// ListExecutions returns all execution traces, newest first.
func (s *SQLiteExecutionStore) ListExecutions(ctx context.Context) ([]*playbook.Execution, error) {
	return s.queryExecutions(ctx, `
		SELECT id, playbook_id, incident_id, status, started_at, completed_at, current_step, step_results, error
		FROM playbook_executions ORDER BY started_at DESC`)
}

// ListExecutionsForIncident returns one incident's execution history,
// newest first.
func (s *SQLiteExecutionStore) ListExecutionsForIncident(ctx context.Context, incidentID uuid.UUID) ([]*playbook.Execution, error) {
	return s.queryExecutions(ctx, `
		SELECT id, playbook_id, incident_id, status, started_at, completed_at, current_step, step_results, error
		FROM playbook_executions WHERE incident_id = ? ORDER BY started_at DESC`, incidentID.String())
}

func (s *SQLiteExecutionStore) queryExecutions(ctx context.Context, query string, args ...interface{}) ([]*playbook.Execution, error) {
	rows, err := s.db.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query executions: %w", err)
	}
	defer rows.Close()

	var execs []*playbook.Execution
	for rows.Next() {
		exec, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}
		execs = append(execs, exec)
	}
	return execs, rows.Err()
}

func scanExecution(row rowScanner) (*playbook.Execution, error) {
	var (
		exec                      playbook.Execution
		idStr, pbIDStr, incIDStr  string
		status                    string
		completedAt               sql.NullTime
		currentStep, resultsJSON  sql.NullString
		execError                 sql.NullString
	)

	err := row.Scan(&idStr, &pbIDStr, &incIDStr, &status, &exec.StartedAt,
		&completedAt, &currentStep, &resultsJSON, &execError)
	if err != nil {
		return nil, err
	}

	if exec.ID, err = uuid.Parse(idStr); err != nil {
		return nil, fmt.Errorf("invalid execution id %q: %w", idStr, err)
	}
	if exec.PlaybookID, err = uuid.Parse(pbIDStr); err != nil {
		return nil, fmt.Errorf("invalid playbook id %q: %w", pbIDStr, err)
	}
	if exec.IncidentID, err = uuid.Parse(incIDStr); err != nil {
		return nil, fmt.Errorf("invalid incident id %q: %w", incIDStr, err)
	}

	exec.Status = playbook.ExecutionStatus(status)
	if completedAt.Valid {
		exec.CompletedAt = completedAt.Time
	}
	exec.CurrentStep = currentStep.String
	exec.Error = execError.String

	exec.StepResults = make(map[string]*playbook.StepResult)
	if resultsJSON.Valid && resultsJSON.String != "" {
		if err := json.Unmarshal([]byte(resultsJSON.String), &exec.StepResults); err != nil {
			return nil, fmt.Errorf("failed to unmarshal step results: %w", err)
		}
	}
	return &exec, nil
}
