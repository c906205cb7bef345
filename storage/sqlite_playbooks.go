package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"responder/playbook"
)

// SQLitePlaybookStore persists the playbook catalog in SQLite. The
// structured fields (triggers, variables, steps, tags) are stored as
// JSON columns.
type SQLitePlaybookStore struct {
	db     *SQLite
	logger *zap.SugaredLogger
}

// NewSQLitePlaybookStore creates the store and ensures its table.
func NewSQLitePlaybookStore(db *SQLite, logger *zap.SugaredLogger) (*SQLitePlaybookStore, error) {
	store := &SQLitePlaybookStore{db: db, logger: logger}
	if err := store.ensureTable(); err != nil {
		return nil, fmt.Errorf("failed to ensure playbooks table: %w", err)
	}
	return store, nil
}

func (s *SQLitePlaybookStore) ensureTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS playbooks (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		version TEXT NOT NULL,
		description TEXT,
		owner TEXT NOT NULL,
		enabled INTEGER NOT NULL DEFAULT 1,
		triggers TEXT,   -- JSON object
		variables TEXT,  -- JSON object
		steps TEXT,      -- JSON array
		tags TEXT,       -- JSON array
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_playbooks_enabled ON playbooks(enabled);
	CREATE INDEX IF NOT EXISTS idx_playbooks_name ON playbooks(name);
	`

	if _, err := s.db.DB.Exec(query); err != nil {
		return fmt.Errorf("failed to create playbooks table: %w", err)
	}
	s.logger.Debug("Playbooks table ensured in SQLite")
	return nil
}

// SavePlaybook inserts a new playbook. The name must be unique.
func (s *SQLitePlaybookStore) SavePlaybook(ctx context.Context, pb *playbook.Playbook) error {
	return s.db.WithTransaction(func(tx *sql.Tx) error {
		var count int
		if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM playbooks WHERE name = ?", pb.Name).Scan(&count); err != nil {
			return fmt.Errorf("failed to check name uniqueness: %w", err)
		}
		if count > 0 {
			return ErrPlaybookNameExists
		}

		triggersJSON, variablesJSON, stepsJSON, tagsJSON, err := marshalPlaybookFields(pb)
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO playbooks (id, name, version, description, owner, enabled, triggers, variables, steps, tags, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			pb.ID.String(), pb.Name, pb.Version, pb.Description, pb.Owner, pb.Enabled,
			triggersJSON, variablesJSON, stepsJSON, tagsJSON,
			pb.CreatedAt.UTC(), pb.UpdatedAt.UTC())
		if err != nil {
			return fmt.Errorf("failed to insert playbook: %w", err)
		}
		return nil
	})
}

// GetPlaybook returns one playbook by ID.
func (s *SQLitePlaybookStore) GetPlaybook(ctx context.Context, id uuid.UUID) (*playbook.Playbook, error) {
	row := s.db.DB.QueryRowContext(ctx, `
		SELECT id, name, version, description, owner, enabled, triggers, variables, steps, tags, created_at, updated_at
		FROM playbooks WHERE id = ?`, id.String())

	pb, err := scanPlaybook(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPlaybookNotFound
	}
	return pb, err
}

// ListPlaybooks returns the full catalog ordered by name.
func (s *SQLitePlaybookStore) ListPlaybooks(ctx context.Context) ([]*playbook.Playbook, error) {
	rows, err := s.db.DB.QueryContext(ctx, `
		SELECT id, name, version, description, owner, enabled, triggers, variables, steps, tags, created_at, updated_at
		FROM playbooks ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query playbooks: %w", err)
	}
	defer rows.Close()

	var playbooks []*playbook.Playbook
	for rows.Next() {
		pb, err := scanPlaybook(rows)
		if err != nil {
			return nil, err
		}
		playbooks = append(playbooks, pb)
	}
	return playbooks, rows.Err()
}

// UpdatePlaybook replaces an existing playbook's row.
func (s *SQLitePlaybookStore) UpdatePlaybook(ctx context.Context, pb *playbook.Playbook) error {
	return s.db.WithTransaction(func(tx *sql.Tx) error {
		var count int
		if err := tx.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM playbooks WHERE name = ? AND id != ?", pb.Name, pb.ID.String()).Scan(&count); err != nil {
			return fmt.Errorf("failed to check name uniqueness: %w", err)
		}
		if count > 0 {
			return ErrPlaybookNameExists
		}

		triggersJSON, variablesJSON, stepsJSON, tagsJSON, err := marshalPlaybookFields(pb)
		if err != nil {
			return err
		}

		result, err := tx.ExecContext(ctx, `
			UPDATE playbooks
			SET name = ?, version = ?, description = ?, owner = ?, enabled = ?,
			    triggers = ?, variables = ?, steps = ?, tags = ?, updated_at = ?
			WHERE id = ?`,
			pb.Name, pb.Version, pb.Description, pb.Owner, pb.Enabled,
			triggersJSON, variablesJSON, stepsJSON, tagsJSON,
			pb.UpdatedAt.UTC(), pb.ID.String())
		if err != nil {
			return fmt.Errorf("failed to update playbook: %w", err)
		}

		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to check update result: %w", err)
		}
		if affected == 0 {
			return ErrPlaybookNotFound
		}
		return nil
	})
}

// DeletePlaybook removes a playbook by ID.
func (s *SQLitePlaybookStore) DeletePlaybook(ctx context.Context, id uuid.UUID) error {
	result, err := s.db.DB.ExecContext(ctx, "DELETE FROM playbooks WHERE id = ?", id.String())
	if err != nil {
		return fmt.Errorf("failed to delete playbook: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if affected == 0 {
		return ErrPlaybookNotFound
	}
	return nil
}

func marshalPlaybookFields(pb *playbook.Playbook) (triggers, variables, steps, tags string, err error) {
	t, err := json.Marshal(pb.Triggers)
	if err != nil {
		return "", "", "", "", fmt.Errorf("failed to marshal triggers: %w", err)
	}
	v, err := json.Marshal(pb.Variables)
	if err != nil {
		return "", "", "", "", fmt.Errorf("failed to marshal variables: %w", err)
	}
	st, err := json.Marshal(pb.Steps)
	if err != nil {
		return "", "", "", "", fmt.Errorf("failed to marshal steps: %w", err)
	}
	tg, err := json.Marshal(pb.Tags)
	if err != nil {
		return "", "", "", "", fmt.Errorf("failed to marshal tags: %w", err)
	}
	return string(t), string(v), string(st), string(tg), nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPlaybook(row rowScanner) (*playbook.Playbook, error) {
	var (
		pb                          playbook.Playbook
		idStr                       string
		description                 sql.NullString
		triggersJSON, variablesJSON sql.NullString
		stepsJSON, tagsJSON         sql.NullString
		createdAt, updatedAt        time.Time
	)

	err := row.Scan(&idStr, &pb.Name, &pb.Version, &description, &pb.Owner, &pb.Enabled,
		&triggersJSON, &variablesJSON, &stepsJSON, &tagsJSON, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	pb.ID, err = uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("invalid playbook id %q: %w", idStr, err)
	}
	pb.Description = description.String
	pb.CreatedAt = createdAt
	pb.UpdatedAt = updatedAt

	if triggersJSON.Valid && triggersJSON.String != "" {
		if err := json.Unmarshal([]byte(triggersJSON.String), &pb.Triggers); err != nil {
			return nil, fmt.Errorf("failed to unmarshal triggers: %w", err)
		}
	}
	if variablesJSON.Valid && variablesJSON.String != "" {
		if err := json.Unmarshal([]byte(variablesJSON.String), &pb.Variables); err != nil {
			return nil, fmt.Errorf("failed to unmarshal variables: %w", err)
		}
	}
	if stepsJSON.Valid && stepsJSON.String != "" {
		if err := json.Unmarshal([]byte(stepsJSON.String), &pb.Steps); err != nil {
			return nil, fmt.Errorf("failed to unmarshal steps: %w", err)
		}
	}
	if tagsJSON.Valid && tagsJSON.String != "" {
		if err := json.Unmarshal([]byte(tagsJSON.String), &pb.Tags); err != nil {
			return nil, fmt.Errorf("failed to unmarshal tags: %w", err)
		}
	}
	return &pb, nil
}
