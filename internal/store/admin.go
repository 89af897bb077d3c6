package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrEmailTaken is returned by CreateOwner when the email is already used.
var ErrEmailTaken = errors.New("email already registered")

// CreateOwner inserts an employee and returns its id.
func (s *Store) CreateOwner(ctx context.Context, fullName, email string) (string, error) {
	id := uuid.New()
	_, err := s.db.Exec(ctx,
		`INSERT INTO employees (id, full_name, email) VALUES ($1, $2, $3)`,
		pgUUID(id), fullName, email,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return "", fmt.Errorf("%w: %s", ErrEmailTaken, email)
		}
		return "", fmt.Errorf("insert owner: %w", err)
	}
	return id.String(), nil
}

// ResetRecords deletes every project record and returns how many were
// removed. Employees are kept.
func (s *Store) ResetRecords(ctx context.Context) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM project_records`)
	if err != nil {
		return 0, fmt.Errorf("delete project records: %w", err)
	}
	return tag.RowsAffected(), nil
}
