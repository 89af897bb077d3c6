// Package admin provides maintenance operations that run outside the HTTP
// API: registering record owners and clearing imported records.
package admin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"
)

// ResetTimeout is the maximum duration for a reset.
const ResetTimeout = 30 * time.Second

// ErrInvalidOwner is returned when owner details fail validation.
var ErrInvalidOwner = errors.New("invalid owner")

// Database is the store surface used by admin operations.
type Database interface {
	CreateOwner(ctx context.Context, fullName, email string) (string, error)
	ResetRecords(ctx context.Context) (int64, error)
}

// Admin runs maintenance operations against a Database.
type Admin struct {
	db     Database
	logger *slog.Logger
}

// New creates an Admin. A nil logger uses slog.Default.
func New(db Database, logger *slog.Logger) *Admin {
	if logger == nil {
		logger = slog.Default()
	}
	return &Admin{db: db, logger: logger}
}

// ResetRecords deletes every imported project record. Owners are kept.
// This is a destructive operation.
func (a *Admin) ResetRecords(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, ResetTimeout)
	defer cancel()

	n, err := a.db.ResetRecords(ctx)
	if err != nil {
		return 0, fmt.Errorf("reset records: %w", err)
	}
	a.logger.Warn("project records reset", "deleted", n)
	return n, nil
}

// AddOwner registers an employee that records can be imported for and
// returns its id.
func (a *Admin) AddOwner(ctx context.Context, fullName, email string) (string, error) {
	fullName = strings.TrimSpace(fullName)
	if fullName == "" {
		return "", fmt.Errorf("%w: name is required", ErrInvalidOwner)
	}
	addr, err := mail.ParseAddress(strings.TrimSpace(email))
	if err != nil {
		return "", fmt.Errorf("%w: email %q: %v", ErrInvalidOwner, email, err)
	}

	id, err := a.db.CreateOwner(ctx, fullName, strings.ToLower(addr.Address))
	if err != nil {
		return "", err
	}
	a.logger.Info("owner registered", "owner_id", id, "email", addr.Address)
	return id, nil
}
