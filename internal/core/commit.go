package core

// commit.go persists validated rows inside one shared transaction.
//
// Each row is attempted inside its own savepoint. A failing row rolls back
// to its savepoint and is recorded as a CommitFinding; rows before and after
// it are unaffected. With PolicyBestEffort the transaction is committed at
// the end regardless of row failures. With PolicyAtomic any row failure
// rolls back the whole transaction.

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// CommitPolicy selects how row failures affect the rest of a batch.
type CommitPolicy string

const (
	// PolicyBestEffort persists every row that can be persisted.
	PolicyBestEffort CommitPolicy = "best_effort"

	// PolicyAtomic persists nothing unless every row can be persisted.
	PolicyAtomic CommitPolicy = "atomic"
)

// ParseCommitPolicy parses a policy name.
func ParseCommitPolicy(s string) (CommitPolicy, error) {
	switch CommitPolicy(s) {
	case PolicyBestEffort, PolicyAtomic:
		return CommitPolicy(s), nil
	default:
		return "", fmt.Errorf("unknown commit policy %q", s)
	}
}

// CommitResult is what the coordinator produced for the rows it was given.
type CommitResult struct {
	Created  []CommittedRecord
	Findings []CommitFinding
}

// CommitCoordinator persists the OK rows of one batch.
type CommitCoordinator struct {
	store  RecordStore
	policy CommitPolicy
	logger *slog.Logger
}

// NewCommitCoordinator creates a coordinator.
func NewCommitCoordinator(store RecordStore, policy CommitPolicy, logger *slog.Logger) *CommitCoordinator {
	if policy == "" {
		policy = PolicyBestEffort
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CommitCoordinator{store: store, policy: policy, logger: logger}
}

// Commit persists rows for ownerID in ordinal order. rows must all be OK
// after validation. Row-level failures are returned as findings; an error
// is returned only when the shared transaction itself fails, in which case
// nothing was persisted.
func (c *CommitCoordinator) Commit(ctx context.Context, ownerID string, rows []RowOutcome) (CommitResult, error) {
	var result CommitResult
	if len(rows) == 0 {
		return result, nil
	}

	tx, err := c.store.BeginBatch(ctx)
	if err != nil {
		return CommitResult{}, fmt.Errorf("begin batch: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			if rbErr := tx.Rollback(context.WithoutCancel(ctx)); rbErr != nil {
				c.logger.Warn("rollback failed", "error", rbErr)
			}
		}
	}()

	resolver := NewDuplicateResolver(ownerID)

	for _, row := range rows {
		rec := BuildRecord(ownerID, row.Normalized)
		ref := row.Normalized.Ref

		if first, dup := resolver.SeenInBatch(rec.ProjectCode); dup {
			c.logger.Debug("duplicate code in batch",
				"row", row.Row,
				"project_code", rec.ProjectCode,
				"first_row", first,
			)
			result.Findings = append(result.Findings, duplicateFinding(row.Row, ref))
			continue
		}

		var created CommittedRecord
		err := tx.Savepoint(ctx, fmt.Sprintf("row_%d", row.Row), func(ctx context.Context) error {
			dup, err := resolver.Check(ctx, tx, rec.ProjectCode)
			if err != nil {
				return err
			}
			if dup {
				return ErrDuplicateKey
			}
			created, err = tx.CreateRecord(ctx, rec)
			return err
		})

		switch {
		case err == nil:
			created.Row = row.Row
			created.Ref = ref
			resolver.Register(rec.ProjectCode, row.Row)
			result.Created = append(result.Created, created)

		case errors.Is(err, ErrScopeBroken):
			return CommitResult{}, fmt.Errorf("row %d: %w", row.Row, err)

		case errors.Is(err, ErrDuplicateKey):
			result.Findings = append(result.Findings, duplicateFinding(row.Row, ref))

		default:
			c.logger.Warn("row commit failed",
				"row", row.Row,
				"project_code", rec.ProjectCode,
				"error", err,
			)
			result.Findings = append(result.Findings, storageFinding(row.Row, ref, err))
		}
	}

	if c.policy == PolicyAtomic && len(result.Findings) > 0 {
		return rollBackAll(result), nil
	}

	if err := tx.Commit(ctx); err != nil {
		return CommitResult{}, fmt.Errorf("commit batch: %w", err)
	}
	committed = true

	return result, nil
}

// rollBackAll converts every created record into a finding. The deferred
// rollback in Commit undoes the writes.
func rollBackAll(result CommitResult) CommitResult {
	out := CommitResult{Findings: result.Findings}
	for _, rec := range result.Created {
		out.Findings = append(out.Findings, CommitFinding{
			Row:     rec.Row,
			Ref:     rec.Ref,
			Field:   GeneralField,
			Code:    CodeRolledBack,
			Message: "not registered because another row in the batch failed",
		})
	}
	sortFindings(out.Findings)
	return out
}

// storageFinding maps a storage error to a finding. Known driver errors
// keep their specific code; anything else is reported as DB001.
func storageFinding(row int, ref string, err error) CommitFinding {
	msg := MapError(err)
	if msg.Code == CodeInternal {
		msg = UserMessage{Message: "the record could not be saved", Code: CodeStorage}
	}
	return CommitFinding{
		Row:     row,
		Ref:     ref,
		Field:   GeneralField,
		Code:    msg.Code,
		Message: msg.Message,
	}
}
