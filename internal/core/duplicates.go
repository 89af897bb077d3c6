package core

import (
	"context"
	"fmt"
	"strings"
)

// DuplicateResolver detects (owner_id, project_code) collisions for one batch.
//
// A key collides when a record with the same key is already stored for the
// owner, or when an earlier row of the same batch registered it. The
// resolver must see rows in ordinal order.
type DuplicateResolver struct {
	ownerID string
	seen    map[string]int // project code -> ordinal of the row that registered it
}

// NewDuplicateResolver returns a resolver for one owner's batch.
func NewDuplicateResolver(ownerID string) *DuplicateResolver {
	return &DuplicateResolver{
		ownerID: ownerID,
		seen:    make(map[string]int),
	}
}

// Key returns the uniqueness key for a project code.
func (d *DuplicateResolver) Key(projectCode string) string {
	return d.ownerID + "\x00" + strings.TrimSpace(projectCode)
}

// SeenInBatch reports whether an earlier row of this batch registered the
// code, and which row it was.
func (d *DuplicateResolver) SeenInBatch(projectCode string) (int, bool) {
	row, ok := d.seen[d.Key(projectCode)]
	return row, ok
}

// Check reports whether the row's key collides with the batch or with
// stored data. tx is consulted only when the batch has not seen the key.
func (d *DuplicateResolver) Check(ctx context.Context, tx BatchTx, projectCode string) (bool, error) {
	if _, ok := d.SeenInBatch(projectCode); ok {
		return true, nil
	}
	exists, err := tx.FindByOwnerAndCode(ctx, d.ownerID, projectCode)
	if err != nil {
		return false, fmt.Errorf("find by owner and code: %w", err)
	}
	return exists, nil
}

// Register records that row now owns the key. Call it after the row was
// persisted, so a row that failed for another reason does not block a
// later row with the same code.
func (d *DuplicateResolver) Register(projectCode string, row int) {
	d.seen[d.Key(projectCode)] = row
}

// duplicateFinding builds the commit finding for a key collision.
func duplicateFinding(row int, ref string) CommitFinding {
	return CommitFinding{
		Row:     row,
		Ref:     ref,
		Field:   GeneralField,
		Code:    CodeDuplicate,
		Message: MessageDuplicate,
	}
}
