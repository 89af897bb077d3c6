package core

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// memStore is an in-memory OwnerDirectory and RecordStore. Writes made in a
// batch only become visible to later batches after Commit, and a failed
// savepoint discards the writes made inside it.
type memStore struct {
	mu      sync.Mutex
	owners  map[string]bool
	records map[string]CommittedRecord // ownerID|code -> record
	nextID  int

	// failNames makes CreateRecord fail for records with these project names.
	failNames map[string]error
	// raceCodes makes FindByOwnerAndCode miss a code that CreateRecord then
	// rejects, as when a concurrent batch commits it in between.
	raceCodes map[string]bool
	// brokenSavepoint names the savepoint that cannot be created.
	brokenSavepoint string
	beginErr        error
	commitErr       error

	begins, commits, rollbacks int
	// inserted holds every record passed to CreateRecord, as received.
	inserted []ProjectRecord
}

func newMemStore(owners ...string) *memStore {
	s := &memStore{
		owners:    make(map[string]bool),
		records:   make(map[string]CommittedRecord),
		failNames: make(map[string]error),
		raceCodes: make(map[string]bool),
	}
	for _, o := range owners {
		s.owners[o] = true
	}
	return s
}

func memKey(ownerID, code string) string {
	return ownerID + "|" + code
}

func (s *memStore) OwnerExists(_ context.Context, ownerID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.owners[ownerID], nil
}

func (s *memStore) BeginBatch(context.Context) (BatchTx, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.begins++
	if s.beginErr != nil {
		return nil, s.beginErr
	}
	return &memTx{store: s}, nil
}

// seed stores a record as if committed earlier.
func (s *memStore) seed(ownerID, code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[memKey(ownerID, code)] = CommittedRecord{ID: "seed", OwnerID: ownerID, ProjectCode: code}
}

func (s *memStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func (s *memStore) codes(ownerID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, r := range s.records {
		if r.OwnerID == ownerID {
			out = append(out, r.ProjectCode)
		}
	}
	sort.Strings(out)
	return out
}

type memTx struct {
	store   *memStore
	pending []CommittedRecord
	done    bool
}

func (t *memTx) exists(ownerID, code string) bool {
	if _, ok := t.store.records[memKey(ownerID, code)]; ok {
		return true
	}
	for _, r := range t.pending {
		if r.OwnerID == ownerID && r.ProjectCode == code {
			return true
		}
	}
	return false
}

func (t *memTx) FindByOwnerAndCode(_ context.Context, ownerID, code string) (bool, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	if t.store.raceCodes[code] {
		return false, nil
	}
	return t.exists(ownerID, code), nil
}

func (t *memTx) CreateRecord(_ context.Context, rec ProjectRecord) (CommittedRecord, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()

	if err := t.store.failNames[rec.ProjectName]; err != nil {
		return CommittedRecord{}, err
	}
	if t.store.raceCodes[rec.ProjectCode] || t.exists(rec.OwnerID, rec.ProjectCode) {
		return CommittedRecord{}, fmt.Errorf("insert: %w", ErrDuplicateKey)
	}

	t.store.inserted = append(t.store.inserted, rec)
	t.store.nextID++
	created := CommittedRecord{
		ID:          fmt.Sprintf("rec-%d", t.store.nextID),
		OwnerID:     rec.OwnerID,
		ProjectCode: rec.ProjectCode,
		ProjectName: rec.ProjectName,
	}
	t.pending = append(t.pending, created)
	return created, nil
}

func (t *memTx) Savepoint(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	if name == t.store.brokenSavepoint {
		return fmt.Errorf("%w: savepoint %s", ErrScopeBroken, name)
	}
	mark := len(t.pending)
	if err := fn(ctx); err != nil {
		t.pending = t.pending[:mark]
		return err
	}
	return nil
}

func (t *memTx) Commit(context.Context) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	if t.store.commitErr != nil {
		return t.store.commitErr
	}
	for _, r := range t.pending {
		t.store.records[memKey(r.OwnerID, r.ProjectCode)] = r
	}
	t.pending = nil
	t.done = true
	t.store.commits++
	return nil
}

func (t *memTx) Rollback(context.Context) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	if t.done {
		return nil
	}
	t.pending = nil
	t.done = true
	t.store.rollbacks++
	return nil
}

// validRecord returns a structured record that passes every rule.
func validRecord(code string) map[string]any {
	return map[string]any{
		FieldProjectName:   "Project " + code,
		FieldProjectCode:   code,
		FieldRoleTitle:     "Dev",
		FieldStartDate:     "2025-01-01",
		FieldProjectStatus: "active",
	}
}

// normalizedRow builds a NormalizedRow from structured values.
func normalizedRow(values map[string]string) NormalizedRow {
	return NewNormalizer(SourceStructured).Normalize(RawRow{Ordinal: 1, Fields: values})
}

func validValues() map[string]string {
	return map[string]string{
		FieldProjectName:   "Billing",
		FieldProjectCode:   "P1",
		FieldRoleTitle:     "Dev",
		FieldStartDate:     "2025-01-01",
		FieldProjectStatus: "active",
	}
}
