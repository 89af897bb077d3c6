package core

import (
	"context"
	"time"
)

// SourceKind identifies how the rows of a batch were supplied.
type SourceKind string

const (
	SourceDelimited   SourceKind = "delimited"
	SourceSpreadsheet SourceKind = "spreadsheet"
	SourceStructured  SourceKind = "structured"
)

// ImportMode selects how far a batch travels through the pipeline.
type ImportMode string

const (
	ModePreflight ImportMode = "preflight" // parse + validate, never persists
	ModeCommit    ImportMode = "commit"    // validate + duplicate check + persist
)

// ImportBatch is the transient envelope for one pipeline invocation.
// It is never persisted.
type ImportBatch struct {
	OwnerID     string
	SourceKind  SourceKind
	Rows        []RawRow
	SubmittedAt time.Time
}

// RawRow is one input row keyed by column name. Columns missing from the
// input are absent from Fields rather than present with an empty value.
type RawRow struct {
	Ordinal int               // 1-based position among data rows
	Ref     string            // Optional client-supplied row identifier
	Fields  map[string]string // Column name -> raw cell value
}

// FieldType represents the declared type of a record field.
type FieldType int

const (
	FieldText FieldType = iota
	FieldEnum
	FieldDate
	FieldNumeric
	FieldInteger
	FieldBool
)

// FieldValue is a typed candidate value produced by the normalizer.
//
// Present reports whether the column carried a non-empty value. Valid
// reports whether that value could be coerced to the field's type; a
// present-but-invalid value is turned into a finding during validation.
type FieldValue struct {
	Type    FieldType
	Raw     string
	Present bool
	Valid   bool

	Text   string
	Number float64
	Int    int64
	Bool   bool
	Date   time.Time
}

// NormalizedRow holds the typed candidate values for one row.
type NormalizedRow struct {
	Ordinal      int
	Ref          string
	Values       map[string]FieldValue
	Unrecognized []string // Columns not in the catalog; ignored
}

// Value returns the normalized value for a field, or a zero FieldValue
// with Present=false when the field was not supplied.
func (r NormalizedRow) Value(field string) FieldValue {
	if r.Values == nil {
		return FieldValue{}
	}
	return r.Values[field]
}

// RowStatus is the outcome of a single row.
type RowStatus string

const (
	StatusOK    RowStatus = "OK"
	StatusError RowStatus = "ERROR"
)

// ValidationFinding is one violated rule instance for a row.
type ValidationFinding struct {
	Row     int    `json:"row"`
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// GeneralField is the field name used for findings that are not tied to a
// single column (duplicates, storage failures).
const GeneralField = "general"

// CommitFinding is a failure discovered only while persisting a row.
type CommitFinding struct {
	Row     int    `json:"row"`
	Ref     string `json:"ref,omitempty"`
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// RowOutcome is the validation result for one row.
type RowOutcome struct {
	Row        int
	Status     RowStatus
	Findings   []ValidationFinding
	Normalized NormalizedRow
}

// OK reports whether the row passed every rule.
func (o RowOutcome) OK() bool {
	return o.Status == StatusOK
}

// ProjectRecord carries the business fields of one project history entry.
// Optional fields are nil when not supplied.
type ProjectRecord struct {
	OwnerID           string
	ProjectCode       string
	ProjectName       string
	RoleTitle         string
	ClientName        string
	StartDate         time.Time
	EndDate           *time.Time
	ProjectStatus     string
	ParticipationRate *float64
	TeamSize          *int64
	EvaluationScore   *float64
	IsConfidential    bool
	Description       string
	Technologies      string
	Responsibilities  string
	Achievements      string
}

// CommittedRecord references a persisted project record.
type CommittedRecord struct {
	ID          string    `json:"id"`
	Row         int       `json:"row"`
	Ref         string    `json:"ref,omitempty"`
	OwnerID     string    `json:"owner_id"`
	ProjectCode string    `json:"project_code"`
	ProjectName string    `json:"project_name"`
	CreatedAt   time.Time `json:"created_at"`
}

// OutcomeClass distinguishes the three ways a commit batch can end.
type OutcomeClass string

const (
	OutcomeSuccess OutcomeClass = "success"
	OutcomePartial OutcomeClass = "partial"
	OutcomeFailure OutcomeClass = "failure"
)

// BatchOutcome is the final account of a commit batch.
// It is computed once after the commit coordinator finishes.
type BatchOutcome struct {
	Total        int
	SuccessCount int
	ErrorCount   int
	SuccessRate  int
	Created      []CommittedRecord
	Errors       []CommitFinding
}

// Class returns the outcome classification.
func (o BatchOutcome) Class() OutcomeClass {
	switch {
	case o.ErrorCount == 0 && o.SuccessCount > 0:
		return OutcomeSuccess
	case o.SuccessCount > 0:
		return OutcomePartial
	default:
		return OutcomeFailure
	}
}

// PreflightResult is returned by a validate-only run.
type PreflightResult struct {
	ValidationID string
	Total        int
	SuccessCount int
	ErrorCount   int
	SuccessRate  int
	Rows         []RowOutcome
	Message      string
}

// OwnerDirectory resolves record owners. Satisfied by the postgres store.
type OwnerDirectory interface {
	OwnerExists(ctx context.Context, ownerID string) (bool, error)
}

// RecordStore opens the shared transactional scope used by one commit.
type RecordStore interface {
	BeginBatch(ctx context.Context) (BatchTx, error)
}

// BatchTx is the transactional scope owned by one commit coordinator run.
//
// Savepoint runs fn inside a nested scope: if fn returns an error, only the
// writes made by fn are undone and the enclosing transaction stays usable.
type BatchTx interface {
	FindByOwnerAndCode(ctx context.Context, ownerID, projectCode string) (bool, error)
	CreateRecord(ctx context.Context, rec ProjectRecord) (CommittedRecord, error)
	Savepoint(ctx context.Context, name string, fn func(ctx context.Context) error) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}
