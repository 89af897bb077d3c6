package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// RefKey is the optional per-record key carrying a client row identifier.
const RefKey = "ref"

// Default caps and timeouts.
const (
	DefaultMaxPreflightRows = 1000
	DefaultMaxCommitRows    = 100
	DefaultImportTimeout    = 2 * time.Minute
)

// Options configures a Service. Zero values select the defaults.
type Options struct {
	MaxPreflightRows int
	MaxCommitRows    int
	Timeout          time.Duration
	Policy           CommitPolicy
	MaxConcurrent    int
	MaxWait          time.Duration
	Logger           *slog.Logger
}

// Service runs the import pipeline in preflight and commit mode.
// It is safe for concurrent use.
type Service struct {
	owners      OwnerDirectory
	validator   *Validator
	coordinator *CommitCoordinator
	limiter     *ImportLimiter

	maxPreflightRows int
	maxCommitRows    int
	timeout          time.Duration
	logger           *slog.Logger
}

// NewService creates a Service over the given collaborators.
func NewService(owners OwnerDirectory, store RecordStore, opts Options) *Service {
	if opts.MaxPreflightRows <= 0 {
		opts.MaxPreflightRows = DefaultMaxPreflightRows
	}
	if opts.MaxCommitRows <= 0 {
		opts.MaxCommitRows = DefaultMaxCommitRows
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultImportTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &Service{
		owners:           owners,
		validator:        DefaultValidator(),
		coordinator:      NewCommitCoordinator(store, opts.Policy, opts.Logger),
		limiter:          NewImportLimiter(opts.MaxConcurrent, opts.MaxWait),
		maxPreflightRows: opts.MaxPreflightRows,
		maxCommitRows:    opts.MaxCommitRows,
		timeout:          opts.Timeout,
		logger:           opts.Logger,
	}
}

// Limiter exposes the import limiter for shutdown and health reporting.
func (s *Service) Limiter() *ImportLimiter {
	return s.limiter
}

// Preflight parses and validates an uploaded file. It never persists.
//
// Transport and shape problems (unsupported type, unreadable content, no
// data rows, too many rows) are returned as errors; rows that fail
// validation are reported in the result.
func (s *Service) Preflight(ctx context.Context, fileName string, data []byte) (PreflightResult, error) {
	parsed, err := ParseFile(fileName, data)
	if err != nil {
		return PreflightResult{}, err
	}
	if len(parsed.Rows) == 0 {
		return PreflightResult{}, ErrNoRows
	}
	if len(parsed.Rows) > s.maxPreflightRows {
		return PreflightResult{}, fmt.Errorf("%w: %d rows, limit is %d",
			ErrTooManyRows, len(parsed.Rows), s.maxPreflightRows)
	}

	if err := s.limiter.Acquire(ctx); err != nil {
		return PreflightResult{}, err
	}
	defer s.limiter.Release()

	validationID := uuid.NewString()
	log := s.logger.With("import_mode", ModePreflight, "validation_id", validationID).With(clientAttrs(ctx)...)

	normalized := NewNormalizer(parsed.Kind).NormalizeAll(parsed.Rows)
	result := BuildPreflight(validationID, s.validator.ValidateRows(normalized))

	log.Info("preflight finished",
		"file", fileName,
		"source", parsed.Kind,
		"rows", result.Total,
		"errors", result.ErrorCount,
	)
	return result, nil
}

// CommitRequest is a structured commit submission.
type CommitRequest struct {
	OwnerID string
	Records []map[string]any
}

// Commit validates and persists structured records for one owner.
//
// The request is rejected wholesale before any work when the owner is
// missing or unknown, or the record count is zero or above the cap. Once
// accepted, the batch runs to completion even if ctx is cancelled.
func (s *Service) Commit(ctx context.Context, req CommitRequest) (BatchOutcome, error) {
	ownerID := strings.TrimSpace(req.OwnerID)
	if ownerID == "" {
		return BatchOutcome{}, ErrMissingOwner
	}
	if len(req.Records) == 0 {
		return BatchOutcome{}, fmt.Errorf("%w: records must not be empty", ErrInvalidRequest)
	}
	if len(req.Records) > s.maxCommitRows {
		return BatchOutcome{}, fmt.Errorf("%w: %d records, limit is %d",
			ErrTooManyRows, len(req.Records), s.maxCommitRows)
	}

	rows, err := RowsFromRecords(req.Records)
	if err != nil {
		return BatchOutcome{}, err
	}

	exists, err := s.owners.OwnerExists(ctx, ownerID)
	if err != nil {
		return BatchOutcome{}, fmt.Errorf("look up owner: %w", err)
	}
	if !exists {
		return BatchOutcome{}, fmt.Errorf("%w: %s", ErrOwnerNotFound, ownerID)
	}

	if err := s.limiter.Acquire(ctx); err != nil {
		return BatchOutcome{}, err
	}
	defer s.limiter.Release()

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	log := s.logger.With("import_mode", ModeCommit, "owner_id", ownerID).With(clientAttrs(ctx)...)
	start := time.Now()

	batch := ImportBatch{
		OwnerID:     ownerID,
		SourceKind:  SourceStructured,
		Rows:        rows,
		SubmittedAt: start,
	}

	outcomes := s.validator.ValidateRows(NewNormalizer(batch.SourceKind).NormalizeAll(batch.Rows))
	var okRows []RowOutcome
	for _, o := range outcomes {
		if o.OK() {
			okRows = append(okRows, o)
		}
	}

	committed, err := s.coordinator.Commit(ctx, batch.OwnerID, okRows)
	if err != nil {
		log.Error("commit failed", "rows", len(rows), "error", err)
		return BatchOutcome{}, err
	}

	outcome := BuildOutcome(outcomes, committed)
	log.Info("commit finished",
		"rows", outcome.Total,
		"created", outcome.SuccessCount,
		"failed", outcome.ErrorCount,
		"class", outcome.Class(),
		"duration", time.Since(start),
	)
	return outcome, nil
}

// RowsFromRecords converts decoded JSON records into RawRows. Keys are
// normalized like file headers, and two keys naming the same field reject
// the request. A null value is treated as absent. The optional "ref" key
// becomes the row's Ref instead of a field.
func RowsFromRecords(records []map[string]any) ([]RawRow, error) {
	rows := make([]RawRow, len(records))
	for i, record := range records {
		row := RawRow{
			Ordinal: i + 1,
			Fields:  make(map[string]string, len(record)),
		}

		keys := make([]string, 0, len(record))
		for key := range record {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		owners := make(map[string]string, len(keys))
		for _, key := range keys {
			name := NormalizeHeader(key)
			if name == "" {
				continue
			}
			if prev, dup := owners[name]; dup {
				return nil, fmt.Errorf("%w: record %d: keys %q and %q both name field %q",
					ErrInvalidRequest, i+1, prev, key, name)
			}
			owners[name] = key

			value := record[key]
			if value == nil {
				continue
			}
			s, err := cellString(value)
			if err != nil {
				return nil, fmt.Errorf("%w: record %d field %q: %v", ErrInvalidRequest, i+1, key, err)
			}
			if name == RefKey {
				row.Ref = s
				continue
			}
			row.Fields[name] = s
		}
		rows[i] = row
	}
	return rows, nil
}

var errUnsupportedValue = errors.New("value must be a string, number or boolean")

func cellString(v any) (string, error) {
	switch t := v.(type) {
	case string:
		return t, nil
	case json.Number:
		return t.String(), nil
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), nil
	case int:
		return strconv.Itoa(t), nil
	case int64:
		return strconv.FormatInt(t, 10), nil
	case bool:
		return strconv.FormatBool(t), nil
	default:
		return "", errUnsupportedValue
	}
}
