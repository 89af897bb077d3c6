// Package store persists project records in PostgreSQL.
//
// Store satisfies core.OwnerDirectory and core.RecordStore. One commit batch
// runs inside one transaction; each row gets its own savepoint so that a
// failed insert, which aborts the transaction in PostgreSQL, can be undone
// without losing the rows before it.
package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/recordimport/internal/core"
)

// uniqueViolation is the PostgreSQL SQLSTATE for a unique constraint failure.
const uniqueViolation = "23505"

// DBTX is the subset of pgx shared by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type DBTX interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
}

// TxBeginner opens transactions. Satisfied by *pgxpool.Pool.
type TxBeginner interface {
	DBTX
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Store is the PostgreSQL record store.
type Store struct {
	db TxBeginner
}

// New creates a Store over db.
func New(db TxBeginner) *Store {
	return &Store{db: db}
}

// Connect opens a connection pool configured from the given settings and
// verifies it with a ping.
func Connect(ctx context.Context, url string, maxConns, minConns int32, lifetime, idle time.Duration) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.MaxConns = maxConns
	cfg.MinConns = minConns
	cfg.MaxConnLifetime = lifetime
	cfg.MaxConnIdleTime = idle
	cfg.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// OwnerExists reports whether ownerID names an active employee. Ids that
// are not UUIDs cannot exist.
func (s *Store) OwnerExists(ctx context.Context, ownerID string) (bool, error) {
	id, err := uuid.Parse(ownerID)
	if err != nil {
		return false, nil
	}

	var exists bool
	err = s.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM employees WHERE id = $1 AND deleted_at IS NULL)`,
		pgUUID(id),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("query owner: %w", err)
	}
	return exists, nil
}

// BeginBatch opens the transaction shared by one commit batch.
func (s *Store) BeginBatch(ctx context.Context) (core.BatchTx, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	return &batchTx{tx: tx}, nil
}

// Ping checks database connectivity for the health endpoint.
func (s *Store) Ping(ctx context.Context) error {
	var one int
	return s.db.QueryRow(ctx, "SELECT 1").Scan(&one)
}

// Tx is the part of pgx.Tx used by a batch.
type Tx interface {
	DBTX
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// batchTx implements core.BatchTx over a pgx transaction.
type batchTx struct {
	tx Tx
}

// NewBatchTx wraps an open transaction as a core.BatchTx.
func NewBatchTx(tx Tx) core.BatchTx {
	return &batchTx{tx: tx}
}

var savepointName = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// Savepoint runs fn between SAVEPOINT and RELEASE. When fn fails the
// savepoint is rolled back and fn's error returned. Failures of the
// savepoint statements themselves wrap core.ErrScopeBroken.
func (b *batchTx) Savepoint(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	if !savepointName.MatchString(name) {
		return fmt.Errorf("invalid savepoint name %q", name)
	}

	if _, err := b.tx.Exec(ctx, "SAVEPOINT "+name); err != nil {
		return fmt.Errorf("%w: create savepoint %s: %v", core.ErrScopeBroken, name, err)
	}

	if err := fn(ctx); err != nil {
		if _, rbErr := b.tx.Exec(ctx, "ROLLBACK TO SAVEPOINT "+name); rbErr != nil {
			return fmt.Errorf("%w: rollback savepoint %s: %v", core.ErrScopeBroken, name, rbErr)
		}
		return err
	}

	if _, err := b.tx.Exec(ctx, "RELEASE SAVEPOINT "+name); err != nil {
		return fmt.Errorf("%w: release savepoint %s: %v", core.ErrScopeBroken, name, err)
	}
	return nil
}

func (b *batchTx) FindByOwnerAndCode(ctx context.Context, ownerID, projectCode string) (bool, error) {
	id, err := uuid.Parse(ownerID)
	if err != nil {
		return false, fmt.Errorf("parse owner id: %w", err)
	}

	var exists bool
	err = b.tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM project_records WHERE owner_id = $1 AND project_code = $2)`,
		pgUUID(id), projectCode,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("query project code: %w", err)
	}
	return exists, nil
}

const insertRecord = `
INSERT INTO project_records (
	id, owner_id, project_code, project_name, role_title, client_name,
	start_date, end_date, project_status, participation_rate, team_size,
	evaluation_score, is_confidential, description, technologies,
	responsibilities, achievements
) VALUES (
	$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17
)
RETURNING created_at`

// CreateRecord inserts rec. A unique violation on (owner_id, project_code)
// is returned as core.ErrDuplicateKey.
func (b *batchTx) CreateRecord(ctx context.Context, rec core.ProjectRecord) (core.CommittedRecord, error) {
	ownerID, err := uuid.Parse(rec.OwnerID)
	if err != nil {
		return core.CommittedRecord{}, fmt.Errorf("parse owner id: %w", err)
	}
	id := uuid.New()

	var createdAt pgtype.Timestamptz
	err = b.tx.QueryRow(ctx, insertRecord,
		pgUUID(id),
		pgUUID(ownerID),
		rec.ProjectCode,
		rec.ProjectName,
		rec.RoleTitle,
		pgText(rec.ClientName),
		pgtype.Date{Time: rec.StartDate, Valid: true},
		pgDate(rec.EndDate),
		rec.ProjectStatus,
		pgFloat(rec.ParticipationRate),
		pgInt(rec.TeamSize),
		pgFloat(rec.EvaluationScore),
		rec.IsConfidential,
		pgText(rec.Description),
		pgText(rec.Technologies),
		pgText(rec.Responsibilities),
		pgText(rec.Achievements),
	).Scan(&createdAt)
	if err != nil {
		if isUniqueViolation(err) {
			return core.CommittedRecord{}, fmt.Errorf("insert project record: %w", core.ErrDuplicateKey)
		}
		return core.CommittedRecord{}, fmt.Errorf("insert project record: %w", err)
	}

	return core.CommittedRecord{
		ID:          id.String(),
		OwnerID:     rec.OwnerID,
		ProjectCode: rec.ProjectCode,
		ProjectName: rec.ProjectName,
		CreatedAt:   createdAt.Time,
	}, nil
}

func (b *batchTx) Commit(ctx context.Context) error {
	return b.tx.Commit(ctx)
}

// Rollback is a no-op after a successful Commit.
func (b *batchTx) Rollback(ctx context.Context) error {
	if err := b.tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return err
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func pgUUID(id uuid.UUID) pgtype.UUID {
	return pgtype.UUID{Bytes: id, Valid: true}
}

func pgText(s string) pgtype.Text {
	return pgtype.Text{String: s, Valid: s != ""}
}

func pgDate(t *time.Time) pgtype.Date {
	if t == nil {
		return pgtype.Date{}
	}
	return pgtype.Date{Time: *t, Valid: true}
}

func pgFloat(f *float64) pgtype.Float8 {
	if f == nil {
		return pgtype.Float8{}
	}
	return pgtype.Float8{Float64: *f, Valid: true}
}

func pgInt(i *int64) pgtype.Int8 {
	if i == nil {
		return pgtype.Int8{}
	}
	return pgtype.Int8{Int64: *i, Valid: true}
}
