package serial

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RepositoryPort abstracts serial persistence for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	List(ctx context.Context, filter Filter) ([]Record, int, error)
	HistoryFor(ctx context.Context, tenantID uuid.UUID, serialNumber string) ([]History, error)
}

// TxRepository exposes the transactional operations behind creation
// and status changes. Bulk creation and its history rows commit or
// roll back as one unit.
type TxRepository interface {
	ExistingNumbers(ctx context.Context, tenantID uuid.UUID, numbers []string) ([]string, error)
	InsertSerials(ctx context.Context, records []Record) ([]int64, error)
	FindForUpdate(ctx context.Context, tenantID uuid.UUID, serialNumber string) (Record, error)
	SetStatus(ctx context.Context, id int64, status Status) error
	AppendHistory(ctx context.Context, events []History) error
}

// Repository persists serials in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("serial repository not initialised")
	}
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	wrapper := &txRepository{tx: tx}
	if err := fn(ctx, wrapper); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}
