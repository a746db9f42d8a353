package stock

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ListMovements(ctx context.Context, filter MovementFilter) ([]LedgerEntry, error)
	SummarizeMovements(ctx context.Context, filter MovementFilter) (MovementSummary, int, error)
}

// TxRepository exposes the transactional operations used while posting
// a movement. The ledger entry and its layer effects always commit or
// roll back together.
type TxRepository interface {
	LayersForUpdate(ctx context.Context, key Key) ([]Layer, error)
	InsertEntry(ctx context.Context, entry LedgerEntry) (int64, error)
	InsertLayer(ctx context.Context, layer Layer) (int64, error)
	ApplyConsumptions(ctx context.Context, consumptions []layerConsumption) error
	ActiveReservedQty(ctx context.Context, key Key) (decimal.Decimal, error)
}

// Repository persists the stock ledger in PostgreSQL.
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
		return errors.New("stock repository not initialised")
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
