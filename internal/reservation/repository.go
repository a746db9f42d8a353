package reservation

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/stockpile-erp/stockpile/internal/stock"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	List(ctx context.Context, filter Filter) ([]Reservation, int, error)
}

// TxRepository exposes the transactional operations behind a
// check-then-reserve. Availability reads and the insert share one
// transaction so concurrent reservations cannot oversell.
type TxRepository interface {
	RemainingQty(ctx context.Context, key stock.Key) (decimal.Decimal, error)
	ActiveReservedQty(ctx context.Context, key stock.Key) (decimal.Decimal, error)
	Insert(ctx context.Context, r Reservation) (int64, error)
	Get(ctx context.Context, id int64) (Reservation, error)
	Release(ctx context.Context, id int64) (bool, error)
}

// Repository persists reservations in PostgreSQL.
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
		return errors.New("reservation repository not initialised")
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
