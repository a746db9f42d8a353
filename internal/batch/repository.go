package batch

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RepositoryPort abstracts batch persistence for the service.
type RepositoryPort interface {
	Insert(ctx context.Context, rec Record) (int64, error)
	Find(ctx context.Context, tenantID uuid.UUID, batchNumber, itemCode, warehouseCode string) (Record, error)
	List(ctx context.Context, filter Filter) ([]Record, error)
	SetStatus(ctx context.Context, id int64, status Status) error
	Expiring(ctx context.Context, tenantID uuid.UUID, until time.Time) ([]Record, error)
	MarkExpiredDue(ctx context.Context, now time.Time) (int64, error)
}

// Repository persists batch records in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}
