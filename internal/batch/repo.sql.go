package batch

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	platformdb "github.com/stockpile-erp/stockpile/internal/platform/db"
	"github.com/stockpile-erp/stockpile/internal/shared"
)

// quantityExpr derives the batch quantity from its ledger entries.
const quantityExpr = `COALESCE((SELECT SUM(e.quantity) FROM stock_ledger_entries e
	WHERE e.tenant_id = b.tenant_id AND e.item_code = b.item_code
	  AND e.warehouse_code = b.warehouse_code AND e.batch_no = b.batch_number), 0)`

const selectColumns = `b.id, b.tenant_id, b.batch_number, b.item_code, b.warehouse_code, ` + quantityExpr + `,
	b.manufacturing_date, b.expiry_date, b.status, b.supplier_code, b.created_at, b.updated_at`

func (r *Repository) Insert(ctx context.Context, rec Record) (int64, error) {
	if r == nil {
		return 0, errors.New("batch repository not initialised")
	}
	var id int64
	err := r.pool.QueryRow(ctx, `INSERT INTO batches
	(tenant_id, batch_number, item_code, warehouse_code, manufacturing_date, expiry_date, status, supplier_code, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,NOW(),NOW())
RETURNING id`,
		rec.TenantID, rec.BatchNumber, rec.ItemCode, rec.WarehouseCode,
		rec.ManufacturingDate, rec.ExpiryDate, string(rec.Status), rec.SupplierCode).Scan(&id)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return 0, ErrDuplicateBatch
	}
	return id, err
}

func (r *Repository) Find(ctx context.Context, tenantID uuid.UUID, batchNumber, itemCode, warehouseCode string) (Record, error) {
	if r == nil {
		return Record{}, errors.New("batch repository not initialised")
	}
	row := r.pool.QueryRow(ctx, `SELECT `+selectColumns+`
FROM batches b
WHERE b.tenant_id=$1 AND b.batch_number=$2 AND b.item_code=$3 AND b.warehouse_code=$4`,
		tenantID, batchNumber, itemCode, warehouseCode)
	rec, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, shared.ErrNotFound
	}
	return rec, err
}

func (r *Repository) List(ctx context.Context, filter Filter) ([]Record, error) {
	if r == nil {
		return nil, errors.New("batch repository not initialised")
	}
	// no LIMIT here: the service filters on effective status after the
	// query, so it owns pagination
	rows, err := r.pool.Query(ctx, `SELECT `+selectColumns+`
FROM batches b
WHERE b.tenant_id=$1
  AND ($2='' OR b.item_code=$2)
  AND ($3='' OR b.warehouse_code=$3)
  AND ($4='' OR b.batch_number=$4)
  AND ($5='' OR b.status=$5)
ORDER BY b.batch_number, b.item_code, b.warehouse_code`,
		filter.TenantID, filter.ItemCode, filter.WarehouseCode, filter.BatchNumber, string(filter.Status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRecords(rows)
}

func (r *Repository) SetStatus(ctx context.Context, id int64, status Status) error {
	if r == nil {
		return errors.New("batch repository not initialised")
	}
	tag, err := r.pool.Exec(ctx, `UPDATE batches SET status=$2, updated_at=NOW() WHERE id=$1`, id, string(status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// Expiring lists batches whose expiry falls on or before the cutoff
// and which have not already expired.
func (r *Repository) Expiring(ctx context.Context, tenantID uuid.UUID, until time.Time) ([]Record, error) {
	if r == nil {
		return nil, errors.New("batch repository not initialised")
	}
	rows, err := r.pool.Query(ctx, `SELECT `+selectColumns+`
FROM batches b
WHERE b.tenant_id=$1 AND b.status <> 'expired' AND b.expiry_date IS NOT NULL AND b.expiry_date <= $2
ORDER BY b.expiry_date ASC`, tenantID, until)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRecords(rows)
}

// MarkExpiredDue persists expired status for all batches whose expiry
// has passed. Used by the periodic sweep.
func (r *Repository) MarkExpiredDue(ctx context.Context, now time.Time) (int64, error) {
	if r == nil {
		return 0, errors.New("batch repository not initialised")
	}
	tag, err := r.pool.Exec(ctx, `UPDATE batches
SET status='expired', updated_at=NOW()
WHERE status <> 'expired' AND expiry_date IS NOT NULL AND expiry_date < $1`, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func collectRecords(rows pgx.Rows) ([]Record, error) {
	records := []Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func scanRecord(row pgx.Row) (Record, error) {
	var (
		rec Record
		qty pgtype.Numeric
	)
	if err := row.Scan(&rec.ID, &rec.TenantID, &rec.BatchNumber, &rec.ItemCode, &rec.WarehouseCode, &qty,
		&rec.ManufacturingDate, &rec.ExpiryDate, &rec.Status, &rec.SupplierCode,
		&rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return Record{}, err
	}
	rec.Quantity = platformdb.DecimalFromNumeric(qty)
	return rec, nil
}
