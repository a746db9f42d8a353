package reservation

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	platformdb "github.com/stockpile-erp/stockpile/internal/platform/db"
	"github.com/stockpile-erp/stockpile/internal/shared"
	"github.com/stockpile-erp/stockpile/internal/stock"
)

const listFilterClause = `
WHERE tenant_id=$1
  AND ($2='' OR item_code=$2)
  AND ($3='' OR warehouse_code=$3)
  AND ($4='' OR order_reference=$4)
  AND ($5=false OR released_at IS NULL)`

func (r *Repository) List(ctx context.Context, filter Filter) ([]Reservation, int, error) {
	if r == nil {
		return nil, 0, errors.New("reservation repository not initialised")
	}
	var total int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM stock_reservations`+listFilterClause,
		filter.TenantID, filter.ItemCode, filter.WarehouseCode, filter.OrderReference, filter.ActiveOnly).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	page, limit := shared.NormalizePage(filter.Page, filter.Limit, 500)
	rows, err := r.pool.Query(ctx, `SELECT id, tenant_id, item_code, warehouse_code, location_code, batch_no,
	order_reference, quantity, created_by, created_at, released_at
FROM stock_reservations`+listFilterClause+`
ORDER BY created_at ASC, id ASC
LIMIT $6 OFFSET $7`,
		filter.TenantID, filter.ItemCode, filter.WarehouseCode, filter.OrderReference, filter.ActiveOnly,
		limit, (page-1)*limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	reservations := []Reservation{}
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, 0, err
		}
		reservations = append(reservations, res)
	}
	return reservations, total, rows.Err()
}

func (r *txRepository) RemainingQty(ctx context.Context, key stock.Key) (decimal.Decimal, error) {
	var remaining pgtype.Numeric
	err := r.tx.QueryRow(ctx, `SELECT COALESCE(SUM(remaining_qty), 0)
FROM stock_fifo_layers
WHERE tenant_id=$1 AND item_code=$2 AND warehouse_code=$3 AND location_code=$4 AND batch_no=$5`,
		key.TenantID, key.ItemCode, key.WarehouseCode, key.LocationCode, key.BatchNo).Scan(&remaining)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return platformdb.DecimalFromNumeric(remaining), nil
}

func (r *txRepository) ActiveReservedQty(ctx context.Context, key stock.Key) (decimal.Decimal, error) {
	var reserved pgtype.Numeric
	err := r.tx.QueryRow(ctx, `SELECT COALESCE(SUM(quantity), 0)
FROM stock_reservations
WHERE tenant_id=$1 AND item_code=$2 AND warehouse_code=$3 AND location_code=$4 AND batch_no=$5 AND released_at IS NULL`,
		key.TenantID, key.ItemCode, key.WarehouseCode, key.LocationCode, key.BatchNo).Scan(&reserved)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return platformdb.DecimalFromNumeric(reserved), nil
}

func (r *txRepository) Insert(ctx context.Context, res Reservation) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO stock_reservations
	(tenant_id, item_code, warehouse_code, location_code, batch_no, order_reference, quantity, created_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,NOW())
RETURNING id`,
		res.Key.TenantID, res.Key.ItemCode, res.Key.WarehouseCode, res.Key.LocationCode, res.Key.BatchNo,
		res.OrderReference, platformdb.NumericFromDecimal(res.Quantity), res.CreatedBy).Scan(&id)
	return id, err
}

func (r *txRepository) Get(ctx context.Context, id int64) (Reservation, error) {
	row := r.tx.QueryRow(ctx, `SELECT id, tenant_id, item_code, warehouse_code, location_code, batch_no,
	order_reference, quantity, created_by, created_at, released_at
FROM stock_reservations
WHERE id=$1`, id)
	res, err := scanReservation(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Reservation{}, shared.ErrNotFound
	}
	return res, err
}

// Release stamps released_at once. The second call over the same id is
// a no-op and reports false.
func (r *txRepository) Release(ctx context.Context, id int64) (bool, error) {
	tag, err := r.tx.Exec(ctx, `UPDATE stock_reservations
SET released_at = NOW()
WHERE id = $1 AND released_at IS NULL`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func scanReservation(row pgx.Row) (Reservation, error) {
	var (
		res      Reservation
		qty      pgtype.Numeric
		released *time.Time
	)
	if err := row.Scan(&res.ID, &res.Key.TenantID, &res.Key.ItemCode, &res.Key.WarehouseCode,
		&res.Key.LocationCode, &res.Key.BatchNo, &res.OrderReference, &qty, &res.CreatedBy,
		&res.CreatedAt, &released); err != nil {
		return Reservation{}, err
	}
	res.Quantity = platformdb.DecimalFromNumeric(qty)
	res.ReleasedAt = released
	return res, nil
}
