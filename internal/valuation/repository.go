package valuation

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	platformdb "github.com/stockpile-erp/stockpile/internal/platform/db"
)

// RepositoryPort abstracts the read queries behind the reports.
type RepositoryPort interface {
	LayerTotals(ctx context.Context, filter Filter) ([]Valuation, error)
	ReservedTotals(ctx context.Context, filter Filter) ([]ReservedTotal, error)
	OpenLayers(ctx context.Context, filter Filter) ([]LayerRow, error)
}

// Repository reads layer and reservation aggregates from PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const filterClause = ` WHERE tenant_id=$1
  AND ($2='' OR item_code=$2)
  AND ($3='' OR warehouse_code=$3)
  AND ($4='' OR location_code=$4)
  AND ($5='' OR batch_no=$5)`

// LayerTotals sums remaining quantity and exact layer value per key.
func (r *Repository) LayerTotals(ctx context.Context, filter Filter) ([]Valuation, error) {
	if r == nil {
		return nil, errors.New("valuation repository not initialised")
	}
	rows, err := r.pool.Query(ctx, `SELECT tenant_id, item_code, warehouse_code, location_code, batch_no,
	COALESCE(SUM(remaining_qty), 0), COALESCE(SUM(remaining_qty * unit_cost), 0)
FROM stock_fifo_layers`+filterClause+`
GROUP BY tenant_id, item_code, warehouse_code, location_code, batch_no
ORDER BY item_code, warehouse_code, location_code, batch_no`,
		filter.TenantID, filter.ItemCode, filter.WarehouseCode, filter.LocationCode, filter.BatchNo)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	totals := []Valuation{}
	for rows.Next() {
		var (
			v     Valuation
			qty   pgtype.Numeric
			value pgtype.Numeric
		)
		if err := rows.Scan(&v.Key.TenantID, &v.Key.ItemCode, &v.Key.WarehouseCode, &v.Key.LocationCode,
			&v.Key.BatchNo, &qty, &value); err != nil {
			return nil, err
		}
		v.Quantity = platformdb.DecimalFromNumeric(qty)
		v.Value = platformdb.DecimalFromNumeric(value)
		totals = append(totals, v)
	}
	return totals, rows.Err()
}

// ReservedTotals sums active reservation quantity per key.
func (r *Repository) ReservedTotals(ctx context.Context, filter Filter) ([]ReservedTotal, error) {
	if r == nil {
		return nil, errors.New("valuation repository not initialised")
	}
	rows, err := r.pool.Query(ctx, `SELECT tenant_id, item_code, warehouse_code, location_code, batch_no,
	COALESCE(SUM(quantity), 0)
FROM stock_reservations`+filterClause+` AND released_at IS NULL
GROUP BY tenant_id, item_code, warehouse_code, location_code, batch_no`,
		filter.TenantID, filter.ItemCode, filter.WarehouseCode, filter.LocationCode, filter.BatchNo)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	totals := []ReservedTotal{}
	for rows.Next() {
		var (
			t   ReservedTotal
			qty pgtype.Numeric
		)
		if err := rows.Scan(&t.Key.TenantID, &t.Key.ItemCode, &t.Key.WarehouseCode, &t.Key.LocationCode,
			&t.Key.BatchNo, &qty); err != nil {
			return nil, err
		}
		t.Quantity = platformdb.DecimalFromNumeric(qty)
		totals = append(totals, t)
	}
	return totals, rows.Err()
}

// OpenLayers lists non-exhausted layers for aging, oldest first.
func (r *Repository) OpenLayers(ctx context.Context, filter Filter) ([]LayerRow, error) {
	if r == nil {
		return nil, errors.New("valuation repository not initialised")
	}
	rows, err := r.pool.Query(ctx, `SELECT tenant_id, item_code, warehouse_code, location_code, batch_no,
	remaining_qty, unit_cost, posting_date
FROM stock_fifo_layers`+filterClause+` AND remaining_qty > 0
ORDER BY item_code, warehouse_code, posting_date ASC`,
		filter.TenantID, filter.ItemCode, filter.WarehouseCode, filter.LocationCode, filter.BatchNo)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	layers := []LayerRow{}
	for rows.Next() {
		var (
			row  LayerRow
			qty  pgtype.Numeric
			cost pgtype.Numeric
		)
		if err := rows.Scan(&row.Key.TenantID, &row.Key.ItemCode, &row.Key.WarehouseCode, &row.Key.LocationCode,
			&row.Key.BatchNo, &qty, &cost, &row.PostingDate); err != nil {
			return nil, err
		}
		row.RemainingQty = platformdb.DecimalFromNumeric(qty)
		row.UnitCost = platformdb.DecimalFromNumeric(cost)
		layers = append(layers, row)
	}
	return layers, rows.Err()
}
