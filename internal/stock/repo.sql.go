package stock

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	platformdb "github.com/stockpile-erp/stockpile/internal/platform/db"
	"github.com/stockpile-erp/stockpile/internal/shared"
)

const movementFilterClause = `
WHERE tenant_id=$1
  AND ($2='' OR item_code=$2)
  AND ($3='' OR warehouse_code=$3)
  AND ($4='' OR location_code=$4)
  AND ($5='' OR batch_no=$5)
  AND ($6='' OR movement_type=$6)
  AND posted_at BETWEEN COALESCE($7, '-infinity') AND COALESCE($8, 'infinity')`

func (r *Repository) ListMovements(ctx context.Context, filter MovementFilter) ([]LedgerEntry, error) {
	if r == nil {
		return nil, errors.New("stock repository not initialised")
	}
	page, limit := shared.NormalizePage(filter.Page, filter.Limit, 500)
	rows, err := r.pool.Query(ctx, `SELECT id, tenant_id, item_code, warehouse_code, location_code, batch_no,
	movement_type, quantity, unit_cost, total_cost, reference_number, COALESCE(correlation_id::text, ''), from_location, to_location,
	posted_at, created_by, created_at
FROM stock_ledger_entries`+movementFilterClause+`
ORDER BY posted_at ASC, id ASC
LIMIT $9 OFFSET $10`,
		filter.TenantID, filter.ItemCode, filter.WarehouseCode, filter.LocationCode, filter.BatchNo,
		string(filter.Type), nullTime(filter.From), nullTime(filter.To), limit, (page-1)*limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []LedgerEntry{}
	for rows.Next() {
		var (
			entry    LedgerEntry
			qty      pgtype.Numeric
			cost     pgtype.Numeric
			total    pgtype.Numeric
			corrText string
		)
		if err := rows.Scan(&entry.ID, &entry.Key.TenantID, &entry.Key.ItemCode, &entry.Key.WarehouseCode,
			&entry.Key.LocationCode, &entry.Key.BatchNo, &entry.Type, &qty, &cost, &total, &entry.ReferenceNumber,
			&corrText, &entry.FromLocation, &entry.ToLocation, &entry.PostedAt, &entry.CreatedBy, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.Quantity = platformdb.DecimalFromNumeric(qty)
		entry.UnitCost = platformdb.DecimalFromNumeric(cost)
		entry.TotalCost = platformdb.DecimalFromNumeric(total)
		entry.CorrelationID = parseUUID(corrText)
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// SummarizeMovements aggregates the whole filtered set, independent of
// the page being listed.
func (r *Repository) SummarizeMovements(ctx context.Context, filter MovementFilter) (MovementSummary, int, error) {
	if r == nil {
		return MovementSummary{}, 0, errors.New("stock repository not initialised")
	}
	var (
		summary     MovementSummary
		total       int
		receipts    pgtype.Numeric
		issues      pgtype.Numeric
		transfers   pgtype.Numeric
		adjustments pgtype.Numeric
		net         pgtype.Numeric
	)
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*),
	COALESCE(SUM(CASE WHEN movement_type='receipt' THEN quantity END), 0),
	COALESCE(SUM(CASE WHEN movement_type='issue' THEN -quantity END), 0),
	COALESCE(SUM(CASE WHEN movement_type='transfer' AND quantity > 0 THEN quantity END), 0),
	COALESCE(SUM(CASE WHEN movement_type='adjustment' THEN quantity END), 0),
	COALESCE(SUM(quantity), 0)
FROM stock_ledger_entries`+movementFilterClause,
		filter.TenantID, filter.ItemCode, filter.WarehouseCode, filter.LocationCode, filter.BatchNo,
		string(filter.Type), nullTime(filter.From), nullTime(filter.To)).
		Scan(&total, &receipts, &issues, &transfers, &adjustments, &net)
	if err != nil {
		return MovementSummary{}, 0, err
	}
	summary.TotalReceipts = platformdb.DecimalFromNumeric(receipts)
	summary.TotalIssues = platformdb.DecimalFromNumeric(issues)
	summary.TotalTransfers = platformdb.DecimalFromNumeric(transfers)
	summary.TotalAdjustments = platformdb.DecimalFromNumeric(adjustments)
	summary.NetMovement = platformdb.DecimalFromNumeric(net)
	return summary, total, nil
}

// ConservationDrift lists keys whose layer remainders diverge from the
// signed ledger sum. Used by the integrity sweep.
func (r *Repository) ConservationDrift(ctx context.Context) ([]ConservationDrift, error) {
	if r == nil {
		return nil, errors.New("stock repository not initialised")
	}
	rows, err := r.pool.Query(ctx, `SELECT tenant_id, item_code, warehouse_code, location_code, batch_no,
	COALESCE(layer_qty, 0), COALESCE(ledger_qty, 0)
FROM (
	SELECT tenant_id, item_code, warehouse_code, location_code, batch_no, SUM(remaining_qty) AS layer_qty
	FROM stock_fifo_layers
	GROUP BY tenant_id, item_code, warehouse_code, location_code, batch_no
) layers
FULL OUTER JOIN (
	SELECT tenant_id, item_code, warehouse_code, location_code, batch_no, SUM(quantity) AS ledger_qty
	FROM stock_ledger_entries
	GROUP BY tenant_id, item_code, warehouse_code, location_code, batch_no
) ledger USING (tenant_id, item_code, warehouse_code, location_code, batch_no)
WHERE COALESCE(layer_qty, 0) <> COALESCE(ledger_qty, 0)`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	drifts := []ConservationDrift{}
	for rows.Next() {
		var (
			d         ConservationDrift
			layerQty  pgtype.Numeric
			ledgerQty pgtype.Numeric
		)
		if err := rows.Scan(&d.Key.TenantID, &d.Key.ItemCode, &d.Key.WarehouseCode, &d.Key.LocationCode,
			&d.Key.BatchNo, &layerQty, &ledgerQty); err != nil {
			return nil, err
		}
		d.LayerQty = platformdb.DecimalFromNumeric(layerQty)
		d.LedgerQty = platformdb.DecimalFromNumeric(ledgerQty)
		drifts = append(drifts, d)
	}
	return drifts, rows.Err()
}

func (r *txRepository) LayersForUpdate(ctx context.Context, key Key) ([]Layer, error) {
	rows, err := r.tx.Query(ctx, `SELECT id, tenant_id, item_code, warehouse_code, location_code, batch_no,
	origin_entry_id, original_qty, remaining_qty, unit_cost, posting_date
FROM stock_fifo_layers
WHERE tenant_id=$1 AND item_code=$2 AND warehouse_code=$3 AND location_code=$4 AND batch_no=$5 AND remaining_qty > 0
ORDER BY posting_date ASC, origin_entry_id ASC
FOR UPDATE`,
		key.TenantID, key.ItemCode, key.WarehouseCode, key.LocationCode, key.BatchNo)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	layers := []Layer{}
	for rows.Next() {
		var (
			layer     Layer
			original  pgtype.Numeric
			remaining pgtype.Numeric
			cost      pgtype.Numeric
		)
		if err := rows.Scan(&layer.ID, &layer.Key.TenantID, &layer.Key.ItemCode, &layer.Key.WarehouseCode,
			&layer.Key.LocationCode, &layer.Key.BatchNo, &layer.OriginEntryID, &original, &remaining, &cost,
			&layer.PostingDate); err != nil {
			return nil, err
		}
		layer.OriginalQty = platformdb.DecimalFromNumeric(original)
		layer.RemainingQty = platformdb.DecimalFromNumeric(remaining)
		layer.UnitCost = platformdb.DecimalFromNumeric(cost)
		layers = append(layers, layer)
	}
	return layers, rows.Err()
}

func (r *txRepository) InsertEntry(ctx context.Context, entry LedgerEntry) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO stock_ledger_entries
	(tenant_id, item_code, warehouse_code, location_code, batch_no, movement_type, quantity, unit_cost, total_cost,
	 reference_number, correlation_id, from_location, to_location, posted_at, created_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,NOW())
RETURNING id`,
		entry.Key.TenantID, entry.Key.ItemCode, entry.Key.WarehouseCode, entry.Key.LocationCode, entry.Key.BatchNo,
		string(entry.Type), platformdb.NumericFromDecimal(entry.Quantity), platformdb.NumericFromDecimal(entry.UnitCost),
		platformdb.NumericFromDecimal(entry.TotalCost),
		entry.ReferenceNumber, nullUUID(entry.CorrelationID), entry.FromLocation, entry.ToLocation,
		entry.PostedAt, entry.CreatedBy).Scan(&id)
	return id, err
}

func (r *txRepository) InsertLayer(ctx context.Context, layer Layer) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO stock_fifo_layers
	(tenant_id, item_code, warehouse_code, location_code, batch_no, origin_entry_id, original_qty, remaining_qty, unit_cost, posting_date)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
RETURNING id`,
		layer.Key.TenantID, layer.Key.ItemCode, layer.Key.WarehouseCode, layer.Key.LocationCode, layer.Key.BatchNo,
		layer.OriginEntryID, platformdb.NumericFromDecimal(layer.OriginalQty),
		platformdb.NumericFromDecimal(layer.RemainingQty), platformdb.NumericFromDecimal(layer.UnitCost),
		layer.PostingDate).Scan(&id)
	return id, err
}

func (r *txRepository) ApplyConsumptions(ctx context.Context, consumptions []layerConsumption) error {
	for _, c := range consumptions {
		tag, err := r.tx.Exec(ctx, `UPDATE stock_fifo_layers
SET remaining_qty = remaining_qty - $2
WHERE id = $1 AND remaining_qty >= $2`, c.LayerID, platformdb.NumericFromDecimal(c.Quantity))
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrInsufficientStock
		}
	}
	return nil
}

func (r *txRepository) ActiveReservedQty(ctx context.Context, key Key) (decimal.Decimal, error) {
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

func parseUUID(s string) uuid.UUID {
	if s == "" {
		return uuid.Nil
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil
	}
	return id
}

func nullUUID(id uuid.UUID) any {
	if id == uuid.Nil {
		return nil
	}
	return id
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
