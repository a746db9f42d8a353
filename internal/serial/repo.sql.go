package serial

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/stockpile-erp/stockpile/internal/shared"
)

const selectColumns = `id, tenant_id, serial_number, item_code, warehouse_code, batch_number,
	status, purchase_date, warranty_expiry, created_at, updated_at`

const listFilterClause = `
WHERE tenant_id=$1
  AND ($2='' OR item_code=$2)
  AND ($3='' OR warehouse_code=$3)
  AND ($4='' OR batch_number=$4)
  AND ($5='' OR status=$5)`

func (r *Repository) List(ctx context.Context, filter Filter) ([]Record, int, error) {
	if r == nil {
		return nil, 0, errors.New("serial repository not initialised")
	}
	var total int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM serials`+listFilterClause,
		filter.TenantID, filter.ItemCode, filter.WarehouseCode, filter.BatchNumber, string(filter.Status)).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	page, limit := shared.NormalizePage(filter.Page, filter.Limit, 500)
	rows, err := r.pool.Query(ctx, `SELECT `+selectColumns+`
FROM serials`+listFilterClause+`
ORDER BY serial_number
LIMIT $6 OFFSET $7`,
		filter.TenantID, filter.ItemCode, filter.WarehouseCode, filter.BatchNumber, string(filter.Status),
		limit, (page-1)*limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, 0, err
		}
		records = append(records, rec)
	}
	return records, total, rows.Err()
}

func (r *Repository) HistoryFor(ctx context.Context, tenantID uuid.UUID, serialNumber string) ([]History, error) {
	if r == nil {
		return nil, errors.New("serial repository not initialised")
	}
	rows, err := r.pool.Query(ctx, `SELECT h.id, h.serial_id, h.action, h.from_status, h.to_status,
	h.reference_number, h.performed_at
FROM serial_history h
JOIN serials s ON s.id = h.serial_id
WHERE s.tenant_id=$1 AND s.serial_number=$2
ORDER BY h.performed_at ASC, h.id ASC`, tenantID, serialNumber)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := []History{}
	for rows.Next() {
		var event History
		if err := rows.Scan(&event.ID, &event.SerialID, &event.Action, &event.FromStatus, &event.ToStatus,
			&event.ReferenceNumber, &event.PerformedAt); err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

func (r *txRepository) ExistingNumbers(ctx context.Context, tenantID uuid.UUID, numbers []string) ([]string, error) {
	rows, err := r.tx.Query(ctx, `SELECT serial_number FROM serials
WHERE tenant_id=$1 AND serial_number = ANY($2)
ORDER BY serial_number`, tenantID, numbers)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	existing := []string{}
	for rows.Next() {
		var number string
		if err := rows.Scan(&number); err != nil {
			return nil, err
		}
		existing = append(existing, number)
	}
	return existing, rows.Err()
}

func (r *txRepository) InsertSerials(ctx context.Context, records []Record) ([]int64, error) {
	ids := make([]int64, 0, len(records))
	for _, rec := range records {
		var id int64
		err := r.tx.QueryRow(ctx, `INSERT INTO serials
	(tenant_id, serial_number, item_code, warehouse_code, batch_number, status, purchase_date, warranty_expiry, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,NOW(),NOW())
RETURNING id`,
			rec.TenantID, rec.SerialNumber, rec.ItemCode, rec.WarehouseCode, rec.BatchNumber,
			string(rec.Status), rec.PurchaseDate, rec.WarrantyExpiry).Scan(&id)
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrDuplicateSerialNumber
		}
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (r *txRepository) FindForUpdate(ctx context.Context, tenantID uuid.UUID, serialNumber string) (Record, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+selectColumns+`
FROM serials
WHERE tenant_id=$1 AND serial_number=$2
FOR UPDATE`, tenantID, serialNumber)
	rec, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, shared.ErrNotFound
	}
	return rec, err
}

func (r *txRepository) SetStatus(ctx context.Context, id int64, status Status) error {
	tag, err := r.tx.Exec(ctx, `UPDATE serials SET status=$2, updated_at=NOW() WHERE id=$1`, id, string(status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *txRepository) AppendHistory(ctx context.Context, events []History) error {
	for _, event := range events {
		if _, err := r.tx.Exec(ctx, `INSERT INTO serial_history
	(serial_id, action, from_status, to_status, reference_number, performed_at)
VALUES ($1,$2,$3,$4,$5,$6)`,
			event.SerialID, event.Action, string(event.FromStatus), string(event.ToStatus),
			event.ReferenceNumber, event.PerformedAt); err != nil {
			return err
		}
	}
	return nil
}

func scanRecord(row pgx.Row) (Record, error) {
	var rec Record
	if err := row.Scan(&rec.ID, &rec.TenantID, &rec.SerialNumber, &rec.ItemCode, &rec.WarehouseCode,
		&rec.BatchNumber, &rec.Status, &rec.PurchaseDate, &rec.WarrantyExpiry,
		&rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return Record{}, err
	}
	return rec, nil
}
