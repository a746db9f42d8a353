package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/stockpile-erp/stockpile/internal/shared"
)

// Service manages batch identities. Status reads resolve expiry lazily
// against the clock; the background sweep persists the flag for
// consumers reading the table directly.
type Service struct {
	repo   RepositoryPort
	logger *slog.Logger
	clock  func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:   repo,
		logger: logger,
		clock:  func() time.Time { return time.Now().UTC() },
	}
}

// Create registers a batch identity. Quantity always stays derived
// from ledger entries, so creation never takes one.
func (s *Service) Create(ctx context.Context, input Input) (Record, error) {
	if input.TenantID == uuid.Nil {
		return Record{}, shared.ErrTenantMissing
	}
	if input.BatchNumber == "" || input.ItemCode == "" || input.WarehouseCode == "" {
		return Record{}, errors.New("batch: batch number, item and warehouse required")
	}
	rec := Record{
		TenantID:          input.TenantID,
		BatchNumber:       input.BatchNumber,
		ItemCode:          input.ItemCode,
		WarehouseCode:     input.WarehouseCode,
		ManufacturingDate: input.ManufacturingDate,
		ExpiryDate:        input.ExpiryDate,
		Status:            StatusAvailable,
		SupplierCode:      input.SupplierCode,
	}
	id, err := s.repo.Insert(ctx, rec)
	if err != nil {
		return Record{}, err
	}
	rec.ID = id
	rec.CreatedAt = s.clock()
	rec.UpdatedAt = rec.CreatedAt
	rec.Status = rec.EffectiveStatus(s.clock())

	s.logger.Info("created batch",
		slog.String("batch_number", rec.BatchNumber),
		slog.String("item_code", rec.ItemCode),
		slog.String("warehouse_code", rec.WarehouseCode))
	return rec, nil
}

// List returns batches with lazily resolved status and ledger-derived
// quantity. A status filter matches the effective status.
func (s *Service) List(ctx context.Context, filter Filter) ([]Record, shared.Pagination, error) {
	if filter.TenantID == uuid.Nil {
		return nil, shared.Pagination{}, shared.ErrTenantMissing
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, shared.Pagination{}, fmt.Errorf("%w: unknown status %q", ErrInvalidStateTransition, filter.Status)
	}

	// status filtering happens here, not in SQL, because stored status
	// lags behind expiry until the sweep runs; pagination follows the
	// filter for the same reason
	stored := filter
	stored.Status = ""
	records, err := s.repo.List(ctx, stored)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	now := s.clock()
	out := make([]Record, 0, len(records))
	for _, rec := range records {
		rec.Status = rec.EffectiveStatus(now)
		if filter.Status != "" && rec.Status != filter.Status {
			continue
		}
		out = append(out, rec)
	}

	page, limit := shared.NormalizePage(filter.Page, filter.Limit, 500)
	total := len(out)
	offset := (page - 1) * limit
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return out[offset:end], shared.NewPagination(page, limit, total), nil
}

// UpdateStatus applies an operator-driven status change. Expired
// batches reject all changes; forbidden edges fail with
// ErrInvalidStateTransition.
func (s *Service) UpdateStatus(ctx context.Context, tenantID uuid.UUID, batchNumber, itemCode, warehouseCode string, to Status) (Record, error) {
	if tenantID == uuid.Nil {
		return Record{}, shared.ErrTenantMissing
	}
	if !to.Valid() || to == StatusExpired {
		return Record{}, fmt.Errorf("%w: cannot set status %q", ErrInvalidStateTransition, to)
	}

	rec, err := s.repo.Find(ctx, tenantID, batchNumber, itemCode, warehouseCode)
	if err != nil {
		return Record{}, err
	}
	now := s.clock()
	from := rec.EffectiveStatus(now)
	if from == StatusExpired {
		return Record{}, ErrBatchExpired
	}
	if !CanTransition(from, to) {
		return Record{}, fmt.Errorf("%w: %s -> %s", ErrInvalidStateTransition, from, to)
	}

	if err := s.repo.SetStatus(ctx, rec.ID, to); err != nil {
		return Record{}, err
	}
	rec.Status = to
	rec.UpdatedAt = now

	s.logger.Info("batch status changed",
		slog.String("batch_number", rec.BatchNumber),
		slog.String("from", string(from)),
		slog.String("to", string(to)))
	return rec, nil
}

// Expiring lists batches whose expiry falls within the coming days.
func (s *Service) Expiring(ctx context.Context, tenantID uuid.UUID, days int) ([]Record, error) {
	if tenantID == uuid.Nil {
		return nil, shared.ErrTenantMissing
	}
	if days <= 0 {
		return nil, errors.New("batch: days must be positive")
	}
	return s.repo.Expiring(ctx, tenantID, s.clock().AddDate(0, 0, days))
}

// SweepExpired persists expired status for all due batches across
// tenants. Called from the scheduled job.
func (s *Service) SweepExpired(ctx context.Context) (int64, error) {
	count, err := s.repo.MarkExpiredDue(ctx, s.clock())
	if err != nil {
		return 0, err
	}
	if count > 0 {
		s.logger.Info("expired batches", slog.Int64("count", count))
	}
	return count, nil
}
