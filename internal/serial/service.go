package serial

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/stockpile-erp/stockpile/internal/shared"
)

const (
	actionCreated      = "created"
	actionStatusChange = "status_change"
)

// ServiceConfig groups optional settings.
type ServiceConfig struct {
	// BulkChunkSize bounds how many serials are inserted per statement
	// batch inside the bulk creation transaction.
	BulkChunkSize int
	// MaxBulkCount caps a single bulk request.
	MaxBulkCount int
}

// Service manages serial identities and their append-only history.
type Service struct {
	repo   RepositoryPort
	logger *slog.Logger
	cfg    ServiceConfig
	clock  func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort, logger *slog.Logger, cfg ServiceConfig) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BulkChunkSize <= 0 {
		cfg.BulkChunkSize = 500
	}
	if cfg.MaxBulkCount <= 0 {
		cfg.MaxBulkCount = 10000
	}
	return &Service{
		repo:   repo,
		logger: logger,
		cfg:    cfg,
		clock:  func() time.Time { return time.Now().UTC() },
	}
}

// Create registers one serial.
func (s *Service) Create(ctx context.Context, input Input) (Record, error) {
	if input.TenantID == uuid.Nil {
		return Record{}, shared.ErrTenantMissing
	}
	if input.SerialNumber == "" || input.ItemCode == "" || input.WarehouseCode == "" {
		return Record{}, errors.New("serial: serial number, item and warehouse required")
	}

	now := s.clock()
	rec := Record{
		TenantID:       input.TenantID,
		SerialNumber:   input.SerialNumber,
		ItemCode:       input.ItemCode,
		WarehouseCode:  input.WarehouseCode,
		BatchNumber:    input.BatchNumber,
		Status:         StatusAvailable,
		PurchaseDate:   input.PurchaseDate,
		WarrantyExpiry: input.WarrantyExpiry,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		existing, err := tx.ExistingNumbers(ctx, input.TenantID, []string{input.SerialNumber})
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			return fmt.Errorf("%w: %s", ErrDuplicateSerialNumber, input.SerialNumber)
		}
		ids, err := tx.InsertSerials(ctx, []Record{rec})
		if err != nil {
			return err
		}
		rec.ID = ids[0]
		return tx.AppendHistory(ctx, []History{{
			SerialID:    rec.ID,
			Action:      actionCreated,
			ToStatus:    StatusAvailable,
			PerformedAt: now,
		}})
	})
	if err != nil {
		return Record{}, err
	}

	s.logger.Info("created serial",
		slog.String("serial_number", rec.SerialNumber),
		slog.String("item_code", rec.ItemCode))
	return rec, nil
}

// BulkCreate registers a consecutive range of serials. Collisions with
// existing numbers reject the whole request before anything is
// created; inserts run chunked inside one transaction.
func (s *Service) BulkCreate(ctx context.Context, input BulkInput) ([]Record, error) {
	if input.TenantID == uuid.Nil {
		return nil, shared.ErrTenantMissing
	}
	if input.ItemCode == "" || input.WarehouseCode == "" || input.Prefix == "" {
		return nil, errors.New("serial: prefix, item and warehouse required")
	}
	if input.StartNumber < 0 || input.Count <= 0 {
		return nil, errors.New("serial: start number and count must be positive")
	}
	if input.Count > s.cfg.MaxBulkCount {
		return nil, fmt.Errorf("serial: count exceeds the %d per-request cap", s.cfg.MaxBulkCount)
	}

	now := s.clock()
	records := make([]Record, 0, input.Count)
	numbers := make([]string, 0, input.Count)
	for i := 0; i < input.Count; i++ {
		number := FormatSerialNumber(input.Prefix, input.StartNumber+i)
		numbers = append(numbers, number)
		records = append(records, Record{
			TenantID:      input.TenantID,
			SerialNumber:  number,
			ItemCode:      input.ItemCode,
			WarehouseCode: input.WarehouseCode,
			BatchNumber:   input.BatchNumber,
			Status:        StatusAvailable,
			CreatedAt:     now,
			UpdatedAt:     now,
		})
	}

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		existing, err := tx.ExistingNumbers(ctx, input.TenantID, numbers)
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			return fmt.Errorf("%w: %v", ErrDuplicateSerialNumber, existing)
		}
		for start := 0; start < len(records); start += s.cfg.BulkChunkSize {
			if err := ctx.Err(); err != nil {
				return err
			}
			end := start + s.cfg.BulkChunkSize
			if end > len(records) {
				end = len(records)
			}
			ids, err := tx.InsertSerials(ctx, records[start:end])
			if err != nil {
				return err
			}
			events := make([]History, 0, len(ids))
			for i, id := range ids {
				records[start+i].ID = id
				events = append(events, History{
					SerialID:    id,
					Action:      actionCreated,
					ToStatus:    StatusAvailable,
					PerformedAt: now,
				})
			}
			if err := tx.AppendHistory(ctx, events); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("bulk created serials",
		slog.String("prefix", input.Prefix),
		slog.Int("count", input.Count),
		slog.String("item_code", input.ItemCode))
	return records, nil
}

// UpdateStatus moves a serial through its state machine, appending a
// history row in the same transaction.
func (s *Service) UpdateStatus(ctx context.Context, tenantID uuid.UUID, serialNumber string, to Status, reference string) (Record, error) {
	if tenantID == uuid.Nil {
		return Record{}, shared.ErrTenantMissing
	}
	if !to.Valid() {
		return Record{}, fmt.Errorf("%w: unknown status %q", ErrInvalidStateTransition, to)
	}

	var rec Record
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		found, err := tx.FindForUpdate(ctx, tenantID, serialNumber)
		if err != nil {
			return err
		}
		if !CanTransition(found.Status, to) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidStateTransition, found.Status, to)
		}
		if err := tx.SetStatus(ctx, found.ID, to); err != nil {
			return err
		}
		now := s.clock()
		if err := tx.AppendHistory(ctx, []History{{
			SerialID:        found.ID,
			Action:          actionStatusChange,
			FromStatus:      found.Status,
			ToStatus:        to,
			ReferenceNumber: reference,
			PerformedAt:     now,
		}}); err != nil {
			return err
		}
		found.Status = to
		found.UpdatedAt = now
		rec = found
		return nil
	})
	if err != nil {
		return Record{}, err
	}

	s.logger.Info("serial status changed",
		slog.String("serial_number", serialNumber),
		slog.String("to", string(to)))
	return rec, nil
}

// List returns serials matching the filter.
func (s *Service) List(ctx context.Context, filter Filter) ([]Record, shared.Pagination, error) {
	if filter.TenantID == uuid.Nil {
		return nil, shared.Pagination{}, shared.ErrTenantMissing
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, shared.Pagination{}, fmt.Errorf("%w: unknown status %q", ErrInvalidStateTransition, filter.Status)
	}
	filter.Page, filter.Limit = shared.NormalizePage(filter.Page, filter.Limit, 500)
	records, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return records, shared.NewPagination(filter.Page, filter.Limit, total), nil
}

// History returns the append-only event trail of one serial.
func (s *Service) History(ctx context.Context, tenantID uuid.UUID, serialNumber string) ([]History, error) {
	if tenantID == uuid.Nil {
		return nil, shared.ErrTenantMissing
	}
	events, err := s.repo.HistoryFor(ctx, tenantID, serialNumber)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, shared.ErrNotFound
	}
	return events, nil
}
