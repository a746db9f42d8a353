package stock

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/stockpile-erp/stockpile/internal/shared"
)

// MetricsPort records domain-level counters.
type MetricsPort interface {
	MovementPosted(movementType string)
}

// ServiceConfig groups optional settings.
type ServiceConfig struct {
	// AdjustmentBypassesReservations lets negative adjustments consume
	// stock that is soft-held by reservations. Administrative use.
	AdjustmentBypassesReservations bool
	// ReceiptChunkSize bounds how many receipts are posted between
	// context cancellation checks during bulk posting.
	ReceiptChunkSize int
}

// Service coordinates ledger postings. Mutations are serialized per
// stock key through the Locker; layer effects commit atomically with
// their ledger entry.
type Service struct {
	repo        RepositoryPort
	locks       shared.Locker
	idempotency *shared.IdempotencyStore
	logger      *slog.Logger
	metrics     MetricsPort
	cfg         ServiceConfig
	clock       func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort, locks shared.Locker, idem *shared.IdempotencyStore, logger *slog.Logger, metrics MetricsPort, cfg ServiceConfig) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if locks == nil {
		locks = shared.NewKeyMutex()
	}
	if cfg.ReceiptChunkSize <= 0 {
		cfg.ReceiptChunkSize = 100
	}
	return &Service{
		repo:        repo,
		locks:       locks,
		idempotency: idem,
		logger:      logger,
		metrics:     metrics,
		cfg:         cfg,
		clock:       func() time.Time { return time.Now().UTC() },
	}
}

// PostReceipt posts an inbound receipt and creates its cost layer.
func (s *Service) PostReceipt(ctx context.Context, input ReceiptInput) (LedgerEntry, error) {
	if err := input.Key.Validate(); err != nil {
		return LedgerEntry{}, err
	}
	if !input.Quantity.IsPositive() {
		return LedgerEntry{}, ErrInvalidQuantity
	}
	if input.UnitCost.IsNegative() {
		return LedgerEntry{}, ErrInvalidUnitCost
	}
	entry := LedgerEntry{
		Key:             input.Key,
		Type:            MovementReceipt,
		Quantity:        input.Quantity,
		UnitCost:        input.UnitCost,
		ReferenceNumber: input.ReferenceNumber,
		PostedAt:        s.postedAt(input.PostedAt),
		CreatedBy:       input.CreatedBy,
	}
	return s.postSingle(ctx, entry)
}

// PostIssue posts an outbound issue, consuming FIFO layers. The issue
// fails with ErrInsufficientStock when it exceeds available quantity
// (actual minus active reservations).
func (s *Service) PostIssue(ctx context.Context, input IssueInput) (LedgerEntry, error) {
	if err := input.Key.Validate(); err != nil {
		return LedgerEntry{}, err
	}
	if !input.Quantity.IsPositive() {
		return LedgerEntry{}, ErrInvalidQuantity
	}
	entry := LedgerEntry{
		Key:             input.Key,
		Type:            MovementIssue,
		Quantity:        input.Quantity.Neg(),
		ReferenceNumber: input.ReferenceNumber,
		PostedAt:        s.postedAt(input.PostedAt),
		CreatedBy:       input.CreatedBy,
	}
	return s.postSingle(ctx, entry)
}

// PostAdjustment posts a signed adjustment. Positive adjustments create
// a layer at the supplied (or zero) unit cost; negative adjustments
// consume FIFO layers like issues but bypass the reservation check when
// configured.
func (s *Service) PostAdjustment(ctx context.Context, input AdjustmentInput) (LedgerEntry, error) {
	if err := input.Key.Validate(); err != nil {
		return LedgerEntry{}, err
	}
	if input.Quantity.IsZero() {
		return LedgerEntry{}, ErrInvalidQuantity
	}
	if input.Quantity.IsPositive() && input.UnitCost.IsNegative() {
		return LedgerEntry{}, ErrInvalidUnitCost
	}
	entry := LedgerEntry{
		Key:             input.Key,
		Type:            MovementAdjustment,
		Quantity:        input.Quantity,
		UnitCost:        input.UnitCost,
		ReferenceNumber: input.ReferenceNumber,
		PostedAt:        s.postedAt(input.PostedAt),
		CreatedBy:       input.CreatedBy,
	}
	return s.postSingle(ctx, entry)
}

// PostTransfer moves stock between two keys as OUT + IN entries sharing
// a correlation id. Both legs commit in one transaction; the IN leg
// receives one new layer at the weighted-average cost of the consumed
// source layers.
func (s *Service) PostTransfer(ctx context.Context, input TransferInput) (LedgerEntry, LedgerEntry, error) {
	if err := validateTransfer(input); err != nil {
		return LedgerEntry{}, LedgerEntry{}, err
	}
	postedAt := s.postedAt(input.PostedAt)
	correlation := uuid.New()

	release, err := s.locks.LockPair(ctx, input.Source.String(), input.Destination.String())
	if err != nil {
		return LedgerEntry{}, LedgerEntry{}, err
	}
	defer release()

	idemKey, err := s.claimIdempotency(ctx, MovementTransfer, input.ReferenceNumber, input.Source)
	if err != nil {
		return LedgerEntry{}, LedgerEntry{}, err
	}

	var outEntry, inEntry LedgerEntry
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		layers, err := tx.LayersForUpdate(ctx, input.Source)
		if err != nil {
			return err
		}
		reserved, err := tx.ActiveReservedQty(ctx, input.Source)
		if err != nil {
			return err
		}
		available := sumRemaining(layers).Sub(reserved)
		if available.LessThan(input.Quantity) {
			return ErrInsufficientStock
		}
		consumptions, totalCost, err := consumeLayers(layers, input.Quantity)
		if err != nil {
			return err
		}
		rate := weightedRate(totalCost, input.Quantity)

		outEntry = LedgerEntry{
			Key:             input.Source,
			Type:            MovementTransfer,
			Quantity:        input.Quantity.Neg(),
			UnitCost:        rate,
			TotalCost:       totalCost,
			ReferenceNumber: input.ReferenceNumber,
			CorrelationID:   correlation,
			FromLocation:    locationLabel(input.Source),
			ToLocation:      locationLabel(input.Destination),
			PostedAt:        postedAt,
			CreatedBy:       input.CreatedBy,
		}
		outID, err := tx.InsertEntry(ctx, outEntry)
		if err != nil {
			return err
		}
		outEntry.ID = outID
		if err := tx.ApplyConsumptions(ctx, consumptions); err != nil {
			return err
		}

		inEntry = LedgerEntry{
			Key:             input.Destination,
			Type:            MovementTransfer,
			Quantity:        input.Quantity,
			UnitCost:        rate,
			TotalCost:       totalCost,
			ReferenceNumber: input.ReferenceNumber,
			CorrelationID:   correlation,
			FromLocation:    locationLabel(input.Source),
			ToLocation:      locationLabel(input.Destination),
			PostedAt:        postedAt,
			CreatedBy:       input.CreatedBy,
		}
		inID, err := tx.InsertEntry(ctx, inEntry)
		if err != nil {
			return err
		}
		inEntry.ID = inID

		_, err = tx.InsertLayer(ctx, Layer{
			Key:           input.Destination,
			OriginEntryID: inID,
			OriginalQty:   input.Quantity,
			RemainingQty:  input.Quantity,
			UnitCost:      rate,
			PostingDate:   postedAt,
		})
		return err
	})
	if err != nil {
		s.rollbackIdempotency(ctx, idemKey)
		return LedgerEntry{}, LedgerEntry{}, err
	}

	s.observe(MovementTransfer)
	s.logger.Info("posted transfer",
		slog.String("source", input.Source.String()),
		slog.String("destination", input.Destination.String()),
		slog.String("qty", input.Quantity.String()),
		slog.String("correlation_id", correlation.String()))
	return outEntry, inEntry, nil
}

// PostBulkReceipts posts receipts in chunks. Each receipt is its own
// atomic unit, so a timeout aborts cleanly between chunks without
// leaving layers half-created.
func (s *Service) PostBulkReceipts(ctx context.Context, inputs []ReceiptInput) ([]LedgerEntry, error) {
	entries := make([]LedgerEntry, 0, len(inputs))
	for i, input := range inputs {
		if i%s.cfg.ReceiptChunkSize == 0 {
			if err := ctx.Err(); err != nil {
				return entries, err
			}
		}
		entry, err := s.PostReceipt(ctx, input)
		if err != nil {
			return entries, fmt.Errorf("stock: bulk receipt %d: %w", i, err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Movements lists one page of ledger entries together with an
// aggregate summary over the whole filtered set.
func (s *Service) Movements(ctx context.Context, filter MovementFilter) ([]LedgerEntry, MovementSummary, shared.Pagination, error) {
	if filter.TenantID == uuid.Nil {
		return nil, MovementSummary{}, shared.Pagination{}, shared.ErrTenantMissing
	}
	if filter.Type != "" && !filter.Type.Valid() {
		return nil, MovementSummary{}, shared.Pagination{}, fmt.Errorf("%w: unknown movement type %q", ErrInvalidQuantity, filter.Type)
	}
	filter.Page, filter.Limit = shared.NormalizePage(filter.Page, filter.Limit, 500)
	entries, err := s.repo.ListMovements(ctx, filter)
	if err != nil {
		return nil, MovementSummary{}, shared.Pagination{}, err
	}
	summary, total, err := s.repo.SummarizeMovements(ctx, filter)
	if err != nil {
		return nil, MovementSummary{}, shared.Pagination{}, err
	}
	return entries, summary, shared.NewPagination(filter.Page, filter.Limit, total), nil
}

// postSingle serializes, validates availability and commits one entry
// together with its layer effect.
func (s *Service) postSingle(ctx context.Context, entry LedgerEntry) (LedgerEntry, error) {
	release, err := s.locks.Lock(ctx, entry.Key.String())
	if err != nil {
		return LedgerEntry{}, err
	}
	defer release()

	idemKey, err := s.claimIdempotency(ctx, entry.Type, entry.ReferenceNumber, entry.Key)
	if err != nil {
		return LedgerEntry{}, err
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if entry.Quantity.IsPositive() {
			entry.TotalCost = entry.Quantity.Mul(entry.UnitCost)
			id, err := tx.InsertEntry(ctx, entry)
			if err != nil {
				return err
			}
			entry.ID = id
			_, err = tx.InsertLayer(ctx, Layer{
				Key:           entry.Key,
				OriginEntryID: id,
				OriginalQty:   entry.Quantity,
				RemainingQty:  entry.Quantity,
				UnitCost:      entry.UnitCost,
				PostingDate:   entry.PostedAt,
			})
			return err
		}

		layers, err := tx.LayersForUpdate(ctx, entry.Key)
		if err != nil {
			return err
		}
		needed := entry.Quantity.Neg()
		if s.respectsReservations(entry.Type) {
			reserved, err := tx.ActiveReservedQty(ctx, entry.Key)
			if err != nil {
				return err
			}
			if sumRemaining(layers).Sub(reserved).LessThan(needed) {
				return ErrInsufficientStock
			}
		}
		consumptions, totalCost, err := consumeLayers(layers, needed)
		if err != nil {
			return err
		}
		entry.UnitCost = weightedRate(totalCost, needed)
		entry.TotalCost = totalCost
		id, err := tx.InsertEntry(ctx, entry)
		if err != nil {
			return err
		}
		entry.ID = id
		return tx.ApplyConsumptions(ctx, consumptions)
	})
	if err != nil {
		s.rollbackIdempotency(ctx, idemKey)
		return LedgerEntry{}, err
	}

	s.observe(entry.Type)
	s.logger.Info("posted movement",
		slog.String("type", string(entry.Type)),
		slog.String("key", entry.Key.String()),
		slog.String("qty", entry.Quantity.String()),
		slog.Int64("entry_id", entry.ID))
	return entry, nil
}

func (s *Service) respectsReservations(t MovementType) bool {
	if t == MovementAdjustment && s.cfg.AdjustmentBypassesReservations {
		return false
	}
	return true
}

func (s *Service) claimIdempotency(ctx context.Context, t MovementType, reference string, key Key) (string, error) {
	if s.idempotency == nil || reference == "" {
		return "", nil
	}
	idemKey := fmt.Sprintf("%s:%s:%s", t, reference, key.String())
	if err := s.idempotency.CheckAndInsert(ctx, idemKey, "stock"); err != nil {
		return "", err
	}
	return idemKey, nil
}

func (s *Service) rollbackIdempotency(ctx context.Context, key string) {
	if key == "" {
		return
	}
	_ = s.idempotency.Delete(ctx, key)
}

func (s *Service) observe(t MovementType) {
	if s.metrics != nil {
		s.metrics.MovementPosted(string(t))
	}
}

func (s *Service) postedAt(t time.Time) time.Time {
	if t.IsZero() {
		return s.clock()
	}
	return t.UTC()
}

func validateTransfer(input TransferInput) error {
	if err := input.Source.Validate(); err != nil {
		return ErrInvalidTransferLocations
	}
	if err := input.Destination.Validate(); err != nil {
		return ErrInvalidTransferLocations
	}
	if input.Source.TenantID != input.Destination.TenantID ||
		input.Source.ItemCode != input.Destination.ItemCode ||
		input.Source.BatchNo != input.Destination.BatchNo {
		return ErrInvalidTransferLocations
	}
	if input.Source == input.Destination {
		return ErrInvalidTransferLocations
	}
	if !input.Quantity.IsPositive() {
		return ErrInvalidQuantity
	}
	return nil
}

func locationLabel(key Key) string {
	if key.LocationCode != "" {
		return key.WarehouseCode + "/" + key.LocationCode
	}
	return key.WarehouseCode
}
