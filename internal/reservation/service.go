package reservation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/stockpile-erp/stockpile/internal/shared"
	"github.com/stockpile-erp/stockpile/internal/stock"
)

// Service manages soft holds on stock. Reserve shares the per-key lock
// with ledger postings, so the availability check and the insert are
// atomic against concurrent issues and reservations.
type Service struct {
	repo   RepositoryPort
	locks  shared.Locker
	logger *slog.Logger
	clock  func() time.Time
}

// NewService builds Service. The Locker must be the same instance the
// stock service uses, otherwise reservations race against postings.
func NewService(repo RepositoryPort, locks shared.Locker, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if locks == nil {
		locks = shared.NewKeyMutex()
	}
	return &Service{
		repo:   repo,
		locks:  locks,
		logger: logger,
		clock:  func() time.Time { return time.Now().UTC() },
	}
}

// Reserve places a hold after verifying available quantity, where
// available is actual on-hand minus already active reservations.
func (s *Service) Reserve(ctx context.Context, input Input) (Reservation, error) {
	if err := input.Key.Validate(); err != nil {
		return Reservation{}, err
	}
	if !input.Quantity.IsPositive() {
		return Reservation{}, ErrInvalidQuantity
	}

	release, err := s.locks.Lock(ctx, input.Key.String())
	if err != nil {
		return Reservation{}, err
	}
	defer release()

	res := Reservation{
		Key:            input.Key,
		OrderReference: input.OrderReference,
		Quantity:       input.Quantity,
		CreatedBy:      input.CreatedBy,
		CreatedAt:      s.clock(),
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		actual, err := tx.RemainingQty(ctx, input.Key)
		if err != nil {
			return err
		}
		reserved, err := tx.ActiveReservedQty(ctx, input.Key)
		if err != nil {
			return err
		}
		available := actual.Sub(reserved)
		if available.LessThan(input.Quantity) {
			return fmt.Errorf("%w: requested %s, available %s", ErrInsufficientAvailable, input.Quantity, available)
		}
		id, err := tx.Insert(ctx, res)
		if err != nil {
			return err
		}
		res.ID = id
		return nil
	})
	if err != nil {
		return Reservation{}, err
	}

	s.logger.Info("reserved stock",
		slog.String("key", input.Key.String()),
		slog.String("qty", input.Quantity.String()),
		slog.String("order_reference", input.OrderReference),
		slog.Int64("reservation_id", res.ID))
	return res, nil
}

// Release lifts a hold. Releasing an already released reservation is a
// no-op that still succeeds, so retried release requests stay safe.
func (s *Service) Release(ctx context.Context, tenantID uuid.UUID, id int64) (Reservation, error) {
	if tenantID == uuid.Nil {
		return Reservation{}, shared.ErrTenantMissing
	}

	var res Reservation
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		found, err := tx.Get(ctx, id)
		if err != nil {
			return err
		}
		if found.Key.TenantID != tenantID {
			return shared.ErrNotFound
		}
		released, err := tx.Release(ctx, id)
		if err != nil {
			return err
		}
		if released {
			now := s.clock()
			found.ReleasedAt = &now
		}
		res = found
		return nil
	})
	if err != nil {
		return Reservation{}, err
	}

	s.logger.Info("released reservation",
		slog.String("key", res.Key.String()),
		slog.Int64("reservation_id", id))
	return res, nil
}

// List returns reservations matching the filter.
func (s *Service) List(ctx context.Context, filter Filter) ([]Reservation, shared.Pagination, error) {
	if filter.TenantID == uuid.Nil {
		return nil, shared.Pagination{}, shared.ErrTenantMissing
	}
	filter.Page, filter.Limit = shared.NormalizePage(filter.Page, filter.Limit, 500)
	reservations, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return reservations, shared.NewPagination(filter.Page, filter.Limit, total), nil
}

// Availability reports the quantity picture for one key.
func (s *Service) Availability(ctx context.Context, key stock.Key) (Availability, error) {
	if err := key.Validate(); err != nil {
		return Availability{}, err
	}
	avail := Availability{Key: key}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		actual, err := tx.RemainingQty(ctx, key)
		if err != nil {
			return err
		}
		reserved, err := tx.ActiveReservedQty(ctx, key)
		if err != nil {
			return err
		}
		avail.Actual = actual
		avail.Reserved = reserved
		avail.Available = actual.Sub(reserved)
		return nil
	})
	return avail, err
}
