package reservation

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/stockpile-erp/stockpile/internal/stock"
)

// Reservation is a soft hold against available stock. It never moves
// quantity; it only shrinks what issues and further reservations may
// consume until released.
type Reservation struct {
	ID             int64
	Key            stock.Key
	OrderReference string
	Quantity       decimal.Decimal
	CreatedBy      string
	CreatedAt      time.Time
	ReleasedAt     *time.Time
}

// Active reports whether the hold still counts against availability.
func (r Reservation) Active() bool {
	return r.ReleasedAt == nil
}

// Input describes a reservation request.
type Input struct {
	Key            stock.Key
	OrderReference string
	Quantity       decimal.Decimal
	CreatedBy      string
}

// Filter narrows reservation listings.
type Filter struct {
	TenantID       uuid.UUID
	ItemCode       string
	WarehouseCode  string
	OrderReference string
	ActiveOnly     bool
	Page           int
	Limit          int
}

// Availability is the quantity picture for one stock key.
type Availability struct {
	Key       stock.Key
	Actual    decimal.Decimal
	Reserved  decimal.Decimal
	Available decimal.Decimal
}

// ErrInsufficientAvailable triggered when a reservation exceeds
// available quantity (actual minus active reservations).
var ErrInsufficientAvailable = errors.New("reservation: insufficient available stock")

// ErrInvalidQuantity indicates a non-positive reservation quantity.
var ErrInvalidQuantity = errors.New("reservation: quantity must be positive")
