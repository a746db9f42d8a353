package batch

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status enumerates batch lifecycle states.
type Status string

const (
	StatusAvailable  Status = "available"
	StatusReserved   Status = "reserved"
	StatusExpired    Status = "expired"
	StatusQuarantine Status = "quarantine"
)

// Valid reports whether the status is a known value.
func (s Status) Valid() bool {
	switch s {
	case StatusAvailable, StatusReserved, StatusExpired, StatusQuarantine:
		return true
	}
	return false
}

// manualTransitions lists the operator-driven edges. Expiry is time
// triggered and handled separately; expired is irreversible.
var manualTransitions = map[Status][]Status{
	StatusAvailable:  {StatusReserved, StatusQuarantine},
	StatusReserved:   {StatusAvailable},
	StatusQuarantine: {StatusAvailable},
}

// CanTransition reports whether an operator may move a batch from one
// status to another.
func CanTransition(from, to Status) bool {
	for _, allowed := range manualTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Record is one batch identity. Quantity is derived from the ledger
// entries referencing this batch and is never written through the API.
type Record struct {
	ID                int64
	TenantID          uuid.UUID
	BatchNumber       string
	ItemCode          string
	WarehouseCode     string
	Quantity          decimal.Decimal
	ManufacturingDate *time.Time
	ExpiryDate        *time.Time
	Status            Status
	SupplierCode      string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// EffectiveStatus resolves expiry lazily: a batch whose expiry date
// has passed reads as expired regardless of the stored status.
func (r Record) EffectiveStatus(asOf time.Time) Status {
	if r.Status == StatusExpired {
		return StatusExpired
	}
	if r.ExpiryDate != nil && r.ExpiryDate.Before(asOf) {
		return StatusExpired
	}
	return r.Status
}

// Input describes a batch creation request.
type Input struct {
	TenantID          uuid.UUID
	BatchNumber       string
	ItemCode          string
	WarehouseCode     string
	ManufacturingDate *time.Time
	ExpiryDate        *time.Time
	SupplierCode      string
}

// Filter narrows batch listings.
type Filter struct {
	TenantID      uuid.UUID
	ItemCode      string
	WarehouseCode string
	BatchNumber   string
	Status        Status
	Page          int
	Limit         int
}

// ErrBatchExpired indicates an operation against an expired batch.
var ErrBatchExpired = errors.New("batch: batch is expired")

// ErrInvalidStateTransition indicates a forbidden status change.
var ErrInvalidStateTransition = errors.New("batch: invalid state transition")

// ErrDuplicateBatch indicates the batch identity already exists.
var ErrDuplicateBatch = errors.New("batch: batch already exists")
