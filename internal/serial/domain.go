package serial

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Status enumerates serial lifecycle states. A serial is always
// exactly one unit; it never splits or merges.
type Status string

const (
	StatusAvailable Status = "available"
	StatusSold      Status = "sold"
	StatusReserved  Status = "reserved"
	StatusDamaged   Status = "damaged"
	StatusReturned  Status = "returned"
)

// Valid reports whether the status is a known value.
func (s Status) Valid() bool {
	switch s {
	case StatusAvailable, StatusSold, StatusReserved, StatusDamaged, StatusReturned:
		return true
	}
	return false
}

// transitions is the legal edge set. Damaged is terminal; a sold unit
// re-enters circulation only through returned.
var transitions = map[Status][]Status{
	StatusAvailable: {StatusSold, StatusReserved, StatusDamaged},
	StatusReserved:  {StatusAvailable},
	StatusSold:      {StatusReturned, StatusDamaged},
	StatusReturned:  {StatusAvailable},
}

// CanTransition reports whether a serial may move between two states.
func CanTransition(from, to Status) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Record is one serialized unit.
type Record struct {
	ID             int64
	TenantID       uuid.UUID
	SerialNumber   string
	ItemCode       string
	WarehouseCode  string
	BatchNumber    string
	Status         Status
	PurchaseDate   *time.Time
	WarrantyExpiry *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// History is one append-only lifecycle event.
type History struct {
	ID              int64
	SerialID        int64
	Action          string
	FromStatus      Status
	ToStatus        Status
	ReferenceNumber string
	PerformedAt     time.Time
}

// Input describes a single serial creation.
type Input struct {
	TenantID       uuid.UUID
	SerialNumber   string
	ItemCode       string
	WarehouseCode  string
	BatchNumber    string
	PurchaseDate   *time.Time
	WarrantyExpiry *time.Time
}

// BulkInput describes a prefix+range serial creation.
type BulkInput struct {
	TenantID      uuid.UUID
	ItemCode      string
	WarehouseCode string
	BatchNumber   string
	Prefix        string
	StartNumber   int
	Count         int
}

// Filter narrows serial listings.
type Filter struct {
	TenantID      uuid.UUID
	ItemCode      string
	WarehouseCode string
	BatchNumber   string
	Status        Status
	Page          int
	Limit         int
}

// FormatSerialNumber renders prefix plus a zero padded sequence
// number, e.g. ("SN-", 1) becomes SN-0001.
func FormatSerialNumber(prefix string, n int) string {
	return fmt.Sprintf("%s%04d", prefix, n)
}

// ErrDuplicateSerialNumber indicates a creation collision. Bulk
// creation rejects the whole request and creates zero records.
var ErrDuplicateSerialNumber = errors.New("serial: serial number already exists")

// ErrInvalidStateTransition indicates a forbidden status change.
var ErrInvalidStateTransition = errors.New("serial: invalid state transition")
