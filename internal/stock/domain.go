package stock

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MovementType enumerates supported stock movements.
type MovementType string

const (
	// MovementReceipt represents an inbound goods receipt.
	MovementReceipt MovementType = "receipt"
	// MovementIssue represents an outbound issue.
	MovementIssue MovementType = "issue"
	// MovementTransfer marks both legs of a warehouse transfer.
	MovementTransfer MovementType = "transfer"
	// MovementAdjustment indicates a manual adjustment.
	MovementAdjustment MovementType = "adjustment"
)

// Valid reports whether the movement type is one of the known values.
func (t MovementType) Valid() bool {
	switch t {
	case MovementReceipt, MovementIssue, MovementTransfer, MovementAdjustment:
		return true
	}
	return false
}

// Key identifies one trackable inventory position. LocationCode and
// BatchNo are optional dimensions: empty means the item is not tracked
// at that granularity. At ledger level a key is always fully qualified;
// empty values act as wildcards only in query filters.
type Key struct {
	TenantID      uuid.UUID
	ItemCode      string
	WarehouseCode string
	LocationCode  string
	BatchNo       string
}

// Validate checks the mandatory dimensions.
func (k Key) Validate() error {
	if k.TenantID == uuid.Nil {
		return errors.New("stock: tenant required")
	}
	if k.ItemCode == "" || k.WarehouseCode == "" {
		return errors.New("stock: item and warehouse required")
	}
	return nil
}

// String renders the canonical form used for lock keys and diagnostics.
func (k Key) String() string {
	return strings.Join([]string{k.TenantID.String(), k.ItemCode, k.WarehouseCode, k.LocationCode, k.BatchNo}, "|")
}

// LedgerEntry is one immutable signed movement record. Corrections are
// posted as new reversing entries, never edits.
type LedgerEntry struct {
	ID              int64
	Key             Key
	Type            MovementType
	Quantity        decimal.Decimal // signed: positive increases stock
	UnitCost        decimal.Decimal // layer cost for increases, realized weighted rate for decreases
	TotalCost       decimal.Decimal // exact cost effect: qty*cost for increases, consumed layer cost for decreases
	ReferenceNumber string
	CorrelationID   uuid.UUID // links the two legs of a transfer
	FromLocation    string
	ToLocation      string
	PostedAt        time.Time
	CreatedBy       string
	CreatedAt       time.Time
}

// Layer is a cost-bearing slice of quantity created by an increase
// movement. Exhausted layers (RemainingQty zero) are retained for
// audit and aging history.
type Layer struct {
	ID            int64
	Key           Key
	OriginEntryID int64
	OriginalQty   decimal.Decimal
	RemainingQty  decimal.Decimal
	UnitCost      decimal.Decimal
	PostingDate   time.Time
}

// ReceiptInput describes a goods receipt posting.
type ReceiptInput struct {
	Key             Key
	Quantity        decimal.Decimal
	UnitCost        decimal.Decimal
	ReferenceNumber string
	PostedAt        time.Time
	CreatedBy       string
}

// IssueInput describes an outbound issue posting.
type IssueInput struct {
	Key             Key
	Quantity        decimal.Decimal
	ReferenceNumber string
	PostedAt        time.Time
	CreatedBy       string
}

// AdjustmentInput describes a signed stock adjustment.
type AdjustmentInput struct {
	Key             Key
	Quantity        decimal.Decimal // signed
	UnitCost        decimal.Decimal // used when Quantity is positive
	ReferenceNumber string
	PostedAt        time.Time
	CreatedBy       string
}

// TransferInput moves stock between two keys of the same tenant, item
// and batch.
type TransferInput struct {
	Source          Key
	Destination     Key
	Quantity        decimal.Decimal
	ReferenceNumber string
	PostedAt        time.Time
	CreatedBy       string
}

// MovementFilter filters ledger listings.
type MovementFilter struct {
	TenantID      uuid.UUID
	ItemCode      string
	WarehouseCode string
	LocationCode  string
	BatchNo       string
	Type          MovementType
	From          time.Time
	To            time.Time
	Page          int
	Limit         int
}

// MovementSummary aggregates a ledger listing.
type MovementSummary struct {
	TotalReceipts    decimal.Decimal
	TotalIssues      decimal.Decimal
	TotalTransfers   decimal.Decimal
	TotalAdjustments decimal.Decimal
	NetMovement      decimal.Decimal
}

// ConservationDrift reports a stock key whose layer remainders diverge
// from the signed ledger sum. Any drift is a defect.
type ConservationDrift struct {
	Key       Key
	LayerQty  decimal.Decimal
	LedgerQty decimal.Decimal
}

// ErrInsufficientStock triggered when a decrease exceeds available layers.
var ErrInsufficientStock = errors.New("stock: insufficient stock")

// ErrInvalidQuantity indicates a zero or wrongly signed quantity.
var ErrInvalidQuantity = errors.New("stock: quantity must be non zero")

// ErrInvalidUnitCost indicates an invalid cost value.
var ErrInvalidUnitCost = errors.New("stock: unit cost must be >= 0")

// ErrInvalidTransferLocations indicates a transfer with a missing or
// identical source and destination.
var ErrInvalidTransferLocations = errors.New("stock: invalid transfer locations")
