package valuation

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/stockpile-erp/stockpile/internal/stock"
)

// Filter narrows balance, valuation and aging reports. Empty string
// dimensions act as wildcards.
type Filter struct {
	TenantID      uuid.UUID
	ItemCode      string
	WarehouseCode string
	LocationCode  string
	BatchNo       string
}

func (f Filter) cacheKey() string {
	return strings.Join([]string{f.TenantID.String(), f.ItemCode, f.WarehouseCode, f.LocationCode, f.BatchNo}, "|")
}

// Balance is the quantity picture for one stock key. Available is
// Actual minus active reservations and may go negative only when an
// administrative adjustment bypassed a hold.
type Balance struct {
	Key       stock.Key
	Actual    decimal.Decimal
	Reserved  decimal.Decimal
	Available decimal.Decimal
}

// Valuation is the layer-backed value of one stock key. Value is the
// exact sum of remaining_qty * unit_cost over its layers; AvgUnitCost
// is a derived display rate.
type Valuation struct {
	Key         stock.Key
	Quantity    decimal.Decimal
	Value       decimal.Decimal
	AvgUnitCost decimal.Decimal
}

// LayerRow is one open cost layer as the aging report consumes it.
type LayerRow struct {
	Key          stock.Key
	RemainingQty decimal.Decimal
	UnitCost     decimal.Decimal
	PostingDate  time.Time
}

// ReservedTotal is the active reservation sum for one stock key.
type ReservedTotal struct {
	Key      stock.Key
	Quantity decimal.Decimal
}

// AgingBucket holds quantity and value of stock aged into one range.
type AgingBucket struct {
	Label    string
	Quantity decimal.Decimal
	Value    decimal.Decimal
}

// AgingRow is the aging report line for one stock key.
type AgingRow struct {
	Key     stock.Key
	Buckets []AgingBucket
}

// ErrInvalidBuckets indicates a malformed aging bucket list.
var ErrInvalidBuckets = errors.New("valuation: bucket days must be positive and ascending")

// ParseBucketDays parses a comma separated bucket spec such as
// "30,60,90" into ascending day boundaries.
func ParseBucketDays(spec string) ([]int, error) {
	if strings.TrimSpace(spec) == "" {
		return nil, ErrInvalidBuckets
	}
	parts := strings.Split(spec, ",")
	days := make([]int, 0, len(parts))
	prev := 0
	for _, part := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrInvalidBuckets, part)
		}
		if n <= prev {
			return nil, ErrInvalidBuckets
		}
		days = append(days, n)
		prev = n
	}
	return days, nil
}

// BucketLabels renders boundaries into report labels, e.g. 30,60,90
// becomes 0-30, 31-60, 61-90 and 90+.
func BucketLabels(days []int) []string {
	labels := make([]string, 0, len(days)+1)
	lower := 0
	for _, d := range days {
		labels = append(labels, fmt.Sprintf("%d-%d", lower, d))
		lower = d + 1
	}
	labels = append(labels, fmt.Sprintf("%d+", days[len(days)-1]))
	return labels
}
