package valuation

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/stockpile-erp/stockpile/internal/shared"
)

const displayRateScale = 6

// Service serves read-only balance, valuation and aging reports off
// the layer store. Identical concurrent report requests collapse into
// one query through the singleflight group.
type Service struct {
	repo   RepositoryPort
	logger *slog.Logger
	group  singleflight.Group
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

// Balance reports actual, reserved and available per stock key. Keys
// holding only active reservations still appear, with negative
// availability, so bypassing adjustments stay visible.
func (s *Service) Balance(ctx context.Context, filter Filter) ([]Balance, error) {
	if filter.TenantID == uuid.Nil {
		return nil, shared.ErrTenantMissing
	}
	result, err, _ := s.group.Do("balance|"+filter.cacheKey(), func() (any, error) {
		totals, err := s.repo.LayerTotals(ctx, filter)
		if err != nil {
			return nil, err
		}
		reservedTotals, err := s.repo.ReservedTotals(ctx, filter)
		if err != nil {
			return nil, err
		}
		reserved := make(map[string]ReservedTotal, len(reservedTotals))
		for _, t := range reservedTotals {
			reserved[t.Key.String()] = t
		}

		balances := make([]Balance, 0, len(totals))
		for _, total := range totals {
			held := reserved[total.Key.String()].Quantity
			balances = append(balances, Balance{
				Key:       total.Key,
				Actual:    total.Quantity,
				Reserved:  held,
				Available: total.Quantity.Sub(held),
			})
			delete(reserved, total.Key.String())
		}
		for _, t := range reserved {
			balances = append(balances, Balance{
				Key:       t.Key,
				Reserved:  t.Quantity,
				Available: t.Quantity.Neg(),
			})
		}
		sort.Slice(balances, func(i, j int) bool {
			return balances[i].Key.String() < balances[j].Key.String()
		})
		return balances, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]Balance), nil
}

// Valuation reports remaining quantity and exact layer value per key.
func (s *Service) Valuation(ctx context.Context, filter Filter) ([]Valuation, error) {
	if filter.TenantID == uuid.Nil {
		return nil, shared.ErrTenantMissing
	}
	result, err, _ := s.group.Do("valuation|"+filter.cacheKey(), func() (any, error) {
		totals, err := s.repo.LayerTotals(ctx, filter)
		if err != nil {
			return nil, err
		}
		rows := make([]Valuation, 0, len(totals))
		for _, total := range totals {
			if total.Quantity.IsZero() && total.Value.IsZero() {
				continue
			}
			if !total.Quantity.IsZero() {
				total.AvgUnitCost = total.Value.DivRound(total.Quantity, displayRateScale)
			}
			rows = append(rows, total)
		}
		return rows, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]Valuation), nil
}

// Aging buckets open layers per key by days between their posting
// date and asOf; a zero asOf means now. Bucket boundaries come in
// ascending days, e.g. 30,60,90 yields the ranges 0-30, 31-60, 61-90
// and 90+.
func (s *Service) Aging(ctx context.Context, filter Filter, bucketDays []int, asOf time.Time) ([]AgingRow, error) {
	if filter.TenantID == uuid.Nil {
		return nil, shared.ErrTenantMissing
	}
	if len(bucketDays) == 0 {
		return nil, ErrInvalidBuckets
	}
	for i, d := range bucketDays {
		if d <= 0 || (i > 0 && d <= bucketDays[i-1]) {
			return nil, ErrInvalidBuckets
		}
	}

	layers, err := s.repo.OpenLayers(ctx, filter)
	if err != nil {
		return nil, err
	}

	labels := BucketLabels(bucketDays)
	if asOf.IsZero() {
		asOf = s.clock()
	}
	rows := map[string]*AgingRow{}
	order := []string{}
	for _, layer := range layers {
		keyStr := layer.Key.String()
		row, ok := rows[keyStr]
		if !ok {
			row = &AgingRow{Key: layer.Key, Buckets: make([]AgingBucket, len(labels))}
			for i, label := range labels {
				row.Buckets[i] = AgingBucket{Label: label}
			}
			rows[keyStr] = row
			order = append(order, keyStr)
		}
		idx := bucketIndex(bucketDays, ageDays(asOf, layer.PostingDate))
		row.Buckets[idx].Quantity = row.Buckets[idx].Quantity.Add(layer.RemainingQty)
		row.Buckets[idx].Value = row.Buckets[idx].Value.Add(layer.RemainingQty.Mul(layer.UnitCost))
	}

	out := make([]AgingRow, 0, len(order))
	for _, keyStr := range order {
		out = append(out, *rows[keyStr])
	}
	return out, nil
}

func ageDays(asOf, postingDate time.Time) int {
	if postingDate.After(asOf) {
		return 0
	}
	return int(asOf.Sub(postingDate).Hours() / 24)
}

func bucketIndex(bucketDays []int, age int) int {
	for i, d := range bucketDays {
		if age <= d {
			return i
		}
	}
	return len(bucketDays)
}
