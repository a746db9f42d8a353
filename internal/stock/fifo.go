package stock

import (
	"sort"

	"github.com/shopspring/decimal"
)

// avgRateScale is the rounding applied to derived unit rates. Layer
// quantities and values are never rounded.
const avgRateScale = 6

// layerConsumption records a draw-down against one layer.
type layerConsumption struct {
	LayerID  int64
	Quantity decimal.Decimal
	UnitCost decimal.Decimal
}

// consumeLayers walks layers oldest first (posting date, then origin
// entry id) and allocates the requested decrease. It validates before
// producing any allocation: when the layers cannot cover the request it
// returns ErrInsufficientStock and no consumptions.
//
// The returned total is the exact cost of the consumed quantity; its
// weighted-average rate is what a transfer-in leg inherits for its new
// layer.
func consumeLayers(layers []Layer, requested decimal.Decimal) ([]layerConsumption, decimal.Decimal, error) {
	if !requested.IsPositive() {
		return nil, decimal.Decimal{}, ErrInvalidQuantity
	}

	ordered := make([]Layer, len(layers))
	copy(ordered, layers)
	sort.SliceStable(ordered, func(i, j int) bool {
		if !ordered[i].PostingDate.Equal(ordered[j].PostingDate) {
			return ordered[i].PostingDate.Before(ordered[j].PostingDate)
		}
		return ordered[i].OriginEntryID < ordered[j].OriginEntryID
	})

	var available decimal.Decimal
	for _, layer := range ordered {
		available = available.Add(layer.RemainingQty)
	}
	if available.LessThan(requested) {
		return nil, decimal.Decimal{}, ErrInsufficientStock
	}

	var (
		consumptions []layerConsumption
		totalCost    decimal.Decimal
		remaining    = requested
	)
	for _, layer := range ordered {
		if remaining.IsZero() {
			break
		}
		if !layer.RemainingQty.IsPositive() {
			continue
		}
		take := decimal.Min(layer.RemainingQty, remaining)
		consumptions = append(consumptions, layerConsumption{
			LayerID:  layer.ID,
			Quantity: take,
			UnitCost: layer.UnitCost,
		})
		totalCost = totalCost.Add(take.Mul(layer.UnitCost))
		remaining = remaining.Sub(take)
	}

	return consumptions, totalCost, nil
}

// weightedRate derives the average unit rate for a consumed quantity.
func weightedRate(totalCost, quantity decimal.Decimal) decimal.Decimal {
	if quantity.IsZero() {
		return decimal.Decimal{}
	}
	return totalCost.DivRound(quantity, avgRateScale)
}

// sumRemaining totals the remaining quantity across layers.
func sumRemaining(layers []Layer) decimal.Decimal {
	var total decimal.Decimal
	for _, layer := range layers {
		total = total.Add(layer.RemainingQty)
	}
	return total
}
