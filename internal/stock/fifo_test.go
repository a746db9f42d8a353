package stock

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func day(n int) time.Time {
	return time.Date(2025, time.March, n, 0, 0, 0, 0, time.UTC)
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestConsumeLayersOldestFirst(t *testing.T) {
	layers := []Layer{
		{ID: 2, OriginEntryID: 2, RemainingQty: dec("50"), UnitCost: dec("3"), PostingDate: day(5)},
		{ID: 1, OriginEntryID: 1, RemainingQty: dec("100"), UnitCost: dec("2"), PostingDate: day(1)},
	}

	consumptions, totalCost, err := consumeLayers(layers, dec("120"))
	require.NoError(t, err)
	require.Len(t, consumptions, 2)
	require.Equal(t, int64(1), consumptions[0].LayerID)
	require.True(t, consumptions[0].Quantity.Equal(dec("100")))
	require.Equal(t, int64(2), consumptions[1].LayerID)
	require.True(t, consumptions[1].Quantity.Equal(dec("20")))
	require.True(t, totalCost.Equal(dec("260")), "realized cost must be exactly 260, got %s", totalCost)
}

func TestConsumeLayersTieBreakByOriginEntry(t *testing.T) {
	sameDay := day(1)
	layers := []Layer{
		{ID: 9, OriginEntryID: 9, RemainingQty: dec("10"), UnitCost: dec("5"), PostingDate: sameDay},
		{ID: 3, OriginEntryID: 3, RemainingQty: dec("10"), UnitCost: dec("4"), PostingDate: sameDay},
	}

	consumptions, totalCost, err := consumeLayers(layers, dec("15"))
	require.NoError(t, err)
	require.Equal(t, int64(3), consumptions[0].LayerID)
	require.True(t, consumptions[0].Quantity.Equal(dec("10")))
	require.Equal(t, int64(9), consumptions[1].LayerID)
	require.True(t, consumptions[1].Quantity.Equal(dec("5")))
	require.True(t, totalCost.Equal(dec("65")))
}

func TestConsumeLayersInsufficient(t *testing.T) {
	layers := []Layer{
		{ID: 1, OriginEntryID: 1, RemainingQty: dec("10"), UnitCost: dec("2"), PostingDate: day(1)},
	}
	consumptions, _, err := consumeLayers(layers, dec("11"))
	require.ErrorIs(t, err, ErrInsufficientStock)
	require.Empty(t, consumptions, "no partial allocation on failure")
}

func TestConsumeLayersSkipsExhausted(t *testing.T) {
	layers := []Layer{
		{ID: 1, OriginEntryID: 1, RemainingQty: dec("0"), UnitCost: dec("1"), PostingDate: day(1)},
		{ID: 2, OriginEntryID: 2, RemainingQty: dec("5"), UnitCost: dec("2"), PostingDate: day(2)},
	}
	consumptions, totalCost, err := consumeLayers(layers, dec("5"))
	require.NoError(t, err)
	require.Len(t, consumptions, 1)
	require.Equal(t, int64(2), consumptions[0].LayerID)
	require.True(t, totalCost.Equal(dec("10")))
}

func TestWeightedRate(t *testing.T) {
	rate := weightedRate(dec("260"), dec("120"))
	require.True(t, rate.Equal(dec("2.166667")))
	require.True(t, weightedRate(dec("1"), decimal.Decimal{}).IsZero())
}
