package valuation

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/stockpile-erp/stockpile/internal/shared"
)

func newAgingRouter(t *testing.T, repo RepositoryPort, now time.Time) chi.Router {
	t.Helper()
	svc := NewService(repo, slog.New(slog.NewTextHandler(io.Discard, nil)))
	fixedClock(svc, now)
	h := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), svc, "30,60,90")
	r := chi.NewRouter()
	h.MountRoutes(r)
	return r
}

func agingGet(t *testing.T, router chi.Router, target string) (int, []agingResponse) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	req = req.WithContext(shared.ContextWithTenant(req.Context(), testTenant))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	var rows []agingResponse
	if rec.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rows))
	}
	return rec.Code, rows
}

func TestHandleAgingAsOfDate(t *testing.T) {
	now := time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC)
	repo := &memoryRepo{layers: []LayerRow{
		{Key: testKey("WIDGET-1", "WH-A"), RemainingQty: dec("10"), UnitCost: dec("2"), PostingDate: now.AddDate(0, 0, -5)},
	}}
	router := newAgingRouter(t, repo, now)

	code, rows := agingGet(t, router, "/stock-aging")
	require.Equal(t, http.StatusOK, code)
	require.Len(t, rows, 1)
	require.True(t, rows[0].Buckets[0].Quantity.Equal(dec("10")), "5 day old layer sits in 0-30 today")

	code, rows = agingGet(t, router, "/stock-aging?as_of_date=2026-06-01")
	require.Equal(t, http.StatusOK, code)
	require.Len(t, rows, 1)
	require.True(t, rows[0].Buckets[0].Quantity.IsZero())
	require.True(t, rows[0].Buckets[3].Quantity.Equal(dec("10")), "a year out the layer ages into 90+")

	code, _ = agingGet(t, router, "/stock-aging?as_of_date=June-1st")
	require.Equal(t, http.StatusBadRequest, code)
}

func TestHandleAgingBucketDaysParam(t *testing.T) {
	now := time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC)
	repo := &memoryRepo{layers: []LayerRow{
		{Key: testKey("WIDGET-1", "WH-A"), RemainingQty: dec("10"), UnitCost: dec("2"), PostingDate: now.AddDate(0, 0, -5)},
	}}
	router := newAgingRouter(t, repo, now)

	code, rows := agingGet(t, router, "/stock-aging?bucket_days=3,7")
	require.Equal(t, http.StatusOK, code)
	require.Len(t, rows, 1)
	require.Len(t, rows[0].Buckets, 3)
	require.Equal(t, "0-3", rows[0].Buckets[0].Label)
	require.Equal(t, "4-7", rows[0].Buckets[1].Label)
	require.True(t, rows[0].Buckets[1].Quantity.Equal(dec("10")))

	code, _ = agingGet(t, router, "/stock-aging?bucket_days=30,20")
	require.Equal(t, http.StatusBadRequest, code)
}
