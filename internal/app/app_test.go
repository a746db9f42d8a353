package app_test

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/stockpile-erp/stockpile/internal/app"
	"github.com/stockpile-erp/stockpile/internal/shared"
	_ "github.com/stockpile-erp/stockpile/internal/testing/guard"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := app.LoadConfig()
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.AppAddr)
	require.Equal(t, "30,60,90", cfg.AgingBuckets)
	require.Equal(t, 500, cfg.SerialBulkChunkSize)
	require.True(t, cfg.AdjustmentBypassesReservations)
	require.False(t, cfg.IsProduction())
}

func TestTestModeGuard(t *testing.T) {
	app.RefreshTestMode()
	require.True(t, app.InTestMode())
}

func TestTenantMiddleware(t *testing.T) {
	tenantID := uuid.New()
	var seen uuid.UUID
	var scoped bool
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, scoped = shared.TenantFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/movements", nil)
	req.Header.Set(app.TenantHeader, tenantID.String())
	rec := httptest.NewRecorder()
	app.TenantMiddleware(next).ServeHTTP(rec, req)
	require.True(t, scoped)
	require.Equal(t, tenantID, seen)

	// A garbled header must not block the request, only leave the
	// context unscoped.
	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(app.TenantHeader, "not-a-uuid")
	rec = httptest.NewRecorder()
	app.TenantMiddleware(next).ServeHTTP(rec, req)
	require.False(t, scoped)
	require.Equal(t, http.StatusNoContent, rec.Code)
}

func TestRouterHealthWithoutPool(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg, err := app.LoadConfig()
	require.NoError(t, err)

	router := app.NewRouter(app.RouterParams{Logger: logger, Config: cfg})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "ok")
}
