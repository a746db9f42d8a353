package valuation

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/stockpile-erp/stockpile/internal/platform/httpx"
	"github.com/stockpile-erp/stockpile/internal/shared"
)

// Handler wires HTTP endpoints for the report queries.
type Handler struct {
	logger         *slog.Logger
	service        *Service
	defaultBuckets string
}

// NewHandler constructs the report handler. defaultBuckets is the
// aging bucket spec used when the request does not pass one.
func NewHandler(logger *slog.Logger, service *Service, defaultBuckets string) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if defaultBuckets == "" {
		defaultBuckets = "30,60,90"
	}
	return &Handler{logger: logger, service: service, defaultBuckets: defaultBuckets}
}

// MountRoutes registers report routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/stock-balance", h.handleBalance)
	r.Get("/stock-valuation", h.handleValuation)
	r.Get("/stock-aging", h.handleAging)
}

type balanceResponse struct {
	ItemCode      string          `json:"itemCode"`
	WarehouseCode string          `json:"warehouseCode"`
	LocationCode  string          `json:"locationCode,omitempty"`
	BatchNo       string          `json:"batchNo,omitempty"`
	Actual        decimal.Decimal `json:"actualQty"`
	Reserved      decimal.Decimal `json:"reservedQty"`
	Available     decimal.Decimal `json:"availableQty"`
}

type valuationResponse struct {
	ItemCode      string          `json:"itemCode"`
	WarehouseCode string          `json:"warehouseCode"`
	LocationCode  string          `json:"locationCode,omitempty"`
	BatchNo       string          `json:"batchNo,omitempty"`
	Quantity      decimal.Decimal `json:"quantity"`
	Value         decimal.Decimal `json:"value"`
	AvgUnitCost   decimal.Decimal `json:"avgUnitCost"`
}

type agingBucketResponse struct {
	Label    string          `json:"label"`
	Quantity decimal.Decimal `json:"quantity"`
	Value    decimal.Decimal `json:"value"`
}

type agingResponse struct {
	ItemCode      string                `json:"itemCode"`
	WarehouseCode string                `json:"warehouseCode"`
	LocationCode  string                `json:"locationCode,omitempty"`
	BatchNo       string                `json:"batchNo,omitempty"`
	Buckets       []agingBucketResponse `json:"buckets"`
}

func (h *Handler) handleBalance(w http.ResponseWriter, r *http.Request) {
	filter, ok := h.filterFromRequest(w, r)
	if !ok {
		return
	}
	balances, err := h.service.Balance(r.Context(), filter)
	if err != nil {
		h.respondError(w, err)
		return
	}
	resp := make([]balanceResponse, 0, len(balances))
	for _, b := range balances {
		resp = append(resp, balanceResponse{
			ItemCode:      b.Key.ItemCode,
			WarehouseCode: b.Key.WarehouseCode,
			LocationCode:  b.Key.LocationCode,
			BatchNo:       b.Key.BatchNo,
			Actual:        b.Actual,
			Reserved:      b.Reserved,
			Available:     b.Available,
		})
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) handleValuation(w http.ResponseWriter, r *http.Request) {
	filter, ok := h.filterFromRequest(w, r)
	if !ok {
		return
	}
	rows, err := h.service.Valuation(r.Context(), filter)
	if err != nil {
		h.respondError(w, err)
		return
	}
	resp := make([]valuationResponse, 0, len(rows))
	for _, v := range rows {
		resp = append(resp, valuationResponse{
			ItemCode:      v.Key.ItemCode,
			WarehouseCode: v.Key.WarehouseCode,
			LocationCode:  v.Key.LocationCode,
			BatchNo:       v.Key.BatchNo,
			Quantity:      v.Quantity,
			Value:         v.Value,
			AvgUnitCost:   v.AvgUnitCost,
		})
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) handleAging(w http.ResponseWriter, r *http.Request) {
	filter, ok := h.filterFromRequest(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	days := q.Get("bucket_days")
	if days == "" {
		days = h.defaultBuckets
	}
	bucketDays, err := ParseBucketDays(days)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	var asOf time.Time
	if raw := q.Get("as_of_date"); raw != "" {
		asOf, err = time.Parse("2006-01-02", raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "as_of_date must be YYYY-MM-DD")
			return
		}
	}

	rows, err := h.service.Aging(r.Context(), filter, bucketDays, asOf)
	if err != nil {
		h.respondError(w, err)
		return
	}
	resp := make([]agingResponse, 0, len(rows))
	for _, row := range rows {
		buckets := make([]agingBucketResponse, 0, len(row.Buckets))
		for _, b := range row.Buckets {
			buckets = append(buckets, agingBucketResponse{Label: b.Label, Quantity: b.Quantity, Value: b.Value})
		}
		resp = append(resp, agingResponse{
			ItemCode:      row.Key.ItemCode,
			WarehouseCode: row.Key.WarehouseCode,
			LocationCode:  row.Key.LocationCode,
			BatchNo:       row.Key.BatchNo,
			Buckets:       buckets,
		})
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) filterFromRequest(w http.ResponseWriter, r *http.Request) (Filter, bool) {
	tenantID, ok := shared.TenantFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "tenant scope missing")
		return Filter{}, false
	}
	q := r.URL.Query()
	return Filter{
		TenantID:      tenantID,
		ItemCode:      q.Get("item_code"),
		WarehouseCode: q.Get("warehouse_code"),
		LocationCode:  q.Get("location_code"),
		BatchNo:       q.Get("batch_no"),
	}, true
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidBuckets), errors.Is(err, shared.ErrTenantMissing):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		h.logger.Error("report request failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
