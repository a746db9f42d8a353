package batch

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/stockpile-erp/stockpile/internal/platform/httpx"
	"github.com/stockpile-erp/stockpile/internal/shared"
)

// Handler wires HTTP endpoints for batch identities.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the batch handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers batch routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/batches", h.handleList)
	r.Post("/batches", h.handleCreate)
	r.Put("/batches", h.handleUpdateStatus)
	r.Get("/batches/expiring", h.handleExpiring)
}

type createRequest struct {
	BatchNumber       string     `json:"batchNumber" validate:"required"`
	ItemCode          string     `json:"itemCode" validate:"required"`
	WarehouseCode     string     `json:"warehouseCode" validate:"required"`
	ManufacturingDate *time.Time `json:"manufacturingDate"`
	ExpiryDate        *time.Time `json:"expiryDate"`
	SupplierCode      string     `json:"supplierCode"`
}

type statusRequest struct {
	BatchNumber   string `json:"batchNumber" validate:"required"`
	ItemCode      string `json:"itemCode" validate:"required"`
	WarehouseCode string `json:"warehouseCode" validate:"required"`
	Status        string `json:"status" validate:"required,oneof=available reserved quarantine"`
}

type listResponse struct {
	Batches    []batchResponse   `json:"batches"`
	Pagination shared.Pagination `json:"pagination"`
}

type batchResponse struct {
	ID                int64           `json:"id"`
	BatchNumber       string          `json:"batchNumber"`
	ItemCode          string          `json:"itemCode"`
	WarehouseCode     string          `json:"warehouseCode"`
	Quantity          decimal.Decimal `json:"quantity"`
	ManufacturingDate *time.Time      `json:"manufacturingDate,omitempty"`
	ExpiryDate        *time.Time      `json:"expiryDate,omitempty"`
	Status            Status          `json:"status"`
	SupplierCode      string          `json:"supplierCode,omitempty"`
	CreatedAt         time.Time       `json:"createdAt"`
	UpdatedAt         time.Time       `json:"updatedAt"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := shared.TenantFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "tenant scope missing")
		return
	}
	var req createRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	rec, err := h.service.Create(r.Context(), Input{
		TenantID:          tenantID,
		BatchNumber:       req.BatchNumber,
		ItemCode:          req.ItemCode,
		WarehouseCode:     req.WarehouseCode,
		ManufacturingDate: req.ManufacturingDate,
		ExpiryDate:        req.ExpiryDate,
		SupplierCode:      req.SupplierCode,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toBatchResponse(rec))
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := shared.TenantFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "tenant scope missing")
		return
	}
	q := r.URL.Query()
	filter := Filter{
		TenantID:      tenantID,
		ItemCode:      q.Get("item_code"),
		WarehouseCode: q.Get("warehouse_code"),
		BatchNumber:   q.Get("batch_number"),
		Status:        Status(q.Get("status")),
	}
	if v := q.Get("page"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Page = n
		}
	}
	if v := q.Get("per_page"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Limit = n
		}
	}

	records, pagination, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.respondError(w, err)
		return
	}
	resp := listResponse{Batches: make([]batchResponse, 0, len(records)), Pagination: pagination}
	for _, rec := range records {
		resp.Batches = append(resp.Batches, toBatchResponse(rec))
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := shared.TenantFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "tenant scope missing")
		return
	}
	var req statusRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	rec, err := h.service.UpdateStatus(r.Context(), tenantID, req.BatchNumber, req.ItemCode, req.WarehouseCode, Status(req.Status))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toBatchResponse(rec))
}

func (h *Handler) handleExpiring(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := shared.TenantFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "tenant scope missing")
		return
	}
	days := 30
	if v := r.URL.Query().Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "days must be a positive integer")
			return
		}
		days = n
	}

	records, err := h.service.Expiring(r.Context(), tenantID, days)
	if err != nil {
		h.respondError(w, err)
		return
	}
	resp := make([]batchResponse, 0, len(records))
	for _, rec := range records {
		resp = append(resp, toBatchResponse(rec))
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrBatchExpired):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Batch Expired", err.Error())
	case errors.Is(err, ErrInvalidStateTransition):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Invalid State Transition", err.Error())
	case errors.Is(err, ErrDuplicateBatch):
		httpx.Problem(w, http.StatusConflict, "Duplicate", err.Error())
	case errors.Is(err, shared.ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", "batch not found")
	case errors.Is(err, shared.ErrTenantMissing):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		h.logger.Error("batch request failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func toBatchResponse(rec Record) batchResponse {
	return batchResponse{
		ID:                rec.ID,
		BatchNumber:       rec.BatchNumber,
		ItemCode:          rec.ItemCode,
		WarehouseCode:     rec.WarehouseCode,
		Quantity:          rec.Quantity,
		ManufacturingDate: rec.ManufacturingDate,
		ExpiryDate:        rec.ExpiryDate,
		Status:            rec.Status,
		SupplierCode:      rec.SupplierCode,
		CreatedAt:         rec.CreatedAt,
		UpdatedAt:         rec.UpdatedAt,
	}
}
