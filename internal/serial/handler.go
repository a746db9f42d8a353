package serial

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/stockpile-erp/stockpile/internal/platform/httpx"
	"github.com/stockpile-erp/stockpile/internal/shared"
)

// Handler wires HTTP endpoints for serial identities.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the serial handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers serial routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/serials", h.handleList)
	r.Post("/serials", h.handleCreate)
	r.Post("/serials/bulk", h.handleBulkCreate)
	r.Get("/serials/{serialNumber}/history", h.handleHistory)
	r.Post("/serials/{serialNumber}/status", h.handleUpdateStatus)
}

type createRequest struct {
	SerialNumber   string     `json:"serialNumber" validate:"required"`
	ItemCode       string     `json:"itemCode" validate:"required"`
	WarehouseCode  string     `json:"warehouseCode" validate:"required"`
	BatchNumber    string     `json:"batchNumber"`
	PurchaseDate   *time.Time `json:"purchaseDate"`
	WarrantyExpiry *time.Time `json:"warrantyExpiry"`
}

type bulkCreateRequest struct {
	ItemCode      string `json:"itemCode" validate:"required"`
	WarehouseCode string `json:"warehouseCode" validate:"required"`
	BatchNumber   string `json:"batchNumber"`
	Prefix        string `json:"prefix" validate:"required"`
	StartNumber   int    `json:"startNumber" validate:"min=0"`
	Count         int    `json:"count" validate:"required,min=1"`
}

type statusRequest struct {
	Status          string `json:"status" validate:"required,oneof=available sold reserved damaged returned"`
	ReferenceNumber string `json:"referenceNumber"`
}

type serialResponse struct {
	ID             int64      `json:"id"`
	SerialNumber   string     `json:"serialNumber"`
	ItemCode       string     `json:"itemCode"`
	WarehouseCode  string     `json:"warehouseCode"`
	BatchNumber    string     `json:"batchNumber,omitempty"`
	Status         Status     `json:"status"`
	PurchaseDate   *time.Time `json:"purchaseDate,omitempty"`
	WarrantyExpiry *time.Time `json:"warrantyExpiry,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

type historyResponse struct {
	Action          string    `json:"action"`
	FromStatus      Status    `json:"fromStatus,omitempty"`
	ToStatus        Status    `json:"toStatus"`
	ReferenceNumber string    `json:"referenceNumber,omitempty"`
	PerformedAt     time.Time `json:"performedAt"`
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
		TenantID:       tenantID,
		SerialNumber:   req.SerialNumber,
		ItemCode:       req.ItemCode,
		WarehouseCode:  req.WarehouseCode,
		BatchNumber:    req.BatchNumber,
		PurchaseDate:   req.PurchaseDate,
		WarrantyExpiry: req.WarrantyExpiry,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toSerialResponse(rec))
}

func (h *Handler) handleBulkCreate(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := shared.TenantFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "tenant scope missing")
		return
	}
	var req bulkCreateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	records, err := h.service.BulkCreate(r.Context(), BulkInput{
		TenantID:      tenantID,
		ItemCode:      req.ItemCode,
		WarehouseCode: req.WarehouseCode,
		BatchNumber:   req.BatchNumber,
		Prefix:        req.Prefix,
		StartNumber:   req.StartNumber,
		Count:         req.Count,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	resp := make([]serialResponse, 0, len(records))
	for _, rec := range records {
		resp = append(resp, toSerialResponse(rec))
	}
	httpx.JSON(w, http.StatusCreated, resp)
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
	resp := listResponse{
		Serials:    make([]serialResponse, 0, len(records)),
		Pagination: pagination,
	}
	for _, rec := range records {
		resp.Serials = append(resp.Serials, toSerialResponse(rec))
	}
	httpx.JSON(w, http.StatusOK, resp)
}

type listResponse struct {
	Serials    []serialResponse  `json:"serials"`
	Pagination shared.Pagination `json:"pagination"`
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := shared.TenantFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "tenant scope missing")
		return
	}
	serialNumber := chi.URLParam(r, "serialNumber")

	events, err := h.service.History(r.Context(), tenantID, serialNumber)
	if err != nil {
		h.respondError(w, err)
		return
	}
	resp := make([]historyResponse, 0, len(events))
	for _, event := range events {
		resp = append(resp, historyResponse{
			Action:          event.Action,
			FromStatus:      event.FromStatus,
			ToStatus:        event.ToStatus,
			ReferenceNumber: event.ReferenceNumber,
			PerformedAt:     event.PerformedAt,
		})
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

	rec, err := h.service.UpdateStatus(r.Context(), tenantID, chi.URLParam(r, "serialNumber"), Status(req.Status), req.ReferenceNumber)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toSerialResponse(rec))
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrDuplicateSerialNumber):
		httpx.Problem(w, http.StatusConflict, "Duplicate Serial Number", err.Error())
	case errors.Is(err, ErrInvalidStateTransition):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Invalid State Transition", err.Error())
	case errors.Is(err, shared.ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", "serial not found")
	case errors.Is(err, shared.ErrTenantMissing):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		h.logger.Error("serial request failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func toSerialResponse(rec Record) serialResponse {
	return serialResponse{
		ID:             rec.ID,
		SerialNumber:   rec.SerialNumber,
		ItemCode:       rec.ItemCode,
		WarehouseCode:  rec.WarehouseCode,
		BatchNumber:    rec.BatchNumber,
		Status:         rec.Status,
		PurchaseDate:   rec.PurchaseDate,
		WarrantyExpiry: rec.WarrantyExpiry,
		CreatedAt:      rec.CreatedAt,
		UpdatedAt:      rec.UpdatedAt,
	}
}
