package reservation

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
	"github.com/stockpile-erp/stockpile/internal/stock"
)

// Handler wires HTTP endpoints for reservations.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the reservation handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers reservation routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/reservations", h.handleList)
	r.Post("/reservations", h.handleReserve)
	r.Post("/reservations/{id}/release", h.handleRelease)
}

type reserveRequest struct {
	ItemCode       string          `json:"itemCode" validate:"required"`
	WarehouseCode  string          `json:"warehouseCode" validate:"required"`
	LocationCode   string          `json:"locationCode"`
	BatchNo        string          `json:"batchNo"`
	OrderReference string          `json:"orderReference" validate:"required"`
	Quantity       decimal.Decimal `json:"quantity"`
	CreatedBy      string          `json:"createdBy"`
}

type reservationResponse struct {
	ID             int64           `json:"id"`
	ItemCode       string          `json:"itemCode"`
	WarehouseCode  string          `json:"warehouseCode"`
	LocationCode   string          `json:"locationCode,omitempty"`
	BatchNo        string          `json:"batchNo,omitempty"`
	OrderReference string          `json:"orderReference"`
	Quantity       decimal.Decimal `json:"quantity"`
	Active         bool            `json:"active"`
	CreatedBy      string          `json:"createdBy,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
	ReleasedAt     *time.Time      `json:"releasedAt,omitempty"`
}

func (h *Handler) handleReserve(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := shared.TenantFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "tenant scope missing")
		return
	}
	var req reserveRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	res, err := h.service.Reserve(r.Context(), Input{
		Key: stock.Key{
			TenantID:      tenantID,
			ItemCode:      req.ItemCode,
			WarehouseCode: req.WarehouseCode,
			LocationCode:  req.LocationCode,
			BatchNo:       req.BatchNo,
		},
		OrderReference: req.OrderReference,
		Quantity:       req.Quantity,
		CreatedBy:      req.CreatedBy,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toReservationResponse(res))
}

func (h *Handler) handleRelease(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := shared.TenantFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "tenant scope missing")
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "reservation id must be numeric")
		return
	}

	res, err := h.service.Release(r.Context(), tenantID, id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toReservationResponse(res))
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := shared.TenantFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "tenant scope missing")
		return
	}
	q := r.URL.Query()
	filter := Filter{
		TenantID:       tenantID,
		ItemCode:       q.Get("item_code"),
		WarehouseCode:  q.Get("warehouse_code"),
		OrderReference: q.Get("order_reference"),
		ActiveOnly:     q.Get("active") == "true",
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

	reservations, pagination, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.respondError(w, err)
		return
	}
	resp := listResponse{
		Reservations: make([]reservationResponse, 0, len(reservations)),
		Pagination:   pagination,
	}
	for _, res := range reservations {
		resp.Reservations = append(resp.Reservations, toReservationResponse(res))
	}
	httpx.JSON(w, http.StatusOK, resp)
}

type listResponse struct {
	Reservations []reservationResponse `json:"reservations"`
	Pagination   shared.Pagination     `json:"pagination"`
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInsufficientAvailable):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Insufficient Available Stock", err.Error())
	case errors.Is(err, ErrInvalidQuantity), errors.Is(err, shared.ErrTenantMissing):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, shared.ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", "reservation not found")
	default:
		h.logger.Error("reservation request failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func toReservationResponse(res Reservation) reservationResponse {
	return reservationResponse{
		ID:             res.ID,
		ItemCode:       res.Key.ItemCode,
		WarehouseCode:  res.Key.WarehouseCode,
		LocationCode:   res.Key.LocationCode,
		BatchNo:        res.Key.BatchNo,
		OrderReference: res.OrderReference,
		Quantity:       res.Quantity,
		Active:         res.Active(),
		CreatedBy:      res.CreatedBy,
		CreatedAt:      res.CreatedAt,
		ReleasedAt:     res.ReleasedAt,
	}
}
