package stock

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/stockpile-erp/stockpile/internal/platform/httpx"
	"github.com/stockpile-erp/stockpile/internal/shared"
)

// Handler wires HTTP endpoints for the stock ledger.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the ledger handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers ledger routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/movements", h.handleListMovements)
	r.Post("/movements", h.handlePostMovement)
	r.Post("/movements/bulk-receipts", h.handleBulkReceipts)
}

type movementRequest struct {
	MovementType    string           `json:"movementType" validate:"required,oneof=receipt issue transfer adjustment"`
	ItemCode        string           `json:"itemCode" validate:"required"`
	WarehouseCode   string           `json:"warehouseCode" validate:"required"`
	LocationCode    string           `json:"locationCode"`
	BatchNo         string           `json:"batchNo"`
	ToWarehouseCode string           `json:"toWarehouseCode"`
	ToLocationCode  string           `json:"toLocationCode"`
	Quantity        decimal.Decimal  `json:"quantity"`
	UnitCost        *decimal.Decimal `json:"unitCost"`
	ReferenceNumber string           `json:"referenceNumber"`
	PostedAt        *time.Time       `json:"postedAt"`
	CreatedBy       string           `json:"createdBy"`
}

type bulkReceiptRequest struct {
	Receipts []movementRequest `json:"receipts" validate:"required,min=1,dive"`
}

type entryResponse struct {
	ID              int64           `json:"id"`
	MovementType    MovementType    `json:"movementType"`
	ItemCode        string          `json:"itemCode"`
	WarehouseCode   string          `json:"warehouseCode"`
	LocationCode    string          `json:"locationCode,omitempty"`
	BatchNo         string          `json:"batchNo,omitempty"`
	Quantity        decimal.Decimal `json:"quantity"`
	UnitCost        decimal.Decimal `json:"unitCost"`
	TotalCost       decimal.Decimal `json:"totalCost"`
	ReferenceNumber string          `json:"referenceNumber,omitempty"`
	CorrelationID   string          `json:"correlationId,omitempty"`
	FromLocation    string          `json:"fromLocation,omitempty"`
	ToLocation      string          `json:"toLocation,omitempty"`
	PostedAt        time.Time       `json:"postedAt"`
	CreatedBy       string          `json:"createdBy,omitempty"`
}

type summaryResponse struct {
	TotalReceipts    decimal.Decimal `json:"totalReceipts"`
	TotalIssues      decimal.Decimal `json:"totalIssues"`
	TotalTransfers   decimal.Decimal `json:"totalTransfers"`
	TotalAdjustments decimal.Decimal `json:"totalAdjustments"`
	NetMovement      decimal.Decimal `json:"netMovement"`
}

type movementsResponse struct {
	Movements  []entryResponse   `json:"movements"`
	Summary    summaryResponse   `json:"summary"`
	Pagination shared.Pagination `json:"pagination"`
}

func (h *Handler) handleListMovements(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := shared.TenantFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "tenant scope missing")
		return
	}
	q := r.URL.Query()
	filter := MovementFilter{
		TenantID:      tenantID,
		ItemCode:      q.Get("item_code"),
		WarehouseCode: q.Get("warehouse_code"),
		LocationCode:  q.Get("location_code"),
		BatchNo:       q.Get("batch_no"),
		Type:          MovementType(q.Get("movement_type")),
	}
	if v := q.Get("from_date"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "from_date must be YYYY-MM-DD")
			return
		}
		filter.From = t
	}
	if v := q.Get("to_date"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "to_date must be YYYY-MM-DD")
			return
		}
		filter.To = t.Add(24*time.Hour - time.Nanosecond)
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

	entries, summary, pagination, err := h.service.Movements(r.Context(), filter)
	if err != nil {
		h.respondError(w, err)
		return
	}
	resp := movementsResponse{
		Movements:  make([]entryResponse, 0, len(entries)),
		Pagination: pagination,
		Summary: summaryResponse{
			TotalReceipts:    summary.TotalReceipts,
			TotalIssues:      summary.TotalIssues,
			TotalTransfers:   summary.TotalTransfers,
			TotalAdjustments: summary.TotalAdjustments,
			NetMovement:      summary.NetMovement,
		},
	}
	for _, entry := range entries {
		resp.Movements = append(resp.Movements, toEntryResponse(entry))
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) handlePostMovement(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := shared.TenantFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "tenant scope missing")
		return
	}
	var req movementRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	key := Key{
		TenantID:      tenantID,
		ItemCode:      req.ItemCode,
		WarehouseCode: req.WarehouseCode,
		LocationCode:  req.LocationCode,
		BatchNo:       req.BatchNo,
	}
	postedAt := time.Time{}
	if req.PostedAt != nil {
		postedAt = *req.PostedAt
	}
	unitCost := decimal.Decimal{}
	if req.UnitCost != nil {
		unitCost = *req.UnitCost
	}

	switch MovementType(req.MovementType) {
	case MovementReceipt:
		if req.UnitCost == nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "unitCost is required for receipts")
			return
		}
		entry, err := h.service.PostReceipt(r.Context(), ReceiptInput{
			Key: key, Quantity: req.Quantity, UnitCost: unitCost,
			ReferenceNumber: req.ReferenceNumber, PostedAt: postedAt, CreatedBy: req.CreatedBy,
		})
		if err != nil {
			h.respondError(w, err)
			return
		}
		httpx.JSON(w, http.StatusCreated, toEntryResponse(entry))
	case MovementIssue:
		entry, err := h.service.PostIssue(r.Context(), IssueInput{
			Key: key, Quantity: req.Quantity,
			ReferenceNumber: req.ReferenceNumber, PostedAt: postedAt, CreatedBy: req.CreatedBy,
		})
		if err != nil {
			h.respondError(w, err)
			return
		}
		httpx.JSON(w, http.StatusCreated, toEntryResponse(entry))
	case MovementAdjustment:
		entry, err := h.service.PostAdjustment(r.Context(), AdjustmentInput{
			Key: key, Quantity: req.Quantity, UnitCost: unitCost,
			ReferenceNumber: req.ReferenceNumber, PostedAt: postedAt, CreatedBy: req.CreatedBy,
		})
		if err != nil {
			h.respondError(w, err)
			return
		}
		httpx.JSON(w, http.StatusCreated, toEntryResponse(entry))
	case MovementTransfer:
		if req.ToWarehouseCode == "" {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "toWarehouseCode is required for transfers")
			return
		}
		destination := Key{
			TenantID:      tenantID,
			ItemCode:      req.ItemCode,
			WarehouseCode: req.ToWarehouseCode,
			LocationCode:  req.ToLocationCode,
			BatchNo:       req.BatchNo,
		}
		out, in, err := h.service.PostTransfer(r.Context(), TransferInput{
			Source: key, Destination: destination, Quantity: req.Quantity,
			ReferenceNumber: req.ReferenceNumber, PostedAt: postedAt, CreatedBy: req.CreatedBy,
		})
		if err != nil {
			h.respondError(w, err)
			return
		}
		httpx.JSON(w, http.StatusCreated, map[string]entryResponse{
			"transferOut": toEntryResponse(out),
			"transferIn":  toEntryResponse(in),
		})
	}
}

func (h *Handler) handleBulkReceipts(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := shared.TenantFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "tenant scope missing")
		return
	}
	var req bulkReceiptRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	inputs := make([]ReceiptInput, 0, len(req.Receipts))
	for _, item := range req.Receipts {
		if item.UnitCost == nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "unitCost is required for receipts")
			return
		}
		postedAt := time.Time{}
		if item.PostedAt != nil {
			postedAt = *item.PostedAt
		}
		inputs = append(inputs, ReceiptInput{
			Key: Key{
				TenantID:      tenantID,
				ItemCode:      item.ItemCode,
				WarehouseCode: item.WarehouseCode,
				LocationCode:  item.LocationCode,
				BatchNo:       item.BatchNo,
			},
			Quantity:        item.Quantity,
			UnitCost:        *item.UnitCost,
			ReferenceNumber: item.ReferenceNumber,
			PostedAt:        postedAt,
			CreatedBy:       item.CreatedBy,
		})
	}

	entries, err := h.service.PostBulkReceipts(r.Context(), inputs)
	if err != nil {
		h.respondError(w, err)
		return
	}
	resp := make([]entryResponse, 0, len(entries))
	for _, entry := range entries {
		resp = append(resp, toEntryResponse(entry))
	}
	httpx.JSON(w, http.StatusCreated, resp)
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInsufficientStock):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Insufficient Stock", err.Error())
	case errors.Is(err, ErrInvalidQuantity), errors.Is(err, ErrInvalidUnitCost),
		errors.Is(err, ErrInvalidTransferLocations), errors.Is(err, shared.ErrTenantMissing):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, shared.ErrIdempotencyConflict):
		httpx.Problem(w, http.StatusConflict, "Duplicate", err.Error())
	default:
		h.logger.Error("stock request failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func toEntryResponse(entry LedgerEntry) entryResponse {
	resp := entryResponse{
		ID:              entry.ID,
		MovementType:    entry.Type,
		ItemCode:        entry.Key.ItemCode,
		WarehouseCode:   entry.Key.WarehouseCode,
		LocationCode:    entry.Key.LocationCode,
		BatchNo:         entry.Key.BatchNo,
		Quantity:        entry.Quantity,
		UnitCost:        entry.UnitCost,
		TotalCost:       entry.TotalCost,
		ReferenceNumber: entry.ReferenceNumber,
		FromLocation:    entry.FromLocation,
		ToLocation:      entry.ToLocation,
		PostedAt:        entry.PostedAt,
		CreatedBy:       entry.CreatedBy,
	}
	if entry.CorrelationID != uuid.Nil {
		resp.CorrelationID = entry.CorrelationID.String()
	}
	return resp
}
