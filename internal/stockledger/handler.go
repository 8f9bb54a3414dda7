package stockledger

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
	"github.com/meridian-erp/meridian-erp/internal/rbac"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Permissions gating the stock ledger endpoints.
const (
	PermStockView    = "stock.view"
	PermStockPost    = "stock.post"
	PermStockApprove = "stock.approve"
)

// Handler exposes the stock ledger over HTTP.
type Handler struct {
	service  *Service
	validate *validator.Validate
	rbac     rbac.Middleware
	logger   *slog.Logger
}

// NewHandler constructs Handler.
func NewHandler(service *Service, rbacMW rbac.Middleware, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		service:  service,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		rbac:     rbacMW,
		logger:   logger,
	}
}

// Routes mounts the ledger endpoints.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(PermStockView))
		r.Get("/movements", h.listMovements)
		r.Get("/movements/stats", h.movementStats)
		r.Get("/movements/{id}", h.getMovement)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(PermStockPost))
		r.Post("/movements", h.createMovement)
		r.Put("/movements/{id}", h.updateMovement)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(PermStockApprove))
		r.Post("/movements/{id}/approve", h.approveMovement)
		r.Post("/movements/{id}/cancel", h.cancelMovement)
	})
	return r
}

func (h *Handler) createMovement(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	var req createMovementRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	input := CreateMovementInput{
		Type:            MovementType(req.Type),
		WarehouseID:     req.WarehouseID,
		FromWarehouseID: req.FromWarehouseID,
		ToWarehouseID:   req.ToWarehouseID,
		ItemID:          req.ItemID,
		LotNumber:       req.LotNumber,
		BatchNumber:     req.BatchNumber,
		SerialNumber:    req.SerialNumber,
		ReferenceType:   req.ReferenceType,
		ReferenceID:     req.ReferenceID,
		Notes:           req.Notes,
	}
	qty, err := parseDecimal(req.Quantity)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "quantity must be a decimal number")
		return
	}
	input.Quantity = qty
	if req.UnitCost != nil {
		cost, err := parseDecimal(*req.UnitCost)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "unit_cost must be a decimal number")
			return
		}
		input.UnitCost = &cost
	}
	if req.ExpiryDate != nil {
		expiry, err := parseDate(*req.ExpiryDate)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "expiry_date must be YYYY-MM-DD")
			return
		}
		input.ExpiryDate = expiry
	}

	movement, err := h.service.CreateMovement(r.Context(), actor, input)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toMovementResponse(movement))
}

func (h *Handler) getMovement(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	id, err := movementID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "movement id must be an integer")
		return
	}
	movement, err := h.service.GetMovement(r.Context(), actor, id)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toMovementResponse(movement))
}

func (h *Handler) listMovements(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	filter := filterFromQuery(r)
	movements, total, err := h.service.ListMovements(r.Context(), actor, filter)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	pg := shared.NewPagination(filter.Page, filter.PerPage, total)
	resp := listMovementsResponse{
		Data: make([]movementResponse, 0, len(movements)),
		Meta: paginationMeta{Page: pg.Page, PerPage: pg.PerPage, Total: pg.Total, TotalPages: pg.TotalPages},
	}
	for _, m := range movements {
		resp.Data = append(resp.Data, toMovementResponse(m))
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) movementStats(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	filter := filterFromQuery(r)
	filter.Page = 0
	filter.PerPage = 0
	stats, err := h.service.GetStatistics(r.Context(), actor, filter)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": stats})
}

func (h *Handler) updateMovement(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	id, err := movementID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "movement id must be an integer")
		return
	}
	var req updateMovementRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}

	var input UpdateMovementInput
	if req.Quantity != nil {
		qty, err := parseDecimal(*req.Quantity)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "quantity must be a decimal number")
			return
		}
		input.Quantity = &qty
	}
	if req.UnitCost != nil {
		cost, err := parseDecimal(*req.UnitCost)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "unit_cost must be a decimal number")
			return
		}
		input.UnitCost = &cost
	}
	if req.ExpiryDate != nil {
		expiry, err := parseDate(*req.ExpiryDate)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "expiry_date must be YYYY-MM-DD")
			return
		}
		input.ExpiryDate = expiry
	}
	input.LotNumber = req.LotNumber
	input.BatchNumber = req.BatchNumber
	input.SerialNumber = req.SerialNumber
	input.Notes = req.Notes

	movement, err := h.service.UpdateMovement(r.Context(), actor, id, input)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toMovementResponse(movement))
}

func (h *Handler) approveMovement(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	id, err := movementID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "movement id must be an integer")
		return
	}
	movement, err := h.service.ApproveMovement(r.Context(), actor, id)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toMovementResponse(movement))
}

func (h *Handler) cancelMovement(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	id, err := movementID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "movement id must be an integer")
		return
	}
	movement, err := h.service.CancelMovement(r.Context(), actor, id)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toMovementResponse(movement))
}

func (h *Handler) respondDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrMovementNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrMissingWarehouse),
		errors.Is(err, ErrSameWarehouseTransfer),
		errors.Is(err, ErrInvalidMovementType),
		errors.Is(err, ErrInvalidQuantity),
		errors.Is(err, ErrValidationFailed):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrInvalidStateTransition):
		httpx.Problem(w, http.StatusConflict, "Invalid State", err.Error())
	case errors.Is(err, ErrInsufficientStock),
		errors.Is(err, ErrStockRecordNotFound):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Business Rule Violation", err.Error())
	default:
		h.logger.Error("stock ledger request failed", slog.String("error", err.Error()))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func movementID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}
