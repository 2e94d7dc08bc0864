package orders

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/medilink-health/medilink/internal/platform/httpx"
	"github.com/medilink-health/medilink/internal/shared"
)

// Handler wires HTTP endpoints for the orders module.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the orders handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers order routes under /orders.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/orders", func(r chi.Router) {
		r.Post("/", h.create)
		r.Get("/", h.list)
		r.Get("/{orderID}", h.get)
		r.Post("/{orderID}/accept", h.accept)
		r.Post("/{orderID}/reject", h.reject)
		r.Post("/{orderID}/ready", h.markReady)
		r.Post("/{orderID}/complete", h.complete)
	})
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	items := make([]OrderItem, 0, len(req.Items))
	for _, line := range req.Items {
		items = append(items, OrderItem{Name: line.Name, RequiredQuantity: line.RequiredQuantity})
	}
	order, err := h.service.Create(r.Context(), Order{
		PharmacyID: req.PharmacyID,
		PatientID:  req.PatientID,
		Items:      items,
		Pickup:     PickupMode(req.Pickup),
		Address:    req.Address,
		Note:       req.Note,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.logger.Info("order created",
		slog.String("order_id", order.ID),
		slog.String("pharmacy_id", order.PharmacyID),
		slog.String("actor", shared.ActorFromContext(r.Context())))
	httpx.JSON(w, http.StatusCreated, order)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	order, err := h.service.Get(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ListFilter{
		PharmacyID: q.Get("pharmacyId"),
		PatientID:  q.Get("patientId"),
		Status:     Status(q.Get("status")),
		Limit:      int32(parseIntOr(q.Get("limit"), 50)),
		Offset:     int32(parseIntOr(q.Get("offset"), 0)),
	}
	orders, total, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, ListOrdersResponse{Orders: orders, Total: total})
}

func (h *Handler) accept(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")
	order, report, err := h.service.Accept(r.Context(), orderID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.logger.Info("order accepted",
		slog.String("order_id", orderID),
		slog.Bool("clean", report.Clean()),
		slog.String("actor", shared.ActorFromContext(r.Context())))
	httpx.JSON(w, http.StatusOK, AcceptOrderResponse{Order: order, Report: report})
}

func (h *Handler) reject(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.Reject, "order rejected")
}

func (h *Handler) markReady(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.MarkReady, "order ready")
}

func (h *Handler) complete(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.Complete, "order completed")
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, fn func(context.Context, string) (Order, error), msg string) {
	orderID := chi.URLParam(r, "orderID")
	order, err := fn(r.Context(), orderID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.logger.Info(msg,
		slog.String("order_id", orderID),
		slog.String("actor", shared.ActorFromContext(r.Context())))
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrAcceptInProgress):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, ErrEmptyItems), errors.Is(err, ErrAddressRequired), errors.Is(err, ErrInvalidPickup):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		h.logger.Error("orders request failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func parseIntOr(s string, fallback int) int {
	if s == "" {
		return fallback
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return n
}
