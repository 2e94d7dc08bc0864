package catalog

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/medilink-health/medilink/internal/platform/httpx"
)

// Handler wires HTTP endpoints for the catalog module.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the catalog handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers catalog routes under /pharmacies/{pharmacyID}/catalog.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/pharmacies/{pharmacyID}/catalog", func(r chi.Router) {
		r.Get("/", h.list)
		r.Post("/", h.upsert)
		r.Delete("/", h.deleteByNameBrand)
		r.Get("/aggregated", h.aggregated)
		r.Get("/search", h.search)
		r.Post("/{itemID}/adjust", h.adjust)
		r.Put("/{itemID}/quantity", h.setQuantity)
	})
}

func (h *Handler) upsert(w http.ResponseWriter, r *http.Request) {
	pharmacyID := chi.URLParam(r, "pharmacyID")
	var req UpsertItemRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	item, err := h.service.UpsertItem(r.Context(), pharmacyID, CatalogItem{
		ID:         req.ID,
		Name:       req.Name,
		Brand:      req.Brand,
		Category:   req.Category,
		Price:      req.Price,
		Quantity:   req.Quantity,
		ExpiryDate: req.ExpiryDate,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, item)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.ListItems(r.Context(), chi.URLParam(r, "pharmacyID"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, ListItemsResponse{Items: items})
}

func (h *Handler) aggregated(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.Aggregates(r.Context(), chi.URLParam(r, "pharmacyID"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, AggregatesResponse{Items: items})
}

func (h *Handler) search(w http.ResponseWriter, r *http.Request) {
	item, err := h.service.FindByNameFuzzy(r.Context(), chi.URLParam(r, "pharmacyID"), r.URL.Query().Get("name"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, item)
}

func (h *Handler) deleteByNameBrand(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	deleted, err := h.service.DeleteByNameBrand(r.Context(), chi.URLParam(r, "pharmacyID"), q.Get("name"), q.Get("brand"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, DeleteByNameBrandResponse{DeletedCount: deleted})
}

func (h *Handler) adjust(w http.ResponseWriter, r *http.Request) {
	pharmacyID := chi.URLParam(r, "pharmacyID")
	itemID := chi.URLParam(r, "itemID")
	var req AdjustQuantityRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	item, applied, err := h.service.AdjustQuantity(r.Context(), pharmacyID, itemID, req.Delta)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.logger.Info("quantity adjusted",
		slog.String("pharmacy_id", pharmacyID),
		slog.String("item_id", itemID),
		slog.Int64("delta", req.Delta),
		slog.Int64("applied", applied))
	httpx.JSON(w, http.StatusOK, AdjustQuantityResponse{Item: item, Applied: applied})
}

func (h *Handler) setQuantity(w http.ResponseWriter, r *http.Request) {
	pharmacyID := chi.URLParam(r, "pharmacyID")
	itemID := chi.URLParam(r, "itemID")
	var req SetQuantityRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	item, err := h.service.SetQuantity(r.Context(), pharmacyID, itemID, req.Quantity)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, item)
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrItemNotFound), errors.Is(err, ErrNoMatch):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrNameRequired), errors.Is(err, ErrNegativePrice), errors.Is(err, ErrNegativeQuantity):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		h.logger.Error("catalog request failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
