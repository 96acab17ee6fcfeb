package stock

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/db"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Handler exposes read-only stock endpoints. Mutations only happen through
// the purchasing, sales, and adjustment documents.
type Handler struct {
	logger *slog.Logger
	repo   Repository
	reader db.Queryer
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, repo Repository, reader db.Queryer) *Handler {
	return &Handler{logger: logger, repo: repo, reader: reader}
}

// MountRoutes registers stock routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/products/{productID}", h.handleGetProduct)
}

type productResponse struct {
	ID           int64           `json:"id"`
	Name         string          `json:"name"`
	CurrentStock decimal.Decimal `json:"current_stock"`
	CostPrice    decimal.Decimal `json:"cost_price"`
	LotRemaining decimal.Decimal `json:"lot_remaining"`
	IsActive     bool            `json:"is_active"`
}

func (h *Handler) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "productID"), 10, 64)
	if err != nil {
		shared.RespondJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid product id"})
		return
	}
	product, err := h.repo.GetProduct(r.Context(), h.reader, id)
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	remaining, err := h.repo.SumRemaining(r.Context(), h.reader, id)
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	shared.RespondJSON(w, http.StatusOK, productResponse{
		ID:           product.ID,
		Name:         product.Name,
		CurrentStock: product.CurrentStock,
		CostPrice:    product.CostPrice,
		LotRemaining: remaining,
		IsActive:     product.IsActive,
	})
}
