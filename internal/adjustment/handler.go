package adjustment

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Handler wires HTTP endpoints for stock adjustments.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		validator: validator.New(),
	}
}

// MountRoutes registers adjustment routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.handleAdjust)
}

type adjustRequest struct {
	Date           string          `json:"date" validate:"required,datetime=2006-01-02"`
	ProductID      int64           `json:"product_id" validate:"required"`
	Direction      string          `json:"direction" validate:"required,oneof=INCREASE DECREASE"`
	Quantity       decimal.Decimal `json:"quantity" validate:"required"`
	UnitCost       decimal.Decimal `json:"unit_cost"`
	Damage         bool            `json:"damage"`
	Reason         string          `json:"reason"`
	IdempotencyKey string          `json:"idempotency_key"`
	ActorID        int64           `json:"actor_id"`
}

type adjustmentResponse struct {
	ID        int64           `json:"id"`
	Number    string          `json:"number"`
	Date      string          `json:"date"`
	ProductID int64           `json:"product_id"`
	Direction string          `json:"direction"`
	Quantity  decimal.Decimal `json:"quantity"`
	UnitCost  decimal.Decimal `json:"unit_cost"`
	Value     decimal.Decimal `json:"value"`
	Reason    string          `json:"reason,omitempty"`
	JournalID int64           `json:"journal_id"`
}

func (h *Handler) handleAdjust(w http.ResponseWriter, r *http.Request) {
	var req adjustRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if err := h.validator.Struct(req); err != nil {
		shared.RespondJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		shared.RespondJSON(w, http.StatusBadRequest, map[string]string{"error": "date must be YYYY-MM-DD"})
		return
	}
	adj, err := h.service.Adjust(r.Context(), AdjustInput{
		Date:           date,
		ProductID:      req.ProductID,
		Direction:      Direction(req.Direction),
		Quantity:       req.Quantity,
		UnitCost:       req.UnitCost,
		Damage:         req.Damage,
		Reason:         req.Reason,
		IdempotencyKey: req.IdempotencyKey,
		ActorID:        req.ActorID,
	})
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	shared.RespondJSON(w, http.StatusCreated, adjustmentResponse{
		ID:        adj.ID,
		Number:    adj.Number,
		Date:      adj.Date.Format("2006-01-02"),
		ProductID: adj.ProductID,
		Direction: string(adj.Direction),
		Quantity:  adj.Quantity,
		UnitCost:  adj.UnitCost,
		Value:     adj.Value,
		Reason:    adj.Reason,
		JournalID: adj.JournalID,
	})
}
