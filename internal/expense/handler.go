package expense

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Handler wires HTTP endpoints for expense vouchers.
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

// MountRoutes registers expense routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.handleRecordExpense)
}

type recordExpenseRequest struct {
	Date             string          `json:"date" validate:"required,datetime=2006-01-02"`
	ExpenseAccountID int64           `json:"expense_account_id" validate:"required"`
	Payment          string          `json:"payment" validate:"omitempty,oneof=CASH CREDIT"`
	Amount           decimal.Decimal `json:"amount" validate:"required"`
	Tax              decimal.Decimal `json:"tax"`
	Narration        string          `json:"narration"`
	IdempotencyKey   string          `json:"idempotency_key"`
	ActorID          int64           `json:"actor_id"`
}

type expenseResponse struct {
	ID               int64           `json:"id"`
	Number           string          `json:"number"`
	Date             string          `json:"date"`
	ExpenseAccountID int64           `json:"expense_account_id"`
	Payment          string          `json:"payment"`
	Amount           decimal.Decimal `json:"amount"`
	Tax              decimal.Decimal `json:"tax"`
	Total            decimal.Decimal `json:"total"`
	Narration        string          `json:"narration,omitempty"`
	JournalID        int64           `json:"journal_id"`
}

func (h *Handler) handleRecordExpense(w http.ResponseWriter, r *http.Request) {
	var req recordExpenseRequest
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
	voucher, err := h.service.RecordExpense(r.Context(), RecordExpenseInput{
		Date:             date,
		ExpenseAccountID: req.ExpenseAccountID,
		Payment:          PaymentKind(req.Payment),
		Amount:           req.Amount,
		Tax:              req.Tax,
		Narration:        req.Narration,
		IdempotencyKey:   req.IdempotencyKey,
		ActorID:          req.ActorID,
	})
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	shared.RespondJSON(w, http.StatusCreated, expenseResponse{
		ID:               voucher.ID,
		Number:           voucher.Number,
		Date:             voucher.Date.Format("2006-01-02"),
		ExpenseAccountID: voucher.ExpenseAccountID,
		Payment:          string(voucher.Payment),
		Amount:           voucher.Amount,
		Tax:              voucher.Tax,
		Total:            voucher.Total,
		Narration:        voucher.Narration,
		JournalID:        voucher.JournalID,
	})
}
