package purchasing

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Handler wires HTTP endpoints for purchase bills.
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

// MountRoutes registers purchasing routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/bills", h.handleRecordPurchase)
}

type purchaseLineRequest struct {
	ProductID int64           `json:"product_id" validate:"required"`
	Quantity  decimal.Decimal `json:"quantity" validate:"required"`
	UnitCost  decimal.Decimal `json:"unit_cost" validate:"required"`
}

type recordPurchaseRequest struct {
	Date           string                `json:"date" validate:"required,datetime=2006-01-02"`
	SupplierID     int64                 `json:"supplier_id" validate:"required"`
	Payment        string                `json:"payment" validate:"required,oneof=CASH CREDIT"`
	Lines          []purchaseLineRequest `json:"lines" validate:"required,min=1,dive"`
	Tax            decimal.Decimal       `json:"tax"`
	Narration      string                `json:"narration"`
	IdempotencyKey string                `json:"idempotency_key"`
	ActorID        int64                 `json:"actor_id"`
}

type billLineResponse struct {
	ProductID int64           `json:"product_id"`
	Quantity  decimal.Decimal `json:"quantity"`
	UnitCost  decimal.Decimal `json:"unit_cost"`
	LineTotal decimal.Decimal `json:"line_total"`
	LotID     int64           `json:"lot_id"`
}

type billResponse struct {
	ID         int64              `json:"id"`
	Number     string             `json:"number"`
	SupplierID int64              `json:"supplier_id"`
	Date       string             `json:"date"`
	Payment    string             `json:"payment"`
	Subtotal   decimal.Decimal    `json:"subtotal"`
	Tax        decimal.Decimal    `json:"tax"`
	Total      decimal.Decimal    `json:"total"`
	JournalID  int64              `json:"journal_id"`
	Lines      []billLineResponse `json:"lines"`
}

func (h *Handler) handleRecordPurchase(w http.ResponseWriter, r *http.Request) {
	var req recordPurchaseRequest
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
	input := RecordPurchaseInput{
		Date:           date,
		SupplierID:     req.SupplierID,
		Payment:        PaymentKind(req.Payment),
		Tax:            req.Tax,
		Narration:      req.Narration,
		IdempotencyKey: req.IdempotencyKey,
		ActorID:        req.ActorID,
	}
	for _, line := range req.Lines {
		input.Lines = append(input.Lines, PurchaseLine{
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
			UnitCost:  line.UnitCost,
		})
	}
	bill, err := h.service.RecordPurchase(r.Context(), input)
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	resp := billResponse{
		ID:         bill.ID,
		Number:     bill.Number,
		SupplierID: bill.SupplierID,
		Date:       bill.Date.Format("2006-01-02"),
		Payment:    string(bill.Payment),
		Subtotal:   bill.Subtotal,
		Tax:        bill.Tax,
		Total:      bill.Total,
		JournalID:  bill.JournalID,
	}
	for _, line := range bill.Lines {
		resp.Lines = append(resp.Lines, billLineResponse{
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
			UnitCost:  line.UnitCost,
			LineTotal: line.LineTotal,
			LotID:     line.LotID,
		})
	}
	shared.RespondJSON(w, http.StatusCreated, resp)
}
