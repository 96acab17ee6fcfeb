package sales

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Handler wires HTTP endpoints for sales documents.
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

// MountRoutes registers sales routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/invoices", h.handleRecordSale)
	r.Post("/quotations", h.handleCreateQuotation)
}

type saleLineRequest struct {
	ProductID int64           `json:"product_id" validate:"required"`
	Quantity  decimal.Decimal `json:"quantity" validate:"required"`
	UnitPrice decimal.Decimal `json:"unit_price" validate:"required"`
}

type recordSaleRequest struct {
	Date           string            `json:"date" validate:"required,datetime=2006-01-02"`
	CustomerID     int64             `json:"customer_id" validate:"required"`
	Payment        string            `json:"payment" validate:"required,oneof=CASH CREDIT"`
	Lines          []saleLineRequest `json:"lines" validate:"required,min=1,dive"`
	Discount       decimal.Decimal   `json:"discount"`
	Tax            decimal.Decimal   `json:"tax"`
	Narration      string            `json:"narration"`
	IdempotencyKey string            `json:"idempotency_key"`
	ActorID        int64             `json:"actor_id"`
	AllowShortage  bool              `json:"allow_shortage"`
}

type invoiceLineResponse struct {
	ProductID int64           `json:"product_id"`
	Quantity  decimal.Decimal `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	UnitCost  decimal.Decimal `json:"unit_cost"`
	LineTotal decimal.Decimal `json:"line_total"`
}

type invoiceResponse struct {
	ID         int64                 `json:"id"`
	Number     string                `json:"number"`
	CustomerID int64                 `json:"customer_id"`
	Date       string                `json:"date"`
	Payment    string                `json:"payment"`
	Subtotal   decimal.Decimal       `json:"subtotal"`
	Discount   decimal.Decimal       `json:"discount"`
	Tax        decimal.Decimal       `json:"tax"`
	Total      decimal.Decimal       `json:"total"`
	CostTotal  decimal.Decimal       `json:"cost_total"`
	JournalID  int64                 `json:"journal_id"`
	Lines      []invoiceLineResponse `json:"lines"`
}

func toInvoiceResponse(inv Invoice) invoiceResponse {
	out := invoiceResponse{
		ID:         inv.ID,
		Number:     inv.Number,
		CustomerID: inv.CustomerID,
		Date:       inv.Date.Format("2006-01-02"),
		Payment:    string(inv.Payment),
		Subtotal:   inv.Subtotal,
		Discount:   inv.Discount,
		Tax:        inv.Tax,
		Total:      inv.Total,
		CostTotal:  inv.CostTotal,
		JournalID:  inv.JournalID,
	}
	for _, line := range inv.Lines {
		out.Lines = append(out.Lines, invoiceLineResponse{
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
			UnitCost:  line.UnitCost,
			LineTotal: line.LineTotal,
		})
	}
	return out
}

func (h *Handler) handleRecordSale(w http.ResponseWriter, r *http.Request) {
	var req recordSaleRequest
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
	input := RecordSaleInput{
		Date:           date,
		CustomerID:     req.CustomerID,
		Payment:        PaymentKind(req.Payment),
		Discount:       req.Discount,
		Tax:            req.Tax,
		Narration:      req.Narration,
		IdempotencyKey: req.IdempotencyKey,
		ActorID:        req.ActorID,
		AllowShortage:  req.AllowShortage,
	}
	for _, line := range req.Lines {
		input.Lines = append(input.Lines, SaleLine{
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
		})
	}
	invoice, err := h.service.RecordSale(r.Context(), input)
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	shared.RespondJSON(w, http.StatusCreated, toInvoiceResponse(invoice))
}

type createQuotationRequest struct {
	Date           string            `json:"date" validate:"required,datetime=2006-01-02"`
	CustomerID     int64             `json:"customer_id" validate:"required"`
	ValidUntil     string            `json:"valid_until" validate:"omitempty,datetime=2006-01-02"`
	Lines          []saleLineRequest `json:"lines" validate:"required,min=1,dive"`
	Discount       decimal.Decimal   `json:"discount"`
	Tax            decimal.Decimal   `json:"tax"`
	IdempotencyKey string            `json:"idempotency_key"`
	ActorID        int64             `json:"actor_id"`
}

type quotationLineResponse struct {
	ProductID int64           `json:"product_id"`
	Quantity  decimal.Decimal `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	LineTotal decimal.Decimal `json:"line_total"`
}

type quotationResponse struct {
	ID         int64                   `json:"id"`
	Number     string                  `json:"number"`
	CustomerID int64                   `json:"customer_id"`
	Date       string                  `json:"date"`
	ValidUntil string                  `json:"valid_until,omitempty"`
	Subtotal   decimal.Decimal         `json:"subtotal"`
	Discount   decimal.Decimal         `json:"discount"`
	Tax        decimal.Decimal         `json:"tax"`
	Total      decimal.Decimal         `json:"total"`
	Lines      []quotationLineResponse `json:"lines"`
}

func (h *Handler) handleCreateQuotation(w http.ResponseWriter, r *http.Request) {
	var req createQuotationRequest
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
	var validUntil time.Time
	if req.ValidUntil != "" {
		validUntil, err = time.Parse("2006-01-02", req.ValidUntil)
		if err != nil {
			shared.RespondJSON(w, http.StatusBadRequest, map[string]string{"error": "valid_until must be YYYY-MM-DD"})
			return
		}
	}
	input := CreateQuotationInput{
		Date:           date,
		CustomerID:     req.CustomerID,
		ValidUntil:     validUntil,
		Discount:       req.Discount,
		Tax:            req.Tax,
		IdempotencyKey: req.IdempotencyKey,
		ActorID:        req.ActorID,
	}
	for _, line := range req.Lines {
		input.Lines = append(input.Lines, SaleLine{
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
		})
	}
	quotation, err := h.service.CreateQuotation(r.Context(), input)
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	resp := quotationResponse{
		ID:         quotation.ID,
		Number:     quotation.Number,
		CustomerID: quotation.CustomerID,
		Date:       quotation.Date.Format("2006-01-02"),
		Subtotal:   quotation.Subtotal,
		Discount:   quotation.Discount,
		Tax:        quotation.Tax,
		Total:      quotation.Total,
	}
	if !quotation.ValidUntil.IsZero() {
		resp.ValidUntil = quotation.ValidUntil.Format("2006-01-02")
	}
	for _, line := range quotation.Lines {
		resp.Lines = append(resp.Lines, quotationLineResponse{
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
			LineTotal: line.LineTotal,
		})
	}
	shared.RespondJSON(w, http.StatusCreated, resp)
}
