package ledger

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Handler wires HTTP endpoints for journals and ledger reports.
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

// MountRoutes registers ledger routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/journals", h.handlePostJournal)
	r.Get("/journals/{journalID}", h.handleGetJournal)
	r.Post("/journals/{journalID}/reverse", h.handleReverse)
	r.Get("/accounts", h.handleListAccounts)
	r.Get("/accounts/{accountID}/ledger", h.handleAccountLedger)
	r.Get("/trial-balance", h.handleTrialBalance)
}

type journalEntryRequest struct {
	AccountID     int64           `json:"account_id" validate:"required"`
	Type          string          `json:"type" validate:"required,oneof=DEBIT CREDIT"`
	Amount        decimal.Decimal `json:"amount" validate:"required"`
	ReferenceType string          `json:"reference_type"`
	ReferenceID   int64           `json:"reference_id"`
	Narration     string          `json:"narration"`
}

type manualJournalRequest struct {
	Date      string                `json:"date" validate:"required,datetime=2006-01-02"`
	Narration string                `json:"narration"`
	ActorID   int64                 `json:"actor_id"`
	Entries   []journalEntryRequest `json:"entries" validate:"required,min=2,dive"`
}

type entryResponse struct {
	ID            int64           `json:"id"`
	AccountID     int64           `json:"account_id"`
	Type          string          `json:"type"`
	Amount        decimal.Decimal `json:"amount"`
	ReferenceType string          `json:"reference_type,omitempty"`
	ReferenceID   int64           `json:"reference_id,omitempty"`
	Narration     string          `json:"narration,omitempty"`
}

type journalResponse struct {
	ID          int64           `json:"id"`
	Number      string          `json:"number"`
	Date        string          `json:"date"`
	Type        string          `json:"type"`
	Narration   string          `json:"narration"`
	TotalDebit  decimal.Decimal `json:"total_debit"`
	TotalCredit decimal.Decimal `json:"total_credit"`
	IsBalanced  bool            `json:"is_balanced"`
	Entries     []entryResponse `json:"entries,omitempty"`
}

func toJournalResponse(j Journal) journalResponse {
	out := journalResponse{
		ID:          j.ID,
		Number:      j.Number,
		Date:        j.Date.Format("2006-01-02"),
		Type:        string(j.Type),
		Narration:   j.Narration,
		TotalDebit:  j.TotalDebit,
		TotalCredit: j.TotalCredit,
		IsBalanced:  j.IsBalanced,
	}
	for _, e := range j.Entries {
		out.Entries = append(out.Entries, entryResponse{
			ID:            e.ID,
			AccountID:     e.AccountID,
			Type:          string(e.Type),
			Amount:        e.Amount,
			ReferenceType: e.ReferenceType,
			ReferenceID:   e.ReferenceID,
			Narration:     e.Narration,
		})
	}
	return out
}

func (h *Handler) handlePostJournal(w http.ResponseWriter, r *http.Request) {
	var req manualJournalRequest
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
	input := ManualJournalInput{
		Date:      date,
		Narration: req.Narration,
		ActorID:   req.ActorID,
	}
	for _, e := range req.Entries {
		input.Entries = append(input.Entries, PostingEntryInput{
			AccountID:     e.AccountID,
			Type:          EntryType(e.Type),
			Amount:        e.Amount,
			ReferenceType: e.ReferenceType,
			ReferenceID:   e.ReferenceID,
			Narration:     e.Narration,
		})
	}
	journal, err := h.service.PostManualJournal(r.Context(), input)
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	shared.RespondJSON(w, http.StatusCreated, toJournalResponse(journal))
}

func (h *Handler) handleGetJournal(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "journalID"), 10, 64)
	if err != nil {
		shared.RespondJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid journal id"})
		return
	}
	journal, err := h.service.Journal(r.Context(), id)
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	shared.RespondJSON(w, http.StatusOK, toJournalResponse(journal))
}

type reverseRequest struct {
	Narration string `json:"narration"`
	ActorID   int64  `json:"actor_id"`
}

func (h *Handler) handleReverse(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "journalID"), 10, 64)
	if err != nil {
		shared.RespondJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid journal id"})
		return
	}
	var req reverseRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	reversal, err := h.service.ReverseJournal(r.Context(), id, req.Narration, req.ActorID)
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	shared.RespondJSON(w, http.StatusCreated, toJournalResponse(reversal))
}

type accountResponse struct {
	ID             int64           `json:"id"`
	Code           string          `json:"code"`
	Name           string          `json:"name"`
	Type           string          `json:"type"`
	OpeningBalance decimal.Decimal `json:"opening_balance"`
	CurrentBalance decimal.Decimal `json:"current_balance"`
	IsActive       bool            `json:"is_active"`
}

func (h *Handler) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.service.Accounts(r.Context())
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	out := make([]accountResponse, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, accountResponse{
			ID:             a.ID,
			Code:           a.Code,
			Name:           a.Name,
			Type:           string(a.Type),
			OpeningBalance: a.OpeningBalance,
			CurrentBalance: a.CurrentBalance,
			IsActive:       a.IsActive,
		})
	}
	shared.RespondJSON(w, http.StatusOK, out)
}

type ledgerLineResponse struct {
	JournalID     int64           `json:"journal_id"`
	JournalNumber string          `json:"journal_number"`
	Date          string          `json:"date"`
	Type          string          `json:"type"`
	Amount        decimal.Decimal `json:"amount"`
	Narration     string          `json:"narration,omitempty"`
	Running       decimal.Decimal `json:"running_balance"`
}

type accountLedgerResponse struct {
	Account        accountResponse      `json:"account"`
	OpeningBalance decimal.Decimal      `json:"opening_balance"`
	Lines          []ledgerLineResponse `json:"lines"`
	ClosingBalance decimal.Decimal      `json:"closing_balance"`
}

func (h *Handler) handleAccountLedger(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "accountID"), 10, 64)
	if err != nil {
		shared.RespondJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid account id"})
		return
	}
	from, err := parseDateParam(r, "from")
	if err != nil {
		shared.RespondJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	to, err := parseDateParam(r, "to")
	if err != nil {
		shared.RespondJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	statement, err := h.service.AccountLedger(r.Context(), id, from, to)
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	resp := accountLedgerResponse{
		Account: accountResponse{
			ID:             statement.Account.ID,
			Code:           statement.Account.Code,
			Name:           statement.Account.Name,
			Type:           string(statement.Account.Type),
			OpeningBalance: statement.Account.OpeningBalance,
			CurrentBalance: statement.Account.CurrentBalance,
			IsActive:       statement.Account.IsActive,
		},
		OpeningBalance: statement.OpeningBalance,
		Lines:          make([]ledgerLineResponse, 0, len(statement.Lines)),
		ClosingBalance: statement.ClosingBalance,
	}
	for _, line := range statement.Lines {
		resp.Lines = append(resp.Lines, ledgerLineResponse{
			JournalID:     line.Journal.ID,
			JournalNumber: line.Journal.Number,
			Date:          line.Journal.Date.Format("2006-01-02"),
			Type:          string(line.Entry.Type),
			Amount:        line.Entry.Amount,
			Narration:     line.Entry.Narration,
			Running:       line.Running,
		})
	}
	shared.RespondJSON(w, http.StatusOK, resp)
}

type trialBalanceRowResponse struct {
	AccountID int64           `json:"account_id"`
	Code      string          `json:"code"`
	Name      string          `json:"name"`
	Type      string          `json:"type"`
	Debit     decimal.Decimal `json:"debit"`
	Credit    decimal.Decimal `json:"credit"`
}

type trialBalanceResponse struct {
	AsOf        string                    `json:"as_of,omitempty"`
	Rows        []trialBalanceRowResponse `json:"rows"`
	TotalDebit  decimal.Decimal           `json:"total_debit"`
	TotalCredit decimal.Decimal           `json:"total_credit"`
	IsBalanced  bool                      `json:"is_balanced"`
}

func (h *Handler) handleTrialBalance(w http.ResponseWriter, r *http.Request) {
	asOf, err := parseDateParam(r, "as_of")
	if err != nil {
		shared.RespondJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	tb, err := h.service.TrialBalanceReport(r.Context(), asOf)
	if err != nil {
		shared.RespondError(w, h.logger, err)
		return
	}
	resp := trialBalanceResponse{
		Rows:        make([]trialBalanceRowResponse, 0, len(tb.Rows)),
		TotalDebit:  tb.TotalDebit,
		TotalCredit: tb.TotalCredit,
		IsBalanced:  tb.IsBalanced,
	}
	if tb.AsOf != nil {
		resp.AsOf = tb.AsOf.Format("2006-01-02")
	}
	for _, row := range tb.Rows {
		resp.Rows = append(resp.Rows, trialBalanceRowResponse{
			AccountID: row.AccountID,
			Code:      row.Code,
			Name:      row.Name,
			Type:      string(row.Type),
			Debit:     row.Debit,
			Credit:    row.Credit,
		})
	}
	shared.RespondJSON(w, http.StatusOK, resp)
}

func parseDateParam(r *http.Request, name string) (*time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	parsed, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil, fmt.Errorf("%s must be YYYY-MM-DD", name)
	}
	return &parsed, nil
}
