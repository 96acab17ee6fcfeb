package sales

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/db"
	"github.com/meridian-erp/meridian-erp/internal/ledger"
	"github.com/meridian-erp/meridian-erp/internal/sequence"
	"github.com/meridian-erp/meridian-erp/internal/shared"
	"github.com/meridian-erp/meridian-erp/internal/stock"
)

// StockPort is the slice of the FIFO stock ledger the sale needs.
type StockPort interface {
	Consume(ctx context.Context, tx pgx.Tx, in stock.ConsumeInput) (stock.Consumption, error)
	EnsureAvailable(ctx context.Context, tx pgx.Tx, productID int64, qty decimal.Decimal) error
}

// LedgerPort posts the balanced sale journal.
type LedgerPort interface {
	PostJournal(ctx context.Context, tx pgx.Tx, input ledger.PostingInput) (ledger.Journal, error)
	ResyncJournalNumbers(ctx context.Context) error
}

// NumberPort allocates and repairs document numbers.
type NumberPort interface {
	Allocate(ctx context.Context, tx pgx.Tx, name string) (string, error)
	Resync(ctx context.Context, tx pgx.Tx, name string, floor int64) error
}

// MappingPort resolves posting roles to ledger accounts.
type MappingPort interface {
	Resolve(ctx context.Context, q db.Queryer, module string, keys []string) (map[string]int64, error)
}

// GuardPort reserves idempotency keys inside the transaction.
type GuardPort interface {
	Reserve(ctx context.Context, tx pgx.Tx, key, module string) error
}

// AuditPort records committed operations.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// ReportInvalidator drops cached report snapshots once a posting commits.
type ReportInvalidator interface {
	Invalidate(ctx context.Context) error
}

const mappingModule = "SALES"

// Service records sales and quotations. Each operation is one atomic unit
// of work: number allocation, stock consumption, and journal posting commit
// together or not at all. Partial posting is not an error mode, it is a
// rollback.
type Service struct {
	repo        TxRepository
	runner      db.TxRunner
	seq         NumberPort
	stock       StockPort
	ledger      LedgerPort
	mappings    MappingPort
	guard       GuardPort
	audit       AuditPort
	invalidator ReportInvalidator
	now         func() time.Time
}

// NewService constructs the sales orchestrator.
func NewService(repo TxRepository, runner db.TxRunner, seq NumberPort, stockPort StockPort, ledgerPort LedgerPort, mappings MappingPort, guard GuardPort, audit AuditPort) *Service {
	return &Service{
		repo:     repo,
		runner:   runner,
		seq:      seq,
		stock:    stockPort,
		ledger:   ledgerPort,
		mappings: mappings,
		guard:    guard,
		audit:    audit,
		now:      time.Now,
	}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// WithReportInvalidator attaches the report cache so a committed sale drops
// stale snapshots.
func (s *Service) WithReportInvalidator(inv ReportInvalidator) {
	s.invalidator = inv
}

func (s *Service) dropReportCache(ctx context.Context) {
	if s.invalidator == nil {
		return
	}
	_ = s.invalidator.Invalidate(ctx)
}

func validateLines(lines []SaleLine) error {
	if len(lines) == 0 {
		return fmt.Errorf("sales: at least one line required: %w", shared.ErrInvalidAmount)
	}
	for idx, line := range lines {
		if line.ProductID == 0 {
			return fmt.Errorf("sales: line %d missing product: %w", idx, shared.ErrNotFound)
		}
		if line.Quantity.Sign() <= 0 || line.UnitPrice.Sign() < 0 {
			return fmt.Errorf("sales: line %d invalid quantity or price: %w", idx, shared.ErrInvalidAmount)
		}
	}
	return nil
}

// RecordSale runs the full sale posting: invoice number, FIFO consumption
// per line, and the balanced journal (receivable or cash, revenue, tax,
// discount, COGS against inventory), all inside one transaction with the
// bounded duplicate-number retry around the whole body.
func (s *Service) RecordSale(ctx context.Context, input RecordSaleInput) (Invoice, error) {
	if err := validateLines(input.Lines); err != nil {
		return Invoice{}, err
	}
	if input.Discount.Sign() < 0 || input.Tax.Sign() < 0 {
		return Invoice{}, fmt.Errorf("sales: negative discount or tax: %w", shared.ErrInvalidAmount)
	}
	if input.AmountReceived.Sign() < 0 {
		return Invoice{}, fmt.Errorf("sales: negative amount received: %w", shared.ErrInvalidAmount)
	}
	if input.AmountReceived.Sign() > 0 && input.Payment == PaymentCredit {
		return Invoice{}, fmt.Errorf("sales: amount received requires cash payment: %w", shared.ErrInvalidAmount)
	}
	if input.Payment == "" {
		input.Payment = PaymentCredit
	}

	var invoice Invoice
	err := shared.RetryOnDuplicateNumber(ctx, func(ctx context.Context) error {
		return s.runner.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
			posted, err := s.recordSaleTx(ctx, tx, input)
			if err != nil {
				return err
			}
			invoice = posted
			return nil
		})
	}, s.resyncInvoiceNumbers)
	if err != nil {
		return Invoice{}, err
	}
	s.dropReportCache(ctx)
	s.recordAudit(ctx, input.ActorID, "sale.record", invoice.ID, map[string]any{
		"number": invoice.Number,
		"total":  invoice.Total.String(),
		"cost":   invoice.CostTotal.String(),
	})
	return invoice, nil
}

func (s *Service) recordSaleTx(ctx context.Context, tx pgx.Tx, input RecordSaleInput) (Invoice, error) {
	if input.IdempotencyKey != "" {
		if err := s.guard.Reserve(ctx, tx, input.IdempotencyKey, "sales"); err != nil {
			return Invoice{}, err
		}
	}

	number, err := s.seq.Allocate(ctx, tx, sequence.NameInvoice)
	if err != nil {
		return Invoice{}, err
	}

	accounts, err := s.mappings.Resolve(ctx, tx, mappingModule, []string{
		ledger.MappingCash,
		ledger.MappingReceivable,
		ledger.MappingRevenue,
		ledger.MappingTaxPayable,
		ledger.MappingDiscountAllowed,
		ledger.MappingCOGS,
		ledger.MappingInventory,
	})
	if err != nil {
		return Invoice{}, err
	}

	subtotal := decimal.Zero
	for _, line := range input.Lines {
		subtotal = subtotal.Add(line.Quantity.Mul(line.UnitPrice))
	}
	total := subtotal.Sub(input.Discount).Add(input.Tax)
	if total.Sign() < 0 {
		return Invoice{}, fmt.Errorf("sales: discount exceeds subtotal: %w", shared.ErrInvalidAmount)
	}

	// Excess cash over the invoice total becomes a customer advance, a
	// liability to be applied against future invoices.
	advance := decimal.Zero
	if input.AmountReceived.Sign() > 0 {
		if input.AmountReceived.LessThan(total) {
			return Invoice{}, fmt.Errorf("sales: amount received below invoice total: %w", shared.ErrInvalidAmount)
		}
		advance = input.AmountReceived.Sub(total)
	}

	invoice, err := s.repo.InsertInvoice(ctx, tx, Invoice{
		Number:     number,
		CustomerID: input.CustomerID,
		Date:       input.Date,
		Payment:    input.Payment,
		Subtotal:   subtotal,
		Discount:   input.Discount,
		Tax:        input.Tax,
		Total:      total,
		CostTotal:  decimal.Zero,
	})
	if err != nil {
		return Invoice{}, err
	}

	costTotal := decimal.Zero
	lines := make([]InvoiceLine, 0, len(input.Lines))
	for _, line := range input.Lines {
		if !input.AllowShortage {
			if err := s.stock.EnsureAvailable(ctx, tx, line.ProductID, line.Quantity); err != nil {
				return Invoice{}, err
			}
		}
		consumption, err := s.stock.Consume(ctx, tx, stock.ConsumeInput{
			ProductID:     line.ProductID,
			Quantity:      line.Quantity,
			Type:          stock.MovementOut,
			ReferenceType: "sale",
			ReferenceID:   invoice.ID,
		})
		if err != nil {
			return Invoice{}, err
		}
		costTotal = costTotal.Add(consumption.TotalCost)
		lines = append(lines, InvoiceLine{
			InvoiceID: invoice.ID,
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
			UnitCost:  consumption.AverageCost(),
			LineTotal: line.Quantity.Mul(line.UnitPrice),
		})
	}
	if err := s.repo.InsertInvoiceLines(ctx, tx, invoice.ID, lines); err != nil {
		return Invoice{}, err
	}

	entries := []ledger.PostingEntryInput{
		{AccountID: receivingAccount(accounts, input.Payment), Type: ledger.EntryDebit, Amount: total.Add(advance), ReferenceType: "sale", ReferenceID: invoice.ID},
		{AccountID: accounts[ledger.MappingRevenue], Type: ledger.EntryCredit, Amount: subtotal, ReferenceType: "sale", ReferenceID: invoice.ID},
	}
	if advance.Sign() > 0 {
		advanceAccounts, err := s.mappings.Resolve(ctx, tx, mappingModule, []string{ledger.MappingCustomerAdvance})
		if err != nil {
			return Invoice{}, err
		}
		entries = append(entries, ledger.PostingEntryInput{
			AccountID: advanceAccounts[ledger.MappingCustomerAdvance], Type: ledger.EntryCredit, Amount: advance,
			ReferenceType: "sale", ReferenceID: invoice.ID,
		})
	}
	if input.Discount.Sign() > 0 {
		entries = append(entries, ledger.PostingEntryInput{
			AccountID: accounts[ledger.MappingDiscountAllowed], Type: ledger.EntryDebit, Amount: input.Discount,
			ReferenceType: "sale", ReferenceID: invoice.ID,
		})
	}
	if input.Tax.Sign() > 0 {
		entries = append(entries, ledger.PostingEntryInput{
			AccountID: accounts[ledger.MappingTaxPayable], Type: ledger.EntryCredit, Amount: input.Tax,
			ReferenceType: "sale", ReferenceID: invoice.ID,
		})
	}
	if costTotal.Sign() > 0 {
		entries = append(entries,
			ledger.PostingEntryInput{AccountID: accounts[ledger.MappingCOGS], Type: ledger.EntryDebit, Amount: costTotal, ReferenceType: "sale", ReferenceID: invoice.ID},
			ledger.PostingEntryInput{AccountID: accounts[ledger.MappingInventory], Type: ledger.EntryCredit, Amount: costTotal, ReferenceType: "sale", ReferenceID: invoice.ID},
		)
	}

	journal, err := s.ledger.PostJournal(ctx, tx, ledger.PostingInput{
		Date:      input.Date,
		Type:      ledger.JournalTypeSale,
		Narration: saleNarration(input.Narration, number),
		Entries:   entries,
	})
	if err != nil {
		return Invoice{}, err
	}

	if err := s.repo.SetInvoiceCostAndJournal(ctx, tx, invoice.ID, journal.ID, costTotal); err != nil {
		return Invoice{}, err
	}
	invoice.CostTotal = costTotal
	invoice.JournalID = journal.ID
	invoice.Lines = lines
	return invoice, nil
}

// CreateQuotation allocates a quotation number and persists the offer. No
// stock moves and no journal posts until the quotation converts to a sale.
func (s *Service) CreateQuotation(ctx context.Context, input CreateQuotationInput) (Quotation, error) {
	if err := validateLines(input.Lines); err != nil {
		return Quotation{}, err
	}
	var quotation Quotation
	err := shared.RetryOnDuplicateNumber(ctx, func(ctx context.Context) error {
		return s.runner.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
			if input.IdempotencyKey != "" {
				if err := s.guard.Reserve(ctx, tx, input.IdempotencyKey, "quotations"); err != nil {
					return err
				}
			}
			number, err := s.seq.Allocate(ctx, tx, sequence.NameQuotation)
			if err != nil {
				return err
			}
			subtotal := decimal.Zero
			lines := make([]QuotationLine, 0, len(input.Lines))
			for _, line := range input.Lines {
				lineTotal := line.Quantity.Mul(line.UnitPrice)
				subtotal = subtotal.Add(lineTotal)
				lines = append(lines, QuotationLine{ProductID: line.ProductID, Quantity: line.Quantity, UnitPrice: line.UnitPrice, LineTotal: lineTotal})
			}
			inserted, err := s.repo.InsertQuotation(ctx, tx, Quotation{
				Number:     number,
				CustomerID: input.CustomerID,
				Date:       input.Date,
				ValidUntil: input.ValidUntil,
				Subtotal:   subtotal,
				Discount:   input.Discount,
				Tax:        input.Tax,
				Total:      subtotal.Sub(input.Discount).Add(input.Tax),
			})
			if err != nil {
				return err
			}
			if err := s.repo.InsertQuotationLines(ctx, tx, inserted.ID, lines); err != nil {
				return err
			}
			inserted.Lines = lines
			quotation = inserted
			return nil
		})
	}, func(ctx context.Context) error {
		return s.runner.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
			highest, err := s.repo.MaxQuotationNumber(ctx, tx)
			if err != nil {
				return err
			}
			return s.seq.Resync(ctx, tx, sequence.NameQuotation, highest)
		})
	})
	if err != nil {
		return Quotation{}, err
	}
	s.recordAudit(ctx, input.ActorID, "quotation.create", quotation.ID, map[string]any{"number": quotation.Number})
	return quotation, nil
}

// resyncInvoiceNumbers repairs both coupled counters: the invoice sequence
// and the journal sequence, since a sale allocates from each.
func (s *Service) resyncInvoiceNumbers(ctx context.Context) error {
	err := s.runner.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		highest, err := s.repo.MaxInvoiceNumber(ctx, tx)
		if err != nil {
			return err
		}
		return s.seq.Resync(ctx, tx, sequence.NameInvoice, highest)
	})
	if err != nil {
		return err
	}
	return s.ledger.ResyncJournalNumbers(ctx)
}

func receivingAccount(accounts map[string]int64, payment PaymentKind) int64 {
	if payment == PaymentCash {
		return accounts[ledger.MappingCash]
	}
	return accounts[ledger.MappingReceivable]
}

func saleNarration(narration, number string) string {
	if narration != "" {
		return narration
	}
	return fmt.Sprintf("Sale %s", number)
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "sales_document",
		EntityID: fmt.Sprintf("%d", entityID),
		Meta:     meta,
		At:       s.now(),
	})
}
