package sales

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentKind distinguishes immediate cash receipts from on-account sales.
type PaymentKind string

const (
	PaymentCash   PaymentKind = "CASH"
	PaymentCredit PaymentKind = "CREDIT"
)

// Invoice is a persisted sales document. Stock consumption and the sale
// journal reference it, all created in one transaction.
type Invoice struct {
	ID         int64
	Number     string
	CustomerID int64
	Date       time.Time
	Payment    PaymentKind
	Subtotal   decimal.Decimal
	Discount   decimal.Decimal
	Tax        decimal.Decimal
	Total      decimal.Decimal
	CostTotal  decimal.Decimal
	JournalID  int64
	CreatedAt  time.Time
	Lines      []InvoiceLine
}

// InvoiceLine is one sold product with the FIFO cost attributed to it.
type InvoiceLine struct {
	ID        int64
	InvoiceID int64
	ProductID int64
	Quantity  decimal.Decimal
	UnitPrice decimal.Decimal
	UnitCost  decimal.Decimal
	LineTotal decimal.Decimal
}

// Quotation is a priced offer. It allocates a document number but moves no
// stock and posts no journal.
type Quotation struct {
	ID         int64
	Number     string
	CustomerID int64
	Date       time.Time
	ValidUntil time.Time
	Subtotal   decimal.Decimal
	Discount   decimal.Decimal
	Tax        decimal.Decimal
	Total      decimal.Decimal
	CreatedAt  time.Time
	Lines      []QuotationLine
}

// QuotationLine is one offered product.
type QuotationLine struct {
	ID          int64
	QuotationID int64
	ProductID   int64
	Quantity    decimal.Decimal
	UnitPrice   decimal.Decimal
	LineTotal   decimal.Decimal
}

// SaleLine is one requested line on a sale or quotation.
type SaleLine struct {
	ProductID int64
	Quantity  decimal.Decimal
	UnitPrice decimal.Decimal
}

// RecordSaleInput describes a sale to record.
type RecordSaleInput struct {
	Date           time.Time
	CustomerID     int64
	Payment        PaymentKind
	Lines          []SaleLine
	Discount       decimal.Decimal
	Tax            decimal.Decimal
	Narration      string
	IdempotencyKey string
	ActorID        int64
	// AllowShortage lets the sale proceed when FIFO lots cannot cover the
	// quantity; the shortage portion is costed at the last known cost price.
	AllowShortage bool
	// AmountReceived is the cash actually taken on a CASH sale. Zero means
	// exactly the invoice total. Any excess over the total is credited to
	// the customer-advance account, never booked as negative receivable.
	AmountReceived decimal.Decimal
}

// CreateQuotationInput describes a quotation to create.
type CreateQuotationInput struct {
	Date           time.Time
	CustomerID     int64
	ValidUntil     time.Time
	Lines          []SaleLine
	Discount       decimal.Decimal
	Tax            decimal.Decimal
	IdempotencyKey string
	ActorID        int64
}
