package purchasing

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentKind distinguishes immediate cash payment from on-account bills.
type PaymentKind string

const (
	PaymentCash   PaymentKind = "CASH"
	PaymentCredit PaymentKind = "CREDIT"
)

// Bill is a persisted purchase document. Each line becomes a FIFO cost lot.
type Bill struct {
	ID         int64
	Number     string
	SupplierID int64
	Date       time.Time
	Payment    PaymentKind
	Subtotal   decimal.Decimal
	Tax        decimal.Decimal
	Total      decimal.Decimal
	JournalID  int64
	CreatedAt  time.Time
	Lines      []BillLine
}

// BillLine is one purchased product at its landed unit cost.
type BillLine struct {
	ID        int64
	BillID    int64
	ProductID int64
	Quantity  decimal.Decimal
	UnitCost  decimal.Decimal
	LineTotal decimal.Decimal
	LotID     int64
}

// PurchaseLine is one requested line on a purchase.
type PurchaseLine struct {
	ProductID int64
	Quantity  decimal.Decimal
	UnitCost  decimal.Decimal
}

// RecordPurchaseInput describes a purchase to record.
type RecordPurchaseInput struct {
	Date           time.Time
	SupplierID     int64
	Payment        PaymentKind
	Lines          []PurchaseLine
	Tax            decimal.Decimal
	Narration      string
	IdempotencyKey string
	ActorID        int64
}
