package expense

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentKind distinguishes cash-paid expenses from payable accruals.
type PaymentKind string

const (
	PaymentCash   PaymentKind = "CASH"
	PaymentCredit PaymentKind = "CREDIT"
)

// Expense is a persisted expense voucher.
type Expense struct {
	ID               int64
	Number           string
	Date             time.Time
	ExpenseAccountID int64
	Payment          PaymentKind
	Amount           decimal.Decimal
	Tax              decimal.Decimal
	Total            decimal.Decimal
	Narration        string
	JournalID        int64
	CreatedAt        time.Time
}

// RecordExpenseInput describes an expense to record. The expense account is
// supplied by the caller: expense categories map one-to-one onto ledger
// accounts rather than going through the role mapping.
type RecordExpenseInput struct {
	Date             time.Time
	ExpenseAccountID int64
	Payment          PaymentKind
	Amount           decimal.Decimal
	Tax              decimal.Decimal
	Narration        string
	IdempotencyKey   string
	ActorID          int64
}
