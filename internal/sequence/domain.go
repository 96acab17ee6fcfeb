package sequence

import (
	"errors"
	"fmt"
)

// Sequence is a named monotonic counter backing document numbering.
// current_value only moves forward; rolled-back allocations leave gaps,
// which is tolerated. Gap-free numbering is a non-goal.
type Sequence struct {
	Name         string
	Prefix       string
	CurrentValue int64
	PadLength    int
	IsActive     bool
}

// Format renders a counter value as a document number, e.g. INV-000042.
func (s Sequence) Format(value int64) string {
	return fmt.Sprintf("%s%0*d", s.Prefix, s.PadLength, value)
}

var (
	// ErrSequenceNotFound indicates an unknown sequence name.
	ErrSequenceNotFound = errors.New("sequence: name not found")
	// ErrSequenceInactive indicates the counter is disabled.
	ErrSequenceInactive = errors.New("sequence: not active")
)

// Well-known sequence names seeded per document type.
const (
	NameInvoice      = "invoice"
	NamePurchaseBill = "bill"
	NameExpense      = "expense"
	NameJournal      = "journal"
	NameQuotation    = "quotation"
	NameStockAdjust  = "stock_adjustment"
)
