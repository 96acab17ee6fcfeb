package stock

import (
	"time"

	"github.com/shopspring/decimal"
)

// MovementType enumerates stock movement kinds. IN, RETURN, and positive
// ADJUSTMENT movements carry a remaining_qty and act as FIFO cost lots;
// OUT, DAMAGE, and negative ADJUSTMENT movements draw those lots down.
type MovementType string

const (
	MovementIn         MovementType = "IN"
	MovementOut        MovementType = "OUT"
	MovementAdjustment MovementType = "ADJUSTMENT"
	MovementDamage     MovementType = "DAMAGE"
	MovementReturn     MovementType = "RETURN"
)

// Inbound reports whether the movement adds stock.
func (t MovementType) Inbound() bool {
	return t == MovementIn || t == MovementReturn
}

// Movement is one stock ledger row. For lot-bearing rows RemainingQty starts
// at Quantity and only ever decreases; lots are never deleted.
type Movement struct {
	ID            int64
	ProductID     int64
	Type          MovementType
	Quantity      decimal.Decimal
	UnitCost      decimal.Decimal
	RemainingQty  decimal.Decimal
	ReferenceType string
	ReferenceID   int64
	CreatedAt     time.Time
}

// Product carries the cached stock figures maintained by this package.
// current_stock must equal the signed sum of all movement quantities;
// nothing outside this package may write it.
type Product struct {
	ID           int64
	Name         string
	CurrentStock decimal.Decimal
	CostPrice    decimal.Decimal
	IsActive     bool
}

// Lot is the slice of a movement row relevant to FIFO consumption.
type Lot struct {
	ID           int64
	RemainingQty decimal.Decimal
	UnitCost     decimal.Decimal
}

// LotUse records how much of one lot a consumption drew and at what cost.
type LotUse struct {
	LotID    int64
	Quantity decimal.Decimal
	UnitCost decimal.Decimal
}

// Consumption is the result of drawing a quantity across lots oldest-first.
// TotalCost always covers the full requested quantity: any shortage portion
// is costed at the product's last known cost price so callers always get a
// usable figure.
type Consumption struct {
	Breakdown []LotUse
	TotalCost decimal.Decimal
	Shortage  decimal.Decimal
	Satisfied decimal.Decimal
}

// AverageCost is TotalCost spread over the satisfied quantity, excluding the
// shortage quantity from the denominator.
func (c Consumption) AverageCost() decimal.Decimal {
	if c.Satisfied.Sign() <= 0 {
		return decimal.Zero
	}
	return c.TotalCost.Div(c.Satisfied)
}

// ReceiveInput describes an incoming lot.
type ReceiveInput struct {
	ProductID     int64
	Quantity      decimal.Decimal
	UnitCost      decimal.Decimal
	Type          MovementType
	ReferenceType string
	ReferenceID   int64
}

// ConsumeInput describes an outgoing movement satisfied by FIFO lots.
type ConsumeInput struct {
	ProductID     int64
	Quantity      decimal.Decimal
	Type          MovementType
	ReferenceType string
	ReferenceID   int64
}
