package adjustment

import (
	"time"

	"github.com/shopspring/decimal"
)

// Direction states whether an adjustment adds or removes stock.
type Direction string

const (
	DirectionIncrease Direction = "INCREASE"
	DirectionDecrease Direction = "DECREASE"
)

// Adjustment is a persisted stock correction with its valuation journal.
type Adjustment struct {
	ID        int64
	Number    string
	Date      time.Time
	ProductID int64
	Direction Direction
	Quantity  decimal.Decimal
	// UnitCost is the received cost for increases and the FIFO-derived
	// average cost for decreases.
	UnitCost  decimal.Decimal
	Value     decimal.Decimal
	Reason    string
	JournalID int64
	CreatedAt time.Time
}

// AdjustInput describes a stock correction to record.
type AdjustInput struct {
	Date      time.Time
	ProductID int64
	Direction Direction
	Quantity  decimal.Decimal
	// UnitCost is required for increases; decreases derive cost from the
	// consumed lots.
	UnitCost decimal.Decimal
	// Damage marks a decrease as breakage rather than a count correction.
	Damage         bool
	Reason         string
	IdempotencyKey string
	ActorID        int64
}
