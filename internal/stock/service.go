package stock

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Service is the FIFO stock ledger. All mutations run inside the caller's
// transaction; locking the product row first serializes concurrent
// consumptions for the same product so two sales cannot over-draw one lot.
type Service struct {
	repo TxRepository
}

// NewService constructs the stock ledger.
func NewService(repo TxRepository) *Service {
	return &Service{repo: repo}
}

// Receive records an incoming lot with remaining_qty = quantity and bumps
// the product's cached stock. The product's cost price follows the latest
// receipt so shortage costing always has a recent figure.
func (s *Service) Receive(ctx context.Context, tx pgx.Tx, in ReceiveInput) (int64, error) {
	if in.Quantity.Sign() <= 0 || in.UnitCost.Sign() < 0 {
		return 0, shared.ErrInvalidAmount
	}
	if in.Type == "" {
		in.Type = MovementIn
	}
	if _, err := s.repo.GetProductForUpdate(ctx, tx, in.ProductID); err != nil {
		return 0, err
	}
	lotID, err := s.repo.InsertMovement(ctx, tx, Movement{
		ProductID:     in.ProductID,
		Type:          in.Type,
		Quantity:      in.Quantity,
		UnitCost:      in.UnitCost,
		RemainingQty:  in.Quantity,
		ReferenceType: in.ReferenceType,
		ReferenceID:   in.ReferenceID,
	})
	if err != nil {
		return 0, err
	}
	if err := s.repo.AdjustProductStock(ctx, tx, in.ProductID, in.Quantity); err != nil {
		return 0, err
	}
	if err := s.repo.SetProductCostPrice(ctx, tx, in.ProductID, in.UnitCost); err != nil {
		return 0, err
	}
	return lotID, nil
}

// Restore returns previously consumed quantity to stock as a fresh lot,
// used for sales returns.
func (s *Service) Restore(ctx context.Context, tx pgx.Tx, in ReceiveInput) (int64, error) {
	in.Type = MovementReturn
	return s.Receive(ctx, tx, in)
}

// Consume draws the requested quantity across open lots oldest-first and
// reports the cost actually incurred. A shortage is returned, not raised:
// the caller decides whether to block the business document on it. The
// shortage portion is costed at the product's last known cost price.
func (s *Service) Consume(ctx context.Context, tx pgx.Tx, in ConsumeInput) (Consumption, error) {
	if in.Quantity.Sign() <= 0 {
		return Consumption{}, shared.ErrInvalidAmount
	}
	if in.Type == "" {
		in.Type = MovementOut
	}
	product, err := s.repo.GetProductForUpdate(ctx, tx, in.ProductID)
	if err != nil {
		return Consumption{}, err
	}
	lots, err := s.repo.LockOpenLots(ctx, tx, in.ProductID)
	if err != nil {
		return Consumption{}, err
	}

	remaining := in.Quantity
	result := Consumption{TotalCost: decimal.Zero}
	for _, lot := range lots {
		if remaining.Sign() == 0 {
			break
		}
		take := decimal.Min(remaining, lot.RemainingQty)
		if err := s.repo.SetLotRemaining(ctx, tx, lot.ID, lot.RemainingQty.Sub(take)); err != nil {
			return Consumption{}, err
		}
		result.Breakdown = append(result.Breakdown, LotUse{LotID: lot.ID, Quantity: take, UnitCost: lot.UnitCost})
		result.TotalCost = result.TotalCost.Add(take.Mul(lot.UnitCost))
		remaining = remaining.Sub(take)
	}
	result.Shortage = remaining
	result.Satisfied = in.Quantity.Sub(remaining)
	if result.Shortage.Sign() > 0 {
		result.TotalCost = result.TotalCost.Add(result.Shortage.Mul(product.CostPrice))
	}

	// The OUT row records the full requested quantity at a unit cost that
	// closes back to TotalCost, shortage portion included.
	unitCost := result.TotalCost.Div(in.Quantity)
	if _, err := s.repo.InsertMovement(ctx, tx, Movement{
		ProductID:     in.ProductID,
		Type:          in.Type,
		Quantity:      in.Quantity,
		UnitCost:      unitCost,
		RemainingQty:  decimal.Zero,
		ReferenceType: in.ReferenceType,
		ReferenceID:   in.ReferenceID,
	}); err != nil {
		return Consumption{}, err
	}
	if err := s.repo.AdjustProductStock(ctx, tx, in.ProductID, in.Quantity.Neg()); err != nil {
		return Consumption{}, err
	}
	return result, nil
}

// Availability reports the product's current cached stock, for callers that
// block on shortage before consuming.
func (s *Service) Availability(ctx context.Context, tx pgx.Tx, productID int64) (decimal.Decimal, error) {
	product, err := s.repo.GetProductForUpdate(ctx, tx, productID)
	if err != nil {
		return decimal.Zero, err
	}
	return product.CurrentStock, nil
}

// EnsureAvailable is the blocking variant used when a caller refuses to
// oversell: it fails with ErrInsufficientStock instead of recording a
// shortage.
func (s *Service) EnsureAvailable(ctx context.Context, tx pgx.Tx, productID int64, qty decimal.Decimal) error {
	available, err := s.Availability(ctx, tx, productID)
	if err != nil {
		return err
	}
	if available.LessThan(qty) {
		return fmt.Errorf("product %d has %s of %s requested: %w", productID, available, qty, shared.ErrInsufficientStock)
	}
	return nil
}
