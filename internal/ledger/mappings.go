package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/meridian-erp/meridian-erp/internal/db"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// AccountMapping links an orchestrator's posting role (e.g. SALES/revenue)
// to a concrete ledger account.
type AccountMapping struct {
	Module    string
	Key       string
	AccountID int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ErrMappingNotFound indicates an unconfigured posting role.
var ErrMappingNotFound = fmt.Errorf("ledger: account mapping %w", shared.ErrNotFound)

// Posting role keys shared by the orchestrators.
const (
	MappingCash             = "cash"
	MappingReceivable       = "accounts_receivable"
	MappingPayable          = "accounts_payable"
	MappingRevenue          = "sales_revenue"
	MappingTaxPayable       = "tax_payable"
	MappingTaxReceivable    = "tax_receivable"
	MappingDiscountAllowed  = "discount_allowed"
	MappingCOGS             = "cost_of_goods_sold"
	MappingCustomerAdvance  = "customer_advance"
	MappingInventory        = "inventory"
	MappingAdjustmentOffset = "stock_adjustment"
)

// MappingRepository resolves posting roles to account ids.
type MappingRepository interface {
	Resolve(ctx context.Context, q db.Queryer, module string, keys []string) (map[string]int64, error)
}

type mappingRepository struct{}

// NewMappingRepository returns the pgx-backed mapping repository.
func NewMappingRepository() MappingRepository {
	return mappingRepository{}
}

// Resolve fetches account ids for every requested key and fails if any role
// is unconfigured: the ledger never silently substitutes a default account.
func (mappingRepository) Resolve(ctx context.Context, q db.Queryer, module string, keys []string) (map[string]int64, error) {
	if module == "" || len(keys) == 0 {
		return nil, errors.New("ledger: module and keys required")
	}
	normalized := strings.ToUpper(module)
	rows, err := q.Query(ctx, `SELECT key, account_id FROM account_mappings WHERE module=$1 AND key = ANY($2)`, normalized, keys)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	resolved := make(map[string]int64, len(keys))
	for rows.Next() {
		var key string
		var accountID int64
		if err := rows.Scan(&key, &accountID); err != nil {
			return nil, err
		}
		resolved[key] = accountID
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, key := range keys {
		if _, ok := resolved[key]; !ok {
			return nil, fmt.Errorf("%s/%s: %w", normalized, key, ErrMappingNotFound)
		}
	}
	return resolved, nil
}
