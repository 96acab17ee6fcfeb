package reports

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/ledger"
)

// groupKey derives the presentation group for an account code: the segment
// before the first dot, or the first two characters for flat codes.
func groupKey(code string) string {
	if idx := strings.Index(code, "."); idx > 0 {
		return code[:idx]
	}
	if len(code) >= 2 {
		return code[:2]
	}
	return code
}

// TrialBalanceAccount is one account row inside a trial balance group.
type TrialBalanceAccount struct {
	AccountID int64           `json:"account_id"`
	Code      string          `json:"code"`
	Name      string          `json:"name"`
	Type      string          `json:"type"`
	Debit     decimal.Decimal `json:"debit"`
	Credit    decimal.Decimal `json:"credit"`
}

// TrialBalanceGroup aggregates accounts sharing a code prefix.
type TrialBalanceGroup struct {
	Key      string                `json:"key"`
	Accounts []TrialBalanceAccount `json:"accounts"`
	Debit    decimal.Decimal       `json:"debit"`
	Credit   decimal.Decimal       `json:"credit"`
}

// GroupedTrialBalance is the structure rendered by the API and exports.
type GroupedTrialBalance struct {
	AsOf        string              `json:"as_of,omitempty"`
	Groups      []TrialBalanceGroup `json:"groups"`
	TotalDebit  decimal.Decimal     `json:"total_debit"`
	TotalCredit decimal.Decimal     `json:"total_credit"`
	IsBalanced  bool                `json:"is_balanced"`
}

// BuildTrialBalance converts the raw ledger rows into grouped presentation
// data. Groups and accounts are sorted by code so output is deterministic.
func BuildTrialBalance(tb ledger.TrialBalance) GroupedTrialBalance {
	groups := make(map[string]*TrialBalanceGroup)
	keys := make([]string, 0)
	for _, row := range tb.Rows {
		key := groupKey(row.Code)
		grp, ok := groups[key]
		if !ok {
			grp = &TrialBalanceGroup{Key: key}
			groups[key] = grp
			keys = append(keys, key)
		}
		grp.Accounts = append(grp.Accounts, TrialBalanceAccount{
			AccountID: row.AccountID,
			Code:      row.Code,
			Name:      row.Name,
			Type:      string(row.Type),
			Debit:     row.Debit,
			Credit:    row.Credit,
		})
		grp.Debit = grp.Debit.Add(row.Debit)
		grp.Credit = grp.Credit.Add(row.Credit)
	}

	sort.Strings(keys)
	result := GroupedTrialBalance{
		TotalDebit:  tb.TotalDebit,
		TotalCredit: tb.TotalCredit,
		IsBalanced:  tb.IsBalanced,
	}
	if tb.AsOf != nil {
		result.AsOf = tb.AsOf.Format("2006-01-02")
	}
	for _, key := range keys {
		grp := groups[key]
		sort.Slice(grp.Accounts, func(i, j int) bool {
			return grp.Accounts[i].Code < grp.Accounts[j].Code
		})
		result.Groups = append(result.Groups, *grp)
	}
	return result
}
