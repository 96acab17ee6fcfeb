package ledger

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// AccountType enumerates the five chart-of-accounts categories.
type AccountType string

const (
	AccountTypeAsset     AccountType = "ASSET"
	AccountTypeLiability AccountType = "LIABILITY"
	AccountTypeEquity    AccountType = "EQUITY"
	AccountTypeIncome    AccountType = "INCOME"
	AccountTypeExpense   AccountType = "EXPENSE"
)

// DebitNormal reports whether the account type increases on debit.
// Asset and expense accounts are debit-normal; liability, equity, and
// income accounts are credit-normal.
func (t AccountType) DebitNormal() bool {
	return t == AccountTypeAsset || t == AccountTypeExpense
}

// EntryType marks a line as debit or credit.
type EntryType string

const (
	EntryDebit  EntryType = "DEBIT"
	EntryCredit EntryType = "CREDIT"
)

// JournalType tags the business origin of a journal.
type JournalType string

const (
	JournalTypeSale       JournalType = "SALE"
	JournalTypePurchase   JournalType = "PURCHASE"
	JournalTypeExpense    JournalType = "EXPENSE"
	JournalTypeAdjustment JournalType = "ADJUSTMENT"
	JournalTypeManual     JournalType = "MANUAL"
)

// Account models a chart of accounts node. CurrentBalance is a cached
// running total; it must always equal OpeningBalance plus the signed sum of
// posted entries, and is mutated only through journal posting.
type Account struct {
	ID             int64
	Code           string
	Name           string
	Type           AccountType
	OpeningBalance decimal.Decimal
	CurrentBalance decimal.Decimal
	GroupID        *int64
	IsActive       bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Journal is a transaction header. Immutable once created; corrections are
// made via reversing journals, never edits.
type Journal struct {
	ID          int64
	Number      string
	Date        time.Time
	Type        JournalType
	Narration   string
	TotalDebit  decimal.Decimal
	TotalCredit decimal.Decimal
	IsBalanced  bool
	CreatedAt   time.Time
	Entries     []Entry
}

// Entry is one debit or credit line belonging to exactly one journal and
// exactly one account.
type Entry struct {
	ID            int64
	JournalID     int64
	AccountID     int64
	Type          EntryType
	Amount        decimal.Decimal
	ReferenceType string
	ReferenceID   int64
	Narration     string
	CreatedAt     time.Time
}

// balanceTolerance is the largest debit/credit difference accepted as
// rounding noise: one cent of the base currency.
var balanceTolerance = decimal.RequireFromString("0.01")

// PostingEntryInput is one proposed journal line.
type PostingEntryInput struct {
	AccountID     int64
	Type          EntryType
	Amount        decimal.Decimal
	ReferenceType string
	ReferenceID   int64
	Narration     string
}

// PostingInput groups fields required to post a journal.
type PostingInput struct {
	Date      time.Time
	Type      JournalType
	Narration string
	Entries   []PostingEntryInput
}

// Totals sums the proposed debit and credit amounts.
func (in PostingInput) Totals() (debit, credit decimal.Decimal) {
	for _, e := range in.Entries {
		switch e.Type {
		case EntryDebit:
			debit = debit.Add(e.Amount)
		case EntryCredit:
			credit = credit.Add(e.Amount)
		}
	}
	return debit, credit
}

// Validate runs before any write. An input that fails here must leave no
// trace: no header, no entries, no balance mutation.
func (in PostingInput) Validate() error {
	if len(in.Entries) < 2 {
		return fmt.Errorf("ledger: journal requires at least two entries: %w", shared.ErrUnbalanced)
	}
	for idx, e := range in.Entries {
		if e.AccountID == 0 {
			return fmt.Errorf("ledger: entry %d missing account: %w", idx, shared.ErrNotFound)
		}
		if e.Type != EntryDebit && e.Type != EntryCredit {
			return fmt.Errorf("ledger: entry %d has unknown type %q: %w", idx, e.Type, shared.ErrInvalidAmount)
		}
		if e.Amount.Sign() <= 0 {
			return fmt.Errorf("ledger: entry %d amount must be positive: %w", idx, shared.ErrInvalidAmount)
		}
	}
	debit, credit := in.Totals()
	if debit.Sub(credit).Abs().GreaterThan(balanceTolerance) {
		return fmt.Errorf("ledger: debits %s != credits %s: %w", debit, credit, shared.ErrUnbalanced)
	}
	return nil
}

// signedDelta converts an entry into the balance change for its account
// under the normal-balance convention.
func signedDelta(accountType AccountType, entryType EntryType, amount decimal.Decimal) decimal.Decimal {
	if accountType.DebitNormal() == (entryType == EntryDebit) {
		return amount
	}
	return amount.Neg()
}

// DebitCredit pairs aggregated posted totals for one account.
type DebitCredit struct {
	Debit  decimal.Decimal
	Credit decimal.Decimal
}

// LedgerLine is one entry in an account statement with its running balance.
type LedgerLine struct {
	Entry   Entry
	Journal Journal
	Running decimal.Decimal
}

// AccountLedger is the replayed statement for one account.
type AccountLedger struct {
	Account        Account
	OpeningBalance decimal.Decimal
	Lines          []LedgerLine
	ClosingBalance decimal.Decimal
}

// TrialBalanceRow is one account's closing position.
type TrialBalanceRow struct {
	AccountID int64
	Code      string
	Name      string
	Type      AccountType
	Debit     decimal.Decimal
	Credit    decimal.Decimal
}

// TrialBalance lists every account's closing debit or credit balance.
// TotalDebit and TotalCredit must agree for a healthy ledger.
type TrialBalance struct {
	AsOf        *time.Time
	Rows        []TrialBalanceRow
	TotalDebit  decimal.Decimal
	TotalCredit decimal.Decimal
	IsBalanced  bool
}
