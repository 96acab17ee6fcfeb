package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/db"
	"github.com/meridian-erp/meridian-erp/internal/sequence"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// NumberSource allocates and repairs document numbers inside the caller's
// transaction.
type NumberSource interface {
	Allocate(ctx context.Context, tx pgx.Tx, name string) (string, error)
	Resync(ctx context.Context, tx pgx.Tx, name string, floor int64) error
}

// AuditPort records ledger events for compliance.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// ReportInvalidator drops cached report snapshots once a posting commits.
type ReportInvalidator interface {
	Invalidate(ctx context.Context) error
}

// ErrAccountInactive indicates a posting referenced a deactivated account.
var ErrAccountInactive = errors.New("ledger: account is deactivated")

// Service is the double-entry ledger. PostJournal participates in the
// caller's transaction; PostManualJournal and ReverseJournal open their own
// unit of work and carry the bounded duplicate-number retry.
type Service struct {
	repo        Repository
	seq         NumberSource
	runner      db.TxRunner
	reader      db.Queryer
	audit       AuditPort
	invalidator ReportInvalidator
	now         func() time.Time
}

// NewService constructs the ledger service.
func NewService(repo Repository, seq NumberSource, runner db.TxRunner, reader db.Queryer, audit AuditPort) *Service {
	return &Service{repo: repo, seq: seq, runner: runner, reader: reader, audit: audit, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// WithReportInvalidator attaches the report cache so committed postings drop
// stale snapshots. Invalidation runs after commit and is best-effort: the TTL
// caps staleness when the bump fails.
func (s *Service) WithReportInvalidator(inv ReportInvalidator) {
	s.invalidator = inv
}

func (s *Service) dropReportCache(ctx context.Context) {
	if s.invalidator == nil {
		return
	}
	_ = s.invalidator.Invalidate(ctx)
}

// PostJournal validates and persists one balanced journal inside the
// caller's open transaction. Validation runs before any write: an
// unbalanced or invalid input leaves the database untouched. The journal
// number is allocated here because the number and the journal are coupled.
func (s *Service) PostJournal(ctx context.Context, tx pgx.Tx, input PostingInput) (Journal, error) {
	if err := input.Validate(); err != nil {
		return Journal{}, err
	}
	number, err := s.seq.Allocate(ctx, tx, sequence.NameJournal)
	if err != nil {
		return Journal{}, err
	}
	return s.postAllocated(ctx, tx, number, input)
}

// postAllocated persists a journal whose number has already been issued.
func (s *Service) postAllocated(ctx context.Context, tx pgx.Tx, number string, input PostingInput) (Journal, error) {
	ids := make([]int64, 0, len(input.Entries))
	seen := make(map[int64]bool, len(input.Entries))
	for _, e := range input.Entries {
		if !seen[e.AccountID] {
			seen[e.AccountID] = true
			ids = append(ids, e.AccountID)
		}
	}
	accounts, err := s.repo.GetAccountsForUpdate(ctx, tx, ids)
	if err != nil {
		return Journal{}, err
	}
	for _, id := range ids {
		account, ok := accounts[id]
		if !ok {
			return Journal{}, fmt.Errorf("ledger: account %d: %w", id, shared.ErrNotFound)
		}
		if !account.IsActive {
			return Journal{}, fmt.Errorf("ledger: account %s: %w", account.Code, ErrAccountInactive)
		}
	}

	debit, credit := input.Totals()
	journal := Journal{
		Number:      number,
		Date:        input.Date,
		Type:        input.Type,
		Narration:   input.Narration,
		TotalDebit:  debit,
		TotalCredit: credit,
		IsBalanced:  true,
	}
	journal, err = s.repo.InsertJournal(ctx, tx, journal)
	if err != nil {
		return Journal{}, err
	}

	entries := make([]Entry, 0, len(input.Entries))
	deltas := make(map[int64]decimal.Decimal, len(ids))
	for _, e := range input.Entries {
		entries = append(entries, Entry{
			JournalID:     journal.ID,
			AccountID:     e.AccountID,
			Type:          e.Type,
			Amount:        e.Amount,
			ReferenceType: e.ReferenceType,
			ReferenceID:   e.ReferenceID,
			Narration:     e.Narration,
		})
		account := accounts[e.AccountID]
		deltas[e.AccountID] = deltas[e.AccountID].Add(signedDelta(account.Type, e.Type, e.Amount))
	}
	if err := s.repo.InsertEntries(ctx, tx, journal.ID, entries); err != nil {
		return Journal{}, err
	}
	for _, id := range ids {
		if err := s.repo.ApplyBalanceDelta(ctx, tx, id, deltas[id]); err != nil {
			return Journal{}, err
		}
	}
	journal.Entries = entries
	return journal, nil
}

// ManualJournalInput describes a manually keyed journal voucher.
type ManualJournalInput struct {
	Date      time.Time
	Narration string
	ActorID   int64
	Entries   []PostingEntryInput
}

// PostManualJournal is the manual-voucher orchestrator: one transaction,
// number allocation, balanced posting, and the bounded resync-and-redo
// recovery for duplicate numbers.
func (s *Service) PostManualJournal(ctx context.Context, input ManualJournalInput) (Journal, error) {
	var journal Journal
	err := shared.RetryOnDuplicateNumber(ctx, func(ctx context.Context) error {
		return s.runner.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
			posted, err := s.PostJournal(ctx, tx, PostingInput{
				Date:      input.Date,
				Type:      JournalTypeManual,
				Narration: input.Narration,
				Entries:   input.Entries,
			})
			if err != nil {
				return err
			}
			journal = posted
			return nil
		})
	}, s.resyncJournalNumbers)
	if err != nil {
		return Journal{}, err
	}
	s.dropReportCache(ctx)
	s.recordAudit(ctx, input.ActorID, "journal.post", journal)
	return journal, nil
}

// ReverseJournal posts the mirror image of an existing journal. The ledger
// never edits posted journals; corrections always arrive as new entries.
func (s *Service) ReverseJournal(ctx context.Context, journalID int64, narration string, actorID int64) (Journal, error) {
	var reversal Journal
	err := shared.RetryOnDuplicateNumber(ctx, func(ctx context.Context) error {
		return s.runner.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
			original, err := s.repo.GetJournalWithEntries(ctx, tx, journalID)
			if err != nil {
				return err
			}
			entries := make([]PostingEntryInput, 0, len(original.Entries))
			for _, e := range original.Entries {
				flipped := EntryCredit
				if e.Type == EntryCredit {
					flipped = EntryDebit
				}
				entries = append(entries, PostingEntryInput{
					AccountID:     e.AccountID,
					Type:          flipped,
					Amount:        e.Amount,
					ReferenceType: e.ReferenceType,
					ReferenceID:   e.ReferenceID,
					Narration:     e.Narration,
				})
			}
			memo := narration
			if memo == "" {
				memo = fmt.Sprintf("Reversal of %s", original.Number)
			}
			posted, err := s.PostJournal(ctx, tx, PostingInput{
				Date:      s.now(),
				Type:      JournalTypeManual,
				Narration: memo,
				Entries:   entries,
			})
			if err != nil {
				return err
			}
			reversal = posted
			return nil
		})
	}, s.resyncJournalNumbers)
	if err != nil {
		return Journal{}, err
	}
	s.dropReportCache(ctx)
	s.recordAudit(ctx, actorID, "journal.reverse", reversal)
	return reversal, nil
}

// ResyncJournalNumbers raises the journal sequence to the highest persisted
// journal number, the repair step after a duplicate-number race.
func (s *Service) ResyncJournalNumbers(ctx context.Context) error {
	return s.resyncJournalNumbers(ctx)
}

func (s *Service) resyncJournalNumbers(ctx context.Context) error {
	return s.runner.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		highest, err := s.repo.MaxJournalNumber(ctx, tx)
		if err != nil {
			return err
		}
		return s.seq.Resync(ctx, tx, sequence.NameJournal, highest)
	})
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, journal Journal) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "journal",
		EntityID: fmt.Sprintf("%d", journal.ID),
		Meta: map[string]any{
			"number":       journal.Number,
			"total_debit":  journal.TotalDebit.String(),
			"total_credit": journal.TotalCredit.String(),
		},
		At: s.now(),
	})
}

// Journal fetches one journal with its entries.
func (s *Service) Journal(ctx context.Context, journalID int64) (Journal, error) {
	var journal Journal
	err := s.runner.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		found, err := s.repo.GetJournalWithEntries(ctx, tx, journalID)
		if err != nil {
			return err
		}
		journal = found
		return nil
	})
	return journal, err
}

// Accounts lists the chart of accounts in code order.
func (s *Service) Accounts(ctx context.Context) ([]Account, error) {
	return s.repo.ListAccounts(ctx, s.reader)
}

// AccountLedger replays an account's entries in (date, created_at) order
// starting from its opening balance. The replay is side-effect-free and,
// with no date filter, must land exactly on the cached current_balance.
func (s *Service) AccountLedger(ctx context.Context, accountID int64, from, to *time.Time) (AccountLedger, error) {
	account, err := s.repo.GetAccount(ctx, s.reader, accountID)
	if err != nil {
		return AccountLedger{}, err
	}
	opening := account.OpeningBalance
	if from != nil {
		debit, credit, err := s.repo.SumsBefore(ctx, s.reader, accountID, *from)
		if err != nil {
			return AccountLedger{}, err
		}
		opening = opening.Add(netOf(account.Type, debit, credit))
	}
	lines, err := s.repo.EntriesForAccount(ctx, s.reader, accountID, from, to)
	if err != nil {
		return AccountLedger{}, err
	}
	running := opening
	for i := range lines {
		running = running.Add(signedDelta(account.Type, lines[i].Entry.Type, lines[i].Entry.Amount))
		lines[i].Running = running
	}
	return AccountLedger{
		Account:        account,
		OpeningBalance: opening,
		Lines:          lines,
		ClosingBalance: running,
	}, nil
}

// TrialBalanceReport lists each account's closing position as of the given
// date (nil means all time) and checks that total debits equal total credits.
func (s *Service) TrialBalanceReport(ctx context.Context, asOf *time.Time) (TrialBalance, error) {
	accounts, err := s.repo.ListAccounts(ctx, s.reader)
	if err != nil {
		return TrialBalance{}, err
	}
	sums, err := s.repo.SumsByAccount(ctx, s.reader, asOf)
	if err != nil {
		return TrialBalance{}, err
	}
	tb := TrialBalance{AsOf: asOf}
	for _, account := range accounts {
		dc := sums[account.ID]
		closing := account.OpeningBalance.Add(netOf(account.Type, dc.Debit, dc.Credit))
		row := TrialBalanceRow{
			AccountID: account.ID,
			Code:      account.Code,
			Name:      account.Name,
			Type:      account.Type,
		}
		// A debit-normal account with a positive closing balance sits in the
		// debit column; a negative one flips to credit, and vice versa.
		if account.Type.DebitNormal() == (closing.Sign() >= 0) {
			row.Debit = closing.Abs()
		} else {
			row.Credit = closing.Abs()
		}
		tb.Rows = append(tb.Rows, row)
		tb.TotalDebit = tb.TotalDebit.Add(row.Debit)
		tb.TotalCredit = tb.TotalCredit.Add(row.Credit)
	}
	tb.IsBalanced = tb.TotalDebit.Sub(tb.TotalCredit).Abs().LessThanOrEqual(balanceTolerance)
	return tb, nil
}

// netOf folds aggregated debit/credit sums into the account's signed
// balance movement under its normal-balance convention.
func netOf(accountType AccountType, debit, credit decimal.Decimal) decimal.Decimal {
	if accountType.DebitNormal() {
		return debit.Sub(credit)
	}
	return credit.Sub(debit)
}
