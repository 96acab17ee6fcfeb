package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/db"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// TxRepository exposes ledger mutations bound to the caller's transaction.
type TxRepository interface {
	// GetAccountsForUpdate locks the referenced account rows in id order so
	// concurrent postings touching the same accounts serialize without
	// deadlocking.
	GetAccountsForUpdate(ctx context.Context, tx pgx.Tx, ids []int64) (map[int64]Account, error)
	InsertJournal(ctx context.Context, tx pgx.Tx, j Journal) (Journal, error)
	InsertEntries(ctx context.Context, tx pgx.Tx, journalID int64, entries []Entry) error
	ApplyBalanceDelta(ctx context.Context, tx pgx.Tx, accountID int64, delta decimal.Decimal) error
	GetJournalWithEntries(ctx context.Context, tx pgx.Tx, journalID int64) (Journal, error)
	MaxJournalNumber(ctx context.Context, tx pgx.Tx) (int64, error)
}

// Repository adds the side-effect-free read paths.
type Repository interface {
	TxRepository
	GetAccount(ctx context.Context, q db.Queryer, accountID int64) (Account, error)
	ListAccounts(ctx context.Context, q db.Queryer) ([]Account, error)
	// EntriesForAccount returns posted lines in (journal date, entry
	// created_at, entry id) order, the replay order for running balances.
	EntriesForAccount(ctx context.Context, q db.Queryer, accountID int64, from, to *time.Time) ([]LedgerLine, error)
	// SumsBefore aggregates an account's posted debit and credit totals for
	// journals dated strictly before the given date, used to derive an
	// opening balance for a windowed statement.
	SumsBefore(ctx context.Context, q db.Queryer, accountID int64, before time.Time) (debit, credit decimal.Decimal, err error)
	// SumsByAccount aggregates debit and credit totals for every account,
	// optionally bounded to journals dated on or before through.
	SumsByAccount(ctx context.Context, q db.Queryer, through *time.Time) (map[int64]DebitCredit, error)
}

type repository struct{}

// NewRepository returns the pgx-backed ledger repository.
func NewRepository() Repository {
	return repository{}
}

const accountColumns = `id, code, name, account_type, opening_balance, current_balance, group_id, is_active, created_at, updated_at`

func scanAccount(row pgx.Row) (Account, error) {
	var a Account
	err := row.Scan(&a.ID, &a.Code, &a.Name, &a.Type, &a.OpeningBalance, &a.CurrentBalance, &a.GroupID, &a.IsActive, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, shared.ErrNotFound
		}
		return Account{}, err
	}
	return a, nil
}

func (repository) GetAccountsForUpdate(ctx context.Context, tx pgx.Tx, ids []int64) (map[int64]Account, error) {
	rows, err := tx.Query(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = ANY($1) ORDER BY id ASC FOR UPDATE`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	accounts := make(map[int64]Account, len(ids))
	for rows.Next() {
		var a Account
		if err := rows.Scan(&a.ID, &a.Code, &a.Name, &a.Type, &a.OpeningBalance, &a.CurrentBalance, &a.GroupID, &a.IsActive, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		accounts[a.ID] = a
	}
	return accounts, rows.Err()
}

func (repository) InsertJournal(ctx context.Context, tx pgx.Tx, j Journal) (Journal, error) {
	err := tx.QueryRow(ctx, `INSERT INTO journals (number, date, type, narration, total_debit, total_credit, is_balanced)
VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING id, created_at`,
		j.Number, j.Date, j.Type, j.Narration, j.TotalDebit, j.TotalCredit, j.IsBalanced).
		Scan(&j.ID, &j.CreatedAt)
	if err != nil {
		if db.IsUniqueViolation(err, "journals_number_key") {
			return Journal{}, shared.ErrDuplicateDocumentNumber
		}
		return Journal{}, err
	}
	return j, nil
}

func (repository) InsertEntries(ctx context.Context, tx pgx.Tx, journalID int64, entries []Entry) error {
	for _, e := range entries {
		if _, err := tx.Exec(ctx, `INSERT INTO ledger_entries (journal_id, account_id, entry_type, amount, reference_type, reference_id, narration)
VALUES ($1,$2,$3,$4,$5,$6,$7)`, journalID, e.AccountID, e.Type, e.Amount, e.ReferenceType, nullID(e.ReferenceID), e.Narration); err != nil {
			return err
		}
	}
	return nil
}

func (repository) ApplyBalanceDelta(ctx context.Context, tx pgx.Tx, accountID int64, delta decimal.Decimal) error {
	cmd, err := tx.Exec(ctx, `UPDATE accounts SET current_balance = current_balance + $2, updated_at=NOW() WHERE id=$1`, accountID, delta)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (repository) GetJournalWithEntries(ctx context.Context, tx pgx.Tx, journalID int64) (Journal, error) {
	var j Journal
	err := tx.QueryRow(ctx, `SELECT id, number, date, type, narration, total_debit, total_credit, is_balanced, created_at
FROM journals WHERE id=$1`, journalID).
		Scan(&j.ID, &j.Number, &j.Date, &j.Type, &j.Narration, &j.TotalDebit, &j.TotalCredit, &j.IsBalanced, &j.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Journal{}, shared.ErrNotFound
		}
		return Journal{}, err
	}
	rows, err := tx.Query(ctx, `SELECT id, journal_id, account_id, entry_type, amount, COALESCE(reference_type,''), COALESCE(reference_id,0), narration, created_at
FROM ledger_entries WHERE journal_id=$1 ORDER BY id ASC`, journalID)
	if err != nil {
		return Journal{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.JournalID, &e.AccountID, &e.Type, &e.Amount, &e.ReferenceType, &e.ReferenceID, &e.Narration, &e.CreatedAt); err != nil {
			return Journal{}, err
		}
		j.Entries = append(j.Entries, e)
	}
	return j, rows.Err()
}

func (repository) MaxJournalNumber(ctx context.Context, tx pgx.Tx) (int64, error) {
	var highest int64
	err := tx.QueryRow(ctx, `SELECT COALESCE(MAX(CAST(SUBSTRING(number FROM '[0-9]+$') AS BIGINT)), 0) FROM journals`).Scan(&highest)
	return highest, err
}

func (repository) GetAccount(ctx context.Context, q db.Queryer, accountID int64) (Account, error) {
	return scanAccount(q.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id=$1`, accountID))
}

func (repository) ListAccounts(ctx context.Context, q db.Queryer) ([]Account, error) {
	rows, err := q.Query(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY code ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var accounts []Account
	for rows.Next() {
		var a Account
		if err := rows.Scan(&a.ID, &a.Code, &a.Name, &a.Type, &a.OpeningBalance, &a.CurrentBalance, &a.GroupID, &a.IsActive, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

func (repository) EntriesForAccount(ctx context.Context, q db.Queryer, accountID int64, from, to *time.Time) ([]LedgerLine, error) {
	query := `SELECT e.id, e.journal_id, e.account_id, e.entry_type, e.amount, COALESCE(e.reference_type,''), COALESCE(e.reference_id,0), e.narration, e.created_at,
       j.number, j.date, j.type, j.narration
FROM ledger_entries e
JOIN journals j ON j.id = e.journal_id
WHERE e.account_id = $1`
	args := []any{accountID}
	if from != nil {
		args = append(args, *from)
		query += ` AND j.date >= $2`
	}
	if to != nil {
		args = append(args, *to)
		if from != nil {
			query += ` AND j.date <= $3`
		} else {
			query += ` AND j.date <= $2`
		}
	}
	query += ` ORDER BY j.date ASC, e.created_at ASC, e.id ASC`
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []LedgerLine
	for rows.Next() {
		var line LedgerLine
		if err := rows.Scan(&line.Entry.ID, &line.Entry.JournalID, &line.Entry.AccountID, &line.Entry.Type, &line.Entry.Amount,
			&line.Entry.ReferenceType, &line.Entry.ReferenceID, &line.Entry.Narration, &line.Entry.CreatedAt,
			&line.Journal.Number, &line.Journal.Date, &line.Journal.Type, &line.Journal.Narration); err != nil {
			return nil, err
		}
		line.Journal.ID = line.Entry.JournalID
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

func (repository) SumsBefore(ctx context.Context, q db.Queryer, accountID int64, before time.Time) (decimal.Decimal, decimal.Decimal, error) {
	var debit, credit decimal.Decimal
	err := q.QueryRow(ctx, `SELECT
  COALESCE(SUM(CASE WHEN e.entry_type='DEBIT' THEN e.amount ELSE 0 END), 0),
  COALESCE(SUM(CASE WHEN e.entry_type='CREDIT' THEN e.amount ELSE 0 END), 0)
FROM ledger_entries e
JOIN journals j ON j.id = e.journal_id
WHERE e.account_id = $1 AND j.date < $2`, accountID, before).Scan(&debit, &credit)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	return debit, credit, nil
}

func (repository) SumsByAccount(ctx context.Context, q db.Queryer, through *time.Time) (map[int64]DebitCredit, error) {
	query := `SELECT e.account_id,
  COALESCE(SUM(CASE WHEN e.entry_type='DEBIT' THEN e.amount ELSE 0 END), 0),
  COALESCE(SUM(CASE WHEN e.entry_type='CREDIT' THEN e.amount ELSE 0 END), 0)
FROM ledger_entries e
JOIN journals j ON j.id = e.journal_id`
	args := []any{}
	if through != nil {
		args = append(args, *through)
		query += ` WHERE j.date <= $1`
	}
	query += ` GROUP BY e.account_id`
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	sums := make(map[int64]DebitCredit)
	for rows.Next() {
		var accountID int64
		var dc DebitCredit
		if err := rows.Scan(&accountID, &dc.Debit, &dc.Credit); err != nil {
			return nil, err
		}
		sums[accountID] = dc
	}
	return sums, rows.Err()
}

func nullID(id int64) any {
	if id == 0 {
		return nil
	}
	return id
}
