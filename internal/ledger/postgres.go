package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const maxTxAttempts = 3

// PostgresLedger persists wallet balances and transaction rows in PostgreSQL. Every mutation runs
// in one database transaction holding row locks on the wallets it touches.
type PostgresLedger struct {
	db *pgxpool.Pool
}

// NewPostgresLedger constructs a Postgres-backed ledger implementation.
func NewPostgresLedger(db *pgxpool.Pool) *PostgresLedger {
	return &PostgresLedger{db: db}
}

// EnsureWallet creates the owner's wallet if it does not exist yet.
func (l *PostgresLedger) EnsureWallet(ctx context.Context, ownerID, currency string) (Wallet, error) {
	if _, err := l.db.Exec(ctx, `INSERT INTO wallets (owner_id, balance, currency, updated_at)
        VALUES ($1, 0, $2, NOW()) ON CONFLICT (owner_id) DO NOTHING`, ownerID, currency); err != nil {
		return Wallet{}, err
	}
	return l.Wallet(ctx, ownerID)
}

// Wallet returns the owner's wallet.
func (l *PostgresLedger) Wallet(ctx context.Context, ownerID string) (Wallet, error) {
	row := l.db.QueryRow(ctx, `SELECT owner_id, balance::text, currency, updated_at FROM wallets WHERE owner_id = $1`, ownerID)
	return scanWallet(row)
}

// Post applies all postings in one transaction.
func (l *PostgresLedger) Post(ctx context.Context, postings ...Posting) ([]Transaction, error) {
	if err := validatePostings(postings); err != nil {
		return nil, err
	}

	var out []Transaction
	err := l.inTx(ctx, func(tx pgx.Tx) error {
		out = nil
		deltas := netDeltas(postings)

		owners := make([]string, 0, len(deltas))
		for owner := range deltas {
			owners = append(owners, owner)
		}
		// consistent lock order across concurrent transfers
		sort.Strings(owners)

		balances := make(map[string]decimal.Decimal, len(owners))
		for _, owner := range owners {
			w, err := lockWallet(ctx, tx, owner)
			if err != nil {
				return err
			}
			balances[owner] = w.Balance
		}

		existing, err := findDuplicates(ctx, tx, postings)
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			out = existing
			return ErrDuplicateTransaction
		}

		for _, owner := range owners {
			delta := deltas[owner]
			if delta.IsZero() {
				continue
			}
			next := balances[owner].Add(delta)
			if next.IsNegative() {
				return ErrInsufficientBalance
			}
			if _, err := tx.Exec(ctx, `UPDATE wallets SET balance = $2::numeric, updated_at = NOW() WHERE owner_id = $1`, owner, next.String()); err != nil {
				return err
			}
		}

		for _, p := range postings {
			id := uuid.New()
			t := Transaction{
				ID:           id.String(),
				OwnerID:      p.OwnerID,
				Kind:         p.Kind,
				Amount:       p.Amount,
				Counterparty: p.Counterparty,
				Reference:    p.Reference,
				Status:       p.status(),
			}
			err := tx.QueryRow(ctx, `INSERT INTO transactions (id, owner_id, kind, amount, counterparty, reference, status, created_at)
                VALUES ($1, $2, $3, $4::numeric, $5, NULLIF($6, ''), $7, NOW()) RETURNING created_at`,
				id, t.OwnerID, string(t.Kind), t.Amount.String(), t.Counterparty, t.Reference, string(t.Status)).Scan(&t.CreatedAt)
			if err != nil {
				return err
			}
			t.CreatedAt = t.CreatedAt.UTC()
			out = append(out, t)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrDuplicateTransaction) {
			return out, err
		}
		if isUniqueViolation(err) {
			return nil, ErrDuplicateTransaction
		}
		return nil, err
	}
	return out, nil
}

// Settle moves a pending transaction to a terminal status, crediting or debiting the wallet when
// it completes.
func (l *PostgresLedger) Settle(ctx context.Context, txID string, status Status) (Transaction, error) {
	id, err := uuid.Parse(txID)
	if err != nil {
		return Transaction{}, ErrTransactionNotFound
	}

	var settled Transaction
	err = l.inTx(ctx, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `SELECT id, owner_id, kind, amount::text, counterparty, COALESCE(reference, ''), status, created_at
            FROM transactions WHERE id = $1 FOR UPDATE`, id)
		t, err := scanTransaction(row)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrTransactionNotFound
			}
			return err
		}
		if !t.Status.CanTransition(status) {
			settled = t
			return ErrIllegalStatusTransition
		}

		if status == StatusCompleted {
			w, err := lockWallet(ctx, tx, t.OwnerID)
			if err != nil {
				return err
			}
			next := w.Balance.Add(t.Amount)
			if next.IsNegative() {
				return ErrInsufficientBalance
			}
			if _, err := tx.Exec(ctx, `UPDATE wallets SET balance = $2::numeric, updated_at = NOW() WHERE owner_id = $1`, t.OwnerID, next.String()); err != nil {
				return err
			}
		}

		if _, err := tx.Exec(ctx, `UPDATE transactions SET status = $2 WHERE id = $1`, id, string(status)); err != nil {
			return err
		}
		t.Status = status
		settled = t
		return nil
	})
	return settled, err
}

// Transaction returns one row by id.
func (l *PostgresLedger) Transaction(ctx context.Context, txID string) (Transaction, error) {
	id, err := uuid.Parse(txID)
	if err != nil {
		return Transaction{}, ErrTransactionNotFound
	}
	row := l.db.QueryRow(ctx, `SELECT id, owner_id, kind, amount::text, counterparty, COALESCE(reference, ''), status, created_at
        FROM transactions WHERE id = $1`, id)
	t, err := scanTransaction(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Transaction{}, ErrTransactionNotFound
	}
	return t, err
}

// TransactionByReference returns the row posted under (owner, kind, reference).
func (l *PostgresLedger) TransactionByReference(ctx context.Context, ownerID string, kind Kind, reference string) (Transaction, error) {
	if reference == "" {
		return Transaction{}, ErrTransactionNotFound
	}
	row := l.db.QueryRow(ctx, `SELECT id, owner_id, kind, amount::text, counterparty, reference, status, created_at
        FROM transactions WHERE owner_id = $1 AND kind = $2 AND reference = $3`, ownerID, string(kind), reference)
	t, err := scanTransaction(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Transaction{}, ErrTransactionNotFound
	}
	return t, err
}

// Transactions lists an owner's rows, newest first.
func (l *PostgresLedger) Transactions(ctx context.Context, ownerID string, limit int) ([]Transaction, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := l.db.Query(ctx, `SELECT id, owner_id, kind, amount::text, counterparty, COALESCE(reference, ''), status, created_at
        FROM transactions WHERE owner_id = $1 ORDER BY created_at DESC, id LIMIT $2`, ownerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (l *PostgresLedger) inTx(ctx context.Context, fn func(pgx.Tx) error) error {
	var err error
	for attempt := 0; attempt < maxTxAttempts; attempt++ {
		err = pgx.BeginTxFunc(ctx, l.db, pgx.TxOptions{}, fn)
		if !isRetryable(err) {
			return err
		}
	}
	return fmt.Errorf("ledger transaction retries exhausted: %w", err)
}

func lockWallet(ctx context.Context, tx pgx.Tx, ownerID string) (Wallet, error) {
	row := tx.QueryRow(ctx, `SELECT owner_id, balance::text, currency, updated_at FROM wallets WHERE owner_id = $1 FOR UPDATE`, ownerID)
	return scanWallet(row)
}

func findDuplicates(ctx context.Context, tx pgx.Tx, postings []Posting) ([]Transaction, error) {
	var existing []Transaction
	for _, p := range postings {
		if p.Reference == "" {
			continue
		}
		row := tx.QueryRow(ctx, `SELECT id, owner_id, kind, amount::text, counterparty, COALESCE(reference, ''), status, created_at
            FROM transactions WHERE owner_id = $1 AND kind = $2 AND reference = $3`, p.OwnerID, string(p.Kind), p.Reference)
		t, err := scanTransaction(row)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				continue
			}
			return nil, err
		}
		existing = append(existing, t)
	}
	return existing, nil
}

func scanWallet(row pgx.Row) (Wallet, error) {
	var (
		w       Wallet
		balance string
	)
	if err := row.Scan(&w.OwnerID, &balance, &w.Currency, &w.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Wallet{}, ErrWalletNotFound
		}
		return Wallet{}, err
	}
	amount, err := decimal.NewFromString(balance)
	if err != nil {
		return Wallet{}, fmt.Errorf("parse balance: %w", err)
	}
	w.Balance = amount
	w.UpdatedAt = w.UpdatedAt.UTC()
	return w, nil
}

func scanTransaction(row pgx.Row) (Transaction, error) {
	var (
		t         Transaction
		id        uuid.UUID
		kind      string
		amount    string
		status    string
		createdAt time.Time
	)
	if err := row.Scan(&id, &t.OwnerID, &kind, &amount, &t.Counterparty, &t.Reference, &status, &createdAt); err != nil {
		return Transaction{}, err
	}
	value, err := decimal.NewFromString(amount)
	if err != nil {
		return Transaction{}, fmt.Errorf("parse amount: %w", err)
	}
	t.ID = id.String()
	t.Kind = Kind(kind)
	t.Amount = value
	t.Status = Status(status)
	t.CreatedAt = createdAt.UTC()
	return t, nil
}

func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// serialization_failure, deadlock_detected
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
