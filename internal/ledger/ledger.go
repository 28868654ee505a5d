package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrInsufficientBalance occurs when a posting would take a wallet balance below zero.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrDuplicateTransaction indicates the reference was already posted for the owner and kind,
	// so the operation should be treated as an idempotent replay.
	ErrDuplicateTransaction = errors.New("duplicate transaction")

	// ErrWalletNotFound is returned when no wallet exists for an owner.
	ErrWalletNotFound = errors.New("wallet not found")

	// ErrTransactionNotFound is returned by Settle for an unknown transaction id.
	ErrTransactionNotFound = errors.New("transaction not found")

	// ErrInvalidAmount rejects zero amounts and postings that carry no owner.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrIllegalStatusTransition rejects anything other than pending -> terminal.
	ErrIllegalStatusTransition = errors.New("illegal transaction status transition")
)

// Kind classifies a ledger transaction.
type Kind string

const (
	KindSend         Kind = "send"
	KindReceive      Kind = "receive"
	KindBillPay      Kind = "bill_pay"
	KindRecharge     Kind = "recharge"
	KindCashOut      Kind = "cashout"
	KindAddMoney     Kind = "add_money"
	KindMerchant     Kind = "merchant"
	KindRemittance   Kind = "remittance"
	KindReward       Kind = "reward"
	KindCardFund     Kind = "card_fund"
	KindCardWithdraw Kind = "card_withdraw"
)

// Status is the lifecycle state of a transaction row.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// CanTransition reports whether a row in status s may move to next. Only pending rows move.
func (s Status) CanTransition(next Status) bool {
	if s != StatusPending {
		return false
	}
	switch next {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// Wallet is the single balance record held for an owner.
type Wallet struct {
	OwnerID   string
	Balance   decimal.Decimal
	Currency  string
	UpdatedAt time.Time
}

// Transaction is the durable evidence of one ledger mutation leg. Amount is signed:
// positive credits the owner, negative debits.
type Transaction struct {
	ID           string
	OwnerID      string
	Kind         Kind
	Amount       decimal.Decimal
	Counterparty string
	Reference    string
	Status       Status
	CreatedAt    time.Time
}

// Posting is one leg of a ledger mutation as requested by a caller.
type Posting struct {
	OwnerID      string          `json:"owner_id"`
	Kind         Kind            `json:"kind"`
	Amount       decimal.Decimal `json:"amount"`
	Counterparty string          `json:"counterparty,omitempty"`
	Reference    string          `json:"reference,omitempty"`
	// Status defaults to completed. Pending postings are recorded without touching the balance.
	Status Status `json:"status,omitempty"`
}

func (p Posting) status() Status {
	if p.Status == "" {
		return StatusCompleted
	}
	return p.Status
}

// Ledger is implemented by ledger backends (Postgres, in-memory).
//
// Post is the unit of atomicity: every posting passed in one call is applied or none is, and
// concurrent calls touching the same wallet are serialized.
type Ledger interface {
	EnsureWallet(ctx context.Context, ownerID, currency string) (Wallet, error)
	Wallet(ctx context.Context, ownerID string) (Wallet, error)
	Post(ctx context.Context, postings ...Posting) ([]Transaction, error)
	Settle(ctx context.Context, txID string, status Status) (Transaction, error)
	Transaction(ctx context.Context, txID string) (Transaction, error)
	// TransactionByReference finds the row a reference was posted under for owner and kind.
	TransactionByReference(ctx context.Context, ownerID string, kind Kind, reference string) (Transaction, error)
	Transactions(ctx context.Context, ownerID string, limit int) ([]Transaction, error)
}

func validatePostings(postings []Posting) error {
	if len(postings) == 0 {
		return ErrInvalidAmount
	}
	for _, p := range postings {
		if p.OwnerID == "" || p.Amount.IsZero() {
			return ErrInvalidAmount
		}
		switch p.status() {
		case StatusCompleted, StatusPending:
		default:
			return ErrIllegalStatusTransition
		}
	}
	return nil
}

// netDeltas sums the completed posting amounts per owner.
func netDeltas(postings []Posting) map[string]decimal.Decimal {
	deltas := make(map[string]decimal.Decimal, len(postings))
	for _, p := range postings {
		if p.status() != StatusCompleted {
			if _, ok := deltas[p.OwnerID]; !ok {
				deltas[p.OwnerID] = decimal.Zero
			}
			continue
		}
		deltas[p.OwnerID] = deltas[p.OwnerID].Add(p.Amount)
	}
	return deltas
}
