package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type inMemoryLedger struct {
	mu           sync.RWMutex
	wallets      map[string]Wallet
	transactions []Transaction
	byID         map[string]int
	byReference  map[string]int
}

// NewInMemory creates a concurrency-safe in-memory ledger useful for unit tests and development.
func NewInMemory() Ledger {
	return &inMemoryLedger{
		wallets:     make(map[string]Wallet),
		byID:        make(map[string]int),
		byReference: make(map[string]int),
	}
}

func referenceKey(ownerID string, kind Kind, reference string) string {
	return ownerID + "|" + string(kind) + "|" + reference
}

func (l *inMemoryLedger) EnsureWallet(_ context.Context, ownerID, currency string) (Wallet, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if w, exists := l.wallets[ownerID]; exists {
		return w, nil
	}
	w := Wallet{OwnerID: ownerID, Balance: decimal.Zero, Currency: currency, UpdatedAt: time.Now().UTC()}
	l.wallets[ownerID] = w
	return w, nil
}

func (l *inMemoryLedger) Wallet(_ context.Context, ownerID string) (Wallet, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	w, exists := l.wallets[ownerID]
	if !exists {
		return Wallet{}, ErrWalletNotFound
	}
	return w, nil
}

func (l *inMemoryLedger) Post(_ context.Context, postings ...Posting) ([]Transaction, error) {
	if err := validatePostings(postings); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if existing := l.duplicates(postings); len(existing) > 0 {
		return existing, ErrDuplicateTransaction
	}

	deltas := netDeltas(postings)
	next := make(map[string]Wallet, len(deltas))
	for owner, delta := range deltas {
		w, ok := l.wallets[owner]
		if !ok {
			return nil, ErrWalletNotFound
		}
		w.Balance = w.Balance.Add(delta)
		if w.Balance.IsNegative() {
			return nil, ErrInsufficientBalance
		}
		next[owner] = w
	}

	now := time.Now().UTC()
	for owner, w := range next {
		if !deltas[owner].IsZero() {
			w.UpdatedAt = now
		}
		l.wallets[owner] = w
	}

	out := make([]Transaction, 0, len(postings))
	for _, p := range postings {
		tx := Transaction{
			ID:           uuid.NewString(),
			OwnerID:      p.OwnerID,
			Kind:         p.Kind,
			Amount:       p.Amount,
			Counterparty: p.Counterparty,
			Reference:    p.Reference,
			Status:       p.status(),
			CreatedAt:    now,
		}
		l.transactions = append(l.transactions, tx)
		idx := len(l.transactions) - 1
		l.byID[tx.ID] = idx
		if p.Reference != "" {
			l.byReference[referenceKey(p.OwnerID, p.Kind, p.Reference)] = idx
		}
		out = append(out, tx)
	}
	return out, nil
}

func (l *inMemoryLedger) duplicates(postings []Posting) []Transaction {
	var existing []Transaction
	for _, p := range postings {
		if p.Reference == "" {
			continue
		}
		if idx, ok := l.byReference[referenceKey(p.OwnerID, p.Kind, p.Reference)]; ok {
			existing = append(existing, l.transactions[idx])
		}
	}
	return existing
}

func (l *inMemoryLedger) Settle(_ context.Context, txID string, status Status) (Transaction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	idx, ok := l.byID[txID]
	if !ok {
		return Transaction{}, ErrTransactionNotFound
	}
	tx := l.transactions[idx]
	if !tx.Status.CanTransition(status) {
		return tx, ErrIllegalStatusTransition
	}

	if status == StatusCompleted {
		w, ok := l.wallets[tx.OwnerID]
		if !ok {
			return Transaction{}, ErrWalletNotFound
		}
		balance := w.Balance.Add(tx.Amount)
		if balance.IsNegative() {
			return tx, ErrInsufficientBalance
		}
		w.Balance = balance
		w.UpdatedAt = time.Now().UTC()
		l.wallets[tx.OwnerID] = w
	}

	tx.Status = status
	l.transactions[idx] = tx
	return tx, nil
}

func (l *inMemoryLedger) Transaction(_ context.Context, txID string) (Transaction, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	idx, ok := l.byID[txID]
	if !ok {
		return Transaction{}, ErrTransactionNotFound
	}
	return l.transactions[idx], nil
}

func (l *inMemoryLedger) TransactionByReference(_ context.Context, ownerID string, kind Kind, reference string) (Transaction, error) {
	if reference == "" {
		return Transaction{}, ErrTransactionNotFound
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	idx, ok := l.byReference[referenceKey(ownerID, kind, reference)]
	if !ok {
		return Transaction{}, ErrTransactionNotFound
	}
	return l.transactions[idx], nil
}

func (l *inMemoryLedger) Transactions(_ context.Context, ownerID string, limit int) ([]Transaction, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []Transaction
	for i := len(l.transactions) - 1; i >= 0; i-- {
		if l.transactions[i].OwnerID == ownerID {
			out = append(out, l.transactions[i])
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
