package wallet

import (
	"context"
	"strings"

	"github.com/congo-pay/walletcore/internal/ledger"
)

// Service is the read side of the ledger, plus wallet provisioning.
type Service struct {
	ledger          ledger.Ledger
	defaultCurrency string
}

// NewService builds a wallet service instance.
func NewService(l ledger.Ledger, defaultCurrency string) *Service {
	if defaultCurrency == "" {
		defaultCurrency = "NGN"
	}
	return &Service{ledger: l, defaultCurrency: strings.ToUpper(defaultCurrency)}
}

// Create provisions the owner's wallet. Calling it again returns the existing wallet.
func (s *Service) Create(ctx context.Context, ownerID, currency string) (ledger.Wallet, error) {
	if currency == "" {
		currency = s.defaultCurrency
	}
	return s.ledger.EnsureWallet(ctx, ownerID, strings.ToUpper(currency))
}

// Get returns the owner's wallet and balance.
func (s *Service) Get(ctx context.Context, ownerID string) (ledger.Wallet, error) {
	return s.ledger.Wallet(ctx, ownerID)
}

// History lists the owner's transactions, newest first.
func (s *Service) History(ctx context.Context, ownerID string, limit int) ([]ledger.Transaction, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.ledger.Transactions(ctx, ownerID, limit)
}
