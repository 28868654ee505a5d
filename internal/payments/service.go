package payments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/congo-pay/walletcore/internal/ledger"
	"github.com/congo-pay/walletcore/internal/metrics"
	"github.com/congo-pay/walletcore/internal/notification"
)

// ErrSelfTransfer rejects a send whose counterparty is the sender.
var ErrSelfTransfer = errors.New("cannot send to own wallet")

// Notifier receives one notification per committed transaction.
type Notifier interface {
	Notify(ctx context.Context, n notification.Notification) error
}

// Request describes a single wallet movement initiated by an owner.
type Request struct {
	OwnerID      string
	Amount       decimal.Decimal
	Counterparty string
	Reference    string
}

// Service performs client-initiated balance mutations. Each operation is exactly one ledger.Post.
type Service struct {
	ledger   ledger.Ledger
	notifier Notifier
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewService constructs a payment service. notifier and m may be nil.
func NewService(l ledger.Ledger, notifier Notifier, m *metrics.Metrics, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{ledger: l, notifier: notifier, metrics: m, logger: logger}
}

// Send moves funds to another owner. When the counterparty has a wallet both legs are posted
// together; otherwise the send leaves the system as a single debit.
func (s *Service) Send(ctx context.Context, req Request) ([]ledger.Transaction, error) {
	if err := s.prepare(&req); err != nil {
		return nil, err
	}
	if req.Counterparty == req.OwnerID {
		return nil, ErrSelfTransfer
	}

	postings := []ledger.Posting{{
		OwnerID:      req.OwnerID,
		Kind:         ledger.KindSend,
		Amount:       req.Amount.Neg(),
		Counterparty: req.Counterparty,
		Reference:    req.Reference,
	}}
	if req.Counterparty != "" {
		_, err := s.ledger.Wallet(ctx, req.Counterparty)
		switch {
		case err == nil:
			postings = append(postings, ledger.Posting{
				OwnerID:      req.Counterparty,
				Kind:         ledger.KindReceive,
				Amount:       req.Amount,
				Counterparty: req.OwnerID,
				Reference:    req.Reference,
			})
		case errors.Is(err, ledger.ErrWalletNotFound):
		default:
			return nil, fmt.Errorf("resolve recipient: %w", err)
		}
	}
	return s.post(ctx, ledger.KindSend, postings...)
}

// Receive credits funds arriving from outside the system.
func (s *Service) Receive(ctx context.Context, req Request) ([]ledger.Transaction, error) {
	return s.single(ctx, ledger.KindReceive, req, false)
}

// AddMoney credits a top-up.
func (s *Service) AddMoney(ctx context.Context, req Request) ([]ledger.Transaction, error) {
	return s.single(ctx, ledger.KindAddMoney, req, false)
}

// CashOut debits a withdrawal to an agent or bank.
func (s *Service) CashOut(ctx context.Context, req Request) ([]ledger.Transaction, error) {
	return s.single(ctx, ledger.KindCashOut, req, true)
}

// PayBill debits a biller payment.
func (s *Service) PayBill(ctx context.Context, req Request) ([]ledger.Transaction, error) {
	return s.single(ctx, ledger.KindBillPay, req, true)
}

// Recharge debits an airtime or data purchase.
func (s *Service) Recharge(ctx context.Context, req Request) ([]ledger.Transaction, error) {
	return s.single(ctx, ledger.KindRecharge, req, true)
}

// PayMerchant debits a merchant payment.
func (s *Service) PayMerchant(ctx context.Context, req Request) ([]ledger.Transaction, error) {
	return s.single(ctx, ledger.KindMerchant, req, true)
}

// RemittanceCredit credits an inbound remittance.
func (s *Service) RemittanceCredit(ctx context.Context, req Request) ([]ledger.Transaction, error) {
	return s.single(ctx, ledger.KindRemittance, req, false)
}

// CreditReward credits a reward or cashback.
func (s *Service) CreditReward(ctx context.Context, req Request) ([]ledger.Transaction, error) {
	return s.single(ctx, ledger.KindReward, req, false)
}

func (s *Service) single(ctx context.Context, kind ledger.Kind, req Request, debit bool) ([]ledger.Transaction, error) {
	if err := s.prepare(&req); err != nil {
		return nil, err
	}
	amount := req.Amount
	if debit {
		amount = amount.Neg()
	}
	return s.post(ctx, kind, ledger.Posting{
		OwnerID:      req.OwnerID,
		Kind:         kind,
		Amount:       amount,
		Counterparty: req.Counterparty,
		Reference:    req.Reference,
	})
}

func (s *Service) prepare(req *Request) error {
	if req.OwnerID == "" || !req.Amount.IsPositive() || !req.Amount.Equal(req.Amount.Round(2)) {
		return ledger.ErrInvalidAmount
	}
	if req.Reference == "" {
		req.Reference = uuid.NewString()
	}
	return nil
}

// post commits postings and notifies each affected owner. A duplicate reference returns the
// original rows together with ledger.ErrDuplicateTransaction.
func (s *Service) post(ctx context.Context, kind ledger.Kind, postings ...ledger.Posting) ([]ledger.Transaction, error) {
	txs, err := s.ledger.Post(ctx, postings...)
	s.metrics.ObserveLedgerMutation(string(kind), result(err))
	if err != nil {
		if !errors.Is(err, ledger.ErrDuplicateTransaction) && !errors.Is(err, ledger.ErrInsufficientBalance) {
			s.logger.Error("ledger post failed",
				slog.String("kind", string(kind)),
				slog.String("owner_id", postings[0].OwnerID),
				slog.String("reference", postings[0].Reference),
				slog.Any("error", err),
			)
		}
		return txs, err
	}

	for _, tx := range txs {
		s.notify(ctx, tx)
	}
	return txs, nil
}

func (s *Service) notify(ctx context.Context, tx ledger.Transaction) {
	if s.notifier == nil {
		return
	}
	var currency string
	if w, err := s.ledger.Wallet(ctx, tx.OwnerID); err == nil {
		currency = w.Currency
	}
	if err := s.notifier.Notify(ctx, notification.FromTransaction(tx, currency)); err != nil {
		s.logger.Warn("transaction notification failed", slog.String("transaction_id", tx.ID), slog.Any("error", err))
	}
}

func result(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ledger.ErrDuplicateTransaction):
		return "duplicate"
	case errors.Is(err, ledger.ErrInsufficientBalance):
		return "insufficient"
	default:
		return "error"
	}
}
