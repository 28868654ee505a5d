package funding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/congo-pay/walletcore/internal/cards"
	"github.com/congo-pay/walletcore/internal/ledger"
	"github.com/congo-pay/walletcore/internal/metrics"
	"github.com/congo-pay/walletcore/internal/notification"
	"github.com/congo-pay/walletcore/internal/processor"
	"github.com/congo-pay/walletcore/internal/reconcile"
)

// ErrMovementInProgress rejects a movement whose reference is already being sent to the processor.
var ErrMovementInProgress = errors.New("card movement with this reference is in progress")

// Notifier receives one notification per committed card movement.
type Notifier interface {
	Notify(ctx context.Context, n notification.Notification) error
}

// Service moves money between a wallet and its cards. The processor is called first and the
// local ledger commit only follows a successful processor call.
type Service struct {
	ledger    ledger.Ledger
	cards     *cards.Service
	processor processor.Processor
	escalator *reconcile.Escalator
	notifier  Notifier
	metrics   *metrics.Metrics
	logger    *slog.Logger
	inflight  sync.Map
}

// NewService wires card funding. notifier and m may be nil.
func NewService(l ledger.Ledger, cardSvc *cards.Service, proc processor.Processor, escalator *reconcile.Escalator, notifier Notifier, m *metrics.Metrics, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if escalator == nil {
		escalator = reconcile.NewEscalator(nil, m, logger)
	}
	return &Service{ledger: l, cards: cardSvc, processor: proc, escalator: escalator, notifier: notifier, metrics: m, logger: logger}
}

// claim checks that the reference has not been posted yet and holds it for the duration of the
// processor call. A posted reference returns the stored row with ErrDuplicateTransaction, so the
// processor is never asked to move the same money twice.
func (s *Service) claim(ctx context.Context, kind ledger.Kind, in MovementInput) (func(), ledger.Transaction, error) {
	key := in.OwnerID + "|" + string(kind) + "|" + in.Reference
	if _, busy := s.inflight.LoadOrStore(key, struct{}{}); busy {
		return nil, ledger.Transaction{}, ErrMovementInProgress
	}
	release := func() { s.inflight.Delete(key) }

	tx, err := s.ledger.TransactionByReference(ctx, in.OwnerID, kind, in.Reference)
	switch {
	case err == nil:
		release()
		s.metrics.ObserveLedgerMutation(string(kind), "duplicate")
		return nil, tx, ledger.ErrDuplicateTransaction
	case errors.Is(err, ledger.ErrTransactionNotFound):
		return release, ledger.Transaction{}, nil
	default:
		release()
		return nil, ledger.Transaction{}, err
	}
}

// MovementInput identifies an owner's card and the amount to move.
type MovementInput struct {
	OwnerID   string
	CardID    string
	Amount    decimal.Decimal
	Reference string
}

func (in *MovementInput) prepare() error {
	if !in.Amount.IsPositive() || !in.Amount.Equal(in.Amount.Round(2)) {
		return ledger.ErrInvalidAmount
	}
	if in.Reference == "" {
		in.Reference = uuid.NewString()
	}
	return nil
}

// FundCard debits the wallet and loads the card. The balance is checked before the processor
// is called; a failed local commit after a successful processor call is escalated and returned
// as *reconcile.ReconciliationRequiredError.
func (s *Service) FundCard(ctx context.Context, in MovementInput) (ledger.Transaction, error) {
	if err := in.prepare(); err != nil {
		return ledger.Transaction{}, err
	}
	release, prior, err := s.claim(ctx, ledger.KindCardFund, in)
	if err != nil {
		return prior, err
	}
	defer release()

	card, err := s.usableCard(ctx, in.OwnerID, in.CardID, false)
	if err != nil {
		return ledger.Transaction{}, err
	}
	w, err := s.ledger.Wallet(ctx, in.OwnerID)
	if err != nil {
		return ledger.Transaction{}, err
	}
	if w.Balance.LessThan(in.Amount) {
		s.metrics.ObserveLedgerMutation(string(ledger.KindCardFund), "insufficient")
		return ledger.Transaction{}, ledger.ErrInsufficientBalance
	}

	res, err := s.processor.FundCard(ctx, card.ProcessorCardID, in.Amount, in.Reference)
	if err != nil {
		s.metrics.ObserveLedgerMutation(string(ledger.KindCardFund), "processor_error")
		return ledger.Transaction{}, err
	}

	return s.commit(ctx, processor.ActionFundCard, res.Reference, ledger.Posting{
		OwnerID:      in.OwnerID,
		Kind:         ledger.KindCardFund,
		Amount:       in.Amount.Neg(),
		Counterparty: card.ID,
		Reference:    in.Reference,
	})
}

// WithdrawFromCard moves card funds back to the wallet. A withdrawal the processor reports as
// pending is recorded as a pending credit and settled later by RefreshWithdrawal.
func (s *Service) WithdrawFromCard(ctx context.Context, in MovementInput) (ledger.Transaction, error) {
	if err := in.prepare(); err != nil {
		return ledger.Transaction{}, err
	}
	release, prior, err := s.claim(ctx, ledger.KindCardWithdraw, in)
	if err != nil {
		return prior, err
	}
	defer release()

	card, err := s.usableCard(ctx, in.OwnerID, in.CardID, true)
	if err != nil {
		return ledger.Transaction{}, err
	}
	if _, err := s.ledger.Wallet(ctx, in.OwnerID); err != nil {
		return ledger.Transaction{}, err
	}

	res, err := s.processor.WithdrawFromCard(ctx, card.ProcessorCardID, in.Amount, in.Reference)
	if err != nil {
		s.metrics.ObserveLedgerMutation(string(ledger.KindCardWithdraw), "processor_error")
		return ledger.Transaction{}, err
	}

	status := ledger.StatusCompleted
	if res.Status == processor.OutcomePending {
		status = ledger.StatusPending
	}
	return s.commit(ctx, processor.ActionWithdrawFromCard, res.Reference, ledger.Posting{
		OwnerID:      in.OwnerID,
		Kind:         ledger.KindCardWithdraw,
		Amount:       in.Amount,
		Counterparty: card.ID,
		Reference:    in.Reference,
		Status:       status,
	})
}

// RefreshWithdrawal asks the processor for the outcome of a pending withdrawal and settles the
// pending credit accordingly. Rows that are no longer pending are returned unchanged.
func (s *Service) RefreshWithdrawal(ctx context.Context, ownerID, cardID, txID string) (ledger.Transaction, error) {
	tx, err := s.ledger.Transaction(ctx, txID)
	if err != nil {
		return ledger.Transaction{}, err
	}
	if tx.OwnerID != ownerID || tx.Kind != ledger.KindCardWithdraw || tx.Counterparty != cardID {
		return ledger.Transaction{}, ledger.ErrTransactionNotFound
	}
	if tx.Status != ledger.StatusPending {
		return tx, nil
	}
	card, err := s.cards.Get(ctx, ownerID, cardID)
	if err != nil {
		return ledger.Transaction{}, err
	}

	res, err := s.processor.WithdrawStatus(ctx, card.ProcessorCardID, tx.Reference)
	if err != nil {
		return ledger.Transaction{}, err
	}

	var next ledger.Status
	switch res.Status {
	case processor.OutcomeCompleted:
		next = ledger.StatusCompleted
	case processor.OutcomeFailed:
		next = ledger.StatusFailed
	default:
		return tx, nil
	}

	settled, err := s.ledger.Settle(ctx, tx.ID, next)
	if errors.Is(err, ledger.ErrIllegalStatusTransition) {
		// settled concurrently
		return settled, nil
	}
	if err != nil {
		return ledger.Transaction{}, fmt.Errorf("settle withdrawal %s: %w", tx.ID, err)
	}
	s.logger.Info("card withdrawal settled",
		slog.String("transaction_id", settled.ID),
		slog.String("owner_id", ownerID),
		slog.String("status", string(settled.Status)))
	s.notify(ctx, settled)
	return settled, nil
}

func (s *Service) usableCard(ctx context.Context, ownerID, cardID string, allowFrozen bool) (cards.Card, error) {
	card, err := s.cards.Get(ctx, ownerID, cardID)
	if err != nil {
		return cards.Card{}, err
	}
	switch card.Status {
	case cards.StatusActive:
		return card, nil
	case cards.StatusFrozen:
		if allowFrozen {
			return card, nil
		}
		return cards.Card{}, cards.ErrCardFrozen
	case cards.StatusBlocked:
		return cards.Card{}, cards.ErrCardBlocked
	default:
		return cards.Card{}, cards.ErrCardInactive
	}
}

func (s *Service) commit(ctx context.Context, action processor.Action, processorRef string, posting ledger.Posting) (ledger.Transaction, error) {
	txs, err := s.ledger.Post(ctx, posting)
	switch {
	case err == nil:
		s.metrics.ObserveLedgerMutation(string(posting.Kind), "ok")
		s.notify(ctx, txs[0])
		return txs[0], nil
	case errors.Is(err, ledger.ErrDuplicateTransaction):
		s.metrics.ObserveLedgerMutation(string(posting.Kind), "duplicate")
		if len(txs) == 0 {
			return ledger.Transaction{}, err
		}
		return txs[0], err
	default:
		s.metrics.ObserveLedgerMutation(string(posting.Kind), "reconciliation")
		return ledger.Transaction{}, s.escalator.Raise(ctx, reconcile.NewCase(string(action), posting, processorRef, err), err)
	}
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
		s.logger.Warn("card movement notification failed", slog.String("transaction_id", tx.ID), slog.Any("error", err))
	}
}
