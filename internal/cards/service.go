package cards

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/congo-pay/walletcore/internal/processor"
)

// Service runs the card lifecycle against the local store and the processor.
type Service struct {
	store     Store
	processor processor.Processor
	logger    *slog.Logger
}

// NewService wires the card lifecycle service.
func NewService(store Store, proc processor.Processor, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, processor: proc, logger: logger}
}

// IssueInput carries what the processor needs to open a card for an owner.
type IssueInput struct {
	OwnerID       string
	Customer      processor.Customer
	Currency      string
	SpendingLimit decimal.Decimal
}

// Issue registers the owner as a processor customer, creates the card and stores it as pending.
func (s *Service) Issue(ctx context.Context, in IssueInput) (Card, error) {
	if in.OwnerID == "" {
		return Card{}, fmt.Errorf("owner id is required")
	}
	if in.SpendingLimit.IsNegative() {
		return Card{}, fmt.Errorf("spending limit must not be negative")
	}
	customerID, err := s.processor.CreateCustomer(ctx, in.Customer)
	if err != nil {
		return Card{}, err
	}
	issued, err := s.processor.CreateCard(ctx, customerID, in.Currency)
	if err != nil {
		return Card{}, err
	}
	card, err := s.store.Create(ctx, Card{
		OwnerID:         in.OwnerID,
		ProcessorCardID: issued.CardID,
		Status:          StatusPending,
		SpendingLimit:   in.SpendingLimit,
	})
	if err != nil {
		s.logger.Error("card issued at processor but not stored",
			slog.String("owner_id", in.OwnerID),
			slog.String("processor_card_id", issued.CardID),
			slog.Any("error", err))
		return Card{}, err
	}
	s.logger.Info("card issued", slog.String("card_id", card.ID), slog.String("owner_id", card.OwnerID))
	return card, nil
}

// Get returns an owner's card.
func (s *Service) Get(ctx context.Context, ownerID, cardID string) (Card, error) {
	card, err := s.store.Get(ctx, cardID)
	if err != nil {
		return Card{}, err
	}
	if card.OwnerID != ownerID {
		return Card{}, ErrNotCardOwner
	}
	return card, nil
}

// List returns all cards held by an owner.
func (s *Service) List(ctx context.Context, ownerID string) ([]Card, error) {
	return s.store.ListByOwner(ctx, ownerID)
}

// Activate moves a pending card to active. The processor has no activation action.
func (s *Service) Activate(ctx context.Context, ownerID, cardID string) (Card, error) {
	return s.transition(ctx, ownerID, cardID, StatusActive, nil)
}

func (s *Service) Freeze(ctx context.Context, ownerID, cardID string) (Card, error) {
	return s.transition(ctx, ownerID, cardID, StatusFrozen, s.processor.Freeze)
}

func (s *Service) Unfreeze(ctx context.Context, ownerID, cardID string) (Card, error) {
	return s.transition(ctx, ownerID, cardID, StatusActive, s.processor.Unfreeze)
}

func (s *Service) Block(ctx context.Context, ownerID, cardID string) (Card, error) {
	return s.transition(ctx, ownerID, cardID, StatusBlocked, s.processor.Block)
}

// transition checks the move locally before calling the processor, so an illegal move such as
// unblocking never leaves this service.
func (s *Service) transition(ctx context.Context, ownerID, cardID string, to Status, remote func(context.Context, string) error) (Card, error) {
	card, err := s.Get(ctx, ownerID, cardID)
	if err != nil {
		return Card{}, err
	}
	if !card.Status.CanTransition(to) {
		return card, fmt.Errorf("%w: %s to %s", ErrIllegalTransition, card.Status, to)
	}
	if remote != nil {
		if err := remote(ctx, card.ProcessorCardID); err != nil {
			return card, err
		}
	}
	updated, err := s.store.Transition(ctx, card.ID, to)
	if err != nil {
		s.logger.Error("card status diverged from processor",
			slog.String("card_id", card.ID),
			slog.String("target", string(to)),
			slog.Any("error", err))
		return card, err
	}
	return updated, nil
}

// SetSpendingLimit replaces the card's daily limit.
func (s *Service) SetSpendingLimit(ctx context.Context, ownerID, cardID string, limit decimal.Decimal) (Card, error) {
	if limit.IsNegative() {
		return Card{}, fmt.Errorf("spending limit must not be negative")
	}
	card, err := s.Get(ctx, ownerID, cardID)
	if err != nil {
		return Card{}, err
	}
	return s.store.SetSpendingLimit(ctx, card.ID, limit)
}

// Detail fetches the processor's view of the card.
func (s *Service) Detail(ctx context.Context, ownerID, cardID string) (json.RawMessage, error) {
	card, err := s.Get(ctx, ownerID, cardID)
	if err != nil {
		return nil, err
	}
	return s.processor.CardDetail(ctx, card.ProcessorCardID)
}

// History fetches the processor's transaction list for the card.
func (s *Service) History(ctx context.Context, ownerID, cardID string) (json.RawMessage, error) {
	card, err := s.Get(ctx, ownerID, cardID)
	if err != nil {
		return nil, err
	}
	return s.processor.CardTransactions(ctx, card.ProcessorCardID)
}
