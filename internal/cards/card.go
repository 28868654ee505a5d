package cards

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrCardNotFound       = errors.New("card not found")
	ErrCardNotRecognized  = errors.New("card not recognized")
	ErrCardFrozen         = errors.New("card is frozen")
	ErrCardBlocked        = errors.New("card is blocked")
	ErrCardInactive       = errors.New("card is not active")
	ErrSpendLimitExceeded = errors.New("daily spending limit exceeded")
	ErrInvalidAmount      = errors.New("invalid authorization amount")
	ErrIllegalTransition  = errors.New("illegal card status transition")
	ErrNotCardOwner       = errors.New("card does not belong to owner")
)

// Status is the lifecycle state of a card.
type Status string

const (
	StatusPending Status = "pending"
	StatusActive  Status = "active"
	StatusFrozen  Status = "frozen"
	StatusBlocked Status = "blocked"
)

var transitions = map[Status][]Status{
	StatusPending: {StatusActive},
	StatusActive:  {StatusFrozen, StatusBlocked},
	StatusFrozen:  {StatusActive, StatusBlocked},
}

// CanTransition reports whether a card may move from s to next. Blocked is terminal.
func (s Status) CanTransition(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Card is a processor-issued card owned by a wallet holder.
type Card struct {
	ID              string
	OwnerID         string
	ProcessorCardID string
	Status          Status
	SpendingLimit   decimal.Decimal
	DailySpent      decimal.Decimal
	// SpentOn is the UTC day DailySpent was last incremented.
	SpentOn   time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// SpentToday returns the day's counter, which reads as zero once the UTC day has rolled over.
func (c Card) SpentToday(now time.Time) decimal.Decimal {
	if c.SpentOn.Before(Day(now)) {
		return decimal.Zero
	}
	return c.DailySpent
}

// Day truncates t to its UTC calendar day.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Evaluate applies the authorization policy to a card. It does not mutate the card.
func Evaluate(c Card, amount decimal.Decimal, now time.Time) error {
	switch c.Status {
	case StatusFrozen:
		return ErrCardFrozen
	case StatusBlocked:
		return ErrCardBlocked
	case StatusActive:
	default:
		return ErrCardInactive
	}
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	if c.SpentToday(now).Add(amount).GreaterThan(c.SpendingLimit) {
		return ErrSpendLimitExceeded
	}
	return nil
}

// AuthorizationRequest is a processor pre-approval for a card charge.
type AuthorizationRequest struct {
	CardRef   string
	Reference string
	Amount    decimal.Decimal
}

func (r AuthorizationRequest) key() string {
	return r.CardRef + "|" + r.Reference
}

// Decision is the recorded outcome of one authorization request.
type Decision struct {
	Approved bool
	Reason   string
	CardID   string
	OwnerID  string
	// Replayed is set when the decision was already recorded for the same card and reference.
	Replayed bool
}

func decisionFor(c Card, err error) Decision {
	d := Decision{Approved: err == nil, CardID: c.ID, OwnerID: c.OwnerID}
	if err != nil {
		d.Reason = err.Error()
	}
	return d
}

// Store persists cards and performs the atomic authorization step.
type Store interface {
	Create(ctx context.Context, card Card) (Card, error)
	Get(ctx context.Context, id string) (Card, error)
	GetByProcessorID(ctx context.Context, processorCardID string) (Card, error)
	ListByOwner(ctx context.Context, ownerID string) ([]Card, error)
	Transition(ctx context.Context, id string, to Status) (Card, error)
	SetSpendingLimit(ctx context.Context, id string, limit decimal.Decimal) (Card, error)
	// Authorize evaluates and records a decision under one lock per card. An approval
	// increments the day's counter. A known card and reference replays the stored decision.
	Authorize(ctx context.Context, req AuthorizationRequest) (Decision, error)
}
