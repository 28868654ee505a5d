package processor

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrIntegrationFailure covers every failed outbound call: transport errors, non-2xx answers,
// non-JSON bodies, unknown actions and missing parameters. Local state must stay untouched.
var ErrIntegrationFailure = errors.New("card processor integration failure")

// Action names an outbound operation on the card processor.
type Action string

const (
	ActionCreateCustomer   Action = "create-customer"
	ActionCreateCard       Action = "create-card"
	ActionFundCard         Action = "fund-card"
	ActionFetchCardDetail  Action = "fetch-card-detail"
	ActionFreezeCard       Action = "freeze-card"
	ActionUnfreezeCard     Action = "unfreeze-card"
	ActionCardTransactions Action = "card-transactions"
	ActionWithdrawFromCard Action = "withdraw-from-card"
	ActionBlockCard        Action = "block-card"
	ActionWithdrawStatus   Action = "card-withdraw-status"
)

type endpoint struct {
	method   string
	path     string
	required []string
}

var actions = map[Action]endpoint{
	ActionCreateCustomer:   {method: "POST", path: "/customers", required: []string{"first_name", "last_name", "email", "phone"}},
	ActionCreateCard:       {method: "POST", path: "/cards", required: []string{"customer_id", "currency"}},
	ActionFundCard:         {method: "POST", path: "/cards/fund", required: []string{"card_id", "amount", "reference"}},
	ActionFetchCardDetail:  {method: "GET", path: "/cards/detail", required: []string{"card_id"}},
	ActionFreezeCard:       {method: "POST", path: "/cards/freeze", required: []string{"card_id"}},
	ActionUnfreezeCard:     {method: "POST", path: "/cards/unfreeze", required: []string{"card_id"}},
	ActionCardTransactions: {method: "GET", path: "/cards/transactions", required: []string{"card_id"}},
	ActionWithdrawFromCard: {method: "POST", path: "/cards/withdraw", required: []string{"card_id", "amount", "reference"}},
	ActionBlockCard:        {method: "POST", path: "/cards/block", required: []string{"card_id"}},
	ActionWithdrawStatus:   {method: "GET", path: "/cards/withdraw/status", required: []string{"card_id", "reference"}},
}

// Known reports whether the action is in the dispatch table.
func Known(a Action) bool {
	_, ok := actions[a]
	return ok
}

// Outcome is the normalized status of a money movement at the processor.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomePending   Outcome = "pending"
	OutcomeFailed    Outcome = "failed"
)

// NormalizeOutcome folds the processor's status vocabulary into three outcomes.
func NormalizeOutcome(status string) Outcome {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "pending", "processing", "queued", "initiated":
		return OutcomePending
	case "failed", "failure", "declined", "reversed", "cancelled":
		return OutcomeFailed
	default:
		return OutcomeCompleted
	}
}

// Result is the processor's answer to a money movement.
type Result struct {
	Reference string
	Status    Outcome
}

// Customer is the holder record sent to create-customer.
type Customer struct {
	FirstName string
	LastName  string
	Email     string
	Phone     string
}

// IssuedCard is returned by create-card.
type IssuedCard struct {
	CardID string
	Status string
}

// Processor is the outbound surface the services depend on.
type Processor interface {
	CreateCustomer(ctx context.Context, customer Customer) (string, error)
	CreateCard(ctx context.Context, customerID, currency string) (IssuedCard, error)
	FundCard(ctx context.Context, cardID string, amount decimal.Decimal, reference string) (Result, error)
	WithdrawFromCard(ctx context.Context, cardID string, amount decimal.Decimal, reference string) (Result, error)
	WithdrawStatus(ctx context.Context, cardID, reference string) (Result, error)
	Freeze(ctx context.Context, cardID string) error
	Unfreeze(ctx context.Context, cardID string) error
	Block(ctx context.Context, cardID string) error
	CardDetail(ctx context.Context, cardID string) (json.RawMessage, error)
	CardTransactions(ctx context.Context, cardID string) (json.RawMessage, error)
}
