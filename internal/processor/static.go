package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Static simulates a processor that approves everything. Failures and withdrawal outcomes can
// be scripted per action.
type Static struct {
	mu              sync.Mutex
	calls           []Action
	failures        map[Action]error
	withdrawOutcome Outcome
	withdrawSettled Outcome
	cardSeq         int
}

// NewStatic returns a processor fake that completes every movement immediately.
func NewStatic() *Static {
	return &Static{failures: make(map[Action]error), withdrawOutcome: OutcomeCompleted, withdrawSettled: OutcomeCompleted}
}

// Fail makes the next and all later calls of action return err wrapped in ErrIntegrationFailure.
func (s *Static) Fail(action Action, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[action] = err
}

// Recover clears a scripted failure.
func (s *Static) Recover(action Action) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.failures, action)
}

// SetWithdrawOutcomes scripts the status returned by withdraw-from-card and card-withdraw-status.
func (s *Static) SetWithdrawOutcomes(initial, settled Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.withdrawOutcome = initial
	s.withdrawSettled = settled
}

// Calls returns the actions dispatched so far, in order.
func (s *Static) Calls() []Action {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Action(nil), s.calls...)
}

func (s *Static) record(action Action) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, action)
	if err, ok := s.failures[action]; ok {
		return fmt.Errorf("%w: %s: %v", ErrIntegrationFailure, action, err)
	}
	return nil
}

func (s *Static) CreateCustomer(_ context.Context, _ Customer) (string, error) {
	if err := s.record(ActionCreateCustomer); err != nil {
		return "", err
	}
	return "cus_" + uuid.NewString(), nil
}

func (s *Static) CreateCard(_ context.Context, _ string, _ string) (IssuedCard, error) {
	if err := s.record(ActionCreateCard); err != nil {
		return IssuedCard{}, err
	}
	s.mu.Lock()
	s.cardSeq++
	id := fmt.Sprintf("crd_%d_%s", s.cardSeq, uuid.NewString()[:8])
	s.mu.Unlock()
	return IssuedCard{CardID: id, Status: "pending"}, nil
}

func (s *Static) FundCard(_ context.Context, _ string, _ decimal.Decimal, reference string) (Result, error) {
	if err := s.record(ActionFundCard); err != nil {
		return Result{}, err
	}
	return Result{Reference: reference, Status: OutcomeCompleted}, nil
}

func (s *Static) WithdrawFromCard(_ context.Context, _ string, _ decimal.Decimal, reference string) (Result, error) {
	if err := s.record(ActionWithdrawFromCard); err != nil {
		return Result{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return Result{Reference: reference, Status: s.withdrawOutcome}, nil
}

func (s *Static) WithdrawStatus(_ context.Context, _ string, reference string) (Result, error) {
	if err := s.record(ActionWithdrawStatus); err != nil {
		return Result{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return Result{Reference: reference, Status: s.withdrawSettled}, nil
}

func (s *Static) Freeze(_ context.Context, _ string) error   { return s.record(ActionFreezeCard) }
func (s *Static) Unfreeze(_ context.Context, _ string) error { return s.record(ActionUnfreezeCard) }
func (s *Static) Block(_ context.Context, _ string) error    { return s.record(ActionBlockCard) }

func (s *Static) CardDetail(_ context.Context, cardID string) (json.RawMessage, error) {
	if err := s.record(ActionFetchCardDetail); err != nil {
		return nil, err
	}
	return json.Marshal(map[string]string{"card_id": cardID, "status": "active"})
}

func (s *Static) CardTransactions(_ context.Context, _ string) (json.RawMessage, error) {
	if err := s.record(ActionCardTransactions); err != nil {
		return nil, err
	}
	return json.RawMessage(`{"data":[]}`), nil
}
