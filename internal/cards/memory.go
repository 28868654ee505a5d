package cards

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/congo-pay/walletcore/internal/clock"
)

type memoryStore struct {
	mu          sync.Mutex
	clock       clock.Clock
	cards       map[string]Card
	byProcessor map[string]string
	decisions   map[string]Decision
}

// NewInMemory creates a concurrency-safe in-memory card store.
func NewInMemory(c clock.Clock) Store {
	if c == nil {
		c = clock.RealClock{}
	}
	return &memoryStore{
		clock:       c,
		cards:       make(map[string]Card),
		byProcessor: make(map[string]string),
		decisions:   make(map[string]Decision),
	}
}

func (s *memoryStore) Create(_ context.Context, card Card) (Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if card.ID == "" {
		card.ID = uuid.NewString()
	}
	if card.Status == "" {
		card.Status = StatusPending
	}
	now := s.clock.Now()
	card.CreatedAt = now
	card.UpdatedAt = now
	s.cards[card.ID] = card
	if card.ProcessorCardID != "" {
		s.byProcessor[card.ProcessorCardID] = card.ID
	}
	return card, nil
}

func (s *memoryStore) Get(_ context.Context, id string) (Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	card, ok := s.cards[id]
	if !ok {
		return Card{}, ErrCardNotFound
	}
	return card, nil
}

func (s *memoryStore) GetByProcessorID(_ context.Context, processorCardID string) (Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byProcessor[processorCardID]
	if !ok {
		return Card{}, ErrCardNotFound
	}
	return s.cards[id], nil
}

func (s *memoryStore) ListByOwner(_ context.Context, ownerID string) ([]Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Card
	for _, card := range s.cards {
		if card.OwnerID == ownerID {
			out = append(out, card)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *memoryStore) Transition(_ context.Context, id string, to Status) (Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	card, ok := s.cards[id]
	if !ok {
		return Card{}, ErrCardNotFound
	}
	if !card.Status.CanTransition(to) {
		return card, ErrIllegalTransition
	}
	card.Status = to
	card.UpdatedAt = s.clock.Now()
	s.cards[id] = card
	return card, nil
}

func (s *memoryStore) SetSpendingLimit(_ context.Context, id string, limit decimal.Decimal) (Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	card, ok := s.cards[id]
	if !ok {
		return Card{}, ErrCardNotFound
	}
	card.SpendingLimit = limit
	card.UpdatedAt = s.clock.Now()
	s.cards[id] = card
	return card, nil
}

func (s *memoryStore) Authorize(ctx context.Context, req AuthorizationRequest) (Decision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return Decision{}, err
	}
	if d, ok := s.decisions[req.key()]; ok && req.Reference != "" {
		d.Replayed = true
		return d, nil
	}

	var d Decision
	id, ok := s.byProcessor[req.CardRef]
	if !ok {
		d = decisionFor(Card{}, ErrCardNotRecognized)
	} else {
		card := s.cards[id]
		now := s.clock.Now()
		err := Evaluate(card, req.Amount, now)
		if err == nil {
			card.DailySpent = card.SpentToday(now).Add(req.Amount)
			card.SpentOn = Day(now)
			card.UpdatedAt = now
			s.cards[id] = card
		}
		d = decisionFor(card, err)
	}

	if req.Reference != "" {
		s.decisions[req.key()] = d
	}
	return d, nil
}
