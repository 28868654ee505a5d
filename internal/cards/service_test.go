package cards

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/congo-pay/walletcore/internal/clock"
	"github.com/congo-pay/walletcore/internal/logging"
	"github.com/congo-pay/walletcore/internal/processor"
)

func issueCard(t *testing.T) (*Service, *processor.Static, Card) {
	t.Helper()
	proc := processor.NewStatic()
	svc := NewService(NewInMemory(clock.NewFixed(noon)), proc, logging.Discard())
	card, err := svc.Issue(context.Background(), IssueInput{
		OwnerID:       "owner-1",
		Customer:      processor.Customer{FirstName: "Ada", LastName: "Obi", Email: "ada@example.com", Phone: "+2348000000000"},
		Currency:      "USD",
		SpendingLimit: decimal.NewFromInt(5000),
	})
	require.NoError(t, err)
	return svc, proc, card
}

func TestServiceLifecycle(t *testing.T) {
	svc, proc, card := issueCard(t)
	ctx := context.Background()
	assert.Equal(t, StatusPending, card.Status)
	assert.NotEmpty(t, card.ProcessorCardID)

	card, err := svc.Activate(ctx, "owner-1", card.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusActive, card.Status)

	card, err = svc.Freeze(ctx, "owner-1", card.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFrozen, card.Status)

	card, err = svc.Unfreeze(ctx, "owner-1", card.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusActive, card.Status)

	card, err = svc.Block(ctx, "owner-1", card.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusBlocked, card.Status)

	assert.Equal(t, []processor.Action{
		processor.ActionCreateCustomer,
		processor.ActionCreateCard,
		processor.ActionFreezeCard,
		processor.ActionUnfreezeCard,
		processor.ActionBlockCard,
	}, proc.Calls())
}

func TestServiceRejectsIllegalTransitionBeforeProcessor(t *testing.T) {
	svc, proc, card := issueCard(t)
	ctx := context.Background()
	_, err := svc.Activate(ctx, "owner-1", card.ID)
	require.NoError(t, err)
	_, err = svc.Block(ctx, "owner-1", card.ID)
	require.NoError(t, err)
	before := len(proc.Calls())

	_, err = svc.Unfreeze(ctx, "owner-1", card.ID)
	require.ErrorIs(t, err, ErrIllegalTransition)
	assert.Len(t, proc.Calls(), before)
}

func TestServiceProcessorFailureKeepsLocalStatus(t *testing.T) {
	svc, proc, card := issueCard(t)
	ctx := context.Background()
	_, err := svc.Activate(ctx, "owner-1", card.ID)
	require.NoError(t, err)

	proc.Fail(processor.ActionFreezeCard, assert.AnError)
	_, err = svc.Freeze(ctx, "owner-1", card.ID)
	require.ErrorIs(t, err, processor.ErrIntegrationFailure)

	stored, err := svc.Get(ctx, "owner-1", card.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusActive, stored.Status)
}

func TestServiceEnforcesOwnership(t *testing.T) {
	svc, _, card := issueCard(t)
	_, err := svc.Freeze(context.Background(), "someone-else", card.ID)
	require.ErrorIs(t, err, ErrNotCardOwner)

	_, err = svc.Detail(context.Background(), "someone-else", card.ID)
	require.ErrorIs(t, err, ErrNotCardOwner)
}

func TestServiceDetailAndHistory(t *testing.T) {
	svc, _, card := issueCard(t)
	detail, err := svc.Detail(context.Background(), "owner-1", card.ID)
	require.NoError(t, err)
	assert.Contains(t, string(detail), card.ProcessorCardID)

	history, err := svc.History(context.Background(), "owner-1", card.ID)
	require.NoError(t, err)
	assert.JSONEq(t, `{"data":[]}`, string(history))
}
