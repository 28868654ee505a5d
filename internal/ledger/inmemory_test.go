package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"
)

func seed(t *testing.T, l Ledger, owner string, amount int64) {
	t.Helper()
	ctx := context.Background()
	if _, err := l.EnsureWallet(ctx, owner, "NGN"); err != nil {
		t.Fatalf("ensure wallet %s: %v", owner, err)
	}
	if amount == 0 {
		return
	}
	if _, err := l.Post(ctx, Posting{OwnerID: owner, Kind: KindAddMoney, Amount: decimal.NewFromInt(amount), Counterparty: "seed"}); err != nil {
		t.Fatalf("seed %s: %v", owner, err)
	}
}

func balanceOf(t *testing.T, l Ledger, owner string) decimal.Decimal {
	t.Helper()
	w, err := l.Wallet(context.Background(), owner)
	if err != nil {
		t.Fatalf("wallet %s: %v", owner, err)
	}
	return w.Balance
}

func TestInMemoryLedger_TwoLegTransfer(t *testing.T) {
	l := NewInMemory()
	ctx := context.Background()
	seed(t, l, "alice", 1_000)
	seed(t, l, "bob", 0)

	txs, err := l.Post(ctx,
		Posting{OwnerID: "alice", Kind: KindSend, Amount: decimal.NewFromInt(-200), Counterparty: "bob", Reference: "r1"},
		Posting{OwnerID: "bob", Kind: KindReceive, Amount: decimal.NewFromInt(200), Counterparty: "alice", Reference: "r1"},
	)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	if len(txs) != 2 {
		t.Fatalf("expected 2 transactions, got %d", len(txs))
	}
	if !balanceOf(t, l, "alice").Equal(decimal.NewFromInt(800)) {
		t.Fatalf("expected alice 800, got %s", balanceOf(t, l, "alice"))
	}
	if !balanceOf(t, l, "bob").Equal(decimal.NewFromInt(200)) {
		t.Fatalf("expected bob 200, got %s", balanceOf(t, l, "bob"))
	}
	if txs[0].Status != StatusCompleted || txs[1].Status != StatusCompleted {
		t.Fatalf("expected completed rows, got %s/%s", txs[0].Status, txs[1].Status)
	}
}

func TestInMemoryLedger_InsufficientBalanceLeavesNoTrace(t *testing.T) {
	l := NewInMemory()
	ctx := context.Background()
	seed(t, l, "alice", 50)
	seed(t, l, "bob", 0)

	_, err := l.Post(ctx,
		Posting{OwnerID: "alice", Kind: KindSend, Amount: decimal.NewFromInt(-100), Reference: "r1"},
		Posting{OwnerID: "bob", Kind: KindReceive, Amount: decimal.NewFromInt(100), Reference: "r1"},
	)
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected insufficient balance, got %v", err)
	}
	if !balanceOf(t, l, "alice").Equal(decimal.NewFromInt(50)) {
		t.Fatalf("alice balance changed: %s", balanceOf(t, l, "alice"))
	}
	if !balanceOf(t, l, "bob").IsZero() {
		t.Fatalf("bob balance changed: %s", balanceOf(t, l, "bob"))
	}
	bobTxs, _ := l.Transactions(ctx, "bob", 0)
	if len(bobTxs) != 0 {
		t.Fatalf("expected no credit leg, got %d rows", len(bobTxs))
	}
}

func TestInMemoryLedger_MissingRecipientRollsBackSender(t *testing.T) {
	l := NewInMemory()
	ctx := context.Background()
	seed(t, l, "alice", 500)

	_, err := l.Post(ctx,
		Posting{OwnerID: "alice", Kind: KindSend, Amount: decimal.NewFromInt(-100)},
		Posting{OwnerID: "ghost", Kind: KindReceive, Amount: decimal.NewFromInt(100)},
	)
	if !errors.Is(err, ErrWalletNotFound) {
		t.Fatalf("expected wallet not found, got %v", err)
	}
	if !balanceOf(t, l, "alice").Equal(decimal.NewFromInt(500)) {
		t.Fatalf("alice balance changed: %s", balanceOf(t, l, "alice"))
	}
}

func TestInMemoryLedger_DuplicateReference(t *testing.T) {
	l := NewInMemory()
	ctx := context.Background()
	seed(t, l, "alice", 5_000)

	first, err := l.Post(ctx, Posting{OwnerID: "alice", Kind: KindCashOut, Amount: decimal.NewFromInt(-500), Reference: "dup"})
	if err != nil {
		t.Fatalf("initial post failed: %v", err)
	}
	replay, err := l.Post(ctx, Posting{OwnerID: "alice", Kind: KindCashOut, Amount: decimal.NewFromInt(-500), Reference: "dup"})
	if !errors.Is(err, ErrDuplicateTransaction) {
		t.Fatalf("expected duplicate error, got %v", err)
	}
	if len(replay) != 1 || replay[0].ID != first[0].ID {
		t.Fatalf("expected replay of %s, got %+v", first[0].ID, replay)
	}
	if !balanceOf(t, l, "alice").Equal(decimal.NewFromInt(4_500)) {
		t.Fatalf("duplicate debited twice: %s", balanceOf(t, l, "alice"))
	}
}

func TestInMemoryLedger_ConcurrentDebitsNeverOverdraw(t *testing.T) {
	l := NewInMemory()
	ctx := context.Background()
	seed(t, l, "alice", 1_000)

	const workers = 25
	var succeeded atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := l.Post(ctx, Posting{
				OwnerID:   "alice",
				Kind:      KindCashOut,
				Amount:    decimal.NewFromInt(-100),
				Reference: fmt.Sprintf("tx-%d", i),
			})
			switch {
			case err == nil:
				succeeded.Add(1)
			case errors.Is(err, ErrInsufficientBalance):
			default:
				t.Errorf("debit %d failed: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	if succeeded.Load() != 10 {
		t.Fatalf("expected exactly 10 debits to succeed, got %d", succeeded.Load())
	}
	if !balanceOf(t, l, "alice").IsZero() {
		t.Fatalf("expected zero balance, got %s", balanceOf(t, l, "alice"))
	}
}

func TestInMemoryLedger_ConcurrentOpposingTransfersConserveMoney(t *testing.T) {
	l := NewInMemory()
	ctx := context.Background()
	seed(t, l, "a", 10_000)
	seed(t, l, "b", 10_000)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			from, to := "a", "b"
			if i%2 == 1 {
				from, to = to, from
			}
			ref := fmt.Sprintf("x-%d", i)
			if _, err := l.Post(ctx,
				Posting{OwnerID: from, Kind: KindSend, Amount: decimal.NewFromInt(-250), Reference: ref},
				Posting{OwnerID: to, Kind: KindReceive, Amount: decimal.NewFromInt(250), Reference: ref},
			); err != nil {
				t.Errorf("transfer %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	total := balanceOf(t, l, "a").Add(balanceOf(t, l, "b"))
	if !total.Equal(decimal.NewFromInt(20_000)) {
		t.Fatalf("ledger not balanced after concurrency, total=%s", total)
	}
}

func TestInMemoryLedger_PendingThenSettle(t *testing.T) {
	l := NewInMemory()
	ctx := context.Background()
	seed(t, l, "alice", 0)

	txs, err := l.Post(ctx, Posting{OwnerID: "alice", Kind: KindCardWithdraw, Amount: decimal.NewFromInt(300), Status: StatusPending, Reference: "w1"})
	if err != nil {
		t.Fatalf("post pending: %v", err)
	}
	if !balanceOf(t, l, "alice").IsZero() {
		t.Fatalf("pending credit must not move balance, got %s", balanceOf(t, l, "alice"))
	}

	settled, err := l.Settle(ctx, txs[0].ID, StatusCompleted)
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if settled.Status != StatusCompleted {
		t.Fatalf("expected completed, got %s", settled.Status)
	}
	if !balanceOf(t, l, "alice").Equal(decimal.NewFromInt(300)) {
		t.Fatalf("expected 300 after settle, got %s", balanceOf(t, l, "alice"))
	}

	if _, err := l.Settle(ctx, txs[0].ID, StatusCancelled); !errors.Is(err, ErrIllegalStatusTransition) {
		t.Fatalf("expected illegal transition, got %v", err)
	}
	stored, err := l.Transaction(ctx, txs[0].ID)
	if err != nil || stored.Status != StatusCompleted {
		t.Fatalf("expected stored completed row, got %+v (%v)", stored, err)
	}
	if _, err := l.Transaction(ctx, "missing"); !errors.Is(err, ErrTransactionNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := l.Settle(ctx, "missing", StatusCompleted); !errors.Is(err, ErrTransactionNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestInMemoryLedger_TransactionsNewestFirst(t *testing.T) {
	l := NewInMemory()
	ctx := context.Background()
	seed(t, l, "alice", 100)
	if _, err := l.Post(ctx, Posting{OwnerID: "alice", Kind: KindRecharge, Amount: decimal.NewFromInt(-10), Reference: "later"}); err != nil {
		t.Fatalf("post: %v", err)
	}

	txs, err := l.Transactions(ctx, "alice", 1)
	if err != nil {
		t.Fatalf("transactions: %v", err)
	}
	if len(txs) != 1 || txs[0].Reference != "later" {
		t.Fatalf("expected newest row first, got %+v", txs)
	}
}

func TestStatusCanTransition(t *testing.T) {
	cases := []struct {
		from, to Status
		ok       bool
	}{
		{StatusPending, StatusCompleted, true},
		{StatusPending, StatusFailed, true},
		{StatusPending, StatusCancelled, true},
		{StatusPending, StatusPending, false},
		{StatusCompleted, StatusFailed, false},
		{StatusFailed, StatusCompleted, false},
	}
	for _, tc := range cases {
		if got := tc.from.CanTransition(tc.to); got != tc.ok {
			t.Errorf("%s -> %s: expected %v, got %v", tc.from, tc.to, tc.ok, got)
		}
	}
}

func TestTransactionByReference(t *testing.T) {
	ctx := context.Background()
	l := NewInMemory()
	if _, err := l.EnsureWallet(ctx, "alice", "NGN"); err != nil {
		t.Fatalf("ensure wallet: %v", err)
	}
	txs, err := l.Post(ctx, Posting{OwnerID: "alice", Kind: KindAddMoney, Amount: decimal.NewFromInt(10), Reference: "ref-1"})
	if err != nil {
		t.Fatalf("post: %v", err)
	}

	found, err := l.TransactionByReference(ctx, "alice", KindAddMoney, "ref-1")
	if err != nil || found.ID != txs[0].ID {
		t.Fatalf("expected row %s, got %+v (%v)", txs[0].ID, found, err)
	}
	for _, miss := range []struct {
		owner string
		kind  Kind
		ref   string
	}{
		{"bob", KindAddMoney, "ref-1"},
		{"alice", KindCardFund, "ref-1"},
		{"alice", KindAddMoney, ""},
	} {
		if _, err := l.TransactionByReference(ctx, miss.owner, miss.kind, miss.ref); !errors.Is(err, ErrTransactionNotFound) {
			t.Fatalf("%+v: expected not found, got %v", miss, err)
		}
	}
}

func TestUnreferencedPostingsNeverCollide(t *testing.T) {
	ctx := context.Background()
	l := NewInMemory()
	if _, err := l.EnsureWallet(ctx, "alice", "NGN"); err != nil {
		t.Fatalf("ensure wallet: %v", err)
	}
	for i := 0; i < 2; i++ {
		if _, err := l.Post(ctx, Posting{OwnerID: "alice", Kind: KindReward, Amount: decimal.NewFromInt(5)}); err != nil {
			t.Fatalf("post %d: %v", i, err)
		}
	}
	if got := balanceOf(t, l, "alice"); !got.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("expected 10, got %s", got)
	}
}
