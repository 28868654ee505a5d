package payments

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"

	"github.com/congo-pay/walletcore/internal/ledger"
	"github.com/congo-pay/walletcore/internal/logging"
	"github.com/congo-pay/walletcore/internal/metrics"
	"github.com/congo-pay/walletcore/internal/notification"
)

type testNotifier struct {
	mu   sync.Mutex
	sent []notification.Notification
}

func (n *testNotifier) Notify(_ context.Context, msg notification.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, msg)
	return nil
}

type fixture struct {
	ledger   ledger.Ledger
	svc      *Service
	notifier *testNotifier
	metrics  *metrics.Metrics
}

func newFixture(t *testing.T, balances map[string]int64) fixture {
	t.Helper()
	ctx := context.Background()
	l := ledger.NewInMemory()
	for owner, amount := range balances {
		if _, err := l.EnsureWallet(ctx, owner, "NGN"); err != nil {
			t.Fatalf("ensure wallet: %v", err)
		}
		if amount > 0 {
			if _, err := l.Post(ctx, ledger.Posting{OwnerID: owner, Kind: ledger.KindAddMoney, Amount: decimal.NewFromInt(amount)}); err != nil {
				t.Fatalf("seed %s: %v", owner, err)
			}
		}
	}
	n := &testNotifier{}
	m := metrics.New()
	return fixture{ledger: l, svc: NewService(l, n, m, logging.Discard()), notifier: n, metrics: m}
}

func (f fixture) balance(t *testing.T, owner string) decimal.Decimal {
	t.Helper()
	w, err := f.ledger.Wallet(context.Background(), owner)
	if err != nil {
		t.Fatalf("wallet %s: %v", owner, err)
	}
	return w.Balance
}

func mutations(t *testing.T, reg *prometheus.Registry, kind, result string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != "walletcore_ledger_mutations_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			labels := map[string]string{}
			for _, lp := range m.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			if labels["kind"] == kind && labels["result"] == result {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func amount(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func TestSendBetweenWallets(t *testing.T) {
	f := newFixture(t, map[string]int64{"alice": 1_000, "bob": 0})

	txs, err := f.svc.Send(context.Background(), Request{OwnerID: "alice", Counterparty: "bob", Amount: amount("200")})
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if len(txs) != 2 || txs[0].Reference == "" || txs[0].Reference != txs[1].Reference {
		t.Fatalf("expected two legs sharing a generated reference, got %+v", txs)
	}
	if !f.balance(t, "alice").Equal(amount("800")) || !f.balance(t, "bob").Equal(amount("200")) {
		t.Fatalf("unexpected balances alice=%s bob=%s", f.balance(t, "alice"), f.balance(t, "bob"))
	}
	if len(f.notifier.sent) != 2 {
		t.Fatalf("expected a notification per leg, got %d", len(f.notifier.sent))
	}
	if got := mutations(t, f.metrics.Registry(), "send", "ok"); got != 1 {
		t.Fatalf("expected ok metric, got %v", got)
	}
}

func TestSendToUnknownCounterpartyIsExternal(t *testing.T) {
	f := newFixture(t, map[string]int64{"alice": 500})

	txs, err := f.svc.Send(context.Background(), Request{OwnerID: "alice", Counterparty: "+2348000000000", Amount: amount("120.50")})
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if len(txs) != 1 || txs[0].Kind != ledger.KindSend {
		t.Fatalf("expected a single send leg, got %+v", txs)
	}
	if !f.balance(t, "alice").Equal(amount("379.50")) {
		t.Fatalf("unexpected balance %s", f.balance(t, "alice"))
	}
}

func TestSendInsufficientBalance(t *testing.T) {
	f := newFixture(t, map[string]int64{"alice": 50, "bob": 0})

	_, err := f.svc.Send(context.Background(), Request{OwnerID: "alice", Counterparty: "bob", Amount: amount("100")})
	if !errors.Is(err, ledger.ErrInsufficientBalance) {
		t.Fatalf("expected insufficient balance, got %v", err)
	}
	if !f.balance(t, "alice").Equal(amount("50")) || !f.balance(t, "bob").IsZero() {
		t.Fatalf("balances changed after failed send")
	}
	if len(f.notifier.sent) != 0 {
		t.Fatalf("failed send must not notify")
	}
	if got := mutations(t, f.metrics.Registry(), "send", "insufficient"); got != 1 {
		t.Fatalf("expected insufficient metric, got %v", got)
	}
}

func TestSendRejectsSelfAndBadAmounts(t *testing.T) {
	f := newFixture(t, map[string]int64{"alice": 100})
	ctx := context.Background()

	if _, err := f.svc.Send(ctx, Request{OwnerID: "alice", Counterparty: "alice", Amount: amount("1")}); !errors.Is(err, ErrSelfTransfer) {
		t.Fatalf("expected self transfer error, got %v", err)
	}
	for _, bad := range []string{"0", "-5", "1.001"} {
		if _, err := f.svc.CashOut(ctx, Request{OwnerID: "alice", Amount: amount(bad)}); !errors.Is(err, ledger.ErrInvalidAmount) {
			t.Fatalf("amount %s: expected invalid amount, got %v", bad, err)
		}
	}
}

func TestSingleLegOperationsDirection(t *testing.T) {
	f := newFixture(t, map[string]int64{"alice": 1_000})
	ctx := context.Background()

	ops := []struct {
		name  string
		op    func(context.Context, Request) ([]ledger.Transaction, error)
		kind  ledger.Kind
		delta string
	}{
		{"receive", f.svc.Receive, ledger.KindReceive, "10"},
		{"add money", f.svc.AddMoney, ledger.KindAddMoney, "10"},
		{"remittance", f.svc.RemittanceCredit, ledger.KindRemittance, "10"},
		{"reward", f.svc.CreditReward, ledger.KindReward, "10"},
		{"cash out", f.svc.CashOut, ledger.KindCashOut, "-10"},
		{"bill", f.svc.PayBill, ledger.KindBillPay, "-10"},
		{"recharge", f.svc.Recharge, ledger.KindRecharge, "-10"},
		{"merchant", f.svc.PayMerchant, ledger.KindMerchant, "-10"},
	}
	for _, tc := range ops {
		before := f.balance(t, "alice")
		txs, err := tc.op(ctx, Request{OwnerID: "alice", Amount: amount("10")})
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if len(txs) != 1 || txs[0].Kind != tc.kind || !txs[0].Amount.Equal(amount(tc.delta)) {
			t.Fatalf("%s: unexpected row %+v", tc.name, txs)
		}
		if !f.balance(t, "alice").Sub(before).Equal(amount(tc.delta)) {
			t.Fatalf("%s: balance moved by %s", tc.name, f.balance(t, "alice").Sub(before))
		}
	}
}

func TestDuplicateReferenceReplays(t *testing.T) {
	f := newFixture(t, map[string]int64{"alice": 1_000})
	ctx := context.Background()
	req := Request{OwnerID: "alice", Amount: amount("300"), Reference: "bill-77"}

	first, err := f.svc.PayBill(ctx, req)
	if err != nil {
		t.Fatalf("pay bill: %v", err)
	}
	replay, err := f.svc.PayBill(ctx, req)
	if !errors.Is(err, ledger.ErrDuplicateTransaction) {
		t.Fatalf("expected duplicate, got %v", err)
	}
	if len(replay) != 1 || replay[0].ID != first[0].ID {
		t.Fatalf("expected original row, got %+v", replay)
	}
	if !f.balance(t, "alice").Equal(amount("700")) {
		t.Fatalf("duplicate charged twice: %s", f.balance(t, "alice"))
	}
	if len(f.notifier.sent) != 1 {
		t.Fatalf("duplicate must not notify again, got %d", len(f.notifier.sent))
	}
}
