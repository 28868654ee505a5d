package notification

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/congo-pay/walletcore/internal/events"
	"github.com/congo-pay/walletcore/internal/ledger"
)

// Notification is a user-facing message derived from a card event or a ledger mutation.
type Notification struct {
	ID        string            `json:"id"`
	OwnerID   string            `json:"owner_id"`
	Title     string            `json:"title"`
	Message   string            `json:"message"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	IsRead    bool              `json:"is_read"`
}

func newNotification(ownerID, title, message string, metadata map[string]string) Notification {
	return Notification{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		Title:     title,
		Message:   message,
		Metadata:  metadata,
		CreatedAt: time.Now().UTC(),
	}
}

// FromEvent derives the notification for a card event. Events without an owner and unknown
// events produce none.
func FromEvent(evt events.CardEvent) (Notification, bool) {
	if evt.OwnerID == "" || evt.Kind == events.KindUnknown {
		return Notification{}, false
	}

	amount := money(evt.Amount, evt.Currency)
	where := ""
	if evt.Narrative != "" {
		where = " at " + evt.Narrative
	}

	var title, message string
	switch evt.Kind {
	case events.KindAuthorizationRequest:
		if evt.Status == "approved" {
			title = "Card payment approved"
			message = fmt.Sprintf("A card payment of %s%s was approved.", amount, where)
		} else {
			title = "Card payment declined"
			message = fmt.Sprintf("A card payment of %s%s was declined", amount, where)
			if evt.Reason != "" {
				message += ": " + evt.Reason
			}
			message += "."
		}
	case events.KindTransactionCreated:
		title = "Card transaction"
		message = fmt.Sprintf("Your card was charged %s%s.", amount, where)
	case events.KindTransactionRefund:
		title = "Card refund"
		message = fmt.Sprintf("%s%s was refunded to your card.", amount, where)
	case events.KindTransactionDeclined:
		title = "Card transaction declined"
		message = fmt.Sprintf("A card transaction of %s%s was declined.", amount, where)
	case events.KindCrossBorder:
		title = "International card transaction"
		message = fmt.Sprintf("A cross-border charge of %s%s was made on your card.", amount, where)
	default:
		title = "Card activity"
		message = fmt.Sprintf("New activity on your card: %s.", strings.ReplaceAll(string(evt.Kind), "_", " "))
	}

	return newNotification(evt.OwnerID, title, message, map[string]string{
		"source":     "card_event",
		"event_id":   evt.ID,
		"event_kind": string(evt.Kind),
		"card_ref":   evt.CardRef,
		"reference":  evt.Reference,
		"status":     evt.Status,
	}), true
}

var transactionTitles = map[ledger.Kind]string{
	ledger.KindSend:         "Money sent",
	ledger.KindReceive:      "Money received",
	ledger.KindBillPay:      "Bill paid",
	ledger.KindRecharge:     "Airtime recharge",
	ledger.KindCashOut:      "Cash out",
	ledger.KindAddMoney:     "Money added",
	ledger.KindMerchant:     "Merchant payment",
	ledger.KindRemittance:   "Remittance received",
	ledger.KindReward:       "Reward credited",
	ledger.KindCardFund:     "Card funded",
	ledger.KindCardWithdraw: "Card withdrawal",
}

// FromTransaction derives the notification for a ledger row.
func FromTransaction(tx ledger.Transaction, currency string) Notification {
	title, ok := transactionTitles[tx.Kind]
	if !ok {
		title = "Wallet activity"
	}

	amount := money(tx.Amount.Abs(), currency)
	var message string
	switch {
	case tx.Status == ledger.StatusPending:
		message = fmt.Sprintf("%s of %s is pending.", title, amount)
	case tx.Amount.IsNegative() && tx.Counterparty != "":
		message = fmt.Sprintf("%s debited from your wallet for %s.", amount, tx.Counterparty)
	case tx.Amount.IsNegative():
		message = fmt.Sprintf("%s debited from your wallet.", amount)
	case tx.Counterparty != "":
		message = fmt.Sprintf("%s credited to your wallet from %s.", amount, tx.Counterparty)
	default:
		message = fmt.Sprintf("%s credited to your wallet.", amount)
	}

	return newNotification(tx.OwnerID, title, message, map[string]string{
		"source":         "transaction",
		"transaction_id": tx.ID,
		"kind":           string(tx.Kind),
		"reference":      tx.Reference,
		"status":         string(tx.Status),
	})
}

func money(amount decimal.Decimal, currency string) string {
	if currency == "" {
		return amount.StringFixed(2)
	}
	return amount.StringFixed(2) + " " + currency
}
