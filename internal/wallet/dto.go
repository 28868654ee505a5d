package wallet

import (
	"time"

	"github.com/congo-pay/walletcore/internal/ledger"
)

// Response is the JSON view of a wallet.
type Response struct {
	OwnerID   string    `json:"owner_id"`
	Balance   string    `json:"balance"`
	Currency  string    `json:"currency"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TransactionResponse is the JSON view of a ledger row.
type TransactionResponse struct {
	ID           string    `json:"id"`
	Kind         string    `json:"kind"`
	Amount       string    `json:"amount"`
	Counterparty string    `json:"counterparty,omitempty"`
	Reference    string    `json:"reference,omitempty"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
}

func ToResponse(w ledger.Wallet) Response {
	return Response{
		OwnerID:   w.OwnerID,
		Balance:   w.Balance.StringFixed(2),
		Currency:  w.Currency,
		UpdatedAt: w.UpdatedAt,
	}
}

func ToTransactionResponse(tx ledger.Transaction) TransactionResponse {
	return TransactionResponse{
		ID:           tx.ID,
		Kind:         string(tx.Kind),
		Amount:       tx.Amount.StringFixed(2),
		Counterparty: tx.Counterparty,
		Reference:    tx.Reference,
		Status:       string(tx.Status),
		CreatedAt:    tx.CreatedAt,
	}
}

func ToTransactionResponses(txs []ledger.Transaction) []TransactionResponse {
	out := make([]TransactionResponse, 0, len(txs))
	for _, tx := range txs {
		out = append(out, ToTransactionResponse(tx))
	}
	return out
}
