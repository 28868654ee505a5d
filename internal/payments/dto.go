package payments

import (
	"github.com/congo-pay/walletcore/internal/validation"
)

type movementRequest struct {
	Amount       string `json:"amount" validate:"required,money"`
	Counterparty string `json:"counterparty" validate:"omitempty,max=128"`
	Reference    string `json:"reference" validate:"omitempty,max=128"`
}

type sendRequest struct {
	Amount       string `json:"amount" validate:"required,money"`
	Counterparty string `json:"counterparty" validate:"required,max=128"`
	Reference    string `json:"reference" validate:"omitempty,max=128"`
}

func (r sendRequest) toRequest(ownerID string) (Request, error) {
	return movementRequest(r).toRequest(ownerID)
}

func (r movementRequest) toRequest(ownerID string) (Request, error) {
	amount, err := validation.ParseMoney(r.Amount)
	if err != nil {
		return Request{}, err
	}
	return Request{OwnerID: ownerID, Amount: amount, Counterparty: r.Counterparty, Reference: r.Reference}, nil
}
