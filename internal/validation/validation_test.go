package validation

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Amount       string `json:"amount" validate:"required,money"`
	Counterparty string `json:"counterparty" validate:"omitempty,max=8"`
}

func TestMoneyTag(t *testing.T) {
	v := New()
	require.NoError(t, v.Struct(sample{Amount: "10.50"}))
	require.NoError(t, v.Struct(sample{Amount: "10.500"}))

	for _, bad := range []string{"", "0", "-1", "1.005", "ten"} {
		err := v.Struct(sample{Amount: bad})
		require.Error(t, err, bad)
		assert.Contains(t, Details(err), "amount")
	}
}

func TestDetailsUsesJSONNames(t *testing.T) {
	err := New().Struct(sample{Amount: "1", Counterparty: "much-too-long"})
	require.Error(t, err)
	assert.Equal(t, map[string]string{"counterparty": "failed on 'max'"}, Details(err))
	assert.Nil(t, Details(nil))
}

func TestParseMoney(t *testing.T) {
	amount, err := ParseMoney(" 200 ")
	require.NoError(t, err)
	assert.True(t, amount.Equal(decimal.NewFromInt(200)))
}

func TestErrorMessageListsFields(t *testing.T) {
	err := New().Struct(sample{Amount: "x", Counterparty: "much-too-long"})
	assert.EqualError(t, err, "validation failed: amount, counterparty")
}
