package service

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestComputePlan(t *testing.T) {
	tests := []struct {
		gross  string
		fee    string
		seller string
	}{
		{"100", "2", "98"},
		{"1", "0.02", "0.98"},
		{"0.00000001", "0", "0.00000001"},
		{"0.00000050", "0.00000001", "0.00000049"},
		{"12.34567891", "0.24691357", "12.09876534"},
		{"99999999.99999999", "1999999.99999999", "98000000"},
	}

	for _, tt := range tests {
		t.Run(tt.gross, func(t *testing.T) {
			plan, err := ComputePlan(dec(tt.gross))
			require.NoError(t, err)

			assert.True(t, dec(tt.fee).Equal(plan.FeeAmount), "fee %s", plan.FeeAmount)
			assert.True(t, dec(tt.seller).Equal(plan.SellerAmount), "seller %s", plan.SellerAmount)
			assert.True(t, plan.FeeAmount.Add(plan.SellerAmount).Equal(plan.GrossPrice))
		})
	}
}

func TestComputePlan_RejectsInvalidPrices(t *testing.T) {
	for _, p := range []string{"0", "-1", "1.000000001"} {
		_, err := ComputePlan(dec(p))
		assert.ErrorIs(t, err, ErrInvalidPrice, p)
	}
}

func TestWithinTolerance(t *testing.T) {
	listed := dec("100")

	assert.True(t, WithinTolerance(dec("100"), listed))
	assert.True(t, WithinTolerance(dec("100.01"), listed))
	assert.True(t, WithinTolerance(dec("99.99"), listed))
	assert.False(t, WithinTolerance(dec("100.02"), listed))
	assert.False(t, WithinTolerance(dec("99.98"), listed))
}
