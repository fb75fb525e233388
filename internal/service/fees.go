package service

import (
	"github.com/shopspring/decimal"
)

// FeePercent is the platform's share of every sale
const FeePercent = 2

// ledgerDecimals is the precision of the ledger's smallest unit (tinybar)
const ledgerDecimals = 8

var feeRate = decimal.NewFromInt(FeePercent).Div(decimal.NewFromInt(100))

// PriceTolerance is the largest drift between the price a buyer saw and the
// listed price that is still accepted
var PriceTolerance = decimal.RequireFromString("0.01")

// SettlementPlan splits a gross price into the platform fee and the seller's
// proceeds. FeeAmount + SellerAmount == GrossPrice exactly.
type SettlementPlan struct {
	GrossPrice   decimal.Decimal
	FeeAmount    decimal.Decimal
	SellerAmount decimal.Decimal
}

// ComputePlan derives the settlement split for a gross price. The fee is
// rounded down to ledger precision and the seller receives the remainder.
func ComputePlan(grossPrice decimal.Decimal) (SettlementPlan, error) {
	if !grossPrice.IsPositive() || !grossPrice.Equal(grossPrice.Truncate(ledgerDecimals)) {
		return SettlementPlan{}, ErrInvalidPrice
	}

	fee := grossPrice.Mul(feeRate).Truncate(ledgerDecimals)
	return SettlementPlan{
		GrossPrice:   grossPrice,
		FeeAmount:    fee,
		SellerAmount: grossPrice.Sub(fee),
	}, nil
}

// WithinTolerance reports whether expected is close enough to listed
func WithinTolerance(expected, listed decimal.Decimal) bool {
	return expected.Sub(listed).Abs().LessThanOrEqual(PriceTolerance)
}
