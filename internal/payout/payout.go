// Package payout holds the settlement arithmetic for both trade kinds. Every function
// here is pure and returns deltas that sum to exactly zero.
package payout

import (
	"math"

	"github.com/shopspring/decimal"
)

// Deltas are kept within ±math.MaxInt64 so every delta has an int64 negation.
var (
	maxDelta = decimal.NewFromInt(math.MaxInt64)
	minDelta = maxDelta.Neg()
)

// Binary returns the balance deltas for a binary trade.
// On YES party A wins party B's stake, on NO party B wins party A's stake.
func Binary(stakeA, stakeB int64, outcome bool) (deltaA, deltaB int64) {
	if outcome {
		return stakeB, -stakeB
	}
	return -stakeA, stakeA
}

// Underlying returns the exact PnL of the long and short sides:
// lotSize * (settlementPrice - tradePrice) for the long party, its negation for the short.
func Underlying(lotSize, tradePrice, settlementPrice decimal.Decimal) (deltaLong, deltaShort decimal.Decimal) {
	pnl := lotSize.Mul(settlementPrice.Sub(tradePrice))
	return pnl, pnl.Neg()
}

// Minimarbles rounds an amount to whole minimarbles, half away from zero.
// Rounding is symmetric, so Minimarbles(d.Neg()) == -Minimarbles(d).
// ok is false when the rounded amount does not fit in ±math.MaxInt64.
func Minimarbles(amount decimal.Decimal) (minimarbles int64, ok bool) {
	rounded := amount.Round(0)
	if rounded.GreaterThan(maxDelta) || rounded.LessThan(minDelta) {
		return 0, false
	}
	return rounded.IntPart(), true
}

// UnderlyingMinimarbles is Underlying rounded for application to integer balances.
// The short delta is derived from the rounded long delta so the transfer stays zero-sum.
// ok is false when the PnL is too large to represent in minimarbles.
func UnderlyingMinimarbles(lotSize, tradePrice, settlementPrice decimal.Decimal) (deltaLong, deltaShort int64, ok bool) {
	long, _ := Underlying(lotSize, tradePrice, settlementPrice)
	deltaLong, ok = Minimarbles(long)
	if !ok {
		return 0, 0, false
	}
	return deltaLong, -deltaLong, true
}

// Apply adds delta to balance. ok is false if the result would overflow int64.
func Apply(balance, delta int64) (result int64, ok bool) {
	if (delta > 0 && balance > math.MaxInt64-delta) || (delta < 0 && balance < math.MinInt64-delta) {
		return 0, false
	}
	return balance + delta, true
}
