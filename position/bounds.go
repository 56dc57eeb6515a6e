package position

import (
	"math/big"

	"github.com/defistate/liquidity-treasury-go/pricing"
	"github.com/defistate/liquidity-treasury-go/pricing/tickmath"
)

// clampSqrt pulls a sqrt price into the venue's valid range so an extreme
// rate degrades to the edge tick instead of failing the deployment.
func clampSqrt(sqrtPriceX96 *big.Int) *big.Int {
	if sqrtPriceX96.Cmp(tickmath.MinSqrtRatio) < 0 {
		return new(big.Int).Set(tickmath.MinSqrtRatio)
	}
	max := new(big.Int).Sub(tickmath.MaxSqrtRatio, big.NewInt(1))
	if sqrtPriceX96.Cmp(max) >= 0 {
		return max
	}
	return sqrtPriceX96
}

func tickForRate(rate pricing.Rate, projectIsToken0 bool) (int64, error) {
	sqrtPrice, err := pricing.SqrtPriceX96ForRate(rate, projectIsToken0)
	if err != nil {
		return 0, err
	}
	return tickmath.TickAtSqrtRatio(clampSqrt(sqrtPrice))
}

// bounds computes the position's tick range. The cash-out rate is the price
// floor and the issuance rate the ceiling; which tick ends up lower depends
// on which side of the pair the project token sits on, so the pair is
// ordered after conversion. Each bound is rounded to the nearest usable
// tick; if rounding collapses or inverts the range, the position falls back
// to a symmetric band of fallbackBand spacing units around the spot tick.
func bounds(cashOut, issuanceRate pricing.Rate, projectIsToken0 bool, spotTick, spacing, fallbackBand int64) (lower, upper int64, err error) {
	tickA, err := tickForRate(cashOut, projectIsToken0)
	if err != nil {
		return 0, 0, err
	}
	tickB, err := tickForRate(issuanceRate, projectIsToken0)
	if err != nil {
		return 0, 0, err
	}

	if tickA > tickB {
		tickA, tickB = tickB, tickA
	}
	lower, err = tickmath.NearestUsableTick(tickA, spacing)
	if err != nil {
		return 0, 0, err
	}
	upper, err = tickmath.NearestUsableTick(tickB, spacing)
	if err != nil {
		return 0, 0, err
	}

	if lower >= upper {
		spot, err := tickmath.NearestUsableTick(spotTick, spacing)
		if err != nil {
			return 0, 0, err
		}
		minUsable := (tickmath.MinTick / spacing) * spacing
		maxUsable := (tickmath.MaxTick / spacing) * spacing
		lower = spot - fallbackBand*spacing
		upper = spot + fallbackBand*spacing
		if lower < minUsable {
			lower = minUsable
		}
		if upper > maxUsable {
			upper = maxUsable
		}
		if lower >= upper {
			lower = upper - spacing
		}
	}
	return lower, upper, nil
}
