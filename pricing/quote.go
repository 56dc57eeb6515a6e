package pricing

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// quotePrecision bounds the decimal division when rendering quotes.
const quotePrecision = 24

// QuoteFromSqrtX96 renders a Q64.96 sqrt price as the human-readable price
// of one whole token0 in token1, adjusted for token decimals. Display only;
// nothing downstream may consume this value.
func QuoteFromSqrtX96(sqrtPriceX96 *big.Int, decimals0, decimals1 int32) decimal.Decimal {
	s := decimal.NewFromBigInt(sqrtPriceX96, 0).DivRound(decimal.NewFromBigInt(Q96, 0), quotePrecision)
	return s.Mul(s).Shift(decimals0 - decimals1)
}

// QuoteRate renders a Rate as whole pairing tokens per whole project token.
func QuoteRate(rate Rate, pairingDecimals int32) decimal.Decimal {
	if rate.Project == nil || rate.Project.Sign() == 0 {
		return decimal.Zero
	}
	pairing := decimal.NewFromBigInt(rate.Pairing, -pairingDecimals)
	project := decimal.NewFromBigInt(rate.Project, -18)
	return pairing.DivRound(project, quotePrecision)
}
