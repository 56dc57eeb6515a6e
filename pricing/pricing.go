// Package pricing converts the host ledger's issuance-weight curve into the
// AMM venue's price coordinates. Every path here is exact integer
// arithmetic: rates are multiply-then-divide with truncation toward zero,
// and sqrt prices come from an integer square root. No floats, anywhere.
package pricing

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/defistate/liquidity-treasury-go/external"
)

var (
	// Q96 is the venue's fixed-point scale for sqrt prices.
	Q96 = new(big.Int).Lsh(big.NewInt(1), 96)

	// ProjectTokenUnit is one whole project token. Project tokens carry the
	// ledger's fixed 18-decimal precision.
	ProjectTokenUnit = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

	ErrZeroWeight      = errors.New("issuance weight must be greater than zero")
	ErrZeroWeightRatio = errors.New("weight ratio must be greater than zero")
	ErrZeroAmount      = errors.New("amount must be greater than zero")
)

// ProjectTokensOut returns the project tokens issued for an amount of
// pairing token: in * weight / weightRatio, truncated toward zero.
func ProjectTokensOut(in, weight, weightRatio *big.Int) (*big.Int, error) {
	if weightRatio.Sign() <= 0 {
		return nil, ErrZeroWeightRatio
	}
	out := new(big.Int).Mul(in, weight)
	return out.Div(out, weightRatio), nil
}

// PairingTokensOut inverts ProjectTokensOut: the pairing tokens equivalent
// to an amount of project tokens at the same weight and ratio.
func PairingTokensOut(in, weight, weightRatio *big.Int) (*big.Int, error) {
	if weight.Sign() <= 0 {
		return nil, ErrZeroWeight
	}
	out := new(big.Int).Mul(in, weightRatio)
	return out.Div(out, weight), nil
}

// DiscountedWeight removes the protocol's reserved fraction from a weight:
// weight * (max - reservedPercent) / max.
func DiscountedWeight(weight *big.Int, reservedPercent uint64) *big.Int {
	if reservedPercent > external.MaxReservedPercent {
		reservedPercent = external.MaxReservedPercent
	}
	out := new(big.Int).Mul(weight, new(big.Int).SetUint64(external.MaxReservedPercent-reservedPercent))
	return out.Div(out, new(big.Int).SetUint64(external.MaxReservedPercent))
}

// SqrtPriceX96 encodes the price amount1/amount0 as the venue's Q64.96 sqrt
// price: isqrt(amount1 << 192 / amount0).
func SqrtPriceX96(amount0, amount1 *big.Int) (*big.Int, error) {
	if amount0.Sign() <= 0 || amount1.Sign() <= 0 {
		return nil, ErrZeroAmount
	}
	ratio := new(big.Int).Lsh(amount1, 192)
	ratio.Div(ratio, amount0)
	return ratio.Sqrt(ratio), nil
}

// Rate is a notional exchange: Project project tokens for Pairing pairing
// tokens. Both sides are raw token units.
type Rate struct {
	Project *big.Int
	Pairing *big.Int
}

// SqrtPriceX96ForRate encodes a rate as a pool sqrt price, orienting the
// amounts by which side of the pair the project token sits on.
func SqrtPriceX96ForRate(rate Rate, projectIsToken0 bool) (*big.Int, error) {
	if projectIsToken0 {
		return SqrtPriceX96(rate.Project, rate.Pairing)
	}
	return SqrtPriceX96(rate.Pairing, rate.Project)
}

// Quoter derives the treasury's pricing inputs from the issuance ledger.
// Auxiliary lookups that fail (decimals, currency conversion, reclaimable
// surplus) are replaced by documented fallbacks at the call site so the
// pricing path never reverts an otherwise valid transfer.
type Quoter struct {
	ledger external.IssuanceLedger
}

// NewQuoter returns a Quoter reading from the given ledger.
func NewQuoter(ledger external.IssuanceLedger) *Quoter {
	return &Quoter{ledger: ledger}
}

// PairingDecimals returns the pairing token's decimal precision, falling
// back to 18 when the ledger cannot report it.
func (q *Quoter) PairingDecimals(ctx context.Context, pairing common.Address) int32 {
	decimals, err := q.ledger.DecimalsOf(ctx, pairing)
	if err != nil {
		return 18
	}
	return int32(decimals)
}

// PairingUnit returns one whole pairing token at PairingDecimals precision.
func (q *Quoter) PairingUnit(ctx context.Context, pairing common.Address) *big.Int {
	decimals := q.PairingDecimals(ctx, pairing)
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
}

// WeightRatio returns the normalizer dividing the issuance weight: one whole
// pairing token when the pairing token is priced in the record's base
// currency, otherwise the ledger's conversion of one pairing unit into the
// base currency. A failed conversion lookup falls back to the plain unit.
func (q *Quoter) WeightRatio(ctx context.Context, rec external.IssuanceRecord, pairing common.Address) *big.Int {
	unit := q.PairingUnit(ctx, pairing)

	currency, err := q.ledger.CurrencyOf(ctx, pairing)
	if err != nil || currency == rec.BaseCurrency {
		return unit
	}

	decimals := int64(len(unit.String()) - 1) // unit is a power of ten
	price, err := q.ledger.PricePerUnitOf(ctx, currency, rec.BaseCurrency, uint8(decimals))
	if err != nil || price.Sign() <= 0 {
		return unit
	}
	return price
}

// IssuanceRate is the price ceiling: the project tokens minted per whole
// pairing token at the given weight, discounted by the reserved fraction.
func (q *Quoter) IssuanceRate(ctx context.Context, rec external.IssuanceRecord, weight *big.Int, pairing common.Address) (Rate, error) {
	ratio := q.WeightRatio(ctx, rec, pairing)
	unit := q.PairingUnit(ctx, pairing)

	project, err := ProjectTokensOut(unit, DiscountedWeight(weight, rec.ReservedPercent), ratio)
	if err != nil {
		return Rate{}, err
	}
	if project.Sign() <= 0 {
		return Rate{}, ErrZeroWeight
	}
	return Rate{Project: project, Pairing: unit}, nil
}

// CashOutRate is the price floor: the pairing tokens returned per whole
// project token by the ledger's reclaim-surplus quote. When the quote fails
// or reports nothing reclaimable, the rate falls back to the inverse of the
// raw weight ratio.
func (q *Quoter) CashOutRate(ctx context.Context, project uint64, rec external.IssuanceRecord, pairing common.Address) (Rate, error) {
	out, err := q.ledger.ReclaimableSurplusOf(ctx, project, ProjectTokenUnit, pairing)
	if err == nil && out != nil && out.Sign() > 0 {
		return Rate{Project: new(big.Int).Set(ProjectTokenUnit), Pairing: out}, nil
	}

	ratio := q.WeightRatio(ctx, rec, pairing)
	pairingOut, err := PairingTokensOut(ProjectTokenUnit, rec.Weight, ratio)
	if err != nil {
		return Rate{}, err
	}
	if pairingOut.Sign() <= 0 {
		pairingOut = big.NewInt(1) // floor of one raw unit keeps the rate encodable
	}
	return Rate{Project: new(big.Int).Set(ProjectTokenUnit), Pairing: pairingOut}, nil
}
