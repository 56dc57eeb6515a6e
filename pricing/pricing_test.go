package pricing

import (
	"context"
	"math/big"
	"math/rand"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/defistate/liquidity-treasury-go/external"
	"github.com/defistate/liquidity-treasury-go/external/mock"
	"github.com/defistate/liquidity-treasury-go/pricing/tickmath"
)

var pairing = common.HexToAddress("0x20")

// randomAmount draws uniformly across magnitudes in [1, 10^30].
func randomAmount(rng *rand.Rand) *big.Int {
	exp := rng.Intn(31)
	base := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(exp)), nil)
	n := new(big.Int).Rand(rng, base)
	return n.Add(n, big.NewInt(1))
}

func TestRateRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 300; i++ {
		in := randomAmount(rng)
		weight := randomAmount(rng)
		ratio := randomAmount(rng)

		project, err := ProjectTokensOut(in, weight, ratio)
		require.NoError(t, err)
		back, err := PairingTokensOut(project, weight, ratio)
		require.NoError(t, err)

		// one unit of truncation per hop
		diff := new(big.Int).Sub(in, back)
		assert.True(t, diff.Sign() >= 0, "round trip overshot: in=%s back=%s", in, back)
		// back = floor(floor(in*w/r)*r/w) >= in - r/w - 1; bound the loss by
		// the per-hop truncation scaled into input units.
		maxLoss := new(big.Int).Div(ratio, weight)
		maxLoss.Add(maxLoss, big.NewInt(1))
		assert.True(t, diff.Cmp(maxLoss) <= 0, "in=%s w=%s r=%s diff=%s", in, weight, ratio, diff)
	}
}

func TestRateRejectsZeroDenominators(t *testing.T) {
	_, err := ProjectTokensOut(big.NewInt(1), big.NewInt(1), new(big.Int))
	assert.ErrorIs(t, err, ErrZeroWeightRatio)

	_, err = PairingTokensOut(big.NewInt(1), new(big.Int), big.NewInt(1))
	assert.ErrorIs(t, err, ErrZeroWeight)
}

func TestDiscountedWeight(t *testing.T) {
	weight := big.NewInt(1_000_000)
	assert.Zero(t, big.NewInt(1_000_000).Cmp(DiscountedWeight(weight, 0)))
	assert.Zero(t, big.NewInt(500_000).Cmp(DiscountedWeight(weight, 5_000)))
	assert.Zero(t, DiscountedWeight(weight, 10_000).Sign())
	// out-of-range reserved percent saturates rather than underflowing
	assert.Zero(t, DiscountedWeight(weight, 20_000).Sign())
}

func TestSqrtPriceX96Bounds(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	for i := 0; i < 200; i++ {
		amount0 := randomAmount(rng)
		amount1 := randomAmount(rng)

		sqrtPrice, err := SqrtPriceX96(amount0, amount1)
		require.NoError(t, err)

		// sqrtPrice^2 / 2^192 ~= amount1/amount0 within integer rounding:
		// sqrtPrice = isqrt(floor(amount1<<192/amount0)), so squaring must
		// bracket the true scaled ratio.
		scaled := new(big.Int).Lsh(amount1, 192)
		scaled.Div(scaled, amount0)
		square := new(big.Int).Mul(sqrtPrice, sqrtPrice)
		next := new(big.Int).Add(sqrtPrice, big.NewInt(1))
		next.Mul(next, next)
		assert.True(t, square.Cmp(scaled) <= 0, "amount0=%s amount1=%s", amount0, amount1)
		assert.True(t, next.Cmp(scaled) > 0, "amount0=%s amount1=%s", amount0, amount1)
	}
}

func TestSqrtPriceTickBracketing(t *testing.T) {
	rng := rand.New(rand.NewSource(13))
	for i := 0; i < 100; i++ {
		amount0 := randomAmount(rng)
		amount1 := randomAmount(rng)

		sqrtPrice, err := SqrtPriceX96(amount0, amount1)
		require.NoError(t, err)
		tick, err := tickmath.TickAtSqrtRatio(sqrtPrice)
		require.NoError(t, err)

		// the tick's sqrt ratio is <= the price, the next tick's is above
		atTick := new(big.Int)
		require.NoError(t, tickmath.SqrtRatioAtTick(atTick, tick))
		assert.True(t, atTick.Cmp(sqrtPrice) <= 0)

		above := new(big.Int)
		require.NoError(t, tickmath.SqrtRatioAtTick(above, tick+1))
		assert.True(t, above.Cmp(sqrtPrice) > 0)
	}
}

func TestSqrtPriceX96RejectsZero(t *testing.T) {
	_, err := SqrtPriceX96(new(big.Int), big.NewInt(1))
	assert.ErrorIs(t, err, ErrZeroAmount)
	_, err = SqrtPriceX96(big.NewInt(1), new(big.Int))
	assert.ErrorIs(t, err, ErrZeroAmount)
}

func TestSqrtPriceX96ForRateOrientation(t *testing.T) {
	rate := Rate{Project: big.NewInt(4), Pairing: big.NewInt(1)}

	// project as token0: price token1/token0 = 1/4, sqrt = 2^96/2
	p0, err := SqrtPriceX96ForRate(rate, true)
	require.NoError(t, err)
	assert.Zero(t, new(big.Int).Rsh(Q96, 1).Cmp(p0))

	// project as token1: price = 4, sqrt = 2*2^96
	p1, err := SqrtPriceX96ForRate(rate, false)
	require.NoError(t, err)
	assert.Zero(t, new(big.Int).Lsh(Q96, 1).Cmp(p1))
}

func newQuoterFixture(t *testing.T) (*mock.System, *Quoter) {
	t.Helper()
	sys := mock.NewSystem()
	sys.AddToken(pairing, 6, 2) // e.g. a 6-decimal stable in currency 2
	return sys, NewQuoter(sys)
}

func TestWeightRatio(t *testing.T) {
	ctx := context.Background()

	t.Run("same currency uses the pairing unit", func(t *testing.T) {
		_, q := newQuoterFixture(t)
		rec := external.IssuanceRecord{Weight: big.NewInt(1), BaseCurrency: 2}
		ratio := q.WeightRatio(ctx, rec, pairing)
		assert.Zero(t, big.NewInt(1_000_000).Cmp(ratio))
	})

	t.Run("different currency uses the conversion", func(t *testing.T) {
		sys, q := newQuoterFixture(t)
		rec := external.IssuanceRecord{Weight: big.NewInt(1), BaseCurrency: 1}
		sys.SetPrice(2, 1, big.NewInt(3_000_000)) // 3 base per pairing unit
		ratio := q.WeightRatio(ctx, rec, pairing)
		assert.Zero(t, big.NewInt(3_000_000).Cmp(ratio))
	})

	t.Run("missing conversion falls back to the unit", func(t *testing.T) {
		_, q := newQuoterFixture(t)
		rec := external.IssuanceRecord{Weight: big.NewInt(1), BaseCurrency: 9}
		ratio := q.WeightRatio(ctx, rec, pairing)
		assert.Zero(t, big.NewInt(1_000_000).Cmp(ratio))
	})

	t.Run("unknown token falls back to 18 decimals", func(t *testing.T) {
		_, q := newQuoterFixture(t)
		rec := external.IssuanceRecord{Weight: big.NewInt(1), BaseCurrency: 2}
		ratio := q.WeightRatio(ctx, rec, common.HexToAddress("0x99"))
		assert.Zero(t, ProjectTokenUnit.Cmp(ratio))
	})
}

func TestIssuanceRate(t *testing.T) {
	_, q := newQuoterFixture(t)
	rec := external.IssuanceRecord{
		Weight:          new(big.Int).Mul(big.NewInt(2), external.WeightScale),
		ReservedPercent: 5_000,
		BaseCurrency:    2,
	}

	rate, err := q.IssuanceRate(context.Background(), rec, rec.Weight, pairing)
	require.NoError(t, err)

	// weight 2e18 discounted 50% => 1 project token per pairing unit
	assert.Zero(t, external.WeightScale.Cmp(rate.Project))
	assert.Zero(t, big.NewInt(1_000_000).Cmp(rate.Pairing))
}

func TestCashOutRate(t *testing.T) {
	ctx := context.Background()
	const project = uint64(3)

	t.Run("uses the reclaim quote", func(t *testing.T) {
		sys, q := newQuoterFixture(t)
		p := sys.AddProject(project, common.HexToAddress("0x01"))
		p.CashOutNum = big.NewInt(1)
		p.CashOutDen = big.NewInt(2)
		rec := external.IssuanceRecord{Weight: external.WeightScale, BaseCurrency: 2}

		rate, err := q.CashOutRate(ctx, project, rec, pairing)
		require.NoError(t, err)
		assert.Zero(t, ProjectTokenUnit.Cmp(rate.Project))
		assert.Zero(t, new(big.Int).Rsh(ProjectTokenUnit, 1).Cmp(rate.Pairing))
	})

	t.Run("falls back to the inverse weight ratio", func(t *testing.T) {
		sys, q := newQuoterFixture(t)
		p := sys.AddProject(project, common.HexToAddress("0x01"))
		p.SurplusErr = assert.AnError
		rec := external.IssuanceRecord{Weight: external.WeightScale, BaseCurrency: 2}

		rate, err := q.CashOutRate(ctx, project, rec, pairing)
		require.NoError(t, err)
		// weight 1e18 over ratio 1e6: one project token redeems one pairing unit
		assert.Zero(t, big.NewInt(1_000_000).Cmp(rate.Pairing))
	})
}

func TestQuoteFromSqrtX96(t *testing.T) {
	// price 4 at equal decimals renders as 4
	sqrtPrice := new(big.Int).Lsh(Q96, 1)
	quote := QuoteFromSqrtX96(sqrtPrice, 18, 18)
	assert.True(t, quote.Equal(quote.Truncate(0)), "expected whole number, got %s", quote)
	assert.Equal(t, "4", quote.String())
}

func TestQuoteRate(t *testing.T) {
	// two whole 6-decimal pairing units per whole project token
	rate := Rate{
		Project: new(big.Int).Set(ProjectTokenUnit),
		Pairing: big.NewInt(2_000_000),
	}
	assert.Equal(t, "2", QuoteRate(rate, 6).String())

	assert.True(t, QuoteRate(Rate{}, 6).IsZero())
}

func TestPairingDecimals(t *testing.T) {
	ctx := context.Background()
	_, q := newQuoterFixture(t)

	assert.EqualValues(t, 6, q.PairingDecimals(ctx, pairing))
	// unknown token falls back to 18
	assert.EqualValues(t, 18, q.PairingDecimals(ctx, common.HexToAddress("0x99")))
}
