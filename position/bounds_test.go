package position

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/defistate/liquidity-treasury-go/pricing"
	"github.com/defistate/liquidity-treasury-go/pricing/tickmath"
)

func wholeRate(project, pairing int64) pricing.Rate {
	return pricing.Rate{Project: scale(project), Pairing: scale(pairing)}
}

func TestBoundsOrdersTicksByOrientation(t *testing.T) {
	cashOut := wholeRate(1, 1)   // one pairing token back per project token
	issuance := wholeRate(50, 1) // fifty project tokens per pairing token

	t.Run("project as token0", func(t *testing.T) {
		lower, upper, err := bounds(cashOut, issuance, true, 0, 60, 10)
		require.NoError(t, err)
		// the issuance rate is the cheaper project-token price, which for
		// token0 means the lower tick
		assert.EqualValues(t, 0, upper)
		assert.Less(t, lower, int64(-39_000))
		assert.Greater(t, lower, int64(-39_200))
		assert.Zero(t, lower%60)
	})

	t.Run("project as token1", func(t *testing.T) {
		lower, upper, err := bounds(cashOut, issuance, false, 0, 60, 10)
		require.NoError(t, err)
		assert.EqualValues(t, 0, lower)
		assert.Greater(t, upper, int64(39_000))
		assert.Less(t, upper, int64(39_200))
		assert.Zero(t, upper%60)
	})
}

func TestBoundsFallbackBand(t *testing.T) {
	same := wholeRate(1, 1)

	t.Run("collapsed range centers on spot", func(t *testing.T) {
		lower, upper, err := bounds(same, same, true, 123, 60, 10)
		require.NoError(t, err)
		assert.EqualValues(t, -480, lower) // 120 - 10*60
		assert.EqualValues(t, 720, upper)  // 120 + 10*60
	})

	t.Run("band clamps at the usable extremes", func(t *testing.T) {
		lower, upper, err := bounds(same, same, true, tickmath.MaxTick, 60, 10)
		require.NoError(t, err)
		assert.EqualValues(t, 887_220, upper)
		assert.EqualValues(t, 886_620, lower)
	})
}

func TestBoundsClampsExtremeRates(t *testing.T) {
	// A cash-out rate this poor encodes below the venue's minimum sqrt
	// price; the bound degrades to the edge tick instead of failing.
	worthless := pricing.Rate{
		Project: new(big.Int).Exp(big.NewInt(10), big.NewInt(40), nil),
		Pairing: big.NewInt(1),
	}
	issuance := wholeRate(50, 1)

	lower, upper, err := bounds(worthless, issuance, true, 0, 60, 10)
	require.NoError(t, err)
	assert.EqualValues(t, -887_220, lower)
	assert.Less(t, upper, int64(0))
}
