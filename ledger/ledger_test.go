package ledger

import (
	"context"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/defistate/liquidity-treasury-go/store"
)

const project = uint64(11)

func TestAccumulationConservation(t *testing.T) {
	l := NewAccumulationLedger(store.NewMemory())

	sum := new(big.Int)
	for _, a := range []int64{5, 0, 120, 1, 99} {
		require.NoError(t, l.Accumulate(project, big.NewInt(a)))
		sum.Add(sum, big.NewInt(a))
	}

	balance, err := l.Balance(project)
	require.NoError(t, err)
	assert.Zero(t, sum.Cmp(balance))

	drained, err := l.Drain(project)
	require.NoError(t, err)
	assert.Zero(t, sum.Cmp(drained))

	// every drain thereafter returns zero until accumulated again
	drained, err = l.Drain(project)
	require.NoError(t, err)
	assert.Zero(t, drained.Sign())

	require.NoError(t, l.Accumulate(project, big.NewInt(7)))
	drained, err = l.Drain(project)
	require.NoError(t, err)
	assert.Zero(t, big.NewInt(7).Cmp(drained))
}

func TestAccumulateRejectsNegative(t *testing.T) {
	l := NewAccumulationLedger(store.NewMemory())
	assert.ErrorIs(t, l.Accumulate(project, big.NewInt(-1)), ErrNegativeAmount)
}

func TestClaimPaysOnceUnderReentry(t *testing.T) {
	l := NewClaimsLedger(store.NewMemory())
	require.NoError(t, l.Credit(project, big.NewInt(400)))

	var payouts []*big.Int
	var pay func(ctx context.Context, amount *big.Int) error
	reentered := false
	pay = func(ctx context.Context, amount *big.Int) error {
		payouts = append(payouts, amount)
		if !reentered {
			reentered = true
			// a re-entrant claim must observe a zero balance and pay nothing
			inner, err := l.Claim(ctx, project, pay)
			require.NoError(t, err)
			assert.Zero(t, inner.Sign())
		}
		return nil
	}

	paid, err := l.Claim(context.Background(), project, pay)
	require.NoError(t, err)
	assert.Zero(t, big.NewInt(400).Cmp(paid))
	require.Len(t, payouts, 1)

	balance, err := l.Balance(project)
	require.NoError(t, err)
	assert.Zero(t, balance.Sign())
}

func TestClaimZeroBalanceIsNoOp(t *testing.T) {
	l := NewClaimsLedger(store.NewMemory())
	called := false
	paid, err := l.Claim(context.Background(), project, func(context.Context, *big.Int) error {
		called = true
		return nil
	})
	require.NoError(t, err)
	assert.Zero(t, paid.Sign())
	assert.False(t, called)
}

func TestClaimRestoresBalanceOnFailedTransfer(t *testing.T) {
	l := NewClaimsLedger(store.NewMemory())
	require.NoError(t, l.Credit(project, big.NewInt(90)))

	_, err := l.Claim(context.Background(), project, func(context.Context, *big.Int) error {
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)

	balance, err := l.Balance(project)
	require.NoError(t, err)
	assert.Zero(t, big.NewInt(90).Cmp(balance))
}
