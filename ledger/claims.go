package ledger

import (
	"context"
	"math/big"
	"sync"

	"github.com/defistate/liquidity-treasury-go/store"
)

// ClaimsLedger tracks fee-project tokens owed to each project's operator.
// Claim zeroes the balance before any external call is made, so a
// re-entrant or concurrent claim observes zero and pays nothing.
type ClaimsLedger struct {
	mu    sync.Mutex
	store store.Store
}

// NewClaimsLedger returns a ledger backed by the given store.
func NewClaimsLedger(s store.Store) *ClaimsLedger {
	return &ClaimsLedger{store: s}
}

// Credit adds routed fee proceeds to the project's claimable balance.
func (l *ClaimsLedger) Credit(project uint64, amount *big.Int) error {
	if amount.Sign() < 0 {
		return ErrNegativeAmount
	}
	if amount.Sign() == 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	balance, err := l.store.Claimable(project)
	if err != nil {
		return err
	}
	return l.store.SetClaimable(project, balance.Add(balance, amount))
}

// Balance reads the claimable balance without modifying it.
func (l *ClaimsLedger) Balance(project uint64) (*big.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.store.Claimable(project)
}

// Claim zeroes the claimable balance, then invokes pay with the amount that
// was owed. The zero happens strictly before pay so a payout fires at most
// once; if pay fails the balance is restored, relying on the external
// contract that a failed transfer moves nothing. A zero balance is a legal
// no-op and pay is not invoked.
func (l *ClaimsLedger) Claim(ctx context.Context, project uint64, pay func(ctx context.Context, amount *big.Int) error) (*big.Int, error) {
	l.mu.Lock()
	amount, err := l.store.Claimable(project)
	if err != nil {
		l.mu.Unlock()
		return nil, err
	}
	if amount.Sign() == 0 {
		l.mu.Unlock()
		return amount, nil
	}
	if err := l.store.SetClaimable(project, new(big.Int)); err != nil {
		l.mu.Unlock()
		return nil, err
	}
	l.mu.Unlock()

	if err := pay(ctx, amount); err != nil {
		// Transfer moved nothing; put the balance back.
		if creditErr := l.Credit(project, amount); creditErr != nil {
			return nil, creditErr
		}
		return nil, err
	}
	return amount, nil
}
