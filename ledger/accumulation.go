// Package ledger keeps the treasury's two per-project balances: project
// tokens accumulated while awaiting deployment, and fee-project tokens
// claimable by a project's operator. Both sit on a store.Store and guard
// their read-modify-write cycles with a mutex, since the underlying store
// only promises per-call safety.
package ledger

import (
	"errors"
	"math/big"
	"sync"

	"github.com/defistate/liquidity-treasury-go/store"
)

// ErrNegativeAmount rejects negative increments; balances never go below
// zero.
var ErrNegativeAmount = errors.New("ledger: amount must not be negative")

// AccumulationLedger tracks project tokens held in trust while a project is
// in accumulation stage.
type AccumulationLedger struct {
	mu    sync.Mutex
	store store.Store
}

// NewAccumulationLedger returns a ledger backed by the given store.
func NewAccumulationLedger(s store.Store) *AccumulationLedger {
	return &AccumulationLedger{store: s}
}

// Accumulate adds amount to the project's pending balance. A zero amount is
// a legal call with no observable effect.
func (l *AccumulationLedger) Accumulate(project uint64, amount *big.Int) error {
	if amount.Sign() < 0 {
		return ErrNegativeAmount
	}
	if amount.Sign() == 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	balance, err := l.store.Accumulated(project)
	if err != nil {
		return err
	}
	return l.store.SetAccumulated(project, balance.Add(balance, amount))
}

// Drain returns the project's pending balance and resets it to zero in the
// same critical section.
func (l *AccumulationLedger) Drain(project uint64) (*big.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	balance, err := l.store.Accumulated(project)
	if err != nil {
		return nil, err
	}
	if balance.Sign() == 0 {
		return balance, nil
	}
	if err := l.store.SetAccumulated(project, new(big.Int)); err != nil {
		return nil, err
	}
	return balance, nil
}

// Balance reads the pending balance without modifying it.
func (l *AccumulationLedger) Balance(project uint64) (*big.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.store.Accumulated(project)
}
