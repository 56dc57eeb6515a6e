// Package store persists the treasury's four keyed maps: pool registrations
// per (project, pairing token), the single position handle per pool, and
// the accumulated and claimable balances per project. Implementations are
// passed by reference into the components that need them, so tests inject a
// fresh store per case.
package store

import (
	"errors"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

var (
	// ErrPoolExists guards pool-registration immutability: a (project,
	// pairing) pair is bound to a pool exactly once.
	ErrPoolExists = errors.New("store: pool already registered for pair")

	// ErrPositionExists guards the one-position-per-pool invariant.
	ErrPositionExists = errors.New("store: pool already has a position")
)

// Store is the treasury's persistent state.
type Store interface {
	// PoolOf returns the pool registered for a (project, pairing) pair.
	PoolOf(project uint64, pairing common.Address) (common.Address, bool, error)

	// SetPool registers a pool for a pair. Fails with ErrPoolExists if the
	// pair is already bound.
	SetPool(project uint64, pairing common.Address, pool common.Address) error

	// PositionOf returns the position handle recorded for a pool.
	PositionOf(pool common.Address) (uint64, bool, error)

	// SetPosition records a pool's position handle. Fails with
	// ErrPositionExists if one is already recorded.
	SetPosition(pool common.Address, position uint64) error

	// DeletePosition clears a pool's position handle. Deleting a missing
	// handle is a no-op.
	DeletePosition(pool common.Address) error

	// Accumulated returns the project's pending token balance, zero when
	// never written.
	Accumulated(project uint64) (*big.Int, error)

	// SetAccumulated overwrites the project's pending token balance.
	SetAccumulated(project uint64, amount *big.Int) error

	// Claimable returns the project's claimable fee balance, zero when
	// never written.
	Claimable(project uint64) (*big.Int, error)

	// SetClaimable overwrites the project's claimable fee balance.
	SetClaimable(project uint64, amount *big.Int) error
}

type pairKey struct {
	project uint64
	pairing common.Address
}

// Memory is the in-process Store. Zero value is not usable; call NewMemory.
type Memory struct {
	mu          sync.RWMutex
	pools       map[pairKey]common.Address
	positions   map[common.Address]uint64
	accumulated map[uint64]*big.Int
	claimable   map[uint64]*big.Int
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		pools:       make(map[pairKey]common.Address),
		positions:   make(map[common.Address]uint64),
		accumulated: make(map[uint64]*big.Int),
		claimable:   make(map[uint64]*big.Int),
	}
}

func (m *Memory) PoolOf(project uint64, pairing common.Address) (common.Address, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	pool, ok := m.pools[pairKey{project, pairing}]
	return pool, ok, nil
}

func (m *Memory) SetPool(project uint64, pairing common.Address, pool common.Address) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := pairKey{project, pairing}
	if _, ok := m.pools[key]; ok {
		return ErrPoolExists
	}
	m.pools[key] = pool
	return nil
}

func (m *Memory) PositionOf(pool common.Address) (uint64, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	position, ok := m.positions[pool]
	return position, ok, nil
}

func (m *Memory) SetPosition(pool common.Address, position uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.positions[pool]; ok {
		return ErrPositionExists
	}
	m.positions[pool] = position
	return nil
}

func (m *Memory) DeletePosition(pool common.Address) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.positions, pool)
	return nil
}

func (m *Memory) Accumulated(project uint64) (*big.Int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if amount, ok := m.accumulated[project]; ok {
		return new(big.Int).Set(amount), nil
	}
	return new(big.Int), nil
}

func (m *Memory) SetAccumulated(project uint64, amount *big.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accumulated[project] = new(big.Int).Set(amount)
	return nil
}

func (m *Memory) Claimable(project uint64) (*big.Int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if amount, ok := m.claimable[project]; ok {
		return new(big.Int).Set(amount), nil
	}
	return new(big.Int), nil
}

func (m *Memory) SetClaimable(project uint64, amount *big.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.claimable[project] = new(big.Int).Set(amount)
	return nil
}

var _ Store = (*Memory)(nil)
