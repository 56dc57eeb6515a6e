package mock

import (
	"context"
	"errors"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/defistate/liquidity-treasury-go/external"
)

var (
	ErrPositionNotEmpty = errors.New("mock: position still has liquidity")

	// DefaultTickSpacing applies to fee tiers without an explicit override.
	DefaultTickSpacing = int64(60)
)

type poolKey struct {
	token0, token1 common.Address
	fee            uint32
}

// Pool is the mock venue's view of one pool.
type Pool struct {
	Addr         common.Address
	Token0       common.Address
	Token1       common.Address
	Fee          uint32
	SqrtPriceX96 *big.Int
	Tick         int64
}

// Position is one minted position. Fees accrue only through AccrueFees.
type Position struct {
	ID        uint64
	Pool      common.Address
	TickLower int64
	TickUpper int64
	Liquidity *big.Int
	Amount0   *big.Int
	Amount1   *big.Int
	Fees0     *big.Int
	Fees1     *big.Int
	Burned    bool
}

// Venue is an in-memory external.AMMVenue. Mints consume UseBps/10000 of the
// offered amounts so leftover handling can be exercised.
type Venue struct {
	mu           sync.Mutex
	tickAt       func(sqrtPriceX96 *big.Int) int64
	spacing      map[uint32]int64
	pools        map[poolKey]*Pool
	byAddr       map[common.Address]*Pool
	positions    map[uint64]*Position
	nextPosition uint64
	nextPool     uint64

	// UseBps is the fraction of offered mint amounts actually consumed.
	UseBps uint64

	// OnUse and OnRelease, when set, observe token amounts consumed by
	// mints/top-ups and returned by withdrawals/collections. System.BindVenue
	// uses them to keep treasury balances honest.
	OnUse     func(token common.Address, amount *big.Int)
	OnRelease func(token common.Address, amount *big.Int)
}

// NewVenue returns an empty venue. tickAt converts an initial sqrt price to
// the pool's starting tick; pass nil to leave new pools at tick zero.
func NewVenue(tickAt func(*big.Int) int64) *Venue {
	return &Venue{
		tickAt:    tickAt,
		spacing:   make(map[uint32]int64),
		pools:     make(map[poolKey]*Pool),
		byAddr:    make(map[common.Address]*Pool),
		positions: make(map[uint64]*Position),
		UseBps:    10_000,
	}
}

// SetTickSpacing overrides the spacing for a fee tier.
func (v *Venue) SetTickSpacing(fee uint32, spacing int64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.spacing[fee] = spacing
}

// Pool returns the pool registered at addr, or nil.
func (v *Venue) Pool(addr common.Address) *Pool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.byAddr[addr]
}

// Position returns a minted position, or nil after burn.
func (v *Venue) Position(id uint64) *Position {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.positions[id]
}

// AccrueFees credits uncollected fees to a position.
func (v *Venue) AccrueFees(id uint64, fees0, fees1 *big.Int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	p := v.positions[id]
	p.Fees0.Add(p.Fees0, fees0)
	p.Fees1.Add(p.Fees1, fees1)
}

func (v *Venue) PoolFor(_ context.Context, token0, token1 common.Address, feeTier uint32) (common.Address, bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	p, ok := v.pools[poolKey{token0, token1, feeTier}]
	if !ok {
		return common.Address{}, false, nil
	}
	return p.Addr, true, nil
}

func (v *Venue) CreatePool(_ context.Context, token0, token1 common.Address, feeTier uint32, sqrtPriceX96 *big.Int) (common.Address, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	key := poolKey{token0, token1, feeTier}
	if p, ok := v.pools[key]; ok {
		return p.Addr, nil
	}
	v.nextPool++
	addr := common.BigToAddress(new(big.Int).SetUint64(0xA0000 + v.nextPool))
	p := &Pool{
		Addr:         addr,
		Token0:       token0,
		Token1:       token1,
		Fee:          feeTier,
		SqrtPriceX96: new(big.Int).Set(sqrtPriceX96),
	}
	if v.tickAt != nil {
		p.Tick = v.tickAt(sqrtPriceX96)
	}
	v.pools[key] = p
	v.byAddr[addr] = p
	return addr, nil
}

func (v *Venue) TickSpacingOf(feeTier uint32) int64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	if s, ok := v.spacing[feeTier]; ok {
		return s
	}
	return DefaultTickSpacing
}

func (v *Venue) SlotOf(_ context.Context, pool common.Address) (*big.Int, int64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	p, ok := v.byAddr[pool]
	if !ok {
		return nil, 0, ErrUnknownPool
	}
	return new(big.Int).Set(p.SqrtPriceX96), p.Tick, nil
}

func (v *Venue) use(amount *big.Int) *big.Int {
	used := new(big.Int).Mul(amount, new(big.Int).SetUint64(v.UseBps))
	return used.Div(used, big.NewInt(10_000))
}

func (v *Venue) MintPosition(_ context.Context, pool common.Address, tickLower, tickUpper int64, amount0, amount1 *big.Int) (external.MintResult, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.byAddr[pool]; !ok {
		return external.MintResult{}, ErrUnknownPool
	}

	used0 := v.use(amount0)
	used1 := v.use(amount1)
	if p := v.byAddr[pool]; v.OnUse != nil {
		v.OnUse(p.Token0, used0)
		v.OnUse(p.Token1, used1)
	}
	v.nextPosition++
	p := &Position{
		ID:        v.nextPosition,
		Pool:      pool,
		TickLower: tickLower,
		TickUpper: tickUpper,
		Liquidity: new(big.Int).Add(used0, used1),
		Amount0:   used0,
		Amount1:   used1,
		Fees0:     new(big.Int),
		Fees1:     new(big.Int),
	}
	v.positions[p.ID] = p
	return external.MintResult{
		PositionID: p.ID,
		TickLower:  p.TickLower,
		TickUpper:  p.TickUpper,
		Used0:      new(big.Int).Set(used0),
		Used1:      new(big.Int).Set(used1),
		Liquidity:  new(big.Int).Set(p.Liquidity),
	}, nil
}

func (v *Venue) IncreasePosition(_ context.Context, position uint64, amount0, amount1 *big.Int) (external.MintResult, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	p, ok := v.positions[position]
	if !ok {
		return external.MintResult{}, ErrUnknownPosition
	}
	used0 := v.use(amount0)
	used1 := v.use(amount1)
	if pool := v.byAddr[p.Pool]; v.OnUse != nil {
		v.OnUse(pool.Token0, used0)
		v.OnUse(pool.Token1, used1)
	}
	p.Amount0.Add(p.Amount0, used0)
	p.Amount1.Add(p.Amount1, used1)
	p.Liquidity.Add(p.Liquidity, new(big.Int).Add(used0, used1))
	return external.MintResult{
		PositionID: p.ID,
		TickLower:  p.TickLower,
		TickUpper:  p.TickUpper,
		Used0:      used0,
		Used1:      used1,
		Liquidity:  new(big.Int).Set(p.Liquidity),
	}, nil
}

func (v *Venue) WithdrawAll(_ context.Context, position uint64) (*big.Int, *big.Int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	p, ok := v.positions[position]
	if !ok {
		return nil, nil, ErrUnknownPosition
	}
	amount0 := new(big.Int).Set(p.Amount0)
	amount1 := new(big.Int).Set(p.Amount1)
	p.Amount0.SetInt64(0)
	p.Amount1.SetInt64(0)
	p.Liquidity.SetInt64(0)
	if pool := v.byAddr[p.Pool]; v.OnRelease != nil {
		v.OnRelease(pool.Token0, amount0)
		v.OnRelease(pool.Token1, amount1)
	}
	return amount0, amount1, nil
}

func (v *Venue) CollectFees(_ context.Context, position uint64) (*big.Int, *big.Int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	p, ok := v.positions[position]
	if !ok {
		return nil, nil, ErrUnknownPosition
	}
	fees0 := new(big.Int).Set(p.Fees0)
	fees1 := new(big.Int).Set(p.Fees1)
	p.Fees0.SetInt64(0)
	p.Fees1.SetInt64(0)
	if pool := v.byAddr[p.Pool]; v.OnRelease != nil {
		v.OnRelease(pool.Token0, fees0)
		v.OnRelease(pool.Token1, fees1)
	}
	return fees0, fees1, nil
}

func (v *Venue) BurnPosition(_ context.Context, position uint64) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	p, ok := v.positions[position]
	if !ok {
		return ErrUnknownPosition
	}
	if p.Liquidity.Sign() != 0 {
		return ErrPositionNotEmpty
	}
	p.Burned = true
	delete(v.positions, position)
	return nil
}

var _ external.AMMVenue = (*Venue)(nil)
