// Package position drives the per-(project, pairing token) liquidity state
// machine: create and initialize the pool on first deployment, mint or top
// up the single managed position, rebuild it on rebalance, and collect its
// fees. The caller (the treasury hook) serializes invocations per project;
// this package assumes no two operations for the same pair run at once.
package position

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/defistate/liquidity-treasury-go/external"
	"github.com/defistate/liquidity-treasury-go/feerouter"
	"github.com/defistate/liquidity-treasury-go/issuance"
	"github.com/defistate/liquidity-treasury-go/ledger"
	"github.com/defistate/liquidity-treasury-go/pricing"
	"github.com/defistate/liquidity-treasury-go/store"
)

var (
	ErrNilCollaborator    = errors.New("position: collaborator must not be nil")
	ErrInvalidBand        = errors.New("position: fallback band must be at least one spacing unit")
	ErrStillAccumulating  = errors.New("position: project is still accumulating")
	ErrNoPool             = errors.New("position: no pool registered for pair")
	ErrNoPosition         = errors.New("position: no position for pool")
	ErrNothingAccumulated = errors.New("position: nothing accumulated to deploy")
)

// Logger is the minimal structured logging surface the manager writes to.
// *slog.Logger satisfies it directly.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Config wires a Manager. All references but the Logger are required.
type Config struct {
	Store        store.Store
	Ledger       external.IssuanceLedger
	Venue        external.AMMVenue
	Reader       *issuance.Reader
	Quoter       *pricing.Quoter
	Router       *feerouter.Router
	Accumulation *ledger.AccumulationLedger

	// FeeTier selects the venue fee tier every managed pool uses.
	FeeTier uint32
	// FallbackBandWidth is the width, in tick-spacing units each side of
	// spot, of the band used when the rate-derived bounds collapse.
	FallbackBandWidth int64

	Logger Logger
}

// Manager owns the pool and position lifecycle.
type Manager struct {
	cfg Config
}

// New validates the configuration and returns a Manager.
func New(cfg Config) (*Manager, error) {
	if cfg.Store == nil || cfg.Ledger == nil || cfg.Venue == nil ||
		cfg.Reader == nil || cfg.Quoter == nil || cfg.Router == nil || cfg.Accumulation == nil {
		return nil, ErrNilCollaborator
	}
	if cfg.FallbackBandWidth < 1 {
		return nil, ErrInvalidBand
	}
	if cfg.Logger == nil {
		cfg.Logger = noopLogger{}
	}
	return &Manager{cfg: cfg}, nil
}

// pair carries the resolved token orientation for one (project, pairing).
type pair struct {
	project         uint64
	projectToken    common.Address
	pairingToken    common.Address
	token0          common.Address
	token1          common.Address
	projectIsToken0 bool
}

func (m *Manager) pairOf(ctx context.Context, project uint64, pairing common.Address) (pair, error) {
	projectToken, err := m.cfg.Ledger.TokenOf(ctx, project)
	if err != nil {
		return pair{}, err
	}
	token0, token1 := external.SortTokens(projectToken, pairing)
	return pair{
		project:         project,
		projectToken:    projectToken,
		pairingToken:    pairing,
		token0:          token0,
		token1:          token1,
		projectIsToken0: projectToken == token0,
	}, nil
}

// orient maps (projectAmount, pairingAmount) onto (amount0, amount1).
func (p pair) orient(projectAmount, pairingAmount *big.Int) (*big.Int, *big.Int) {
	if p.projectIsToken0 {
		return projectAmount, pairingAmount
	}
	return pairingAmount, projectAmount
}

// split maps (amount0, amount1) back onto (projectAmount, pairingAmount).
func (p pair) split(amount0, amount1 *big.Int) (*big.Int, *big.Int) {
	if p.projectIsToken0 {
		return amount0, amount1
	}
	return amount1, amount0
}

// DeployResult reports what a deployment did.
type DeployResult struct {
	Pool      common.Address
	Position  uint64
	TickLower int64
	TickUpper int64
	// Deployed is the accumulated balance consumed by this deployment.
	Deployed *big.Int
}

// Deploy moves a project's accumulated balance into the managed position
// for the pairing, creating and initializing the pool first if this is the
// pair's first deployment. Fails while the project is still accumulating,
// and distinctly when nothing is accumulated.
func (m *Manager) Deploy(ctx context.Context, project uint64, pairing common.Address) (DeployResult, error) {
	if m.cfg.Reader.IsAccumulating(ctx, project) {
		return DeployResult{}, ErrStillAccumulating
	}

	balance, err := m.cfg.Accumulation.Balance(project)
	if err != nil {
		return DeployResult{}, err
	}
	if balance.Sign() == 0 {
		return DeployResult{}, ErrNothingAccumulated
	}

	pr, err := m.pairOf(ctx, project, pairing)
	if err != nil {
		return DeployResult{}, err
	}

	pool, err := m.ensurePool(ctx, pr)
	if err != nil {
		return DeployResult{}, err
	}

	rec, err := m.cfg.Reader.CurrentRecord(ctx, project)
	if err != nil {
		return DeployResult{}, err
	}

	// Up to half the accumulated balance is redeemed for pairing tokens so
	// the mint gets a roughly balanced pair.
	half := new(big.Int).Rsh(balance, 1)
	proceeds := new(big.Int)
	if half.Sign() > 0 {
		if proceeds, err = m.cfg.Ledger.CashOut(ctx, project, half, pairing); err != nil {
			return DeployResult{}, err
		}
	}
	projectSide := new(big.Int).Sub(balance, half)
	amount0, amount1 := pr.orient(projectSide, proceeds)

	result := DeployResult{Pool: pool}
	existing, hasPosition, err := m.cfg.Store.PositionOf(pool)
	if err != nil {
		return DeployResult{}, err
	}
	if hasPosition {
		// Top up the live position at the bounds it was minted with.
		minted, err := m.cfg.Venue.IncreasePosition(ctx, existing, amount0, amount1)
		if err != nil {
			return DeployResult{}, err
		}
		result.Position = minted.PositionID
		result.TickLower = minted.TickLower
		result.TickUpper = minted.TickUpper
	} else {
		lower, upper, err := m.boundsFor(ctx, pr, pool, rec)
		if err != nil {
			return DeployResult{}, err
		}
		minted, err := m.cfg.Venue.MintPosition(ctx, pool, lower, upper, amount0, amount1)
		if err != nil {
			return DeployResult{}, err
		}
		if err := m.cfg.Store.SetPosition(pool, minted.PositionID); err != nil {
			return DeployResult{}, err
		}
		result.Position = minted.PositionID
		result.TickLower = lower
		result.TickUpper = upper
	}

	// The pending balance is spoken for only once the mint succeeded.
	deployed, err := m.cfg.Accumulation.Drain(project)
	if err != nil {
		return DeployResult{}, err
	}
	result.Deployed = deployed
	return result, nil
}

// ensurePool returns the registered pool for the pair, creating and
// initializing one priced at the latest qualifying issuance rate when the
// pair has never deployed. Registration is write-once.
func (m *Manager) ensurePool(ctx context.Context, pr pair) (common.Address, error) {
	pool, ok, err := m.cfg.Store.PoolOf(pr.project, pr.pairingToken)
	if err != nil {
		return common.Address{}, err
	}
	if ok {
		return pool, nil
	}

	rec, err := m.cfg.Reader.CurrentRecord(ctx, pr.project)
	if err != nil {
		return common.Address{}, err
	}
	weight, err := m.cfg.Reader.DeployWeight(ctx, pr.project)
	if err != nil {
		return common.Address{}, err
	}
	rate, err := m.cfg.Quoter.IssuanceRate(ctx, rec, weight, pr.pairingToken)
	if err != nil {
		return common.Address{}, err
	}
	sqrtPrice, err := pricing.SqrtPriceX96ForRate(rate, pr.projectIsToken0)
	if err != nil {
		return common.Address{}, err
	}

	initial := clampSqrt(sqrtPrice)
	pool, err = m.cfg.Venue.CreatePool(ctx, pr.token0, pr.token1, m.cfg.FeeTier, initial)
	if err != nil {
		return common.Address{}, err
	}
	if err := m.cfg.Store.SetPool(pr.project, pr.pairingToken, pool); err != nil {
		return common.Address{}, err
	}

	dec0, dec1 := int32(18), m.cfg.Quoter.PairingDecimals(ctx, pr.pairingToken)
	if !pr.projectIsToken0 {
		dec0, dec1 = dec1, dec0
	}
	m.cfg.Logger.Info("created pool",
		"project", pr.project, "pool", pool,
		"price", pricing.QuoteFromSqrtX96(initial, dec0, dec1))
	return pool, nil
}

// boundsFor derives the tick range from the current cash-out and issuance
// rates.
func (m *Manager) boundsFor(ctx context.Context, pr pair, pool common.Address, rec external.IssuanceRecord) (int64, int64, error) {
	issuanceRate, err := m.cfg.Quoter.IssuanceRate(ctx, rec, rec.Weight, pr.pairingToken)
	if err != nil {
		return 0, 0, err
	}
	cashOut, err := m.cfg.Quoter.CashOutRate(ctx, pr.project, rec, pr.pairingToken)
	if err != nil {
		return 0, 0, err
	}
	_, spotTick, err := m.cfg.Venue.SlotOf(ctx, pool)
	if err != nil {
		return 0, 0, err
	}
	spacing := m.cfg.Venue.TickSpacingOf(m.cfg.FeeTier)
	lower, upper, err := bounds(cashOut, issuanceRate, pr.projectIsToken0, spotTick, spacing, m.cfg.FallbackBandWidth)
	if err != nil {
		return 0, 0, err
	}

	decimals := m.cfg.Quoter.PairingDecimals(ctx, pr.pairingToken)
	m.cfg.Logger.Debug("derived position bounds",
		"project", pr.project, "tickLower", lower, "tickUpper", upper,
		"floor", pricing.QuoteRate(cashOut, decimals),
		"ceiling", pricing.QuoteRate(issuanceRate, decimals))
	return lower, upper, nil
}

// CollectResult reports a fee collection.
type CollectResult struct {
	// ProjectFees were burned; PairingFees were routed.
	ProjectFees *big.Int
	PairingFees *big.Int
	Routed      feerouter.RouteResult
}

// Collect harvests the position's accrued fees: the pairing-token share is
// routed through the fee router, the project-token share is burned.
// Liquidity and bounds are untouched. Requires deployment stage and an
// existing position.
func (m *Manager) Collect(ctx context.Context, project uint64, pairing common.Address) (CollectResult, error) {
	if m.cfg.Reader.IsAccumulating(ctx, project) {
		return CollectResult{}, ErrStillAccumulating
	}
	pr, position, _, err := m.lookup(ctx, project, pairing)
	if err != nil {
		return CollectResult{}, err
	}

	fees0, fees1, err := m.cfg.Venue.CollectFees(ctx, position)
	if err != nil {
		return CollectResult{}, err
	}
	projectFees, pairingFees := pr.split(fees0, fees1)

	result := CollectResult{ProjectFees: projectFees, PairingFees: pairingFees}
	if pairingFees.Sign() > 0 {
		if result.Routed, err = m.cfg.Router.Route(ctx, project, pairing, pairingFees); err != nil {
			return result, err
		}
	}
	if projectFees.Sign() > 0 {
		if err := m.cfg.Ledger.Burn(ctx, project, projectFees); err != nil {
			return result, err
		}
	}
	return result, nil
}

// RebalanceResult reports a position rebuild.
type RebalanceResult struct {
	OldPosition uint64
	NewPosition uint64
	TickLower   int64
	TickUpper   int64
}

// Rebalance rebuilds the managed position at freshly computed bounds: fees
// are collected first (pairing share routed, project share kept for the
// replacement mint), all liquidity withdrawn, the old handle burned, and a
// replacement minted with every balance on hand. Unlike Collect, the
// project-token fees harvested here are folded into the replacement mint
// instead of burned; burning remains the collect-only path. The old handle
// is invalidated and the new one recorded within the same operation.
func (m *Manager) Rebalance(ctx context.Context, project uint64, pairing common.Address) (RebalanceResult, error) {
	pr, position, pool, err := m.lookup(ctx, project, pairing)
	if err != nil {
		return RebalanceResult{}, err
	}
	result := RebalanceResult{OldPosition: position}

	fees0, fees1, err := m.cfg.Venue.CollectFees(ctx, position)
	if err != nil {
		return result, err
	}
	projectFees, pairingFees := pr.split(fees0, fees1)
	if pairingFees.Sign() > 0 {
		if _, err := m.cfg.Router.Route(ctx, project, pairing, pairingFees); err != nil {
			return result, err
		}
	}

	amount0, amount1, err := m.cfg.Venue.WithdrawAll(ctx, position)
	if err != nil {
		return result, err
	}
	if err := m.cfg.Venue.BurnPosition(ctx, position); err != nil {
		return result, err
	}
	if err := m.cfg.Store.DeletePosition(pool); err != nil {
		return result, err
	}

	// Project-token fees stay on hand and go into the replacement.
	projectAmount, pairingAmount := pr.split(amount0, amount1)
	projectAmount = new(big.Int).Add(projectAmount, projectFees)
	remint0, remint1 := pr.orient(projectAmount, pairingAmount)

	if remint0.Sign() == 0 && remint1.Sign() == 0 {
		// Nothing to redeposit; the pair returns to the no-position state
		// and the next deployment mints afresh.
		return result, nil
	}

	rec, err := m.cfg.Reader.CurrentRecord(ctx, project)
	if err != nil {
		return result, err
	}
	lower, upper, err := m.boundsFor(ctx, pr, pool, rec)
	if err != nil {
		return result, err
	}
	minted, err := m.cfg.Venue.MintPosition(ctx, pool, lower, upper, remint0, remint1)
	if err != nil {
		return result, err
	}
	if err := m.cfg.Store.SetPosition(pool, minted.PositionID); err != nil {
		return result, err
	}
	result.NewPosition = minted.PositionID
	result.TickLower = lower
	result.TickUpper = upper
	return result, nil
}

// HasPosition reports whether the pair already has a pool and position.
func (m *Manager) HasPosition(ctx context.Context, project uint64, pairing common.Address) (bool, error) {
	pool, ok, err := m.cfg.Store.PoolOf(project, pairing)
	if err != nil || !ok {
		return false, err
	}
	_, ok, err = m.cfg.Store.PositionOf(pool)
	return ok, err
}

// lookup resolves the pair, its registered pool and its live position,
// failing with the stage/state errors the maintenance entry points promise.
func (m *Manager) lookup(ctx context.Context, project uint64, pairing common.Address) (pair, uint64, common.Address, error) {
	pr, err := m.pairOf(ctx, project, pairing)
	if err != nil {
		return pair{}, 0, common.Address{}, err
	}
	pool, ok, err := m.cfg.Store.PoolOf(project, pairing)
	if err != nil {
		return pair{}, 0, common.Address{}, err
	}
	if !ok {
		return pair{}, 0, common.Address{}, ErrNoPool
	}
	position, ok, err := m.cfg.Store.PositionOf(pool)
	if err != nil {
		return pair{}, 0, common.Address{}, err
	}
	if !ok {
		return pair{}, 0, common.Address{}, ErrNoPosition
	}
	return pr, position, pool, nil
}
