// Package hook is the treasury's surface: the trusted accept-transfer entry
// point the host ledger invokes on every reserved-token distribution, the
// permissionless maintenance entry points (deploy, rebalance, collect), and
// the operator-gated fee claim. A per-project mutex serializes every
// mutating path, standing in for the single-transaction atomicity the host
// ledger provides its own hooks.
package hook

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/defistate/liquidity-treasury-go/external"
	"github.com/defistate/liquidity-treasury-go/feerouter"
	"github.com/defistate/liquidity-treasury-go/issuance"
	"github.com/defistate/liquidity-treasury-go/ledger"
	"github.com/defistate/liquidity-treasury-go/position"
	"github.com/defistate/liquidity-treasury-go/pricing"
	"github.com/defistate/liquidity-treasury-go/store"
)

var (
	ErrNilCollaborator = errors.New("hook: collaborator must not be nil")
	ErrWrongGroup      = errors.New("hook: transfer is not in the reserved-token group")
	ErrUnexpectedToken = errors.New("hook: transferred token is not the project token")
	ErrNotController   = errors.New("hook: authority is not the project's controller")
	ErrNotOperator     = errors.New("hook: beneficiary is not the project's operator")
	ErrNoPairingToken  = errors.New("hook: project accepts no pairing token")
)

const (
	// DefaultFeeTier is the 1% venue fee tier.
	DefaultFeeTier = uint32(10_000)
	// DefaultFallbackBandWidth is one tick-spacing unit each side of spot.
	DefaultFallbackBandWidth = int64(1)
)

// Logger is the minimal structured logging surface the hook writes to.
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

// Config wires a Hook. The five collaborators are required; everything else
// has a working default.
type Config struct {
	Registry  external.ProjectRegistry
	Ledger    external.IssuanceLedger
	Operators external.OperatorRegistry
	Venue     external.AMMVenue
	Store     store.Store

	// FeeProject receives the fee share of routed pairing-token proceeds.
	FeeProject uint64
	// FeeBps is the fee share in parts per ten thousand. Above 10000 is a
	// construction-time error.
	FeeBps uint64
	// FeeTier selects the venue fee tier for every managed pool.
	FeeTier uint32
	// FallbackBandWidth is the fallback position band, in tick-spacing units
	// each side of spot.
	FallbackBandWidth int64

	Logger  Logger
	Metrics prometheus.Registerer
}

func (c *Config) validate() error {
	if c.Registry == nil || c.Ledger == nil || c.Operators == nil || c.Venue == nil || c.Store == nil {
		return ErrNilCollaborator
	}
	if c.FeeTier == 0 {
		c.FeeTier = DefaultFeeTier
	}
	if c.FallbackBandWidth == 0 {
		c.FallbackBandWidth = DefaultFallbackBandWidth
	}
	if c.Logger == nil {
		c.Logger = noopLogger{}
	}
	return nil
}

// Transfer is one inbound reserved-token distribution as reported by the
// host ledger. Amount has already been credited to the treasury when the
// hook runs.
type Transfer struct {
	Project   uint64
	Token     common.Address
	Amount    *big.Int
	Group     uint64
	Authority common.Address
}

// Hook is the assembled treasury.
type Hook struct {
	cfg     Config
	reader  *issuance.Reader
	accum   *ledger.AccumulationLedger
	claims  *ledger.ClaimsLedger
	router  *feerouter.Router
	manager *position.Manager
	log     Logger
	metrics *metrics

	mu    sync.Mutex
	locks map[uint64]*sync.Mutex
}

// New validates the configuration, assembles the component stack and
// returns the Hook. A fee share above 100% fails construction.
func New(cfg Config) (*Hook, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	claims := ledger.NewClaimsLedger(cfg.Store)
	accum := ledger.NewAccumulationLedger(cfg.Store)
	router, err := feerouter.NewRouter(cfg.Registry, cfg.Ledger, claims, cfg.FeeProject, cfg.FeeBps)
	if err != nil {
		return nil, err
	}
	reader := issuance.NewReader(cfg.Registry, cfg.Ledger)

	manager, err := position.New(position.Config{
		Store:             cfg.Store,
		Ledger:            cfg.Ledger,
		Venue:             cfg.Venue,
		Reader:            reader,
		Quoter:            pricing.NewQuoter(cfg.Ledger),
		Router:            router,
		Accumulation:      accum,
		FeeTier:           cfg.FeeTier,
		FallbackBandWidth: cfg.FallbackBandWidth,
		Logger:            cfg.Logger,
	})
	if err != nil {
		return nil, err
	}

	return &Hook{
		cfg:     cfg,
		reader:  reader,
		accum:   accum,
		claims:  claims,
		router:  router,
		manager: manager,
		log:     cfg.Logger,
		metrics: newMetrics(cfg.Metrics),
		locks:   make(map[uint64]*sync.Mutex),
	}, nil
}

// lock serializes mutating operations per project. Keys are disjoint, so no
// cross-project lock is ever taken.
func (h *Hook) lock(project uint64) func() {
	h.mu.Lock()
	l, ok := h.locks[project]
	if !ok {
		l = &sync.Mutex{}
		h.locks[project] = l
	}
	h.mu.Unlock()
	l.Lock()
	return l.Unlock
}

// AcceptTransfer is the trusted entry point. The claimed authority is
// validated against the project registry before anything else is trusted.
// While accumulating, the amount is recorded; once deploying, the pair's
// position is ensured (deploying any balance accumulated earlier) and the
// treasury's entire project-token balance is burned, fresh arrival and
// funding dust alike.
func (h *Hook) AcceptTransfer(ctx context.Context, t Transfer) error {
	if t.Group != external.ReservedTokenGroup {
		h.metrics.transfers.WithLabelValues(outcomeRejected).Inc()
		return fmt.Errorf("%w: group %d", ErrWrongGroup, t.Group)
	}

	projectToken, err := h.cfg.Ledger.TokenOf(ctx, t.Project)
	if err != nil {
		return err
	}
	if t.Token != projectToken {
		h.metrics.transfers.WithLabelValues(outcomeRejected).Inc()
		return fmt.Errorf("%w: %s", ErrUnexpectedToken, t.Token)
	}

	controller, has, err := h.cfg.Registry.ControllerOf(ctx, t.Project)
	if err != nil {
		return err
	}
	if !has || controller != t.Authority {
		h.metrics.transfers.WithLabelValues(outcomeRejected).Inc()
		return fmt.Errorf("%w: %s", ErrNotController, t.Authority)
	}

	unlock := h.lock(t.Project)
	defer unlock()

	if h.reader.IsAccumulating(ctx, t.Project) {
		if err := h.accum.Accumulate(t.Project, t.Amount); err != nil {
			return err
		}
		h.metrics.transfers.WithLabelValues(outcomeAccumulated).Inc()
		h.log.Debug("accumulated reserved tokens", "project", t.Project, "amount", t.Amount)
		return nil
	}

	// Deployment stage. A balance accumulated before the stage flipped is
	// deployed on this first arrival rather than burned with the rest.
	pairing, err := h.primaryPairing(ctx, t.Project)
	if err != nil {
		return err
	}
	hasPosition, err := h.manager.HasPosition(ctx, t.Project, pairing)
	if err != nil {
		return err
	}
	if !hasPosition {
		pending, err := h.accum.Balance(t.Project)
		if err != nil {
			return err
		}
		if pending.Sign() > 0 {
			res, err := h.manager.Deploy(ctx, t.Project, pairing)
			if err != nil {
				return err
			}
			h.metrics.deploys.Inc()
			h.log.Info("deployed accumulated balance",
				"project", t.Project, "pairing", pairing,
				"pool", res.Pool, "position", res.Position, "deployed", res.Deployed)
		}
	}

	balance, err := h.cfg.Ledger.ProjectTokenBalanceOf(ctx, t.Project)
	if err != nil {
		return err
	}
	if balance.Sign() > 0 {
		if err := h.cfg.Ledger.Burn(ctx, t.Project, balance); err != nil {
			return err
		}
		h.metrics.burns.Inc()
	}
	h.metrics.transfers.WithLabelValues(outcomeBurned).Inc()
	h.log.Debug("burned reserved tokens", "project", t.Project, "amount", balance)
	return nil
}

func (h *Hook) primaryPairing(ctx context.Context, project uint64) (common.Address, error) {
	tokens, err := h.cfg.Registry.PairingTokensOf(ctx, project)
	if err != nil {
		return common.Address{}, err
	}
	if len(tokens) == 0 {
		return common.Address{}, fmt.Errorf("%w: project %d", ErrNoPairingToken, project)
	}
	return tokens[0], nil
}

// Deploy moves the project's accumulated balance into the pair's managed
// position. Permissionless.
func (h *Hook) Deploy(ctx context.Context, project uint64, pairing common.Address) (position.DeployResult, error) {
	unlock := h.lock(project)
	defer unlock()

	res, err := h.manager.Deploy(ctx, project, pairing)
	if err != nil {
		return res, err
	}
	h.metrics.deploys.Inc()
	h.log.Info("deployed position",
		"project", project, "pairing", pairing,
		"pool", res.Pool, "position", res.Position, "deployed", res.Deployed)
	return res, nil
}

// Rebalance rebuilds the pair's position at fresh bounds. Permissionless.
func (h *Hook) Rebalance(ctx context.Context, project uint64, pairing common.Address) (position.RebalanceResult, error) {
	unlock := h.lock(project)
	defer unlock()

	res, err := h.manager.Rebalance(ctx, project, pairing)
	if err != nil {
		return res, err
	}
	h.metrics.rebalances.Inc()
	h.log.Info("rebalanced position",
		"project", project, "pairing", pairing,
		"old", res.OldPosition, "new", res.NewPosition,
		"tickLower", res.TickLower, "tickUpper", res.TickUpper)
	return res, nil
}

// CollectFees harvests the pair's accrued fees. Permissionless.
func (h *Hook) CollectFees(ctx context.Context, project uint64, pairing common.Address) (position.CollectResult, error) {
	unlock := h.lock(project)
	defer unlock()

	res, err := h.manager.Collect(ctx, project, pairing)
	if err != nil {
		return res, err
	}
	h.metrics.collections.Inc()
	if res.Routed.FeePaid {
		h.metrics.routed.Inc()
	}
	h.log.Info("collected fees",
		"project", project, "pairing", pairing,
		"projectFees", res.ProjectFees, "pairingFees", res.PairingFees,
		"routedFee", res.Routed.Fee)
	return res, nil
}

// ClaimFees pays the project's claimable fee-project tokens to the
// beneficiary, who must be the project's registered operator. The balance is
// zeroed before the transfer; a zero balance is a legal no-op.
func (h *Hook) ClaimFees(ctx context.Context, project uint64, beneficiary common.Address) (*big.Int, error) {
	ok, err := h.cfg.Operators.IsOperatorOf(ctx, beneficiary, project)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotOperator, beneficiary)
	}

	unlock := h.lock(project)
	defer unlock()

	paid, err := h.claims.Claim(ctx, project, func(ctx context.Context, amount *big.Int) error {
		return h.cfg.Ledger.TransferProjectTokens(ctx, h.router.FeeProject(), beneficiary, amount)
	})
	if err != nil {
		return nil, err
	}
	if paid.Sign() > 0 {
		h.metrics.claims.Inc()
		h.log.Info("paid claimed fees", "project", project, "beneficiary", beneficiary, "amount", paid)
	}
	return paid, nil
}

// IsAccumulating is the read-only stage check.
func (h *Hook) IsAccumulating(ctx context.Context, project uint64) bool {
	return h.reader.IsAccumulating(ctx, project)
}

// Pending returns the project's accumulated balance awaiting deployment.
func (h *Hook) Pending(project uint64) (*big.Int, error) {
	return h.accum.Balance(project)
}

// Claimable returns the project's claimable fee balance.
func (h *Hook) Claimable(project uint64) (*big.Int, error) {
	return h.claims.Balance(project)
}
