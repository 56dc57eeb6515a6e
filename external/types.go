// Package external declares the narrow interfaces through which the treasury
// reaches its collaborators: the host ledger that owns projects, tokens and
// issuance schedules, the operator registry that gates fee claims, and the
// AMM venue that holds the concentrated liquidity positions. Everything
// behind these interfaces is implemented elsewhere; the treasury trusts the
// contracts documented here and nothing more.
package external

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// NativeToken is the sentinel address used by the host ledger for the chain's
// native currency when it appears as a pairing token.
var NativeToken = common.HexToAddress("0xEeeeeEeeeEeEeeEeEeEeeEEEeeeeEeeeeeeeEEeE")

// ReservedTokenGroup is the transfer category this treasury accepts. Inbound
// transfers carrying any other group id are rejected outright.
const ReservedTokenGroup = uint64(1)

// MaxReservedPercent is the denominator for reserved-fraction and fee-split
// arithmetic (parts per ten thousand).
const MaxReservedPercent = uint64(10_000)

// WeightScale is the implicit denominator of issuance weights: a weight of
// 1e18 mints exactly one project token per unit of pairing token.
var WeightScale = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// IssuanceRecord is one entry of a project's append-only issuance schedule.
type IssuanceRecord struct {
	// Weight is the WeightScale-scaled mint multiplier. Non-increasing over
	// the life of a project.
	Weight *big.Int `json:"weight"`
	// ReservedPercent is the fraction of newly issued tokens retained by the
	// protocol, out of MaxReservedPercent.
	ReservedPercent uint64 `json:"reservedPercent"`
	// BaseCurrency is the currency code the weight is denominated in.
	BaseCurrency uint32 `json:"baseCurrency"`
	// Ordinal orders records chronologically; higher is newer.
	Ordinal uint64 `json:"ordinal"`
}

// ProjectRegistry resolves a project's controlling authority and the pairing
// tokens it accepts.
type ProjectRegistry interface {
	// ControllerOf returns the project's controlling authority. The second
	// return is false when the project has no registered controller.
	ControllerOf(ctx context.Context, project uint64) (common.Address, bool, error)

	// TerminalOf returns the project's primary venue for a pairing token.
	// The second return is false when the project accepts no such token.
	TerminalOf(ctx context.Context, project uint64, token common.Address) (common.Address, bool, error)

	// PairingTokensOf lists the pairing tokens the project accepts, primary
	// first.
	PairingTokensOf(ctx context.Context, project uint64) ([]common.Address, error)
}

// IssuanceLedger is the host ledger surface the treasury depends on: the
// issuance schedule, price conversion, and the mint/burn/cash-out/payment
// primitives executed on the treasury's behalf.
type IssuanceLedger interface {
	// CurrentRecordOf returns the project's active issuance record.
	CurrentRecordOf(ctx context.Context, project uint64) (IssuanceRecord, error)

	// RecordsOf returns a page of historical issuance records ordered
	// newest-first. offset is measured from the newest record.
	RecordsOf(ctx context.Context, project uint64, offset, limit uint64) ([]IssuanceRecord, error)

	// RecordCountOf returns the total number of issuance records.
	RecordCountOf(ctx context.Context, project uint64) (uint64, error)

	// TokenOf returns the project's fungible token address.
	TokenOf(ctx context.Context, project uint64) (common.Address, error)

	// DecimalsOf returns a token's decimal precision.
	DecimalsOf(ctx context.Context, token common.Address) (uint8, error)

	// CurrencyOf returns the currency code a token is priced in.
	CurrencyOf(ctx context.Context, token common.Address) (uint32, error)

	// PricePerUnitOf converts one unit of the base currency into the quote
	// currency at the given decimal precision.
	PricePerUnitOf(ctx context.Context, base, quote uint32, decimals uint8) (*big.Int, error)

	// Burn destroys project tokens held by the treasury.
	Burn(ctx context.Context, project uint64, amount *big.Int) error

	// CashOut redeems project tokens held by the treasury for the pairing
	// token at the protocol's surplus-backed rate, returning the amount
	// received.
	CashOut(ctx context.Context, project uint64, amount *big.Int, pairing common.Address) (*big.Int, error)

	// Pay pays amount of token into a project, returning the number of
	// project tokens minted to the treasury in exchange. The declared return
	// is advisory; callers needing an exact figure must measure the balance
	// delta themselves.
	Pay(ctx context.Context, project uint64, token common.Address, amount *big.Int) (*big.Int, error)

	// AddToBalance tops up a project's balance without minting.
	AddToBalance(ctx context.Context, project uint64, token common.Address, amount *big.Int) error

	// ReclaimableSurplusOf quotes the pairing tokens a hypothetical
	// redemption of amount project tokens would return.
	ReclaimableSurplusOf(ctx context.Context, project uint64, amount *big.Int, pairing common.Address) (*big.Int, error)

	// ProjectTokenBalanceOf returns the treasury's current holding of the
	// project's token.
	ProjectTokenBalanceOf(ctx context.Context, project uint64) (*big.Int, error)

	// TransferProjectTokens moves project tokens held by the treasury to a
	// beneficiary.
	TransferProjectTokens(ctx context.Context, project uint64, to common.Address, amount *big.Int) error
}

// OperatorRegistry answers whether an address is authorized to act for a
// project. Used to gate fee claims.
type OperatorRegistry interface {
	IsOperatorOf(ctx context.Context, operator common.Address, project uint64) (bool, error)
}

// MintResult reports what an AMM mint or top-up actually consumed. Used0 and
// Used1 may be less than the amounts offered; leftovers stay with the caller.
// TickLower and TickUpper are the position's bounds, echoed back on top-ups
// as well as on mints.
type MintResult struct {
	PositionID uint64
	TickLower  int64
	TickUpper  int64
	Used0      *big.Int
	Used1      *big.Int
	Liquidity  *big.Int
}

// AMMVenue is the concentrated-liquidity venue. Pools are keyed by an
// address-sorted token pair and a fee tier; positions are referenced by
// opaque uint64 handles. All calls are atomic-or-fail at the host
// transaction level.
type AMMVenue interface {
	// PoolFor returns the pool for a sorted token pair at a fee tier. The
	// second return is false when no pool exists yet.
	PoolFor(ctx context.Context, token0, token1 common.Address, feeTier uint32) (common.Address, bool, error)

	// CreatePool creates and initializes a pool at the given sqrt price.
	// Idempotent with respect to a pool already created by another actor: an
	// existing pool is returned as-is, and an existing-but-uninitialized
	// pool is initialized at the given price.
	CreatePool(ctx context.Context, token0, token1 common.Address, feeTier uint32, sqrtPriceX96 *big.Int) (common.Address, error)

	// TickSpacingOf returns the tick spacing of a fee tier.
	TickSpacingOf(feeTier uint32) int64

	// SlotOf returns a pool's current sqrt price and tick.
	SlotOf(ctx context.Context, pool common.Address) (sqrtPriceX96 *big.Int, tick int64, err error)

	// MintPosition mints a new position over [tickLower, tickUpper].
	MintPosition(ctx context.Context, pool common.Address, tickLower, tickUpper int64, amount0, amount1 *big.Int) (MintResult, error)

	// IncreasePosition adds liquidity to an existing position.
	IncreasePosition(ctx context.Context, position uint64, amount0, amount1 *big.Int) (MintResult, error)

	// WithdrawAll removes all liquidity from a position, returning the
	// amounts released.
	WithdrawAll(ctx context.Context, position uint64) (amount0, amount1 *big.Int, err error)

	// CollectFees collects all fees accrued to a position.
	CollectFees(ctx context.Context, position uint64) (amount0, amount1 *big.Int, err error)

	// BurnPosition destroys an empty position handle.
	BurnPosition(ctx context.Context, position uint64) error
}

// SortTokens returns the pair in the venue's canonical token0 < token1 order.
func SortTokens(a, b common.Address) (common.Address, common.Address) {
	if a.Cmp(b) > 0 {
		return b, a
	}
	return a, b
}
