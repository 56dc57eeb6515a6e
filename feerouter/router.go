// Package feerouter splits collected LP fees between the originating
// project and the designated fee-beneficiary project. The fee leg pays into
// the beneficiary through the ledger's payment primitive and credits the
// project-tokens minted in return to the originating project's claimable
// balance; the remainder leg tops the originating project's own balance
// back up. Either leg is skipped, not errored, when it has nothing to do.
package feerouter

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/defistate/liquidity-treasury-go/external"
	"github.com/defistate/liquidity-treasury-go/ledger"
)

var (
	ErrNilCollaborator = errors.New("feerouter: collaborator must not be nil")
	ErrFeeTooLarge     = errors.New("feerouter: fee percent exceeds 100%")

	bpsDenominator = new(big.Int).SetUint64(external.MaxReservedPercent)
)

// Split computes the fee portion of amount at feeBps parts per ten
// thousand, floor division. fee + remainder == amount always.
func Split(amount *big.Int, feeBps uint64) (fee, remainder *big.Int) {
	fee = new(big.Int).Mul(amount, new(big.Int).SetUint64(feeBps))
	fee.Div(fee, bpsDenominator)
	remainder = new(big.Int).Sub(amount, fee)
	return fee, remainder
}

// RouteResult reports what each leg of a routing actually did.
type RouteResult struct {
	// Fee and Remainder are the computed split, regardless of whether the
	// legs executed.
	Fee       *big.Int
	Remainder *big.Int
	// Minted is the fee-project tokens credited to the originating
	// project's claimable balance; zero when the fee leg was skipped.
	Minted *big.Int
	// FeePaid and ToppedUp mark which legs executed.
	FeePaid  bool
	ToppedUp bool
}

// Router carries the immutable fee-split configuration.
type Router struct {
	registry   external.ProjectRegistry
	ledger     external.IssuanceLedger
	claims     *ledger.ClaimsLedger
	feeProject uint64
	feeBps     uint64
}

// NewRouter validates the configuration and returns a Router. A fee percent
// above 100% is a construction-time error.
func NewRouter(registry external.ProjectRegistry, issuanceLedger external.IssuanceLedger, claims *ledger.ClaimsLedger, feeProject uint64, feeBps uint64) (*Router, error) {
	if registry == nil || issuanceLedger == nil || claims == nil {
		return nil, ErrNilCollaborator
	}
	if feeBps > external.MaxReservedPercent {
		return nil, fmt.Errorf("%w: %d", ErrFeeTooLarge, feeBps)
	}
	return &Router{
		registry:   registry,
		ledger:     issuanceLedger,
		claims:     claims,
		feeProject: feeProject,
		feeBps:     feeBps,
	}, nil
}

// FeeProject returns the beneficiary project id.
func (r *Router) FeeProject() uint64 { return r.feeProject }

// Route splits amount of token collected on behalf of project and executes
// both legs. Minted fee-project tokens are measured by the treasury's
// balance delta around the payment, since the payment primitive's declared
// return is unreliable for native-currency calls.
func (r *Router) Route(ctx context.Context, project uint64, token common.Address, amount *big.Int) (RouteResult, error) {
	fee, remainder := Split(amount, r.feeBps)
	result := RouteResult{Fee: fee, Remainder: remainder, Minted: new(big.Int)}

	if fee.Sign() > 0 {
		if _, ok, err := r.registry.TerminalOf(ctx, r.feeProject, token); err != nil {
			return result, err
		} else if ok {
			before, err := r.ledger.ProjectTokenBalanceOf(ctx, r.feeProject)
			if err != nil {
				return result, err
			}
			if _, err := r.ledger.Pay(ctx, r.feeProject, token, fee); err != nil {
				return result, err
			}
			after, err := r.ledger.ProjectTokenBalanceOf(ctx, r.feeProject)
			if err != nil {
				return result, err
			}

			minted := new(big.Int).Sub(after, before)
			if minted.Sign() > 0 {
				if err := r.claims.Credit(project, minted); err != nil {
					return result, err
				}
				result.Minted = minted
			}
			result.FeePaid = true
		}
	}

	if remainder.Sign() > 0 {
		if _, ok, err := r.registry.TerminalOf(ctx, project, token); err != nil {
			return result, err
		} else if ok {
			if err := r.ledger.AddToBalance(ctx, project, token, remainder); err != nil {
				return result, err
			}
			result.ToppedUp = true
		}
	}

	return result, nil
}
