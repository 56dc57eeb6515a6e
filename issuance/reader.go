// Package issuance reads a project's issuance-weight schedule from the host
// ledger and derives the treasury's stage from it. The stage predicate fails
// open: a project the ledger cannot answer for is treated as accumulating,
// because this package must never be the reason a valid transfer reverts.
package issuance

import (
	"context"
	"math/big"

	"github.com/defistate/liquidity-treasury-go/external"
)

// qualifyingDivisor sets the accumulation threshold at firstWeight/10.
var qualifyingDivisor = big.NewInt(10)

// defaultPageSize is how many historical records one ledger call fetches.
const defaultPageSize = uint64(50)

// Reader derives stage-defining weights from the ledger's schedule. The
// ledger returns historical records newest-first; every scan below depends
// on that ordering.
type Reader struct {
	registry external.ProjectRegistry
	ledger   external.IssuanceLedger
	pageSize uint64
}

// NewReader returns a Reader over the given collaborators.
func NewReader(registry external.ProjectRegistry, ledger external.IssuanceLedger) *Reader {
	return &Reader{registry: registry, ledger: ledger, pageSize: defaultPageSize}
}

// FirstWeight returns the weight of the chronologically first issuance
// record: the ceiling all stage decisions are relative to.
func (r *Reader) FirstWeight(ctx context.Context, project uint64) (*big.Int, error) {
	count, err := r.ledger.RecordCountOf(ctx, project)
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return new(big.Int), nil
	}
	// Newest-first ordering puts the oldest record at the last offset.
	records, err := r.ledger.RecordsOf(ctx, project, count-1, 1)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return new(big.Int), nil
	}
	return new(big.Int).Set(records[0].Weight), nil
}

// CurrentRecord returns the project's active issuance record.
func (r *Reader) CurrentRecord(ctx context.Context, project uint64) (external.IssuanceRecord, error) {
	return r.ledger.CurrentRecordOf(ctx, project)
}

// Threshold is the smallest weight that still counts as accumulating:
// firstWeight/10, floor division.
func Threshold(firstWeight *big.Int) *big.Int {
	return new(big.Int).Div(firstWeight, qualifyingDivisor)
}

// LatestQualifyingWeight scans the schedule newest-to-oldest and returns the
// weight of the most recent record still meeting the accumulation threshold.
// Returns nil when no record qualifies; callers fall back to the current
// weight for pricing.
func (r *Reader) LatestQualifyingWeight(ctx context.Context, project uint64) (*big.Int, error) {
	first, err := r.FirstWeight(ctx, project)
	if err != nil {
		return nil, err
	}
	if first.Sign() == 0 {
		return nil, nil
	}
	threshold := Threshold(first)

	for offset := uint64(0); ; offset += r.pageSize {
		records, err := r.ledger.RecordsOf(ctx, project, offset, r.pageSize)
		if err != nil {
			return nil, err
		}
		if len(records) == 0 {
			return nil, nil
		}
		for _, rec := range records {
			if rec.Weight.Cmp(threshold) >= 0 {
				return new(big.Int).Set(rec.Weight), nil
			}
		}
	}
}

// IsAccumulating reports whether the project is still in accumulation
// stage: current weight >= firstWeight/10, boundary inclusive. A project
// with no registered controller, an empty or unreadable schedule, or a zero
// first weight is accumulating.
func (r *Reader) IsAccumulating(ctx context.Context, project uint64) bool {
	_, has, err := r.registry.ControllerOf(ctx, project)
	if err != nil || !has {
		return true
	}

	first, err := r.FirstWeight(ctx, project)
	if err != nil || first.Sign() == 0 {
		return true
	}

	rec, err := r.ledger.CurrentRecordOf(ctx, project)
	if err != nil {
		return true
	}
	return rec.Weight.Cmp(Threshold(first)) >= 0
}

// DeployWeight is the weight to price a new pool with: the latest
// qualifying weight when one exists, otherwise the current weight. It
// captures the issuance price at the moment the project was last healthy.
func (r *Reader) DeployWeight(ctx context.Context, project uint64) (*big.Int, error) {
	qualifying, err := r.LatestQualifyingWeight(ctx, project)
	if err == nil && qualifying != nil {
		return qualifying, nil
	}

	rec, recErr := r.ledger.CurrentRecordOf(ctx, project)
	if recErr != nil {
		if err != nil {
			return nil, err
		}
		return nil, recErr
	}
	return new(big.Int).Set(rec.Weight), nil
}
