package issuance

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/defistate/liquidity-treasury-go/external"
	"github.com/defistate/liquidity-treasury-go/external/mock"
)

const project = uint64(7)

func schedule(weights ...int64) []external.IssuanceRecord {
	// Newest-first, the ordering the ledger binding guarantees.
	records := make([]external.IssuanceRecord, len(weights))
	for i, w := range weights {
		records[i] = external.IssuanceRecord{
			Weight:  big.NewInt(w),
			Ordinal: uint64(len(weights) - i),
		}
	}
	return records
}

func newProject(t *testing.T, weights ...int64) (*mock.System, *Reader) {
	t.Helper()
	sys := mock.NewSystem()
	p := sys.AddProject(project, common.HexToAddress("0x01"))
	p.Controller = common.HexToAddress("0xC0")
	p.HasController = true
	p.Records = schedule(weights...)
	return sys, NewReader(sys, sys)
}

func TestFirstWeight(t *testing.T) {
	_, reader := newProject(t, 80, 500, 1000)
	first, err := reader.FirstWeight(context.Background(), project)
	require.NoError(t, err)
	assert.Zero(t, big.NewInt(1000).Cmp(first))
}

func TestLatestQualifyingWeight(t *testing.T) {
	t.Run("newest qualifying record wins", func(t *testing.T) {
		// threshold = 100; 80 fails, 150 is the newest that qualifies
		_, reader := newProject(t, 80, 150, 500, 1000)
		w, err := reader.LatestQualifyingWeight(context.Background(), project)
		require.NoError(t, err)
		require.NotNil(t, w)
		assert.Zero(t, big.NewInt(150).Cmp(w))
	})

	t.Run("nil when nothing qualifies", func(t *testing.T) {
		sys, reader := newProject(t, 80)
		// Force the first weight high enough that 80 fails the threshold.
		sys.Project(project).Records = []external.IssuanceRecord{
			{Weight: big.NewInt(80), Ordinal: 2},
			{Weight: big.NewInt(0), Ordinal: 1},
		}
		// first weight zero short-circuits to nil as well
		w, err := reader.LatestQualifyingWeight(context.Background(), project)
		require.NoError(t, err)
		assert.Nil(t, w)
	})

	t.Run("scans across pages", func(t *testing.T) {
		weights := make([]int64, 0, 120)
		for i := 0; i < 119; i++ {
			weights = append(weights, 5) // below threshold
		}
		weights = append(weights, 1000) // oldest, first weight
		_, reader := newProject(t, weights...)
		w, err := reader.LatestQualifyingWeight(context.Background(), project)
		require.NoError(t, err)
		require.NotNil(t, w)
		assert.Zero(t, big.NewInt(1000).Cmp(w))
	})
}

func TestIsAccumulating(t *testing.T) {
	ctx := context.Background()

	t.Run("boundary is inclusive", func(t *testing.T) {
		// first=1000 => threshold=100
		_, reader := newProject(t, 100, 1000)
		assert.True(t, reader.IsAccumulating(ctx, project))
	})

	t.Run("below threshold deploys", func(t *testing.T) {
		_, reader := newProject(t, 99, 1000)
		assert.False(t, reader.IsAccumulating(ctx, project))
	})

	t.Run("floor division threshold", func(t *testing.T) {
		// first=1005 => threshold=100; current=100 still accumulating
		_, reader := newProject(t, 100, 1005)
		assert.True(t, reader.IsAccumulating(ctx, project))
	})

	t.Run("no controller fails open", func(t *testing.T) {
		sys, reader := newProject(t, 1, 1000)
		sys.Project(project).HasController = false
		assert.True(t, reader.IsAccumulating(ctx, project))
	})

	t.Run("unknown project fails open", func(t *testing.T) {
		_, reader := newProject(t, 1, 1000)
		assert.True(t, reader.IsAccumulating(ctx, 404))
	})

	t.Run("zero first weight fails open", func(t *testing.T) {
		sys, reader := newProject(t, 50)
		sys.Project(project).Records = []external.IssuanceRecord{
			{Weight: big.NewInt(50), Ordinal: 2},
			{Weight: big.NewInt(0), Ordinal: 1},
		}
		assert.True(t, reader.IsAccumulating(ctx, project))
	})
}

func TestDeployWeight(t *testing.T) {
	ctx := context.Background()

	t.Run("prefers latest qualifying weight", func(t *testing.T) {
		_, reader := newProject(t, 80, 400, 1000)
		w, err := reader.DeployWeight(ctx, project)
		require.NoError(t, err)
		assert.Zero(t, big.NewInt(400).Cmp(w))
	})

	t.Run("falls back to current weight", func(t *testing.T) {
		sys, reader := newProject(t, 80)
		sys.Project(project).Records = []external.IssuanceRecord{
			{Weight: big.NewInt(80), Ordinal: 2},
			{Weight: big.NewInt(0), Ordinal: 1},
		}
		w, err := reader.DeployWeight(ctx, project)
		require.NoError(t, err)
		assert.Zero(t, big.NewInt(80).Cmp(w))
	})
}
