package risk

import (
	"testing"

	"github.com/stretchr/testify/require"

	"treegraph/graph"
	"treegraph/models"
)

func hashOf(i int) models.Hash {
	var h models.Hash
	h[0] = byte(i >> 8)
	h[1] = byte(i)
	return h
}

// chainGraph builds a finalized pure chain of n blocks with one-second
// creation steps. Block k (1-based) sits at pivot position k-1.
func chainGraph(t *testing.T, n int) *graph.Graph {
	t.Helper()
	blocks := make([]*models.Block, 0, n)
	prev := models.ZeroHash
	for k := 1; k <= n; k++ {
		h := hashOf(k)
		blocks = append(blocks, &models.Block{
			Height:       uint64(k - 1),
			Hash:         h,
			ParentHash:   prev,
			Timestamp:    1000 + uint64(k),
			LogTimestamp: float64(1000+k) + 0.2,
			TxCount:      1,
			BlockSize:    50,
		})
		prev = h
	}
	g, err := graph.Build(blocks)
	require.NoError(t, err)
	return g
}

func TestCombinedRiskMonotonicInAdvantage(t *testing.T) {
	prev := 1.0
	for m := 1; m <= 200; m++ {
		r, terms := combinedRisk(m, 0.2)
		require.Greater(t, terms, 0)
		require.GreaterOrEqual(t, r, riskFloor)
		require.LessOrEqual(t, r, prev)
		prev = r
	}
	// The floor is actually reached for large advantages.
	require.Equal(t, riskFloor, prev)
}

func TestCombinedRiskMonotonicInAdversary(t *testing.T) {
	ps := []float64{0.05, 0.1, 0.15, 0.2, 0.25, 0.3, 0.35, 0.4, 0.45}
	prev := 0.0
	for _, p := range ps {
		r, _ := combinedRisk(20, p)
		require.GreaterOrEqual(t, r, prev)
		require.LessOrEqual(t, r, 1.0)
		prev = r
	}
	// Away from the floor the ordering is strict.
	low, _ := combinedRisk(20, 0.1)
	high, _ := combinedRisk(20, 0.45)
	require.Less(t, low, high)
}

func TestCombinedRiskMajorityAdversary(t *testing.T) {
	for _, p := range []float64{0.5, 0.6, 0.99} {
		r, terms := combinedRisk(20, p)
		require.Equal(t, 1.0, r)
		require.Equal(t, 0, terms)
	}
	r, _ := combinedRisk(0, 0.1)
	require.Equal(t, 1.0, r)
}

func TestSeriesNonIncreasing(t *testing.T) {
	g := chainGraph(t, 60)
	curve, err := ConfirmationRiskSeries(g, hashOf(2), 0.2)
	require.NoError(t, err)
	require.NotEmpty(t, curve)
	for i := 1; i < len(curve); i++ {
		require.GreaterOrEqual(t, curve[i].TimeOffset, curve[i-1].TimeOffset)
		require.LessOrEqual(t, curve[i].Risk, curve[i-1].Risk)
	}
	require.GreaterOrEqual(t, curve[len(curve)-1].Risk, riskFloor)
}

func TestHigherAdversaryConfirmsLater(t *testing.T) {
	g := chainGraph(t, 150)
	b := hashOf(2)

	weak, ok, err := ConfirmationRisk(g, b, 0.1, 1e-6)
	require.NoError(t, err)
	require.True(t, ok)
	require.Less(t, weak.Risk, 1e-6)

	strong, ok, err := ConfirmationRisk(g, b, 0.3, 1e-6)
	require.NoError(t, err)
	require.True(t, ok)
	require.Less(t, strong.Risk, 1e-6)

	require.Less(t, weak.TimeOffset, strong.TimeOffset)
	require.Less(t, weak.Advantage, strong.Advantage)
}

func TestThresholdNeverReachedNearTip(t *testing.T) {
	g := chainGraph(t, 30)
	// Pivot position 27 only ever accumulates a fork advantage of 3.
	res, ok, err := ConfirmationRisk(g, hashOf(28), 0.1, 1e-6)
	require.NoError(t, err)
	require.False(t, ok)
	require.Zero(t, res)
}

func TestGenesisAndUnknownBlocksRejected(t *testing.T) {
	g := chainGraph(t, 10)

	_, _, err := ConfirmationRisk(g, hashOf(1), 0.1, 1e-6)
	require.Error(t, err)

	_, _, err = ConfirmationRisk(g, hashOf(99), 0.1, 1e-6)
	require.Error(t, err)

	_, err = ConfirmationRiskSeries(g, hashOf(1), 0.1)
	require.Error(t, err)
}

func TestParameterValidation(t *testing.T) {
	g := chainGraph(t, 10)
	for _, p := range []float64{-0.1, 0, 1, 1.5} {
		_, _, err := ConfirmationRisk(g, hashOf(2), p, 1e-6)
		require.Error(t, err)
	}
	for _, th := range []float64{0, 1, 2} {
		_, _, err := ConfirmationRisk(g, hashOf(2), 0.1, th)
		require.Error(t, err)
	}
}

func TestNonPivotBlockRejected(t *testing.T) {
	// Fork off block 1 so the lighter branch stays off the pivot chain.
	side := hashOf(200)
	blocks := []*models.Block{
		{Height: 0, Hash: hashOf(1), ParentHash: models.ZeroHash, Timestamp: 1000, LogTimestamp: 1000.1, TxCount: 1, BlockSize: 50},
		{Height: 1, Hash: hashOf(2), ParentHash: hashOf(1), Timestamp: 1001, LogTimestamp: 1001.1, TxCount: 1, BlockSize: 50},
		{Height: 2, Hash: hashOf(3), ParentHash: hashOf(2), Timestamp: 1002, LogTimestamp: 1002.1, TxCount: 1, BlockSize: 50},
		{Height: 1, Hash: side, ParentHash: hashOf(1), Timestamp: 1001, LogTimestamp: 1001.2, TxCount: 1, BlockSize: 50},
	}
	g, err := graph.Build(blocks)
	require.NoError(t, err)

	_, _, err = ConfirmationRisk(g, side, 0.1, 1e-6)
	require.Error(t, err)
}

func TestAvgConfirmTime(t *testing.T) {
	g := chainGraph(t, 150)

	avg, count, err := AvgConfirmTime(g, 0.1, 1e-6)
	require.NoError(t, err)
	require.Greater(t, count, 0)
	require.Greater(t, avg, 0.0)
	// Blocks near the tip never reach the threshold and are excluded.
	require.Less(t, count, len(g.PivotChain())-1)

	// A majority adversary keeps every risk at 1, so no block confirms;
	// that is a normal empty result, not an error.
	avg, count, err = AvgConfirmTime(g, 0.6, 1e-6)
	require.NoError(t, err)
	require.Zero(t, count)
	require.Zero(t, avg)

	_, _, err = AvgConfirmTime(g, 1.6, 1e-6)
	require.Error(t, err)
}
