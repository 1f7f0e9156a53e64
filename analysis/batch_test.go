package analysis_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"treegraph/analysis"
	"treegraph/logsource"
	"treegraph/models"
)

type mockRepo struct {
	mu        sync.Mutex
	summaries map[string]*models.Summary
	exports   map[string][]byte
}

func newMockRepo() *mockRepo {
	return &mockRepo{
		summaries: make(map[string]*models.Summary),
		exports:   make(map[string][]byte),
	}
}

func (m *mockRepo) PutAnalysis(s *models.Summary, edges, indices []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copy := *s
	m.summaries[s.ID] = &copy
	m.exports[s.ID+":edges"] = append([]byte(nil), edges...)
	m.exports[s.ID+":indices"] = append([]byte(nil), indices...)
	return nil
}

func (m *mockRepo) GetSummary(id string) (*models.Summary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.summaries[id]
	if !ok {
		return nil, fmt.Errorf("not found")
	}
	copy := *s
	return &copy, nil
}

func (m *mockRepo) ListSummaries() ([]*models.Summary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	res := make([]*models.Summary, 0, len(m.summaries))
	for _, s := range m.summaries {
		copy := *s
		res = append(res, &copy)
	}
	return res, nil
}

func (m *mockRepo) GetExport(id, kind string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.exports[id+":"+kind]
	if !ok {
		return nil, fmt.Errorf("not found")
	}
	return data, nil
}

func hexHash(i int) string {
	return fmt.Sprintf("0x%064x", i)
}

// writeNodeLog writes a raw node log with a pure chain of n block insertion
// lines plus some surrounding noise.
func writeNodeLog(t *testing.T, dir string, n int) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))

	var sb strings.Builder
	sb.WriteString("2020-05-01T11:59:59Z INFO network - peer connected\n")
	parent := hexHash(0)
	for k := 1; k <= n; k++ {
		sb.WriteString(fmt.Sprintf(
			"2020-05-01T12:00:%02dZ INFO sync - %s hash: Some(%s), parent_hash: %s, height: %d, timestamp: %d, referee_hashes: [], tx_count=1, block_size=100\n",
			k, logsource.NewBlockMarker, hexHash(k), parent, k-1, 1588334400+k))
		parent = hexHash(k)
	}
	sb.WriteString("2020-05-01T12:01:00Z DEBUG consensus - pivot switched\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "conflux.log"), []byte(sb.String()), 0o644))
}

func TestRunBatch(t *testing.T) {
	root := t.TempDir()
	writeNodeLog(t, filepath.Join(root, "node0"), 30)
	writeNodeLog(t, filepath.Join(root, "node1"), 40)

	repo := newMockRepo()
	cfg := analysis.Config{
		Root:          root,
		Workers:       2,
		Adversaries:   []float64{0.1},
		RiskThreshold: 1e-3,
	}

	summaries, err := analysis.Run(context.Background(), cfg, repo)
	require.NoError(t, err)
	require.Len(t, summaries, 2)

	// Sorted by ID, so node0 comes first.
	require.Equal(t, filepath.Join(root, "node0"), summaries[0].ID)
	require.Equal(t, 30, summaries[0].BlockCount)
	require.Equal(t, 30, summaries[0].PivotLength)
	require.Equal(t, 40, summaries[1].BlockCount)

	require.Len(t, summaries[0].ConfirmStats, 1)
	stat := summaries[0].ConfirmStats[0]
	require.Equal(t, 0.1, stat.Adversary)
	require.Greater(t, stat.Confirmed, 0)
	require.Greater(t, stat.AvgConfirmTime, 0.0)

	for _, s := range summaries {
		stored, err := repo.GetSummary(s.ID)
		require.NoError(t, err)
		require.Equal(t, s.BlockCount, stored.BlockCount)

		edges, err := repo.GetExport(s.ID, "edges")
		require.NoError(t, err)
		require.Len(t, strings.Split(strings.TrimSpace(string(edges)), "\n"), s.BlockCount-1)

		indices, err := repo.GetExport(s.ID, "indices")
		require.NoError(t, err)
		require.Len(t, strings.Split(strings.TrimSpace(string(indices)), "\n"), s.BlockCount)
	}
}

func TestRunSingleFile(t *testing.T) {
	root := t.TempDir()
	writeNodeLog(t, root, 20)

	summaries, err := analysis.Run(context.Background(), analysis.Config{
		Root:          filepath.Join(root, "conflux.log"),
		Adversaries:   []float64{0.1},
		RiskThreshold: 1e-3,
	}, nil)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	require.Equal(t, 20, summaries[0].BlockCount)
}

func TestRunEmptyRoot(t *testing.T) {
	_, err := analysis.Run(context.Background(), analysis.Config{
		Root:          t.TempDir(),
		Adversaries:   []float64{0.1},
		RiskThreshold: 1e-3,
	}, nil)
	require.ErrorIs(t, err, logsource.ErrNotFound)
}

func TestRunCancelled(t *testing.T) {
	root := t.TempDir()
	writeNodeLog(t, filepath.Join(root, "node0"), 10)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := analysis.Run(ctx, analysis.Config{
		Root:          root,
		Adversaries:   []float64{0.1},
		RiskThreshold: 1e-3,
	}, nil)
	require.ErrorIs(t, err, context.Canceled)
}
