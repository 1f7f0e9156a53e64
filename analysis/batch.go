// Package analysis runs the whole pipeline (resolve, parse, load, finalize,
// query) over a batch of independent node logs. Each log is one unit of work
// with no shared mutable state, so the batch fans out to one worker per
// graph and merges summaries only at the end.
package analysis

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"treegraph/graph"
	"treegraph/logger"
	"treegraph/logsource"
	"treegraph/models"
	"treegraph/repository"
	"treegraph/risk"
)

// DefaultWorkers bounds the fan-out when the config does not set one.
const DefaultWorkers = 8

// Config controls one batch run.
type Config struct {
	// Root is a log file, a log directory, or a tree of per-node log
	// directories.
	Root          string
	Workers       int
	Adversaries   []float64
	RiskThreshold float64
}

// Run analyzes every log under cfg.Root and returns the per-log summaries,
// sorted by ID. When repo is non-nil, each summary and its CSV exports are
// persisted as they complete.
func Run(ctx context.Context, cfg Config, repo repository.AnalysisRepositoryInterface) ([]*models.Summary, error) {
	targets, err := discover(cfg.Root)
	if err != nil {
		return nil, err
	}

	workers := cfg.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}

	logger.Logger.Info("Starting batch analysis",
		zap.String("root", cfg.Root),
		zap.Int("logs", len(targets)),
		zap.Int("workers", workers))

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(workers)

	var mu sync.Mutex
	var summaries []*models.Summary

	for _, target := range targets {
		target := target
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			summary, err := analyzeOne(target, cfg, repo)
			if err != nil {
				return fmt.Errorf("analyze %s: %w", target, err)
			}
			mu.Lock()
			summaries = append(summaries, summary)
			mu.Unlock()
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(summaries, func(a, b int) bool { return summaries[a].ID < summaries[b].ID })
	return summaries, nil
}

// discover lists the per-log analysis targets under root: the root itself
// when it is a file or a directory holding a candidate log, otherwise every
// subdirectory that holds one.
func discover(root string) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", root, err)
	}
	if !info.IsDir() {
		return []string{root}, nil
	}

	dirs := make(map[string]struct{})
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		name := d.Name()
		if strings.HasSuffix(name, logsource.ArtifactSuffix) || strings.HasSuffix(name, ".log") {
			dirs[filepath.Dir(path)] = struct{}{}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}
	if len(dirs) == 0 {
		return nil, fmt.Errorf("%s: %w", root, logsource.ErrNotFound)
	}

	targets := make([]string, 0, len(dirs))
	for dir := range dirs {
		targets = append(targets, dir)
	}
	sort.Strings(targets)
	return targets, nil
}

// analyzeOne runs the full pipeline for a single log target.
func analyzeOne(target string, cfg Config, repo repository.AnalysisRepositoryInterface) (*models.Summary, error) {
	start := time.Now()

	g, err := graph.Load(target)
	if err != nil {
		return nil, err
	}

	summary, err := Summarize(g, target, cfg.Adversaries, cfg.RiskThreshold)
	if err != nil {
		return nil, err
	}

	if repo != nil {
		if err := persist(repo, g, summary); err != nil {
			return nil, err
		}
	}

	logger.Logger.Info("Analyzed log",
		zap.String("target", target),
		zap.Int("blocks", summary.BlockCount),
		zap.Int("pivot_length", summary.PivotLength),
		zap.Duration("elapsed", time.Since(start)))

	return summary, nil
}

// Summarize runs the query surface over one finalized graph.
func Summarize(g *graph.Graph, id string, adversaries []float64, threshold float64) (*models.Summary, error) {
	chain := g.PivotChain()
	tip := chain[len(chain)-1]

	avgEpoch, err := g.AvgEpochTime(tip)
	if err != nil {
		return nil, err
	}

	stats := make([]models.ConfirmStat, 0, len(adversaries))
	for _, p := range adversaries {
		avg, count, err := risk.AvgConfirmTime(g, p, threshold)
		if err != nil {
			return nil, err
		}
		stats = append(stats, models.ConfirmStat{
			Adversary:      p,
			RiskThreshold:  threshold,
			AvgConfirmTime: avg,
			Confirmed:      count,
		})
	}

	return &models.Summary{
		ID:           id,
		LogPath:      id,
		BlockCount:   g.NumBlocks(),
		PivotLength:  len(chain),
		AvgEpochTime: avgEpoch,
		ConfirmStats: stats,
		GeneratedAt:  time.Now().UnixMilli(),
	}, nil
}

// persist writes the summary and both CSV exports as one atomic unit.
func persist(repo repository.AnalysisRepositoryInterface, g *graph.Graph, summary *models.Summary) error {
	var edges, indices bytes.Buffer
	if err := g.ExportEdges(&edges); err != nil {
		return err
	}
	if err := g.ExportIndices(&indices); err != nil {
		return err
	}
	return repo.PutAnalysis(summary, edges.Bytes(), indices.Bytes())
}
