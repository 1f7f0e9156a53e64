package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"treegraph/analysis"
	"treegraph/db"
	"treegraph/logger"
	"treegraph/models"
	"treegraph/repository"
)

func newAnalyzeCmd() *cobra.Command {
	var (
		logPath       string
		workers       int
		adversaries   []float64
		riskThreshold float64
		dbPath        string
	)

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Rebuild tree-graphs from node logs and estimate confirmation times",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := initConfig(); err != nil {
				return err
			}

			// Config file values apply unless the flag was given explicitly.
			if !cmd.Flags().Changed("workers") {
				workers = viper.GetInt("analysis.workers")
			}
			if !cmd.Flags().Changed("adversary") {
				if err := viper.UnmarshalKey("analysis.adversaries", &adversaries); err != nil {
					return err
				}
			}
			if !cmd.Flags().Changed("risk-threshold") {
				riskThreshold = viper.GetFloat64("analysis.risk_threshold")
			}
			if !cmd.Flags().Changed("db") {
				dbPath = viper.GetString("leveldb.path")
			}

			var repo repository.AnalysisRepositoryInterface
			if dbPath != "" {
				ldb, err := db.NewLevelDB(dbPath)
				if err != nil {
					logger.Logger.Error("Failed to open leveldb", zap.String("path", dbPath), zap.Error(err))
					return err
				}
				defer ldb.Close()
				repo = repository.NewAnalysisRepository(ldb)
			}

			summaries, err := analysis.Run(cmd.Context(), analysis.Config{
				Root:          logPath,
				Workers:       workers,
				Adversaries:   adversaries,
				RiskThreshold: riskThreshold,
			}, repo)
			if err != nil {
				return err
			}

			printSummaries(os.Stdout, summaries)
			return nil
		},
	}

	cmd.Flags().StringVarP(&logPath, "log-path", "l", "", "log file or directory to analyze (required)")
	cmd.Flags().IntVar(&workers, "workers", analysis.DefaultWorkers, "parallel log workers")
	cmd.Flags().Float64SliceVar(&adversaries, "adversary", []float64{0.1, 0.2, 0.3}, "adversary mining-power fractions")
	cmd.Flags().Float64Var(&riskThreshold, "risk-threshold", 1e-6, "confirmation risk threshold")
	cmd.Flags().StringVar(&dbPath, "db", "", "leveldb path for persisting summaries and exports")
	cmd.MarkFlagRequired("log-path")

	return cmd
}

func printSummaries(w *os.File, summaries []*models.Summary) {
	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	fmt.Fprintln(tw, "LOG\tBLOCKS\tPIVOT\tAVG EPOCH (s)\tCONFIRMATION")
	for _, s := range summaries {
		confirm := ""
		for i, cs := range s.ConfirmStats {
			if i > 0 {
				confirm += "  "
			}
			confirm += fmt.Sprintf("p=%.2f: %.1fs (n=%d)", cs.Adversary, cs.AvgConfirmTime, cs.Confirmed)
		}
		fmt.Fprintf(tw, "%s\t%d\t%d\t%.2f\t%s\n", s.ID, s.BlockCount, s.PivotLength, s.AvgEpochTime, confirm)
	}
	tw.Flush()
}
