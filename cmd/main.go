package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"treegraph/logger"
)

var configFile string

func main() {
	rootCmd := &cobra.Command{
		Use:   "treegraph",
		Short: "Conflux tree-graph log analyzer",
		Long: "treegraph rebuilds the block DAG from node new-block insertion logs,\n" +
			"derives the pivot chain and epoch partition, and estimates how long a\n" +
			"block must age before an adversary is unlikely to revert it.",
	}
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "config/config.yaml", "path to config file")

	rootCmd.AddCommand(newAnalyzeCmd(), newServeCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// initConfig loads the optional config file, applies defaults, and brings up
// the logger. All paths used by the core arrive via flags or config keys;
// nothing is hard-coded.
func initConfig() error {
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.app_log_file", "")
	viper.SetDefault("analysis.workers", 8)
	viper.SetDefault("analysis.adversaries", []float64{0.1, 0.2, 0.3})
	viper.SetDefault("analysis.risk_threshold", 1e-6)
	viper.SetDefault("leveldb.path", "")
	viper.SetDefault("server.port", 8080)

	if _, err := os.Stat(configFile); err == nil {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("config file error: %w", err)
		}
	}

	return logger.Init(viper.GetString("log.level"), viper.GetString("log.app_log_file"))
}
