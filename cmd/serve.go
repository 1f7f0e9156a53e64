package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gorilla/mux"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"treegraph/graph"
	"treegraph/handlers"
	"treegraph/logger"
	"treegraph/routers"
)

func newServeCmd() *cobra.Command {
	var (
		logPath string
		port    int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the read-only query API over one loaded log",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := initConfig(); err != nil {
				return err
			}
			if !cmd.Flags().Changed("port") {
				port = viper.GetInt("server.port")
			}

			logger.Logger.Info("Loading graph", zap.String("log_path", logPath))
			g, err := graph.Load(logPath)
			if err != nil {
				logger.Logger.Error("Failed to load graph", zap.Error(err))
				return err
			}

			h := handlers.NewHandler(g)
			r := mux.NewRouter()
			routers.RegisterRoutes(r, h)

			srv := &http.Server{
				Addr:    fmt.Sprintf(":%d", port),
				Handler: r,
			}

			go func() {
				if err := srv.ListenAndServe(); err != nil {
					logger.Logger.Info("Server stopped", zap.Error(err))
				}
			}()

			logger.Logger.Info("Server running", zap.Int("port", port), zap.Int("blocks", g.NumBlocks()))

			// Graceful shutdown
			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

			<-sigCh
			logger.Logger.Info("Shutdown signal received, exiting...")
			return srv.Close()
		},
	}

	cmd.Flags().StringVarP(&logPath, "log-path", "l", "", "log file or directory to serve (required)")
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "HTTP listen port")
	cmd.MarkFlagRequired("log-path")

	return cmd
}
