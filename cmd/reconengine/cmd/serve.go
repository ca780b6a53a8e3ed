package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"card-recon-engine/internal/api"
	"card-recon-engine/internal/matcher"
	"card-recon-engine/internal/orchestrator"
	"card-recon-engine/internal/store"
	"card-recon-engine/pkg/logger"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	listenAddr string
	workers    int
	queueSize  int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the reconciliation HTTP API",
	Long: `Serve starts the HTTP API. Batches are triggered with
POST /api/batches/start and polled with GET /api/batches/{id}; executions run
on a bounded background worker pool.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVarP(&listenAddr, "listen", "l", ":8080", "HTTP listen address")
	serveCmd.Flags().IntVar(&workers, "workers", 4, "background execution workers")
	serveCmd.Flags().IntVar(&queueSize, "queue-size", 16, "pending execution queue capacity")
	addMatchingFlags(serveCmd)

	viper.BindPFlag("listen", serveCmd.Flags().Lookup("listen"))
	viper.BindPFlag("workers", serveCmd.Flags().Lookup("workers"))
	viper.BindPFlag("queue-size", serveCmd.Flags().Lookup("queue-size"))
}

func runServe(cmd *cobra.Command, args []string) error {
	log := logger.GetGlobalLogger().WithComponent("serve")

	st, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer func() { _ = st.Close() }()

	matchCfg, err := matchingConfigFromFlags()
	if err != nil {
		return err
	}

	orchCfg := orchestrator.DefaultConfig()
	orchCfg.Workers = viper.GetInt("workers")
	orchCfg.QueueSize = viper.GetInt("queue-size")

	orch := orchestrator.New(st, matcher.NewEngine(matchCfg), orchCfg)
	defer orch.Close()

	server := api.NewServer(viper.GetString("listen"), orch)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		log.WithField("signal", sig.String()).Info("Shutting down")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return server.Shutdown(ctx)
}
