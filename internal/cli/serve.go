package cli

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/AI2HU/chatstats/internal/aggregator"
	"github.com/AI2HU/chatstats/internal/api"
	"github.com/AI2HU/chatstats/internal/logger"
	"github.com/AI2HU/chatstats/internal/reporter"
	"github.com/AI2HU/chatstats/internal/router"
	"github.com/AI2HU/chatstats/internal/tokenizer"
	"github.com/AI2HU/chatstats/internal/tokenizer/google"
	"github.com/AI2HU/chatstats/internal/tokenizer/remote"
)

var (
	serveHost  string
	servePort  string
	corsOrigin string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the usage tracking service",
	Long: `Start the chatstats service: the HTTP ingestion/read API, the
background aggregation loop, and the scheduled daily summary.

The aggregator opens its own storage handle and is the only writer;
the API reads through a separate handle.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVarP(&servePort, "port", "p", "", "Port to run the API server on (overrides config)")
	serveCmd.Flags().StringVarP(&serveHost, "host", "H", "", "Host to bind the API server to (overrides config)")
	serveCmd.Flags().StringVarP(&corsOrigin, "cors-origin", "c", "", "CORS origin to allow (overrides config, use '*' for all origins)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	host := cfg.API.Host
	if serveHost != "" {
		host = serveHost
	}
	port := cfg.API.Port
	if servePort != "" {
		port = servePort
	}
	origin := cfg.API.CORSOrigin
	if corsOrigin != "" {
		origin = corsOrigin
	}

	counter, err := buildCounter()
	if err != nil {
		return err
	}

	// The aggregator is the single writer and owns a separate storage
	// handle from the read path.
	aggStore, err := newStore(cfg)
	if err != nil {
		return err
	}

	agg := aggregator.New(aggStore, cfg.Events.QueueSize)
	if err := agg.Start(ctx); err != nil {
		// Degraded mode: the API keeps serving reads, every incoming
		// event will be dropped.
		logger.Warning("Background aggregation unavailable, events will be dropped: %v", err)
	} else {
		defer agg.Stop()
	}

	rt := router.New(agg, database, counter, cfg.Tokenizer.TokenPadding, cfg.Tokenizer.CharsPerToken)

	if cfg.Report.Enabled {
		rep := reporter.New(database, cfg.Report.CronExpr)
		if err := rep.Start(); err != nil {
			logger.Warning("Daily summary reporter unavailable: %v", err)
		} else {
			defer rep.Stop()
		}
	}

	server := api.NewServer(rt, database, origin)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigCh
		logger.Info("Shutting down chatstats...")
		agg.Stop()
		database.Disconnect(ctx)
		aggStore.Disconnect(ctx)
		os.Exit(0)
	}()

	addr := net.JoinHostPort(host, port)
	logger.Info("Chatstats API listening on http://%s/api/v1", addr)

	if err := server.Run(addr); err != nil {
		return fmt.Errorf("API server failed: %w", err)
	}
	return nil
}

// buildCounter assembles the configured token counting provider. The
// heuristic estimate is always registered as the fallback provider.
func buildCounter() (tokenizer.Counter, error) {
	registry := tokenizer.NewRegistry()
	registry.Register(tokenizer.NewEstimate(cfg.Tokenizer.CharsPerToken))
	registry.Register(google.New(cfg.Tokenizer.APIKey, cfg.Tokenizer.Model, cfg.Tokenizer.RatePerSecond))
	registry.Register(remote.New(cfg.Tokenizer.BaseURL, cfg.Tokenizer.RatePerSecond))

	provider := cfg.Tokenizer.Provider
	if provider == "" {
		provider = "estimate"
	}

	counter, err := registry.Get(provider)
	if err != nil {
		return nil, fmt.Errorf("failed to configure tokenizer: %w", err)
	}
	return counter, nil
}
