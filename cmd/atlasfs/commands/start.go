package commands

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/marmos91/atlasfs/internal/logger"
	"github.com/marmos91/atlasfs/pkg/config"
	"github.com/marmos91/atlasfs/pkg/server"
	"github.com/spf13/cobra"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the atlasfs server",
	Long: `Start the atlasfs server in the foreground.

The command port and the WebSocket event feed are started according to the
configuration. SIGINT or SIGTERM triggers a graceful shutdown bounded by
server.shutdown_timeout.

Examples:
  # Start with default config location
  atlasfs start

  # Start with custom config file
  atlasfs start --config /etc/atlasfs/config.yaml

  # Start with environment variable overrides
  ATLASFS_LOGGING_LEVEL=DEBUG ATLASFS_ADAPTERS_COMMAND_CODEC=xdr atlasfs start`,
	RunE: runStart,
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(GetConfigFile())
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	log, err := config.NewLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() { _ = log.Close() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("atlasfs %s starting", Version)
	logger.Info("Configuration loaded from %s (log level %s)", getConfigSource(GetConfigFile()), cfg.Logging.Level)

	metricsResult := config.InitializeMetrics(cfg)

	reg, err := config.InitializeRegistry(ctx, cfg, metricsResult)
	if err != nil {
		return fmt.Errorf("failed to initialize registry: %w", err)
	}
	defer func() {
		if err := reg.Close(); err != nil {
			logger.Error("Registry close error: %v", err)
		}
	}()

	srv := server.New(reg)
	srv.SetStopTimeout(cfg.Server.ShutdownTimeout)

	if metricsResult.Server != nil {
		logger.Info("Metrics enabled on port %d", cfg.Server.Metrics.Port)
		srv.SetMetricsServer(metricsResult.Server)
	} else {
		logger.Info("Metrics collection disabled")
	}

	adapters, err := config.CreateAdapters(cfg, metricsResult)
	if err != nil {
		return fmt.Errorf("failed to create adapters: %w", err)
	}

	for _, a := range adapters {
		if err := srv.AddAdapter(a); err != nil {
			return fmt.Errorf("failed to add %s adapter: %w", a.Protocol(), err)
		}
		logger.Info("Adapter enabled: %s on port %d", a.Protocol(), a.Port())
	}

	logger.Info("Server is running. Press Ctrl+C to stop.")

	err = srv.Serve(ctx)
	stop()

	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Server error: %v", err)
		return err
	}

	logger.Info("Server stopped gracefully")
	return nil
}

// getConfigSource returns a description of where the config was loaded from.
func getConfigSource(configFile string) string {
	if configFile != "" {
		return configFile
	}
	if config.ConfigExists() {
		return config.GetDefaultConfigPath()
	}
	return "defaults"
}
