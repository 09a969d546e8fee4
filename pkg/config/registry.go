package config

import (
	"context"
	"fmt"
	"os"

	"github.com/marmos91/atlasfs/internal/logger"
	"github.com/marmos91/atlasfs/pkg/events"
	"github.com/marmos91/atlasfs/pkg/processor"
	"github.com/marmos91/atlasfs/pkg/registry"
)

// InitializeRegistry builds the process context from configuration:
//  1. Opens the store (fatal on error)
//  2. Creates the event bus
//  3. Builds the processor over the configured filesystem root
//
// Example:
//
//	cfg, _ := config.Load("config.yaml")
//	reg, err := config.InitializeRegistry(ctx, cfg, config.InitializeMetrics(cfg))
//	if err != nil {
//	    log.Fatalf("Failed to initialize registry: %v", err)
//	}
//	defer reg.Close()
func InitializeRegistry(ctx context.Context, cfg *Config, m *MetricsResult) (*registry.Registry, error) {
	log := logger.Default()
	log.Debug("Initializing registry from configuration")

	if m == nil {
		m = &MetricsResult{}
	}

	store, err := CreateStore(ctx, &cfg.Store, log)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", cfg.Store.Type, err)
	}

	bus := events.NewBus(cfg.Events.Capacity, m.Events)

	proc := processor.New(processor.NewFs(cfg.Filesystem.Root), store, bus, processor.Options{
		DirMode: os.FileMode(cfg.Filesystem.DirMode),
		Marker:  cfg.Filesystem.Marker,
		Logger:  log,
	})

	reg, err := registry.New(registry.Components{
		Logger:    log,
		Store:     store,
		Bus:       bus,
		Processor: proc,
	})
	if err != nil {
		bus.Close()
		_ = store.Close()
		return nil, err
	}

	log.Info("Registry initialized: store=%s namespace=%q root=%s event_capacity=%d",
		cfg.Store.Type, cfg.Store.Namespace, cfg.Filesystem.Root, bus.Capacity())
	return reg, nil
}
