package config

import (
	"context"
	"fmt"

	"github.com/marmos91/atlasfs/internal/logger"
	"github.com/marmos91/atlasfs/pkg/store/kv"
	kvbadger "github.com/marmos91/atlasfs/pkg/store/kv/badger"
	kvmemory "github.com/marmos91/atlasfs/pkg/store/kv/memory"
	"github.com/mitchellh/mapstructure"
)

// CreateStore opens the configured engine and wraps it in a shared handle.
//
// The engine is partitioned by cfg.Namespace and every call goes through an
// executor bounded by cfg.MaxBlockingOps. Closing the last handle clone
// closes the engine.
//
// Supported types:
//   - "badger": persistent BadgerDB at store.badger.db_path
//   - "memory": in-process map, lost on exit
func CreateStore(ctx context.Context, cfg *StoreConfig, log *logger.Logger) (*kv.Handle, error) {
	var engine kv.Store

	switch cfg.Type {
	case "memory":
		engine = kvmemory.New()
	case "badger":
		badgerCfg, err := decodeBadgerConfig(cfg.Badger)
		if err != nil {
			return nil, fmt.Errorf("invalid badger config: %w", err)
		}
		store, err := kvbadger.Open(ctx, badgerCfg, log)
		if err != nil {
			return nil, err
		}
		engine = store
	default:
		return nil, fmt.Errorf("unknown store type: %q", cfg.Type)
	}

	if cfg.Namespace != "" {
		logger.Debug("Store keys partitioned under namespace %q", cfg.Namespace)
	}

	engine = kv.WithNamespace(engine, cfg.Namespace)
	return kv.NewHandle(engine, kv.NewExecutor(cfg.MaxBlockingOps)), nil
}

// BadgerConfig decodes the badger section of cfg.
func BadgerConfig(cfg *StoreConfig) (kvbadger.Config, error) {
	return decodeBadgerConfig(cfg.Badger)
}

func decodeBadgerConfig(options map[string]any) (kvbadger.Config, error) {
	var badgerCfg kvbadger.Config
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &badgerCfg,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return badgerCfg, err
	}
	if err := decoder.Decode(options); err != nil {
		return badgerCfg, err
	}
	return badgerCfg, nil
}
