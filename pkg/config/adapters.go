package config

import (
	"fmt"

	"github.com/marmos91/atlasfs/pkg/adapter"
	"github.com/marmos91/atlasfs/pkg/adapter/command"
	"github.com/marmos91/atlasfs/pkg/adapter/websocket"
)

// CreateAdapters creates all enabled protocol adapters from the configuration.
//
// Parameters:
//   - cfg: The complete atlasfs configuration
//   - m: Metrics collectors; nil means no metrics
//
// Returns:
//   - []adapter.Adapter: List of enabled adapters ready to be added to the server
//   - error: Any error during adapter creation
func CreateAdapters(cfg *Config, m *MetricsResult) ([]adapter.Adapter, error) {
	if m == nil {
		m = &MetricsResult{}
	}

	var adapters []adapter.Adapter

	if cfg.Adapters.Command.Enabled {
		a, err := command.New(cfg.Adapters.Command, m.Command)
		if err != nil {
			return nil, err
		}
		adapters = append(adapters, a)
	}

	if cfg.Adapters.WebSocket.Enabled {
		a, err := websocket.New(cfg.Adapters.WebSocket, m.WebSocket)
		if err != nil {
			return nil, err
		}
		adapters = append(adapters, a)
	}

	if len(adapters) == 0 {
		return nil, fmt.Errorf("no adapters enabled in configuration")
	}

	return adapters, nil
}
