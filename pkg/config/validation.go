package config

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"
)

// validate is the singleton validator instance
var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Validate validates the configuration using struct tags and custom rules.
//
// Note: Log level normalization is handled in ApplyDefaults, not here.
// Validation accepts both uppercase and lowercase log levels.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}

	if err := validateCustomRules(cfg); err != nil {
		return err
	}

	return nil
}

// validateCustomRules performs custom validation beyond struct tags.
func validateCustomRules(cfg *Config) error {
	cmd := cfg.Adapters.Command
	ws := cfg.Adapters.WebSocket

	if !cmd.Enabled && !ws.Enabled {
		return fmt.Errorf("adapters: at least one adapter must be enabled")
	}

	if cmd.Enabled && ws.Enabled && cmd.Port != 0 && cmd.Port == ws.Port &&
		cmd.BindAddress == ws.BindAddress {
		return fmt.Errorf("adapters: command and websocket both listen on %s:%d", cmd.BindAddress, cmd.Port)
	}

	if cfg.Server.Metrics.Enabled {
		for _, a := range []struct {
			name    string
			enabled bool
			port    int
		}{{"command", cmd.Enabled, cmd.Port}, {"websocket", ws.Enabled, ws.Port}} {
			if a.enabled && a.port == cfg.Server.Metrics.Port {
				return fmt.Errorf("server.metrics: port %d already used by the %s adapter", a.port, a.name)
			}
		}
	}

	if cfg.Store.Type == "badger" {
		badgerCfg, err := decodeBadgerConfig(cfg.Store.Badger)
		if err != nil {
			return fmt.Errorf("store.badger: %w", err)
		}
		if err := validate.Struct(badgerCfg); err != nil {
			return fmt.Errorf("store.badger: %w", formatValidationError(err))
		}
		if badgerCfg.GCSchedule != "" {
			if _, err := cron.ParseStandard(badgerCfg.GCSchedule); err != nil {
				return fmt.Errorf("store.badger: invalid gc_schedule %q: %w", badgerCfg.GCSchedule, err)
			}
		}
	}

	return nil
}

// formatValidationError converts validator errors into user-friendly messages.
func formatValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) && len(validationErrs) > 0 {
		// Return the first validation error with context
		e := validationErrs[0]
		return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
			e.Namespace(), e.Tag(), e.Value())
	}
	return err
}
