package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Supported config file formats.
const (
	FormatYAML = "yaml"
	FormatTOML = "toml"
)

const fileHeader = `# atlasfs configuration file
#
# Every key can be overridden with an environment variable built from its
# path, e.g. ATLASFS_ADAPTERS_COMMAND_PORT=9999.

`

// ToMap converts cfg into a plain map keyed by the mapstructure names, with
// durations rendered as strings ("30s").
func ToMap(cfg *Config) (map[string]any, error) {
	out := make(map[string]any)
	if err := mapstructure.Decode(cfg, &out); err != nil {
		return nil, fmt.Errorf("failed to convert config: %w", err)
	}
	normalizeValues(out)
	return out, nil
}

func normalizeValues(m map[string]any) {
	for key, value := range m {
		switch v := value.(type) {
		case map[string]any:
			normalizeValues(v)
		case time.Duration:
			m[key] = v.String()
		}
	}
}

// FormatFromPath picks the file format from the extension of path.
func FormatFromPath(path string) string {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return FormatTOML
	}
	return FormatYAML
}

// Marshal renders cfg as YAML or TOML, preceded by a comment header.
func Marshal(cfg *Config, format string) ([]byte, error) {
	m, err := ToMap(cfg)
	if err != nil {
		return nil, err
	}

	var body []byte
	switch format {
	case FormatYAML:
		var buf bytes.Buffer
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(m); err != nil {
			return nil, fmt.Errorf("failed to encode yaml: %w", err)
		}
		if err := enc.Close(); err != nil {
			return nil, fmt.Errorf("failed to encode yaml: %w", err)
		}
		body = buf.Bytes()
	case FormatTOML:
		body, err = toml.Marshal(m)
		if err != nil {
			return nil, fmt.Errorf("failed to encode toml: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config format %q", format)
	}

	return append([]byte(fileHeader), body...), nil
}

// InitConfig writes the default configuration to the default location.
//
// Returns the path written. An existing file is only replaced when force is
// set.
func InitConfig(force bool) (string, error) {
	return InitConfigToPath(GetDefaultConfigPath(), force)
}

// InitConfigToPath writes the default configuration to path, in the format
// implied by its extension.
func InitConfigToPath(path string, force bool) (string, error) {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return "", fmt.Errorf("config file already exists at %s (use --force to overwrite)", path)
		}
	}

	data, err := Marshal(GetDefaultConfig(), FormatFromPath(path))
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write config file: %w", err)
	}

	return path, nil
}
