// Package config loads the service configuration from a YAML or JSON file
// with optional environment overrides.
package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/smartbin/fleetops/core/dispatch"
	"github.com/smartbin/fleetops/infra/mongo"
	"github.com/smartbin/fleetops/infra/mqtt"
)

// Config is the root configuration.
type Config struct {
	MQTT     mqtt.Config     `json:"mqtt"`
	Dispatch dispatch.Config `json:"dispatch"`
	Capacity CapacityConfig  `json:"capacity"`
	Metrics  MetricsConfig   `json:"metrics"`
	Mongo    mongo.Config    `json:"mongo"`
	API      APIConfig       `json:"api"`
}

// Load reads the configuration at path. Environment variables prefixed with
// FO_ override file values, with __ separating nested keys.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	ext := strings.ToLower(filepath.Ext(path))
	var parser koanf.Parser
	switch ext {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, err
	}
	if err := k.Load(env.Provider("FO_", "__", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "fo_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.MQTT.SetDefaults()
	cfg.Dispatch.SetDefaults()
	cfg.Capacity.SetDefaults()
	cfg.Metrics.SetDefaults()
	cfg.Mongo.SetDefaults()
	cfg.API.SetDefaults()
	if err := cfg.MQTT.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Capacity.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Mongo.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
