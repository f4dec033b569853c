package applog

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadConfig reads a YAML logging configuration from cfgFile.
func LoadConfig(cfgFile string) (*Config, error) {
	data, err := os.ReadFile(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("reading config file (%s): %w", cfgFile, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config file (%s): %w", cfgFile, err)
	}
	return &cfg, nil
}

// Settings converts the Config into Settings. Package overrides are appended after the
// plain filters, so they win over a filter for the same target.
func (c *Config) Settings() Settings {
	s := DefaultSettings()
	if c.LogLevel != "" {
		s.Level = c.LogLevel
	}
	if c.Console != nil {
		s.Console = *c.Console
	}
	s.SpanEvents = c.SpanEvents
	s.Filters = append(s.Filters, c.Filters...)
	for _, p := range c.Packages {
		s.Filters = append(s.Filters, p.Name+"="+p.LogLevel)
	}
	return s
}

// InitFromConfig calls Init with the file, service, component and settings held by cfg.
func InitFromConfig(cfg *Config) error {
	return Init(cfg.File, cfg.Service, cfg.Component, cfg.Settings())
}
