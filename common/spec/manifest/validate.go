package manifest

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Parse decodes a manifest YAML document into a Config struct and validates
// it. It is the canonical entry point for loading host manifests.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("manifest parse: %w", err)
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks a Config for structural correctness without connecting to
// anything. It returns the first validation error encountered, or nil.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config must not be nil")
	}

	if cfg.APIVersion != SpecVersion {
		return fmt.Errorf("apiVersion must be %q, got %q", SpecVersion, cfg.APIVersion)
	}

	if strings.TrimSpace(cfg.Metadata.Name) == "" {
		return fmt.Errorf("metadata.name must not be empty")
	}

	if len(cfg.Servers) == 0 {
		return fmt.Errorf("servers: at least one endpoint is required")
	}
	seen := make(map[string]struct{}, len(cfg.Servers))
	for i, s := range cfg.Servers {
		if strings.TrimSpace(s.Name) == "" {
			return fmt.Errorf("servers[%d]: name must not be empty", i)
		}
		if _, dup := seen[s.Name]; dup {
			return fmt.Errorf("servers[%d]: duplicate name %q", i, s.Name)
		}
		seen[s.Name] = struct{}{}
		if _, err := ParseEndpoint(s.Name, s.Spec); err != nil {
			return fmt.Errorf("servers[%d] (%q): %w", i, s.Name, err)
		}
	}

	if err := validateLimits(cfg.Limits); err != nil {
		return fmt.Errorf("limits: %w", err)
	}

	for i, r := range cfg.Repairs {
		if err := validateRepair(r); err != nil {
			return fmt.Errorf("repairs[%d]: %w", i, err)
		}
	}

	for i, c := range cfg.Cacheables {
		if strings.TrimSpace(c.Tool) == "" {
			return fmt.Errorf("cacheables[%d]: tool must not be empty", i)
		}
		if strings.TrimSpace(c.Category) == "" {
			return fmt.Errorf("cacheables[%d]: category must not be empty", i)
		}
	}

	for i, o := range cfg.Overrides {
		if strings.TrimSpace(o.Tool) == "" {
			return fmt.Errorf("overrides[%d]: tool must not be empty", i)
		}
		if len(o.Schema) == 0 {
			return fmt.Errorf("overrides[%d] (%q): schema must not be empty", i, o.Tool)
		}
	}

	return nil
}

func validateLimits(l Limits) error {
	if l.MaxToolRounds < 0 {
		return fmt.Errorf("maxToolRounds must not be negative")
	}
	if l.HTTPTimeoutSeconds < 0 {
		return fmt.Errorf("httpTimeoutSeconds must not be negative")
	}
	if l.MaxTokensPerRequest < 0 {
		return fmt.Errorf("maxTokensPerRequest must not be negative")
	}
	return nil
}

func validateRepair(r RepairRule) error {
	if strings.TrimSpace(r.Tool) == "" {
		return fmt.Errorf("tool must not be empty")
	}
	if strings.TrimSpace(r.Param) == "" {
		return fmt.Errorf("param must not be empty")
	}
	switch r.Shape {
	case ShapeIntArray, ShapeInteger:
	default:
		return fmt.Errorf("unknown shape %q", r.Shape)
	}
	// The session cache holds integer lists, so cached substitution is only
	// meaningful for int_array params.
	if r.Cache != "" && r.Shape != ShapeIntArray {
		return fmt.Errorf("cache requires shape %q, got %q", ShapeIntArray, r.Shape)
	}
	return nil
}
