package config

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	DefaultAddress   = "127.0.0.1:41234"
	DefaultCacheSize = 1 << 6
)

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if _, err := toml.Decode(string(data), &cfg); err != nil {
		return nil, err
	}

	ApplyEnvOverrides(&cfg)
	applyDefaults(&cfg)
	normalize(&cfg)

	if errs := Validate(&cfg); len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return &cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	var cfg Config
	ApplyEnvOverrides(&cfg)
	applyDefaults(&cfg)
	normalize(&cfg)
	return &cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Version == 0 {
		cfg.Version = 1
	}
	if strings.TrimSpace(cfg.Paths.StateDir) == "" {
		cfg.Paths.StateDir = "data/state"
	}

	if strings.TrimSpace(cfg.Bridge.Role) == "" {
		cfg.Bridge.Role = "backend"
	}
	if strings.TrimSpace(cfg.Bridge.Address) == "" {
		cfg.Bridge.Address = DefaultAddress
	}
	if cfg.Bridge.HandshakeTimeout <= 0 {
		cfg.Bridge.HandshakeTimeout = 10 * time.Second
	}
	if cfg.Bridge.MaxFrameBytes <= 0 {
		cfg.Bridge.MaxFrameBytes = 1 << 20
	}
	if cfg.Bridge.OutboundBuffer <= 0 {
		cfg.Bridge.OutboundBuffer = 256
	}
	if cfg.Bridge.Reconnect.InitialInterval <= 0 {
		cfg.Bridge.Reconnect.InitialInterval = 500 * time.Millisecond
	}
	if cfg.Bridge.Reconnect.MaxInterval <= 0 {
		cfg.Bridge.Reconnect.MaxInterval = 30 * time.Second
	}
	if cfg.Bridge.RateLimit.ActionsPerSecond <= 0 {
		cfg.Bridge.RateLimit.ActionsPerSecond = 20
	}
	if cfg.Bridge.RateLimit.Burst <= 0 {
		cfg.Bridge.RateLimit.Burst = 10
	}

	if cfg.Resolver.CacheSize == 0 {
		cfg.Resolver.CacheSize = DefaultCacheSize
	}
	if cfg.Index.Debounce == 0 {
		cfg.Index.Debounce = 500 * time.Millisecond
	}

	if cfg.Observability.Port == 0 {
		cfg.Observability.Port = 9464
	}
	if strings.TrimSpace(cfg.Observability.ServiceName) == "" {
		cfg.Observability.ServiceName = "enginelink"
	}
}

func normalize(cfg *Config) {
	cfg.Paths.ProjectRoot = strings.TrimSpace(cfg.Paths.ProjectRoot)
	cfg.Paths.StateDir = strings.TrimSpace(cfg.Paths.StateDir)
	cfg.Bridge.Role = strings.ToLower(strings.TrimSpace(cfg.Bridge.Role))
	cfg.Bridge.Address = strings.TrimSpace(cfg.Bridge.Address)
	cfg.Index.Path = strings.TrimSpace(cfg.Index.Path)
	cfg.Index.Manifest = strings.TrimSpace(cfg.Index.Manifest)
	cfg.Observability.OTLPEndpoint = strings.TrimSpace(cfg.Observability.OTLPEndpoint)

	if len(cfg.Resolver.Ignore) > 0 {
		normalized := make([]string, 0, len(cfg.Resolver.Ignore))
		for _, pattern := range cfg.Resolver.Ignore {
			pattern = strings.TrimSpace(pattern)
			if pattern == "" {
				continue
			}
			normalized = append(normalized, pattern)
		}
		cfg.Resolver.Ignore = normalized
	}

	if len(cfg.Navigation.EditorCommand) > 0 {
		argv := make([]string, 0, len(cfg.Navigation.EditorCommand))
		for _, arg := range cfg.Navigation.EditorCommand {
			if strings.TrimSpace(arg) == "" {
				continue
			}
			argv = append(argv, arg)
		}
		cfg.Navigation.EditorCommand = argv
	}
}
