package config

import (
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/gobwas/glob"
)

func validateVersion(cfg *Config) error {
	if cfg.Version < 1 {
		return fmt.Errorf("version must be >= 1, got %d", cfg.Version)
	}
	if cfg.Version > 1 {
		return fmt.Errorf("unsupported config version %d; supported version is 1", cfg.Version)
	}
	return nil
}

func validateBridge(cfg *Config) error {
	switch cfg.Bridge.Role {
	case "backend", "editor":
	default:
		return fmt.Errorf("bridge.role must be one of: backend, editor; got %q", cfg.Bridge.Role)
	}
	if _, _, err := net.SplitHostPort(cfg.Bridge.Address); err != nil {
		return fmt.Errorf("bridge.address %q must be host:port: %w", cfg.Bridge.Address, err)
	}
	if cfg.Bridge.MaxFrameBytes < 1024 {
		return fmt.Errorf("bridge.max_frame_bytes must be >= 1024, got %d", cfg.Bridge.MaxFrameBytes)
	}
	if cfg.Bridge.Reconnect.MaxInterval < cfg.Bridge.Reconnect.InitialInterval {
		return fmt.Errorf("bridge.reconnect.max_interval (%s) must not be less than initial_interval (%s)",
			cfg.Bridge.Reconnect.MaxInterval, cfg.Bridge.Reconnect.InitialInterval)
	}
	if cfg.Bridge.Reconnect.MaxElapsed < 0 {
		return fmt.Errorf("bridge.reconnect.max_elapsed must not be negative")
	}
	return nil
}

func validateResolver(cfg *Config) error {
	size := cfg.Resolver.CacheSize
	if size <= 0 {
		return fmt.Errorf("resolver.cache_size must be > 0, got %d", size)
	}
	if size&(size-1) != 0 {
		return fmt.Errorf("resolver.cache_size must be a power of two, got %d", size)
	}
	for i, pattern := range cfg.Resolver.Ignore {
		if _, err := glob.Compile(pattern); err != nil {
			return fmt.Errorf("resolver.ignore[%d] %q is invalid: %w", i, pattern, err)
		}
	}
	return nil
}

func validateIndex(cfg *Config) error {
	if cfg.Index.Watch && cfg.Index.Manifest == "" && cfg.Index.Path == "" {
		return fmt.Errorf("index.watch requires index.manifest or index.path")
	}
	if cfg.Index.Debounce < 0 {
		return fmt.Errorf("index.debounce must not be negative")
	}
	return nil
}

func validateNavigation(cfg *Config) error {
	argv := cfg.Navigation.EditorCommand
	if len(argv) == 0 {
		return nil
	}
	joined := strings.Join(argv[1:], " ")
	if !strings.Contains(joined, "{file}") {
		return fmt.Errorf("navigation.editor_command must pass {file} to %q", argv[0])
	}
	return nil
}

func validateObservability(cfg *Config) error {
	if !cfg.Observability.Enabled {
		return nil
	}
	if cfg.Observability.Port <= 0 || cfg.Observability.Port > 65535 {
		return fmt.Errorf("observability.port must be between 1 and 65535, got %d", cfg.Observability.Port)
	}
	return nil
}

// Validate returns every problem found in cfg.
func Validate(cfg *Config) []error {
	var errs []error

	for _, check := range []func(*Config) error{
		validateVersion,
		validateBridge,
		validateResolver,
		validateIndex,
		validateNavigation,
		validateObservability,
	} {
		if err := check(cfg); err != nil {
			errs = append(errs, err)
		}
	}

	errs = append(errs, validatePaths(cfg)...)
	return errs
}

func validatePaths(cfg *Config) []error {
	var errs []error
	if root := cfg.Paths.ProjectRoot; root != "" {
		info, err := os.Stat(root)
		if err != nil {
			errs = append(errs, fmt.Errorf("paths.project_root %q does not exist", root))
		} else if !info.IsDir() {
			errs = append(errs, fmt.Errorf("paths.project_root %q is not a directory", root))
		}
	}
	if path := cfg.Index.Path; path != "" {
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			errs = append(errs, fmt.Errorf("index.path %q is a directory, expected file", path))
		}
	}
	return errs
}
