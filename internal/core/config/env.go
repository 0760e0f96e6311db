package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// ApplyEnvOverrides applies environment variable overrides to the configuration.
// Pattern: ENGINELINK_[SECTION]_[KEY] (e.g., ENGINELINK_BRIDGE_ADDRESS).
func ApplyEnvOverrides(cfg *Config) {
	// Paths
	setEnvString(&cfg.Paths.ProjectRoot, "ENGINELINK_PATHS_PROJECT_ROOT")
	setEnvString(&cfg.Paths.StateDir, "ENGINELINK_PATHS_STATE_DIR")

	// Bridge
	setEnvString(&cfg.Bridge.Role, "ENGINELINK_BRIDGE_ROLE")
	setEnvString(&cfg.Bridge.Address, "ENGINELINK_BRIDGE_ADDRESS")
	setEnvDuration(&cfg.Bridge.HandshakeTimeout, "ENGINELINK_BRIDGE_HANDSHAKE_TIMEOUT")
	setEnvInt(&cfg.Bridge.MaxFrameBytes, "ENGINELINK_BRIDGE_MAX_FRAME_BYTES")
	setEnvDuration(&cfg.Bridge.Reconnect.MaxInterval, "ENGINELINK_BRIDGE_RECONNECT_MAX_INTERVAL")
	setEnvBool(&cfg.Bridge.RateLimit.Enabled, "ENGINELINK_BRIDGE_RATE_LIMIT_ENABLED")
	setEnvFloat64(&cfg.Bridge.RateLimit.ActionsPerSecond, "ENGINELINK_BRIDGE_RATE_LIMIT_ACTIONS_PER_SECOND")

	// Resolver
	setEnvInt(&cfg.Resolver.CacheSize, "ENGINELINK_RESOLVER_CACHE_SIZE")

	// Index
	setEnvString(&cfg.Index.Path, "ENGINELINK_INDEX_PATH")
	setEnvString(&cfg.Index.Manifest, "ENGINELINK_INDEX_MANIFEST")
	setEnvBool(&cfg.Index.Watch, "ENGINELINK_INDEX_WATCH")
	setEnvDuration(&cfg.Index.Debounce, "ENGINELINK_INDEX_DEBOUNCE")

	// Observability
	setEnvBool(&cfg.Observability.Enabled, "ENGINELINK_OBSERVABILITY_ENABLED")
	setEnvInt(&cfg.Observability.Port, "ENGINELINK_OBSERVABILITY_PORT")
	setEnvString(&cfg.Observability.OTLPEndpoint, "ENGINELINK_OBSERVABILITY_OTLP_ENDPOINT")
	setEnvBool(&cfg.Observability.EnableTracing, "ENGINELINK_OBSERVABILITY_ENABLE_TRACING")
	setEnvBool(&cfg.Observability.EnableMetrics, "ENGINELINK_OBSERVABILITY_ENABLE_METRICS")
}

func setEnvString(target *string, key string) {
	if val, ok := os.LookupEnv(key); ok {
		slog.Debug("applying env override", "key", key, "value", val)
		*target = val
	}
}

func setEnvInt(target *int, key string) {
	if val, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(val); err == nil {
			slog.Debug("applying env override", "key", key, "value", val)
			*target = i
		}
	}
}

func setEnvBool(target *bool, key string) {
	if val, ok := os.LookupEnv(key); ok {
		b, err := strconv.ParseBool(strings.ToLower(val))
		if err == nil {
			slog.Debug("applying env override", "key", key, "value", val)
			*target = b
		}
	}
}

func setEnvFloat64(target *float64, key string) {
	if val, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			slog.Debug("applying env override", "key", key, "value", val)
			*target = f
		}
	}
}

func setEnvDuration(target *time.Duration, key string) {
	if val, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(val); err == nil {
			slog.Debug("applying env override", "key", key, "value", val)
			*target = d
		}
	}
}
