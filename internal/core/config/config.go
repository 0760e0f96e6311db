package config

import "time"

type Config struct {
	Version       int           `toml:"version"`
	Paths         Paths         `toml:"paths"`
	Bridge        Bridge        `toml:"bridge"`
	Resolver      Resolver      `toml:"resolver"`
	Index         Index         `toml:"index"`
	Navigation    Navigation    `toml:"navigation"`
	Observability Observability `toml:"observability"`
}

type Paths struct {
	ProjectRoot string `toml:"project_root"`
	StateDir    string `toml:"state_dir"`
}

type Bridge struct {
	// Role is "backend" (listens) or "editor" (dials).
	Role             string        `toml:"role"`
	Address          string        `toml:"address"`
	HandshakeTimeout time.Duration `toml:"handshake_timeout"`
	MaxFrameBytes    int           `toml:"max_frame_bytes"`
	OutboundBuffer   int           `toml:"outbound_buffer"`
	Reconnect        Reconnect     `toml:"reconnect"`
	RateLimit        RateLimit     `toml:"rate_limit"`
}

type Reconnect struct {
	InitialInterval time.Duration `toml:"initial_interval"`
	MaxInterval     time.Duration `toml:"max_interval"`
	MaxElapsed      time.Duration `toml:"max_elapsed"`
}

type RateLimit struct {
	Enabled          bool    `toml:"enabled"`
	ActionsPerSecond float64 `toml:"actions_per_second"`
	Burst            int     `toml:"burst"`
}

type Resolver struct {
	CacheSize int      `toml:"cache_size"`
	Ignore    []string `toml:"ignore"`
}

type Index struct {
	// Path is the SQLite symbol index. Empty keeps the index in memory.
	Path string `toml:"path"`
	// Manifest, when set, is loaded into the index at startup and on change.
	Manifest string        `toml:"manifest"`
	Watch    bool          `toml:"watch"`
	Debounce time.Duration `toml:"debounce"`
}

type Navigation struct {
	// EditorCommand is the argv used to open a location; {file}, {line}
	// and {column} are substituted. Empty only logs the location.
	EditorCommand []string `toml:"editor_command"`
}

type Observability struct {
	Enabled       bool   `toml:"enabled"`
	Port          int    `toml:"port"`
	OTLPEndpoint  string `toml:"otlp_endpoint"`
	ServiceName   string `toml:"service_name"`
	EnableTracing bool   `toml:"enable_tracing"`
	EnableMetrics bool   `toml:"enable_metrics"`
}

// Reloadable reports whether next differs from c only in settings that can
// be applied to a running bridge.
func (c *Config) Reloadable(next *Config) bool {
	a, b := *c, *next
	a.Resolver.Ignore, b.Resolver.Ignore = nil, nil
	a.Navigation.EditorCommand, b.Navigation.EditorCommand = nil, nil
	a.Bridge.RateLimit, b.Bridge.RateLimit = RateLimit{}, RateLimit{}
	return a.Version == b.Version &&
		a.Paths == b.Paths &&
		a.Bridge == b.Bridge &&
		a.Resolver.CacheSize == b.Resolver.CacheSize &&
		a.Index == b.Index &&
		a.Observability == b.Observability
}
