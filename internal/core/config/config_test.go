package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "enginelink.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
version = 1

[bridge]
role = " Editor "
address = "127.0.0.1:5000"
handshake_timeout = "3s"

[bridge.reconnect]
initial_interval = "100ms"
max_interval = "2s"

[bridge.rate_limit]
enabled = true
actions_per_second = 5
burst = 2

[resolver]
cache_size = 128
ignore = ["SKEL_*", " ", "REINST_*"]

[index]
path = "symbols.db"
manifest = "index.toml"
watch = true
debounce = "1s"

[navigation]
editor_command = ["code", "--goto", "{file}:{line}:{column}"]
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Bridge.Role != "editor" {
		t.Errorf("expected normalized role editor, got %q", cfg.Bridge.Role)
	}
	if cfg.Bridge.HandshakeTimeout != 3*time.Second {
		t.Errorf("expected handshake timeout 3s, got %v", cfg.Bridge.HandshakeTimeout)
	}
	if cfg.Bridge.Reconnect.InitialInterval != 100*time.Millisecond {
		t.Errorf("unexpected initial interval: %v", cfg.Bridge.Reconnect.InitialInterval)
	}
	if !cfg.Bridge.RateLimit.Enabled || cfg.Bridge.RateLimit.ActionsPerSecond != 5 || cfg.Bridge.RateLimit.Burst != 2 {
		t.Errorf("unexpected rate limit: %+v", cfg.Bridge.RateLimit)
	}
	if cfg.Resolver.CacheSize != 128 {
		t.Errorf("expected cache size 128, got %d", cfg.Resolver.CacheSize)
	}
	if len(cfg.Resolver.Ignore) != 2 {
		t.Errorf("expected blank ignore patterns to be dropped, got %v", cfg.Resolver.Ignore)
	}
	if cfg.Index.Debounce != time.Second {
		t.Errorf("expected index debounce 1s, got %v", cfg.Index.Debounce)
	}
	if len(cfg.Navigation.EditorCommand) != 3 {
		t.Errorf("unexpected editor command: %v", cfg.Navigation.EditorCommand)
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, `version = 1`))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Bridge.Role != "backend" {
		t.Errorf("expected default role backend, got %q", cfg.Bridge.Role)
	}
	if cfg.Bridge.Address != DefaultAddress {
		t.Errorf("expected default address, got %q", cfg.Bridge.Address)
	}
	if cfg.Resolver.CacheSize != 64 {
		t.Errorf("expected default cache size 64, got %d", cfg.Resolver.CacheSize)
	}
	if cfg.Index.Debounce != 500*time.Millisecond {
		t.Errorf("expected default debounce 500ms, got %v", cfg.Index.Debounce)
	}
	if cfg.Bridge.RateLimit.Enabled {
		t.Error("rate limiting should be opt-in")
	}
}

func TestLoadError(t *testing.T) {
	if _, err := Load("nonexistent.toml"); err == nil {
		t.Error("Expected error for nonexistent file")
	}
	if _, err := Load(writeConfig(t, `[bridge`)); err == nil {
		t.Error("Expected error for malformed toml")
	}
}

func TestLoad_Validation(t *testing.T) {
	cases := map[string]struct {
		content string
		want    string
	}{
		"bad role": {
			content: "[bridge]\nrole = \"ide\"\n",
			want:    "bridge.role must be one of",
		},
		"bad address": {
			content: "[bridge]\naddress = \"localhost\"\n",
			want:    "bridge.address",
		},
		"cache not power of two": {
			content: "[resolver]\ncache_size = 100\n",
			want:    "power of two",
		},
		"bad ignore pattern": {
			content: "[resolver]\nignore = [\"SKEL_[\"]\n",
			want:    "resolver.ignore[0]",
		},
		"watch without manifest": {
			content: "[index]\nwatch = true\n",
			want:    "index.watch requires index.manifest",
		},
		"editor command without file": {
			content: "[navigation]\neditor_command = [\"code\", \"--new-window\"]\n",
			want:    "{file}",
		},
		"reconnect inverted": {
			content: "[bridge.reconnect]\ninitial_interval = \"10s\"\nmax_interval = \"1s\"\n",
			want:    "max_interval",
		},
		"unsupported version": {
			content: "version = 3\n",
			want:    "unsupported config version",
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.content))
			if err == nil {
				t.Fatalf("expected validation error containing %q", tc.want)
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("ENGINELINK_BRIDGE_ROLE", "editor")
	t.Setenv("ENGINELINK_RESOLVER_CACHE_SIZE", "256")
	t.Setenv("ENGINELINK_INDEX_DEBOUNCE", "250ms")
	t.Setenv("ENGINELINK_OBSERVABILITY_PORT", "not-a-number")

	cfg, err := Load(writeConfig(t, "[observability]\nport = 9000\n"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Bridge.Role != "editor" {
		t.Errorf("expected env role editor, got %q", cfg.Bridge.Role)
	}
	if cfg.Resolver.CacheSize != 256 {
		t.Errorf("expected env cache size 256, got %d", cfg.Resolver.CacheSize)
	}
	if cfg.Index.Debounce != 250*time.Millisecond {
		t.Errorf("expected env debounce 250ms, got %v", cfg.Index.Debounce)
	}
	if cfg.Observability.Port != 9000 {
		t.Errorf("invalid env values must be ignored, got port %d", cfg.Observability.Port)
	}
}

func TestReloadable(t *testing.T) {
	base := Default()

	next := Default()
	next.Resolver.Ignore = []string{"SKEL_*"}
	next.Navigation.EditorCommand = []string{"vim", "+{line}", "{file}"}
	next.Bridge.RateLimit.Enabled = true
	if !base.Reloadable(next) {
		t.Error("ignore patterns, editor command and rate limit should be reloadable")
	}

	next = Default()
	next.Bridge.Address = "127.0.0.1:1"
	if base.Reloadable(next) {
		t.Error("bridge address change needs a restart")
	}
}

func TestResolvePaths(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "Shooter.uproject"), []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}
	sub := filepath.Join(root, "Source", "Shooter")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatal(err)
	}

	cfg := &Config{Index: Index{Path: "symbols.db", Manifest: "index.toml"}}
	applyDefaults(cfg)

	got, err := ResolvePaths(cfg, sub)
	if err != nil {
		t.Fatal(err)
	}
	if got.ProjectRoot != filepath.Clean(root) {
		t.Fatalf("expected project root %q, got %q", root, got.ProjectRoot)
	}
	if got.IndexPath != filepath.Join(root, "data/state", "symbols.db") {
		t.Fatalf("unexpected index path: %q", got.IndexPath)
	}
	if got.ManifestPath != filepath.Join(root, "index.toml") {
		t.Fatalf("unexpected manifest path: %q", got.ManifestPath)
	}
}

func TestResolvePaths_AbsoluteOverrides(t *testing.T) {
	root := t.TempDir()
	indexPath := filepath.Join(root, "custom", "symbols.db")
	cfg := &Config{
		Paths: Paths{ProjectRoot: root, StateDir: filepath.Join(root, "state")},
		Index: Index{Path: indexPath},
	}
	applyDefaults(cfg)

	got, err := ResolvePaths(cfg, root)
	if err != nil {
		t.Fatal(err)
	}
	if got.StateDir != filepath.Join(root, "state") {
		t.Fatalf("unexpected state dir: %q", got.StateDir)
	}
	if got.IndexPath != indexPath {
		t.Fatalf("unexpected index path: %q", got.IndexPath)
	}
	if got.ManifestPath != "" {
		t.Fatalf("expected no manifest, got %q", got.ManifestPath)
	}
}
