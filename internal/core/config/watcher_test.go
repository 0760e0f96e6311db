package config

import (
	"context"
	"os"
	"testing"
	"time"
)

func TestWatcher_ReloadsOnWrite(t *testing.T) {
	path := writeConfig(t, "[resolver]\nignore = [\"SKEL_*\"]\n")

	reloaded := make(chan *Config, 4)
	w := NewWatcher(path, func(cfg *Config) { reloaded <- cfg })
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatalf("start watcher: %v", err)
	}
	defer w.Stop()

	if err := os.WriteFile(path, []byte("[resolver]\nignore = [\"REINST_*\"]\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case cfg := <-reloaded:
		if len(cfg.Resolver.Ignore) != 1 || cfg.Resolver.Ignore[0] != "REINST_*" {
			t.Fatalf("unexpected reloaded ignore patterns: %v", cfg.Resolver.Ignore)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("watcher never reloaded the config")
	}
}

func TestWatcher_InvalidConfigIsNotDelivered(t *testing.T) {
	path := writeConfig(t, "version = 1\n")

	reloaded := make(chan *Config, 4)
	w := NewWatcher(path, func(cfg *Config) { reloaded <- cfg })
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("start watcher: %v", err)
	}
	defer w.Stop()

	if err := os.WriteFile(path, []byte("[bridge]\nrole = \"ide\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case cfg := <-reloaded:
		t.Fatalf("invalid config should not be delivered, got %+v", cfg.Bridge)
	case <-time.After(500 * time.Millisecond):
	}
}
