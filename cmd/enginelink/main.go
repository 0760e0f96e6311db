package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"enginelink/internal/core/app"
	"enginelink/internal/core/config"
)

var (
	configPath = flag.String("config", "./enginelink.toml", "Path to config file")
	role       = flag.String("role", "", "Override bridge role (backend or editor)")
	resolve    = flag.String("resolve", "", "Resolve Class or Class::Member, print its location and exit")
	verbose    = flag.Bool("verbose", false, "Enable verbose logging")
	version    = flag.Bool("version", false, "Print version and exit")
)

const VERSION = "0.3.0"

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("enginelink v%s\n", VERSION)
		os.Exit(0)
	}

	logLevel := slog.LevelInfo
	if *verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	cfg, watchPath, err := loadConfig(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if *role != "" {
		cfg.Bridge.Role = strings.ToLower(strings.TrimSpace(*role))
		if errs := config.Validate(cfg); len(errs) > 0 {
			slog.Error("invalid role", "error", errors.Join(errs...))
			os.Exit(1)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cwd, _ := os.Getwd()
	a, err := app.New(ctx, cfg, cwd)
	if err != nil {
		slog.Error("failed to initialize app", "error", err)
		os.Exit(1)
	}
	app.EngineVersion = VERSION

	if *resolve != "" {
		code := runResolve(ctx, a, *resolve)
		_ = a.Close()
		os.Exit(code)
	}

	runErr := a.Run(ctx, watchPath)
	if err := a.Close(); err != nil {
		slog.Warn("shutdown incomplete", "error", err)
	}
	if runErr != nil {
		slog.Error("bridge stopped", "error", runErr)
		os.Exit(1)
	}
}

// loadConfig falls back to defaults only when the default config file is
// absent; an explicitly named file must exist.
func loadConfig(path string) (*config.Config, string, error) {
	cfg, err := config.Load(path)
	if err == nil {
		return cfg, path, nil
	}
	if errors.Is(err, os.ErrNotExist) && path == "./enginelink.toml" {
		slog.Debug("no config file, using defaults", "path", path)
		return config.Default(), "", nil
	}
	return nil, "", err
}

func runResolve(ctx context.Context, a *app.App, ref string) int {
	owner, member, err := parseReference(ref)
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		return 2
	}
	if err := a.LoadIndex(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		return 1
	}
	sym, ok := a.Navigator.Locate(ctx, owner, member)
	if !ok {
		fmt.Fprintf(os.Stderr, "%s: not found or ambiguous\n", ref)
		return 1
	}
	fmt.Printf("%s\t%s\n", sym.QualifiedName(), sym.Location)
	return 0
}

// parseReference splits "Class" or "Class::Member".
func parseReference(ref string) (owner, member string, err error) {
	ref = strings.TrimSpace(ref)
	owner, member, found := strings.Cut(ref, "::")
	owner = strings.TrimSpace(owner)
	member = strings.TrimSpace(member)
	if owner == "" || (found && member == "") || strings.Contains(member, "::") {
		return "", "", fmt.Errorf("invalid reference %q, expected Class or Class::Member", ref)
	}
	return owner, member, nil
}
