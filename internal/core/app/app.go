package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"enginelink/internal/core/config"
	"enginelink/internal/core/ports"
	"enginelink/internal/core/watcher"
	"enginelink/internal/data/symbolindex"
	"enginelink/internal/engine/access"
	"enginelink/internal/engine/navigator"
	"enginelink/internal/engine/resolver"
	"enginelink/internal/link/host"
	"enginelink/internal/link/protocol"
	"enginelink/internal/link/transport"
	"enginelink/internal/shared/observability"
	"enginelink/internal/ui/view"
)

// EngineVersion is reported to the peer in the connection info record.
var EngineVersion = "dev"

type App struct {
	Config    *config.Config
	Paths     config.ResolvedPaths
	Index     symbolindex.Index
	Resolver  *resolver.Resolver
	Access    *access.Model
	Navigator *navigator.Navigator
	Host      *host.Host

	ctx    context.Context
	cancel context.CancelFunc
	view   *view.Switch

	configMu sync.Mutex

	indexMu       sync.Mutex
	indexLoadedAt time.Time
	indexErr      error

	indexWatcher    *watcher.Watcher
	configWatcher   *config.Watcher
	obsServer       *observability.Server
	shutdownTracing func(context.Context) error

	navigations sync.WaitGroup
	closeOnce   sync.Once
}

// New builds the bridge from cfg. Relative paths are anchored at cwd's
// project root. Nothing is started until Run, Serve or Connect.
func New(ctx context.Context, cfg *config.Config, cwd string) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}
	paths, err := config.ResolvePaths(cfg, cwd)
	if err != nil {
		return nil, fmt.Errorf("resolve paths: %w", err)
	}

	var index symbolindex.Index
	if paths.IndexPath != "" {
		index, err = symbolindex.OpenSQLiteIndex(paths.IndexPath)
		if err != nil {
			return nil, err
		}
	} else {
		index = symbolindex.NewMemoryIndex()
	}

	r, err := resolver.New(index, resolver.Options{
		CacheSize: cfg.Resolver.CacheSize,
		Ignore:    cfg.Resolver.Ignore,
	})
	if err != nil {
		_ = index.Close()
		return nil, err
	}

	v, err := buildView(paths.ProjectRoot, cfg.Navigation.EditorCommand)
	if err != nil {
		_ = index.Close()
		return nil, err
	}
	sw := view.NewSwitch(v)

	model := access.NewModel()
	nav, err := navigator.New(r, model, sw)
	if err != nil {
		_ = index.Close()
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	a := &App{
		Config:    cfg,
		Paths:     paths,
		Index:     index,
		Resolver:  r,
		Access:    model,
		Navigator: nav,
		ctx:       ctx,
		cancel:    cancel,
		view:      sw,
	}
	a.Host = host.New(ctx, sessionOptions(cfg))
	a.Host.OnStateChange(func(s *host.Session, state host.State) {
		slog.Debug("bridge state changed", "session", s.ID(), "state", state.String())
	})
	a.Host.OnSession(a.bindSession)
	return a, nil
}

func sessionOptions(cfg *config.Config) host.SessionOptions {
	opts := host.SessionOptions{
		Role:             protocol.Role(cfg.Bridge.Role),
		HandshakeTimeout: cfg.Bridge.HandshakeTimeout,
		OutboundBuffer:   cfg.Bridge.OutboundBuffer,
		MaxFrameBytes:    cfg.Bridge.MaxFrameBytes,
	}
	if cfg.Bridge.RateLimit.Enabled {
		opts.ActionsPerSecond = cfg.Bridge.RateLimit.ActionsPerSecond
		opts.ActionBurst = cfg.Bridge.RateLimit.Burst
	}
	return opts
}

func buildView(root string, argv []string) (ports.View, error) {
	if len(argv) == 0 {
		return view.NewLog(), nil
	}
	return view.NewCommand(root, argv)
}

func (a *App) transportOptions() transport.Options {
	return transport.Options{MaxFrameBytes: a.Config.Bridge.MaxFrameBytes}
}

// Run loads the index, starts the watchers and the observability server,
// then serves or dials according to the configured role until ctx ends.
func (a *App) Run(ctx context.Context, configPath string) error {
	if err := a.LoadIndex(ctx); err != nil {
		slog.Warn("initial index load failed", "error", err)
	}
	if err := a.StartObservability(ctx); err != nil {
		return err
	}
	if err := a.StartIndexWatcher(); err != nil {
		slog.Warn("index watcher disabled", "error", err)
	}
	if strings.TrimSpace(configPath) != "" {
		if err := a.StartConfigWatcher(ctx, configPath); err != nil {
			slog.Warn("config watcher disabled", "path", configPath, "error", err)
		}
	}

	switch a.Host.Role() {
	case protocol.RoleEditor:
		return a.Connect(ctx)
	default:
		ln, err := transport.Listen(a.Config.Bridge.Address, a.transportOptions())
		if err != nil {
			return err
		}
		slog.Info("bridge listening", "addr", ln.Addr().String())
		return a.Serve(ctx, ln)
	}
}

// Serve attaches every accepted connection to the current session. A
// connection arriving while a peer is attached is refused.
func (a *App) Serve(ctx context.Context, ln *transport.Listener) error {
	defer ln.Close()
	return ln.Serve(ctx, func(ch transport.Channel) {
		if _, err := a.Host.Attach(ch); err != nil {
			slog.Warn("bridge connection refused", "remote", ch.RemoteAddr(), "error", err)
			_ = ch.Close()
		}
	})
}

// Connect dials the backend and re-dials whenever a session ends.
func (a *App) Connect(ctx context.Context) error {
	opts := transport.DialOptions{
		Options:         a.transportOptions(),
		InitialInterval: a.Config.Bridge.Reconnect.InitialInterval,
		MaxInterval:     a.Config.Bridge.Reconnect.MaxInterval,
		MaxElapsed:      a.Config.Bridge.Reconnect.MaxElapsed,
	}
	for {
		conn, err := transport.Dial(ctx, a.Config.Bridge.Address, opts)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		s, err := a.Host.Attach(conn)
		if err != nil {
			_ = conn.Close()
			if errors.Is(err, host.ErrHostClosed) {
				return nil
			}
			return err
		}
		select {
		case <-s.Done():
			slog.Info("bridge session ended, reconnecting", "session", s.ID(), "error", s.Err())
		case <-ctx.Done():
			return nil
		}
	}
}

// LoadIndex replaces the index content from the configured manifest under
// exclusive program-model access and drops every cached resolution.
func (a *App) LoadIndex(ctx context.Context) error {
	if a.Paths.ManifestPath == "" {
		return nil
	}
	defs, err := symbolindex.LoadManifest(a.Paths.ManifestPath)
	if err == nil {
		err = a.refreshIndex(ctx, func(ctx context.Context) error {
			return a.Index.Replace(ctx, defs)
		})
	}

	a.indexMu.Lock()
	a.indexErr = err
	if err == nil {
		a.indexLoadedAt = time.Now()
	}
	a.indexMu.Unlock()

	if err != nil {
		return fmt.Errorf("load index manifest: %w", err)
	}
	slog.Info("symbol index loaded", "manifest", a.Paths.ManifestPath, "classes", len(defs))
	return nil
}

func (a *App) refreshIndex(ctx context.Context, update func(context.Context) error) error {
	guard, err := a.Access.AcquireWrite(ctx)
	if err != nil {
		return err
	}
	defer guard.Release()

	if update != nil {
		if err := update(ctx); err != nil {
			return err
		}
	}
	a.Resolver.Invalidate()
	observability.IndexReloadsTotal.Inc()
	return nil
}

// HandleIndexChanges reacts to index watcher events. A manifest is reloaded;
// an externally maintained database only invalidates the caches.
func (a *App) HandleIndexChanges(paths []string) {
	slog.Debug("symbol index changed", "paths", paths)
	if a.Paths.ManifestPath != "" {
		if err := a.LoadIndex(a.ctx); err != nil {
			slog.Warn("index reload failed", "error", err)
		}
		return
	}
	if err := a.refreshIndex(a.ctx, nil); err != nil {
		slog.Warn("index invalidation failed", "error", err)
	}
}

// StartIndexWatcher watches the manifest, or the database when there is no
// manifest. It is a no-op when watching is disabled or there is nothing to
// watch.
func (a *App) StartIndexWatcher() error {
	if !a.Config.Index.Watch {
		return nil
	}
	target := a.Paths.ManifestPath
	if target == "" {
		target = a.Paths.IndexPath
	}
	if target == "" {
		return nil
	}
	base := filepath.Base(target)
	include := []string{base}
	if target == a.Paths.IndexPath {
		include = append(include, base+"-wal")
	}

	w, err := watcher.NewWatcher(a.Config.Index.Debounce, include, nil, a.HandleIndexChanges)
	if err != nil {
		return err
	}
	if err := w.Watch([]string{target}); err != nil {
		_ = w.Close()
		return err
	}
	a.indexWatcher = w
	slog.Info("watching symbol index", "path", target)
	return nil
}

// StartConfigWatcher applies reloadable settings when the config file
// changes. Other changes are logged and need a restart.
func (a *App) StartConfigWatcher(ctx context.Context, path string) error {
	w := config.NewWatcher(path, a.ApplyConfig)
	if err := w.Start(ctx); err != nil {
		return err
	}
	a.configWatcher = w
	return nil
}

// ApplyConfig hot-applies next: resolver ignore patterns, the editor
// command and the inbound action rate.
func (a *App) ApplyConfig(next *config.Config) {
	a.configMu.Lock()
	defer a.configMu.Unlock()

	if !a.Config.Reloadable(next) {
		slog.Warn("config change needs a restart to take effect")
	}

	if err := a.Resolver.SetIgnorePatterns(next.Resolver.Ignore); err != nil {
		slog.Warn("keeping previous resolver ignore patterns", "error", err)
	} else {
		a.Config.Resolver.Ignore = next.Resolver.Ignore
	}

	if v, err := buildView(a.Paths.ProjectRoot, next.Navigation.EditorCommand); err != nil {
		slog.Warn("keeping previous editor command", "error", err)
	} else {
		a.view.Set(v)
		a.Config.Navigation.EditorCommand = next.Navigation.EditorCommand
	}

	a.Config.Bridge.RateLimit = next.Bridge.RateLimit
	if next.Bridge.RateLimit.Enabled {
		a.Host.SetActionRate(next.Bridge.RateLimit.ActionsPerSecond, next.Bridge.RateLimit.Burst)
	} else {
		a.Host.SetActionRate(0, 0)
	}
	slog.Info("config reloaded")
}

// StartObservability starts tracing and the metrics and health server when
// enabled.
func (a *App) StartObservability(ctx context.Context) error {
	obs := a.Config.Observability
	if !obs.Enabled {
		return nil
	}
	if obs.EnableTracing {
		shutdown, err := observability.SetupTracing(ctx, obs.OTLPEndpoint, obs.ServiceName)
		if err != nil {
			return err
		}
		a.shutdownTracing = shutdown
	}
	if obs.EnableMetrics {
		a.obsServer = observability.NewServer(fmt.Sprintf(":%d", obs.Port), NewHealthService(a))
		if err := a.obsServer.Start(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Close ends the bridge session, stops background work and closes the index.
func (a *App) Close() error {
	var errs []error
	a.closeOnce.Do(func() {
		if a.configWatcher != nil {
			a.configWatcher.Stop()
		}
		if a.indexWatcher != nil {
			if err := a.indexWatcher.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		a.Host.Close()
		a.cancel()
		a.navigations.Wait()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if a.obsServer != nil {
			if err := a.obsServer.Stop(shutdownCtx); err != nil {
				errs = append(errs, err)
			}
		}
		if a.shutdownTracing != nil {
			if err := a.shutdownTracing(shutdownCtx); err != nil {
				errs = append(errs, err)
			}
		}
		if err := a.Index.Close(); err != nil {
			errs = append(errs, err)
		}
	})
	return errors.Join(errs...)
}
