// Package view moves the user's view to resolved symbols.
package view

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	domainerrors "enginelink/internal/core/errors"
	"enginelink/internal/core/ports"
	"enginelink/internal/engine/symbols"
)

var (
	_ ports.View = (*Log)(nil)
	_ ports.View = (*Command)(nil)
	_ ports.View = (*Switch)(nil)
)

// Switch forwards to a view that can be replaced while navigations run.
type Switch struct {
	current atomic.Pointer[ports.View]
}

func NewSwitch(v ports.View) *Switch {
	s := &Switch{}
	s.Set(v)
	return s
}

func (s *Switch) Set(v ports.View) {
	s.current.Store(&v)
}

func (s *Switch) Current() ports.View {
	return *s.current.Load()
}

func (s *Switch) Show(ctx context.Context, sym symbols.Symbol) error {
	return s.Current().Show(ctx, sym)
}

// Log records the active location and writes it to the log. It is used when
// no editor command is configured.
type Log struct {
	mu     sync.Mutex
	active symbols.Symbol
	shown  int
}

func NewLog() *Log {
	return &Log{}
}

func (l *Log) Show(_ context.Context, sym symbols.Symbol) error {
	l.mu.Lock()
	l.active = sym
	l.shown++
	l.mu.Unlock()
	slog.Info("navigated", "symbol", sym.QualifiedName(), "location", sym.Location.String())
	return nil
}

// Active returns the last shown symbol.
func (l *Log) Active() (symbols.Symbol, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.active, l.shown > 0
}

// Command opens locations by running an editor command line.
type Command struct {
	root string

	mu   sync.RWMutex
	argv []string
}

func NewCommand(root string, argv []string) (*Command, error) {
	c := &Command{root: root}
	if err := c.SetArgs(argv); err != nil {
		return nil, err
	}
	return c, nil
}

// SetArgs swaps the command line template.
func (c *Command) SetArgs(argv []string) error {
	if len(argv) == 0 || strings.TrimSpace(argv[0]) == "" {
		return domainerrors.New(domainerrors.CodeValidationError, "editor command must not be empty")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.argv = append([]string(nil), argv...)
	return nil
}

func (c *Command) Show(ctx context.Context, sym symbols.Symbol) error {
	file := sym.Location.File
	if file == "" {
		return staleError(sym, "symbol has no source file")
	}
	if !filepath.IsAbs(file) && c.root != "" {
		file = filepath.Join(c.root, file)
	}
	if _, err := os.Stat(file); err != nil {
		return staleError(sym, err.Error())
	}

	argv := c.expand(file, sym.Location)
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	if err := cmd.Start(); err != nil {
		return domainerrors.Wrap(err, domainerrors.CodeInternal, "start editor command")
	}
	slog.Debug("editor command started", "symbol", sym.QualifiedName(), "argv", argv)
	go func() {
		if err := cmd.Wait(); err != nil {
			slog.Debug("editor command exited", "symbol", sym.QualifiedName(), "error", err)
		}
	}()
	return nil
}

func (c *Command) expand(file string, loc symbols.Location) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	line := loc.Line
	if line <= 0 {
		line = 1
	}
	column := loc.Column
	if column <= 0 {
		column = 1
	}
	r := strings.NewReplacer(
		"{file}", file,
		"{line}", strconv.Itoa(line),
		"{column}", strconv.Itoa(column),
	)
	out := make([]string, len(c.argv))
	for i, arg := range c.argv {
		out[i] = r.Replace(arg)
	}
	return out
}

func staleError(sym symbols.Symbol, reason string) error {
	err := domainerrors.New(domainerrors.CodeStaleReference, fmt.Sprintf("cannot show %s: %s", sym.QualifiedName(), reason))
	return domainerrors.AddContext(err, domainerrors.CtxSymbol, sym.QualifiedName())
}
