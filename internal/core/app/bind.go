package app

import (
	"log/slog"
	"os"
	"path/filepath"

	"enginelink/internal/link/host"
	"enginelink/internal/link/model"
	"enginelink/internal/link/protocol"
)

// bindSession wires a fresh session's model to the navigator and caches.
// Handlers run on the session scheduler; navigation is moved off it because
// lookups may block.
func (a *App) bindSession(s *host.Session) {
	m := s.Model()
	ctx := s.Context()

	m.OpenClass.Handle(func(name string) {
		a.goNavigate(func() {
			a.Navigator.NavigateToClass(ctx, name)
		})
	})
	m.OpenMember.Handle(func(ref model.MemberRef) {
		a.goNavigate(func() {
			if !a.Navigator.IsReferenceValid(ctx, ref.Class, ref.Member) {
				slog.Debug("ignoring open request for unknown member", "session", s.ID(), "member", ref.String())
				return
			}
			a.Navigator.NavigateToMember(ctx, ref.Class, ref.Member)
		})
	})

	m.HotReloadCompiling.Subscribe(func(compiling bool) {
		if !compiling {
			slog.Debug("hot reload finished, dropping cached resolutions", "session", s.ID())
			a.Resolver.Invalidate()
		}
	})
	m.CompileFinished.Handle(func(res model.CompileResult) {
		slog.Debug("compile finished, dropping cached resolutions", "session", s.ID(), "succeeded", res.Succeeded)
		a.Resolver.Invalidate()
	})

	engineProject := isEngineProject(a.Paths.ProjectRoot)
	switch s.Role() {
	case protocol.RoleEditor:
		m.PlayControl.Handle(func(req model.PlayRequest) {
			m.PlayMode.Set(req.Mode)
			m.PlayState.Set(req.State)
		})
		info := model.ConnectionInfo{
			Project:       filepath.Base(a.Paths.ProjectRoot),
			Executable:    executable(),
			PID:           os.Getpid(),
			EngineVersion: EngineVersion,
		}
		s.Perform(func(m *model.Model) {
			m.IsProject.Set(engineProject)
			m.ConnectionInfo.Set(model.Some(info))
		})
	default:
		s.Perform(func(m *model.Model) {
			m.IsEngineSolution.Set(engineProject)
		})
	}
}

func (a *App) goNavigate(fn func()) {
	a.navigations.Add(1)
	go func() {
		defer a.navigations.Done()
		fn()
	}()
}

func isEngineProject(root string) bool {
	if root == "" {
		return false
	}
	matches, _ := filepath.Glob(filepath.Join(root, "*.uproject"))
	return len(matches) > 0
}

func executable() string {
	path, err := os.Executable()
	if err != nil {
		return filepath.Base(os.Args[0])
	}
	return path
}
