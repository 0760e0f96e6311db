package app

import (
	"context"
	"fmt"
	"time"

	"enginelink/internal/link/host"
	"enginelink/internal/shared/observability"
)

type HealthStatus struct {
	Status     string            `json:"status"`
	Timestamp  time.Time         `json:"timestamp"`
	Components map[string]string `json:"components"`
}

func (s HealthStatus) Healthy() bool {
	return s.Status == "up"
}

type HealthService struct {
	app *App
}

var _ observability.HealthChecker = (*HealthService)(nil)

func NewHealthService(app *App) *HealthService {
	return &HealthService{app: app}
}

func (s *HealthService) Check(ctx context.Context) observability.HealthReport {
	return s.Status(ctx)
}

// Status reports the index, resolver and bridge state. A failed index load
// degrades the service; a disconnected bridge does not.
func (s *HealthService) Status(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Status:     "up",
		Timestamp:  time.Now().UTC(),
		Components: make(map[string]string),
	}

	a := s.app
	a.indexMu.Lock()
	indexErr, loadedAt := a.indexErr, a.indexLoadedAt
	a.indexMu.Unlock()
	switch {
	case indexErr != nil:
		status.Status = "degraded"
		status.Components["index"] = fmt.Sprintf("error: %v", indexErr)
	case !loadedAt.IsZero():
		status.Components["index"] = fmt.Sprintf("ok (loaded %s)", loadedAt.UTC().Format(time.RFC3339))
	default:
		status.Components["index"] = "ok"
	}

	stats := a.Resolver.Stats()
	status.Components["resolver"] = fmt.Sprintf("ok (%d/%d classes, %d/%d members cached)",
		stats.ClassEntries, stats.Capacity, stats.MemberEntries, stats.Capacity)

	session := a.Host.Session()
	state := session.State()
	if state == host.StateConnected {
		status.Components["bridge"] = fmt.Sprintf("%s (peer pid %d)", state, session.Peer().PID)
	} else {
		status.Components["bridge"] = state.String()
	}
	return status
}
