package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
)

const (
	statusHealthy   = "healthy"
	statusDegraded  = "degraded"
	statusUnhealthy = "unhealthy"
)

func (s *Server) registerHealthRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "healthCheck",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Daemon health",
		Description: "Reports the watcher loop, journal and stream state. Degraded components do not fail the check.",
		Tags:        []string{"Health"},
	}, s.handleHealthCheck)
}

// ComponentHealth is the state of the watcher, the journal or the stream.
type ComponentHealth struct {
	Status  string `json:"status" enum:"healthy,degraded,unhealthy" doc:"Component state"`
	Latency string `json:"latency,omitempty" doc:"Time the probe took"`
	Message string `json:"message,omitempty" doc:"Detail such as watch or client counts"`
}

// HealthResponse is the worst component state plus each component.
type HealthResponse struct {
	Status     string                     `json:"status" enum:"healthy,degraded,unhealthy" doc:"Worst component state"`
	Components map[string]ComponentHealth `json:"components" doc:"State per component"`
}

// HealthOutput is the huma output of GET /health.
type HealthOutput struct {
	Body HealthResponse
}

func (s *Server) handleHealthCheck(ctx context.Context, _ *struct{}) (*HealthOutput, error) {
	components := map[string]ComponentHealth{
		"watcher": s.checkWatcher(),
		"journal": s.checkJournal(ctx),
		"stream":  s.checkStream(),
	}

	overall := statusHealthy
	for _, c := range components {
		switch c.Status {
		case statusUnhealthy:
			overall = statusUnhealthy
		case statusDegraded:
			if overall == statusHealthy {
				overall = statusDegraded
			}
		}
	}

	return &HealthOutput{
		Body: HealthResponse{
			Status:     overall,
			Components: components,
		},
	}, nil
}

// checkWatcher reports the watcher loop state.
func (s *Server) checkWatcher() ComponentHealth {
	if s.watcher == nil {
		return ComponentHealth{Status: statusUnhealthy, Message: "watcher not configured"}
	}
	if err := s.watcher.Err(); err != nil {
		return ComponentHealth{Status: statusUnhealthy, Message: err.Error()}
	}
	if !s.watcher.Running() {
		return ComponentHealth{Status: statusDegraded, Message: "watcher not running"}
	}
	return ComponentHealth{
		Status:  statusHealthy,
		Message: fmt.Sprintf("%d watches, %d pending moves", len(s.watcher.Watches()), s.watcher.Pending()),
	}
}

// checkJournal verifies the journal database answers.
func (s *Server) checkJournal(ctx context.Context) ComponentHealth {
	if s.journal == nil {
		return ComponentHealth{Status: statusDegraded, Message: "journal disabled"}
	}

	began := time.Now()
	err := s.journal.Ping(ctx)
	took := time.Since(began).String()

	if err != nil {
		return ComponentHealth{Status: statusUnhealthy, Latency: took, Message: "journal unreachable"}
	}
	return ComponentHealth{Status: statusHealthy, Latency: took}
}

// checkStream reports the number of stream clients.
func (s *Server) checkStream() ComponentHealth {
	if s.stream == nil {
		return ComponentHealth{Status: statusDegraded, Message: "stream disabled"}
	}
	return ComponentHealth{
		Status:  statusHealthy,
		Message: formatClients(s.stream.ClientCount()),
	}
}

func formatClients(count int) string {
	switch count {
	case 0:
		return "no connected clients"
	case 1:
		return "1 connected client"
	default:
		return fmt.Sprintf("%d connected clients", count)
	}
}
