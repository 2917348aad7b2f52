package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	domainerrors "github.com/movewatch/movewatch/internal/errors"
	"github.com/movewatch/movewatch/internal/journal"
	"github.com/movewatch/movewatch/internal/watcher"
)

func (s *Server) registerStatusRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "getStatus",
		Method:      http.MethodGet,
		Path:        "/api/v1/status",
		Summary:     "Watcher status",
		Description: "Returns whether the watcher loop runs, pending moves and the last loop error",
		Tags:        []string{"Status"},
	}, s.handleGetStatus)
}

func (s *Server) registerEventRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "listEvents",
		Method:      http.MethodGet,
		Path:        "/api/v1/events",
		Summary:     "Recent notifications",
		Description: "Returns journaled notifications, newest first",
		Tags:        []string{"Events"},
	}, s.handleListEvents)
}

// StatusResponse describes the watcher state.
type StatusResponse struct {
	Running       bool   `json:"running" doc:"Whether the watcher loop is running"`
	PendingMoves  int    `json:"pending_moves" doc:"Departures waiting for their arrival"`
	Watches       int    `json:"watches" doc:"Number of watched directories"`
	StreamClients int    `json:"stream_clients" doc:"Connected notification stream clients"`
	Error         string `json:"error,omitempty" doc:"Error that stopped the watcher loop"`
}

// StatusOutput wraps the status response for Huma.
type StatusOutput struct {
	Body StatusResponse
}

func (s *Server) handleGetStatus(_ context.Context, _ *struct{}) (*StatusOutput, error) {
	resp := StatusResponse{
		Running:      s.watcher.Running(),
		PendingMoves: s.watcher.Pending(),
		Watches:      len(s.watcher.Watches()),
	}
	if err := s.watcher.Err(); err != nil {
		resp.Error = err.Error()
	}
	if s.stream != nil {
		resp.StreamClients = s.stream.ClientCount()
	}
	return &StatusOutput{Body: resp}, nil
}

// ListEventsInput holds the journal query.
type ListEventsInput struct {
	Kind  string `query:"kind" enum:"created,deleted,modified,renamed,moved_in,moved_away" doc:"Only return this kind"`
	Limit int    `query:"limit" minimum:"0" maximum:"1000" doc:"Maximum entries; 0 means 100"`
}

// ListEventsOutput is the journal query response.
type ListEventsOutput struct {
	Body struct {
		Events []journal.Entry `json:"events"`
	}
}

func (s *Server) handleListEvents(ctx context.Context, input *ListEventsInput) (*ListEventsOutput, error) {
	if s.journal == nil {
		return nil, apiError(domainerrors.Unsupported("journal is disabled"))
	}

	q := journal.Query{Limit: input.Limit}
	if input.Kind != "" {
		kind, err := watcher.ParseEventType(input.Kind)
		if err != nil {
			return nil, apiError(domainerrors.Validationf("%v", err))
		}
		q.Type = &kind
	}

	entries, err := s.journal.Recent(ctx, q)
	if err != nil {
		return nil, apiError(err)
	}

	out := &ListEventsOutput{}
	out.Body.Events = entries
	return out, nil
}
