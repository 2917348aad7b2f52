package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	domainerrors "github.com/movewatch/movewatch/internal/errors"
	"github.com/movewatch/movewatch/internal/sse"
	"github.com/movewatch/movewatch/internal/watcher"
)

func (s *Server) registerWatchRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "listWatches",
		Method:      http.MethodGet,
		Path:        "/api/v1/watches",
		Summary:     "List watches",
		Description: "Returns every watched directory ordered by watch id",
		Tags:        []string{"Watches"},
	}, s.handleListWatches)

	huma.Register(s.api, huma.Operation{
		OperationID:   "addWatch",
		Method:        http.MethodPost,
		Path:          "/api/v1/watches",
		Summary:       "Add watch",
		Description:   "Starts watching a directory. Adding a watched path again updates its event kinds.",
		Tags:          []string{"Watches"},
		DefaultStatus: http.StatusCreated,
	}, s.handleAddWatch)

	huma.Register(s.api, huma.Operation{
		OperationID:   "removeWatch",
		Method:        http.MethodDelete,
		Path:          "/api/v1/watches/{wd}",
		Summary:       "Remove watch",
		Description:   "Stops watching the directory with the given watch id",
		Tags:          []string{"Watches"},
		DefaultStatus: http.StatusNoContent,
	}, s.handleRemoveWatch)
}

// WatchResponse describes one watched directory.
type WatchResponse struct {
	ID     int      `json:"id" doc:"Watch id"`
	Path   string   `json:"path" doc:"Absolute directory path"`
	Events []string `json:"events" doc:"Kernel event kinds requested"`
}

func newWatchResponse(w watcher.Watch) WatchResponse {
	return WatchResponse{
		ID:     w.ID,
		Path:   w.Path,
		Events: strings.Split(w.Ops.String(), "|"),
	}
}

// ListWatchesOutput is the list response.
type ListWatchesOutput struct {
	Body struct {
		Watches []WatchResponse `json:"watches"`
	}
}

func (s *Server) handleListWatches(_ context.Context, _ *struct{}) (*ListWatchesOutput, error) {
	watches := s.watcher.Watches()

	out := &ListWatchesOutput{}
	out.Body.Watches = make([]WatchResponse, 0, len(watches))
	for _, w := range watches {
		out.Body.Watches = append(out.Body.Watches, newWatchResponse(w))
	}
	return out, nil
}

// AddWatchRequest is the body of POST /api/v1/watches.
type AddWatchRequest struct {
	Path   string   `json:"path" minLength:"1" doc:"Directory to watch"`
	Events []string `json:"events,omitempty" required:"false" doc:"Event kinds (create, delete, modify, rename, moved_from, moved_to, all); empty means all" validate:"omitempty,dive,eventkind"`
}

// AddWatchInput wraps the request body for Huma.
type AddWatchInput struct {
	Body AddWatchRequest
}

// WatchOutput wraps a single watch.
type WatchOutput struct {
	Body WatchResponse
}

func (s *Server) handleAddWatch(_ context.Context, input *AddWatchInput) (*WatchOutput, error) {
	if err := s.validator.Validate(input.Body); err != nil {
		return nil, apiError(err)
	}

	ops, err := watcher.ParseOps(input.Body.Events)
	if err != nil {
		return nil, apiError(domainerrors.Validationf("%v", err))
	}

	wd, err := s.watcher.AddWatch(input.Body.Path, ops)
	if err != nil {
		return nil, apiError(err)
	}

	for _, w := range s.watcher.Watches() {
		if w.ID != wd {
			continue
		}
		s.logger.Info("watch added", "wd", wd, "path", w.Path, "events", w.Ops.String())
		s.watchesChanged()
		s.emit(sse.NewWatchAddedEvent(w))
		return &WatchOutput{Body: newWatchResponse(w)}, nil
	}

	// Removed again between the two calls.
	return nil, apiError(domainerrors.NotFoundf("watch %d disappeared", wd))
}

// RemoveWatchInput identifies the watch to remove.
type RemoveWatchInput struct {
	WD int `path:"wd" minimum:"0" doc:"Watch id"`
}

func (s *Server) handleRemoveWatch(_ context.Context, input *RemoveWatchInput) (*struct{}, error) {
	var path string
	for _, w := range s.watcher.Watches() {
		if w.ID == input.WD {
			path = w.Path
			break
		}
	}
	if path == "" {
		return nil, apiError(domainerrors.NotFoundf("watch %d not found", input.WD))
	}

	if !s.watcher.RemoveWatch(input.WD) {
		return nil, apiError(domainerrors.Internalf("watch %d could not be removed", input.WD))
	}

	s.logger.Info("watch removed", "wd", input.WD, "path", path)
	s.watchesChanged()
	s.emit(sse.NewWatchRemovedEvent(path, input.WD))
	return nil, nil
}
