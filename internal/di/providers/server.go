package providers

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/samber/do/v2"

	"github.com/movewatch/movewatch/internal/api"
	"github.com/movewatch/movewatch/internal/config"
	"github.com/movewatch/movewatch/internal/logger"
	"github.com/movewatch/movewatch/internal/metrics"
)

// HTTPServerHandle wraps the control API server with Shutdownable.
// Server is nil when the API is disabled.
type HTTPServerHandle struct {
	*http.Server
	api *api.Server
}

// Shutdown implements do.Shutdownable.
func (h *HTTPServerHandle) Shutdown() error {
	if h.Server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := h.Server.Shutdown(ctx)
	h.api.Close()
	return err
}

// ProvideHTTPServer provides the control API server. The listener is bound
// before returning so address errors fail startup.
func ProvideHTTPServer(i do.Injector) (*HTTPServerHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	m := do.MustInvoke[*metrics.Metrics](i)
	watcherHandle := do.MustInvoke[*WatcherHandle](i)
	journalHandle := do.MustInvoke[*JournalHandle](i)
	sseHandle := do.MustInvoke[*SSEManagerHandle](i)

	if !cfg.Server.Enabled {
		log.Info("Control API disabled by configuration")
		return &HTTPServerHandle{}, nil
	}

	opts := api.Options{
		Watcher:     watcherHandle.Watcher,
		Stream:      sseHandle.Manager,
		Metrics:     m,
		Logger:      log.Component("api"),
		CORSOrigins: cfg.Server.CORSOrigins,
		RateLimit:   cfg.Server.RateLimit,
	}
	// A nil *journal.Journal must stay a nil interface.
	if journalHandle.Journal != nil {
		opts.Journal = journalHandle.Journal
	}
	handler := api.NewServer(opts)

	ln, err := net.Listen("tcp", cfg.Server.Addr)
	if err != nil {
		handler.Close()
		return nil, err
	}

	srv := &http.Server{
		Addr:         ln.Addr().String(),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server error", "error", err)
		}
	}()

	log.Info("Control API listening", "addr", srv.Addr)

	return &HTTPServerHandle{Server: srv, api: handler}, nil
}
