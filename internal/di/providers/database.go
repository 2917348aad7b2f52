package providers

import (
	"context"

	"github.com/samber/do/v2"

	"github.com/movewatch/movewatch/internal/config"
	"github.com/movewatch/movewatch/internal/journal"
	"github.com/movewatch/movewatch/internal/logger"
	"github.com/movewatch/movewatch/internal/metrics"
	"github.com/movewatch/movewatch/internal/sse"
)

// SSEManagerHandle wraps the SSE manager with its context for lifecycle management.
type SSEManagerHandle struct {
	*sse.Manager
	cancel context.CancelFunc
}

// Shutdown implements do.Shutdownable.
func (h *SSEManagerHandle) Shutdown() error {
	h.cancel()
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return h.Manager.Shutdown(ctx)
}

// ProvideSSEManager provides the notification stream manager.
func ProvideSSEManager(i do.Injector) (*SSEManagerHandle, error) {
	log := do.MustInvoke[*logger.Logger](i)
	m := do.MustInvoke[*metrics.Metrics](i)

	manager := sse.NewManager(log.Component("sse"))
	manager.SetClientCountHook(m.SetStreamClients)

	ctx, cancel := context.WithCancel(context.Background())
	go manager.Start(ctx)

	return &SSEManagerHandle{
		Manager: manager,
		cancel:  cancel,
	}, nil
}

// JournalHandle wraps the journal and its writer goroutine. Journal is nil
// when the journal is disabled.
type JournalHandle struct {
	*journal.Journal
	cancel context.CancelFunc
	done   chan struct{}
}

// Shutdown implements do.Shutdownable. Queued notifications are written
// before the database closes.
func (h *JournalHandle) Shutdown() error {
	if h.Journal == nil {
		return nil
	}
	h.cancel()
	<-h.done
	return h.Close()
}

// ProvideJournal provides the notification journal.
func ProvideJournal(i do.Injector) (*JournalHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	m := do.MustInvoke[*metrics.Metrics](i)

	if !cfg.Journal.Enabled {
		log.Info("Notification journal disabled by configuration")
		return &JournalHandle{}, nil
	}

	j, err := journal.Open(cfg.Journal.Path, log.Component("journal"))
	if err != nil {
		return nil, err
	}
	j.SetErrorHook(func(error) { m.JournalError() })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := j.Run(ctx, cfg.Journal.Retention, journal.DefaultPruneInterval); err != nil {
			log.Error("Journal writer stopped", "error", err)
		}
	}()

	log.Info("Notification journal opened", "path", cfg.Journal.Path, "retention", cfg.Journal.Retention)

	return &JournalHandle{Journal: j, cancel: cancel, done: done}, nil
}
