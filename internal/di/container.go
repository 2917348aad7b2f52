// Package di provides dependency injection configuration for movewatchd.
package di

import (
	"github.com/samber/do/v2"

	"github.com/movewatch/movewatch/internal/config"
	"github.com/movewatch/movewatch/internal/di/providers"
	"github.com/movewatch/movewatch/internal/logger"
	"github.com/movewatch/movewatch/internal/metrics"
)

// NewContainer creates and configures the DI container with all providers.
// args are the command-line arguments without the program name.
func NewContainer(args []string) *do.RootScope {
	injector := do.New()

	// Core infrastructure
	do.ProvideValue(injector, providers.Args(args))
	do.Provide(injector, providers.ProvideConfig)
	do.Provide(injector, providers.ProvideLogger)
	do.Provide(injector, providers.ProvideMetrics)

	// Notification sinks
	do.Provide(injector, providers.ProvideSSEManager)
	do.Provide(injector, providers.ProvideJournal)

	// Workers
	do.Provide(injector, providers.ProvideWatcher)
	do.Provide(injector, providers.ProvideWatchList)

	// Server
	do.Provide(injector, providers.ProvideHTTPServer)

	return injector
}

// Bootstrap initializes all services. Sinks are created before the watcher
// so no notification is emitted before its handlers exist.
func Bootstrap(injector *do.RootScope) error {
	if _, err := do.Invoke[*config.Config](injector); err != nil {
		return err
	}
	_ = do.MustInvoke[*logger.Logger](injector)
	_ = do.MustInvoke[*metrics.Metrics](injector)

	if _, err := do.Invoke[*providers.SSEManagerHandle](injector); err != nil {
		return err
	}
	if _, err := do.Invoke[*providers.JournalHandle](injector); err != nil {
		return err
	}
	if _, err := do.Invoke[*providers.WatcherHandle](injector); err != nil {
		return err
	}
	if _, err := do.Invoke[*providers.WatchListHandle](injector); err != nil {
		return err
	}
	if _, err := do.Invoke[*providers.HTTPServerHandle](injector); err != nil {
		return err
	}

	return nil
}
