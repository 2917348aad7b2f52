// Package providers contains dependency injection providers for movewatchd.
package providers

import (
	"github.com/samber/do/v2"

	"github.com/movewatch/movewatch/internal/config"
	"github.com/movewatch/movewatch/internal/logger"
	"github.com/movewatch/movewatch/internal/metrics"
)

// ProvideConfig provides the daemon configuration.
func ProvideConfig(i do.Injector) (*config.Config, error) {
	args := do.MustInvoke[Args](i)
	return config.LoadConfig(args)
}

// ProvideLogger provides the structured logger.
func ProvideLogger(i do.Injector) (*logger.Logger, error) {
	cfg := do.MustInvoke[*config.Config](i)

	level, err := logger.ParseLevel(cfg.Logger.Level)
	if err != nil {
		return nil, err
	}

	log := logger.New(logger.Config{
		Level:       level,
		Format:      cfg.Logger.Format,
		AddSource:   cfg.App.Environment == "development",
		Environment: cfg.App.Environment,
	})

	log.Info("Starting movewatchd",
		"environment", cfg.App.Environment,
		"log_level", cfg.Logger.Level,
		"paths", len(cfg.Watcher.Paths),
		"watch_list", cfg.WatchList.Path,
	)

	return log, nil
}

// ProvideMetrics provides the Prometheus collectors.
func ProvideMetrics(_ do.Injector) (*metrics.Metrics, error) {
	return metrics.New(), nil
}
