// Package main provides the entry point for the movewatchd daemon.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/samber/do/v2"

	"github.com/movewatch/movewatch/internal/di"
	"github.com/movewatch/movewatch/internal/logger"
)

func main() {
	injector := di.NewContainer(os.Args[1:])

	if err := di.Bootstrap(injector); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "Failed to start movewatchd: %v\n", err)
		_ = injector.Shutdown()
		os.Exit(1)
	}

	log := do.MustInvoke[*logger.Logger](injector)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down movewatchd...")

	// The container shuts services down in reverse dependency order: the
	// API first, then the watcher, then the journal and stream.
	if err := injector.Shutdown(); err != nil {
		log.Error("Shutdown error", "error", err)
	}

	log.Info("Stopped")
}
