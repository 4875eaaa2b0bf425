package main

import (
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/victornm/clueboard/internal/config"
	"github.com/victornm/clueboard/internal/server"
)

func main() {
	c, err := loadConfig(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatalf("Load config failed: %v", err)
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGTERM, os.Interrupt)

	s, err := server.Init(c)
	if err != nil {
		log.Fatalf("Init server failed: %v", err)
	}

	go s.Start()

	sig := <-shutdown
	slog.Info("server: shutting down", "signal", sig.String())
	s.Shutdown()
}

// loadConfig starts from the defaults, a single in-process instance, and applies the file at p when given.
// Env overrides apply only together with a file.
func loadConfig(p string) (server.Config, error) {
	c := server.DefaultConfig()

	if p == "" {
		slog.Warn("server: CONFIG_PATH not set, running with defaults")
		return c, nil
	}

	if err := config.Load(p, &c); err != nil {
		return c, fmt.Errorf("load config: %w", err)
	}

	return c, nil
}
