// P2P USDT/INR trading platform backend
package main

import (
	"context"
	"os"

	"github.com/caffeinepub/usdt-p2p-trading-platform/internal/config"
	"github.com/caffeinepub/usdt-p2p-trading-platform/internal/logging"
	"github.com/caffeinepub/usdt-p2p-trading-platform/internal/server"
)

// Build info - set by ldflags
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	logger := logging.New("info", "text")

	logger.Info("starting trading platform",
		"version", Version,
		"commit", Commit,
		"build_time", BuildTime,
	)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		"env", cfg.Env,
		"rate_inr", cfg.PlatformRate,
		"spread_bps", cfg.SpreadBPS,
	)

	srv, err := server.New(cfg, server.WithLogger(logger))
	if err != nil {
		logger.Error("failed to create server", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	if err := srv.Run(ctx); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}
