package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/garyjia/jd-approval/internal/config"
	"github.com/garyjia/jd-approval/internal/container"
	"github.com/garyjia/jd-approval/pkg/utils"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the YAML config file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger, err := utils.NewLogger(cfg.LoggerConfig())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting JD approval service",
		zap.String("version", "1.0.0"),
		zap.Int("port", cfg.Server.Port),
		zap.Bool("lark_enabled", cfg.Lark.Enabled()),
		zap.Bool("reminders_enabled", cfg.Reminder.Enabled))

	// Set Gin mode based on logger level
	if cfg.Logger.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c, err := container.NewContainer(cfg.ToContainerConfig(), logger)
	if err != nil {
		logger.Fatal("Failed to create container", zap.Error(err))
	}
	if err := c.Start(ctx); err != nil {
		logger.Fatal("Failed to start container", zap.Error(err))
	}

	// Blocks until SIGINT/SIGTERM or a listen failure
	serveErr := c.Server().Start(ctx)
	if serveErr != nil {
		logger.Error("HTTP server failed", zap.Error(serveErr))
	}

	logger.Info("Shutting down...")
	if err := c.Close(); err != nil {
		logger.Error("Shutdown completed with errors", zap.Error(err))
	}

	if serveErr != nil {
		logger.Sync()
		os.Exit(1)
	}
	logger.Info("Server exited successfully")
}
