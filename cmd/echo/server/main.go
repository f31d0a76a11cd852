package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/hasirciogluhq/xecho/cmd/echo/internal/api"
	"github.com/hasirciogluhq/xecho/cmd/echo/internal/config"
	"github.com/hasirciogluhq/xecho/cmd/echo/internal/core"
	"github.com/hasirciogluhq/xecho/cmd/echo/internal/echo"
	"github.com/hasirciogluhq/xecho/cmd/echo/internal/logger"
)

func main() {
	// Parse command line: exactly one <port> argument
	cfg, err := config.ParseServerArgs(os.Args[1:], os.Stdout)
	if err != nil {
		switch {
		case errors.Is(err, pflag.ErrHelp):
			return
		case errors.Is(err, config.ErrUsage):
			fmt.Println("Error! Invalid number of arguments!")
			fmt.Println("Usage: echo-server <port>!")
			return
		default:
			fmt.Printf("Error! Invalid argument <port>! %v\n", err)
			fmt.Println("Usage: echo-server <port>!")
			os.Exit(1)
		}
	}

	// Initialize logger
	logger.Init(logger.Options{Debug: cfg.Debug})
	logger.Info("Starting echo server...", "port", cfg.Port, "health_port", cfg.HealthServerPort)

	server := core.NewServer(cfg.Port, echo.NewHandler(nil), nil)

	// Start health server (optional); /ready follows the server state
	var healthServer *api.HealthServer
	if cfg.HealthServerPort != "" {
		healthServer = api.NewHealthServer(":"+cfg.HealthServerPort, server)
		healthServer.Start()
	}

	if err := server.Start(); err != nil {
		logger.Fatal("Server failed to start", "error", err)
	}

	// Wait for termination signal or for the accept loop to end on its own
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("Shutting down...", "signal", sig.String())
		server.Stop()
		<-server.Done()
	case <-server.Done():
	}

	if healthServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := healthServer.Stop(ctx); err != nil {
			logger.Error("Health server shutdown failed", "error", err)
		}
	}
}
