package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/hasirciogluhq/xecho/cmd/echo/internal/config"
	"github.com/hasirciogluhq/xecho/cmd/echo/internal/console"
	"github.com/hasirciogluhq/xecho/cmd/echo/internal/factory"
	"github.com/hasirciogluhq/xecho/cmd/echo/internal/logger"
)

func main() {
	cfg, err := config.ParseClientArgs(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	// Diagnostics go to stderr so they never mix with the interactive session
	logger.Init(logger.Options{Output: os.Stderr, Debug: cfg.Debug, Quiet: !cfg.Debug})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	resolver, err := factory.NewResolverFactory(cfg).Create(ctx)
	if err != nil {
		logger.Fatal("Failed to create host resolver", "error", err)
	}

	app := console.New(os.Stdin, os.Stdout, console.WithResolver(resolver))
	if err := app.Run(ctx); err != nil {
		logger.Error("Client terminated", "error", err)
		cancel()
		os.Exit(1)
	}
}
