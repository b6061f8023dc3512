package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/aussiebroadwan/gatekeep/internal/gateway"
	"github.com/aussiebroadwan/gatekeep/pkg/slogx"
	"github.com/gin-gonic/gin"
	"github.com/spf13/pflag"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var configPath string

	flagSet := pflag.NewFlagSet("gateway", pflag.ContinueOnError)
	flagSet.StringVarP(&configPath, "config", "c", "", "path to the gateway YAML config file")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	// Root context that cancels on shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := gateway.LoadConfig(configPath)
	if err != nil {
		return err
	}

	logger := slogx.New(slogx.Config{
		Service: "gatekeep-gateway",
		Version: gateway.BuildVersion,
		Env:     cfg.Log.Env,
		Level:   cfg.Log.Level,
		Format:  cfg.Log.Format,
	})

	if cfg.Log.Env == "prod" || cfg.Log.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	app, err := gateway.New(cfg, logger)
	if err != nil {
		return err
	}

	return app.Run(ctx)
}
