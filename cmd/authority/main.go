package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/aussiebroadwan/gatekeep/internal/authority/app"
	"github.com/spf13/pflag"
)

func main() {
	flags := pflag.NewFlagSet("authority", pflag.ContinueOnError)
	showVersion := flags.Bool("version", false, "print the version and exit")
	if err := flags.Parse(os.Args[1:]); err != nil {
		os.Exit(2)
	}
	if *showVersion {
		fmt.Println(app.BuildVersion)
		return
	}

	// All settings come from the environment, see app.LoadConfig.
	application, err := app.New(app.LoadConfig())
	if err != nil {
		slog.Error("failed to initialize authority", "error", err)
		os.Exit(1)
	}

	if err := application.Run(); err != nil {
		slog.Error("authority stopped with error", "error", err)
		os.Exit(1)
	}
}
