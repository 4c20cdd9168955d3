package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/tphakala/occupancy-go/cmd"
	"github.com/tphakala/occupancy-go/internal/conf"
	"github.com/tphakala/occupancy-go/internal/logger"
)

// buildDate and version are set at build time with -ldflags
var (
	buildDate string
	version   string
)

func main() {
	os.Exit(mainWithExitCode())
}

func mainWithExitCode() int {
	settings, err := conf.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		return 1
	}
	settings.Version = version
	settings.BuildDate = buildDate
	if settings.Version == "" {
		settings.Version = "dev"
	}

	centralLogger, err := logger.NewCentralLogger(&settings.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing logger: %v\n", err)
		return 1
	}
	logger.SetGlobal(centralLogger)
	defer func() {
		if err := centralLogger.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Error closing logger: %v\n", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := cmd.RootCommand(settings)
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Command execution error: %v\n", err)
		return 1
	}
	return 0
}
