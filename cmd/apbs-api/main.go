package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/Electrostatics/apbs-aws/internal/common"
	"github.com/Electrostatics/apbs-aws/internal/issuer"
	"github.com/Electrostatics/apbs-aws/internal/storage"
)

// configPaths is a custom flag type that allows multiple -config flags.
type configPaths []string

func (c *configPaths) String() string {
	return fmt.Sprintf("%v", *c)
}

func (c *configPaths) Set(value string) error {
	*c = append(*c, value)
	return nil
}

var (
	configFiles configPaths
	showVersion = flag.Bool("version", false, "Print version information")
)

func init() {
	flag.Var(&configFiles, "config", "Configuration file path (can be specified multiple times, later files override earlier ones)")
	flag.Var(&configFiles, "c", "Configuration file path (shorthand)")
}

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("apbs-api version %s\n", common.GetFullVersion())
		os.Exit(0)
	}

	config, err := common.LoadFromFiles(configFiles...)
	if err != nil {
		arbor.NewLogger().Fatal().Err(err).Msg("Failed to load configuration")
		os.Exit(1)
	}
	if err := config.Validate(); err != nil {
		arbor.NewLogger().Fatal().Err(err).Msg("Invalid configuration")
		os.Exit(1)
	}
	if config.Buckets.Input == "" {
		arbor.NewLogger().Fatal().Msg("INPUT_BUCKET is not configured")
		os.Exit(1)
	}

	logger := common.InitLogger(config)
	common.PrintBanner("apbs-api", common.GetVersion())

	store, err := storage.NewS3Store(config.Region, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to object storage")
		os.Exit(1)
	}

	service := issuer.NewService(store, config.Buckets.Input, logger)
	server := issuer.NewServer(service, config, logger)

	errs := make(chan error, 1)
	go func() {
		errs <- server.Start()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGTERM, syscall.SIGINT)

	select {
	case err := <-errs:
		if err != nil {
			logger.Fatal().Err(err).Msg("Server exited")
			os.Exit(1)
		}
	case sig := <-stop:
		logger.Info().Str("signal", sig.String()).Msg("Shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			logger.Error().Err(err).Msg("Shutdown failed")
			os.Exit(1)
		}
	}
}
