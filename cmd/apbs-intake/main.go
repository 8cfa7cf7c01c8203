package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ternarybob/arbor"

	"github.com/Electrostatics/apbs-aws/internal/common"
	"github.com/Electrostatics/apbs-aws/internal/intake"
	"github.com/Electrostatics/apbs-aws/internal/queue"
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
		fmt.Printf("apbs-intake version %s\n", common.GetFullVersion())
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
	if config.Queue.EventQueueName == "" {
		arbor.NewLogger().Fatal().Msg("EVENT_QUEUE_NAME is not configured")
		os.Exit(1)
	}

	logger := common.InitLogger(config)
	common.PrintBanner("apbs-intake", common.GetVersion())

	store, err := storage.NewS3Store(config.Region, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to object storage")
		os.Exit(1)
	}
	events, err := queue.NewSQSQueue(config.Region, config.Queue.EventQueueName, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to event queue")
		os.Exit(1)
	}
	jobs, err := queue.NewSQSQueue(config.Region, config.Queue.JobQueueName, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to job queue")
		os.Exit(1)
	}

	status := storage.NewStatusStore(store, config.Buckets.Output, logger)
	handler := intake.NewHandler(store, status, jobs, config, logger)
	daemon := intake.NewDaemon(handler, events, config, logger)

	ctx, cancel := context.WithCancel(context.Background())
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		sig := <-stop
		logger.Info().Str("signal", sig.String()).Msg("Shutting down")
		cancel()
	}()

	if err := daemon.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("Intake daemon exited")
		os.Exit(1)
	}
}
