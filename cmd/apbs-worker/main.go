package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/ternarybob/arbor"

	"github.com/Electrostatics/apbs-aws/internal/common"
	"github.com/Electrostatics/apbs-aws/internal/queue"
	"github.com/Electrostatics/apbs-aws/internal/storage"
	"github.com/Electrostatics/apbs-aws/internal/worker"
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
		fmt.Printf("apbs-worker version %s\n", common.GetFullVersion())
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

	logger := common.InitLogger(config)
	common.PrintBanner("apbs-worker", common.GetVersion())

	store, err := storage.NewS3Store(config.Region, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to object storage")
		os.Exit(1)
	}
	jobs, err := queue.NewSQSQueue(config.Region, config.Queue.JobQueueName, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to job queue")
		os.Exit(1)
	}

	controller := worker.NewController(config, configFiles, logger)
	ctx, cancel := controller.Bind(context.Background())
	defer cancel()

	status := storage.NewStatusStore(store, config.Buckets.Output, logger)
	w := worker.NewWorker(store, status, jobs, controller, logger)

	if err := w.Run(ctx); err != nil {
		logger.Fatal().Err(err).Msg("Worker exited")
		os.Exit(1)
	}
	logger.Info().Msg("Worker drained the queue and is exiting")
}
