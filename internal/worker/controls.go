package worker

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/ternarybob/arbor"

	"github.com/Electrostatics/apbs-aws/internal/common"
)

// Controller owns the process-wide run state: the processing gate, the live
// configuration, and graceful shutdown. Signal handlers route here.
//
//	SIGUSR1  toggle processing
//	SIGHUP   reload configuration
//	SIGUSR2  dump state to stderr
//	SIGTERM  stop after the current iteration
//	SIGINT   stop after the current iteration
type Controller struct {
	processing  atomic.Bool
	config      atomic.Pointer[common.Config]
	configPaths []string
	logger      arbor.ILogger
}

func NewController(config *common.Config, configPaths []string, logger arbor.ILogger) *Controller {
	c := &Controller{
		configPaths: configPaths,
		logger:      logger,
	}
	c.processing.Store(true)
	c.config.Store(config)
	return c
}

// Processing reports whether the worker may take new messages.
func (c *Controller) Processing() bool {
	return c.processing.Load()
}

// Toggle flips the processing gate and returns the new state.
func (c *Controller) Toggle() bool {
	for {
		current := c.processing.Load()
		if c.processing.CompareAndSwap(current, !current) {
			return !current
		}
	}
}

// Config returns the current configuration. Callers must not mutate it.
func (c *Controller) Config() *common.Config {
	return c.config.Load()
}

// Reload re-reads configuration files and environment overrides. The old
// configuration stays in effect when loading fails.
func (c *Controller) Reload() error {
	config, err := common.LoadFromFiles(c.configPaths...)
	if err != nil {
		return fmt.Errorf("failed to reload configuration: %w", err)
	}
	if err := config.Validate(); err != nil {
		return fmt.Errorf("reloaded configuration invalid: %w", err)
	}
	c.config.Store(config)
	c.logger.Info().Msg("Configuration reloaded")
	return nil
}

// DumpState writes the current configuration and processing gate, for
// operators poking the process with SIGUSR2.
func (c *Controller) DumpState(w io.Writer) {
	config := c.Config()
	fmt.Fprintf(w, "processing: %t\n", c.Processing())
	fmt.Fprintf(w, "region: %s\n", config.Region)
	fmt.Fprintf(w, "input_bucket: %s\n", config.Buckets.Input)
	fmt.Fprintf(w, "output_bucket: %s\n", config.Buckets.Output)
	fmt.Fprintf(w, "job_queue_name: %s\n", config.Queue.JobQueueName)
	fmt.Fprintf(w, "queue_timeout: %d\n", config.Queue.ReceiveTimeout)
	fmt.Fprintf(w, "max_tries: %d\n", config.Queue.MaxTries)
	fmt.Fprintf(w, "retry_time: %d\n", config.Queue.RetryTime)
	fmt.Fprintf(w, "job_max_runtime: %d\n", config.Job.MaxRuntime)
	fmt.Fprintf(w, "job_path: %s\n", config.Job.Path)
}

// Bind installs the signal handlers and returns a context that is canceled
// on a stop signal. The returned stop function releases the handlers.
func (c *Controller) Bind(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	signals := make(chan os.Signal, 4)
	signal.Notify(signals, syscall.SIGUSR1, syscall.SIGUSR2, syscall.SIGHUP,
		syscall.SIGTERM, syscall.SIGINT)

	go func() {
		defer signal.Stop(signals)
		for {
			select {
			case <-ctx.Done():
				return
			case sig := <-signals:
				switch sig {
				case syscall.SIGUSR1:
					state := c.Toggle()
					c.logger.Info().Bool("processing", state).Msg("Processing gate toggled")
				case syscall.SIGHUP:
					if err := c.Reload(); err != nil {
						c.logger.Error().Err(err).Msg("Configuration reload failed")
					}
				case syscall.SIGUSR2:
					c.DumpState(os.Stderr)
				case syscall.SIGTERM, syscall.SIGINT:
					c.logger.Info().Str("signal", sig.String()).Msg("Stop signal received")
					cancel()
					return
				}
			}
		}
	}()

	return ctx, cancel
}
