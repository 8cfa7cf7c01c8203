package common

import (
	"fmt"
	"os"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
)

// Config represents the pipeline configuration shared by the API, intake,
// and worker binaries. Values load from TOML files and are overridden by
// the environment variables the legacy deployment already uses.
type Config struct {
	Region  string        `toml:"region"`
	Buckets BucketConfig  `toml:"buckets"`
	Queue   QueueConfig   `toml:"queue"`
	Job     JobConfig     `toml:"job"`
	Server  ServerConfig  `toml:"server"`
	Logging LoggingConfig `toml:"logging"`
}

type BucketConfig struct {
	Input  string `toml:"input"`                      // bucket receiving descriptors and user inputs
	Output string `toml:"output" validate:"required"` // bucket receiving status, artifacts, metrics
}

type QueueConfig struct {
	JobQueueName   string `toml:"job_queue_name" validate:"required"` // work queue drained by the worker
	EventQueueName string `toml:"event_queue_name"`                   // S3 notification queue drained by the intake daemon
	ReceiveTimeout int64  `toml:"receive_timeout"`                    // initial receive visibility in seconds
	MaxTries       int    `toml:"max_tries"`                          // consecutive empty polls before the worker exits
	RetryTime      int    `toml:"retry_time"`                         // sleep between empty polls in seconds
}

type JobConfig struct {
	MaxRuntime int64  `toml:"max_runtime"` // default visibility extension in seconds
	Path       string `toml:"path"`        // local working root for job directories
}

type ServerConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

type LoggingConfig struct {
	Level  string   `toml:"level"`  // "debug".."error" or a legacy numeric level
	Output []string `toml:"output"` // "stdout", "file"
}

// NewDefaultConfig returns the configuration defaults. The fallback values
// match what the legacy lambda/docker deployment assumed.
func NewDefaultConfig() *Config {
	return &Config{
		Region: "us-west-2",
		Queue: QueueConfig{
			ReceiveTimeout: 300,
			MaxTries:       60,
			RetryTime:      15,
		},
		Job: JobConfig{
			MaxRuntime: 2000,
			Path:       "/var/tmp/",
		},
		Server: ServerConfig{
			Port: 8080,
			Host: "0.0.0.0",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout"},
		},
	}
}

// LoadFromFiles loads configuration with priority: defaults -> file1 -> file2
// -> ... -> environment. Later files override earlier ones.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for _, path := range paths {
		if path == "" {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config.
// The variable names are the deployment contract and predate this service.
func applyEnvOverrides(config *Config) {
	if region := os.Getenv("AWS_REGION"); region != "" {
		config.Region = region
	}
	if bucket := os.Getenv("INPUT_BUCKET"); bucket != "" {
		config.Buckets.Input = bucket
	}
	if bucket := os.Getenv("OUTPUT_BUCKET"); bucket != "" {
		config.Buckets.Output = bucket
	}
	if name := os.Getenv("JOB_QUEUE_NAME"); name != "" {
		config.Queue.JobQueueName = name
	}
	if name := os.Getenv("EVENT_QUEUE_NAME"); name != "" {
		config.Queue.EventQueueName = name
	}
	if timeout := os.Getenv("SQS_QUEUE_TIMEOUT"); timeout != "" {
		if t, err := strconv.ParseInt(timeout, 10, 64); err == nil {
			config.Queue.ReceiveTimeout = t
		}
	}
	if tries := os.Getenv("SQS_MAX_TRIES"); tries != "" {
		if n, err := strconv.Atoi(tries); err == nil {
			config.Queue.MaxTries = n
		}
	}
	if retry := os.Getenv("SQS_RETRY_TIME"); retry != "" {
		if n, err := strconv.Atoi(retry); err == nil {
			config.Queue.RetryTime = n
		}
	}
	if runtime := os.Getenv("JOB_MAX_RUNTIME"); runtime != "" {
		if n, err := strconv.ParseInt(runtime, 10, 64); err == nil {
			config.Job.MaxRuntime = n
		}
	}
	if path := os.Getenv("JOB_PATH"); path != "" {
		config.Job.Path = path
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if port := os.Getenv("SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
}

// Validate checks that the configuration can support a running service.
// A missing output bucket or job queue name is a fatal startup error.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		if fieldErrs, ok := err.(validator.ValidationErrors); ok {
			for _, fieldErr := range fieldErrs {
				switch fieldErr.StructNamespace() {
				case "Config.Buckets.Output":
					return fmt.Errorf("OUTPUT_BUCKET is not configured")
				case "Config.Queue.JobQueueName":
					return fmt.Errorf("JOB_QUEUE_NAME is not configured")
				}
			}
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
