package common

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNewDefaultConfig(t *testing.T) {
	config := NewDefaultConfig()

	if config.Job.MaxRuntime != 2000 {
		t.Errorf("Expected default max runtime 2000, got %d", config.Job.MaxRuntime)
	}
	if config.Queue.ReceiveTimeout != 300 {
		t.Errorf("Expected default receive timeout 300, got %d", config.Queue.ReceiveTimeout)
	}
	if config.Queue.MaxTries != 60 {
		t.Errorf("Expected default max tries 60, got %d", config.Queue.MaxTries)
	}
	if config.Queue.RetryTime != 15 {
		t.Errorf("Expected default retry time 15, got %d", config.Queue.RetryTime)
	}
	if config.Job.Path != "/var/tmp/" {
		t.Errorf("Expected default job path /var/tmp/, got %s", config.Job.Path)
	}
}

func TestLoadFromFiles_EnvOverrides(t *testing.T) {
	t.Setenv("OUTPUT_BUCKET", "test-output")
	t.Setenv("INPUT_BUCKET", "test-input")
	t.Setenv("JOB_QUEUE_NAME", "test-job-q")
	t.Setenv("JOB_MAX_RUNTIME", "3600")
	t.Setenv("SQS_MAX_TRIES", "5")
	t.Setenv("LOG_LEVEL", "20")

	config, err := LoadFromFiles()
	if err != nil {
		t.Fatalf("LoadFromFiles failed: %v", err)
	}

	if config.Buckets.Output != "test-output" {
		t.Errorf("Expected output bucket 'test-output', got %q", config.Buckets.Output)
	}
	if config.Buckets.Input != "test-input" {
		t.Errorf("Expected input bucket 'test-input', got %q", config.Buckets.Input)
	}
	if config.Queue.JobQueueName != "test-job-q" {
		t.Errorf("Expected job queue 'test-job-q', got %q", config.Queue.JobQueueName)
	}
	if config.Job.MaxRuntime != 3600 {
		t.Errorf("Expected max runtime 3600, got %d", config.Job.MaxRuntime)
	}
	if config.Queue.MaxTries != 5 {
		t.Errorf("Expected max tries 5, got %d", config.Queue.MaxTries)
	}

	if err := config.Validate(); err != nil {
		t.Errorf("Expected valid config, got %v", err)
	}
}

func TestLoadFromFiles_TOMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "apbs-aws.toml")
	content := `
region = "us-east-1"

[buckets]
input = "file-input"
output = "file-output"

[queue]
job_queue_name = "file-job-q"
retry_time = 2
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	config, err := LoadFromFiles(path)
	if err != nil {
		t.Fatalf("LoadFromFiles failed: %v", err)
	}

	if config.Region != "us-east-1" {
		t.Errorf("Expected region us-east-1, got %q", config.Region)
	}
	if config.Buckets.Output != "file-output" {
		t.Errorf("Expected output bucket file-output, got %q", config.Buckets.Output)
	}
	if config.Queue.RetryTime != 2 {
		t.Errorf("Expected retry time 2, got %d", config.Queue.RetryTime)
	}
	// Defaults survive for keys the file does not set
	if config.Queue.MaxTries != 60 {
		t.Errorf("Expected default max tries 60, got %d", config.Queue.MaxTries)
	}
}

func TestValidate_MissingRequired(t *testing.T) {
	config := NewDefaultConfig()
	err := config.Validate()
	if err == nil {
		t.Fatal("Expected validation error for empty config")
	}

	config.Buckets.Output = "out"
	if err := config.Validate(); err == nil {
		t.Fatal("Expected validation error for missing job queue name")
	}

	config.Queue.JobQueueName = "q"
	if err := config.Validate(); err != nil {
		t.Fatalf("Expected valid config, got %v", err)
	}
}
