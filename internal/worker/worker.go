// Package worker drains the job queue and executes one job at a time:
// download inputs, spawn the tool, collect metrics, upload artifacts.
package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/Electrostatics/apbs-aws/internal/interfaces"
	"github.com/Electrostatics/apbs-aws/internal/models"
)

const (
	// processingPause is how long the loop sleeps while the gate is closed.
	processingPause = 10 * time.Second

	downloadFailedMessage = "Failed to download input file. Job did not run."
)

// CommandRunner executes one subprocess and returns its exit code. A nil
// error with a non-zero code means the process ran and failed; an error
// means it never ran.
type CommandRunner func(ctx context.Context, dir, binary string, args []string,
	stdout, stderr io.Writer) (int, error)

// Worker is the single-threaded poll loop. Multiple workers coordinate
// only through the queue's visibility timeout.
type Worker struct {
	store      interfaces.ObjectStore
	status     interfaces.StatusStore
	jobs       interfaces.Queue
	controller *Controller
	logger     arbor.ILogger

	httpClient *http.Client
	runCommand CommandRunner
}

func NewWorker(store interfaces.ObjectStore, status interfaces.StatusStore,
	jobs interfaces.Queue, controller *Controller, logger arbor.ILogger) *Worker {
	return &Worker{
		store:      store,
		status:     status,
		jobs:       jobs,
		controller: controller,
		logger:     logger,
		httpClient: &http.Client{Timeout: 5 * time.Minute},
		runCommand: runSubprocess,
	}
}

// Run polls until the queue stays empty for the configured number of
// tries, the context is canceled, or a stop signal arrives.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info().Msg("Worker started")
	emptyPolls := 0
	for {
		if err := ctx.Err(); err != nil {
			w.logger.Info().Msg("Worker stopping")
			return nil
		}
		if !w.controller.Processing() {
			sleepCtx(ctx, processingPause)
			continue
		}

		config := w.controller.Config()
		msg, err := w.jobs.Receive(ctx, config.Queue.ReceiveTimeout)
		if errors.Is(err, models.ErrNoMessage) {
			emptyPolls++
			if emptyPolls >= config.Queue.MaxTries {
				w.logger.Info().Int("empty_polls", emptyPolls).
					Msg("Queue stayed empty, worker exiting")
				return nil
			}
			sleepCtx(ctx, time.Duration(config.Queue.RetryTime)*time.Second)
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			w.logger.Warn().Err(err).Msg("Failed to receive work message")
			sleepCtx(ctx, time.Duration(config.Queue.RetryTime)*time.Second)
			continue
		}

		emptyPolls = 0
		w.process(ctx, msg)
	}
}

// process runs the full lifecycle of one leased message. All errors are
// local; the message is deleted unless redelivery can help.
func (w *Worker) process(ctx context.Context, msg *interfaces.QueueMessage) {
	config := w.controller.Config()

	job, err := models.ParseWorkMessage([]byte(msg.Body))
	if err != nil {
		// A malformed payload can never succeed; drop it.
		w.logger.Error().Err(err).Msg("Discarding malformed work message")
		w.deleteMessage(ctx, msg)
		return
	}
	kind := job.JobType
	if !kind.Valid() {
		w.logger.Error().Str("job_tag", job.JobTag).Str("job_type", string(kind)).
			Msg("Discarding message with unknown job type")
		w.deleteMessage(ctx, msg)
		return
	}
	logger := w.logger
	logger.Info().Str("job_tag", job.JobTag).Str("job_type", string(kind)).
		Msg("Starting job execution")

	workDir := filepath.Join(config.Job.Path, job.JobTag)
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		logger.Error().Err(err).Str("job_tag", job.JobTag).
			Msg("Failed to create working directory")
		return
	}

	if err := w.materializeInputs(ctx, job, config.Job.Path, workDir); err != nil {
		logger.Error().Err(err).Str("job_tag", job.JobTag).
			Msg("Input download failed")
		w.updateStatus(ctx, job, func(s *models.JobStatus) {
			now := epochNow()
			s.Status = models.StatusFailed
			s.EndTime = &now
			s.Message = downloadFailedMessage
		})
		w.cleanup(workDir)
		w.deleteMessage(ctx, msg)
		return
	}

	w.updateStatus(ctx, job, func(s *models.JobStatus) {
		s.Status = models.StatusRunning
	})

	// Extend the lease once so it survives the whole run; after it expires
	// the broker is free to redeliver.
	if job.MaxRunTime > 0 {
		if err := w.jobs.ExtendVisibility(ctx, msg, job.MaxRunTime); err != nil {
			logger.Warn().Err(err).Str("job_tag", job.JobTag).
				Msg("Failed to extend message visibility")
		}
	}

	metrics := w.execute(ctx, job, workDir)
	if err := WriteMetricsFile(workDir, kind, metrics); err != nil {
		logger.Error().Err(err).Str("job_tag", job.JobTag).
			Msg("Failed to write metrics file")
	}

	outputFiles := w.uploadArtifacts(ctx, job, config.Buckets.Output, workDir)

	w.cleanup(workDir)
	w.updateStatus(ctx, job, func(s *models.JobStatus) {
		now := epochNow()
		s.Status = models.StatusComplete
		s.EndTime = &now
		s.OutputFiles = outputFiles
	})
	w.deleteMessage(ctx, msg)
	logger.Info().Str("job_tag", job.JobTag).Int("exit_code", metrics.ExitCode).
		Float64("runtime_in_seconds", metrics.RuntimeSeconds).Msg("Job execution finished")
}

// materializeInputs fetches every input into the working directory. URLs
// download to their basename; object keys keep their full path under the
// job root.
func (w *Worker) materializeInputs(ctx context.Context, job *models.WorkMessage,
	jobRoot, workDir string) error {
	for _, entry := range job.InputFiles {
		var dest string
		var err error
		if isURL(entry) {
			dest = filepath.Join(workDir, path.Base(entry))
			err = w.downloadURL(ctx, entry, dest)
		} else {
			dest = filepath.Join(jobRoot, entry)
			if mkErr := os.MkdirAll(filepath.Dir(dest), 0o755); mkErr != nil {
				return mkErr
			}
			err = w.store.DownloadFile(ctx, job.BucketName, entry, dest)
		}
		if err != nil {
			return fmt.Errorf("failed to download %s: %w", entry, err)
		}
	}
	return nil
}

func (w *Worker) downloadURL(ctx context.Context, rawURL, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	resp, err := w.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s returned %s", rawURL, resp.Status)
	}
	file, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer file.Close()
	if _, err := io.Copy(file, resp.Body); err != nil {
		return err
	}
	return file.Close()
}

// execute runs the tool and returns the execution metrics. Spawn failures
// surface as exit code -1; the job still completes so callers can inspect
// the record.
func (w *Worker) execute(ctx context.Context, job *models.WorkMessage, workDir string) models.ExecutionMetrics {
	kind := job.JobType
	binary := kind.BinaryName()
	args := strings.Fields(job.CommandLineArgs)

	stdout, err := os.Create(filepath.Join(workDir, fmt.Sprintf("%s.stdout.txt", kind)))
	if err != nil {
		w.logger.Error().Err(err).Msg("Failed to create stdout capture")
		stdout = nil
	}
	stderr, err := os.Create(filepath.Join(workDir, fmt.Sprintf("%s.stderr.txt", kind)))
	if err != nil {
		w.logger.Error().Err(err).Msg("Failed to create stderr capture")
		stderr = nil
	}

	before, rusageErr := SnapshotRusage()
	start := time.Now()
	exitCode, runErr := w.runCommand(ctx, workDir, binary, args, writerOrDiscard(stdout), writerOrDiscard(stderr))
	runtime := time.Since(start).Seconds()
	if stdout != nil {
		stdout.Close()
	}
	if stderr != nil {
		stderr.Close()
	}
	if runErr != nil {
		w.logger.Error().Err(runErr).Str("job_tag", job.JobTag).Str("binary", binary).
			Msg("Failed to spawn job binary")
		exitCode = -1
	}

	var rusage models.RusageSnapshot
	if rusageErr == nil {
		if after, err := SnapshotRusage(); err == nil {
			rusage = DeltaRusage(after, before)
		}
	}

	diskBytes, err := StorageBytes(workDir)
	if err != nil {
		w.logger.Warn().Err(err).Msg("Failed to measure disk usage")
	}

	return models.ExecutionMetrics{
		Rusage:           rusage,
		RuntimeSeconds:   round2(runtime),
		DiskStorageBytes: diskBytes,
		ExitCode:         exitCode,
	}
}

// uploadArtifacts pushes every top-level file in the working directory to
// the output bucket and returns the keys that were not inputs. Per-file
// upload errors are logged and skipped; partial output is better than none.
func (w *Worker) uploadArtifacts(ctx context.Context, job *models.WorkMessage,
	outputBucket, workDir string) []string {

	inputBasenames := make(map[string]bool, len(job.InputFiles))
	for _, entry := range job.InputFiles {
		inputBasenames[path.Base(entry)] = true
	}

	outputFiles := []string{}

	// The metrics document uploads before any other artifact.
	metricsName := fmt.Sprintf("%s-metrics.json", job.JobType)
	metricsPath := filepath.Join(workDir, metricsName)
	if _, err := os.Stat(metricsPath); err == nil {
		key := fmt.Sprintf("%s/%s", job.JobTag, metricsName)
		if err := w.store.UploadFile(ctx, metricsPath, outputBucket, key); err != nil {
			w.logger.Error().Err(err).Str("job_tag", job.JobTag).Str("file", metricsName).
				Msg("Failed to upload metrics file")
		} else {
			outputFiles = append(outputFiles, key)
		}
	}

	entries, err := os.ReadDir(workDir)
	if err != nil {
		w.logger.Error().Err(err).Str("job_tag", job.JobTag).
			Msg("Failed to list working directory")
		return outputFiles
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if name == metricsName {
			continue
		}
		key := fmt.Sprintf("%s/%s", job.JobTag, name)
		local := filepath.Join(workDir, name)
		if err := w.store.UploadFile(ctx, local, outputBucket, key); err != nil {
			w.logger.Error().Err(err).Str("job_tag", job.JobTag).Str("file", name).
				Msg("Failed to upload output file")
			continue
		}
		if !inputBasenames[name] {
			outputFiles = append(outputFiles, key)
		}
	}
	return outputFiles
}

// updateStatus merges into the existing status document, creating a fresh
// one when intake never wrote it.
func (w *Worker) updateStatus(ctx context.Context, job *models.WorkMessage,
	fn func(*models.JobStatus)) {

	err := w.status.Merge(ctx, job.JobTag, string(job.JobType), func(doc *models.StatusDoc) error {
		if doc.Job == nil {
			doc.Job = &models.JobStatus{}
		}
		fn(doc.Job)
		return nil
	})
	if err == nil {
		return
	}
	if errors.Is(err, models.ErrNoSuchKey) {
		doc := models.NewStatusDoc(job.JobID, string(job.JobType), models.StatusPending,
			epochNow(), job.InputFiles, []string{}, "")
		fn(doc.Job)
		if writeErr := w.status.Write(ctx, job.JobTag, doc); writeErr != nil {
			w.logger.Error().Err(writeErr).Str("job_tag", job.JobTag).
				Msg("Failed to write status document")
		}
		return
	}
	w.logger.Error().Err(err).Str("job_tag", job.JobTag).
		Msg("Failed to update status document")
}

func (w *Worker) deleteMessage(ctx context.Context, msg *interfaces.QueueMessage) {
	if err := w.jobs.Delete(ctx, msg); err != nil {
		w.logger.Warn().Err(err).Msg("Failed to delete work message")
	}
}

func (w *Worker) cleanup(workDir string) {
	if err := os.RemoveAll(workDir); err != nil {
		w.logger.Warn().Err(err).Str("dir", workDir).
			Msg("Failed to remove working directory")
	}
}

func runSubprocess(ctx context.Context, dir, binary string, args []string,
	stdout, stderr io.Writer) (int, error) {

	cmd := exec.CommandContext(ctx, binary, args...)
	cmd.Dir = dir
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return exitErr.ExitCode(), nil
		}
		return -1, err
	}
	return 0, nil
}

func writerOrDiscard(f *os.File) io.Writer {
	if f == nil {
		return io.Discard
	}
	return f
}

func isURL(s string) bool {
	u, err := url.Parse(s)
	return err == nil && u.Scheme != ""
}

func epochNow() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}

func sleepCtx(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
