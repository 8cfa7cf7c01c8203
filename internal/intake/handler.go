// Package intake turns uploaded job descriptors into queued work. It is
// driven by object-store notification events delivered on a queue.
package intake

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/Electrostatics/apbs-aws/internal/common"
	"github.com/Electrostatics/apbs-aws/internal/interfaces"
	"github.com/Electrostatics/apbs-aws/internal/launcher"
	"github.com/Electrostatics/apbs-aws/internal/models"
)

// Handler interprets one job submission per descriptor upload: translate
// the form, write the initial status document, and enqueue a work message
// unless translation failed.
type Handler struct {
	store  interfaces.ObjectStore
	status interfaces.StatusStore
	jobs   interfaces.Queue
	config *common.Config
	logger arbor.ILogger
}

func NewHandler(store interfaces.ObjectStore, status interfaces.StatusStore,
	jobs interfaces.Queue, config *common.Config, logger arbor.ILogger) *Handler {
	return &Handler{
		store:  store,
		status: status,
		jobs:   jobs,
		config: config,
		logger: logger,
	}
}

// HandleEvent processes every record of an object-store notification.
func (h *Handler) HandleEvent(ctx context.Context, event *models.S3Event) error {
	for _, record := range event.Records {
		bucket := record.S3.Bucket.Name
		key := record.S3.Object.Key
		if err := h.handleDescriptor(ctx, bucket, key); err != nil {
			return fmt.Errorf("failed to process %s: %w", key, err)
		}
	}
	return nil
}

// handleDescriptor runs the full intake pipeline for one uploaded
// descriptor object.
func (h *Handler) handleDescriptor(ctx context.Context, bucket, key string) error {
	jobDate, jobID, filename, err := models.SplitObjectKey(key)
	if err != nil {
		return err
	}
	jobTag := fmt.Sprintf("%s/%s", jobDate, jobID)
	kind := models.KindFromFilename(filename)
	jobType := string(kind)
	if kind == models.KindInvalid {
		// The claimed type still names the status document.
		jobType = models.JobTypeFromFilename(filename)
	}

	logger := h.logger
	logger.Info().Str("job_tag", jobTag).Str("job_type", jobType).
		Str("key", key).Msg("Interpreting job submission")

	raw, err := h.store.GetBytes(ctx, bucket, key)
	if err != nil {
		return fmt.Errorf("failed to fetch descriptor: %w", err)
	}
	var descriptor models.JobDescriptor
	if err := json.Unmarshal(raw, &descriptor); err != nil {
		return fmt.Errorf("failed to decode descriptor: %w", err)
	}

	startTime := float64(time.Now().UnixNano()) / 1e9

	if kind == models.KindInvalid {
		logger.Error().Str("job_tag", jobTag).Str("job_type", jobType).
			Msg("Invalid job type")
		doc := models.NewStatusDoc(jobID, jobType, models.StatusInvalid, startTime,
			nil, nil, "Invalid job type. No job executed")
		return h.status.Write(ctx, jobTag, doc)
	}

	prepared, runErr := h.prepare(ctx, kind, raw, descriptor.Form, jobID, jobDate, bucket)

	if runErr != nil {
		message, ok := failureMessage(runErr)
		if !ok {
			// Infrastructure errors are retryable; no status is written.
			return runErr
		}
		logger.Error().Str("job_tag", jobTag).Err(runErr).
			Msg("Job preparation failed")
		doc := models.NewStatusDoc(jobID, jobType, models.StatusFailed, startTime,
			prepared.InputFiles, prepared.OutputFiles, message)
		return h.status.Write(ctx, jobTag, doc)
	}

	doc := models.NewStatusDoc(jobID, jobType, models.StatusPending, startTime,
		prepared.InputFiles, prepared.OutputFiles, "")
	if err := h.status.Write(ctx, jobTag, doc); err != nil {
		return err
	}

	maxRunTime := prepared.EstimatedMaxRuntime
	if maxRunTime <= 0 {
		maxRunTime = h.config.Job.MaxRuntime
	}
	message := models.WorkMessage{
		JobDate:         jobDate,
		JobID:           jobID,
		JobTag:          jobTag,
		JobType:         kind,
		BucketName:      bucket,
		InputFiles:      prepared.InputFiles,
		CommandLineArgs: prepared.CommandLineArgs,
		MaxRunTime:      maxRunTime,
	}
	body, err := json.Marshal(&message)
	if err != nil {
		return fmt.Errorf("failed to marshal work message: %w", err)
	}
	logger.Info().Str("job_tag", jobTag).Str("job_type", jobType).
		Int64("max_run_time", maxRunTime).Msg("Sending message to job queue")
	return h.jobs.Send(ctx, string(body))
}

// prepare dispatches to the job-kind translator. On failure the returned
// PreparedJob carries whatever file lists were accumulated before the error.
func (h *Handler) prepare(ctx context.Context, kind models.JobKind, raw []byte,
	form map[string]interface{}, jobID, jobDate, bucket string) (*launcher.PreparedJob, error) {

	switch kind {
	case models.KindPdb2pqr:
		flagOrder, err := launcher.FlagKeyOrder(raw)
		if err != nil {
			return &launcher.PreparedJob{}, err
		}
		runner, err := launcher.NewPdb2pqrRunner(form, flagOrder, jobID, jobDate, h.logger)
		if err != nil {
			return &launcher.PreparedJob{}, err
		}
		prepared, err := runner.Prepare()
		if err != nil {
			return &launcher.PreparedJob{
				InputFiles:  runner.InputFiles(),
				OutputFiles: runner.OutputFiles(),
			}, err
		}
		return prepared, nil

	case models.KindApbs:
		runner := launcher.NewApbsRunner(form, jobID, jobDate, h.store,
			bucket, h.config.Buckets.Output, h.logger)
		prepared, err := runner.Prepare(ctx)
		if err != nil {
			return &launcher.PreparedJob{
				InputFiles:  runner.InputFiles(),
				OutputFiles: runner.OutputFiles(),
			}, err
		}
		return prepared, nil
	}
	return &launcher.PreparedJob{}, fmt.Errorf("unsupported job kind %q", kind)
}

// failureMessage maps user-correctable translation errors to the message
// recorded in the failed status document. Other errors are infrastructure
// failures and bubble up.
func failureMessage(err error) (string, bool) {
	var missing *launcher.MissingFilesError
	if errors.As(err, &missing) {
		return fmt.Sprintf(
			"Files specified but not found: %v. "+
				"Please check that all files upload before resubmitting.",
			missing.Files), true
	}
	var webErr *launcher.WebOptionsError
	if errors.As(err, &webErr) {
		return webErr.Message, true
	}
	return "", false
}
