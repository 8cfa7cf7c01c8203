package intake

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/Electrostatics/apbs-aws/internal/common"
	"github.com/Electrostatics/apbs-aws/internal/models"
	"github.com/Electrostatics/apbs-aws/internal/queue"
	"github.com/Electrostatics/apbs-aws/internal/storage"
)

const (
	testInputBucket  = "input-bucket"
	testOutputBucket = "output-bucket"
	testJobTag       = "2021-05-16/sampleId"
)

func newTestHandler(store *storage.MemoryStore, jobs *queue.MemoryQueue) *Handler {
	logger := common.GetLogger()
	config := common.NewDefaultConfig()
	config.Buckets.Input = testInputBucket
	config.Buckets.Output = testOutputBucket
	status := storage.NewStatusStore(store, testOutputBucket, logger)
	return NewHandler(store, status, jobs, config, logger)
}

func s3Event(t *testing.T, bucket, key string) *models.S3Event {
	t.Helper()
	body := fmt.Sprintf(
		`{"Records":[{"s3":{"bucket":{"name":"%s"},"object":{"key":"%s"}}}]}`,
		bucket, key)
	var event models.S3Event
	if err := json.Unmarshal([]byte(body), &event); err != nil {
		t.Fatalf("Failed to build event: %v", err)
	}
	return &event
}

func receiveWorkMessage(t *testing.T, jobs *queue.MemoryQueue) *models.WorkMessage {
	t.Helper()
	msg, err := jobs.Receive(context.Background(), 30)
	if err != nil {
		t.Fatalf("Expected a queued work message: %v", err)
	}
	parsed, err := models.ParseWorkMessage([]byte(msg.Body))
	if err != nil {
		t.Fatalf("Failed to parse work message: %v", err)
	}
	return parsed
}

func TestHandler_Pdb2pqrCliSubmission(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	jobs := queue.NewMemoryQueue()
	handler := newTestHandler(store, jobs)

	descriptor := `{
		"form": {
			"invoke_method": "v2",
			"pdb_name": "1fas.pdb",
			"pqr_name": "sampleId.pqr",
			"flags": {
				"with-ph": 7.0,
				"ph-calc-method": "propka",
				"drop-water": true,
				"apbs-input": true,
				"ff": "parse",
				"verbose": true
			}
		}
	}`
	key := testJobTag + "/pdb2pqr-job.json"
	store.Seed(testInputBucket, key, []byte(descriptor))

	if err := handler.HandleEvent(ctx, s3Event(t, testInputBucket, key)); err != nil {
		t.Fatalf("HandleEvent failed: %v", err)
	}

	msg := receiveWorkMessage(t, jobs)
	wantArgs := "--with-ph=7.0 --ph-calc-method=propka --drop-water --apbs-input --ff=parse --verbose  1fas.pdb sampleId.pqr"
	if msg.CommandLineArgs != wantArgs {
		t.Errorf("Expected args %q, got %q", wantArgs, msg.CommandLineArgs)
	}
	if msg.MaxRunTime != 2700 {
		t.Errorf("Expected max_run_time 2700, got %d", msg.MaxRunTime)
	}
	if msg.JobTag != testJobTag || msg.JobType != models.KindPdb2pqr {
		t.Errorf("Unexpected message identity: %+v", msg)
	}

	doc, err := handler.status.Read(ctx, testJobTag, "pdb2pqr")
	if err != nil {
		t.Fatalf("Expected status document: %v", err)
	}
	if doc.Job.Status != models.StatusPending {
		t.Errorf("Expected pending status, got %s", doc.Job.Status)
	}
	if doc.Job.StartTime == nil {
		t.Error("Expected startTime to be set")
	}
}

func TestHandler_DirectApbsMissingFiles(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	jobs := queue.NewMemoryQueue()
	handler := newTestHandler(store, jobs)

	descriptor := `{"form":{"filename":"in.in","support_files":["a.pqr","b.pqr"]}}`
	key := testJobTag + "/apbs-job.json"
	store.Seed(testInputBucket, key, []byte(descriptor))
	store.Seed(testInputBucket, testJobTag+"/in.in", []byte("read\nend\nquit"))
	store.Seed(testInputBucket, testJobTag+"/a.pqr", []byte("ATOM"))

	if err := handler.HandleEvent(ctx, s3Event(t, testInputBucket, key)); err != nil {
		t.Fatalf("HandleEvent failed: %v", err)
	}

	if jobs.Len() != 0 {
		t.Errorf("Expected no queued message, got %d", jobs.Len())
	}
	doc, err := handler.status.Read(ctx, testJobTag, "apbs")
	if err != nil {
		t.Fatalf("Expected status document: %v", err)
	}
	if doc.Job.Status != models.StatusFailed {
		t.Errorf("Expected failed status, got %s", doc.Job.Status)
	}
	if !strings.Contains(doc.Job.Message, "b.pqr") {
		t.Errorf("Expected message to name the missing file, got %q", doc.Job.Message)
	}
	if !strings.Contains(doc.Job.Message, "Files specified but not found") {
		t.Errorf("Unexpected failure message: %q", doc.Job.Message)
	}
}

func TestHandler_DirectApbsHappyPath(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	jobs := queue.NewMemoryQueue()
	handler := newTestHandler(store, jobs)

	descriptor := `{"form":{"filename":"in.in","support_files":["a.pqr","b.pqr"]}}`
	key := testJobTag + "/apbs-job.json"
	store.Seed(testInputBucket, key, []byte(descriptor))
	store.Seed(testInputBucket, testJobTag+"/in.in", []byte("read\nend\nquit"))
	store.Seed(testInputBucket, testJobTag+"/a.pqr", []byte("ATOM"))
	store.Seed(testInputBucket, testJobTag+"/b.pqr", []byte("ATOM"))

	if err := handler.HandleEvent(ctx, s3Event(t, testInputBucket, key)); err != nil {
		t.Fatalf("HandleEvent failed: %v", err)
	}

	msg := receiveWorkMessage(t, jobs)
	if msg.CommandLineArgs != "in.in" {
		t.Errorf("Expected args %q, got %q", "in.in", msg.CommandLineArgs)
	}
	if msg.MaxRunTime != 7200 {
		t.Errorf("Expected max_run_time 7200, got %d", msg.MaxRunTime)
	}
	wantInputs := []string{
		testJobTag + "/in.in",
		testJobTag + "/a.pqr",
		testJobTag + "/b.pqr",
	}
	if len(msg.InputFiles) != len(wantInputs) {
		t.Fatalf("Expected input files %v, got %v", wantInputs, msg.InputFiles)
	}
	for i := range wantInputs {
		if msg.InputFiles[i] != wantInputs[i] {
			t.Errorf("Input file %d: expected %q, got %q", i, wantInputs[i], msg.InputFiles[i])
		}
	}
}

func TestHandler_InvalidJobType(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	jobs := queue.NewMemoryQueue()
	handler := newTestHandler(store, jobs)

	key := testJobTag + "/zzz-sample-job.json"
	store.Seed(testInputBucket, key, []byte(`{"form":{}}`))

	if err := handler.HandleEvent(ctx, s3Event(t, testInputBucket, key)); err != nil {
		t.Fatalf("HandleEvent failed: %v", err)
	}

	if jobs.Len() != 0 {
		t.Errorf("Expected no queued message, got %d", jobs.Len())
	}
	doc, err := handler.status.Read(ctx, testJobTag, "zzz")
	if err != nil {
		t.Fatalf("Expected status document under claimed type: %v", err)
	}
	if doc.JobType != "zzz" {
		t.Errorf("Expected jobtype zzz, got %s", doc.JobType)
	}
	if doc.Job.Status != models.StatusInvalid {
		t.Errorf("Expected invalid status, got %s", doc.Job.Status)
	}
	if doc.Job.StartTime != nil || doc.Job.InputFiles != nil ||
		doc.Job.OutputFiles != nil || doc.Job.Subtasks != nil {
		t.Errorf("Expected null run fields for invalid job, got %+v", doc.Job)
	}
	if doc.Job.Message != "Invalid job type. No job executed" {
		t.Errorf("Unexpected message: %q", doc.Job.Message)
	}
}

func TestHandler_GuiWebOptionsFailure(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	jobs := queue.NewMemoryQueue()
	handler := newTestHandler(store, jobs)

	// No FF key: the form validator rejects this before any work queues.
	key := testJobTag + "/pdb2pqr-job.json"
	store.Seed(testInputBucket, key, []byte(`{"form":{"PDBID":"1fas","PDBSOURCE":"ID"}}`))

	if err := handler.HandleEvent(ctx, s3Event(t, testInputBucket, key)); err != nil {
		t.Fatalf("HandleEvent failed: %v", err)
	}

	if jobs.Len() != 0 {
		t.Errorf("Expected no queued message, got %d", jobs.Len())
	}
	doc, err := handler.status.Read(ctx, testJobTag, "pdb2pqr")
	if err != nil {
		t.Fatalf("Expected status document: %v", err)
	}
	if doc.Job.Status != models.StatusFailed {
		t.Errorf("Expected failed status, got %s", doc.Job.Status)
	}
	if doc.Job.Message != "Force field type missing from form." {
		t.Errorf("Unexpected message: %q", doc.Job.Message)
	}
}
