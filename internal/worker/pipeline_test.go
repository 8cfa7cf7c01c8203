package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Electrostatics/apbs-aws/internal/common"
	"github.com/Electrostatics/apbs-aws/internal/intake"
	"github.com/Electrostatics/apbs-aws/internal/models"
	"github.com/Electrostatics/apbs-aws/internal/queue"
	"github.com/Electrostatics/apbs-aws/internal/storage"
)

// TestPipeline_SubmissionToCompletion drives one direct submission through
// intake and the worker: descriptor upload, translation, enqueue, execution,
// artifact upload, final status.
func TestPipeline_SubmissionToCompletion(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	jobs := queue.NewMemoryQueue()
	worker, config := newTestWorker(t, store, jobs)

	descriptor := `{"form": {"filename": "in.in"}}`
	store.Seed(testInputBucket, testJobTag+"/apbs-sub.json", []byte(descriptor))
	store.Seed(testInputBucket, testJobTag+"/in.in", []byte("read\n\tmol pqr a.pqr\nend\nquit"))

	status := storage.NewStatusStore(store, testOutputBucket, common.GetLogger())
	handler := intake.NewHandler(store, status, jobs, config, common.GetLogger())

	eventJSON := fmt.Sprintf(`{"Records": [{"s3": {"bucket": {"name": %q}, "object": {"key": %q}}}]}`,
		testInputBucket, testJobTag+"/apbs-sub.json")
	var event models.S3Event
	require.NoError(t, json.Unmarshal([]byte(eventJSON), &event))
	require.NoError(t, handler.HandleEvent(ctx, &event))

	doc, err := status.Read(ctx, testJobTag, "apbs")
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, doc.Job.Status)

	worker.runCommand = func(ctx context.Context, dir, binary string, args []string,
		stdout, stderr io.Writer) (int, error) {
		assert.Equal(t, "apbs", binary)
		assert.Equal(t, []string{"in.in"}, args)
		require.NoError(t, os.WriteFile(filepath.Join(dir, "pot.dx"), []byte("data"), 0o644))
		return 0, nil
	}

	msg, err := jobs.Receive(ctx, config.Queue.ReceiveTimeout)
	require.NoError(t, err)
	worker.process(ctx, msg)

	assert.Equal(t, 0, jobs.LeasedCount(), "work message should be acknowledged")

	doc, err = status.Read(ctx, testJobTag, "apbs")
	require.NoError(t, err)
	assert.Equal(t, models.StatusComplete, doc.Job.Status)
	require.NotNil(t, doc.Job.EndTime)
	assert.Contains(t, doc.Job.OutputFiles, testJobTag+"/pot.dx")
	assert.NotContains(t, doc.Job.OutputFiles, testJobTag+"/in.in")

	_, ok := store.Object(testOutputBucket, testJobTag+"/pot.dx")
	assert.True(t, ok, "expected artifact upload")
	_, ok = store.Object(testOutputBucket, testJobTag+"/apbs-metrics.json")
	assert.True(t, ok, "expected metrics upload")
}
