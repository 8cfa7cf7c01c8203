package storage

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/Electrostatics/apbs-aws/internal/common"
	"github.com/Electrostatics/apbs-aws/internal/models"
)

func TestStatusStore_WriteAndRead(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	statusStore := NewStatusStore(store, "out-bucket", common.GetLogger())

	doc := models.NewStatusDoc("sampleId", "apbs", models.StatusPending, 100.0,
		[]string{"2021-05-16/sampleId/in.in"}, []string{}, "")
	if err := statusStore.Write(ctx, "2021-05-16/sampleId", doc); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	if _, ok := store.Object("out-bucket", "2021-05-16/sampleId/apbs-status.json"); !ok {
		t.Fatal("Expected status object at <JobTag>/apbs-status.json")
	}

	read, err := statusStore.Read(ctx, "2021-05-16/sampleId", "apbs")
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if read.Job == nil || read.Job.Status != models.StatusPending {
		t.Errorf("Unexpected status body: %+v", read.Job)
	}
}

func TestStatusStore_Merge(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	statusStore := NewStatusStore(store, "out-bucket", common.GetLogger())

	doc := models.NewStatusDoc("sampleId", "pdb2pqr", models.StatusPending, 100.0,
		[]string{"a.pdb"}, []string{}, "")
	// Seed a subtask to check it survives the merge untouched.
	doc.Job.Subtasks = []json.RawMessage{json.RawMessage(`{"step":"propka"}`)}
	if err := statusStore.Write(ctx, "2021-05-16/sampleId", doc); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	err := statusStore.Merge(ctx, "2021-05-16/sampleId", "pdb2pqr", func(d *models.StatusDoc) error {
		d.Job.Status = models.StatusRunning
		return nil
	})
	if err != nil {
		t.Fatalf("Merge failed: %v", err)
	}

	read, err := statusStore.Read(ctx, "2021-05-16/sampleId", "pdb2pqr")
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if read.Job.Status != models.StatusRunning {
		t.Errorf("Expected running after merge, got %s", read.Job.Status)
	}
	if len(read.Job.Subtasks) != 1 || string(read.Job.Subtasks[0]) != `{"step":"propka"}` {
		t.Errorf("Expected subtasks preserved, got %v", read.Job.Subtasks)
	}
	if read.Job.StartTime == nil || *read.Job.StartTime != 100.0 {
		t.Errorf("Expected startTime preserved, got %v", read.Job.StartTime)
	}
}

func TestStatusStore_ReadMissing(t *testing.T) {
	statusStore := NewStatusStore(NewMemoryStore(), "out-bucket", common.GetLogger())
	if _, err := statusStore.Read(context.Background(), "2021-05-16/nothere", "apbs"); err == nil {
		t.Fatal("Expected error for missing status document")
	}
}
