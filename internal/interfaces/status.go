package interfaces

import (
	"context"

	"github.com/Electrostatics/apbs-aws/internal/models"
)

// StatusStore persists per-job status documents in the output bucket.
type StatusStore interface {
	// Write replaces the status document for a job.
	Write(ctx context.Context, jobTag string, doc *models.StatusDoc) error

	// Read fetches the current status document for a job and kind.
	Read(ctx context.Context, jobTag string, jobType string) (*models.StatusDoc, error)

	// Merge performs a read-modify-write of the existing document with the
	// caller's function. Writes are last-writer-wins.
	Merge(ctx context.Context, jobTag string, jobType string, fn func(*models.StatusDoc) error) error
}
