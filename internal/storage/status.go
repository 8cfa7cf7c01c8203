package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/Electrostatics/apbs-aws/internal/interfaces"
	"github.com/Electrostatics/apbs-aws/internal/models"
)

// StatusStore persists per-job status documents in the output bucket.
// Writes are last-writer-wins; the state machine guarantees a single
// writer per transition, so no compare-and-swap is needed.
type StatusStore struct {
	store  interfaces.ObjectStore
	bucket string
	logger arbor.ILogger
}

func NewStatusStore(store interfaces.ObjectStore, outputBucket string, logger arbor.ILogger) *StatusStore {
	return &StatusStore{
		store:  store,
		bucket: outputBucket,
		logger: logger,
	}
}

func (s *StatusStore) Write(ctx context.Context, jobTag string, doc *models.StatusDoc) error {
	key := models.StatusObjectKey(jobTag, doc.JobType)
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal status for %s: %w", jobTag, err)
	}
	if err := s.store.PutBytes(ctx, s.bucket, key, body); err != nil {
		return fmt.Errorf("failed to write status %s: %w", key, err)
	}
	s.logger.Info().Str("job_tag", jobTag).Str("key", key).Msg("Uploaded status file")
	return nil
}

func (s *StatusStore) Read(ctx context.Context, jobTag string, jobType string) (*models.StatusDoc, error) {
	key := models.StatusObjectKey(jobTag, jobType)
	body, err := s.store.GetBytes(ctx, s.bucket, key)
	if err != nil {
		return nil, err
	}
	var doc models.StatusDoc
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode status %s: %w", key, err)
	}
	return &doc, nil
}

// Merge performs a read-modify-write of the existing document with the
// caller's function.
func (s *StatusStore) Merge(ctx context.Context, jobTag string, jobType string, fn func(*models.StatusDoc) error) error {
	doc, err := s.Read(ctx, jobTag, jobType)
	if err != nil {
		return err
	}
	if err := fn(doc); err != nil {
		return err
	}
	return s.Write(ctx, jobTag, doc)
}
