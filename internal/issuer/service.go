// Package issuer hands out presigned upload URLs so clients can stage job
// files without credentials.
package issuer

import (
	"time"

	"github.com/ternarybob/arbor"

	"github.com/Electrostatics/apbs-aws/internal/common"
	"github.com/Electrostatics/apbs-aws/internal/interfaces"
	"github.com/Electrostatics/apbs-aws/internal/models"
)

// urlExpirySeconds is the lifetime of every issued upload URL.
const urlExpirySeconds = 3600

// TokenRequest is the POST body: files to stage and an optional job id to
// reuse an existing job.
type TokenRequest struct {
	FileList []string `json:"file_list"`
	JobID    string   `json:"job_id,omitempty"`
}

// TokenResponse carries one presigned PUT URL per requested file.
type TokenResponse struct {
	Date   string            `json:"date"`
	JobID  string            `json:"job_id"`
	JobTag string            `json:"job_tag"`
	URLs   map[string]string `json:"urls"`
}

// Service issues upload tokens against the input bucket.
type Service struct {
	signer      interfaces.URLSigner
	inputBucket string
	logger      arbor.ILogger

	now      func() time.Time
	newJobID func() string
}

func NewService(signer interfaces.URLSigner, inputBucket string, logger arbor.ILogger) *Service {
	return &Service{
		signer:      signer,
		inputBucket: inputBucket,
		logger:      logger,
		now:         time.Now,
		newJobID:    common.NewJobID,
	}
}

// GenerateTokens builds the URL batch. A file whose URL cannot be signed
// gets an empty string and a warning; the batch itself never fails.
func (s *Service) GenerateTokens(request *TokenRequest) *TokenResponse {
	jobID := request.JobID
	if jobID == "" {
		jobID = s.newJobID()
	}
	date := s.now().Format("2006-01-02")
	jobTag := models.NewJobTag(date, jobID)

	urls := make(map[string]string, len(request.FileList))
	for _, fileName := range request.FileList {
		key := jobTag + "/" + fileName
		url, err := s.signer.PresignPut(s.inputBucket, key, urlExpirySeconds)
		if err != nil {
			s.logger.Warn().Err(err).Str("job_tag", jobTag).Str("file", fileName).
				Msg("Failed to presign upload URL")
			urls[fileName] = ""
			continue
		}
		urls[fileName] = url
	}

	s.logger.Info().Str("job_tag", jobTag).Int("files", len(request.FileList)).
		Msg("Issued upload URLs")
	return &TokenResponse{
		Date:   date,
		JobID:  jobID,
		JobTag: jobTag,
		URLs:   urls,
	}
}
