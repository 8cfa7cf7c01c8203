package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

// JobKind identifies which tool family a job invokes.
type JobKind string

const (
	KindApbs    JobKind = "apbs"
	KindPdb2pqr JobKind = "pdb2pqr"
	KindInvalid JobKind = "invalid"
)

// JobTypeFromFilename returns the claimed type prefix of a descriptor
// filename, whether or not it names a runnable tool.
func JobTypeFromFilename(filename string) string {
	return strings.SplitN(filename, "-", 2)[0]
}

// KindFromFilename derives the job kind from a descriptor filename.
// Descriptors are named "<kind>-<name>.json", e.g. "pdb2pqr-job.json".
func KindFromFilename(filename string) JobKind {
	switch JobKind(JobTypeFromFilename(filename)) {
	case KindApbs:
		return KindApbs
	case KindPdb2pqr:
		return KindPdb2pqr
	default:
		return KindInvalid
	}
}

// BinaryName returns the executable the worker spawns for this kind.
func (k JobKind) BinaryName() string {
	switch k {
	case KindApbs:
		return "apbs"
	case KindPdb2pqr:
		return "pdb2pqr30"
	default:
		return ""
	}
}

// Valid reports whether the kind names a runnable tool.
func (k JobKind) Valid() bool {
	return k == KindApbs || k == KindPdb2pqr
}

// NewJobTag returns the "<date>/<job_id>" prefix that owns every object
// of a job. Immutable once formed.
func NewJobTag(jobDate, jobID string) string {
	return fmt.Sprintf("%s/%s", jobDate, jobID)
}

// SplitObjectKey extracts (job_date, job_id, filename) from an object key
// of the form "<...>/<date>/<job_id>/<filename>".
func SplitObjectKey(key string) (jobDate, jobID, filename string, err error) {
	parts := strings.Split(key, "/")
	if len(parts) < 3 {
		return "", "", "", fmt.Errorf("object key %q does not contain a date/jobid/filename path", key)
	}
	return parts[len(parts)-3], parts[len(parts)-2], parts[len(parts)-1], nil
}

// JobTagFromObjectKey returns the "<date>/<job_id>" prefix of an object key,
// or the key itself when it is too shallow to carry one.
func JobTagFromObjectKey(key string) string {
	parts := strings.Split(key, "/")
	if len(parts) >= 3 {
		return fmt.Sprintf("%s/%s", parts[len(parts)-3], parts[len(parts)-2])
	}
	return key
}

// WorkMessage is the JSON body of a work queue message, consumed by the
// worker's lease handler. The field names are the queue wire contract.
type WorkMessage struct {
	JobDate         string   `json:"job_date"`
	JobID           string   `json:"job_id"`
	JobTag          string   `json:"job_tag"`
	JobType         JobKind  `json:"job_type"`
	BucketName      string   `json:"bucket_name"`
	InputFiles      []string `json:"input_files"`
	CommandLineArgs string   `json:"command_line_args"`
	MaxRunTime      int64    `json:"max_run_time,omitempty"`
}

// ParseWorkMessage decodes a queue message body and validates the fields
// the worker cannot proceed without.
func ParseWorkMessage(body []byte) (*WorkMessage, error) {
	var msg WorkMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return nil, fmt.Errorf("failed to decode work message: %w", err)
	}
	if msg.JobID == "" || msg.JobDate == "" {
		return nil, fmt.Errorf("work message missing job_id or job_date")
	}
	if msg.JobTag == "" {
		msg.JobTag = NewJobTag(msg.JobDate, msg.JobID)
	}
	return &msg, nil
}

// JobDescriptor is the uploaded job submission. Only the top-level "form"
// mapping is interpreted; everything else is ignored.
type JobDescriptor struct {
	Form map[string]interface{} `json:"form"`
}

// S3Event is the subset of an S3 notification record the intake consumes.
type S3Event struct {
	Records []struct {
		S3 struct {
			Bucket struct {
				Name string `json:"name"`
			} `json:"bucket"`
			Object struct {
				Key string `json:"key"`
			} `json:"object"`
		} `json:"s3"`
	} `json:"Records"`
}
