package models

import (
	"encoding/json"
	"fmt"
)

// Status is the lifecycle state of a job within its status document.
type Status string

const (
	StatusPending  Status = "pending"
	StatusRunning  Status = "running"
	StatusComplete Status = "complete"
	StatusFailed   Status = "failed"
	StatusInvalid  Status = "invalid"
)

// CanTransitionTo reports whether the state machine allows moving from s
// to next. "invalid" is terminal; only pending -> running -> complete/failed
// is permitted otherwise.
func (s Status) CanTransitionTo(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusRunning
	case StatusRunning:
		return next == StatusComplete || next == StatusFailed
	default:
		return false
	}
}

// JobStatus is the per-kind body of a status document. Subtasks is reserved
// for future use and must survive a read-modify-write untouched, hence the
// raw representation.
type JobStatus struct {
	Status      Status            `json:"status"`
	StartTime   *float64          `json:"startTime"`
	EndTime     *float64          `json:"endTime"`
	Subtasks    []json.RawMessage `json:"subtasks"`
	InputFiles  []string          `json:"inputFiles"`
	OutputFiles []string          `json:"outputFiles"`
	Message     string            `json:"message,omitempty"`
}

// StatusDoc is the JSON document persisted at <JobTag>/<kind>-status.json.
// The per-job body sits under a key named after the job type, so the
// document marshals with a dynamic key:
//
//	{ "jobid": ..., "jobtype": "apbs", "apbs": { ... } }
type StatusDoc struct {
	JobID   string
	JobType string
	Job     *JobStatus
}

func (d StatusDoc) MarshalJSON() ([]byte, error) {
	m := map[string]interface{}{
		"jobid":   d.JobID,
		"jobtype": d.JobType,
	}
	if d.Job != nil {
		m[d.JobType] = d.Job
	}
	return json.Marshal(m)
}

func (d *StatusDoc) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if v, ok := raw["jobid"]; ok {
		if err := json.Unmarshal(v, &d.JobID); err != nil {
			return fmt.Errorf("failed to decode jobid: %w", err)
		}
	}
	if v, ok := raw["jobtype"]; ok {
		if err := json.Unmarshal(v, &d.JobType); err != nil {
			return fmt.Errorf("failed to decode jobtype: %w", err)
		}
	}
	if v, ok := raw[d.JobType]; ok {
		d.Job = &JobStatus{}
		if err := json.Unmarshal(v, d.Job); err != nil {
			return fmt.Errorf("failed to decode %q status body: %w", d.JobType, err)
		}
	}
	return nil
}

// NewStatusDoc builds the initial status document written by the intake.
// For "invalid" submissions every run field is nulled and only the message
// survives; that shape is what the legacy status readers expect. A "failed"
// intake outcome carries matching start and end timestamps.
func NewStatusDoc(jobID string, jobType string, status Status, startTime float64, inputFiles, outputFiles []string, message string) *StatusDoc {
	body := &JobStatus{
		Status:      status,
		StartTime:   &startTime,
		EndTime:     nil,
		Subtasks:    []json.RawMessage{},
		InputFiles:  inputFiles,
		OutputFiles: outputFiles,
	}
	if inputFiles == nil {
		body.InputFiles = []string{}
	}
	if outputFiles == nil {
		body.OutputFiles = []string{}
	}

	switch status {
	case StatusFailed:
		end := startTime
		body.EndTime = &end
		body.Message = message
	case StatusInvalid:
		body.StartTime = nil
		body.Subtasks = nil
		body.InputFiles = nil
		body.OutputFiles = nil
		body.Message = message
	}

	return &StatusDoc{
		JobID:   jobID,
		JobType: jobType,
		Job:     body,
	}
}

// StatusObjectKey returns the object key of the status document for a job.
// The job type is kept as a raw string so invalid submissions still get a
// readable document under their claimed type.
func StatusObjectKey(jobTag string, jobType string) string {
	return fmt.Sprintf("%s/%s-status.json", jobTag, jobType)
}
