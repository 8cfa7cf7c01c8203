package models

import "fmt"

// RusageSnapshot carries the 16 resource usage counters of all terminated
// children, as reported by getrusage(RUSAGE_CHILDREN). Field names follow
// the unix counter names so the metrics document stays compatible with the
// legacy readers.
type RusageSnapshot struct {
	UserTime      float64 `json:"ru_utime"`
	SystemTime    float64 `json:"ru_stime"`
	MaxRSS        int64   `json:"ru_maxrss"`
	IXRSS         int64   `json:"ru_ixrss"`
	IDRSS         int64   `json:"ru_idrss"`
	ISRSS         int64   `json:"ru_isrss"`
	MinorFaults   int64   `json:"ru_minflt"`
	MajorFaults   int64   `json:"ru_majflt"`
	Swaps         int64   `json:"ru_nswap"`
	InBlock       int64   `json:"ru_inblock"`
	OutBlock      int64   `json:"ru_oublock"`
	MsgSent       int64   `json:"ru_msgsnd"`
	MsgReceived   int64   `json:"ru_msgrcv"`
	Signals       int64   `json:"ru_nsignals"`
	VolCtxSwitch  int64   `json:"ru_nvcsw"`
	IvolCtxSwitch int64   `json:"ru_nivcsw"`
}

// ExecutionMetrics is the per-execution record body.
type ExecutionMetrics struct {
	Rusage           RusageSnapshot `json:"rusage"`
	RuntimeSeconds   float64        `json:"runtime_in_seconds"`
	DiskStorageBytes int64          `json:"disk_storage_in_bytes"`
	ExitCode         int            `json:"exit_code"`
}

// MetricsDoc is the JSON document persisted at <JobTag>/<kind>-metrics.json.
type MetricsDoc struct {
	Metrics ExecutionMetrics `json:"metrics"`
}

// MetricsObjectKey returns the object key of the metrics document for a job.
func MetricsObjectKey(jobTag string, kind JobKind) string {
	return fmt.Sprintf("%s/%s-metrics.json", jobTag, kind)
}
