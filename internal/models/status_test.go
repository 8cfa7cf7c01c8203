package models

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestNewStatusDoc_Pending(t *testing.T) {
	doc := NewStatusDoc("sampleId", "apbs", StatusPending, 1621123456.7,
		[]string{"2021-05-16/sampleId/in.in"}, []string{}, "")

	if doc.Job == nil {
		t.Fatal("Expected status body")
	}
	if doc.Job.Status != StatusPending {
		t.Errorf("Expected pending, got %s", doc.Job.Status)
	}
	if doc.Job.StartTime == nil || *doc.Job.StartTime != 1621123456.7 {
		t.Errorf("Expected startTime set, got %v", doc.Job.StartTime)
	}
	if doc.Job.EndTime != nil {
		t.Errorf("Expected endTime null for pending, got %v", *doc.Job.EndTime)
	}
	if doc.Job.Subtasks == nil || len(doc.Job.Subtasks) != 0 {
		t.Errorf("Expected empty subtasks, got %v", doc.Job.Subtasks)
	}

	data, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	s := string(data)
	for _, want := range []string{`"jobid":"sampleId"`, `"jobtype":"apbs"`, `"apbs":{`, `"subtasks":[]`, `"endTime":null`} {
		if !strings.Contains(s, want) {
			t.Errorf("Expected marshaled doc to contain %s, got %s", want, s)
		}
	}
}

func TestNewStatusDoc_Invalid(t *testing.T) {
	doc := NewStatusDoc("sampleId", "zzz", StatusInvalid, 1621123456.7,
		nil, nil, "Invalid job type. No job executed")

	body := doc.Job
	if body.StartTime != nil || body.InputFiles != nil || body.OutputFiles != nil || body.Subtasks != nil {
		t.Error("Expected all run fields null for invalid status")
	}
	if body.Message != "Invalid job type. No job executed" {
		t.Errorf("Unexpected message: %q", body.Message)
	}

	data, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	s := string(data)
	// The body sits under the claimed job type, even for unknown kinds.
	if !strings.Contains(s, `"zzz":{`) {
		t.Errorf("Expected body under 'zzz' key, got %s", s)
	}
	for _, want := range []string{`"startTime":null`, `"inputFiles":null`, `"outputFiles":null`, `"subtasks":null`} {
		if !strings.Contains(s, want) {
			t.Errorf("Expected %s in %s", want, s)
		}
	}
}

func TestNewStatusDoc_FailedHasEndTime(t *testing.T) {
	doc := NewStatusDoc("sampleId", "apbs", StatusFailed, 100.5, nil, nil, "Files specified but not found: [b.pqr]")
	if doc.Job.EndTime == nil {
		t.Fatal("Expected endTime set for failed status")
	}
	if *doc.Job.EndTime < *doc.Job.StartTime {
		t.Errorf("endTime %v < startTime %v", *doc.Job.EndTime, *doc.Job.StartTime)
	}
}

func TestStatusDocRoundTrip_PreservesSubtasks(t *testing.T) {
	raw := `{"jobid":"abc123defg","jobtype":"pdb2pqr","pdb2pqr":{"status":"running","startTime":1.5,"endTime":null,"subtasks":[{"name":"x","state":42}],"inputFiles":["a.pdb"],"outputFiles":[]}}`

	var doc StatusDoc
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if doc.JobType != "pdb2pqr" || doc.Job == nil {
		t.Fatalf("Unexpected doc: %+v", doc)
	}
	if len(doc.Job.Subtasks) != 1 {
		t.Fatalf("Expected 1 subtask, got %d", len(doc.Job.Subtasks))
	}

	data, err := json.Marshal(&doc)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if !strings.Contains(string(data), `{"name":"x","state":42}`) {
		t.Errorf("Expected subtasks preserved verbatim, got %s", data)
	}
}

func TestStatusTransitions(t *testing.T) {
	cases := []struct {
		from, to Status
		allowed  bool
	}{
		{StatusPending, StatusRunning, true},
		{StatusRunning, StatusComplete, true},
		{StatusRunning, StatusFailed, true},
		{StatusPending, StatusComplete, false},
		{StatusComplete, StatusRunning, false},
		{StatusInvalid, StatusRunning, false},
		{StatusInvalid, StatusPending, false},
		{StatusFailed, StatusRunning, false},
	}
	for _, tc := range cases {
		if got := tc.from.CanTransitionTo(tc.to); got != tc.allowed {
			t.Errorf("%s -> %s: got %v, want %v", tc.from, tc.to, got, tc.allowed)
		}
	}
}

func TestKindFromFilename(t *testing.T) {
	cases := map[string]JobKind{
		"apbs-job.json":        KindApbs,
		"pdb2pqr-sample.json":  KindPdb2pqr,
		"zzz-sample-job.json":  KindInvalid,
		"apbsinput.in":         KindInvalid,
		"pdb2pqr-status.json":  KindPdb2pqr,
		"apbs-sample-job.json": KindApbs,
	}
	for filename, want := range cases {
		if got := KindFromFilename(filename); got != want {
			t.Errorf("KindFromFilename(%q) = %q, want %q", filename, got, want)
		}
	}
}

func TestSplitObjectKey(t *testing.T) {
	date, id, filename, err := SplitObjectKey("2021-05-16/sampleId/apbs-job.json")
	if err != nil {
		t.Fatalf("SplitObjectKey failed: %v", err)
	}
	if date != "2021-05-16" || id != "sampleId" || filename != "apbs-job.json" {
		t.Errorf("Unexpected parts: %s %s %s", date, id, filename)
	}

	if _, _, _, err := SplitObjectKey("too/shallow"); err == nil {
		t.Error("Expected error for key without date/jobid/filename segments")
	}
}

func TestParseWorkMessage(t *testing.T) {
	body := `{"job_date":"2021-05-16","job_id":"sampleId","job_type":"pdb2pqr","bucket_name":"in","input_files":["https://files.rcsb.org/download/1fas.pdb"],"command_line_args":"--ff=parse 1fas.pdb sampleId.pqr","max_run_time":2700}`
	msg, err := ParseWorkMessage([]byte(body))
	if err != nil {
		t.Fatalf("ParseWorkMessage failed: %v", err)
	}
	if msg.JobTag != "2021-05-16/sampleId" {
		t.Errorf("Expected derived job tag, got %q", msg.JobTag)
	}
	if msg.MaxRunTime != 2700 {
		t.Errorf("Expected max_run_time 2700, got %d", msg.MaxRunTime)
	}

	if _, err := ParseWorkMessage([]byte(`{"job_id":"x"}`)); err == nil {
		t.Error("Expected error for missing job_date")
	}
	if _, err := ParseWorkMessage([]byte(`not json`)); err == nil {
		t.Error("Expected error for malformed body")
	}
}
