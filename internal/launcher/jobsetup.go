// Package launcher interprets job descriptors and prepares APBS and
// PDB2PQR executions for the work queue.
package launcher

import (
	"fmt"
	"net/url"
	"strings"
)

// PreparedJob is the translator output consumed by the intake handler.
type PreparedJob struct {
	// CommandLineArgs is passed verbatim as the subprocess argument tail.
	CommandLineArgs string

	// InputFiles is the ordered materialization list. Entries are either
	// fully-qualified URLs or object-store keys relative to the job tag.
	InputFiles []string

	// OutputFiles lists object-store keys the translator already produced.
	OutputFiles []string

	// EstimatedMaxRuntime is in seconds; it extends the queue lease when
	// larger than the configured default.
	EstimatedMaxRuntime int64
}

// MissingFilesError reports files the user promised but the object store
// lacks. The intake turns it into a failed status without enqueueing.
type MissingFilesError struct {
	Files []string
}

func (e *MissingFilesError) Error() string {
	return fmt.Sprintf("file(s) specified missing from storage: %v", e.Files)
}

// jobSetup accumulates the file lists every runner shares.
type jobSetup struct {
	jobID        string
	jobDate      string
	inputFiles   []string
	outputFiles  []string
	missingFiles []string
}

func newJobSetup(jobID, jobDate string) jobSetup {
	return jobSetup{jobID: jobID, jobDate: jobDate}
}

func (j *jobSetup) jobTag() string {
	return fmt.Sprintf("%s/%s", j.jobDate, j.jobID)
}

// addInputFile records an input. URLs pass through untouched; bare names
// become keys relative to the job tag.
func (j *jobSetup) addInputFile(name string) {
	if isURL(name) {
		j.inputFiles = append(j.inputFiles, name)
		return
	}
	j.inputFiles = append(j.inputFiles, fmt.Sprintf("%s/%s", j.jobTag(), name))
}

func (j *jobSetup) addOutputFile(name string) error {
	if isURL(name) {
		return fmt.Errorf("%s output file name is a URL: %s", j.jobTag(), name)
	}
	j.outputFiles = append(j.outputFiles, fmt.Sprintf("%s/%s", j.jobTag(), name))
	return nil
}

// InputFiles returns the inputs recorded so far. Useful when preparation
// fails partway and the status document still wants the list.
func (j *jobSetup) InputFiles() []string {
	return j.inputFiles
}

func (j *jobSetup) OutputFiles() []string {
	return j.outputFiles
}

func (j *jobSetup) addMissingFile(name string) {
	j.missingFiles = append(j.missingFiles, fmt.Sprintf("%s/%s", j.jobTag(), name))
}

func isURL(s string) bool {
	u, err := url.Parse(s)
	return err == nil && u.Scheme != ""
}

// sanitizeFileName strips any path component and replaces spaces, matching
// what the web front end has always done to uploaded filenames.
func sanitizeFileName(name string) string {
	if i := strings.LastIndexAny(name, "/\\"); i >= 0 {
		name = name[i+1:]
	}
	return strings.ReplaceAll(name, " ", "_")
}
