package launcher

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/Electrostatics/apbs-aws/internal/interfaces"
)

const (
	// apbsTempFileName is the rewritten input file uploaded for every
	// form-driven run.
	apbsTempFileName = "apbsinput.in"

	// apbsEstimatedMaxRuntime is in seconds.
	apbsEstimatedMaxRuntime = 7200
)

// ApbsRunner prepares an APBS execution. Jobs arrive in one of two shapes:
// a direct submission naming an uploaded input file, or a form handed off
// from a finished PDB2PQR run.
type ApbsRunner struct {
	jobSetup

	store        interfaces.ObjectStore
	inputBucket  string
	outputBucket string
	logger       arbor.ILogger

	infileName       string
	supportFileNames []string
	form             map[string]interface{}
}

func NewApbsRunner(form map[string]interface{}, jobID, jobDate string,
	store interfaces.ObjectStore, inputBucket, outputBucket string,
	logger arbor.ILogger) *ApbsRunner {

	r := &ApbsRunner{
		jobSetup:     newJobSetup(jobID, jobDate),
		store:        store,
		inputBucket:  inputBucket,
		outputBucket: outputBucket,
		logger:       logger,
	}

	if filename, ok := form["filename"].(string); ok {
		r.infileName = filename
		if supports, ok := form["support_files"].([]interface{}); ok {
			for _, name := range supports {
				r.supportFileNames = append(r.supportFileNames, formString(name))
			}
		}
	} else {
		r.form = form
	}
	return r
}

// Prepare verifies or synthesizes the input files for the job and returns
// the execution plan.
func (r *ApbsRunner) Prepare(ctx context.Context) (*PreparedJob, error) {
	r.logger.Info().Str("job_tag", r.jobTag()).Msg("Preparing APBS job execution")

	var args string
	var err error
	if r.infileName != "" {
		args, err = r.prepareDirect(ctx)
	} else {
		args, err = r.prepareFromForm(ctx)
	}
	if err != nil {
		return nil, err
	}

	return &PreparedJob{
		CommandLineArgs:     args,
		InputFiles:          r.inputFiles,
		OutputFiles:         r.outputFiles,
		EstimatedMaxRuntime: apbsEstimatedMaxRuntime,
	}, nil
}

// prepareDirect checks that the named input file and its supporting files
// already exist in the input bucket.
func (r *ApbsRunner) prepareDirect(ctx context.Context) (string, error) {
	names := append([]string{r.infileName}, r.supportFileNames...)
	for _, name := range names {
		objectName := fmt.Sprintf("%s/%s", r.jobTag(), name)
		exists, err := r.store.Exists(ctx, r.inputBucket, objectName)
		if err != nil {
			return "", fmt.Errorf("failed to check %s: %w", objectName, err)
		}
		if !exists {
			r.logger.Error().Str("job_tag", r.jobTag()).Str("file", name).
				Msg("Missing APBS input file")
			r.addMissingFile(name)
			continue
		}
		// Only files the store actually holds are recorded as inputs.
		r.addInputFile(name)
	}
	if len(r.missingFiles) > 0 {
		return "", &MissingFilesError{Files: r.missingFiles}
	}
	return r.infileName, nil
}

// prepareFromForm rewrites the input file a PDB2PQR run left in the output
// bucket, applies the form options, and stages everything into the input
// bucket.
func (r *ApbsRunner) prepareFromForm(ctx context.Context) (string, error) {
	form := normalizeApbsForm(r.form)
	opts, err := parseApbsOptions(form, r.logger)
	if err != nil {
		return "", fmt.Errorf("%s invalid form: %w", r.jobTag(), err)
	}
	if opts.WriteStem == "" {
		return "", &MissingFilesError{Files: []string{fmt.Sprintf("%s/pdb2pqrid", r.jobTag())}}
	}

	infileName := fmt.Sprintf("%s.in", r.jobID)
	infileText, err := r.store.GetString(ctx, r.outputBucket, fmt.Sprintf("%s/%s", r.jobTag(), infileName))
	if err != nil {
		return "", fmt.Errorf("failed to fetch %s: %w", infileName, err)
	}

	readFiles := ExtractReadFiles(infileText)
	if len(readFiles) == 0 {
		return "", fmt.Errorf("%s no files referenced in READ section of %s", r.jobTag(), infileName)
	}
	pqrFileName := readFiles[0]
	opts.PqrFileName = pqrFileName
	opts.TempFile = apbsTempFileName

	newInfileText := CreateInputFile(opts)

	pqrText, err := r.store.GetString(ctx, r.outputBucket, fmt.Sprintf("%s/%s", r.jobTag(), pqrFileName))
	if err != nil {
		return "", fmt.Errorf("failed to fetch %s: %w", pqrFileName, err)
	}

	if form["removewater"] == "on" {
		withWaterName := waterFileName(pqrFileName)

		// Keep the original around before stripping solvent lines.
		key := fmt.Sprintf("%s/%s", r.jobTag(), withWaterName)
		if err := r.store.PutBytes(ctx, r.outputBucket, key, []byte(pqrText)); err != nil {
			return "", fmt.Errorf("failed to preserve %s: %w", withWaterName, err)
		}
		if err := r.addOutputFile(withWaterName); err != nil {
			return "", err
		}
		pqrText = removeWaterLines(pqrText)
	}

	uploads := []struct {
		name string
		body string
	}{
		{opts.TempFile, newInfileText},
		{pqrFileName, pqrText},
	}
	for _, upload := range uploads {
		key := fmt.Sprintf("%s/%s", r.jobTag(), upload.name)
		r.logger.Info().Str("job_tag", r.jobTag()).Str("key", key).Msg("Write file to storage")
		if err := r.store.PutBytes(ctx, r.inputBucket, key, []byte(upload.body)); err != nil {
			return "", fmt.Errorf("failed to upload %s: %w", key, err)
		}
	}

	r.addInputFile(pqrFileName)
	r.addInputFile(opts.TempFile)

	return opts.TempFile, nil
}

// waterFileName inserts "-water" before the extension, so sample.pqr
// becomes sample-water.pqr.
func waterFileName(pqrFileName string) string {
	ext := path.Ext(pqrFileName)
	return fmt.Sprintf("%s-water%s", strings.TrimSuffix(pqrFileName, ext), ext)
}

// removeWaterLines drops every line mentioning a water residue.
func removeWaterLines(pqrText string) string {
	var b strings.Builder
	rest := pqrText
	for len(rest) > 0 {
		line := rest
		if i := strings.IndexByte(rest, '\n'); i >= 0 {
			line = rest[:i+1]
			rest = rest[i+1:]
		} else {
			rest = ""
		}
		if strings.Contains(line, "WAT") || strings.Contains(line, "HOH") {
			continue
		}
		b.WriteString(line)
	}
	return b.String()
}
