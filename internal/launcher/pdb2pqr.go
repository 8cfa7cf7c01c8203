package launcher

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/ternarybob/arbor"
)

const (
	// rcsbDownloadURL is where PDB structures are fetched when the user
	// supplies an ID instead of uploading a file.
	rcsbDownloadURL = "https://files.rcsb.org/download/"

	// pdb2pqrEstimatedMaxRuntime is in seconds.
	pdb2pqrEstimatedMaxRuntime = 2700
)

// Pdb2pqrRunner prepares a PDB2PQR execution from either a direct CLI-style
// submission or a legacy web form.
type Pdb2pqrRunner struct {
	jobSetup

	logger arbor.ILogger
	form   map[string]interface{}

	invokeMethod string
	flagOrder    []string
	webOptions   *WebOptions
}

// NewPdb2pqrRunner inspects invoke_method to choose the submission style.
// flagOrder carries the document order of form.flags keys; pass the result
// of FlagKeyOrder on the raw descriptor, since decoded maps lose it.
func NewPdb2pqrRunner(form map[string]interface{}, flagOrder []string,
	jobID, jobDate string, logger arbor.ILogger) (*Pdb2pqrRunner, error) {

	r := &Pdb2pqrRunner{
		jobSetup:  newJobSetup(jobID, jobDate),
		logger:    logger,
		form:      form,
		flagOrder: flagOrder,
	}

	method := strings.ToLower(formString(form["invoke_method"]))
	if method == "v2" || method == "cli" {
		r.invokeMethod = "cli"
		return r, nil
	}

	// Anything else, including an absent invoke_method, is a web form.
	r.invokeMethod = "gui"
	options, err := NewWebOptions(form)
	if err != nil {
		return nil, err
	}
	r.webOptions = options
	return r, nil
}

// Prepare builds the command line and input list for the job.
func (r *Pdb2pqrRunner) Prepare() (*PreparedJob, error) {
	r.logger.Info().Str("job_tag", r.jobTag()).Str("invoke_method", r.invokeMethod).
		Msg("Preparing PDB2PQR job execution")

	var args string
	var err error
	if r.invokeMethod == "cli" {
		args, err = r.prepareCli()
	} else {
		args, err = r.prepareGui()
	}
	if err != nil {
		return nil, err
	}

	return &PreparedJob{
		CommandLineArgs:     args,
		InputFiles:          r.inputFiles,
		OutputFiles:         r.outputFiles,
		EstimatedMaxRuntime: pdb2pqrEstimatedMaxRuntime,
	}, nil
}

func (r *Pdb2pqrRunner) prepareCli() (string, error) {
	pdbName := formString(r.form["pdb_name"])
	pqrName := formString(r.form["pqr_name"])
	if pdbName == "" || pqrName == "" {
		return "", fmt.Errorf("%s pdb_name and pqr_name are required for CLI submissions", r.jobTag())
	}

	flags, _ := r.form["flags"].(map[string]interface{})
	order := r.flagOrder
	if order == nil {
		order = make([]string, 0, len(flags))
		for name := range flags {
			order = append(order, name)
		}
		sort.Strings(order)
	}

	r.addInputFile(pdbName)

	parts := make([]string, 0, len(order))
	for _, name := range order {
		value, ok := flags[name]
		if !ok {
			continue
		}
		// Boolean flags render bare; everything else renders as --name=value.
		if _, isBool := value.(bool); isBool {
			parts = append(parts, "--"+name)
		} else {
			parts = append(parts, fmt.Sprintf("--%s=%s", name, formString(value)))
		}
		if name == "userff" || name == "usernames" || name == "ligand" {
			if fileName := formString(r.form[name]); fileName != "" {
				r.addInputFile(fileName)
			}
		}
	}

	args := fmt.Sprintf("%s  %s %s", strings.Join(parts, " "), pdbName, pqrName)
	return strings.TrimLeft(args, " "), nil
}

func (r *Pdb2pqrRunner) prepareGui() (string, error) {
	options := r.webOptions

	if options.userDidUpload {
		r.addInputFile(options.pdbFilename)
	} else {
		if path.Ext(options.pdbFilename) != ".pdb" {
			options.pdbFilename += ".pdb"
		}
		r.addInputFile(rcsbDownloadURL + options.pdbFilename)
	}

	if options.ligandFilename != "" {
		r.addInputFile(options.ligandFilename)
	}
	if options.userffFilename != "" {
		r.addInputFile(options.userffFilename)
	}
	if options.usernamesFilename != "" {
		r.addInputFile(options.usernamesFilename)
	}

	// The result file is always named after the job.
	options.pqrFilename = r.jobID + ".pqr"

	args := options.CommandLine()
	args = strings.ReplaceAll(args, "--summary", "")
	return args, nil
}

// FlagKeyOrder returns the keys of the form.flags object in document order.
// It returns nil when the descriptor has no flags object.
func FlagKeyOrder(descriptor []byte) ([]string, error) {
	dec := json.NewDecoder(bytes.NewReader(descriptor))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("descriptor is not a JSON object")
	}
	return findFlagKeys(dec, false)
}

// findFlagKeys walks one object level. At the top level it descends into
// "form"; inside a form it collects the keys of "flags".
func findFlagKeys(dec *json.Decoder, inForm bool) ([]string, error) {
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, _ := tok.(string)

		switch {
		case !inForm && key == "form":
			tok, err := dec.Token()
			if err != nil {
				return nil, err
			}
			if delim, ok := tok.(json.Delim); ok && delim == '{' {
				return findFlagKeys(dec, true)
			}
			// form was not an object; nothing to collect.
			return nil, nil
		case inForm && key == "flags":
			tok, err := dec.Token()
			if err != nil {
				return nil, err
			}
			if delim, ok := tok.(json.Delim); !ok || delim != '{' {
				return nil, nil
			}
			var keys []string
			for dec.More() {
				tok, err := dec.Token()
				if err != nil {
					return nil, err
				}
				name, _ := tok.(string)
				keys = append(keys, name)
				if err := skipJSONValue(dec); err != nil {
					return nil, err
				}
			}
			return keys, nil
		default:
			if err := skipJSONValue(dec); err != nil {
				return nil, err
			}
		}
	}
	return nil, nil
}

func skipJSONValue(dec *json.Decoder) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	delim, ok := tok.(json.Delim)
	if !ok || (delim != '{' && delim != '[') {
		return nil
	}
	for dec.More() {
		if delim == '{' {
			if _, err := dec.Token(); err != nil {
				return err
			}
		}
		if err := skipJSONValue(dec); err != nil {
			return err
		}
	}
	_, err = dec.Token()
	return err
}
