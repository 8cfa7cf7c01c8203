package launcher

import (
	"fmt"
	"strconv"
	"strings"
)

// WebOptionsError marks a user-correctable problem with a submitted web
// form. The intake reports it as a failed status rather than a crash.
type WebOptionsError struct {
	Message string
	BadKey  string
}

func (e *WebOptionsError) Error() string {
	return e.Message
}

const phHelp = "Please choose a pH between 0.0 and 14.0."

// WebOptions validates a web-form PDB2PQR submission and renders its
// command line. Keys are the uppercase names the web front end has always
// used; presence of a key is meaningful for the boolean toggles.
type WebOptions struct {
	debump bool
	opt    bool

	ff string

	pdbFilename   string
	pqrFilename   string
	userDidUpload bool

	ph           float64
	hasPH        bool
	phCalcMethod string

	apbs       bool
	whitespace bool

	userffFilename    string
	usernamesFilename string
	ligandFilename    string

	ffout string

	chain     bool
	typemap   bool
	neutraln  bool
	neutralc  bool
	dropWater bool
}

// NewWebOptions validates the form and returns the gathered options, or a
// *WebOptionsError describing what the user must fix.
func NewWebOptions(form map[string]interface{}) (*WebOptions, error) {
	w := &WebOptions{}

	_, w.debump = form["DEBUMP"]
	_, w.opt = form["OPT"]

	if ff, ok := form["FF"]; ok {
		w.ff = strings.ToLower(formString(ff))
	} else {
		return nil, &WebOptionsError{Message: "Force field type missing from form.", BadKey: "FF"}
	}

	pdbID := formString(form["PDBID"])
	switch {
	case pdbID != "" && formString(form["PDBSOURCE"]) == "ID":
		w.userDidUpload = false
		w.pdbFilename = pdbID
	case formString(form["PDBSOURCE"]) == "UPLOAD" && formString(form["PDBFILE"]) != "":
		w.userDidUpload = true
		w.pdbFilename = sanitizeFileName(formString(form["PDBFILE"]))
	default:
		return nil, &WebOptionsError{Message: "You need to specify a pdb ID or upload a pdb file."}
	}

	if method, ok := form["PKACALCMETHOD"]; ok && formString(method) != "none" {
		rawPH, ok := form["PH"]
		if !ok {
			return nil, &WebOptionsError{Message: "Please provide a pH value.", BadKey: "PH"}
		}
		ph, err := parsePH(rawPH)
		if err != nil {
			return nil, &WebOptionsError{
				Message: "The pH value provided must be a number!  " + phHelp,
				BadKey:  "PH",
			}
		}
		if ph < 0.0 || ph > 14.0 {
			return nil, &WebOptionsError{
				Message: fmt.Sprintf("The entered pH of %.2f is invalid!  %s", ph, phHelp),
				BadKey:  "PH",
			}
		}
		w.ph = ph
		w.hasPH = true
		methodName := formString(method)
		if methodName == "propka" || methodName == "pdb2pka" {
			w.phCalcMethod = methodName
		}
	}

	_, w.apbs = form["INPUT"]
	_, w.whitespace = form["WHITESPACE"]

	if w.ff == "user" {
		if name := formString(form["USERFFFILE"]); name != "" {
			w.userffFilename = sanitizeFileName(name)
		} else {
			return nil, &WebOptionsError{
				Message: "A force field file must be provided if using a user created force field.",
				BadKey:  "USERFFFILE",
			}
		}
		if name := formString(form["NAMESFILE"]); name != "" {
			w.usernamesFilename = sanitizeFileName(name)
		} else {
			return nil, &WebOptionsError{
				Message: "A names file must be provided if using a user created force field.",
				BadKey:  "NAMESFILE",
			}
		}
	}

	if ffout := formString(form["FFOUT"]); ffout != "" && ffout != "internal" {
		w.ffout = ffout
	}

	_, w.chain = form["CHAIN"]
	_, w.typemap = form["TYPEMAP"]
	_, w.neutraln = form["NEUTRALN"]
	_, w.neutralc = form["NEUTRALC"]
	_, w.dropWater = form["DROPWATER"]

	if (w.neutraln || w.neutralc) && w.ff != "parse" {
		return nil, &WebOptionsError{
			Message: "Neutral N-terminus and C-terminus require the PARSE forcefield.",
		}
	}

	if name := formString(form["LIGANDFILE"]); name != "" {
		w.ligandFilename = sanitizeFileName(name)
	}

	if strings.HasSuffix(w.pdbFilename, ".pdb") {
		w.pqrFilename = strings.TrimSuffix(w.pdbFilename, ".pdb") + ".pqr"
	} else {
		w.pqrFilename = w.pdbFilename + ".pqr"
	}

	return w, nil
}

func parsePH(v interface{}) (float64, error) {
	switch value := v.(type) {
	case float64:
		return value, nil
	case string:
		return strconv.ParseFloat(strings.TrimSpace(value), 64)
	default:
		return 0, fmt.Errorf("pH value %v is not a number", v)
	}
}

// CommandLine renders the arguments in their historical order, verbose and
// summary always included. Callers strip "--summary" before execution.
func (w *WebOptions) CommandLine() string {
	var args []string

	if !w.debump {
		args = append(args, "--nodebump")
	}
	if !w.opt {
		args = append(args, "--noopt")
	}
	if w.hasPH {
		args = append(args, "--with-ph="+formatFloat(w.ph))
	}
	if w.phCalcMethod != "" {
		args = append(args, "--ph-calc-method="+w.phCalcMethod)
	}
	if w.dropWater {
		args = append(args, "--drop-water")
	}
	if w.apbs {
		args = append(args, "--apbs-input")
	}
	if w.whitespace {
		args = append(args, "--whitespace")
	}
	if w.ff == "user" && w.userffFilename != "" {
		args = append(args, "--userff="+w.userffFilename)
		args = append(args, "--usernames="+w.usernamesFilename)
	} else {
		args = append(args, "--ff="+w.ff)
	}
	if w.ffout != "" {
		args = append(args, "--ffout="+w.ffout)
	}
	if w.chain {
		args = append(args, "--chain")
	}
	if w.typemap {
		args = append(args, "--typemap")
	}
	if w.neutraln {
		args = append(args, "--neutraln")
	}
	if w.neutralc {
		args = append(args, "--neutralc")
	}
	args = append(args, "--verbose")
	if w.ligandFilename != "" {
		args = append(args, "--ligand="+w.ligandFilename)
	}
	args = append(args, "--summary")
	args = append(args, w.pdbFilename)
	args = append(args, w.pqrFilename)

	return strings.Join(args, " ")
}
