package launcher

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ternarybob/arbor"
)

// apbsWriteKinds fixes the order write statements appear in a generated
// input file.
var apbsWriteKinds = []string{
	"charge", "pot", "smol", "sspl", "vdw", "ivdw", "lap",
	"edens", "ndens", "qdens", "dielx", "diely", "dielz", "kappa",
}

// IonSlot is one mobile ion species. A slot renders only when all three
// fields were present in the form.
type IonSlot struct {
	Charge    int
	Conc      float64
	Radius    float64
	HasCharge bool
	HasConc   bool
	HasRadius bool
}

func (s IonSlot) complete() bool {
	return s.HasCharge && s.HasConc && s.HasRadius
}

// ApbsOptions is the typed form of the web-facing APBS option names. Field
// names mirror the generated input file directives rather than the form
// keys, which are terser.
type ApbsOptions struct {
	WriteCheck int
	Writes     map[string]bool // keyed by apbsWriteKinds entries

	AsyncFlag bool
	Async     int

	ReadType    string
	ReadFormat  string
	PqrPath     string
	PqrFileName string

	CalcType string

	Ofrac float64

	DimeNX, DimeNY, DimeNZ    int
	CglenX, CglenY, CglenZ    float64
	FglenX, FglenY, FglenZ    float64
	GlenX, GlenY, GlenZ       float64
	PdimeNX, PdimeNY, PdimeNZ float64

	CoarseGridCenterMethod     string
	CoarseGridCenterMoleculeID int
	CgxCent, CgyCent, CgzCent  int

	FineGridCenterMethod      string
	FineGridCenterMoleculeID  int
	FgxCent, FgyCent, FgzCent int

	GridCenterMethod         string
	GridCenterMoleculeID     int
	GxCent, GyCent, GzCent   int

	Mol                             int
	SolveType                       string
	BoundaryConditions              string
	BiomolecularDielectricConstant  float64
	DielectricSolventConstant       float64
	DielectricIonAccessibilityModel string
	BiomolecularPointChargeMapMethod string
	SurfaceConstructionResolution   float64
	SolventRadius                   float64
	SurfaceDefSupportSize           float64
	Temperature                     float64

	CalcEnergy string
	CalcForce  string

	Ions [3]IonSlot

	WriteFormat string
	WriteStem   string
	TempFile    string
}

// normalizeApbsForm flattens descriptor values to strings and unravels the
// output_scalar list, where each listed option becomes its own key with the
// option name as its value.
func normalizeApbsForm(raw map[string]interface{}) map[string]string {
	form := make(map[string]string, len(raw))
	for key, value := range raw {
		if key == "output_scalar" {
			if options, ok := value.([]interface{}); ok {
				for _, option := range options {
					name := formString(option)
					form[name] = name
				}
				continue
			}
		}
		form[key] = formString(value)
	}
	return form
}

func formString(v interface{}) string {
	switch value := v.(type) {
	case string:
		return value
	case float64:
		return formatFloat(value)
	case bool:
		return strconv.FormatBool(value)
	case nil:
		return ""
	default:
		return fmt.Sprint(value)
	}
}

// parseApbsOptions converts a normalized form into typed options. Numeric
// fields that are absent or empty default to zero; present but unparseable
// values are an error.
func parseApbsOptions(form map[string]string, logger arbor.ILogger) (*ApbsOptions, error) {
	opts := &ApbsOptions{
		Writes:     make(map[string]bool, len(apbsWriteKinds)),
		ReadType:   "mol",
		ReadFormat: "pqr",
		PqrPath:    "",
	}

	// writecharge and writepot historically trigger on any non-empty value;
	// every other write flag requires the literal "on".
	for _, kind := range apbsWriteKinds {
		formKey := "write" + kind
		value, present := form[formKey]
		enabled := false
		switch kind {
		case "charge", "pot":
			enabled = present && value != ""
		default:
			enabled = present && value == "on"
		}
		if enabled {
			opts.WriteCheck++
			opts.Writes[kind] = true
		}
	}
	// More than four write statements has always been tolerated; the legacy
	// form printed a warning and carried on.
	if opts.WriteCheck > 4 {
		logger.Warn().Int("write_statements", opts.WriteCheck).
			Msg("Please select a maximum of four write statements")
	}

	var err error
	atoi := func(key string) int {
		if err != nil {
			return 0
		}
		value := strings.TrimSpace(form[key])
		if value == "" {
			return 0
		}
		n, convErr := strconv.Atoi(value)
		if convErr != nil {
			err = fmt.Errorf("field %q: %w", key, convErr)
		}
		return n
	}
	atof := func(key string) float64 {
		if err != nil {
			return 0
		}
		value := strings.TrimSpace(form[key])
		if value == "" {
			return 0
		}
		f, convErr := strconv.ParseFloat(value, 64)
		if convErr != nil {
			err = fmt.Errorf("field %q: %w", key, convErr)
		}
		return f
	}

	if form["asyncflag"] == "on" {
		opts.AsyncFlag = true
		opts.Async = atoi("async")
	}

	opts.CalcType = form["type"]

	opts.Ofrac = atof("ofrac")

	opts.DimeNX = atoi("dimenx")
	opts.DimeNY = atoi("dimeny")
	opts.DimeNZ = atoi("dimenz")

	opts.CglenX = atof("cglenx")
	opts.CglenY = atof("cgleny")
	opts.CglenZ = atof("cglenz")

	opts.FglenX = atof("fglenx")
	opts.FglenY = atof("fgleny")
	opts.FglenZ = atof("fglenz")

	opts.GlenX = atof("glenx")
	opts.GlenY = atof("gleny")
	opts.GlenZ = atof("glenz")

	opts.PdimeNX = atof("pdimex")
	opts.PdimeNY = atof("pdimey")
	opts.PdimeNZ = atof("pdimez")

	switch form["cgcent"] {
	case "mol":
		opts.CoarseGridCenterMethod = "molecule"
		opts.CoarseGridCenterMoleculeID = atoi("cgcentid")
	case "coord":
		opts.CoarseGridCenterMethod = "coordinate"
		opts.CgxCent = atoi("cgxcent")
		opts.CgyCent = atoi("cgycent")
		opts.CgzCent = atoi("cgzcent")
	}

	switch form["fgcent"] {
	case "mol":
		opts.FineGridCenterMethod = "molecule"
		opts.FineGridCenterMoleculeID = atoi("fgcentid")
	case "coord":
		opts.FineGridCenterMethod = "coordinate"
		opts.FgxCent = atoi("fgxcent")
		opts.FgyCent = atoi("fgycent")
		opts.FgzCent = atoi("fgzcent")
	}

	// gcent only applies to grid-manual methods; other calculation types
	// may omit it entirely.
	if opts.CalcType == "mg-manual" || opts.CalcType == "mg-dummy" {
		switch form["gcent"] {
		case "mol":
			opts.GridCenterMethod = "molecule"
			opts.GridCenterMoleculeID = atoi("gcentid")
		case "coord":
			opts.GridCenterMethod = "coordinate"
			opts.GxCent = atoi("gxcent")
			opts.GyCent = atoi("gycent")
			opts.GzCent = atoi("gzcent")
		}
	}

	opts.Mol = atoi("mol")
	opts.SolveType = form["solvetype"]
	opts.BoundaryConditions = form["bcfl"]
	opts.BiomolecularDielectricConstant = atof("pdie")
	opts.DielectricSolventConstant = atof("sdie")
	opts.DielectricIonAccessibilityModel = form["srfm"]
	opts.BiomolecularPointChargeMapMethod = form["chgm"]
	opts.SurfaceConstructionResolution = atof("sdens")
	opts.SolventRadius = atof("srad")
	opts.SurfaceDefSupportSize = atof("swin")
	opts.Temperature = atof("temp")
	opts.CalcEnergy = form["calcenergy"]
	opts.CalcForce = form["calcforce"]

	for idx := 0; idx < 3; idx++ {
		if value := form[fmt.Sprintf("charge%d", idx)]; value != "" {
			opts.Ions[idx].Charge = atoi(fmt.Sprintf("charge%d", idx))
			opts.Ions[idx].HasCharge = true
		}
		if value := form[fmt.Sprintf("conc%d", idx)]; value != "" {
			opts.Ions[idx].Conc = atof(fmt.Sprintf("conc%d", idx))
			opts.Ions[idx].HasConc = true
		}
		if value := form[fmt.Sprintf("radius%d", idx)]; value != "" {
			opts.Ions[idx].Radius = atof(fmt.Sprintf("radius%d", idx))
			opts.Ions[idx].HasRadius = true
		}
	}

	opts.WriteFormat = form["writeformat"]
	opts.WriteStem = form["pdb2pqrid"]

	if err != nil {
		return nil, err
	}
	return opts, nil
}
