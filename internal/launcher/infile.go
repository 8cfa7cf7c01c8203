package launcher

import (
	"bufio"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ExtractReadFiles returns the file names referenced by the READ section of
// an APBS input file. Only the first READ block is scanned; blank lines and
// comments are skipped and an inline "#" discards the rest of its line.
func ExtractReadFiles(infileText string) []string {
	files := []string{}
	readStart := false
	readEnd := false

	scanner := bufio.NewScanner(strings.NewReader(infileText))
	for scanner.Scan() {
		line := scanner.Text()
		if i := strings.Index(line, "#"); i >= 0 {
			line = line[:i]
		}
		tokens := strings.Fields(line)
		if len(tokens) == 0 {
			continue
		}
		if readStart && readEnd {
			break
		}
		keyword := strings.ToUpper(tokens[0])
		if !readStart {
			switch keyword {
			case "READ":
				readStart = true
			case "END":
				readEnd = true
			}
			continue
		}
		if keyword == "END" {
			readEnd = true
			continue
		}
		// Directive lines look like "mol pqr file [file...]"; the first two
		// tokens name the directive and format.
		if len(tokens) > 2 {
			files = append(files, tokens[2:]...)
		}
	}
	return files
}

// apbsIndent is the four-space indent the generated file has always used.
const apbsIndent = "    "

// CreateInputFile renders the options into APBS input file text. Line
// order, indentation and number formatting are fixed; downstream tooling
// compares these files byte for byte.
func CreateInputFile(opts *ApbsOptions) string {
	var b strings.Builder
	tab := apbsIndent

	b.WriteString("read\n")
	fmt.Fprintf(&b, "%s%s %s %s%s\n", tab, opts.ReadType, opts.ReadFormat, opts.PqrPath, opts.PqrFileName)
	b.WriteString("end\n")

	b.WriteString("elec\n")
	fmt.Fprintf(&b, "%s%s\n", tab, opts.CalcType)
	if opts.CalcType != "fe-manual" {
		fmt.Fprintf(&b, "%sdime %d %d %d\n", tab, opts.DimeNX, opts.DimeNY, opts.DimeNZ)
	}
	if opts.CalcType == "mg-para" {
		fmt.Fprintf(&b, "%spdime %d %d %d\n", tab,
			int(opts.PdimeNX), int(opts.PdimeNY), int(opts.PdimeNZ))
		fmt.Fprintf(&b, "%sofrac %s\n", tab, formatG(opts.Ofrac))
		if opts.AsyncFlag {
			fmt.Fprintf(&b, "%sasync %d\n", tab, opts.Async)
		}
	}

	if opts.CalcType == "mg-manual" {
		fmt.Fprintf(&b, "%sglen %s %s %s\n", tab,
			formatG(opts.GlenX), formatG(opts.GlenY), formatG(opts.GlenZ))
	}
	if opts.CalcType == "mg-auto" || opts.CalcType == "mg-para" || opts.CalcType == "mg-dummy" {
		fmt.Fprintf(&b, "%scglen %s %s %s\n", tab,
			formatG(opts.CglenX), formatG(opts.CglenY), formatG(opts.CglenZ))
	}
	if opts.CalcType == "mg-auto" || opts.CalcType == "mg-para" {
		fmt.Fprintf(&b, "%sfglen %s %s %s\n", tab,
			formatG(opts.FglenX), formatG(opts.FglenY), formatG(opts.FglenZ))

		switch opts.CoarseGridCenterMethod {
		case "molecule":
			fmt.Fprintf(&b, "%scgcent mol %d\n", tab, opts.CoarseGridCenterMoleculeID)
		case "coordinate":
			fmt.Fprintf(&b, "%scgcent %d %d %d\n", tab, opts.CgxCent, opts.CgyCent, opts.CgzCent)
		}

		switch opts.FineGridCenterMethod {
		case "molecule":
			fmt.Fprintf(&b, "%sfgcent mol %d\n", tab, opts.FineGridCenterMoleculeID)
		case "coordinate":
			fmt.Fprintf(&b, "%sfgcent %d %d %d\n", tab, opts.FgxCent, opts.FgyCent, opts.FgzCent)
		}
	}

	if opts.CalcType == "mg-manual" || opts.CalcType == "mg-dummy" {
		switch opts.GridCenterMethod {
		case "molecule":
			fmt.Fprintf(&b, "%sgcent mol %d\n", tab, opts.GridCenterMoleculeID)
		case "coordinate":
			fmt.Fprintf(&b, "%sgcent %d %d %d\n", tab, opts.GxCent, opts.GyCent, opts.GzCent)
		}
	}

	fmt.Fprintf(&b, "%smol %d\n", tab, opts.Mol)
	fmt.Fprintf(&b, "%s%s\n", tab, opts.SolveType)
	fmt.Fprintf(&b, "%sbcfl %s\n", tab, opts.BoundaryConditions)
	fmt.Fprintf(&b, "%spdie %s\n", tab, formatG(opts.BiomolecularDielectricConstant))
	fmt.Fprintf(&b, "%ssdie %s\n", tab, formatG(opts.DielectricSolventConstant))
	fmt.Fprintf(&b, "%ssrfm %s\n", tab, opts.DielectricIonAccessibilityModel)
	fmt.Fprintf(&b, "%schgm %s\n", tab, opts.BiomolecularPointChargeMapMethod)
	fmt.Fprintf(&b, "%ssdens %s\n", tab, formatG(opts.SurfaceConstructionResolution))
	fmt.Fprintf(&b, "%ssrad %s\n", tab, formatG(opts.SolventRadius))
	fmt.Fprintf(&b, "%sswin %s\n", tab, formatG(opts.SurfaceDefSupportSize))
	fmt.Fprintf(&b, "%stemp %s\n", tab, formatG(opts.Temperature))
	fmt.Fprintf(&b, "%scalcenergy %s\n", tab, opts.CalcEnergy)
	fmt.Fprintf(&b, "%scalcforce %s\n", tab, opts.CalcForce)

	for _, ion := range opts.Ions {
		if ion.complete() {
			fmt.Fprintf(&b, "%sion charge %d conc %s radius %s\n", tab,
				ion.Charge, formatG(ion.Conc), formatG(ion.Radius))
		}
	}

	for _, kind := range apbsWriteKinds {
		if opts.Writes[kind] {
			fmt.Fprintf(&b, "%swrite %s %s %s-%s\n", tab, kind, opts.WriteFormat, opts.WriteStem, kind)
		}
	}

	b.WriteString("end\n")
	b.WriteString("quit")

	return b.String()
}

// formatG renders a float the way the file generator has always done:
// printf %g with six significant digits and trailing zeros removed, so an
// integral value prints without a decimal point (2.0 -> "2").
func formatG(f float64) string {
	return strconv.FormatFloat(f, 'g', 6, 64)
}

// formatFloat renders a descriptor float the way the web forms serialize
// numbers: shortest round-trip decimal form with a ".0" suffix for integral
// values, switching to exponent notation below 1e-4 and at 1e16 and above.
func formatFloat(f float64) string {
	abs := math.Abs(f)
	if f != 0 && (abs < 1e-4 || abs >= 1e16) {
		return strconv.FormatFloat(f, 'e', -1, 64)
	}
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}
