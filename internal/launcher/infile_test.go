package launcher

import (
	"reflect"
	"strings"
	"testing"

	"github.com/Electrostatics/apbs-aws/internal/common"
)

func TestExtractReadFiles(t *testing.T) {
	tests := []struct {
		name  string
		lines []string
		want  []string
	}{
		{
			name: "typical input file",
			lines: []string{
				"read",
				"	mol pqr sample.pqr",
				"end",
				"elec",
				"	mg-auto",
				"end",
				"quit",
			},
			want: []string{"sample.pqr"},
		},
		{
			name: "inline and whole-line comments",
			lines: []string{
				"read",
				"  mol pqr foo.pqr bar.pqr # inline",
				"# commented",
				"end",
			},
			want: []string{"foo.pqr", "bar.pqr"},
		},
		{
			name: "multiple directives",
			lines: []string{
				"READ",
				"  mol pqr first.pqr",
				"  diel dx x.dx y.dx z.dx",
				"END",
			},
			want: []string{"first.pqr", "x.dx", "y.dx", "z.dx"},
		},
		{
			name:  "end before read yields nothing",
			lines: []string{"end", "read", "  mol pqr late.pqr", "end"},
			want:  []string{},
		},
		{
			name:  "no read section",
			lines: []string{"elec", "  mg-auto", "end", "quit"},
			want:  []string{},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := ExtractReadFiles(strings.Join(tc.lines, "\n"))
			if !reflect.DeepEqual(got, tc.want) {
				t.Errorf("Expected %v, got %v", tc.want, got)
			}
		})
	}
}

func TestCreateInputFile(t *testing.T) {
	form := normalizeApbsForm(map[string]interface{}{
		"type":          "mg-auto",
		"dimenx":        "65",
		"dimeny":        "97",
		"dimenz":        "129",
		"cglenx":        "104.683",
		"cgleny":        "104.9",
		"cglenz":        "119.7",
		"fglenx":        "81.58",
		"fgleny":        "84.08",
		"fglenz":        "90.42",
		"cgcent":        "mol",
		"cgcentid":      "1",
		"fgcent":        "mol",
		"fgcentid":      "1",
		"mol":           "1",
		"solvetype":     "lpbe",
		"bcfl":          "sdh",
		"pdie":          "2.0",
		"sdie":          "78.54",
		"srfm":          "smol",
		"chgm":          "spl2",
		"sdens":         "10.0",
		"srad":          "1.4",
		"swin":          "0.3",
		"temp":          "298.15",
		"calcenergy":    "total",
		"calcforce":     "no",
		"writeformat":   "dx",
		"pdb2pqrid":     "sampleId",
		"output_scalar": []interface{}{"writepot"},
	})
	opts, err := parseApbsOptions(form, common.GetLogger())
	if err != nil {
		t.Fatalf("parseApbsOptions failed: %v", err)
	}
	opts.PqrFileName = "sampleId.pqr"
	opts.TempFile = "apbsinput.in"

	want := strings.Join([]string{
		"read",
		"    mol pqr sampleId.pqr",
		"end",
		"elec",
		"    mg-auto",
		"    dime 65 97 129",
		"    cglen 104.683 104.9 119.7",
		"    fglen 81.58 84.08 90.42",
		"    cgcent mol 1",
		"    fgcent mol 1",
		"    mol 1",
		"    lpbe",
		"    bcfl sdh",
		"    pdie 2",
		"    sdie 78.54",
		"    srfm smol",
		"    chgm spl2",
		"    sdens 10",
		"    srad 1.4",
		"    swin 0.3",
		"    temp 298.15",
		"    calcenergy total",
		"    calcforce no",
		"    write pot dx sampleId-pot",
		"end",
		"quit",
	}, "\n")

	got := CreateInputFile(opts)
	if got != want {
		t.Errorf("Rendered input file mismatch.\nWant:\n%s\nGot:\n%s", want, got)
	}
}

func TestCreateInputFile_MgParaAsyncAndIons(t *testing.T) {
	opts := &ApbsOptions{
		Writes:      map[string]bool{},
		ReadType:    "mol",
		ReadFormat:  "pqr",
		PqrFileName: "x.pqr",
		CalcType:    "mg-para",
		DimeNX:      33, DimeNY: 33, DimeNZ: 33,
		PdimeNX: 2, PdimeNY: 2, PdimeNZ: 1,
		Ofrac:     0.1,
		AsyncFlag: true,
		Async:     3,
		CglenX:    40, CglenY: 40, CglenZ: 40,
		FglenX: 20, FglenY: 20, FglenZ: 20,
		CoarseGridCenterMethod: "coordinate",
		CgxCent:                1, CgyCent: 2, CgzCent: 3,
		FineGridCenterMethod:     "molecule",
		FineGridCenterMoleculeID: 1,
		Mol:                      1,
		SolveType:                "npbe",
		BoundaryConditions:       "mdh",
		BiomolecularDielectricConstant:   2,
		DielectricSolventConstant:        78.54,
		DielectricIonAccessibilityModel:  "mol",
		BiomolecularPointChargeMapMethod: "spl0",
		SurfaceConstructionResolution:    10,
		SolventRadius:                    1.4,
		SurfaceDefSupportSize:            0.3,
		Temperature:                      298.15,
		CalcEnergy:                       "no",
		CalcForce:                        "no",
		Ions: [3]IonSlot{
			{Charge: 1, Conc: 0.15, Radius: 2.0, HasCharge: true, HasConc: true, HasRadius: true},
			{Charge: -1, HasCharge: true},
		},
	}

	got := CreateInputFile(opts)

	for _, line := range []string{
		"    pdime 2 2 1\n",
		"    ofrac 0.1\n",
		"    async 3\n",
		"    cgcent 1 2 3\n",
		"    fgcent mol 1\n",
		"    ion charge 1 conc 0.15 radius 2\n",
	} {
		if !strings.Contains(got, line) {
			t.Errorf("Expected rendered file to contain %q:\n%s", line, got)
		}
	}
	if strings.Contains(got, "charge -1") {
		t.Error("Incomplete ion slot should not render")
	}
	if strings.Contains(got, "    glen ") {
		t.Error("glen only renders for mg-manual")
	}
	if !strings.HasSuffix(got, "end\nquit") {
		t.Errorf("Expected file to end with quit, got tail %q", got[len(got)-10:])
	}
}

func TestFormatFloat(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{35, "35.0"},
		{7.0, "7.0"},
		{104.683, "104.683"},
		{0, "0.0"},
		{0.15, "0.15"},
		{-2, "-2.0"},
		{0.00005, "5e-05"},
		{1e16, "1e+16"},
	}
	for _, tc := range tests {
		if got := formatFloat(tc.in); got != tc.want {
			t.Errorf("formatFloat(%v) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestFormatG(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{2.0, "2"},
		{10.0, "10"},
		{78.54, "78.54"},
		{0.3, "0.3"},
		{298.15, "298.15"},
		{104.683, "104.683"},
		{0, "0"},
		{0.00005, "5e-05"},
	}
	for _, tc := range tests {
		if got := formatG(tc.in); got != tc.want {
			t.Errorf("formatG(%v) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestParseApbsOptions_MoreThanFourWrites(t *testing.T) {
	form := map[string]string{
		"writepot":   "on",
		"writesmol":  "on",
		"writevdw":   "on",
		"writelap":   "on",
		"writeedens": "on",
	}
	opts, err := parseApbsOptions(form, common.GetLogger())
	if err != nil {
		t.Fatalf("Five write statements should warn, not fail: %v", err)
	}
	if opts.WriteCheck != 5 {
		t.Errorf("Expected writeCheck 5, got %d", opts.WriteCheck)
	}
	for _, kind := range []string{"pot", "smol", "vdw", "lap", "edens"} {
		if !opts.Writes[kind] {
			t.Errorf("Expected write %s to stay enabled", kind)
		}
	}
}

func TestParseApbsOptions_WriteTriggers(t *testing.T) {
	form := map[string]string{
		"writecharge": "writecharge", // any non-empty value
		"writesmol":   "writesmol",   // requires literal "on"
		"writevdw":    "on",
	}
	opts, err := parseApbsOptions(form, common.GetLogger())
	if err != nil {
		t.Fatalf("parseApbsOptions failed: %v", err)
	}
	if !opts.Writes["charge"] {
		t.Error("writecharge should trigger on any non-empty value")
	}
	if opts.Writes["smol"] {
		t.Error("writesmol should require the literal value \"on\"")
	}
	if !opts.Writes["vdw"] {
		t.Error("writevdw=on should trigger")
	}
	if opts.WriteCheck != 2 {
		t.Errorf("Expected writeCheck 2, got %d", opts.WriteCheck)
	}
}
