package debug

import (
	"bytes"
	"os"
	"testing"
)

func TestEnabled(t *testing.T) {
	tests := []struct {
		name    string
		env     bool
		verbose bool
		want    bool
	}{
		{"env set", true, false, true},
		{"verbose flag", false, true, true},
		{"both off", false, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			oldEnabled, oldVerbose := enabled, verboseMode
			defer func() { enabled, verboseMode = oldEnabled, oldVerbose }()

			enabled = tt.env
			SetVerbose(tt.verbose)
			if got := Enabled(); got != tt.want {
				t.Errorf("Enabled() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLogf(t *testing.T) {
	var out, errOut bytes.Buffer
	SetOutput(&out, &errOut)
	defer SetOutput(os.Stdout, os.Stderr)

	oldEnabled, oldVerbose := enabled, verboseMode
	defer func() { enabled, verboseMode = oldEnabled, oldVerbose }()

	enabled, verboseMode = false, false
	Logf("hidden %d\n", 1)
	if errOut.Len() != 0 {
		t.Errorf("Logf wrote %q while disabled", errOut.String())
	}

	SetVerbose(true)
	Logf("shown %d\n", 2)
	if errOut.String() != "shown 2\n" {
		t.Errorf("Logf wrote %q, want %q", errOut.String(), "shown 2\n")
	}
}

func TestPrintNormalRespectsQuiet(t *testing.T) {
	var out, errOut bytes.Buffer
	SetOutput(&out, &errOut)
	defer SetOutput(os.Stdout, os.Stderr)
	defer SetQuiet(false)

	SetQuiet(true)
	PrintNormal("quiet %s\n", "x")
	PrintlnNormal("quiet")
	if out.Len() != 0 {
		t.Errorf("quiet mode printed %q", out.String())
	}
	if !IsQuiet() {
		t.Errorf("IsQuiet() = false")
	}

	SetQuiet(false)
	PrintNormal("loud %s\n", "x")
	PrintlnNormal("again")
	if out.String() != "loud x\nagain\n" {
		t.Errorf("output = %q", out.String())
	}
}
