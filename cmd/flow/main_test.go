package main

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"rsc.io/script"
	"rsc.io/script/scripttest"
)

// TestMain lets the script engine run the test binary as the flow CLI.
func TestMain(m *testing.M) {
	if os.Getenv("FLOW_TEST_MAIN") == "1" {
		main()
		return
	}
	os.Exit(m.Run())
}

func scriptEngine() *script.Engine {
	cmds := scripttest.DefaultCmds()
	cmds["flow"] = script.Program(os.Args[0], func(cmd *exec.Cmd) error {
		return cmd.Process.Signal(os.Interrupt)
	}, time.Second)
	return &script.Engine{
		Cmds:  cmds,
		Conds: scripttest.DefaultConds(),
		Quiet: !testing.Verbose(),
	}
}

func TestScripts(t *testing.T) {
	files, err := filepath.Glob(filepath.Join("testdata", "script", "*.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if len(files) == 0 {
		t.Fatal("no scripts in testdata/script")
	}

	testdata, err := filepath.Abs("testdata")
	if err != nil {
		t.Fatal(err)
	}
	engine := scriptEngine()
	for _, file := range files {
		file := file
		name := strings.TrimSuffix(filepath.Base(file), ".txt")
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			data, err := os.ReadFile(file)
			if err != nil {
				t.Fatal(err)
			}

			work := t.TempDir()
			env := []string{
				"WORK=" + work,
				"TESTDATA=" + testdata,
				"HOME=" + filepath.Join(work, "home"),
				"XDG_CONFIG_HOME=" + filepath.Join(work, "home", ".config"),
				"PATH=" + os.Getenv("PATH"),
				"FLOW_TEST_MAIN=1",
				"FLOW_ACTOR=tester",
				"NO_COLOR=1",
			}
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			defer cancel()
			state, err := script.NewState(ctx, work, env)
			if err != nil {
				t.Fatal(err)
			}
			scripttest.Run(t, engine, state, file, bytes.NewReader(data))
		})
	}
}
