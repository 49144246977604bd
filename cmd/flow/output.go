package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/untoldecay/flowctl/internal/rpc"
	"github.com/untoldecay/flowctl/internal/storage"
	"github.com/untoldecay/flowctl/internal/ui"
)

// outputJSON outputs data as pretty-printed JSON
func outputJSON(v interface{}) {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(v); err != nil {
		FatalError("encoding JSON: %v", err)
	}
}

// outputYAML writes v as YAML using its JSON field names.
func outputYAML(v interface{}) {
	data, err := toYAML(v)
	if err != nil {
		FatalError("encoding YAML: %v", err)
	}
	_, _ = os.Stdout.Write(data)
}

func toYAML(v interface{}) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var generic interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}
	return yaml.Marshal(generic)
}

// emit prints v in the requested machine format, or calls human.
func emit(v interface{}, human func()) {
	switch {
	case jsonOutput:
		outputJSON(v)
	case yamlOutput:
		outputYAML(v)
	default:
		human()
	}
}

// FatalError writes an error message to stderr and exits with code 1.
func FatalError(format string, args ...interface{}) {
	closeBackend()
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}

// WarnError writes a warning message to stderr and returns.
func WarnError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Warning: "+format+"\n", args...)
}

// fatal reports err in the selected output format and exits with code 1.
func fatal(err error) {
	closeBackend()
	reportError(err)
	os.Exit(1)
}

func reportError(err error) {
	if jsonOutput {
		errObj := map[string]string{"error": err.Error()}
		if code := errorCode(err); code != "" {
			errObj["code"] = code
		}
		var rule *storage.RuleError
		if errors.As(err, &rule) {
			errObj["rule"] = rule.Rule
		}
		var coll *storage.CollisionError
		if errors.As(err, &coll) && coll.Holder != "" {
			errObj["holder"] = coll.Holder
		}
		encoder := json.NewEncoder(os.Stderr)
		encoder.SetIndent("", "  ")
		_ = encoder.Encode(errObj)
		return
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
}

// errorCode classifies err with the same codes the daemon puts on the wire.
func errorCode(err error) string {
	switch {
	case storage.IsNotFound(err):
		return rpc.CodeNotFound
	case storage.IsInvariant(err):
		return rpc.CodeInvariant
	case storage.IsCollision(err):
		return rpc.CodeCollision
	case errors.Is(err, rpc.ErrInvalidArgs):
		return rpc.CodeInvalidArgs
	case errors.Is(err, rpc.ErrVersionMismatch):
		return rpc.CodeVersionMismatch
	}
	return ""
}

func parseRowID(s string) int64 {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		FatalError("invalid id %q: expected a positive number", s)
	}
	return id
}

func printDone(format string, args ...interface{}) {
	if quietFlag {
		return
	}
	fmt.Printf("%s %s\n", ui.RenderPass(ui.IconPass), fmt.Sprintf(format, args...))
}
