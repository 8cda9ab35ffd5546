package script

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

func TestResolveOrder(t *testing.T) {
	t.Parallel()
	reg := NewRegistry()
	named := RunnerFunc(func(ctx context.Context, path string, params map[string]any) (map[string]any, error) {
		return map[string]any{"via": "name"}, nil
	})
	byExt := RunnerFunc(func(ctx context.Context, path string, params map[string]any) (map[string]any, error) {
		return map[string]any{"via": "ext"}, nil
	})
	reg.RegisterName("special.py", named)
	reg.RegisterExt(".py", byExt)

	res, err := reg.Run(context.Background(), "/events/x/scripts/special.py", nil)
	if err != nil || res["via"] != "name" {
		t.Fatalf("exact name: res=%v err=%v", res, err)
	}
	res, err = reg.Run(context.Background(), "/events/x/scripts/other.py", nil)
	if err != nil || res["via"] != "ext" {
		t.Fatalf("extension: res=%v err=%v", res, err)
	}

	// Unmatched falls through to the default exec runner.
	rn, err := reg.Resolve("/events/x/scripts/run.sh")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if _, ok := rn.(*ExecRunner); !ok {
		t.Fatalf("default runner = %T", rn)
	}
}

func TestNoRunner(t *testing.T) {
	t.Parallel()
	reg := NewRegistry()
	reg.SetDefault(nil)
	_, err := reg.Run(context.Background(), "run.sh", nil)
	var nr *NoRunnerError
	if !errors.As(err, &nr) {
		t.Fatalf("error %T, want *NoRunnerError", err)
	}
}

func TestExecRunnerJSONResult(t *testing.T) {
	t.Parallel()
	if runtime.GOOS == "windows" {
		t.Skip("shell script test")
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "emit.sh")
	// Echoes stdin back inside a JSON envelope.
	body := "#!/bin/sh\nin=$(cat)\nprintf '{\"status\":\"done\",\"got\":%s}' \"$in\"\n"
	if err := os.WriteFile(path, []byte(body), 0o755); err != nil {
		t.Fatal(err)
	}

	res, err := (&ExecRunner{}).Invoke(context.Background(), path, map[string]any{"n": 1})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if res["status"] != "done" {
		t.Fatalf("result = %v", res)
	}
	got, ok := res["got"].(map[string]any)
	if !ok || got["n"] != float64(1) {
		t.Fatalf("echoed params = %v", res["got"])
	}
}

func TestExecRunnerPlainOutput(t *testing.T) {
	t.Parallel()
	if runtime.GOOS == "windows" {
		t.Skip("shell script test")
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "plain.sh")
	if err := os.WriteFile(path, []byte("#!/bin/sh\necho hello\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	res, err := (&ExecRunner{}).Invoke(context.Background(), path, nil)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if res["status"] != "ok" || res["output"] != "hello" {
		t.Fatalf("result = %v", res)
	}
}

func TestExecRunnerFailureIncludesStderr(t *testing.T) {
	t.Parallel()
	if runtime.GOOS == "windows" {
		t.Skip("shell script test")
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "fail.sh")
	if err := os.WriteFile(path, []byte("#!/bin/sh\necho broken >&2\nexit 3\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	_, err := (&ExecRunner{}).Invoke(context.Background(), path, nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if msg := err.Error(); !strings.Contains(msg, "broken") || !strings.Contains(msg, "fail.sh") {
		t.Fatalf("err = %v", err)
	}
}

func TestExecRunnerInterpreter(t *testing.T) {
	t.Parallel()
	if runtime.GOOS == "windows" {
		t.Skip("shell script test")
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "viash.txt")
	if err := os.WriteFile(path, []byte("echo via-interpreter\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	res, err := (&ExecRunner{Interpreter: []string{"/bin/sh"}}).Invoke(context.Background(), path, nil)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if res["output"] != "via-interpreter" {
		t.Fatalf("result = %v", res)
	}
}
