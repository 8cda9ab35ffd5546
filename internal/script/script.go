// Package script runs event-attached scripts. An event folder may carry a
// scripts/ directory; the action names one file in it, and the registry
// decides how that file is executed.
//
// Resolution order is fixed: an exact match on the script's base name wins,
// then a match on its extension, then the default runner. The default runs
// the file as an external process, so a deployment works out of the box
// while still letting callers pin specific scripts or whole languages to
// in-process Go runners.
package script

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Runner executes a single script file. Params are the event's resolved
// action parameters; the returned map is the script's result.
type Runner interface {
	Invoke(ctx context.Context, path string, params map[string]any) (map[string]any, error)
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context, path string, params map[string]any) (map[string]any, error)

func (f RunnerFunc) Invoke(ctx context.Context, path string, params map[string]any) (map[string]any, error) {
	return f(ctx, path, params)
}

// Registry resolves script files to runners.
type Registry struct {
	mu     sync.RWMutex
	byName map[string]Runner
	byExt  map[string]Runner
	def    Runner
}

// NewRegistry returns a registry whose default runner executes scripts as
// external processes.
func NewRegistry() *Registry {
	return &Registry{
		byName: make(map[string]Runner),
		byExt:  make(map[string]Runner),
		def:    &ExecRunner{},
	}
}

// RegisterName pins an exact script base name ("cleanup.sh") to a runner.
func (r *Registry) RegisterName(name string, rn Runner) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byName[name] = rn
}

// RegisterExt pins an extension (".py") to a runner. The leading dot is
// required.
func (r *Registry) RegisterExt(ext string, rn Runner) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byExt[strings.ToLower(ext)] = rn
}

// SetDefault replaces the fallback runner. A nil runner disables the
// fallback, making unmatched scripts an error.
func (r *Registry) SetDefault(rn Runner) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.def = rn
}

// Resolve picks the runner for path.
func (r *Registry) Resolve(path string) (Runner, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if rn, ok := r.byName[filepath.Base(path)]; ok {
		return rn, nil
	}
	if rn, ok := r.byExt[strings.ToLower(filepath.Ext(path))]; ok {
		return rn, nil
	}
	if r.def != nil {
		return r.def, nil
	}
	return nil, &NoRunnerError{Path: path}
}

// Run resolves and invokes in one step.
func (r *Registry) Run(ctx context.Context, path string, params map[string]any) (map[string]any, error) {
	rn, err := r.Resolve(path)
	if err != nil {
		return nil, err
	}
	return rn.Invoke(ctx, path, params)
}

// NoRunnerError is returned when no runner matches and the fallback is
// disabled.
type NoRunnerError struct {
	Path string
}

func (e *NoRunnerError) Error() string {
	return fmt.Sprintf("no runner for script %q", e.Path)
}

// ExecRunner executes the script as an external process. Params are
// written to stdin as a JSON object. If stdout parses as a JSON object it
// becomes the result; otherwise the trimmed output is returned under
// "output".
type ExecRunner struct {
	// Interpreter, when set, is prepended to the command line
	// ("/usr/bin/python3" for a .py runner). Empty means the file is
	// executed directly and must be executable.
	Interpreter []string
	// Timeout bounds a single run. Zero means no bound beyond ctx.
	Timeout time.Duration
}

func (r *ExecRunner) Invoke(ctx context.Context, path string, params map[string]any) (map[string]any, error) {
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	stdin, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("encode params: %w", err)
	}

	var cmd *exec.Cmd
	if len(r.Interpreter) > 0 {
		args := append(append([]string{}, r.Interpreter[1:]...), path)
		cmd = exec.CommandContext(ctx, r.Interpreter[0], args...)
	} else {
		cmd = exec.CommandContext(ctx, path)
	}
	cmd.Dir = filepath.Dir(path)
	cmd.Stdin = bytes.NewReader(stdin)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail != "" {
			return nil, fmt.Errorf("script %s: %w: %s", filepath.Base(path), err, detail)
		}
		return nil, fmt.Errorf("script %s: %w", filepath.Base(path), err)
	}

	out := strings.TrimSpace(stdout.String())
	if strings.HasPrefix(out, "{") {
		var result map[string]any
		if err := json.Unmarshal([]byte(out), &result); err == nil {
			return result, nil
		}
	}
	res := map[string]any{"status": "ok"}
	if out != "" {
		res["output"] = out
	}
	return res, nil
}
