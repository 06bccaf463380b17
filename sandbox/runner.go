package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"time"
)

// ExecResult holds the result of a command execution.
type ExecResult struct {
	Stdout     string `json:"stdout"`
	Stderr     string `json:"stderr"`
	ExitCode   int    `json:"exit_code"`
	TimedOut   bool   `json:"-"`
	DurationMs int64  `json:"duration_ms"`
}

// CommandRunner spawns host processes. Policy checks happen before a runner
// is ever reached.
type CommandRunner interface {
	Run(ctx context.Context, command string, dir string, timeout time.Duration) (*ExecResult, error)
}

// sensitiveEnvPatterns are case-insensitive suffixes of variables withheld
// from child processes.
var sensitiveEnvPatterns = []string{
	"_API_KEY",
	"_SECRET",
	"_TOKEN",
	"_PASSWORD",
	"_CREDENTIAL",
}

var safeEnvVars = map[string]bool{
	"PATH": true, "HOME": true, "USER": true, "SHELL": true,
	"LANG": true, "TERM": true, "TMPDIR": true,
	"SYSTEMROOT": true, "COMSPEC": true, "PATHEXT": true,
	"NVM_DIR": true, "PYENV_ROOT": true, "VIRTUAL_ENV": true,
}

func isSensitiveEnvVar(name string) bool {
	upper := strings.ToUpper(name)
	for _, pattern := range sensitiveEnvPatterns {
		if strings.HasSuffix(upper, pattern) {
			return true
		}
	}
	return false
}

func filterEnvironment(environ []string) []string {
	filtered := make([]string, 0, len(environ))
	for _, env := range environ {
		name, _, ok := strings.Cut(env, "=")
		if !ok {
			continue
		}
		if safeEnvVars[strings.ToUpper(name)] || !isSensitiveEnvVar(name) {
			filtered = append(filtered, env)
		}
	}
	return filtered
}

// ShellRunner runs commands through the host shell: /bin/sh -c on unix,
// cmd.exe /c on Windows.
type ShellRunner struct {
	Shell    string
	ShellArg string
}

// NewShellRunner returns a runner for the current platform.
func NewShellRunner() *ShellRunner {
	if runtime.GOOS == "windows" {
		return &ShellRunner{Shell: "cmd.exe", ShellArg: "/c"}
	}
	return &ShellRunner{Shell: "/bin/sh", ShellArg: "-c"}
}

// Run executes command in dir. A non-zero exit is not an error; an expired
// timeout kills the whole process group and sets TimedOut.
func (r *ShellRunner) Run(ctx context.Context, command string, dir string, timeout time.Duration) (*ExecResult, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, r.Shell, r.ShellArg, command)
	cmd.Dir = dir
	cmd.Env = filterEnvironment(os.Environ())
	setProcessGroup(cmd)
	cmd.Cancel = func() error { return killProcessGroup(cmd) }
	cmd.WaitDelay = time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	result := &ExecResult{
		Stdout:     stdout.String(),
		Stderr:     stderr.String(),
		DurationMs: time.Since(start).Milliseconds(),
	}

	if err != nil {
		var exitErr *exec.ExitError
		switch {
		case errors.Is(ctx.Err(), context.DeadlineExceeded):
			result.TimedOut = true
			result.ExitCode = -1
		case ctx.Err() != nil:
			return nil, ctx.Err()
		case errors.As(err, &exitErr):
			result.ExitCode = exitErr.ExitCode()
		default:
			return nil, fmt.Errorf("run command: %w", err)
		}
	}
	return result, nil
}
