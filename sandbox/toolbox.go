// Package sandbox implements the capabilities exposed to the model: running
// allow-listed shell commands and reading or writing files under a sandbox
// root. Every capability returns an Outcome; policy violations are reported
// as data and never reach the host.
package sandbox

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"path/filepath"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// Config configures a Toolbox.
type Config struct {
	Root            string
	AllowedPrefixes []string
	WorkDir         string
	CommandTimeout  time.Duration
	MaxOutputChars  int
}

// DefaultConfig returns the stock sandbox: files under chat_gpt/ and a small
// set of interpreter and directory commands.
func DefaultConfig() Config {
	return Config{
		Root:            "chat_gpt/",
		AllowedPrefixes: []string{"python", "node", "npm", "dir", "mkdir", "cd", "type"},
		CommandTimeout:  30 * time.Second,
		MaxOutputChars:  DefaultMaxOutputChars,
	}
}

// Policy returns the policy described by the config.
func (c Config) Policy() Policy {
	return Policy{Root: c.Root, AllowedPrefixes: append([]string(nil), c.AllowedPrefixes...)}
}

// Toolbox holds the three sandboxed capabilities.
type Toolbox struct {
	policy  Policy
	fs      *afero.Afero
	runner  CommandRunner
	config  Config
	logger  *zap.Logger
	metrics *Metrics
}

// NewToolbox creates a toolbox. fs must be rooted at the working directory
// (see NewOsFs); relative tool paths resolve against it.
func NewToolbox(cfg Config, fsys afero.Fs, runner CommandRunner, logger *zap.Logger, metrics *Metrics) *Toolbox {
	if logger == nil {
		logger = zap.NewNop()
	}
	if runner == nil {
		runner = NewShellRunner()
	}
	return &Toolbox{
		policy:  cfg.Policy(),
		fs:      &afero.Afero{Fs: fsys},
		runner:  runner,
		config:  cfg,
		logger:  logger.Named("sandbox"),
		metrics: metrics,
	}
}

// NewOsFs returns the host filesystem rooted at workDir.
func NewOsFs(workDir string) afero.Fs {
	if abs, err := filepath.Abs(workDir); err == nil {
		workDir = abs
	}
	return afero.NewBasePathFs(afero.NewOsFs(), workDir)
}

// Policy returns the policy in force.
func (t *Toolbox) Policy() Policy { return t.policy }

// RunCommand executes an allow-listed command in the working directory.
func (t *Toolbox) RunCommand(ctx context.Context, cmd string) Outcome {
	if d := t.policy.CheckCommand(cmd); !d.Allowed {
		t.logger.Warn("command rejected", zap.String("cmd", cmd), zap.String("reason", d.Reason))
		t.metrics.IncrementDenial(ToolRunCommand, KindCommandNotAllowed)
		return Fail(&Error{Kind: KindCommandNotAllowed, Detail: cmd})
	}

	t.logger.Debug("running command", zap.String("cmd", cmd))
	res, err := t.runner.Run(ctx, cmd, t.config.WorkDir, t.config.CommandTimeout)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return Fail(newError(KindTimeout, "%s: %v", cmd, err))
		}
		return Fail(newError(KindIOError, "%v", err))
	}
	if res.TimedOut {
		t.logger.Warn("command timed out", zap.String("cmd", cmd), zap.Duration("timeout", t.config.CommandTimeout))
		return Fail(newError(KindTimeout, "%s: exceeded %s", cmd, t.config.CommandTimeout))
	}

	res.Stdout = TruncateOutput(res.Stdout, t.config.MaxOutputChars)
	res.Stderr = TruncateOutput(res.Stderr, t.config.MaxOutputChars)
	return OK(res)
}

// WriteResult is the success value of WriteFile.
type WriteResult struct {
	Status string `json:"status"`
	Path   string `json:"path"`
}

// WriteFile writes content verbatim to path, creating parent directories.
func (t *Toolbox) WriteFile(path, content string) Outcome {
	if d := t.policy.CheckPath(path); !d.Allowed {
		t.logger.Warn("write rejected", zap.String("path", path), zap.String("reason", d.Reason))
		t.metrics.IncrementDenial(ToolWriteFile, KindAccessDenied)
		return Fail(&Error{Kind: KindAccessDenied, Detail: d.Reason})
	}

	clean := filepath.Clean(filepath.FromSlash(path))
	if err := t.fs.MkdirAll(filepath.Dir(clean), 0o755); err != nil {
		return Fail(newError(KindIOError, "create directory for %s: %v", path, err))
	}
	if err := t.fs.WriteFile(clean, []byte(content), 0o644); err != nil {
		return Fail(newError(KindIOError, "write %s: %v", path, err))
	}
	return OK(WriteResult{Status: "ok", Path: path})
}

// ReadResult is the success value of ReadFile.
type ReadResult struct {
	Content string `json:"content"`
}

// ReadFile returns the full content of path.
func (t *Toolbox) ReadFile(path string) Outcome {
	if d := t.policy.CheckPath(path); !d.Allowed {
		t.logger.Warn("read rejected", zap.String("path", path), zap.String("reason", d.Reason))
		t.metrics.IncrementDenial(ToolReadFile, KindAccessDenied)
		return Fail(&Error{Kind: KindAccessDenied, Detail: d.Reason})
	}

	data, err := t.fs.ReadFile(filepath.Clean(filepath.FromSlash(path)))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Fail(&Error{Kind: KindFileNotFound, Detail: path})
		}
		return Fail(newError(KindIOError, "read %s: %v", path, err))
	}
	return OK(ReadResult{Content: string(data)})
}

func marshalValue(v any) (json.RawMessage, error) {
	if raw, ok := v.(json.RawMessage); ok {
		return raw, nil
	}
	return json.Marshal(v)
}
