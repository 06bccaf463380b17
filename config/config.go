// Package config loads speech2speech.yaml, applies environment overrides and
// maps the result onto the component configurations.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/RaghavMittal2005/speech2speech/graph"
	"github.com/RaghavMittal2005/speech2speech/llm"
	"github.com/RaghavMittal2005/speech2speech/sandbox"
)

// DefaultPath is the configuration file looked up when none is given.
const DefaultPath = "speech2speech.yaml"

// Config is the root configuration.
type Config struct {
	LLM        LLMConfig        `yaml:"llm"`
	Sandbox    SandboxConfig    `yaml:"sandbox"`
	Graph      GraphConfig      `yaml:"graph"`
	Checkpoint CheckpointConfig `yaml:"checkpoint"`
	Guard      GuardConfig      `yaml:"guard"`
	Logging    LoggingConfig    `yaml:"logging"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// LLMConfig configures the model service.
type LLMConfig struct {
	Provider    string   `yaml:"provider"`
	Model       string   `yaml:"model"`
	APIKey      string   `yaml:"api_key,omitempty"`
	Temperature *float64 `yaml:"temperature,omitempty"`
	MaxTokens   int      `yaml:"max_tokens,omitempty"`
	MaxRetries  int      `yaml:"max_retries"`
	RetryDelay  Duration `yaml:"retry_delay"`
	MaxDelay    Duration `yaml:"max_retry_delay"`
}

// SandboxConfig configures the tool layer.
type SandboxConfig struct {
	Root            string   `yaml:"root"`
	AllowedPrefixes []string `yaml:"allowed_prefixes"`
	WorkDir         string   `yaml:"work_dir"`
	CommandTimeout  Duration `yaml:"command_timeout"`
	MaxOutputChars  int      `yaml:"max_output_chars"`
}

// GraphConfig configures the executor.
type GraphConfig struct {
	MaxSteps         int      `yaml:"max_steps"`
	ModelTimeout     Duration `yaml:"model_timeout"`
	Planner          bool     `yaml:"planner"`
	ParallelTools    bool     `yaml:"parallel_tools"`
	MaxParallelTools int      `yaml:"max_parallel_tools"`
	LoopDetection    int      `yaml:"loop_detection_window"` // 0 disables
	Platform         string   `yaml:"platform,omitempty"`    // overrides runtime.GOOS in prompts
}

// CheckpointConfig configures conversation persistence.
type CheckpointConfig struct {
	Driver       string   `yaml:"driver"` // sqlite, memory
	Path         string   `yaml:"path"`
	StepWise     bool     `yaml:"step_wise"`
	MaxTries     uint     `yaml:"max_tries"`
	RetryInitial Duration `yaml:"retry_initial"`
}

// GuardConfig configures the input guard. An empty config disables it.
type GuardConfig struct {
	MaxChars      int      `yaml:"max_chars,omitempty"`
	BlockPatterns []string `yaml:"block_patterns,omitempty"`
}

// LoggingConfig configures zap.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, console
	File   string `yaml:"file,omitempty"`

	MaxSizeMB  int `yaml:"max_size_mb,omitempty"`
	MaxBackups int `yaml:"max_backups,omitempty"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Addr string `yaml:"addr,omitempty"` // empty disables serving
}

// ValidProviders lists the providers the gollm adapter is wired for.
var ValidProviders = []string{"openai", "anthropic", "groq", "ollama"}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	box := sandbox.DefaultConfig()
	policy := llm.DefaultRetryPolicy()
	return &Config{
		LLM: LLMConfig{
			Provider:   "openai",
			Model:      llm.DefaultModel,
			MaxRetries: policy.MaxRetries,
			RetryDelay: Duration(policy.BaseDelay),
			MaxDelay:   Duration(policy.MaxDelay),
		},
		Sandbox: SandboxConfig{
			Root:            box.Root,
			AllowedPrefixes: box.AllowedPrefixes,
			WorkDir:         ".",
			CommandTimeout:  Duration(box.CommandTimeout),
			MaxOutputChars:  box.MaxOutputChars,
		},
		Graph: GraphConfig{
			MaxSteps:      25,
			ModelTimeout:  Duration(2 * time.Minute),
			LoopDetection: 10,
		},
		Checkpoint: CheckpointConfig{
			Driver:       "sqlite",
			Path:         "data/threads.db",
			MaxTries:     3,
			RetryInitial: Duration(50 * time.Millisecond),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load reads path on top of the defaults and applies environment overrides.
// A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	// Left empty so the environment can tell an unset provider from one the
	// file chose.
	cfg.LLM.Provider, cfg.LLM.Model = "", ""

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save writes the configuration as YAML, creating the directory.
func (c *Config) Save(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// providerKeyEnv names the variable holding each provider's API key.
var providerKeyEnv = map[string]string{
	"openai":    "OPENAI_API_KEY",
	"anthropic": "ANTHROPIC_API_KEY",
	"groq":      "GROQ_API_KEY",
}

// applyEnvOverrides applies environment variable overrides. S2S_* variables
// win over the file. Provider keys only fill what the file left empty: a key
// picks the provider when none is configured and supplies the API key of the
// configured provider.
func (c *Config) applyEnvOverrides() {
	if p := os.Getenv("S2S_PROVIDER"); p != "" {
		c.LLM.Provider = p
	}
	if c.LLM.Provider == "" {
		switch {
		case os.Getenv("OPENAI_API_KEY") != "":
			c.LLM.Provider = "openai"
		case os.Getenv("ANTHROPIC_API_KEY") != "":
			c.LLM.Provider = "anthropic"
		default:
			c.LLM.Provider = "openai"
		}
	}
	if c.LLM.APIKey == "" {
		if name, ok := providerKeyEnv[c.LLM.Provider]; ok {
			c.LLM.APIKey = os.Getenv(name)
		}
	}

	if m := os.Getenv("S2S_MODEL"); m != "" {
		c.LLM.Model = m
	}
	if c.LLM.Model == "" {
		c.LLM.Model = llm.DefaultModelFor(c.LLM.Provider)
	}
	if c.LLM.Model == "" {
		c.LLM.Model = llm.DefaultModel
	}
	if root := os.Getenv("S2S_SANDBOX_ROOT"); root != "" {
		c.Sandbox.Root = root
	}

	// A model from another provider's catalog falls back to the provider's
	// default.
	if info := llm.GetModelInfo(c.LLM.Model); info != nil && info.Provider != c.LLM.Provider {
		if def := llm.DefaultModelFor(c.LLM.Provider); def != "" {
			c.LLM.Model = def
		}
	}
}

// Validate checks the checkpoint section alone. Commands that only read
// stored threads need nothing else.
func (c CheckpointConfig) Validate() error {
	switch c.Driver {
	case "memory":
	case "sqlite":
		if c.Path == "" {
			return errors.New("checkpoint.path is required for the sqlite driver")
		}
	default:
		return fmt.Errorf("invalid checkpoint driver: %q (valid: sqlite, memory)", c.Driver)
	}
	return nil
}

// Validate checks the configuration for values the components reject.
func (c *Config) Validate() error {
	var errs []error

	if !slices.Contains(ValidProviders, c.LLM.Provider) {
		errs = append(errs, fmt.Errorf("invalid LLM provider: %q (valid: %v)", c.LLM.Provider, ValidProviders))
	}
	if c.LLM.APIKey == "" && c.LLM.Provider != "ollama" {
		errs = append(errs, errors.New("LLM API key not configured (set OPENAI_API_KEY or ANTHROPIC_API_KEY)"))
	}
	if strings.TrimSpace(c.LLM.Model) == "" {
		errs = append(errs, errors.New("llm.model is required"))
	}
	if c.LLM.MaxRetries < 0 {
		errs = append(errs, errors.New("llm.max_retries must not be negative"))
	}

	if strings.TrimSpace(c.Sandbox.Root) == "" {
		errs = append(errs, errors.New("sandbox.root is required"))
	}
	if len(c.Sandbox.AllowedPrefixes) == 0 {
		errs = append(errs, errors.New("sandbox.allowed_prefixes must not be empty"))
	}
	for i, p := range c.Sandbox.AllowedPrefixes {
		if strings.TrimSpace(p) == "" {
			errs = append(errs, fmt.Errorf("sandbox.allowed_prefixes[%d] is blank", i))
		}
	}
	if c.Sandbox.CommandTimeout <= 0 {
		errs = append(errs, errors.New("sandbox.command_timeout must be positive"))
	}

	if c.Graph.MaxSteps <= 0 {
		errs = append(errs, errors.New("graph.max_steps must be positive"))
	}
	if c.Graph.ModelTimeout < 0 {
		errs = append(errs, errors.New("graph.model_timeout must not be negative"))
	}

	if err := c.Checkpoint.Validate(); err != nil {
		errs = append(errs, err)
	}

	if _, err := c.Guard.Build(); err != nil {
		errs = append(errs, err)
	}
	if _, err := parseLevel(c.Logging.Level); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// SandboxToolbox maps the sandbox section onto sandbox.Config.
func (c *Config) SandboxToolbox() sandbox.Config {
	return sandbox.Config{
		Root:            c.Sandbox.Root,
		AllowedPrefixes: append([]string(nil), c.Sandbox.AllowedPrefixes...),
		WorkDir:         c.Sandbox.WorkDir,
		CommandTimeout:  c.Sandbox.CommandTimeout.Std(),
		MaxOutputChars:  c.Sandbox.MaxOutputChars,
	}
}

// Executor maps the graph and checkpoint sections onto graph.Config.
func (c *Config) Executor() graph.Config {
	g := graph.DefaultConfig()
	g.Model = c.LLM.Model
	g.Provider = c.LLM.Provider
	g.Planner = c.Graph.Planner
	g.MaxSteps = c.Graph.MaxSteps
	g.ModelTimeout = c.Graph.ModelTimeout.Std()
	g.ParallelTools = c.Graph.ParallelTools
	g.MaxParallelTools = c.Graph.MaxParallelTools
	g.LoopDetection = c.Graph.LoopDetection
	g.StepWiseCheckpoint = c.Checkpoint.StepWise
	g.Prompt.Root = c.Sandbox.Root
	g.Prompt.AllowedPrefixes = append([]string(nil), c.Sandbox.AllowedPrefixes...)
	g.Prompt.WorkDir = c.Sandbox.WorkDir
	g.Prompt.Model = c.LLM.Model
	if c.Graph.Platform != "" {
		g.Prompt.Platform = c.Graph.Platform
	}
	return g
}

// RetryPolicy maps the llm retry settings onto llm.RetryPolicy.
func (c *Config) RetryPolicy() llm.RetryPolicy {
	p := llm.DefaultRetryPolicy()
	p.MaxRetries = c.LLM.MaxRetries
	if c.LLM.RetryDelay > 0 {
		p.BaseDelay = c.LLM.RetryDelay.Std()
	}
	if c.LLM.MaxDelay > 0 {
		p.MaxDelay = c.LLM.MaxDelay.Std()
	}
	return p
}

// Build returns the configured input guard, or nil when the section is
// empty.
func (g GuardConfig) Build() (graph.InputGuard, error) {
	if g.MaxChars <= 0 && len(g.BlockPatterns) == 0 {
		return nil, nil
	}
	guard, err := graph.NewPatternGuard(g.MaxChars, g.BlockPatterns...)
	if err != nil {
		return nil, err
	}
	return guard, nil
}
