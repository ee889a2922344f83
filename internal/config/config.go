package config

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ChamsBouzaiene/hearth/internal/engine"
	"github.com/ChamsBouzaiene/hearth/internal/logging"
	"github.com/ChamsBouzaiene/hearth/internal/sandbox"
)

// Providers understood by the endpoint section.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// Duration is a time.Duration that reads "1.5s" style strings or a plain
// number of seconds from JSON.
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch x := v.(type) {
	case float64:
		*d = Duration(x * float64(time.Second))
	case string:
		parsed, err := time.ParseDuration(x)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", x, err)
		}
		*d = Duration(parsed)
	default:
		return fmt.Errorf("invalid duration %s", string(b))
	}
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// EndpointConfig names the model endpoint used by `hearth run`.
type EndpointConfig struct {
	Provider string `json:"provider"`
	BaseURL  string `json:"base_url,omitempty"`
	Model    string `json:"model"`
	APIKey   string `json:"api_key,omitempty"`
}

// SandboxConfig selects where run_command processes execute.
type SandboxConfig struct {
	Mode        string   `json:"mode"`
	DockerImage string   `json:"docker_image,omitempty"`
	CPU         string   `json:"cpu"`
	Memory      string   `json:"memory"`
	CmdTimeout  Duration `json:"cmd_timeout"`
}

type ToolsConfig struct {
	MaxOutput      int      `json:"max_output"`
	Verbose        bool     `json:"verbose"`
	IgnorePatterns []string `json:"ignore_patterns,omitempty"`
	FetchTimeout   Duration `json:"fetch_timeout"`
}

type BudgetConfig struct {
	Base             int     `json:"base"`
	Scale            float64 `json:"scale"`
	Max              int     `json:"max"`
	LowUncertainty   float64 `json:"uncertainty_low"`
	HighUncertainty  float64 `json:"uncertainty_high"`
	WarningThreshold float64 `json:"warning_threshold"`
}

type RetryConfig struct {
	MaxRetries int      `json:"max_retries"`
	BaseDelay  Duration `json:"base_delay"`
	MaxDelay   Duration `json:"max_delay"`
	Jitter     bool     `json:"jitter"`
}

type ConvergenceConfig struct {
	HistorySize       int     `json:"history_size"`
	MinDataPoints     int     `json:"min_data_points"`
	Window            int     `json:"window"`
	VelocityThreshold float64 `json:"velocity_threshold"`
	StagnationLimit   int     `json:"stagnation_limit"`
	SuccessProgress   float64 `json:"success_progress"`
	SuccessValidation float64 `json:"success_validation"`
}

type RecoveryConfig struct {
	RecencyWindow          Duration `json:"recency_window"`
	MaxPatterns            int      `json:"max_patterns"`
	MaxAttemptsPerStrategy int      `json:"max_attempts_per_strategy"`
}

type JournalConfig struct {
	Path     string `json:"path,omitempty"` // Empty means <root>/.hearth/journal.db
	Disabled bool   `json:"disabled,omitempty"`
}

type LogConfig struct {
	Level string `json:"level"`
	File  string `json:"file,omitempty"`
}

// Config is the merged configuration of a hearth invocation.
type Config struct {
	Endpoint    EndpointConfig    `json:"endpoint"`
	Sandbox     SandboxConfig     `json:"sandbox"`
	Tools       ToolsConfig       `json:"tools"`
	Budget      BudgetConfig      `json:"budget"`
	Retry       RetryConfig       `json:"retry"`
	Convergence ConvergenceConfig `json:"convergence"`
	Recovery    RecoveryConfig    `json:"recovery"`
	Journal     JournalConfig     `json:"journal"`
	Log         LogConfig         `json:"log"`
}

// Default mirrors the engine and sandbox defaults.
func Default() *Config {
	eng := engine.DefaultEngineConfig()
	sb := sandbox.DefaultConfig()
	tc := engine.DefaultToolContext("")
	return &Config{
		Endpoint: EndpointConfig{Provider: ProviderOpenAI, Model: "gpt-4o-mini"},
		Sandbox: SandboxConfig{
			Mode:       string(sb.Mode),
			CPU:        sb.CPU,
			Memory:     sb.Memory,
			CmdTimeout: Duration(sb.CmdTimeout),
		},
		Tools: ToolsConfig{
			MaxOutput:    tc.MaxOutputSize,
			FetchTimeout: Duration(tc.Timeout),
		},
		Budget: BudgetConfig{
			Base:             eng.Budget.BaseBudget,
			Scale:            eng.Budget.ScaleFactor,
			Max:              eng.Budget.MaxBudget,
			LowUncertainty:   eng.Budget.LowUncertainty,
			HighUncertainty:  eng.Budget.HighUncertainty,
			WarningThreshold: eng.Budget.WarningThreshold,
		},
		Retry: RetryConfig{
			MaxRetries: eng.Retry.MaxRetries,
			BaseDelay:  Duration(eng.Retry.InitialDelay),
			MaxDelay:   Duration(eng.Retry.MaxDelay),
			Jitter:     eng.Retry.Jitter,
		},
		Convergence: ConvergenceConfig{
			HistorySize:       eng.Convergence.HistorySize,
			MinDataPoints:     eng.Convergence.MinDataPoints,
			Window:            eng.Convergence.Window,
			VelocityThreshold: eng.Convergence.VelocityThreshold,
			StagnationLimit:   eng.Convergence.StagnationLimit,
			SuccessProgress:   eng.Convergence.SuccessProgress,
			SuccessValidation: eng.Convergence.SuccessValidation,
		},
		Recovery: RecoveryConfig{
			RecencyWindow:          Duration(eng.Recovery.RecencyWindow),
			MaxPatterns:            eng.Recovery.MaxPatterns,
			MaxAttemptsPerStrategy: eng.Recovery.MaxAttemptsPerStrategy,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Engine converts the tunable sections into an engine configuration. Fields
// the file format does not expose keep their defaults.
func (c *Config) Engine() engine.EngineConfig {
	eng := engine.DefaultEngineConfig()

	eng.Budget.BaseBudget = c.Budget.Base
	eng.Budget.ScaleFactor = c.Budget.Scale
	eng.Budget.MaxBudget = c.Budget.Max
	eng.Budget.LowUncertainty = c.Budget.LowUncertainty
	eng.Budget.HighUncertainty = c.Budget.HighUncertainty
	eng.Budget.WarningThreshold = c.Budget.WarningThreshold

	eng.Retry.MaxRetries = c.Retry.MaxRetries
	eng.Retry.InitialDelay = c.Retry.BaseDelay.Std()
	eng.Retry.MaxDelay = c.Retry.MaxDelay.Std()
	eng.Retry.Jitter = c.Retry.Jitter

	eng.Convergence.HistorySize = c.Convergence.HistorySize
	eng.Convergence.MinDataPoints = c.Convergence.MinDataPoints
	eng.Convergence.Window = c.Convergence.Window
	eng.Convergence.VelocityThreshold = c.Convergence.VelocityThreshold
	eng.Convergence.StagnationLimit = c.Convergence.StagnationLimit
	eng.Convergence.SuccessProgress = c.Convergence.SuccessProgress
	eng.Convergence.SuccessValidation = c.Convergence.SuccessValidation

	eng.Recovery.RecencyWindow = c.Recovery.RecencyWindow.Std()
	eng.Recovery.MaxPatterns = c.Recovery.MaxPatterns
	eng.Recovery.MaxAttemptsPerStrategy = c.Recovery.MaxAttemptsPerStrategy
	return eng
}

// SandboxRunner converts the sandbox section. Validate has already checked the mode.
func (c *Config) SandboxRunner() sandbox.Config {
	mode, err := sandbox.ParseMode(c.Sandbox.Mode)
	if err != nil {
		mode = sandbox.ModeAuto
	}
	return sandbox.Config{
		Mode:        mode,
		DockerImage: c.Sandbox.DockerImage,
		CPU:         c.Sandbox.CPU,
		Memory:      c.Sandbox.Memory,
		CmdTimeout:  c.Sandbox.CmdTimeout.Std(),
	}
}

// ToolContext builds the per-task tool context for root.
func (c *Config) ToolContext(root string) engine.ToolContext {
	tc := engine.DefaultToolContext(root)
	if c.Sandbox.CmdTimeout > 0 {
		tc.Timeout = c.Sandbox.CmdTimeout.Std()
	}
	tc.MaxOutputSize = c.Tools.MaxOutput
	tc.Verbose = c.Tools.Verbose
	return tc
}

// Validate reports the first invalid setting as a KindConfig error.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Endpoint.Provider) {
	case ProviderOpenAI, ProviderAnthropic:
	default:
		return engine.Errorf(engine.KindConfig, "config", "unknown provider %q", c.Endpoint.Provider)
	}
	if _, err := sandbox.ParseMode(c.Sandbox.Mode); err != nil {
		return engine.NewError(engine.KindConfig, "config", err)
	}
	switch {
	case c.Sandbox.CmdTimeout < 0:
		return engine.Errorf(engine.KindConfig, "sandbox", "command timeout must be non-negative, got %v", c.Sandbox.CmdTimeout.Std())
	case c.Tools.MaxOutput < 0:
		return engine.Errorf(engine.KindConfig, "tools", "max output must be non-negative, got %d", c.Tools.MaxOutput)
	case c.Tools.FetchTimeout < 0:
		return engine.Errorf(engine.KindConfig, "tools", "fetch timeout must be non-negative, got %v", c.Tools.FetchTimeout.Std())
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return engine.NewError(engine.KindConfig, "log", err)
	}
	return c.Engine().Validate()
}
