// Package config loads loom's workspace-relative `.loom/config.yaml`,
// applying in-code defaults for anything the file omits or that doesn't
// exist at all.
//
// Grounded on the teacher's internal/config/config.go viper-backed
// Load/DefaultConfig/applyDefaults pattern, fields renamed from ralph's
// LLM/Claude/Mistral/Build domain to loom's planner/policy/executor/
// supervisor/autobuild domain.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Config is loom's full configuration tree.
type Config struct {
	Planner    PlannerConfig    `mapstructure:"planner"`
	Policy     PolicyConfig     `mapstructure:"policy"`
	Executor   ExecutorConfig   `mapstructure:"executor"`
	Supervisor SupervisorConfig `mapstructure:"supervisor"`
	Autobuild  AutobuildConfig  `mapstructure:"autobuild"`
}

// PlannerConfig configures the completion client behind internal/planner.
type PlannerConfig struct {
	Model       string  `mapstructure:"model"`
	Temperature float64 `mapstructure:"temperature"`
}

// PolicyConfig configures internal/policy and the Decision gate.
type PolicyConfig struct {
	CommandAllowlist []string `mapstructure:"command_allowlist"`
	DependencyFiles  []string `mapstructure:"dependency_files"`
}

// ExecutorConfig names the external code-mutation tool invoked by the Run
// executor's executor steps (§4.3, §6).
type ExecutorConfig struct {
	Tool   string `mapstructure:"tool"`
	Binary string `mapstructure:"binary"`
}

// SupervisorConfig overrides internal/procsup's run-timeout/kill-grace
// constants (§4.3/§5), still defaulting to the spec's 30s/3s.
type SupervisorConfig struct {
	RunTimeoutSeconds int `mapstructure:"run_timeout"`
	KillGraceSeconds  int `mapstructure:"kill_grace"`
}

// AutobuildConfig bounds the Autobuild controller's iteration count (§4.9).
type AutobuildConfig struct {
	MaxIterations int `mapstructure:"max_iterations"`
}

// Load reads .loom/config.yaml under workspaceDir, falling back to
// DefaultConfig() entirely when the file is absent, and filling any
// zero-valued field of a present file via applyDefaults otherwise.
func Load(workspaceDir string) (*Config, error) {
	configPath := filepath.Join(workspaceDir, ".loom", "config.yaml")

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return DefaultConfig(), nil
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	applyDefaults(&cfg)

	return &cfg, nil
}

// DefaultConfig returns the configuration loom runs with when no
// .loom/config.yaml exists, matching the fixed constants named throughout
// spec.md.
func DefaultConfig() *Config {
	return &Config{
		Planner: PlannerConfig{
			Model:       "gpt-4o",
			Temperature: 0.2,
		},
		Policy: PolicyConfig{
			CommandAllowlist: []string{"git"},
			DependencyFiles:  []string{"package.json", "package-lock.json", "yarn.lock", "pnpm-lock.yaml"},
		},
		Executor: ExecutorConfig{
			Tool:   "codex",
			Binary: "codex",
		},
		Supervisor: SupervisorConfig{
			RunTimeoutSeconds: 30,
			KillGraceSeconds:  3,
		},
		Autobuild: AutobuildConfig{
			MaxIterations: 2,
		},
	}
}

func applyDefaults(cfg *Config) {
	defaults := DefaultConfig()

	if cfg.Planner.Model == "" {
		cfg.Planner.Model = defaults.Planner.Model
	}
	if cfg.Planner.Temperature == 0 {
		cfg.Planner.Temperature = defaults.Planner.Temperature
	}
	if len(cfg.Policy.CommandAllowlist) == 0 {
		cfg.Policy.CommandAllowlist = defaults.Policy.CommandAllowlist
	}
	if len(cfg.Policy.DependencyFiles) == 0 {
		cfg.Policy.DependencyFiles = defaults.Policy.DependencyFiles
	}
	if cfg.Executor.Tool == "" {
		cfg.Executor.Tool = defaults.Executor.Tool
	}
	if cfg.Executor.Binary == "" {
		cfg.Executor.Binary = defaults.Executor.Binary
	}
	if cfg.Supervisor.RunTimeoutSeconds == 0 {
		cfg.Supervisor.RunTimeoutSeconds = defaults.Supervisor.RunTimeoutSeconds
	}
	if cfg.Supervisor.KillGraceSeconds == 0 {
		cfg.Supervisor.KillGraceSeconds = defaults.Supervisor.KillGraceSeconds
	}
	if cfg.Autobuild.MaxIterations == 0 {
		cfg.Autobuild.MaxIterations = defaults.Autobuild.MaxIterations
	}
}
