// internal/config/config.go
//
// This package handles configuration and the .fiberlab directory structure.
// Every project that runs fiberlab gets a .fiberlab/ folder created in its root.

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

const (
	// FiberlabDir is the name of the directory we create in each project
	FiberlabDir = ".fiberlab"

	defaultSubscriberCapacity  = 16
	defaultItems               = 100000
	defaultExpensiveIterations = 5000000
)

var defaultFruits = []string{"Apple", "Banana", "Cherry"}

const defaultProjectConfigYAML = `# fiberlab project configuration
version: 1

scheduler:
  # Buffered notifications per subscriber before older ones are dropped.
  subscriber_capacity: 16
  # Extra wait at each idle point before a low-priority flush. 0 just yields.
  idle_delay: 0s

demo:
  # Size of the list built by the low-priority "generate" action.
  items: 100000
  # Loop count of the expensive low-priority computation.
  expensive_iterations: 5000000
  fruits:
    - Apple
    - Banana
    - Cherry

telemetry:
  # OTLP/HTTP endpoint, e.g. http://localhost:4318. Empty disables tracing.
  endpoint: ""
`

// SchedulerConfig tunes the update scheduler.
type SchedulerConfig struct {
	SubscriberCapacity int           `yaml:"subscriber_capacity"`
	IdleDelay          time.Duration `yaml:"idle_delay"`
}

// DemoConfig sizes the demo components.
type DemoConfig struct {
	Items               int      `yaml:"items"`
	ExpensiveIterations int      `yaml:"expensive_iterations"`
	Fruits              []string `yaml:"fruits"`
}

// TelemetryConfig controls trace export.
type TelemetryConfig struct {
	Endpoint string `yaml:"endpoint"`
	Disabled bool   `yaml:"disabled,omitempty"`
}

// ProjectConfig models .fiberlab/config.yaml.
type ProjectConfig struct {
	Version   int             `yaml:"version"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Demo      DemoConfig      `yaml:"demo"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// EnvOverrides lists the FIBERLAB_* variables that win over config.yaml.
// Zero values mean "not set".
type EnvOverrides struct {
	SubscriberCapacity  int           `env:"FIBERLAB_SUBSCRIBER_CAPACITY"`
	IdleDelay           time.Duration `env:"FIBERLAB_IDLE_DELAY"`
	Items               int           `env:"FIBERLAB_DEMO_ITEMS"`
	ExpensiveIterations int           `env:"FIBERLAB_DEMO_EXPENSIVE_ITERATIONS"`
	OTelEndpoint        string        `env:"FIBERLAB_OTEL_ENDPOINT"`
	OTelDisabled        bool          `env:"FIBERLAB_OTEL_DISABLED"`
}

// Config holds the runtime configuration for fiberlab.
type Config struct {
	// ProjectDir is the directory where the user ran `fiberlab` from
	ProjectDir string

	// FiberlabProjectDir is ProjectDir/.fiberlab
	FiberlabProjectDir string

	Project ProjectConfig
}

// InitFiberlabDir creates the .fiberlab directory structure in the given
// project directory and writes a default config.yaml if none exists.
//
// Structure created:
// .fiberlab/
// ├── config.yaml
// └── logs/         <- scheduler and UI activity
func InitFiberlabDir(projectDir string) error {
	dir := filepath.Join(projectDir, FiberlabDir)
	if err := os.MkdirAll(filepath.Join(dir, "logs"), 0o755); err != nil {
		return err
	}
	return ensureProjectConfig(filepath.Join(dir, "config.yaml"))
}

// NewConfig creates a Config populated from config.yaml and the environment.
func NewConfig(projectDir string) (*Config, error) {
	cfg := &Config{
		ProjectDir:         projectDir,
		FiberlabProjectDir: filepath.Join(projectDir, FiberlabDir),
		Project:            defaultProjectConfig(),
	}
	if err := cfg.loadProjectConfig(); err != nil {
		return nil, err
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// LogsDir returns the path to the logs directory
func (c *Config) LogsDir() string {
	return filepath.Join(c.FiberlabProjectDir, "logs")
}

// LogPath returns the scheduler log file.
func (c *Config) LogPath() string {
	return filepath.Join(c.LogsDir(), "fiberlab.log")
}

// ProjectConfigPath returns the on-disk location for the project config file.
func (c *Config) ProjectConfigPath() string {
	return filepath.Join(c.FiberlabProjectDir, "config.yaml")
}

func (c *Config) loadProjectConfig() error {
	path := c.ProjectConfigPath()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: read %s: %w", path, err)
	}

	var parsed ProjectConfig
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}

	parsed.applyDefaults()
	parsed.normalize()
	if err := parsed.validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	c.Project = parsed
	return nil
}

func (c *Config) applyEnv() error {
	var overrides EnvOverrides
	if err := ParseEnv(&overrides); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	c.Project.apply(overrides)
	c.Project.normalize()
	if err := c.Project.validate(); err != nil {
		return fmt.Errorf("config: environment: %w", err)
	}
	return nil
}

func defaultProjectConfig() ProjectConfig {
	pc := ProjectConfig{Version: 1}
	pc.applyDefaults()
	return pc
}

func (pc *ProjectConfig) applyDefaults() {
	if pc.Version == 0 {
		pc.Version = 1
	}
	if pc.Scheduler.SubscriberCapacity == 0 {
		pc.Scheduler.SubscriberCapacity = defaultSubscriberCapacity
	}
	if pc.Demo.Items == 0 {
		pc.Demo.Items = defaultItems
	}
	if pc.Demo.ExpensiveIterations == 0 {
		pc.Demo.ExpensiveIterations = defaultExpensiveIterations
	}
	if pc.Demo.Fruits == nil {
		pc.Demo.Fruits = append([]string(nil), defaultFruits...)
	}
}

func (pc *ProjectConfig) apply(o EnvOverrides) {
	if o.SubscriberCapacity != 0 {
		pc.Scheduler.SubscriberCapacity = o.SubscriberCapacity
	}
	if o.IdleDelay != 0 {
		pc.Scheduler.IdleDelay = o.IdleDelay
	}
	if o.Items != 0 {
		pc.Demo.Items = o.Items
	}
	if o.ExpensiveIterations != 0 {
		pc.Demo.ExpensiveIterations = o.ExpensiveIterations
	}
	if endpoint := strings.TrimSpace(o.OTelEndpoint); endpoint != "" {
		pc.Telemetry.Endpoint = endpoint
	}
	if o.OTelDisabled {
		pc.Telemetry.Disabled = true
	}
}

func (pc *ProjectConfig) normalize() {
	fruits := pc.Demo.Fruits[:0]
	for _, name := range pc.Demo.Fruits {
		if trimmed := strings.TrimSpace(name); trimmed != "" {
			fruits = append(fruits, trimmed)
		}
	}
	pc.Demo.Fruits = fruits
	pc.Telemetry.Endpoint = strings.TrimSpace(pc.Telemetry.Endpoint)
}

func (pc *ProjectConfig) validate() error {
	if pc.Version < 1 {
		return fmt.Errorf("config version must be >= 1")
	}
	if pc.Scheduler.SubscriberCapacity < 1 {
		return fmt.Errorf("scheduler.subscriber_capacity must be >= 1")
	}
	if pc.Scheduler.IdleDelay < 0 {
		return fmt.Errorf("scheduler.idle_delay must not be negative")
	}
	if pc.Demo.Items < 1 {
		return fmt.Errorf("demo.items must be >= 1")
	}
	if pc.Demo.ExpensiveIterations < 1 {
		return fmt.Errorf("demo.expensive_iterations must be >= 1")
	}
	return nil
}

// TelemetryEndpoint returns the OTLP endpoint, or "" when tracing is off.
func (c *Config) TelemetryEndpoint() string {
	if c.Project.Telemetry.Disabled {
		return ""
	}
	return c.Project.Telemetry.Endpoint
}

func ensureProjectConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return os.WriteFile(path, []byte(defaultProjectConfigYAML), 0644)
}
