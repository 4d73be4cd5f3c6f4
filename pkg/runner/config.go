package runner

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/spf13/viper"

	"go.bbrapi.dev/runner/pkg/bridge"
	"go.bbrapi.dev/runner/pkg/telemetry"
	"go.bbrapi.dev/runner/pkg/util/validation"
	"go.bbrapi.dev/runner/pkg/watch"
)

// Config is the runner config for reading in files and environment
// variables with Viper.
type Config struct {
	// Bind is the address game servers connect to.
	Bind string `yaml:"bind" json:"bind"`
	// ModulesPath is scanned for module files.
	ModulesPath string `yaml:"modulesPath" json:"modulesPath"`
	// Modules are module files outside ModulesPath.
	Modules []string `yaml:"modules" json:"modules"`
	// DependencyPath is the GOPATH modules resolve third-party imports from.
	DependencyPath string `yaml:"dependencyPath" json:"dependencyPath"`
	// ConfigurationPath holds module sections and permission files.
	ConfigurationPath string `yaml:"configurationPath" json:"configurationPath"`
	// WarningThreshold logs callbacks taking longer. Zero disables it.
	WarningThreshold time.Duration `yaml:"warningThreshold" json:"warningThreshold"`
	// PollInterval is how often module files are checked for changes.
	PollInterval time.Duration `yaml:"pollInterval" json:"pollInterval"`
	Debug        bool          `yaml:"debug" json:"debug"`
	// GRPC health probe service for use with Kubernetes pods.
	// (https://github.com/grpc-ecosystem/grpc-health-probe)
	HealthService HealthService    `yaml:"healthService" json:"healthService"`
	Telemetry     telemetry.Config `yaml:"telemetry" json:"telemetry"`
	// Quota limits connection attempts per /24 address range.
	Quota Quota `yaml:"quota" json:"quota"`
}

type Quota struct {
	Enabled    bool    `yaml:"enabled" json:"enabled"`
	OPS        float32 `yaml:"ops" json:"ops"` // allowed attempts per second
	Burst      int     `yaml:"burst" json:"burst"`
	MaxEntries int     `yaml:"maxEntries" json:"maxEntries"` // address ranges remembered
}

type HealthService struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Bind    string `yaml:"bind" json:"bind"`
}

// DefaultConfig is the config used when nothing is configured.
var DefaultConfig = Config{
	Bind:              bridge.DefaultBind,
	ModulesPath:       "./modules",
	Modules:           []string{},
	DependencyPath:    "./dependencies",
	ConfigurationPath: "./configurations",
	WarningThreshold:  250 * time.Millisecond,
	PollInterval:      watch.DefaultInterval,
	HealthService: HealthService{
		Bind: "0.0.0.0:9090",
	},
	Telemetry: telemetry.DefaultConfig,
	Quota: Quota{
		Enabled:    true,
		OPS:        2,
		Burst:      5,
		MaxEntries: 1000,
	},
}

// Defaulter receives config defaults. *viper.Viper implements it.
type Defaulter interface {
	SetDefault(key string, value any)
}

// SetDefaults sets Config defaults to use with Viper.
func SetDefaults(i Defaulter) {
	c := DefaultConfig
	i.SetDefault("bind", c.Bind)
	i.SetDefault("modulesPath", c.ModulesPath)
	i.SetDefault("modules", c.Modules)
	i.SetDefault("dependencyPath", c.DependencyPath)
	i.SetDefault("configurationPath", c.ConfigurationPath)
	i.SetDefault("warningThreshold", c.WarningThreshold)
	i.SetDefault("pollInterval", c.PollInterval)
	i.SetDefault("debug", c.Debug)
	i.SetDefault("healthService.enabled", c.HealthService.Enabled)
	i.SetDefault("healthService.bind", c.HealthService.Bind)
	i.SetDefault("telemetry.enabled", c.Telemetry.Enabled)
	i.SetDefault("telemetry.endpoint", c.Telemetry.Endpoint)
	i.SetDefault("telemetry.insecure", c.Telemetry.Insecure)
	i.SetDefault("telemetry.metrics", c.Telemetry.Metrics)
	i.SetDefault("telemetry.traces", c.Telemetry.Traces)
	i.SetDefault("quota.enabled", c.Quota.Enabled)
	i.SetDefault("quota.ops", c.Quota.OPS)
	i.SetDefault("quota.burst", c.Quota.Burst)
	i.SetDefault("quota.maxEntries", c.Quota.MaxEntries)
}

// LoadConfig reads the config of v. The config file is optional.
func LoadConfig(v *viper.Viper) (*Config, error) {
	SetDefaults(v)
	var notFound viper.ConfigFileNotFoundError
	if err := v.ReadInConfig(); err != nil && !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("error reading config file %q: %w", v.ConfigFileUsed(), err)
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error loading config: %w", err)
	}
	return &cfg, nil
}

// Validate returns warnings for questionable values and errors for values
// the runner cannot start with.
func (c *Config) Validate() (warns []error, errs []error) {
	e := func(m string, args ...any) { errs = append(errs, fmt.Errorf(m, args...)) }
	w := func(m string, args ...any) { warns = append(warns, fmt.Errorf(m, args...)) }
	if c == nil {
		e("config must not be nil")
		return
	}

	if err := validation.ValidHostPort(c.Bind); err != nil {
		e("Invalid bind address %q: %v", c.Bind, err)
	}
	if c.ModulesPath == "" && len(c.Modules) == 0 {
		e("No modulesPath and no modules configured")
	}
	if c.ConfigurationPath == "" {
		e("configurationPath must not be empty")
	}
	if c.PollInterval <= 0 {
		e("pollInterval must be positive, got %s", c.PollInterval)
	} else if c.PollInterval < 100*time.Millisecond {
		w("pollInterval %s is very short", c.PollInterval)
	}
	if c.WarningThreshold < 0 {
		e("warningThreshold must not be negative, got %s", c.WarningThreshold)
	} else if c.WarningThreshold == 0 {
		w("warningThreshold is 0, slow module callbacks will not be reported")
	}
	if c.Quota.Enabled && (c.Quota.OPS <= 0 || c.Quota.Burst <= 0 || c.Quota.MaxEntries <= 0) {
		e("quota ops, burst and maxEntries must be positive when enabled")
	}
	if c.HealthService.Enabled {
		if err := validation.ValidHostPort(c.HealthService.Bind); err != nil {
			e("Invalid health probe bind address %q: %v", c.HealthService.Bind, err)
		}
	}
	return
}
