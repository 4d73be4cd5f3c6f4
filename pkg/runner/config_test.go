package runner

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	v := viper.New()
	v.SetConfigFile(filepath.Join(t.TempDir(), "config.yml"))
	cfg, err := LoadConfig(v)
	require.NoError(t, err)
	assert.Empty(t, cfg.Modules)
	cfg.Modules = DefaultConfig.Modules
	assert.Equal(t, DefaultConfig, *cfg)
}

type defaults map[string]any

func (d defaults) SetDefault(key string, value any) { d[key] = value }

func TestSetDefaults(t *testing.T) {
	d := defaults{}
	SetDefaults(d)
	assert.Equal(t, DefaultConfig.Bind, d["bind"])
	assert.Equal(t, DefaultConfig.WarningThreshold, d["warningThreshold"])
	assert.Equal(t, DefaultConfig.HealthService.Bind, d["healthService.bind"])
	assert.Equal(t, DefaultConfig.Quota.MaxEntries, d["quota.maxEntries"])
}

func TestLoadConfig_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(`
bind: 127.0.0.1:30001
modulesPath: ./plugins
modules:
  - ../shared/Discord.go
warningThreshold: 1s
healthService:
  enabled: true
`), 0o644))

	v := viper.New()
	v.SetConfigFile(path)
	cfg, err := LoadConfig(v)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:30001", cfg.Bind)
	assert.Equal(t, "./plugins", cfg.ModulesPath)
	assert.Equal(t, []string{"../shared/Discord.go"}, cfg.Modules)
	assert.Equal(t, time.Second, cfg.WarningThreshold)
	assert.Equal(t, DefaultConfig.PollInterval, cfg.PollInterval)
	assert.True(t, cfg.HealthService.Enabled)
	assert.Equal(t, DefaultConfig.HealthService.Bind, cfg.HealthService.Bind)
}

func TestLoadConfig_InvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte("bind: [\n"), 0o644))
	v := viper.New()
	v.SetConfigFile(path)
	_, err := LoadConfig(v)
	assert.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	cfg := DefaultConfig
	warns, errs := cfg.Validate()
	assert.Empty(t, warns)
	assert.Empty(t, errs)

	cfg.Bind = "nowhere"
	cfg.PollInterval = 0
	cfg.WarningThreshold = 0
	cfg.HealthService = HealthService{Enabled: true, Bind: "bad"}
	warns, errs = cfg.Validate()
	assert.Len(t, errs, 3)
	assert.Len(t, warns, 1)

	var nilCfg *Config
	_, errs = nilCfg.Validate()
	assert.Len(t, errs, 1)
}
