package runner

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.bbrapi.dev/runner/pkg/runner"
	"go.bbrapi.dev/runner/pkg/version"
)

func TestVersionCommand(t *testing.T) {
	app := App()

	assert.Equal(t, version.String(), app.Version, "App version should match version package")

	help, err := app.ToMarkdown()
	require.NoError(t, err, "Should be able to generate help text")
	assert.Contains(t, help, "version", "Help should mention version command")

	flags := make(map[string]bool)
	for _, flag := range app.Flags {
		for _, name := range flag.Names() {
			if flags[name] {
				t.Errorf("Flag conflict detected: %s", name)
			}
			flags[name] = true
		}
	}

	assert.True(t, flags["verbosity"], "Verbosity flag should exist")
	assert.True(t, flags["v"], "Verbose -v alias should exist")
	assert.True(t, flags["config"], "Config flag should exist")
	assert.True(t, flags["c"], "Config alias should exist")
	assert.True(t, flags["debug"], "Debug flag should exist")
	assert.True(t, flags["d"], "Debug alias should exist")
}

func TestCustomVersionFlag(t *testing.T) {
	app := App()
	assert.NotEmpty(t, app.Version, "App should have version set")

	help, err := app.ToMarkdown()
	require.NoError(t, err)
	assert.Contains(t, help, "-V", "Help should show -V for version")
	assert.Contains(t, help, "--version", "Help should show --version flag")
	assert.Contains(t, help, "-v", "Help should show -v for verbosity")
}

func TestUserAgentIncludesVersion(t *testing.T) {
	assert.Contains(t, version.UserAgent(), "BBR-Runner")
	assert.Contains(t, version.UserAgent(), version.String())
}

func TestConfigCommand_RoundTrips(t *testing.T) {
	app := App()
	out := new(bytes.Buffer)
	app.Writer = out
	require.NoError(t, app.Run([]string{"bbr-runner", "config"}))
	assert.Contains(t, out.String(), "modulesPath: ./modules")
	assert.Contains(t, out.String(), "warningThreshold: 250ms")

	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, out.Bytes(), 0o644))
	v := viper.New()
	v.SetConfigFile(path)
	cfg, err := runner.LoadConfig(v)
	require.NoError(t, err)
	cfg.Modules = runner.DefaultConfig.Modules
	assert.Equal(t, runner.DefaultConfig, *cfg)
}

func TestNewViper_EnvOverrides(t *testing.T) {
	t.Setenv("BBR_BIND", "127.0.0.1:1234")
	t.Setenv("BBR_HEALTHSERVICE_ENABLED", "true")
	cfg, err := runner.LoadConfig(newViper(filepath.Join(t.TempDir(), "config.yml")))
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:1234", cfg.Bind)
	assert.True(t, cfg.HealthService.Enabled)
}
