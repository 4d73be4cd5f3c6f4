// Package runner is the command line interface of bbr-runner.
package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"github.com/spf13/viper"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"go.bbrapi.dev/runner/pkg/runner"
	"go.bbrapi.dev/runner/pkg/runtime/process"
	"go.bbrapi.dev/runner/pkg/util/interrupt"
	"go.bbrapi.dev/runner/pkg/version"
)

// Execute runs App() and calls os.Exit when finished.
func Execute() {
	if err := App().Run(os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// EnvPrefix prefixes environment variables overriding config keys,
// e.g. BBR_BIND or BBR_HEALTHSERVICE_ENABLED.
const EnvPrefix = "BBR"

func App() *cli.App {
	app := cli.NewApp()
	app.Name = "bbr-runner"
	app.Usage = "BattleBit module runner."
	app.Description = `Loads Go modules from source, attaches them to every connected
BattleBit game server and hot reloads them when their files change.

Visit the website https://bbrapi.dev for more information.`
	app.Version = version.String()

	// Use -V for version to free -v for verbosity.
	cli.VersionFlag = &cli.BoolFlag{
		Name:    "version",
		Aliases: []string{"V"},
		Usage:   "print the version",
	}

	var (
		debug      bool
		configFile string
		verbosity  int
	)
	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Aliases:     []string{"c"},
			Usage:       `config file (default: ./config.yml)`,
			EnvVars:     []string{EnvPrefix + "_CONFIG"},
			Destination: &configFile,
		},
		&cli.BoolFlag{
			Name:        "debug",
			Aliases:     []string{"d"},
			Usage:       "Enable debug mode and highest log verbosity",
			Destination: &debug,
			EnvVars:     []string{EnvPrefix + "_DEBUG"},
		},
		&cli.IntFlag{
			Name:        "verbosity",
			Aliases:     []string{"v"},
			Usage:       "The higher the verbosity the more logs are shown",
			EnvVars:     []string{EnvPrefix + "_VERBOSITY"},
			Destination: &verbosity,
		},
	}
	app.Commands = []*cli.Command{configCommand()}
	app.Action = func(c *cli.Context) error {
		v, err := initViper(c, configFile)
		if err != nil {
			return cli.Exit(err, 1)
		}
		cfg, err := runner.LoadConfig(v)
		if err != nil {
			return cli.Exit(err, 1)
		}
		debug = debug || cfg.Debug
		if debug {
			verbosity = max(verbosity, 10)
		}

		log, err := newLogger(debug, verbosity)
		if err != nil {
			return cli.Exit(fmt.Errorf("error creating zap logger: %w", err), 1)
		}
		c.Context = logr.NewContext(c.Context, log)

		if v.ConfigFileUsed() != "" {
			if _, statErr := os.Stat(v.ConfigFileUsed()); statErr == nil {
				log.Info("using config file", "config", v.ConfigFileUsed())
			}
		}
		warns, errs := cfg.Validate()
		for _, w := range warns {
			log.Info("config validation warn", "warn", w)
		}
		if len(errs) != 0 {
			for _, e := range errs {
				log.Info("config validation error", "error", e)
			}
			return cli.Exit(errors.New("invalid config"), 1)
		}

		if err := run(c.Context, cfg, v); err != nil {
			return cli.Exit(err, 1)
		}
		return nil
	}
	return app
}

func run(ctx context.Context, cfg *runner.Config, v *viper.Viper) error {
	log := logr.FromContextOrDiscard(ctx)
	ctx, stop := interrupt.TerminationContext(ctx, log)
	defer stop()

	r, err := runner.New(runner.Options{
		Config:     cfg,
		Logger:     log,
		ConfigFile: v.ConfigFileUsed(),
		LoadConfig: func() (*runner.Config, error) {
			return runner.LoadConfig(newViper(v.ConfigFileUsed()))
		},
	})
	if err != nil {
		return err
	}
	return process.New(process.Options{Logger: log},
		process.Named("runner", r),
		process.Named("console", &Console{Runner: r, In: os.Stdin, Out: os.Stdout}),
	).Start(ctx)
}

func initViper(c *cli.Context, configFile string) (*viper.Viper, error) {
	if configFile == "" {
		configFile = "config.yml"
	}
	v := newViper(configFile)
	// Flags override config and env.
	if c.IsSet("debug") {
		v.Set("debug", c.Bool("debug"))
	}
	return v, nil
}

func newViper(configFile string) *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv() // read in environment variables that match
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetConfigFile(configFile)
	return v
}

// newLogger returns a new zap logger with a modified production
// or development default config to ensure human readability.
func newLogger(debug bool, v int) (l logr.Logger, err error) {
	var cfg zap.Config
	if debug {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(zapcore.Level(-v))

	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	zl, err := cfg.Build()
	if err != nil {
		return logr.Discard(), err
	}
	return zapr.NewLogger(zl), nil
}
