package runner

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"go.bbrapi.dev/runner/pkg/runner"
)

func configCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Output default configuration file",
		Description: `Output the default configuration file to stdout or a file.
You can redirect to a file or use the --write flag:

	bbr-runner config > config.yml
	bbr-runner config --write              # Writes to config.yml`,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "write",
				Aliases: []string{"w"},
				Usage:   "Write config to config.yml instead of stdout",
			},
		},
		Action: func(c *cli.Context) error {
			configBytes, err := defaultConfigBytes()
			if err != nil {
				return cli.Exit(fmt.Errorf("error encoding config: %w", err), 1)
			}

			if c.Bool("write") {
				outputFile := "config.yml"
				if _, err := os.Stat(outputFile); err == nil {
					return cli.Exit(fmt.Sprintf("%s already exists", outputFile), 1)
				}
				err := os.WriteFile(outputFile, configBytes, 0644)
				if err != nil {
					return cli.Exit(fmt.Errorf("error writing config to %q: %w", outputFile, err), 1)
				}
				fmt.Printf("Configuration written to %s\n", outputFile)
				return nil
			}

			_, err = c.App.Writer.Write(configBytes)
			if err != nil {
				return cli.Exit(fmt.Errorf("error writing config: %w", err), 1)
			}
			return nil
		},
	}
}

const configHeader = `# bbr-runner configuration.
# Every key can be overridden by an environment variable with the BBR_ prefix,
# e.g. BBR_BIND=0.0.0.0:29294 or BBR_HEALTHSERVICE_ENABLED=true.
`

func defaultConfigBytes() ([]byte, error) {
	b, err := yaml.Marshal(runner.DefaultConfig)
	if err != nil {
		return nil, err
	}
	return append([]byte(configHeader), b...), nil
}
