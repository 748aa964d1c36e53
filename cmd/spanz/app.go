package main

import (
	"fmt"

	"github.com/urfave/cli/v2"
	"github.com/zoobzio/spanz/config"
)

// Build information, set via ldflags.
var (
	Version = "dev"
	Commit  = "unknown"
)

// App creates the CLI application.
func App() *cli.App {
	return &cli.App{
		Name:    "spanz",
		Usage:   "inspect and exercise spanz tracer configuration",
		Version: fmt.Sprintf("%s (commit: %s)", Version, Commit),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "YAML configuration file",
				EnvVars: []string{"SPANZ_CONFIG"},
			},
			&cli.StringFlag{
				Name:  "env-prefix",
				Usage: "environment variable prefix",
				Value: config.DefaultEnvPrefix,
			},
		},
		Commands: []*cli.Command{
			ValidateCommand(),
			SimulateCommand(),
		},
	}
}

func loaderOptions(c *cli.Context) []config.Option {
	opts := []config.Option{config.WithEnvPrefix(c.String("env-prefix"))}
	if path := c.String("config"); path != "" {
		opts = append(opts, config.WithConfigFile(path))
	}
	return opts
}
