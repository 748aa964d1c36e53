package main

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v2"
	"github.com/zoobzio/spanz/config"
)

// ValidateCommand loads the configuration and builds every component it
// describes without running anything.
func ValidateCommand() *cli.Command {
	return &cli.Command{
		Name:  "validate",
		Usage: "load the configuration and build its sampler and listeners",
		Action: func(c *cli.Context) error {
			cfg, err := config.Read(loaderOptions(c)...)
			if err != nil {
				return err
			}
			a, err := config.Build(cfg, config.Deps{Registerer: prometheus.NewRegistry()})
			if err != nil {
				return fmt.Errorf("build: %w", err)
			}
			defer a.Close()

			out := c.App.Writer
			fmt.Fprintf(out, "configuration OK\n")
			fmt.Fprintf(out, "  sampler:   %s\n", orNone(cfg.Sampler.Type))
			fmt.Fprintf(out, "  listeners: %d\n", len(a.Listeners()))
			for _, d := range cfg.Listeners {
				fmt.Fprintf(out, "    - %s\n", d.Type)
			}
			fmt.Fprintf(out, "  collector: %t\n", cfg.Collector.Enabled)
			fmt.Fprintf(out, "  metrics:   %t\n", cfg.Metrics.Enabled)
			return nil
		},
	}
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}
