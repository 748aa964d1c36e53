package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v2"
	"github.com/zoobzio/spanz"
	"github.com/zoobzio/spanz/config"
	"github.com/zoobzio/spanz/logger"
)

// Report is the JSON document printed by simulate.
type Report struct {
	Requests   int                   `json:"requests"`
	Spans      int                   `json:"spans"`
	Dropped    int64                 `json:"dropped"`
	Deliberate int                   `json:"deliberate_errors"`
	Resources  []spanz.ResourceStats `json:"resources"`
	Aggregate  map[spanz.Tag]any     `json:"aggregate_tags,omitempty"`
}

// SimulateCommand runs a synthetic request workload through the configured
// tracer and prints the resource rollup.
func SimulateCommand() *cli.Command {
	return &cli.Command{
		Name:  "simulate",
		Usage: "trace a synthetic workload and print the resource rollup as JSON",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "requests",
				Aliases: []string{"n"},
				Usage:   "number of synthetic requests",
				Value:   10,
			},
		},
		Action: func(c *cli.Context) error {
			cfg, err := config.Read(loaderOptions(c)...)
			if err != nil {
				return err
			}
			cfg.Collector.Enabled = true
			cfg.Collector.Sync = true

			log, err := logger.New(cfg.Log)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			a, err := config.Build(cfg, config.Deps{Logger: log, Registerer: prometheus.NewRegistry()})
			if err != nil {
				return fmt.Errorf("build: %w", err)
			}
			defer a.Close()

			tracer := a.NewTracer()
			defer tracer.Destroy()

			report := Report{Requests: c.Int("requests")}
			for i := 0; i < report.Requests; i++ {
				report.Deliberate += simulateRequest(tracer)
			}
			report.Spans = a.Collector.Count()
			report.Dropped = a.Collector.DroppedCount()
			report.Resources = a.Collector.Rollup().Resources()
			report.Aggregate = tracer.Recorder().AggregateTags()

			enc := json.NewEncoder(c.App.Writer)
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		},
	}
}

// simulateRequest traces one inbound request that reads from a database and
// calls a downstream HTTP service. It returns how many deliberate errors the
// listener chain raised.
func simulateRequest(tracer *spanz.Tracer) int {
	ctx, _ := tracer.Fork(context.Background())
	deliberate := 0
	check := func(err error) {
		if spanz.IsDeliberate(err) {
			deliberate++
		}
	}

	ctx, request := tracer.StartSpan(ctx, "GET /orders",
		spanz.WithDomainName("API"),
		spanz.WithClassName("HTTP"),
		spanz.WithTags(map[spanz.Tag]any{"http.method": "GET"}),
	)
	check(request.Initialized())

	_, query := tracer.StartSpan(ctx, "orders",
		spanz.WithDomainName("DB"),
		spanz.WithClassName("POSTGRESQL"),
		spanz.WithTags(map[spanz.Tag]any{
			spanz.TagOperationType:  "READ",
			spanz.TagTopologyVertex: true,
			"db.statement":          "SELECT * FROM orders",
		}),
	)
	check(query.Initialized())
	check(query.Close())

	_, call := tracer.StartSpan(ctx, "inventory",
		spanz.WithDomainName("API"),
		spanz.WithClassName("HTTP"),
		spanz.WithTags(map[spanz.Tag]any{
			spanz.TagOperationType:  "GET",
			spanz.TagTopologyVertex: true,
			"http.host":             "inventory.internal",
		}),
	)
	check(call.Initialized())
	check(call.Close())

	check(request.Close())
	return deliberate
}
