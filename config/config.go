package config

import (
	"github.com/zoobzio/spanz/listeners"
	"github.com/zoobzio/spanz/logger"
	"github.com/zoobzio/spanz/propagation"
	"github.com/zoobzio/spanz/sampling"
)

// Config is the complete spanz configuration.
type Config struct {
	Log logger.Config `koanf:"log"`
	// Sampler decides once per trace at the root span.
	Sampler sampling.Config `koanf:"sampler"`
	// ReportSampler filters finished spans before the collector keeps them.
	ReportSampler sampling.Config        `koanf:"report_sampler"`
	Propagation   propagation.Keys       `koanf:"propagation"`
	Listeners     []listeners.Descriptor `koanf:"listeners"`
	Metrics       MetricsConfig          `koanf:"metrics"`
	Collector     CollectorConfig        `koanf:"collector"`
}

// MetricsConfig enables the Prometheus listener.
type MetricsConfig struct {
	Enabled   bool   `koanf:"enabled"`
	Namespace string `koanf:"namespace"`
}

// CollectorConfig enables the in-memory collector.
type CollectorConfig struct {
	Enabled    bool `koanf:"enabled"`
	BufferSize int  `koanf:"buffer_size"`
	Sync       bool `koanf:"sync"`
}

// Default returns the configuration used when no source sets a value.
func Default() Config {
	return Config{
		Log: logger.Config{
			Level:       logger.Info,
			ServiceName: "spanz",
		},
		Propagation: propagation.DefaultKeys,
		Metrics: MetricsConfig{
			Namespace: "spanz",
		},
		Collector: CollectorConfig{
			BufferSize: 1000,
		},
	}
}
