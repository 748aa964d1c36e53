// Package logger builds the zap logger used by spanz tooling.
package logger

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Log levels accepted in Config.Level.
const (
	Debug   = "debug"
	Info    = "info"
	Warning = "warning"
	Error   = "error"
)

// Config configures the logger.
type Config struct {
	Level       string `koanf:"level" mapstructure:"level"`
	ServiceName string `koanf:"service_name" mapstructure:"service_name"`
	// Encoding is "json" (default) or "console".
	Encoding string `koanf:"encoding" mapstructure:"encoding"`
	// Output defaults to stderr.
	Output []string `koanf:"output" mapstructure:"output"`
}

// ParseLevel maps a level name onto a zap level. Unknown names mean info.
func ParseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case Debug:
		return zapcore.DebugLevel
	case Warning, "warn":
		return zapcore.WarnLevel
	case Error:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// New builds a production zap logger:
//   - JSON encoding with ISO8601 timestamps
//   - capital level names without color
//   - pid and service as initial fields
func New(cfg Config) (*zap.Logger, error) {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "timestamp"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	encoderCfg.EncodeDuration = zapcore.MillisDurationEncoder

	encoding := cfg.Encoding
	if encoding == "" {
		encoding = "json"
	}
	output := cfg.Output
	if len(output) == 0 {
		output = []string{"stderr"}
	}

	fields := map[string]interface{}{"pid": os.Getpid()}
	if cfg.ServiceName != "" {
		fields["service"] = cfg.ServiceName
	}

	zcfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(ParseLevel(cfg.Level)),
		Encoding:         encoding,
		EncoderConfig:    encoderCfg,
		OutputPaths:      output,
		ErrorOutputPaths: []string{"stderr"},
		InitialFields:    fields,
	}

	logger, err := zcfg.Build(zap.AddCaller())
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return logger, nil
}
