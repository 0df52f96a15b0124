// Package logging builds the zap logger shared by the CLI and the learning loop.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config selects the level and encoding of the logger.
type Config struct {
	Level  string // debug, info, warn, error
	Format string // json or console
}

// Validate checks that level and format are recognized.
func (c Config) Validate() error {
	if _, err := zapcore.ParseLevel(levelOrDefault(c.Level)); err != nil {
		return fmt.Errorf("invalid log level %q", c.Level)
	}
	switch c.Format {
	case "", "json", "console":
		return nil
	default:
		return fmt.Errorf("invalid log format %q (must be json or console)", c.Format)
	}
}

// New creates a logger writing to stderr.
func New(cfg Config) (*zap.Logger, error) {
	return NewWithWriter(cfg, os.Stderr)
}

// NewWithWriter creates a logger writing to w.
func NewWithWriter(cfg Config, w io.Writer) (*zap.Logger, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	level, _ := zapcore.ParseLevel(levelOrDefault(cfg.Level))
	core := zapcore.NewCore(newEncoder(cfg.Format), zapcore.AddSync(w), level)

	return zap.New(core), nil
}

func newEncoder(format string) zapcore.Encoder {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	if format == "console" {
		return zapcore.NewConsoleEncoder(encoderCfg)
	}
	return zapcore.NewJSONEncoder(encoderCfg)
}

func levelOrDefault(level string) string {
	if level == "" {
		return "info"
	}
	return strings.ToLower(level)
}

// Email is a zap field that keeps the domain of an address and masks the local part.
func Email(key, addr string) zap.Field {
	at := strings.LastIndex(addr, "@")
	if at <= 0 {
		return zap.String(key, "[REDACTED:"+fmt.Sprint(len(addr))+"]")
	}
	return zap.String(key, addr[:1]+"***"+addr[at:])
}
