// Package logging builds the process logger.
package logging

import (
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"bussola/internal/config"
)

var stderr io.Writer = os.Stderr

// New returns a sugared logger writing to stderr and, when tee is non-nil,
// also to tee. tee always gets console encoding without color so it reads
// well in the web log view.
func New(cfg config.LogConfig, tee io.Writer) (*zap.SugaredLogger, error) {
	level := cfg.Level
	if level == "" {
		level = "info"
	}
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("logging: %w", err)
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var enc zapcore.Encoder
	switch cfg.Format {
	case "", "console":
		enc = zapcore.NewConsoleEncoder(encCfg)
	case "json":
		enc = zapcore.NewJSONEncoder(encCfg)
	default:
		return nil, fmt.Errorf("logging: unknown format %q", cfg.Format)
	}

	cores := []zapcore.Core{zapcore.NewCore(enc, zapcore.Lock(zapcore.AddSync(stderr)), lvl)}
	if tee != nil {
		cores = append(cores, zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.AddSync(tee), lvl))
	}
	return zap.New(zapcore.NewTee(cores...)).Sugar(), nil
}
