// Package logging builds the process-wide zap logger: a console core and
// an optional rotating file core, configured from YAML (spec SPEC_FULL.md
// AMBIENT STACK). Scoped down from the dynamic level-switching logger it is
// grounded on — this system has no runtime level-switch requirement.
package logging

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config is the `logging` block of the process YAML config.
type Config struct {
	Level   string      `yaml:"level"`
	Console ConsoleSink `yaml:"console"`
	File    FileSink    `yaml:"file"`
}

type ConsoleSink struct {
	Enabled bool   `yaml:"enabled"`
	Format  string `yaml:"format"` // "json" or "console"
}

type FileSink struct {
	Enabled    bool   `yaml:"enabled"`
	Path       string `yaml:"path"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// New builds a *zap.Logger from cfg. At least one sink must be enabled.
func New(cfg Config) (*zap.Logger, error) {
	level := parseLevel(cfg.Level)

	var cores []zapcore.Core

	if cfg.Console.Enabled {
		cores = append(cores, zapcore.NewCore(
			encoderFor(cfg.Console.Format),
			zapcore.Lock(os.Stdout),
			level,
		))
	}

	if cfg.File.Enabled {
		if cfg.File.Path == "" {
			return nil, fmt.Errorf("logging: file.path must be set when file logging is enabled")
		}
		writer := &lumberjack.Logger{
			Filename:   cfg.File.Path,
			MaxSize:    valueOr(cfg.File.MaxSizeMB, 100),
			MaxBackups: cfg.File.MaxBackups,
			MaxAge:     cfg.File.MaxAgeDays,
			Compress:   cfg.File.Compress,
		}
		cores = append(cores, zapcore.NewCore(
			encoderFor("json"),
			zapcore.AddSync(writer),
			level,
		))
	}

	if len(cores) == 0 {
		return nil, fmt.Errorf("logging: at least one of console/file must be enabled")
	}

	var core zapcore.Core
	if len(cores) == 1 {
		core = cores[0]
	} else {
		core = zapcore.NewTee(cores...)
	}

	return zap.New(core, zap.AddCaller()), nil
}

func encoderFor(format string) zapcore.Encoder {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	if format == "console" {
		return zapcore.NewConsoleEncoder(encCfg)
	}
	return zapcore.NewJSONEncoder(encCfg)
}

func parseLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func valueOr(v, fallback int) int {
	if v == 0 {
		return fallback
	}
	return v
}
