package main

import (
	"io"
	"log/slog"

	"github.com/natefinch/lumberjack"

	"github.com/jpalmerr/pulsecast/config"
)

// rotation limits for server.log_file
const (
	logMaxSizeMB  = 10
	logMaxBackups = 3
	logMaxAgeDays = 28
)

// newLogger creates a JSON logger for CLI use. Logs go to stderr so stdout
// stays free for the device prompt.
func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}

// configLogger builds the logger for cfg, warning when the configured
// level is not recognised. When a log file is configured records are also
// written there; the returned func closes it.
func configLogger(w io.Writer, cfg *config.Config) (*slog.Logger, func()) {
	closeFn := func() {}
	if cfg.Server.LogFile != "" {
		file := &lumberjack.Logger{
			Filename:   cfg.Server.LogFile,
			MaxSize:    logMaxSizeMB,
			MaxBackups: logMaxBackups,
			MaxAge:     logMaxAgeDays,
		}
		w = io.MultiWriter(w, file)
		closeFn = func() { _ = file.Close() }
	}

	level, ok := cfg.LogLevel()
	logger := newLogger(w, level)
	if !ok {
		logger.Warn("unknown log level, using info", "log_level", cfg.Server.LogLevel)
	}
	return logger, closeFn
}
