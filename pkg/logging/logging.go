// Package logging builds the structured logrus logger every subsystem
// takes a *logrus.Entry from, with optional on-disk rotation.
package logging

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/weavegate/gateway/pkg/config"
)

// New builds a *logrus.Logger from cfg. A non-empty cfg.File adds a
// lumberjack-rotated file writer alongside stderr; an empty cfg.File logs
// to stderr only. An unparseable Level falls back to info.
func New(cfg config.LoggingConfig) *logrus.Logger {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	log.SetOutput(outputFor(cfg))
	return log
}

func outputFor(cfg config.LoggingConfig) io.Writer {
	if cfg.File == "" {
		return os.Stderr
	}

	rotator := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    orDefault(cfg.MaxSizeMB, 100),
		MaxBackups: orDefault(cfg.MaxBackups, 3),
		MaxAge:     orDefault(cfg.MaxAgeDays, 28),
		Compress:   true,
	}
	return io.MultiWriter(os.Stderr, rotator)
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
