// File: internal/logging/logger.go
// Brief: Diagnostic logger construction for ktail.

// Package logging builds the logr.Logger that carries ktail's diagnostics.
// Diagnostics go to stderr through controller-runtime's zap sink so the pod
// log lines on stdout stay clean for piping.
package logging

import (
	"fmt"
	"strings"

	"github.com/go-logr/logr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	crzap "sigs.k8s.io/controller-runtime/pkg/log/zap"
)

// New builds the diagnostic logger for the given level name. Debug switches
// zap into development mode, which also unlocks the V(1) trace output the
// streaming internals emit.
func New(level string) (logr.Logger, error) {
	zapLevel, development, err := parseLevel(level)
	if err != nil {
		return logr.Logger{}, err
	}
	atomic := zap.NewAtomicLevelAt(zapLevel)
	opts := crzap.Options{
		Development: development,
		Level:       &atomic,
	}
	return crzap.New(crzap.UseFlagOptions(&opts)), nil
}

// parseLevel maps the user-facing level name onto a zap level. An empty
// string means the flag was not set and defaults to info.
func parseLevel(level string) (zapcore.Level, bool, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zapcore.DebugLevel, true, nil
	case "info", "":
		return zapcore.InfoLevel, false, nil
	case "warn", "warning":
		return zapcore.WarnLevel, false, nil
	case "error":
		return zapcore.ErrorLevel, false, nil
	default:
		return zapcore.InfoLevel, false, fmt.Errorf("unknown log level %q (expected debug, info, warn, or error)", level)
	}
}
