// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package vault

import (
	"fmt"
	"log"
	"os"

	"github.com/fatih/color"
)

var (
	infoColor  = color.New(color.FgGreen).SprintFunc()
	warnColor  = color.New(color.FgYellow).SprintFunc()
	errorColor = color.New(color.FgRed).SprintFunc()
	debugColor = color.New(color.FgCyan).SprintFunc()
)

// Level is a log verbosity level.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// ParseLevel maps a config string to a Level, defaulting to LevelInfo for
// anything unrecognized.
func ParseLevel(s string) Level {
	switch s {
	case "debug":
		return LevelDebug
	case "warn":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// Logger is a small level-filtered wrapper around the standard logger,
// colorizing level prefixes the way the sync-tool wrapper colorizes its
// own status lines.
type Logger struct {
	min    Level
	std    *log.Logger
	fields map[string]any
}

// NewLogger returns a Logger writing to stderr at minimum level min.
func NewLogger(min Level) *Logger {
	return &Logger{min: min, std: log.New(os.Stderr, "", log.LstdFlags)}
}

// With returns a derived logger that prefixes every line with key=value
// pairs, without mutating the receiver.
func (l *Logger) With(key string, value any) *Logger {
	fields := make(map[string]any, len(l.fields)+1)
	for k, v := range l.fields {
		fields[k] = v
	}
	fields[key] = value
	return &Logger{min: l.min, std: l.std, fields: fields}
}

func (l *Logger) line(level Level, tag string, colorFn func(a ...interface{}) string, format string, args ...any) {
	if level < l.min {
		return
	}
	msg := fmt.Sprintf(format, args...)
	for k, v := range l.fields {
		msg = fmt.Sprintf("%s %s=%v", msg, k, v)
	}
	l.std.Println(colorFn(tag), msg)
}

func (l *Logger) Debug(format string, args ...any) { l.line(LevelDebug, "[DEBUG]", debugColor, format, args...) }
func (l *Logger) Info(format string, args ...any)  { l.line(LevelInfo, "[INFO] ", infoColor, format, args...) }
func (l *Logger) Warn(format string, args ...any)  { l.line(LevelWarn, "[WARN] ", warnColor, format, args...) }
func (l *Logger) Error(format string, args ...any) { l.line(LevelError, "[ERROR]", errorColor, format, args...) }
