/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package logger defines the small structured-logging interface used
// by the checkers, pkg/spawn, and cmd/checkcat, plus a nop
// implementation, a slice-capturing implementation for tests, and a
// go.uber.org/zap-backed implementation for production use.
package logger

import (
	"fmt"

	"go.uber.org/zap"
)

// Level is a logging severity.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "unknown"
	}
}

// Logger is implemented by anything that can record a structured log line.
// kv is an alternating key/value list.
type Logger interface {
	Log(level Level, msg string, kv ...interface{})
}

// NopLogger discards everything. It is the default when no Logger is
// supplied.
type NopLogger struct{}

func (NopLogger) Log(Level, string, ...interface{}) {}

// Entry is one captured log line, used by SliceLogger.
type Entry struct {
	Level   Level
	Message string
	KV      []interface{}
}

// SliceLogger captures every log line in memory, for assertions in tests.
type SliceLogger struct {
	Entries []Entry
}

func (s *SliceLogger) Log(level Level, msg string, kv ...interface{}) {
	s.Entries = append(s.Entries, Entry{Level: level, Message: msg, KV: kv})
}

// ZapLogger adapts a *zap.Logger to the Logger interface, the way a
// production command wires a zap logger into a long-running state
// machine.
type ZapLogger struct {
	Z *zap.Logger
}

// NewZapLogger builds a ZapLogger from a production zap configuration.
func NewZapLogger() (*ZapLogger, error) {
	z, err := zap.NewProduction()
	if err != nil {
		return nil, err
	}
	return &ZapLogger{Z: z}, nil
}

// NewZapLoggerAtLevel builds a ZapLogger whose minimum enabled level is lvl,
// for commands that expose --logLevel on the command line.
func NewZapLoggerAtLevel(lvl Level) (*ZapLogger, error) {
	cfg := zap.NewProductionConfig()
	switch lvl {
	case LevelDebug:
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case LevelWarn:
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case LevelError:
		cfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	z, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return &ZapLogger{Z: z}, nil
}

func (z *ZapLogger) Log(level Level, msg string, kv ...interface{}) {
	fields := make([]zap.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kv[i])
		}
		fields = append(fields, zap.Any(key, kv[i+1]))
	}

	switch level {
	case LevelDebug:
		z.Z.Debug(msg, fields...)
	case LevelInfo:
		z.Z.Info(msg, fields...)
	case LevelWarn:
		z.Z.Warn(msg, fields...)
	case LevelError:
		z.Z.Error(msg, fields...)
	default:
		z.Z.Info(msg, fields...)
	}
}
