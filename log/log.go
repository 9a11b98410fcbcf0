// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package log provides the structured logging surface threaded through
// every groupcrdt component. It mirrors the small subset of the
// github.com/luxfi/log interface the engine actually needs, backed by
// go.uber.org/zap.
package log

import "go.uber.org/zap"

// Logger is the structured logging interface every component takes at
// construction time instead of reaching for a package-level logger.
type Logger interface {
	Debug(msg string, fields ...zap.Field)
	Info(msg string, fields ...zap.Field)
	Warn(msg string, fields ...zap.Field)
	Error(msg string, fields ...zap.Field)
	With(fields ...zap.Field) Logger
}

type zapLogger struct {
	l *zap.Logger
}

// NewProduction returns a Logger backed by a production zap config
// (JSON encoding, info level).
func NewProduction() (Logger, error) {
	l, err := zap.NewProduction()
	if err != nil {
		return nil, err
	}
	return &zapLogger{l: l}, nil
}

// NewDevelopment returns a Logger backed by a development zap config
// (console encoding, debug level, caller info).
func NewDevelopment() (Logger, error) {
	l, err := zap.NewDevelopment()
	if err != nil {
		return nil, err
	}
	return &zapLogger{l: l}, nil
}

func (z *zapLogger) Debug(msg string, fields ...zap.Field) { z.l.Debug(msg, fields...) }
func (z *zapLogger) Info(msg string, fields ...zap.Field)  { z.l.Info(msg, fields...) }
func (z *zapLogger) Warn(msg string, fields ...zap.Field)  { z.l.Warn(msg, fields...) }
func (z *zapLogger) Error(msg string, fields ...zap.Field) { z.l.Error(msg, fields...) }
func (z *zapLogger) With(fields ...zap.Field) Logger {
	return &zapLogger{l: z.l.With(fields...)}
}

type noOpLogger struct{}

// NewNoOpLogger returns a Logger that discards everything, used in tests
// and in components that haven't been wired to a real sink.
func NewNoOpLogger() Logger { return noOpLogger{} }

func (noOpLogger) Debug(string, ...zap.Field) {}
func (noOpLogger) Info(string, ...zap.Field)  {}
func (noOpLogger) Warn(string, ...zap.Field)  {}
func (noOpLogger) Error(string, ...zap.Field) {}
func (n noOpLogger) With(...zap.Field) Logger { return n }
