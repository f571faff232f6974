// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package scheduler

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

// LogLevel is the severity of a LogEntry.
type LogLevel int32

const (
	// LevelDebug covers steal probes that found nothing: high-volume,
	// useful only when actively diagnosing.
	LevelDebug LogLevel = iota
	// LevelInfo covers execution start/end milestones.
	LevelInfo
	// LevelWarn covers ring-full spills, rate-limited via catrate so a
	// single overloaded worker cannot flood the log.
	LevelWarn
	// LevelError covers conditions the scheduler itself cannot recover
	// from, short of the documented fatal/abort path.
	LevelError
)

func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", l)
	}
}

// LogEntry is a single structured log record emitted by the scheduler.
type LogEntry struct {
	Level     LogLevel
	Category  string // "scheduler", "inbox", "task", "affinity"
	Worker    WorkerID
	Workgroup WorkgroupID
	Message   string
	Err       error
	Fields    map[string]any
	Timestamp time.Time
}

// Logger is the structured logging interface the scheduler writes to.
// Implementations may wrap any backend; NewStumpyLogger adapts this
// interface onto github.com/joeycumines/logiface with the stumpy JSON
// backend.
type Logger interface {
	Log(entry LogEntry)
	IsEnabled(level LogLevel) bool
}

// noOpLogger discards everything; it is the default until SetLogger or
// WithLogger installs something else.
type noOpLogger struct{}

func (noOpLogger) Log(LogEntry)            {}
func (noOpLogger) IsEnabled(LogLevel) bool { return false }

// NewNoOpLogger returns a Logger that discards all entries.
func NewNoOpLogger() Logger { return noOpLogger{} }

var globalLogger struct {
	sync.RWMutex
	logger Logger
}

// SetLogger installs the package-level default Logger, used by schedulers
// constructed without an explicit WithLogger option.
func SetLogger(l Logger) {
	globalLogger.Lock()
	defer globalLogger.Unlock()
	globalLogger.logger = l
}

func getGlobalLogger() Logger {
	globalLogger.RLock()
	defer globalLogger.RUnlock()
	if globalLogger.logger != nil {
		return globalLogger.logger
	}
	return NewNoOpLogger()
}

// stumpyLogger adapts Logger onto a logiface.Logger[*stumpy.Event], the
// JSON structured-logging pairing used across this team's concurrency
// packages.
type stumpyLogger struct {
	inner *logiface.Logger[*stumpy.Event]
	level atomic.Int32
}

// NewStumpyLogger builds the default structured Logger, backed by
// logiface+stumpy, emitting newline-delimited JSON at or above minLevel.
func NewStumpyLogger(minLevel LogLevel) Logger {
	l := &stumpyLogger{inner: stumpy.L.New(stumpy.L.WithStumpy())}
	l.level.Store(int32(minLevel))
	return l
}

func (l *stumpyLogger) IsEnabled(level LogLevel) bool {
	return int32(level) >= l.level.Load()
}

func (l *stumpyLogger) Log(entry LogEntry) {
	if !l.IsEnabled(entry.Level) {
		return
	}

	var b *logiface.Builder[*stumpy.Event]
	switch entry.Level {
	case LevelDebug:
		b = l.inner.Debug()
	case LevelInfo:
		b = l.inner.Info()
	case LevelWarn:
		b = l.inner.Warning()
	default:
		b = l.inner.Err()
	}

	if entry.Category != "" {
		b = b.Str("category", entry.Category)
	}
	if entry.Worker.Valid() {
		b = b.Uint64("worker", uint64(entry.Worker))
	}
	if entry.Workgroup.Valid() {
		b = b.Uint64("group", uint64(entry.Workgroup))
	}
	for k, v := range entry.Fields {
		b = b.Any(k, v)
	}
	if entry.Err != nil {
		b = b.Err(entry.Err)
	}

	b.Log(entry.Message)
}
