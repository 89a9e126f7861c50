// Package obslog provides the process-wide structured logger used by
// ssdpkit's hosted daemon (cmd/ssdpd), which passes the logger it builds
// on to ssdpservice and internal/descriptor. The core ssdp package never
// imports it: the
// engine is transport-agnostic and logs nothing on its own.
package obslog

import (
	"fmt"
	"log"
	"path/filepath"
	"runtime"
	"strconv"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	atomicLevel = zap.NewAtomicLevel()
	serviceName string
	throttled   = make(map[string]*ThrottledLogger)
)

func timeEncoder(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString(t.Format("2006-01-02T15:04:05.000Z07:00"))
}

// callerEncoder tags each line with the service name and the file:line
// it was logged from, so ssdpd's output stays greppable when several
// interfaces or advertisements are logging concurrently.
func callerEncoder(caller zapcore.EntryCaller, enc zapcore.PrimitiveArrayEncoder) {
	dir, file := filepath.Split(caller.File)
	dir = filepath.Base(dir)
	if dir != serviceName {
		file = filepath.Join(dir, file)
	}
	enc.AppendString(fmt.Sprintf("%s:%s:%d", serviceName, file, caller.Line))
}

// New returns a sugared zap logger for name. Each process calls this
// once, at startup; the returned logger's level can be changed later
// with SetLevel.
func New(name string) *zap.SugaredLogger {
	serviceName = name

	cfg := zap.NewProductionConfig()
	cfg.Level = atomicLevel
	cfg.DisableStacktrace = true
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = timeEncoder
	cfg.EncoderConfig.EncodeCaller = callerEncoder
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder

	logger, err := cfg.Build()
	if err != nil {
		log.Panicf("obslog: can't build zap logger: %s", err)
	}
	return logger.Sugar()
}

// SetLevel adjusts the process-wide log level at runtime, e.g. from a
// SIGHUP handler or an admin endpoint.
func SetLevel(level string) error {
	var l zapcore.Level
	if err := (&l).UnmarshalText([]byte(level)); err != nil {
		return fmt.Errorf("obslog: bad level %q: %w", level, err)
	}
	atomicLevel.SetLevel(l)
	return nil
}

// ThrottledLogger rate-limits a single call site's warnings so a flapping
// interface or a misbehaving peer sending malformed datagrams can't flood
// the log; the delay between emitted messages doubles after every emitted
// message, up to maxDelay.
type ThrottledLogger struct {
	slog      *zap.SugaredLogger
	next      time.Time
	baseDelay time.Duration
	maxDelay  time.Duration
	curDelay  time.Duration
}

// Throttled returns a ThrottledLogger unique to the call site, allocating
// one on first use and reusing it on every subsequent call from the same
// line. base is the initial suppression window; max bounds its backoff.
func Throttled(slog *zap.SugaredLogger, base, max time.Duration) *ThrottledLogger {
	var key string
	if _, file, line, ok := runtime.Caller(1); ok {
		key = file + ":" + strconv.Itoa(line)
	} else {
		key = "unknown"
	}

	t, ok := throttled[key]
	if !ok {
		t = &ThrottledLogger{
			slog:      slog.Desugar().WithOptions(zap.AddCallerSkip(1)).Sugar(),
			next:      time.Now(),
			baseDelay: base,
			curDelay:  base,
			maxDelay:  max,
		}
		throttled[key] = t
	}
	return t
}

func (t *ThrottledLogger) ready() bool {
	now := time.Now()
	if now.Before(t.next) {
		return false
	}
	t.next = now.Add(t.curDelay)
	t.curDelay *= 2
	if t.curDelay > t.maxDelay {
		t.curDelay = t.maxDelay
	}
	return true
}

// Warnf issues a throttled WARN message.
func (t *ThrottledLogger) Warnf(format string, args ...interface{}) {
	if t.ready() {
		t.slog.Warnf(format, args...)
	}
}

// Errorf issues a throttled ERROR message.
func (t *ThrottledLogger) Errorf(format string, args ...interface{}) {
	if t.ready() {
		t.slog.Errorf(format, args...)
	}
}
