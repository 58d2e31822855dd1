// Package logging provides structured, redacted logging for the daemon.
//
// Every component obtains its own named Logger via GetLogger(component).
// Output is rendered through a custom logrus.Formatter that implements the
// wire line format mandated for this daemon: a fixed-width timestamp,
// level, hostname, dotted component path, and a sanitised, redacted
// message, truncated to a bounded line length.
package logging

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Fields is a type alias for logrus.Fields to keep call sites free of the
// logrus import.
type Fields = logrus.Fields

// CorrelationIDKey is the context key correlation IDs are stored under.
const CorrelationIDKey = "correlation_id"

// Logger wraps logrus.Logger with a component identity and correlation ID
// propagation. Every entry written through a Logger is routed through the
// shared Formatter, which performs redaction and line-shape enforcement.
type Logger struct {
	*logrus.Logger
	component     string
	correlationID string
}

// Config controls the ambient logging stack: console/file sinks, rotation,
// and the minimum level.
type Config struct {
	Level          string // trace,debug,info,notice,warning,error,fatal
	Format         string // "text" or "json" — selects the per-line renderer
	FileEnabled    bool
	FilePath       string
	MaxFileSizeMB  int
	BackupCount    int
	ConsoleEnabled bool
}

var (
	mu       sync.RWMutex
	level    = logrus.InfoLevel
	sinks    []func() (logrus.Hook, error)
	hostname string

	registry   = map[string]*Logger{}
	registryMu sync.Mutex

	// curOutputs/curFormat are the sinks and renderer installed by the last
	// Configure call, guarded by registryMu and applied to every logger
	// GetLogger creates afterwards.
	curOutputs []io.Writer
	curFormat  = "text"
)

func init() {
	h, err := os.Hostname()
	if err != nil {
		h = "unknown"
	}
	hostname = h
}

// Configure installs the process-wide logging configuration. It is called
// once during startup; loggers already handed out are reconfigured in
// place, and loggers GetLogger creates afterwards start with the same
// outputs, format and level.
func Configure(cfg Config) error {
	mu.Lock()
	defer mu.Unlock()

	lvl, err := ParseLevel(cfg.Level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	level = lvl

	var outputs []io.Writer
	if cfg.ConsoleEnabled || !cfg.FileEnabled {
		outputs = append(outputs, os.Stdout)
	}
	if cfg.FileEnabled && cfg.FilePath != "" {
		if err := os.MkdirAll(dirOf(cfg.FilePath), 0o755); err != nil {
			return err
		}
		outputs = append(outputs, &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    maxOrDefault(cfg.MaxFileSizeMB, 10),
			MaxBackups: cfg.BackupCount,
			MaxAge:     30,
			Compress:   true,
		})
	}

	registryMu.Lock()
	defer registryMu.Unlock()
	curOutputs, curFormat = outputs, cfg.Format
	for _, l := range registry {
		applyOutputs(l, outputs, cfg.Format)
		l.SetLevel(level)
	}
	return nil
}

func applyOutputs(l *Logger, outputs []io.Writer, format string) {
	switch len(outputs) {
	case 0:
		l.SetOutput(os.Stdout)
	case 1:
		l.SetOutput(outputs[0])
	default:
		l.SetOutput(io.MultiWriter(outputs...))
	}
	l.SetFormatter(NewFormatter(format))
}

// GetLogger returns the (process-wide, cached) logger for component,
// creating it on first use.
func GetLogger(component string) *Logger {
	registryMu.Lock()
	defer registryMu.Unlock()

	if l, ok := registry[component]; ok {
		return l
	}

	inner := logrus.New()
	inner.SetLevel(level)

	l := &Logger{Logger: inner, component: component}
	applyOutputs(l, curOutputs, curFormat)
	registry[component] = l
	return l
}

// WithCorrelationID returns a derived Logger tagged with the given
// correlation id; the underlying logrus.Logger (and its output/formatter)
// is shared.
func (l *Logger) WithCorrelationID(id string) *Logger {
	return &Logger{Logger: l.Logger, component: l.component, correlationID: id}
}

// WithComponent returns a derived Logger scoped to a dotted sub-path of the
// current component, e.g. GetLogger("soap").WithComponent("dispatch").
func (l *Logger) WithComponent(sub string) *Logger {
	return &Logger{Logger: l.Logger, component: l.component + "." + sub, correlationID: l.correlationID}
}

func (l *Logger) entry() *logrus.Entry {
	e := logrus.NewEntry(l.Logger)
	e.Data[componentKey] = l.component
	if l.correlationID != "" {
		e.Data[correlationKey] = l.correlationID
	}
	return e
}

// WithField returns a derived entry carrying one extra field, redacted per
// the formatter's rules before rendering.
func (l *Logger) WithField(key string, value interface{}) *logrus.Entry {
	return l.entry().WithField(key, value)
}

// WithFields returns a derived entry carrying the given fields.
func (l *Logger) WithFields(f Fields) *logrus.Entry {
	return l.entry().WithFields(f)
}

// WithError returns a derived entry carrying the given error.
func (l *Logger) WithError(err error) *logrus.Entry {
	return l.entry().WithError(err)
}

func (l *Logger) Debug(args ...interface{}) { l.entry().Debug(args...) }
func (l *Logger) Info(args ...interface{})  { l.entry().Info(args...) }
func (l *Logger) Warn(args ...interface{})  { l.entry().Warn(args...) }
func (l *Logger) Error(args ...interface{}) { l.entry().Error(args...) }
func (l *Logger) Fatal(args ...interface{}) { l.entry().Fatal(args...) }
func (l *Logger) Trace(args ...interface{}) { l.entry().Trace(args...) }

// Notice logs at the NOTICE level, a level the daemon's log-level scheme
// defines but logrus does not: it renders between INFO and WARNING.
func (l *Logger) Notice(args ...interface{}) {
	e := l.entry()
	e.Data[noticeKey] = true
	e.Info(args...)
}

// GenerateCorrelationID returns a fresh random correlation identifier.
func GenerateCorrelationID() string {
	return uuid.New().String()
}

// WithCorrelationID stores a correlation id on the context.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, CorrelationIDKey, id)
}

// CorrelationIDFromContext extracts a correlation id previously stored with
// WithCorrelationID, or "" if none is present.
func CorrelationIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if id, ok := ctx.Value(CorrelationIDKey).(string); ok {
		return id
	}
	return ""
}

// ParseLevel maps the daemon's level vocabulary (including "notice" and
// "warning", which logrus itself doesn't spell that way) onto logrus.Level.
func ParseLevel(s string) (logrus.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return logrus.TraceLevel, nil
	case "debug":
		return logrus.DebugLevel, nil
	case "info", "notice":
		return logrus.InfoLevel, nil
	case "warning", "warn":
		return logrus.WarnLevel, nil
	case "error":
		return logrus.ErrorLevel, nil
	case "fatal":
		return logrus.FatalLevel, nil
	default:
		return logrus.InfoLevel, errors.New("logging: unknown level " + s)
	}
}

func dirOf(path string) string {
	idx := strings.LastIndexByte(path, '/')
	if idx < 0 {
		return "."
	}
	return path[:idx]
}

func maxOrDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
