// Package log wraps zap for the shim. One default logger writes to a file
// from the start of attach; once a console exists it is teed there too.
package log

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Level = zapcore.Level

const (
	DebugLevel = zap.DebugLevel // -1
	InfoLevel  = zap.InfoLevel  // 0, default level
	WarnLevel  = zap.WarnLevel  // 1
	ErrorLevel = zap.ErrorLevel // 2
)

type Field = zap.Field

// field constructors used across the shim
var (
	String  = zap.String
	Strings = zap.Strings
	Int     = zap.Int
	Bool    = zap.Bool
	Uintptr = zap.Uintptr
	Err     = zap.Error
	Stack   = zap.Stack
	Any     = zap.Any
)

var (
	Info = func(msg string, fields ...Field) {
		if l := Default(); l != nil {
			l.Info(msg, fields...)
		}
	}
	Warn = func(msg string, fields ...Field) {
		if l := Default(); l != nil {
			l.Warn(msg, fields...)
		}
	}
	Error = func(msg string, fields ...Field) {
		if l := Default(); l != nil {
			l.Error(msg, fields...)
		}
	}
	Debug = func(msg string, fields ...Field) {
		if l := Default(); l != nil {
			l.Debug(msg, fields...)
		}
	}
)

const (
	filePrefix = "lovely-"
	fileSuffix = ".log"
	// file names sort by time
	fileStamp = "2006-01-02T15-04-05"
)

// Logger is a zap logger plus the file it writes to.
type Logger struct {
	*zap.Logger // zap.Logger is safe for concurrent use
	level       Level
	file        *os.File
	fileCore    zapcore.Core
}

var (
	stdMu     sync.RWMutex
	stdLogger *Logger
)

// Default returns the logger set by SetDefault, or nil.
func Default() *Logger {
	stdMu.RLock()
	defer stdMu.RUnlock()
	return stdLogger
}

// SetDefault makes l the target of the package level helpers.
func SetDefault(l *Logger) {
	stdMu.Lock()
	defer stdMu.Unlock()
	stdLogger = l
}

func encoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		MessageKey:     "msg",
		LevelKey:       "level",
		TimeKey:        "ts",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
}

// FileName returns the log file name for a session started at now.
func FileName(now time.Time) string {
	return filePrefix + now.Format(fileStamp) + fileSuffix
}

// New creates dir if needed and returns a logger writing to a fresh file in
// it at level and above.
func New(dir string, level Level) (*Logger, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create log dir")
	}
	name := filepath.Join(dir, FileName(time.Now()))
	f, err := os.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, errors.Wrap(err, "open log file")
	}
	l := NewWriter(f, level)
	l.file = f
	return l, nil
}

// NewWriter returns a logger writing to w.
func NewWriter(w io.Writer, level Level) *Logger {
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig()), zapcore.AddSync(w), level)
	return &Logger{
		Logger:   zap.New(core, zap.AddCaller()),
		level:    level,
		fileCore: core,
	}
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{Logger: zap.NewNop(), level: ErrorLevel, fileCore: zapcore.NewNopCore()}
}

// AttachConsole returns a logger that also writes info and above to w.
func (l *Logger) AttachConsole(w io.Writer) *Logger {
	console := zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig()), zapcore.AddSync(w), InfoLevel)
	return &Logger{
		Logger:   zap.New(zapcore.NewTee(l.fileCore, console), zap.AddCaller()),
		level:    l.level,
		file:     l.file,
		fileCore: l.fileCore,
	}
}

// Level returns the file level.
func (l *Logger) Level() Level { return l.level }

// FilePath returns the log file, or "" when not writing to one.
func (l *Logger) FilePath() string {
	if l.file == nil {
		return ""
	}
	return l.file.Name()
}

// Sync flushes the default logger.
func Sync() error {
	if l := Default(); l != nil {
		return l.Sync()
	}
	return nil
}

// ParseLevel accepts zap level names, case-insensitively.
func ParseLevel(s string) (Level, error) {
	return zapcore.ParseLevel(strings.ToLower(strings.TrimSpace(s)))
}

// Prune removes log files in dir last written more than maxAge before now and
// returns how many it removed.
func Prune(dir string, maxAge time.Duration, now time.Time) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	removed := 0
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileSuffix) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if now.Sub(info.ModTime()) <= maxAge {
			continue
		}
		if err := os.Remove(filepath.Join(dir, name)); err == nil {
			removed++
		}
	}
	return removed, nil
}
