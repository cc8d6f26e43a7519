// Package common provides shared constants, types, and utilities
// used across the travel router tools.
package common

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogLevel represents the severity level of a log message.
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

// String returns the string representation of the log level.
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
		return "UNKNOWN"
	}
}

// ParseLogLevel maps a config string to a level. Unknown values give LevelInfo.
func ParseLogLevel(level string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

func (l LogLevel) zerolog() zerolog.Level {
	switch l {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// AppLogger is a structured logger for the application.
// It writes JSON lines to a size-rotated file and, when enabled,
// human-readable lines to a console writer.
type AppLogger struct {
	mu         sync.Mutex
	level      LogLevel
	zl         zerolog.Logger
	console    io.Writer
	logFile    *lumberjack.Logger
	logDir     string
	maxSizeMB  int // rotate once the file reaches this size (default: 5)
	maxBackups int // compressed backups to keep (default: 5)
}

// LogConfig holds configuration options for the logger.
type LogConfig struct {
	Level      LogLevel
	EnableFile bool
	// Dir overrides the log directory. Empty means GetLogDir().
	Dir string
	// Console receives human-readable lines when non-nil.
	Console    io.Writer
	MaxSizeMB  int // default 5
	MaxBackups int // default 5
}

var (
	defaultLogger *AppLogger
	loggerOnce    sync.Once
)

const (
	defaultMaxSizeMB  = 5
	defaultMaxBackups = 5
)

// isSymlink checks if a path is a symbolic link.
// Returns false if path doesn't exist (safe to create).
func isSymlink(path string) bool {
	info, err := os.Lstat(path)
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeSymlink != 0
}

// GetLogger returns the singleton logger instance.
// Until InitLogger is called it discards everything.
func GetLogger() *AppLogger {
	loggerOnce.Do(func() {
		defaultLogger = &AppLogger{
			level:      LevelInfo,
			zl:         zerolog.Nop(),
			maxSizeMB:  defaultMaxSizeMB,
			maxBackups: defaultMaxBackups,
		}
	})
	return defaultLogger
}

// InitLogger initializes the logger with custom configuration.
// Should be called early in application startup.
func InitLogger(config LogConfig) error {
	logger := GetLogger()

	logger.mu.Lock()
	logger.level = config.Level
	logger.console = config.Console
	logger.logDir = config.Dir
	if config.MaxSizeMB > 0 {
		logger.maxSizeMB = config.MaxSizeMB
	}
	if config.MaxBackups > 0 {
		logger.maxBackups = config.MaxBackups
	}
	logger.rebuildLocked()
	logger.mu.Unlock()

	if config.EnableFile {
		return logger.EnableFileLogging()
	}
	return nil
}

// SetLevel sets the minimum log level.
func (l *AppLogger) SetLevel(level LogLevel) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
	l.zl = l.zl.Level(level.zerolog())
}

// SetOutput sends JSON log lines to w only.
func (l *AppLogger) SetOutput(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.zl = zerolog.New(w).With().Timestamp().Logger().Level(l.level.zerolog())
}

// rebuildLocked recreates the zerolog logger from the current writers.
func (l *AppLogger) rebuildLocked() {
	var writers []io.Writer
	if l.logFile != nil {
		writers = append(writers, l.logFile)
	}
	if l.console != nil {
		writers = append(writers, zerolog.ConsoleWriter{Out: l.console, TimeFormat: "15:04:05"})
	}
	if len(writers) == 0 {
		l.zl = zerolog.Nop()
		return
	}
	l.zl = zerolog.New(zerolog.MultiLevelWriter(writers...)).
		With().Timestamp().Logger().
		Level(l.level.zerolog())
}

func (l *AppLogger) dir() string {
	if l.logDir != "" {
		return l.logDir
	}
	return GetLogDir()
}

// EnableFileLogging enables logging to a file, rotated and gzipped
// once it exceeds maxSizeMB.
func (l *AppLogger) EnableFileLogging() error {
	logDir := l.dir()
	if logDir == "" {
		return fmt.Errorf("no log directory available")
	}

	if isSymlink(logDir) {
		return fmt.Errorf("security error: log directory is a symlink")
	}

	if err := os.MkdirAll(logDir, 0700); err != nil {
		return err
	}

	logPath := filepath.Join(logDir, LogFileName)

	if isSymlink(logPath) {
		return fmt.Errorf("security error: log file is a symlink")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.logFile != nil {
		l.logFile.Close()
	}

	l.logFile = &lumberjack.Logger{
		Filename:   logPath,
		MaxSize:    l.maxSizeMB,
		MaxBackups: l.maxBackups,
		LocalTime:  true,
		Compress:   true,
	}
	l.rebuildLocked()
	return nil
}

// log writes a formatted log message. Callers sit two frames above.
func (l *AppLogger) log(level LogLevel, msg string, args ...interface{}) {
	if level < l.level {
		return
	}

	caller := "???"
	if _, file, line, ok := runtime.Caller(2); ok {
		caller = fmt.Sprintf("%s:%d", filepath.Base(file), line)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	var event *zerolog.Event
	switch level {
	case LevelDebug:
		event = l.zl.Debug()
	case LevelWarn:
		event = l.zl.Warn()
	case LevelError:
		event = l.zl.Error()
	default:
		event = l.zl.Info()
	}
	event = event.Str("caller", caller)
	if len(args) > 0 {
		event.Msgf(msg, args...)
		return
	}
	event.Msg(msg)
}

// Debug logs a debug message.
func (l *AppLogger) Debug(msg string, args ...interface{}) {
	l.log(LevelDebug, msg, args...)
}

// Info logs an informational message.
func (l *AppLogger) Info(msg string, args ...interface{}) {
	l.log(LevelInfo, msg, args...)
}

// Warn logs a warning message.
func (l *AppLogger) Warn(msg string, args ...interface{}) {
	l.log(LevelWarn, msg, args...)
}

// Error logs an error message.
func (l *AppLogger) Error(msg string, args ...interface{}) {
	l.log(LevelError, msg, args...)
}

// Shorthand functions for default logger.

// LogDebug logs a debug message to the default logger.
func LogDebug(msg string, args ...interface{}) {
	GetLogger().log(LevelDebug, msg, args...)
}

// LogInfo logs an info message to the default logger.
func LogInfo(msg string, args ...interface{}) {
	GetLogger().log(LevelInfo, msg, args...)
}

// LogWarn logs a warning message to the default logger.
func LogWarn(msg string, args ...interface{}) {
	GetLogger().log(LevelWarn, msg, args...)
}

// LogError logs an error message to the default logger.
func LogError(msg string, args ...interface{}) {
	GetLogger().log(LevelError, msg, args...)
}

// Close closes the log file. Should be called on application shutdown.
func (l *AppLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.logFile != nil {
		err := l.logFile.Close()
		l.logFile = nil
		l.rebuildLocked()
		return err
	}
	return nil
}

// CloseLogger closes the default logger.
func CloseLogger() error {
	return GetLogger().Close()
}
