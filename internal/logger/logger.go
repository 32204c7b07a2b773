// Package logger implements the dual-sink logger: a process-wide
// singleton logging leveled lines to a file while mirroring WARN/ERROR
// (and explicit Console calls) to stdout, plus a NewStandaloneLogger
// variant for per-job log streams.
package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Level lists supported log severities.
type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

var levelNames = map[Level]string{
	DEBUG: "DEBUG",
	INFO:  "INFO",
	WARN:  "WARN",
	ERROR: "ERROR",
}

// ParseLevel maps a configured level name to a Level, defaulting to INFO.
func ParseLevel(name string) Level {
	switch name {
	case "DEBUG":
		return DEBUG
	case "WARN":
		return WARN
	case "ERROR":
		return ERROR
	default:
		return INFO
	}
}

// Logger writes leveled lines to a file and mirrors a subset to
// stdout. Safe for concurrent use.
type Logger struct {
	mu          sync.Mutex
	fileLogger  *log.Logger
	consoleLog  *log.Logger
	level       Level
	logFile     *os.File
	logFilePath string
	tag         string
}

var (
	defaultLogger *Logger
	once          sync.Once
)

// Init creates the process-wide logger. logFilePrefix names the log
// file under logDir, e.g. "nxwriter" or "nxwriter-job-42".
func Init(logDir string, level Level, logFilePrefix string) error {
	var initErr error
	once.Do(func() {
		l, err := newFileLogger(logDir, level, logFilePrefix, "nxwriter")
		if err != nil {
			initErr = err
			return
		}
		defaultLogger = l
	})
	return initErr
}

// NewStandaloneLogger returns an independent Logger instance writing
// to its own file, for per-job log streams that must not share the
// process-wide singleton's file handle.
func NewStandaloneLogger(logDir string, level Level, logFilePrefix, tag string) (*Logger, error) {
	return newFileLogger(logDir, level, logFilePrefix, tag)
}

func newFileLogger(logDir string, level Level, logFilePrefix, tag string) (*Logger, error) {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("logger: create log dir: %w", err)
	}
	if logFilePrefix == "" {
		logFilePrefix = "nxwriter"
	}
	logFilePath := filepath.Join(logDir, fmt.Sprintf("%s.log", logFilePrefix))

	logFile, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("logger: open log file: %w", err)
	}

	return &Logger{
		fileLogger:  log.New(logFile, "", 0),
		consoleLog:  log.New(os.Stdout, "", 0),
		level:       level,
		logFile:     logFile,
		logFilePath: logFilePath,
		tag:         tag,
	}, nil
}

// Close shuts down the process-wide logger's log file.
func Close() error {
	if defaultLogger != nil && defaultLogger.logFile != nil {
		return defaultLogger.logFile.Close()
	}
	return nil
}

// Close releases this standalone logger's file handle.
func (l *Logger) Close() error {
	if l.logFile != nil {
		return l.logFile.Close()
	}
	return nil
}

// GetLogFilePath returns the process-wide logger's backing file path.
func GetLogFilePath() string {
	if defaultLogger != nil {
		return defaultLogger.logFilePath
	}
	return ""
}

func formatMessage(tag string, level Level, format string, args ...any) string {
	timestamp := time.Now().Format("2006/01/02 15:04:05")
	message := fmt.Sprintf(format, args...)
	if tag != "" {
		return fmt.Sprintf("%s [%s] [%s] %s", timestamp, levelNames[level], tag, message)
	}
	return fmt.Sprintf("%s [%s] %s", timestamp, levelNames[level], message)
}

func (l *Logger) logToFile(level Level, format string, args ...any) {
	if level < l.level || l.fileLogger == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.fileLogger.Println(formatMessage(l.tag, level, format, args...))
}

func (l *Logger) logToConsole(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	timestamp := time.Now().Format("2006/01/02 15:04:05")
	message := fmt.Sprintf(format, args...)
	if l.tag != "" {
		l.consoleLog.Printf("%s [%s] %s", timestamp, l.tag, message)
		return
	}
	l.consoleLog.Printf("%s %s", timestamp, message)
}

func (l *Logger) logToBoth(level Level, format string, args ...any) {
	l.logToFile(level, format, args...)
	l.logToConsole(format, args...)
}

// Debugf logs at DEBUG (file only).
func (l *Logger) Debugf(format string, args ...any) { l.logToFile(DEBUG, format, args...) }

// Infof logs at INFO (file only).
func (l *Logger) Infof(format string, args ...any) { l.logToFile(INFO, format, args...) }

// Warnf logs at WARN (file + console).
func (l *Logger) Warnf(format string, args ...any) { l.logToBoth(WARN, format, args...) }

// Errorf logs at ERROR (file + console).
func (l *Logger) Errorf(format string, args ...any) { l.logToBoth(ERROR, format, args...) }

// Writer returns an io.Writer over this logger's file, e.g. for
// wiring a third-party library's own logging hook.
func (l *Logger) Writer() io.Writer { return l.logFile }

func ensureDefault() *Logger {
	if defaultLogger == nil {
		// Falls back to stdout-only logging if Init was never called.
		return &Logger{consoleLog: log.New(os.Stdout, "", 0), level: INFO}
	}
	return defaultLogger
}

// Debug logs at DEBUG on the process-wide logger (file only).
func Debug(format string, args ...any) { ensureDefault().logToFile(DEBUG, format, args...) }

// Info logs at INFO on the process-wide logger (file only).
func Info(format string, args ...any) { ensureDefault().logToFile(INFO, format, args...) }

// Warn logs at WARN on the process-wide logger (file + console).
func Warn(format string, args ...any) { ensureDefault().logToBoth(WARN, format, args...) }

// Error logs at ERROR on the process-wide logger (file + console).
func Error(format string, args ...any) { ensureDefault().logToBoth(ERROR, format, args...) }

// Console prints a status line to stdout and mirrors it into the file
// at INFO, for user-facing progress output.
func Console(format string, args ...any) {
	l := ensureDefault()
	l.logToConsole(format, args...)
	l.logToFile(INFO, format, args...)
}

// Printf mimics log.Printf (file + console) at INFO.
func Printf(format string, args ...any) { ensureDefault().logToBoth(INFO, format, args...) }

// Println mimics log.Println (file + console) at INFO.
func Println(args ...any) {
	ensureDefault().logToBoth(INFO, "%s", fmt.Sprint(args...))
}

// Writer returns an io.Writer over the process-wide logger's file.
func Writer() io.Writer {
	if defaultLogger != nil {
		return defaultLogger.logFile
	}
	return os.Stdout
}
