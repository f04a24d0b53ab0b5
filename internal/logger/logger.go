package logger

import (
	"fmt"
	"io"
	"log"
	"strings"
)

type LogLevel int

const (
	LogLevelNone LogLevel = iota
	LogLevelError
	LogLevelWarning
	LogLevelInfo
	LogLevelDebug
)

func (l LogLevel) String() string {
	switch l {
	case LogLevelNone:
		return "none"
	case LogLevelError:
		return "error"
	case LogLevelWarning:
		return "warn"
	case LogLevelInfo:
		return "info"
	case LogLevelDebug:
		return "debug"
	default:
		return fmt.Sprintf("level(%d)", int(l))
	}
}

// ParseLogLevel accepts the names printed by String as well as the numeric
// form used on the command line.
func ParseLogLevel(s string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none", "0":
		return LogLevelNone, nil
	case "error", "1":
		return LogLevelError, nil
	case "warn", "warning", "2":
		return LogLevelWarning, nil
	case "info", "3", "":
		return LogLevelInfo, nil
	case "debug", "4":
		return LogLevelDebug, nil
	}
	return LogLevelInfo, fmt.Errorf("unknown log level %q", s)
}

type Logger struct {
	logger *log.Logger
	level  LogLevel
	tag    string
}

// NewLogger wraps logger. A nil logger discards everything, which is what
// tests want.
func NewLogger(logger *log.Logger, level LogLevel) *Logger {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Logger{
		logger: logger,
		level:  level,
		tag:    "",
	}
}

// WithTag creates a new logger with a tag prefix. Tags nest: a node logger
// derived from the "fsm" logger prints as [fsm/arming].
func (l *Logger) WithTag(tag string) *Logger {
	if l.tag != "" {
		tag = l.tag + "/" + tag
	}
	return &Logger{
		logger: l.logger,
		level:  l.level,
		tag:    tag,
	}
}

// Level returns the configured level.
func (l *Logger) Level() LogLevel {
	return l.level
}

func (l *Logger) formatMessage(level string, format string) string {
	if l.tag != "" {
		if level != "" {
			return "[" + l.tag + "] " + level + " " + format
		}
		return "[" + l.tag + "] " + format
	}
	if level != "" {
		return level + " " + format
	}
	return format
}

func (l *Logger) Debugf(format string, v ...interface{}) {
	if l.level >= LogLevelDebug {
		l.logger.Printf(l.formatMessage("DEBUG:", format), v...)
	}
}

func (l *Logger) Infof(format string, v ...interface{}) {
	if l.level >= LogLevelInfo {
		l.logger.Printf(l.formatMessage("", format), v...)
	}
}

func (l *Logger) Warnf(format string, v ...interface{}) {
	if l.level >= LogLevelWarning {
		l.logger.Printf(l.formatMessage("WARN:", format), v...)
	}
}

func (l *Logger) Errorf(format string, v ...interface{}) {
	if l.level >= LogLevelError {
		l.logger.Printf(l.formatMessage("ERROR:", format), v...)
	}
}

func (l *Logger) Fatalf(format string, v ...interface{}) {
	l.logger.Fatalf(l.formatMessage("FATAL:", format), v...)
}
