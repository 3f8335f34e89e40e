// Package logger provides leveled structured logging backed by logrus.
package logger

import (
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Fields is a set of structured key/value pairs attached to a log entry.
type Fields = logrus.Fields

var defaultLogger = newLogger()

func newLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetLevel(logrus.InfoLevel)
	return l
}

// Init configures the default logger with the specified level and format.
// Unknown levels fall back to info; format is "json" or "text".
func Init(level string, format string) {
	lvl, err := logrus.ParseLevel(strings.ToLower(level))
	if err != nil {
		lvl = logrus.InfoLevel
	}
	defaultLogger.SetLevel(lvl)

	if strings.ToLower(format) == "text" {
		defaultLogger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05.000000",
		})
		return
	}
	defaultLogger.SetFormatter(&logrus.JSONFormatter{})
}

// WithFields returns an entry carrying the given structured context.
func WithFields(fields Fields) *logrus.Entry {
	return defaultLogger.WithFields(fields)
}

// AddHook registers a hook on the default logger.
func AddHook(hook logrus.Hook) {
	defaultLogger.AddHook(hook)
}

func Debug(format string, args ...interface{}) {
	defaultLogger.Debugf(format, args...)
}

func Info(format string, args ...interface{}) {
	defaultLogger.Infof(format, args...)
}

func Warn(format string, args ...interface{}) {
	defaultLogger.Warnf(format, args...)
}

func Error(format string, args ...interface{}) {
	defaultLogger.Errorf(format, args...)
}

func Fatal(format string, args ...interface{}) {
	defaultLogger.Fatalf(format, args...)
}
