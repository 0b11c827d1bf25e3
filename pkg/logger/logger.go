package logger

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

const service = "pick-research"

// InitLogger builds the process logger. An empty level falls back to
// LOG_LEVEL, then debug in development and info elsewhere. Development gets
// colored text unless LOG_FORMAT=json; everything else logs JSON.
func InitLogger(logLevel string, isDevelopment bool) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stdout)
	log.SetLevel(parseLevel(log, logLevel, isDevelopment))

	if isDevelopment && !strings.EqualFold(os.Getenv("LOG_FORMAT"), "json") {
		log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
			ForceColors:     true,
		})
	} else {
		log.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
		})
	}

	return log
}

func parseLevel(log *logrus.Logger, logLevel string, isDevelopment bool) logrus.Level {
	if logLevel == "" {
		logLevel = os.Getenv("LOG_LEVEL")
	}
	if logLevel == "" {
		if isDevelopment {
			return logrus.DebugLevel
		}
		return logrus.InfoLevel
	}
	level, err := logrus.ParseLevel(strings.ToLower(logLevel))
	if err != nil {
		log.WithField("invalid_level", logLevel).Warn("Invalid LOG_LEVEL, using INFO")
		return logrus.InfoLevel
	}
	return level
}

// ForRun scopes a logger to one pipeline run. Empty values are left out so
// scheduled and CLI runs log the same shape.
func ForRun(log *logrus.Logger, runID, generator, date, sport string) *logrus.Entry {
	fields := logrus.Fields{
		"service": service,
		"run_id":  runID,
	}
	if generator != "" {
		fields["generator"] = generator
	}
	if date != "" {
		fields["date"] = date
	}
	if sport != "" {
		fields["sport"] = sport
	}
	return log.WithFields(fields)
}

// Component tags log lines from a long-lived subsystem such as the gorm
// logger or the scheduler.
func Component(log *logrus.Logger, name string) *logrus.Entry {
	return log.WithFields(logrus.Fields{
		"service":   service,
		"component": name,
	})
}

// Discard returns a logger that writes nowhere, for tests and dry runs.
func Discard() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	log.SetLevel(logrus.PanicLevel)
	return log
}
