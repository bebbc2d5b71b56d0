// Package obs sets up the process-wide structured logger, generalizing the
// teacher's logging setup (JSON formatter, ISO-8601 timestamps, per-request
// WithFields calls scattered through internal/handler) into a single
// per-component logrus.Entry factory.
package obs

import (
	"os"

	"github.com/sirupsen/logrus"
)

// NewLogger configures the base logrus.Logger once at startup.
func NewLogger(level string) *logrus.Logger {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: "2006-01-02T15:04:05Z07:00",
	})
	log.SetOutput(os.Stdout)
	log.SetLevel(parseLevel(level))
	return log
}

// For component sets up the per-component field, matching the convention
// "component": "hotstore"|"admission"|"gateway"|... used throughout.
func For(log *logrus.Logger, component string) *logrus.Entry {
	return log.WithField("component", component)
}

func parseLevel(s string) logrus.Level {
	lvl, err := logrus.ParseLevel(s)
	if err != nil {
		return logrus.InfoLevel
	}
	return lvl
}
