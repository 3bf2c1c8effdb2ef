package main

import (
	"errors"
	"os"
	"path/filepath"

	"aslab_go/config"

	"github.com/rollbar/rollbar-go"
	"github.com/sirupsen/logrus"
)

// setupLogging configures the logging system
func setupLogging(cfg *config.Config) {
	logrus.SetFormatter(&logrus.JSONFormatter{})

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)

	// Log to stdout in development, to a file elsewhere
	if cfg.AppEnv != "development" && cfg.LogFile != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.LogFile), 0755); err != nil {
			logrus.WithError(err).Warn("could not create logs directory")
		}
		file, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err == nil {
			logrus.SetOutput(file)
		}
	}

	if cfg.RollbarToken != "" {
		rollbar.SetToken(cfg.RollbarToken)
		rollbar.SetEnvironment(cfg.AppEnv)
		rollbar.SetServerRoot("aslab_go")
		logrus.AddHook(newRollbarHook(rollbarReport))
	}
}

type reportFunc func(level string, err error, extras map[string]interface{})

func rollbarReport(level string, err error, extras map[string]interface{}) {
	rollbar.ErrorWithExtras(level, err, extras)
}

// rollbarHook forwards error entries to Rollbar.
type rollbarHook struct {
	report reportFunc
}

func newRollbarHook(report reportFunc) *rollbarHook {
	return &rollbarHook{report: report}
}

func (h *rollbarHook) Levels() []logrus.Level {
	return []logrus.Level{logrus.PanicLevel, logrus.FatalLevel, logrus.ErrorLevel}
}

func (h *rollbarHook) Fire(e *logrus.Entry) error {
	extras := make(map[string]interface{}, len(e.Data))
	var cause error
	for k, v := range e.Data {
		if k == logrus.ErrorKey {
			if err, ok := v.(error); ok {
				cause = err
				continue
			}
		}
		extras[k] = v
	}
	if cause == nil {
		cause = errors.New(e.Message)
	} else {
		extras["message"] = e.Message
	}

	level := rollbar.ERR
	if e.Level <= logrus.FatalLevel {
		level = rollbar.CRIT
	}
	h.report(level, cause, extras)
	return nil
}
