// Package logger builds the process-wide logrus logger from node config.
package logger

import (
	"fmt"
	"io"
	"io/ioutil"
	"time"

	"github.com/evalphobia/logrus_sentry"
	"github.com/sirupsen/logrus"
)

type Config struct {
	// Verbosity is 0=fatal, 1=error, 2=warn, 3=info, 4=debug, 5=trace.
	Verbosity int
	// Format is "text" or "json".
	Format string
	Color  bool
	// SentryDSN enables error reporting when set.
	SentryDSN string
}

func DefaultConfig() Config {
	return Config{Verbosity: 3, Format: "text", Color: true}
}

var levels = []logrus.Level{
	logrus.FatalLevel,
	logrus.ErrorLevel,
	logrus.WarnLevel,
	logrus.InfoLevel,
	logrus.DebugLevel,
	logrus.TraceLevel,
}

// Level maps a verbosity to a logrus level, clamping out-of-range values.
func Level(verbosity int) logrus.Level {
	if verbosity < 0 {
		verbosity = 0
	}
	if verbosity >= len(levels) {
		verbosity = len(levels) - 1
	}
	return levels[verbosity]
}

// New returns a logger writing to out.
func New(cfg Config, out io.Writer) (*logrus.Logger, error) {
	log := logrus.New()
	log.SetOutput(out)
	log.SetLevel(Level(cfg.Verbosity))

	switch cfg.Format {
	case "", "text":
		log.SetFormatter(&logrus.TextFormatter{
			ForceColors:     cfg.Color,
			DisableColors:   !cfg.Color,
			FullTimestamp:   true,
			TimestampFormat: "01-02|15:04:05.000",
		})
	case "json":
		log.SetFormatter(&logrus.JSONFormatter{})
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}

	if cfg.SentryDSN != "" {
		hook, err := logrus_sentry.NewSentryHook(cfg.SentryDSN, []logrus.Level{
			logrus.PanicLevel,
			logrus.FatalLevel,
			logrus.ErrorLevel,
		})
		if err != nil {
			return nil, fmt.Errorf("sentry hook: %w", err)
		}
		hook.Timeout = 5 * time.Second
		hook.StacktraceConfiguration.Enable = true
		log.AddHook(hook)
	}
	return log, nil
}

// Discard returns a logger that drops everything. Used by tests and as the
// fallback when a component is built without a logger.
func Discard() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(ioutil.Discard)
	return log
}

// Or returns l, or a discarding logger when l is nil.
func Or(l logrus.FieldLogger) logrus.FieldLogger {
	if l == nil {
		return Discard()
	}
	return l
}
