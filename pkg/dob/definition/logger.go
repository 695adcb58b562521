// Package definition holds the default, concrete implementations of the
// capabilities declared as interfaces in pkg/dob/types — the same role the
// teacher's pkg/mcast/definition package plays for mcast.
package definition

import (
	"os"

	"github.com/sirupsen/logrus"

	"github.com/consoden/dobcore/pkg/dob/types"
)

// LogrusLogger adapts a *logrus.Logger to the types.Logger interface used
// throughout dobcore. logrus has no level between Error and Panic, so Alert
// severity (§7 class 1, programmer errors) is rendered as an Error entry
// tagged with a "severity=alert" field.
type LogrusLogger struct {
	*logrus.Logger
}

// NewDefaultLogger builds a LogrusLogger writing text-formatted entries to
// stderr, with level driven by the LLL_LOGLEVEL convention: 0 logs only
// Error (and Alert/Fatal) entries, 1-3 enables Info, 4 and above enables
// Debug.
func NewDefaultLogger(lllLogLevel int) *LogrusLogger {
	base := logrus.New()
	base.SetOutput(os.Stderr)
	base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	base.SetLevel(levelFor(lllLogLevel))
	return &LogrusLogger{Logger: base}
}

func levelFor(lllLogLevel int) logrus.Level {
	switch {
	case lllLogLevel <= 0:
		return logrus.ErrorLevel
	case lllLogLevel <= 3:
		return logrus.InfoLevel
	default:
		return logrus.DebugLevel
	}
}

func (l *LogrusLogger) Debugf(format string, args ...interface{}) {
	l.Logger.Debugf(format, args...)
}

func (l *LogrusLogger) Infof(format string, args ...interface{}) {
	l.Logger.Infof(format, args...)
}

func (l *LogrusLogger) Warnf(format string, args ...interface{}) {
	l.Logger.Warnf(format, args...)
}

func (l *LogrusLogger) Errorf(format string, args ...interface{}) {
	l.Logger.Errorf(format, args...)
}

func (l *LogrusLogger) Alertf(format string, args ...interface{}) {
	l.Logger.WithField("severity", "alert").Errorf(format, args...)
}

func (l *LogrusLogger) Fatalf(format string, args ...interface{}) {
	l.Logger.WithField("severity", "alert").Fatalf(format, args...)
}

var _ types.Logger = (*LogrusLogger)(nil)
