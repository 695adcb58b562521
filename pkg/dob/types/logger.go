package types

// Logger is the logging capability every component in dobcore is handed
// explicitly at construction time, instead of reaching for a package-level
// singleton. Severities follow §7 of the specification: Debug/Info/Warn/Error
// cover peer and environment conditions, Alert covers programmer errors that
// are about to abort the process, Fatal performs the abort.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})

	// Alertf logs a programmer-error condition. Callers that log at this
	// level are expected to abort immediately afterwards.
	Alertf(format string, args ...interface{})

	// Fatalf logs at Alert severity and then terminates the process.
	Fatalf(format string, args ...interface{})
}
