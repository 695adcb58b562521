// Package testlog provides a types.Logger for tests that never calls
// os.Exit, so programmer-error paths (Fatalf) can be asserted with
// recover() instead of crashing the test binary.
package testlog

import (
	"fmt"
	"sync"
	"testing"
)

// TB is a types.Logger implementation backed by testing.T/B, panicking
// instead of exiting on Fatalf so fatal-error paths are testable.
type TB struct {
	t testing.TB

	mutex   sync.Mutex
	alerts  []string
}

func New(t testing.TB) *TB {
	return &TB{t: t}
}

func (l *TB) Debugf(format string, args ...interface{}) { l.t.Logf("DEBUG: "+format, args...) }
func (l *TB) Infof(format string, args ...interface{})  { l.t.Logf("INFO: "+format, args...) }
func (l *TB) Warnf(format string, args ...interface{})  { l.t.Logf("WARN: "+format, args...) }
func (l *TB) Errorf(format string, args ...interface{}) { l.t.Logf("ERROR: "+format, args...) }

func (l *TB) Alertf(format string, args ...interface{}) {
	l.mutex.Lock()
	l.alerts = append(l.alerts, fmt.Sprintf(format, args...))
	l.mutex.Unlock()
	l.t.Logf("ALERT: "+format, args...)
}

// Fatalf logs and panics, instead of calling os.Exit, so tests can recover
// around the programmer-error paths they are exercising.
func (l *TB) Fatalf(format string, args ...interface{}) {
	l.t.Logf("FATAL: "+format, args...)
	panic(fmt.Sprintf(format, args...))
}

// Alerts returns every message logged at Alert severity so far.
func (l *TB) Alerts() []string {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	return append([]string(nil), l.alerts...)
}
