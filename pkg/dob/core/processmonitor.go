package core

import (
	"sync"
	"syscall"
	"time"

	"github.com/consoden/dobcore/pkg/dob/types"
)

// ProcessMonitor polls a set of OS process identifiers and reports the ones
// that have exited, per §4.2. It owns its own Strand so StartMonitorPid and
// StopMonitorPid are safe to call from any goroutine while the internal
// monitoredPids set stays single-writer.
type ProcessMonitor struct {
	strand     *Strand
	onExit     func(pid int32)
	pollPeriod time.Duration
	log        types.Logger

	mutex         sync.Mutex
	monitoredPids map[int32]struct{}

	timer *PeriodicTimer
}

// NewProcessMonitor creates a monitor that polls every pollPeriod and
// invokes onExit (on the monitor's strand) for each pid no longer alive.
func NewProcessMonitor(onExit func(pid int32), pollPeriod time.Duration, log types.Logger) *ProcessMonitor {
	m := &ProcessMonitor{
		strand:        NewStrand(64),
		onExit:        onExit,
		pollPeriod:    pollPeriod,
		log:           log,
		monitoredPids: make(map[int32]struct{}),
	}
	m.timer = NewPeriodicTimer(m.strand, pollPeriod, m.poll, log)
	m.timer.Start()
	return m
}

// StartMonitorPid begins monitoring pid. Thread-safe.
func (m *ProcessMonitor) StartMonitorPid(pid int32) {
	m.strand.Dispatch(func() {
		m.mutex.Lock()
		defer m.mutex.Unlock()
		m.monitoredPids[pid] = struct{}{}
	})
}

// StopMonitorPid stops monitoring pid. Thread-safe.
func (m *ProcessMonitor) StopMonitorPid(pid int32) {
	m.strand.Dispatch(func() {
		m.mutex.Lock()
		defer m.mutex.Unlock()
		delete(m.monitoredPids, pid)
	})
}

func (m *ProcessMonitor) poll(status TimerStatus) {
	if status == StatusCancelled {
		return
	}

	m.mutex.Lock()
	pids := make([]int32, 0, len(m.monitoredPids))
	for pid := range m.monitoredPids {
		pids = append(pids, pid)
	}
	m.mutex.Unlock()

	for _, pid := range pids {
		alive, err := m.probe(pid)
		if err != nil {
			// Poll errors on individual pids must not abort the loop; the
			// pid is retried on the next tick.
			m.log.Warnf("failed probing pid %d, will retry: %v", pid, err)
			continue
		}
		if alive {
			continue
		}

		m.mutex.Lock()
		delete(m.monitoredPids, pid)
		m.mutex.Unlock()
		m.onExit(pid)
	}
}

// probe reports whether pid is still alive using a signal-0 probe, the
// same technique as the original ProcessMonitorLinux implementation.
func (m *ProcessMonitor) probe(pid int32) (alive bool, err error) {
	err = syscall.Kill(int(pid), 0)
	if err == nil {
		return true, nil
	}
	if err == syscall.ESRCH {
		return false, nil
	}
	if err == syscall.EPERM {
		// The process exists but we can't signal it: still alive.
		return true, nil
	}
	return false, err
}

// Stop drains the strand and guarantees no further callbacks.
func (m *ProcessMonitor) Stop() {
	m.timer.Stop()
	m.strand.Stop()
}
