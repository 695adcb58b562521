package core

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/consoden/dobcore/pkg/dob/types"
)

// Synchronized is the capability a participant of the startup synchronizer
// implements, per §4.8.
type Synchronized interface {
	Create() error
	Use() error
	Destroy()
}

// StartupSynchronizer provides the cross-process first-one-creates /
// all-others-use / last-one-destroys gate of §4.8. It is realized with an
// flock(2)-guarded directory (golang.org/x/sys/unix.Flock) plus a
// plain-text reference-count file, standing in for the native named
// shared-memory-plus-semaphore pair the original implementation uses; the
// exact primitive is explicitly left to the implementer by §4.8.
type StartupSynchronizer struct {
	mutex sync.Mutex
	dir   string
	log   types.Logger
}

// NewStartupSynchronizer roots synchronization state under runtimeRoot
// (typically SAFIR_RUNTIME).
func NewStartupSynchronizer(runtimeRoot string, log types.Logger) *StartupSynchronizer {
	return &StartupSynchronizer{dir: filepath.Join(runtimeRoot, "sync"), log: log}
}

func (s *StartupSynchronizer) lockPath(key string) string {
	return filepath.Join(s.dir, sanitizeKey(key)+".lock")
}

func (s *StartupSynchronizer) refcountPath(key string) string {
	return filepath.Join(s.dir, sanitizeKey(key)+".refcount")
}

func sanitizeKey(key string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, key)
}

// Start runs handle.Create() exactly once across all participants sharing
// key, then handle.Use() for every participant, and arranges for
// handle.Destroy() to run (best-effort) for the last participant that
// releases the key via the returned release function.
func (s *StartupSynchronizer) Start(key string, handle Synchronized) (release func(), err error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return nil, fmt.Errorf("startup synchronizer: failed creating %s: %w", s.dir, err)
	}

	lockFile, err := os.OpenFile(s.lockPath(key), os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("startup synchronizer: failed opening lock file: %w", err)
	}

	if err := unix.Flock(int(lockFile.Fd()), unix.LOCK_EX); err != nil {
		lockFile.Close()
		return nil, fmt.Errorf("startup synchronizer: failed acquiring flock: %w", err)
	}
	defer func() {
		unix.Flock(int(lockFile.Fd()), unix.LOCK_UN)
		lockFile.Close()
	}()

	count, readErr := readRefcount(s.refcountPath(key))
	if readErr != nil {
		count = 0
	}

	if count == 0 {
		if err := handle.Create(); err != nil {
			return nil, fmt.Errorf("startup synchronizer: Create failed for %q: %w", key, err)
		}
	}

	if err := handle.Use(); err != nil {
		return nil, fmt.Errorf("startup synchronizer: Use failed for %q: %w", key, err)
	}

	count++
	if err := writeRefcount(s.refcountPath(key), count); err != nil {
		s.log.Warnf("startup synchronizer: failed persisting refcount for %q: %v", key, err)
	}

	return func() {
		s.release(key, handle)
	}, nil
}

func (s *StartupSynchronizer) release(key string, handle Synchronized) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	lockFile, err := os.OpenFile(s.lockPath(key), os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		s.log.Warnf("startup synchronizer: failed opening lock file on release: %v", err)
		return
	}
	defer lockFile.Close()

	if err := unix.Flock(int(lockFile.Fd()), unix.LOCK_EX); err != nil {
		s.log.Warnf("startup synchronizer: failed acquiring flock on release: %v", err)
		return
	}
	defer unix.Flock(int(lockFile.Fd()), unix.LOCK_UN)

	count, err := readRefcount(s.refcountPath(key))
	if err != nil {
		count = 1
	}
	count--
	if count <= 0 {
		handle.Destroy()
		os.Remove(s.refcountPath(key))
		return
	}
	if err := writeRefcount(s.refcountPath(key), count); err != nil {
		s.log.Warnf("startup synchronizer: failed persisting refcount for %q: %v", key, err)
	}
}

func readRefcount(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func writeRefcount(path string, count int) error {
	return os.WriteFile(path, []byte(strconv.Itoa(count)), 0o644)
}
