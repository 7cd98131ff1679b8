// Package sleeplock is a thin façade over the host login manager's
// inhibit-lock mechanism (systemd-logind's org.freedesktop.login1.Manager
// Inhibit/fd contract), grounded on coltwillcox-inhibitor's use of
// github.com/coreos/go-systemd/login1.
package sleeplock

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/coreos/go-systemd/login1"
)

// Mode is the kind of inhibit lock requested from the login manager.
type Mode string

const (
	// ModeBlock is an unbounded-duration lock; requires elevated privileges.
	ModeBlock Mode = "block"
	// ModeDelay is a lock bounded to a few seconds; usable unprivileged.
	ModeDelay Mode = "delay"
)

// ErrNotOpened is returned by operations performed before Open or after Close.
var ErrNotOpened = errors.New("sleeplock: not opened")

// ErrBusProtocol wraps an unexpected reply from the login manager.
var ErrBusProtocol = errors.New("sleeplock: bus protocol error")

// Locker is the interface ScheduledInhibition and SleepWatcher actually
// depend on, letting tests substitute a fake in place of a real bus
// connection.
type Locker interface {
	Open() error
	Close()
	Inhibit() (bool, error)
	Allow() bool
	IsInhibiting() bool
}

// SleepLock holds at most one inhibit lock for a given (who, why, mode)
// triple. Every method takes the SleepLock's own mutex, so it is safe for
// concurrent use.
type SleepLock struct {
	who, why string
	mode     Mode
	log      *slog.Logger

	mu   sync.Mutex
	conn *login1.Conn
	fd   *os.File
}

// New returns a SleepLock that is not yet connected to the login manager.
func New(who, why string, mode Mode) *SleepLock {
	return &SleepLock{who: who, why: why, mode: mode, log: slog.Default()}
}

// Open connects to the login manager. It must be called before Inhibit or
// Allow.
func (s *SleepLock) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		return nil
	}
	conn, err := login1.New()
	if err != nil {
		return fmt.Errorf("sleeplock: login1.New: %w", err)
	}
	s.conn = conn
	return nil
}

// Close releases any held lock and disconnects from the login manager.
func (s *SleepLock) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLockedFd()
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
}

// Inhibit acquires the lock if it is not already held. Returns true if a
// transition occurred (false if the lock was already held, a no-op).
func (s *SleepLock) Inhibit() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return false, ErrNotOpened
	}
	if s.fd != nil {
		return false, nil
	}
	fd, err := s.conn.Inhibit(string(modeWhat), s.who, s.why, string(s.mode))
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrBusProtocol, err)
	}
	s.fd = fd
	return true, nil
}

// modeWhat is always "sleep" for this façade; it is a constant rather
// than a parameter because no-doze only ever inhibits sleep, never idle
// or shutdown.
const modeWhat = Mode("sleep")

// Allow releases the lock if held. Returns true if a transition occurred.
// Close errors are logged, not surfaced: once Allow
// returns, the lock is considered released regardless.
func (s *SleepLock) Allow() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fd == nil {
		return false
	}
	s.closeLockedFd()
	return true
}

// closeLockedFd closes s.fd if set. Caller must hold s.mu. The close
// error is logged, never surfaced: once this returns the lock is
// considered released either way.
func (s *SleepLock) closeLockedFd() {
	if s.fd == nil {
		return
	}
	if err := s.fd.Close(); err != nil {
		s.log.Warn("sleeplock: error closing inhibit fd", "who", s.who, "err", err)
	}
	s.fd = nil
}

// IsInhibiting reports whether this SleepLock currently holds a lock.
func (s *SleepLock) IsInhibiting() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fd != nil
}
