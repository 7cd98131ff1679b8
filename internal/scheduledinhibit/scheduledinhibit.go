// Package scheduledinhibit owns a single SleepLock plus a deadline, and
// auto-releases the lock when the deadline passes. Grounded on
// original_source/server/scheduled_inhibition.py, translated from
// threading.Timer/Lock to time.Timer/sync.Mutex; the mutex-guarded shared
// state and background-timer shape mirrors coltwillcox-inhibitor's
// inhibitBridge (locks map guarded by mtx, reconciled by a goroutine).
package scheduledinhibit

import (
	"log/slog"
	"sync"
	"time"

	"github.com/ericghara/no-doze/internal/sleeplock"
)

// ScheduledInhibition holds inhibitUntil, a SleepLock, and the single
// pending release timer for it. Zero value is not usable; call Open.
type ScheduledInhibition struct {
	log *slog.Logger

	mu     sync.Mutex
	lock   sleeplock.Locker
	until  time.Time
	timer  *time.Timer
	opened bool
}

// Option configures a ScheduledInhibition at construction time.
type Option func(*ScheduledInhibition)

// WithLogger overrides the default logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *ScheduledInhibition) { s.log = l }
}

// WithLock substitutes the SleepLock, letting tests inject a fake in
// place of a real login-manager connection.
func WithLock(l sleeplock.Locker) Option {
	return func(s *ScheduledInhibition) { s.lock = l }
}

// New returns an unopened ScheduledInhibition that will inhibit via a
// block-mode SleepLock identified by (who, why).
func New(who, why string, opts ...Option) *ScheduledInhibition {
	s := &ScheduledInhibition{
		log:  slog.Default(),
		lock: sleeplock.New(who, why, sleeplock.ModeBlock),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open connects the underlying SleepLock and arms a dummy, already-fired
// timer so Close always has something to cancel.
func (s *ScheduledInhibition) Open() error {
	if err := s.lock.Open(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.until = time.Now()
	s.timer = time.NewTimer(0)
	s.opened = true
	return nil
}

// Close cancels the pending release timer, releases the lock, and nils
// internal state under the mutex so any in-flight timer callback observes
// shutdown and bails out (invariant: timer callbacks recheck expected ==
// inhibitUntil before acting).
func (s *ScheduledInhibition) Close() {
	s.mu.Lock()
	timer := s.timer
	s.mu.Unlock()
	if timer != nil {
		timer.Stop()
	}
	s.lock.Close()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.opened = false
	s.timer = nil
	s.until = time.Time{}
}

// InhibitUntil returns the current deadline.
func (s *ScheduledInhibition) InhibitUntil() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.until
}

// SetInhibitor requests inhibition until the given time. Returns true iff
// a transition occurred (new inhibition or a forward extension). Equal or
// earlier deadlines, and any request once closed, are no-ops.
func (s *ScheduledInhibition) SetInhibitor(until time.Time) bool {
	// Fast path: a brief locked read of the deadline, with the check
	// repeated in the critical section below.
	now := time.Now()
	s.mu.Lock()
	cur := s.until
	s.mu.Unlock()
	if maxTime(now, cur).After(until) || maxTime(now, cur).Equal(until) {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.opened {
		s.log.Warn("scheduledinhibit: refusing to set inhibitor, not opened")
		return false
	}
	now = time.Now()
	if maxTime(now, s.until).After(until) || maxTime(now, s.until).Equal(until) {
		return false
	}

	s.timer.Stop()
	s.until = until
	if !s.lock.IsInhibiting() {
		if _, err := s.lock.Inhibit(); err != nil {
			s.log.Error("scheduledinhibit: failed to acquire sleep lock", "err", err)
		}
	}
	expected := s.until
	s.timer = time.AfterFunc(time.Until(expected), func() {
		s.UnsetInhibitor(expected, false)
	})
	return true
}

// UnsetInhibitor releases the SleepLock if force is set or if expected
// still equals the current deadline (i.e. no later extension has taken
// ownership of the lock since this timer was scheduled). Returns true iff
// a transition (held -> released) occurred.
func (s *ScheduledInhibition) UnsetInhibitor(expected time.Time, force bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.opened {
		s.log.Warn("scheduledinhibit: refusing to unset inhibitor, not opened")
		return false
	}
	if !force && !expected.Equal(s.until) {
		return false
	}
	return s.lock.Allow()
}

func maxTime(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}
