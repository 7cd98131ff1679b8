// Package sleepwatcher listens for the login manager's PrepareForSleep
// broadcast and runs a before-sleep/awake callback pair around it, holding
// a short delay-mode SleepLock so the host waits for the callbacks.
// Grounded on original_source/server/sleep_watcher.py, translated from
// jeepney's blocking match-rule API to godbus/dbus/v5's
// AddMatchSignal/Signal(chan) idiom also used (with the pre-v5 fork) by
// unixdj-ussssr/systemd.go.
package sleepwatcher

import (
	"log/slog"

	"github.com/godbus/dbus/v5"

	"github.com/ericghara/no-doze/internal/sleeplock"
)

const (
	loginManagerIface = "org.freedesktop.login1.Manager"
	loginManagerPath  = "/org/freedesktop/login1"
	prepareForSleep   = "PrepareForSleep"

	who = "no-doze sleep watcher"
	why = "last gasp check"
)

// SleepWatcher subscribes to PrepareForSleep and fires BeforeSleep
// synchronously (while the delay lock still blocks suspend) then Awake
// once the host is back up.
type SleepWatcher struct {
	log *slog.Logger

	// BeforeSleep is called synchronously when preparing==true, before
	// the delay lock is released. Must complete in well under 5s.
	BeforeSleep func()
	// Awake is called after the delay lock is reacquired, on preparing==false.
	Awake func()

	delay sleeplock.Locker
	conn  *dbus.Conn
	sigCh chan *dbus.Signal
	done  chan struct{}
}

// Option configures a SleepWatcher at construction time.
type Option func(*SleepWatcher)

// WithLogger overrides the default logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *SleepWatcher) { s.log = l }
}

// WithLock substitutes the delay SleepLock, letting tests inject a fake
// in place of a real login-manager connection.
func WithLock(l sleeplock.Locker) Option {
	return func(s *SleepWatcher) { s.delay = l }
}

// New returns an unopened SleepWatcher.
func New(opts ...Option) *SleepWatcher {
	s := &SleepWatcher{
		log:   slog.Default(),
		delay: sleeplock.New(who, why, sleeplock.ModeDelay),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open connects to the system bus, subscribes to PrepareForSleep, and
// takes the initial delay lock.
func (s *SleepWatcher) Open() error {
	if err := s.delay.Open(); err != nil {
		return err
	}
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return err
	}
	if err := conn.AddMatchSignal(
		dbus.WithMatchInterface(loginManagerIface),
		dbus.WithMatchMember(prepareForSleep),
		dbus.WithMatchObjectPath(dbus.ObjectPath(loginManagerPath)),
	); err != nil {
		conn.Close()
		return err
	}

	s.conn = conn
	s.sigCh = make(chan *dbus.Signal, 8)
	s.done = make(chan struct{})
	conn.Signal(s.sigCh)

	if _, err := s.delay.Inhibit(); err != nil {
		s.log.Error("sleepwatcher: failed to acquire delay lock", "err", err)
	}
	return nil
}

// Run blocks, dispatching PrepareForSleep signals, until Close is called.
func (s *SleepWatcher) Run() {
	if s.BeforeSleep == nil && s.Awake == nil {
		s.log.Warn("sleepwatcher: running without any callbacks")
	}
	for {
		select {
		case sig, ok := <-s.sigCh:
			if !ok {
				return
			}
			s.dispatch(sig)
		case <-s.done:
			return
		}
	}
}

func (s *SleepWatcher) dispatch(sig *dbus.Signal) {
	if sig.Name != loginManagerIface+"."+prepareForSleep || len(sig.Body) < 1 {
		return
	}
	preparing, ok := sig.Body[0].(bool)
	if !ok {
		return
	}
	if preparing {
		s.log.Debug("sleepwatcher: caught PrepareForSleep")
		if s.BeforeSleep != nil {
			s.BeforeSleep()
		}
		s.delay.Allow()
	} else {
		s.log.Debug("sleepwatcher: caught awake signal")
		if _, err := s.delay.Inhibit(); err != nil {
			s.log.Error("sleepwatcher: failed to reacquire delay lock", "err", err)
		}
		if s.Awake != nil {
			s.Awake()
		}
	}
}

// Close stops Run, releases the delay lock, and closes the bus connection.
func (s *SleepWatcher) Close() {
	if s.done != nil {
		close(s.done)
	}
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	s.delay.Close()
}
