// Package selfsignal funnels POSIX signals into a channel for a
// cooperative event loop to select on.
//
// spec.md's source reifies signals as bytes written to a self-pipe,
// because C/Python signal handlers run in an async-signal-unsafe context
// and a self-pipe write is one of the few safe things to do there. Go's
// os/signal.Notify already delivers signals through a channel from a safe
// runtime-managed goroutine, so there is no handler to keep safe and no
// pipe to write to — this package is the channel-native equivalent of the
// self-pipe, not a literal port of it.
package selfsignal

import (
	"os"
	"os/signal"
)

// Funnel delivers every signal in sigs on a buffered channel.
type Funnel struct {
	ch chan os.Signal
}

// New registers interest in sigs and returns a Funnel delivering them.
func New(sigs ...os.Signal) *Funnel {
	ch := make(chan os.Signal, 8)
	signal.Notify(ch, sigs...)
	return &Funnel{ch: ch}
}

// C returns the channel signals are delivered on.
func (f *Funnel) C() <-chan os.Signal {
	return f.ch
}

// Stop unregisters interest; the channel will receive no further signals.
func (f *Funnel) Stop() {
	signal.Stop(f.ch)
}
