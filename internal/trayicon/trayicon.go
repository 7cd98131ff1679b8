// Package trayicon is optional, user-facing chrome around ClientLoop: a
// systray status icon plus a desktop notification on transition. It is
// never part of the core event loop and must never block it — the
// teacher (coltwillcox-inhibitor) pulls in both fyne.io/systray and
// github.com/esiqveland/notify without ever calling the former directly
// and uses the latter purely for desktop popups, which is exactly the
// role this package gives them here.
package trayicon

import (
	"fmt"
	"log/slog"
	"time"

	"fyne.io/systray"
	"github.com/esiqveland/notify"
	"github.com/godbus/dbus/v5"
)

// InhibitSource is the subset of client.Loop trayicon depends on.
type InhibitSource interface {
	InhibitUntil() time.Time
}

// Icon renders a systray icon and an occasional desktop notification
// reflecting the client's current inhibition state.
type Icon struct {
	src InhibitSource
	log *slog.Logger

	pollEvery time.Duration
}

// New returns an Icon watching src.
func New(src InhibitSource, log *slog.Logger) *Icon {
	if log == nil {
		log = slog.Default()
	}
	return &Icon{src: src, log: log, pollEvery: 2 * time.Second}
}

// Start launches the tray icon on its own goroutine and returns a stop
// function. Start never blocks the caller.
func (ic *Icon) Start() (stop func()) {
	ready := make(chan struct{})
	go systray.Run(func() {
		systray.SetTitle("no-doze")
		systray.SetTooltip("no-doze: idle")
		close(ready)
		ic.watch()
	}, func() {})
	return func() {
		<-readyOrNow(ready)
		systray.Quit()
	}
}

func readyOrNow(ready chan struct{}) <-chan struct{} {
	select {
	case <-ready:
	default:
		// Quit is a no-op if systray never finished starting; return a
		// channel that's already closed so the caller doesn't block.
		done := make(chan struct{})
		close(done)
		return done
	}
	return ready
}

func (ic *Icon) watch() {
	notifier, nerr := newNotifier()
	if nerr != nil {
		ic.log.Debug("trayicon: desktop notifications unavailable", "err", nerr)
	}

	ticker := time.NewTicker(ic.pollEvery)
	defer ticker.Stop()

	wasInhibiting := false
	for range ticker.C {
		until := ic.src.InhibitUntil()
		inhibiting := until.After(time.Now())

		if inhibiting {
			systray.SetTooltip(fmt.Sprintf("no-doze: awake until %s", until.Format(time.Kitchen)))
		} else {
			systray.SetTooltip("no-doze: idle")
		}

		if notifier != nil && inhibiting != wasInhibiting {
			ic.notifyTransition(notifier, inhibiting, until)
		}
		wasInhibiting = inhibiting
	}
}

func (ic *Icon) notifyTransition(n notify.Notifier, inhibiting bool, until time.Time) {
	body := "Sleep inhibition ended."
	if inhibiting {
		body = fmt.Sprintf("Sleep inhibited until %s.", until.Format(time.Kitchen))
	}
	_, err := n.SendNotification(notify.Notification{
		AppName:       "no-doze",
		Summary:       "no-doze",
		Body:          body,
		ExpireTimeout: 3000, // milliseconds
	})
	if err != nil {
		ic.log.Debug("trayicon: failed to send notification", "err", err)
	}
}

func newNotifier() (notify.Notifier, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, err
	}
	return notify.New(conn)
}
