// Package client implements nodoze-client's scheduling & signaling loop:
// discover the daemon's pipe, bind to it, run a priority-queue scheduler
// over registered conditions, and report inhibition deadlines back to the
// daemon. Grounded on original_source/client/no_doze_client.py.
package client

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"syscall"
	"time"

	"github.com/ericghara/no-doze/internal/condition"
	"github.com/ericghara/no-doze/internal/config"
	"github.com/ericghara/no-doze/internal/message"
	"github.com/ericghara/no-doze/internal/pqueue"
	"github.com/ericghara/no-doze/internal/selfsignal"
)

var fifoNameRE = regexp.MustCompile(`^FIFO_(\d+)$`)

// ErrNoPipe is returned by findDaemonFifo when zero or more than one
// candidate FIFO exists in baseDir.
type ErrNoPipe struct{ Count int }

func (e ErrNoPipe) Error() string {
	return fmt.Sprintf("client: expected exactly one daemon pipe, found %d", e.Count)
}

// Loop is the client's single-threaded scheduling loop.
type Loop struct {
	cfg config.Client
	log *slog.Logger

	pid, uid int
	schedule *pqueue.PriorityQueue

	mu           sync.Mutex
	inhibitUntil time.Time
	pipe         *os.File

	sigFunnel *selfsignal.Funnel
	ats       syscall.Signal
	unbind    syscall.Signal

	run bool
}

// New constructs a Loop over the given registered conditions.
func New(cfg config.Client, conditions []condition.InhibitingCondition, log *slog.Logger) *Loop {
	if log == nil {
		log = slog.Default()
	}
	l := &Loop{
		cfg:          cfg,
		log:          log,
		pid:          os.Getpid(),
		uid:          os.Getuid(),
		schedule:     pqueue.New(),
		inhibitUntil: time.Now(),
		ats:          syscall.Signal(cfg.General.AboutToSleepSignal),
		unbind:       syscall.Signal(cfg.General.UnbindSignal),
	}
	now := time.Now().Add(cfg.General.StartupDelay())
	for _, c := range conditions {
		l.schedule.Offer(pqueue.ScheduledCheck{Time: now, Condition: c})
	}
	return l
}

// Open installs signal handling. The pipe itself is opened lazily by Run.
func (l *Loop) Open() {
	l.sigFunnel = selfsignal.New(syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP, l.unbind, l.ats)
	l.run = true
}

// Close tears down signal handling and closes the pipe if open.
func (l *Loop) Close() {
	l.sigFunnel.Stop()
	l.closePipe()
}

// findDaemonFifo scans baseDir for FIFO_<digits> entries. Exactly one
// candidate must exist; any other count means "not yet" (daemon not up,
// or an ambiguous directory).
func findDaemonFifo(baseDir string) (string, error) {
	entries, err := os.ReadDir(baseDir)
	if err != nil {
		return "", err
	}
	var found string
	count := 0
	for _, e := range entries {
		if fifoNameRE.MatchString(e.Name()) {
			count++
			found = e.Name()
		}
	}
	if count != 1 {
		return "", ErrNoPipe{Count: count}
	}
	return filepath.Join(baseDir, found), nil
}

// openPipe discovers and opens the daemon's pipe write-only, then sends a
// BindMessage. Returns an error if no unambiguous pipe is found or the
// open/write fails; callers should wait retryDelay and try again.
func (l *Loop) openPipe() error {
	path, err := findDaemonFifo(l.cfg.General.BaseDir)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return err
	}
	l.mu.Lock()
	l.pipe = f
	l.mu.Unlock()

	bind := message.NewBindMessage(l.pid, l.uid)
	if _, err := message.WriteTo(f, bind); err != nil {
		l.closePipe()
		return err
	}
	l.log.Info("client: bound to daemon", "fifo", path)
	return nil
}

func (l *Loop) closePipe() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.pipe != nil {
		l.pipe.Close()
		l.pipe = nil
	}
}

func (l *Loop) hasPipe() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pipe != nil
}

func (l *Loop) sendInhibit() {
	l.mu.Lock()
	pipe := l.pipe
	until := l.inhibitUntil
	l.mu.Unlock()
	if pipe == nil {
		return
	}
	msg := message.NewInhibitMessage(l.pid, l.uid, until)
	if _, err := message.WriteTo(pipe, msg); err != nil {
		l.log.Warn("client: failed to send inhibit message", "err", err)
		l.closePipe()
	}
}

// Run is the client's cooperative main loop: it (re)opens the daemon
// pipe, sleeps until the next scheduled condition check or a signal,
// and reports any inhibition extension back to the daemon.
func (l *Loop) Run() {
	retry := l.cfg.General.RetryDelay()
	for l.run {
		if !l.hasPipe() {
			if err := l.openPipe(); err != nil {
				l.log.Info("client: daemon pipe not ready", "err", err)
			}
			l.waitOrSignal(retry)
			continue
		}

		peek, err := l.schedule.Peek()
		if err != nil {
			l.log.Warn("client: schedule unexpectedly empty")
			return
		}
		wait := time.Until(peek.Time)
		if wait < 0 {
			wait = 0
		}
		if l.waitOrSignal(wait) {
			continue
		}
		if !l.run {
			return
		}
		if l.hasPipe() && !time.Now().Before(peek.Time) {
			if l.handleScheduledChecks() {
				l.sendInhibit()
			}
		}
	}
}

// waitOrSignal blocks for at most d, dispatching any signal that arrives
// first. Returns true if the caller should loop back around (a signal was
// handled, possibly invalidating state the caller was about to act on).
func (l *Loop) waitOrSignal(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case sig := <-l.sigFunnel.C():
		l.dispatchSignal(sig)
		return true
	case <-timer.C:
		return false
	}
}

func (l *Loop) dispatchSignal(sig os.Signal) {
	switch sig {
	case syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP:
		l.log.Info("client: received shutdown signal", "signal", sig)
		l.run = false
	case l.unbind:
		l.log.Info("client: received unbind signal, will rediscover")
		l.closePipe()
	case l.ats:
		if l.handleUnscheduledChecks() {
			l.sendInhibit()
		}
	default:
		l.log.Debug("client: ignoring unrecognized signal", "signal", sig)
	}
}

// handleScheduledChecks pops every ScheduledCheck whose time has arrived,
// polls its condition, and reschedules it. Returns whether inhibitUntil
// advanced as a result.
func (l *Loop) handleScheduledChecks() bool {
	increased := false
	for {
		peek, err := l.schedule.Peek()
		if err != nil || time.Now().Before(peek.Time) {
			break
		}
		check, _ := l.schedule.Poll()
		next := check.Time.Add(check.Condition.Period())
		if next.Before(time.Now()) {
			// System was suspended or we fell behind; don't try to catch up.
			next = time.Now().Add(check.Condition.Period())
		}
		if check.Condition.DoesInhibit() {
			l.mu.Lock()
			if next.After(l.inhibitUntil) {
				l.inhibitUntil = next
				increased = true
			}
			l.mu.Unlock()
		}
		l.schedule.Offer(pqueue.ScheduledCheck{Time: next, Condition: check.Condition})
	}
	return increased
}

// handleUnscheduledChecks runs a last-gasp check over every registered
// condition without touching the schedule. Returns whether inhibitUntil
// advanced.
func (l *Loop) handleUnscheduledChecks() bool {
	increased := false
	now := time.Now()
	for _, check := range l.schedule.All() {
		if !check.Condition.DoesInhibit() {
			continue
		}
		candidate := now.Add(check.Condition.Period())
		l.mu.Lock()
		if candidate.After(l.inhibitUntil) {
			l.inhibitUntil = candidate
			increased = true
		}
		l.mu.Unlock()
	}
	return increased
}

// InhibitUntil returns the client's current locally-tracked deadline.
func (l *Loop) InhibitUntil() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.inhibitUntil
}

// Stop requests the Run loop exit at its next opportunity.
func (l *Loop) Stop() {
	l.run = false
}
