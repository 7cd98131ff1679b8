// Package daemon implements nodozed's request multiplexer: one FIFO per
// live process, read line-delimited JSON from bound clients, and drive a
// ScheduledInhibition plus a SleepWatcher. Grounded on
// original_source/no_dozed.py's Server class, with the self-pipe signal
// trick replaced by channels (see internal/selfsignal).
package daemon

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"github.com/ericghara/no-doze/internal/config"
	"github.com/ericghara/no-doze/internal/message"
	"github.com/ericghara/no-doze/internal/scheduledinhibit"
	"github.com/ericghara/no-doze/internal/selfsignal"
	"github.com/ericghara/no-doze/internal/sleepwatcher"
)

// FifoPrefix names the per-pid pipe files this daemon creates.
const FifoPrefix = "FIFO_"

const (
	who = "No-Doze Service"
	why = "A monitored process/event is in progress."
)

// aboutToSleepGrace is how long the daemon waits after fanning out the
// about-to-sleep signal, giving clients a chance to reply with a final
// InhibitMessage before the SleepWatcher releases its delay lock.
const aboutToSleepGrace = 500 * time.Millisecond

// Loop is the daemon's single-threaded request multiplexer.
type Loop struct {
	cfg config.Daemon
	log *slog.Logger

	pid       int
	exeBase   string
	fifoPath  string
	fifoFile  *os.File
	unbindSig syscall.Signal

	sched *scheduledinhibit.ScheduledInhibition
	sleep *sleepwatcher.SleepWatcher

	// boundMu guards bound, a pid -> session-id map. The session id has no
	// wire representation; it exists purely to correlate a pid's bind,
	// inhibit, and about-to-sleep log lines across FIFO reconnects,
	// mirroring arthur404dev-heimdall-cli's per-session uuid in its idle
	// manager.
	boundMu sync.Mutex
	bound   map[int]string

	aboutToSleepCh chan struct{}
	sigFunnel      *selfsignal.Funnel
}

// New constructs a Loop; call Open before Run.
func New(cfg config.Daemon, log *slog.Logger) *Loop {
	if log == nil {
		log = slog.Default()
	}
	return &Loop{
		cfg:            cfg,
		log:            log,
		pid:            os.Getpid(),
		bound:          make(map[int]string),
		aboutToSleepCh: make(chan struct{}, 1),
		unbindSig:      syscall.Signal(cfg.UnbindSignal),
	}
}

// Open creates the FIFO (after sweeping stale ones), installs signal
// handling, and opens the ScheduledInhibition and SleepWatcher.
func (l *Loop) Open() error {
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("daemon: determine executable: %w", err)
	}
	l.exeBase = filepath.Base(exe)

	if err := os.MkdirAll(l.cfg.BaseDir, 0o755); err != nil {
		return fmt.Errorf("daemon: create base dir: %w", err)
	}
	if err := sweepStale(l.cfg.BaseDir, l.pid, l.exeBase); err != nil {
		return err
	}

	l.fifoPath = filepath.Join(l.cfg.BaseDir, FifoPrefix+strconv.Itoa(l.pid))
	perm, err := parseOctalPerm(l.cfg.FifoPermissions)
	if err != nil {
		return fmt.Errorf("daemon: parse fifo_permissions: %w", err)
	}
	if err := unix.Mkfifo(l.fifoPath, uint32(perm)); err != nil {
		return fmt.Errorf("daemon: mkfifo: %w", err)
	}
	// mkfifo's mode is subject to umask; re-chmod to the configured bits.
	if err := unix.Chmod(l.fifoPath, uint32(perm)); err != nil {
		return fmt.Errorf("daemon: chmod fifo: %w", err)
	}
	f, err := os.OpenFile(l.fifoPath, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("daemon: open fifo: %w", err)
	}
	l.fifoFile = f

	l.sigFunnel = selfsignal.New(syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP, syscall.SIGQUIT)

	l.sched = scheduledinhibit.New(who, why, scheduledinhibit.WithLogger(l.log))
	if err := l.sched.Open(); err != nil {
		return fmt.Errorf("daemon: open scheduled inhibition: %w", err)
	}

	l.sleep = sleepwatcher.New(sleepwatcher.WithLogger(l.log))
	l.sleep.BeforeSleep = l.onBeforeSleep
	if err := l.sleep.Open(); err != nil {
		return fmt.Errorf("daemon: open sleep watcher: %w", err)
	}
	go l.sleep.Run()

	l.log.Info("daemon: listening", "fifo", l.fifoPath)
	return nil
}

// onBeforeSleep runs synchronously inside SleepWatcher's delay window: it
// notifies Run's select loop to fan out the about-to-sleep signal, then
// blocks the grace period so bound clients have time to reply with a
// last InhibitMessage before the delay lock is released.
func (l *Loop) onBeforeSleep() {
	select {
	case l.aboutToSleepCh <- struct{}{}:
	default:
	}
	time.Sleep(aboutToSleepGrace)
}

// Run is the main single-threaded loop: it multiplexes FIFO reads,
// shutdown signals, and about-to-sleep notifications until told to stop.
func (l *Loop) Run() {
	lines, errs := message.ReadLines(l.fifoFile)
	for {
		select {
		case line, ok := <-lines:
			if !ok {
				lines = nil
				continue
			}
			l.handleLine(line)
		case err, ok := <-errs:
			if ok {
				l.log.Warn("daemon: fifo read error", "err", err)
			}
		case sig := <-l.sigFunnel.C():
			l.log.Info("daemon: received signal, shutting down", "signal", sig)
			return
		case <-l.aboutToSleepCh:
			l.handleAboutToSleep()
		}
	}
}

func (l *Loop) handleLine(line []byte) {
	if len(line) >= message.MaxAtomicLine {
		l.log.Warn("daemon: message at/above atomic pipe buffer size", "len", len(line))
	}
	msg, err := message.Decode(line)
	if err != nil {
		l.log.Warn("daemon: failed to decode message", "err", err, "line", string(line))
		return
	}
	switch m := msg.(type) {
	case message.BindMessage:
		l.warnOnNewerVersion(m.Version)
		l.handleBind(m)
	case message.InhibitMessage:
		l.warnOnNewerVersion(m.Version)
		l.handleInhibit(m)
	default:
		l.log.Warn("daemon: dropping message of unrecognized type")
	}
}

// warnOnNewerVersion logs if a client speaks a protocol version newer than
// this daemon understands. Per spec.md §9, a version mismatch is never a
// reason to reject the message, only to warn.
func (l *Loop) warnOnNewerVersion(v int) {
	if v > message.Version {
		l.log.Warn("daemon: client speaks a newer protocol version", "client_version", v, "daemon_version", message.Version)
	}
}

func (l *Loop) handleBind(m message.BindMessage) {
	l.boundMu.Lock()
	defer l.boundMu.Unlock()
	if sid, ok := l.bound[m.Pid]; ok {
		l.log.Info("daemon: idempotent re-bind", "pid", m.Pid, "session", sid)
		return
	}
	sid := uuid.NewString()
	l.bound[m.Pid] = sid
	l.log.Info("daemon: bound client", "pid", m.Pid, "uid", m.Uid, "session", sid)
}

func (l *Loop) handleInhibit(m message.InhibitMessage) {
	l.boundMu.Lock()
	sid, ok := l.bound[m.Pid]
	l.boundMu.Unlock()
	if !ok {
		l.log.Warn("daemon: ignoring inhibit message from unbound client", "pid", m.Pid)
		return
	}
	if l.sched.SetInhibitor(m.ExpiryTime()) {
		l.log.Debug("daemon: extended inhibition", "pid", m.Pid, "session", sid, "until", m.ExpiryTime())
	}
}

// handleAboutToSleep fans the about-to-sleep signal out to every bound
// client, retrying each delivery up to 3 times; pids whose delivery fails
// on every attempt are dropped from the bound set.
func (l *Loop) handleAboutToSleep() {
	sig := syscall.Signal(l.cfg.AboutToSleepSignal)
	l.boundMu.Lock()
	old := l.bound
	l.bound = make(map[int]string, len(old))
	l.boundMu.Unlock()

	for pid, sid := range old {
		if deliverWithRetry(pid, sig, 3) {
			l.boundMu.Lock()
			l.bound[pid] = sid
			l.boundMu.Unlock()
		} else {
			l.log.Info("daemon: dropping unresponsive bound client", "pid", pid, "session", sid)
		}
	}
}

func deliverWithRetry(pid int, sig syscall.Signal, attempts int) bool {
	for i := 0; i < attempts; i++ {
		if err := syscall.Kill(pid, sig); err == nil {
			return true
		}
	}
	return false
}

// BoundTo returns the pids currently bound to this daemon.
func (l *Loop) BoundTo() []int {
	l.boundMu.Lock()
	defer l.boundMu.Unlock()
	out := make([]int, 0, len(l.bound))
	for pid := range l.bound {
		out = append(out, pid)
	}
	return out
}

// Inhibited reports whether the ScheduledInhibition's deadline is still in
// the future. It does not query the sleep lock itself.
func (l *Loop) Inhibited() bool {
	return l.sched.InhibitUntil().After(time.Now())
}

// Close tears the daemon down: cancels the ScheduledInhibition, stops the
// SleepWatcher, closes and unlinks the FIFO, and sends the unbind signal
// to every still-bound client.
func (l *Loop) Close() {
	l.sigFunnel.Stop()
	l.sched.Close()
	l.sleep.Close()

	if l.fifoFile != nil {
		l.fifoFile.Close()
	}
	if l.fifoPath != "" {
		os.Remove(l.fifoPath)
	}

	l.boundMu.Lock()
	pids := make([]int, 0, len(l.bound))
	for pid := range l.bound {
		pids = append(pids, pid)
	}
	l.bound = make(map[int]string)
	l.boundMu.Unlock()

	for _, pid := range pids {
		if err := syscall.Kill(pid, l.unbindSig); err != nil {
			l.log.Debug("daemon: unable to deliver unbind signal", "pid", pid, "err", err)
		}
	}
}

func parseOctalPerm(s string) (os.FileMode, error) {
	v, err := strconv.ParseUint(s, 8, 32)
	if err != nil {
		return 0, err
	}
	return os.FileMode(v), nil
}
