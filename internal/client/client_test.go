package client

import (
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ericghara/no-doze/internal/condition"
	"github.com/ericghara/no-doze/internal/pqueue"
)

type fakeCondition struct {
	mu        sync.Mutex
	name      string
	period    time.Duration
	inhibits  bool
	callCount int
}

func (f *fakeCondition) Name() string          { return f.name }
func (f *fakeCondition) Period() time.Duration { return f.period }
func (f *fakeCondition) DoesInhibit() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.callCount++
	return f.inhibits
}

var _ condition.InhibitingCondition = &fakeCondition{}

func TestFindDaemonFifoRequiresExactlyOne(t *testing.T) {
	dir := t.TempDir()
	_, err := findDaemonFifo(dir)
	assert.ErrorIs(t, err, ErrNoPipe{Count: 0})

	assert.NoError(t, os.WriteFile(filepath.Join(dir, "FIFO_123"), nil, 0o644))
	path, err := findDaemonFifo(dir)
	assert.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "FIFO_123"), path)

	assert.NoError(t, os.WriteFile(filepath.Join(dir, "FIFO_456"), nil, 0o644))
	_, err = findDaemonFifo(dir)
	assert.ErrorIs(t, err, ErrNoPipe{Count: 2})
}

func TestFindDaemonFifoIgnoresUnrelatedNames(t *testing.T) {
	dir := t.TempDir()
	assert.NoError(t, os.WriteFile(filepath.Join(dir, "not-a-fifo"), nil, 0o644))
	assert.NoError(t, os.WriteFile(filepath.Join(dir, "FIFO_7"), nil, 0o644))

	path, err := findDaemonFifo(dir)
	assert.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "FIFO_7"), path)
}

func newTestLoop() *Loop {
	return &Loop{
		log:          slog.Default(),
		schedule:     pqueue.New(),
		inhibitUntil: time.Now(),
	}
}

func TestHandleScheduledChecksAdvancesDeadlineAndReschedules(t *testing.T) {
	l := newTestLoop()
	c := &fakeCondition{name: "battery", period: time.Hour, inhibits: true}
	due := time.Now().Add(-time.Second)
	l.schedule.Offer(pqueue.ScheduledCheck{Time: due, Condition: c})

	increased := l.handleScheduledChecks()
	assert.True(t, increased)
	assert.True(t, l.InhibitUntil().After(time.Now()))
	assert.Equal(t, 1, l.schedule.Len())
	assert.Equal(t, 1, c.callCount)
}

func TestHandleScheduledChecksSkipsWhenNoneDue(t *testing.T) {
	l := newTestLoop()
	c := &fakeCondition{name: "battery", period: time.Hour, inhibits: true}
	l.schedule.Offer(pqueue.ScheduledCheck{Time: time.Now().Add(time.Hour), Condition: c})

	increased := l.handleScheduledChecks()
	assert.False(t, increased)
	assert.Equal(t, 0, c.callCount)
}

func TestHandleScheduledChecksIgnoresNonInhibitingConditions(t *testing.T) {
	l := newTestLoop()
	c := &fakeCondition{name: "idle", period: time.Minute, inhibits: false}
	l.schedule.Offer(pqueue.ScheduledCheck{Time: time.Now().Add(-time.Second), Condition: c})

	increased := l.handleScheduledChecks()
	assert.False(t, increased)
	assert.Equal(t, 1, l.schedule.Len())
}

// TestHandleScheduledChecksResetsAfterLargeWallClockJump covers spec.md §8
// scenario 4 ("schedule recovery after suspend"): a check whose next
// reschedule (check.Time + period) would still land in the past — because
// the host was suspended well past that point — must be reset to
// now+period rather than left stale, and DoesInhibit must be polled
// exactly once for that overdue check.
func TestHandleScheduledChecksResetsAfterLargeWallClockJump(t *testing.T) {
	l := newTestLoop()
	period := 100 * time.Millisecond
	c := &fakeCondition{name: "battery", period: period, inhibits: true}
	due := time.Now().Add(-period * 10)
	l.schedule.Offer(pqueue.ScheduledCheck{Time: due, Condition: c})

	increased := l.handleScheduledChecks()
	assert.True(t, increased)
	assert.Equal(t, 1, c.callCount)

	rescheduled, err := l.schedule.Peek()
	assert.NoError(t, err)
	// The naive reschedule (due + period) is still long in the past; the
	// reset reschedule must instead land close to now+period.
	assert.True(t, rescheduled.Time.After(due.Add(period)))
	assert.WithinDuration(t, time.Now().Add(period), rescheduled.Time, 50*time.Millisecond)
	assert.WithinDuration(t, time.Now().Add(period), l.InhibitUntil(), 50*time.Millisecond)
}

func TestHandleUnscheduledChecksDoesNotMutateSchedule(t *testing.T) {
	l := newTestLoop()
	c := &fakeCondition{name: "battery", period: time.Minute, inhibits: true}
	l.schedule.Offer(pqueue.ScheduledCheck{Time: time.Now().Add(time.Hour), Condition: c})

	before := l.schedule.Len()
	increased := l.handleUnscheduledChecks()
	assert.True(t, increased)
	assert.Equal(t, before, l.schedule.Len())
}
