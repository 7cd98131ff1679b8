package pqueue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ericghara/no-doze/internal/condition"
)

type fakeCondition struct {
	name   string
	period time.Duration
}

func (f fakeCondition) Name() string          { return f.name }
func (f fakeCondition) Period() time.Duration { return f.period }
func (f fakeCondition) DoesInhibit() bool     { return false }

var _ condition.InhibitingCondition = fakeCondition{}

func TestPeekIsMinimum(t *testing.T) {
	q := New()
	now := time.Now()
	times := []time.Duration{5 * time.Second, 1 * time.Second, 3 * time.Second, 2 * time.Second}
	for i, d := range times {
		q.Offer(ScheduledCheck{Time: now.Add(d), Condition: fakeCondition{name: string(rune('a' + i))}})
	}

	peek, err := q.Peek()
	assert.NoError(t, err)
	assert.Equal(t, now.Add(1*time.Second), peek.Time)
	assert.Equal(t, 4, q.Len())
}

func TestPollOrdering(t *testing.T) {
	q := New()
	now := time.Now()
	offsets := []time.Duration{9, 1, 7, 3, 5}
	for i, d := range offsets {
		q.Offer(ScheduledCheck{Time: now.Add(d * time.Second), Condition: fakeCondition{name: string(rune('a' + i))}})
	}

	var lastTime time.Time
	for !q.IsEmpty() {
		check, err := q.Poll()
		assert.NoError(t, err)
		assert.True(t, check.Time.After(lastTime) || check.Time.Equal(lastTime))
		lastTime = check.Time
	}
}

func TestPollPeekOnEmpty(t *testing.T) {
	q := New()
	_, err := q.Poll()
	assert.ErrorIs(t, err, ErrEmpty)
	_, err = q.Peek()
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestScheduleConservation(t *testing.T) {
	q := New()
	now := time.Now()
	n := 10
	for i := 0; i < n; i++ {
		q.Offer(ScheduledCheck{Time: now.Add(time.Duration(i) * time.Second), Condition: fakeCondition{name: string(rune('a' + i))}})
	}
	for i := 0; i < n; i++ {
		check, err := q.Poll()
		assert.NoError(t, err)
		q.Offer(ScheduledCheck{Time: check.Time.Add(time.Minute), Condition: check.Condition})
	}
	assert.Equal(t, n, q.Len())
}
