package sleepwatcher

import "sync"

type fakeLock struct {
	mu         sync.Mutex
	inhibiting bool
	inhibits   int
	allows     int
}

func (f *fakeLock) Open() error { return nil }
func (f *fakeLock) Close()      {}
func (f *fakeLock) Inhibit() (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inhibits++
	if f.inhibiting {
		return false, nil
	}
	f.inhibiting = true
	return true, nil
}
func (f *fakeLock) Allow() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.allows++
	if !f.inhibiting {
		return false
	}
	f.inhibiting = false
	return true
}
func (f *fakeLock) IsInhibiting() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.inhibiting
}
