package selfsignal

import (
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFunnelDeliversRegisteredSignal(t *testing.T) {
	f := New(syscall.SIGUSR1)
	defer f.Stop()

	assert.NoError(t, syscall.Kill(os.Getpid(), syscall.SIGUSR1))

	select {
	case sig := <-f.C():
		assert.Equal(t, syscall.SIGUSR1, sig)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for signal")
	}
}

func TestStopUnregistersInterest(t *testing.T) {
	f := New(syscall.SIGUSR2)
	f.Stop()

	assert.NoError(t, syscall.Kill(os.Getpid(), syscall.SIGUSR2))

	select {
	case sig := <-f.C():
		t.Fatalf("unexpected signal delivered after Stop: %v", sig)
	case <-time.After(100 * time.Millisecond):
	}
}
