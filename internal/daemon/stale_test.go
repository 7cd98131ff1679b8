package daemon

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSweepStaleMissingBaseDirIsNotAnError(t *testing.T) {
	err := sweepStale(filepath.Join(t.TempDir(), "does-not-exist"), 1, "nodozed")
	assert.NoError(t, err)
}

func TestSweepStaleRemovesOwnStartupPid(t *testing.T) {
	dir := t.TempDir()
	myPid := os.Getpid()
	stale := filepath.Join(dir, FifoPrefix+strconv.Itoa(myPid))
	assert.NoError(t, os.WriteFile(stale, nil, 0o644))

	assert.NoError(t, sweepStale(dir, myPid, "nodozed"))
	_, err := os.Stat(stale)
	assert.True(t, os.IsNotExist(err))
}

func TestSweepStaleRemovesDeadPid(t *testing.T) {
	dir := t.TempDir()
	const deadPid = 1 << 30 // astronomically unlikely to be a live pid
	stale := filepath.Join(dir, FifoPrefix+strconv.Itoa(deadPid))
	assert.NoError(t, os.WriteFile(stale, nil, 0o644))

	assert.NoError(t, sweepStale(dir, os.Getpid()+1, "nodozed"))
	_, err := os.Stat(stale)
	assert.True(t, os.IsNotExist(err))
}

func TestSweepStaleIgnoresNonMatchingNames(t *testing.T) {
	dir := t.TempDir()
	other := filepath.Join(dir, "not-a-fifo")
	assert.NoError(t, os.WriteFile(other, nil, 0o644))

	assert.NoError(t, sweepStale(dir, os.Getpid()+1, "nodozed"))
	_, err := os.Stat(other)
	assert.NoError(t, err)
}
