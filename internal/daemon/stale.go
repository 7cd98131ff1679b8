package daemon

import (
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// ErrAlreadyRunning is returned by sweepStale when another daemon process
// is already bound to a FIFO in baseDir.
var ErrAlreadyRunning = errors.New("daemon: another instance appears to be running")

var fifoNameRE = regexp.MustCompile(`^` + FifoPrefix + `(\d+)$`)

// sweepStale deletes stale FIFO_<pid> entries in baseDir: ones whose pid
// is gone, whose command name doesn't match myExeBase, or that belong to
// this process's own (just-starting) pid. It refuses to start (returns
// ErrAlreadyRunning) if a FIFO_<pid> matches another live process running
// the same executable. Best-effort: races are accepted.
func sweepStale(baseDir string, myPid int, myExeBase string) error {
	entries, err := os.ReadDir(baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, e := range entries {
		m := fifoNameRE.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		pid, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		full := filepath.Join(baseDir, e.Name())

		cmd, err := commandNameFor(pid)
		switch {
		case err != nil:
			// lookup failed: pid is gone.
			os.Remove(full)
		case pid == myPid:
			// we are starting up; any FIFO claiming our own pid is stale.
			os.Remove(full)
		case !strings.HasSuffix(cmd, myExeBase):
			os.Remove(full)
		default:
			return ErrAlreadyRunning
		}
	}
	return nil
}

// commandNameFor shells out to the host's process-list utility (ps),
// mirroring original_source/no_dozed.py's
// `subprocess.run(["ps","p",pid,"o","cmd","h"])`.
func commandNameFor(pid int) (string, error) {
	out, err := exec.Command("ps", "-p", strconv.Itoa(pid), "-o", "comm=").Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}
