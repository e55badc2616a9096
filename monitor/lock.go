//go:build unix

package monitor

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

var ErrLocked = errors.New("another check is running")

// RunLock is an advisory flock held for the duration of one check. The
// lock file carries the holder's PID for diagnosis.
type RunLock struct {
	path string
	f    *os.File
}

func NewRunLock(path string) *RunLock {
	return &RunLock{path: path}
}

// Acquire takes the lock without blocking. It returns an error wrapping
// ErrLocked when another process holds it.
func (l *RunLock) Acquire() error {
	if l.f != nil {
		return nil
	}
	f, err := os.OpenFile(l.path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("open lock file: %w", err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		holder := readPID(f)
		f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			if holder > 0 {
				return fmt.Errorf("%w (pid %d)", ErrLocked, holder)
			}
			return ErrLocked
		}
		return fmt.Errorf("flock %s: %w", l.path, err)
	}
	_ = f.Truncate(0)
	_, _ = f.WriteAt([]byte(strconv.Itoa(os.Getpid())+"\n"), 0)
	l.f = f
	return nil
}

// Release drops the lock. Safe to call when not held.
func (l *RunLock) Release() error {
	if l.f == nil {
		return nil
	}
	f := l.f
	l.f = nil
	_ = f.Truncate(0)
	_ = unix.Flock(int(f.Fd()), unix.LOCK_UN)
	return f.Close()
}

func readPID(f *os.File) int {
	buf := make([]byte, 32)
	n, _ := f.ReadAt(buf, 0)
	pid, err := strconv.Atoi(strings.TrimSpace(string(buf[:n])))
	if err != nil {
		return 0
	}
	return pid
}
