//go:build !unix

package monitor

import "errors"

var ErrLocked = errors.New("another check is running")

// RunLock is a no-op where flock is unavailable.
type RunLock struct{}

func NewRunLock(path string) *RunLock { return &RunLock{} }

func (l *RunLock) Acquire() error { return nil }
func (l *RunLock) Release() error { return nil }
