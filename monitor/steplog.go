package monitor

import (
	"io"
	"log"
	"os"
	"path/filepath"
)

// OpenStepLog opens the append-only monitor log and returns a logger that
// writes every line to it and to echo (stderr when nil).
func OpenStepLog(path string, echo io.Writer) (*log.Logger, io.Closer, error) {
	if echo == nil {
		echo = os.Stderr
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, nil, err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, err
	}
	return log.New(io.MultiWriter(f, echo), "", log.LstdFlags), f, nil
}
