package monitor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"
)

// RawDumpEnv asks jmraidstatus to print the raw protocol responses.
const RawDumpEnv = "JMRAIDSTATUS_DUMP_RAW=1"

const DefaultCaptureTimeout = 30 * time.Second

var ErrCaptureTimeout = errors.New("capture timed out")

// CaptureResult is the merged stdout+stderr of one capture run.
type CaptureResult struct {
	Output   string
	ExitCode int
}

// Capturer obtains a raw status dump from the controller.
type Capturer interface {
	Capture(ctx context.Context) (CaptureResult, error)
}

// CommandCapturer runs the jmraidstatus binary against a device.
type CommandCapturer struct {
	Binary  string
	Device  string
	Sudo    bool
	Timeout time.Duration
}

func (c *CommandCapturer) command(ctx context.Context) *exec.Cmd {
	if c.Sudo {
		// sudo resets the environment, so the toggle is passed through env(1).
		return exec.CommandContext(ctx, "sudo", "env", RawDumpEnv, c.Binary, c.Device)
	}
	cmd := exec.CommandContext(ctx, c.Binary, c.Device)
	cmd.Env = append(os.Environ(), RawDumpEnv)
	return cmd
}

// Capture runs the binary with a bounded timeout. A non-zero exit status is
// not an error: the output is returned together with the exit code. A run
// killed by the timeout or by cancellation of ctx returns no output.
func (c *CommandCapturer) Capture(ctx context.Context) (CaptureResult, error) {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultCaptureTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := c.command(ctx)
	// Children that inherit the output pipe must not hold Wait open.
	cmd.WaitDelay = time.Second
	out, err := cmd.CombinedOutput()
	if cerr := ctx.Err(); cerr != nil {
		if errors.Is(cerr, context.DeadlineExceeded) {
			return CaptureResult{}, fmt.Errorf("%w after %s", ErrCaptureTimeout, timeout)
		}
		return CaptureResult{}, fmt.Errorf("capture aborted: %w", cerr)
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return CaptureResult{Output: string(out), ExitCode: exitErr.ExitCode()}, nil
		}
		return CaptureResult{}, fmt.Errorf("run %s: %w", c.Binary, err)
	}
	return CaptureResult{Output: string(out)}, nil
}
