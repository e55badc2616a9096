package monitor

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"
)

// shellCapturer runs script through sh in place of jmraidstatus: the script
// path is passed where the device node would be.
func shellCapturer(t *testing.T, script string, timeout time.Duration) *CommandCapturer {
	t.Helper()
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh not available")
	}
	p := filepath.Join(t.TempDir(), "fake-jmraidstatus.sh")
	if err := os.WriteFile(p, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	return &CommandCapturer{Binary: sh, Device: p, Timeout: timeout}
}

func TestCommandCapturer_MergesOutputAndPassesRawToggle(t *testing.T) {
	c := shellCapturer(t, "echo \"raw=$JMRAIDSTATUS_DUMP_RAW\"\necho oops >&2\n", 5*time.Second)
	res, err := c.Capture(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.ExitCode != 0 {
		t.Fatalf("exit code: %d", res.ExitCode)
	}
	if res.Output != "raw=1\noops\n" {
		t.Fatalf("unexpected output: %q", res.Output)
	}
}

func TestCommandCapturer_NonZeroExitIsNotAnError(t *testing.T) {
	c := shellCapturer(t, "echo '01f0: 07 00 2f 00 00 00 00 00 00 80 00 00'\nexit 3\n", 5*time.Second)
	res, err := c.Capture(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.ExitCode != 3 {
		t.Fatalf("expected exit code 3, got %d", res.ExitCode)
	}
	if _, ok := ExtractFlags(res.Output); !ok {
		t.Fatalf("expected output to be kept: %q", res.Output)
	}
}

func TestCommandCapturer_Timeout(t *testing.T) {
	c := shellCapturer(t, "exec sleep 5\n", 100*time.Millisecond)
	start := time.Now()
	_, err := c.Capture(context.Background())
	if !errors.Is(err, ErrCaptureTimeout) {
		t.Fatalf("expected ErrCaptureTimeout, got %v", err)
	}
	if time.Since(start) > 4*time.Second {
		t.Fatalf("capture did not stop at the timeout")
	}
}

func TestCommandCapturer_ParentCancelAborts(t *testing.T) {
	c := shellCapturer(t, "echo partial\nexec sleep 5\n", 5*time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(100*time.Millisecond, cancel)

	res, err := c.Capture(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if errors.Is(err, ErrCaptureTimeout) {
		t.Fatalf("cancellation reported as timeout: %v", err)
	}
	if res.Output != "" || res.ExitCode != 0 {
		t.Fatalf("expected no capture, got %+v", res)
	}
}

func TestCommandCapturer_MissingBinary(t *testing.T) {
	c := &CommandCapturer{Binary: filepath.Join(t.TempDir(), "nope"), Device: "/dev/null", Timeout: time.Second}
	if _, err := c.Capture(context.Background()); err == nil || errors.Is(err, ErrCaptureTimeout) {
		t.Fatalf("expected exec error, got %v", err)
	}
}

func TestCommandCapturer_SudoCommandLine(t *testing.T) {
	c := &CommandCapturer{Binary: "/usr/local/bin/jmraidstatus", Device: "/dev/sde", Sudo: true}
	cmd := c.command(context.Background())
	want := []string{"sudo", "env", RawDumpEnv, "/usr/local/bin/jmraidstatus", "/dev/sde"}
	if len(cmd.Args) != len(want) {
		t.Fatalf("args: %q", cmd.Args)
	}
	for i := range want {
		if cmd.Args[i] != want[i] {
			t.Fatalf("args: %q", cmd.Args)
		}
	}
}
