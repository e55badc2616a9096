package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestDecode_RawCapture(t *testing.T) {
	p := filepath.Join(t.TempDir(), "dump.txt")
	capture := "Disk 0:\n01f0: 0f 00 2f 00 01 01 00 00 00 80 00 00 dc d4 80 34\n"
	if err := os.WriteFile(p, []byte(capture), 0o644); err != nil {
		t.Fatal(err)
	}
	out, err := runCLI(t, "decode", p)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "OPERATIONAL + REBUILDING_PHASE_1") {
		t.Fatalf("unexpected output: %q", out)
	}
	if !strings.Contains(out, "capture") {
		t.Fatalf("expected format in output: %q", out)
	}
}

func TestDecode_RejectsGarbage(t *testing.T) {
	p := filepath.Join(t.TempDir(), "junk.txt")
	if err := os.WriteFile(p, []byte("nothing here\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := runCLI(t, "decode", p); err == nil {
		t.Fatal("expected error")
	}
}

func TestStatus_EmptyStateDir(t *testing.T) {
	dir := t.TempDir()
	out, err := runCLI(t, "status", "--state-dir", dir, "--device", filepath.Join(dir, "sde"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "no state recorded yet") {
		t.Fatalf("unexpected output: %q", out)
	}
	if !strings.Contains(out, "node absent") {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestHistory_Empty(t *testing.T) {
	out, err := runCLI(t, "history", "--state-dir", t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "no history entries") {
		t.Fatalf("unexpected output: %q", out)
	}
}
