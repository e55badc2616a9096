package monitor

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestOpenStepLog_AppendsAndEchoes(t *testing.T) {
	p := filepath.Join(t.TempDir(), "logs", "monitor.log")
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte("earlier run\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	var echo bytes.Buffer
	logger, closer, err := OpenStepLog(p, &echo)
	if err != nil {
		t.Fatal(err)
	}
	logger.Printf("Current state: %s", "DEGRADED + IDLE")
	if err := closer.Close(); err != nil {
		t.Fatal(err)
	}

	b, err := os.ReadFile(p)
	if err != nil {
		t.Fatal(err)
	}
	text := string(b)
	if !strings.HasPrefix(text, "earlier run\n") {
		t.Fatalf("expected previous content kept, got %q", text)
	}
	if !strings.Contains(text, "Current state: DEGRADED + IDLE\n") {
		t.Fatalf("expected step line in file, got %q", text)
	}
	if !strings.Contains(echo.String(), "Current state: DEGRADED + IDLE") {
		t.Fatalf("expected echo, got %q", echo.String())
	}
}
