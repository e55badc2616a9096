package monitor

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_FullFile(t *testing.T) {
	p := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(p, []byte(`
device: /dev/sdf
binary: /opt/jm/jmraidstatus
sudo: false
capture_timeout: 45s
state_dir: /srv/raid
email_env: /srv/raid/.env
debug: true
syslog:
  addr: 127.0.0.1:1514
  service: nas
archive:
  folder: /srv/raid/archive
metrics:
  textfile: /var/lib/node_exporter/raid.prom
`), 0o644))

	cfg, err := LoadConfig(p)
	require.NoError(t, err)
	cfg.Normalize()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 45*time.Second, cfg.CaptureTimeout)
	assert.Equal(t, "/srv/raid/monitor.log", cfg.LogFile)
	assert.Equal(t, "checks_", cfg.Archive.Prefix)

	rc := cfg.RunnerConfig()
	assert.Equal(t, "/dev/sdf", rc.Device)
	assert.False(t, rc.Sudo)
	assert.True(t, rc.Debug)
	assert.Equal(t, "/srv/raid/raid-monitor.lock", rc.LockFile)
	assert.Equal(t, "nas", rc.SyslogService)
	assert.True(t, rc.Archive.Enabled())
	assert.Equal(t, "/var/lib/node_exporter/raid.prom", rc.MetricsTextfile)
}

func TestFileConfig_Defaults(t *testing.T) {
	cfg := &FileConfig{}
	cfg.Normalize()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, DefaultDevice, cfg.Device)
	assert.Equal(t, DefaultBinary, cfg.Binary)
	assert.Equal(t, DefaultCaptureTimeout, cfg.CaptureTimeout)
	assert.Equal(t, DefaultStateDir, cfg.StateDir)
	rc := cfg.RunnerConfig()
	assert.True(t, rc.Sudo)
	assert.False(t, rc.Archive.Enabled())
}

func TestFileConfig_Validate(t *testing.T) {
	bad := []FileConfig{
		{Device: "sde"},
		{CaptureTimeout: 10 * time.Millisecond},
		{Syslog: SyslogConfig{Addr: "localhost"}},
		{Archive: ArchiveFileConfig{Folder: "/a", Prefix: "x/y"}},
	}
	for i := range bad {
		c := bad[i]
		c.Normalize()
		assert.Error(t, c.Validate(), "case %d", i)
	}
}

func TestLoadConfig_Errors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	p := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(p, []byte("device: [unclosed\n"), 0o644))
	_, err = LoadConfig(p)
	assert.Error(t, err)
}
