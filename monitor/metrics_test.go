package monitor

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteMetricsTextfile_WithFlags(t *testing.T) {
	p := filepath.Join(t.TempDir(), "textfile", "raid_monitor.prom")
	snap := MetricsSnapshot{
		Device:    "/dev/sde",
		Connected: true,
		Flags:     &FlagRecord{Health: "07", RebuildStatus: "00", RebuildPhase: "00", DiskCount: 2},
		Changed:   true,
		CheckedAt: time.Unix(1700000000, 0),
	}
	require.NoError(t, WriteMetricsTextfile(p, snap))

	b, err := os.ReadFile(p)
	require.NoError(t, err)
	text := string(b)
	assert.Contains(t, text, `raid_monitor_device_connected{device="/dev/sde"} 1`)
	assert.Contains(t, text, `raid_monitor_disks{device="/dev/sde"} 2`)
	assert.Contains(t, text, `raid_monitor_state_changed{device="/dev/sde"} 1`)
	assert.Contains(t, text, `raid_monitor_state_info{device="/dev/sde",health="07",phase="00",rebuild="00",state="DEGRADED + IDLE"} 1`)
	assert.Contains(t, text, `raid_monitor_last_check_timestamp_seconds{device="/dev/sde"} 1.7e+09`)
}

func TestWriteMetricsTextfile_Disconnected(t *testing.T) {
	p := filepath.Join(t.TempDir(), "raid_monitor.prom")
	require.NoError(t, WriteMetricsTextfile(p, MetricsSnapshot{Device: "/dev/sde", CheckedAt: time.Now()}))

	b, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.Contains(t, string(b), `raid_monitor_device_connected{device="/dev/sde"} 0`)
	assert.NotContains(t, string(b), "raid_monitor_state_info")
}
