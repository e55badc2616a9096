package monitor

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsSnapshot is what one run reports to the node_exporter textfile
// collector.
type MetricsSnapshot struct {
	Device    string
	Connected bool
	Flags     *FlagRecord
	Changed   bool
	CheckedAt time.Time
}

// WriteMetricsTextfile renders snap into path. The write goes through a
// temp file and rename, which WriteToTextfile does itself.
func WriteMetricsTextfile(path string, snap MetricsSnapshot) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	reg := prometheus.NewRegistry()
	labels := prometheus.Labels{"device": snap.Device}

	connected := prometheus.NewGauge(prometheus.GaugeOpts{
		Name:        "raid_monitor_device_connected",
		Help:        "Whether the monitored RAID device node was present on the last check.",
		ConstLabels: labels,
	})
	lastCheck := prometheus.NewGauge(prometheus.GaugeOpts{
		Name:        "raid_monitor_last_check_timestamp_seconds",
		Help:        "Unix time of the last completed check.",
		ConstLabels: labels,
	})
	reg.MustRegister(connected, lastCheck)
	connected.Set(boolGauge(snap.Connected))
	lastCheck.Set(float64(snap.CheckedAt.Unix()))

	if snap.Flags != nil {
		info := prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name:        "raid_monitor_state_info",
			Help:        "Current RAID state descriptor and raw status codes.",
			ConstLabels: labels,
		}, []string{"state", "health", "rebuild", "phase"})
		disks := prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "raid_monitor_disks",
			Help:        "Number of member disks reporting a status line.",
			ConstLabels: labels,
		})
		changed := prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "raid_monitor_state_changed",
			Help:        "1 when the last check detected a state change.",
			ConstLabels: labels,
		})
		reg.MustRegister(info, disks, changed)
		info.WithLabelValues(Describe(snap.Flags), snap.Flags.Health, snap.Flags.RebuildStatus, snap.Flags.RebuildPhase).Set(1)
		disks.Set(float64(snap.Flags.DiskCount))
		changed.Set(boolGauge(snap.Changed))
	}

	if err := prometheus.WriteToTextfile(path, reg); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
