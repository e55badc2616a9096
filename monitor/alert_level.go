package monitor

import "strings"

const (
	LevelCritical = "critical"
	LevelWarning  = "warning"
	LevelInfo     = "info"
)

// AlertLevel maps a state descriptor to a severity:
// - DEGRADED or any UNKNOWN part -> critical
// - rebuilding -> warning
// - else -> info
func AlertLevel(descriptor string) string {
	switch {
	case strings.Contains(descriptor, "DEGRADED"), strings.Contains(descriptor, "UNKNOWN"):
		return LevelCritical
	case strings.Contains(descriptor, "REBUILDING"):
		return LevelWarning
	default:
		return LevelInfo
	}
}

// LevelForAlert picks the severity of an alert. Connectivity alerts have a
// fixed level; state alerts follow the new descriptor.
func LevelForAlert(kind AlertKind, descriptor string) string {
	switch kind {
	case AlertDisconnect:
		return LevelCritical
	case AlertReconnect, AlertTest:
		return LevelInfo
	default:
		return AlertLevel(descriptor)
	}
}
