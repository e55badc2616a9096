package monitor

import (
	"fmt"
	"strings"
)

// Status codes reported at 0x1F0, 0x1F5 and 0x1FA.
const (
	healthDegraded    = "07"
	healthOperational = "0f"

	rebuildIdle   = "00"
	rebuildActive = "01"

	phaseOne = "00"
	phaseTwo = "01"
)

const (
	// DescriptorUnknown is the descriptor of a missing flag record.
	DescriptorUnknown = "UNKNOWN"

	descriptorSep = " + "
)

// Describe builds the composite state descriptor of a flag record, e.g.
// "DEGRADED + IDLE". It never fails.
func Describe(f *FlagRecord) string {
	if f == nil {
		return DescriptorUnknown
	}
	return HealthPart(f.Health) + descriptorSep + RebuildPart(f.RebuildStatus, f.RebuildPhase)
}

func HealthPart(health string) string {
	switch health {
	case healthDegraded:
		return "DEGRADED"
	case healthOperational:
		return "OPERATIONAL"
	default:
		return fmt.Sprintf("UNKNOWN_HEALTH(%s)", health)
	}
}

func RebuildPart(status, phase string) string {
	switch status {
	case rebuildActive:
		switch phase {
		case phaseOne:
			return "REBUILDING_PHASE_1"
		case phaseTwo:
			return "REBUILDING_PHASE_2"
		default:
			return fmt.Sprintf("REBUILDING_UNKNOWN_PHASE(%s)", phase)
		}
	case rebuildIdle:
		return "IDLE"
	default:
		return fmt.Sprintf("UNKNOWN_REBUILD(%s)", status)
	}
}

// StateSlug turns a descriptor into the file name prefix used for History
// entries: "DEGRADED + IDLE" -> "degraded_idle".
func StateSlug(descriptor string) string {
	return strings.ReplaceAll(strings.ToLower(descriptor), descriptorSep, "_")
}
