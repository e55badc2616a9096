package monitor

import (
	"fmt"
	"strings"
	"time"
)

const alertTimeFmt = "2006-01-02 15:04:05"

func newAlert(kind AlertKind, device, descriptor, subject, body string, at time.Time) Alert {
	return Alert{
		Kind:       kind,
		Level:      LevelForAlert(kind, descriptor),
		Device:     device,
		Descriptor: descriptor,
		Subject:    subject,
		Body:       body,
		At:         at,
	}
}

func disconnectAlert(device string, at time.Time) Alert {
	body := fmt.Sprintf(`RAID Device Disconnect Detected

Device: %s
Status: NOT CONNECTED

The RAID device is no longer accessible. This could be due to:
- USB cable disconnection
- Enclosure powered off
- USB passthrough issue
- Device failure

The monitor will continue checking and notify you when the device reconnects.

Timestamp: %s
`, device, at.Format(alertTimeFmt))
	return newAlert(AlertDisconnect, device, "", "RAID Device Disconnected: "+device, body, at)
}

func reconnectAlert(device string, at time.Time) Alert {
	body := fmt.Sprintf(`RAID Device Reconnection Detected

Device: %s
Status: CONNECTED

The RAID device is accessible again. Normal monitoring will resume.

Timestamp: %s
`, device, at.Format(alertTimeFmt))
	return newAlert(AlertReconnect, device, "", "RAID Device Reconnected: "+device, body, at)
}

// stateChangeAlert describes a transition between two stored records.
// prev may be nil only in tests; the orchestrator never alerts on a first check.
func stateChangeAlert(device string, prev *PersistedState, cur *FlagRecord, curFile string, cls Classification, at time.Time) Alert {
	prevDesc := "NONE"
	prevFile := "unknown"
	var pf *FlagRecord
	if prev != nil {
		pf = &prev.Flags
		prevDesc = Describe(pf)
		if prev.SourceFile != "" {
			prevFile = prev.SourceFile
		}
	}
	curDesc := Describe(cur)

	var b strings.Builder
	b.WriteString("JMicron RAID State Change Detected\n\n")
	fmt.Fprintf(&b, "Device:         %s\n", device)
	fmt.Fprintf(&b, "Previous State: %s\n", prevDesc)
	fmt.Fprintf(&b, "Current State:  %s\n\n", curDesc)
	fmt.Fprintf(&b, "Changes: %s\n\n", cls)
	b.WriteString("Previous flags:\n")
	writeFlagLines(&b, pf)
	b.WriteString("\nCurrent flags:\n")
	writeFlagLines(&b, cur)
	fmt.Fprintf(&b, "\nPrevious capture: %s\n", prevFile)
	fmt.Fprintf(&b, "Current capture:  %s\n", curFile)
	fmt.Fprintf(&b, "\nTimestamp: %s\n", at.Format(alertTimeFmt))

	subject := fmt.Sprintf("RAID State Changed: %s -> %s", prevDesc, curDesc)
	return newAlert(AlertStateChange, device, curDesc, subject, b.String(), at)
}

func writeFlagLines(b *strings.Builder, f *FlagRecord) {
	get := func(v string) string {
		if f == nil || v == "" {
			return "N/A"
		}
		return v
	}
	var h, r, p string
	if f != nil {
		h, r, p = f.Health, f.RebuildStatus, f.RebuildPhase
	}
	fmt.Fprintf(b, "  %s: %s\n", FieldHealth, get(h))
	fmt.Fprintf(b, "  %s: %s\n", FieldRebuildStatus, get(r))
	fmt.Fprintf(b, "  %s: %s\n", FieldRebuildPhase, get(p))
}

// TestAlert builds the message sent by the test-email command.
func TestAlert(message string, cfg EmailConfig, at time.Time) Alert {
	if strings.TrimSpace(message) == "" {
		message = "This is a test email from the RAID monitor."
	}
	body := fmt.Sprintf(`%s

If you received this email, the RAID monitoring email system is working correctly.

Test details:
- SMTP Server: %s
- From: %s
- To: %s
`, message, cfg.Server(), cfg.User, cfg.Recipient())
	return newAlert(AlertTest, "", "", "RAID Monitor Test Email", body, at)
}
