package monitor

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// PersistedState is the last flag record the monitor saw.
type PersistedState struct {
	Flags      FlagRecord
	SourceFile string
	ObservedAt time.Time
}

// HistoryEntry is one archived capture.
type HistoryEntry struct {
	Flags      FlagRecord
	Capture    string
	CapturedAt time.Time
}

const (
	historyHeader    = "=== RAID State Capture ==="
	historySeparator = "============================================================"
	historyTimeFmt   = "2006-01-02 15:04:05"
)

// EncodeCanonical renders the compact last-state record.
func EncodeCanonical(s PersistedState) string {
	var b strings.Builder
	fmt.Fprintf(&b, "State: %s\n", Describe(&s.Flags))
	fmt.Fprintf(&b, "%s: %s\n", FieldHealth, s.Flags.Health)
	fmt.Fprintf(&b, "%s: %s\n", FieldRebuildStatus, s.Flags.RebuildStatus)
	fmt.Fprintf(&b, "%s: %s\n", FieldRebuildPhase, s.Flags.RebuildPhase)
	fmt.Fprintf(&b, "Raw: %s\n", s.Flags.Raw())
	fmt.Fprintf(&b, "File: %s\n", s.SourceFile)
	if !s.ObservedAt.IsZero() {
		fmt.Fprintf(&b, "Observed: %s\n", s.ObservedAt.Format(time.RFC3339))
	}
	return b.String()
}

// EncodeHistory renders a History capture: a labelled flag summary followed
// by the full raw capture text.
func EncodeHistory(e HistoryEntry) string {
	var b strings.Builder
	b.WriteString(historyHeader + "\n")
	fmt.Fprintf(&b, "Timestamp: %s\n", e.CapturedAt.Format(historyTimeFmt))
	fmt.Fprintf(&b, "State: %s\n", Describe(&e.Flags))
	b.WriteString("\nFlags:\n")
	fmt.Fprintf(&b, "  0x1F0 (Health):    %s\n", e.Flags.Health)
	fmt.Fprintf(&b, "  0x1F2 (Secondary): %s\n", e.Flags.Secondary)
	fmt.Fprintf(&b, "  0x1F5 (Rebuild):   %s\n", e.Flags.RebuildStatus)
	fmt.Fprintf(&b, "  0x1FA (Phase):     %s\n", e.Flags.RebuildPhase)
	fmt.Fprintf(&b, "  Raw: %s\n", e.Flags.Raw())
	fmt.Fprintf(&b, "  Disks: %d\n", e.Flags.DiskCount)
	b.WriteString("\n" + historySeparator + "\n\n")
	b.WriteString(e.Capture)
	return b.String()
}

// stateParser decodes one on-disk encoding. name is the base name of the
// file the content came from.
type stateParser struct {
	name  string
	parse func(content, name string) (*PersistedState, bool)
}

// Tried in order, first success wins.
var stateParsers = []stateParser{
	{"canonical", parseCanonical},
	{"history", parseHistory},
	{"capture", parseCapture},
}

// ParseState decodes content with the first encoding that accepts it and
// reports which one did.
func ParseState(content, path string) (*PersistedState, string, bool) {
	name := filepath.Base(path)
	for _, p := range stateParsers {
		if st, ok := p.parse(content, name); ok {
			return st, p.name, true
		}
	}
	return nil, "", false
}

func parseCanonical(content, name string) (*PersistedState, bool) {
	lines := strings.Split(content, "\n")
	if len(lines) == 0 || !strings.HasPrefix(lines[0], "State:") {
		return nil, false
	}
	kv := make(map[string]string, len(lines))
	for _, line := range lines {
		k, v, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		k = strings.TrimSpace(k)
		if _, dup := kv[k]; dup {
			continue
		}
		kv[k] = strings.TrimSpace(v)
	}

	health, okH := codeField(kv[FieldHealth])
	rebuild, okR := codeField(kv[FieldRebuildStatus])
	phase, okP := codeField(kv[FieldRebuildPhase])
	if !okH || !okR || !okP {
		return nil, false
	}

	st := &PersistedState{
		Flags: FlagRecord{
			Health:        health,
			RebuildStatus: rebuild,
			RebuildPhase:  phase,
		},
		SourceFile: name,
	}
	setRaw(&st.Flags, kv["Raw"])
	if f := kv["File"]; f != "" {
		st.SourceFile = f
	}
	if ts, err := time.Parse(time.RFC3339, kv["Observed"]); err == nil {
		st.ObservedAt = ts
	}
	return st, true
}

var (
	historyHealthRe    = regexp.MustCompile(`0x1F0 \(Health\):\s+([0-9a-fA-F]+)`)
	historySecondaryRe = regexp.MustCompile(`0x1F2 \(Secondary\):\s+([0-9a-fA-F]+)`)
	historyRebuildRe   = regexp.MustCompile(`0x1F5 \(Rebuild\):\s+([0-9a-fA-F]+)`)
	historyPhaseRe     = regexp.MustCompile(`0x1FA \(Phase\):\s+([0-9a-fA-F]+)`)
	historyRawRe       = regexp.MustCompile(`Raw:[ \t]+([0-9a-fA-F ]+)`)
	historyDisksRe     = regexp.MustCompile(`Disks:\s+(\d+)`)
	historyTimeRe      = regexp.MustCompile(`(?m)^Timestamp:\s+(.+)$`)
)

func parseHistory(content, name string) (*PersistedState, bool) {
	h := historyHealthRe.FindStringSubmatch(content)
	r := historyRebuildRe.FindStringSubmatch(content)
	if h == nil || r == nil {
		return nil, false
	}
	st := &PersistedState{
		Flags: FlagRecord{
			Health:        NormalizeCode(h[1]),
			RebuildStatus: NormalizeCode(r[1]),
			RebuildPhase:  UnknownCode,
		},
		SourceFile: name,
	}
	if m := historyPhaseRe.FindStringSubmatch(content); m != nil {
		st.Flags.RebuildPhase = NormalizeCode(m[1])
	}
	if m := historyRawRe.FindStringSubmatch(content); m != nil {
		setRaw(&st.Flags, m[1])
	}
	if m := historySecondaryRe.FindStringSubmatch(content); m != nil {
		st.Flags.Secondary = NormalizeCode(m[1])
	}
	if m := historyDisksRe.FindStringSubmatch(content); m != nil {
		st.Flags.DiskCount, _ = strconv.Atoi(m[1])
	}
	if m := historyTimeRe.FindStringSubmatch(content); m != nil {
		if ts, err := time.ParseInLocation(historyTimeFmt, strings.TrimSpace(m[1]), time.Local); err == nil {
			st.ObservedAt = ts
		}
	}
	return st, true
}

func parseCapture(content, name string) (*PersistedState, bool) {
	flags, ok := ExtractFlags(content)
	if !ok {
		return nil, false
	}
	return &PersistedState{Flags: *flags, SourceFile: name}, true
}

// codeField accepts a hex byte or the unknown sentinel.
func codeField(v string) (string, bool) {
	if v == UnknownCode {
		return v, true
	}
	if !hexTokenRe.MatchString(v) {
		return "", false
	}
	return NormalizeCode(v), true
}

// setRaw fills RawBytes from a space separated dump and recovers the
// secondary byte from it when the encoding did not store one.
func setRaw(f *FlagRecord, raw string) {
	f.RawBytes = hexTokens(raw)
	if f.Secondary == "" && len(f.RawBytes) > posSecondary {
		f.Secondary = f.RawBytes[posSecondary]
	}
}
