package monitor

import (
	"regexp"
	"strings"
)

// Byte positions inside the 0x1F0 status line. The controller mirrors the
// same RAID-wide flags on every member disk, so only the first line counts.
const (
	posHealth        = 0  // 0x1F0
	posSecondary     = 2  // 0x1F2
	posRebuildStatus = 5  // 0x1F5
	posRebuildPhase  = 10 // 0x1FA

	minStatusTokens = posRebuildStatus + 1
	rawByteCount    = 12

	// UnknownCode marks a field the capture was too short to report.
	UnknownCode = "??"
)

var (
	statusLineRe = regexp.MustCompile(`(?im)^01f0:[ \t]+(.*)$`)
	hexTokenRe   = regexp.MustCompile(`^[0-9a-fA-F]{1,2}$`)
)

// FlagRecord is the decoded RAID status of one capture.
type FlagRecord struct {
	Health        string
	Secondary     string
	RebuildStatus string
	RebuildPhase  string
	RawBytes      []string
	DiskCount     int
}

// Raw returns the audit bytes as a single space separated string.
func (f FlagRecord) Raw() string {
	return strings.Join(f.RawBytes, " ")
}

// ExtractFlags locates the 0x1F0 status lines in a raw capture and decodes
// the first one. A marker line with no hex bytes after it is not a status
// line. ok is false when no line matches or the first line is too short to
// carry the rebuild status byte.
func ExtractFlags(raw string) (*FlagRecord, bool) {
	var lines [][]string
	for _, m := range statusLineRe.FindAllStringSubmatch(raw, -1) {
		if tokens := hexTokens(m[1]); len(tokens) > 0 {
			lines = append(lines, tokens)
		}
	}
	if len(lines) == 0 {
		return nil, false
	}

	tokens := lines[0]
	if len(tokens) < minStatusTokens {
		return nil, false
	}

	rec := &FlagRecord{
		Health:        tokens[posHealth],
		Secondary:     tokens[posSecondary],
		RebuildStatus: tokens[posRebuildStatus],
		RebuildPhase:  UnknownCode,
		DiskCount:     len(lines),
	}
	if len(tokens) > posRebuildPhase {
		rec.RebuildPhase = tokens[posRebuildPhase]
	}
	n := len(tokens)
	if n > rawByteCount {
		n = rawByteCount
	}
	rec.RawBytes = append([]string(nil), tokens[:n]...)
	return rec, true
}

// hexTokens returns the leading run of byte tokens of a dump line. The run
// stops at the first field that is not a hex byte, which drops the ASCII
// column some dumps append.
func hexTokens(line string) []string {
	var out []string
	for _, f := range strings.Fields(line) {
		if !hexTokenRe.MatchString(f) {
			break
		}
		out = append(out, NormalizeCode(f))
	}
	return out
}

// NormalizeCode lowercases a hex byte and pads it to two digits. Anything
// that is not a 1-2 digit hex value is returned trimmed but otherwise as is,
// so sentinels like "??" survive.
func NormalizeCode(code string) string {
	code = strings.TrimSpace(code)
	if !hexTokenRe.MatchString(code) {
		return code
	}
	code = strings.ToLower(code)
	if len(code) == 1 {
		code = "0" + code
	}
	return code
}
