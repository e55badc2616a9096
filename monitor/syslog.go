package monitor

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"os"
	"strings"
	"time"
)

const defaultSyslogTimeout = 3 * time.Second

// SyslogNotifier forwards alerts as RFC 5424 lines over TCP, e.g. to an
// Alloy or rsyslog receiver. Labels travel as structured data.
type SyslogNotifier struct {
	addr    string
	appName string
	service string
}

func NewSyslogNotifier(addr, appName, service string) *SyslogNotifier {
	if appName == "" {
		appName = "raid-monitor"
	}
	if service == "" {
		service = "raid"
	}
	return &SyslogNotifier{addr: addr, appName: appName, service: service}
}

func (s *SyslogNotifier) Name() string { return "syslog" }

func (s *SyslogNotifier) Send(ctx context.Context, a Alert) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultSyslogTimeout)
		defer cancel()
	}
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", s.addr)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrNotifyTransport, err)
	}
	defer conn.Close()
	if dl, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(dl)
	}

	w := bufio.NewWriter(conn)
	if _, err := w.WriteString(s.format(a)); err != nil {
		return fmt.Errorf("%w: %w", ErrNotifyTransport, err)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("%w: %w", ErrNotifyTransport, err)
	}
	return nil
}

func (s *SyslogNotifier) format(a Alert) string {
	host, _ := os.Hostname()
	ts := a.At
	if ts.IsZero() {
		ts = time.Now()
	}
	sd := buildStructuredData("raidmon",
		sdParam{"service", s.service},
		sdParam{"device", a.Device},
		sdParam{"kind", string(a.Kind)},
		sdParam{"level", a.Level},
		sdParam{"state", a.Descriptor},
	)
	msg := a.Subject
	if body := strings.Join(strings.Fields(a.Body), " "); body != "" {
		msg += " | " + body
	}
	return fmt.Sprintf("<%d>1 %s %s %s - - %s %s\n",
		syslogPriority(a.Level),
		ts.UTC().Format(time.RFC3339Nano),
		sanitizeSyslogToken(host),
		sanitizeSyslogToken(s.appName),
		sd,
		strings.TrimSpace(msg))
}

// syslogPriority uses facility local0.
func syslogPriority(level string) int {
	const local0 = 16 * 8
	switch level {
	case LevelCritical:
		return local0 + 2
	case LevelWarning:
		return local0 + 4
	default:
		return local0 + 6
	}
}

func sanitizeSyslogToken(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "-"
	}
	return strings.ReplaceAll(s, " ", "_")
}

type sdParam struct {
	name  string
	value string
}

// buildStructuredData renders one SD-ELEMENT with params in the given order.
// Params with an empty value are dropped.
func buildStructuredData(sdID string, params ...sdParam) string {
	if sdID == "" {
		sdID = "raidmon"
	}
	var b strings.Builder
	b.WriteString("[" + sdID)
	for _, p := range params {
		if strings.TrimSpace(p.value) == "" {
			continue
		}
		fmt.Fprintf(&b, ` %s="%s"`, p.name, escapeSDParam(p.value))
	}
	b.WriteString("]")
	return b.String()
}

func escapeSDParam(v string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, `]`, `\]`, "\n", " ", "\r", " ")
	return r.Replace(v)
}
