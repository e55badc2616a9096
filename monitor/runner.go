package monitor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"
)

type RunnerConfig struct {
	Device         string
	Binary         string
	Sudo           bool
	CaptureTimeout time.Duration
	// StateDir holds last_state.txt, disconnect_state.txt and the History
	// directory.
	StateDir string
	// LockFile defaults to <StateDir>/raid-monitor.lock.
	LockFile string
	// EmailEnv is the "key: value" SMTP settings file. Email is disabled
	// when it is empty or cannot be loaded.
	EmailEnv string
	Debug    bool

	SyslogAddr    string
	SyslogAppName string
	SyslogService string

	Archive         ArchiveConfig
	MetricsTextfile string
}

type Outcome string

const (
	OutcomeLocked        Outcome = "locked"
	OutcomeDisconnected  Outcome = "disconnected"
	OutcomeCaptureFailed Outcome = "capture_failed"
	OutcomeParseFailed   Outcome = "parse_failed"
	OutcomeFirstCheck    Outcome = "first_check"
	OutcomeNoChange      Outcome = "no_change"
	OutcomeChanged       Outcome = "changed"
)

// CheckResult reports what one RunOnce did.
type CheckResult struct {
	RunID              string
	Outcome            Outcome
	Connectivity       Connectivity
	ConnectivityChange ConnectivityChange
	Flags              *FlagRecord
	Descriptor         string
	Previous           *PersistedState
	Classification     Classification
	HistoryFile        string
	CaptureDigest      string
	Alerts             []Alert
	Notified           bool
	NotifyErrors       []string
}

type Runner struct {
	cfg       RunnerConfig
	log       *log.Logger
	store     StateRepository
	conn      *ConnectivityTracker
	probe     DeviceProbe
	capturer  Capturer
	notifiers []Notifier
	lock      *RunLock
	now       func() time.Time
}

func (r *Runner) debugf(format string, args ...any) {
	if r == nil || !r.cfg.Debug {
		return
	}
	r.log.Printf("DEBUG: "+format, args...)
}

func NewRunner(cfg RunnerConfig, logger *log.Logger) (*Runner, error) {
	if strings.TrimSpace(cfg.Device) == "" {
		return nil, fmt.Errorf("device is required")
	}
	if strings.TrimSpace(cfg.StateDir) == "" {
		return nil, fmt.Errorf("state dir is required")
	}
	if cfg.CaptureTimeout <= 0 {
		cfg.CaptureTimeout = DefaultCaptureTimeout
	}
	if cfg.Binary == "" {
		cfg.Binary = DefaultBinary
	}
	if cfg.LockFile == "" {
		cfg.LockFile = filepath.Join(cfg.StateDir, "raid-monitor.lock")
	}
	if logger == nil {
		logger = log.Default()
	}
	if err := os.MkdirAll(cfg.StateDir, 0o755); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}

	r := &Runner{
		cfg:   cfg,
		log:   logger,
		store: NewFileStore(cfg.StateDir, logger),
		conn:  &ConnectivityTracker{Path: filepath.Join(cfg.StateDir, ConnectivityFile)},
		probe: PathProbe{Path: cfg.Device},
		capturer: &CommandCapturer{
			Binary:  cfg.Binary,
			Device:  cfg.Device,
			Sudo:    cfg.Sudo,
			Timeout: cfg.CaptureTimeout,
		},
		lock: NewRunLock(cfg.LockFile),
		now:  time.Now,
	}
	r.notifiers = r.buildNotifiers()
	return r, nil
}

func (r *Runner) buildNotifiers() []Notifier {
	var out []Notifier
	if r.cfg.EmailEnv == "" {
		r.log.Printf("WARNING: Email notifications disabled: no email_env configured")
	} else if ec, err := LoadEmailConfig(r.cfg.EmailEnv); err != nil {
		r.log.Printf("WARNING: Email notifications disabled: %v", err)
	} else {
		r.debugf("email notifier: server=%s ssl=%v to=%s", ec.Server(), ec.SSL, ec.Recipient())
		out = append(out, NewEmailNotifier(ec))
	}
	if r.cfg.SyslogAddr != "" {
		r.debugf("syslog notifier: addr=%s", r.cfg.SyslogAddr)
		out = append(out, NewSyslogNotifier(r.cfg.SyslogAddr, r.cfg.SyslogAppName, r.cfg.SyslogService))
	}
	return out
}

// RunOnce performs one check. Anticipated failures (device absent, capture
// or parse failure, notification failure) end the check early and return a
// nil error; a non-nil error means state files could not be written or the
// check panicked. A panic is logged with its stack to the step log and
// archived like any other failed run.
func (r *Runner) RunOnce(ctx context.Context) (res *CheckResult, err error) {
	started := r.now()
	res = &CheckResult{RunID: uuid.NewString()}

	r.log.Print(strings.Repeat("=", 60))
	r.log.Printf("Starting RAID state check (run %s, device %s)", res.RunID, r.cfg.Device)

	if lerr := r.lock.Acquire(); lerr != nil {
		if errors.Is(lerr, ErrLocked) {
			r.log.Printf("WARNING: skipping check: %v", lerr)
			res.Outcome = OutcomeLocked
			return res, nil
		}
		return res, lerr
	}
	defer r.lock.Release()
	defer func() { r.finish(res, started, err) }()
	defer func() {
		if p := recover(); p != nil {
			r.log.Printf("FATAL: unexpected panic: %v\n%s", p, debug.Stack())
			err = fmt.Errorf("unexpected panic: %v", p)
		}
	}()

	err = r.check(ctx, res)
	return res, err
}

func (r *Runner) check(ctx context.Context, res *CheckResult) error {
	prevConn := r.conn.Load()
	present := r.probe.Present()
	res.ConnectivityChange = r.conn.Evaluate(prevConn, present)
	r.debugf("connectivity: stored=%q present=%v", prevConn, present)

	if !present {
		res.Outcome = OutcomeDisconnected
		res.Connectivity = Disconnected
		r.log.Printf("ERROR: Device %s is not connected or not accessible", r.cfg.Device)
		if res.ConnectivityChange == ChangeDisconnected {
			r.log.Printf("DEVICE DISCONNECT DETECTED - Sending notification")
			if err := r.conn.Save(Disconnected); err != nil {
				return fmt.Errorf("save connectivity: %w", err)
			}
			r.notify(ctx, res, disconnectAlert(r.cfg.Device, r.now()))
		}
		r.log.Printf("Check complete (device disconnected)")
		return nil
	}

	res.Connectivity = Connected
	if res.ConnectivityChange == ChangeReconnected {
		r.log.Printf("DEVICE RECONNECT DETECTED - Sending notification")
		if err := r.conn.Save(Connected); err != nil {
			return fmt.Errorf("save connectivity: %w", err)
		}
		r.notify(ctx, res, reconnectAlert(r.cfg.Device, r.now()))
	}

	capture, err := r.capturer.Capture(ctx)
	if err != nil {
		r.log.Printf("ERROR: Failed to capture RAID state: %v", err)
		res.Outcome = OutcomeCaptureFailed
		return nil
	}
	if capture.ExitCode != 0 {
		r.log.Printf("WARNING: %s returned exit code %d", filepath.Base(r.cfg.Binary), capture.ExitCode)
	}
	if strings.TrimSpace(capture.Output) == "" {
		r.log.Printf("ERROR: Failed to capture RAID state: empty output")
		res.Outcome = OutcomeCaptureFailed
		return nil
	}
	res.CaptureDigest = CaptureDigest(capture.Output)

	flags, ok := ExtractFlags(capture.Output)
	if !ok {
		r.log.Printf("ERROR: Failed to extract flags from output")
		res.Outcome = OutcomeParseFailed
		return nil
	}
	res.Flags = flags
	res.Descriptor = Describe(flags)
	r.log.Printf("Current state: %s", res.Descriptor)
	r.log.Printf("Flags: 0x1F0=%s, 0x1F5=%s, 0x1FA=%s", flags.Health, flags.RebuildStatus, flags.RebuildPhase)
	r.debugf("secondary=%s raw=%q disks=%d", flags.Secondary, flags.Raw(), flags.DiskCount)

	prev, err := r.store.Load()
	if err != nil {
		r.log.Printf("WARNING: could not load previous state, treating as first run: %v", err)
		prev = nil
	}
	res.Previous = prev
	var prevFlags *FlagRecord
	if prev != nil {
		prevFlags = &prev.Flags
	}
	res.Classification = Compare(prevFlags, flags)
	r.log.Printf("Comparison: %s", res.Classification)

	now := r.now()
	histPath, err := r.store.AppendHistory(HistoryEntry{Flags: *flags, Capture: capture.Output, CapturedAt: now})
	if err != nil {
		return fmt.Errorf("append history: %w", err)
	}
	res.HistoryFile = histPath
	histName := filepath.Base(histPath)
	r.log.Printf("State saved to: %s", histPath)
	if prev != nil {
		r.log.Printf("Last state: %s (from %s)", Describe(prevFlags), prev.SourceFile)
	}

	switch res.Classification.Kind {
	case FirstCheck:
		res.Outcome = OutcomeFirstCheck
	case NoChange:
		res.Outcome = OutcomeNoChange
	default:
		res.Outcome = OutcomeChanged
		r.log.Printf("STATE CHANGE DETECTED: %s", res.Classification)
		r.notify(ctx, res, stateChangeAlert(r.cfg.Device, prev, flags, histName, res.Classification, now))
	}

	if err := r.store.Save(PersistedState{Flags: *flags, SourceFile: histName, ObservedAt: now}); err != nil {
		return fmt.Errorf("save last state: %w", err)
	}
	if r.conn.Load() != Connected {
		if err := r.conn.Save(Connected); err != nil {
			return fmt.Errorf("save connectivity: %w", err)
		}
	}
	r.log.Printf("Check complete")
	return nil
}

// notify hands a to every notifier. Failures are logged and recorded on res
// but never stop the check.
func (r *Runner) notify(ctx context.Context, res *CheckResult, a Alert) {
	res.Alerts = append(res.Alerts, a)
	if len(r.notifiers) == 0 {
		r.log.Printf("WARNING: %s notification skipped (no notifier configured)", a.Kind)
		return
	}
	for _, n := range r.notifiers {
		if err := n.Send(ctx, a); err != nil {
			r.log.Printf("ERROR sending %s notification via %s: %v", a.Kind, n.Name(), err)
			res.NotifyErrors = append(res.NotifyErrors, n.Name()+": "+err.Error())
			continue
		}
		res.Notified = true
		r.log.Printf("Notification sent via %s: %s", n.Name(), a.Subject)
	}
}

// finish records the run in the archive and metrics textfile. Both are
// best-effort.
func (r *Runner) finish(res *CheckResult, started time.Time, runErr error) {
	ended := r.now()
	if r.cfg.Archive.Enabled() {
		if err := RecordCheck(r.cfg.Archive, r.checkEvent(res, started, ended, runErr)); err != nil {
			r.log.Printf("WARNING: %v", err)
		}
	}
	if r.cfg.MetricsTextfile != "" {
		snap := MetricsSnapshot{
			Device:    r.cfg.Device,
			Connected: res.Connectivity == Connected,
			Flags:     res.Flags,
			Changed:   res.Outcome == OutcomeChanged,
			CheckedAt: ended,
		}
		if err := WriteMetricsTextfile(r.cfg.MetricsTextfile, snap); err != nil {
			r.log.Printf("WARNING: %v", err)
		}
	}
	r.debugf("run %s done: outcome=%s elapsed=%s", res.RunID, res.Outcome, ended.Sub(started))
	r.log.Print(strings.Repeat("=", 60))
}

func (r *Runner) checkEvent(res *CheckResult, started, ended time.Time, runErr error) *CheckEvent {
	ev := &CheckEvent{
		RunID:          res.RunID,
		StartedAt:      started.UTC(),
		EndedAt:        ended.UTC(),
		Device:         r.cfg.Device,
		Outcome:        string(res.Outcome),
		Connectivity:   string(res.Connectivity),
		State:          res.Descriptor,
		HistoryFile:    res.HistoryFile,
		CaptureSHA256:  res.CaptureDigest,
		Notified:       res.Notified,
		NotifyError:    strings.Join(res.NotifyErrors, "; "),
		Classification: res.Classification.String(),
	}
	if f := res.Flags; f != nil {
		ev.Health = f.Health
		ev.Secondary = f.Secondary
		ev.RebuildStatus = f.RebuildStatus
		ev.RebuildPhase = f.RebuildPhase
		ev.RawBytes = f.Raw()
		ev.DiskCount = f.DiskCount
		ev.AlertLevel = AlertLevel(res.Descriptor)
	} else {
		ev.Classification = ""
	}
	if res.Previous != nil {
		ev.PreviousState = Describe(&res.Previous.Flags)
	}
	if len(res.Alerts) > 0 {
		ev.AlertLevel = res.Alerts[len(res.Alerts)-1].Level
	}
	if runErr != nil {
		ev.Error = runErr.Error()
	}
	return ev
}
