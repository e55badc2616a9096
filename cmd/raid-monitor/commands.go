package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"raid-monitor/monitor"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Underline(true)
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Width(14)
	levelStyle = map[string]lipgloss.Style{
		monitor.LevelCritical: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9")),
		monitor.LevelWarning:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("11")),
		monitor.LevelInfo:     lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10")),
	}
)

func styledState(descriptor string) string {
	st, ok := levelStyle[monitor.AlertLevel(descriptor)]
	if !ok {
		return descriptor
	}
	return st.Render(descriptor)
}

func row(w io.Writer, label, value string) {
	fmt.Fprintf(w, "%s %s\n", labelStyle.Render(label), value)
}

func quietLogger() *log.Logger { return log.New(io.Discard, "", 0) }

func newStatusCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the last known state and connectivity without capturing.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, g)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			store := monitor.NewFileStore(cfg.StateDir, quietLogger())
			conn := &monitor.ConnectivityTracker{Path: filepath.Join(cfg.StateDir, monitor.ConnectivityFile)}

			st, source, err := readLastState(store)
			if err != nil {
				return err
			}

			fmt.Fprintln(out, titleStyle.Render("RAID monitor status"))
			row(out, "Device", cfg.Device)
			connectivity := string(conn.Load())
			if connectivity == "" {
				connectivity = "unknown"
			}
			present := "absent"
			if (monitor.PathProbe{Path: cfg.Device}).Present() {
				present = "present"
			}
			row(out, "Connectivity", fmt.Sprintf("%s (node %s)", connectivity, present))
			if st == nil {
				row(out, "State", "no state recorded yet")
				return nil
			}
			row(out, "State", styledState(monitor.Describe(&st.Flags)))
			row(out, monitor.FieldHealth, st.Flags.Health)
			row(out, monitor.FieldRebuildStatus, st.Flags.RebuildStatus)
			row(out, monitor.FieldRebuildPhase, st.Flags.RebuildPhase)
			if raw := st.Flags.Raw(); raw != "" {
				row(out, "Raw", raw)
			}
			row(out, "Source", source)
			if st.SourceFile != "" {
				row(out, "File", st.SourceFile)
			}
			if !st.ObservedAt.IsZero() {
				row(out, "Observed", st.ObservedAt.Local().Format(time.RFC3339))
			}
			return nil
		},
	}
}

// readLastState reads without the self-heal write Load performs.
func readLastState(store *monitor.FileStore) (*monitor.PersistedState, string, error) {
	b, err := os.ReadFile(store.CanonicalPath())
	switch {
	case err == nil:
		if st, format, ok := monitor.ParseState(string(b), store.CanonicalPath()); ok {
			return st, monitor.LastStateFile + " (" + format + ")", nil
		}
	case !errors.Is(err, fs.ErrNotExist):
		return nil, "", err
	}
	st, err := store.MostRecent()
	if err != nil || st == nil {
		return nil, "", err
	}
	return st, "history", nil
}

func newHistoryCmd(g *globalFlags) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List the newest History entries.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, g)
			if err != nil {
				return err
			}
			store := monitor.NewFileStore(cfg.StateDir, quietLogger())
			files, err := store.ListHistory()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(files) == 0 {
				fmt.Fprintln(out, "no history entries")
				return nil
			}
			for i, f := range files {
				if limit > 0 && i >= limit {
					break
				}
				desc := "unreadable"
				if b, err := os.ReadFile(f.Path); err == nil {
					if st, _, ok := monitor.ParseState(string(b), f.Path); ok {
						desc = styledState(monitor.Describe(&st.Flags))
					}
				}
				fmt.Fprintf(out, "%-48s %s\n", f.Name, desc)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Number of entries to show (0 for all).")
	return cmd
}

func newDecodeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "decode [file|-]",
		Short: "Decode a saved capture or state file.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				b    []byte
				err  error
				name = "-"
			)
			if len(args) == 1 && args[0] != "-" {
				name = args[0]
				b, err = os.ReadFile(name)
			} else {
				b, err = io.ReadAll(cmd.InOrStdin())
			}
			if err != nil {
				return err
			}
			st, format, ok := monitor.ParseState(string(b), name)
			if !ok {
				return fmt.Errorf("%s: no RAID status line found", name)
			}
			out := cmd.OutOrStdout()
			row(out, "Format", format)
			row(out, "State", styledState(monitor.Describe(&st.Flags)))
			row(out, monitor.FieldHealth, st.Flags.Health)
			if st.Flags.Secondary != "" {
				row(out, monitor.FieldSecondary, st.Flags.Secondary)
			}
			row(out, monitor.FieldRebuildStatus, st.Flags.RebuildStatus)
			row(out, monitor.FieldRebuildPhase, st.Flags.RebuildPhase)
			if raw := st.Flags.Raw(); raw != "" {
				row(out, "Raw", raw)
			}
			if st.Flags.DiskCount > 0 {
				row(out, "Disks", fmt.Sprint(st.Flags.DiskCount))
			}
			return nil
		},
	}
}

func newTestEmailCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "test-email [message]",
		Short: "Send a test notification email.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, g)
			if err != nil {
				return err
			}
			if cfg.EmailEnv == "" {
				return fmt.Errorf("email_env is not configured")
			}
			ec, err := monitor.LoadEmailConfig(cfg.EmailEnv)
			if err != nil {
				return err
			}
			msg := ""
			if len(args) == 1 {
				msg = args[0]
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Sending test email via %s to %s\n", ec.Server(), ec.Recipient())
			if err := monitor.NewEmailNotifier(ec).Send(cmd.Context(), monitor.TestAlert(msg, ec, time.Now())); err != nil {
				fmt.Fprintf(out, "Failed: %v\n", err)
				return err
			}
			fmt.Fprintln(out, "Test email sent successfully")
			return nil
		},
	}
}

func newEventsCmd(g *globalFlags) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Show the newest archived checks.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, g)
			if err != nil {
				return err
			}
			ac := cfg.RunnerConfig().Archive
			if !ac.Enabled() {
				return fmt.Errorf("archive is not configured")
			}
			events, err := monitor.RecentChecks(ac, time.Now(), limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, ev := range events {
				state := ev.State
				if state == "" {
					state = "-"
				} else {
					state = styledState(state)
				}
				line := fmt.Sprintf("%s  %-14s %s", ev.StartedAt.Local().Format("2006-01-02 15:04:05"), ev.Outcome, state)
				if ev.Error != "" {
					line += "  error: " + ev.Error
				} else if ev.NotifyError != "" {
					line += "  notify: " + strings.SplitN(ev.NotifyError, "\n", 2)[0]
				}
				fmt.Fprintln(out, line)
			}
			if len(events) == 0 {
				fmt.Fprintln(out, "no archived checks")
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of events to show.")
	return cmd
}
