package main

import (
	"fmt"
	"log"
	"os"
	"runtime/debug"

	"raid-monitor/monitor"

	"github.com/spf13/cobra"
)

type globalFlags struct {
	configPath string
	device     string
	stateDir   string
	debug      bool
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	defer func() {
		if r := recover(); r != nil {
			log.Printf("FATAL: unexpected panic: %v\n%s", r, debug.Stack())
			os.Exit(1)
		}
	}()

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "raid-monitor:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:           "raid-monitor",
		Short:         "Watch a JMicron RAID enclosure and alert on state changes.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd, g)
		},
	}
	pf := root.PersistentFlags()
	pf.StringVar(&g.configPath, "config", "", "YAML config file path.")
	pf.StringVar(&g.device, "device", monitor.DefaultDevice, "RAID device node (overrides config.device).")
	pf.StringVar(&g.stateDir, "state-dir", monitor.DefaultStateDir, "State directory (overrides config.state_dir).")
	pf.BoolVar(&g.debug, "debug", false, "Enable debug logs.")

	root.AddCommand(
		newCheckCmd(g),
		newStatusCmd(g),
		newHistoryCmd(g),
		newDecodeCmd(),
		newTestEmailCmd(g),
		newEventsCmd(g),
	)
	return root
}

// loadConfig reads the optional config file and applies flags the user set
// explicitly on top of it.
func loadConfig(cmd *cobra.Command, g *globalFlags) (*monitor.FileConfig, error) {
	cfg := &monitor.FileConfig{}
	if g.configPath != "" {
		loaded, err := monitor.LoadConfig(g.configPath)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}
	flags := cmd.Flags()
	if flags.Changed("device") {
		cfg.Device = g.device
	}
	if flags.Changed("state-dir") {
		cfg.StateDir = g.stateDir
	}
	if flags.Changed("debug") {
		cfg.Debug = g.debug
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func newCheckCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Run one check (the default when no command is given).",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd, g)
		},
	}
}

func runCheck(cmd *cobra.Command, g *globalFlags) error {
	cfg, err := loadConfig(cmd, g)
	if err != nil {
		return err
	}

	logger, closer, err := monitor.OpenStepLog(cfg.LogFile, os.Stderr)
	if err != nil {
		log.Printf("WARNING: cannot open log file %s: %v (logging to stderr only)", cfg.LogFile, err)
		logger = log.New(os.Stderr, "", log.LstdFlags)
	} else {
		defer closer.Close()
	}

	runner, err := monitor.NewRunner(cfg.RunnerConfig(), logger)
	if err != nil {
		logger.Printf("FATAL: init runner: %v", err)
		return err
	}
	res, err := runner.RunOnce(cmd.Context())
	if err != nil {
		logger.Printf("FATAL: check failed: %v", err)
		return err
	}
	if cfg.Debug {
		logger.Printf("DEBUG: outcome=%s state=%q", res.Outcome, res.Descriptor)
	}
	return nil
}
