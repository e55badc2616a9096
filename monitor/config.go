package monitor

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type SyslogConfig struct {
	Addr    string `yaml:"addr"`
	AppName string `yaml:"app_name"`
	Service string `yaml:"service"`
}

type ArchiveFileConfig struct {
	// Single database file. Ignored when Folder is set.
	DB string `yaml:"db"`
	// Monthly rolling databases: <folder>/<prefix><YYYYMM>.db
	Folder string `yaml:"folder"`
	Prefix string `yaml:"prefix"`
}

type MetricsConfig struct {
	// node_exporter textfile collector target, e.g.
	// /var/lib/node_exporter/textfile/raid_monitor.prom
	Textfile string `yaml:"textfile"`
}

type FileConfig struct {
	Device string `yaml:"device"`
	// Path of the jmraidstatus binary.
	Binary string `yaml:"binary"`
	// Run the capture through sudo. nil means true.
	Sudo           *bool         `yaml:"sudo"`
	CaptureTimeout time.Duration `yaml:"capture_timeout"`

	StateDir string `yaml:"state_dir"`
	LogFile  string `yaml:"log_file"`
	LockFile string `yaml:"lock_file"`

	// "key: value" file with smtp_server, authuser, authpass.
	EmailEnv string `yaml:"email_env"`

	Debug bool `yaml:"debug"`

	Syslog  SyslogConfig      `yaml:"syslog"`
	Archive ArchiveFileConfig `yaml:"archive"`
	Metrics MetricsConfig     `yaml:"metrics"`
}

const (
	DefaultDevice   = "/dev/sde"
	DefaultStateDir = "/var/lib/raid-monitor"
	DefaultBinary   = "jmraidstatus"
)

func LoadConfig(path string) (*FileConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg FileConfig
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &cfg, nil
}

// Normalize fills unset fields with defaults. Relative paths stay relative.
func (c *FileConfig) Normalize() {
	c.Device = strings.TrimSpace(c.Device)
	if c.Device == "" {
		c.Device = DefaultDevice
	}
	if strings.TrimSpace(c.Binary) == "" {
		c.Binary = DefaultBinary
	}
	if c.Sudo == nil {
		t := true
		c.Sudo = &t
	}
	if c.CaptureTimeout <= 0 {
		c.CaptureTimeout = DefaultCaptureTimeout
	}
	if strings.TrimSpace(c.StateDir) == "" {
		c.StateDir = DefaultStateDir
	}
	if strings.TrimSpace(c.LogFile) == "" {
		c.LogFile = filepath.Join(c.StateDir, "monitor.log")
	}
	if strings.TrimSpace(c.LockFile) == "" {
		c.LockFile = filepath.Join(c.StateDir, "raid-monitor.lock")
	}
	if c.Archive.Folder != "" && c.Archive.Prefix == "" {
		c.Archive.Prefix = "checks_"
	}
}

// Validate checks a normalized config. It does not mutate it.
func (c *FileConfig) Validate() error {
	if !strings.HasPrefix(c.Device, "/") {
		return fmt.Errorf("device must be an absolute path, got %q", c.Device)
	}
	if c.CaptureTimeout < time.Second {
		return fmt.Errorf("capture_timeout must be at least 1s, got %s", c.CaptureTimeout)
	}
	if c.Syslog.Addr != "" && !strings.Contains(c.Syslog.Addr, ":") {
		return fmt.Errorf("syslog.addr must be host:port, got %q", c.Syslog.Addr)
	}
	if c.Archive.Prefix != "" && strings.ContainsAny(c.Archive.Prefix, `/\`) {
		return fmt.Errorf("archive.prefix must not contain path separators")
	}
	return nil
}

// RunnerConfig derives the orchestrator settings from the file config.
func (c *FileConfig) RunnerConfig() RunnerConfig {
	sudo := true
	if c.Sudo != nil {
		sudo = *c.Sudo
	}
	return RunnerConfig{
		Device:          c.Device,
		Binary:          c.Binary,
		Sudo:            sudo,
		CaptureTimeout:  c.CaptureTimeout,
		StateDir:        c.StateDir,
		LockFile:        c.LockFile,
		EmailEnv:        c.EmailEnv,
		Debug:           c.Debug,
		SyslogAddr:      c.Syslog.Addr,
		SyslogAppName:   c.Syslog.AppName,
		SyslogService:   c.Syslog.Service,
		Archive:         ArchiveConfig{Path: c.Archive.DB, Folder: c.Archive.Folder, Prefix: c.Archive.Prefix},
		MetricsTextfile: c.Metrics.Textfile,
	}
}
