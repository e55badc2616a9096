package monitor

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// CheckEvent is one archived invocation of the monitor.
type CheckEvent struct {
	ID             uint      `gorm:"primaryKey"`
	RunID          string    `gorm:"uniqueIndex;size:36"`
	StartedAt      time.Time `gorm:"index"`
	EndedAt        time.Time
	Device         string `gorm:"index;size:256"`
	Outcome        string `gorm:"index;size:32"`
	Connectivity   string `gorm:"size:16"`
	State          string `gorm:"index;size:128"`
	PreviousState  string `gorm:"size:128"`
	Health         string `gorm:"size:4"`
	Secondary      string `gorm:"size:4"`
	RebuildStatus  string `gorm:"size:4"`
	RebuildPhase   string `gorm:"size:4"`
	RawBytes       string `gorm:"size:64"`
	DiskCount      int
	Classification string `gorm:"type:text"`
	HistoryFile    string `gorm:"size:1024"`
	CaptureSHA256  string `gorm:"column:capture_sha256;index;size:64"`
	AlertLevel     string `gorm:"index;size:16"`
	Notified       bool   `gorm:"index"`
	NotifyError    string `gorm:"type:text"`
	Error          string `gorm:"type:text"`
}

// ArchiveConfig selects either one database file or monthly rolling files
// named <Folder>/<Prefix><YYYYMM>.db. Folder wins when both are set.
type ArchiveConfig struct {
	Path   string
	Folder string
	Prefix string
}

func (c ArchiveConfig) Enabled() bool {
	return strings.TrimSpace(c.Path) != "" || strings.TrimSpace(c.Folder) != ""
}

// PathFor returns the database file for t.
func (c ArchiveConfig) PathFor(t time.Time) string {
	if strings.TrimSpace(c.Folder) == "" {
		return c.Path
	}
	prefix := c.Prefix
	if prefix == "" {
		prefix = "checks_"
	}
	return filepath.Join(c.Folder, fmt.Sprintf("%s%04d%02d.db", prefix, t.Year(), int(t.Month())))
}

func gormConfig() *gorm.Config {
	return &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)}
}

// OpenArchive opens (and migrates) the database file for now.
func OpenArchive(cfg ArchiveConfig, now time.Time) (*gorm.DB, error) {
	path := cfg.PathFor(now)
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	db, err := gorm.Open(sqlite.Open(path), gormConfig())
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&CheckEvent{}); err != nil {
		closeDB(db)
		return nil, err
	}
	return db, nil
}

// OpenQueryArchive opens an existing archive without touching its schema.
func OpenQueryArchive(path string) (*gorm.DB, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	return gorm.Open(sqlite.Open(path), gormConfig())
}

func closeDB(db *gorm.DB) {
	if db == nil {
		return
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

// RecordCheck appends ev to the archive selected by cfg.
func RecordCheck(cfg ArchiveConfig, ev *CheckEvent) error {
	db, err := OpenArchive(cfg, ev.StartedAt)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer closeDB(db)
	if err := db.Create(ev).Error; err != nil {
		return fmt.Errorf("insert check event: %w", err)
	}
	return nil
}

// RecentChecks returns up to limit events, newest first. With monthly files
// it walks backwards from the current month until limit is reached or the
// files run out.
func RecentChecks(cfg ArchiveConfig, now time.Time, limit int) ([]CheckEvent, error) {
	if limit <= 0 {
		limit = 20
	}
	paths, err := archivePathsNewestFirst(cfg, now)
	if err != nil {
		return nil, err
	}
	var out []CheckEvent
	for _, p := range paths {
		if len(out) >= limit {
			break
		}
		db, err := OpenQueryArchive(p)
		if err != nil {
			continue
		}
		var rows []CheckEvent
		err = db.Order("started_at desc").Order("id desc").Limit(limit - len(out)).Find(&rows).Error
		closeDB(db)
		if err != nil {
			return nil, err
		}
		out = append(out, rows...)
	}
	return out, nil
}

func archivePathsNewestFirst(cfg ArchiveConfig, now time.Time) ([]string, error) {
	if strings.TrimSpace(cfg.Folder) == "" {
		return []string{cfg.Path}, nil
	}
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "checks_"
	}
	candidates, err := filepath.Glob(filepath.Join(cfg.Folder, prefix+"*.db"))
	if err != nil {
		return nil, err
	}
	nowKey := now.Year()*100 + int(now.Month())
	type dated struct {
		path string
		key  int
	}
	var files []dated
	for _, p := range candidates {
		yyyymm := strings.TrimSuffix(strings.TrimPrefix(filepath.Base(p), prefix), ".db")
		tm, err := time.Parse("200601", yyyymm)
		if err != nil {
			continue
		}
		key := tm.Year()*100 + int(tm.Month())
		if key > nowKey {
			continue
		}
		files = append(files, dated{path: p, key: key})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].key > files[j].key })
	out := make([]string, 0, len(files))
	for _, f := range files {
		out = append(out, f.path)
	}
	return out, nil
}
