package monitor

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// StateRepository persists the last known state and the capture History.
type StateRepository interface {
	// Load returns the last known state, or nil when there is none.
	Load() (*PersistedState, error)
	Save(PersistedState) error
	// AppendHistory archives one capture and returns the path it was written to.
	AppendHistory(HistoryEntry) (string, error)
	// MostRecent decodes the newest History entry, or returns nil.
	MostRecent() (*PersistedState, error)
}

const (
	LastStateFile = "last_state.txt"
	HistoryDir    = "states"
	CorruptDir    = "corrupt"

	historyStampFmt = "20060102_150405"
)

// FileStore keeps the canonical record and History as plain text files
// under one directory.
type FileStore struct {
	dir string
	log *log.Logger
}

func NewFileStore(dir string, logger *log.Logger) *FileStore {
	if logger == nil {
		logger = log.Default()
	}
	return &FileStore{dir: dir, log: logger}
}

func (s *FileStore) CanonicalPath() string { return filepath.Join(s.dir, LastStateFile) }
func (s *FileStore) HistoryPath() string   { return filepath.Join(s.dir, HistoryDir) }

func (s *FileStore) Save(st PersistedState) error {
	if err := writeFileAtomic(s.CanonicalPath(), []byte(EncodeCanonical(st))); err != nil {
		return fmt.Errorf("write %s: %w", LastStateFile, err)
	}
	return nil
}

// Load reads the canonical record. When it is missing or unreadable the
// newest History entry is used instead and written back as the canonical
// record.
func (s *FileStore) Load() (*PersistedState, error) {
	path := s.CanonicalPath()
	content, err := os.ReadFile(path)
	switch {
	case err == nil:
		if st, format, ok := ParseState(string(content), path); ok {
			s.log.Printf("Loaded last state from %s (%s format)", LastStateFile, format)
			return st, nil
		}
		s.log.Printf("WARNING: %s is not parseable, falling back to History", LastStateFile)
		if dst, mvErr := s.setAside(path); mvErr != nil {
			s.log.Printf("WARNING: could not set aside %s: %v", LastStateFile, mvErr)
		} else {
			s.log.Printf("Moved unparseable record to %s", dst)
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		s.log.Printf("WARNING: could not read %s: %v", LastStateFile, err)
	}

	st, err := s.MostRecent()
	if err != nil {
		return nil, err
	}
	if st == nil {
		s.log.Printf("No previous state found (first run)")
		return nil, nil
	}
	if err := s.Save(*st); err != nil {
		s.log.Printf("WARNING: could not restore %s: %v", LastStateFile, err)
	} else {
		s.log.Printf("Initialized %s from %s", LastStateFile, st.SourceFile)
	}
	return st, nil
}

// setAside moves an unparseable canonical record into CorruptDir, named
// after its modification time. Records set aside earlier are kept.
func (s *FileStore) setAside(path string) (string, error) {
	dir := filepath.Join(s.dir, CorruptDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	base := strings.TrimSuffix(filepath.Base(path), ".txt") + "_" + info.ModTime().Format(historyStampFmt)
	for i := 1; ; i++ {
		name := base + ".txt"
		if i > 1 {
			name = fmt.Sprintf("%s-%d.txt", base, i)
		}
		dst := filepath.Join(dir, name)
		if _, err := os.Lstat(dst); err == nil {
			continue
		} else if !errors.Is(err, fs.ErrNotExist) {
			return "", err
		}
		if err := os.Rename(path, dst); err != nil {
			return "", err
		}
		return dst, nil
	}
}

func (s *FileStore) MostRecent() (*PersistedState, error) {
	entries, err := s.historyFiles()
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}
	newest := entries[0]
	content, err := os.ReadFile(newest.path)
	if err != nil {
		s.log.Printf("WARNING: could not load state from %s: %v", newest.name, err)
		return nil, nil
	}
	st, _, ok := ParseState(string(content), newest.path)
	if !ok {
		s.log.Printf("WARNING: newest History entry %s is not parseable", newest.name)
		return nil, nil
	}
	s.log.Printf("Loaded state from History entry %s", newest.name)
	return st, nil
}

// AppendHistory writes a new History file named after the descriptor and
// capture time. An existing file is never overwritten; a numeric suffix is
// added instead.
func (s *FileStore) AppendHistory(e HistoryEntry) (string, error) {
	dir := s.HistoryPath()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	base := StateSlug(Describe(&e.Flags)) + "_" + e.CapturedAt.Format(historyStampFmt)
	data := []byte(EncodeHistory(e))
	for i := 1; ; i++ {
		name := base + ".txt"
		if i > 1 {
			name = fmt.Sprintf("%s-%d.txt", base, i)
		}
		path := filepath.Join(dir, name)
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return "", err
		}
		_, werr := f.Write(data)
		cerr := f.Close()
		if werr != nil {
			return "", werr
		}
		if cerr != nil {
			return "", cerr
		}
		return path, nil
	}
}

// HistoryFile describes one entry of the History directory.
type HistoryFile struct {
	Name string
	Path string
	Size int64
}

// ListHistory returns History entries newest first.
func (s *FileStore) ListHistory() ([]HistoryFile, error) {
	entries, err := s.historyFiles()
	if err != nil {
		return nil, err
	}
	out := make([]HistoryFile, 0, len(entries))
	for _, e := range entries {
		out = append(out, HistoryFile{Name: e.name, Path: e.path, Size: e.size})
	}
	return out, nil
}

type historyFile struct {
	name    string
	path    string
	size    int64
	modNano int64
}

func (s *FileStore) historyFiles() ([]historyFile, error) {
	dirEntries, err := os.ReadDir(s.HistoryPath())
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}
	var out []historyFile
	for _, de := range dirEntries {
		if de.IsDir() || !strings.HasSuffix(de.Name(), ".txt") {
			continue
		}
		info, err := de.Info()
		if err != nil {
			continue
		}
		out = append(out, historyFile{
			name:    de.Name(),
			path:    filepath.Join(s.HistoryPath(), de.Name()),
			size:    info.Size(),
			modNano: info.ModTime().UnixNano(),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].modNano != out[j].modNano {
			return out[i].modNano > out[j].modNano
		}
		return out[i].name > out[j].name
	})
	return out, nil
}
