package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gofrs/flock"
)

// DefaultJournalSize is the size at which a journal file is discarded and
// started over.
const DefaultJournalSize = 200 * 1024

// DefaultDateLayout stamps journal entries as day/month/year.
const DefaultDateLayout = "02/01/2006 15:04:05"

// Journal records free-form entries such as launched command lines.
type Journal interface {
	Record(userID int, msg string) error
}

// FileSink appends timestamped entries to log.txt under dir, or under
// dir/<userID> for a non-zero user. A file at or above maxSize is removed
// before the next write. Writers in other processes are serialized with an
// advisory lock on a sibling .lock file.
type FileSink struct {
	dir     string
	maxSize int64
	layout  string
	now     func() time.Time
}

func NewFileSink(dir string, maxSize int64, layout string) *FileSink {
	if maxSize <= 0 {
		maxSize = DefaultJournalSize
	}
	if layout == "" {
		layout = DefaultDateLayout
	}
	return &FileSink{dir: dir, maxSize: maxSize, layout: layout, now: time.Now}
}

// Path returns the journal file for a user.
func (s *FileSink) Path(userID int) string {
	if userID != 0 {
		return filepath.Join(s.dir, strconv.Itoa(userID), "log.txt")
	}
	return filepath.Join(s.dir, "log.txt")
}

func (s *FileSink) Record(userID int, msg string) error {
	path := s.Path(userID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create journal dir: %w", err)
	}

	lock := flock.New(path + ".lock")
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("lock journal: %w", err)
	}
	defer lock.Unlock()

	if info, err := os.Stat(path); err == nil && info.Size() >= s.maxSize {
		_ = os.Remove(path)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer f.Close()

	entry := "\n\n" + s.now().Format(s.layout) + "\n" + msg
	if _, err := f.WriteString(entry); err != nil {
		return fmt.Errorf("write journal: %w", err)
	}
	return nil
}

// Discard is a Journal that drops every entry.
var Discard Journal = discard{}

type discard struct{}

func (discard) Record(int, string) error { return nil }
