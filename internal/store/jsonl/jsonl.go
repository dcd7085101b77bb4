package jsonl

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const maxLineBytes = 8 * 1024 * 1024

// entry is one line of the log. Lines that are not JSON objects are read as
// bare operation names so plain newline-separated name files can be imported.
type entry struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Timestamp time.Time `json:"ts"`
}

// Log is an append-only file of operation names. It rotates only when a size
// limit is set; maxBackups <= 0 keeps every rotated file.
type Log struct {
	path       string
	maxBytes   int64
	maxBackups int

	mu   sync.Mutex
	file *os.File
}

// New prepares a log at path. The file itself is created on first append so
// that Exists keeps reporting whether anything was ever submitted.
// maxSizeMB <= 0 disables rotation.
func New(path string, maxSizeMB int, maxBackups int) (*Log, error) {
	if path == "" {
		return nil, fmt.Errorf("jsonl path is empty")
	}
	if maxSizeMB < 0 {
		maxSizeMB = 0
	}
	if maxBackups < 0 {
		maxBackups = 0
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir log dir: %w", err)
	}

	return &Log{
		path:       path,
		maxBytes:   int64(maxSizeMB) * 1024 * 1024,
		maxBackups: maxBackups,
	}, nil
}

func (l *Log) Path() string { return l.path }

func (l *Log) Exists() bool {
	_, err := os.Stat(l.path)
	return err == nil
}

func (l *Log) AppendName(_ context.Context, name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("operation name is empty")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.openLocked(); err != nil {
		return err
	}
	if err := l.rotateIfNeededLocked(); err != nil {
		return err
	}

	b, err := json.Marshal(entry{ID: uuid.NewString(), Name: name, Timestamp: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("marshal entry: %w", err)
	}
	if _, err := l.file.Write(append(b, '\n')); err != nil {
		return fmt.Errorf("write jsonl: %w", err)
	}
	return nil
}

// Names returns every name in the rotated backups (oldest first) followed by
// the live file.
func (l *Log) Names(_ context.Context) ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []string
	for i := l.backupCount(); i >= 1; i-- {
		names, err := readNames(fmt.Sprintf("%s.%d", l.path, i))
		if err != nil {
			return nil, err
		}
		out = append(out, names...)
	}
	names, err := readNames(l.path)
	if err != nil {
		return nil, err
	}
	return append(out, names...), nil
}

func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		err := l.file.Close()
		l.file = nil
		return err
	}
	return nil
}

func (l *Log) openLocked() error {
	if l.file != nil {
		return nil
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open jsonl: %w", err)
	}
	l.file = f
	return nil
}

// backupCount is the highest backup suffix to consider. Unbounded logs count
// the consecutive backups present on disk.
func (l *Log) backupCount() int {
	if l.maxBackups > 0 {
		return l.maxBackups
	}
	n := 0
	for {
		if _, err := os.Stat(l.backupPath(n + 1)); err != nil {
			return n
		}
		n++
	}
}

func (l *Log) backupPath(i int) string {
	return fmt.Sprintf("%s.%d", l.path, i)
}

func (l *Log) rotateIfNeededLocked() error {
	if l.maxBytes <= 0 {
		return nil
	}
	st, err := l.file.Stat()
	if err != nil {
		return fmt.Errorf("stat jsonl: %w", err)
	}
	if st.Size() < l.maxBytes {
		return nil
	}
	if err := l.file.Close(); err != nil {
		return fmt.Errorf("close for rotate: %w", err)
	}
	l.file = nil

	// With a bound, the oldest backup is overwritten.
	top := l.backupCount()
	if l.maxBackups > 0 {
		top = l.maxBackups - 1
	}
	for i := top; i >= 1; i-- {
		if err := os.Rename(l.backupPath(i), l.backupPath(i+1)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("rotate %s: %w", l.backupPath(i), err)
		}
	}
	if err := os.Rename(l.path, l.backupPath(1)); err != nil {
		return fmt.Errorf("rotate %s: %w", l.path, err)
	}

	return l.openLocked()
}

func readNames(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("open jsonl: %w", err)
	}
	defer f.Close()

	var out []string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "{") {
			out = append(out, line)
			continue
		}
		var e entry
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
		if e.Name != "" {
			out = append(out, e.Name)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return out, nil
}
