package storage

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/stoik/phish-catcher/internal/domain"
)

const (
	activeFile   = "active.log"
	pendingDir   = "pending"
	processedDir = "processed"
	segmentExt   = ".log"
)

// FileStore implements ports.AlertStore on a directory of line-oriented files:
//
//	<dir>/active.log              records being appended
//	<dir>/pending/<name>.log      rotated, not yet mailed
//	<dir>/processed/<name>.log    mailed
type FileStore struct {
	dir      string
	now      func() time.Time
	openFile func(name string, flag int, perm fs.FileMode) (*os.File, error)

	// mu makes Append and Rotate mutually exclusive
	mu        sync.Mutex
	active    *os.File
	records   int
	createdAt time.Time
	closed    bool
}

// NewFileStore opens (or creates) the store rooted at dir.
// Records left in active.log by a previous run are kept.
func NewFileStore(dir string) (*FileStore, error) {
	for _, sub := range []string{"", pendingDir, processedDir} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o750); err != nil {
			return nil, fmt.Errorf("failed to create alert directory: %w", err)
		}
	}

	s := &FileStore{dir: dir, now: time.Now, openFile: os.OpenFile}
	existing, err := readRecords(s.activePath())
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	s.records = len(existing)

	if err := s.openActive(); err != nil {
		return nil, err
	}
	return s, nil
}

// Append writes the alert's domain to the active segment and syncs it to disk
func (s *FileStore) Append(_ context.Context, alert domain.Alert) error {
	if err := validRecord(alert.Domain); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}
	// A failed reopen during rotation is retried here
	if s.active == nil {
		if err := s.openActive(); err != nil {
			return err
		}
	}

	if _, err := s.active.WriteString(alert.Domain + "\n"); err != nil {
		return fmt.Errorf("failed to write alert: %w", err)
	}
	if err := s.active.Sync(); err != nil {
		return fmt.Errorf("failed to sync alert log: %w", err)
	}
	s.records++
	return nil
}

// Rotate moves active.log to pending/ and starts a fresh active segment.
// Once the rename succeeds the segment is returned; a failed reopen of the
// active segment is retried by the next Append.
func (s *FileStore) Rotate(_ context.Context) (*domain.Segment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrStoreClosed
	}
	if s.records == 0 {
		return nil, nil
	}

	closedAt := s.now()
	name, err := segmentName(closedAt, s.nameTaken)
	if err != nil {
		return nil, err
	}

	if s.active != nil {
		if err := s.active.Close(); err != nil {
			return nil, fmt.Errorf("failed to close alert log: %w", err)
		}
		s.active = nil
	}

	records, err := readRecords(s.activePath())
	if err == nil {
		err = os.Rename(s.activePath(), s.segmentPath(pendingDir, name))
	}
	if err != nil {
		// Leave the records where they were
		if openErr := s.openActive(); openErr != nil {
			return nil, errors.Join(fmt.Errorf("failed to rotate alert log: %w", err), openErr)
		}
		return nil, fmt.Errorf("failed to rotate alert log: %w", err)
	}

	segment := &domain.Segment{
		ID:        segmentID(name),
		Name:      name,
		CreatedAt: s.createdAt,
		ClosedAt:  closedAt,
		Records:   records,
	}
	// The modification time of a pending file carries the segment's start
	_ = os.Chtimes(s.segmentPath(pendingDir, name), closedAt, s.createdAt)

	s.records = 0
	_ = s.openActive()
	return segment, nil
}

// Pending lists rotated segments that were never archived, oldest first
func (s *FileStore) Pending(_ context.Context) ([]domain.Segment, error) {
	entries, err := os.ReadDir(filepath.Join(s.dir, pendingDir))
	if err != nil {
		return nil, fmt.Errorf("failed to list pending segments: %w", err)
	}

	segments := make([]domain.Segment, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), segmentExt) {
			continue
		}
		name := strings.TrimSuffix(entry.Name(), segmentExt)

		records, err := readRecords(s.segmentPath(pendingDir, name))
		if err != nil {
			return nil, err
		}

		info, err := entry.Info()
		if err != nil {
			return nil, fmt.Errorf("failed to stat %s: %w", entry.Name(), err)
		}
		createdAt := info.ModTime()
		closedAt, ok := segmentTime(name, time.Local)
		if !ok {
			closedAt = createdAt
		}
		if createdAt.After(closedAt) {
			createdAt = closedAt
		}

		segments = append(segments, domain.Segment{
			ID:        segmentID(name),
			Name:      name,
			CreatedAt: createdAt,
			ClosedAt:  closedAt,
			Records:   records,
		})
	}

	sort.SliceStable(segments, func(i, j int) bool {
		if !segments[i].ClosedAt.Equal(segments[j].ClosedAt) {
			return segments[i].ClosedAt.Before(segments[j].ClosedAt)
		}
		return segments[i].Name < segments[j].Name
	})
	return segments, nil
}

// Archive moves a pending segment to processed/
func (s *FileStore) Archive(_ context.Context, segment domain.Segment) error {
	if segment.Name == "" || strings.ContainsAny(segment.Name, `/\`) {
		return fmt.Errorf("invalid segment name %q", segment.Name)
	}
	if err := os.Rename(s.segmentPath(pendingDir, segment.Name), s.segmentPath(processedDir, segment.Name)); err != nil {
		return fmt.Errorf("failed to archive segment %s: %w", segment.Name, err)
	}
	return nil
}

// Close releases the active segment. Further calls fail with ErrStoreClosed.
func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	if s.active == nil {
		return nil
	}
	err := s.active.Close()
	s.active = nil
	return err
}

func (s *FileStore) openActive() error {
	f, err := s.openFile(s.activePath(), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
	if err != nil {
		return fmt.Errorf("failed to open alert log: %w", err)
	}
	s.active = f
	if s.records == 0 || s.createdAt.IsZero() {
		s.createdAt = s.now()
	}
	return nil
}

// nameTaken reports whether a segment of that name exists in pending/ or processed/
func (s *FileStore) nameTaken(name string) (bool, error) {
	for _, sub := range []string{pendingDir, processedDir} {
		_, err := os.Stat(s.segmentPath(sub, name))
		if err == nil {
			return true, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return false, err
		}
	}
	return false, nil
}

func (s *FileStore) activePath() string {
	return filepath.Join(s.dir, activeFile)
}

func (s *FileStore) segmentPath(sub, name string) string {
	return filepath.Join(s.dir, sub, name+segmentExt)
}

// readRecords returns the non-empty lines of a segment file
func readRecords(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open segment: %w", err)
	}
	defer f.Close()

	records := make([]string, 0)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			records = append(records, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read segment %s: %w", path, err)
	}
	return records, nil
}
