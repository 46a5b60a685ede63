package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stoik/phish-catcher/internal/domain"
	"github.com/stoik/phish-catcher/internal/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ ports.AlertStore = (*FileStore)(nil)

func newTestFileStore(t *testing.T) (*FileStore, string) {
	t.Helper()
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store, dir
}

func appendAll(t *testing.T, store *FileStore, names ...string) {
	t.Helper()
	for _, name := range names {
		require.NoError(t, store.Append(context.Background(), domain.Alert{Domain: name, Score: 100}))
	}
}

func TestFileStore_RotateEmpty(t *testing.T) {
	store, dir := newTestFileStore(t)

	segment, err := store.Rotate(context.Background())
	require.NoError(t, err)
	assert.Nil(t, segment)

	entries, err := os.ReadDir(filepath.Join(dir, pendingDir))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestFileStore_AppendRotateArchive(t *testing.T) {
	store, dir := newTestFileStore(t)
	ctx := context.Background()
	store.now = func() time.Time { return time.Date(2024, time.May, 3, 14, 5, 9, 0, time.Local) }

	appendAll(t, store, "PayPal-Login.tk", "apple-id.ml")

	segment, err := store.Rotate(ctx)
	require.NoError(t, err)
	require.NotNil(t, segment)
	assert.Equal(t, "suspicious_domains_03-05-2024_14-05-09", segment.Name)
	assert.Equal(t, "suspicious_domains_03-05-2024_14-05-09.log", segment.Filename())
	assert.Equal(t, []string{"PayPal-Login.tk", "apple-id.ml"}, segment.Records)
	assert.FileExists(t, filepath.Join(dir, pendingDir, segment.Filename()))

	// The fresh active segment is empty and writable
	again, err := store.Rotate(ctx)
	require.NoError(t, err)
	assert.Nil(t, again)
	appendAll(t, store, "next.tk")

	pending, err := store.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, segment.ID, pending[0].ID)
	assert.Equal(t, segment.Records, pending[0].Records)

	require.NoError(t, store.Archive(ctx, *segment))
	assert.FileExists(t, filepath.Join(dir, processedDir, segment.Filename()))
	assert.NoFileExists(t, filepath.Join(dir, pendingDir, segment.Filename()))

	pending, err = store.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)

	assert.Error(t, store.Archive(ctx, *segment), "Archiving twice fails")
}

func TestFileStore_NameCollision(t *testing.T) {
	store, _ := newTestFileStore(t)
	ctx := context.Background()
	store.now = func() time.Time { return time.Date(2024, time.May, 3, 14, 5, 9, 0, time.Local) }

	appendAll(t, store, "a.tk")
	first, err := store.Rotate(ctx)
	require.NoError(t, err)
	require.NoError(t, store.Archive(ctx, *first))

	appendAll(t, store, "b.tk")
	second, err := store.Rotate(ctx)
	require.NoError(t, err)

	assert.Equal(t, first.Name+"_1", second.Name)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestFileStore_PendingOrder(t *testing.T) {
	store, _ := newTestFileStore(t)
	ctx := context.Background()

	times := []time.Time{
		time.Date(2024, time.December, 1, 9, 0, 0, 0, time.Local),
		time.Date(2025, time.January, 2, 9, 0, 0, 0, time.Local),
		time.Date(2025, time.February, 1, 9, 0, 0, 0, time.Local),
	}
	for i, ts := range times {
		ts := ts
		store.now = func() time.Time { return ts }
		appendAll(t, store, fmt.Sprintf("d%d.tk", i))
		_, err := store.Rotate(ctx)
		require.NoError(t, err)
	}

	pending, err := store.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 3)
	for i, segment := range pending {
		assert.Equal(t, []string{fmt.Sprintf("d%d.tk", i)}, segment.Records, "Oldest first, not lexical")
	}
}

func TestFileStore_PendingKeepsCreatedAt(t *testing.T) {
	store, _ := newTestFileStore(t)
	ctx := context.Background()

	opened := time.Date(2024, time.May, 3, 14, 0, 0, 0, time.Local)
	closed := time.Date(2024, time.May, 3, 14, 5, 0, 0, time.Local)

	// Start a segment at a known time
	store.now = func() time.Time { return opened }
	appendAll(t, store, "first.tk")
	_, err := store.Rotate(ctx)
	require.NoError(t, err)

	store.now = func() time.Time { return closed }
	appendAll(t, store, "second.tk")
	segment, err := store.Rotate(ctx)
	require.NoError(t, err)
	require.NotNil(t, segment)
	assert.True(t, opened.Equal(segment.CreatedAt))

	pending, err := store.Pending(ctx)
	require.NoError(t, err)
	var found *domain.Segment
	for i := range pending {
		if pending[i].Name == segment.Name {
			found = &pending[i]
		}
	}
	require.NotNil(t, found)
	assert.True(t, opened.Equal(found.CreatedAt), "got %s", found.CreatedAt)
	assert.True(t, closed.Equal(found.ClosedAt), "got %s", found.ClosedAt)
	for _, p := range pending {
		assert.False(t, p.CreatedAt.IsZero())
		assert.False(t, p.CreatedAt.After(p.ClosedAt))
	}
}

func TestFileStore_RotateSurvivesFailedReopen(t *testing.T) {
	store, dir := newTestFileStore(t)
	ctx := context.Background()
	appendAll(t, store, "before.tk")

	errDisk := errors.New("disk full")
	store.openFile = func(string, int, fs.FileMode) (*os.File, error) { return nil, errDisk }

	segment, err := store.Rotate(ctx)
	require.NoError(t, err, "The moved segment is handed off even if the fresh log cannot be opened")
	require.NotNil(t, segment)
	assert.Equal(t, []string{"before.tk"}, segment.Records)
	assert.FileExists(t, filepath.Join(dir, pendingDir, segment.Filename()))

	assert.ErrorIs(t, store.Append(ctx, domain.Alert{Domain: "lost.tk"}), errDisk)

	store.openFile = os.OpenFile
	appendAll(t, store, "after.tk")
	next, err := store.Rotate(ctx)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, []string{"after.tk"}, next.Records)
}

func TestFileStore_ConcurrentAppendAndRotate(t *testing.T) {
	store, _ := newTestFileStore(t)
	ctx := context.Background()

	const workers = 8
	const perWorker = 200

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				assert.NoError(t, store.Append(ctx, domain.Alert{Domain: fmt.Sprintf("w%d-%d.tk", w, i)}))
			}
		}(w)
	}

	var rotated []domain.Segment
	stop := make(chan struct{})
	rotatorDone := make(chan struct{})
	go func() {
		defer close(rotatorDone)
		for {
			select {
			case <-stop:
				return
			default:
			}
			segment, err := store.Rotate(ctx)
			assert.NoError(t, err)
			if segment != nil {
				rotated = append(rotated, *segment)
			}
			time.Sleep(time.Millisecond)
		}
	}()

	wg.Wait()
	close(stop)
	<-rotatorDone

	last, err := store.Rotate(ctx)
	require.NoError(t, err)
	if last != nil {
		rotated = append(rotated, *last)
	}

	seen := make(map[string]int)
	for _, segment := range rotated {
		for _, record := range segment.Records {
			seen[record]++
		}
	}
	assert.Len(t, seen, workers*perWorker, "Every record is recovered")
	for record, count := range seen {
		assert.Equal(t, 1, count, "Record %s appears once", record)
	}

	pending, err := store.Pending(ctx)
	require.NoError(t, err)
	assert.Len(t, pending, len(rotated))
}

func TestFileStore_ReopenKeepsActiveRecords(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)
	appendAll(t, store, "left-over.tk")
	require.NoError(t, store.Close())

	reopened, err := NewFileStore(dir)
	require.NoError(t, err)
	defer reopened.Close()

	segment, err := reopened.Rotate(context.Background())
	require.NoError(t, err)
	require.NotNil(t, segment)
	assert.Equal(t, []string{"left-over.tk"}, segment.Records)
}

func TestFileStore_Closed(t *testing.T) {
	store, _ := newTestFileStore(t)
	require.NoError(t, store.Close())

	assert.ErrorIs(t, store.Append(context.Background(), domain.Alert{Domain: "a.tk"}), ErrStoreClosed)
	_, err := store.Rotate(context.Background())
	assert.ErrorIs(t, err, ErrStoreClosed)
	assert.NoError(t, store.Close())
}

func TestFileStore_RejectsLineBreaks(t *testing.T) {
	store, _ := newTestFileStore(t)

	assert.Error(t, store.Append(context.Background(), domain.Alert{Domain: "a.tk\nb.tk"}))
	assert.Error(t, store.Append(context.Background(), domain.Alert{Domain: ""}))

	segment, err := store.Rotate(context.Background())
	require.NoError(t, err)
	assert.Nil(t, segment)
}
