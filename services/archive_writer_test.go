package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"jjm/models"
)

type fakeArchive struct {
	mu       sync.Mutex
	failures int
	attempts int
	saved    [][]models.ReadingEvent
	prunes   []time.Time
}

func (f *fakeArchive) SaveReadings(_ context.Context, events []models.ReadingEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts++
	if f.failures > 0 {
		f.failures--
		return errors.New("disk full")
	}
	f.saved = append(f.saved, events)
	return nil
}

func (f *fakeArchive) Prune(_ context.Context, before time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prunes = append(f.prunes, before)
	return 0, nil
}

func (f *fakeArchive) savedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, batch := range f.saved {
		n += len(batch)
	}
	return n
}

func readingEvents(n int) []models.ReadingEvent {
	events := make([]models.ReadingEvent, n)
	for i := range events {
		events[i] = models.ReadingEvent{SensorID: "S0001", Value: float64(i), Status: models.StatusNormal, Timestamp: testNow}
	}
	return events
}

func startWriter(t *testing.T, archive *fakeArchive, opts ArchiveWriterOptions) (*ArchiveWriterService, context.CancelFunc) {
	t.Helper()
	aw := NewArchiveWriterService(archive, opts, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	go aw.Start(ctx)
	t.Cleanup(cancel)
	return aw, cancel
}

func TestArchiveWriter_FlushesFullBatch(t *testing.T) {
	archive := &fakeArchive{}
	aw, _ := startWriter(t, archive, ArchiveWriterOptions{BatchSize: 3, BatchTimeout: time.Hour})

	aw.HandleReadings(context.Background(), readingEvents(3))

	require.Eventually(t, func() bool { return archive.savedCount() == 3 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, aw.GetBufferSize())
}

func TestArchiveWriter_FlushesOnTimeout(t *testing.T) {
	archive := &fakeArchive{}
	aw, _ := startWriter(t, archive, ArchiveWriterOptions{BatchSize: 100, BatchTimeout: 20 * time.Millisecond})

	aw.HandleReadings(context.Background(), readingEvents(1))

	require.Eventually(t, func() bool { return archive.savedCount() == 1 }, time.Second, 5*time.Millisecond)
}

func TestArchiveWriter_RetriesFailedFlush(t *testing.T) {
	archive := &fakeArchive{failures: 2}
	aw, _ := startWriter(t, archive, ArchiveWriterOptions{BatchSize: 2, BatchTimeout: time.Hour, RetryBackoff: time.Millisecond})

	aw.HandleReadings(context.Background(), readingEvents(2))

	require.Eventually(t, func() bool { return archive.savedCount() == 2 }, time.Second, 5*time.Millisecond)
	archive.mu.Lock()
	assert.Equal(t, 3, archive.attempts)
	archive.mu.Unlock()
}

func TestArchiveWriter_FlushesOnShutdown(t *testing.T) {
	archive := &fakeArchive{}
	aw, cancel := startWriter(t, archive, ArchiveWriterOptions{BatchSize: 100, BatchTimeout: time.Hour})

	aw.HandleReadings(context.Background(), readingEvents(5))
	cancel()

	require.True(t, aw.WaitForShutdown(time.Second))
	assert.Equal(t, 5, archive.savedCount())
}

func TestArchiveWriter_PrunesWithRetention(t *testing.T) {
	archive := &fakeArchive{}
	startWriter(t, archive, ArchiveWriterOptions{BatchSize: 10, Retention: 90 * 24 * time.Hour})

	require.Eventually(t, func() bool {
		archive.mu.Lock()
		defer archive.mu.Unlock()
		return len(archive.prunes) == 1
	}, time.Second, 5*time.Millisecond)

	archive.mu.Lock()
	cutoff := archive.prunes[0]
	archive.mu.Unlock()
	assert.WithinDuration(t, time.Now().Add(-90*24*time.Hour), cutoff, time.Minute)
}

func TestArchiveWriter_HandleReadingsNeverBlocks(t *testing.T) {
	aw := NewArchiveWriterService(&fakeArchive{}, ArchiveWriterOptions{BatchSize: 1}, zap.NewNop())

	done := make(chan struct{})
	go func() {
		aw.HandleReadings(context.Background(), readingEvents(50))
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("HandleReadings blocked without a running writer")
	}
}
