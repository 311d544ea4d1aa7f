package services

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"jjm/metrics"
	"jjm/models"
)

// ReadingArchive is the long-term reading store the writer flushes into
type ReadingArchive interface {
	SaveReadings(ctx context.Context, events []models.ReadingEvent) error
	Prune(ctx context.Context, before time.Time) (int64, error)
}

type ArchiveWriterOptions struct {
	BatchSize     int
	BatchTimeout  time.Duration
	Retention     time.Duration
	PruneInterval time.Duration
	RetryBackoff  time.Duration
}

// ArchiveWriterService batches readings and writes them to the archive
type ArchiveWriterService struct {
	archive      ReadingArchive
	logger       *zap.Logger
	opts         ArchiveWriterOptions
	incoming     chan models.ReadingEvent
	buffer       []models.ReadingEvent
	bufferMutex  sync.Mutex
	shutdownChan chan bool
}

func NewArchiveWriterService(archive ReadingArchive, opts ArchiveWriterOptions, logger *zap.Logger) *ArchiveWriterService {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 500
	}
	if opts.BatchTimeout <= 0 {
		opts.BatchTimeout = 10 * time.Second
	}
	if opts.PruneInterval <= 0 {
		opts.PruneInterval = 24 * time.Hour
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = time.Second
	}
	return &ArchiveWriterService{
		archive:      archive,
		logger:       logger,
		opts:         opts,
		incoming:     make(chan models.ReadingEvent, opts.BatchSize*4),
		buffer:       make([]models.ReadingEvent, 0, opts.BatchSize),
		shutdownChan: make(chan bool, 1),
	}
}

// HandleReadings queues readings for archiving. Readings that do not fit in
// the queue are dropped.
func (aw *ArchiveWriterService) HandleReadings(_ context.Context, events []models.ReadingEvent) {
	dropped := 0
	for _, e := range events {
		select {
		case aw.incoming <- e:
		default:
			dropped++
		}
	}
	if dropped > 0 {
		aw.logger.Warn("Archive queue full, dropping readings", zap.Int("dropped", dropped))
		metrics.ArchiveWritesTotal.WithLabelValues("dropped").Add(float64(dropped))
	}
}

// Start runs the flush loop until ctx is cancelled
func (aw *ArchiveWriterService) Start(ctx context.Context) error {
	aw.logger.Info("Starting archive writer",
		zap.Int("max_batch_size", aw.opts.BatchSize),
		zap.Duration("batch_timeout", aw.opts.BatchTimeout),
		zap.Duration("retention", aw.opts.Retention))

	flushTimer := time.NewTimer(aw.opts.BatchTimeout)
	defer flushTimer.Stop()
	pruneTicker := time.NewTicker(aw.opts.PruneInterval)
	defer pruneTicker.Stop()

	aw.prune(ctx)

	for {
		select {
		case <-ctx.Done():
			aw.logger.Info("Archive writer received shutdown signal")
			aw.drainQueue()
			// the parent context is gone, give the final flush its own deadline
			flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			aw.flushBuffer(flushCtx)
			cancel()
			aw.shutdownChan <- true
			return nil

		case event := <-aw.incoming:
			aw.bufferMutex.Lock()
			aw.buffer = append(aw.buffer, event)
			currentSize := len(aw.buffer)
			aw.bufferMutex.Unlock()
			metrics.ArchiveBufferSize.Set(float64(currentSize))

			if currentSize >= aw.opts.BatchSize {
				aw.logger.Debug("Archive buffer full, flushing", zap.Int("buffer_size", currentSize))

				if !flushTimer.Stop() {
					select {
					case <-flushTimer.C:
					default:
					}
				}

				aw.flushBuffer(ctx)
				flushTimer.Reset(aw.opts.BatchTimeout)
			}

		case <-flushTimer.C:
			if aw.GetBufferSize() > 0 {
				aw.flushBuffer(ctx)
			}
			flushTimer.Reset(aw.opts.BatchTimeout)

		case <-pruneTicker.C:
			aw.prune(ctx)
		}
	}
}

func (aw *ArchiveWriterService) drainQueue() {
	aw.bufferMutex.Lock()
	defer aw.bufferMutex.Unlock()
	for {
		select {
		case event := <-aw.incoming:
			aw.buffer = append(aw.buffer, event)
		default:
			return
		}
	}
}

// flushBuffer writes the current buffer to the archive and clears it
func (aw *ArchiveWriterService) flushBuffer(ctx context.Context) {
	aw.bufferMutex.Lock()
	if len(aw.buffer) == 0 {
		aw.bufferMutex.Unlock()
		return
	}
	batch := make([]models.ReadingEvent, len(aw.buffer))
	copy(batch, aw.buffer)
	aw.buffer = aw.buffer[:0]
	aw.bufferMutex.Unlock()
	metrics.ArchiveBufferSize.Set(0)

	maxRetries := 3
	var err error

	for attempt := 1; attempt <= maxRetries; attempt++ {
		err = aw.archive.SaveReadings(ctx, batch)
		if err == nil {
			metrics.ArchiveWritesTotal.WithLabelValues("ok").Add(float64(len(batch)))
			aw.logger.Debug("Flushed readings to archive", zap.Int("batch_size", len(batch)))
			return
		}

		aw.logger.Error("Failed to flush readings to archive",
			zap.Int("attempt", attempt),
			zap.Int("max_retries", maxRetries),
			zap.Int("batch_size", len(batch)),
			zap.Error(err))

		if attempt < maxRetries {
			select {
			case <-ctx.Done():
				attempt = maxRetries
			case <-time.After(time.Duration(attempt) * aw.opts.RetryBackoff):
			}
		}
	}

	metrics.ArchiveWritesTotal.WithLabelValues("error").Add(float64(len(batch)))
	aw.logger.Error("Failed to flush batch after all retries, readings lost",
		zap.Int("batch_size", len(batch)),
		zap.Error(err))
}

// prune removes readings older than the retention window. Zero retention
// keeps everything.
func (aw *ArchiveWriterService) prune(ctx context.Context) {
	if aw.opts.Retention <= 0 {
		return
	}
	cutoff := time.Now().Add(-aw.opts.Retention)
	removed, err := aw.archive.Prune(ctx, cutoff)
	if err != nil {
		aw.logger.Error("Failed to prune archive", zap.Error(err))
		return
	}
	if removed > 0 {
		aw.logger.Info("Pruned archived readings",
			zap.Int64("removed", removed),
			zap.Time("before", cutoff))
	}
}

// WaitForShutdown waits for the final flush to complete
func (aw *ArchiveWriterService) WaitForShutdown(timeout time.Duration) bool {
	select {
	case <-aw.shutdownChan:
		return true
	case <-time.After(timeout):
		return false
	}
}

// GetBufferSize returns the number of readings waiting to be flushed
func (aw *ArchiveWriterService) GetBufferSize() int {
	aw.bufferMutex.Lock()
	defer aw.bufferMutex.Unlock()
	return len(aw.buffer)
}
