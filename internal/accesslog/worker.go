package accesslog

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/nis-portal/portal-api/internal/logging"
	"github.com/nis-portal/portal-api/internal/observability"
)

// ErrStopped is returned by Log after Stop.
var ErrStopped = errors.New("access log worker stopped")

// Sink persists batches of entries.
type Sink interface {
	InsertMany(ctx context.Context, entries []Entry) error
}

// MongoSink writes entries to a MongoDB collection.
type MongoSink struct {
	collection *mongo.Collection
}

func NewMongoSink(collection *mongo.Collection) *MongoSink {
	return &MongoSink{collection: collection}
}

// InsertMany bulk-inserts entries without ordering so one bad document does
// not block the rest of the batch.
func (s *MongoSink) InsertMany(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	operations := make([]mongo.WriteModel, 0, len(entries))
	for i := range entries {
		operations = append(operations, mongo.NewInsertOneModel().SetDocument(entries[i]))
	}
	if _, err := s.collection.BulkWrite(ctx, operations, options.BulkWrite().SetOrdered(false)); err != nil {
		return fmt.Errorf("bulk insert access logs: %w", err)
	}
	return nil
}

// Worker batches entries onto a Sink from a pool of goroutines. When the
// buffer is full an entry is written synchronously instead of being dropped.
type Worker struct {
	sink          Sink
	entries       chan Entry
	workers       int
	batchSize     int
	flushInterval time.Duration
	writeTimeout  time.Duration

	mu      sync.RWMutex
	stopped bool
	wg      sync.WaitGroup

	logger *logging.SafeLogger
}

// NewWorker creates a stopped worker. Call Start to begin draining.
func NewWorker(sink Sink, workers, bufferSize int, logger *logging.SafeLogger) *Worker {
	if workers <= 0 {
		workers = 1
	}
	if bufferSize <= 0 {
		bufferSize = 1000
	}
	return &Worker{
		sink:          sink,
		entries:       make(chan Entry, bufferSize),
		workers:       workers,
		batchSize:     100,
		flushInterval: 100 * time.Millisecond,
		writeTimeout:  5 * time.Second,
		logger:        logger,
	}
}

// Start launches the worker pool.
func (w *Worker) Start() {
	w.wg.Add(w.workers)
	for i := 0; i < w.workers; i++ {
		go func() {
			defer w.wg.Done()
			w.run()
		}()
	}
	w.logger.Info("access log worker started",
		zap.Int("workers", w.workers),
		zap.Int("buffer_size", cap(w.entries)))
}

func (w *Worker) run() {
	ticker := time.NewTicker(w.flushInterval)
	defer ticker.Stop()

	batch := make([]Entry, 0, w.batchSize)
	for {
		select {
		case entry, ok := <-w.entries:
			if !ok {
				w.flush(batch)
				return
			}
			batch = append(batch, entry)
			if len(batch) >= w.batchSize {
				w.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				w.flush(batch)
				batch = batch[:0]
			}
			observability.AccessLogQueueDepth.Set(float64(len(w.entries)))
		}
	}
}

func (w *Worker) flush(batch []Entry) {
	if len(batch) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), w.writeTimeout)
	defer cancel()

	if err := w.sink.InsertMany(ctx, batch); err != nil {
		w.logger.Error("failed to write access log batch",
			zap.Int("batch_size", len(batch)),
			zap.Error(err))
		return
	}
	w.logger.Debug("access log batch written", zap.Int("batch_size", len(batch)))
}

// Log queues entry without blocking the request.
func (w *Worker) Log(ctx context.Context, entry Entry) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.stopped {
		return ErrStopped
	}

	select {
	case w.entries <- entry:
		return nil
	default:
	}

	w.logger.Warn("access log buffer full, writing synchronously",
		zap.String("method", entry.Method),
		zap.String("path", entry.Path))
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.writeTimeout)
	defer cancel()
	return w.sink.InsertMany(writeCtx, []Entry{entry})
}

// Stop drains queued entries and waits for the pool to exit.
func (w *Worker) Stop() {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.stopped = true
	close(w.entries)
	w.mu.Unlock()

	w.wg.Wait()
	observability.AccessLogQueueDepth.Set(0)
	w.logger.Info("access log worker stopped")
}

// Stats reports buffer usage.
func (w *Worker) Stats() map[string]interface{} {
	if w == nil {
		return map[string]interface{}{"status": "not_initialized"}
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	status := "running"
	if w.stopped {
		status = "stopped"
	}
	return map[string]interface{}{
		"status":           status,
		"workers":          w.workers,
		"buffer_capacity":  cap(w.entries),
		"buffer_usage":     len(w.entries),
		"buffer_available": cap(w.entries) - len(w.entries),
	}
}
