package audit

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/manishnupt/mynx-file-hive/internal/logging"
	"github.com/manishnupt/mynx-file-hive/internal/metrics"
	"github.com/manishnupt/mynx-file-hive/internal/retry"
)

// Outcome labels for the audit pipeline metric.
const (
	outcomeEnqueued  = "enqueued"
	outcomeDropped   = "dropped"
	outcomePersisted = "persisted"
	outcomeFailed    = "failed"
)

// Options configures an Emitter.
type Options struct {
	QueueSize int
	Workers   int
	Retry     retry.Config
}

// Emitter queues records for background persistence. Emit never blocks:
// records are dropped when the queue is full or the emitter is closed.
type Emitter struct {
	sink  Sink
	queue chan Record
	retry retry.Config
	now   func() time.Time

	mu     sync.RWMutex
	closed bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewEmitter starts the worker goroutines.
func NewEmitter(sink Sink, opts Options) *Emitter {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 1024
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.Retry.MaxAttempts <= 0 {
		opts.Retry = retry.DefaultConfig()
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &Emitter{
		sink:   sink,
		queue:  make(chan Record, opts.QueueSize),
		retry:  opts.Retry,
		now:    time.Now,
		ctx:    ctx,
		cancel: cancel,
	}
	for i := 0; i < opts.Workers; i++ {
		e.wg.Add(1)
		go e.worker()
	}
	return e
}

// Emit stamps rec and hands it to a worker.
func (e *Emitter) Emit(rec Record) {
	rec = Normalize(rec, e.now())

	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		metrics.RecordAudit(outcomeDropped)
		return
	}
	select {
	case e.queue <- rec:
		metrics.RecordAudit(outcomeEnqueued)
		metrics.SetAuditQueueDepth(len(e.queue))
	default:
		metrics.RecordAudit(outcomeDropped)
		logging.Warn("audit queue full, dropping record",
			zap.String("operation", string(rec.Operation)),
			zap.String("path", rec.SourcePath))
	}
}

func (e *Emitter) worker() {
	defer e.wg.Done()
	for rec := range e.queue {
		metrics.SetAuditQueueDepth(len(e.queue))
		err := retry.Do(e.ctx, e.retry, func(ctx context.Context) error {
			return e.sink.Append(ctx, rec)
		})
		if err != nil {
			metrics.RecordAudit(outcomeFailed)
			logging.Error("audit append failed",
				zap.String("id", rec.ID.String()),
				zap.String("operation", string(rec.Operation)),
				zap.String("path", rec.SourcePath),
				zap.Error(err))
			continue
		}
		metrics.RecordAudit(outcomePersisted)
	}
}

// Close stops intake and waits for queued records to drain. If ctx ends
// first, in-flight appends are cancelled and ctx.Err() is returned.
func (e *Emitter) Close(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	close(e.queue)
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		e.cancel()
		return nil
	case <-ctx.Done():
		e.cancel()
		<-done
		return ctx.Err()
	}
}

// LogsByPath returns records whose source or destination contains text.
func (e *Emitter) LogsByPath(ctx context.Context, text string) ([]Record, error) {
	return e.sink.QueryByPathSubstring(ctx, text)
}

// LogsByUser returns the records of one user.
func (e *Emitter) LogsByUser(ctx context.Context, username string) ([]Record, error) {
	return e.sink.QueryByUsername(ctx, username)
}
