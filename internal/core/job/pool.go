package job

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ClareAI/astra-sales-agent/pkg/logger"
	"go.uber.org/zap"
)

// DefaultJobTimeout bounds one job end to end. Individual external calls
// inside a job carry tighter deadlines of their own.
const DefaultJobTimeout = 2 * time.Minute

// Stats is a point-in-time snapshot of pool counters.
type Stats struct {
	Workers        int   `json:"workers"`
	QueueDepth     int   `json:"queue_depth"`
	TotalEnqueued  int64 `json:"total_enqueued"`
	TotalProcessed int64 `json:"total_processed"`
	TotalDropped   int64 `json:"total_dropped"`
	TotalErrors    int64 `json:"total_errors"`
}

// Pool drains one shared bounded queue with a fixed number of workers. A
// panicking or failing job is isolated: the worker recovers, counts the
// error and moves on.
type Pool struct {
	workers    int
	queue      chan Job
	handlers   map[Kind]Handler
	jobTimeout time.Duration

	wg       sync.WaitGroup
	stopOnce sync.Once
	stopped  int32

	totalEnqueued  int64
	totalProcessed int64
	totalDropped   int64
	totalErrors    int64
}

// NewPool creates a pool with the given worker count and queue capacity.
func NewPool(workers, queueSize int) *Pool {
	if workers <= 0 {
		workers = 4
	}
	if queueSize <= 0 {
		queueSize = 256
	}
	return &Pool{
		workers:    workers,
		queue:      make(chan Job, queueSize),
		handlers:   make(map[Kind]Handler),
		jobTimeout: DefaultJobTimeout,
	}
}

// Register binds a handler to a job kind. Must be called before Start.
func (p *Pool) Register(kind Kind, h Handler) {
	p.handlers[kind] = h
}

// SetJobTimeout overrides the per-job deadline. Must be called before Start.
func (p *Pool) SetJobTimeout(d time.Duration) {
	if d > 0 {
		p.jobTimeout = d
	}
}

// Start launches the workers. They run until ctx is cancelled or Stop is
// called.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.run(ctx, i)
	}
	logger.Base().Info("job pool started",
		zap.Int("workers", p.workers),
		zap.Int("queue_size", cap(p.queue)),
	)
}

// Enqueue offers a job to the queue without blocking. A stopped pool or a
// full queue drops the job and reports false.
func (p *Pool) Enqueue(j Job) bool {
	if atomic.LoadInt32(&p.stopped) == 1 {
		atomic.AddInt64(&p.totalDropped, 1)
		return false
	}
	if j.EnqueuedAt.IsZero() {
		j.EnqueuedAt = time.Now().UTC()
	}

	select {
	case p.queue <- j:
		atomic.AddInt64(&p.totalEnqueued, 1)
		return true
	default:
		atomic.AddInt64(&p.totalDropped, 1)
		logger.Base().Warn("job queue full, dropping job",
			zap.String("kind", string(j.Kind)),
			zap.String("tenant_id", j.TenantID),
		)
		return false
	}
}

// Stop prevents further enqueues, drains the queue and waits for the workers
// to finish their current jobs.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() {
		atomic.StoreInt32(&p.stopped, 1)
		close(p.queue)
	})
	p.wg.Wait()
}

// Snapshot returns the current pool counters.
func (p *Pool) Snapshot() Stats {
	return Stats{
		Workers:        p.workers,
		QueueDepth:     len(p.queue),
		TotalEnqueued:  atomic.LoadInt64(&p.totalEnqueued),
		TotalProcessed: atomic.LoadInt64(&p.totalProcessed),
		TotalDropped:   atomic.LoadInt64(&p.totalDropped),
		TotalErrors:    atomic.LoadInt64(&p.totalErrors),
	}
}

func (p *Pool) run(ctx context.Context, id int) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case j, ok := <-p.queue:
			if !ok {
				return
			}
			p.process(ctx, id, j)
		}
	}
}

func (p *Pool) process(ctx context.Context, workerID int, j Job) {
	defer func() {
		atomic.AddInt64(&p.totalProcessed, 1)
		if r := recover(); r != nil {
			atomic.AddInt64(&p.totalErrors, 1)
			logger.Base().Error("job panicked",
				zap.Int("worker_id", workerID),
				zap.String("kind", string(j.Kind)),
				zap.Any("panic", r),
			)
		}
	}()

	handler, ok := p.handlers[j.Kind]
	if !ok {
		atomic.AddInt64(&p.totalErrors, 1)
		logger.Base().Error("no handler for job kind", zap.String("kind", string(j.Kind)))
		return
	}

	jobCtx, cancel := context.WithTimeout(ctx, p.jobTimeout)
	defer cancel()

	start := time.Now()
	if err := handler(jobCtx, j); err != nil {
		atomic.AddInt64(&p.totalErrors, 1)
		logger.Base().Warn("job failed",
			zap.Int("worker_id", workerID),
			zap.String("kind", string(j.Kind)),
			zap.String("tenant_id", j.TenantID),
			zap.String("conversation_id", j.ConversationID),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err),
		)
		return
	}

	logger.Base().Debug("job done",
		zap.Int("worker_id", workerID),
		zap.String("kind", string(j.Kind)),
		zap.Duration("elapsed", time.Since(start)),
	)
}
