package inmemory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dvloznov/fintrack-api/internal/jobs"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ErrQueueClosed is returned when publishing to or starting a stopped queue.
var ErrQueueClosed = errors.New("queue is closed")

// ErrQueueFull is returned when the buffer is full and the caller's context
// ends before space frees up.
var ErrQueueFull = errors.New("queue is full")

// DefaultWorkerCount is the number of concurrent workers when none is configured.
const DefaultWorkerCount = 5

// Queue is an in-memory implementation of job publisher and consumer.
// It uses Go channels for job distribution and is safe for concurrent use.
// Jobs live only in process memory, so anything unprocessed at exit is lost.
type Queue struct {
	jobChan     chan *jobs.ProcessDocumentJob
	closeChan   chan struct{}
	wg          sync.WaitGroup
	mu          sync.RWMutex
	closed      bool
	workerCount int
	log         zerolog.Logger
}

// NewQueue creates a new in-memory job queue.
// bufferSize determines how many jobs can wait before PublishProcessDocument blocks.
func NewQueue(bufferSize, workerCount int, log zerolog.Logger) *Queue {
	if bufferSize < 0 {
		bufferSize = 0
	}
	if workerCount <= 0 {
		workerCount = DefaultWorkerCount
	}
	return &Queue{
		jobChan:     make(chan *jobs.ProcessDocumentJob, bufferSize),
		closeChan:   make(chan struct{}),
		workerCount: workerCount,
		log:         log.With().Str("component", "queue").Logger(),
	}
}

// PublishProcessDocument implements the Publisher interface.
// It returns as soon as the job is buffered.
func (q *Queue) PublishProcessDocument(ctx context.Context, job *jobs.ProcessDocumentJob) error {
	q.mu.RLock()
	closed := q.closed
	q.mu.RUnlock()
	if closed {
		return ErrQueueClosed
	}

	if job.JobID == "" {
		job.JobID = uuid.New().String()
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}

	select {
	case q.jobChan <- job:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("PublishProcessDocument: %w: %v", ErrQueueFull, ctx.Err())
	case <-q.closeChan:
		return ErrQueueClosed
	}
}

// Start implements the Consumer interface.
// The handler is called concurrently, up to workerCount jobs at a time.
func (q *Queue) Start(ctx context.Context, handler jobs.JobHandler) error {
	q.mu.RLock()
	if q.closed {
		q.mu.RUnlock()
		return ErrQueueClosed
	}
	q.mu.RUnlock()

	for i := 0; i < q.workerCount; i++ {
		q.wg.Add(1)
		go q.worker(ctx, handler)
	}

	q.log.Info().Int("workers", q.workerCount).Msg("job queue started")
	return nil
}

func (q *Queue) worker(ctx context.Context, handler jobs.JobHandler) {
	defer q.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-q.closeChan:
			return
		case job := <-q.jobChan:
			if job == nil {
				return
			}
			q.processJob(ctx, job, handler)
		}
	}
}

// processJob runs one job exactly once. A panicking handler is logged and
// the worker keeps going.
func (q *Queue) processJob(ctx context.Context, job *jobs.ProcessDocumentJob, handler jobs.JobHandler) {
	log := q.log.With().Str("job_id", job.JobID).Str("document_id", job.DocumentID).Logger()

	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("job handler panicked")
		}
	}()

	start := time.Now()
	if err := handler(ctx, job); err != nil {
		log.Warn().Err(err).Dur("duration", time.Since(start)).Msg("job finished with error")
		return
	}
	log.Debug().Dur("duration", time.Since(start)).Msg("job finished")
}

// Stop implements the Consumer interface.
// It stops accepting jobs and waits for in-flight jobs to complete or ctx to end.
// Jobs still buffered are dropped.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.closeChan)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		if n := len(q.jobChan); n > 0 {
			q.log.Warn().Int("dropped", n).Msg("job queue stopped with unprocessed jobs")
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Ensure Queue implements both Publisher and Consumer interfaces.
var _ jobs.Publisher = (*Queue)(nil)
var _ jobs.Consumer = (*Queue)(nil)
