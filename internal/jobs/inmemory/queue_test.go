package inmemory

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dvloznov/fintrack-api/internal/jobs"
	"github.com/dvloznov/fintrack-api/internal/logger"
)

func TestQueue_PublishAndConsume(t *testing.T) {
	q := NewQueue(10, 3, logger.Nop())

	var (
		mu   sync.Mutex
		seen = map[string]bool{}
		wg   sync.WaitGroup
	)
	wg.Add(5)
	handler := func(ctx context.Context, job *jobs.ProcessDocumentJob) error {
		defer wg.Done()
		mu.Lock()
		seen[job.DocumentID] = true
		mu.Unlock()
		return nil
	}

	ctx := context.Background()
	if err := q.Start(ctx, handler); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	for _, id := range []string{"d1", "d2", "d3", "d4", "d5"} {
		job := &jobs.ProcessDocumentJob{DocumentID: id, Data: []byte("pdf")}
		if err := q.PublishProcessDocument(ctx, job); err != nil {
			t.Fatalf("PublishProcessDocument(%s) error = %v", id, err)
		}
		if job.JobID == "" {
			t.Error("JobID was not assigned")
		}
		if job.CreatedAt.IsZero() {
			t.Error("CreatedAt was not assigned")
		}
	}

	waitOrFail(t, &wg)

	if err := q.Stop(ctx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if len(seen) != 5 {
		t.Errorf("handled %d distinct jobs, want 5", len(seen))
	}
}

func TestQueue_NoRetryOnError(t *testing.T) {
	q := NewQueue(1, 1, logger.Nop())
	var calls int32
	done := make(chan struct{})
	handler := func(ctx context.Context, job *jobs.ProcessDocumentJob) error {
		atomic.AddInt32(&calls, 1)
		close(done)
		return errors.New("boom")
	}

	ctx := context.Background()
	_ = q.Start(ctx, handler)
	_ = q.PublishProcessDocument(ctx, &jobs.ProcessDocumentJob{DocumentID: "d1"})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("job was not handled")
	}
	time.Sleep(50 * time.Millisecond)
	_ = q.Stop(ctx)

	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("handler called %d times, want 1", got)
	}
}

func TestQueue_RecoversFromPanic(t *testing.T) {
	q := NewQueue(2, 1, logger.Nop())
	var wg sync.WaitGroup
	wg.Add(2)
	handler := func(ctx context.Context, job *jobs.ProcessDocumentJob) error {
		defer wg.Done()
		if job.DocumentID == "bad" {
			panic("handler bug")
		}
		return nil
	}

	ctx := context.Background()
	_ = q.Start(ctx, handler)
	_ = q.PublishProcessDocument(ctx, &jobs.ProcessDocumentJob{DocumentID: "bad"})
	_ = q.PublishProcessDocument(ctx, &jobs.ProcessDocumentJob{DocumentID: "good"})

	// The single worker must survive the panic to handle the second job.
	waitOrFail(t, &wg)
	_ = q.Stop(ctx)
}

func TestQueue_StopWaitsForInFlight(t *testing.T) {
	q := NewQueue(1, 1, logger.Nop())
	started := make(chan struct{})
	var finished int32
	handler := func(ctx context.Context, job *jobs.ProcessDocumentJob) error {
		close(started)
		time.Sleep(100 * time.Millisecond)
		atomic.StoreInt32(&finished, 1)
		return nil
	}

	ctx := context.Background()
	_ = q.Start(ctx, handler)
	_ = q.PublishProcessDocument(ctx, &jobs.ProcessDocumentJob{DocumentID: "d1"})
	<-started

	if err := q.Stop(ctx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if atomic.LoadInt32(&finished) != 1 {
		t.Error("Stop() returned before the in-flight job finished")
	}
}

func TestQueue_PublishAfterStop(t *testing.T) {
	q := NewQueue(1, 1, logger.Nop())
	_ = q.Stop(context.Background())

	err := q.PublishProcessDocument(context.Background(), &jobs.ProcessDocumentJob{DocumentID: "d1"})
	if !errors.Is(err, ErrQueueClosed) {
		t.Errorf("error = %v, want ErrQueueClosed", err)
	}
	if err := q.Start(context.Background(), nil); !errors.Is(err, ErrQueueClosed) {
		t.Errorf("Start() error = %v, want ErrQueueClosed", err)
	}
}

func TestQueue_PublishFullBuffer(t *testing.T) {
	// No workers started, so the single slot stays occupied.
	q := NewQueue(1, 1, logger.Nop())
	ctx := context.Background()
	if err := q.PublishProcessDocument(ctx, &jobs.ProcessDocumentJob{DocumentID: "d1"}); err != nil {
		t.Fatalf("first publish error = %v", err)
	}

	shortCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	err := q.PublishProcessDocument(shortCtx, &jobs.ProcessDocumentJob{DocumentID: "d2"})
	if !errors.Is(err, ErrQueueFull) {
		t.Errorf("error = %v, want ErrQueueFull", err)
	}
}

func waitOrFail(t *testing.T, wg *sync.WaitGroup) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for jobs")
	}
}
