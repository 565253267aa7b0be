package memory

import (
	"context"
	"testing"
	"time"

	"github.com/oss-observatory/starcrawler/internal/crawler"
)

func TestQueueEnqueueDequeue(t *testing.T) {
	t.Parallel()

	q := NewQueue(1)
	result := make(chan crawler.WorkUnit, 1)
	errCh := make(chan error, 1)

	go func() {
		unit, err := q.Dequeue(context.Background())
		if err != nil {
			errCh <- err
			return
		}
		result <- unit
	}()

	time.Sleep(10 * time.Millisecond) // allow goroutine to start
	unit := crawler.WorkUnit{Predicate: crawler.SearchPredicate{Query: "language:Go stars:>10000"}}
	if err := q.Enqueue(context.Background(), unit); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	select {
	case err := <-errCh:
		t.Fatalf("Dequeue() error = %v", err)
	case got := <-result:
		if got.Predicate.Query != "language:Go stars:>10000" {
			t.Fatalf("expected seeded unit, got %+v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("dequeue did not return unit")
	}
}

func TestQueueCancelationErrors(t *testing.T) {
	t.Parallel()

	qDequeue := NewQueue(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := qDequeue.Dequeue(ctx); err == nil ||
		err.Error() != "dequeue canceled: context canceled" {
		t.Fatalf("expected dequeue cancel error, got %v", err)
	}

	qEnqueue := NewQueue(1)
	primed := crawler.WorkUnit{Predicate: crawler.SearchPredicate{Query: "language:Go stars:1..9"}}
	if err := qEnqueue.Enqueue(context.Background(), primed); err != nil {
		t.Fatalf("failed to prime enqueue queue: %v", err)
	}
	ctx, cancel = context.WithCancel(context.Background())
	cancel()
	if err := qEnqueue.Enqueue(ctx, crawler.WorkUnit{}); err == nil ||
		err.Error() != "enqueue canceled: context canceled" {
		t.Fatalf("expected enqueue cancel error, got %v", err)
	}
}

func TestQueueClose(t *testing.T) {
	t.Parallel()

	q := NewQueue(1)
	if err := q.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if _, err := q.Dequeue(context.Background()); err == nil || err.Error() != "queue closed" {
		t.Fatalf("expected queue closed error, got %v", err)
	}
	// Closing twice should be safe.
	if err := q.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
}
