package queue

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/okian/turnlat/internal/domain/model"
	"github.com/okian/turnlat/pkg/logger"
)

func TestMain(m *testing.M) {
	_ = logger.Init()
	m.Run()
}

func TestInMemoryQueue_BasicOperations(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2))
	ctx := context.Background()

	if l := q.Len(ctx); l != 0 {
		t.Errorf("expected length 0, got %d", l)
	}

	if !q.Enqueue(ctx, model.Recording{ID: "RE1"}) {
		t.Error("expected enqueue to succeed")
	}
	if l := q.Len(ctx); l != 1 {
		t.Errorf("expected length 1, got %d", l)
	}

	job := <-q.Dequeue(ctx)
	if job.ID != "RE1" {
		t.Errorf("expected RE1, got %v", job.ID)
	}
	if l := q.Len(ctx); l != 0 {
		t.Errorf("expected length 0, got %d", l)
	}
}

func TestInMemoryQueue_Capacity(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2))
	ctx := context.Background()

	if !q.Enqueue(ctx, model.Recording{ID: "RE1"}) || !q.Enqueue(ctx, model.Recording{ID: "RE2"}) {
		t.Fatal("expected enqueue to succeed")
	}
	if q.Enqueue(ctx, model.Recording{ID: "RE3"}) {
		t.Error("expected enqueue to fail when full")
	}
}

func TestInMemoryQueue_CanceledContext(t *testing.T) {
	q := NewInMemoryQueue()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if q.Enqueue(ctx, model.Recording{ID: "RE1"}) {
		t.Error("expected enqueue to fail on canceled context")
	}
}

func TestInMemoryQueue_CloseDrains(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(10))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		q.Enqueue(ctx, model.Recording{ID: fmt.Sprintf("RE%d", i)})
	}
	if err := q.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := q.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if q.Enqueue(ctx, model.Recording{ID: "late"}) {
		t.Error("expected enqueue after close to fail")
	}

	var got []string
	for j := range q.Dequeue(ctx) {
		got = append(got, j.ID)
	}
	if len(got) != 3 || got[0] != "RE0" || got[2] != "RE2" {
		t.Errorf("expected queued jobs in order after close, got %v", got)
	}
}

func TestInMemoryQueue_ConcurrentConsumers(t *testing.T) {
	const jobs = 200
	q := NewInMemoryQueue(WithCapacity(jobs))
	ctx := context.Background()
	for i := 0; i < jobs; i++ {
		q.Enqueue(ctx, model.Recording{ID: fmt.Sprintf("RE%d", i)})
	}
	_ = q.Close()

	var mu sync.Mutex
	seen := make(map[string]int)
	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range q.Dequeue(ctx) {
				mu.Lock()
				seen[j.ID]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(seen) != jobs {
		t.Fatalf("expected %d distinct jobs, got %d", jobs, len(seen))
	}
	for id, n := range seen {
		if n != 1 {
			t.Errorf("job %s delivered %d times", id, n)
		}
	}
}
