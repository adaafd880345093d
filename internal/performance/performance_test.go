package performance

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// BenchmarkWorkerPool benchmarks worker pool performance.
func BenchmarkWorkerPool(b *testing.B) {
	pool := NewWorkerPool(4)
	pool.Start()
	defer pool.Stop()

	var counter int64
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = pool.SubmitContext(ctx, func() {
			atomic.AddInt64(&counter, 1)
		})
	}
}

// BenchmarkRateLimiter benchmarks rate limiter performance.
func BenchmarkRateLimiter(b *testing.B) {
	limiter := NewRateLimiter(1000000, 1000)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		limiter.Allow()
	}
}

func TestWorkerPoolRunsEveryTask(t *testing.T) {
	pool := NewWorkerPool(4)
	pool.Start()

	var counter int64
	var wg sync.WaitGroup
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		wg.Add(1)
		err := pool.SubmitContext(ctx, func() {
			defer wg.Done()
			atomic.AddInt64(&counter, 1)
		})
		require.NoError(t, err)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Timeout waiting for tasks to complete")
	}

	pool.Stop()

	assert.Equal(t, int64(100), atomic.LoadInt64(&counter))
	stats := pool.Stats()
	assert.Equal(t, uint64(100), stats.TasksTotal)
	assert.Equal(t, uint64(100), stats.TasksDone)
	assert.False(t, stats.Running)
}

func TestWorkerPoolRejectsWhenStopped(t *testing.T) {
	pool := NewWorkerPool(1)
	assert.False(t, pool.Submit(func() {}))
	assert.Error(t, pool.SubmitContext(context.Background(), func() {}))

	pool.Start()
	assert.True(t, pool.SubmitWait(func() {}))
	pool.Stop()
	pool.Stop()
	assert.False(t, pool.Submit(func() {}))
}

func TestWorkerPoolSubmitContextCancelled(t *testing.T) {
	pool := NewWorkerPool(1)
	pool.Start()
	defer pool.Stop()

	block := make(chan struct{})
	defer close(block)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	var err error
	for i := 0; i < 10 && err == nil; i++ {
		err = pool.SubmitContext(ctx, func() { <-block })
	}
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRateLimiterBurstAndRefill(t *testing.T) {
	limiter := NewRateLimiter(100, 10) // 100 requests/sec, burst of 10

	allowed := 0
	for i := 0; i < 15; i++ {
		if limiter.Allow() {
			allowed++
		}
	}
	assert.GreaterOrEqual(t, allowed, 10)
	assert.Less(t, allowed, 15)

	time.Sleep(100 * time.Millisecond)
	assert.True(t, limiter.Allow(), "expected to allow after refill")
}

func TestRateLimiterWaitHonoursContext(t *testing.T) {
	limiter := NewRateLimiter(0.001, 1)
	require.True(t, limiter.Allow())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, limiter.Wait(ctx), context.DeadlineExceeded)
}

func TestBatchProcessorFlushesFullBatches(t *testing.T) {
	var batches [][]int

	processor := NewBatchProcessor(5, func(items []int) error {
		batches = append(batches, items)
		return nil
	})

	for i := 0; i < 12; i++ {
		require.NoError(t, processor.Add(i))
	}
	require.NoError(t, processor.Flush())

	require.Len(t, batches, 3)
	assert.Equal(t, []int{0, 1, 2, 3, 4}, batches[0])
	assert.Len(t, batches[1], 5)
	assert.Equal(t, []int{10, 11}, batches[2])
}

func TestMemoryStats(t *testing.T) {
	stats := MemoryStats()
	assert.NotZero(t, stats.Alloc)
	assert.NotZero(t, stats.Goroutines)

	assert.Equal(t, "512 B", FormatBytes(512))
	assert.Equal(t, "1.5 KB", FormatBytes(1536))
	assert.Equal(t, "2.0 MB", FormatBytes(2*1024*1024))
}
