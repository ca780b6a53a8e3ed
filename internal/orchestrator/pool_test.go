package orchestrator

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolRunsSubmittedTasks(t *testing.T) {
	p := NewPool(2, 8)

	var ran atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		err := p.Submit(Task{Name: "count", Run: func(ctx context.Context) error {
			defer wg.Done()
			ran.Add(1)
			return nil
		}})
		require.NoError(t, err)
	}

	wg.Wait()
	p.Close()
	assert.Equal(t, int32(5), ran.Load())
}

func TestPoolRejectsWhenQueueFull(t *testing.T) {
	p := NewPool(1, 1)
	defer p.Close()

	block := make(chan struct{})
	defer close(block)

	started := make(chan struct{})
	require.NoError(t, p.Submit(Task{Name: "block", Run: func(ctx context.Context) error {
		close(started)
		<-block
		return nil
	}}))
	<-started

	// The worker is parked, so this one sits in the queue.
	require.NoError(t, p.Submit(Task{Name: "queued", Run: func(ctx context.Context) error {
		return nil
	}}))

	err := p.Submit(Task{Name: "rejected", Run: func(ctx context.Context) error {
		return nil
	}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "full")
}

func TestPoolRejectsAfterClose(t *testing.T) {
	p := NewPool(1, 1)
	p.Close()

	err := p.Submit(Task{Name: "late", Run: func(ctx context.Context) error { return nil }})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "closed")
}

func TestPoolCloseDrainsQueue(t *testing.T) {
	p := NewPool(1, 4)

	var ran atomic.Int32
	for i := 0; i < 4; i++ {
		require.NoError(t, p.Submit(Task{Name: "drain", Run: func(ctx context.Context) error {
			time.Sleep(5 * time.Millisecond)
			ran.Add(1)
			return nil
		}}))
	}

	p.Close()
	assert.Equal(t, int32(4), ran.Load())
}

func TestPoolCloseIsIdempotent(t *testing.T) {
	p := NewPool(1, 1)
	p.Close()
	p.Close()
}
