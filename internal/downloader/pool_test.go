package downloader

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolCapsConcurrency(t *testing.T) {
	pool := NewPool(2)

	var running, peak int32
	release := make(chan struct{})

	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := pool.Run(context.Background(), func() (*ExtractResult, error) {
				n := atomic.AddInt32(&running, 1)
				for {
					p := atomic.LoadInt32(&peak)
					if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
						break
					}
				}
				<-release
				atomic.AddInt32(&running, -1)
				return &ExtractResult{}, nil
			}, nil)
			assert.NoError(t, err)
		}()
	}

	// Let the first workers get their slots.
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 2, pool.Active())

	close(release)
	wg.Wait()

	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
	assert.Equal(t, 0, pool.Active())
}

func TestPoolCancelWhileWaitingForSlot(t *testing.T) {
	pool := NewPool(1)

	block := make(chan struct{})
	go pool.Run(context.Background(), func() (*ExtractResult, error) {
		<-block
		return &ExtractResult{}, nil
	}, nil)
	time.Sleep(50 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := pool.Run(ctx, func() (*ExtractResult, error) {
		t.Error("fn must not run when acquisition is cancelled")
		return nil, nil
	}, nil)
	require.ErrorIs(t, err, context.Canceled)

	close(block)
}

func TestPoolAbandonsRunningCall(t *testing.T) {
	pool := NewPool(1)

	started := make(chan struct{})
	finish := make(chan struct{})
	finished := make(chan struct{})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	_, err := pool.Run(ctx, func() (*ExtractResult, error) {
		close(started)
		<-finish
		close(finished)
		return &ExtractResult{}, nil
	}, nil)
	require.ErrorIs(t, err, context.Canceled)

	// The worker is still holding its slot: the call was abandoned, not
	// interrupted.
	<-started
	assert.Equal(t, 1, pool.Active())

	close(finish)
	<-finished
	assert.Eventually(t, func() bool { return pool.Active() == 0 },
		time.Second, 10*time.Millisecond)
}

func TestPoolDiscardsLateResultOfAbandonedCall(t *testing.T) {
	pool := NewPool(1)

	finish := make(chan struct{})
	discarded := make(chan *ExtractResult, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := pool.Run(ctx, func() (*ExtractResult, error) {
		<-finish
		return &ExtractResult{ID: "vid"}, nil
	}, func(res *ExtractResult) {
		discarded <- res
	})
	require.ErrorIs(t, err, context.Canceled)

	close(finish)
	select {
	case res := <-discarded:
		require.NotNil(t, res)
		assert.Equal(t, "vid", res.ID)
	case <-time.After(time.Second):
		t.Fatal("discard hook never received the late result")
	}
}
