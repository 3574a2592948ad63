package downloader

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type emitRecorder struct {
	mu     sync.Mutex
	events []ProgressEvent
	err    error
}

func (r *emitRecorder) emit(ev ProgressEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return r.err
}

func (r *emitRecorder) all() []ProgressEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ProgressEvent, len(r.events))
	copy(out, r.events)
	return out
}

func TestTrackerMergesPartialEvents(t *testing.T) {
	rec := &emitRecorder{}
	tr := NewTracker(0, rec.emit)
	go tr.Run(context.Background())

	tr.Publish(ProgressEvent{Status: StatusDownloading, DownloadedBytes: 100, TotalBytes: 1000, Filename: "a.mp4"})
	tr.Publish(ProgressEvent{DownloadedBytes: 500, SpeedBps: 2048})
	tr.Stop()

	events := rec.all()
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, StatusDownloading, last.Status)
	assert.Equal(t, int64(500), last.DownloadedBytes)
	assert.Equal(t, int64(1000), last.TotalBytes)
	assert.Equal(t, float64(2048), last.SpeedBps)
	assert.Equal(t, "a.mp4", last.Filename)
}

func TestTrackerThrottlesByInterval(t *testing.T) {
	rec := &emitRecorder{}
	tr := NewTracker(time.Hour, rec.emit)
	go tr.Run(context.Background())

	for i := 1; i <= 50; i++ {
		tr.Publish(ProgressEvent{Status: StatusDownloading, DownloadedBytes: int64(i)})
	}
	time.Sleep(100 * time.Millisecond)
	tr.Stop()

	// Only the very first event beats the interval window.
	assert.Len(t, rec.all(), 1)
}

func TestTrackerEmitsTerminalImmediately(t *testing.T) {
	rec := &emitRecorder{}
	tr := NewTracker(time.Hour, rec.emit)
	go tr.Run(context.Background())

	tr.Publish(ProgressEvent{Status: StatusDownloading, DownloadedBytes: 10})
	tr.Publish(ProgressEvent{Status: StatusFinished})
	tr.Stop()

	events := rec.all()
	require.Len(t, events, 2)
	assert.Equal(t, StatusFinished, events[1].Status)
	assert.Equal(t, int64(10), events[1].DownloadedBytes)
}

func TestTrackerRetryingResetsCounters(t *testing.T) {
	rec := &emitRecorder{}
	tr := NewTracker(0, rec.emit)
	go tr.Run(context.Background())

	tr.Publish(ProgressEvent{Status: StatusDownloading, DownloadedBytes: 900, SpeedBps: 1024, ETASeconds: 5})
	tr.Publish(ProgressEvent{Status: StatusRetrying, Message: "attempt 1/3 failed, retrying"})
	tr.Stop()

	events := rec.all()
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, StatusRetrying, last.Status)
	assert.Zero(t, last.DownloadedBytes)
	assert.Zero(t, last.SpeedBps)
	assert.Zero(t, last.ETASeconds)
}

func TestTrackerDownloadedBytesMonotonicWithinAttempt(t *testing.T) {
	rec := &emitRecorder{}
	tr := NewTracker(0, rec.emit)
	go tr.Run(context.Background())

	tr.Publish(ProgressEvent{Status: StatusDownloading, DownloadedBytes: 300})
	tr.Publish(ProgressEvent{DownloadedBytes: 700})
	tr.Publish(ProgressEvent{SpeedBps: 512}) // no byte count reported
	tr.Stop()

	var prev int64
	for _, ev := range rec.all() {
		assert.GreaterOrEqual(t, ev.DownloadedBytes, prev)
		prev = ev.DownloadedBytes
	}
	assert.Equal(t, int64(700), prev)
}

func TestTrackerSwallowsEmitErrors(t *testing.T) {
	rec := &emitRecorder{err: errors.New("message is not modified")}
	tr := NewTracker(0, rec.emit)
	go tr.Run(context.Background())

	tr.Publish(ProgressEvent{Status: StatusDownloading, DownloadedBytes: 1})
	tr.Publish(ProgressEvent{Status: StatusFinished})
	tr.Stop()

	// Both emits failed; the tracker kept going regardless.
	assert.Len(t, rec.all(), 2)
}

func TestTrackerPublishNeverBlocks(t *testing.T) {
	tr := NewTracker(0, func(ProgressEvent) error { return nil })
	// No drain loop running: the queue fills up and old events get dropped.
	done := make(chan struct{})
	go func() {
		for i := 0; i < progressQueueSize*4; i++ {
			tr.Publish(ProgressEvent{Status: StatusDownloading, DownloadedBytes: int64(i)})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a full queue")
	}
}
