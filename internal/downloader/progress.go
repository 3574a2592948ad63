package downloader

import (
	"context"
	"sync"
	"time"

	"github.com/quickdl-bot/quickdl/pkg/logger"
)

const progressQueueSize = 64

// EmitFunc delivers a coalesced progress event to the transport layer. It
// may fail (message unchanged, flood limits); failures are logged and
// swallowed so a broken UI update never aborts a download.
type EmitFunc func(ProgressEvent) error

// Tracker bridges the extractor's high-frequency progress callbacks, which
// arrive on worker goroutines, into a rate-limited stream for the transport
// layer. Events cross goroutines through a bounded FIFO channel; a single
// drain loop merges them into an accumulated state and emits at most once
// per interval, except that terminal statuses are emitted immediately.
type Tracker struct {
	interval time.Duration
	emit     EmitFunc

	events chan ProgressEvent
	stop   chan struct{}
	done   chan struct{}
	once   sync.Once

	state    ProgressEvent
	lastEmit time.Time
}

func NewTracker(interval time.Duration, emit EmitFunc) *Tracker {
	return &Tracker{
		interval: interval,
		emit:     emit,
		events:   make(chan ProgressEvent, progressQueueSize),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Publish enqueues an event without ever blocking the worker goroutine.
// When the queue is full the oldest pending event is dropped to make room,
// so the most recent event (and any terminal event) always gets through.
func (t *Tracker) Publish(ev ProgressEvent) {
	select {
	case t.events <- ev:
		return
	default:
	}
	select {
	case <-t.events:
	default:
	}
	select {
	case t.events <- ev:
	default:
	}
}

// Run drains the event queue until ctx ends or Stop is called. Stop drains
// whatever is still queued before returning, so terminal events published
// right before shutdown are not lost.
func (t *Tracker) Run(ctx context.Context) {
	defer close(t.done)
	for {
		select {
		case ev := <-t.events:
			t.handle(ev)
		case <-ctx.Done():
			return
		case <-t.stop:
			for {
				select {
				case ev := <-t.events:
					t.handle(ev)
				default:
					return
				}
			}
		}
	}
}

// Stop ends the drain loop and waits for it to finish.
func (t *Tracker) Stop() {
	t.once.Do(func() { close(t.stop) })
	<-t.done
}

func (t *Tracker) handle(ev ProgressEvent) {
	t.merge(ev)

	if ev.Status.Terminal() {
		t.flush()
		return
	}
	if time.Since(t.lastEmit) >= t.interval {
		t.flush()
	}
}

// merge folds the new event into the accumulated state. Zero fields keep
// their previous value; a retrying status resets the byte counters so the
// consumer sees the reset together with the explicit status change.
func (t *Tracker) merge(ev ProgressEvent) {
	if ev.Status != "" {
		t.state.Status = ev.Status
	}
	if ev.Status == StatusRetrying {
		t.state.DownloadedBytes = 0
		t.state.SpeedBps = 0
		t.state.ETASeconds = 0
	}
	if ev.DownloadedBytes > 0 {
		t.state.DownloadedBytes = ev.DownloadedBytes
	}
	if ev.TotalBytes > 0 {
		t.state.TotalBytes = ev.TotalBytes
	}
	if ev.SpeedBps > 0 {
		t.state.SpeedBps = ev.SpeedBps
	}
	if ev.ETASeconds > 0 {
		t.state.ETASeconds = ev.ETASeconds
	}
	if ev.Filename != "" {
		t.state.Filename = ev.Filename
	}
	if ev.Message != "" {
		t.state.Message = ev.Message
	}
}

func (t *Tracker) flush() {
	t.lastEmit = time.Now()
	if err := t.emit(t.state); err != nil {
		logger.Debug("Progress emit failed", "status", t.state.Status, "error", err)
	}
}
