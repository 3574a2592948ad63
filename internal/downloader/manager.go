package downloader

import (
	"context"
	"sync"
	"time"

	"github.com/quickdl-bot/quickdl/pkg/logger"
)

type Admission int

const (
	AdmissionStarted Admission = iota
	AdmissionQueued
	AdmissionRejected
)

// AdmitResult reports how Submit handled a request. Position is 1-based and
// only meaningful for AdmissionQueued.
type AdmitResult struct {
	Admission Admission
	Position  int
}

// UpdateFunc receives throttled progress for a request. Errors are logged
// and swallowed by the tracker.
type UpdateFunc func(req Request, ev ProgressEvent) error

// OutcomeFunc receives the terminal outcome of a request, before the next
// queued request of the same chat is promoted.
type OutcomeFunc func(req Request, out Outcome)

type ManagerConfig struct {
	MaxQueuePerChat  int
	ProgressInterval time.Duration
	StalledTimeout   time.Duration
}

// Manager serializes downloads per chat: one active slot per chat, a
// bounded FIFO backlog, automatic promotion on any terminal state, and
// stall auto-cancellation.
type Manager struct {
	cfg       ManagerConfig
	runner    *Runner
	onUpdate  UpdateFunc
	onOutcome OutcomeFunc

	mu     sync.Mutex
	active map[int64]*activeSlot
	queues map[int64][]Request
	wg     sync.WaitGroup
}

type activeSlot struct {
	req       Request
	cancel    context.CancelFunc
	startedAt time.Time

	mu          sync.Mutex
	reason      string
	downloading bool
	lastBytes   int64
	lastChange  time.Time
}

func (s *activeSlot) observe(ev ProgressEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ev.Status == StatusDownloading {
		s.downloading = true
		if ev.DownloadedBytes > 0 && ev.DownloadedBytes != s.lastBytes {
			s.lastBytes = ev.DownloadedBytes
			s.lastChange = time.Now()
		}
	} else {
		s.downloading = false
		s.lastChange = time.Now()
	}
}

func (s *activeSlot) stalledFor(timeout time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.downloading && time.Since(s.lastChange) > timeout
}

func (s *activeSlot) cancelWithReason(reason string) {
	s.mu.Lock()
	if s.reason == "" {
		s.reason = reason
	}
	s.mu.Unlock()
	s.cancel()
}

func (s *activeSlot) cancelReason() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reason
}

func NewManager(cfg ManagerConfig, runner *Runner, onUpdate UpdateFunc, onOutcome OutcomeFunc) *Manager {
	return &Manager{
		cfg:       cfg,
		runner:    runner,
		onUpdate:  onUpdate,
		onOutcome: onOutcome,
		active:    make(map[int64]*activeSlot),
		queues:    make(map[int64][]Request),
	}
}

// Submit admits the request: started immediately when the chat is idle,
// queued when the backlog has room, rejected otherwise.
func (m *Manager) Submit(req Request) AdmitResult {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, busy := m.active[req.ChatID]; busy {
		backlog := m.queues[req.ChatID]
		if len(backlog) >= m.cfg.MaxQueuePerChat {
			logger.Warn("Download queue full", "chat", req.ChatID, "source", req.SourceID)
			return AdmitResult{Admission: AdmissionRejected}
		}
		m.queues[req.ChatID] = append(backlog, req)
		return AdmitResult{Admission: AdmissionQueued, Position: len(m.queues[req.ChatID])}
	}

	m.startLocked(req)
	return AdmitResult{Admission: AdmissionStarted}
}

// CancelActive cancels the chat's active download, if any. The runner
// observes it at its next suspension point, cleans up and the next queued
// request is promoted.
func (m *Manager) CancelActive(chatID int64) bool {
	m.mu.Lock()
	slot, ok := m.active[chatID]
	m.mu.Unlock()
	if !ok {
		return false
	}
	slot.cancelWithReason("cancelled by user")
	return true
}

// CancelQueued removes one backlog entry without touching the active slot.
func (m *Manager) CancelQueued(chatID int64, requestID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	backlog := m.queues[chatID]
	for i, queued := range backlog {
		if queued.ID == requestID {
			backlog = append(backlog[:i], backlog[i+1:]...)
			if len(backlog) == 0 {
				delete(m.queues, chatID)
			} else {
				m.queues[chatID] = backlog
			}
			return true
		}
	}
	return false
}

// Active returns the chat's running request, if any.
func (m *Manager) Active(chatID int64) (Request, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	slot, ok := m.active[chatID]
	if !ok {
		return Request{}, false
	}
	return slot.req, true
}

func (m *Manager) QueueLength(chatID int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queues[chatID])
}

func (m *Manager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active)
}

// Shutdown cancels every active download and waits for their goroutines.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	for _, slot := range m.active {
		slot.cancelWithReason("shutting down")
	}
	m.mu.Unlock()
	m.wg.Wait()
}

func (m *Manager) startLocked(req Request) {
	ctx, cancel := context.WithCancel(context.Background())
	now := time.Now()
	slot := &activeSlot{
		req:        req,
		cancel:     cancel,
		startedAt:  now,
		lastChange: now,
	}
	m.active[req.ChatID] = slot

	m.wg.Add(1)
	go m.run(ctx, slot)
}

func (m *Manager) run(ctx context.Context, slot *activeSlot) {
	defer m.wg.Done()
	req := slot.req

	tracker := NewTracker(m.cfg.ProgressInterval, func(ev ProgressEvent) error {
		if m.onUpdate == nil {
			return nil
		}
		return m.onUpdate(req, ev)
	})
	// The tracker outlives ctx so terminal events published during
	// cancellation still drain before Stop returns.
	go tracker.Run(context.Background())

	stallCtx, stopStall := context.WithCancel(ctx)
	go m.watchStall(stallCtx, slot)

	out := m.runner.Run(ctx, req, tracker, slot.observe)

	stopStall()
	slot.cancel()
	tracker.Stop()

	if out.Kind() == KindCancelled {
		if reason := slot.cancelReason(); reason != "" {
			out.Err = errCancelled(reason)
		}
	}

	logger.Info("Download finished",
		"chat", req.ChatID, "source", req.SourceID,
		"success", out.Success, "kind", out.Kind().String(),
		"elapsed", time.Since(slot.startedAt).Round(time.Millisecond))

	if m.onOutcome != nil {
		m.onOutcome(req, out)
	}
	m.promoteNext(req.ChatID)
}

func (m *Manager) watchStall(ctx context.Context, slot *activeSlot) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if slot.stalledFor(m.cfg.StalledTimeout) {
				logger.Warn("Download stalled, cancelling",
					"chat", slot.req.ChatID, "source", slot.req.SourceID)
				slot.cancelWithReason("download stalled, cancelled automatically")
				return
			}
		}
	}
}

// promoteNext frees the chat's active slot and starts the head of its
// backlog. An empty backlog clears all state for the chat.
func (m *Manager) promoteNext(chatID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.active, chatID)

	backlog := m.queues[chatID]
	if len(backlog) == 0 {
		delete(m.queues, chatID)
		return
	}

	next := backlog[0]
	if len(backlog) == 1 {
		delete(m.queues, chatID)
	} else {
		m.queues[chatID] = backlog[1:]
	}
	logger.Info("Promoting queued download", "chat", chatID, "source", next.SourceID)
	m.startLocked(next)
}
