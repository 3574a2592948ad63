package downloader

import (
	"sync"
)

// SizeGuard watches the progress stream of one download and trips once the
// downloaded or projected total bytes pass the configured ceiling. A zero
// or negative ceiling disables the guard.
type SizeGuard struct {
	max int64

	mu       sync.Mutex
	current  int64
	filename string
	exceeded bool
}

func NewSizeGuard(maxBytes int64) *SizeGuard {
	return &SizeGuard{max: maxBytes}
}

// Observe inspects one progress event and returns a size-exceeded error the
// first time the ceiling is passed.
func (g *SizeGuard) Observe(ev ProgressEvent) error {
	if g.max <= 0 {
		return nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if ev.Filename != "" {
		g.filename = ev.Filename
	}
	if ev.Status != StatusDownloading {
		return nil
	}
	if ev.DownloadedBytes > 0 {
		g.current = ev.DownloadedBytes
	}

	if g.exceeded {
		return errSizeExceeded(g.max)
	}
	if g.current > g.max || (ev.TotalBytes > 0 && ev.TotalBytes > g.max) {
		g.exceeded = true
		return errSizeExceeded(g.max)
	}
	return nil
}

func (g *SizeGuard) Exceeded() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.exceeded
}

// Filename returns the in-progress output path last reported by the
// extractor, used to delete partial data after an abort.
func (g *SizeGuard) Filename() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.filename
}
