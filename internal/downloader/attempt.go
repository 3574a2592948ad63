package downloader

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/quickdl-bot/quickdl/pkg/logger"
)

// CookieSource hands out one credential file per extraction call.
type CookieSource interface {
	Get() (string, bool)
}

type RunnerConfig struct {
	// MaxRetries is the total number of attempts, not the number of
	// retries after the first failure.
	MaxRetries  int
	BaseDelay   time.Duration
	DownloadDir string
}

// Runner drives one logical download request through extraction: cookie
// acquisition, the pooled blocking call, size guarding, transient-failure
// retries with backoff and rotated cookies, and artifact resolution. All
// failures come back as typed outcomes; nothing escapes as a raw error.
type Runner struct {
	cookies   CookieSource
	pool      *Pool
	extractor Extractor
	cfg       RunnerConfig
}

func NewRunner(cookies CookieSource, pool *Pool, extractor Extractor, cfg RunnerConfig) *Runner {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 1
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 2 * time.Second
	}
	return &Runner{
		cookies:   cookies,
		pool:      pool,
		extractor: extractor,
		cfg:       cfg,
	}
}

// Run executes the request until a terminal outcome. The observe hook, when
// non-nil, sees every raw progress event before throttling; the manager
// uses it for stall detection.
func (r *Runner) Run(ctx context.Context, req Request, tracker *Tracker, observe ProgressFunc) Outcome {
	if req.Duration > 0 && req.MaxDuration > 0 && req.Duration > req.MaxDuration {
		err := errPermanent(fmt.Sprintf("video duration %s exceeds the %s limit",
			req.Duration.Round(time.Second), req.MaxDuration), nil)
		return r.fail(tracker, req, err)
	}

	guard := NewSizeGuard(req.MaxSizeBytes)

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = r.cfg.BaseDelay
	bo.MaxInterval = 30 * time.Second
	bo.Reset()

	var lastErr error
	for attempt := 1; attempt <= r.cfg.MaxRetries; attempt++ {
		if ctx.Err() != nil {
			return r.cancelledOutcome(tracker, guard, req)
		}

		cookie, ok := r.cookies.Get()
		if !ok {
			return r.fail(tracker, req, errPermanent("no cookie credentials available", nil))
		}

		tracker.Publish(ProgressEvent{Status: StatusExtracting})

		attemptCtx, stopAttempt := context.WithCancel(ctx)
		hook := func(ev ProgressEvent) {
			if observe != nil {
				observe(ev)
			}
			if err := guard.Observe(ev); err != nil {
				// Stop waiting on the worker; the blocking call is
				// abandoned and its result discarded.
				stopAttempt()
				return
			}
			tracker.Publish(ev)
		}

		opts := ExtractOptions{
			FormatSelector: req.FormatSelector,
			CookieFile:     cookie,
			OutputDir:      r.cfg.DownloadDir,
		}
		res, err := r.pool.Run(attemptCtx, func() (*ExtractResult, error) {
			return r.extractor.Download(req.SourceID, opts, hook)
		}, func(late *ExtractResult) {
			// The abandoned call outlived the cancellation and may have
			// written its artifact after the cancel-time cleanup ran.
			var paths []string
			if late != nil {
				paths = late.RequestedPaths
			}
			r.cleanup(guard, req, paths...)
		})
		stopAttempt()

		if guard.Exceeded() {
			r.cleanup(guard, req)
			return r.fail(tracker, req, errSizeExceeded(req.MaxSizeBytes))
		}
		if ctx.Err() != nil {
			return r.cancelledOutcome(tracker, guard, req)
		}

		if err != nil {
			if KindOf(err) == KindPermanent {
				return r.fail(tracker, req, errPermanent("extraction failed", err))
			}
			lastErr = err
			logger.Warn("Download attempt failed",
				"source", req.SourceID, "attempt", attempt, "max", r.cfg.MaxRetries, "error", err)

			if attempt < r.cfg.MaxRetries {
				tracker.Publish(ProgressEvent{
					Status:  StatusRetrying,
					Message: fmt.Sprintf("attempt %d/%d failed, retrying", attempt, r.cfg.MaxRetries),
				})
				select {
				case <-time.After(bo.NextBackOff()):
				case <-ctx.Done():
					return r.cancelledOutcome(tracker, guard, req)
				}
			}
			continue
		}

		return r.resolve(tracker, req, res)
	}

	err := errTransient(fmt.Sprintf("download failed after %d attempts", r.cfg.MaxRetries), lastErr)
	return r.fail(tracker, req, err)
}

// resolve confirms the artifact on disk and builds the success outcome. The
// extractor's success report is never trusted without a resolvable file.
func (r *Runner) resolve(tracker *Tracker, req Request, res *ExtractResult) Outcome {
	path, err := resolveArtifact(r.cfg.DownloadDir, req, res)
	if err != nil {
		return r.fail(tracker, req, err)
	}

	info, statErr := os.Stat(path)
	if statErr != nil {
		return r.fail(tracker, req, errResolution(req.SourceID))
	}

	title := res.Title
	if title == "" {
		title = req.Title
	}
	duration := res.Duration
	if duration == 0 {
		duration = req.Duration
	}

	tracker.Publish(ProgressEvent{
		Status:          StatusFinished,
		DownloadedBytes: info.Size(),
		TotalBytes:      info.Size(),
		Filename:        path,
	})

	return Outcome{
		Success:   true,
		FilePath:  path,
		Title:     title,
		Performer: res.Uploader,
		Duration:  duration,
		FileSize:  info.Size(),
		Ext:       strings.TrimPrefix(filepath.Ext(path), "."),
	}
}

func (r *Runner) fail(tracker *Tracker, req Request, err *Error) Outcome {
	tracker.Publish(ProgressEvent{Status: StatusError, Message: err.Error()})
	return Outcome{Title: req.Title, Err: err}
}

func (r *Runner) cancelledOutcome(tracker *Tracker, guard *SizeGuard, req Request) Outcome {
	r.cleanup(guard, req)
	tracker.Publish(ProgressEvent{Status: StatusCancelled, Message: "download cancelled"})
	return Outcome{Title: req.Title, Err: errCancelled("")}
}

// cleanup removes whatever output the aborted download left behind: any
// explicitly known paths, the in-progress file reported through the progress
// stream, plus anything matching the request's output id.
func (r *Runner) cleanup(guard *SizeGuard, req Request, extra ...string) {
	seen := map[string]bool{}
	remove := func(path string) {
		if path == "" || seen[path] {
			return
		}
		seen[path] = true
		if err := os.Remove(path); err == nil {
			logger.Info("Deleted partial download", "file", path)
		}
	}

	for _, p := range extra {
		remove(p)
		remove(p + ".part")
	}
	if f := guard.Filename(); f != "" {
		remove(f)
		remove(f + ".part")
	}
	matches, _ := filepath.Glob(filepath.Join(r.cfg.DownloadDir, req.SourceID+".*"))
	for _, m := range matches {
		remove(m)
	}
}

// resolveArtifact determines the final file path: the extractor's reported
// download paths first, then the post-processing naming conventions for the
// requested profile, then the extractor's reported extension. Always a
// single resolved path; a missing file is a typed resolution failure.
func resolveArtifact(dir string, req Request, res *ExtractResult) (string, *Error) {
	for _, p := range res.RequestedPaths {
		if fileExists(p) {
			return p, nil
		}
	}

	id := res.ID
	if id == "" {
		id = req.SourceID
	}

	var exts []string
	switch req.FormatSelector {
	case FormatBestAudio:
		exts = []string{"flac", "m4a", "webm"}
	case FormatBestVideo:
		exts = []string{"mp4", "webm"}
	default:
		if res.Ext != "" {
			exts = append(exts, res.Ext)
		}
		exts = append(exts, "mp4", "webm", "mkv")
	}

	for _, ext := range exts {
		p := filepath.Join(dir, id+"."+ext)
		if fileExists(p) {
			return p, nil
		}
	}
	return "", errResolution(req.SourceID)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
