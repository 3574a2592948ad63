// Package downloader implements the download orchestration core: a bounded
// pool for blocking extractor calls, throttled progress tracking, a size
// guard, retrying download attempts with cookie rotation and a per-chat
// queue that serializes downloads for each chat.
package downloader

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusExtracting  Status = "extracting"
	StatusDownloading Status = "downloading"
	StatusRetrying    Status = "retrying"
	StatusUploading   Status = "uploading"
	StatusFinished    Status = "finished"
	StatusError       Status = "error"
	StatusCancelled   Status = "cancelled"
)

// Terminal reports whether no further progress follows this status.
func (s Status) Terminal() bool {
	return s == StatusFinished || s == StatusError || s == StatusCancelled
}

// ProgressEvent is the typed form of the loosely shaped progress payloads
// the extractor emits. Zero fields mean "not reported in this event" and are
// merged over the previously known values by the Tracker.
type ProgressEvent struct {
	Status          Status
	DownloadedBytes int64
	TotalBytes      int64
	SpeedBps        float64
	ETASeconds      int64
	Filename        string
	Message         string
}

// Request is a single user intent, immutable once created.
type Request struct {
	ID             string
	ChatID         int64
	UserID         int64
	SourceID       string
	FormatSelector string

	// Known from a prior metadata probe; zero when unknown.
	Title    string
	Duration time.Duration

	MaxDuration  time.Duration
	MaxSizeBytes int64
}

func NewRequest(chatID, userID int64, sourceID, formatSelector string) Request {
	return Request{
		ID:             uuid.NewString(),
		ChatID:         chatID,
		UserID:         userID,
		SourceID:       sourceID,
		FormatSelector: formatSelector,
	}
}

// Outcome is the terminal result of one logical download.
type Outcome struct {
	Success   bool
	FilePath  string
	Title     string
	Performer string
	Duration  time.Duration
	FileSize  int64
	Ext       string
	Err       error
}

// Kind extracts the error classification from a failed outcome.
func (o Outcome) Kind() ErrorKind {
	if o.Success || o.Err == nil {
		return kindNone
	}
	return KindOf(o.Err)
}

// Format selector profiles with post-processing conventions the path
// resolver knows about. Anything else is passed to the extractor verbatim
// (explicit format ids, "best").
const (
	FormatBest      = "best"
	FormatBestAudio = "bestflac"
	FormatBestVideo = "bestvideo"
)

// ProgressFunc is invoked by the extractor from its worker goroutine.
type ProgressFunc func(ProgressEvent)

// ExtractOptions parametrize one blocking extractor call.
type ExtractOptions struct {
	FormatSelector string
	CookieFile     string
	OutputDir      string
}

// ExtractResult is the typed slice of the extractor's result the
// orchestrator actually consumes.
type ExtractResult struct {
	ID             string
	Title          string
	Uploader       string
	Ext            string
	Duration       time.Duration
	RequestedPaths []string
}

// MediaInfo is the metadata probe result used before a download starts.
type MediaInfo struct {
	ID       string
	Title    string
	Uploader string
	Duration time.Duration
}

// Extractor is the opaque extraction library boundary. Download blocks the
// calling goroutine until the media is fully downloaded (or fails) and may
// invoke hook concurrently with high frequency; it must be safe to call
// from multiple goroutines at once.
type Extractor interface {
	Probe(sourceID string, opts ExtractOptions) (*MediaInfo, error)
	Download(sourceID string, opts ExtractOptions, hook ProgressFunc) (*ExtractResult, error)
}
