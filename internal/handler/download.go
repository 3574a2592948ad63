package handler

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gotd/td/tg"

	"github.com/quickdl-bot/quickdl/config"
	"github.com/quickdl-bot/quickdl/internal/cookies"
	"github.com/quickdl-bot/quickdl/internal/downloader"
	"github.com/quickdl-bot/quickdl/internal/stats"
	"github.com/quickdl-bot/quickdl/internal/telegram"
	"github.com/quickdl-bot/quickdl/pkg/format"
	"github.com/quickdl-bot/quickdl/pkg/logger"
)

// statusEntry ties a live request to the message being edited with its
// progress and to the message the final media replies to.
type statusEntry struct {
	status  *telegram.StatusMessage
	replyTo int
	audio   bool
	userID  int64
}

type DownloadHandler struct {
	client    *telegram.Client
	extractor downloader.Extractor
	cookies   *cookies.Rotator
	cfg       *config.Config
	counters  *stats.Counters

	manager *downloader.Manager

	mu      sync.Mutex
	entries map[string]*statusEntry
}

func NewDownloadHandler(cli *telegram.Client, ext downloader.Extractor, rot *cookies.Rotator, cfg *config.Config) *DownloadHandler {
	return &DownloadHandler{
		client:    cli,
		extractor: ext,
		cookies:   rot,
		cfg:       cfg,
		counters:  stats.GetCounters(),
		entries:   make(map[string]*statusEntry),
	}
}

// Bind attaches the manager after construction; the manager needs this
// handler's callbacks first.
func (h *DownloadHandler) Bind(m *downloader.Manager) {
	h.manager = m
}

func (h *DownloadHandler) Handle(ctx context.Context, e tg.Entities, msg *tg.Message, source string, audioOnly bool) error {
	peer, err := telegram.ResolvePeer(msg.PeerID, e)
	if err != nil {
		return fmt.Errorf("failed to resolve peer: %w", err)
	}

	status, err := telegram.ReplyStatus(ctx, h.client.API(), peer, msg.ID, "🔎 Fetching metadata...", nil)
	if err != nil {
		return err
	}

	cookie, _ := h.cookies.Get()
	info, err := h.extractor.Probe(source, downloader.ExtractOptions{CookieFile: cookie})
	if err != nil {
		logger.Warn("Metadata probe failed", "source", source, "error", err)
		status.EditFinal(ctx, "❌ Could not fetch video info. The link may be broken or unsupported.")
		return err
	}

	if h.cfg.MaxVideoDuration > 0 && info.Duration > h.cfg.MaxVideoDuration {
		return status.EditFinal(ctx, fmt.Sprintf(
			"❌ Video is too long: %s (limit %s)",
			info.Duration.Round(time.Second), h.cfg.MaxVideoDuration))
	}

	selector := downloader.FormatBestVideo
	if audioOnly {
		selector = downloader.FormatBestAudio
	}

	sourceID := info.ID
	if sourceID == "" {
		sourceID = source
	}

	req := downloader.NewRequest(telegram.PeerKey(msg.PeerID), telegram.SenderID(msg), sourceID, selector)
	req.Title = info.Title
	req.Duration = info.Duration
	req.MaxDuration = h.cfg.MaxVideoDuration
	req.MaxSizeBytes = h.cfg.MaxFileSizeBytes

	status.SetMarkup(telegram.CancelMarkup("cancel:" + req.ID))

	h.mu.Lock()
	h.entries[req.ID] = &statusEntry{
		status:  status,
		replyTo: msg.ID,
		audio:   audioOnly,
		userID:  req.UserID,
	}
	h.mu.Unlock()

	res := h.manager.Submit(req)
	switch res.Admission {
	case downloader.AdmissionStarted:
		return status.Edit(ctx, fmt.Sprintf("🚀 Starting download\n%s", info.Title))
	case downloader.AdmissionQueued:
		return status.EditWait(ctx, fmt.Sprintf(
			"⏳ Queued at position %d\n%s\n\nIt starts automatically when the current download finishes.",
			res.Position, info.Title))
	default:
		h.forget(req.ID)
		return status.EditFinal(ctx, fmt.Sprintf(
			"❌ Queue is full (max %d waiting). Try again later.", h.cfg.MaxQueuePerChat))
	}
}

// HandleCallback serves the inline cancel button: the active download is
// cancelled through the queue manager, a queued one is removed outright.
func (h *DownloadHandler) HandleCallback(ctx context.Context, update *tg.UpdateBotCallbackQuery) error {
	data := string(update.Data)
	if !strings.HasPrefix(data, "cancel:") {
		return nil
	}
	requestID := strings.TrimPrefix(data, "cancel:")
	chatID := telegram.PeerKey(update.Peer)

	var note string
	if active, ok := h.manager.Active(chatID); ok && active.ID == requestID {
		h.manager.CancelActive(chatID)
		note = "Cancelling..."
	} else if h.manager.CancelQueued(chatID, requestID) {
		note = "Removed from queue"
		if entry := h.lookup(requestID); entry != nil {
			entry.status.EditFinal(ctx, "🛑 Removed from the queue.")
		}
		h.forget(requestID)
	} else {
		note = "Nothing to cancel"
	}

	answer := &tg.MessagesSetBotCallbackAnswerRequest{QueryID: update.QueryID}
	answer.SetMessage(note)
	_, err := h.client.API().MessagesSetBotCallbackAnswer(ctx, answer)
	return err
}

func (h *DownloadHandler) HandleCancel(ctx context.Context, e tg.Entities, msg *tg.Message) error {
	peer, err := telegram.ResolvePeer(msg.PeerID, e)
	if err != nil {
		return err
	}

	if h.manager.CancelActive(telegram.PeerKey(msg.PeerID)) {
		return replyText(ctx, h.client.API(), peer, msg.ID, "🛑 Cancelling the active download...")
	}
	return replyText(ctx, h.client.API(), peer, msg.ID, "Nothing to cancel.")
}

// OnProgress renders throttled tracker events into message edits. Terminal
// statuses are left to OnOutcome, which has the full result.
func (h *DownloadHandler) OnProgress(req downloader.Request, ev downloader.ProgressEvent) error {
	if ev.Status.Terminal() {
		return nil
	}
	entry := h.lookup(req.ID)
	if entry == nil {
		return nil
	}

	var text string
	switch ev.Status {
	case downloader.StatusExtracting:
		text = fmt.Sprintf("🔎 Extracting...\n%s", req.Title)
	case downloader.StatusRetrying:
		text = fmt.Sprintf("🔁 %s\n%s", ev.Message, req.Title)
	case downloader.StatusDownloading:
		text = fmt.Sprintf(
			"⬇️ Downloading\n%s\n\n%s\n%s / %s · %s · ETA %s",
			req.Title,
			format.Bar(ev.DownloadedBytes, ev.TotalBytes),
			format.Bytes(ev.DownloadedBytes), format.Bytes(ev.TotalBytes),
			format.Speed(ev.SpeedBps), format.Duration(ev.ETASeconds))
	default:
		return nil
	}

	return entry.status.Edit(context.Background(), text)
}

// OnOutcome finishes the conversation for one request: uploads the artifact
// on success, explains the failure otherwise.
func (h *DownloadHandler) OnOutcome(req downloader.Request, out downloader.Outcome) {
	entry := h.lookup(req.ID)
	defer h.forget(req.ID)
	if entry == nil {
		return
	}

	ctx := context.Background()

	if !out.Success {
		h.counters.RecordDownload(entry.userID, entry.audio, 0, resultOf(out))
		entry.status.EditFinal(ctx, failureText(req, out))
		return
	}

	entry.status.EditFinal(ctx, fmt.Sprintf("📤 Uploading\n%s", out.Title))

	art := telegram.Artifact{
		Path:      out.FilePath,
		Title:     out.Title,
		Performer: out.Performer,
		Duration:  out.Duration,
		AudioOnly: entry.audio,
	}
	onProgress := func(uploaded, total int64) {
		entry.status.Edit(ctx, fmt.Sprintf("📤 Uploading\n%s\n\n%s", out.Title, format.Bar(uploaded, total)))
	}

	uploadCtx, cancel := context.WithTimeout(ctx, 30*time.Minute)
	defer cancel()

	err := telegram.NewUploader(h.client.API()).SendMedia(uploadCtx, entry.status.Peer(), entry.replyTo, art, onProgress)
	if err != nil {
		logger.Error("Upload failed", "file", filepath.Base(out.FilePath), "error", err)
		h.counters.RecordDownload(entry.userID, entry.audio, out.FileSize, stats.ResultFailed)
		entry.status.EditFinal(ctx, fmt.Sprintf("❌ Upload failed: %v", err))
	} else {
		h.counters.RecordDownload(entry.userID, entry.audio, out.FileSize, stats.ResultSuccess)
		entry.status.Delete(ctx)
	}

	if err := os.Remove(out.FilePath); err != nil {
		logger.Warn("Failed to remove downloaded file", "file", out.FilePath, "error", err)
	}
}

func (h *DownloadHandler) lookup(requestID string) *statusEntry {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.entries[requestID]
}

func (h *DownloadHandler) forget(requestID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.entries, requestID)
}

func resultOf(out downloader.Outcome) stats.Result {
	if out.Kind() == downloader.KindCancelled {
		return stats.ResultCancelled
	}
	return stats.ResultFailed
}

func failureText(req downloader.Request, out downloader.Outcome) string {
	switch out.Kind() {
	case downloader.KindCancelled:
		return fmt.Sprintf("🛑 %v\n%s", out.Err, req.Title)
	case downloader.KindSizeExceeded:
		return fmt.Sprintf("❌ File is too large to send.\n%s", req.Title)
	case downloader.KindPermanent:
		return fmt.Sprintf("❌ This video cannot be downloaded: %v", out.Err)
	case downloader.KindResolution:
		return "❌ Download finished but the file went missing. Please try again."
	default:
		return fmt.Sprintf("❌ Download failed after several attempts.\n%s", req.Title)
	}
}
