package telegram

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/gotd/td/telegram/message"
	"github.com/gotd/td/telegram/uploader"
	"github.com/gotd/td/tg"

	"github.com/quickdl-bot/quickdl/pkg/logger"
)

// Artifact is a finished download ready to leave the machine.
type Artifact struct {
	Path      string
	Title     string
	Performer string
	Duration  time.Duration
	AudioOnly bool
}

// UploadProgress is notified as file parts are pushed to Telegram.
type UploadProgress func(uploaded, total int64)

type Uploader struct {
	api *tg.Client
}

func NewUploader(api *tg.Client) *Uploader {
	return &Uploader{api: api}
}

// SendMedia uploads the artifact and sends it as a reply: audio artifacts
// with track metadata, everything else as a streamable video document.
func (u *Uploader) SendMedia(ctx context.Context, peer tg.InputPeerClass, replyTo int, art Artifact, onProgress UploadProgress) error {
	up := uploader.NewUploader(u.api)
	if onProgress != nil {
		up = up.WithProgress(progressAdapter(onProgress))
	}

	start := time.Now()
	file, err := up.FromPath(ctx, art.Path)
	if err != nil {
		return fmt.Errorf("upload %s failed: %w", filepath.Base(art.Path), err)
	}
	logger.InfoWithDuration("File uploaded", start, "file", filepath.Base(art.Path))

	filename := uploadFilename(art)
	doc := message.UploadedDocument(file).
		MIME(mimeFor(art.Path)).
		Filename(filename)

	if art.AudioOnly {
		attr := &tg.DocumentAttributeAudio{Duration: int(art.Duration.Seconds())}
		if art.Title != "" {
			attr.SetTitle(art.Title)
		}
		if art.Performer != "" {
			attr.SetPerformer(art.Performer)
		}
		doc = doc.Attributes(attr)
	} else {
		doc = doc.Attributes(&tg.DocumentAttributeVideo{
			SupportsStreaming: true,
		})
	}

	sender := message.NewSender(u.api).WithUploader(up)
	_, err = sender.To(peer).Reply(replyTo).Media(ctx, doc)
	if err != nil {
		return fmt.Errorf("send media failed: %w", err)
	}
	return nil
}

type progressAdapter func(uploaded, total int64)

func (p progressAdapter) Chunk(_ context.Context, state uploader.ProgressState) error {
	p(state.Uploaded, state.Total)
	return nil
}

// uploadFilename names the sent file after its title when one is known,
// keeping the artifact's extension.
func uploadFilename(art Artifact) string {
	ext := filepath.Ext(art.Path)
	if art.Title == "" {
		return filepath.Base(art.Path)
	}
	name := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		return r
	}, art.Title)
	return name + ext
}

func mimeFor(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".flac":
		return "audio/flac"
	case ".m4a":
		return "audio/mp4"
	case ".mp3":
		return "audio/mpeg"
	case ".ogg", ".opus":
		return "audio/ogg"
	case ".webm":
		return "video/webm"
	case ".mkv":
		return "video/x-matroska"
	default:
		return "video/mp4"
	}
}
