package bot

import (
	"context"
	"regexp"
	"strings"

	"github.com/gotd/td/tg"

	"github.com/quickdl-bot/quickdl/internal/handler"
	"github.com/quickdl-bot/quickdl/pkg/logger"
)

var youtubeURLRegex = regexp.MustCompile(`https?://(?:www\.|m\.|music\.)?(?:youtube\.com/(?:watch\?\S*v=|shorts/|live/)|youtu\.be/)[\w-]+\S*`)

type Router struct {
	download *handler.DownloadHandler
	admin    *handler.AdminHandler
	basic    *handler.BasicHandler
}

func NewRouter(dl *handler.DownloadHandler, adm *handler.AdminHandler, basic *handler.BasicHandler) *Router {
	return &Router{
		download: dl,
		admin:    adm,
		basic:    basic,
	}
}

// OnMessage is the main entry point for updates
func (r *Router) OnMessage(ctx context.Context, e tg.Entities, update *tg.UpdateNewMessage) error {
	msg, ok := update.Message.(*tg.Message)
	if !ok {
		return nil
	}
	if err := r.HandleMessage(ctx, e, msg); err != nil {
		logger.Error("HandleMessage (Private/Group) failed", "error", err)
		return err
	}
	return nil
}

func (r *Router) OnChannelMessage(ctx context.Context, e tg.Entities, update *tg.UpdateNewChannelMessage) error {
	msg, ok := update.Message.(*tg.Message)
	if !ok {
		return nil
	}
	if err := r.HandleMessage(ctx, e, msg); err != nil {
		logger.Error("HandleMessage (Channel) failed", "error", err)
		return err
	}
	return nil
}

// OnCallback serves inline button presses.
func (r *Router) OnCallback(ctx context.Context, e tg.Entities, update *tg.UpdateBotCallbackQuery) error {
	if err := r.download.HandleCallback(ctx, update); err != nil {
		logger.Error("HandleCallback failed", "error", err)
		return err
	}
	return nil
}

func (r *Router) HandleMessage(ctx context.Context, e tg.Entities, msg *tg.Message) error {
	if msg.Out {
		return nil
	}

	text := msg.Message
	if strings.HasPrefix(text, "/") {
		parts := strings.Fields(text)
		if len(parts) > 0 {
			cmd := parts[0]
			if idx := strings.Index(cmd, "@"); idx != -1 {
				text = cmd[:idx] + text[len(cmd):]
			}
		}
	}

	if strings.HasPrefix(text, "/start") {
		return r.basic.HandleStart(ctx, e, msg)
	}
	if strings.HasPrefix(text, "/help") {
		return r.basic.HandleHelp(ctx, e, msg)
	}
	if strings.HasPrefix(text, "/stats") {
		return r.admin.HandleStats(ctx, e, msg)
	}
	if strings.HasPrefix(text, "/cookies") {
		return r.admin.HandleCookies(ctx, e, msg)
	}
	if strings.HasPrefix(text, "/cancel") {
		return r.download.HandleCancel(ctx, e, msg)
	}

	if strings.HasPrefix(text, "/yt") || strings.HasPrefix(text, "/video") {
		if url := commandURL(text); url != "" {
			return r.download.Handle(ctx, e, msg, url, false)
		}
	}
	if strings.HasPrefix(text, "/mp") {
		if url := commandURL(text); url != "" {
			return r.download.Handle(ctx, e, msg, url, true)
		}
	}

	if url := youtubeURLRegex.FindString(text); url != "" {
		return r.download.Handle(ctx, e, msg, url, false)
	}
	if strings.HasPrefix(text, "/") {
		return r.basic.HandleUnknown(ctx, e, msg)
	}

	return nil
}

func commandURL(text string) string {
	parts := strings.Fields(text)
	if len(parts) < 2 {
		return ""
	}
	return youtubeURLRegex.FindString(parts[1])
}
