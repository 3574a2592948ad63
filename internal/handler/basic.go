package handler

import (
	"context"

	"github.com/gotd/td/tg"

	"github.com/quickdl-bot/quickdl/internal/telegram"
)

type BasicHandler struct {
	client *telegram.Client
}

func NewBasicHandler(cli *telegram.Client) *BasicHandler {
	return &BasicHandler{client: cli}
}

func (h *BasicHandler) HandleStart(ctx context.Context, e tg.Entities, msg *tg.Message) error {
	peer, err := telegram.ResolvePeer(msg.PeerID, e)
	if err != nil {
		return err
	}
	return replyText(ctx, h.client.API(), peer, msg.ID,
		"👋 Welcome to QuickDL!\n\nSend me a YouTube link to download the video, or use /mp for audio only.")
}

func (h *BasicHandler) HandleHelp(ctx context.Context, e tg.Entities, msg *tg.Message) error {
	peer, err := telegram.ResolvePeer(msg.PeerID, e)
	if err != nil {
		return err
	}

	helpText := `QuickDL Bot

Available Commands:
• /yt [URL] - Download video
• /mp [URL] - Download audio only (FLAC)
• /cancel - Cancel the active download
• /start - Start the bot
• /help - Show this help message
• /stats - Bot statistics (admins)
• /cookies - Reload cookie files (admins)

Quick Tips:
• Just send a YouTube URL to download the video
• One download at a time per chat; extra requests wait in a queue
• Downloads automatically retry with rotated credentials`

	return replyText(ctx, h.client.API(), peer, msg.ID, helpText)
}

func (h *BasicHandler) HandleUnknown(ctx context.Context, e tg.Entities, msg *tg.Message) error {
	peer, err := telegram.ResolvePeer(msg.PeerID, e)
	if err != nil {
		return err
	}
	return replyText(ctx, h.client.API(), peer, msg.ID, "Unknown command. Send /help for the list of commands.")
}
