// Package handler connects Telegram updates to the download orchestration
// layer and renders its progress stream back into message edits.
package handler

import (
	"context"

	"github.com/gotd/td/telegram/message"
	"github.com/gotd/td/tg"
)

func replyText(ctx context.Context, api *tg.Client, peer tg.InputPeerClass, replyTo int, text string) error {
	sender := message.NewSender(api)
	_, err := sender.To(peer).Reply(replyTo).Text(ctx, text)
	return err
}
