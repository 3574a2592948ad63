package bot

import (
	"context"

	"github.com/quickdl-bot/quickdl/internal/telegram"
)

type Bot struct {
	client *telegram.Client
	router *Router
}

func New(client *telegram.Client, router *Router) *Bot {
	return &Bot{
		client: client,
		router: router,
	}
}

func (b *Bot) Run(ctx context.Context, token string) error {
	return b.client.Start(ctx, token)
}
