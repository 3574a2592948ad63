package app

import (
	"context"
	"fmt"
	"os"

	"github.com/gotd/td/tg"

	"github.com/quickdl-bot/quickdl/config"
	"github.com/quickdl-bot/quickdl/internal/bot"
	"github.com/quickdl-bot/quickdl/internal/cookies"
	"github.com/quickdl-bot/quickdl/internal/downloader"
	"github.com/quickdl-bot/quickdl/internal/handler"
	"github.com/quickdl-bot/quickdl/internal/middleware"
	"github.com/quickdl-bot/quickdl/internal/telegram"
	"github.com/quickdl-bot/quickdl/pkg/logger"
)

type App struct {
	Bot     *bot.Bot
	Cfg     *config.Config
	manager *downloader.Manager
}

func New() (*App, error) {
	cfg := config.LoadConfig()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	for _, dir := range []string{cfg.SessionDir, cfg.CookiesDir, cfg.DownloadDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create %s failed: %w", dir, err)
		}
	}

	rotator := cookies.NewRotator(cfg.CookiesDir, cfg.CookieCooldown)
	pool := downloader.NewPool(cfg.MaxConcurrentDownloads)
	extractor := downloader.NewYTDLP()

	runner := downloader.NewRunner(rotator, pool, extractor, downloader.RunnerConfig{
		MaxRetries:  cfg.MaxRetries,
		BaseDelay:   cfg.RetryBaseDelay,
		DownloadDir: cfg.DownloadDir,
	})

	dispatcher := tg.NewUpdateDispatcher()

	client, err := telegram.NewClient(cfg, dispatcher)
	if err != nil {
		return nil, err
	}

	dlHandler := handler.NewDownloadHandler(client, extractor, rotator, cfg)
	adminHandler := handler.NewAdminHandler(client, cfg, rotator)
	basicHandler := handler.NewBasicHandler(client)

	manager := downloader.NewManager(downloader.ManagerConfig{
		MaxQueuePerChat:  cfg.MaxQueuePerChat,
		ProgressInterval: cfg.ProgressInterval,
		StalledTimeout:   cfg.StalledTimeout,
	}, runner, dlHandler.OnProgress, dlHandler.OnOutcome)
	dlHandler.Bind(manager)
	adminHandler.Bind(manager)

	router := bot.NewRouter(dlHandler, adminHandler, basicHandler)

	dispatcher.OnNewMessage(func(ctx context.Context, e tg.Entities, update *tg.UpdateNewMessage) error {
		h := func() {
			if err := router.OnMessage(ctx, e, update); err != nil {
				logger.Error("OnMessage failed", "error", err)
			}
		}
		go middleware.Chain(h,
			middleware.Recover,
			func(next func()) func() { return middleware.Logger("OnNewMessage", next) },
		)()
		return nil
	})

	dispatcher.OnNewChannelMessage(func(ctx context.Context, e tg.Entities, update *tg.UpdateNewChannelMessage) error {
		h := func() {
			if err := router.OnChannelMessage(ctx, e, update); err != nil {
				logger.Error("OnChannelMessage failed", "error", err)
			}
		}
		go middleware.Chain(h,
			middleware.Recover,
			func(next func()) func() { return middleware.Logger("OnNewChannelMessage", next) },
		)()
		return nil
	})

	dispatcher.OnBotCallbackQuery(func(ctx context.Context, e tg.Entities, update *tg.UpdateBotCallbackQuery) error {
		h := func() {
			if err := router.OnCallback(ctx, e, update); err != nil {
				logger.Error("OnCallback failed", "error", err)
			}
		}
		go middleware.Chain(h,
			middleware.Recover,
			func(next func()) func() { return middleware.Logger("OnBotCallbackQuery", next) },
		)()
		return nil
	})

	b := bot.New(client, router)

	logger.Info("Application initialized",
		"cookies", rotator.Count(),
		"max_concurrent", cfg.MaxConcurrentDownloads,
		"max_queue_per_chat", cfg.MaxQueuePerChat)

	return &App{
		Bot:     b,
		Cfg:     cfg,
		manager: manager,
	}, nil
}

func (a *App) Start(ctx context.Context) error {
	err := a.Bot.Run(ctx, a.Cfg.BotToken)
	// Let in-flight downloads observe cancellation and clean up before exit.
	a.manager.Shutdown()
	return err
}
