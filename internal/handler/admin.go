package handler

import (
	"context"
	"fmt"
	"time"

	"github.com/gotd/td/telegram/message"
	"github.com/gotd/td/telegram/message/html"
	"github.com/gotd/td/tg"

	"github.com/quickdl-bot/quickdl/config"
	"github.com/quickdl-bot/quickdl/internal/cookies"
	"github.com/quickdl-bot/quickdl/internal/downloader"
	"github.com/quickdl-bot/quickdl/internal/stats"
	"github.com/quickdl-bot/quickdl/internal/telegram"
	"github.com/quickdl-bot/quickdl/pkg/format"
)

type AdminHandler struct {
	client  *telegram.Client
	cfg     *config.Config
	cookies *cookies.Rotator
	manager *downloader.Manager
}

func NewAdminHandler(cli *telegram.Client, cfg *config.Config, rot *cookies.Rotator) *AdminHandler {
	return &AdminHandler{client: cli, cfg: cfg, cookies: rot}
}

func (h *AdminHandler) Bind(m *downloader.Manager) {
	h.manager = m
}

func (h *AdminHandler) HandleStats(ctx context.Context, e tg.Entities, msg *tg.Message) error {
	if !h.cfg.IsSudo(telegram.SenderID(msg)) {
		return nil
	}

	inputPeer, err := telegram.ResolvePeer(msg.PeerID, e)
	if err != nil {
		return err
	}

	sysInfo, err := stats.GetSystemInfo()
	if err != nil {
		return replyText(ctx, h.client.API(), inputPeer, msg.ID, fmt.Sprintf("❌ Failed to get stats: %v", err))
	}
	counters := stats.GetCounters()
	snap := counters.Snapshot()

	text := fmt.Sprintf(
		"<b>System Status</b>\n\n"+
			"<b>OS Info</b>\n"+
			"├ System : <code>%s</code>\n"+
			"├ Host : <code>%s</code>\n"+
			"└ Uptime : <code>%s</code>\n\n"+
			"<b>CPU</b>\n"+
			"├ Cores : <code>%d</code>\n"+
			"└ Usage : <code>%.2f%%</code>\n\n"+
			"<b>Memory</b>\n"+
			"├ Used : <code>%s / %s (%.1f%%)</code>\n"+
			"└ Free : <code>%s</code>\n\n"+
			"<b>Disk</b>\n"+
			"├ Used : <code>%s / %s (%.1f%%)</code>\n"+
			"└ Free : <code>%s</code>\n\n"+
			"<b>Network</b>\n"+
			"├ Sent : <code>%s</code>\n"+
			"└ Recv : <code>%s</code>\n\n"+
			"<b>Downloads</b>\n"+
			"├ Active : <code>%d</code>\n"+
			"├ Total : <code>%d</code>\n"+
			"├ Success : <code>%d</code>\n"+
			"├ Failed : <code>%d</code>\n"+
			"├ Cancelled : <code>%d</code>\n"+
			"├ Audio/Video : <code>%d / %d</code>\n"+
			"├ Bytes : <code>%s</code>\n"+
			"├ Users : <code>%d</code>\n"+
			"└ Cookies : <code>%d</code>\n\n"+
			"<b>Bot Process</b>\n"+
			"├ Uptime : <code>%s</code>\n"+
			"├ PID : <code>%d</code>\n"+
			"├ CPU : <code>%.2f%%</code>\n"+
			"├ Mem : <code>%s</code>\n"+
			"├ Routines : <code>%d</code>\n"+
			"├ Heap : <code>%s</code>\n"+
			"├ GC Runs : <code>%d</code>\n"+
			"└ Go Ver : <code>%s</code>",
		sysInfo.OS,
		sysInfo.Hostname,
		sysInfo.SystemUptime.Round(time.Second),
		sysInfo.CPUCores,
		sysInfo.CPUUsage,
		format.Bytes(int64(sysInfo.MemUsed)), format.Bytes(int64(sysInfo.MemTotal)), sysInfo.MemPercent,
		format.Bytes(int64(sysInfo.MemAvailable)),
		format.Bytes(int64(sysInfo.DiskUsed)), format.Bytes(int64(sysInfo.DiskTotal)), sysInfo.DiskPercent,
		format.Bytes(int64(sysInfo.DiskFree)),
		format.Bytes(int64(sysInfo.NetSent)),
		format.Bytes(int64(sysInfo.NetRecv)),
		h.manager.ActiveCount(),
		snap.TotalDownloads,
		snap.SuccessDownloads,
		snap.FailedDownloads,
		snap.CancelledCount,
		snap.AudioDownloads, snap.VideoDownloads,
		format.Bytes(snap.TotalBytes),
		counters.UserCount(),
		h.cookies.Count(),
		sysInfo.ProcessUptime.Round(time.Second),
		sysInfo.ProcessPID,
		sysInfo.ProcessCPU,
		format.Bytes(int64(sysInfo.ProcessMem)),
		sysInfo.Goroutines,
		format.Bytes(int64(sysInfo.HeapAlloc)),
		sysInfo.GCRuns,
		sysInfo.GoVersion,
	)

	sender := message.NewSender(h.client.API())
	_, err = sender.To(inputPeer).Reply(msg.ID).StyledText(ctx, html.String(nil, text))
	return err
}

// HandleCookies rescans the cookie directory so fresh credential files are
// picked up without a restart.
func (h *AdminHandler) HandleCookies(ctx context.Context, e tg.Entities, msg *tg.Message) error {
	if !h.cfg.IsSudo(telegram.SenderID(msg)) {
		return nil
	}

	inputPeer, err := telegram.ResolvePeer(msg.PeerID, e)
	if err != nil {
		return err
	}

	count := h.cookies.Refresh()
	return replyText(ctx, h.client.API(), inputPeer, msg.ID,
		fmt.Sprintf("🍪 Cookie directory reloaded: %d usable file(s).", count))
}
