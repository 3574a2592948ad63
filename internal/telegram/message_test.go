package telegram

import (
	"context"
	"sync"
	"testing"

	"github.com/gotd/td/bin"
	"github.com/gotd/td/tg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

// captureInvoker records every raw request instead of talking to Telegram.
type captureInvoker struct {
	mu       sync.Mutex
	requests []bin.Encoder
}

func (c *captureInvoker) Invoke(_ context.Context, input bin.Encoder, _ bin.Decoder) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests = append(c.requests, input)
	return nil
}

func (c *captureInvoker) last(t *testing.T) *tg.MessagesEditMessageRequest {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	require.NotEmpty(t, c.requests)
	req, ok := c.requests[len(c.requests)-1].(*tg.MessagesEditMessageRequest)
	require.True(t, ok, "last request is %T, want edit", c.requests[len(c.requests)-1])
	return req
}

func newTestStatusMessage(inv *captureInvoker) *StatusMessage {
	return &StatusMessage{
		api:     tg.NewClient(inv),
		peer:    &tg.InputPeerUser{UserID: 1},
		msgID:   5,
		limiter: rate.NewLimiter(rate.Inf, 1),
	}
}

func TestEditWaitKeepsInlineKeyboard(t *testing.T) {
	inv := &captureInvoker{}
	m := newTestStatusMessage(inv)
	m.SetMarkup(CancelMarkup("cancel:r1"))

	require.NoError(t, m.EditWait(context.Background(), "queued"))

	req := inv.last(t)
	assert.Equal(t, "queued", req.Message)
	markup, ok := req.GetReplyMarkup()
	require.True(t, ok, "edit must carry the cancel button")

	inline, ok := markup.(*tg.ReplyInlineMarkup)
	require.True(t, ok)
	require.Len(t, inline.Rows, 1)
	button, ok := inline.Rows[0].Buttons[0].(*tg.KeyboardButtonCallback)
	require.True(t, ok)
	assert.Equal(t, []byte("cancel:r1"), button.Data)
}

func TestEditFinalDropsInlineKeyboard(t *testing.T) {
	inv := &captureInvoker{}
	m := newTestStatusMessage(inv)
	m.SetMarkup(CancelMarkup("cancel:r1"))

	require.NoError(t, m.EditFinal(context.Background(), "done"))

	req := inv.last(t)
	assert.Equal(t, "done", req.Message)
	_, ok := req.GetReplyMarkup()
	assert.False(t, ok, "terminal edit must not re-attach the cancel button")
}
