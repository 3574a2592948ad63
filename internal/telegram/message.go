package telegram

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gotd/td/telegram/message"
	"github.com/gotd/td/tg"
	"golang.org/x/time/rate"

	"github.com/quickdl-bot/quickdl/pkg/logger"
)

const editTimeout = 10 * time.Second

// StatusMessage is the single bot message a download keeps editing from
// "detecting" through progress bars to the final result. Edits are rate
// limited to one per second so bursty status changes never hit Telegram's
// flood control.
type StatusMessage struct {
	api     *tg.Client
	peer    tg.InputPeerClass
	msgID   int
	limiter *rate.Limiter
	markup  tg.ReplyMarkupClass
}

// CancelMarkup builds the inline cancel button carrying the request id in
// its callback data.
func CancelMarkup(cancelData string) tg.ReplyMarkupClass {
	return &tg.ReplyInlineMarkup{
		Rows: []tg.KeyboardButtonRow{{
			Buttons: []tg.KeyboardButtonClass{
				&tg.KeyboardButtonCallback{
					Text: "🛑 Cancel",
					Data: []byte(cancelData),
				},
			},
		}},
	}
}

// ReplyStatus sends the initial status message as a reply and returns a
// handle for editing it. A non-nil markup is re-attached on every edit so
// the button survives text updates.
func ReplyStatus(ctx context.Context, api *tg.Client, peer tg.InputPeerClass, replyTo int, text string, markup tg.ReplyMarkupClass) (*StatusMessage, error) {
	sender := message.NewSender(api)
	builder := sender.To(peer).Reply(replyTo)
	if markup != nil {
		builder = builder.Markup(markup)
	}
	updates, err := builder.Text(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("send status message failed: %w", err)
	}

	return &StatusMessage{
		api:     api,
		peer:    peer,
		msgID:   MsgIDFromUpdates(updates),
		limiter: rate.NewLimiter(rate.Every(time.Second), 1),
		markup:  markup,
	}, nil
}

// SetMarkup attaches an inline keyboard to subsequent edits.
func (m *StatusMessage) SetMarkup(markup tg.ReplyMarkupClass) {
	m.markup = markup
}

// Edit replaces the message text. Throttled edits are silently skipped; the
// next one carries the newer state anyway.
func (m *StatusMessage) Edit(ctx context.Context, text string) error {
	if !m.limiter.Allow() {
		return nil
	}
	return m.editNow(ctx, text, m.markup)
}

// EditWait replaces the text like Edit but waits for a token instead of
// skipping, for states that may see no follow-up edit for a while (a queued
// download sits silent until it is promoted). The inline keyboard is kept.
func (m *StatusMessage) EditWait(ctx context.Context, text string) error {
	if err := m.limiter.Wait(ctx); err != nil {
		return err
	}
	return m.editNow(ctx, text, m.markup)
}

// EditFinal bypasses the throttle for terminal states, waiting for a token
// if one is not immediately available. The cancel button is removed since
// there is nothing left to cancel.
func (m *StatusMessage) EditFinal(ctx context.Context, text string) error {
	if err := m.limiter.Wait(ctx); err != nil {
		return err
	}
	return m.editNow(ctx, text, nil)
}

func (m *StatusMessage) editNow(ctx context.Context, text string, markup tg.ReplyMarkupClass) error {
	ctx, cancel := context.WithTimeout(ctx, editTimeout)
	defer cancel()

	req := &tg.MessagesEditMessageRequest{
		Peer:    m.peer,
		ID:      m.msgID,
		Message: text,
	}
	if markup != nil {
		req.SetReplyMarkup(markup)
	}

	_, err := m.api.MessagesEditMessage(ctx, req)
	if err != nil && !isNotModified(err) {
		return fmt.Errorf("edit message %d failed: %w", m.msgID, err)
	}
	return nil
}

// Delete removes the status message, typically after the media is sent.
func (m *StatusMessage) Delete(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, editTimeout)
	defer cancel()

	_, err := m.api.MessagesDeleteMessages(ctx, &tg.MessagesDeleteMessagesRequest{
		ID:     []int{m.msgID},
		Revoke: true,
	})
	if err != nil {
		logger.Debug("Failed to delete status message", "msg_id", m.msgID, "error", err)
	}
}

func (m *StatusMessage) Peer() tg.InputPeerClass {
	return m.peer
}

func isNotModified(err error) bool {
	return err != nil && strings.Contains(err.Error(), "MESSAGE_NOT_MODIFIED")
}

// MsgIDFromUpdates digs the sent message id out of the updates response.
func MsgIDFromUpdates(updates tg.UpdatesClass) int {
	switch u := updates.(type) {
	case *tg.UpdateShortSentMessage:
		return u.ID
	case *tg.Updates:
		for _, update := range u.Updates {
			if msg, ok := update.(*tg.UpdateNewMessage); ok {
				if m, ok := msg.Message.(*tg.Message); ok {
					return m.ID
				}
			}
			if msg, ok := update.(*tg.UpdateNewChannelMessage); ok {
				if m, ok := msg.Message.(*tg.Message); ok {
					return m.ID
				}
			}
		}
	}
	return 0
}

// ResolvePeer converts a PeerClass to InputPeerClass using the update's
// entities.
func ResolvePeer(peer tg.PeerClass, entities tg.Entities) (tg.InputPeerClass, error) {
	switch p := peer.(type) {
	case *tg.PeerUser:
		user, ok := entities.Users[p.UserID]
		if !ok {
			return nil, fmt.Errorf("user %d not found in entities", p.UserID)
		}
		return &tg.InputPeerUser{
			UserID:     user.ID,
			AccessHash: user.AccessHash,
		}, nil
	case *tg.PeerChat:
		chat, ok := entities.Chats[p.ChatID]
		if !ok {
			return nil, fmt.Errorf("chat %d not found in entities", p.ChatID)
		}
		return &tg.InputPeerChat{
			ChatID: chat.ID,
		}, nil
	case *tg.PeerChannel:
		channel, ok := entities.Channels[p.ChannelID]
		if !ok {
			return nil, fmt.Errorf("channel %d not found in entities", p.ChannelID)
		}
		return &tg.InputPeerChannel{
			ChannelID:  channel.ID,
			AccessHash: channel.AccessHash,
		}, nil
	default:
		return nil, fmt.Errorf("unknown peer type: %T", peer)
	}
}

// PeerKey flattens a peer into the per-chat key the download queue uses.
func PeerKey(peer tg.PeerClass) int64 {
	switch p := peer.(type) {
	case *tg.PeerUser:
		return p.UserID
	case *tg.PeerChat:
		return p.ChatID
	case *tg.PeerChannel:
		return p.ChannelID
	}
	return 0
}

// SenderID extracts the author of a message, falling back to the private
// chat peer.
func SenderID(msg *tg.Message) int64 {
	if from, ok := msg.GetFromID(); ok {
		if user, ok := from.(*tg.PeerUser); ok {
			return user.UserID
		}
	}
	if peer, ok := msg.PeerID.(*tg.PeerUser); ok {
		return peer.UserID
	}
	return 0
}
