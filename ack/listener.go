package ack

import (
	"context"

	"github.com/linanwx/ferry/bus"
	"github.com/linanwx/ferry/game"
	"github.com/linanwx/ferry/logger"
)

// Listen feeds chat lines from b into r. The returned func unsubscribes.
func Listen(b *bus.Bus, r *Registry) func() {
	id := b.Subscribe(bus.EventChatReceived, func(_ context.Context, e *bus.Event) {
		var data bus.ChatEventData
		if err := e.ParseData(&data); err != nil {
			logger.Warn("bad chat event", "err", err)
			return
		}
		if msg, ok := ParseLine(data.Line); ok {
			r.Observe(msg)
		}
	})
	return func() { b.Unsubscribe(id) }
}

// Notifier tells peers that a give finished.
type Notifier struct {
	chat game.Chat
}

// NewNotifier creates a notifier sending through chat.
func NewNotifier(chat game.Chat) *Notifier {
	return &Notifier{chat: chat}
}

// NotifyDone tells peer its items were sent.
func (n *Notifier) NotifyDone(ctx context.Context, peer, sessionID string) error {
	return n.chat.Tell(ctx, peer, Message{Kind: KindDone, SessionID: sessionID}.Body())
}

// NotifyFailed tells peer the give could not be carried out.
func (n *Notifier) NotifyFailed(ctx context.Context, peer, sessionID string) error {
	return n.chat.Tell(ctx, peer, Message{Kind: KindFailed, SessionID: sessionID}.Body())
}
