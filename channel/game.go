package channel

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/linanwx/ferry/bridge"
	"github.com/linanwx/ferry/game"
	"github.com/linanwx/ferry/internal/runtimecfg"
	"github.com/linanwx/ferry/logger"
)

// GameChannel carries slash commands issued inside the game. Commands from a
// peer are answered with tells; the local player's own commands are echoed.
type GameChannel struct {
	self     string
	commands <-chan bridge.Command
	chat     game.Chat
	messages chan *Message
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	msgID    int64
}

// NewGameChannel reads commands (normally bridge.Client.Commands) and
// replies through chat.
func NewGameChannel(self string, commands <-chan bridge.Command, chat game.Chat) *GameChannel {
	return &GameChannel{
		self:     self,
		commands: commands,
		chat:     chat,
		messages: make(chan *Message, runtimecfg.GameChannelBufferSize),
		done:     make(chan struct{}),
	}
}

func (g *GameChannel) Name() string {
	return "game"
}

func (g *GameChannel) Start(ctx context.Context) error {
	logger.Info("game channel started", "character", g.self)
	g.wg.Add(1)
	go g.pump(ctx)
	return nil
}

func (g *GameChannel) Stop() error {
	g.stopOnce.Do(func() {
		close(g.done)
		g.wg.Wait()
		logger.Info("game channel stopped")
	})
	return nil
}

func (g *GameChannel) Messages() <-chan *Message {
	return g.messages
}

// Send writes each line of the reply. ReplyTo names the peer to tell; an
// empty ReplyTo or the character's own name echoes locally.
func (g *GameChannel) Send(ctx context.Context, resp *Response) error {
	peer := strings.TrimSpace(resp.ReplyTo)
	local := peer == "" || strings.EqualFold(peer, g.self)
	for _, line := range strings.Split(resp.Text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var err error
		if local {
			err = g.chat.Echo(ctx, line)
		} else {
			err = g.chat.Tell(ctx, peer, line)
		}
		if err != nil {
			return fmt.Errorf("game reply: %w", err)
		}
	}
	return nil
}

func (g *GameChannel) pump(ctx context.Context) {
	defer g.wg.Done()
	defer close(g.messages)

	for {
		select {
		case <-ctx.Done():
			return
		case <-g.done:
			return
		case cmd, ok := <-g.commands:
			if !ok {
				return
			}
			text := strings.TrimSpace(cmd.Text)
			if text == "" {
				continue
			}
			from := strings.TrimSpace(cmd.From)
			if from == "" {
				from = g.self
			}
			g.msgID++
			msg := &Message{
				ID:        fmt.Sprintf("game-%d", g.msgID),
				ChannelID: "game:" + from,
				UserID:    from,
				Username:  from,
				Text:      text,
				Metadata:  map[string]string{MetaReplyTo: from},
			}
			select {
			case g.messages <- msg:
			case <-g.done:
				return
			case <-ctx.Done():
				return
			}
		}
	}
}
