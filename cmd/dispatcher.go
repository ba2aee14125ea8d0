package cmd

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/linanwx/ferry/agent"
	"github.com/linanwx/ferry/channel"
	"github.com/linanwx/ferry/logger"
)

// Submitter queues a command for serial execution.
type Submitter interface {
	Submit(ctx context.Context, cmd agent.Command) error
}

// Dispatcher routes channel messages to the agent and replies back to the
// originating channel.
type Dispatcher struct {
	channels *channel.Manager
	agent    Submitter
	onClosed func(channel string)
}

// NewDispatcher creates a new dispatcher.
func NewDispatcher(channels *channel.Manager, a Submitter) *Dispatcher {
	return &Dispatcher{
		channels: channels,
		agent:    a,
	}
}

// OnFeedClosed registers fn to run when a channel closes its message feed.
func (d *Dispatcher) OnFeedClosed(fn func(channel string)) {
	d.onClosed = fn
}

// Run starts a goroutine for each channel that reads messages and submits
// them. Blocks until ctx is cancelled and every reader has returned.
func (d *Dispatcher) Run(ctx context.Context) {
	var wg sync.WaitGroup
	d.channels.Each(func(ch channel.Channel) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.processChannel(ctx, ch)
		}()
	})
	<-ctx.Done()
	wg.Wait()
}

func (d *Dispatcher) processChannel(ctx context.Context, ch channel.Channel) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch.Messages():
			if !ok {
				logger.Debug("channel closed its message feed", "channel", ch.Name())
				if d.onClosed != nil {
					d.onClosed(ch.Name())
				}
				return
			}
			d.dispatch(ctx, ch, msg)
		}
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, ch channel.Channel, msg *channel.Message) {
	if msg == nil || strings.TrimSpace(msg.Text) == "" {
		return
	}
	logger.Debug("dispatching message",
		"channel", ch.Name(),
		"channelID", msg.ChannelID,
		"user", msg.Username,
		"text", truncate(msg.Text, 50),
	)

	err := d.agent.Submit(ctx, agent.Command{
		Source: msg.ChannelID,
		Line:   msg.Text,
		Reply:  d.buildReply(ch, msg),
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Warn("command not queued", "channel", ch.Name(), "err", err)
	}
}

// buildReply sends the result to the channel and conversation the command
// came from.
func (d *Dispatcher) buildReply(ch channel.Channel, msg *channel.Message) agent.Reply {
	channelName := ch.Name()
	replyTo := msg.ReplyAddress()
	return func(ctx context.Context, text string) error {
		if strings.TrimSpace(text) == "" {
			return nil
		}
		return d.channels.SendTo(ctx, channelName, text, replyTo)
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
