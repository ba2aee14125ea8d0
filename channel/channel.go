// Package channel carries slash commands in from the game, Telegram, the
// terminal and the schedule, and carries replies back out.
package channel

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/linanwx/ferry/logger"
)

// Metadata keys set by channels on incoming messages.
const (
	MetaReplyTo = "reply_to"
	MetaChatID  = "chat_id"
	MetaJobID   = "job_id"
)

// Message is one command line received on a channel.
type Message struct {
	ID        string
	ChannelID string // "<channel>:<conversation>", e.g. "game:Alice", "telegram:123456"
	UserID    string
	Username  string
	Text      string
	Metadata  map[string]string
}

// ReplyAddress names the conversation a reply should go to: the peer for the
// game channel, the chat for Telegram, the job for schedules.
func (m *Message) ReplyAddress() string {
	if m == nil {
		return ""
	}
	if to := strings.TrimSpace(m.Metadata[MetaReplyTo]); to != "" {
		return to
	}
	return strings.TrimSpace(m.Metadata[MetaChatID])
}

// Response is a reply going back out on a channel.
type Response struct {
	Text     string
	ReplyTo  string // channel-specific address from Message.ReplyAddress
	Metadata map[string]string
}

// Channel is one source of commands and sink of replies.
type Channel interface {
	Name() string
	Start(ctx context.Context) error
	Stop() error
	Send(ctx context.Context, resp *Response) error
	// Messages is closed when the channel has no more input.
	Messages() <-chan *Message
}

// Manager is the registry of channels for one serve run.
type Manager struct {
	mu       sync.RWMutex
	channels map[string]Channel
}

// NewManager creates an empty manager.
func NewManager() *Manager {
	return &Manager{channels: make(map[string]Channel)}
}

// Register adds ch, replacing any channel with the same name. Nil is ignored.
func (m *Manager) Register(ch Channel) {
	if ch == nil {
		return
	}
	m.mu.Lock()
	if _, dup := m.channels[ch.Name()]; dup {
		logger.Warn("channel replaced", "channel", ch.Name())
	}
	m.channels[ch.Name()] = ch
	m.mu.Unlock()
	logger.Info("channel registered", "channel", ch.Name())
}

// Get returns a channel by name.
func (m *Manager) Get(name string) (Channel, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ch, ok := m.channels[name]
	return ch, ok
}

// SendTo delivers text to replyTo on the named channel.
func (m *Manager) SendTo(ctx context.Context, channelName, text, replyTo string) error {
	ch, ok := m.Get(channelName)
	if !ok {
		return fmt.Errorf("channel not found: %s", channelName)
	}
	return ch.Send(ctx, &Response{Text: text, ReplyTo: replyTo})
}

// ordered returns the channels by name with the interactive CLI last, so its
// prompt follows the other channels' startup logs.
func (m *Manager) ordered() []Channel {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.channels))
	for name := range m.channels {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if (names[i] == "cli") != (names[j] == "cli") {
			return names[j] == "cli"
		}
		return names[i] < names[j]
	})

	out := make([]Channel, len(names))
	for i, name := range names {
		out[i] = m.channels[name]
	}
	return out
}

// StartAll starts every channel, stopping at the first failure.
func (m *Manager) StartAll(ctx context.Context) error {
	for _, ch := range m.ordered() {
		if err := ch.Start(ctx); err != nil {
			return fmt.Errorf("start %s channel: %w", ch.Name(), err)
		}
	}
	return nil
}

// StopAll stops every channel and reports all failures.
func (m *Manager) StopAll() error {
	var errs []error
	for _, ch := range m.ordered() {
		if err := ch.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop %s channel: %w", ch.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Each calls fn for every channel in start order.
func (m *Manager) Each(fn func(Channel)) {
	for _, ch := range m.ordered() {
		fn(ch)
	}
}

// SplitMessage splits a long message into chunks (byte-based maxLen),
// preferring newline boundaries and avoiding mid-rune splits.
func SplitMessage(text string, maxLen int) []string {
	if len(text) <= maxLen {
		return []string{text}
	}

	var chunks []string
	for len(text) > 0 {
		if len(text) <= maxLen {
			chunks = append(chunks, text)
			break
		}

		// Try to split at newline within the byte window.
		splitAt := maxLen
		if idx := strings.LastIndex(text[:maxLen], "\n"); idx > maxLen/2 {
			splitAt = idx + 1
		}

		// Avoid splitting in the middle of a multi-byte UTF-8 character.
		for splitAt > 0 && !utf8.RuneStart(text[splitAt]) {
			splitAt--
		}
		if splitAt == 0 {
			// Entire prefix is a continuation byte sequence; advance past the rune.
			_, size := utf8.DecodeRuneInString(text)
			splitAt = size
		}

		chunks = append(chunks, text[:splitAt])
		text = text[splitAt:]
	}

	return chunks
}
