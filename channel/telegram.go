package channel

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/linanwx/ferry/internal/runtimecfg"
	"github.com/linanwx/ferry/logger"
)

// TelegramChannel implements the Channel interface for Telegram.
type TelegramChannel struct {
	token      string
	endpoint   string
	allowedIDs map[int64]bool // Allowed user/chat IDs (empty = allow all)
	messages   chan *Message
	done       chan struct{}
	stopOnce   sync.Once
	wg         sync.WaitGroup

	mu  sync.Mutex
	bot *tgbotapi.BotAPI
}

// TelegramConfig holds Telegram channel configuration.
type TelegramConfig struct {
	Token      string  // Bot token from BotFather
	AllowedIDs []int64 // Allowed user/chat IDs (empty = allow all)
	// APIEndpoint overrides tgbotapi.APIEndpoint; it takes the token and
	// method as %s verbs.
	APIEndpoint string
}

// NewTelegramChannel creates a new Telegram channel.
func NewTelegramChannel(cfg TelegramConfig) *TelegramChannel {
	allowedIDs := make(map[int64]bool)
	for _, id := range cfg.AllowedIDs {
		allowedIDs[id] = true
	}
	endpoint := cfg.APIEndpoint
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}

	return &TelegramChannel{
		token:      cfg.Token,
		endpoint:   endpoint,
		allowedIDs: allowedIDs,
		messages:   make(chan *Message, runtimecfg.TelegramMessageBufferSize),
		done:       make(chan struct{}),
	}
}

// Name returns the channel name.
func (t *TelegramChannel) Name() string {
	return "telegram"
}

// Start connects and begins long polling.
func (t *TelegramChannel) Start(ctx context.Context) error {
	bot, err := t.connect()
	if err != nil {
		return fmt.Errorf("telegram connection failed: %w", err)
	}
	logger.Info("telegram channel started", "bot", bot.Self.UserName)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = runtimecfg.TelegramUpdateTimeout
	updates := bot.GetUpdatesChan(u)

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.done:
				return
			case update, ok := <-updates:
				if !ok {
					return
				}
				t.processUpdate(update)
			}
		}
	}()
	return nil
}

func (t *TelegramChannel) connect() (*tgbotapi.BotAPI, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.bot != nil {
		return t.bot, nil
	}
	if strings.TrimSpace(t.token) == "" {
		return nil, errors.New("empty bot token")
	}
	bot, err := tgbotapi.NewBotAPIWithClient(t.token, t.endpoint, &http.Client{})
	if err != nil {
		return nil, err
	}
	t.bot = bot
	return bot, nil
}

// Stop gracefully shuts down the channel.
func (t *TelegramChannel) Stop() error {
	t.stopOnce.Do(func() {
		t.mu.Lock()
		bot := t.bot
		t.mu.Unlock()
		if bot != nil {
			bot.StopReceivingUpdates()
		}
		close(t.done)
		t.wg.Wait()
		logger.Info("telegram channel stopped")
	})
	return nil
}

// Send posts resp to the chat named by ReplyTo, split to Telegram's message
// limit.
func (t *TelegramChannel) Send(_ context.Context, resp *Response) error {
	t.mu.Lock()
	bot := t.bot
	t.mu.Unlock()
	if bot == nil {
		return errors.New("telegram channel not started")
	}

	chatID, err := strconv.ParseInt(strings.TrimSpace(resp.ReplyTo), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid telegram chat id %q", resp.ReplyTo)
	}

	for _, chunk := range SplitMessage(resp.Text, runtimecfg.TelegramMaxMessageLength) {
		if _, err := bot.Send(tgbotapi.NewMessage(chatID, chunk)); err != nil {
			return fmt.Errorf("telegram send: %w", err)
		}
	}
	return nil
}

// Messages returns the incoming message channel.
func (t *TelegramChannel) Messages() <-chan *Message {
	return t.messages
}

func (t *TelegramChannel) processUpdate(update tgbotapi.Update) {
	msg := update.Message
	if msg == nil || msg.Chat == nil {
		return
	}
	chat := msg.Chat

	fromID := int64(0)
	username := ""
	if msg.From != nil {
		fromID = msg.From.ID
		username = msg.From.UserName
	}

	if len(t.allowedIDs) > 0 && !t.allowedIDs[chat.ID] && !t.allowedIDs[fromID] {
		logger.Warn("telegram message from unauthorized user",
			"userID", fromID,
			"chatID", chat.ID,
			"username", username,
		)
		return
	}

	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return
	}
	// Bots in groups see "/give@ferrybot ..."; drop the mention.
	if cmd := msg.Command(); cmd != "" {
		text = strings.TrimSpace("/" + cmd + " " + msg.CommandArguments())
	}

	chatID := strconv.FormatInt(chat.ID, 10)
	m := &Message{
		ID:        strconv.Itoa(msg.MessageID),
		ChannelID: "telegram:" + chatID,
		UserID:    strconv.FormatInt(fromID, 10),
		Username:  username,
		Text:      text,
		Metadata: map[string]string{
			MetaChatID:  chatID,
			"chat_type": chat.Type,
			MetaReplyTo: chatID,
		},
	}

	select {
	case t.messages <- m:
	case <-t.done:
	default:
		logger.Warn("telegram message buffer full, dropping message", "chatID", chat.ID)
	}
}
