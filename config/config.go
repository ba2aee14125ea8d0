// Package config handles configuration loading and saving.
package config

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/linanwx/ferry/agent"
	"github.com/linanwx/ferry/bridge"
	"github.com/linanwx/ferry/collect"
	"github.com/linanwx/ferry/cron"
	"github.com/linanwx/ferry/internal/runtimecfg"
	"github.com/linanwx/ferry/logger"
	"github.com/linanwx/ferry/mover"
	"github.com/linanwx/ferry/slots"
	"github.com/linanwx/ferry/trade"
)

const configFileName = "config.yaml"

// Config is the root configuration structure.
type Config struct {
	Agent     AgentConfig     `yaml:"agent"`
	Bridge    BridgeConfig    `yaml:"bridge"`
	Inventory InventoryConfig `yaml:"inventory"`
	Trade     TradeConfig     `yaml:"trade"`
	Collect   CollectConfig   `yaml:"collect"`
	WantList  WantListConfig  `yaml:"wantList"`
	Journal   JournalConfig   `yaml:"journal"`
	Channels  *ChannelsConfig `yaml:"channels,omitempty"`
	Schedules []cron.Job      `yaml:"schedules,omitempty"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// AgentConfig names the character this process plays.
type AgentConfig struct {
	Name string `yaml:"name"`
}

// BridgeConfig locates the game-client plugin.
type BridgeConfig struct {
	URL              string        `yaml:"url"`
	RequestTimeout   time.Duration `yaml:"requestTimeout,omitempty"`
	ReconnectBackoff time.Duration `yaml:"reconnectBackoff,omitempty"`
}

// InventoryConfig sets container capacities, which vary by game server.
type InventoryConfig struct {
	PackSlots int `yaml:"packSlots"`
	BankSlots int `yaml:"bankSlots"`
}

// TradeConfig tunes the trade handshake.
type TradeConfig struct {
	BatchSize     int           `yaml:"batchSize"`
	Proximity     float64       `yaml:"proximity"`
	PollInterval  time.Duration `yaml:"pollInterval"`
	CursorTimeout time.Duration `yaml:"cursorTimeout,omitempty"`
	WindowTimeout time.Duration `yaml:"windowTimeout,omitempty"`
}

// CollectConfig tunes group collection. A zero MemberTimeout waits forever.
// AckAnySender accepts a completion tell from a character other than the one
// being waited on.
type CollectConfig struct {
	MemberTimeout time.Duration `yaml:"memberTimeout,omitempty"`
	Peers         []string      `yaml:"peers,omitempty"`
	AckAnySender  bool          `yaml:"ackAnySender,omitempty"`
}

// WantListConfig locates the want list; relative paths resolve against the
// config directory.
type WantListConfig struct {
	File string `yaml:"file,omitempty"`
}

// JournalConfig controls the transfer journal.
type JournalConfig struct {
	Enabled *bool  `yaml:"enabled,omitempty"`
	File    string `yaml:"file,omitempty"`
}

// ChannelsConfig contains operator channel configuration.
type ChannelsConfig struct {
	Telegram *TelegramChannelConfig `yaml:"telegram,omitempty"`
}

// TelegramChannelConfig contains Telegram bot configuration.
type TelegramChannelConfig struct {
	Token      string  `yaml:"token"`
	AllowedIDs []int64 `yaml:"allowedIds,omitempty"`
}

// LoggingConfig mirrors logger.Config with an optional Enabled.
type LoggingConfig struct {
	Enabled *bool  `yaml:"enabled,omitempty"`
	Level   string `yaml:"level,omitempty"`
	Stdout  bool   `yaml:"stdout,omitempty"`
	File    string `yaml:"file,omitempty"`
}

// GetTelegramToken returns the bot token, or "" when Telegram is not set up.
func (c *Config) GetTelegramToken() string {
	if c.Channels == nil || c.Channels.Telegram == nil {
		return ""
	}
	return strings.TrimSpace(c.Channels.Telegram.Token)
}

// GetTelegramAllowedIDs returns the allow list for the Telegram channel.
func (c *Config) GetTelegramAllowedIDs() []int64 {
	if c.Channels == nil || c.Channels.Telegram == nil {
		return nil
	}
	return c.Channels.Telegram.AllowedIDs
}

// JournalEnabled treats an unset Enabled as true.
func (c *Config) JournalEnabled() bool {
	return c.Journal.Enabled == nil || *c.Journal.Enabled
}

// WantListPath resolves the want list file.
func (c *Config) WantListPath() (string, error) {
	return c.resolve(c.WantList.File, runtimecfg.WantListFileName)
}

// JournalPath resolves the journal database file.
func (c *Config) JournalPath() (string, error) {
	return c.resolve(c.Journal.File, runtimecfg.JournalFileName)
}

func (c *Config) resolve(file, fallback string) (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	file = strings.TrimSpace(file)
	if file == "" {
		return filepath.Join(dir, fallback), nil
	}
	return expandHome(file, dir)
}

// LoggerConfig converts the logging section for logger.Init.
func (c *Config) LoggerConfig() logger.Config {
	return logger.Config{
		Enabled:   c.Logging.Enabled == nil || *c.Logging.Enabled,
		Level:     c.Logging.Level,
		Stdout:    c.Logging.Stdout,
		File:      c.Logging.File,
		Character: c.Agent.Name,
	}
}

// BridgeClientConfig converts the bridge section for bridge.Dial.
func (c *Config) BridgeClientConfig() bridge.Config {
	return bridge.Config{
		URL:              c.Bridge.URL,
		RequestTimeout:   c.Bridge.RequestTimeout,
		EventBuffer:      runtimecfg.BridgeEventBufferSize,
		ReconnectBackoff: c.Bridge.ReconnectBackoff,
	}
}

// AgentConfig assembles the pipeline tuning for agent.New.
func (c *Config) AgentConfig() agent.Config {
	return agent.Config{
		Self: c.Agent.Name,
		Layout: slots.Layout{
			PackSlots: c.Inventory.PackSlots,
			BankSlots: c.Inventory.BankSlots,
		},
		Mover: mover.Config{
			PollInterval: c.Trade.PollInterval,
			Timeout:      c.Trade.CursorTimeout,
		},
		Trade: trade.Config{
			BatchSize:      c.Trade.BatchSize,
			ProximityRange: c.Trade.Proximity,
			PollInterval:   c.Trade.PollInterval,
			WindowTimeout:  c.Trade.WindowTimeout,
		},
		Collect: collect.Config{
			PollInterval:  c.Trade.PollInterval,
			MemberTimeout: c.Collect.MemberTimeout,
			Peers:         append([]string(nil), c.Collect.Peers...),
		},
	}
}
