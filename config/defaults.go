package config

import (
	"path/filepath"

	"github.com/linanwx/ferry/internal/runtimecfg"
)

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	journalOn := true
	return &Config{
		Bridge: BridgeConfig{
			URL:              runtimecfg.BridgeDefaultURL,
			RequestTimeout:   runtimecfg.BridgeRequestTimeout,
			ReconnectBackoff: runtimecfg.BridgeReconnectBackoff,
		},
		Inventory: InventoryConfig{
			PackSlots: runtimecfg.PackSlots,
			BankSlots: runtimecfg.BankSlots,
		},
		Trade: TradeConfig{
			BatchSize:     runtimecfg.TradeBatchSize,
			Proximity:     runtimecfg.TradeProximityRange,
			PollInterval:  runtimecfg.PollInterval,
			CursorTimeout: runtimecfg.CursorTimeout,
			WindowTimeout: runtimecfg.WindowTimeout,
		},
		WantList: WantListConfig{File: runtimecfg.WantListFileName},
		Journal:  JournalConfig{Enabled: &journalOn, File: runtimecfg.JournalFileName},
		Channels: &ChannelsConfig{
			Telegram: &TelegramChannelConfig{
				Token:      "",
				AllowedIDs: []int64{},
			},
		},
		Logging: defaultLoggingConfig(),
	}
}

func defaultLoggingConfig() LoggingConfig {
	dir, err := ConfigDir()
	if err != nil {
		dir = ""
	}
	logFile := filepath.Join(dir, "logs", "ferry.log")
	enabled := true
	return LoggingConfig{
		Enabled: &enabled,
		Level:   "info",
		Stdout:  true,
		File:    logFile,
	}
}

func (c *Config) applyDefaults() {
	if c.Bridge.URL == "" {
		c.Bridge.URL = runtimecfg.BridgeDefaultURL
	}
	if c.Bridge.RequestTimeout <= 0 {
		c.Bridge.RequestTimeout = runtimecfg.BridgeRequestTimeout
	}
	if c.Bridge.ReconnectBackoff <= 0 {
		c.Bridge.ReconnectBackoff = runtimecfg.BridgeReconnectBackoff
	}

	if c.Inventory.PackSlots <= 0 {
		c.Inventory.PackSlots = runtimecfg.PackSlots
	}
	if c.Inventory.BankSlots <= 0 {
		c.Inventory.BankSlots = runtimecfg.BankSlots
	}

	if c.Trade.BatchSize <= 0 {
		c.Trade.BatchSize = runtimecfg.TradeBatchSize
	}
	if c.Trade.Proximity <= 0 {
		c.Trade.Proximity = runtimecfg.TradeProximityRange
	}
	if c.Trade.PollInterval <= 0 {
		c.Trade.PollInterval = runtimecfg.PollInterval
	}
	if c.Trade.CursorTimeout <= 0 {
		c.Trade.CursorTimeout = 3 * c.Trade.PollInterval
	}
	if c.Trade.WindowTimeout <= 0 {
		c.Trade.WindowTimeout = 3 * c.Trade.PollInterval
	}

	if c.Collect.MemberTimeout < 0 {
		c.Collect.MemberTimeout = 0
	}

	if c.Channels == nil {
		c.Channels = &ChannelsConfig{}
	}
	if c.Channels.Telegram == nil {
		c.Channels.Telegram = &TelegramChannelConfig{
			AllowedIDs: []int64{},
		}
	}
	if c.Channels.Telegram.AllowedIDs == nil {
		c.Channels.Telegram.AllowedIDs = []int64{}
	}

	def := defaultLoggingConfig()
	if c.Logging == (LoggingConfig{}) {
		c.Logging = def
		return
	}

	hasAny := c.Logging.Level != "" || c.Logging.File != "" || c.Logging.Stdout
	if c.Logging.Enabled == nil && hasAny {
		enabled := true
		c.Logging.Enabled = &enabled
	}
	if c.Logging.Level == "" {
		c.Logging.Level = def.Level
	}
	if !c.Logging.Stdout && c.Logging.File == "" {
		c.Logging.Stdout = def.Stdout
	}
	if c.Logging.Enabled == nil {
		c.Logging.Enabled = def.Enabled
	}
}
