package runtimecfg

import "time"

const (
	PackSlots = 10
	BankSlots = 24
)

const (
	TradeBatchSize      = 8
	TradeProximityRange = 15.0
	PollInterval        = 750 * time.Millisecond
	CursorTimeout       = 3 * PollInterval
	WindowTimeout       = 3 * PollInterval
)

const (
	BridgeDefaultURL       = "ws://127.0.0.1:7788/ferry"
	BridgeRequestTimeout   = 5 * time.Second
	BridgeEventBufferSize  = 256
	BridgeReconnectBackoff = 3 * time.Second
)

const (
	BusBufferSize               = 256
	AgentCommandBufferSize      = 32
	CLIChannelMessageBufferSize = 10
	GameChannelBufferSize       = 64
	TelegramMessageBufferSize   = 100
	TelegramUpdateTimeout       = 30
	TelegramMaxMessageLength    = 4096
	ScheduleChannelBufferSize   = 16
)

const (
	WantListFileName    = "wantlist.yaml"
	JournalFileName     = "journal.db"
	JournalDefaultLimit = 20
)
