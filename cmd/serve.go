package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/linanwx/ferry/ack"
	"github.com/linanwx/ferry/agent"
	"github.com/linanwx/ferry/bridge"
	"github.com/linanwx/ferry/bus"
	"github.com/linanwx/ferry/channel"
	"github.com/linanwx/ferry/config"
	"github.com/linanwx/ferry/internal/runtimecfg"
	"github.com/linanwx/ferry/journal"
	"github.com/linanwx/ferry/logger"
	"github.com/linanwx/ferry/wantlist"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Connect to the game and serve commands",
	Long: `Connect to the game-client plugin and serve slash commands from every
configured channel until interrupted.

Channels:
  - game: commands typed in game chat or sent by peers (default)
  - cli: interactive command line (default); exit or end of input stops serve
  - telegram: Telegram bot (requires channels.telegram.token)
  - schedule: configured schedules (always on when any are enabled)

Examples:
  ferry serve                 # Start all configured channels (default)
  ferry serve --cli=false     # Headless: game, telegram and schedules
  ferry serve --telegram      # Telegram only, plus the game feed`,
	RunE: runServe,
}

var (
	serveTelegram bool
	serveCLI      bool
)

func init() {
	serveCmd.Flags().BoolVar(&serveTelegram, "telegram", false, "Enable Telegram bot channel")
	serveCmd.Flags().BoolVar(&serveCLI, "cli", true, "Enable CLI channel (default: true)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if logLevelOverride == "" {
		if err := initLogger(cfg); err != nil {
			return err
		}
	}
	if strings.TrimSpace(cfg.Agent.Name) == "" {
		return fmt.Errorf("agent.name is not set in %s", mustConfigPath())
	}

	finalServeCLI, finalServeTelegram, err := resolveServeTargets(cmd, cfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		select {
		case <-sigChan:
			logger.Info("shutdown signal received")
			cancel()
		case <-ctx.Done():
		}
	}()

	b := bus.NewBus(runtimecfg.BusBufferSize)
	if cfg.JournalEnabled() {
		j, detach, err := openJournal(cfg, b)
		if err != nil {
			logger.Warn("journal disabled", "err", err)
		} else {
			defer j.Close()
			defer detach()
		}
	}
	// Closed before the journal detaches so queued events are recorded.
	defer b.Close()

	client, err := dialBridge(ctx, cfg, b)
	if err != nil {
		return err
	}
	defer client.Close()

	acks := ack.NewRegistry(ack.AnySender(cfg.Collect.AckAnySender))
	stopListen := ack.Listen(b, acks)
	defer stopListen()

	wantPath, err := cfg.WantListPath()
	if err != nil {
		return err
	}
	a := agent.New(client, acks, wantlist.NewStore(wantPath), b, cfg.AgentConfig())

	chManager := channel.NewManager()
	chManager.Register(channel.NewGameChannel(cfg.Agent.Name, client.Commands(), client))
	if finalServeCLI {
		chManager.Register(channel.NewCLIChannel(channel.CLIConfig{Prompt: cfg.Agent.Name + "> "}))
	}
	if finalServeTelegram {
		chManager.Register(channel.NewTelegramChannel(channel.TelegramConfig{
			Token:      cfg.GetTelegramToken(),
			AllowedIDs: cfg.GetTelegramAllowedIDs(),
		}))
	}
	if len(cfg.Schedules) > 0 {
		sched, err := channel.NewScheduleChannel(cfg.Schedules)
		if err != nil {
			return fmt.Errorf("failed to create scheduler: %w", err)
		}
		chManager.Register(sched)
	}

	agentDone := make(chan struct{})
	go func() {
		defer close(agentDone)
		a.Run(ctx)
	}()

	logger.Info("ferry is running. Press Ctrl+C to stop.", "character", cfg.Agent.Name)

	if err := chManager.StartAll(ctx); err != nil {
		cancel()
		<-agentDone
		return fmt.Errorf("failed to start channels: %w", err)
	}

	feeds := &feedWatch{ctx: ctx, cancel: cancel}
	dispatcher := NewDispatcher(chManager, a)
	dispatcher.OnFeedClosed(feeds.closed)
	dispatcher.Run(ctx)

	if err := chManager.StopAll(); err != nil {
		logger.Error("error stopping channels", "err", err)
	}
	<-agentDone

	logger.Info("ferry service stopped")
	return feeds.err()
}

// errGameFeedLost makes serve exit non-zero so a supervisor restarts it.
var errGameFeedLost = errors.New("game command feed closed")

// feedWatch stops serve when a feed it depends on closes. The terminal
// closing is a normal exit; the game feed closing is not.
type feedWatch struct {
	ctx    context.Context
	cancel context.CancelFunc
	lost   atomic.Bool
}

func (w *feedWatch) closed(name string) {
	if w.ctx.Err() != nil {
		return
	}
	switch name {
	case "cli":
		logger.Info("terminal input closed, shutting down")
		w.cancel()
	case "game":
		logger.Error("game command feed closed, shutting down")
		w.lost.Store(true)
		w.cancel()
	}
}

func (w *feedWatch) err() error {
	if w.lost.Load() {
		return errGameFeedLost
	}
	return nil
}

// dialBridge retries until the plugin accepts the connection or ctx ends.
func dialBridge(ctx context.Context, cfg *config.Config, b *bus.Bus) (*bridge.Client, error) {
	for {
		client, err := bridge.Dial(ctx, cfg.BridgeClientConfig(), b)
		if err == nil {
			return client, nil
		}
		logger.Warn("bridge not reachable, retrying", "url", cfg.Bridge.URL, "err", err, "backoff", cfg.Bridge.ReconnectBackoff)

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("bridge connect: %w", ctx.Err())
		case <-time.After(cfg.Bridge.ReconnectBackoff):
		}
	}
}

func openJournal(cfg *config.Config, b *bus.Bus) (*journal.Journal, func(), error) {
	path, err := cfg.JournalPath()
	if err != nil {
		return nil, nil, err
	}
	j, err := journal.Open(path)
	if err != nil {
		return nil, nil, err
	}
	return j, j.Attach(b), nil
}

func mustConfigPath() string {
	path, err := config.ConfigPath()
	if err != nil {
		return "config.yaml"
	}
	return path
}

func resolveServeTargets(cmd *cobra.Command, cfg *config.Config) (finalServeCLI, finalServeTelegram bool, err error) {
	if cmd == nil {
		return false, false, fmt.Errorf("serve command is nil")
	}
	flags := cmd.Flags()
	cliChanged := flags.Changed("cli")
	telegramChanged := flags.Changed("telegram")
	hasToken := cfg.GetTelegramToken() != ""

	// No explicit channel flags -> every configured channel.
	if !cliChanged && !telegramChanged {
		return true, hasToken, nil
	}

	// Any explicit channel flag -> use explicit switches only.
	if cliChanged {
		finalServeCLI = serveCLI
	}
	if telegramChanged {
		finalServeTelegram = serveTelegram
	}
	if finalServeTelegram && !hasToken {
		return false, false, fmt.Errorf("--telegram needs channels.telegram.token in %s", mustConfigPath())
	}
	return finalServeCLI, finalServeTelegram, nil
}
