// Package agent is the per-process agent: it owns the transfer pipeline and
// executes slash commands one at a time.
package agent

import (
	"context"
	"errors"
	"strings"

	"github.com/linanwx/ferry/ack"
	"github.com/linanwx/ferry/bus"
	"github.com/linanwx/ferry/collect"
	"github.com/linanwx/ferry/game"
	"github.com/linanwx/ferry/internal/runtimecfg"
	"github.com/linanwx/ferry/logger"
	"github.com/linanwx/ferry/mover"
	"github.com/linanwx/ferry/slots"
	"github.com/linanwx/ferry/trade"
	"github.com/linanwx/ferry/wantlist"
)

// ErrStopped is returned by Submit once Run has returned.
var ErrStopped = errors.New("agent stopped")

// Config holds the agent's identity and pipeline tuning.
type Config struct {
	Self    string
	Layout  slots.Layout
	Mover   mover.Config
	Trade   trade.Config
	Collect collect.Config
	// QueueSize bounds the number of commands waiting to run.
	QueueSize int
}

// Reply delivers a command's result back to where it came from.
type Reply func(ctx context.Context, text string) error

// Command is a slash command waiting in the queue.
type Command struct {
	Source string
	Line   string
	Reply  Reply
}

// Agent executes commands against one game client.
type Agent struct {
	self     string
	client   game.Client
	index    *slots.Index
	mover    *mover.Mover
	acks     *ack.Registry
	notifier *ack.Notifier
	orch     *collect.Orchestrator
	wants    *wantlist.Store
	bus      *bus.Bus
	tradeCfg trade.Config

	queue chan Command
	done  chan struct{}
}

// New wires the pipeline. acks must be the registry fed by the chat
// listener; b may be nil.
func New(client game.Client, acks *ack.Registry, wants *wantlist.Store, b *bus.Bus, cfg Config) *Agent {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = runtimecfg.AgentCommandBufferSize
	}
	if cfg.Layout.PackSlots <= 0 {
		cfg.Layout.PackSlots = runtimecfg.PackSlots
	}
	if cfg.Layout.BankSlots <= 0 {
		cfg.Layout.BankSlots = runtimecfg.BankSlots
	}

	a := &Agent{
		self:     cfg.Self,
		client:   client,
		index:    slots.New(client, cfg.Layout),
		mover:    mover.New(client, cfg.Mover),
		acks:     acks,
		notifier: ack.NewNotifier(client),
		wants:    wants,
		bus:      b,
		tradeCfg: cfg.Trade,
		queue:    make(chan Command, cfg.QueueSize),
		done:     make(chan struct{}),
	}
	a.orch = collect.New(collect.Deps{
		Self:     cfg.Self,
		Game:     client,
		Acks:     acks,
		Index:    a.index,
		Mover:    a.mover,
		WantList: wants,
		Bus:      b,
	}, cfg.Collect)
	return a
}

// Name returns the character this agent plays.
func (a *Agent) Name() string {
	return a.self
}

// Submit queues cmd. It blocks while the queue is full.
func (a *Agent) Submit(ctx context.Context, cmd Command) error {
	select {
	case <-a.done:
		return ErrStopped
	default:
	}
	select {
	case a.queue <- cmd:
		return nil
	case <-a.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run executes queued commands until ctx is cancelled. Only one command runs
// at a time, so at most one trade or collection is in flight.
func (a *Agent) Run(ctx context.Context) {
	defer close(a.done)
	if a.bus != nil {
		a.bus.PublishAgentStarted(a.self)
		defer a.bus.PublishAgentStopped(a.self)
	}
	logger.Info("agent started", "character", a.self)

	for {
		select {
		case <-ctx.Done():
			logger.Info("agent stopped", "character", a.self)
			return
		case cmd := <-a.queue:
			a.execute(ctx, cmd)
		}
	}
}

func (a *Agent) execute(ctx context.Context, cmd Command) {
	logger.Debug("executing command", "source", cmd.Source, "line", cmd.Line)
	text := a.Handle(ctx, cmd.Line)
	if cmd.Reply == nil || strings.TrimSpace(text) == "" {
		return
	}
	if err := cmd.Reply(ctx, text); err != nil {
		logger.Warn("reply failed", "source", cmd.Source, "err", err)
	}
}
