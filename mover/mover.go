// Package mover performs single item moves and waits for the cursor to
// confirm them. It never retries; callers decide whether a retry is safe.
package mover

import (
	"context"
	"time"

	"github.com/linanwx/ferry/game"
	"github.com/linanwx/ferry/internal/runtimecfg"
	"github.com/linanwx/ferry/logger"
)

type destKind int

const (
	destTrade destKind = iota + 1
	destStow
	destSlot
)

// Destination is where the cursor item is put down.
type Destination struct {
	kind destKind
	addr game.Address
}

// Trade drops the cursor item onto the current target's trade offer.
func Trade() Destination { return Destination{kind: destTrade} }

// Stow drops the cursor item into the first free inventory slot.
func Stow() Destination { return Destination{kind: destStow} }

// Slot drops the cursor item into a specific sub-slot, e.g. a bank container.
func Slot(addr game.Address) Destination { return Destination{kind: destSlot, addr: addr} }

func (d Destination) String() string {
	switch d.kind {
	case destTrade:
		return "trade"
	case destStow:
		return "autostow"
	case destSlot:
		return d.addr.String()
	}
	return "unknown"
}

// Config bounds the cursor waits.
type Config struct {
	PollInterval time.Duration
	Timeout      time.Duration
}

// Mover drives game.Hands.
type Mover struct {
	hands game.Hands
	cfg   Config
}

// New creates a mover. Zero config values fall back to runtime defaults.
func New(hands game.Hands, cfg Config) *Mover {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = runtimecfg.PollInterval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = runtimecfg.CursorTimeout
	}
	return &Mover{hands: hands, cfg: cfg}
}

// PickUp lifts the item at addr onto the cursor. It returns false if the
// cursor is still empty when the timeout elapses.
func (m *Mover) PickUp(ctx context.Context, addr game.Address) bool {
	if err := m.hands.PickUp(ctx, addr); err != nil {
		logger.Warn("pickup failed", "slot", addr.String(), "err", err)
		return false
	}
	if !m.waitCursor(ctx, true) {
		logger.Debug("pickup timed out", "slot", addr.String())
		return false
	}
	return true
}

// Place puts the cursor item down at dst and waits for the cursor to clear.
func (m *Mover) Place(ctx context.Context, dst Destination) bool {
	var err error
	switch dst.kind {
	case destTrade:
		err = m.hands.GiveToTarget(ctx)
	case destStow:
		err = m.hands.AutoInventory(ctx)
	case destSlot:
		err = m.hands.PlaceIn(ctx, dst.addr)
	default:
		logger.Warn("place: unknown destination")
		return false
	}
	if err != nil {
		logger.Warn("place failed", "dest", dst.String(), "err", err)
		return false
	}
	if !m.waitCursor(ctx, false) {
		logger.Debug("place timed out", "dest", dst.String())
		return false
	}
	return true
}

// AutoStow drops whatever is on the cursor into the inventory.
func (m *Mover) AutoStow(ctx context.Context) bool {
	return m.Place(ctx, Stow())
}

func (m *Mover) waitCursor(ctx context.Context, holding bool) bool {
	deadline := time.NewTimer(m.cfg.Timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()

	for {
		_, ok, err := m.hands.CursorItem(ctx)
		if err != nil {
			logger.Warn("cursor query failed", "err", err)
		} else if ok == holding {
			return true
		}

		select {
		case <-ctx.Done():
			return false
		case <-deadline.C:
			return false
		case <-ticker.C:
		}
	}
}
