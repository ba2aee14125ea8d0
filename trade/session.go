// Package trade drives a single give: target the receiver, walk into range,
// offer every wanted item the giver holds in batches, and confirm each batch
// until the trade window closes.
package trade

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/linanwx/ferry/ack"
	"github.com/linanwx/ferry/bus"
	"github.com/linanwx/ferry/game"
	"github.com/linanwx/ferry/internal/runtimecfg"
	"github.com/linanwx/ferry/logger"
	"github.com/linanwx/ferry/mover"
	"github.com/linanwx/ferry/slots"
)

var (
	ErrTargetNotFound = errors.New("target not found")
	ErrAborted        = errors.New("trade aborted")
	// ErrCursorStuck means an item refused by the trade could not be stowed
	// either. Picking up anything else would swap it with the cursor item.
	ErrCursorStuck = errors.New("item stuck on cursor")
)

// State is a TradeSession state.
type State int

const (
	StateIdle State = iota
	StateTargeting
	StateApproaching
	StateOffering
	StateAwaitingWindowClose
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateTargeting:
		return "targeting"
	case StateApproaching:
		return "approaching"
	case StateOffering:
		return "offering"
	case StateAwaitingWindowClose:
		return "awaiting_window_close"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// Game is the part of the client a session steers.
type Game interface {
	game.Targeting
	game.Navigator
	game.TradeWindow
}

// Config tunes batching and waits.
type Config struct {
	BatchSize      int
	ProximityRange float64
	PollInterval   time.Duration
	WindowTimeout  time.Duration
}

func (c Config) withDefaults() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = runtimecfg.TradeBatchSize
	}
	if c.ProximityRange <= 0 {
		c.ProximityRange = runtimecfg.TradeProximityRange
	}
	if c.PollInterval <= 0 {
		c.PollInterval = runtimecfg.PollInterval
	}
	if c.WindowTimeout <= 0 {
		c.WindowTimeout = runtimecfg.WindowTimeout
	}
	return c
}

// Deps are the session's collaborators. Notifier and Bus may be nil.
type Deps struct {
	Self     string
	Game     Game
	Index    *slots.Index
	Mover    *mover.Mover
	Notifier *ack.Notifier
	Bus      *bus.Bus
}

// Request names the receiver and the items it wants.
type Request struct {
	Target    string
	Items     []string
	SessionID string
	// Requester receives the acknowledgement; defaults to Target.
	Requester string
	// NotifyFailure tells the requester when the session fails.
	NotifyFailure bool
}

// Result is the terminal outcome of a session.
type Result struct {
	SessionID string
	Target    string
	State     State
	Err       error
	Offered   []string
	Skipped   []string
	// Refused lists items that were held but not accepted by the trade.
	Refused   []string
	Batches   int
	Clicks    int
}

// Session is one outstanding give. It is not safe for concurrent use.
type Session struct {
	deps Deps
	cfg  Config
	req  Request

	state   State
	pending []string
	held    map[string]bool
	skip    map[game.Address]bool
	result  Result
}

// NewSession prepares a session in StateIdle.
func NewSession(deps Deps, cfg Config, req Request) *Session {
	if req.Requester == "" {
		req.Requester = req.Target
	}
	return &Session{
		deps:    deps,
		cfg:     cfg.withDefaults(),
		req:     req,
		state:   StateIdle,
		pending: append([]string(nil), req.Items...),
		held:    make(map[string]bool),
		skip:    make(map[game.Address]bool),
		result:  Result{SessionID: req.SessionID, Target: req.Target},
	}
}

// State returns the current state.
func (s *Session) State() State {
	return s.state
}

// Run drives the session to Completed or Failed.
func (s *Session) Run(ctx context.Context) Result {
	logger.Info("give started", "target", s.req.Target, "session", s.req.SessionID, "wanted", len(s.req.Items))

	s.enter(StateTargeting)
	ok, err := s.deps.Game.Target(ctx, s.req.Target)
	if err != nil || !ok {
		if err != nil {
			logger.Warn("target lookup failed", "target", s.req.Target, "err", err)
		}
		return s.fail(ctx, fmt.Errorf("%w: %s", ErrTargetNotFound, s.req.Target))
	}

	s.enter(StateApproaching)
	if err := s.approach(ctx); err != nil {
		return s.fail(ctx, err)
	}

	for {
		s.enter(StateOffering)
		placed, exhausted, err := s.offerBatch(ctx)
		if err != nil {
			return s.fail(ctx, err)
		}
		if placed > 0 {
			s.enter(StateAwaitingWindowClose)
			if err := s.awaitWindowClose(ctx); err != nil {
				return s.fail(ctx, err)
			}
			s.result.Batches++
		}
		if exhausted {
			break
		}
	}

	s.enter(StateCompleted)
	s.result.State = StateCompleted
	if s.deps.Notifier != nil {
		if err := s.deps.Notifier.NotifyDone(ctx, s.req.Requester, s.req.SessionID); err != nil {
			logger.Warn("done notification failed", "peer", s.req.Requester, "err", err)
		}
	}
	logger.Info("give completed",
		"target", s.req.Target,
		"session", s.req.SessionID,
		"offered", len(s.result.Offered),
		"skipped", len(s.result.Skipped),
		"batches", s.result.Batches,
	)
	s.publishFinished()
	return s.result
}

func (s *Session) approach(ctx context.Context) error {
	dist, err := s.deps.Game.Distance(ctx)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrTargetNotFound, s.req.Target, err)
	}
	if dist <= s.cfg.ProximityRange {
		return nil
	}

	logger.Debug("navigating to target", "target", s.req.Target, "distance", dist)
	if err := s.deps.Game.NavigateToTarget(ctx); err != nil {
		return fmt.Errorf("navigate to %s: %w", s.req.Target, err)
	}

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()
	for {
		active, err := s.deps.Game.Navigating(ctx)
		if err != nil {
			return fmt.Errorf("navigate to %s: %w", s.req.Target, err)
		}
		if !active {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", ErrAborted, ctx.Err())
		case <-ticker.C:
		}
	}
}

// offerBatch places up to BatchSize items onto the trade. exhausted is true
// once no pending item name is left.
func (s *Session) offerBatch(ctx context.Context) (placed int, exhausted bool, err error) {
	snap, err := s.deps.Index.Scan(ctx, game.LocationPack)
	if err != nil {
		return 0, false, err
	}

	for len(s.pending) > 0 {
		name := s.pending[0]
		for _, ref := range snap.Filter(name, slots.MatchExact) {
			if s.skip[ref.Address] {
				continue
			}
			if placed == s.cfg.BatchSize {
				return placed, false, nil
			}
			if ctx.Err() != nil {
				return placed, false, fmt.Errorf("%w: %v", ErrAborted, ctx.Err())
			}
			// The slot is consumed whether or not the move succeeds.
			s.skip[ref.Address] = true
			offered, err := s.offer(ctx, ref)
			if err != nil {
				return placed, false, err
			}
			if !offered {
				continue
			}
			s.result.Offered = append(s.result.Offered, name)
			placed++
		}

		if !s.held[name] {
			logger.Debug("wanted item not held", "item", name)
			s.result.Skipped = append(s.result.Skipped, name)
		}
		s.pending = s.pending[1:]
	}
	return placed, true, nil
}

// offer moves one slot onto the trade. A refused item goes back into the
// pack; if it cannot, the session must stop with the cursor loaded.
func (s *Session) offer(ctx context.Context, ref slots.ItemRef) (bool, error) {
	if !s.deps.Mover.PickUp(ctx, ref.Address) {
		logger.Warn("could not pick up item", "item", ref.Name, "slot", ref.Address.String())
		return false, nil
	}
	s.held[ref.Name] = true
	if !s.deps.Mover.Place(ctx, mover.Trade()) {
		logger.Warn("could not offer item, stowing it", "item", ref.Name)
		s.result.Refused = append(s.result.Refused, ref.Name)
		if !s.deps.Mover.AutoStow(ctx) {
			return false, fmt.Errorf("%w: %s from %s", ErrCursorStuck, ref.Name, ref.Address)
		}
		return false, nil
	}
	logger.Debug("item offered", "item", ref.Name, "slot", ref.Address.String())
	return true, nil
}

// awaitWindowClose clicks trade until the window closes. Completion depends on
// the peer, so there is no overall deadline; only ctx ends the loop.
func (s *Session) awaitWindowClose(ctx context.Context) error {
	for {
		if err := s.deps.Game.ClickTrade(ctx); err != nil {
			logger.Warn("trade click failed", "err", err)
		}
		s.result.Clicks++

		closed, err := s.waitWindowClosed(ctx)
		if err != nil {
			return err
		}
		if closed {
			return nil
		}
		logger.Debug("trade window still open, confirming again", "target", s.req.Target)
	}
}

func (s *Session) waitWindowClosed(ctx context.Context) (bool, error) {
	deadline := time.NewTimer(s.cfg.WindowTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return false, fmt.Errorf("%w: %v", ErrAborted, ctx.Err())
		case <-deadline.C:
			return false, nil
		case <-ticker.C:
		}
		open, err := s.deps.Game.TradeOpen(ctx)
		if err != nil {
			logger.Warn("trade window query failed", "err", err)
			continue
		}
		if !open {
			return true, nil
		}
	}
}

func (s *Session) fail(ctx context.Context, err error) Result {
	s.enter(StateFailed)
	s.result.State = StateFailed
	s.result.Err = err
	logger.Warn("give failed", "target", s.req.Target, "session", s.req.SessionID, "err", err)

	if s.req.NotifyFailure && s.deps.Notifier != nil && ctx.Err() == nil {
		if nerr := s.deps.Notifier.NotifyFailed(ctx, s.req.Requester, s.req.SessionID); nerr != nil {
			logger.Warn("failure notification failed", "peer", s.req.Requester, "err", nerr)
		}
	}
	s.publishFinished()
	return s.result
}

func (s *Session) enter(state State) {
	if s.state == state {
		return
	}
	logger.Debug("trade state", "session", s.req.SessionID, "from", s.state.String(), "to", state.String())
	s.state = state
	if s.deps.Bus != nil {
		s.deps.Bus.PublishTradeState(s.eventData())
	}
}

func (s *Session) publishFinished() {
	if s.deps.Bus != nil {
		s.deps.Bus.PublishTradeFinished(s.eventData())
	}
}

func (s *Session) eventData() bus.TradeEventData {
	data := bus.TradeEventData{
		SessionID: s.req.SessionID,
		Giver:     s.deps.Self,
		Receiver:  s.req.Target,
		State:     s.state.String(),
		Offered:   s.result.Offered,
		Skipped:   s.result.Skipped,
		Batches:   s.result.Batches,
	}
	if s.result.Err != nil {
		data.Error = s.result.Err.Error()
	}
	return data
}
