// Package collect asks a roster of peers, one at a time, to give this agent
// its wanted items, and pulls wanted items out of the bank.
package collect

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/linanwx/ferry/ack"
	"github.com/linanwx/ferry/bus"
	"github.com/linanwx/ferry/game"
	"github.com/linanwx/ferry/internal/runtimecfg"
	"github.com/linanwx/ferry/logger"
	"github.com/linanwx/ferry/mover"
	"github.com/linanwx/ferry/slots"
	"github.com/linanwx/ferry/wantlist"
)

// Outcome is how one roster member's exchange ended.
type Outcome string

const (
	OutcomeDone        Outcome = "done"
	OutcomeFailed      Outcome = "failed"
	OutcomeTimeout     Outcome = "timeout"
	OutcomeAborted     Outcome = "aborted"
	OutcomeUnreachable Outcome = "unreachable"
)

// Game is the part of the client the orchestrator uses.
type Game interface {
	game.Commander
	game.TradeWindow
	game.Roster
}

// Config tunes the wait loop. MemberTimeout 0 waits forever.
type Config struct {
	PollInterval  time.Duration
	MemberTimeout time.Duration
	// Peers is the broadcast roster used when the client reports none.
	Peers []string
}

// Deps are the orchestrator's collaborators. Bus may be nil.
type Deps struct {
	Self     string
	Game     Game
	Acks     *ack.Registry
	Index    *slots.Index
	Mover    *mover.Mover
	WantList *wantlist.Store
	Bus      *bus.Bus
	// NewSessionID defaults to random UUIDs.
	NewSessionID func() string
}

// MemberResult is one roster member's exchange.
type MemberResult struct {
	Member    string
	SessionID string
	Outcome   Outcome
	Err       error
	Confirms  int
	Duration  time.Duration
}

// Report lists member results in visiting order.
type Report struct {
	Members []MemberResult
}

// Completed counts members that acknowledged success.
func (r Report) Completed() int {
	n := 0
	for _, m := range r.Members {
		if m.Outcome == OutcomeDone {
			n++
		}
	}
	return n
}

// Orchestrator runs collections. It is not safe for concurrent use.
type Orchestrator struct {
	deps Deps
	cfg  Config
}

// New creates an orchestrator.
func New(deps Deps, cfg Config) *Orchestrator {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = runtimecfg.PollInterval
	}
	if deps.NewSessionID == nil {
		deps.NewSessionID = func() string { return uuid.NewString() }
	}
	return &Orchestrator{deps: deps, cfg: cfg}
}

// GiveCommand is the remote command asking a peer to give to requester.
func GiveCommand(requester, sessionID string) string {
	if sessionID == "" {
		return "/give " + requester
	}
	return "/give " + requester + " #" + sessionID
}

// CollectGroup collects from the current group members.
func (o *Orchestrator) CollectGroup(ctx context.Context) (Report, error) {
	roster, err := o.deps.Game.GroupMembers(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("group roster: %w", err)
	}
	return o.CollectFromRoster(ctx, roster), nil
}

// CollectPeers collects from every connected peer, falling back to the
// configured peer list when the client reports none.
func (o *Orchestrator) CollectPeers(ctx context.Context) (Report, error) {
	roster, err := o.deps.Game.Peers(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("peer roster: %w", err)
	}
	if len(roster) == 0 {
		roster = o.cfg.Peers
	}
	return o.CollectFromRoster(ctx, roster), nil
}

// CollectFromRoster visits roster in order. Member k+1 is only asked once
// member k's exchange has ended.
func (o *Orchestrator) CollectFromRoster(ctx context.Context, roster []string) Report {
	var report Report
	for _, member := range roster {
		member = strings.TrimSpace(member)
		if member == "" || strings.EqualFold(member, o.deps.Self) {
			continue
		}
		if ctx.Err() != nil {
			report.Members = append(report.Members, MemberResult{Member: member, Outcome: OutcomeAborted, Err: ctx.Err()})
			continue
		}

		res := o.collectMember(ctx, member)
		report.Members = append(report.Members, res)
		o.publishMember(res)
	}

	logger.Info("collection finished", "members", len(report.Members), "completed", report.Completed())
	if o.deps.Bus != nil {
		o.deps.Bus.PublishCollectFinished(o.deps.Self, len(report.Members))
	}
	return report
}

func (o *Orchestrator) collectMember(ctx context.Context, member string) MemberResult {
	start := time.Now()
	res := MemberResult{Member: member, SessionID: o.deps.NewSessionID()}

	pending := o.deps.Acks.Expect(member, res.SessionID)
	logger.Info("requesting items", "member", member, "session", res.SessionID)
	if err := o.deps.Game.Dispatch(ctx, member, GiveCommand(o.deps.Self, res.SessionID)); err != nil {
		o.deps.Acks.Cancel(pending)
		res.Outcome = OutcomeUnreachable
		res.Err = err
		res.Duration = time.Since(start)
		logger.Warn("give request not delivered", "member", member, "err", err)
		return res
	}

	waitCtx := ctx
	if o.cfg.MemberTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, o.cfg.MemberTimeout)
		defer cancel()
	}

	ticker := time.NewTicker(o.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case msg := <-pending.C():
			res.Outcome = OutcomeDone
			if msg.Kind == ack.KindFailed {
				res.Outcome = OutcomeFailed
				res.Err = ack.ErrPeerFailed
			}
			res.Duration = time.Since(start)
			logger.Info("member finished", "member", member, "outcome", string(res.Outcome), "confirms", res.Confirms)
			return res
		case <-waitCtx.Done():
			o.deps.Acks.Cancel(pending)
			res.Outcome = OutcomeAborted
			if ctx.Err() == nil {
				res.Outcome = OutcomeTimeout
			}
			res.Err = waitCtx.Err()
			res.Duration = time.Since(start)
			logger.Warn("stopped waiting for member", "member", member, "outcome", string(res.Outcome))
			return res
		case <-ticker.C:
			if o.confirmInbound(ctx) {
				res.Confirms++
			}
		}
	}
}

// confirmInbound accepts an open inbound trade so the giver is not left
// waiting on this side's confirmation.
func (o *Orchestrator) confirmInbound(ctx context.Context) bool {
	open, err := o.deps.Game.TradeOpen(ctx)
	if err != nil {
		logger.Warn("trade window query failed", "err", err)
		return false
	}
	if !open {
		return false
	}
	if err := o.deps.Game.ClickTrade(ctx); err != nil {
		logger.Warn("trade confirm failed", "err", err)
		return false
	}
	logger.Debug("inbound trade confirmed")
	return true
}

func (o *Orchestrator) publishMember(res MemberResult) {
	if o.deps.Bus == nil {
		return
	}
	data := bus.CollectEventData{
		SessionID: res.SessionID,
		Collector: o.deps.Self,
		Member:    res.Member,
		Outcome:   string(res.Outcome),
		Duration:  res.Duration,
	}
	if res.Err != nil {
		data.Error = res.Err.Error()
	}
	o.deps.Bus.PublishCollectMember(data)
}

// ErrCursorStuck means an item could not be cleared from the cursor, usually
// because the inventory is full.
var ErrCursorStuck = errors.New("item stuck on cursor")

// BankReport describes a bank collection.
type BankReport struct {
	Target  string
	Moved   []string
	Missing []string
	Failed  []string
}

// CollectFromBank moves every bank item target wants into the inventory.
func (o *Orchestrator) CollectFromBank(ctx context.Context, target string) (BankReport, error) {
	report := BankReport{Target: target}
	wanted, err := o.deps.WantList.Wanted(target)
	if err != nil {
		return report, err
	}

	snap, err := o.deps.Index.Scan(ctx, game.LocationBank)
	if err != nil {
		return report, err
	}

	for _, name := range wanted {
		refs := snap.Filter(name, slots.MatchExact)
		if len(refs) == 0 {
			report.Missing = append(report.Missing, name)
			continue
		}
		for _, ref := range refs {
			if ctx.Err() != nil {
				return report, ctx.Err()
			}
			if !o.deps.Mover.PickUp(ctx, ref.Address) {
				report.Failed = append(report.Failed, name)
				continue
			}
			// One auto-inventory sometimes leaves the item on the cursor, so
			// it is always issued twice.
			first := o.deps.Mover.AutoStow(ctx)
			second := o.deps.Mover.AutoStow(ctx)
			if !first && !second {
				report.Failed = append(report.Failed, name)
				return report, fmt.Errorf("%w: %s from %s", ErrCursorStuck, name, ref.Address)
			}
			report.Moved = append(report.Moved, name)
			logger.Debug("bank item moved", "item", name, "slot", ref.Address.String())
		}
	}

	logger.Info("bank collection finished", "target", target, "moved", len(report.Moved), "missing", len(report.Missing), "failed", len(report.Failed))
	return report, nil
}
