package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/linanwx/ferry/collect"
	"github.com/linanwx/ferry/game"
	"github.com/linanwx/ferry/logger"
	"github.com/linanwx/ferry/slots"
	"github.com/linanwx/ferry/trade"
	"github.com/linanwx/ferry/wantlist"
)

const usage = `Commands:
  /give [target] [#session]        give target its wanted items
  /give bank [target]              pull target's items from the bank, then give
  /give find <pack|bank> <name>    fast lookup of one item
  /give findall <pack|bank> <name>       every slot holding name
  /give findallmatch <pack|bank> <text>  every slot whose item contains text
  /collect [group]                 ask each group member to give to you
  /collect e3bots                  ask every connected peer to give to you
  /collect bank <char>             move char's wanted items from bank to pack
  /collect list [char]             show a want list
  /collect scan <pack|bank>        list held items
  /collect add [target|<char>]     add the cursor item to a want list
  /collect debug                   toggle debug logging
  /collect sort                    sort the want list file`

// Handle runs one command line and returns the text to show the caller.
// Failures are reported in the text; Handle never fails the process.
func (a *Agent) Handle(ctx context.Context, line string) string {
	fields := strings.Fields(strings.TrimSpace(line))
	if len(fields) == 0 {
		return ""
	}

	switch strings.ToLower(fields[0]) {
	case "/give":
		return a.handleGive(ctx, fields[1:])
	case "/collect":
		return a.handleCollect(ctx, fields[1:])
	case "/help":
		return usage
	default:
		return fmt.Sprintf("Unknown command %q. Try /help.", fields[0])
	}
}

func (a *Agent) handleGive(ctx context.Context, args []string) string {
	if len(args) > 0 {
		switch strings.ToLower(args[0]) {
		case "bank":
			return a.giveFromBank(ctx, optionalArg(args, 1))
		case "find":
			return a.find(ctx, args[1:], slots.MatchExact, false)
		case "findall":
			return a.find(ctx, args[1:], slots.MatchExact, true)
		case "findallmatch":
			return a.find(ctx, args[1:], slots.MatchSubstring, true)
		}
	}

	var target, sessionID string
	for _, arg := range args {
		if strings.HasPrefix(arg, "#") {
			sessionID = strings.TrimPrefix(arg, "#")
			continue
		}
		if target == "" {
			target = arg
		}
	}
	remote := sessionID != ""

	target, err := a.resolveTarget(ctx, target)
	if err != nil {
		return err.Error()
	}
	return a.give(ctx, target, sessionID, remote)
}

// give runs a trade session handing target its wanted items. A remote give
// always answers the requester, even when nothing can be sent.
func (a *Agent) give(ctx context.Context, target, sessionID string, remote bool) string {
	items, err := a.wants.Wanted(target)
	if err != nil {
		if remote {
			if nerr := a.notifier.NotifyFailed(ctx, target, sessionID); nerr != nil {
				logger.Warn("failure notification failed", "peer", target, "err", nerr)
			}
		}
		if errors.Is(err, wantlist.ErrConfigMissing) {
			return fmt.Sprintf("No want list for %s, nothing to give.", target)
		}
		return fmt.Sprintf("Could not read want list: %v", err)
	}

	session := trade.NewSession(trade.Deps{
		Self:     a.self,
		Game:     a.client,
		Index:    a.index,
		Mover:    a.mover,
		Notifier: a.notifier,
		Bus:      a.bus,
	}, a.tradeCfg, trade.Request{
		Target:        target,
		Items:         items,
		SessionID:     sessionID,
		Requester:     target,
		NotifyFailure: remote,
	})
	return formatTrade(session.Run(ctx))
}

func formatTrade(res trade.Result) string {
	if res.State == trade.StateFailed {
		return fmt.Sprintf("Give to %s failed after %d item(s): %v", res.Target, len(res.Offered), res.Err)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Gave %d item(s) to %s in %d trade(s).", len(res.Offered), res.Target, res.Batches)
	if len(res.Skipped) > 0 {
		fmt.Fprintf(&b, " Not held: %s.", strings.Join(res.Skipped, ", "))
	}
	if len(res.Refused) > 0 {
		fmt.Fprintf(&b, " Refused by trade: %s.", strings.Join(res.Refused, ", "))
	}
	return b.String()
}

func (a *Agent) giveFromBank(ctx context.Context, target string) string {
	target, err := a.resolveTarget(ctx, target)
	if err != nil {
		return err.Error()
	}
	report, err := a.orch.CollectFromBank(ctx, target)
	if err != nil {
		if errors.Is(err, wantlist.ErrConfigMissing) {
			return fmt.Sprintf("No want list for %s, nothing to give.", target)
		}
		return formatBank(report) + "\n" + fmt.Sprintf("Bank collection stopped: %v", err)
	}
	return formatBank(report) + "\n" + a.give(ctx, target, "", false)
}

func formatBank(r collect.BankReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Took %d item(s) for %s from the bank.", len(r.Moved), r.Target)
	if len(r.Missing) > 0 {
		fmt.Fprintf(&b, " Not in bank: %s.", strings.Join(r.Missing, ", "))
	}
	if len(r.Failed) > 0 {
		fmt.Fprintf(&b, " Could not move: %s.", strings.Join(r.Failed, ", "))
	}
	return b.String()
}

func (a *Agent) find(ctx context.Context, args []string, mode slots.MatchMode, all bool) string {
	if len(args) < 2 {
		return "Usage: /give find|findall|findallmatch <pack|bank> <name>"
	}
	loc, err := game.ParseLocation(args[0])
	if err != nil {
		return err.Error()
	}
	name := strings.Join(args[1:], " ")

	var refs []slots.ItemRef
	if all {
		refs, err = a.index.FindAll(ctx, loc, name, mode)
	} else {
		var ref slots.ItemRef
		var ok bool
		ref, ok, err = a.index.Find(ctx, loc, name, mode)
		if ok {
			refs = append(refs, ref)
		}
	}
	if err != nil {
		return fmt.Sprintf("Lookup failed: %v", err)
	}
	if len(refs) == 0 {
		return fmt.Sprintf("%s not found in %s.", name, loc)
	}
	return formatRefs(refs)
}

func formatRefs(refs []slots.ItemRef) string {
	lines := make([]string, 0, len(refs))
	for _, ref := range refs {
		lines = append(lines, ref.Address.String()+" "+ref.Name)
	}
	return strings.Join(lines, "\n")
}

func (a *Agent) handleCollect(ctx context.Context, args []string) string {
	sub := "group"
	if len(args) > 0 {
		sub = strings.ToLower(args[0])
	}

	switch sub {
	case "group":
		report, err := a.orch.CollectGroup(ctx)
		if err != nil {
			return err.Error()
		}
		return formatCollect(report)
	case "e3bots":
		report, err := a.orch.CollectPeers(ctx)
		if err != nil {
			return err.Error()
		}
		return formatCollect(report)
	case "bank":
		char := optionalArg(args, 1)
		if char == "" {
			return "Usage: /collect bank <char>"
		}
		report, err := a.orch.CollectFromBank(ctx, char)
		if errors.Is(err, wantlist.ErrConfigMissing) {
			return fmt.Sprintf("No want list for %s.", char)
		}
		if err != nil {
			return formatBank(report) + "\n" + fmt.Sprintf("Bank collection stopped: %v", err)
		}
		return formatBank(report)
	case "list":
		return a.listWanted(optionalArg(args, 1))
	case "scan":
		return a.scan(ctx, optionalArg(args, 1))
	case "add":
		return a.addCursorItem(ctx, optionalArg(args, 1))
	case "debug":
		if logger.DebugEnabled() {
			logger.SetLevel("info")
			return "Debug logging off."
		}
		logger.SetLevel("debug")
		return "Debug logging on."
	case "sort":
		if err := a.wants.Sort(); err != nil {
			return fmt.Sprintf("Could not sort want list: %v", err)
		}
		return "Want list sorted."
	default:
		return fmt.Sprintf("Unknown /collect option %q. Try /help.", args[0])
	}
}

func formatCollect(r collect.Report) string {
	if len(r.Members) == 0 {
		return "Nobody to collect from."
	}
	lines := []string{fmt.Sprintf("Collected from %d of %d member(s).", r.Completed(), len(r.Members))}
	for _, m := range r.Members {
		if m.Outcome != collect.OutcomeDone {
			lines = append(lines, fmt.Sprintf("  %s: %s", m.Member, m.Outcome))
		}
	}
	return strings.Join(lines, "\n")
}

func (a *Agent) listWanted(char string) string {
	if char == "" {
		char = a.self
	}
	w, err := a.wants.Load()
	if err != nil {
		return fmt.Sprintf("Could not read want list: %v", err)
	}
	section, items, ok := w.Section(char)
	if !ok {
		if chars := w.Characters(); len(chars) > 0 {
			return fmt.Sprintf("No want list for %s. Known: %s.", char, strings.Join(chars, ", "))
		}
		return fmt.Sprintf("No want list for %s.", char)
	}
	names := items.Names()
	if len(names) == 0 {
		return fmt.Sprintf("%s wants nothing.", section)
	}
	return section + " wants:\n  " + strings.Join(names, "\n  ")
}

func (a *Agent) scan(ctx context.Context, where string) string {
	if where == "" {
		return "Usage: /collect scan <pack|bank>"
	}
	loc, err := game.ParseLocation(where)
	if err != nil {
		return err.Error()
	}
	snap, err := a.index.Scan(ctx, loc)
	if err != nil {
		return fmt.Sprintf("Scan failed: %v", err)
	}
	if snap.Count() == 0 {
		return fmt.Sprintf("Nothing in %s.", loc)
	}

	lines := []string{fmt.Sprintf("%s holds %d item(s):", loc, snap.Count())}
	for _, name := range snap.Names() {
		refs := snap[name]
		addrs := make([]string, 0, len(refs))
		for _, ref := range refs {
			addrs = append(addrs, ref.Address.String())
		}
		lines = append(lines, fmt.Sprintf("  %s x%d (%s)", name, len(refs), strings.Join(addrs, ", ")))
	}
	return strings.Join(lines, "\n")
}

// addCursorItem adds the item on the cursor to who's want list, then stows it.
func (a *Agent) addCursorItem(ctx context.Context, who string) string {
	char := who
	switch {
	case who == "":
		char = a.self
	case strings.EqualFold(who, "target"):
		name, ok, err := a.client.CurrentTarget(ctx)
		if err != nil || !ok {
			return "No target selected."
		}
		char = name
	}

	item, ok, err := a.client.CursorItem(ctx)
	if err != nil {
		return fmt.Sprintf("Cursor query failed: %v", err)
	}
	if !ok {
		return "Put an item on the cursor first."
	}
	if err := a.wants.Add(char, item); err != nil {
		return fmt.Sprintf("Could not save want list: %v", err)
	}
	if !a.mover.AutoStow(ctx) {
		logger.Warn("could not stow cursor item after add", "item", item)
	}
	return fmt.Sprintf("Added %s to %s's want list.", item, char)
}

func (a *Agent) resolveTarget(ctx context.Context, name string) (string, error) {
	if name != "" {
		return name, nil
	}
	current, ok, err := a.client.CurrentTarget(ctx)
	if err != nil {
		return "", fmt.Errorf("target query failed: %w", err)
	}
	if !ok {
		return "", errors.New("no target given or selected")
	}
	return current, nil
}

func optionalArg(args []string, i int) string {
	if i < len(args) {
		return args[i]
	}
	return ""
}
