// Package slots indexes the items held in pack and bank containers by name.
package slots

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/linanwx/ferry/game"
	"github.com/linanwx/ferry/logger"
)

// MatchMode selects how item names are compared.
type MatchMode int

const (
	// MatchExact compares full, case-sensitive names.
	MatchExact MatchMode = iota
	// MatchSubstring is case-insensitive containment.
	MatchSubstring
)

// Matches reports whether item satisfies query under m.
func (m MatchMode) Matches(item, query string) bool {
	if m == MatchSubstring {
		return strings.Contains(strings.ToLower(item), strings.ToLower(query))
	}
	return item == query
}

func (m MatchMode) String() string {
	if m == MatchSubstring {
		return "substring"
	}
	return "exact"
}

// ItemRef is one occupied sub-slot. It is stale as soon as any item moves.
type ItemRef struct {
	Name    string
	Address game.Address
}

// Snapshot maps item names to the slots holding them, in scan order.
type Snapshot map[string][]ItemRef

// Count is the number of occupied sub-slots recorded.
func (s Snapshot) Count() int {
	n := 0
	for _, refs := range s {
		n += len(refs)
	}
	return n
}

// Names returns the item names in lexical order.
func (s Snapshot) Names() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Refs returns every ItemRef in address order.
func (s Snapshot) Refs() []ItemRef {
	out := make([]ItemRef, 0, s.Count())
	for _, refs := range s {
		out = append(out, refs...)
	}
	sortRefs(out)
	return out
}

// Layout is the number of top-level slots per location.
type Layout struct {
	PackSlots int
	BankSlots int
}

// Index scans container spaces through an InventoryProvider.
type Index struct {
	inv    game.InventoryProvider
	layout Layout
}

// New creates an index over inv.
func New(inv game.InventoryProvider, layout Layout) *Index {
	return &Index{inv: inv, layout: layout}
}

func (x *Index) topSlots(loc game.Location) (int, error) {
	switch loc {
	case game.LocationPack:
		return x.layout.PackSlots, nil
	case game.LocationBank:
		return x.layout.BankSlots, nil
	}
	return 0, fmt.Errorf("%w: %d", game.ErrInvalidLocation, int(loc))
}

// Scan enumerates every occupied sub-slot of every container in loc. Top-level
// slots that are empty or hold a plain item are skipped.
func (x *Index) Scan(ctx context.Context, loc game.Location) (Snapshot, error) {
	snap := Snapshot{}
	count, err := x.topSlots(loc)
	if err != nil {
		return snap, err
	}

	for n := 1; n <= count; n++ {
		c, err := x.inv.Container(ctx, loc, n)
		if err != nil {
			return Snapshot{}, fmt.Errorf("scan %s%d: %w", loc, n, err)
		}
		if !c.Occupied || !c.IsContainer {
			continue
		}
		for s := 1; s <= c.Capacity; s++ {
			addr := game.Address{Location: loc, Container: n, Slot: s}
			name, ok, err := x.inv.ItemAt(ctx, addr)
			if err != nil {
				return Snapshot{}, fmt.Errorf("scan %s: %w", addr, err)
			}
			if !ok || name == "" {
				continue
			}
			snap[name] = append(snap[name], ItemRef{Name: name, Address: addr})
		}
	}

	logger.Debug("inventory scanned", "location", loc.String(), "items", snap.Count(), "names", len(snap))
	return snap, nil
}

// Find asks the client directly for one instance of name.
func (x *Index) Find(ctx context.Context, loc game.Location, name string, mode MatchMode) (ItemRef, bool, error) {
	if !loc.Valid() {
		return ItemRef{}, false, fmt.Errorf("%w: %d", game.ErrInvalidLocation, int(loc))
	}
	addr, ok, err := x.inv.FindItem(ctx, loc, name, mode == MatchExact)
	if err != nil {
		return ItemRef{}, false, fmt.Errorf("find %q in %s: %w", name, loc, err)
	}
	if !ok {
		return ItemRef{}, false, nil
	}

	found, ok, err := x.inv.ItemAt(ctx, addr)
	if err != nil {
		return ItemRef{}, false, fmt.Errorf("find %q in %s: %w", name, loc, err)
	}
	if !ok {
		found = name
	}
	return ItemRef{Name: found, Address: addr}, true, nil
}

// FindAll filters a full scan of loc by name.
func (x *Index) FindAll(ctx context.Context, loc game.Location, name string, mode MatchMode) ([]ItemRef, error) {
	snap, err := x.Scan(ctx, loc)
	if err != nil {
		return nil, err
	}
	return snap.Filter(name, mode), nil
}

// Filter returns the refs whose names match query, in address order.
func (s Snapshot) Filter(query string, mode MatchMode) []ItemRef {
	if mode == MatchExact {
		refs := append([]ItemRef(nil), s[query]...)
		sortRefs(refs)
		return refs
	}
	var out []ItemRef
	for name, refs := range s {
		if mode.Matches(name, query) {
			out = append(out, refs...)
		}
	}
	sortRefs(out)
	return out
}

func sortRefs(refs []ItemRef) {
	sort.Slice(refs, func(i, j int) bool {
		a, b := refs[i].Address, refs[j].Address
		if a.Location != b.Location {
			return a.Location < b.Location
		}
		if a.Container != b.Container {
			return a.Container < b.Container
		}
		return a.Slot < b.Slot
	})
}
