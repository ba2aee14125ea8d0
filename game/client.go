package game

import "context"

// Container describes one top-level slot.
type Container struct {
	Occupied    bool
	IsContainer bool
	Name        string
	Capacity    int
}

// InventoryProvider answers read-only questions about container spaces.
type InventoryProvider interface {
	// Container describes top-level slot n (1-based) of loc.
	Container(ctx context.Context, loc Location, n int) (Container, error)
	// ItemAt returns the name of the item in addr, if any.
	ItemAt(ctx context.Context, addr Address) (name string, ok bool, err error)
	// FindItem asks the client for one instance of name. exact=false means
	// case-insensitive substring match.
	FindItem(ctx context.Context, loc Location, name string, exact bool) (Address, bool, error)
}

// Hands issues cursor manipulations. Every call is a single UI action; none
// of them wait for the action to take effect.
type Hands interface {
	PickUp(ctx context.Context, addr Address) error
	PlaceIn(ctx context.Context, addr Address) error
	AutoInventory(ctx context.Context) error
	// GiveToTarget drops the cursor item onto the current target, opening
	// or extending a trade offer.
	GiveToTarget(ctx context.Context) error
	CursorItem(ctx context.Context) (name string, ok bool, err error)
}

// Targeting resolves and measures the current target.
type Targeting interface {
	Target(ctx context.Context, name string) (bool, error)
	CurrentTarget(ctx context.Context) (string, bool, error)
	Distance(ctx context.Context) (float64, error)
}

// Navigator moves the character toward its current target.
type Navigator interface {
	NavigateToTarget(ctx context.Context) error
	Navigating(ctx context.Context) (bool, error)
}

// TradeWindow is the client's trade UI.
type TradeWindow interface {
	TradeOpen(ctx context.Context) (bool, error)
	ClickTrade(ctx context.Context) error
}

// Chat sends text to another character or echoes it locally.
type Chat interface {
	Tell(ctx context.Context, to, text string) error
	Echo(ctx context.Context, text string) error
}

// Commander makes a named peer execute a command on its own process.
type Commander interface {
	Dispatch(ctx context.Context, peer, command string) error
}

// Roster enumerates peers in the order the client reports them.
type Roster interface {
	GroupMembers(ctx context.Context) ([]string, error)
	Peers(ctx context.Context) ([]string, error)
}

// Client is everything ferry needs from a live game client.
type Client interface {
	InventoryProvider
	Hands
	Targeting
	Navigator
	TradeWindow
	Chat
	Commander
	Roster
}
