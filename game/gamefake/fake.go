// Package gamefake provides an in-memory game.Client for tests.
package gamefake

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/linanwx/ferry/game"
)

// Bag is a top-level container with numbered sub-slots.
type Bag struct {
	Name     string
	Capacity int
	Items    map[int]string
}

// Client is a scripted, thread-safe game.Client.
type Client struct {
	mu sync.Mutex

	slots map[game.Location]map[int]*Bag
	loose map[game.Location]map[int]string

	cursor string

	// RefuseTrade makes GiveToTarget fail, as when the receiver's trade
	// window rejects the item.
	RefuseTrade bool
	// StowBlocked makes AutoInventory leave the cursor loaded, as with a
	// full pack.
	StowBlocked bool
	// AutoInventoryCalls counts AutoInventory requests, including ones made
	// with an empty cursor.
	AutoInventoryCalls int
	// LoadedPickups counts PickUp requests made while the cursor held an item.
	LoadedPickups int

	// StuckSlots never reach the cursor when picked up.
	StuckSlots map[game.Address]bool

	known      map[string]float64
	target     string
	navigating int

	// NavPolls is how many Navigating polls report true after NavigateToTarget.
	NavPolls int
	NavCalls int

	tradeOpen bool
	offer     []string
	// ClicksToClose is how many ClickTrade calls each open trade needs before it
	// closes; values below 1 mean 1.
	ClicksToClose int
	clicksOpen    int
	TradeClicks   int
	Batches       [][]string
	Offered       []string

	Tells      []Tell
	Echoes     []string
	Dispatches []Tell
	OnDispatch func(peer, command string)

	Group     []string
	PeerNames []string
}

// Tell records an outbound message.
type Tell struct {
	To   string
	Text string
}

// New returns an empty client.
func New() *Client {
	return &Client{
		slots:      make(map[game.Location]map[int]*Bag),
		loose:      make(map[game.Location]map[int]string),
		StuckSlots: make(map[game.Address]bool),
		known:      make(map[string]float64),
	}
}

// PutBag places a container in top-level slot n of loc.
func (c *Client) PutBag(loc game.Location, n int, name string, capacity int, items map[int]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.slots[loc] == nil {
		c.slots[loc] = make(map[int]*Bag)
	}
	copied := make(map[int]string, len(items))
	for k, v := range items {
		copied[k] = v
	}
	c.slots[loc][n] = &Bag{Name: name, Capacity: capacity, Items: copied}
}

// PutLoose places a non-container item directly in top-level slot n of loc.
func (c *Client) PutLoose(loc game.Location, n int, name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loose[loc] == nil {
		c.loose[loc] = make(map[int]string)
	}
	c.loose[loc][n] = name
}

// SetCursor puts name on the cursor.
func (c *Client) SetCursor(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cursor = name
}

// AddCharacter makes name targetable at distance.
func (c *Client) AddCharacter(name string, distance float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.known[strings.ToLower(name)] = distance
}

// OpenTrade opens the trade window as if a peer had started a trade.
func (c *Client) OpenTrade() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tradeOpen = true
}

// Count returns the number of items named name held in loc.
func (c *Client) Count(loc game.Location, name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, bag := range c.slots[loc] {
		for _, item := range bag.Items {
			if item == name {
				n++
			}
		}
	}
	return n
}

// Cursor returns the item on the cursor, or "".
func (c *Client) Cursor() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cursor
}

// Snapshot returns the tells, dispatches and trade clicks recorded so far.
func (c *Client) Snapshot() (tells []Tell, dispatches []Tell, clicks int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Tell(nil), c.Tells...), append([]Tell(nil), c.Dispatches...), c.TradeClicks
}

func (c *Client) Container(_ context.Context, loc game.Location, n int) (game.Container, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if bag, ok := c.slots[loc][n]; ok {
		return game.Container{Occupied: true, IsContainer: true, Name: bag.Name, Capacity: bag.Capacity}, nil
	}
	if name, ok := c.loose[loc][n]; ok {
		return game.Container{Occupied: true, Name: name}, nil
	}
	return game.Container{}, nil
}

func (c *Client) ItemAt(_ context.Context, addr game.Address) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	bag, ok := c.slots[addr.Location][addr.Container]
	if !ok {
		return "", false, nil
	}
	name, ok := bag.Items[addr.Slot]
	return name, ok, nil
}

func (c *Client) FindItem(_ context.Context, loc game.Location, name string, exact bool) (game.Address, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, addr := range c.sortedAddrsLocked(loc) {
		item := c.slots[loc][addr.Container].Items[addr.Slot]
		if exact && item == name {
			return addr, true, nil
		}
		if !exact && strings.Contains(strings.ToLower(item), strings.ToLower(name)) {
			return addr, true, nil
		}
	}
	return game.Address{}, false, nil
}

func (c *Client) sortedAddrsLocked(loc game.Location) []game.Address {
	var out []game.Address
	for n, bag := range c.slots[loc] {
		for s := range bag.Items {
			out = append(out, game.Address{Location: loc, Container: n, Slot: s})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Container != out[j].Container {
			return out[i].Container < out[j].Container
		}
		return out[i].Slot < out[j].Slot
	})
	return out
}

func (c *Client) PickUp(_ context.Context, addr game.Address) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cursor != "" {
		c.LoadedPickups++
		return fmt.Errorf("cursor already holds %q", c.cursor)
	}
	if c.StuckSlots[addr] {
		return nil
	}
	bag, ok := c.slots[addr.Location][addr.Container]
	if !ok {
		return nil
	}
	if name, ok := bag.Items[addr.Slot]; ok {
		c.cursor = name
		delete(bag.Items, addr.Slot)
	}
	return nil
}

func (c *Client) PlaceIn(_ context.Context, addr game.Address) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	bag, ok := c.slots[addr.Location][addr.Container]
	if !ok || c.cursor == "" {
		return nil
	}
	if _, taken := bag.Items[addr.Slot]; taken {
		return nil
	}
	bag.Items[addr.Slot] = c.cursor
	c.cursor = ""
	return nil
}

func (c *Client) AutoInventory(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.AutoInventoryCalls++
	if c.cursor == "" || c.StowBlocked {
		return nil
	}
	for _, n := range sortedKeys(c.slots[game.LocationPack]) {
		bag := c.slots[game.LocationPack][n]
		for s := 1; s <= bag.Capacity; s++ {
			if _, taken := bag.Items[s]; !taken {
				bag.Items[s] = c.cursor
				c.cursor = ""
				return nil
			}
		}
	}
	return nil
}

func (c *Client) GiveToTarget(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cursor == "" {
		return nil
	}
	if c.target == "" {
		return fmt.Errorf("no target")
	}
	if c.RefuseTrade {
		return fmt.Errorf("trade refused %q", c.cursor)
	}
	c.tradeOpen = true
	c.offer = append(c.offer, c.cursor)
	c.Offered = append(c.Offered, c.cursor)
	c.cursor = ""
	return nil
}

func (c *Client) CursorItem(_ context.Context) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cursor, c.cursor != "", nil
}

func (c *Client) Target(_ context.Context, name string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.known[strings.ToLower(name)]; !ok {
		return false, nil
	}
	c.target = strings.ToLower(name)
	return true, nil
}

func (c *Client) CurrentTarget(_ context.Context) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.target, c.target != "", nil
}

func (c *Client) Distance(_ context.Context) (float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.target == "" {
		return 0, fmt.Errorf("no target")
	}
	return c.known[c.target], nil
}

func (c *Client) NavigateToTarget(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.NavCalls++
	c.navigating = c.NavPolls
	return nil
}

func (c *Client) Navigating(_ context.Context) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.navigating > 0 {
		c.navigating--
		return true, nil
	}
	if c.target != "" {
		c.known[c.target] = 0
	}
	return false, nil
}

func (c *Client) TradeOpen(_ context.Context) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tradeOpen, nil
}

func (c *Client) ClickTrade(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.TradeClicks++
	if !c.tradeOpen {
		return nil
	}
	c.clicksOpen++
	need := c.ClicksToClose
	if need < 1 {
		need = 1
	}
	if c.clicksOpen >= need {
		c.tradeOpen = false
		c.clicksOpen = 0
		c.Batches = append(c.Batches, c.offer)
		c.offer = nil
	}
	return nil
}

func (c *Client) Tell(_ context.Context, to, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Tells = append(c.Tells, Tell{To: to, Text: text})
	return nil
}

func (c *Client) Echo(_ context.Context, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Echoes = append(c.Echoes, text)
	return nil
}

func (c *Client) Dispatch(_ context.Context, peer, command string) error {
	c.mu.Lock()
	c.Dispatches = append(c.Dispatches, Tell{To: peer, Text: command})
	hook := c.OnDispatch
	c.mu.Unlock()
	if hook != nil {
		hook(peer, command)
	}
	return nil
}

func (c *Client) GroupMembers(_ context.Context) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.Group...), nil
}

func (c *Client) Peers(_ context.Context) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.PeerNames...), nil
}

func sortedKeys(m map[int]*Bag) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}

var _ game.Client = (*Client)(nil)
