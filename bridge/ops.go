package bridge

import (
	"context"

	"github.com/linanwx/ferry/game"
)

const (
	opContainer     = "inventory.container"
	opItem          = "inventory.item"
	opFind          = "inventory.find"
	opCursor        = "cursor.item"
	opPickUp        = "item.pickup"
	opPlace         = "item.place"
	opAutoInventory = "cursor.autoinventory"
	opGive          = "trade.give"
	opTargetSet     = "target.set"
	opTargetCurrent = "target.current"
	opTargetDist    = "target.distance"
	opNavTarget     = "nav.target"
	opNavActive     = "nav.active"
	opTradeOpen     = "trade.open"
	opTradeClick    = "trade.click"
	opTell          = "chat.tell"
	opEcho          = "chat.echo"
	opDispatch      = "command.dispatch"
	opGroup         = "group.members"
	opPeers         = "peers.list"
)

type slotArgs struct {
	Location string `json:"location"`
	Slot     int    `json:"slot"`
	SlotID   int    `json:"slotId"`
}

type addressArgs struct {
	Address string `json:"address"`
	SlotID  int    `json:"slotId"`
	Sub     int    `json:"sub"`
}

func newAddressArgs(addr game.Address) addressArgs {
	return addressArgs{Address: addr.String(), SlotID: addr.SlotID(), Sub: addr.Slot}
}

type containerResult struct {
	Occupied    bool   `json:"occupied"`
	IsContainer bool   `json:"isContainer"`
	Name        string `json:"name"`
	Capacity    int    `json:"capacity"`
}

type nameResult struct {
	Name  string `json:"name"`
	Found bool   `json:"found"`
}

type findResult struct {
	Address string `json:"address"`
	Found   bool   `json:"found"`
}

func (c *Client) Container(ctx context.Context, loc game.Location, n int) (game.Container, error) {
	var res containerResult
	args := slotArgs{Location: loc.String(), Slot: n, SlotID: game.Address{Location: loc, Container: n}.SlotID()}
	if err := c.call(ctx, opContainer, args, &res); err != nil {
		return game.Container{}, err
	}
	return game.Container{
		Occupied:    res.Occupied,
		IsContainer: res.IsContainer,
		Name:        res.Name,
		Capacity:    res.Capacity,
	}, nil
}

func (c *Client) ItemAt(ctx context.Context, addr game.Address) (string, bool, error) {
	var res nameResult
	if err := c.call(ctx, opItem, newAddressArgs(addr), &res); err != nil {
		return "", false, err
	}
	return res.Name, res.Found && res.Name != "", nil
}

func (c *Client) FindItem(ctx context.Context, loc game.Location, name string, exact bool) (game.Address, bool, error) {
	var res findResult
	args := struct {
		Location string `json:"location"`
		Name     string `json:"name"`
		Exact    bool   `json:"exact"`
	}{loc.String(), name, exact}
	if err := c.call(ctx, opFind, args, &res); err != nil {
		return game.Address{}, false, err
	}
	if !res.Found {
		return game.Address{}, false, nil
	}
	addr, err := game.ParseAddress(res.Address)
	if err != nil {
		return game.Address{}, false, err
	}
	return addr, true, nil
}

func (c *Client) PickUp(ctx context.Context, addr game.Address) error {
	return c.call(ctx, opPickUp, newAddressArgs(addr), nil)
}

func (c *Client) PlaceIn(ctx context.Context, addr game.Address) error {
	return c.call(ctx, opPlace, newAddressArgs(addr), nil)
}

func (c *Client) AutoInventory(ctx context.Context) error {
	return c.call(ctx, opAutoInventory, nil, nil)
}

func (c *Client) GiveToTarget(ctx context.Context) error {
	return c.call(ctx, opGive, nil, nil)
}

func (c *Client) CursorItem(ctx context.Context) (string, bool, error) {
	var res nameResult
	if err := c.call(ctx, opCursor, nil, &res); err != nil {
		return "", false, err
	}
	return res.Name, res.Found && res.Name != "", nil
}

func (c *Client) Target(ctx context.Context, name string) (bool, error) {
	var res nameResult
	args := struct {
		Name string `json:"name"`
	}{name}
	if err := c.call(ctx, opTargetSet, args, &res); err != nil {
		return false, err
	}
	return res.Found, nil
}

func (c *Client) CurrentTarget(ctx context.Context) (string, bool, error) {
	var res nameResult
	if err := c.call(ctx, opTargetCurrent, nil, &res); err != nil {
		return "", false, err
	}
	return res.Name, res.Found && res.Name != "", nil
}

func (c *Client) Distance(ctx context.Context) (float64, error) {
	var res struct {
		Distance float64 `json:"distance"`
	}
	if err := c.call(ctx, opTargetDist, nil, &res); err != nil {
		return 0, err
	}
	return res.Distance, nil
}

func (c *Client) NavigateToTarget(ctx context.Context) error {
	return c.call(ctx, opNavTarget, nil, nil)
}

func (c *Client) Navigating(ctx context.Context) (bool, error) {
	var res struct {
		Active bool `json:"active"`
	}
	if err := c.call(ctx, opNavActive, nil, &res); err != nil {
		return false, err
	}
	return res.Active, nil
}

func (c *Client) TradeOpen(ctx context.Context) (bool, error) {
	var res struct {
		Open bool `json:"open"`
	}
	if err := c.call(ctx, opTradeOpen, nil, &res); err != nil {
		return false, err
	}
	return res.Open, nil
}

func (c *Client) ClickTrade(ctx context.Context) error {
	return c.call(ctx, opTradeClick, nil, nil)
}

func (c *Client) Tell(ctx context.Context, to, text string) error {
	args := struct {
		To   string `json:"to"`
		Text string `json:"text"`
	}{to, text}
	return c.call(ctx, opTell, args, nil)
}

func (c *Client) Echo(ctx context.Context, text string) error {
	args := struct {
		Text string `json:"text"`
	}{text}
	return c.call(ctx, opEcho, args, nil)
}

func (c *Client) Dispatch(ctx context.Context, peer, command string) error {
	args := struct {
		Peer    string `json:"peer"`
		Command string `json:"command"`
	}{peer, command}
	return c.call(ctx, opDispatch, args, nil)
}

func (c *Client) GroupMembers(ctx context.Context) ([]string, error) {
	return c.names(ctx, opGroup)
}

func (c *Client) Peers(ctx context.Context) ([]string, error) {
	return c.names(ctx, opPeers)
}

func (c *Client) names(ctx context.Context, op string) ([]string, error) {
	var res struct {
		Names []string `json:"names"`
	}
	if err := c.call(ctx, op, nil, &res); err != nil {
		return nil, err
	}
	return res.Names, nil
}

var _ game.Client = (*Client)(nil)
