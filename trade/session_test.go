package trade

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/linanwx/ferry/ack"
	"github.com/linanwx/ferry/game"
	"github.com/linanwx/ferry/game/gamefake"
	"github.com/linanwx/ferry/mover"
	"github.com/linanwx/ferry/slots"
	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	return Config{
		BatchSize:      8,
		ProximityRange: 15,
		PollInterval:   time.Millisecond,
		WindowTimeout:  5 * time.Millisecond,
	}
}

func newDeps(c *gamefake.Client) Deps {
	return Deps{
		Self:     "Giver",
		Game:     c,
		Index:    slots.New(c, slots.Layout{PackSlots: 10, BankSlots: 24}),
		Mover:    mover.New(c, mover.Config{PollInterval: time.Millisecond, Timeout: 10 * time.Millisecond}),
		Notifier: ack.NewNotifier(c),
	}
}

// fillPack puts n copies of name into 10-slot bags starting at pack1.
func fillPack(c *gamefake.Client, name string, n int) {
	bag := 1
	for n > 0 {
		items := make(map[int]string)
		for s := 1; s <= 10 && n > 0; s++ {
			items[s] = name
			n--
		}
		c.PutBag(game.LocationPack, bag, fmt.Sprintf("Bag %d", bag), 10, items)
		bag++
	}
}

func TestBatchBoundaries(t *testing.T) {
	tests := []struct {
		items       int
		wantBatches int
	}{
		{items: 1, wantBatches: 1},
		{items: 7, wantBatches: 1},
		{items: 8, wantBatches: 1},
		{items: 9, wantBatches: 2},
		{items: 16, wantBatches: 2},
		{items: 17, wantBatches: 3},
	}

	for _, tc := range tests {
		t.Run(fmt.Sprintf("%d items", tc.items), func(t *testing.T) {
			c := gamefake.New()
			c.AddCharacter("CharVendor", 3)
			fillPack(c, "Diamond Coin", tc.items)

			s := NewSession(newDeps(c), testConfig(), Request{Target: "CharVendor", Items: []string{"Diamond Coin"}})
			res := s.Run(context.Background())

			require.Equal(t, StateCompleted, res.State)
			require.NoError(t, res.Err)
			require.Len(t, res.Offered, tc.items)
			require.Equal(t, tc.wantBatches, res.Batches)
			_, _, clicks := c.Snapshot()
			require.Equal(t, tc.wantBatches, clicks)
			for i, batch := range c.Batches {
				require.LessOrEqual(t, len(batch), 8, "batch %d too large", i)
			}
			require.Equal(t, 0, c.Count(game.LocationPack, "Diamond Coin"))
		})
	}
}

func TestMixedItemsSpanningBatches(t *testing.T) {
	c := gamefake.New()
	c.AddCharacter("CharVendor", 3)
	c.PutBag(game.LocationPack, 1, "Bag", 10, map[int]string{
		1: "Gem", 2: "Gem", 3: "Gem", 4: "Gem", 5: "Gem",
		6: "Ore", 7: "Ore", 8: "Ore", 9: "Ore", 10: "Ore",
	})

	s := NewSession(newDeps(c), testConfig(), Request{Target: "CharVendor", Items: []string{"Gem", "Missing", "Ore"}})
	res := s.Run(context.Background())

	require.Equal(t, StateCompleted, res.State)
	require.Len(t, res.Offered, 10)
	require.Equal(t, []string{"Missing"}, res.Skipped)
	require.Equal(t, 2, res.Batches)
	require.Len(t, c.Batches[0], 8)
	require.Len(t, c.Batches[1], 2)
}

func TestScenarioDiamondCoins(t *testing.T) {
	c := gamefake.New()
	c.AddCharacter("CharVendor", 3)
	c.PutBag(game.LocationPack, 2, "Backpack", 8, map[int]string{1: "Diamond Coin", 5: "Bread"})
	c.PutBag(game.LocationPack, 7, "Pouch", 4, map[int]string{4: "Diamond Coin"})

	req := Request{
		Target:    "CharVendor",
		Items:     []string{"Blue Diamond", "Diamond Coin", "Raw Diamond"},
		SessionID: "s-42",
	}
	res := NewSession(newDeps(c), testConfig(), req).Run(context.Background())

	require.Equal(t, StateCompleted, res.State)
	require.Equal(t, []string{"Diamond Coin", "Diamond Coin"}, res.Offered)
	require.Equal(t, []string{"Blue Diamond", "Raw Diamond"}, res.Skipped)
	require.Equal(t, 1, res.Batches)

	tells, _, clicks := c.Snapshot()
	require.Equal(t, 1, clicks)
	require.Equal(t, []gamefake.Tell{{To: "CharVendor", Text: "Done sending you items #s-42"}}, tells)
	require.Equal(t, 1, c.Count(game.LocationPack, "Bread"))
}

func TestNothingHeldStillCompletes(t *testing.T) {
	c := gamefake.New()
	c.AddCharacter("CharVendor", 3)

	res := NewSession(newDeps(c), testConfig(), Request{Target: "CharVendor", Items: []string{"Raw Diamond"}}).Run(context.Background())

	require.Equal(t, StateCompleted, res.State)
	require.Equal(t, 0, res.Batches)
	tells, _, clicks := c.Snapshot()
	require.Equal(t, 0, clicks, "no window to confirm when nothing was offered")
	require.Len(t, tells, 1)
}

func TestTargetNotFound(t *testing.T) {
	c := gamefake.New()
	fillPack(c, "Gem", 2)

	req := Request{Target: "Nobody", Items: []string{"Gem"}, SessionID: "s1", Requester: "Collector", NotifyFailure: true}
	s := NewSession(newDeps(c), testConfig(), req)
	res := s.Run(context.Background())

	require.Equal(t, StateFailed, res.State)
	require.True(t, errors.Is(res.Err, ErrTargetNotFound))
	require.Equal(t, StateFailed, s.State())
	require.Equal(t, 2, c.Count(game.LocationPack, "Gem"))

	tells, _, _ := c.Snapshot()
	require.Equal(t, []gamefake.Tell{{To: "Collector", Text: "Unable to send you items #s1"}}, tells)
}

func TestRefusedItemStuckOnCursorFailsSession(t *testing.T) {
	c := gamefake.New()
	c.AddCharacter("CharVendor", 3)
	c.RefuseTrade = true
	c.StowBlocked = true
	fillPack(c, "Gem", 4)

	req := Request{Target: "CharVendor", Items: []string{"Gem"}, SessionID: "s7", NotifyFailure: true}
	res := NewSession(newDeps(c), testConfig(), req).Run(context.Background())

	require.Equal(t, StateFailed, res.State)
	require.ErrorIs(t, res.Err, ErrCursorStuck)
	require.Equal(t, []string{"Gem"}, res.Refused)
	require.Empty(t, res.Skipped)
	require.Zero(t, c.LoadedPickups, "picked up with a loaded cursor")
	require.Equal(t, "Gem", c.Cursor())
	require.Equal(t, 3, c.Count(game.LocationPack, "Gem"))

	tells, _, clicks := c.Snapshot()
	require.Zero(t, clicks)
	require.Equal(t, []gamefake.Tell{{To: "CharVendor", Text: "Unable to send you items #s7"}}, tells)
}

func TestRefusedItemIsStowedAndReported(t *testing.T) {
	c := gamefake.New()
	c.AddCharacter("CharVendor", 3)
	c.RefuseTrade = true
	fillPack(c, "Gem", 2)

	res := NewSession(newDeps(c), testConfig(), Request{Target: "CharVendor", Items: []string{"Gem"}}).Run(context.Background())

	require.Equal(t, StateCompleted, res.State)
	require.Empty(t, res.Offered)
	require.Equal(t, []string{"Gem", "Gem"}, res.Refused)
	require.Empty(t, res.Skipped, "a refused item was held")
	require.Zero(t, res.Batches)
	require.Zero(t, c.LoadedPickups)
	require.Empty(t, c.Cursor())
	require.Equal(t, 2, c.Count(game.LocationPack, "Gem"))
}

func TestApproachNavigatesWhenFar(t *testing.T) {
	c := gamefake.New()
	c.AddCharacter("CharVendor", 40)
	c.NavPolls = 3
	fillPack(c, "Gem", 1)

	res := NewSession(newDeps(c), testConfig(), Request{Target: "CharVendor", Items: []string{"Gem"}}).Run(context.Background())

	require.Equal(t, StateCompleted, res.State)
	require.Equal(t, 1, c.NavCalls)
}

func TestApproachSkipsNavigationInRange(t *testing.T) {
	c := gamefake.New()
	c.AddCharacter("CharVendor", 15)
	fillPack(c, "Gem", 1)

	res := NewSession(newDeps(c), testConfig(), Request{Target: "CharVendor", Items: []string{"Gem"}}).Run(context.Background())

	require.Equal(t, StateCompleted, res.State)
	require.Equal(t, 0, c.NavCalls)
}

func TestConfirmRetriesUntilWindowCloses(t *testing.T) {
	c := gamefake.New()
	c.AddCharacter("CharVendor", 3)
	c.ClicksToClose = 4
	fillPack(c, "Gem", 3)

	res := NewSession(newDeps(c), testConfig(), Request{Target: "CharVendor", Items: []string{"Gem"}}).Run(context.Background())

	require.Equal(t, StateCompleted, res.State)
	require.Equal(t, 1, res.Batches)
	require.Equal(t, 4, res.Clicks)
}

func TestConfirmLoopHonorsCancellation(t *testing.T) {
	c := gamefake.New()
	c.AddCharacter("CharVendor", 3)
	c.ClicksToClose = 1 << 30
	fillPack(c, "Gem", 1)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	res := NewSession(newDeps(c), testConfig(), Request{Target: "CharVendor", Items: []string{"Gem"}}).Run(ctx)

	require.Equal(t, StateFailed, res.State)
	require.ErrorIs(t, res.Err, ErrAborted)
	tells, _, _ := c.Snapshot()
	require.Empty(t, tells)
}

func TestStuckSlotIsSkipped(t *testing.T) {
	c := gamefake.New()
	c.AddCharacter("CharVendor", 3)
	fillPack(c, "Gem", 2)
	c.StuckSlots[game.Address{Location: game.LocationPack, Container: 1, Slot: 1}] = true

	res := NewSession(newDeps(c), testConfig(), Request{Target: "CharVendor", Items: []string{"Gem"}}).Run(context.Background())

	require.Equal(t, StateCompleted, res.State)
	require.Equal(t, []string{"Gem"}, res.Offered)
	require.Equal(t, 1, c.Count(game.LocationPack, "Gem"))
}
