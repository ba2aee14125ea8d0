package journal

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/linanwx/ferry/bus"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestRecordAndRecent(t *testing.T) {
	defer goleak.VerifyNone(t)
	path := filepath.Join(t.TempDir(), "journal.db")

	j, err := Open(path)
	require.NoError(t, err)
	for i, peer := range []string{"A", "B", "C"} {
		j.Record(Entry{
			At:        time.Date(2026, 1, 2, 3, 4, i, 0, time.UTC),
			Kind:      KindTrade,
			SessionID: "s-" + peer,
			Actor:     "Giver",
			Peer:      peer,
			Outcome:   "completed",
			Items:     []string{"Gem", "Diamond Coin"},
		})
	}
	require.NoError(t, j.Close())
	j.Record(Entry{Kind: KindTrade, Peer: "late"})

	j, err = Open(path)
	require.NoError(t, err)
	defer j.Close()

	entries, err := j.Recent(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "C", entries[0].Peer)
	require.Equal(t, "B", entries[1].Peer)
	require.Equal(t, []string{"Gem", "Diamond Coin"}, entries[0].Items)
	require.Equal(t, time.Date(2026, 1, 2, 3, 4, 2, 0, time.UTC), entries[0].At)
	require.Greater(t, entries[0].ID, entries[1].ID)
}

func TestAttachRecordsBusEvents(t *testing.T) {
	defer goleak.VerifyNone(t)
	path := filepath.Join(t.TempDir(), "journal.db")

	j, err := Open(path)
	require.NoError(t, err)
	b := bus.NewBus(16)
	detach := j.Attach(b)

	b.PublishTradeFinished(bus.TradeEventData{
		SessionID: "s1",
		Giver:     "Giver",
		Receiver:  "CharVendor",
		State:     "completed",
		Offered:   []string{"Diamond Coin", "Diamond Coin"},
		Skipped:   []string{"Raw Diamond"},
		Batches:   1,
	})
	b.PublishCollectMember(bus.CollectEventData{
		SessionID: "s2",
		Collector: "Collector",
		Member:    "A",
		Outcome:   "timeout",
		Error:     "context deadline exceeded",
	})
	b.PublishTradeState(bus.TradeEventData{SessionID: "s1", State: "offering"})

	b.Close()
	detach()
	require.NoError(t, j.Close())

	j, err = Open(path)
	require.NoError(t, err)
	defer j.Close()
	entries, err := j.Recent(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, entries, 2, "state transitions are not journaled")

	byKind := map[Kind]Entry{}
	for _, e := range entries {
		byKind[e.Kind] = e
	}
	trade := byKind[KindTrade]
	require.Equal(t, "CharVendor", trade.Peer)
	require.Equal(t, "completed", trade.Outcome)
	require.Equal(t, "1 batch(es); not held: Raw Diamond", trade.Detail)
	require.Len(t, trade.Items, 2)

	collect := byKind[KindCollect]
	require.Equal(t, "A", collect.Peer)
	require.Equal(t, "timeout", collect.Outcome)
	require.Equal(t, "context deadline exceeded", collect.Detail)
}

func TestRecordRacingClose(t *testing.T) {
	defer goleak.VerifyNone(t)

	j, err := Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)

	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			for n := 0; n < 200; n++ {
				j.Record(Entry{Kind: KindTrade, SessionID: "s", Actor: "Giver", Peer: "CharVendor", Outcome: "completed"})
			}
		}()
	}
	close(start)
	require.NoError(t, j.Close())
	wg.Wait()

	j.Record(Entry{Kind: KindTrade, SessionID: "late"})
	require.NoError(t, j.Close())
}
