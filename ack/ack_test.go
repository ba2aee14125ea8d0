package ack

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/linanwx/ferry/bus"
	"github.com/linanwx/ferry/game/gamefake"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestParseLine(t *testing.T) {
	tests := []struct {
		name   string
		line   string
		want   Message
		wantOK bool
	}{
		{
			name:   "legacy done",
			line:   "Giver tells you, 'Done sending you items'",
			want:   Message{Sender: "Giver", Kind: KindDone},
			wantOK: true,
		},
		{
			name:   "done with session",
			line:   "Giver tells you, 'Done sending you items #abc-123'",
			want:   Message{Sender: "Giver", Kind: KindDone, SessionID: "abc-123"},
			wantOK: true,
		},
		{
			name:   "failed with session",
			line:   "Giver tells you, 'Unable to send you items #s1'",
			want:   Message{Sender: "Giver", Kind: KindFailed, SessionID: "s1"},
			wantOK: true,
		},
		{name: "other tell", line: "Giver tells you, 'hello'"},
		{name: "group chat", line: "Giver tells the group, 'Done sending you items'"},
		{name: "trailing text", line: "Giver tells you, 'Done sending you items now'"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := ParseLine(tc.line)
			require.Equal(t, tc.wantOK, ok)
			if ok {
				require.Equal(t, tc.want, got)
			}
		})
	}
}

func TestMessageLineRoundTrip(t *testing.T) {
	msg := Message{Sender: "Giver", Kind: KindFailed, SessionID: "s9"}
	got, ok := ParseLine(msg.Line())
	require.True(t, ok)
	require.Equal(t, msg, got)
}

func TestRegistryMatchesSenderAndSession(t *testing.T) {
	r := NewRegistry()
	a := r.Expect("Alpha", "s1")
	b := r.Expect("Bravo", "s2")
	require.Equal(t, 2, r.Outstanding())

	// A matching body from the wrong sender must not release Alpha's wait.
	require.False(t, r.Observe(Message{Sender: "Mallory", Kind: KindDone, SessionID: "s1"}))
	// Right sender, wrong session.
	require.False(t, r.Observe(Message{Sender: "Alpha", Kind: KindDone, SessionID: "s2"}))

	require.True(t, r.Observe(Message{Sender: "bravo", Kind: KindDone, SessionID: "s2"}))
	msg, err := b.Wait(context.Background())
	require.NoError(t, err)
	require.Equal(t, "s2", msg.SessionID)

	select {
	case <-a.C():
		t.Fatalf("Alpha resolved by someone else's acknowledgement")
	default:
	}
	require.Equal(t, 1, r.Outstanding())
}

func TestRegistryLegacyMessageResolvesOldest(t *testing.T) {
	r := NewRegistry()
	first := r.Expect("Alpha", "s1")
	second := r.Expect("Alpha", "s2")

	require.True(t, r.Observe(Message{Sender: "Alpha", Kind: KindDone}))
	select {
	case <-first.C():
	default:
		t.Fatalf("oldest wait should be resolved first")
	}
	select {
	case <-second.C():
		t.Fatalf("second wait resolved too early")
	default:
	}
}

func TestAnySenderFallsBackAcrossPeers(t *testing.T) {
	r := NewRegistry(AnySender(true))
	alpha := r.Expect("Alpha", "s1")
	bravo := r.Expect("Bravo", "s2")
	charlie := r.Expect("Charlie", "s3")

	// Session-tagged: the wait with that session wins whoever tells it.
	require.True(t, r.Observe(Message{Sender: "AlphaAlt", Kind: KindDone, SessionID: "s2"}))
	select {
	case <-bravo.C():
	default:
		t.Fatalf("Bravo's session not resolved by another sender")
	}

	// Legacy: the oldest wait across peers.
	require.True(t, r.Observe(Message{Sender: "Mallory", Kind: KindDone}))
	select {
	case <-alpha.C():
	default:
		t.Fatalf("oldest wait not resolved by a legacy message")
	}

	// The sender's own wait still comes first.
	r.Expect("Delta", "s4")
	require.True(t, r.Observe(Message{Sender: "Charlie", Kind: KindDone}))
	select {
	case <-charlie.C():
	default:
		t.Fatalf("Charlie's own wait skipped")
	}

	require.False(t, r.Observe(Message{Sender: "Mallory", Kind: KindDone, SessionID: "nope"}))
	require.Equal(t, 1, r.Outstanding())
}

func TestPendingWaitFailedAndCancelled(t *testing.T) {
	r := NewRegistry()
	p := r.Expect("Alpha", "s1")
	r.Observe(Message{Sender: "Alpha", Kind: KindFailed, SessionID: "s1"})
	_, err := p.Wait(context.Background())
	require.True(t, errors.Is(err, ErrPeerFailed))

	q := r.Expect("Alpha", "s2")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	_, err = q.Wait(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Equal(t, 0, r.Outstanding())
}

func TestListenAndNotify(t *testing.T) {
	defer goleak.VerifyNone(t)

	b := bus.NewBus(8)
	r := NewRegistry()
	stop := Listen(b, r)

	p := r.Expect("Giver", "s1")
	b.PublishChat("game", "Giver tells you, 'Done sending you items #s1'")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	msg, err := p.Wait(ctx)
	require.NoError(t, err)
	require.Equal(t, "Giver", msg.Sender)

	stop()
	b.Close()

	chat := gamefake.New()
	n := NewNotifier(chat)
	require.NoError(t, n.NotifyDone(context.Background(), "Collector", "s1"))
	require.NoError(t, n.NotifyFailed(context.Background(), "Collector", ""))
	tells, _, _ := chat.Snapshot()
	require.Equal(t, []gamefake.Tell{
		{To: "Collector", Text: "Done sending you items #s1"},
		{To: "Collector", Text: "Unable to send you items"},
	}, tells)
}
