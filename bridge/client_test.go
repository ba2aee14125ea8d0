package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/linanwx/ferry/bus"
	"github.com/linanwx/ferry/game"
)

type pluginRequest struct {
	Type string          `json:"type"`
	ID   string          `json:"id"`
	Op   string          `json:"op"`
	Args json.RawMessage `json:"args"`
}

// plugin answers bridge requests the way the game client plugin does.
type plugin struct {
	handle func(req pluginRequest) (result any, errText string)
	conns  chan *websocket.Conn

	mu  sync.Mutex
	ops []string
}

func (p *plugin) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")
	p.conns <- conn

	for {
		var req pluginRequest
		if err := wsjson.Read(r.Context(), conn, &req); err != nil {
			return
		}
		p.mu.Lock()
		p.ops = append(p.ops, req.Op)
		p.mu.Unlock()

		result, errText := p.handle(req)
		resp := map[string]any{
			"type":   "response",
			"id":     req.ID,
			"ok":     errText == "",
			"result": result,
			"error":  errText,
		}
		if err := wsjson.Write(r.Context(), conn, resp); err != nil {
			return
		}
	}
}

func startPlugin(t *testing.T, handle func(req pluginRequest) (any, string), b *bus.Bus) (*Client, *plugin) {
	t.Helper()
	p := &plugin{handle: handle, conns: make(chan *websocket.Conn, 1)}
	srv := httptest.NewServer(p)
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	c, err := Dial(ctx, Config{
		URL:              "ws" + strings.TrimPrefix(srv.URL, "http"),
		RequestTimeout:   time.Second,
		ReconnectBackoff: 20 * time.Millisecond,
	}, b)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c, p
}

func TestInventoryCalls(t *testing.T) {
	var containerArgs slotArgs
	c, _ := startPlugin(t, func(req pluginRequest) (any, string) {
		switch req.Op {
		case opContainer:
			_ = json.Unmarshal(req.Args, &containerArgs)
			return map[string]any{"occupied": true, "isContainer": true, "name": "Backpack", "capacity": 8}, ""
		case opFind:
			return map[string]any{"address": "bank4 1", "found": true}, ""
		case opItem:
			return map[string]any{"name": "Diamond Coin", "found": true}, ""
		}
		return nil, "unexpected op " + req.Op
	}, nil)
	ctx := context.Background()

	cont, err := c.Container(ctx, game.LocationPack, 3)
	if err != nil {
		t.Fatalf("Container: %v", err)
	}
	if cont != (game.Container{Occupied: true, IsContainer: true, Name: "Backpack", Capacity: 8}) {
		t.Fatalf("Container = %+v", cont)
	}
	if containerArgs.Location != "pack" || containerArgs.Slot != 3 || containerArgs.SlotID != 25 {
		t.Fatalf("container args = %+v", containerArgs)
	}

	addr, ok, err := c.FindItem(ctx, game.LocationBank, "Gem", true)
	if err != nil || !ok {
		t.Fatalf("FindItem = %v, %v, %v", addr, ok, err)
	}
	if addr != (game.Address{Location: game.LocationBank, Container: 4, Slot: 1}) {
		t.Fatalf("FindItem address = %v", addr)
	}

	name, ok, err := c.ItemAt(ctx, addr)
	if err != nil || !ok || name != "Diamond Coin" {
		t.Fatalf("ItemAt = %q, %v, %v", name, ok, err)
	}
}

func TestTargetingAndRoster(t *testing.T) {
	c, p := startPlugin(t, func(req pluginRequest) (any, string) {
		switch req.Op {
		case opTargetSet:
			var args struct{ Name string }
			_ = json.Unmarshal(req.Args, &args)
			if args.Name != "CharVendor" {
				return nil, "no such character"
			}
			return map[string]any{"found": true}, ""
		case opTargetDist:
			return map[string]any{"distance": 12.5}, ""
		case opGroup:
			return map[string]any{"names": []string{"A", "B"}}, ""
		case opTell:
			return nil, ""
		}
		return nil, "unexpected op " + req.Op
	}, nil)
	ctx := context.Background()

	ok, err := c.Target(ctx, "CharVendor")
	if err != nil || !ok {
		t.Fatalf("Target = %v, %v", ok, err)
	}
	dist, err := c.Distance(ctx)
	if err != nil || dist != 12.5 {
		t.Fatalf("Distance = %v, %v", dist, err)
	}
	names, err := c.GroupMembers(ctx)
	if err != nil || len(names) != 2 || names[0] != "A" {
		t.Fatalf("GroupMembers = %v, %v", names, err)
	}
	if err := c.Tell(ctx, "A", "hello"); err != nil {
		t.Fatalf("Tell: %v", err)
	}

	_, err = c.Target(ctx, "Nobody")
	var remote *RemoteError
	if !errors.As(err, &remote) || remote.Op != opTargetSet || remote.Message != "no such character" {
		t.Fatalf("expected RemoteError, got %v", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	want := []string{opTargetSet, opTargetDist, opGroup, opTell, opTargetSet}
	if strings.Join(p.ops, ",") != strings.Join(want, ",") {
		t.Fatalf("ops = %v, want %v", p.ops, want)
	}
}

func TestEventsReachBusAndCommands(t *testing.T) {
	b := bus.NewBus(16)
	defer b.Close()
	lines := make(chan string, 1)
	b.Subscribe(bus.EventChatReceived, func(_ context.Context, e *bus.Event) {
		var data bus.ChatEventData
		if err := e.ParseData(&data); err == nil {
			lines <- data.Line
		}
	})

	c, p := startPlugin(t, func(pluginRequest) (any, string) { return nil, "" }, b)
	conn := <-p.conns
	ctx := context.Background()

	chat := "Collector tells you, 'Done sending you items #s1'"
	if err := wsjson.Write(ctx, conn, map[string]string{"type": "event", "event": "chat", "text": chat}); err != nil {
		t.Fatalf("write chat event: %v", err)
	}
	if err := wsjson.Write(ctx, conn, map[string]string{"type": "event", "event": "command", "from": "Collector", "text": "/give Collector #s1"}); err != nil {
		t.Fatalf("write command event: %v", err)
	}

	select {
	case got := <-lines:
		if got != chat {
			t.Fatalf("chat line = %q", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("chat event not published")
	}

	select {
	case cmd := <-c.Commands():
		if cmd != (Command{From: "Collector", Text: "/give Collector #s1"}) {
			t.Fatalf("command = %+v", cmd)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("command not delivered")
	}
}

func TestCallsFailAfterClose(t *testing.T) {
	c, _ := startPlugin(t, func(pluginRequest) (any, string) { return nil, "" }, nil)
	if err := c.ClickTrade(context.Background()); err != nil {
		t.Fatalf("ClickTrade: %v", err)
	}

	c.Close()

	if err := c.ClickTrade(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if _, open := <-c.Commands(); open {
		t.Fatal("commands channel should be closed")
	}
}

func TestReconnectsAfterConnectionDrops(t *testing.T) {
	c, p := startPlugin(t, func(pluginRequest) (any, string) { return nil, "" }, nil)
	ctx := context.Background()
	commands := c.Commands()

	first := <-p.conns
	if err := c.ClickTrade(ctx); err != nil {
		t.Fatalf("ClickTrade: %v", err)
	}
	_ = first.CloseNow()

	var second *websocket.Conn
	select {
	case second = <-p.conns:
	case <-time.After(2 * time.Second):
		t.Fatal("client did not redial")
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		err := c.ClickTrade(ctx)
		if err == nil {
			break
		}
		if !errors.Is(err, ErrDisconnected) {
			t.Fatalf("ClickTrade while reconnecting: %v", err)
		}
		if time.Now().After(deadline) {
			t.Fatal("calls still failing after reconnect")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if !c.Connected() {
		t.Fatal("Connected() = false after a successful call")
	}

	if err := wsjson.Write(ctx, second, map[string]string{"type": "event", "event": "command", "from": "Collector", "text": "/status"}); err != nil {
		t.Fatalf("write command event: %v", err)
	}
	select {
	case cmd, ok := <-commands:
		if !ok {
			t.Fatal("commands channel closed by the reconnect")
		}
		if cmd.Text != "/status" {
			t.Fatalf("command = %+v", cmd)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("command on the new connection not delivered")
	}
}

func TestCloseStopsRedialing(t *testing.T) {
	c, p := startPlugin(t, func(pluginRequest) (any, string) { return nil, "" }, nil)
	first := <-p.conns
	_ = first.CloseNow()

	c.Close()

	if err := c.ClickTrade(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if _, open := <-c.Commands(); open {
		t.Fatal("commands channel should be closed")
	}

	// A redial may have landed before Close; only later ones count.
	time.Sleep(50 * time.Millisecond)
	select {
	case conn := <-p.conns:
		_ = conn.CloseNow()
	default:
	}
	select {
	case conn := <-p.conns:
		_ = conn.CloseNow()
		t.Fatal("client redialed after Close")
	case <-time.After(100 * time.Millisecond):
	}
}
