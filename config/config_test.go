package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/linanwx/ferry/internal/runtimecfg"
)

func useTempDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	SetConfigDir(dir)
	t.Cleanup(func() { SetConfigDir("") })
	return dir
}

func TestLoadMissingConfig(t *testing.T) {
	useTempDir(t)
	if _, err := Load(); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Load error = %v, want ErrNotFound", err)
	}
}

func TestSaveLoadRoundTripKeepsDefaults(t *testing.T) {
	useTempDir(t)
	cfg := DefaultConfig()
	cfg.Agent.Name = "Collector"
	cfg.Collect.Peers = []string{"Alpha", "Beta"}
	if err := cfg.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Agent.Name != "Collector" {
		t.Fatalf("Agent.Name = %q", got.Agent.Name)
	}
	if got.Trade.PollInterval != runtimecfg.PollInterval {
		t.Fatalf("PollInterval = %v, want %v", got.Trade.PollInterval, runtimecfg.PollInterval)
	}
	if len(got.Collect.Peers) != 2 || got.Collect.Peers[1] != "Beta" {
		t.Fatalf("Peers = %v", got.Collect.Peers)
	}
}

func TestLoadPartialFileAppliesDefaults(t *testing.T) {
	dir := useTempDir(t)
	raw := `agent:
  name: Giver
trade:
  batchSize: 4
  pollInterval: 500ms
collect:
  memberTimeout: 2m
  ackAnySender: true
wantList:
  file: lists/wants.yaml
schedules:
  - id: nightly
    expr: "0 3 * * *"
    command: /collect group
`
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(raw), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"batch", cfg.Trade.BatchSize, 4},
		{"poll", cfg.Trade.PollInterval, 500 * time.Millisecond},
		{"cursor timeout follows poll", cfg.Trade.CursorTimeout, 1500 * time.Millisecond},
		{"proximity", cfg.Trade.Proximity, runtimecfg.TradeProximityRange},
		{"pack slots", cfg.Inventory.PackSlots, runtimecfg.PackSlots},
		{"bank slots", cfg.Inventory.BankSlots, runtimecfg.BankSlots},
		{"member timeout", cfg.Collect.MemberTimeout, 2 * time.Minute},
		{"ack any sender", cfg.Collect.AckAnySender, true},
		{"bridge url", cfg.Bridge.URL, runtimecfg.BridgeDefaultURL},
		{"reconnect backoff", cfg.BridgeClientConfig().ReconnectBackoff, runtimecfg.BridgeReconnectBackoff},
		{"journal on", cfg.JournalEnabled(), true},
		{"telegram off", cfg.GetTelegramToken(), ""},
		{"schedules", len(cfg.Schedules), 1},
		{"log level", cfg.Logging.Level, "info"},
	}
	for _, tc := range tests {
		if tc.got != tc.want {
			t.Errorf("%s = %v, want %v", tc.name, tc.got, tc.want)
		}
	}

	wants, err := cfg.WantListPath()
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(dir, "lists", "wants.yaml"); wants != want {
		t.Fatalf("WantListPath = %q, want %q", wants, want)
	}
	journal, err := cfg.JournalPath()
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(dir, runtimecfg.JournalFileName); journal != want {
		t.Fatalf("JournalPath = %q, want %q", journal, want)
	}
}

func TestAgentConfigMapsSections(t *testing.T) {
	useTempDir(t)
	cfg := DefaultConfig()
	cfg.Agent.Name = "Giver"
	cfg.Inventory.BankSlots = 16
	cfg.Collect.MemberTimeout = time.Minute
	cfg.Collect.Peers = []string{"A"}

	ac := cfg.AgentConfig()
	if ac.Self != "Giver" || ac.Layout.BankSlots != 16 || ac.Layout.PackSlots != runtimecfg.PackSlots {
		t.Fatalf("identity/layout = %+v", ac)
	}
	if ac.Trade.BatchSize != runtimecfg.TradeBatchSize || ac.Trade.ProximityRange != runtimecfg.TradeProximityRange {
		t.Fatalf("trade = %+v", ac.Trade)
	}
	if ac.Mover.Timeout != runtimecfg.CursorTimeout {
		t.Fatalf("mover = %+v", ac.Mover)
	}
	if ac.Collect.MemberTimeout != time.Minute || len(ac.Collect.Peers) != 1 {
		t.Fatalf("collect = %+v", ac.Collect)
	}
	cfg.Collect.Peers[0] = "changed"
	if ac.Collect.Peers[0] != "A" {
		t.Fatal("collect peers share backing array with config")
	}
}

func TestLoadRejectsBadFiles(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr string
	}{
		{"unknown key", "agent:\n  name: Giver\n  nmae: typo\n", "nmae"},
		{"http bridge", "bridge:\n  url: http://127.0.0.1:7788\n", "bridge.url"},
		{"not yaml", "agent: [\n", "config.yaml"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			dir := useTempDir(t)
			if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(tc.raw), 0o600); err != nil {
				t.Fatal(err)
			}
			_, err := Load()
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("Load error = %v, want mention of %q", err, tc.wantErr)
			}
		})
	}
}

func TestLoadEmptyFileIsAllDefaults(t *testing.T) {
	dir := useTempDir(t)
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), nil, 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Trade.BatchSize != runtimecfg.TradeBatchSize || cfg.Bridge.URL != runtimecfg.BridgeDefaultURL {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
}
