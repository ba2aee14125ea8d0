package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRedactsCredentialKeys(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf, "Giver")
	SetLevel("info")
	t.Cleanup(func() { SetOutput(os.Stdout, "") })

	Info("telegram connected", "bot_token", "123:abc", "chat", 42)

	out := buf.String()
	if strings.Contains(out, "123:abc") {
		t.Fatalf("token leaked: %s", out)
	}
	for _, want := range []string{"bot_token=[REDACTED]", "chat=42", "character=Giver"} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in %s", want, out)
		}
	}
}

func TestSetLevelFiltersDebug(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf, "")
	t.Cleanup(func() {
		SetLevel("info")
		SetOutput(os.Stdout, "")
	})

	SetLevel("info")
	Debug("hidden")
	if buf.Len() != 0 {
		t.Fatalf("debug written at info level: %s", buf.String())
	}

	SetLevel("debug")
	if !DebugEnabled() {
		t.Fatal("DebugEnabled() = false after SetLevel(debug)")
	}
	Debug("shown")
	if !strings.Contains(buf.String(), "shown") {
		t.Fatalf("debug record missing: %s", buf.String())
	}
}

func TestOddArgsArePadded(t *testing.T) {
	got := redact([]any{"slot"})
	if len(got) != 2 || got[1] != "(missing)" {
		t.Fatalf("redact(odd) = %v", got)
	}
}

func TestInitWritesFileUnderConfigDir(t *testing.T) {
	dir := t.TempDir()
	t.Cleanup(func() { SetOutput(os.Stdout, "") })

	if err := Init(Config{Enabled: true, Level: "info", File: "logs/ferry.log"}, dir); err != nil {
		t.Fatalf("Init: %v", err)
	}
	Warn("bridge not reachable", "url", "ws://127.0.0.1:7777")

	data, err := os.ReadFile(filepath.Join(dir, "logs", "ferry.log"))
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(data), "bridge not reachable") {
		t.Fatalf("log file missing record: %s", data)
	}
}

func TestDisabledDropsEverything(t *testing.T) {
	t.Cleanup(func() { SetOutput(os.Stdout, "") })
	if err := Init(Config{Enabled: false}, ""); err != nil {
		t.Fatalf("Init: %v", err)
	}
	Error("nobody hears this")
}
