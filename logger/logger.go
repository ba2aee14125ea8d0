// Package logger is the process-wide slog logger. Every record carries the
// character name once Init has been given one, so logs from several agents
// on one machine can be told apart.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Config describes logger settings.
type Config struct {
	Enabled   bool
	Level     string
	Stdout    bool
	File      string
	Character string
}

var (
	mu      sync.RWMutex
	base    = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	logFile *os.File
	level   = new(slog.LevelVar)
)

var sensitiveKeys = []string{"token", "secret", "password", "authorization", "apikey", "api_key"}

// Init replaces the logger. A log file opened by an earlier Init is closed.
func Init(cfg Config, configDir string) error {
	mu.Lock()
	defer mu.Unlock()

	closeFileLocked()
	if !cfg.Enabled {
		base = nil
		return nil
	}
	level.Set(parseLevel(cfg.Level))

	var writers []io.Writer
	var initErr error
	if cfg.Stdout {
		writers = append(writers, os.Stdout)
	}
	if cfg.File != "" {
		path := resolvePath(cfg.File, configDir)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return fmt.Errorf("logger: create log dir: %w", err)
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			initErr = fmt.Errorf("logger: open log file: %w", err)
		} else {
			logFile = f
			writers = append(writers, f)
		}
	}
	if len(writers) == 0 {
		writers = append(writers, os.Stdout)
	}

	base = build(io.MultiWriter(writers...), cfg.Character)
	return initErr
}

// SetOutput sends records to w at the current level. Tests use it to capture
// output without touching the filesystem.
func SetOutput(w io.Writer, character string) {
	mu.Lock()
	defer mu.Unlock()
	closeFileLocked()
	base = build(w, character)
}

func build(w io.Writer, character string) *slog.Logger {
	l := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
	if character = strings.TrimSpace(character); character != "" {
		l = l.With("character", character)
	}
	return l
}

func closeFileLocked() {
	if logFile != nil {
		_ = logFile.Close()
		logFile = nil
	}
}

func Debug(msg string, args ...any) { emit(slog.LevelDebug, msg, args) }
func Info(msg string, args ...any)  { emit(slog.LevelInfo, msg, args) }
func Warn(msg string, args ...any)  { emit(slog.LevelWarn, msg, args) }
func Error(msg string, args ...any) { emit(slog.LevelError, msg, args) }

func emit(lvl slog.Level, msg string, args []any) {
	mu.RLock()
	l := base
	mu.RUnlock()

	if l == nil || !l.Enabled(context.Background(), lvl) {
		return
	}
	l.Log(context.Background(), lvl, msg, redact(args)...)
}

// SetLevel changes the minimum level at runtime.
func SetLevel(name string) {
	level.Set(parseLevel(name))
}

// DebugEnabled reports whether debug records are currently emitted.
func DebugEnabled() bool {
	return level.Level() <= slog.LevelDebug
}

func parseLevel(name string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func resolvePath(path, configDir string) string {
	if strings.HasPrefix(path, "~") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	if filepath.IsAbs(path) || configDir == "" {
		return path
	}
	return filepath.Join(configDir, path)
}

// redact masks values whose key looks like a credential. The Telegram bot
// token is the only secret ferry holds.
func redact(args []any) []any {
	if len(args) == 0 {
		return args
	}
	if len(args)%2 == 1 {
		args = append(args, "(missing)")
	}
	out := make([]any, 0, len(args))
	for i := 0; i < len(args); i += 2 {
		key, _ := args[i].(string)
		if isSensitive(key) {
			out = append(out, key, "[REDACTED]")
			continue
		}
		out = append(out, key, args[i+1])
	}
	return out
}

func isSensitive(key string) bool {
	k := strings.ToLower(key)
	for _, s := range sensitiveKeys {
		if strings.Contains(k, s) {
			return true
		}
	}
	return false
}
