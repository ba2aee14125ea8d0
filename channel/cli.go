package channel

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/linanwx/ferry/internal/runtimecfg"
	"github.com/linanwx/ferry/logger"
)

// CLIConfig holds CLI channel configuration.
type CLIConfig struct {
	Prompt string    // default "> "
	In     io.Reader // default os.Stdin
	Out    io.Writer // default os.Stdout
}

// CLIChannel reads slash commands from a terminal. The leading slash is
// optional there: "give Alice" runs "/give Alice".
type CLIChannel struct {
	prompt string
	in     io.Reader
	out    io.Writer
	outMu  sync.Mutex

	messages chan *Message
	done     chan struct{}
	stopOnce sync.Once
	seq      atomic.Int64
}

// NewCLIChannel creates a CLI channel.
func NewCLIChannel(cfg CLIConfig) *CLIChannel {
	c := &CLIChannel{
		prompt:   cfg.Prompt,
		in:       cfg.In,
		out:      cfg.Out,
		messages: make(chan *Message, runtimecfg.CLIChannelMessageBufferSize),
		done:     make(chan struct{}),
	}
	if c.prompt == "" {
		c.prompt = "> "
	}
	if c.in == nil {
		c.in = os.Stdin
	}
	if c.out == nil {
		c.out = os.Stdout
	}
	return c
}

func (c *CLIChannel) Name() string { return "cli" }

func (c *CLIChannel) Start(ctx context.Context) error {
	go c.read(ctx)
	logger.Info("cli channel started")
	return nil
}

// Stop ends the channel. A read blocked on a terminal is abandoned rather
// than waited for.
func (c *CLIChannel) Stop() error {
	c.stopOnce.Do(func() {
		close(c.done)
		logger.Info("cli channel stopped")
	})
	return nil
}

func (c *CLIChannel) Send(_ context.Context, resp *Response) error {
	c.outMu.Lock()
	defer c.outMu.Unlock()
	_, err := fmt.Fprintf(c.out, "%s\n\n", resp.Text)
	return err
}

// Messages is closed when input ends or the user types exit.
func (c *CLIChannel) Messages() <-chan *Message {
	return c.messages
}

// cliLine classifies one line of terminal input.
type cliLine int

const (
	lineSkip cliLine = iota
	lineCommand
	lineExit
)

// parseCLILine trims s and adds the leading slash a command needs.
func parseCLILine(s string) (string, cliLine) {
	s = strings.TrimSpace(s)
	switch strings.ToLower(strings.TrimPrefix(s, "/")) {
	case "":
		return "", lineSkip
	case "exit", "quit":
		return "", lineExit
	}
	if !strings.HasPrefix(s, "/") {
		s = "/" + s
	}
	return s, lineCommand
}

func (c *CLIChannel) read(ctx context.Context) {
	defer close(c.messages)

	scanner := bufio.NewScanner(c.in)
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		default:
		}

		c.outMu.Lock()
		fmt.Fprint(c.out, c.prompt)
		c.outMu.Unlock()

		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				logger.Warn("cli input failed", "err", err)
			}
			return
		}

		text, kind := parseCLILine(scanner.Text())
		switch kind {
		case lineSkip:
			continue
		case lineExit:
			_ = c.Send(ctx, &Response{Text: "Goodbye!"})
			return
		}

		msg := &Message{
			ID:        fmt.Sprintf("cli-%d", c.seq.Add(1)),
			ChannelID: "cli:local",
			UserID:    "local",
			Username:  os.Getenv("USER"),
			Text:      text,
		}
		select {
		case c.messages <- msg:
		case <-c.done:
			return
		case <-ctx.Done():
			return
		}
	}
}
