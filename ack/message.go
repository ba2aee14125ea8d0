// Package ack implements the completion acknowledgement exchanged between
// agents after a give: a plain chat tell on the wire, a structured Message in
// process, and a registry of waits keyed by peer and session.
package ack

import (
	"regexp"
	"strings"
)

// Kind distinguishes a completed give from a failed one.
type Kind int

const (
	KindDone Kind = iota + 1
	KindFailed
)

const (
	DoneText   = "Done sending you items"
	FailedText = "Unable to send you items"
)

func (k Kind) String() string {
	switch k {
	case KindDone:
		return "done"
	case KindFailed:
		return "failed"
	}
	return "unknown"
}

// Message is an acknowledgement attributed to its sender. SessionID is empty
// when the peer predates session tagging.
type Message struct {
	Sender    string
	Kind      Kind
	SessionID string
}

var (
	tellPattern = regexp.MustCompile(`^(\S+) tells you, '(.*)'$`)
	bodyPattern = regexp.MustCompile(`^(` + regexp.QuoteMeta(DoneText) + `|` + regexp.QuoteMeta(FailedText) + `)(?: #(\S+))?$`)
)

// Body renders the text the sender tells its peer.
func (m Message) Body() string {
	text := DoneText
	if m.Kind == KindFailed {
		text = FailedText
	}
	if m.SessionID != "" {
		text += " #" + m.SessionID
	}
	return text
}

// Line renders the message the way the receiving client shows it.
func (m Message) Line() string {
	return m.Sender + " tells you, '" + m.Body() + "'"
}

// ParseLine recognizes an acknowledgement in a received chat line.
func ParseLine(line string) (Message, bool) {
	tell := tellPattern.FindStringSubmatch(strings.TrimSpace(line))
	if tell == nil {
		return Message{}, false
	}
	body := bodyPattern.FindStringSubmatch(strings.TrimSpace(tell[2]))
	if body == nil {
		return Message{}, false
	}

	msg := Message{Sender: tell[1], Kind: KindDone, SessionID: body[2]}
	if body[1] == FailedText {
		msg.Kind = KindFailed
	}
	return msg, true
}
