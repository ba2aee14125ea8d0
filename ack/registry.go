package ack

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/linanwx/ferry/logger"
)

// ErrPeerFailed is returned by Wait when the peer reported a failed give.
var ErrPeerFailed = errors.New("peer reported a failed give")

// Pending is one outstanding wait for a peer's acknowledgement.
type Pending struct {
	Peer      string
	SessionID string

	reg  *Registry
	seq  uint64
	ch   chan Message
	once sync.Once
}

// C delivers the acknowledgement once it is observed.
func (p *Pending) C() <-chan Message {
	return p.ch
}

// Wait blocks until the acknowledgement arrives or ctx ends. A cancelled wait
// is withdrawn from the registry.
func (p *Pending) Wait(ctx context.Context) (Message, error) {
	select {
	case msg := <-p.ch:
		if msg.Kind == KindFailed {
			return msg, ErrPeerFailed
		}
		return msg, nil
	case <-ctx.Done():
		p.reg.Cancel(p)
		return Message{}, ctx.Err()
	}
}

func (p *Pending) resolve(msg Message) {
	p.once.Do(func() {
		p.ch <- msg
	})
}

// Registry matches incoming acknowledgements to pending waits. A message only
// resolves a wait registered for its sender; a message without a session id
// resolves that sender's oldest wait.
type Registry struct {
	mu        sync.Mutex
	pending   map[string][]*Pending
	seq       uint64
	anySender bool
}

// Option configures a Registry.
type Option func(*Registry)

// AnySender lets a message nobody from its sender was waiting for resolve
// another peer's wait: the one with its session id, or the oldest wait when it
// carries none. Rosters mixing in peers that tell from another character need
// it.
func AnySender(on bool) Option {
	return func(r *Registry) { r.anySender = on }
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{pending: make(map[string][]*Pending)}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func peerKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Expect registers a wait for peer's acknowledgement of sessionID.
func (r *Registry) Expect(peer, sessionID string) *Pending {
	p := &Pending{
		Peer:      peer,
		SessionID: sessionID,
		reg:       r,
		ch:        make(chan Message, 1),
	}
	r.mu.Lock()
	r.seq++
	p.seq = r.seq
	key := peerKey(peer)
	r.pending[key] = append(r.pending[key], p)
	r.mu.Unlock()
	return p
}

// Observe resolves the wait msg belongs to. It reports false when nothing was
// waiting for it.
func (r *Registry) Observe(msg Message) bool {
	r.mu.Lock()
	key := peerKey(msg.Sender)
	idx := matchIn(r.pending[key], msg.SessionID)
	if idx < 0 && r.anySender {
		key, idx = r.matchAnyLocked(msg.SessionID)
	}
	if idx < 0 {
		r.mu.Unlock()
		logger.Debug("unmatched acknowledgement", "sender", msg.Sender, "session", msg.SessionID, "kind", msg.Kind.String())
		return false
	}
	p := r.pending[key][idx]
	r.removeLocked(key, idx)
	r.mu.Unlock()

	p.resolve(msg)
	logger.Debug("acknowledgement matched", "sender", msg.Sender, "peer", p.Peer, "session", p.SessionID, "kind", msg.Kind.String())
	return true
}

func matchIn(list []*Pending, sessionID string) int {
	for i, p := range list {
		if sessionID == "" || p.SessionID == sessionID {
			return i
		}
	}
	return -1
}

// matchAnyLocked finds the earliest registered wait matching sessionID across
// every peer.
func (r *Registry) matchAnyLocked(sessionID string) (string, int) {
	bestKey, bestIdx := "", -1
	var bestSeq uint64
	for key, list := range r.pending {
		i := matchIn(list, sessionID)
		if i < 0 {
			continue
		}
		if bestIdx < 0 || list[i].seq < bestSeq {
			bestKey, bestIdx, bestSeq = key, i, list[i].seq
		}
	}
	return bestKey, bestIdx
}

// Cancel withdraws p if it is still pending.
func (r *Registry) Cancel(p *Pending) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := peerKey(p.Peer)
	for i, q := range r.pending[key] {
		if q == p {
			r.removeLocked(key, i)
			return
		}
	}
}

// Outstanding is the number of waits not yet resolved.
func (r *Registry) Outstanding() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, list := range r.pending {
		n += len(list)
	}
	return n
}

func (r *Registry) removeLocked(key string, idx int) {
	list := r.pending[key]
	list = append(list[:idx], list[idx+1:]...)
	if len(list) == 0 {
		delete(r.pending, key)
		return
	}
	r.pending[key] = list
}
