package bus

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/linanwx/ferry/logger"
)

// Handler is a function that handles events.
type Handler func(ctx context.Context, event *Event)

// subscriber owns a queue and a goroutine, so it sees events in publish
// order and a slow subscriber never stalls the others.
type subscriber struct {
	id        string
	eventType EventType // empty means all events
	handler   Handler
	queue     chan *Event
}

func (s *subscriber) matches(e *Event) bool {
	return s.eventType == "" || s.eventType == e.Type
}

func (s *subscriber) run(wg *sync.WaitGroup) {
	defer wg.Done()
	ctx := context.Background()
	for event := range s.queue {
		s.handle(ctx, event)
	}
}

func (s *subscriber) handle(ctx context.Context, event *Event) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("bus handler panic", "subscription", s.id, "type", event.Type, "panic", r)
		}
	}()
	s.handler(ctx, event)
}

// Bus fans events out to subscribers. Publish never blocks: an event that
// does not fit a subscriber's queue is dropped for that subscriber.
type Bus struct {
	mu      sync.RWMutex
	subs    map[string]*subscriber
	nextID  int64
	closed  bool
	buffer  int
	dropped atomic.Int64
	wg      sync.WaitGroup
}

// NewBus creates a bus whose subscribers each queue up to bufferSize events.
func NewBus(bufferSize int) *Bus {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	return &Bus{
		subs:   make(map[string]*subscriber),
		buffer: bufferSize,
	}
}

// Subscribe registers handler for eventType, or for every event when
// eventType is empty. It returns an id for Unsubscribe.
func (b *Bus) Subscribe(eventType EventType, handler Handler) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	s := &subscriber{
		id:        fmt.Sprintf("sub-%d", b.nextID),
		eventType: eventType,
		handler:   handler,
		queue:     make(chan *Event, b.buffer),
	}
	if b.closed {
		close(s.queue)
		logger.Warn("subscribe on closed bus", "type", eventType)
		return s.id
	}

	b.subs[s.id] = s
	b.wg.Add(1)
	go s.run(&b.wg)

	logger.Debug("subscription added", "id", s.id, "type", eventType)
	return s.id
}

// Unsubscribe removes a subscription. Events already queued for it are
// still handled.
func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	s, ok := b.subs[id]
	if !ok {
		return
	}
	delete(b.subs, id)
	close(s.queue)
	logger.Debug("subscription removed", "id", id)
}

// Publish queues event for every matching subscriber.
func (b *Bus) Publish(event *Event) {
	if event == nil {
		return
	}
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		logger.Warn("bus closed, event dropped", "type", event.Type)
		return
	}
	for _, s := range b.subs {
		if !s.matches(event) {
			continue
		}
		select {
		case s.queue <- event:
		default:
			b.dropped.Add(1)
			logger.Warn("subscriber queue full, event dropped", "subscription", s.id, "type", event.Type)
		}
	}
	logger.Debug("event published", "type", event.Type, "source", event.Source)
}

// Dropped counts deliveries lost to full queues.
func (b *Bus) Dropped() int64 {
	return b.dropped.Load()
}

// Close stops accepting events and waits until every queued event has been
// handled.
func (b *Bus) Close() {
	b.mu.Lock()
	if !b.closed {
		b.closed = true
		for id, s := range b.subs {
			close(s.queue)
			delete(b.subs, id)
		}
	}
	b.mu.Unlock()
	b.wg.Wait()
}

// ============================================================================
// Convenience Methods
// ============================================================================

func (b *Bus) newEvent(eventType EventType, source, target string, data any) *Event {
	event, err := NewEvent(eventType, source, data)
	if err != nil {
		logger.Error("encode event", "type", eventType, "err", err)
		return nil
	}
	event.Target = target
	return event
}

// PublishAgentStarted publishes an agent started event.
func (b *Bus) PublishAgentStarted(character string) {
	b.Publish(b.newEvent(EventAgentStarted, character, "", nil))
}

// PublishAgentStopped publishes an agent stopped event.
func (b *Bus) PublishAgentStopped(character string) {
	b.Publish(b.newEvent(EventAgentStopped, character, "", nil))
}

// PublishChat publishes a raw chat line received from the game client.
func (b *Bus) PublishChat(source, line string) {
	b.Publish(b.newEvent(EventChatReceived, source, "", ChatEventData{Line: line}))
}

// PublishTradeState publishes a trade session state transition.
func (b *Bus) PublishTradeState(data TradeEventData) {
	b.Publish(b.newEvent(EventTradeState, data.Giver, data.Receiver, data))
}

// PublishTradeFinished publishes the terminal result of a trade session.
func (b *Bus) PublishTradeFinished(data TradeEventData) {
	b.Publish(b.newEvent(EventTradeFinished, data.Giver, data.Receiver, data))
}

// PublishCollectMember publishes one roster member's collection outcome.
func (b *Bus) PublishCollectMember(data CollectEventData) {
	b.Publish(b.newEvent(EventCollectMember, data.Collector, data.Member, data))
}

// PublishCollectFinished publishes the end of a roster collection.
func (b *Bus) PublishCollectFinished(collector string, members int) {
	event := b.newEvent(EventCollectFinished, collector, "", nil)
	if event != nil {
		event.WithMetadata("members", members)
	}
	b.Publish(event)
}
