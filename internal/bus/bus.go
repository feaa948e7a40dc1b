// ABOUTME: In-process message bus keyed by destination name
// ABOUTME: Delivers each message on its own goroutine, like transport worker threads

package bus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/2389/pillarclient/internal/message"
)

var (
	// ErrClosed is returned by Send after Close.
	ErrClosed = errors.New("bus closed")
	// ErrNoDestination is returned for messages without a To address.
	ErrNoDestination = errors.New("message has no destination")
)

// Listener receives messages delivered to a destination it subscribed to.
// HandleMessage may be called from many goroutines at once.
type Listener interface {
	HandleMessage(msg *message.Message)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(msg *message.Message)

// HandleMessage calls f(msg).
func (f ListenerFunc) HandleMessage(msg *message.Message) { f(msg) }

// Transport is what clients and pillars need from a message bus. Both
// *Bus and the gRPC bus client implement it.
type Transport interface {
	Send(ctx context.Context, msg *message.Message) error
	Subscribe(destination string, l Listener) (unsubscribe func())
}

var _ Transport = (*Bus)(nil)

// Bus is an in-memory publish/subscribe transport. A message sent to a
// destination is delivered once to every listener subscribed to it; a
// destination without listeners drops the message. Deliveries are
// asynchronous and unordered.
type Bus struct {
	mu        sync.RWMutex
	listeners map[string]map[string]Listener // destination -> subID -> listener
	closed    bool
	inflight  sync.WaitGroup
	logger    *slog.Logger
}

// New creates a bus. Pass nil logger for default.
func New(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		listeners: make(map[string]map[string]Listener),
		logger:    logger.With("component", "bus"),
	}
}

// Subscribe registers l for destination and returns a function that
// removes the subscription.
func (b *Bus) Subscribe(destination string, l Listener) func() {
	subID := uuid.New().String()

	b.mu.Lock()
	if _, ok := b.listeners[destination]; !ok {
		b.listeners[destination] = make(map[string]Listener)
	}
	b.listeners[destination][subID] = l
	b.mu.Unlock()

	b.logger.Debug("listener added", "destination", destination, "sub_id", subID)

	var once sync.Once
	return func() {
		once.Do(func() { b.unsubscribe(destination, subID) })
	}
}

func (b *Bus) unsubscribe(destination, subID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs, ok := b.listeners[destination]
	if !ok {
		return
	}
	delete(subs, subID)
	if len(subs) == 0 {
		delete(b.listeners, destination)
	}
	b.logger.Debug("listener removed", "destination", destination, "sub_id", subID)
}

// Send delivers msg to the listeners of msg.To. Each listener gets its own
// copy on its own goroutine. Send never waits for listeners.
func (b *Bus) Send(ctx context.Context, msg *message.Message) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("sending %s: %w", msg, err)
	}
	if msg.To == "" {
		return ErrNoDestination
	}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrClosed
	}
	subs := b.listeners[msg.To]
	targets := make([]Listener, 0, len(subs))
	for _, l := range subs {
		targets = append(targets, l)
	}
	b.inflight.Add(len(targets))
	b.mu.RUnlock()

	if len(targets) == 0 {
		b.logger.Debug("no listeners, message dropped", "destination", msg.To, "message", msg.String())
		return nil
	}
	for _, l := range targets {
		go func(m *message.Message) {
			defer b.inflight.Done()
			l.HandleMessage(m)
		}(msg.Clone())
	}
	return nil
}

// Destinations returns the number of destinations with listeners.
func (b *Bus) Destinations() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners)
}

// Close rejects further sends and waits for in-flight deliveries.
func (b *Bus) Close() {
	b.mu.Lock()
	b.closed = true
	b.listeners = make(map[string]map[string]Listener)
	b.mu.Unlock()

	b.inflight.Wait()
	b.logger.Debug("bus closed")
}
