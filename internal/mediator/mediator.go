// ABOUTME: Routes inbound messages to running conversations by correlation id
// ABOUTME: Sweeps ended conversations and fails those that outlive the conversation timeout

package mediator

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/2389/pillarclient/internal/conversation"
	"github.com/2389/pillarclient/internal/dedupe"
	"github.com/2389/pillarclient/internal/message"
)

// ErrAlreadyRegistered indicates a conversation with the same id is registered.
var ErrAlreadyRegistered = errors.New("conversation already registered")

// Conversation is what the mediator needs from a running conversation.
type Conversation interface {
	ID() string
	HandleMessage(msg *message.Message)
	Fail(reason string)
	HasEnded() bool
	StartedAt() time.Time
}

var _ Conversation = (*conversation.Conversation)(nil)

// Config tunes the mediator.
type Config struct {
	// ConversationTimeout fails conversations older than this. Zero disables it.
	ConversationTimeout time.Duration
	// CleanupInterval is how often the sweep runs. Defaults to 10s.
	CleanupInterval time.Duration
	// DedupeTTL enables redelivery filtering when positive.
	DedupeTTL  time.Duration
	DedupeSize int
}

const (
	defaultCleanupInterval = 10 * time.Second
	defaultDedupeSize      = 10000
)

// Mediator is a bus.Listener that hands every message to the conversation
// named by its correlation id.
type Mediator struct {
	mu            sync.RWMutex
	conversations map[string]Conversation
	cfg           Config
	dedupe        *dedupe.Cache
	now           func() time.Time
	logger        *slog.Logger

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// New creates a mediator and starts its cleanup loop. Pass nil logger for default.
func New(cfg Config, logger *slog.Logger) *Mediator {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = defaultCleanupInterval
	}
	m := &Mediator{
		conversations: make(map[string]Conversation),
		cfg:           cfg,
		now:           time.Now,
		logger:        logger.With("component", "mediator"),
		done:          make(chan struct{}),
	}
	if cfg.DedupeTTL > 0 {
		size := cfg.DedupeSize
		if size <= 0 {
			size = defaultDedupeSize
		}
		m.dedupe = dedupe.New(cfg.DedupeTTL, size)
	}
	m.wg.Add(1)
	go m.cleanupLoop()
	return m
}

// Register adds a conversation. It must be registered before it starts so
// that no response can arrive ahead of it.
func (m *Mediator) Register(conv Conversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.conversations[conv.ID()]; exists {
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, conv.ID())
	}
	m.conversations[conv.ID()] = conv
	m.logger.Debug("conversation registered",
		"conversation_id", conversation.ShortID(conv.ID()),
		"active", len(m.conversations),
	)
	return nil
}

// Unregister removes a conversation.
func (m *Mediator) Unregister(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.conversations, id)
}

// Lookup returns the conversation registered under id.
func (m *Mediator) Lookup(id string) (Conversation, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	conv, ok := m.conversations[id]
	return conv, ok
}

// Len returns the number of registered conversations.
func (m *Mediator) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.conversations)
}

// HandleMessage routes msg. Messages for unknown conversations and
// redeliveries are logged and discarded.
func (m *Mediator) HandleMessage(msg *message.Message) {
	if m.dedupe != nil && m.dedupe.Duplicate(msg) {
		m.logger.Debug("dropping redelivered message", "message_id", msg.ID, "message", msg.String())
		return
	}

	conv, ok := m.Lookup(msg.CorrelationID)
	if !ok {
		m.logger.Debug("message for unknown conversation",
			"conversation_id", conversation.ShortID(msg.CorrelationID),
			"message", msg.String(),
		)
		return
	}
	conv.HandleMessage(msg)
}

// Cleanup removes ended conversations and fails those older than the
// conversation timeout. Failed conversations are removed once they end.
func (m *Mediator) Cleanup() (removed, failed int) {
	now := m.now()

	m.mu.Lock()
	var stale []Conversation
	for id, conv := range m.conversations {
		switch {
		case conv.HasEnded():
			delete(m.conversations, id)
			removed++
		case m.cfg.ConversationTimeout > 0 && now.Sub(conv.StartedAt()) > m.cfg.ConversationTimeout:
			stale = append(stale, conv)
		}
	}
	m.mu.Unlock()

	for _, conv := range stale {
		m.logger.Warn("failing stale conversation",
			"conversation_id", conversation.ShortID(conv.ID()),
			"age", now.Sub(conv.StartedAt()).Round(time.Millisecond),
		)
		conv.Fail(fmt.Sprintf("conversation exceeded the %s conversation timeout", m.cfg.ConversationTimeout))
	}
	return removed, len(stale)
}

func (m *Mediator) cleanupLoop() {
	defer m.wg.Done()
	ticker := time.NewTicker(m.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if removed, failed := m.Cleanup(); removed+failed > 0 {
				m.logger.Debug("cleanup finished", "removed", removed, "failed", failed)
			}
		case <-m.done:
			return
		}
	}
}

// Close stops the cleanup loop and fails every conversation still running.
func (m *Mediator) Close() {
	m.closeOnce.Do(func() {
		close(m.done)
		m.wg.Wait()
		if m.dedupe != nil {
			m.dedupe.Close()
		}

		m.mu.Lock()
		active := make([]Conversation, 0, len(m.conversations))
		for _, conv := range m.conversations {
			active = append(active, conv)
		}
		m.conversations = make(map[string]Conversation)
		m.mu.Unlock()

		for _, conv := range active {
			if !conv.HasEnded() {
				conv.Fail("mediator shutting down")
			}
		}
	})
}
