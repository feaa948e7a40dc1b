// ABOUTME: Client facade that runs collection operations as conversations
// ABOUTME: Owns the reply subscription and the mediator that routes responses

package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/2389/pillarclient/internal/bus"
	"github.com/2389/pillarclient/internal/conversation"
	"github.com/2389/pillarclient/internal/event"
	"github.com/2389/pillarclient/internal/mediator"
	"github.com/2389/pillarclient/internal/message"
)

var (
	// ErrClosed is returned by Start after Close.
	ErrClosed = errors.New("client closed")
	// ErrNoTransport is returned by New without a transport.
	ErrNoTransport = errors.New("client requires a transport")
)

// Timeouts bounds the two phases of a conversation. Zero or less disables
// the phase timer.
type Timeouts struct {
	Identify  time.Duration
	Operation time.Duration
}

// Settings describe the collection the client talks to.
type Settings struct {
	CollectionID string
	ClientID     string
	// ReplyTo defaults to "client-<ClientID>".
	ReplyTo string
	// Destination defaults to "collection-<CollectionID>".
	Destination  string
	Contributors []string
	Timeouts     Timeouts
	// Overrides replace Timeouts for specific operations.
	Overrides                 map[message.OperationType]Timeouts
	TolerateComponentFailures bool
}

// Options configures a Client.
type Options struct {
	Settings  Settings
	Transport bus.Transport
	Mediator  mediator.Config
	// Handler receives events of every conversation; per-call handlers are
	// added on top.
	Handler   event.Handler
	Scheduler conversation.Scheduler
	Logger    *slog.Logger
}

// StartOptions tune a single operation.
type StartOptions struct {
	Handler    event.Handler
	AuditTrail string
	// Contributors replaces the configured candidate set.
	Contributors []string
}

// Client starts conversations and routes their responses.
type Client struct {
	settings    Settings
	transport   bus.Transport
	mediator    *mediator.Mediator
	handler     event.Handler
	scheduler   conversation.Scheduler
	logger      *slog.Logger
	unsubscribe func()
	closed      chan struct{}
	closeOnce   sync.Once
}

// New validates the settings, subscribes to the reply destination and
// returns a ready client.
func New(opts Options) (*Client, error) {
	if opts.Transport == nil {
		return nil, ErrNoTransport
	}
	settings, err := normalize(opts.Settings)
	if err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	c := &Client{
		settings:  settings,
		transport: opts.Transport,
		mediator:  mediator.New(opts.Mediator, logger),
		handler:   opts.Handler,
		scheduler: opts.Scheduler,
		logger:    logger.With("component", "client", "collection_id", settings.CollectionID),
		closed:    make(chan struct{}),
	}
	c.unsubscribe = c.transport.Subscribe(settings.ReplyTo, c.mediator)
	c.logger.Info("client ready",
		"client_id", settings.ClientID,
		"reply_to", settings.ReplyTo,
		"contributors", len(settings.Contributors),
	)
	return c, nil
}

func normalize(s Settings) (Settings, error) {
	if s.CollectionID == "" {
		return s, errors.New("collection id is required")
	}
	if s.ClientID == "" {
		return s, errors.New("client id is required")
	}
	if s.ReplyTo == "" {
		s.ReplyTo = "client-" + s.ClientID
	}
	if s.Destination == "" {
		s.Destination = "collection-" + s.CollectionID
	}
	seen := make(map[string]bool, len(s.Contributors))
	for _, id := range s.Contributors {
		if strings.TrimSpace(id) == "" {
			return s, errors.New("contributor ids must not be empty")
		}
		if seen[id] {
			return s, fmt.Errorf("duplicate contributor %q", id)
		}
		seen[id] = true
	}
	return s, nil
}

// Settings returns the normalized settings.
func (c *Client) Settings() Settings { return c.settings }

// TimeoutsFor returns the phase timeouts for op.
func (c *Client) TimeoutsFor(op message.OperationType) Timeouts {
	if t, ok := c.settings.Overrides[op]; ok {
		return t
	}
	return c.settings.Timeouts
}

// Start creates, registers and starts a conversation for op. The caller
// observes it through the handlers or the returned conversation.
func (c *Client) Start(op conversation.Operation, opts StartOptions) (*conversation.Conversation, error) {
	select {
	case <-c.closed:
		return nil, ErrClosed
	default:
	}

	contributors := c.settings.Contributors
	if opts.Contributors != nil {
		contributors = opts.Contributors
	}
	timeouts := c.TimeoutsFor(op.Type())

	conv, err := conversation.New(conversation.Params{
		Settings: conversation.Settings{
			CollectionID:     c.settings.CollectionID,
			ClientID:         c.settings.ClientID,
			ReplyTo:          c.settings.ReplyTo,
			Destination:      c.settings.Destination,
			Contributors:     contributors,
			IdentifyTimeout:  timeouts.Identify,
			OperationTimeout: timeouts.Operation,
		},
		Operation:                 op,
		AuditTrail:                opts.AuditTrail,
		Sender:                    c.transport,
		Handler:                   event.Multi(c.handler, opts.Handler),
		Scheduler:                 c.scheduler,
		Logger:                    c.logger,
		TolerateComponentFailures: c.settings.TolerateComponentFailures,
	})
	if err != nil {
		return nil, fmt.Errorf("creating conversation: %w", err)
	}
	if err := c.mediator.Register(conv); err != nil {
		return nil, err
	}
	go func() {
		<-conv.Done()
		c.mediator.Unregister(conv.ID())
	}()

	conv.Start()
	c.logger.Debug("operation started",
		"conversation_id", conversation.ShortID(conv.ID()),
		"operation", op.Type(),
		"file_id", op.FileID(),
	)
	return conv, nil
}

// Perform runs op and blocks until it finishes or ctx is done. A
// conversation still running when ctx ends is failed.
func (c *Client) Perform(ctx context.Context, op conversation.Operation, handler event.Handler) (event.OperationEvent, error) {
	conv, err := c.Start(op, StartOptions{Handler: handler})
	if err != nil {
		return event.OperationEvent{}, err
	}
	terminal, err := conversation.NewFlowController(conv).Wait(ctx)
	if errors.Is(err, conversation.ErrConversationTimedOut) {
		conv.Fail("client stopped waiting: " + ctx.Err().Error())
	}
	return terminal, err
}

// Active returns the number of registered conversations.
func (c *Client) Active() int { return c.mediator.Len() }

// Close stops routing responses and fails running conversations.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.unsubscribe()
		c.mediator.Close()
		c.logger.Info("client closed")
	})
}
