// ABOUTME: The identify then operate state machine shared by every operation type
// ABOUTME: One goroutine per conversation drains a serialized inbox of messages and timeouts

package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/2389/pillarclient/internal/event"
	"github.com/2389/pillarclient/internal/message"
)

const (
	inboxSize          = 64
	defaultSendTimeout = 10 * time.Second
)

// Sender delivers a message to its To destination. It is shared by all
// conversations and must be safe for concurrent use.
type Sender interface {
	Send(ctx context.Context, msg *message.Message) error
}

// Settings are the read-only collection settings a conversation runs with.
type Settings struct {
	CollectionID string
	// ClientID is the From of every message the conversation sends.
	ClientID string
	// ReplyTo is where contributors address their responses.
	ReplyTo string
	// Destination receives the identify broadcast.
	Destination string
	// Contributors is the full candidate set.
	Contributors []string
	// Timeouts of zero or less disable the phase timer.
	IdentifyTimeout  time.Duration
	OperationTimeout time.Duration
}

// State is the phase a conversation occupies.
type State int32

const (
	Identifying State = iota
	PerformingOperation
	Finished
)

func (s State) String() string {
	switch s {
	case Identifying:
		return "identifying"
	case PerformingOperation:
		return "performing-operation"
	case Finished:
		return "finished"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Params configures a Conversation.
type Params struct {
	// ID is the correlation id. A UUID is generated when empty.
	ID         string
	Settings   Settings
	Operation  Operation
	AuditTrail string
	Sender     Sender
	// Handler receives every event; it may be nil.
	Handler   event.Handler
	Scheduler Scheduler
	Logger    *slog.Logger
	// SendTimeout bounds each Send call. Defaults to 10s.
	SendTimeout time.Duration
	// TolerateComponentFailures reports complete when all contributors
	// responded even if some of them failed.
	TolerateComponentFailures bool
}

type input interface{ isInput() }

type messageInput struct{ msg *message.Message }

type timeoutInput struct{ generation uint64 }

type failInput struct{ reason string }

func (messageInput) isInput() {}
func (timeoutInput) isInput() {}
func (failInput) isInput()    {}

// Conversation tracks one operation from the identify broadcast to its
// terminal event. Messages, timeouts and external failures are funneled
// through one inbox and handled by a single goroutine, so the phase, the
// selector and the response status are never touched concurrently.
type Conversation struct {
	id          string
	settings    Settings
	op          Operation
	auditTrail  string
	sender      Sender
	scheduler   Scheduler
	logger      *slog.Logger
	sendTimeout time.Duration
	monitor     *Monitor
	startedAt   time.Time

	inbox     chan input
	done      chan struct{}
	startOnce sync.Once
	state     atomic.Int32

	mu       sync.Mutex
	terminal event.OperationEvent

	// Owned by the run goroutine.
	selector   Selector
	status     *ResponseStatus
	timer      Timer
	generation uint64
}

// New creates a conversation in the Identifying state. Nothing is sent
// until Start is called.
func New(p Params) (*Conversation, error) {
	if p.Operation == nil {
		return nil, errors.New("conversation requires an operation")
	}
	if p.Sender == nil {
		return nil, errors.New("conversation requires a sender")
	}
	id := p.ID
	if id == "" {
		id = uuid.New().String()
	}
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	scheduler := p.Scheduler
	if scheduler == nil {
		scheduler = SystemScheduler
	}
	sendTimeout := p.SendTimeout
	if sendTimeout <= 0 {
		sendTimeout = defaultSendTimeout
	}

	c := &Conversation{
		id:          id,
		settings:    p.Settings,
		op:          p.Operation,
		auditTrail:  p.AuditTrail,
		sender:      p.Sender,
		scheduler:   scheduler,
		logger:      logger.With("component", "conversation", "conversation_id", ShortID(id)),
		sendTimeout: sendTimeout,
		startedAt:   time.Now(),
		inbox:       make(chan input, inboxSize),
		done:        make(chan struct{}),
	}
	c.monitor = NewMonitor(MonitorParams{
		ConversationID:            id,
		CollectionID:              p.Settings.CollectionID,
		Operation:                 p.Operation.Type(),
		FileID:                    p.Operation.FileID(),
		Handler:                   p.Handler,
		Logger:                    logger,
		TolerateComponentFailures: p.TolerateComponentFailures,
		OnEnd:                     c.end,
	})
	c.state.Store(int32(Identifying))
	return c, nil
}

// ID returns the correlation id.
func (c *Conversation) ID() string { return c.id }

// Operation returns the operation being performed.
func (c *Conversation) Operation() Operation { return c.op }

// StartedAt returns the creation time.
func (c *Conversation) StartedAt() time.Time { return c.startedAt }

// State returns the current phase.
func (c *Conversation) State() State { return State(c.state.Load()) }

// HasEnded reports whether the conversation is Finished.
func (c *Conversation) HasEnded() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// Done is closed once the terminal event has been delivered.
func (c *Conversation) Done() <-chan struct{} { return c.done }

// Terminal returns the terminal event. It is only meaningful after Done is closed.
func (c *Conversation) Terminal() event.OperationEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.terminal
}

// Start sends the identify broadcast and begins handling input. Calling it
// more than once has no effect.
func (c *Conversation) Start() {
	c.startOnce.Do(func() {
		go c.run()
	})
}

// HandleMessage queues an inbound message for the conversation. Messages
// arriving after the conversation finished are logged and dropped.
func (c *Conversation) HandleMessage(msg *message.Message) {
	if !c.post(messageInput{msg: msg}) {
		c.monitor.OutOfSequence(msg, Finished)
	}
}

// Fail ends the conversation with a failed event carrying reason, unless it
// has already ended.
func (c *Conversation) Fail(reason string) {
	c.post(failInput{reason: reason})
}

// post queues in and reports whether the conversation was still running.
func (c *Conversation) post(in input) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.inbox <- in:
		return true
	case <-c.done:
		return false
	}
}

func (c *Conversation) run() {
	c.startIdentifying()
	for !c.monitor.Ended() {
		c.dispatch(<-c.inbox)
	}
}

// end runs once, from the monitor, after the terminal event was delivered.
func (c *Conversation) end(terminal event.OperationEvent) {
	c.cancelTimer()
	c.state.Store(int32(Finished))
	c.mu.Lock()
	c.terminal = terminal
	c.mu.Unlock()
	close(c.done)
	c.logger.Debug("conversation finished",
		"event", string(terminal.Type),
		"duration", time.Since(c.startedAt),
	)
}

func (c *Conversation) dispatch(in input) {
	switch in := in.(type) {
	case messageInput:
		c.handleMessage(in.msg)
	case timeoutInput:
		if in.generation != c.generation {
			c.logger.Debug("ignoring stale timeout", "generation", in.generation)
			return
		}
		switch c.State() {
		case Identifying:
			c.identifyTimedOut()
		case PerformingOperation:
			c.operationTimedOut()
		}
	case failInput:
		c.monitor.OperationFailed(in.reason)
	}
}

func (c *Conversation) handleMessage(msg *message.Message) {
	state := c.State()
	if msg.Operation != c.op.Type() {
		c.monitor.OutOfSequence(msg, state)
		return
	}
	switch state {
	case Identifying:
		if msg.Kind != message.KindIdentifyResponse {
			c.monitor.OutOfSequence(msg, state)
			return
		}
		c.handleIdentifyResponse(msg)
	case PerformingOperation:
		switch msg.Kind {
		case message.KindProgressResponse:
			c.handleProgress(msg)
		case message.KindFinalResponse:
			c.handleFinalResponse(msg)
		case message.KindIdentifyResponse:
			c.monitor.InvalidMessage(msg, &UnexpectedResponseError{
				ContributorID: msg.From,
				Reason:        "identify response after identification ended",
			})
		default:
			c.monitor.OutOfSequence(msg, state)
		}
	default:
		c.monitor.OutOfSequence(msg, state)
	}
}

func (c *Conversation) startIdentifying() {
	c.selector = c.op.NewSelector(c.settings.Contributors)
	if len(c.settings.Contributors) == 0 {
		c.monitor.NoComponentFound("no contributors configured")
		c.monitor.OperationFailed("no contributor found for " + string(c.op.Type()))
		return
	}

	req := c.newMessage(message.KindIdentifyRequest, c.settings.Destination)
	if err := req.SetBody(c.op.IdentifyBody()); err != nil {
		c.monitor.OperationFailed(err.Error())
		return
	}
	if err := c.send(req); err != nil {
		c.monitor.OperationFailed(fmt.Sprintf("sending identify request: %v", err))
		return
	}
	c.monitor.IdentifyRequestSent(fmt.Sprintf("identifying contributors for %s", c.op.Type()))

	if c.selector.IsFinished() {
		c.finishIdentification()
		return
	}
	c.schedule(c.settings.IdentifyTimeout)
}

func (c *Conversation) handleIdentifyResponse(msg *message.Message) {
	replyTo := msg.ReplyTo
	if replyTo == "" {
		replyTo = msg.From
	}
	id := Identification{
		ContributorID: msg.From,
		ReplyTo:       replyTo,
		Positive:      msg.ResponseCode == message.IdentificationPositive,
		TimeToDeliver: msg.TimeToDeliver,
		Info:          msg.ResponseInfo,
	}
	if err := c.selector.Process(id); err != nil {
		c.monitor.InvalidMessage(msg, err)
		return
	}
	switch {
	case id.Positive:
		c.monitor.ComponentIdentified(msg.From, identifyInfo(msg))
	case c.selector.RequiresAll():
		c.monitor.ComponentFailed(msg.From, identifyInfo(msg), msg.ResponseCode)
	default:
		c.monitor.ComponentDeclined(msg.From, identifyInfo(msg), msg.ResponseCode)
	}
	if c.selector.IsFinished() {
		c.cancelTimer()
		c.finishIdentification()
	}
}

func (c *Conversation) identifyTimedOut() {
	if len(c.selector.Selected()) == 0 {
		c.monitor.NoComponentFound("no contributor identified before the identify timeout")
		c.monitor.OperationFailed("no contributor found for " + string(c.op.Type()))
		return
	}
	c.monitor.IdentifyTimeout(c.selector.Outstanding())
	c.finishIdentification()
}

func (c *Conversation) finishIdentification() {
	selected := c.selector.Selected()
	if len(selected) == 0 {
		c.monitor.NoComponentFound("no contributor can perform " + string(c.op.Type()))
		c.monitor.OperationFailed("no contributor found for " + string(c.op.Type()))
		return
	}
	ids := selectedIDs(selected)
	c.monitor.IdentificationComplete(ids)
	c.startPerforming(selected, ids)
}

func (c *Conversation) startPerforming(selected map[string]string, ids []string) {
	c.state.Store(int32(PerformingOperation))
	c.status = NewResponseStatus(ids)
	c.schedule(c.settings.OperationTimeout)

	for _, id := range ids {
		if c.monitor.Ended() {
			return
		}
		req := c.newMessage(message.KindRequest, selected[id])
		if err := req.SetBody(c.op.RequestBody(id)); err != nil {
			c.monitor.OperationFailed(err.Error())
			return
		}
		if err := c.send(req); err != nil {
			_ = c.status.ResponseReceived(id)
			c.monitor.ComponentFailed(id, fmt.Sprintf("sending request: %v", err), "")
			continue
		}
		c.monitor.RequestSent(id, fmt.Sprintf("%s request sent to %s", c.op.Type(), selected[id]))
	}
	if !c.monitor.Ended() && c.status.HaveAllResponded() {
		c.monitor.Complete()
	}
}

func (c *Conversation) handleProgress(msg *message.Message) {
	if !c.status.IsExpected(msg.From) {
		c.monitor.InvalidMessage(msg, &UnexpectedResponseError{ContributorID: msg.From, Reason: "not an expected contributor"})
		return
	}
	c.monitor.Progress(msg.From, msg.ResponseInfo)
}

func (c *Conversation) handleFinalResponse(msg *message.Message) {
	if err := c.status.ResponseReceived(msg.From); err != nil {
		c.monitor.InvalidMessage(msg, err)
		return
	}
	if msg.ResponseCode.IsFailure() {
		c.monitor.ComponentFailed(msg.From, failureInfo(msg), msg.ResponseCode)
	} else {
		payload, err := c.op.EvaluateFinal(msg)
		switch {
		case errors.Is(err, ErrAbort):
			c.monitor.ComponentFailed(msg.From, err.Error(), msg.ResponseCode)
			c.monitor.OperationFailed(err.Error())
			return
		case err != nil:
			c.monitor.ComponentFailed(msg.From, err.Error(), msg.ResponseCode)
		default:
			c.monitor.ComponentComplete(msg.From, msg.ResponseInfo, payload)
		}
	}
	if c.status.HaveAllResponded() {
		c.cancelTimer()
		c.monitor.Complete()
	}
}

func (c *Conversation) operationTimedOut() {
	outstanding := c.status.Outstanding()
	for _, id := range outstanding {
		c.monitor.ComponentFailed(id, "no response before the operation timeout", "")
	}
	c.monitor.OperationFailed(fmt.Sprintf("operation timed out, missing response from %s", strings.Join(outstanding, ", ")))
}

// schedule replaces the phase timer. The generation bump makes any timer
// already in flight a no-op.
func (c *Conversation) schedule(d time.Duration) {
	c.cancelTimer()
	if d <= 0 {
		return
	}
	gen := c.generation
	c.timer = c.scheduler.AfterFunc(d, func() {
		c.post(timeoutInput{generation: gen})
	})
}

func (c *Conversation) cancelTimer() {
	c.generation++
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *Conversation) newMessage(kind message.Kind, to string) *message.Message {
	msg := message.New(kind, c.op.Type(), c.id)
	msg.CollectionID = c.settings.CollectionID
	msg.From = c.settings.ClientID
	msg.To = to
	msg.ReplyTo = c.settings.ReplyTo
	msg.AuditTrail = c.auditTrail
	msg.FileID = c.op.FileID()
	return msg
}

func (c *Conversation) send(msg *message.Message) error {
	ctx, cancel := context.WithTimeout(context.Background(), c.sendTimeout)
	defer cancel()
	return c.sender.Send(ctx, msg)
}

func identifyInfo(msg *message.Message) string {
	if msg.ResponseInfo != "" {
		return msg.ResponseInfo
	}
	return string(msg.ResponseCode)
}

func failureInfo(msg *message.Message) string {
	if msg.ResponseInfo != "" {
		return fmt.Sprintf("%s: %s", msg.ResponseCode, msg.ResponseInfo)
	}
	return string(msg.ResponseCode)
}
