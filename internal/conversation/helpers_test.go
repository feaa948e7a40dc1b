// ABOUTME: Shared fakes for conversation tests: manual scheduler, sender, recorder
// ABOUTME: Lets tests drive timeouts and responses deterministically

package conversation

import (
	"context"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/2389/pillarclient/internal/event"
	"github.com/2389/pillarclient/internal/message"
)

const testOp = message.OperationGetChecksums

type manualTimer struct {
	s       *manualScheduler
	d       time.Duration
	f       func()
	stopped bool
	fired   bool
}

func (t *manualTimer) Stop() bool {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

func (t *manualTimer) state() (stopped, fired bool) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	return t.stopped, t.fired
}

// manualScheduler never fires on its own; tests fire timers explicitly.
type manualScheduler struct {
	mu     sync.Mutex
	timers []*manualTimer
}

func (s *manualScheduler) AfterFunc(d time.Duration, f func()) Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &manualTimer{s: s, d: d, f: f}
	s.timers = append(s.timers, t)
	return t
}

func (s *manualScheduler) pending() []*manualTimer {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*manualTimer
	for _, t := range s.timers {
		if !t.stopped && !t.fired {
			out = append(out, t)
		}
	}
	return out
}

func (s *manualScheduler) all() []*manualTimer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.timers)
}

// fire runs the timer callback even if it was stopped, like a timer that
// lost the race with Stop.
func (s *manualScheduler) fire(t *manualTimer) {
	s.mu.Lock()
	t.fired = true
	s.mu.Unlock()
	t.f()
}

func (s *manualScheduler) waitPending(t *testing.T, n int) []*manualTimer {
	t.Helper()
	require.Eventually(t, func() bool { return len(s.pending()) == n }, time.Second, time.Millisecond)
	return s.pending()
}

type fakeSender struct {
	mu   sync.Mutex
	sent []*message.Message
	fail func(*message.Message) error
}

func (s *fakeSender) Send(_ context.Context, msg *message.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		if err := s.fail(msg); err != nil {
			return err
		}
	}
	s.sent = append(s.sent, msg.Clone())
	return nil
}

func (s *fakeSender) messages() []*message.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.sent)
}

func (s *fakeSender) waitSent(t *testing.T, n int) []*message.Message {
	t.Helper()
	require.Eventually(t, func() bool { return len(s.messages()) >= n }, time.Second, time.Millisecond)
	return s.messages()
}

type recorder struct {
	mu     sync.Mutex
	events []event.OperationEvent
}

func (r *recorder) HandleEvent(e event.OperationEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) all() []event.OperationEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.events)
}

func (r *recorder) types() []event.Type {
	var out []event.Type
	for _, e := range r.all() {
		out = append(out, e.Type)
	}
	return out
}

func (r *recorder) count(typ event.Type) int {
	n := 0
	for _, e := range r.all() {
		if e.Type == typ {
			n++
		}
	}
	return n
}

func (r *recorder) waitCount(t *testing.T, typ event.Type, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return r.count(typ) >= n }, time.Second, time.Millisecond,
		"waiting for %d %s event(s), have %v", n, typ, r.types())
}

type testOperation struct {
	selector func([]string) Selector
	evaluate func(*message.Message) (any, error)
}

func (o *testOperation) Type() message.OperationType { return testOp }

func (o *testOperation) FileID() string { return "file-1" }

func (o *testOperation) IdentifyBody() any { return nil }

func (o *testOperation) RequestBody(contributorID string) any {
	return map[string]string{"contributor": contributorID}
}

func (o *testOperation) NewSelector(candidates []string) Selector {
	if o.selector != nil {
		return o.selector(candidates)
	}
	return AllContributors(candidates)
}

func (o *testOperation) EvaluateFinal(resp *message.Message) (any, error) {
	if o.evaluate != nil {
		return o.evaluate(resp)
	}
	return resp.ResponseInfo, nil
}

type harness struct {
	conv      *Conversation
	sender    *fakeSender
	scheduler *manualScheduler
	events    *recorder
}

func newHarness(t *testing.T, contributors []string, op Operation, mutate ...func(*Params)) *harness {
	t.Helper()
	h := &harness{
		sender:    &fakeSender{},
		scheduler: &manualScheduler{},
		events:    &recorder{},
	}
	if op == nil {
		op = &testOperation{}
	}
	p := Params{
		ID: "conv-1234-abcd",
		Settings: Settings{
			CollectionID:     "books",
			ClientID:         "client-1",
			ReplyTo:          "client-1-queue",
			Destination:      "collection-books",
			Contributors:     contributors,
			IdentifyTimeout:  2 * time.Second,
			OperationTimeout: 2 * time.Second,
		},
		Operation: op,
		Sender:    h.sender,
		Handler:   h.events,
		Scheduler: h.scheduler,
	}
	for _, m := range mutate {
		m(&p)
	}
	conv, err := New(p)
	require.NoError(t, err)
	h.conv = conv
	return h
}

func (h *harness) identify(from string, code message.ResponseCode) {
	msg := message.New(message.KindIdentifyResponse, testOp, h.conv.ID())
	msg.From = from
	msg.ReplyTo = from + "-queue"
	msg.ResponseCode = code
	h.conv.HandleMessage(msg)
}

func (h *harness) final(from string, code message.ResponseCode, info string) {
	msg := message.New(message.KindFinalResponse, testOp, h.conv.ID())
	msg.From = from
	msg.ResponseCode = code
	msg.ResponseInfo = info
	h.conv.HandleMessage(msg)
}

func (h *harness) progress(from, info string) {
	msg := message.New(message.KindProgressResponse, testOp, h.conv.ID())
	msg.From = from
	msg.ResponseCode = message.OperationAcceptedProgress
	msg.ResponseInfo = info
	h.conv.HandleMessage(msg)
}

func (h *harness) waitDone(t *testing.T) event.OperationEvent {
	t.Helper()
	select {
	case <-h.conv.Done():
		return h.conv.Terminal()
	case <-time.After(2 * time.Second):
		t.Fatalf("conversation did not finish, events: %v", h.events.types())
		return event.OperationEvent{}
	}
}
