// ABOUTME: Tests for the event monitor and the flow controller
// ABOUTME: Covers single terminal delivery, verdict aggregation and blocking waits

package conversation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/pillarclient/internal/event"
	"github.com/2389/pillarclient/internal/message"
)

func TestShortID(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"ad2c9f1e-4b1a-4b77-9a53-5d6b2f1c8e0a", "ad2c9f1e"},
		{"conv-1234", "conv"},
		{"abc-def", "abc-def"},
		{"nodashes", "nodashes"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ShortID(tt.in))
		})
	}
}

func TestMonitor_SingleTerminalEvent(t *testing.T) {
	rec := &recorder{}
	var ended []event.OperationEvent
	m := NewMonitor(MonitorParams{
		ConversationID: "abcdefgh-1234",
		Operation:      message.OperationPutFile,
		Handler:        rec,
		OnEnd:          func(e event.OperationEvent) { ended = append(ended, e) },
	})

	m.RequestSent("P1", "sent")
	m.ComponentComplete("P1", "ok", "sum")
	m.Complete()
	m.OperationFailed("late")
	m.Complete()
	m.Progress("P1", "late progress")
	m.ComponentFailed("P1", "late failure", message.Failure)

	assert.True(t, m.Ended())
	assert.Equal(t, []event.Type{event.RequestSent, event.ComponentComplete, event.Complete}, rec.types())
	require.Len(t, ended, 1)
	assert.Equal(t, event.Complete, ended[0].Type)
	assert.Equal(t, "abcdefgh", ended[0].ConversationID)
	assert.Equal(t, rec.all()[2].Timestamp, ended[0].Timestamp)
	require.Len(t, ended[0].Results, 1)
	assert.Equal(t, "sum", ended[0].Results[0].Payload)
}

func TestMonitor_EventFields(t *testing.T) {
	rec := &recorder{}
	m := NewMonitor(MonitorParams{
		ConversationID: "abcdefgh-1234",
		CollectionID:   "books",
		Operation:      message.OperationDeleteFile,
		FileID:         "f1",
		Handler:        rec,
	})
	m.ComponentFailed("P1", "checksum mismatch", message.ExistingFileChecksumFailure)
	m.OperationFailed("gave up")

	want := []event.OperationEvent{
		{
			Type:          event.ComponentFailed,
			Info:          "checksum mismatch",
			ContributorID: "P1",
			ResponseCode:  string(message.ExistingFileChecksumFailure),
		},
		{Type: event.Failed, Info: "gave up"},
	}
	for i := range want {
		want[i].ConversationID = "abcdefgh"
		want[i].CollectionID = "books"
		want[i].Operation = string(message.OperationDeleteFile)
		want[i].FileID = "f1"
	}
	got := rec.all()
	if diff := cmp.Diff(want, got, cmpopts.IgnoreFields(event.OperationEvent{}, "Timestamp"), cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}
	for _, e := range got {
		assert.False(t, e.Timestamp.IsZero())
	}
}

func TestMonitor_CompleteWithFailures(t *testing.T) {
	rec := &recorder{}
	m := NewMonitor(MonitorParams{ConversationID: "c", Handler: rec})
	m.ComponentFailed("P1", "checksum mismatch", message.NewFileChecksumFailure)
	m.ComponentComplete("P2", "", nil)
	m.Complete()

	events := rec.all()
	terminal := events[len(events)-1]
	assert.Equal(t, event.Failed, terminal.Type)
	assert.Contains(t, terminal.Info, "P1: checksum mismatch")
	assert.Equal(t, string(message.NewFileChecksumFailure), events[0].ResponseCode)
}

func TestMonitor_WithoutHandler(t *testing.T) {
	m := NewMonitor(MonitorParams{ConversationID: "c"})
	m.Warning("nobody listens")
	m.OperationFailed("still ends")
	assert.True(t, m.Ended())
}

func TestFlowController_WaitComplete(t *testing.T) {
	h := newHarness(t, []string{"P1"}, nil)
	flow := NewFlowController(h.conv)
	h.conv.Start()
	h.identify("P1", message.IdentificationPositive)
	h.sender.waitSent(t, 2)

	go h.final("P1", message.OperationCompleted, "")
	terminal, err := flow.Wait(t.Context())
	require.NoError(t, err)
	assert.Equal(t, event.Complete, terminal.Type)
}

func TestFlowController_WaitFailed(t *testing.T) {
	h := newHarness(t, []string{"P1"}, nil)
	h.conv.Start()
	h.conv.Fail("broken")

	terminal, err := NewFlowController(h.conv).AwaitCompletion(time.Second)
	require.ErrorIs(t, err, ErrOperationFailed)
	assert.Equal(t, event.Failed, terminal.Type)
	assert.Contains(t, err.Error(), "broken")
}

func TestFlowController_TimeoutLeavesConversationRunning(t *testing.T) {
	h := newHarness(t, []string{"P1"}, nil)
	h.conv.Start()
	h.sender.waitSent(t, 1)

	_, err := NewFlowController(h.conv).AwaitCompletion(20 * time.Millisecond)
	require.ErrorIs(t, err, ErrConversationTimedOut)
	assert.False(t, h.conv.HasEnded())

	h.identify("P1", message.IdentificationPositive)
	h.sender.waitSent(t, 2)
	h.final("P1", message.OperationCompleted, "")
	assert.Equal(t, event.Complete, h.waitDone(t).Type)
}

func TestFlowController_ContextCancelled(t *testing.T) {
	h := newHarness(t, []string{"P1"}, nil)
	h.conv.Start()

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	_, err := NewFlowController(h.conv).Wait(ctx)
	require.ErrorIs(t, err, ErrConversationTimedOut)
	assert.True(t, errors.Is(err, context.Canceled))
}
