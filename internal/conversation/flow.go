// ABOUTME: Synchronous wait-for-completion wrapper over the event-driven conversation
// ABOUTME: Blocks the calling goroutine only; the conversation keeps running on timeout

package conversation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/2389/pillarclient/internal/event"
)

var (
	// ErrConversationTimedOut is returned when the caller stops waiting
	// before the conversation finished.
	ErrConversationTimedOut = errors.New("conversation timed out")
	// ErrOperationFailed is returned when the conversation ended with a
	// failed event.
	ErrOperationFailed = errors.New("operation failed")
)

// FlowController lets a caller block until a conversation finishes.
type FlowController struct {
	conv *Conversation
}

// NewFlowController wraps conv.
func NewFlowController(conv *Conversation) *FlowController {
	return &FlowController{conv: conv}
}

// Wait blocks until the conversation finishes or ctx is done. It returns
// the terminal event; a failed event is returned together with an error
// wrapping ErrOperationFailed.
func (f *FlowController) Wait(ctx context.Context) (event.OperationEvent, error) {
	select {
	case <-f.conv.Done():
	case <-ctx.Done():
		return event.OperationEvent{}, fmt.Errorf("%w: %s after %s: %w",
			ErrConversationTimedOut, ShortID(f.conv.ID()), time.Since(f.conv.StartedAt()).Round(time.Millisecond), ctx.Err())
	}
	terminal := f.conv.Terminal()
	if terminal.Type == event.Failed {
		return terminal, fmt.Errorf("%w: %s", ErrOperationFailed, terminal.Info)
	}
	return terminal, nil
}

// AwaitCompletion is Wait bounded by timeout.
func (f *FlowController) AwaitCompletion(timeout time.Duration) (event.OperationEvent, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return f.Wait(ctx)
}
