// ABOUTME: Operation policy contract injected into the generic conversation engine
// ABOUTME: Supplies message bodies, the selector policy and final response evaluation

package conversation

import (
	"errors"

	"github.com/2389/pillarclient/internal/message"
)

// ErrAbort can be wrapped by Operation.EvaluateFinal to fail the whole
// conversation instead of only the responding contributor.
var ErrAbort = errors.New("conversation aborted")

// Operation is the per-operation policy a Conversation runs with. The engine
// owns sequencing, bookkeeping and timeouts; an Operation only describes
// what is sent and how responses are judged.
type Operation interface {
	// Type is the operation the messages are tagged with.
	Type() message.OperationType
	// FileID is the file the operation targets, or empty.
	FileID() string
	// IdentifyBody is the body of the identify broadcast, or nil.
	IdentifyBody() any
	// RequestBody is the body of the request sent to a selected contributor.
	RequestBody(contributorID string) any
	// NewSelector creates the selection policy over the candidate set.
	NewSelector(candidates []string) Selector
	// EvaluateFinal inspects a successful final response. A non-nil error
	// marks the contributor as failed; errors wrapping ErrAbort fail the
	// conversation. The returned payload is attached to the
	// component-complete event.
	EvaluateFinal(resp *message.Message) (any, error)
}
