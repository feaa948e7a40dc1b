// ABOUTME: Operation events emitted by conversations to an optional observer
// ABOUTME: Immutable tagged values plus the Handler interface observers implement

package event

import (
	"fmt"
	"strings"
	"time"
)

// Type is the tag of an OperationEvent.
type Type string

const (
	IdentifyRequestSent    Type = "identify-request-sent"
	ComponentIdentified    Type = "component-identified"
	IdentificationComplete Type = "identification-complete"
	RequestSent            Type = "request-sent"
	Progress               Type = "progress"
	ComponentComplete      Type = "component-complete"
	Complete               Type = "complete"
	ComponentFailed        Type = "component-failed"
	Failed                 Type = "failed"
	NoComponentFound       Type = "no-component-found"
	IdentifyTimeout        Type = "identify-timeout"
	Warning                Type = "warning"
)

// IsTerminal reports whether the event ends a conversation.
func (t Type) IsTerminal() bool {
	return t == Complete || t == Failed
}

// ContributorResult is the outcome one contributor reported on completion.
type ContributorResult struct {
	ContributorID string
	Payload       any
}

// OperationEvent describes one step of a conversation. Events are values;
// handlers receive a copy and must not rely on sharing it.
type OperationEvent struct {
	Type           Type
	Info           string
	ContributorID  string
	ConversationID string
	Operation      string
	FileID         string
	CollectionID   string
	ResponseCode   string
	Contributors   []string            // selected contributors (identification-complete)
	Results        []ContributorResult // aggregated component results (complete, failed)
	Payload        any                 // operation specific result (component-complete)
	Timestamp      time.Time
}

// String renders the event for logs and the CLI.
func (e OperationEvent) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s [%s]", e.Type, e.ConversationID)
	if e.ContributorID != "" {
		fmt.Fprintf(&b, " %s", e.ContributorID)
	}
	if len(e.Contributors) > 0 {
		fmt.Fprintf(&b, " %v", e.Contributors)
	}
	if e.Info != "" {
		fmt.Fprintf(&b, ": %s", e.Info)
	}
	return b.String()
}

// Handler receives events from a conversation. HandleEvent is called on the
// conversation's own goroutine; implementations must not block for long.
type Handler interface {
	HandleEvent(OperationEvent)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(OperationEvent)

// HandleEvent calls f(e).
func (f HandlerFunc) HandleEvent(e OperationEvent) {
	f(e)
}

// Multi returns a Handler that forwards each event to all non-nil handlers
// in order. It returns nil when no handlers remain.
func Multi(handlers ...Handler) Handler {
	var hs []Handler
	for _, h := range handlers {
		if h != nil {
			hs = append(hs, h)
		}
	}
	switch len(hs) {
	case 0:
		return nil
	case 1:
		return hs[0]
	}
	return multiHandler(hs)
}

type multiHandler []Handler

func (m multiHandler) HandleEvent(e OperationEvent) {
	for _, h := range m {
		h.HandleEvent(e)
	}
}
