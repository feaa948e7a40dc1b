// ABOUTME: Converts conversation transitions into logged, ordered operation events
// ABOUTME: Guarantees a single terminal event and ends the conversation when it is sent

package conversation

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/2389/pillarclient/internal/event"
	"github.com/2389/pillarclient/internal/message"
)

// MonitorParams configures a Monitor.
type MonitorParams struct {
	ConversationID string
	CollectionID   string
	Operation      message.OperationType
	FileID         string
	Handler        event.Handler
	Logger         *slog.Logger
	// TolerateComponentFailures makes Complete report complete even when
	// contributors reported failures.
	TolerateComponentFailures bool
	// OnEnd is called once, after the terminal event has been delivered.
	OnEnd func(event.OperationEvent)
}

// Monitor is the single place events are produced for a conversation. Every
// event is logged and, when a Handler is registered, delivered synchronously.
// Exactly one of complete or failed is delivered and it is always the last
// event; later calls are logged and dropped.
// Monitor is not safe for concurrent use; the conversation serializes calls.
type Monitor struct {
	conversationID string
	collectionID   string
	operation      message.OperationType
	fileID         string
	handler        event.Handler
	logger         *slog.Logger
	tolerate       bool
	onEnd          func(event.OperationEvent)

	results  []event.ContributorResult
	failures []string
	ended    bool
}

// NewMonitor creates a Monitor.
func NewMonitor(p MonitorParams) *Monitor {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	short := ShortID(p.ConversationID)
	return &Monitor{
		conversationID: short,
		collectionID:   p.CollectionID,
		operation:      p.Operation,
		fileID:         p.FileID,
		handler:        p.Handler,
		logger:         logger.With("conversation_id", short, "operation", string(p.Operation)),
		tolerate:       p.TolerateComponentFailures,
		onEnd:          p.OnEnd,
	}
}

// IdentifyRequestSent reports that the identify broadcast went out.
func (m *Monitor) IdentifyRequestSent(info string) {
	m.notify(event.OperationEvent{Type: event.IdentifyRequestSent, Info: info})
}

// ComponentIdentified reports a positive identify response.
func (m *Monitor) ComponentIdentified(contributorID, info string) {
	m.notify(event.OperationEvent{Type: event.ComponentIdentified, ContributorID: contributorID, Info: info})
}

// ComponentDeclined reports a negative identify response from a contributor
// the operation does not depend on.
func (m *Monitor) ComponentDeclined(contributorID, info string, code message.ResponseCode) {
	m.notify(event.OperationEvent{
		Type:          event.Warning,
		ContributorID: contributorID,
		Info:          "declined: " + info,
		ResponseCode:  string(code),
	})
}

// IdentificationComplete reports the contributors selected for the operation.
func (m *Monitor) IdentificationComplete(selected []string) {
	m.notify(event.OperationEvent{
		Type:         event.IdentificationComplete,
		Info:         fmt.Sprintf("selected %d contributor(s)", len(selected)),
		Contributors: selected,
	})
}

// IdentifyTimeout reports that identification ended without all answers.
func (m *Monitor) IdentifyTimeout(unresponsive []string) {
	info := "time has run out for looking up contributors"
	if len(unresponsive) > 0 {
		info += fmt.Sprintf("; no response from %s", strings.Join(unresponsive, ", "))
	}
	m.notify(event.OperationEvent{Type: event.IdentifyTimeout, Info: info, Contributors: unresponsive})
}

// NoComponentFound reports that no contributor can perform the operation.
func (m *Monitor) NoComponentFound(info string) {
	m.notify(event.OperationEvent{Type: event.NoComponentFound, Info: info})
}

// RequestSent reports that the operation request went to a contributor.
func (m *Monitor) RequestSent(contributorID, info string) {
	m.notify(event.OperationEvent{Type: event.RequestSent, ContributorID: contributorID, Info: info})
}

// Progress reports a progress response.
func (m *Monitor) Progress(contributorID, info string) {
	m.notify(event.OperationEvent{Type: event.Progress, ContributorID: contributorID, Info: info})
}

// ComponentComplete reports a contributor finishing successfully.
func (m *Monitor) ComponentComplete(contributorID, info string, payload any) {
	if m.ended {
		m.dropped(event.ComponentComplete)
		return
	}
	m.results = append(m.results, event.ContributorResult{ContributorID: contributorID, Payload: payload})
	m.notify(event.OperationEvent{
		Type:          event.ComponentComplete,
		ContributorID: contributorID,
		Info:          info,
		Payload:       payload,
	})
}

// ComponentFailed reports a contributor failure and records it for the
// final verdict.
func (m *Monitor) ComponentFailed(contributorID, info string, code message.ResponseCode) {
	if m.ended {
		m.dropped(event.ComponentFailed)
		return
	}
	m.failures = append(m.failures, fmt.Sprintf("%s: %s", contributorID, info))
	m.notify(event.OperationEvent{
		Type:          event.ComponentFailed,
		ContributorID: contributorID,
		Info:          info,
		ResponseCode:  string(code),
	})
}

// Warning reports a non-fatal problem.
func (m *Monitor) Warning(info string) {
	m.notify(event.OperationEvent{Type: event.Warning, Info: info})
}

// InvalidMessage reports a message that could not be used, such as a duplicate.
func (m *Monitor) InvalidMessage(msg *message.Message, err error) {
	m.logger.Warn("invalid message", "message", msg.String(), "error", err)
	m.notify(event.OperationEvent{Type: event.Warning, ContributorID: msg.From, Info: err.Error()})
}

// OutOfSequence logs a message the current state cannot handle.
func (m *Monitor) OutOfSequence(msg *message.Message, state State) {
	m.logger.Warn("out of sequence message",
		"message", msg.String(),
		"state", state.String(),
	)
}

// Complete ends the conversation. It emits failed instead of complete when
// contributor failures were recorded, unless they are tolerated.
func (m *Monitor) Complete() {
	if len(m.failures) > 0 && !m.tolerate {
		m.terminate(event.OperationEvent{
			Type: event.Failed,
			Info: "failed operation, cause(s): " + strings.Join(m.failures, "; "),
		})
		return
	}
	info := "operation complete"
	if len(m.failures) > 0 {
		info += fmt.Sprintf(" with %d contributor failure(s)", len(m.failures))
	}
	m.terminate(event.OperationEvent{Type: event.Complete, Info: info})
}

// OperationFailed ends the conversation with a failure.
func (m *Monitor) OperationFailed(info string) {
	m.terminate(event.OperationEvent{Type: event.Failed, Info: info})
}

// Ended reports whether the terminal event has been emitted.
func (m *Monitor) Ended() bool {
	return m.ended
}

func (m *Monitor) terminate(e event.OperationEvent) {
	if m.ended {
		m.dropped(e.Type)
		return
	}
	e.Results = append([]event.ContributorResult(nil), m.results...)
	e = m.decorate(e)
	m.notify(e)
	m.ended = true
	if m.onEnd != nil {
		m.onEnd(e)
	}
}

func (m *Monitor) notify(e event.OperationEvent) {
	if m.ended {
		m.dropped(e.Type)
		return
	}
	e = m.decorate(e)
	m.log(e)
	if m.handler != nil {
		m.handler.HandleEvent(e)
	}
}

func (m *Monitor) decorate(e event.OperationEvent) event.OperationEvent {
	e.ConversationID = m.conversationID
	e.CollectionID = m.collectionID
	e.Operation = string(m.operation)
	e.FileID = m.fileID
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	return e
}

func (m *Monitor) log(e event.OperationEvent) {
	attrs := []any{"event", string(e.Type)}
	if e.ContributorID != "" {
		attrs = append(attrs, "contributor_id", e.ContributorID)
	}
	if e.Info != "" {
		attrs = append(attrs, "info", e.Info)
	}
	switch e.Type {
	case event.Failed, event.ComponentFailed, event.NoComponentFound, event.IdentifyTimeout, event.Warning:
		m.logger.Warn("conversation event", attrs...)
	case event.Progress:
		m.logger.Debug("conversation event", attrs...)
	default:
		m.logger.Info("conversation event", attrs...)
	}
}

func (m *Monitor) dropped(t event.Type) {
	m.logger.Debug("dropping event after conversation ended", "event", string(t))
}

// ShortID shortens a conversation ID for logs: the part before the first
// '-' found after the fourth character.
func ShortID(id string) string {
	if len(id) > 4 {
		if i := strings.IndexByte(id[4:], '-'); i >= 0 {
			return id[:4+i]
		}
	}
	return id
}
