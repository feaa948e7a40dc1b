// ABOUTME: Message envelope exchanged between the client and the pillars
// ABOUTME: Defines kinds, operation types, response codes and JSON encoding

package message

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrEmptyBody indicates DecodeBody was called on a message without a body.
var ErrEmptyBody = errors.New("message has no body")

// Kind identifies the protocol step a message belongs to.
type Kind string

const (
	KindIdentifyRequest  Kind = "IdentifyRequest"
	KindIdentifyResponse Kind = "IdentifyResponse"
	KindRequest          Kind = "Request"
	KindProgressResponse Kind = "ProgressResponse"
	KindFinalResponse    Kind = "FinalResponse"
)

// IsResponse reports whether messages of this kind are sent by pillars.
func (k Kind) IsResponse() bool {
	switch k {
	case KindIdentifyResponse, KindProgressResponse, KindFinalResponse:
		return true
	}
	return false
}

// OperationType names the operation a conversation performs.
type OperationType string

const (
	OperationPutFile      OperationType = "PutFile"
	OperationGetFile      OperationType = "GetFile"
	OperationDeleteFile   OperationType = "DeleteFile"
	OperationReplaceFile  OperationType = "ReplaceFile"
	OperationGetChecksums OperationType = "GetChecksums"
	OperationGetFileIDs   OperationType = "GetFileIDs"
	OperationGetStatus    OperationType = "GetStatus"
)

// ValidOperations lists all operation types.
var ValidOperations = []OperationType{
	OperationPutFile,
	OperationGetFile,
	OperationDeleteFile,
	OperationReplaceFile,
	OperationGetChecksums,
	OperationGetFileIDs,
	OperationGetStatus,
}

// ParseOperation converts a string into an OperationType.
func ParseOperation(s string) (OperationType, error) {
	for _, op := range ValidOperations {
		if string(op) == s {
			return op, nil
		}
	}
	return "", fmt.Errorf("unknown operation type %q", s)
}

// Message is the envelope for every request and response on the bus.
// Messages of one conversation share the CorrelationID.
type Message struct {
	ID            string          `json:"id"`
	Kind          Kind            `json:"kind"`
	Operation     OperationType   `json:"operation"`
	CorrelationID string          `json:"correlation_id"`
	CollectionID  string          `json:"collection_id,omitempty"`
	From          string          `json:"from"`
	To            string          `json:"to"`
	ReplyTo       string          `json:"reply_to,omitempty"`
	AuditTrail    string          `json:"audit_trail,omitempty"`
	FileID        string          `json:"file_id,omitempty"`
	ResponseCode  ResponseCode    `json:"response_code,omitempty"`
	ResponseInfo  string          `json:"response_info,omitempty"`
	TimeToDeliver time.Duration   `json:"time_to_deliver,omitempty"`
	Body          json.RawMessage `json:"body,omitempty"`
	Signature     string          `json:"signature,omitempty"`
}

// New creates a message with a fresh ID.
func New(kind Kind, op OperationType, correlationID string) *Message {
	return &Message{
		ID:            uuid.New().String(),
		Kind:          kind,
		Operation:     op,
		CorrelationID: correlationID,
	}
}

// NewResponse creates a response to req sent by the pillar with the given ID.
// The response is addressed to the request's ReplyTo destination.
func NewResponse(req *Message, kind Kind, pillarID, replyTo string) *Message {
	resp := New(kind, req.Operation, req.CorrelationID)
	resp.CollectionID = req.CollectionID
	resp.From = pillarID
	resp.To = req.ReplyTo
	resp.ReplyTo = replyTo
	resp.FileID = req.FileID
	return resp
}

// SetBody encodes v as the message body.
func (m *Message) SetBody(v any) error {
	if v == nil {
		m.Body = nil
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s body: %w", m.Kind, err)
	}
	m.Body = data
	return nil
}

// DecodeBody decodes the message body into v.
func (m *Message) DecodeBody(v any) error {
	if len(m.Body) == 0 {
		return ErrEmptyBody
	}
	if err := json.Unmarshal(m.Body, v); err != nil {
		return fmt.Errorf("decoding %s body: %w", m.Kind, err)
	}
	return nil
}

// Clone returns a copy that shares no mutable state with m.
func (m *Message) Clone() *Message {
	c := *m
	if m.Body != nil {
		c.Body = append(json.RawMessage(nil), m.Body...)
	}
	return &c
}

// String gives a short description for log lines.
func (m *Message) String() string {
	return fmt.Sprintf("%s%s(from=%s to=%s correlation=%s)", m.Operation, m.Kind, m.From, m.To, m.CorrelationID)
}

// Encode serializes the envelope for network transports.
func Encode(m *Message) ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encoding message: %w", err)
	}
	return data, nil
}

// Decode parses an envelope produced by Encode.
func Decode(data []byte) (*Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decoding message: %w", err)
	}
	if m.Kind == "" || m.CorrelationID == "" {
		return nil, fmt.Errorf("decoding message: missing kind or correlation id")
	}
	return &m, nil
}
