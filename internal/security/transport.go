// ABOUTME: Sender and listener wrappers that apply message signatures
// ABOUTME: Unsigned or tampered inbound messages are dropped with a warning

package security

import (
	"context"
	"log/slog"

	"github.com/2389/pillarclient/internal/bus"
	"github.com/2389/pillarclient/internal/conversation"
	"github.com/2389/pillarclient/internal/message"
)

// SigningSender signs every message before handing it to the next sender.
type SigningSender struct {
	next   conversation.Sender
	signer *Signer
}

// NewSigningSender wraps next.
func NewSigningSender(next conversation.Sender, signer *Signer) *SigningSender {
	return &SigningSender{next: next, signer: signer}
}

// Send signs a copy of msg and sends it.
func (s *SigningSender) Send(ctx context.Context, msg *message.Message) error {
	signed := msg.Clone()
	signed.Signature = ""
	sig, err := s.signer.Sign(signed)
	if err != nil {
		return err
	}
	signed.Signature = sig
	return s.next.Send(ctx, signed)
}

// VerifyingListener forwards only messages with a valid signature.
type VerifyingListener struct {
	next   bus.Listener
	signer *Signer
	logger *slog.Logger
}

// NewVerifyingListener wraps next. Pass nil logger for default.
func NewVerifyingListener(next bus.Listener, signer *Signer, logger *slog.Logger) *VerifyingListener {
	if logger == nil {
		logger = slog.Default()
	}
	return &VerifyingListener{next: next, signer: signer, logger: logger.With("component", "security")}
}

// HandleMessage verifies msg and forwards it.
func (l *VerifyingListener) HandleMessage(msg *message.Message) {
	if err := l.signer.Verify(msg); err != nil {
		l.logger.Warn("dropping message with bad signature",
			"message", msg.String(),
			"message_id", msg.ID,
			"error", err,
		)
		return
	}
	l.next.HandleMessage(msg)
}

// SecureTransport signs outbound messages and verifies inbound ones on top
// of another transport.
type SecureTransport struct {
	next   bus.Transport
	sender *SigningSender
	signer *Signer
	logger *slog.Logger
}

// NewSecureTransport wraps next. Pass nil logger for default.
func NewSecureTransport(next bus.Transport, signer *Signer, logger *slog.Logger) *SecureTransport {
	return &SecureTransport{
		next:   next,
		sender: NewSigningSender(next, signer),
		signer: signer,
		logger: logger,
	}
}

// Send signs and sends msg.
func (t *SecureTransport) Send(ctx context.Context, msg *message.Message) error {
	return t.sender.Send(ctx, msg)
}

// Subscribe subscribes l behind a VerifyingListener.
func (t *SecureTransport) Subscribe(destination string, l bus.Listener) func() {
	return t.next.Subscribe(destination, NewVerifyingListener(l, t.signer, t.logger))
}
