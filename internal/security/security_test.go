// ABOUTME: Tests for message signing, the signing sender and the verifying listener
// ABOUTME: Also covers bearer token issue and verification for bus connections

package security

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/pillarclient/internal/bus"
	"github.com/2389/pillarclient/internal/message"
)

func newSigner(t *testing.T, secret string) *Signer {
	t.Helper()
	s, err := NewSigner([]byte(secret))
	require.NoError(t, err)
	return s
}

func signedMessage(t *testing.T, s *Signer) *message.Message {
	t.Helper()
	msg := message.New(message.KindFinalResponse, message.OperationPutFile, "conv-1")
	msg.From = "P1"
	msg.To = "client-queue"
	msg.ResponseCode = message.OperationCompleted
	require.NoError(t, msg.SetBody(message.FileResult{Checksum: "abcd"}))
	sig, err := s.Sign(msg)
	require.NoError(t, err)
	msg.Signature = sig
	return msg
}

func TestNewSigner_RequiresSecret(t *testing.T) {
	_, err := NewSigner(nil)
	assert.Error(t, err)
}

func TestSigner_RoundTrip(t *testing.T) {
	s := newSigner(t, "secret")
	msg := signedMessage(t, s)
	assert.NoError(t, s.Verify(msg))
}

func TestSigner_Rejects(t *testing.T) {
	s := newSigner(t, "secret")

	t.Run("unsigned", func(t *testing.T) {
		msg := signedMessage(t, s)
		msg.Signature = ""
		assert.ErrorIs(t, s.Verify(msg), ErrUnsigned)
	})

	t.Run("tampered body", func(t *testing.T) {
		msg := signedMessage(t, s)
		msg.Body = []byte(`{"checksum":"ffff"}`)
		assert.ErrorIs(t, s.Verify(msg), ErrDigestMismatch)
	})

	t.Run("tampered response code", func(t *testing.T) {
		msg := signedMessage(t, s)
		msg.ResponseCode = message.Failure
		assert.ErrorIs(t, s.Verify(msg), ErrDigestMismatch)
	})

	t.Run("spoofed sender", func(t *testing.T) {
		msg := signedMessage(t, s)
		msg.From = "P2"
		assert.ErrorIs(t, s.Verify(msg), ErrInvalidSignature)
	})

	t.Run("other secret", func(t *testing.T) {
		msg := signedMessage(t, newSigner(t, "other"))
		assert.ErrorIs(t, s.Verify(msg), ErrInvalidSignature)
	})

	t.Run("wrong algorithm", func(t *testing.T) {
		msg := signedMessage(t, s)
		token := jwt.NewWithClaims(jwt.SigningMethodHS512, jwt.MapClaims{"sub": "P1", "dig": Digest(msg)})
		sig, err := token.SignedString([]byte("secret"))
		require.NoError(t, err)
		msg.Signature = sig
		assert.ErrorIs(t, s.Verify(msg), ErrInvalidSignature)
	})
}

func TestDigest_CoversEnvelope(t *testing.T) {
	msg := message.New(message.KindRequest, message.OperationGetFile, "conv-1")
	base := Digest(msg)
	assert.Len(t, base, 64)

	changed := msg.Clone()
	changed.FileID = "other"
	assert.NotEqual(t, base, Digest(changed))

	signed := msg.Clone()
	signed.Signature = "anything"
	assert.Equal(t, base, Digest(signed), "the signature itself is not covered")
}

func TestToken(t *testing.T) {
	s := newSigner(t, "secret")

	token, err := s.Token("pillar-1", time.Hour)
	require.NoError(t, err)
	sub, err := s.VerifyToken(token)
	require.NoError(t, err)
	assert.Equal(t, "pillar-1", sub)

	expired, err := s.Token("pillar-1", -time.Minute)
	require.NoError(t, err)
	_, err = s.VerifyToken(expired)
	assert.ErrorIs(t, err, ErrInvalidSignature)

	_, err = s.VerifyToken("garbage")
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

type captureSender struct {
	mu   sync.Mutex
	msgs []*message.Message
}

func (c *captureSender) Send(_ context.Context, msg *message.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, msg)
	return nil
}

func TestSigningSenderAndVerifyingListener(t *testing.T) {
	s := newSigner(t, "secret")
	capture := &captureSender{}
	sender := NewSigningSender(capture, s)

	msg := message.New(message.KindIdentifyRequest, message.OperationGetStatus, "conv-1")
	msg.From = "client"
	msg.To = "collection"
	require.NoError(t, sender.Send(t.Context(), msg))
	assert.Empty(t, msg.Signature, "the caller's message is left alone")
	require.Len(t, capture.msgs, 1)

	var got []*message.Message
	listener := NewVerifyingListener(bus.ListenerFunc(func(m *message.Message) { got = append(got, m) }), s, nil)
	listener.HandleMessage(capture.msgs[0])

	unsigned := msg.Clone()
	listener.HandleMessage(unsigned)

	require.Len(t, got, 1)
	assert.Equal(t, msg.ID, got[0].ID)
}

func TestTokenCredentials(t *testing.T) {
	creds := TokenCredentials{Token: "abc"}
	md, err := creds.GetRequestMetadata(t.Context())
	require.NoError(t, err)
	assert.Equal(t, "Bearer abc", md["authorization"])
	assert.True(t, creds.RequireTransportSecurity())
	assert.False(t, TokenCredentials{Insecure: true}.RequireTransportSecurity())
}

func TestSecureTransport(t *testing.T) {
	b := bus.New(nil)
	defer b.Close()
	s := newSigner(t, "secret")
	secure := NewSecureTransport(b, s, nil)

	got := make(chan *message.Message, 4)
	unsubscribe := secure.Subscribe("queue", bus.ListenerFunc(func(m *message.Message) { got <- m }))
	defer unsubscribe()

	signed := message.New(message.KindIdentifyResponse, message.OperationGetStatus, "conv-1")
	signed.From = "P1"
	signed.To = "queue"
	require.NoError(t, secure.Send(t.Context(), signed))

	unsigned := signed.Clone()
	unsigned.ID = "unsigned"
	require.NoError(t, b.Send(t.Context(), unsigned))

	select {
	case m := <-got:
		assert.Equal(t, signed.ID, m.ID)
		assert.NotEmpty(t, m.Signature)
	case <-time.After(time.Second):
		t.Fatal("signed message not delivered")
	}
	select {
	case m := <-got:
		t.Fatalf("unsigned message delivered: %s", m.ID)
	case <-time.After(50 * time.Millisecond):
	}
}
