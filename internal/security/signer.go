// ABOUTME: HS256 message signatures over a SHA-256 digest of the envelope
// ABOUTME: Signs outgoing messages and verifies incoming ones before they reach a conversation

package security

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/2389/pillarclient/internal/message"
)

// Signature errors
var (
	ErrUnsigned         = errors.New("message is not signed")
	ErrInvalidSignature = errors.New("invalid signature")
	ErrDigestMismatch   = errors.New("message digest does not match signature")
)

const digestClaim = "dig"

// Signer signs and verifies messages with a shared secret. It is safe for
// concurrent use.
type Signer struct {
	secret []byte
	now    func() time.Time
}

// NewSigner creates a signer for secret.
func NewSigner(secret []byte) (*Signer, error) {
	if len(secret) == 0 {
		return nil, errors.New("signing secret must not be empty")
	}
	return &Signer{secret: secret, now: time.Now}, nil
}

// Digest is the hex SHA-256 over the fields a signature covers.
func Digest(msg *message.Message) string {
	h := sha256.New()
	for _, field := range []string{
		msg.ID,
		string(msg.Kind),
		string(msg.Operation),
		msg.CorrelationID,
		msg.CollectionID,
		msg.From,
		msg.To,
		msg.ReplyTo,
		msg.FileID,
		string(msg.ResponseCode),
	} {
		h.Write([]byte(field))
		h.Write([]byte{0})
	}
	h.Write(msg.Body)
	return hex.EncodeToString(h.Sum(nil))
}

// Sign returns a signature for msg. The message itself is not changed.
func (s *Signer) Sign(msg *message.Message) (string, error) {
	claims := jwt.MapClaims{
		"sub":       msg.From,
		"iat":       s.now().Unix(),
		digestClaim: Digest(msg),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("signing %s: %w", msg, err)
	}
	return signed, nil
}

// Verify checks that msg carries a valid signature from its From sender.
func (s *Signer) Verify(msg *message.Message) error {
	if msg.Signature == "" {
		return ErrUnsigned
	}
	token, err := jwt.Parse(msg.Signature, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return ErrInvalidSignature
	}
	if sub, _ := claims["sub"].(string); sub != msg.From {
		return fmt.Errorf("%w: signed by %q, sent by %q", ErrInvalidSignature, sub, msg.From)
	}
	dig, _ := claims[digestClaim].(string)
	if subtle.ConstantTimeCompare([]byte(dig), []byte(Digest(msg))) != 1 {
		return ErrDigestMismatch
	}
	return nil
}

// Token issues a bearer token identifying subject, used to authenticate
// bus connections.
func (s *Signer) Token(subject string, expiresIn time.Duration) (string, error) {
	now := s.now()
	claims := jwt.MapClaims{
		"sub": subject,
		"iat": now.Unix(),
		"exp": now.Add(expiresIn).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// VerifyToken validates a bearer token and returns its subject.
func (s *Signer) VerifyToken(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(*jwt.Token) (any, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", ErrInvalidSignature
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return "", fmt.Errorf("%w: missing sub", ErrInvalidSignature)
	}
	return sub, nil
}
