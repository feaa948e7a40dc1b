// ABOUTME: gRPC interceptors and credentials for bearer tokens on bus connections
// ABOUTME: Rejects calls without a valid token; identity checks only, no permissions

package security

import (
	"context"
	"log/slog"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

const authorizationKey = "authorization"

type subjectKey struct{}

// SubjectFromContext returns the token subject stored by the interceptors.
func SubjectFromContext(ctx context.Context) (string, bool) {
	sub, ok := ctx.Value(subjectKey{}).(string)
	return sub, ok
}

func (s *Signer) authenticate(ctx context.Context, logger *slog.Logger) (context.Context, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		logAuthFailure(ctx, logger, "no metadata")
		return nil, status.Error(codes.Unauthenticated, "missing metadata")
	}
	values := md.Get(authorizationKey)
	if len(values) == 0 {
		logAuthFailure(ctx, logger, "no authorization header")
		return nil, status.Error(codes.Unauthenticated, "missing authorization")
	}
	token, found := strings.CutPrefix(values[0], "Bearer ")
	if !found {
		logAuthFailure(ctx, logger, "malformed authorization header")
		return nil, status.Error(codes.Unauthenticated, "authorization must be a bearer token")
	}
	sub, err := s.VerifyToken(token)
	if err != nil {
		logAuthFailure(ctx, logger, "invalid token", "error", err)
		return nil, status.Error(codes.Unauthenticated, "invalid token")
	}
	return context.WithValue(ctx, subjectKey{}, sub), nil
}

func logAuthFailure(ctx context.Context, logger *slog.Logger, reason string, attrs ...any) {
	base := []any{"reason", reason}
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		base = append(base, "peer_addr", p.Addr.String())
	}
	logger.Warn("bus auth failure", append(base, attrs...)...)
}

// UnaryInterceptor authenticates unary calls.
func (s *Signer) UnaryInterceptor(logger *slog.Logger) grpc.UnaryServerInterceptor {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, req any, _ *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		ctx, err := s.authenticate(ctx, logger)
		if err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

// StreamInterceptor authenticates streaming calls.
func (s *Signer) StreamInterceptor(logger *slog.Logger) grpc.StreamServerInterceptor {
	if logger == nil {
		logger = slog.Default()
	}
	return func(srv any, ss grpc.ServerStream, _ *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		ctx, err := s.authenticate(ss.Context(), logger)
		if err != nil {
			return err
		}
		return handler(srv, &wrappedServerStream{ServerStream: ss, ctx: ctx})
	}
}

type wrappedServerStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (w *wrappedServerStream) Context() context.Context { return w.ctx }

// TokenCredentials attaches a bearer token to every call.
type TokenCredentials struct {
	Token string
	// Insecure allows the token over plaintext connections.
	Insecure bool
}

// GetRequestMetadata implements credentials.PerRPCCredentials.
func (c TokenCredentials) GetRequestMetadata(context.Context, ...string) (map[string]string, error) {
	return map[string]string{authorizationKey: "Bearer " + c.Token}, nil
}

// RequireTransportSecurity implements credentials.PerRPCCredentials.
func (c TokenCredentials) RequireTransportSecurity() bool { return !c.Insecure }
