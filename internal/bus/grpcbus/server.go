// ABOUTME: Network bus server bridging gRPC publishers and subscribers onto an in-process bus
// ABOUTME: Each Subscribe stream is one bus listener with a bounded outbound buffer

package grpcbus

import (
	"context"
	"errors"
	"log/slog"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/2389/pillarclient/internal/bus"
	"github.com/2389/pillarclient/internal/message"
)

// subscriberBufferSize bounds messages queued for one slow subscriber.
const subscriberBufferSize = 64

// Server implements MessageBusServer on top of a bus.Bus.
type Server struct {
	bus    *bus.Bus
	logger *slog.Logger
}

var _ MessageBusServer = (*Server)(nil)

// NewServer creates a server publishing onto b. Pass nil logger for default.
func NewServer(b *bus.Bus, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{bus: b, logger: logger.With("component", "grpcbus")}
}

// Register adds the bus service to gs.
func (s *Server) Register(gs grpc.ServiceRegistrar) {
	RegisterMessageBusServer(gs, s)
}

// Publish decodes an envelope and sends it on the bus.
func (s *Server) Publish(ctx context.Context, envelope *wrapperspb.BytesValue) (*emptypb.Empty, error) {
	msg, err := message.Decode(envelope.GetValue())
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if err := s.bus.Send(ctx, msg); err != nil {
		switch {
		case errors.Is(err, bus.ErrNoDestination):
			return nil, status.Error(codes.InvalidArgument, err.Error())
		case errors.Is(err, bus.ErrClosed):
			return nil, status.Error(codes.Unavailable, err.Error())
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return nil, status.FromContextError(err).Err()
		default:
			return nil, status.Error(codes.Internal, err.Error())
		}
	}
	return &emptypb.Empty{}, nil
}

// Subscribe streams every message sent to the requested destination until
// the client goes away.
func (s *Server) Subscribe(destination *wrapperspb.StringValue, stream grpc.ServerStream) error {
	dest := destination.GetValue()
	if dest == "" {
		return status.Error(codes.InvalidArgument, "destination is required")
	}
	ctx := stream.Context()
	ch := make(chan *message.Message, subscriberBufferSize)

	unsubscribe := s.bus.Subscribe(dest, bus.ListenerFunc(func(msg *message.Message) {
		select {
		case ch <- msg:
		case <-ctx.Done():
		default:
			s.logger.Warn("subscriber buffer full, dropping message",
				"destination", dest,
				"message", msg.String(),
			)
		}
	}))
	defer unsubscribe()

	if err := stream.SendHeader(metadata.Pairs(subscribedHeader, dest)); err != nil {
		return err
	}
	s.logger.Info("subscriber connected", "destination", dest)
	defer s.logger.Info("subscriber disconnected", "destination", dest)

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-ch:
			data, err := message.Encode(msg)
			if err != nil {
				s.logger.Error("encoding message for subscriber", "destination", dest, "error", err)
				continue
			}
			if err := stream.SendMsg(wrapperspb.Bytes(data)); err != nil {
				return err
			}
		}
	}
}
