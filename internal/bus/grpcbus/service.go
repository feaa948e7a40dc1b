// ABOUTME: gRPC service description for the network message bus
// ABOUTME: Hand-written over protobuf wrapper types so no generated code is needed

package grpcbus

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	serviceName     = "pillarclient.bus.MessageBus"
	publishMethod   = "/" + serviceName + "/Publish"
	subscribeMethod = "/" + serviceName + "/Subscribe"

	// subscribedHeader is sent once the server-side subscription exists.
	subscribedHeader = "x-bus-subscribed"
)

// MessageBusServer is the server side of the bus service. Publish takes an
// encoded message envelope; Subscribe takes a destination name and streams
// encoded envelopes sent to it.
type MessageBusServer interface {
	Publish(ctx context.Context, envelope *wrapperspb.BytesValue) (*emptypb.Empty, error)
	Subscribe(destination *wrapperspb.StringValue, stream grpc.ServerStream) error
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*MessageBusServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Publish", Handler: publishHandler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "Subscribe", Handler: subscribeHandler, ServerStreams: true},
	},
	Metadata: "pillarclient/bus.proto",
}

var subscribeStreamDesc = grpc.StreamDesc{StreamName: "Subscribe", ServerStreams: true}

// RegisterMessageBusServer registers srv on s.
func RegisterMessageBusServer(s grpc.ServiceRegistrar, srv MessageBusServer) {
	s.RegisterService(&serviceDesc, srv)
}

func publishHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.BytesValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(MessageBusServer).Publish(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: publishMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(MessageBusServer).Publish(ctx, req.(*wrapperspb.BytesValue))
	}
	return interceptor(ctx, in, info, handler)
}

func subscribeHandler(srv any, stream grpc.ServerStream) error {
	in := new(wrapperspb.StringValue)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(MessageBusServer).Subscribe(in, stream)
}
