// Package grpcbus carries the message bus over gRPC.
//
// A Server wraps an in-process bus.Bus and exposes two calls:
//
//   - Publish: unary, an encoded message envelope in a BytesValue
//   - Subscribe: server stream, a destination name in a StringValue,
//     answered with a stream of encoded envelopes
//
// The service is described by hand with protobuf wrapper types, so no
// generated code is involved. A Client implements the same Send and
// Subscribe contract as bus.Bus, letting clients and pillars run in
// separate processes:
//
//	srv := grpc.NewServer()
//	grpcbus.NewServer(bus.New(logger), logger).Register(srv)
//
//	client, err := grpcbus.Dial(grpcbus.ClientConfig{Address: "localhost:50551"}, logger)
//	unsubscribe := client.Subscribe("client-queue", mediator)
//
// Publishes can be throttled with ClientConfig.PublishRate. A subscriber
// that falls behind by more than 64 messages loses messages, which the
// conversations already tolerate as silent contributors.
package grpcbus
