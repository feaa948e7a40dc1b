// ABOUTME: Tests for the gRPC bus over an in-memory bufconn listener
// ABOUTME: Covers publish and subscribe, error codes, auth interceptors and rate limiting

package grpcbus

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/2389/pillarclient/internal/bus"
	"github.com/2389/pillarclient/internal/message"
	"github.com/2389/pillarclient/internal/security"
)

type testEnv struct {
	lis *bufconn.Listener
	bus *bus.Bus
}

func startServer(t *testing.T, opts ...grpc.ServerOption) *testEnv {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	b := bus.New(nil)
	gs := grpc.NewServer(opts...)
	NewServer(b, nil).Register(gs)
	go func() { _ = gs.Serve(lis) }()
	t.Cleanup(func() {
		gs.Stop()
		b.Close()
	})
	return &testEnv{lis: lis, bus: b}
}

func (e *testEnv) dial(t *testing.T, cfg ClientConfig, extra ...grpc.DialOption) *Client {
	t.Helper()
	opts := []grpc.DialOption{
		grpc.WithContextDialer(func(context.Context, string) (net.Conn, error) { return e.lis.Dial() }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	}
	cfg.Address = "passthrough:///bufnet"
	cfg.DialOptions = append(opts, extra...)
	c, err := Dial(cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

type inbox struct {
	mu   sync.Mutex
	msgs []*message.Message
}

func (i *inbox) HandleMessage(msg *message.Message) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.msgs = append(i.msgs, msg)
}

func (i *inbox) all() []*message.Message {
	i.mu.Lock()
	defer i.mu.Unlock()
	return append([]*message.Message(nil), i.msgs...)
}

func newMessage(to string) *message.Message {
	msg := message.New(message.KindRequest, message.OperationGetFileIDs, "conv-1")
	msg.From = "client"
	msg.To = to
	return msg
}

func TestClient_PublishSubscribe(t *testing.T) {
	env := startServer(t)
	pillar := env.dial(t, ClientConfig{})
	client := env.dial(t, ClientConfig{})

	got := &inbox{}
	unsubscribe := pillar.Subscribe("pillar-1", got)
	defer unsubscribe()

	msg := newMessage("pillar-1")
	require.NoError(t, msg.SetBody(message.GetFileIDsRequest{}))
	require.NoError(t, client.Send(t.Context(), msg))

	require.Eventually(t, func() bool { return len(got.all()) == 1 }, 2*time.Second, 5*time.Millisecond)
	delivered := got.all()[0]
	assert.Equal(t, msg.ID, delivered.ID)
	assert.Equal(t, msg.CorrelationID, delivered.CorrelationID)
	assert.JSONEq(t, string(msg.Body), string(delivered.Body))
}

func TestClient_ReachesInProcessListeners(t *testing.T) {
	env := startServer(t)
	client := env.dial(t, ClientConfig{})

	got := &inbox{}
	env.bus.Subscribe("local", got)
	require.NoError(t, client.Send(t.Context(), newMessage("local")))
	require.Eventually(t, func() bool { return len(got.all()) == 1 }, 2*time.Second, 5*time.Millisecond)
}

func TestClient_UnsubscribeStopsDelivery(t *testing.T) {
	env := startServer(t)
	client := env.dial(t, ClientConfig{})

	got := &inbox{}
	unsubscribe := client.Subscribe("q", got)
	unsubscribe()
	require.Eventually(t, func() bool { return env.bus.Destinations() == 0 }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, client.Send(t.Context(), newMessage("q")))
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, got.all())
}

func TestServer_PublishErrors(t *testing.T) {
	env := startServer(t)
	client := env.dial(t, ClientConfig{})

	err := client.Send(t.Context(), newMessage(""))
	assert.Equal(t, codes.InvalidArgument, status.Code(errorsUnwrapStatus(err)))

	err = client.conn.Invoke(t.Context(), publishMethod, wrapperspb.Bytes([]byte("not json")), &emptypb.Empty{})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

// errorsUnwrapStatus digs the gRPC status out of a wrapped error.
func errorsUnwrapStatus(err error) error {
	if s, ok := status.FromError(err); ok {
		return s.Err()
	}
	return err
}

func TestServer_SubscribeRequiresDestination(t *testing.T) {
	env := startServer(t)
	client := env.dial(t, ClientConfig{})

	err := client.listen(t.Context(), "", &inbox{}, func() {})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestClient_RateLimit(t *testing.T) {
	env := startServer(t)
	client := env.dial(t, ClientConfig{PublishRate: 0.001, PublishBurst: 1})

	require.NoError(t, client.Send(t.Context(), newMessage("q")))

	ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
	defer cancel()
	assert.Error(t, client.Send(ctx, newMessage("q")), "second publish has to wait far longer than the deadline")
}

func TestServer_RequiresBearerToken(t *testing.T) {
	signer, err := security.NewSigner([]byte("bus-secret"))
	require.NoError(t, err)
	env := startServer(t,
		grpc.UnaryInterceptor(signer.UnaryInterceptor(nil)),
		grpc.StreamInterceptor(signer.StreamInterceptor(nil)),
	)

	anonymous := env.dial(t, ClientConfig{})
	err = anonymous.Send(t.Context(), newMessage("q"))
	assert.Equal(t, codes.Unauthenticated, status.Code(errorsUnwrapStatus(err)))

	token, err := signer.Token("pillar-1", time.Hour)
	require.NoError(t, err)
	authed := env.dial(t, ClientConfig{},
		grpc.WithPerRPCCredentials(security.TokenCredentials{Token: token, Insecure: true}))

	got := &inbox{}
	unsubscribe := authed.Subscribe("q", got)
	defer unsubscribe()
	require.NoError(t, authed.Send(t.Context(), newMessage("q")))
	require.Eventually(t, func() bool { return len(got.all()) == 1 }, 2*time.Second, 5*time.Millisecond)
}
