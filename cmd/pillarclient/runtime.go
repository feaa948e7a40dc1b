// ABOUTME: Wiring shared by commands: bus transport, signing, ledger and client
// ABOUTME: Builds everything from the loaded configuration

package main

import (
	"fmt"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/2389/pillarclient/internal/bus"
	"github.com/2389/pillarclient/internal/bus/grpcbus"
	"github.com/2389/pillarclient/internal/client"
	"github.com/2389/pillarclient/internal/config"
	"github.com/2389/pillarclient/internal/event"
	"github.com/2389/pillarclient/internal/security"
	"github.com/2389/pillarclient/internal/store"
)

const busTokenTTL = 24 * time.Hour

// runtime holds the resources a command opened. close releases them in
// reverse order.
type runtime struct {
	cfg     *config.Config
	logger  *slog.Logger
	signer  *security.Signer
	ledger  *store.SQLiteStore
	closers []func()
}

func newRuntime(cfg *config.Config) (*runtime, error) {
	rt := &runtime{cfg: cfg, logger: setupLogger(cfg.Logging)}
	if cfg.Security.Secret != "" {
		signer, err := security.NewSigner([]byte(cfg.Security.Secret))
		if err != nil {
			return nil, err
		}
		rt.signer = signer
	}
	return rt, nil
}

func (rt *runtime) close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
}

// dialBus connects to the configured gRPC bus. The returned transport
// signs and verifies messages when signing is enabled.
func (rt *runtime) dialBus(subject string) (bus.Transport, error) {
	dialOpts := []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	if rt.cfg.Security.RequireToken {
		token, err := rt.signer.Token(subject, busTokenTTL)
		if err != nil {
			return nil, fmt.Errorf("issuing bus token: %w", err)
		}
		dialOpts = append(dialOpts, grpc.WithPerRPCCredentials(security.TokenCredentials{Token: token, Insecure: true}))
	}

	conn, err := grpcbus.Dial(grpcbus.ClientConfig{
		Address:        rt.cfg.Bus.Address,
		PublishRate:    rt.cfg.Bus.PublishRate,
		PublishBurst:   rt.cfg.Bus.PublishBurst,
		ReconnectDelay: rt.cfg.Bus.ReconnectDelay,
		DialOptions:    dialOpts,
	}, rt.logger)
	if err != nil {
		return nil, err
	}
	rt.closers = append(rt.closers, func() { conn.Close() })
	return rt.secure(conn), nil
}

func (rt *runtime) secure(t bus.Transport) bus.Transport {
	if rt.cfg.Security.SignMessages {
		return security.NewSecureTransport(t, rt.signer, rt.logger)
	}
	return t
}

// openLedger opens the event ledger if one is configured.
func (rt *runtime) openLedger() error {
	if rt.cfg.Ledger.Path == "" || rt.ledger != nil {
		return nil
	}
	ledger, err := store.NewSQLiteStore(rt.cfg.Ledger.Path, rt.logger)
	if err != nil {
		return fmt.Errorf("opening ledger: %w", err)
	}
	rt.ledger = ledger
	rt.closers = append(rt.closers, func() { ledger.Close() })
	return nil
}

// newClient creates an operation client on transport. Events go to the
// ledger, when configured, and then to handler.
func (rt *runtime) newClient(transport bus.Transport, settings client.Settings, handler event.Handler) (*client.Client, error) {
	if err := rt.openLedger(); err != nil {
		return nil, err
	}
	if rt.ledger != nil {
		handler = store.NewRecorder(rt.ledger, handler, rt.logger)
	}
	c, err := client.New(client.Options{
		Settings:  settings,
		Transport: transport,
		Mediator:  rt.cfg.MediatorConfig(),
		Handler:   handler,
		Logger:    rt.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating client: %w", err)
	}
	rt.closers = append(rt.closers, c.Close)
	return c, nil
}
