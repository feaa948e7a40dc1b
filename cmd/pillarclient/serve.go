// ABOUTME: Long-running commands: the gRPC message bus and simulated pillars
// ABOUTME: Both run until interrupted

package main

import (
	"context"
	"fmt"
	"net"

	"github.com/fatih/color"
	"google.golang.org/grpc"

	"github.com/2389/pillarclient/internal/bus"
	"github.com/2389/pillarclient/internal/bus/grpcbus"
	"github.com/2389/pillarclient/internal/config"
	"github.com/2389/pillarclient/internal/message"
	"github.com/2389/pillarclient/internal/pillarsim"
)

func runBus(ctx context.Context) error {
	cfg, path, err := loadConfig()
	if err != nil {
		return err
	}
	rt, err := newRuntime(cfg)
	if err != nil {
		return err
	}
	defer rt.close()

	cyan := color.New(color.FgCyan)
	green := color.New(color.FgGreen)
	cyan.Print(banner)
	color.New(color.FgHiBlack).Printf("    version: %s\n\n", version)
	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", path)
	green.Print("    ▶ ")
	fmt.Printf("Bus:       %s\n", cfg.Bus.ListenAddr)
	if cfg.Security.RequireToken {
		green.Print("    ▶ ")
		fmt.Println("Auth:      bearer token required")
	}
	fmt.Println()

	var opts []grpc.ServerOption
	if cfg.Security.RequireToken {
		opts = append(opts,
			grpc.UnaryInterceptor(rt.signer.UnaryInterceptor(rt.logger)),
			grpc.StreamInterceptor(rt.signer.StreamInterceptor(rt.logger)),
		)
	}

	lis, err := net.Listen("tcp", cfg.Bus.ListenAddr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", cfg.Bus.ListenAddr, err)
	}

	b := bus.New(rt.logger)
	defer b.Close()
	gs := grpc.NewServer(opts...)
	grpcbus.NewServer(b, rt.logger).Register(gs)

	errCh := make(chan error, 1)
	go func() { errCh <- gs.Serve(lis) }()
	rt.logger.Info("message bus serving", "addr", cfg.Bus.ListenAddr)

	select {
	case <-ctx.Done():
		rt.logger.Info("shutting down message bus")
		gs.GracefulStop()
		return nil
	case err := <-errCh:
		return fmt.Errorf("serving bus: %w", err)
	}
}

func runPillar(ctx context.Context, args []string) error {
	flags, _, err := parseArgs(args)
	if err != nil {
		return err
	}
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	rt, err := newRuntime(cfg)
	if err != nil {
		return err
	}
	defer rt.close()

	pillarCfgs := selectPillars(cfg, flags["id"])
	if len(pillarCfgs) == 0 {
		return fmt.Errorf("no pillars configured; pass --id or add a pillars section")
	}

	for _, pc := range pillarCfgs {
		transport, err := rt.dialBus(pc.ID)
		if err != nil {
			return err
		}
		p, err := startPillar(cfg, pc, transport, rt)
		if err != nil {
			return err
		}
		defer p.Close()
		color.Green("    ▶ pillar %s listening on %s", pc.ID, p.Queue())
	}

	<-ctx.Done()
	return nil
}

// selectPillars returns the configured pillars, narrowed to id when set.
// An id without a matching entry runs a pillar with default behavior.
func selectPillars(cfg *config.Config, id string) []config.PillarConfig {
	if id == "" {
		return cfg.Pillars
	}
	for _, p := range cfg.Pillars {
		if p.ID == id {
			return []config.PillarConfig{p}
		}
	}
	return []config.PillarConfig{{ID: id}}
}

func startPillar(cfg *config.Config, pc config.PillarConfig, transport bus.Transport, rt *runtime) (*pillarsim.Pillar, error) {
	p, err := pillarsim.New(pillarsim.Config{
		ID:               pc.ID,
		CollectionID:     cfg.Collection.ID,
		Destination:      cfg.CollectionDestination(),
		Delay:            pc.Delay,
		TimeToDeliver:    pc.TimeToDeliver,
		Silent:           pc.Silent,
		FailWith:         message.ResponseCode(pc.FailWith),
		CorruptChecksums: pc.CorruptChecksums,
	}, transport, rt.logger)
	if err != nil {
		return nil, fmt.Errorf("creating pillar %s: %w", pc.ID, err)
	}
	p.Start()
	return p, nil
}
