// ABOUTME: demo command running every operation against in-process simulated pillars
// ABOUTME: Uses the in-memory bus so no server is needed

package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fatih/color"

	"github.com/2389/pillarclient/internal/bus"
	"github.com/2389/pillarclient/internal/config"
	"github.com/2389/pillarclient/internal/conversation"
	"github.com/2389/pillarclient/internal/operation"
)

// demoPillars is used when the config has no pillars section.
var demoPillars = []config.PillarConfig{
	{ID: "pillar-a", Delay: 20 * time.Millisecond, TimeToDeliver: 2 * time.Second},
	{ID: "pillar-b", Delay: 60 * time.Millisecond, TimeToDeliver: 500 * time.Millisecond},
	{ID: "pillar-c", Delay: 40 * time.Millisecond, TimeToDeliver: time.Second},
}

func runDemo(ctx context.Context) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	if len(cfg.Pillars) == 0 {
		cfg.Pillars = demoPillars
	}
	if len(cfg.Collection.Contributors) == 0 {
		for _, p := range cfg.Pillars {
			cfg.Collection.Contributors = append(cfg.Collection.Contributors, p.ID)
		}
	}
	rt, err := newRuntime(cfg)
	if err != nil {
		return err
	}
	defer rt.close()

	b := bus.New(rt.logger)
	rt.closers = append(rt.closers, b.Close)
	transport := rt.secure(b)

	for _, pc := range cfg.Pillars {
		p, err := startPillar(cfg, pc, transport, rt)
		if err != nil {
			return err
		}
		rt.closers = append(rt.closers, p.Close)
	}

	c, err := rt.newClient(transport, settingsFor(cfg), eventPrinter)
	if err != nil {
		return err
	}

	steps := []struct {
		title string
		op    conversation.Operation
	}{
		{"Store a file on every pillar", operation.PutFile(operation.PutFileOptions{
			FileID: "demo-file", FileAddress: "http://files.example/demo-file", FileSize: 1024,
			Checksum: "9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08",
		})},
		{"Collect checksums", operation.GetChecksums(operation.ChecksumsOptions{Algorithm: "SHA256"})},
		{"Fetch the file from the fastest pillar", operation.GetFile(operation.GetFileOptions{
			FileID: "demo-file", FileAddress: "http://upload.example/demo-file",
		})},
		{"List files", operation.GetFileIDs("")},
		{"Pillar status", operation.GetStatus()},
		{"Delete the file", operation.DeleteFile(operation.DeleteFileOptions{
			FileID:           "demo-file",
			ExistingChecksum: "9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08",
		})},
	}

	yellow := color.New(color.FgYellow, color.Bold)
	var failed int
	for i, step := range steps {
		fmt.Println()
		yellow.Printf("[%d/%d] %s\n", i+1, len(steps), step.title)
		terminal, err := c.Perform(ctx, step.op, nil)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			color.Red("  %v", err)
			failed++
			continue
		}
		printResults(terminal)
	}

	fmt.Println()
	if failed > 0 {
		return fmt.Errorf("%d of %d demo operations failed", failed, len(steps))
	}
	color.Green("All %d demo operations completed.", len(steps))
	return nil
}
