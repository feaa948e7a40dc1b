// Package client is the entry point applications use to run collection
// operations against a set of pillars.
//
// A Client subscribes a mediator to its reply destination on a
// bus.Transport (the in-memory bus, the gRPC bus client, or either wrapped
// by security.NewSecureTransport). Start creates a conversation, registers
// it with the mediator before anything is sent, and starts it. Perform
// does the same and blocks until the terminal event:
//
//	c, err := client.New(client.Options{Settings: settings, Transport: transport, Logger: logger})
//	sums, err := c.GetChecksums(ctx, operation.ChecksumsOptions{Algorithm: "SHA256"}, printer)
//
// Per-operation timeouts come from Settings.Overrides and fall back to
// Settings.Timeouts.
package client
