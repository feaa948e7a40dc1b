// ABOUTME: Typed helpers for each collection operation on top of Perform
// ABOUTME: Collect per-contributor results from the terminal event

package client

import (
	"context"
	"fmt"

	"github.com/2389/pillarclient/internal/event"
	"github.com/2389/pillarclient/internal/message"
	"github.com/2389/pillarclient/internal/operation"
)

// Results collects the payloads of type T from a terminal event, keyed by
// contributor.
func Results[T any](terminal event.OperationEvent) map[string]T {
	out := make(map[string]T, len(terminal.Results))
	for _, r := range terminal.Results {
		if v, ok := r.Payload.(T); ok {
			out[r.ContributorID] = v
		}
	}
	return out
}

// PutFile stores a file on every contributor.
func (c *Client) PutFile(ctx context.Context, opts operation.PutFileOptions, handler event.Handler) (map[string]message.FileResult, error) {
	terminal, err := c.Perform(ctx, operation.PutFile(opts), handler)
	if err != nil {
		return nil, err
	}
	return Results[message.FileResult](terminal), nil
}

// GetFile fetches a file from a single contributor and returns which one
// delivered it.
func (c *Client) GetFile(ctx context.Context, opts operation.GetFileOptions, handler event.Handler) (string, message.FileResult, error) {
	terminal, err := c.Perform(ctx, operation.GetFile(opts), handler)
	if err != nil {
		return "", message.FileResult{}, err
	}
	for id, result := range Results[message.FileResult](terminal) {
		return id, result, nil
	}
	return "", message.FileResult{}, fmt.Errorf("get %s: no contributor delivered the file", opts.FileID)
}

// DeleteFile removes a file from every contributor.
func (c *Client) DeleteFile(ctx context.Context, opts operation.DeleteFileOptions, handler event.Handler) error {
	_, err := c.Perform(ctx, operation.DeleteFile(opts), handler)
	return err
}

// ReplaceFile replaces a file on every contributor.
func (c *Client) ReplaceFile(ctx context.Context, opts operation.ReplaceFileOptions, handler event.Handler) (map[string]message.FileResult, error) {
	terminal, err := c.Perform(ctx, operation.ReplaceFile(opts), handler)
	if err != nil {
		return nil, err
	}
	return Results[message.FileResult](terminal), nil
}

// GetChecksums collects checksums from every contributor.
func (c *Client) GetChecksums(ctx context.Context, opts operation.ChecksumsOptions, handler event.Handler) (map[string]message.ChecksumsResult, error) {
	terminal, err := c.Perform(ctx, operation.GetChecksums(opts), handler)
	if err != nil {
		return nil, err
	}
	return Results[message.ChecksumsResult](terminal), nil
}

// GetFileIDs lists files on every contributor. An empty fileID lists all.
func (c *Client) GetFileIDs(ctx context.Context, fileID string, handler event.Handler) (map[string]message.FileIDsResult, error) {
	terminal, err := c.Perform(ctx, operation.GetFileIDs(fileID), handler)
	if err != nil {
		return nil, err
	}
	return Results[message.FileIDsResult](terminal), nil
}

// GetStatus asks every contributor for its status.
func (c *Client) GetStatus(ctx context.Context, handler event.Handler) (map[string]message.StatusResult, error) {
	terminal, err := c.Perform(ctx, operation.GetStatus(), handler)
	if err != nil {
		return nil, err
	}
	return Results[message.StatusResult](terminal), nil
}
