// ABOUTME: Operation commands (put, get, delete, replace, checksums, list, status)
// ABOUTME: Prints conversation events as they happen and a result table at the end

package main

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"

	"github.com/2389/pillarclient/internal/client"
	"github.com/2389/pillarclient/internal/config"
	"github.com/2389/pillarclient/internal/conversation"
	"github.com/2389/pillarclient/internal/event"
	"github.com/2389/pillarclient/internal/message"
	"github.com/2389/pillarclient/internal/operation"
)

// printEvent writes one conversation event to stdout.
func printEvent(e event.OperationEvent) {
	ts := color.HiBlackString(e.Timestamp.Format("15:04:05.000"))
	var tag string
	switch e.Type {
	case event.Complete:
		tag = color.New(color.FgGreen, color.Bold).Sprint("✓ ")
	case event.Failed:
		tag = color.New(color.FgRed, color.Bold).Sprint("✗ ")
	case event.ComponentFailed, event.NoComponentFound:
		tag = color.RedString("! ")
	case event.IdentifyTimeout, event.Warning:
		tag = color.YellowString("! ")
	case event.ComponentComplete, event.ComponentIdentified:
		tag = color.GreenString("· ")
	default:
		tag = color.CyanString("· ")
	}
	fmt.Printf("%s %s%s\n", ts, tag, e.String())
}

var eventPrinter = event.HandlerFunc(printEvent)

// settingsFor returns client settings, using the configured pillars as
// contributors when none are listed.
func settingsFor(cfg *config.Config) client.Settings {
	settings := cfg.ClientSettings()
	if len(settings.Contributors) == 0 {
		for _, p := range cfg.Pillars {
			settings.Contributors = append(settings.Contributors, p.ID)
		}
	}
	return settings
}

func runOperation(ctx context.Context, name string, args []string) error {
	flags, _, err := parseArgs(args)
	if err != nil {
		return err
	}
	op, err := buildOperation(name, flags)
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

	transport, err := rt.dialBus(cfg.Collection.ClientID)
	if err != nil {
		return err
	}
	c, err := rt.newClient(transport, settingsFor(cfg), eventPrinter)
	if err != nil {
		return err
	}

	terminal, err := c.Perform(ctx, op, nil)
	if err != nil {
		return err
	}
	printResults(terminal)
	return nil
}

// buildOperation turns command flags into an operation.
func buildOperation(name string, flags map[string]string) (conversation.Operation, error) {
	fileID := flags["file-id"]
	size, err := parseSize(flags["size"])
	if err != nil {
		return nil, err
	}

	switch name {
	case "put":
		if fileID == "" || flags["address"] == "" {
			return nil, fmt.Errorf("usage: put --file-id <id> --address <url> [--size <bytes>] [--checksum <sum>]")
		}
		return operation.PutFile(operation.PutFileOptions{
			FileID:      fileID,
			FileAddress: flags["address"],
			FileSize:    size,
			Checksum:    flags["checksum"],
		}), nil
	case "get":
		if fileID == "" || flags["address"] == "" {
			return nil, fmt.Errorf("usage: get --file-id <id> --address <url> [--from <pillar>]")
		}
		return operation.GetFile(operation.GetFileOptions{
			FileID:      fileID,
			FileAddress: flags["address"],
			Contributor: flags["from"],
		}), nil
	case "delete":
		if fileID == "" {
			return nil, fmt.Errorf("usage: delete --file-id <id> [--checksum <sum>]")
		}
		return operation.DeleteFile(operation.DeleteFileOptions{FileID: fileID, ExistingChecksum: flags["checksum"]}), nil
	case "replace":
		if fileID == "" || flags["address"] == "" || flags["new-checksum"] == "" {
			return nil, fmt.Errorf("usage: replace --file-id <id> --checksum <old> --new-checksum <new> --address <url> [--size <bytes>]")
		}
		return operation.ReplaceFile(operation.ReplaceFileOptions{
			FileID:           fileID,
			ExistingChecksum: flags["checksum"],
			NewChecksum:      flags["new-checksum"],
			FileAddress:      flags["address"],
			FileSize:         size,
		}), nil
	case "checksums":
		algorithm := flags["algorithm"]
		if algorithm == "" {
			algorithm = "SHA256"
		}
		return operation.GetChecksums(operation.ChecksumsOptions{FileID: fileID, Algorithm: algorithm, Salt: flags["salt"]}), nil
	case "list":
		return operation.GetFileIDs(fileID), nil
	case "status":
		return operation.GetStatus(), nil
	}
	return nil, fmt.Errorf("unknown operation %q", name)
}

func parseSize(raw string) (int64, error) {
	if raw == "" {
		return 0, nil
	}
	size, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || size < 0 {
		return 0, fmt.Errorf("invalid --size %q", raw)
	}
	return size, nil
}

// printResults renders the per-contributor results of a terminal event.
func printResults(terminal event.OperationEvent) {
	if len(terminal.Results) == 0 {
		return
	}
	results := slices.Clone(terminal.Results)
	slices.SortFunc(results, func(a, b event.ContributorResult) int {
		return strings.Compare(a.ContributorID, b.ContributorID)
	})

	fmt.Println()
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  PILLAR\tRESULT")
	fmt.Fprintln(w, "  ------\t------")
	for _, r := range results {
		for _, line := range describeResult(r.Payload) {
			fmt.Fprintf(w, "  %s\t%s\n", r.ContributorID, line)
		}
	}
	w.Flush()
}

func describeResult(payload any) []string {
	switch v := payload.(type) {
	case message.FileResult:
		if v.Checksum == "" {
			return []string{"ok"}
		}
		return []string{"checksum " + v.Checksum}
	case message.ChecksumsResult:
		if len(v.Entries) == 0 {
			return []string{"(no files)"}
		}
		lines := make([]string, 0, len(v.Entries))
		for _, e := range v.Entries {
			lines = append(lines, fmt.Sprintf("%s %s:%s", e.FileID, v.Algorithm, e.Checksum))
		}
		return lines
	case message.FileIDsResult:
		if len(v.FileIDs) == 0 {
			return []string{"(no files)"}
		}
		return v.FileIDs
	case message.StatusResult:
		if v.Info == "" {
			return []string{v.StatusCode}
		}
		return []string{v.StatusCode + " " + v.Info}
	case nil:
		return []string{"ok"}
	}
	return []string{fmt.Sprint(payload)}
}
