// ABOUTME: history command listing operations recorded in the event ledger
// ABOUTME: Shows recent outcomes, or every event of one conversation

package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/fatih/color"

	"github.com/2389/pillarclient/internal/conversation"
	"github.com/2389/pillarclient/internal/event"
	"github.com/2389/pillarclient/internal/store"
)

func runHistory(ctx context.Context, args []string) error {
	flags, _, err := parseArgs(args)
	if err != nil {
		return err
	}
	limit := 20
	if raw := flags["limit"]; raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("invalid --limit %q", raw)
		}
	}

	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Ledger.Path == "" {
		return fmt.Errorf("no ledger configured; set ledger.path")
	}
	rt, err := newRuntime(cfg)
	if err != nil {
		return err
	}
	defer rt.close()
	if err := rt.openLedger(); err != nil {
		return err
	}

	var records []store.Record
	if id := flags["conversation"]; id != "" {
		records, err = rt.ledger.ListEvents(ctx, store.EventFilter{ConversationID: id, Limit: limit})
	} else {
		records, err = rt.ledger.ListOutcomes(ctx, limit)
	}
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Println("No recorded operations.")
		return nil
	}

	cyan := color.New(color.FgCyan)
	cyan.Println("  Recorded operations")
	cyan.Println("  -------------------")
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  TIME\tCONVERSATION\tOPERATION\tTYPE\tCONTRIBUTOR\tINFO")
	for _, r := range records {
		typ := string(r.Type)
		switch r.Type {
		case event.Complete:
			typ = color.GreenString(typ)
		case event.Failed, event.ComponentFailed:
			typ = color.RedString(typ)
		}
		fmt.Fprintf(w, "  %s\t%s\t%s\t%s\t%s\t%s\n",
			r.Timestamp.Local().Format("2006-01-02 15:04:05"),
			conversation.ShortID(r.ConversationID),
			r.Operation,
			typ,
			r.ContributorID,
			r.Info,
		)
	}
	return w.Flush()
}
