package commands

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/abduznik/AI-PR-Analyzer/internal/eventstore"
	ferrors "github.com/abduznik/AI-PR-Analyzer/internal/foundation/errors"
)

// HistoryCmd implements the 'history' command.
type HistoryCmd struct {
	Limit int    `short:"n" help:"Number of passes to show" default:"10"`
	Pass  string `help:"Show the events of one pass instead"`
}

func (h *HistoryCmd) Run(g *Global, root *CLI) error {
	cfg, err := loadConfig(g, root, false)
	if err != nil {
		return err
	}
	path := cfg.Storage.EventsPath()
	if path == "" {
		return ferrors.ConfigError("event store is disabled (storage.events_db is empty)").Build()
	}

	store, err := eventstore.NewSQLiteStore(path)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()
	ctx := context.Background()

	if h.Pass != "" {
		return h.printEvents(ctx, g, store)
	}

	projection := eventstore.NewPassHistoryProjection(store, max(h.Limit, 1))
	if err := projection.Rebuild(ctx); err != nil {
		return err
	}
	passes := projection.History(h.Limit)
	if len(passes) == 0 {
		_, err := fmt.Fprintln(g.out(), "No review passes recorded.")
		return err
	}

	tw := tabwriter.NewWriter(g.out(), 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "PASS\tTRIGGER\tSTATUS\tSTARTED\tOBSERVED\tNEW\tREVIEWED\tFAILED")
	for _, p := range passes {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%d\t%d\n",
			p.PassID, p.Trigger, p.Status, p.StartedAt.Local().Format(time.DateTime),
			p.Observed, p.New, p.Reviewed, p.Failed)
	}
	return tw.Flush()
}

func (h *HistoryCmd) printEvents(ctx context.Context, g *Global, store eventstore.Store) error {
	events, err := store.GetByPassID(ctx, h.Pass)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		return ferrors.NotFoundError(fmt.Sprintf("no events recorded for pass %s", h.Pass)).Build()
	}

	tw := tabwriter.NewWriter(g.out(), 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "TIME\tEVENT\tPAYLOAD")
	for _, e := range events {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\n", e.Timestamp().Local().Format(time.DateTime), e.Type(), e.Payload())
	}
	return tw.Flush()
}
