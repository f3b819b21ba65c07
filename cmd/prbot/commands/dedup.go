package commands

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/abduznik/AI-PR-Analyzer/internal/dedup"
	"github.com/abduznik/AI-PR-Analyzer/internal/docstore"
)

// DedupCmd groups the dedup inspection commands.
type DedupCmd struct {
	List DedupListCmd `cmd:"" help:"List reviewed pull requests and their head markers"`
}

// DedupListCmd implements 'dedup list'.
type DedupListCmd struct{}

func (d *DedupListCmd) Run(g *Global, root *CLI) error {
	cfg, err := loadConfig(g, root, false)
	if err != nil {
		return err
	}
	tracker := dedup.NewTracker(dedup.NewFile(cfg.Storage.DedupPath(), docstore.ReadOnly()), dedup.WithLogger(g.Logger))

	entries, err := tracker.Entries(context.Background())
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		_, err := fmt.Fprintln(g.out(), "No reviewed pull requests recorded.")
		return err
	}

	tw := tabwriter.NewWriter(g.out(), 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "PULL REQUEST\tHEAD")
	for _, e := range entries {
		id := e.ID
		if !e.Valid {
			id += " (malformed)"
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\n", id, e.Marker)
	}
	return tw.Flush()
}
