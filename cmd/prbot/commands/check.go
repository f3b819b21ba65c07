package commands

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/abduznik/AI-PR-Analyzer/internal/daemon"
)

// CheckCmd implements the 'check' command.
type CheckCmd struct{}

func (c *CheckCmd) Run(g *Global, root *CLI) error {
	cfg, err := loadConfig(g, root, true)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	d, err := daemon.New(ctx, cfg, daemon.WithLogger(g.Logger))
	if err != nil {
		return err
	}
	defer d.Close()

	summary, err := d.Check(ctx)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(g.out(), summary.String())
	return err
}
