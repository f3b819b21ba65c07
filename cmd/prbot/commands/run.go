package commands

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/abduznik/AI-PR-Analyzer/internal/daemon"
)

// RunCmd implements the 'run' command.
type RunCmd struct {
	NoWatch bool `help:"Do not reload the configuration file on change"`
}

func (r *RunCmd) Run(g *Global, root *CLI) error {
	cfg, err := loadConfig(g, root, true)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	opts := []daemon.Option{daemon.WithLogger(g.Logger)}
	if !r.NoWatch {
		opts = append(opts, daemon.WithConfigPath(root.Config))
	}
	d, err := daemon.New(ctx, cfg, opts...)
	if err != nil {
		return err
	}

	g.Logger.Info("Daemon started, waiting for shutdown signal...")
	if err := d.Run(ctx); err != nil {
		return err
	}
	g.Logger.Info("Daemon stopped successfully")
	return nil
}
