// Package commands implements the prbot command line.
package commands

import (
	"io"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	"github.com/abduznik/AI-PR-Analyzer/internal/config"
)

// Global is shared state bound into every command.
type Global struct {
	Logger *slog.Logger
	Out    io.Writer
}

// CLI definition & global flags.
type CLI struct {
	Config  string           `short:"c" help:"Configuration file path" default:"prbot.yaml" env:"PRBOT_CONFIG"`
	Verbose bool             `short:"v" help:"Enable verbose logging"`
	Version kong.VersionFlag `name:"version" help:"Show version and exit"`

	Run      RunCmd      `cmd:"" default:"1" help:"Run the review relay and chat assistant"`
	Check    CheckCmd    `cmd:"" help:"Run one review pass and exit"`
	Sessions SessionsCmd `cmd:"" help:"Inspect stored conversations"`
	Dedup    DedupCmd    `cmd:"" help:"Inspect reviewed pull request markers"`
	Migrate  MigrateCmd  `cmd:"" help:"Rewrite the session file in the current format"`
	History  HistoryCmd  `cmd:"" help:"Show recent review passes"`
	Init     InitCmd     `cmd:"" help:"Write an example configuration file"`
}

// AfterApply installs a bootstrap logger until the configuration is read.
// nolint:unparam // AfterApply currently never returns an error.
func (c *CLI) AfterApply(g *Global) error {
	level := slog.LevelInfo
	if c.Verbose {
		level = slog.LevelDebug
	}
	g.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(g.Logger)
	return nil
}

// loadConfig reads the configuration and reconfigures logging from it.
// validate is false for offline commands that only read local files.
func loadConfig(g *Global, root *CLI, validate bool) (*config.Config, error) {
	cfg, err := config.Load(root.Config)
	if err != nil {
		return nil, err
	}
	if validate {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	g.Logger = newLogger(cfg.Monitoring.Logging, root.Verbose)
	slog.SetDefault(g.Logger)
	return cfg, nil
}

func newLogger(lc config.MonitoringLogging, verbose bool) *slog.Logger {
	level := lc.Level.SlogLevel()
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if lc.Format == config.LogFormatJSON {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func (g *Global) out() io.Writer {
	if g.Out != nil {
		return g.Out
	}
	return os.Stdout
}
