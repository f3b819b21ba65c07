package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/abduznik/AI-PR-Analyzer/internal/memory"
)

// MigrateCmd implements the 'migrate' command.
type MigrateCmd struct {
	File string `arg:"" optional:"" type:"path" help:"Session file (defaults to the configured one)"`
}

func (m *MigrateCmd) Run(g *Global, root *CLI) error {
	path := m.File
	if path == "" {
		cfg, err := loadConfig(g, root, false)
		if err != nil {
			return err
		}
		path = cfg.Storage.SessionPath()
	}

	report, err := memory.MigrateFile(context.Background(), path)
	if err != nil {
		return err
	}
	if len(report.Rejected) > 0 {
		_, _ = fmt.Fprintf(g.out(), "Set aside %d unreadable chat(s) from %s: %s.\n",
			len(report.Rejected), path, strings.Join(report.Rejected, ", "))
	}
	if len(report.Migrated) == 0 {
		_, err := fmt.Fprintf(g.out(), "%s is already in the current format.\n", path)
		return err
	}
	_, err = fmt.Fprintf(g.out(), "Migrated %d chat(s) in %s.\n", len(report.Migrated), path)
	return err
}
