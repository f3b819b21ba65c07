package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/abduznik/AI-PR-Analyzer/internal/docstore"
	ferrors "github.com/abduznik/AI-PR-Analyzer/internal/foundation/errors"
	"github.com/abduznik/AI-PR-Analyzer/internal/memory"
)

// SessionsCmd groups the session inspection commands.
type SessionsCmd struct {
	List SessionsListCmd `cmd:"" help:"List chats with stored conversations"`
	Show SessionsShowCmd `cmd:"" help:"Print the stored conversation of one chat"`
}

// SessionsListCmd implements 'sessions list'.
type SessionsListCmd struct{}

func (s *SessionsListCmd) Run(g *Global, root *CLI) error {
	store, err := openSessions(g, root)
	if err != nil {
		return err
	}
	ctx := context.Background()

	sessions, err := store.Sessions(ctx)
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		_, err := fmt.Fprintln(g.out(), "No stored conversations.")
		return err
	}
	chats := make([]string, 0, len(sessions))
	for chatID := range sessions {
		chats = append(chats, chatID)
	}
	slices.Sort(chats)

	tw := tabwriter.NewWriter(g.out(), 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "CHAT\tTURNS\tSAVED")
	for _, chatID := range chats {
		session := sessions[chatID]
		_, _ = fmt.Fprintf(tw, "%s\t%d\t%s\n", chatID, len(session.Current), joinOrDash(session.SnapshotNames()))
	}
	return tw.Flush()
}

// SessionsShowCmd implements 'sessions show'.
type SessionsShowCmd struct {
	ChatID string `arg:"" name:"chat-id" help:"Telegram chat id"`
}

func (s *SessionsShowCmd) Run(g *Global, root *CLI) error {
	store, err := openSessions(g, root)
	if err != nil {
		return err
	}

	session, ok, err := store.History(context.Background(), s.ChatID)
	if err != nil {
		return err
	}
	if !ok {
		return ferrors.NotFoundError(fmt.Sprintf("no conversation stored for chat %s", s.ChatID)).Build()
	}

	enc := json.NewEncoder(g.out())
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(session)
}

func openSessions(g *Global, root *CLI) (*memory.Store, error) {
	cfg, err := loadConfig(g, root, false)
	if err != nil {
		return nil, err
	}
	// Inspection must not move a damaged file aside.
	return memory.NewStore(memory.NewFile(cfg.Storage.SessionPath(), docstore.ReadOnly()),
		memory.WithMaxTurns(cfg.Memory.MaxTurns),
		memory.WithContextTurns(cfg.Memory.ContextTurns),
		memory.WithLogger(g.Logger)), nil
}

func joinOrDash(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	return strings.Join(items, ",")
}
